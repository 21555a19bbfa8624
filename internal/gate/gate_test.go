package gate

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/nhle/workdesk/internal/model"
)

func identity(role model.Role) *model.Identity {
	return &model.Identity{ID: "u1", Username: "u", Role: role}
}

func TestDecide(t *testing.T) {
	tests := []struct {
		name     string
		identity *model.Identity
		loading  bool
		required []model.Role
		want     Decision
	}{
		{
			name:     "loading wins over everything",
			identity: identity(model.RoleAdmin),
			loading:  true,
			required: []model.Role{model.RoleEmployee},
			want:     Decision{Outcome: Loading},
		},
		{
			name:    "loading without identity",
			loading: true,
			want:    Decision{Outcome: Loading},
		},
		{
			name:     "no identity redirects to login",
			required: []model.Role{model.RoleAdmin},
			want:     Decision{Outcome: Redirect, Target: LoginRoute},
		},
		{
			name: "no identity and no required roles",
			want: Decision{Outcome: Redirect, Target: LoginRoute},
		},
		{
			name:     "manager on admin route goes to own dashboard",
			identity: identity(model.RoleManager),
			required: []model.Role{model.RoleAdmin},
			want:     Decision{Outcome: Redirect, Target: "/manager"},
		},
		{
			name:     "employee on manager route",
			identity: identity(model.RoleEmployee),
			required: []model.Role{model.RoleManager},
			want:     Decision{Outcome: Redirect, Target: "/employee"},
		},
		{
			name:     "unknown role redirects to login",
			identity: identity("Contractor"),
			required: []model.Role{model.RoleAdmin},
			want:     Decision{Outcome: Redirect, Target: LoginRoute},
		},
		{
			name:     "allowed role renders",
			identity: identity(model.RoleAdmin),
			required: []model.Role{model.RoleManager, model.RoleAdmin},
			want:     Decision{Outcome: Render},
		},
		{
			name:     "empty required set admits any role",
			identity: identity("Contractor"),
			want:     Decision{Outcome: Render},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Decide(tt.identity, tt.loading, tt.required))
		})
	}
}

func TestCheck(t *testing.T) {
	assert.Equal(t, Decision{Outcome: Render}, Check("/login", nil, false))
	assert.Equal(t,
		Decision{Outcome: Redirect, Target: "/manager"},
		Check(RouteAdminTeams, identity(model.RoleManager), false),
	)
	assert.Equal(t, Decision{Outcome: Render}, Check(RouteNotifications, identity(model.RoleEmployee), false))
	assert.Equal(t,
		Decision{Outcome: Redirect, Target: LoginRoute},
		Check(RouteNotifications, nil, false),
	)
}

func TestRoutesFor(t *testing.T) {
	var paths []string
	for _, r := range RoutesFor(model.RoleManager) {
		paths = append(paths, r.Path)
	}
	assert.Equal(t, []string{RouteManager, RouteManagerAttendance, RouteManagerTeams, RouteNotifications}, paths)
}

func TestAttendanceRoute(t *testing.T) {
	assert.Equal(t, RouteEmployeeAttendance, AttendanceRoute(model.RoleEmployee))
	assert.Equal(t, RouteAdminAttendance, AttendanceRoute(model.RoleAdmin))
	assert.Equal(t, LoginRoute, AttendanceRoute("Guest"))
}
