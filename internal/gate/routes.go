package gate

import "github.com/nhle/workdesk/internal/model"

// Route paths understood by the client.
const (
	RouteEmployee           = "/employee"
	RouteEmployeeRequests   = "/employee/my-requests"
	RouteEmployeeAttendance = "/employee/attendance"
	RouteManager            = "/manager"
	RouteManagerAttendance  = "/manager/attendance"
	RouteManagerTeams       = "/manager/teams"
	RouteAdmin              = "/admin"
	RouteAdminAttendance    = "/admin/attendance"
	RouteAdminTeams         = "/admin/teams"
	RouteNotifications      = "/notifications"
)

// Route is a protected destination and the roles allowed to open it.
type Route struct {
	Path     string
	Title    string
	Required []model.Role
}

// Routes lists every protected route. Routes not listed here are public.
var Routes = []Route{
	{RouteEmployee, "Dashboard", []model.Role{model.RoleEmployee}},
	{RouteEmployeeRequests, "My requests", []model.Role{model.RoleEmployee}},
	{RouteEmployeeAttendance, "Attendance", []model.Role{model.RoleEmployee}},
	{RouteManager, "Dashboard", []model.Role{model.RoleManager}},
	{RouteManagerAttendance, "Attendance", []model.Role{model.RoleManager}},
	{RouteManagerTeams, "Teams", []model.Role{model.RoleManager}},
	{RouteAdmin, "Dashboard", []model.Role{model.RoleAdmin}},
	{RouteAdminAttendance, "Attendance", []model.Role{model.RoleAdmin}},
	{RouteAdminTeams, "Teams", []model.Role{model.RoleAdmin}},
	{RouteNotifications, "Notifications", nil},
}

// Lookup returns the route registered for path.
func Lookup(path string) (Route, bool) {
	for _, r := range Routes {
		if r.Path == path {
			return r, true
		}
	}
	return Route{}, false
}

// Check evaluates path for the identity. Unknown paths are treated as
// public and always render.
func Check(path string, identity *model.Identity, loading bool) Decision {
	r, ok := Lookup(path)
	if !ok {
		return Decision{Outcome: Render}
	}
	return Decide(identity, loading, r.Required)
}

// RoutesFor returns the routes an identity may open, in table order.
func RoutesFor(role model.Role) []Route {
	var out []Route
	for _, r := range Routes {
		if len(r.Required) == 0 || contains(r.Required, role) {
			out = append(out, r)
		}
	}
	return out
}

// AttendanceRoute returns the attendance page for role.
func AttendanceRoute(role model.Role) string {
	if !role.Valid() {
		return LoginRoute
	}
	return LandingRoute(role) + "/attendance"
}
