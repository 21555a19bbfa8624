// Package gate decides whether a protected route may render for the
// current identity.
package gate

import "github.com/nhle/workdesk/internal/model"

// LoginRoute is the entry point for unauthenticated users.
const LoginRoute = "/login"

// Outcome is the kind of decision Decide returns.
type Outcome int

const (
	// Loading means the session is not known yet; render a neutral
	// placeholder and decide later.
	Loading Outcome = iota
	Redirect
	Render
)

// Decision is the result of evaluating a route against an identity.
// Target is set only for Redirect.
type Decision struct {
	Outcome Outcome
	Target  string
}

var landingRoutes = map[model.Role]string{
	model.RoleAdmin:    "/admin",
	model.RoleManager:  "/manager",
	model.RoleEmployee: "/employee",
}

// LandingRoute returns the default dashboard for role, or LoginRoute for
// roles without one.
func LandingRoute(role model.Role) string {
	if route, ok := landingRoutes[role]; ok {
		return route
	}
	return LoginRoute
}

// Decide evaluates a protected route. An empty required set admits any
// authenticated identity.
func Decide(identity *model.Identity, loading bool, required []model.Role) Decision {
	if loading {
		return Decision{Outcome: Loading}
	}

	if identity == nil {
		return Decision{Outcome: Redirect, Target: LoginRoute}
	}

	if len(required) > 0 && !contains(required, identity.Role) {
		return Decision{Outcome: Redirect, Target: LandingRoute(identity.Role)}
	}

	return Decision{Outcome: Render}
}

func contains(roles []model.Role, role model.Role) bool {
	for _, r := range roles {
		if r == role {
			return true
		}
	}
	return false
}
