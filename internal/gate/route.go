package gate

import (
	"context"
	"strings"

	"github.com/wolfeidau/smartschedule/internal/models"
	"github.com/wolfeidau/smartschedule/internal/permissions"
	"github.com/wolfeidau/smartschedule/internal/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Access is the level of session state a route requires.
type Access uint8

const (
	// Public routes render for everyone.
	Public Access = iota
	// AuthRequired routes need an authenticated session.
	AuthRequired
	// TeamRequired routes need an authenticated session and a selected team.
	TeamRequired
)

func (a Access) String() string {
	switch a {
	case Public:
		return "public"
	case AuthRequired:
		return "auth-required"
	case TeamRequired:
		return "team-required"
	default:
		return "unknown"
	}
}

// RouteDecision is the outcome of navigating to a path.
type RouteDecision uint8

const (
	Render RouteDecision = iota
	RedirectLogin
	RedirectTeamSelection
	// RedirectUnauthorized is returned when the route guard passes but the
	// route's required permission is denied.
	RedirectUnauthorized
	// Pending is returned while the route's required permission is still loading.
	Pending
	NotFound
)

func (d RouteDecision) String() string {
	switch d {
	case Render:
		return "render"
	case RedirectLogin:
		return "redirect-login"
	case RedirectTeamSelection:
		return "redirect-team-selection"
	case RedirectUnauthorized:
		return "redirect-unauthorized"
	case Pending:
		return "pending"
	case NotFound:
		return "not-found"
	default:
		return "unknown"
	}
}

// Location returns the redirect target for redirect decisions, empty otherwise.
func (d RouteDecision) Location() string {
	switch d {
	case RedirectLogin:
		return LoginPath
	case RedirectTeamSelection:
		return TeamSelectPath
	case RedirectUnauthorized:
		return UnauthorizedPath
	default:
		return ""
	}
}

const (
	LoginPath        = "/login"
	TeamSelectPath   = "/teams/select"
	UnauthorizedPath = "/unauthorized"
	DashboardPath    = "/dashboard"
)

// Route is a navigable screen.
type Route struct {
	Path   string
	Title  string
	Access Access
	// Permission, when set, is checked after the route guard passes.
	Permission permissions.Permission
}

// Routes is the route surface of the console.
var Routes = []Route{
	{Path: LoginPath, Title: "Sign in", Access: Public},
	{Path: UnauthorizedPath, Title: "Not authorized", Access: Public},
	{Path: TeamSelectPath, Title: "Select a team", Access: AuthRequired},
	{Path: DashboardPath, Title: "Dashboard", Access: TeamRequired},
	{Path: "/teams", Title: "Teams", Access: TeamRequired},
	{Path: "/users", Title: "Users", Access: TeamRequired},
	{Path: "/assignments", Title: "Assignments", Access: TeamRequired},
	{Path: "/schedules", Title: "Schedules", Access: TeamRequired},
	{Path: "/invites", Title: "Invites", Access: TeamRequired},
	{Path: "/profile", Title: "Profile", Access: TeamRequired},
	{Path: "/admin", Title: "Administration", Access: TeamRequired, Permission: permissions.ManageSystem},
}

// Resolve finds the route for path. A trailing slash is ignored.
func Resolve(path string) (Route, bool) {
	if len(path) > 1 {
		path = strings.TrimSuffix(path, "/")
	}
	for _, r := range Routes {
		if r.Path == path {
			return r, true
		}
	}
	return Route{}, false
}

// GuardRoute decides from session state alone. Permissions are never consulted.
func GuardRoute(access Access, authenticated, hasTeam bool) RouteDecision {
	if access == Public {
		return Render
	}
	if !authenticated {
		return RedirectLogin
	}
	if access == TeamRequired && !hasTeam {
		return RedirectTeamSelection
	}
	return Render
}

// View is the session and permission state gates decide on.
type View interface {
	IsAuthenticated() bool
	SelectedTeam() *models.Team
	// Permissions returns the permission state for the current selection.
	Permissions() permissions.State
}

// Navigation is the full decision for a path.
type Navigation struct {
	Path     string
	Route    Route
	Decision RouteDecision
}

// Navigate resolves path and applies the route guard, then the route's
// permission guard when the route requires one.
func Navigate(view View, path string) Navigation {
	nav := Navigation{Path: path}

	route, ok := Resolve(path)
	if !ok {
		nav.Decision = NotFound
		record(nav)
		return nav
	}
	nav.Route = route

	nav.Decision = GuardRoute(route.Access, view.IsAuthenticated(), view.SelectedTeam() != nil)
	if nav.Decision == Render && route.Permission != nil {
		switch Check(view.Permissions(), route.Permission) {
		case Loading:
			nav.Decision = Pending
		case Deny:
			nav.Decision = RedirectUnauthorized
		}
	}

	record(nav)

	return nav
}

func record(nav Navigation) {
	telemetry.GetMetrics().GateDecisions.Add(context.Background(), 1,
		metric.WithAttributes(
			attribute.String("gate", "route"),
			attribute.String("decision", nav.Decision.String()),
		))
}
