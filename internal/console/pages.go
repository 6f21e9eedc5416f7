package console

import (
	"context"
	"html/template"
	"net/http"
	"sort"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/smartschedule/internal/app"
	"github.com/wolfeidau/smartschedule/internal/gate"
	"github.com/wolfeidau/smartschedule/internal/models"
	"github.com/wolfeidau/smartschedule/internal/permissions"
)

var templateFuncs = template.FuncMap{
	// guard is the section guard: "allow", "loading" or "deny".
	"guard": func(st permissions.State, name string) string {
		return gate.CheckName(st, name).String()
	},
	// action is the action guard, nothing renders while loading.
	"action": func(st permissions.State, p permissions.Permission) bool {
		return gate.CheckAction(st, p) == gate.Allow
	},
	"date": func(t time.Time) string {
		if t.IsZero() {
			return ""
		}
		return t.Format("2006-01-02")
	},
}

type navLink struct {
	Path   string
	Title  string
	Active bool
}

type pageData struct {
	Title         string
	Path          string
	Authenticated bool
	User          *models.User
	Team          *models.Team
	Permissions   permissions.State
	Nav           []navLink
	// Refresh reloads the page while permissions are loading.
	Refresh bool
	Error   string
	Next    string
	Content any
}

func (s *Server) page(r *http.Request, title string) *pageData {
	st := s.app.Session.Snapshot()
	perms := s.app.Query()

	d := &pageData{
		Title:         title,
		Path:          r.URL.Path,
		Authenticated: st.IsAuthenticated(),
		User:          st.User,
		Team:          st.Team,
		Permissions:   perms,
	}

	if d.Authenticated {
		d.Refresh = gate.CheckName(perms, "") == gate.Loading
		d.Nav = navigation(r.URL.Path, perms, st.HasTeam())
	}

	return d
}

// navigation lists the routes the session can open right now.
func navigation(current string, perms permissions.State, hasTeam bool) []navLink {
	var links []navLink
	for _, route := range gate.Routes {
		if route.Access == gate.Public {
			continue
		}
		if gate.GuardRoute(route.Access, true, hasTeam) != gate.Render {
			continue
		}
		if route.Permission != nil && !gate.HasPermission(perms, route.Permission) {
			continue
		}
		links = append(links, navLink{Path: route.Path, Title: route.Title, Active: route.Path == current})
	}
	return links
}

func (s *Server) render(w http.ResponseWriter, status int, page string, data *pageData) {
	if err := s.tmpl.Render(w, status, page, data); err != nil {
		log.Error().Err(err).Str("page", page).Msg("failed to render template")
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
	}
}

// renderPage serves a route that passed the route guard.
func (s *Server) renderPage(w http.ResponseWriter, r *http.Request) {
	nav, ok := gate.NavigationFromContext(r.Context())
	if !ok {
		http.NotFound(w, r)
		return
	}

	for _, res := range s.resources {
		if res.Path == nav.Route.Path {
			s.recordsPage(w, r, nav, res)
			return
		}
	}

	d := s.page(r, nav.Route.Title)

	switch nav.Route.Path {
	case gate.LoginPath:
		d.Next = r.URL.Query().Get("next")
		s.render(w, http.StatusOK, "login", d)
	case gate.UnauthorizedPath:
		s.render(w, http.StatusForbidden, "unauthorized", d)
	case gate.TeamSelectPath:
		s.teamSelectPage(w, r, d, http.StatusOK)
	case gate.DashboardPath:
		s.render(w, http.StatusOK, "dashboard", d)
	case "/invites":
		s.invitesPage(w, r, d)
	case "/profile":
		s.profilePage(w, d)
	case "/admin":
		s.adminPage(w, d)
	default:
		http.NotFound(w, r)
	}
}

// loading is served while a route's permission is still being fetched.
func (s *Server) loading(w http.ResponseWriter, r *http.Request) {
	d := s.page(r, "Loading")
	d.Refresh = true
	w.Header().Set("Retry-After", "1")
	s.render(w, http.StatusAccepted, "loading", d)
}

func (s *Server) teamSelectPage(w http.ResponseWriter, r *http.Request, d *pageData, status int) {
	if d.Next == "" {
		d.Next = r.URL.Query().Get("next")
	}

	teams, err := s.app.Client.Teams.Mine(r.Context())
	if err != nil {
		log.Warn().Err(err).Msg("failed to load teams")
		d.Error = "Unable to load your teams."
	}

	d.Content = teams
	s.render(w, status, "teams_select", d)
}

type invitesContent struct {
	Invites []models.Invite
}

func (s *Server) invitesPage(w http.ResponseWriter, r *http.Request, d *pageData) {
	invites, err := s.app.Client.Invites.List(r.Context())
	if err != nil {
		log.Warn().Err(err).Msg("failed to load invites")
		d.Error = "Unable to load invites."
	}
	d.Content = invitesContent{Invites: invites}
	s.render(w, http.StatusOK, "invites", d)
}

type profileContent struct {
	Subject   string
	ExpiresAt time.Time
	Opaque    bool
}

func (s *Server) profilePage(w http.ResponseWriter, d *pageData) {
	var content profileContent
	claims, err := s.app.Session.Claims()
	if err != nil {
		content.Opaque = true
	} else {
		content.Subject = claims.Subject
		content.ExpiresAt = claims.ExpiresAt
	}
	d.Content = content
	s.render(w, http.StatusOK, "profile", d)
}

type adminContent struct {
	ServerURL string
	Key       string
	Granted   []string
	Entries   int
	FetchedAt time.Time
}

func (s *Server) adminPage(w http.ResponseWriter, d *pageData) {
	content := adminContent{
		ServerURL: s.app.Client.BaseURL(),
		Key:       d.Permissions.Key.String(),
		Entries:   s.app.Cache.Len(),
		FetchedAt: d.Permissions.FetchedAt,
	}
	if snap := d.Permissions.Snapshot; snap != nil {
		content.Granted = snap.Granted()
	}
	d.Content = content
	s.render(w, http.StatusOK, "admin", d)
}

type row struct {
	ID     int
	Label  string
	Detail string
}

// resource is a record page with its section and action permissions.
type resource struct {
	Path   string
	Noun   string
	View   permissions.Permission
	Create permissions.Permission
	Edit   permissions.Permission
	Delete permissions.Permission

	list   func(ctx context.Context) ([]row, error)
	remove func(ctx context.Context, id int) error
}

func recordResources(a *app.App) []resource {
	c := a.Client
	return []resource{
		{
			Path: "/teams", Noun: "team",
			View: permissions.ViewTeams, Create: permissions.CreateTeams,
			Edit: permissions.EditTeams, Delete: permissions.DeleteTeams,
			list: func(ctx context.Context) ([]row, error) {
				teams, err := c.Teams.List(ctx)
				return rows(teams, func(t models.Team) row {
					return row{ID: t.ID, Label: t.Name, Detail: t.Description}
				}), err
			},
			remove: a.DeleteTeam,
		},
		{
			Path: "/users", Noun: "user",
			View: permissions.ViewUsers, Create: permissions.CreateUsers,
			Edit: permissions.EditUsers, Delete: permissions.DeleteUsers,
			list: func(ctx context.Context) ([]row, error) {
				users, err := c.Users.List(ctx)
				return rows(users, func(u models.User) row {
					return row{ID: u.ID, Label: u.DisplayName(), Detail: u.Email}
				}), err
			},
			remove: c.Users.Delete,
		},
		{
			Path: "/assignments", Noun: "assignment",
			View: permissions.ViewAssignments, Create: permissions.CreateAssignments,
			Edit: permissions.EditAssignments, Delete: permissions.DeleteAssignments,
			list: func(ctx context.Context) ([]row, error) {
				assignments, err := c.Assignments.List(ctx)
				return rows(assignments, func(as models.Assignment) row {
					return row{ID: as.ID, Label: as.Name, Detail: as.Description}
				}), err
			},
			remove: c.Assignments.Delete,
		},
		{
			Path: "/schedules", Noun: "schedule",
			View: permissions.ViewSchedules, Create: permissions.CreateSchedules,
			Edit: permissions.EditSchedules, Delete: permissions.DeleteSchedules,
			list: func(ctx context.Context) ([]row, error) {
				schedules, err := c.Schedules.List(ctx)
				return rows(schedules, func(sc models.Schedule) row {
					detail := ""
					if !sc.StartDate.IsZero() {
						detail = sc.StartDate.Format("2006-01-02") + " to " + sc.EndDate.Format("2006-01-02")
					}
					return row{ID: sc.ID, Label: sc.Name, Detail: detail}
				}), err
			},
			remove: c.Schedules.Delete,
		},
	}
}

func rows[T any](items []T, fn func(T) row) []row {
	out := make([]row, 0, len(items))
	for _, item := range items {
		out = append(out, fn(item))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

type recordsContent struct {
	Resource resource
	Rows     []row
}

func (s *Server) recordsPage(w http.ResponseWriter, r *http.Request, nav gate.Navigation, res resource) {
	d := s.page(r, nav.Route.Title)
	content := recordsContent{Resource: res}

	// only fetch what the section guard will show
	if gate.Check(d.Permissions, res.View) == gate.Allow {
		list, err := res.list(r.Context())
		if err != nil {
			log.Warn().Err(err).Str("resource", res.Noun).Msg("failed to load records")
			d.Error = "Unable to load " + nav.Route.Title + "."
		}
		content.Rows = list
	}

	d.Content = content
	s.render(w, http.StatusOK, "records", d)
}
