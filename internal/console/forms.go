package console

import (
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/smartschedule/internal/gate"
	"github.com/wolfeidau/smartschedule/internal/session"
)

func (s *Server) login(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid form", http.StatusBadRequest)
		return
	}

	username := strings.TrimSpace(r.PostFormValue("username"))
	password := r.PostFormValue("password")
	next := r.PostFormValue("next")

	err := s.app.Login(r.Context(), username, password)

	var profileErr *session.ProfileFetchError
	switch {
	case err == nil:
	case errors.As(err, &profileErr):
		// still signed in, the profile loads on the next login
		log.Warn().Err(err).Msg("signed in without a profile")
	default:
		d := s.page(r, "Sign in")
		d.Next = next
		status := http.StatusBadGateway
		d.Error = err.Error()

		var authErr *session.AuthError
		if errors.As(err, &authErr) {
			d.Error = authErr.Message
			if authErr.StatusCode >= 400 && authErr.StatusCode < 500 {
				status = http.StatusUnauthorized
			}
		}

		s.render(w, status, "login", d)
		return
	}

	http.Redirect(w, r, safeNext(next), http.StatusFound)
}

func (s *Server) logout(w http.ResponseWriter, r *http.Request) {
	s.app.Logout()
	http.Redirect(w, r, gate.LoginPath, http.StatusFound)
}

func (s *Server) selectTeam(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid form", http.StatusBadRequest)
		return
	}

	next := r.PostFormValue("next")

	id, err := strconv.Atoi(r.PostFormValue("team_id"))
	if err == nil {
		_, err = s.app.SelectTeamByID(r.Context(), id)
	}
	if err != nil {
		log.Debug().Err(err).Msg("team selection rejected")
		d := s.page(r, "Select a team")
		d.Next = next
		d.Error = "That team could not be selected."
		s.teamSelectPage(w, r, d, http.StatusBadRequest)
		return
	}

	http.Redirect(w, r, safeNext(next), http.StatusFound)
}

func (s *Server) acceptInvite(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(r.PathValue("id"))
	if err != nil {
		http.NotFound(w, r)
		return
	}

	if err := s.app.AcceptInvite(r.Context(), id); err != nil {
		log.Warn().Err(err).Int("invite_id", id).Msg("failed to accept invite")
		http.Error(w, "unable to accept invite", http.StatusBadGateway)
		return
	}

	http.Redirect(w, r, gate.TeamSelectPath, http.StatusFound)
}

func (s *Server) deleteRecord(res resource) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, err := strconv.Atoi(r.PathValue("id"))
		if err != nil {
			http.NotFound(w, r)
			return
		}

		if err := res.remove(r.Context(), id); err != nil {
			log.Warn().Err(err).Str("resource", res.Noun).Int("id", id).Msg("failed to delete record")
			http.Error(w, "unable to delete "+res.Noun, http.StatusBadGateway)
			return
		}

		http.Redirect(w, r, res.Path, http.StatusFound)
	})
}

// safeNext returns next when it is a local path, the dashboard otherwise.
func safeNext(next string) string {
	if next == "" || !strings.HasPrefix(next, "/") || strings.HasPrefix(next, "//") || strings.HasPrefix(next, "/\\") {
		return gate.DashboardPath
	}

	u, err := url.Parse(next)
	if err != nil || u.IsAbs() || u.Host != "" {
		return gate.DashboardPath
	}
	if u.Path == gate.LoginPath {
		return gate.DashboardPath
	}

	return u.RequestURI()
}
