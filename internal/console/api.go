package console

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/smartschedule/internal/models"
	"github.com/wolfeidau/smartschedule/internal/permissions"
)

type sessionResponse struct {
	Authenticated bool         `json:"authenticated"`
	User          *models.User `json:"user,omitempty"`
	Team          *models.Team `json:"team,omitempty"`
	ExpiresAt     *time.Time   `json:"expires_at,omitempty"`
}

func (s *Server) apiSession(w http.ResponseWriter, r *http.Request) {
	st := s.app.Session.Snapshot()

	resp := sessionResponse{
		Authenticated: st.IsAuthenticated(),
		User:          st.User,
		Team:          st.Team,
	}
	if claims, err := s.app.Session.Claims(); err == nil && !claims.ExpiresAt.IsZero() {
		resp.ExpiresAt = &claims.ExpiresAt
	}

	writeJSON(w, http.StatusOK, resp)
}

type permissionsResponse struct {
	Key       string     `json:"key"`
	Loading   bool       `json:"loading"`
	Error     string     `json:"error,omitempty"`
	Granted   []string   `json:"granted"`
	FetchedAt *time.Time `json:"fetched_at,omitempty"`
}

// apiPermissions reports the permission state of the current selection.
// With ?wait=true it blocks until the first load completes.
func (s *Server) apiPermissions(w http.ResponseWriter, r *http.Request) {
	wait, _ := strconv.ParseBool(r.URL.Query().Get("wait"))

	var st permissions.State
	if wait {
		st = s.app.State(r.Context())
	} else {
		st = s.app.Query()
	}

	writeJSON(w, http.StatusOK, newPermissionsResponse(st))
}

func newPermissionsResponse(st permissions.State) permissionsResponse {
	resp := permissionsResponse{
		Key:     st.Key.String(),
		Loading: st.Loading,
		Granted: []string{},
	}
	if st.Err != nil {
		resp.Error = st.Err.Error()
	}
	// errors and snapshots for other keys grant nothing
	if st.Err == nil && st.Snapshot != nil && st.Snapshot.Key == st.Key {
		resp.Granted = st.Snapshot.Granted()
	}
	if !st.FetchedAt.IsZero() {
		resp.FetchedAt = &st.FetchedAt
	}
	return resp
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("failed to encode response")
	}
}
