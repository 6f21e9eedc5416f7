// Package fakebackend is an in-process SmartSchedule API used by tests.
package fakebackend

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"

	"github.com/wolfeidau/smartschedule/internal/models"
)

// Account is a user the backend accepts.
type Account struct {
	Password string
	Token    string
	User     models.User
	Teams    []models.Team
	// Role are the role permissions of the account.
	Role map[string]bool
	// TeamRules are the team-rule permissions per team id.
	TeamRules map[int]map[string]bool
}

// Backend serves the subset of the SmartSchedule API the client uses.
type Backend struct {
	*httptest.Server

	mu       sync.Mutex
	accounts map[string]*Account
	records  map[string][]any
	hits     map[string]int
	accepted []int
	hold     chan struct{}

	// ProfileStatus, when set, is returned by GET /User/me.
	ProfileStatus int
	// RenderStatus, when set, is returned by GET /Render/render.
	RenderStatus int
}

// New starts a backend, closed when the test ends.
func New(t interface{ Cleanup(func()) }) *Backend {
	b := &Backend{
		accounts: map[string]*Account{},
		records:  map[string][]any{},
		hits:     map[string]int{},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /Auth/login", b.login)
	mux.HandleFunc("GET /User/me", b.me)
	mux.HandleFunc("GET /Render/render", b.render)
	mux.HandleFunc("GET /Team/my-teams", b.myTeams)
	mux.HandleFunc("POST /Invite/{id}/accept", b.accept)
	mux.HandleFunc("GET /{resource}", b.list)
	mux.HandleFunc("DELETE /{resource}/{id}", b.remove)

	b.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b.mu.Lock()
		b.hits[r.Method+" "+r.URL.Path]++
		b.mu.Unlock()
		mux.ServeHTTP(w, r)
	}))
	t.Cleanup(b.Close)

	return b
}

// AddAccount registers acct under username.
func (b *Backend) AddAccount(username string, acct Account) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if acct.User.Username == "" {
		acct.User.Username = username
	}
	b.accounts[username] = &acct
}

// SetTeamRules replaces the team-rule permissions of username for team.
func (b *Backend) SetTeamRules(username string, team int, rules map[string]bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	acct := b.accounts[username]
	if acct.TeamRules == nil {
		acct.TeamRules = map[int]map[string]bool{}
	}
	acct.TeamRules[team] = rules
}

// SetRecords sets the list returned by GET /{resource}.
func (b *Backend) SetRecords(resource string, records ...any) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.records[resource] = records
}

// Hits returns how often "METHOD /path" was requested.
func (b *Backend) Hits(route string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.hits[route]
}

// HoldProfile makes GET /User/me wait until the returned release func is called.
func (b *Backend) HoldProfile() (release func()) {
	hold := make(chan struct{})
	b.mu.Lock()
	b.hold = hold
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			b.hold = nil
			b.mu.Unlock()
			close(hold)
		})
	}
}

// Accepted returns the accepted invite ids.
func (b *Backend) Accepted() []int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]int(nil), b.accepted...)
}

func (b *Backend) login(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"message": "malformed request"})
		return
	}

	b.mu.Lock()
	acct, ok := b.accounts[req.Username]
	b.mu.Unlock()

	if !ok || acct.Password != req.Password {
		writeJSON(w, http.StatusUnauthorized, map[string]any{"message": "Invalid credentials"})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"token": acct.Token})
}

func (b *Backend) me(w http.ResponseWriter, r *http.Request) {
	acct, ok := b.authorize(w, r)
	if !ok {
		return
	}

	b.mu.Lock()
	status := b.ProfileStatus
	hold := b.hold
	b.mu.Unlock()

	if hold != nil {
		select {
		case <-hold:
		case <-r.Context().Done():
			return
		}
	}

	if status != 0 {
		w.WriteHeader(status)
		return
	}

	writeJSON(w, http.StatusOK, acct.User)
}

func (b *Backend) render(w http.ResponseWriter, r *http.Request) {
	acct, ok := b.authorize(w, r)
	if !ok {
		return
	}

	b.mu.Lock()
	status := b.RenderStatus
	b.mu.Unlock()
	if status != 0 {
		w.WriteHeader(status)
		return
	}

	teamRules := map[string]bool{}
	if raw := r.URL.Query().Get("selectedTeam"); raw != "" {
		id, err := strconv.Atoi(raw)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]any{"message": "invalid team"})
			return
		}
		b.mu.Lock()
		if rules, ok := acct.TeamRules[id]; ok {
			teamRules = rules
		}
		b.mu.Unlock()
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"data": map[string]any{
			"rolePermissions":     acct.Role,
			"teamRulePermissions": teamRules,
		},
	})
}

func (b *Backend) myTeams(w http.ResponseWriter, r *http.Request) {
	acct, ok := b.authorize(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"$values": acct.Teams})
}

func (b *Backend) accept(w http.ResponseWriter, r *http.Request) {
	if _, ok := b.authorize(w, r); !ok {
		return
	}

	id, err := strconv.Atoi(r.PathValue("id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"success": false, "message": "invalid invite"})
		return
	}

	b.mu.Lock()
	b.accepted = append(b.accepted, id)
	b.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": "invite accepted"})
}

func (b *Backend) list(w http.ResponseWriter, r *http.Request) {
	if _, ok := b.authorize(w, r); !ok {
		return
	}

	b.mu.Lock()
	records, ok := b.records[r.PathValue("resource")]
	b.mu.Unlock()
	if !ok {
		records = []any{}
	}

	writeJSON(w, http.StatusOK, records)
}

func (b *Backend) remove(w http.ResponseWriter, r *http.Request) {
	if _, ok := b.authorize(w, r); !ok {
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (b *Backend) authorize(w http.ResponseWriter, r *http.Request) (*Account, bool) {
	token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	if ok {
		b.mu.Lock()
		defer b.mu.Unlock()
		for _, acct := range b.accounts {
			if acct.Token == token {
				return acct, true
			}
		}
	}

	writeJSON(w, http.StatusUnauthorized, map[string]any{"message": "Unauthorized"})
	return nil, false
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
