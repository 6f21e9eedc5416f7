package console

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wolfeidau/smartschedule/internal/app"
	"github.com/wolfeidau/smartschedule/internal/fakebackend"
	"github.com/wolfeidau/smartschedule/internal/models"
)

const consoleOrigin = "http://localhost:3000"

type harness struct {
	backend *fakebackend.Backend
	app     *app.App
	srv     *httptest.Server
	http    *http.Client
}

type response struct {
	status   int
	location string
	header   http.Header
	body     string
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	b := fakebackend.New(t)
	b.AddAccount("alice", fakebackend.Account{
		Password: "secret",
		Token:    "alice-token",
		User:     models.User{ID: 1, FirstName: "Alice"},
		Teams: []models.Team{
			{ID: 7, Name: "Ops"},
			{ID: 9, Name: "Sales"},
		},
		Role: map[string]bool{"ViewOwnUser": true},
		TeamRules: map[int]map[string]bool{
			7: {"ViewSchedules": true, "DeleteSchedules": true},
			9: {"ViewAssignments": true},
		},
	})
	b.AddAccount("root", fakebackend.Account{
		Password: "hunter2",
		Token:    "root-token",
		Teams:    []models.Team{{ID: 7, Name: "Ops"}},
		Role:     map[string]bool{"ManageSystem": true},
	})
	b.SetRecords("Schedule", map[string]any{"id": 3, "teamId": 7, "name": "Week 12"})

	a, err := app.New(app.Config{ServerURL: b.URL, Ephemeral: true, MaxTries: 1, Timeout: 5 * time.Second})
	require.NoError(t, err)
	t.Cleanup(a.Close)

	s, err := New(a, Config{CORSOrigins: []string{consoleOrigin}})
	require.NoError(t, err)

	srv := httptest.NewServer(s.Handler())
	t.Cleanup(srv.Close)

	return &harness{
		backend: b,
		app:     a,
		srv:     srv,
		http: &http.Client{
			CheckRedirect: func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse },
		},
	}
}

func (h *harness) do(t *testing.T, req *http.Request) response {
	t.Helper()

	resp, err := h.http.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	return response{
		status:   resp.StatusCode,
		location: resp.Header.Get("Location"),
		header:   resp.Header,
		body:     string(body),
	}
}

func (h *harness) get(t *testing.T, path string) response {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, h.srv.URL+path, nil)
	require.NoError(t, err)
	return h.do(t, req)
}

func (h *harness) post(t *testing.T, path string, form url.Values) response {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, h.srv.URL+path, strings.NewReader(form.Encode()))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return h.do(t, req)
}

func (h *harness) login(t *testing.T, username, password string) {
	t.Helper()
	resp := h.post(t, "/login", url.Values{"username": {username}, "password": {password}})
	require.Equal(t, http.StatusFound, resp.status, resp.body)
}

func (h *harness) selectTeam(t *testing.T, id string) {
	t.Helper()
	resp := h.post(t, "/teams/select", url.Values{"team_id": {id}})
	require.Equal(t, http.StatusFound, resp.status, resp.body)
}

func (h *harness) waitPermissions(t *testing.T) permissionsResponse {
	t.Helper()
	resp := h.get(t, "/api/permissions?wait=true")
	require.Equal(t, http.StatusOK, resp.status)

	var perms permissionsResponse
	require.NoError(t, json.Unmarshal([]byte(resp.body), &perms))
	return perms
}

func TestConsole_RouteGuard(t *testing.T) {
	h := newHarness(t)

	tests := []struct {
		name     string
		path     string
		status   int
		location string
	}{
		{name: "root", path: "/", status: http.StatusFound, location: "/dashboard"},
		{name: "anonymous dashboard", path: "/dashboard", status: http.StatusFound, location: "/login?next=%2Fdashboard"},
		{name: "keeps query", path: "/schedules?week=2", status: http.StatusFound, location: "/login?next=%2Fschedules%3Fweek%3D2"},
		{name: "team picker needs auth", path: "/teams/select", status: http.StatusFound, location: "/login?next=%2Fteams%2Fselect"},
		{name: "unknown", path: "/nope", status: http.StatusNotFound},
		{name: "login", path: "/login", status: http.StatusOK},
		{name: "unauthorized", path: "/unauthorized", status: http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := h.get(t, tt.path)
			assert.Equal(t, tt.status, resp.status)
			assert.Equal(t, tt.location, resp.location)
		})
	}
}

func TestConsole_LoginPageCarriesNext(t *testing.T) {
	h := newHarness(t)

	resp := h.get(t, "/login?next=/schedules")
	require.Equal(t, http.StatusOK, resp.status)
	assert.Contains(t, resp.body, `name="next" value="/schedules"`)
	assert.Equal(t, "text/html; charset=utf-8", resp.header.Get("Content-Type"))
	assert.NotEmpty(t, resp.header.Get("X-Request-ID"))
}

func TestConsole_LoginFailure(t *testing.T) {
	h := newHarness(t)

	resp := h.post(t, "/login", url.Values{"username": {"alice"}, "password": {"wrong"}, "next": {"/schedules"}})
	assert.Equal(t, http.StatusUnauthorized, resp.status)
	assert.Contains(t, resp.body, "Invalid credentials")
	assert.Contains(t, resp.body, `value="/schedules"`)
	assert.False(t, h.app.IsAuthenticated())
}

func TestConsole_LoginRedirects(t *testing.T) {
	tests := []struct {
		next     string
		location string
	}{
		{next: "/schedules", location: "/schedules"},
		{next: "", location: "/dashboard"},
		{next: "//evil.example/phish", location: "/dashboard"},
		{next: "https://evil.example", location: "/dashboard"},
		{next: "/login", location: "/dashboard"},
	}

	for _, tt := range tests {
		t.Run(tt.next, func(t *testing.T) {
			h := newHarness(t)
			resp := h.post(t, "/login", url.Values{"username": {"alice"}, "password": {"secret"}, "next": {tt.next}})
			assert.Equal(t, http.StatusFound, resp.status)
			assert.Equal(t, tt.location, resp.location)
		})
	}
}

func TestConsole_LoginSelectTeamAndBrowse(t *testing.T) {
	h := newHarness(t)
	h.login(t, "alice", "secret")

	resp := h.get(t, "/schedules")
	assert.Equal(t, http.StatusFound, resp.status)
	assert.Equal(t, "/teams/select", resp.location)

	resp = h.get(t, "/teams/select")
	require.Equal(t, http.StatusOK, resp.status)
	assert.Contains(t, resp.body, "Ops")
	assert.Contains(t, resp.body, "Sales")

	resp = h.post(t, "/teams/select", url.Values{"team_id": {"7"}, "next": {"/schedules"}})
	assert.Equal(t, http.StatusFound, resp.status)
	assert.Equal(t, "/schedules", resp.location)

	perms := h.waitPermissions(t)
	assert.Equal(t, "team:7", perms.Key)
	assert.Contains(t, perms.Granted, "ViewSchedules")
	assert.NotContains(t, perms.Granted, "ViewAssignments")

	resp = h.get(t, "/schedules")
	require.Equal(t, http.StatusOK, resp.status)
	assert.Contains(t, resp.body, "Week 12")
	assert.Contains(t, resp.body, `action="/schedules/3/delete"`)
	assert.NotContains(t, resp.body, "New schedule")

	resp = h.get(t, "/assignments")
	require.Equal(t, http.StatusOK, resp.status)
	assert.Contains(t, resp.body, "You do not have access to assignments")

	resp = h.get(t, "/admin")
	assert.Equal(t, http.StatusFound, resp.status)
	assert.Equal(t, "/unauthorized", resp.location)

	resp = h.get(t, "/dashboard")
	require.Equal(t, http.StatusOK, resp.status)
	assert.Contains(t, resp.body, `href="/schedules"`)
	assert.NotContains(t, resp.body, `href="/admin"`)
}

func TestConsole_TeamSwitchReloadsSections(t *testing.T) {
	h := newHarness(t)
	h.login(t, "alice", "secret")
	h.selectTeam(t, "7")
	h.waitPermissions(t)

	h.selectTeam(t, "9")
	perms := h.waitPermissions(t)
	assert.Equal(t, "team:9", perms.Key)

	resp := h.get(t, "/schedules")
	require.Equal(t, http.StatusOK, resp.status)
	assert.NotContains(t, resp.body, "Week 12")
	assert.Contains(t, resp.body, "You do not have access to schedules")
}

func TestConsole_SelectUnknownTeam(t *testing.T) {
	h := newHarness(t)
	h.login(t, "alice", "secret")

	resp := h.post(t, "/teams/select", url.Values{"team_id": {"404"}})
	assert.Equal(t, http.StatusBadRequest, resp.status)
	assert.Contains(t, resp.body, "could not be selected")
	assert.Nil(t, h.app.SelectedTeam())
}

func TestConsole_AdminPendingThenRendered(t *testing.T) {
	h := newHarness(t)
	h.login(t, "root", "hunter2")
	h.selectTeam(t, "7")

	resp := h.get(t, "/admin")
	assert.Equal(t, http.StatusAccepted, resp.status)
	assert.Equal(t, "1", resp.header.Get("Retry-After"))
	assert.Contains(t, resp.body, "Loading permissions")

	require.Eventually(t, func() bool {
		resp := h.get(t, "/admin")
		return resp.status == http.StatusOK && strings.Contains(resp.body, "ManageSystem")
	}, 2*time.Second, 10*time.Millisecond)
}

func TestConsole_DeleteRecord(t *testing.T) {
	h := newHarness(t)
	h.login(t, "alice", "secret")
	h.selectTeam(t, "7")
	h.waitPermissions(t)

	resp := h.post(t, "/schedules/3/delete", nil)
	assert.Equal(t, http.StatusFound, resp.status)
	assert.Equal(t, "/schedules", resp.location)
	assert.Equal(t, 1, h.backend.Hits("DELETE /Schedule/3"))

	h.selectTeam(t, "9")
	h.waitPermissions(t)

	resp = h.post(t, "/schedules/3/delete", nil)
	assert.Equal(t, http.StatusForbidden, resp.status)
	assert.Equal(t, 1, h.backend.Hits("DELETE /Schedule/3"))
}

func TestConsole_DeleteRequiresSession(t *testing.T) {
	h := newHarness(t)

	resp := h.post(t, "/schedules/3/delete", nil)
	assert.Equal(t, http.StatusFound, resp.status)
	assert.Equal(t, "/login", resp.location)
	assert.Equal(t, 0, h.backend.Hits("DELETE /Schedule/3"))
}

func TestConsole_AcceptInvite(t *testing.T) {
	h := newHarness(t)
	h.backend.SetRecords("Invite", map[string]any{"id": 11, "teamId": 9, "teamName": "Sales"})

	resp := h.post(t, "/invites/11/accept", nil)
	assert.Equal(t, http.StatusFound, resp.status)
	assert.Equal(t, "/login", resp.location)

	h.login(t, "alice", "secret")
	h.selectTeam(t, "7")

	resp = h.get(t, "/invites")
	require.Equal(t, http.StatusOK, resp.status)
	assert.Contains(t, resp.body, `action="/invites/11/accept"`)

	resp = h.post(t, "/invites/11/accept", nil)
	assert.Equal(t, http.StatusFound, resp.status)
	assert.Equal(t, "/teams/select", resp.location)
	assert.Equal(t, []int{11}, h.backend.Accepted())
}

func TestConsole_Logout(t *testing.T) {
	h := newHarness(t)
	h.login(t, "alice", "secret")
	h.selectTeam(t, "7")

	resp := h.post(t, "/logout", nil)
	assert.Equal(t, http.StatusFound, resp.status)
	assert.Equal(t, "/login", resp.location)
	assert.False(t, h.app.IsAuthenticated())

	resp = h.get(t, "/dashboard")
	assert.Equal(t, "/login?next=%2Fdashboard", resp.location)
}

func TestConsole_CrossOriginFormRejected(t *testing.T) {
	h := newHarness(t)

	req, err := http.NewRequest(http.MethodPost, h.srv.URL+"/login",
		strings.NewReader(url.Values{"username": {"alice"}, "password": {"secret"}}.Encode()))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Sec-Fetch-Site", "cross-site")
	req.Header.Set("Origin", "https://evil.example")

	resp := h.do(t, req)
	assert.Equal(t, http.StatusForbidden, resp.status)
	assert.Equal(t, 0, h.backend.Hits("POST /Auth/login"))
	assert.False(t, h.app.IsAuthenticated())
}

func TestConsole_APISession(t *testing.T) {
	h := newHarness(t)

	resp := h.get(t, "/api/session")
	require.Equal(t, http.StatusOK, resp.status)
	assert.JSONEq(t, `{"authenticated":false}`, resp.body)

	h.login(t, "alice", "secret")
	h.selectTeam(t, "9")

	resp = h.get(t, "/api/session")
	var got sessionResponse
	require.NoError(t, json.Unmarshal([]byte(resp.body), &got))
	assert.True(t, got.Authenticated)
	require.NotNil(t, got.Team)
	assert.Equal(t, 9, got.Team.ID)
	require.NotNil(t, got.User)
	assert.Equal(t, "Alice", got.User.FirstName)
	assert.Nil(t, got.ExpiresAt)
}

func TestConsole_APIPermissionsAnonymous(t *testing.T) {
	h := newHarness(t)

	perms := h.waitPermissions(t)
	assert.Equal(t, "no-team", perms.Key)
	assert.Empty(t, perms.Granted)
	assert.Equal(t, "not authenticated", perms.Error)
}

func TestConsole_APIPermissionsFetchError(t *testing.T) {
	h := newHarness(t)
	h.backend.RenderStatus = http.StatusBadGateway
	h.login(t, "alice", "secret")
	h.selectTeam(t, "7")

	perms := h.waitPermissions(t)
	assert.Empty(t, perms.Granted)
	assert.NotEmpty(t, perms.Error)

	resp := h.get(t, "/schedules")
	require.Equal(t, http.StatusOK, resp.status)
	assert.NotContains(t, resp.body, "Week 12")
}

func TestConsole_APICORS(t *testing.T) {
	h := newHarness(t)

	req, err := http.NewRequest(http.MethodOptions, h.srv.URL+"/api/session", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", consoleOrigin)
	req.Header.Set("Access-Control-Request-Method", http.MethodGet)

	resp := h.do(t, req)
	assert.Equal(t, consoleOrigin, resp.header.Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", resp.header.Get("Access-Control-Allow-Credentials"))

	req, err = http.NewRequest(http.MethodOptions, h.srv.URL+"/api/session", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "https://evil.example")
	req.Header.Set("Access-Control-Request-Method", http.MethodGet)

	resp = h.do(t, req)
	assert.Empty(t, resp.header.Get("Access-Control-Allow-Origin"))
}

func TestConsole_Static(t *testing.T) {
	h := newHarness(t)

	resp := h.get(t, "/static/console.css")
	require.Equal(t, http.StatusOK, resp.status)
	assert.Contains(t, resp.body, "font-family")
}

func TestSafeNext(t *testing.T) {
	assert.Equal(t, "/schedules?week=2", safeNext("/schedules?week=2"))
	assert.Equal(t, "/dashboard", safeNext("/\\evil.example"))
	assert.Equal(t, "/dashboard", safeNext("schedules"))
}
