package app

import (
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wolfeidau/smartschedule/internal/fakebackend"
	"github.com/wolfeidau/smartschedule/internal/gate"
	"github.com/wolfeidau/smartschedule/internal/models"
	"github.com/wolfeidau/smartschedule/internal/permissions"
	"github.com/wolfeidau/smartschedule/internal/session"
)

var (
	teamOps   = models.Team{ID: 7, Name: "Ops"}
	teamSales = models.Team{ID: 9, Name: "Sales"}
)

func newBackend(t *testing.T) *fakebackend.Backend {
	t.Helper()

	b := fakebackend.New(t)
	b.AddAccount("alice", fakebackend.Account{
		Password: "secret",
		Token:    "alice-token",
		User:     models.User{ID: 1, FirstName: "Alice", LastName: "Smith"},
		Teams:    []models.Team{teamOps, teamSales},
		Role:     map[string]bool{"ViewTeams": true, "ViewOwnUser": true},
		TeamRules: map[int]map[string]bool{
			teamOps.ID:   {"ViewSchedules": true, "ViewAssignments": false},
			teamSales.ID: {"ViewSchedules": false, "ViewAssignments": true},
		},
	})
	b.AddAccount("root", fakebackend.Account{
		Password: "hunter2",
		Token:    "root-token",
		User:     models.User{ID: 2, Username: "root"},
		Teams:    []models.Team{teamOps},
		Role:     map[string]bool{"ManageSystem": true},
	})

	return b
}

func newApp(t *testing.T, serverURL, stateDir string) *App {
	t.Helper()

	a, err := New(Config{
		ServerURL: serverURL,
		StateDir:  stateDir,
		Timeout:   5 * time.Second,
		MaxTries:  1,
	})
	require.NoError(t, err)
	t.Cleanup(a.Close)

	return a
}

func TestApp_LoginSelectReload(t *testing.T) {
	b := newBackend(t)
	dir := t.TempDir()

	a := newApp(t, b.URL, dir)
	require.NoError(t, a.Login(t.Context(), "alice", "secret"))
	a.SelectTeam(teamOps)

	st := a.State(t.Context())
	require.NoError(t, st.Err)
	assert.Equal(t, permissions.TeamKey(teamOps.ID), st.Key)
	assert.True(t, gate.HasPermission(st, permissions.ViewSchedules))

	// a restarted process sees the persisted session
	reloaded := newApp(t, b.URL, dir)
	assert.True(t, reloaded.IsAuthenticated())
	require.NotNil(t, reloaded.SelectedTeam())
	assert.Equal(t, teamOps.ID, reloaded.SelectedTeam().ID)
	assert.Equal(t, "Alice Smith", reloaded.Session.User().DisplayName())

	st = reloaded.State(t.Context())
	require.NoError(t, st.Err)
	assert.True(t, gate.HasPermission(st, permissions.ViewSchedules))
	assert.False(t, gate.HasPermission(st, permissions.ViewAssignments))
}

func TestApp_TeamSwitchReloadsPermissions(t *testing.T) {
	b := newBackend(t)
	a := newApp(t, b.URL, t.TempDir())

	require.NoError(t, a.Login(t.Context(), "alice", "secret"))

	a.SelectTeam(teamOps)
	st := a.State(t.Context())
	assert.True(t, gate.HasPermission(st, permissions.ViewSchedules))

	a.SelectTeam(teamSales)
	st = a.State(t.Context())
	assert.Equal(t, permissions.TeamKey(teamSales.ID), st.Key)
	assert.False(t, gate.HasPermission(st, permissions.ViewSchedules))
	assert.True(t, gate.HasPermission(st, permissions.ViewAssignments))
}

func TestApp_LoginFailure(t *testing.T) {
	b := newBackend(t)
	a := newApp(t, b.URL, t.TempDir())

	err := a.Login(t.Context(), "alice", "wrong")

	var authErr *session.AuthError
	require.ErrorAs(t, err, &authErr)
	assert.Equal(t, "Invalid credentials", authErr.Message)
	assert.False(t, a.IsAuthenticated())
}

func TestApp_LoginProfileFailureStaysAuthenticated(t *testing.T) {
	b := newBackend(t)
	b.ProfileStatus = http.StatusInternalServerError
	a := newApp(t, b.URL, t.TempDir())

	err := a.Login(t.Context(), "alice", "secret")

	var profileErr *session.ProfileFetchError
	require.ErrorAs(t, err, &profileErr)
	assert.True(t, a.IsAuthenticated())
	assert.Nil(t, a.Session.User())
}

func TestApp_LoginResetsPermissionCache(t *testing.T) {
	b := newBackend(t)
	a := newApp(t, b.URL, t.TempDir())

	require.NoError(t, a.Login(t.Context(), "alice", "secret"))
	_, err := a.CurrentPermissions(t.Context())
	require.NoError(t, err)
	assert.Equal(t, 1, a.Cache.Len())

	require.NoError(t, a.Login(t.Context(), "root", "hunter2"))
	assert.Equal(t, 0, a.Cache.Len())

	snap, err := a.CurrentPermissions(t.Context())
	require.NoError(t, err)
	assert.True(t, snap.Has(permissions.ManageSystem))
	assert.False(t, snap.Has(permissions.ViewTeams))
}

func TestApp_LoginHidesPreviousIdentityWhileProfileLoads(t *testing.T) {
	b := newBackend(t)
	a := newApp(t, b.URL, t.TempDir())

	require.NoError(t, a.Login(t.Context(), "root", "hunter2"))
	snap, err := a.CurrentPermissions(t.Context())
	require.NoError(t, err)
	require.True(t, snap.Has(permissions.ManageSystem))

	release := b.HoldProfile()
	defer release()

	done := make(chan error, 1)
	go func() { done <- a.Login(t.Context(), "alice", "secret") }()

	require.Eventually(t, func() bool {
		return b.Hits("GET /User/me") == 2
	}, 2*time.Second, 5*time.Millisecond)

	assert.Equal(t, "alice-token", a.Session.Token())
	assert.Equal(t, 0, a.Cache.Len())
	assert.NotEqual(t, gate.Allow, gate.Check(a.Query(), permissions.ManageSystem))

	release()
	require.NoError(t, <-done)

	snap, err = a.CurrentPermissions(t.Context())
	require.NoError(t, err)
	assert.False(t, snap.Has(permissions.ManageSystem))
	assert.True(t, snap.Has(permissions.ViewTeams))
}

func TestApp_Logout(t *testing.T) {
	b := newBackend(t)
	dir := t.TempDir()
	a := newApp(t, b.URL, dir)

	require.NoError(t, a.Login(t.Context(), "alice", "secret"))
	a.SelectTeam(teamOps)
	_ = a.State(t.Context())

	a.Logout()
	a.Logout()

	assert.False(t, a.IsAuthenticated())
	assert.Nil(t, a.SelectedTeam())
	assert.Equal(t, 0, a.Cache.Len())

	reloaded := newApp(t, b.URL, dir)
	assert.False(t, reloaded.IsAuthenticated())
	assert.Nil(t, reloaded.SelectedTeam())
}

func TestApp_Anonymous(t *testing.T) {
	b := newBackend(t)
	a := newApp(t, b.URL, t.TempDir())

	st := a.Query()
	assert.ErrorIs(t, st.Err, session.ErrNotAuthenticated)
	assert.Equal(t, gate.Deny, gate.Check(st, permissions.ViewTeams))

	_, err := a.CurrentPermissions(t.Context())
	assert.ErrorIs(t, err, session.ErrNotAuthenticated)

	_, err = a.SelectTeamByID(t.Context(), teamOps.ID)
	assert.ErrorIs(t, err, session.ErrNotAuthenticated)

	assert.Equal(t, 0, b.Hits("GET /Render/render"))
}

func TestApp_Route(t *testing.T) {
	b := newBackend(t)
	a := newApp(t, b.URL, t.TempDir())

	assert.Equal(t, gate.RedirectLogin, a.Route("/dashboard").Decision)
	assert.Equal(t, gate.Render, a.Route("/login").Decision)
	assert.Equal(t, gate.NotFound, a.Route("/nope").Decision)

	require.NoError(t, a.Login(t.Context(), "alice", "secret"))
	assert.Equal(t, gate.RedirectTeamSelection, a.Route("/schedules").Decision)
	assert.Equal(t, gate.Render, a.Route("/teams/select").Decision)

	a.SelectTeam(teamOps)
	assert.Equal(t, gate.Render, a.Route("/schedules").Decision)

	_ = a.State(t.Context())
	assert.Equal(t, gate.RedirectUnauthorized, a.Route("/admin").Decision)
}

func TestApp_RoutePendingWhileLoading(t *testing.T) {
	b := newBackend(t)
	a := newApp(t, b.URL, t.TempDir())

	require.NoError(t, a.Login(t.Context(), "root", "hunter2"))
	a.SelectTeam(teamOps)

	// nothing has been fetched for this key yet
	assert.Equal(t, gate.Pending, a.Route("/admin").Decision)

	require.Eventually(t, func() bool {
		return a.Route("/admin").Decision == gate.Render
	}, 2*time.Second, 10*time.Millisecond)
}

func TestApp_SelectTeamByID(t *testing.T) {
	b := newBackend(t)
	a := newApp(t, b.URL, t.TempDir())
	require.NoError(t, a.Login(t.Context(), "alice", "secret"))

	team, err := a.SelectTeamByID(t.Context(), teamSales.ID)
	require.NoError(t, err)
	assert.Equal(t, "Sales", team.Name)
	assert.Equal(t, permissions.TeamKey(teamSales.ID), a.Key())

	_, err = a.SelectTeamByID(t.Context(), 404)
	require.Error(t, err)
	assert.Equal(t, teamSales.ID, a.SelectedTeam().ID)

	a.ClearTeamSelection()
	assert.Equal(t, permissions.NoTeam, a.Key())
}

func TestApp_PermissionErrorDeniesEverything(t *testing.T) {
	b := newBackend(t)
	b.RenderStatus = http.StatusBadGateway
	a := newApp(t, b.URL, t.TempDir())
	require.NoError(t, a.Login(t.Context(), "alice", "secret"))
	a.SelectTeam(teamOps)

	st := a.State(t.Context())
	require.Error(t, st.Err)

	var fetchErr *permissions.FetchError
	assert.True(t, errors.As(st.Err, &fetchErr))
	for _, p := range permissions.TeamRulePermissions {
		assert.Equal(t, gate.Deny, gate.Check(st, p), p.Name())
	}
}

func TestApp_Ephemeral(t *testing.T) {
	b := newBackend(t)

	a, err := New(Config{ServerURL: b.URL, Ephemeral: true})
	require.NoError(t, err)
	t.Cleanup(a.Close)

	require.NoError(t, a.Login(t.Context(), "alice", "secret"))
	assert.IsType(t, &session.MemoryStorage{}, a.Storage)

	other, err := New(Config{ServerURL: b.URL, Ephemeral: true})
	require.NoError(t, err)
	t.Cleanup(other.Close)
	assert.False(t, other.IsAuthenticated())
}

func TestApp_Records(t *testing.T) {
	b := newBackend(t)
	b.SetRecords("Schedule", map[string]any{"id": 3, "name": "Week 12"})
	a := newApp(t, b.URL, t.TempDir())

	_, err := a.Client.Schedules.List(t.Context())
	assert.ErrorIs(t, err, session.ErrNotAuthenticated)

	require.NoError(t, a.Login(t.Context(), "alice", "secret"))

	schedules, err := a.Client.Schedules.List(t.Context())
	require.NoError(t, err)
	require.Len(t, schedules, 1)
	assert.Equal(t, 3, schedules[0].ID)
}

func TestApp_DeleteTeam(t *testing.T) {
	b := newBackend(t)
	a := newApp(t, b.URL, t.TempDir())

	require.NoError(t, a.Login(t.Context(), "alice", "secret"))
	a.SelectTeam(teamOps)
	_, err := a.CurrentPermissions(t.Context())
	require.NoError(t, err)
	a.SelectTeam(teamSales)
	_, err = a.CurrentPermissions(t.Context())
	require.NoError(t, err)
	require.Equal(t, 2, a.Cache.Len())

	require.NoError(t, a.DeleteTeam(t.Context(), teamOps.ID))
	assert.Equal(t, 1, b.Hits("DELETE /Team/7"))
	assert.Equal(t, 1, a.Cache.Len())
	require.NotNil(t, a.SelectedTeam(), "deleting another team keeps the selection")

	require.NoError(t, a.DeleteTeam(t.Context(), teamSales.ID))
	assert.Equal(t, 0, a.Cache.Len())
	assert.Nil(t, a.SelectedTeam())
}
