package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/smartschedule/internal/client"
	"github.com/wolfeidau/smartschedule/internal/gate"
	"github.com/wolfeidau/smartschedule/internal/models"
	"github.com/wolfeidau/smartschedule/internal/permissions"
	"github.com/wolfeidau/smartschedule/internal/session"
	"golang.org/x/oauth2"
)

// ErrNoTeam is returned when an operation needs a selected team.
var ErrNoTeam = errors.New("no team selected")

// Config configures an App.
type Config struct {
	ServerURL string
	// StateDir holds session.json and the response cache, defaults to ~/.smartschedule.
	StateDir string
	// Ephemeral keeps all state in memory.
	Ephemeral bool
	Timeout   time.Duration
	MaxTries  uint

	// Storage overrides the session storage selected by StateDir and Ephemeral.
	Storage session.Storage
	// Transport overrides the innermost HTTP transport.
	Transport http.RoundTripper
	// CacheOptions are passed to the permission cache.
	CacheOptions []permissions.Option
}

// App is the session context shared by the CLI and the console. It owns the
// session store, the permission cache and the backend client, and is the
// only place they are wired together.
type App struct {
	Storage session.Storage
	Client  *client.Client
	Session *session.Store
	Cache   *permissions.Cache
}

var _ gate.View = (*App)(nil)

// New constructs the app and hydrates the session from storage.
func New(cfg Config) (*App, error) {
	storage := cfg.Storage
	cacheDir := ""

	if storage == nil {
		if cfg.Ephemeral {
			storage = session.NewMemoryStorage()
		} else {
			fs, err := session.NewFileStorage(cfg.StateDir)
			if err != nil {
				return nil, fmt.Errorf("failed to open session storage: %w", err)
			}
			storage = fs
			cacheDir = filepath.Join(filepath.Dir(fs.Path()), "cache")
		}
	}

	app := &App{Storage: storage}

	clientCfg := client.DefaultConfig()
	if cfg.ServerURL != "" {
		clientCfg.ServerURL = cfg.ServerURL
	}
	if cfg.Timeout > 0 {
		clientCfg.Timeout = cfg.Timeout
	}
	if cfg.MaxTries > 0 {
		clientCfg.MaxTries = cfg.MaxTries
	}
	clientCfg.CacheDir = cacheDir
	clientCfg.Transport = cfg.Transport
	// resolved lazily, the store is created after the client
	clientCfg.Tokens = lazyTokens{app: app}

	c, err := client.New(clientCfg)
	if err != nil {
		return nil, err
	}
	app.Client = c

	app.Session = session.NewStore(storage, c, c)
	cacheOpts := append([]permissions.Option{permissions.WithFetchTimeout(clientCfg.Timeout)}, cfg.CacheOptions...)
	app.Cache = permissions.New(c, cacheOpts...)
	app.Session.OnTokenChange(app.resetCaches)

	log.Debug().
		Str("server", c.BaseURL()).
		Bool("ephemeral", cfg.Ephemeral).
		Msg("app initialized")

	return app, nil
}

// Login authenticates. When the token changes every cached permission snapshot
// and record response is dropped before the profile is fetched. A
// *session.ProfileFetchError still leaves the session authenticated.
func (a *App) Login(ctx context.Context, username, password string) error {
	return a.Session.Login(ctx, username, password)
}

// Logout clears the session and every cache.
func (a *App) Logout() {
	a.Session.Logout()
	a.resetCaches()
}

func (a *App) resetCaches() {
	a.Cache.Reset()
	if err := a.Client.ResetCache(); err != nil {
		log.Warn().Err(err).Msg("failed to reset response cache")
	}
}

// SelectTeam makes team the active team. Permissions for it load on the next read.
func (a *App) SelectTeam(team models.Team) {
	a.Session.SelectTeam(team)
}

// SelectTeamByID selects one of the current user's teams.
func (a *App) SelectTeamByID(ctx context.Context, id int) (*models.Team, error) {
	if !a.Session.IsAuthenticated() {
		return nil, session.ErrNotAuthenticated
	}

	teams, err := a.Client.Teams.Mine(ctx)
	if err != nil {
		return nil, err
	}

	for _, t := range teams {
		if t.ID == id {
			a.SelectTeam(t)
			return &t, nil
		}
	}

	return nil, fmt.Errorf("team %d is not one of your teams", id)
}

// AcceptInvite accepts invite id. Team membership changes, so cached team
// lists and permission snapshots are dropped.
func (a *App) AcceptInvite(ctx context.Context, id int) error {
	if !a.Session.IsAuthenticated() {
		return session.ErrNotAuthenticated
	}
	if err := a.Client.Invites.Accept(ctx, id); err != nil {
		return err
	}
	a.resetCaches()
	return nil
}

// DeleteTeam deletes team id on the backend and forgets its permission
// snapshot. Deleting the selected team clears the selection.
func (a *App) DeleteTeam(ctx context.Context, id int) error {
	if err := a.Client.Teams.Delete(ctx, id); err != nil {
		return err
	}

	a.Cache.Invalidate(permissions.TeamKey(id))
	if team := a.Session.SelectedTeam(); team != nil && team.ID == id {
		log.Info().Int("team_id", id).Msg("selected team deleted, clearing selection")
		a.Session.ClearTeamSelection()
	}
	return nil
}

// ClearTeamSelection removes the active team.
func (a *App) ClearTeamSelection() {
	a.Session.ClearTeamSelection()
}

// IsAuthenticated implements gate.View.
func (a *App) IsAuthenticated() bool {
	return a.Session.IsAuthenticated()
}

// SelectedTeam implements gate.View.
func (a *App) SelectedTeam() *models.Team {
	return a.Session.SelectedTeam()
}

// Key returns the permission key for the current selection.
func (a *App) Key() permissions.Key {
	return permissions.KeyFor(a.Session.SelectedTeam())
}

// Permissions implements gate.View with a non-blocking read for the current key.
// An anonymous session never has permissions.
func (a *App) Permissions() permissions.State {
	return a.Query()
}

// Query returns the permission state for the current selection without blocking.
func (a *App) Query() permissions.State {
	key := a.Key()
	if !a.Session.IsAuthenticated() {
		return permissions.State{Key: key, Err: session.ErrNotAuthenticated}
	}
	return a.Cache.Query(key)
}

// CurrentPermissions blocks until the snapshot for the current selection is available.
func (a *App) CurrentPermissions(ctx context.Context) (*permissions.Snapshot, error) {
	if !a.Session.IsAuthenticated() {
		return nil, session.ErrNotAuthenticated
	}
	return a.Cache.Get(ctx, a.Key())
}

// State returns the current permission state, waiting for the first load.
func (a *App) State(ctx context.Context) permissions.State {
	key := a.Key()
	if _, err := a.CurrentPermissions(ctx); err != nil {
		return permissions.State{Key: key, Err: err}
	}
	return a.Cache.Query(key)
}

// Watch subscribes to background refreshes of the current selection.
func (a *App) Watch() *permissions.Subscription {
	return a.Cache.Subscribe(a.Key())
}

// Route applies the route and permission guards to path.
func (a *App) Route(path string) gate.Navigation {
	return gate.Navigate(a, path)
}

// Close stops background refreshes.
func (a *App) Close() {
	a.Cache.Close()
}

type lazyTokens struct {
	app *App
}

func (l lazyTokens) Token() (*oauth2.Token, error) {
	if l.app.Session == nil {
		return nil, session.ErrNotAuthenticated
	}
	return l.app.Session.TokenSource().Token()
}
