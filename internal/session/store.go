package session

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/smartschedule/internal/models"
	"golang.org/x/oauth2"
)

// Authenticator exchanges credentials for an opaque token.
// Failures should be returned as *AuthError.
type Authenticator interface {
	Authenticate(ctx context.Context, username, password string) (string, error)
}

// ProfileFetcher loads the profile of the user owning token.
type ProfileFetcher interface {
	FetchProfile(ctx context.Context, token string) (*models.User, error)
}

// State is a point in time copy of the session.
type State struct {
	Token string
	User  *models.User
	Team  *models.Team
}

// IsAuthenticated reports whether a token is present.
func (s State) IsAuthenticated() bool {
	return s.Token != ""
}

// HasTeam reports whether a team is selected.
func (s State) HasTeam() bool {
	return s.Team != nil
}

// Store owns the authentication state and the selected team, and is the only
// writer of the durable session keys.
type Store struct {
	storage  Storage
	auth     Authenticator
	profiles ProfileFetcher

	mu            sync.RWMutex
	token         string
	user          *models.User
	team          *models.Team
	onTokenChange func()
}

// NewStore creates a session store and hydrates it from storage before returning,
// so the first read after a restart already sees the persisted session.
func NewStore(storage Storage, auth Authenticator, profiles ProfileFetcher) *Store {
	s := &Store{
		storage:  storage,
		auth:     auth,
		profiles: profiles,
	}

	s.hydrate()

	return s
}

// OnTokenChange registers fn to run when Login replaces the token with a
// different one. It runs after the new token is persisted and before the
// profile is fetched.
func (s *Store) OnTokenChange(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onTokenChange = fn
}

func (s *Store) hydrate() {
	token, _, err := s.storage.Get(KeyAuthToken)
	if err != nil {
		log.Error().Err(err).Msg("failed to read persisted token")
	}
	s.token = token

	if err := s.loadJSON(KeySelectedTeam, &s.team); err != nil {
		log.Warn().Err(err).Msg("discarding persisted team selection")
		s.team = nil
	}

	if err := s.loadJSON(KeyUser, &s.user); err != nil {
		log.Warn().Err(err).Msg("discarding persisted user")
		s.user = nil
	}

	if s.token != "" {
		if claims, err := ParseClaims(s.token); err == nil && claims.Expired() {
			log.Debug().Time("expires_at", claims.ExpiresAt).Msg("persisted token has expired")
		}
	}

	log.Debug().
		Bool("authenticated", s.token != "").
		Bool("team_selected", s.team != nil).
		Bool("user_cached", s.user != nil).
		Msg("session hydrated")
}

// Login exchanges credentials for a token. On success the previous team selection
// and cached user are cleared and the token is persisted before the profile is
// fetched with it. A failed profile fetch returns *ProfileFetchError and leaves the
// session authenticated.
func (s *Store) Login(ctx context.Context, username, password string) error {
	token, err := s.auth.Authenticate(ctx, username, password)
	if err != nil {
		return err
	}
	if token == "" {
		return &AuthError{Message: "server returned an empty token"}
	}

	s.mu.Lock()
	changed := s.token != token
	s.team = nil
	s.user = nil
	s.deleteKeys(KeySelectedTeam, KeyUser)
	s.token = token
	if err := s.storage.Set(KeyAuthToken, token); err != nil {
		log.Error().Err(err).Msg("failed to persist token")
	}
	hook := s.onTokenChange
	s.mu.Unlock()

	log.Info().Str("username", username).Msg("logged in")

	if changed && hook != nil {
		hook()
	}

	return s.hydrateProfile(ctx, token)
}

// RefreshProfile re-fetches the profile for the current token.
func (s *Store) RefreshProfile(ctx context.Context) error {
	token := s.Token()
	if token == "" {
		return ErrNotAuthenticated
	}
	return s.hydrateProfile(ctx, token)
}

func (s *Store) hydrateProfile(ctx context.Context, token string) error {
	user, err := s.profiles.FetchProfile(ctx, token)
	if err != nil {
		log.Warn().Err(err).Msg("profile fetch failed, session stays authenticated")
		return &ProfileFetchError{Err: err}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// a logout or another login won the race
	if s.token != token {
		log.Debug().Msg("dropping profile for superseded token")
		return nil
	}

	s.user = user
	s.saveJSON(KeyUser, user)

	return nil
}

// Logout clears the token, user and team selection from memory and storage.
// It is safe to call repeatedly.
func (s *Store) Logout() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.token = ""
	s.user = nil
	s.team = nil
	s.deleteKeys(KeyAuthToken, KeySelectedTeam, KeyUser)

	log.Info().Msg("logged out")
}

// SelectTeam sets and persists the active team. Membership is enforced by the backend.
func (s *Store) SelectTeam(team models.Team) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.team = &team
	s.saveJSON(KeySelectedTeam, team)

	log.Debug().Int("team_id", team.ID).Str("team", team.Name).Msg("team selected")
}

// ClearTeamSelection removes the active team without touching authentication.
func (s *Store) ClearTeamSelection() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.team = nil
	s.deleteKeys(KeySelectedTeam)

	log.Debug().Msg("team selection cleared")
}

func (s *Store) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token
}

func (s *Store) IsAuthenticated() bool {
	return s.Token() != ""
}

// User returns a copy of the cached profile, nil if not loaded.
func (s *Store) User() *models.User {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.user == nil {
		return nil
	}
	u := *s.user
	return &u
}

// SelectedTeam returns a copy of the active team, nil if none is selected.
func (s *Store) SelectedTeam() *models.Team {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.team == nil {
		return nil
	}
	t := *s.team
	return &t
}

// Snapshot returns a consistent copy of the whole session.
func (s *Store) Snapshot() State {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st := State{Token: s.token}
	if s.user != nil {
		u := *s.user
		st.User = &u
	}
	if s.team != nil {
		t := *s.team
		st.Team = &t
	}
	return st
}

// Claims decodes the current token. The signature is not verified.
func (s *Store) Claims() (*Claims, error) {
	token := s.Token()
	if token == "" {
		return nil, ErrNotAuthenticated
	}
	return ParseClaims(token)
}

// TokenSource returns an oauth2.TokenSource reading the current token on every
// call, so authenticated requests always carry the latest bearer token.
func (s *Store) TokenSource() oauth2.TokenSource {
	return tokenSource{store: s}
}

type tokenSource struct {
	store *Store
}

func (ts tokenSource) Token() (*oauth2.Token, error) {
	token := ts.store.Token()
	if token == "" {
		return nil, ErrNotAuthenticated
	}
	return &oauth2.Token{AccessToken: token, TokenType: "Bearer"}, nil
}

func (s *Store) loadJSON(key string, v any) error {
	raw, ok, err := s.storage.Get(key)
	if err != nil {
		return err
	}
	if !ok || raw == "" {
		return nil
	}
	if err := json.Unmarshal([]byte(raw), v); err != nil {
		return fmt.Errorf("failed to decode %s: %w", key, err)
	}
	return nil
}

// saveJSON must be called with mu held.
func (s *Store) saveJSON(key string, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Str("key", key).Msg("failed to encode session value")
		return
	}
	if err := s.storage.Set(key, string(data)); err != nil {
		log.Error().Err(err).Str("key", key).Msg("failed to persist session value")
	}
}

// deleteKeys must be called with mu held.
func (s *Store) deleteKeys(keys ...string) {
	if err := s.storage.Delete(keys...); err != nil {
		log.Error().Err(err).Strs("keys", keys).Msg("failed to clear session values")
	}
}
