package session

import (
	"errors"
	"fmt"
)

var (
	// ErrNotAuthenticated is returned when an operation needs a token and none is set.
	ErrNotAuthenticated = errors.New("not authenticated")
)

// AuthError is returned when the credential exchange fails. Message is
// suitable for display on a login form.
type AuthError struct {
	Message    string
	StatusCode int
	Err        error
}

func (e *AuthError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("login failed (%d): %s", e.StatusCode, e.Message)
	}
	return "login failed: " + e.Message
}

func (e *AuthError) Unwrap() error { return e.Err }

// ProfileFetchError is returned by Login when the credentials were accepted
// but the profile could not be loaded. The session stays authenticated.
type ProfileFetchError struct {
	Err error
}

func (e *ProfileFetchError) Error() string {
	return fmt.Sprintf("failed to fetch profile: %v", e.Err)
}

func (e *ProfileFetchError) Unwrap() error { return e.Err }
