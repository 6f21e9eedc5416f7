package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/smartschedule/internal/models"
	"github.com/wolfeidau/smartschedule/internal/session"
)

// UnreachableMessage is shown when the backend cannot be contacted during login.
const UnreachableMessage = "unable to reach the SmartSchedule server"

var (
	_ session.Authenticator  = (*Client)(nil)
	_ session.ProfileFetcher = (*Client)(nil)
)

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token       string `json:"token"`
	AccessToken string `json:"access_token"`
	Message     string `json:"message"`
}

func (r loginResponse) token() string {
	if r.Token != "" {
		return r.Token
	}
	return r.AccessToken
}

// Authenticate exchanges credentials via POST /Auth/login. It is never retried.
// Every failure is returned as *session.AuthError.
func (c *Client) Authenticate(ctx context.Context, username, password string) (string, error) {
	req, err := c.newRequest(ctx, http.MethodPost, "/Auth/login", nil, loginRequest{
		Username: username,
		Password: password,
	})
	if err != nil {
		return "", &session.AuthError{Message: "invalid login request", Err: err}
	}

	body, err := c.do(c.anon, req)
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) {
			msg := apiErr.Message
			if msg == "" {
				msg = fmt.Sprintf("login failed: %d %s", apiErr.StatusCode, http.StatusText(apiErr.StatusCode))
			}
			return "", &session.AuthError{Message: msg, StatusCode: apiErr.StatusCode, Err: err}
		}

		log.Debug().Err(err).Msg("login request failed")

		return "", &session.AuthError{Message: UnreachableMessage, Err: err}
	}

	token, err := parseLoginToken(body)
	if err != nil {
		return "", &session.AuthError{Message: err.Error(), StatusCode: http.StatusOK, Err: err}
	}

	return token, nil
}

// parseLoginToken accepts the token at the top level or inside the envelope,
// named token or access_token.
func parseLoginToken(body []byte) (string, error) {
	var bare string
	if err := json.Unmarshal(body, &bare); err == nil && bare != "" {
		return bare, nil
	}

	var top loginResponse
	if err := json.Unmarshal(body, &top); err != nil {
		return "", errors.New("malformed login response")
	}
	if t := top.token(); t != "" {
		return t, nil
	}

	data, err := unwrap(body)
	if err != nil {
		if errors.Is(err, errEnvelopeFailure) && top.Message != "" {
			return "", errors.New(top.Message)
		}
		return "", errors.New("malformed login response")
	}

	// data may be the bare token string
	var s string
	if err := json.Unmarshal(data, &s); err == nil && s != "" {
		return s, nil
	}

	var inner loginResponse
	if err := json.Unmarshal(data, &inner); err == nil {
		if t := inner.token(); t != "" {
			return t, nil
		}
	}

	if top.Message != "" {
		return "", errors.New(top.Message)
	}
	return "", errors.New("login response did not contain a token")
}

// FetchProfile loads the current user via GET /User/me using token rather
// than the configured token source, so it can run before the token is shared.
func (c *Client) FetchProfile(ctx context.Context, token string) (*models.User, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/User/me", nil, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)

	body, err := c.do(c.anon, req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch profile: %w", err)
	}

	var user models.User
	if err := decode(body, &user); err != nil {
		return nil, fmt.Errorf("failed to decode profile: %w", err)
	}

	return &user, nil
}
