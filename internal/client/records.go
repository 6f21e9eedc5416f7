package client

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/smartschedule/internal/models"
	"github.com/wolfeidau/smartschedule/internal/session"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Records is a generic CRUD collaborator for one backend resource.
type Records[T any] struct {
	c        *Client
	resource string
}

func newRecords[T any](c *Client, resource string) *Records[T] {
	return &Records[T]{c: c, resource: resource}
}

// Resource returns the backend resource name.
func (r *Records[T]) Resource() string { return r.resource }

func (r *Records[T]) path(parts ...string) string {
	return "/" + strings.Join(append([]string{r.resource}, parts...), "/")
}

// List returns every record. Reads are cached and retried.
func (r *Records[T]) List(ctx context.Context) ([]T, error) {
	body, err := r.c.read(ctx, r.path())
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", r.resource, err)
	}
	return decodeList[T](body)
}

// Get returns the record with id.
func (r *Records[T]) Get(ctx context.Context, id int) (*T, error) {
	body, err := r.c.read(ctx, r.path(strconv.Itoa(id)))
	if err != nil {
		return nil, fmt.Errorf("failed to get %s %d: %w", r.resource, id, err)
	}

	var v T
	if err := decode(body, &v); err != nil {
		return nil, err
	}
	return &v, nil
}

// Create posts v and returns the created record.
func (r *Records[T]) Create(ctx context.Context, v T) (*T, error) {
	return r.write(ctx, http.MethodPost, r.path(), v)
}

// Update replaces the record with id.
func (r *Records[T]) Update(ctx context.Context, id int, v T) (*T, error) {
	return r.write(ctx, http.MethodPut, r.path(strconv.Itoa(id)), v)
}

// Delete removes the record with id.
func (r *Records[T]) Delete(ctx context.Context, id int) error {
	req, err := r.c.newRequest(ctx, http.MethodDelete, r.path(strconv.Itoa(id)), nil, nil)
	if err != nil {
		return err
	}
	if _, err := r.c.do(r.c.cached, req); err != nil {
		return fmt.Errorf("failed to delete %s %d: %w", r.resource, id, err)
	}
	return nil
}

// write sends a mutation through the caching client so httpcache drops the
// cached entry for the same URL. Mutations are never retried.
func (r *Records[T]) write(ctx context.Context, method, path string, v T) (*T, error) {
	req, err := r.c.newRequest(ctx, method, path, nil, v)
	if err != nil {
		return nil, err
	}

	body, err := r.c.do(r.c.cached, req)
	if err != nil {
		return nil, fmt.Errorf("failed to save %s: %w", r.resource, err)
	}

	data, err := unwrap(body)
	if err != nil {
		return nil, err
	}
	if len(data) == 0 || string(data) == "null" {
		return &v, nil
	}

	var out T
	if err := decode(body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// TeamRecords adds team specific calls to Records.
type TeamRecords struct {
	*Records[models.Team]
}

// Mine lists the teams the current user belongs to via GET /Team/my-teams.
func (t *TeamRecords) Mine(ctx context.Context) ([]models.Team, error) {
	body, err := t.c.read(ctx, t.path("my-teams"))
	if err != nil {
		return nil, fmt.Errorf("failed to list teams: %w", err)
	}
	return decodeList[models.Team](body)
}

// InviteRecords adds invite specific calls to Records.
type InviteRecords struct {
	*Records[models.Invite]
}

// Accept accepts invite id via POST /Invite/{id}/accept.
func (i *InviteRecords) Accept(ctx context.Context, id int) error {
	req, err := i.c.newRequest(ctx, http.MethodPost, i.path(strconv.Itoa(id), "accept"), nil, struct{}{})
	if err != nil {
		return err
	}

	body, err := i.c.do(i.c.authed, req)
	if err != nil {
		return fmt.Errorf("failed to accept invite %d: %w", id, err)
	}
	if _, err := unwrap(body); err != nil {
		return fmt.Errorf("failed to accept invite %d: %w", id, err)
	}

	return nil
}

// ResourceNames returns the names accepted by List.
func (c *Client) ResourceNames() []string {
	names := make([]string, 0, len(c.listers()))
	for name := range c.listers() {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// List lists a resource by lower case name, for generic callers such as the CLI.
func (c *Client) List(ctx context.Context, name string) (any, error) {
	list, ok := c.listers()[strings.ToLower(name)]
	if !ok {
		return nil, fmt.Errorf("unknown resource %q, expected one of %s", name, strings.Join(c.ResourceNames(), ", "))
	}
	return list(ctx)
}

func (c *Client) listers() map[string]func(context.Context) (any, error) {
	return map[string]func(context.Context) (any, error){
		"teams":       func(ctx context.Context) (any, error) { return c.Teams.List(ctx) },
		"users":       func(ctx context.Context) (any, error) { return c.Users.List(ctx) },
		"assignments": func(ctx context.Context) (any, error) { return c.Assignments.List(ctx) },
		"schedules":   func(ctx context.Context) (any, error) { return c.Schedules.List(ctx) },
		"assigned":    func(ctx context.Context) (any, error) { return c.Assigned.List(ctx) },
		"invites":     func(ctx context.Context) (any, error) { return c.Invites.List(ctx) },
	}
}

// read performs a cached GET, retrying transient failures with exponential backoff.
func (c *Client) read(ctx context.Context, path string) ([]byte, error) {
	op := func() ([]byte, error) {
		req, err := c.newRequest(ctx, http.MethodGet, path, nil, nil)
		if err != nil {
			return nil, backoff.Permanent(err)
		}

		body, err := c.do(c.cached, req)
		if err != nil {
			if !retryable(ctx, err) {
				return nil, backoff.Permanent(err)
			}
			return nil, err
		}
		return body, nil
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.retryInterval

	return backoff.Retry(ctx, op,
		backoff.WithBackOff(b),
		backoff.WithMaxTries(c.maxTries),
		backoff.WithNotify(func(err error, next time.Duration) {
			c.metrics.BackendRetries.Add(ctx, 1, metric.WithAttributes(attribute.String("path", path)))
			log.Debug().Err(err).Str("path", path).Dur("next", next).Msg("retrying backend read")
		}),
	)
}

func retryable(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return false
	}
	if errors.Is(err, session.ErrNotAuthenticated) {
		return false
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Temporary()
	}
	return true
}
