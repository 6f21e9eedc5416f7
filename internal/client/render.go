package client

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/wolfeidau/smartschedule/internal/permissions"
)

var _ permissions.Fetcher = (*Client)(nil)

type renderResponse struct {
	RolePermissions     map[string]bool `json:"rolePermissions"`
	TeamRulePermissions map[string]bool `json:"teamRulePermissions"`
}

// FetchPermissions resolves the permission snapshot for key via
// GET /Render/render, passing selectedTeam when a team is selected.
// Permission calls bypass the response cache and are not retried.
func (c *Client) FetchPermissions(ctx context.Context, key permissions.Key) (*permissions.Snapshot, error) {
	var query url.Values
	if key.HasTeam {
		query = url.Values{"selectedTeam": []string{strconv.Itoa(key.TeamID)}}
	}

	req, err := c.newRequest(ctx, http.MethodGet, "/Render/render", query, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Cache-Control", "no-cache")

	body, err := c.do(c.authed, req)
	if err != nil {
		return nil, err
	}

	var resp renderResponse
	if err := decode(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to decode permissions: %w", err)
	}

	return permissions.NewSnapshot(key, resp.RolePermissions, resp.TeamRulePermissions), nil
}
