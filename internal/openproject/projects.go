// Package openproject talks to the OpenProject v3 API. The API has no
// project listing for API-key users, so discovery probes ids one by one.
package openproject

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"dolphinbot/internal/activity"
	"dolphinbot/internal/transport"
)

// ProjectInfo is the subset of /api/v3/projects/<id> the CLI prints.
type ProjectInfo struct {
	ID         int    `json:"id"`
	Identifier string `json:"identifier"`
	Name       string `json:"name"`
}

func (p ProjectInfo) String() string {
	return fmt.Sprintf("%s (%s) -> ID: %d", p.Name, p.Identifier, p.ID)
}

// Client probes project ids with basic auth "apikey:<key>".
type Client struct {
	project activity.Project
	apiKey  string
	http    *http.Client
	limiter *rate.Limiter
}

// DefaultProbeRate is the number of probes per second.
const DefaultProbeRate = 20

func NewClient(project activity.Project, apiKey string, perSec int) *Client {
	if perSec <= 0 {
		perSec = DefaultProbeRate
	}
	return &Client{
		project: project,
		apiKey:  apiKey,
		http:    &http.Client{Timeout: 15 * time.Second},
		limiter: rate.NewLimiter(rate.Limit(perSec), 1),
	}
}

func (c *Client) WithHTTPClient(h *http.Client) *Client {
	if h != nil {
		c.http = h
	}
	return c
}

// Project fetches one project. ok is false when the id does not exist or is
// not visible to the key.
func (c *Client) Project(ctx context.Context, id int) (info ProjectInfo, ok bool, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.project.APIProjectURL(id), nil)
	if err != nil {
		return ProjectInfo{}, false, err
	}
	req.SetBasicAuth("apikey", c.apiKey)
	req.Header.Set("Accept", "application/hal+json")

	resp, err := c.http.Do(req)
	if err != nil {
		return ProjectInfo{}, false, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusUnauthorized:
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return ProjectInfo{}, false, &transport.StatusError{Destination: "openproject", Code: resp.StatusCode, Body: string(b)}
	default:
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
		return ProjectInfo{}, false, nil
	}

	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&info); err != nil {
		return ProjectInfo{}, false, fmt.Errorf("project %d: decode: %w", id, err)
	}
	return info, true, nil
}

// Discover probes every id in [from, to] and calls found for each visible
// project, in id order. Network errors abort the scan; a 401 aborts it too
// since every further probe would fail the same way.
func (c *Client) Discover(ctx context.Context, from, to int, found func(ProjectInfo)) (int, error) {
	if from < 0 {
		from = 0
	}
	n := 0
	for id := from; id <= to; id++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return n, err
		}
		info, ok, err := c.Project(ctx, id)
		if err != nil {
			return n, err
		}
		if ok {
			n++
			if found != nil {
				found(info)
			}
		}
	}
	return n, nil
}
