// Package feeddir reads the public directory of transit feeds.
package feeddir

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
)

const DefaultBaseURL = "https://api.transitfeeds.com/v1/"

// maxResponseSize bounds directory responses.
const maxResponseSize = 8 << 20

var ErrNoAPIKey = errors.New("no API key")

// StatusError is a non-200 response from the directory.
type StatusError struct {
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("feeddir: unexpected status %d", e.StatusCode)
}

// Client calls the directory API. Responses are returned as received.
type Client struct {
	BaseURL string // default: DefaultBaseURL
	APIKey  string
	HTTP    *http.Client // default: http.DefaultClient
}

// Locations returns the locations that have feeds.
func (c *Client) Locations(ctx context.Context) (json.RawMessage, error) {
	return c.get(ctx, "getLocations", nil)
}

// Feeds returns the feeds of location. A zero limit leaves the page size to
// the directory.
func (c *Client) Feeds(ctx context.Context, location string, limit int) (json.RawMessage, error) {
	q := url.Values{}
	if location != "" {
		q.Set("location", location)
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	return c.get(ctx, "getFeeds", q)
}

// FeedVersions returns the published versions of feed.
func (c *Client) FeedVersions(ctx context.Context, feed string) (json.RawMessage, error) {
	q := url.Values{}
	q.Set("feed", feed)
	return c.get(ctx, "getFeedVersions", q)
}

func (c *Client) get(ctx context.Context, method string, q url.Values) (json.RawMessage, error) {
	if c.APIKey == "" {
		return nil, fmt.Errorf("feeddir.Client: %w", ErrNoAPIKey)
	}

	base := c.BaseURL
	if base == "" {
		base = DefaultBaseURL
	}
	u, err := url.Parse(base)
	if err != nil {
		return nil, fmt.Errorf("feeddir.Client: %w", err)
	}
	u = u.JoinPath(method)
	if q == nil {
		q = url.Values{}
	}
	q.Set("key", c.APIKey)
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("feeddir.Client: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	client := c.HTTP
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("feeddir.Client: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("feeddir.Client: %s: %w", method, &StatusError{StatusCode: resp.StatusCode})
	}

	b, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("feeddir.Client: %w", err)
	}
	if !json.Valid(b) {
		return nil, fmt.Errorf("feeddir.Client: %s: invalid JSON response", method)
	}
	return json.RawMessage(b), nil
}
