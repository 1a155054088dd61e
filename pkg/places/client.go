// Package places talks to the places web service and to an optional
// Elasticsearch index that serves the same nearby-search contract.
package places

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"poimap/internal/models"
)

const (
	DefaultBaseURL = "https://maps.googleapis.com/maps/api/place/"
	DefaultRadius  = "1500"
	DefaultType    = "point_of_interest"
)

// Client is a minimal nearby-search client. Each call is a single
// best-effort request: no retries, no pagination.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	userAgent  string
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithBaseURL overrides the service root. A trailing slash is added if missing.
func WithBaseURL(base string) Option {
	return func(c *Client) {
		if !strings.HasSuffix(base, "/") {
			base += "/"
		}
		c.baseURL = base
	}
}

// NewClient returns a Places API client authenticated with apiKey.
func NewClient(apiKey string, opts ...Option) *Client {
	c := &Client{
		httpClient: &http.Client{Timeout: 10 * time.Second},
		baseURL:    DefaultBaseURL,
		apiKey:     apiKey,
		userAgent:  "poimap/1.0",
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// NearbySearch performs the raw request and decodes the envelope. Missing
// Radius or Type fall back to the defaults.
func (c *Client) NearbySearch(ctx context.Context, q Query) (*NearbyResponse, error) {
	if q.Radius == "" {
		q.Radius = DefaultRadius
	}
	if q.Type == "" {
		q.Type = DefaultType
	}

	params := url.Values{}
	params.Set("key", c.apiKey)
	params.Set("location", q.Location)
	params.Set("radius", q.Radius)
	params.Set("type", q.Type)

	reqURL := fmt.Sprintf("%snearbysearch/json?%s", c.baseURL, params.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("nearby search request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status: %s", resp.Status)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read nearby search body: %w", err)
	}

	var nearby NearbyResponse
	if err := json.Unmarshal(body, &nearby); err != nil {
		return nil, &MalformedError{Err: err}
	}
	return &nearby, nil
}

// PointsOfInterest returns the places around location ("lat,lng") within the
// default radius. A body without a usable results array yields an empty list.
func (c *Client) PointsOfInterest(ctx context.Context, location string) ([]models.Place, error) {
	nearby, err := c.NearbySearch(ctx, Query{Location: location})
	if err != nil {
		var malformed *MalformedError
		if errors.As(err, &malformed) {
			log.Printf("Malformed nearby search response for %s: %v", location, malformed.Err)
			return []models.Place{}, nil
		}
		return nil, err
	}
	if nearby.ErrorMessage != "" {
		log.Printf("Nearby search for %s returned status %s: %s", location, nearby.Status, nearby.ErrorMessage)
	}
	return decodeResults(nearby.Results), nil
}

func decodeResults(raw json.RawMessage) []models.Place {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return []models.Place{}
	}
	var out []models.Place
	if err := json.Unmarshal(trimmed, &out); err != nil {
		log.Printf("Ignoring malformed results array: %v", err)
		return []models.Place{}
	}
	if out == nil {
		out = []models.Place{}
	}
	return out
}
