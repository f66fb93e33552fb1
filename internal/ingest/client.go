// Package ingest pulls close-approach data from the JPL SBDB Close Approach
// Data API and stores it in the catalog.
package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"golang.org/x/time/rate"
)

const (
	// DefaultSourceURL is the JPL close-approach endpoint.
	DefaultSourceURL = "https://ssd-api.jpl.nasa.gov/cad.api"
	// DefaultDistMax only requests approaches inside the danger threshold.
	DefaultDistMax = 0.05
	// DefaultLimit caps the number of events per request.
	DefaultLimit = 50
)

// Params selects which close approaches to request.
type Params struct {
	DistMax float64 `json:"dist_max"`
	Limit   int     `json:"limit"`
	DateMin string  `json:"date_min,omitempty"`
	DateMax string  `json:"date_max,omitempty"`
}

// WithDefaults fills unset fields.
func (p Params) WithDefaults() Params {
	if p.DistMax <= 0 {
		p.DistMax = DefaultDistMax
	}
	if p.Limit <= 0 {
		p.Limit = DefaultLimit
	}
	return p
}

// Values encodes the params as CAD API query parameters.
func (p Params) Values() url.Values {
	p = p.WithDefaults()
	v := url.Values{}
	v.Set("dist-max", strconv.FormatFloat(p.DistMax, 'f', -1, 64))
	v.Set("limit", strconv.Itoa(p.Limit))
	if p.DateMin != "" {
		v.Set("date-min", p.DateMin)
	}
	if p.DateMax != "" {
		v.Set("date-max", p.DateMax)
	}
	return v
}

// Payload is the CAD API response: a field list and rows of string cells.
type Payload struct {
	Signature struct {
		Source  string `json:"source"`
		Version string `json:"version"`
	} `json:"signature"`
	Count  json.Number `json:"count"`
	Fields []string    `json:"fields"`
	Data   [][]*string `json:"data"`
}

// Client fetches payloads from the CAD API, throttled to stay polite.
type Client struct {
	sourceURL  string
	httpClient *http.Client
	limiter    *rate.Limiter
}

// NewClient creates a Client for sourceURL. ratePerSec <= 0 disables
// throttling.
func NewClient(sourceURL string, ratePerSec float64) *Client {
	if sourceURL == "" {
		sourceURL = DefaultSourceURL
	}
	limit := rate.Inf
	if ratePerSec > 0 {
		limit = rate.Limit(ratePerSec)
	}
	return &Client{
		sourceURL: sourceURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		limiter: rate.NewLimiter(limit, 1),
	}
}

// SourceURL returns the configured source URL.
func (c *Client) SourceURL() string {
	return c.sourceURL
}

// Fetch performs one CAD API request.
func (c *Client) Fetch(ctx context.Context, params Params) (*Payload, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("ingest: rate limit: %w", err)
	}

	endpoint, err := url.Parse(c.sourceURL)
	if err != nil {
		return nil, fmt.Errorf("ingest: parse source url: %w", err)
	}
	query := endpoint.Query()
	for key, values := range params.Values() {
		query[key] = values
	}
	endpoint.RawQuery = query.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("ingest: creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ingest: fetching close approaches: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("ingest: unexpected status code %d from %s", resp.StatusCode, c.sourceURL)
	}

	var payload Payload
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("ingest: decoding response: %w", err)
	}
	return &payload, nil
}
