// Package activation obtains rule activations for a region and time period
// from the external rules service.
package activation

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/pacificclimate/impacts/internal/domain"
	"github.com/pacificclimate/impacts/internal/observability"
)

// Fetcher obtains the activation for a selection.
type Fetcher interface {
	Fetch(ctx context.Context, sel domain.Selection) (*domain.ActivationSnapshot, error)
}

// Client calls the rules service over HTTP.
type Client struct {
	baseURL    string
	ensemble   string
	prefix     string
	httpClient *http.Client
	metrics    *observability.Metrics
	logger     *slog.Logger
	clock      clockwork.Clock
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) { c.httpClient = hc }
}

// WithClientMetrics records request durations.
func WithClientMetrics(m *observability.Metrics) ClientOption {
	return func(c *Client) { c.metrics = m }
}

// WithClientLogger sets the logger.
func WithClientLogger(l *slog.Logger) ClientOption {
	return func(c *Client) { c.logger = l }
}

// WithClientClock sets the time source for FetchedAt.
func WithClientClock(clock clockwork.Clock) ClientOption {
	return func(c *Client) { c.clock = clock }
}

// NewClient creates a rules service client.
func NewClient(cfg domain.ActivationConfig, opts ...ClientOption) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	c := &Client{
		baseURL:    cfg.BaseURL,
		ensemble:   cfg.Ensemble,
		prefix:     cfg.RulePrefix,
		httpClient: &http.Client{Timeout: timeout},
		logger:     slog.Default(),
		clock:      clockwork.NewRealClock(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Fetch requests the activation for sel. Rule IDs in the response have the
// configured prefix stripped. Values that are neither booleans nor numbers
// are kept as invalid entries and read as inactive.
func (c *Client) Fetch(ctx context.Context, sel domain.Selection) (*domain.ActivationSnapshot, error) {
	if !sel.Valid() {
		return nil, fmt.Errorf("%w: region and climate are required", domain.ErrInvalidInput)
	}
	if sel.Ensemble == "" {
		sel.Ensemble = c.ensemble
	}

	params := url.Values{
		"region":   {sel.Region},
		"climate":  {sel.Climate},
		"ensemble": {sel.Ensemble},
	}
	fullURL := c.baseURL
	if strings.Contains(fullURL, "?") {
		fullURL += "&" + params.Encode()
	} else {
		fullURL += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	start := c.clock.Now()
	resp, err := c.httpClient.Do(req)
	if c.metrics != nil {
		c.metrics.ActivationDuration.Observe(c.clock.Since(start).Seconds())
	}
	if err != nil {
		return nil, fmt.Errorf("rules service request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("rules service error: status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var raw map[string]domain.ActivationValue
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	values := make(domain.Activation, len(raw))
	invalid := 0
	for id, v := range raw {
		if v.Kind() == domain.ActivationInvalid {
			invalid++
		}
		values[strings.TrimPrefix(id, c.prefix)] = v
	}
	if invalid > 0 {
		c.logger.Debug("rules service returned non-boolean, non-numeric values",
			"region", sel.Region,
			"climate", sel.Climate,
			"invalid_count", invalid,
		)
	}

	return &domain.ActivationSnapshot{
		ID:        uuid.New().String(),
		Selection: sel,
		Values:    values,
		FetchedAt: c.clock.Now().UTC(),
	}, nil
}
