// Package search queries the crop-and-match endpoint of the search service.
package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/menta2k/visual-search/pkg/types"
)

// Config describes the search endpoint
type Config struct {
	// Endpoint is the full search URL, e.g. http://host:8000/crop_and_process/
	Endpoint string
	Timeout  time.Duration
	// RatePerSecond paces outgoing searches; zero disables pacing
	RatePerSecond float64
	Burst         int
}

// Request is the JSON body sent to the search endpoint
type Request struct {
	ImagePath string  `json:"image_path"`
	X         float64 `json:"x"`
	Y         float64 `json:"y"`
}

type response struct {
	Respond *types.ResultSet `json:"respond"`
}

// Client sends point searches to the search service
type Client struct {
	config     Config
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *zap.Logger
}

// NewClient creates a search client
func NewClient(config Config, logger *zap.Logger) (*Client, error) {
	if _, err := url.ParseRequestURI(config.Endpoint); err != nil {
		return nil, fmt.Errorf("invalid search endpoint: %v", err)
	}
	if config.Timeout <= 0 {
		config.Timeout = 60 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	c := &Client{
		config:     config,
		httpClient: &http.Client{Timeout: config.Timeout},
		logger:     logger,
	}
	if config.RatePerSecond > 0 {
		burst := config.Burst
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(config.RatePerSecond), burst)
	}
	return c, nil
}

// WithHTTPClient replaces the HTTP client used for searches
func (c *Client) WithHTTPClient(hc *http.Client) *Client {
	c.httpClient = hc
	return c
}

// Search posts serverPath and point and returns the results in service
// order. Every failure wraps types.ErrSearchFailed; nothing is retried.
func (c *Client) Search(ctx context.Context, serverPath string, point types.NormalizedPoint) (types.ResultSet, error) {
	if serverPath == "" {
		return nil, fmt.Errorf("%w: empty server path", types.ErrSearchFailed)
	}

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("%w: rate limiter: %w", types.ErrSearchFailed, err)
		}
	}

	payload, err := json.Marshal(Request{ImagePath: serverPath, X: point.X, Y: point.Y})
	if err != nil {
		return nil, fmt.Errorf("%w: failed to marshal request: %v", types.ErrSearchFailed, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.Endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create request: %v", types.ErrSearchFailed, err)
	}
	req.Header.Set("Content-Type", "application/json")

	c.logger.Debug("sending search",
		zap.String("server_path", serverPath),
		zap.Float64("x", point.X),
		zap.Float64("y", point.Y))

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to send request: %w", types.ErrSearchFailed, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read response: %v", types.ErrSearchFailed, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w: HTTP error! Status: %d", types.ErrSearchFailed, resp.StatusCode)
	}

	var parsed response
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("%w: failed to parse response: %v", types.ErrSearchFailed, err)
	}
	if parsed.Respond == nil {
		return nil, fmt.Errorf("%w: response has no respond field", types.ErrSearchFailed)
	}

	results := *parsed.Respond
	if results == nil {
		results = types.ResultSet{}
	}

	c.logger.Info("search completed",
		zap.String("server_path", serverPath),
		zap.Int("results", len(results)),
		zap.Duration("took", time.Since(start)))

	return results, nil
}
