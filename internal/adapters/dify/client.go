// Package dify pushes documents into Dify knowledge-base datasets.
package dify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/jbctechsolutions/docsync/internal/application/ports"
	domainErrors "github.com/jbctechsolutions/docsync/internal/domain/errors"
	"github.com/jbctechsolutions/docsync/internal/domain/profile"
	"github.com/jbctechsolutions/docsync/internal/infrastructure/tracing"
)

const (
	DefaultTimeout           = 30 * time.Second
	DefaultMaxRetries        = 2
	DefaultRequestsPerSecond = 2.0
	DefaultBurst             = 1

	IndexingHighQuality  = "high_quality"
	ProcessModeAutomatic = "automatic"
)

// Config holds client settings.
type Config struct {
	Timeout           time.Duration
	MaxRetries        int
	RequestsPerSecond float64
	Burst             int
}

// DefaultConfig returns the default client settings.
func DefaultConfig() Config {
	return Config{
		Timeout:           DefaultTimeout,
		MaxRetries:        DefaultMaxRetries,
		RequestsPerSecond: DefaultRequestsPerSecond,
		Burst:             DefaultBurst,
	}
}

// Client creates documents through the Dify dataset API. Requests are throttled
// per endpoint so a batch never floods one Dify instance.
type Client struct {
	httpClient *http.Client
	config     Config
	tracer     *tracing.Tracer
	baseDelay  time.Duration

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// ClientOption is a functional option for configuring the Client.
type ClientOption func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithTracer sets the tracer for outbound calls.
func WithTracer(t *tracing.Tracer) ClientOption {
	return func(c *Client) {
		c.tracer = t
	}
}

// WithRetryDelay sets the first backoff delay.
func WithRetryDelay(d time.Duration) ClientOption {
	return func(c *Client) {
		c.baseDelay = d
	}
}

// NewClient creates a Dify client.
func NewClient(cfg Config, opts ...ClientOption) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.Burst <= 0 {
		cfg.Burst = DefaultBurst
	}

	c := &Client{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		config:     cfg,
		baseDelay:  500 * time.Millisecond,
		limiters:   make(map[string]*rate.Limiter),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.tracer == nil {
		c.tracer = tracing.Default()
	}
	return c
}

var _ ports.Destination = (*Client)(nil)

type processRule struct {
	Mode string `json:"mode"`
}

type createByTextRequest struct {
	Name              string      `json:"name"`
	Text              string      `json:"text"`
	IndexingTechnique string      `json:"indexing_technique"`
	ProcessRule       processRule `json:"process_rule"`
}

type createResponse struct {
	Document struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	} `json:"document"`
	Batch string `json:"batch"`
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// CreateDocument indexes text as a new document in the profile's dataset.
func (c *Client) CreateDocument(ctx context.Context, target profile.Profile, name, text string) (ports.Receipt, error) {
	if target.APIKey == "" {
		return ports.Receipt{}, domainErrors.DestinationRejected(0,
			fmt.Sprintf("profile %q has no API key configured", target.Name))
	}
	if target.DatasetID == "" {
		return ports.Receipt{}, domainErrors.DestinationRejected(0,
			fmt.Sprintf("profile %q has no dataset configured", target.Name))
	}

	ctx, span := c.tracer.StartClientSpan(ctx, "dify", "create_by_text")
	span.SetString("profile.id", target.ID)
	span.SetInt("document.bytes", len(text))

	body, err := json.Marshal(createByTextRequest{
		Name:              name,
		Text:              text,
		IndexingTechnique: IndexingHighQuality,
		ProcessRule:       processRule{Mode: ProcessModeAutomatic},
	})
	if err != nil {
		err = domainErrors.NewError(domainErrors.CodeValidation, "failed to marshal request", err)
		span.EndWithError(err)
		return ports.Receipt{}, err
	}

	endpoint := fmt.Sprintf("%s/datasets/%s/document/create_by_text", target.Endpoint(), url.PathEscape(target.DatasetID))
	resp, err := c.doRequestWithRetry(ctx, target, endpoint, body)
	if err != nil {
		span.EndWithError(err)
		return ports.Receipt{}, err
	}
	defer resp.Body.Close()

	// A malformed acknowledgement does not undo an accepted document.
	var created createResponse
	_ = json.NewDecoder(resp.Body).Decode(&created)
	span.SetString("document.id", created.Document.ID)
	span.End()

	return ports.Receipt{
		DocumentID: created.Document.ID,
		Message:    fmt.Sprintf("document indexed in profile %s", target.Name),
	}, nil
}

// limiter returns the throttle for one Dify endpoint.
func (c *Client) limiter(endpoint string) *rate.Limiter {
	c.mu.Lock()
	defer c.mu.Unlock()

	l, ok := c.limiters[endpoint]
	if !ok {
		limit := rate.Inf
		if c.config.RequestsPerSecond > 0 {
			limit = rate.Limit(c.config.RequestsPerSecond)
		}
		l = rate.NewLimiter(limit, c.config.Burst)
		c.limiters[endpoint] = l
	}
	return l
}

// doRequestWithRetry posts body with exponential backoff on 429 and 5xx answers.
func (c *Client) doRequestWithRetry(ctx context.Context, target profile.Profile, endpoint string, body []byte) (*http.Response, error) {
	limiter := c.limiter(target.Endpoint())
	var lastErr error

	for attempt := 0; attempt <= c.config.MaxRetries; attempt++ {
		if attempt > 0 {
			// 500ms, 1s, 2s...
			delay := c.baseDelay * time.Duration(1<<(attempt-1))
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
		}

		if err := limiter.Wait(ctx); err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, domainErrors.NetworkFailure("rate limiter", err)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
		if err != nil {
			return nil, domainErrors.NewError(domainErrors.CodeValidation, "failed to create request", err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+target.APIKey)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			lastErr = domainErrors.NetworkFailure("dify request failed", err)
			continue
		}

		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			lastErr = handleErrorResponse(resp)
			resp.Body.Close()
			continue
		}
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			defer resp.Body.Close()
			return nil, handleErrorResponse(resp)
		}
		return resp, nil
	}

	return nil, lastErr
}

// handleErrorResponse keeps the remote message, falling back to the status code.
func handleErrorResponse(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))

	message := fmt.Sprintf("HTTP error %d", resp.StatusCode)
	var errResp errorResponse
	if json.Unmarshal(body, &errResp) == nil && errResp.Message != "" {
		message = errResp.Message
	}

	return domainErrors.DestinationRejected(resp.StatusCode, message)
}
