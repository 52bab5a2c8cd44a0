package convex

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ternarybob/arbor"
	"golang.org/x/time/rate"
)

const (
	// DefaultTimeout is the default HTTP timeout.
	DefaultTimeout = 30 * time.Second

	// DefaultRateLimit is the default rate limit (requests per second).
	DefaultRateLimit = 20
)

// Client calls named functions on a Convex deployment over its HTTP API.
type Client struct {
	deployment string
	deployKey  string
	httpClient *http.Client
	logger     arbor.ILogger
	limiter    *rate.Limiter
}

// ClientOption configures the Client.
type ClientOption func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithLogger sets a logger.
func WithLogger(logger arbor.ILogger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithRateLimit sets a custom rate limit.
func WithRateLimit(requestsPerSecond int) ClientOption {
	return func(c *Client) {
		c.limiter = rate.NewLimiter(rate.Limit(requestsPerSecond), requestsPerSecond)
	}
}

// NewClient creates a client for a deployment URL such as
// https://happy-animal-123.convex.cloud.
func NewClient(deployment, deployKey string, opts ...ClientOption) *Client {
	c := &Client{
		deployment: strings.TrimRight(deployment, "/"),
		deployKey:  deployKey,
		httpClient: &http.Client{
			Timeout: DefaultTimeout,
		},
		limiter: rate.NewLimiter(rate.Limit(DefaultRateLimit), DefaultRateLimit),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// StoreError is a non-success response from the deployment.
type StoreError struct {
	Op      string
	Message string
	Data    json.RawMessage
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store %s: %s", e.Op, e.Message)
}

// IsIDValidation reports whether the error is the deployment rejecting the
// id argument. Complete/fail calls for non-store-managed rows hit this and
// are swallowed by the callers.
func (e *StoreError) IsIDValidation() bool {
	return strings.Contains(e.Message, "ArgumentValidationError") && strings.Contains(e.Message, ".id")
}

// envelope is the function-call response shape.
type envelope struct {
	Status       string          `json:"status"`
	Value        json.RawMessage `json:"value"`
	ErrorMessage string          `json:"errorMessage"`
	ErrorData    json.RawMessage `json:"errorData"`
}

// functionCall is the request body for /api/query|mutation|action.
type functionCall struct {
	Path   string      `json:"path"`
	Args   interface{} `json:"args"`
	Format string      `json:"format"`
}

// run executes one named function and decodes the success value into
// result when result is non-nil.
func (c *Client) run(ctx context.Context, kind, path string, args interface{}, result interface{}) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	if args == nil {
		args = map[string]interface{}{}
	}
	body, err := json.Marshal(functionCall{Path: path, Args: args, Format: "json"})
	if err != nil {
		return fmt.Errorf("failed to encode %s args: %w", path, err)
	}

	reqURL := fmt.Sprintf("%s/api/%s", c.deployment, kind)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, reqURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.deployKey != "" {
		req.Header.Set("Authorization", "Convex "+c.deployKey)
	}

	if c.logger != nil {
		c.logger.Trace().
			Str("path", path).
			Str("kind", kind).
			Msg("Store function call")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to call %s: %w", path, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read %s response: %w", path, err)
	}

	if resp.StatusCode != http.StatusOK {
		return &StoreError{
			Op:      path,
			Message: fmt.Sprintf("HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody))),
		}
	}

	var env envelope
	if err := json.Unmarshal(respBody, &env); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", path, err)
	}
	if env.Status != "success" {
		return &StoreError{
			Op:      path,
			Message: env.ErrorMessage,
			Data:    env.ErrorData,
		}
	}

	if result != nil && len(env.Value) > 0 && string(env.Value) != "null" {
		if err := json.Unmarshal(env.Value, result); err != nil {
			return fmt.Errorf("failed to decode %s value: %w", path, err)
		}
	}
	return nil
}

// Query runs a read-only named function.
func (c *Client) Query(ctx context.Context, path string, args, result interface{}) error {
	return c.run(ctx, "query", path, args, result)
}

// Mutation runs a transactional named function.
func (c *Client) Mutation(ctx context.Context, path string, args, result interface{}) error {
	return c.run(ctx, "mutation", path, args, result)
}

// Action runs a non-transactional named function.
func (c *Client) Action(ctx context.Context, path string, args, result interface{}) error {
	return c.run(ctx, "action", path, args, result)
}
