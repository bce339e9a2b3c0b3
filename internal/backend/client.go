package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/sony/gobreaker/v2"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"

	"retailpos/terminal/internal/metrics"
)

const maxResponseBytes = 4 << 20

// TokenSource supplies the bearer token for authenticated calls.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

type Options struct {
	BaseURL         string
	Timeout         time.Duration
	BreakerFailures int
	BreakerOpenFor  time.Duration
	Tokens          TokenSource
	Logger          *zap.Logger
	Metrics         *metrics.Metrics
	// Transport defaults to http.DefaultTransport.
	Transport http.RoundTripper
}

// Client is the typed gateway to the retail backend REST API.
type Client struct {
	baseURL string
	timeout time.Duration
	http    *http.Client
	tokens  TokenSource
	breaker *gobreaker.CircuitBreaker[rawResponse]
	logger  *zap.Logger
	metrics *metrics.Metrics
}

type rawResponse struct {
	status int
	body   []byte
}

var errServerSide = errors.New("backend server error")

func New(opts Options) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = 15 * time.Second
	}
	if opts.BreakerFailures < 1 {
		opts.BreakerFailures = 5
	}
	if opts.BreakerOpenFor <= 0 {
		opts.BreakerOpenFor = 30 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	transport := opts.Transport
	if transport == nil {
		transport = http.DefaultTransport
	}

	c := &Client{
		baseURL: strings.TrimRight(opts.BaseURL, "/"),
		timeout: opts.Timeout,
		http:    &http.Client{Transport: otelhttp.NewTransport(transport)},
		tokens:  opts.Tokens,
		logger:  opts.Logger.Named("backend"),
		metrics: opts.Metrics,
	}

	failures := uint32(opts.BreakerFailures)
	c.breaker = gobreaker.NewCircuitBreaker[rawResponse](gobreaker.Settings{
		Name:        "retail-backend",
		MaxRequests: 1,
		Timeout:     opts.BreakerOpenFor,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			c.logger.Warn("circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
			c.metrics.BreakerOpen(name, to == gobreaker.StateOpen)
		},
	})

	return c
}

// call describes one backend request. route is the path pattern used as the
// metrics label.
type call struct {
	method string
	route  string
	path   string
	query  url.Values
	body   any
	public bool
}

// envelope is the response shape shared by every backend endpoint.
type envelope struct {
	Success *bool           `json:"success"`
	Data    json.RawMessage `json:"data"`
	Message string          `json:"message"`
}

// fetch runs cl and decodes the envelope data into T.
func fetch[T any](ctx context.Context, c *Client, cl call) (T, error) {
	var out T
	if err := c.send(ctx, cl, &out); err != nil {
		var zero T
		return zero, err
	}
	return out, nil
}

// send performs the request. out may be nil for calls whose response body
// carries no data.
func (c *Client) send(ctx context.Context, cl call, out any) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := c.newRequest(ctx, cl)
	if err != nil {
		return err
	}

	startedAt := time.Now()
	raw, err := c.breaker.Execute(func() (rawResponse, error) {
		resp, err := c.http.Do(req)
		if err != nil {
			return rawResponse{}, err
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
		if err != nil {
			return rawResponse{}, err
		}
		res := rawResponse{status: resp.StatusCode, body: body}
		if resp.StatusCode >= http.StatusInternalServerError {
			return res, errServerSide
		}
		return res, nil
	})

	status := "error"
	if raw.status != 0 {
		status = strconv.Itoa(raw.status)
	}
	c.metrics.ObserveBackend(cl.method, cl.route, status, time.Since(startedAt))

	switch {
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		return ErrBackendUnavailable
	case err != nil && !errors.Is(err, errServerSide):
		c.logger.Warn("backend call failed",
			zap.String("method", cl.method),
			zap.String("route", cl.route),
			zap.Error(err))
		return fmt.Errorf("%w: %s %s: %w", ErrBackendUnreachable, cl.method, cl.route, err)
	}

	if raw.status < 200 || raw.status > 299 {
		apiErr := &APIError{Status: raw.status, Message: errorMessage(raw.body, raw.status)}
		if raw.status >= http.StatusInternalServerError {
			c.logger.Warn("backend returned server error",
				zap.String("method", cl.method),
				zap.String("route", cl.route),
				zap.Int("status", raw.status),
				zap.String("message", apiErr.Message))
		}
		return apiErr
	}

	return decodeEnvelope(cl.route, raw, out)
}

func (c *Client) newRequest(ctx context.Context, cl call) (*http.Request, error) {
	target := c.baseURL + cl.path
	if len(cl.query) > 0 {
		target += "?" + cl.query.Encode()
	}

	var body io.Reader
	if cl.body != nil {
		payload, err := json.Marshal(cl.body)
		if err != nil {
			return nil, fmt.Errorf("encode %s body: %w", cl.route, err)
		}
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, cl.method, target, body)
	if err != nil {
		return nil, fmt.Errorf("build %s request: %w", cl.route, err)
	}
	req.Header.Set("Accept", "application/json")
	if cl.body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	if !cl.public {
		if c.tokens == nil {
			return nil, errors.New("no token source configured")
		}
		token, err := c.tokens.Token(ctx)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req, nil
}

func decodeEnvelope(route string, raw rawResponse, out any) error {
	if out == nil {
		return nil
	}
	if len(bytes.TrimSpace(raw.body)) == 0 {
		return &DecodeError{Route: route, Reason: "empty body"}
	}

	var env envelope
	if err := json.Unmarshal(raw.body, &env); err != nil {
		return &DecodeError{Route: route, Reason: "body is not a JSON object", Err: err}
	}
	if env.Success != nil && !*env.Success {
		msg := strings.TrimSpace(env.Message)
		if msg == "" {
			msg = fmt.Sprintf("request failed with status %d", raw.status)
		}
		return &APIError{Status: raw.status, Message: msg}
	}
	data := bytes.TrimSpace(env.Data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return &DecodeError{Route: route, Reason: "response has no data"}
	}
	if err := json.Unmarshal(data, out); err != nil {
		return &DecodeError{Route: route, Reason: "data has unexpected shape", Err: err}
	}
	return nil
}

func pathID(id string) string {
	return url.PathEscape(strings.TrimSpace(id))
}
