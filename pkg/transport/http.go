// Package transport carries signed requests to the exchange over HTTP and
// the trade websocket.
package transport

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	json "github.com/goccy/go-json"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/uhyunpark/hibachi/pkg/errs"
)

const maxResponseBytes = 8 << 20

// Transport is what the client needs from the network: unauthenticated data
// API reads and authorized trade API calls. Both return the raw body.
type Transport interface {
	Get(ctx context.Context, path string) ([]byte, error)
	Do(ctx context.Context, method, path string, body any) ([]byte, error)
}

// HTTPConfig configures an HTTPTransport.
type HTTPConfig struct {
	APIEndpoint       string
	DataAPIEndpoint   string
	APIKey            string
	ClientID          string
	Timeout           time.Duration
	RequestsPerSecond float64
	MaxRetries        int
	// RetryInterval is the first backoff step for retried GETs.
	RetryInterval time.Duration
	Logger        *zap.SugaredLogger
}

type HTTPTransport struct {
	cfg     HTTPConfig
	client  *http.Client
	limiter *rate.Limiter
	log     *zap.SugaredLogger
}

func NewHTTP(cfg HTTPConfig) *HTTPTransport {
	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}
	if cfg.RetryInterval <= 0 {
		cfg.RetryInterval = 200 * time.Millisecond
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &HTTPTransport{
		cfg:     cfg,
		client:  &http.Client{Timeout: cfg.Timeout},
		limiter: rate.NewLimiter(limit, 1),
		log:     logger,
	}
}

// Get reads from the data API. No credentials are sent.
func (t *HTTPTransport) Get(ctx context.Context, path string) ([]byte, error) {
	return t.send(ctx, t.cfg.DataAPIEndpoint, http.MethodGet, path, nil, false)
}

// Do calls the trade API with the account's API key. body, when non-nil,
// is sent as JSON.
func (t *HTTPTransport) Do(ctx context.Context, method, path string, body any) ([]byte, error) {
	if t.cfg.APIKey == "" {
		return nil, errs.Validationf("api key is required for %s %s", method, path)
	}
	var payload []byte
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode %s %s body: %w", method, path, err)
		}
		payload = b
	}
	return t.send(ctx, t.cfg.APIEndpoint, method, path, payload, true)
}

// send issues the request, retrying GETs on connection errors and 5xx.
// Everything else is attempted once.
func (t *HTTPTransport) send(ctx context.Context, base, method, path string, body []byte, authorized bool) ([]byte, error) {
	url := strings.TrimRight(base, "/") + path
	attempt := 0
	op := func() ([]byte, error) {
		attempt++
		out, err := t.roundTrip(ctx, method, url, body, authorized)
		if err == nil {
			return out, nil
		}
		if method != http.MethodGet || !retryable(err) {
			return nil, backoff.Permanent(err)
		}
		t.log.Debugw("http_retry", "method", method, "path", path, "attempt", attempt, "err", err)
		return nil, err
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = t.cfg.RetryInterval
	b.MaxInterval = 5 * time.Second
	return backoff.Retry(ctx, op,
		backoff.WithBackOff(b),
		backoff.WithMaxTries(uint(t.cfg.MaxRetries+1)),
	)
}

func (t *HTTPTransport) roundTrip(ctx context.Context, method, url string, body []byte, authorized bool) ([]byte, error) {
	if err := t.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, fmt.Errorf("create %s request: %w", method, err)
	}
	req.Header.Set("Hibachi-Client", t.cfg.ClientID)
	if authorized {
		req.Header.Set("Authorization", t.cfg.APIKey)
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Accept", "application/json")
	}

	start := time.Now()
	resp, err := t.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %s %s: %v", errs.ErrTransport, method, url, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	out, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: read %s %s response: %v", errs.ErrTransport, method, url, err)
	}
	t.log.Debugw("http_response", "method", method, "url", url, "status", resp.StatusCode, "elapsed_ms", time.Since(start).Milliseconds())

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, StatusError(resp.StatusCode, out)
	}
	return out, nil
}

func retryable(err error) bool {
	if errors.Is(err, errs.ErrTransport) {
		return true
	}
	var he *errs.HTTPError
	return errors.As(err, &he) && he.Temporary()
}

type errorBody struct {
	ErrorCode      *int    `json:"errorCode"`
	Status         *string `json:"status"`
	Message        *string `json:"message"`
	Name           *string `json:"name"`
	Count          *int    `json:"count"`
	Limit          *int    `json:"limit"`
	WindowDuration *string `json:"windowDuration"`
}

// StatusError maps a non-2xx response to *errs.HTTPError, or
// *errs.RateLimitError for 429. The message is "[code] status: message"
// when the body carries the exchange's error fields.
func StatusError(status int, body []byte) error {
	var eb errorBody
	decoded := json.Unmarshal(body, &eb) == nil

	msg := "<no error message>"
	switch {
	case decoded && eb.ErrorCode != nil && eb.Status != nil && eb.Message != nil:
		msg = errs.FormatExchangeMessage(*eb.ErrorCode, *eb.Status, *eb.Message)
	case len(bytes.TrimSpace(body)) > 0:
		msg = string(bytes.TrimSpace(body))
	}

	if status != http.StatusTooManyRequests {
		return &errs.HTTPError{Status: status, Message: msg}
	}
	rl := &errs.RateLimitError{HTTPError: errs.HTTPError{Status: status, Message: msg}}
	if decoded {
		if eb.Name != nil {
			rl.Name = *eb.Name
		}
		if eb.Count != nil {
			rl.Count = *eb.Count
		}
		if eb.Limit != nil {
			rl.Limit = *eb.Limit
		}
		if eb.WindowDuration != nil {
			rl.WindowDuration = *eb.WindowDuration
		}
	}
	return rl
}
