package transport

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/hashicorp/go-retryablehttp"
	"go.uber.org/zap"
	"golang.org/x/net/publicsuffix"
	"golang.org/x/time/rate"

	"github.com/GriffinCanCode/consolechannel/internal/infrastructure/resilience"
)

// StatusError is returned for any response other than HTTP 200.
type StatusError struct {
	StatusCode int
	Status     string
	Body       string
}

func (e *StatusError) Error() string {
	body := strings.TrimSpace(e.Body)
	if body == "" {
		return fmt.Sprintf("unexpected status %s", e.Status)
	}
	return fmt.Sprintf("unexpected status %s: %s", e.Status, body)
}

// Config holds HTTP transport settings.
type Config struct {
	// Timeout bounds every request except long-poll operations. Zero disables it.
	Timeout time.Duration
	// LongPoll lists operation names (last path segment) exempt from Timeout.
	LongPoll []string
	// RateLimit caps requests per second. Zero means unlimited.
	RateLimit float64
	UserAgent string
	Username  string
	Password  string
	Headers   map[string]string
	Breaker   resilience.Settings
}

// DefaultConfig returns the transport configuration used by the client.
func DefaultConfig() Config {
	return Config{
		Timeout:   30 * time.Second,
		LongPoll:  []string{"read"},
		UserAgent: "consolechannel/1.0",
		Breaker:   resilience.DefaultSettings(),
	}
}

// HTTP posts envelopes to the terminal server.
type HTTP struct {
	resty    *resty.Client
	limiter  *rate.Limiter
	breaker  *resilience.Breaker
	longPoll map[string]bool
	timeout  time.Duration
	random   io.Reader
	logger   *zap.Logger
}

// NewHTTP creates an HTTP transport. A nil logger discards output.
func NewHTTP(cfg Config, logger *zap.Logger) (*HTTP, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, fmt.Errorf("failed to create cookie jar: %w", err)
	}

	// Pooled keep-alive transport; retries stay off.
	retryClient := retryablehttp.NewClient()
	retryClient.RetryMax = 0
	retryClient.Logger = nil

	restyClient := resty.New().
		SetTransport(retryClient.HTTPClient.Transport).
		SetCookieJar(jar).
		SetRetryCount(0).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")
	if cfg.UserAgent != "" {
		restyClient.SetHeader("User-Agent", cfg.UserAgent)
	}
	for k, v := range cfg.Headers {
		restyClient.SetHeader(k, v)
	}
	if cfg.Username != "" {
		restyClient.SetBasicAuth(cfg.Username, cfg.Password)
	}

	limiter := rate.NewLimiter(rate.Inf, 0)
	if cfg.RateLimit > 0 {
		burst := int(cfg.RateLimit)
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}

	settings := cfg.Breaker
	settings.IsFailure = isFailure
	settings.OnStateChange = func(name string, from, to resilience.State) {
		logger.Warn("circuit breaker state changed",
			zap.String("breaker", name),
			zap.String("from", from.String()),
			zap.String("to", to.String()),
		)
	}

	longPoll := make(map[string]bool, len(cfg.LongPoll))
	for _, op := range cfg.LongPoll {
		longPoll[op] = true
	}

	return &HTTP{
		resty:    restyClient,
		limiter:  limiter,
		breaker:  resilience.New("terminal-server", settings),
		longPoll: longPoll,
		timeout:  cfg.Timeout,
		random:   rand.Reader,
		logger:   logger,
	}, nil
}

// Post sends payload to destination and returns the body of a 200 response.
func (t *HTTP) Post(ctx context.Context, destination string, payload []byte) ([]byte, error) {
	if err := t.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit error: %w", err)
	}

	body, err := resilience.Do(t.breaker, func() ([]byte, error) {
		return t.send(ctx, destination, payload)
	})
	if errors.Is(err, resilience.ErrCircuitOpen) {
		return nil, fmt.Errorf("post %s: %w", destination, err)
	}
	return body, err
}

func (t *HTTP) send(ctx context.Context, destination string, payload []byte) ([]byte, error) {
	if t.timeout > 0 && !t.longPoll[operation(destination)] {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.timeout)
		defer cancel()
	}

	resp, err := t.resty.R().
		SetContext(ctx).
		SetBody(payload).
		Post(destination)
	if err != nil {
		return nil, fmt.Errorf("post %s: %w", destination, err)
	}

	t.logger.Debug("post complete",
		zap.String("destination", destination),
		zap.Int("status", resp.StatusCode()),
		zap.Int("request_bytes", len(payload)),
		zap.Int("response_bytes", len(resp.Body())),
		zap.Duration("duration", resp.Time()),
	)

	if resp.StatusCode() != http.StatusOK {
		return nil, &StatusError{
			StatusCode: resp.StatusCode(),
			Status:     resp.Status(),
			Body:       resp.String(),
		}
	}
	return resp.Body(), nil
}

// isFailure reports whether err says the server is unhealthy. Client errors
// and caller cancellation do not count.
func isFailure(err error) bool {
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.StatusCode >= http.StatusInternalServerError
	}
	return !errors.Is(err, context.Canceled)
}

// RandomBytes returns n bytes from crypto/rand.
func (t *HTTP) RandomBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	if _, err := io.ReadFull(t.random, b); err != nil {
		return nil, fmt.Errorf("failed to read random bytes: %w", err)
	}
	return b, nil
}

// BreakerState returns the current circuit breaker state
func (t *HTTP) BreakerState() resilience.State {
	return t.breaker.State()
}

// operation returns the last path segment of destination, ignoring any query.
func operation(destination string) string {
	if i := strings.IndexAny(destination, "?#"); i >= 0 {
		destination = destination[:i]
	}
	return destination[strings.LastIndex(destination, "/")+1:]
}
