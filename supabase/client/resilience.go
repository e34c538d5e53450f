package client

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"net"
	"net/http"
	"slices"
	"sync"
	"sync/atomic"
	"time"
)

// RetryConfig configures retries of idempotent requests.
type RetryConfig struct {
	MaxRetries        int
	InitialBackoff    time.Duration
	MaxBackoff        time.Duration
	BackoffMultiplier float64
	// Jitter spreads each backoff by up to this fraction either way.
	Jitter               float64
	RetryableStatusCodes []int
}

// ResilienceConfig enables retries and a circuit breaker on the client
// transport. Only idempotent requests (GET, HEAD) are retried; inserts,
// updates and deletes are sent exactly once.
type ResilienceConfig struct {
	Retry          RetryConfig
	CircuitBreaker CircuitBreakerConfig
}

// DefaultResilienceConfig returns the defaults used by brewmap-api.
func DefaultResilienceConfig() *ResilienceConfig {
	return &ResilienceConfig{
		Retry:          DefaultRetryConfig(),
		CircuitBreaker: DefaultCircuitBreakerConfig(),
	}
}

// DefaultRetryConfig retries throttling and gateway failures three times.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:        3,
		InitialBackoff:    100 * time.Millisecond,
		MaxBackoff:        10 * time.Second,
		BackoffMultiplier: 2.0,
		Jitter:            0.1,
		RetryableStatusCodes: []int{
			http.StatusTooManyRequests,
			http.StatusInternalServerError,
			http.StatusBadGateway,
			http.StatusServiceUnavailable,
			http.StatusGatewayTimeout,
		},
	}
}

// CircuitState is the state of a circuit breaker.
type CircuitState int

const (
	CircuitClosed CircuitState = iota
	CircuitOpen
	CircuitHalfOpen
)

func (s CircuitState) String() string {
	switch s {
	case CircuitClosed:
		return "closed"
	case CircuitOpen:
		return "open"
	case CircuitHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// CircuitBreakerConfig configures a circuit breaker.
type CircuitBreakerConfig struct {
	// FailureThreshold consecutive failures open the circuit.
	FailureThreshold int
	// SuccessThreshold successes while half-open close it again.
	SuccessThreshold int
	// Timeout is how long the circuit stays open before a trial request.
	Timeout time.Duration
}

// DefaultCircuitBreakerConfig opens after five failures for 30 seconds.
func DefaultCircuitBreakerConfig() CircuitBreakerConfig {
	return CircuitBreakerConfig{
		FailureThreshold: 5,
		SuccessThreshold: 2,
		Timeout:          30 * time.Second,
	}
}

// ErrCircuitOpen is returned while the platform is considered down.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// CircuitBreaker stops calls to the platform after repeated failures.
type CircuitBreaker struct {
	mu sync.RWMutex

	config    CircuitBreakerConfig
	state     CircuitState
	failures  int
	successes int
	lastError error
	openedAt  time.Time
}

// NewCircuitBreaker creates a closed circuit breaker.
func NewCircuitBreaker(config CircuitBreakerConfig) *CircuitBreaker {
	return &CircuitBreaker{config: config}
}

// Allow reports whether a request may be sent. An open circuit lets one
// trial through once its timeout has passed.
func (cb *CircuitBreaker) Allow() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if cb.state == CircuitOpen {
		if time.Since(cb.openedAt) <= cb.config.Timeout {
			return ErrCircuitOpen
		}
		cb.setState(CircuitHalfOpen)
	}
	return nil
}

// RecordSuccess records a request the platform answered.
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	switch cb.state {
	case CircuitClosed:
		cb.failures = 0
	case CircuitHalfOpen:
		cb.successes++
		if cb.successes >= cb.config.SuccessThreshold {
			cb.setState(CircuitClosed)
		}
	}
}

// RecordFailure records a failed request.
func (cb *CircuitBreaker) RecordFailure(err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.lastError = err
	switch cb.state {
	case CircuitClosed:
		cb.failures++
		if cb.failures >= cb.config.FailureThreshold {
			cb.setState(CircuitOpen)
		}
	case CircuitHalfOpen:
		cb.setState(CircuitOpen)
	}
}

func (cb *CircuitBreaker) setState(s CircuitState) {
	cb.state = s
	cb.failures, cb.successes = 0, 0
	if s == CircuitOpen {
		cb.openedAt = time.Now()
	}
}

// State returns the current circuit state.
func (cb *CircuitBreaker) State() CircuitState {
	cb.mu.RLock()
	defer cb.mu.RUnlock()
	return cb.state
}

// LastError returns the most recent failure, or nil.
func (cb *CircuitBreaker) LastError() error {
	cb.mu.RLock()
	defer cb.mu.RUnlock()
	return cb.lastError
}

// TransportStats is a snapshot of the resilient transport, reported on
// the service's /info endpoint.
type TransportStats struct {
	Circuit   string `json:"circuit"`
	Requests  int64  `json:"requests"`
	Succeeded int64  `json:"succeeded"`
	Failed    int64  `json:"failed"`
	Retried   int64  `json:"retried"`
	LastError string `json:"last_error,omitempty"`
}

// ResilientClient sends requests with retries and a circuit breaker.
type ResilientClient struct {
	client  *http.Client
	retry   RetryConfig
	breaker *CircuitBreaker

	requests  atomic.Int64
	succeeded atomic.Int64
	failed    atomic.Int64
	retried   atomic.Int64
}

// ResilientClientConfig configures a ResilientClient.
type ResilientClientConfig struct {
	BaseClient           *http.Client
	RetryConfig          RetryConfig
	CircuitBreakerConfig CircuitBreakerConfig
}

// NewResilientClient creates a resilient client over config.BaseClient.
func NewResilientClient(config ResilientClientConfig) *ResilientClient {
	base := config.BaseClient
	if base == nil {
		base = &http.Client{Timeout: defaultTimeout}
	}
	return &ResilientClient{
		client:  base,
		retry:   config.RetryConfig,
		breaker: NewCircuitBreaker(config.CircuitBreakerConfig),
	}
}

type statusError int

func (e statusError) Error() string { return http.StatusText(int(e)) }

// Do sends req. Retryable failures of idempotent requests are retried
// with backoff; when retries run out the last platform response is
// returned so its error body can be read.
func (rc *ResilientClient) Do(req *http.Request) (*http.Response, error) {
	rc.requests.Add(1)
	if err := rc.breaker.Allow(); err != nil {
		rc.failed.Add(1)
		return nil, err
	}

	maxRetries := rc.retry.MaxRetries
	if req.Method != http.MethodGet && req.Method != http.MethodHead {
		maxRetries = 0
	}

	for attempt := 0; ; attempt++ {
		if attempt > 0 {
			rc.retried.Add(1)
			select {
			case <-req.Context().Done():
				rc.failed.Add(1)
				return nil, req.Context().Err()
			case <-time.After(rc.backoff(attempt)):
			}
			req = req.Clone(req.Context())
		}

		resp, err := rc.client.Do(req)
		last := attempt >= maxRetries
		switch {
		case err != nil:
			if retryableError(err) && !last {
				continue
			}
			rc.fail(err)
			return nil, err
		case slices.Contains(rc.retry.RetryableStatusCodes, resp.StatusCode):
			if !last {
				resp.Body.Close()
				continue
			}
			rc.fail(statusError(resp.StatusCode))
			return resp, nil
		default:
			rc.breaker.RecordSuccess()
			rc.succeeded.Add(1)
			return resp, nil
		}
	}
}

func (rc *ResilientClient) fail(err error) {
	rc.breaker.RecordFailure(err)
	rc.failed.Add(1)
}

func (rc *ResilientClient) backoff(attempt int) time.Duration {
	d := float64(rc.retry.InitialBackoff) * math.Pow(rc.retry.BackoffMultiplier, float64(attempt-1))
	d = math.Min(d, float64(rc.retry.MaxBackoff))
	if rc.retry.Jitter > 0 {
		d += d * rc.retry.Jitter * (rand.Float64()*2 - 1)
	}
	return time.Duration(d)
}

func retryableError(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	var opErr *net.OpError
	return errors.As(err, &opErr) && opErr.Op == "dial"
}

// Stats returns a snapshot of the transport counters and circuit state.
func (rc *ResilientClient) Stats() TransportStats {
	st := TransportStats{
		Circuit:   rc.breaker.State().String(),
		Requests:  rc.requests.Load(),
		Succeeded: rc.succeeded.Load(),
		Failed:    rc.failed.Load(),
		Retried:   rc.retried.Load(),
	}
	if err := rc.breaker.LastError(); err != nil {
		st.LastError = err.Error()
	}
	return st
}

type resilientTransport struct {
	client *ResilientClient
}

func (rt *resilientTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	return rt.client.Do(req)
}

type requestIDKey struct{}

// WithRequestID tags requests issued with ctx with an X-Request-ID header.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, requestID)
}

// GetRequestID returns the request id carried by ctx.
func GetRequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}
