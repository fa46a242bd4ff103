package infrastructure

import (
	"context"
	"errors"
	"net"
	"net/url"
	"sort"
	"sync"
	"time"

	"addash/internal/domain"
	"addash/pkg/logger"
	"addash/pkg/metrics"
)

// Transport executes one logical request against the query service with
// exponential-backoff retry, publishing connection health to subscribers.
//
// Calls are independent: two simultaneous identical requests both execute
// and both retry on their own. There is no request coalescing.
type Transport struct {
	maxAttempts int
	baseDelay   time.Duration
	maxDelay    time.Duration
	sleep       func(ctx context.Context, d time.Duration) error

	mutex       sync.Mutex
	status      domain.ConnectionStatus
	subscribers map[int]func(domain.ConnectionStatus)
	nextSubID   int

	logger  *logger.Logger
	metrics *metrics.Metrics
}

// TransportOption customizes a Transport.
type TransportOption func(*Transport)

// WithSleeper replaces the backoff sleep, for tests.
func WithSleeper(sleep func(ctx context.Context, d time.Duration) error) TransportOption {
	return func(t *Transport) { t.sleep = sleep }
}

// creates a new transport
func NewTransport(maxAttempts int, baseDelay, maxDelay time.Duration, logger *logger.Logger, metrics *metrics.Metrics, opts ...TransportOption) *Transport {
	t := &Transport{
		maxAttempts: maxAttempts,
		baseDelay:   baseDelay,
		maxDelay:    maxDelay,
		sleep:       sleepContext,
		status:      domain.StatusConnected,
		subscribers: make(map[int]func(domain.ConnectionStatus)),
		logger:      logger,
		metrics:     metrics,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Backoff returns the delay before retry attempt n (zero-indexed):
// min(baseDelay * 2^n, maxDelay). No jitter.
func (t *Transport) Backoff(attempt int) time.Duration {
	delay := t.baseDelay << uint(attempt)
	if delay > t.maxDelay || delay <= 0 {
		delay = t.maxDelay
	}
	return delay
}

// Retryable classifies a failure as transient. Network-level errors,
// timeouts, HTTP 5xx, 408 and 429 are retried; authentication failures
// and the remaining 4xx propagate on the first attempt.
func Retryable(err error) bool {
	if errors.Is(err, domain.ErrNotAuthenticated) {
		return false
	}

	var statusErr *domain.StatusError
	if errors.As(err, &statusErr) {
		return statusErr.Retryable()
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return true
	}

	// unknown failures are treated as network-level
	return true
}

// Do runs call with up to maxAttempts attempts. On any success the status
// resets to connected; on exhausting the budget with only retryable
// failures the status settles at failed and the last error is returned.
// Non-retryable failures propagate immediately without flipping the status
// to retrying.
func (t *Transport) Do(ctx context.Context, name string, call func(ctx context.Context) error) error {
	start := time.Now()
	defer func() {
		t.metrics.RecordTransportDuration(name, time.Since(start))
	}()

	var lastErr error

	for attempt := 0; attempt < t.maxAttempts; attempt++ {
		err := call(ctx)
		if err == nil {
			t.metrics.RecordTransportAttempt(name, "success")
			t.setStatus(domain.StatusConnected)
			return nil
		}

		lastErr = err

		if !Retryable(err) {
			t.metrics.RecordTransportAttempt(name, "terminal")
			t.logger.WithError(err).WithField("request", name).Warn("Non-retryable query failure")
			return err
		}

		t.metrics.RecordTransportAttempt(name, "retryable")

		if attempt == t.maxAttempts-1 {
			break
		}

		t.setStatus(domain.StatusRetrying)

		delay := t.Backoff(attempt)
		t.logger.WithError(err).WithFields(map[string]any{
			"request": name,
			"attempt": attempt + 1,
			"delay":   delay,
		}).Warn("Query attempt failed, backing off")
		t.metrics.RecordTransportRetry(name)

		if sleepErr := t.sleep(ctx, delay); sleepErr != nil {
			t.setStatus(domain.StatusFailed)
			return sleepErr
		}
	}

	t.setStatus(domain.StatusFailed)
	t.logger.WithError(lastErr).WithFields(map[string]any{
		"request":  name,
		"attempts": t.maxAttempts,
	}).Error("Query retry budget exhausted")

	return lastErr
}

// Status returns the current connection status.
func (t *Transport) Status() domain.ConnectionStatus {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	return t.status
}

// Subscribe registers a callback invoked synchronously, in subscription
// order, on every status transition. The returned function unsubscribes.
// Callbacks run inline with the transition and must not block.
func (t *Transport) Subscribe(fn func(domain.ConnectionStatus)) func() {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	id := t.nextSubID
	t.nextSubID++
	t.subscribers[id] = fn

	return func() {
		t.mutex.Lock()
		defer t.mutex.Unlock()
		delete(t.subscribers, id)
	}
}

// setStatus transitions the state machine, broadcasting only on change so
// a retry episode emits a single retrying notification.
func (t *Transport) setStatus(status domain.ConnectionStatus) {
	t.mutex.Lock()
	if t.status == status {
		t.mutex.Unlock()
		return
	}
	t.status = status

	ids := make([]int, 0, len(t.subscribers))
	for id := range t.subscribers {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	callbacks := make([]func(domain.ConnectionStatus), 0, len(ids))
	for _, id := range ids {
		callbacks = append(callbacks, t.subscribers[id])
	}
	t.mutex.Unlock()

	t.metrics.SetConnectionStatus(statusValue(status))

	for _, fn := range callbacks {
		fn(status)
	}
}

func statusValue(status domain.ConnectionStatus) float64 {
	switch status {
	case domain.StatusRetrying:
		return 1
	case domain.StatusFailed:
		return 2
	default:
		return 0
	}
}
