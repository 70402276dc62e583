package provider

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"hotel-rate-monitor/internal/logging"
	"hotel-rate-monitor/internal/ratelimit"
)

const maxBodyBytes = 8 << 20

// requester performs GETs guarded by the breaker and limiter, retrying a
// temporary failure at most once.
type requester struct {
	name       string
	client     *http.Client
	breaker    *CircuitBreaker
	limiter    *ratelimit.WindowLimiter
	retryDelay time.Duration
	log        *logrus.Entry
}

func newRequester(name string, timeout, retryDelay time.Duration, breaker *CircuitBreaker, limiter *ratelimit.WindowLimiter) *requester {
	return &requester{
		name:       name,
		client:     &http.Client{Timeout: timeout},
		breaker:    breaker,
		limiter:    limiter,
		retryDelay: retryDelay,
		log:        logging.Component("provider").WithField("provider", name),
	}
}

func (r *requester) get(ctx context.Context, op, url string, decorate func(*http.Request)) ([]byte, error) {
	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		if attempt > 0 {
			r.log.WithError(lastErr).Debugf("%s: retrying once after %v", op, r.retryDelay)
			select {
			case <-ctx.Done():
				return nil, contextError(op, r.name, ctx.Err())
			case <-time.After(r.retryDelay):
			}
		}

		body, err := r.attempt(ctx, op, url, decorate)
		if err == nil {
			return body, nil
		}
		lastErr = err
		if !IsTemporary(err) || ctx.Err() != nil {
			break
		}
	}
	return nil, lastErr
}

func (r *requester) attempt(ctx context.Context, op, url string, decorate func(*http.Request)) ([]byte, error) {
	if !r.breaker.CanProceed() {
		return nil, &ProviderError{Op: op, Provider: r.name, Err: fmt.Errorf("%w: circuit breaker open", ErrUnavailable)}
	}
	if err := waitForBudget(ctx, r.limiter, op, r.name); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, &ProviderError{Op: op, Provider: r.name, Err: err}
	}
	if decorate != nil {
		decorate(req)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, contextError(op, r.name, ctx.Err())
		}
		r.breaker.RecordFailure(0)
		return nil, &ProviderError{Op: op, Provider: r.name, Err: fmt.Errorf("%w: %v", ErrUnavailable, err), temporary: true}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
		pe := statusError(op, r.name, resp.StatusCode)
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode == http.StatusForbidden || resp.StatusCode >= 500 {
			r.breaker.RecordFailure(resp.StatusCode)
		}
		return nil, pe
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, &ProviderError{Op: op, Provider: r.name, StatusCode: resp.StatusCode, Err: fmt.Errorf("%w: read body: %v", ErrBadResponse, err)}
	}
	r.breaker.RecordSuccess()
	return body, nil
}

// waitForBudget blocks until the limiter admits a call. A spent hour or day
// budget is final for this call; waiting is bounded by ctx.
func waitForBudget(ctx context.Context, limiter *ratelimit.WindowLimiter, op, name string) error {
	err := limiter.Wait(ctx)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ratelimit.ErrBudgetExhausted):
		return &ProviderError{Op: op, Provider: name, Err: fmt.Errorf("%w: %w", ErrRateLimited, err)}
	default:
		return contextError(op, name, err)
	}
}

func contextError(op, name string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return &ProviderError{Op: op, Provider: name, Err: fmt.Errorf("%w: %w", ErrTimeout, err)}
	}
	return &ProviderError{Op: op, Provider: name, Err: err}
}
