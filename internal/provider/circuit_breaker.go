package provider

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"hotel-rate-monitor/internal/logging"
)

// CircuitBreaker stops calling a provider that keeps refusing us
type CircuitBreaker struct {
	failureThreshold int
	resetTimeout     time.Duration
	now              func() time.Time
	log              *logrus.Entry

	failures            int
	totalRequests       int
	consecutiveFailures int
	isOpen              bool
	lastFailureTime     time.Time

	mutex sync.Mutex
}

// NewCircuitBreaker creates a breaker that opens after failureThreshold
// consecutive failures and half-opens after resetTimeout.
func NewCircuitBreaker(name string, failureThreshold int, resetTimeout time.Duration) *CircuitBreaker {
	if failureThreshold < 1 {
		failureThreshold = 1
	}
	return &CircuitBreaker{
		failureThreshold: failureThreshold,
		resetTimeout:     resetTimeout,
		now:              time.Now,
		log:              logging.Component("circuit_breaker").WithField("provider", name),
	}
}

// RecordSuccess records a successful request
func (cb *CircuitBreaker) RecordSuccess() {
	if cb == nil {
		return
	}
	cb.mutex.Lock()
	defer cb.mutex.Unlock()

	cb.totalRequests++
	cb.consecutiveFailures = 0
}

// RecordFailure records a refused request (429, 403, 5xx or a network error as 0)
func (cb *CircuitBreaker) RecordFailure(statusCode int) {
	if cb == nil {
		return
	}
	cb.mutex.Lock()
	defer cb.mutex.Unlock()

	cb.failures++
	cb.consecutiveFailures++
	cb.totalRequests++
	cb.lastFailureTime = cb.now()

	if cb.consecutiveFailures >= cb.failureThreshold {
		cb.open("%d consecutive failures (last status %d)", cb.consecutiveFailures, statusCode)
		return
	}

	// failure rate over a 20 request window
	if cb.totalRequests >= 20 {
		failureRate := float64(cb.failures) / float64(cb.totalRequests)
		if failureRate >= 0.40 {
			cb.open("failure rate %.1f%% (%d/%d)", failureRate*100, cb.failures, cb.totalRequests)
		}
	}
}

func (cb *CircuitBreaker) open(format string, args ...interface{}) {
	if !cb.isOpen {
		cb.log.Warnf("Circuit breaker open: "+format+"; pausing for %v", append(args, cb.resetTimeout)...)
	}
	cb.isOpen = true
}

// CanProceed reports whether requests are allowed, half-opening after the reset timeout
func (cb *CircuitBreaker) CanProceed() bool {
	if cb == nil {
		return true
	}
	cb.mutex.Lock()
	defer cb.mutex.Unlock()

	if !cb.isOpen {
		return true
	}

	if cb.now().Sub(cb.lastFailureTime) > cb.resetTimeout {
		cb.log.Infof("Circuit breaker half-open after %v", cb.resetTimeout)
		cb.isOpen = false
		cb.failures = 0
		cb.totalRequests = 0
		cb.consecutiveFailures = 0
		return true
	}
	return false
}

// Status is a snapshot of breaker counters
type Status struct {
	Open          bool `json:"open"`
	Failures      int  `json:"failures"`
	TotalRequests int  `json:"total_requests"`
}

// GetStatus returns current circuit breaker status
func (cb *CircuitBreaker) GetStatus() Status {
	if cb == nil {
		return Status{}
	}
	cb.mutex.Lock()
	defer cb.mutex.Unlock()
	return Status{Open: cb.isOpen, Failures: cb.failures, TotalRequests: cb.totalRequests}
}
