// Package ratelimit bounds how fast and how widely the pipeline calls the pricing provider.
package ratelimit

import (
	"context"
	"sync"
	"time"
)

// WindowLimiter enforces per-minute, per-hour and per-day request budgets
// over sliding windows. A zero limit disables that window.
type WindowLimiter struct {
	perMinute int
	perHour   int
	perDay    int
	enabled   bool
	now       func() time.Time

	minuteWindow []time.Time
	hourWindow   []time.Time
	dayWindow    []time.Time
	mu           sync.Mutex
}

// NewWindowLimiter creates a limiter with the given budgets
func NewWindowLimiter(perMinute, perHour, perDay int, enabled bool) *WindowLimiter {
	return &WindowLimiter{
		perMinute: perMinute,
		perHour:   perHour,
		perDay:    perDay,
		enabled:   enabled,
		now:       time.Now,
	}
}

// SetClock replaces the time source used for the windows.
func (rl *WindowLimiter) SetClock(now func() time.Time) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	rl.now = now
}

// Allow records a request and reports whether it fits every budget
func (rl *WindowLimiter) Allow() bool {
	if rl == nil || !rl.enabled {
		return true
	}

	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	rl.cleanup(now)

	if exceeded(rl.minuteWindow, rl.perMinute) ||
		exceeded(rl.hourWindow, rl.perHour) ||
		exceeded(rl.dayWindow, rl.perDay) {
		return false
	}

	rl.minuteWindow = append(rl.minuteWindow, now)
	rl.hourWindow = append(rl.hourWindow, now)
	rl.dayWindow = append(rl.dayWindow, now)
	return true
}

// Wait blocks until a request fits the minute budget or ctx ends.
// It gives up immediately when the hour or day budget is spent.
func (rl *WindowLimiter) Wait(ctx context.Context) error {
	for {
		if rl.Allow() {
			return nil
		}
		if rl.longWindowsSpent() {
			return ErrBudgetExhausted
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(rl.retryIn()):
		}
	}
}

func (rl *WindowLimiter) longWindowsSpent() bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return exceeded(rl.hourWindow, rl.perHour) || exceeded(rl.dayWindow, rl.perDay)
}

// retryIn is the time until the oldest request leaves the minute window
func (rl *WindowLimiter) retryIn() time.Duration {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	if len(rl.minuteWindow) == 0 {
		return 100 * time.Millisecond
	}
	d := rl.minuteWindow[0].Add(time.Minute).Sub(rl.now())
	if d < 10*time.Millisecond {
		d = 10 * time.Millisecond
	}
	return d
}

func exceeded(window []time.Time, limit int) bool {
	return limit > 0 && len(window) >= limit
}

func (rl *WindowLimiter) cleanup(now time.Time) {
	rl.minuteWindow = filterTimes(rl.minuteWindow, now.Add(-time.Minute))
	rl.hourWindow = filterTimes(rl.hourWindow, now.Add(-time.Hour))
	rl.dayWindow = filterTimes(rl.dayWindow, now.Add(-24*time.Hour))
}

// filterTimes keeps only times after the cutoff
func filterTimes(times []time.Time, cutoff time.Time) []time.Time {
	i := 0
	for i < len(times) && !times[i].After(cutoff) {
		i++
	}
	return times[i:]
}

// Stats returns current usage of each window
func (rl *WindowLimiter) Stats() Stats {
	if rl == nil || !rl.enabled {
		return Stats{Enabled: false}
	}

	rl.mu.Lock()
	defer rl.mu.Unlock()
	rl.cleanup(rl.now())

	return Stats{
		Enabled:             true,
		RequestsLastMinute:  len(rl.minuteWindow),
		RequestsLastHour:    len(rl.hourWindow),
		RequestsLastDay:     len(rl.dayWindow),
		LimitPerMinute:      rl.perMinute,
		LimitPerHour:        rl.perHour,
		LimitPerDay:         rl.perDay,
		RemainingThisMinute: remaining(rl.perMinute, len(rl.minuteWindow)),
		RemainingThisHour:   remaining(rl.perHour, len(rl.hourWindow)),
		RemainingThisDay:    remaining(rl.perDay, len(rl.dayWindow)),
	}
}

// Stats contains rate limiter statistics
type Stats struct {
	Enabled             bool `json:"enabled"`
	RequestsLastMinute  int  `json:"requests_last_minute"`
	RequestsLastHour    int  `json:"requests_last_hour"`
	RequestsLastDay     int  `json:"requests_last_day"`
	LimitPerMinute      int  `json:"limit_per_minute"`
	LimitPerHour        int  `json:"limit_per_hour"`
	LimitPerDay         int  `json:"limit_per_day"`
	RemainingThisMinute int  `json:"remaining_this_minute"`
	RemainingThisHour   int  `json:"remaining_this_hour"`
	RemainingThisDay    int  `json:"remaining_this_day"`
}

func remaining(limit, used int) int {
	if limit <= 0 {
		return -1
	}
	return max(0, limit-used)
}
