package ratelimit

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
)

// ErrBudgetExhausted is returned when the hourly or daily request budget is spent.
var ErrBudgetExhausted = errors.New("request budget exhausted")

// Permits is a fixed pool of slots shared by everything that calls the provider.
// A slot is held for the whole lifetime of one unit of work.
type Permits struct {
	sem      *semaphore.Weighted
	size     int64
	inFlight atomic.Int64
	peak     atomic.Int64
}

// NewPermits creates a pool with n slots (minimum 1)
func NewPermits(n int) *Permits {
	if n < 1 {
		n = 1
	}
	return &Permits{
		sem:  semaphore.NewWeighted(int64(n)),
		size: int64(n),
	}
}

// Acquire blocks for a slot. The returned release is safe to call more than once.
func (p *Permits) Acquire(ctx context.Context) (func(), error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	current := p.inFlight.Add(1)
	for {
		peak := p.peak.Load()
		if current <= peak || p.peak.CompareAndSwap(peak, current) {
			break
		}
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			p.inFlight.Add(-1)
			p.sem.Release(1)
		})
	}, nil
}

// Size is the pool capacity
func (p *Permits) Size() int { return int(p.size) }

// InFlight is the number of slots currently held
func (p *Permits) InFlight() int { return int(p.inFlight.Load()) }

// Peak is the highest InFlight observed since creation
func (p *Permits) Peak() int { return int(p.peak.Load()) }
