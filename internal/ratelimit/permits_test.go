package ratelimit

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPermitsCeiling(t *testing.T) {
	p := NewPermits(3)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release, err := p.Acquire(context.Background())
			if err != nil {
				return
			}
			defer release()
			time.Sleep(5 * time.Millisecond)
		}()
	}
	wg.Wait()

	assert.LessOrEqual(t, p.Peak(), 3)
	assert.Equal(t, 0, p.InFlight())
	assert.Equal(t, 3, p.Size())
}

func TestPermitsReleaseIsIdempotent(t *testing.T) {
	p := NewPermits(1)

	release, err := p.Acquire(context.Background())
	require.NoError(t, err)
	release()
	release()
	assert.Equal(t, 0, p.InFlight())

	release, err = p.Acquire(context.Background())
	require.NoError(t, err)
	defer release()
	assert.Equal(t, 1, p.InFlight())
}

func TestPermitsAcquireCanceled(t *testing.T) {
	p := NewPermits(1)
	release, err := p.Acquire(context.Background())
	require.NoError(t, err)
	defer release()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = p.Acquire(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNewPermitsMinimumSize(t *testing.T) {
	assert.Equal(t, 1, NewPermits(0).Size())
}
