package order

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"ms-storefront/internal/logger"

	"github.com/stretchr/testify/assert"
)

type fakeExpirer struct {
	mu      sync.Mutex
	results []int
	calls   int
	err     error
}

func (f *fakeExpirer) SweepExpired(ctx context.Context, limit int) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return 0, f.err
	}
	if len(f.results) == 0 {
		return 0, nil
	}
	n := f.results[0]
	f.results = f.results[1:]
	return n, nil
}

func TestSweepDrainsFullBatches(t *testing.T) {
	f := &fakeExpirer{results: []int{10, 10, 3}}
	s := NewSweeper(f, time.Hour, 10, logger.Discard())

	s.sweep(context.Background())
	assert.Equal(t, 3, f.calls)
}

func TestSweepStopsOnError(t *testing.T) {
	f := &fakeExpirer{err: errors.New("db down")}
	s := NewSweeper(f, time.Hour, 10, logger.Discard())

	s.sweep(context.Background())
	assert.Equal(t, 1, f.calls)
}

func TestRunStopsWithContext(t *testing.T) {
	f := &fakeExpirer{}
	s := NewSweeper(f, 5*time.Millisecond, 10, logger.Discard())
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	time.Sleep(30 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	assert.GreaterOrEqual(t, f.calls, 2)
}
