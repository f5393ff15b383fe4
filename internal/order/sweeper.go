package order

import (
	"context"
	"fmt"
	"time"

	"ms-storefront/internal/logger"
)

type expirer interface {
	SweepExpired(ctx context.Context, limit int) (int, error)
}

// Sweeper periodically expires overdue pending orders. It is the backstop for
// reservation timers that were lost or never fired.
type Sweeper struct {
	orders   expirer
	interval time.Duration
	batch    int
	logger   *logger.Logger
}

func NewSweeper(orders expirer, interval time.Duration, batch int, log *logger.Logger) *Sweeper {
	if batch <= 0 {
		batch = 100
	}
	return &Sweeper{orders: orders, interval: interval, batch: batch, logger: log}
}

// Run sweeps once immediately, then on every tick until ctx is done.
func (s *Sweeper) Run(ctx context.Context) {
	s.logger.Info("SWEEP", fmt.Sprintf("Expiry sweeper running every %s", s.interval))
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		s.sweep(ctx)
		select {
		case <-ctx.Done():
			s.logger.Info("SWEEP", "Expiry sweeper stopped")
			return
		case <-ticker.C:
		}
	}
}

// sweep drains full batches so a backlog clears in one tick.
func (s *Sweeper) sweep(ctx context.Context) {
	for ctx.Err() == nil {
		n, err := s.orders.SweepExpired(ctx, s.batch)
		if err != nil {
			s.logger.Error("SWEEP", fmt.Sprintf("Expiry sweep failed: %v", err))
			return
		}
		if n > 0 {
			s.logger.Info("SWEEP", fmt.Sprintf("Expired %d orders", n))
		}
		if n < s.batch {
			return
		}
	}
}
