package order

import (
	"context"
	"errors"

	"ms-storefront/internal/models"
)

// FanOut publishes every event to each publisher in turn. One failing sink
// does not stop the others.
type FanOut []EventPublisher

func (f FanOut) PublishOrderEvent(ctx context.Context, event models.OrderEvent) error {
	var errs []error
	for _, p := range f {
		if p == nil {
			continue
		}
		if err := p.PublishOrderEvent(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
