package order

import (
	"context"
	"errors"
	"testing"

	"ms-storefront/internal/models"

	"github.com/stretchr/testify/assert"
)

type sink struct {
	got []models.OrderEvent
	err error
}

func (s *sink) PublishOrderEvent(ctx context.Context, e models.OrderEvent) error {
	s.got = append(s.got, e)
	return s.err
}

func TestFanOutDeliversToEverySink(t *testing.T) {
	broken := &sink{err: errors.New("broker down")}
	healthy := &sink{}

	err := FanOut{broken, nil, healthy}.PublishOrderEvent(context.Background(), models.OrderEvent{OrderID: "o-1"})

	assert.ErrorContains(t, err, "broker down")
	assert.Len(t, broken.got, 1)
	assert.Len(t, healthy.got, 1)
}
