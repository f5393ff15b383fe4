package db_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"ms-storefront/internal/database/dbtest"
	"ms-storefront/internal/models"
	promodb "ms-storefront/internal/promo/db"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newPromo(t *testing.T, code string, stock int) *models.PromoCode {
	now := time.Now().UTC()
	p, err := models.NewPromoCode(code, models.DiscountPercentage, decimal.NewFromInt(10), stock, now.Add(-time.Hour), now.Add(time.Hour))
	require.NoError(t, err)
	p.ID = uuid.NewString()
	p.CreatedAt = now
	p.UpdatedAt = now
	return p
}

func TestGetByCodeIsCaseInsensitive(t *testing.T) {
	store := &promodb.DB{Bun: dbtest.NewSQLite(t)}
	ctx := context.Background()

	require.NoError(t, store.Create(ctx, newPromo(t, "disc10", 5)))

	p, err := store.GetByCode(ctx, "Disc10")
	require.NoError(t, err)
	assert.Equal(t, "DISC10", p.Code)

	_, err = store.GetByCode(ctx, "NOPE")
	assert.ErrorIs(t, err, models.ErrPromoNotFound)

	err = store.Create(ctx, newPromo(t, "DISC10", 1))
	assert.ErrorIs(t, err, models.ErrInvalidInput)
}

func TestConsumeNeverExceedsStock(t *testing.T) {
	bunDB := dbtest.NewSQLite(t)
	store := &promodb.DB{Bun: bunDB}
	ctx := context.Background()

	p := newPromo(t, "LIMITED", 3)
	require.NoError(t, store.Create(ctx, p))

	var wins int32
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := promodb.Consume(ctx, bunDB, p.ID); err == nil {
				atomic.AddInt32(&wins, 1)
			} else {
				assert.ErrorIs(t, err, models.ErrPromoExhausted)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(3), wins)
	got, err := store.GetByID(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, got.UsedCount)
}

func TestReleaseFloorsAtZero(t *testing.T) {
	bunDB := dbtest.NewSQLite(t)
	store := &promodb.DB{Bun: bunDB}
	ctx := context.Background()

	p := newPromo(t, "ONCE", 1)
	require.NoError(t, store.Create(ctx, p))

	require.NoError(t, promodb.Consume(ctx, bunDB, p.ID))
	require.NoError(t, promodb.Release(ctx, bunDB, p.ID))
	require.NoError(t, promodb.Release(ctx, bunDB, p.ID))

	got, err := store.GetByID(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, got.UsedCount)
}

func TestUpdateAndDelete(t *testing.T) {
	bunDB := dbtest.NewSQLite(t)
	store := &promodb.DB{Bun: bunDB}
	ctx := context.Background()

	p := newPromo(t, "EDIT", 5)
	require.NoError(t, store.Create(ctx, p))
	require.NoError(t, promodb.Consume(ctx, bunDB, p.ID))
	require.NoError(t, promodb.Consume(ctx, bunDB, p.ID))

	p.Stock = 1
	assert.ErrorIs(t, store.Update(ctx, p), models.ErrInvalidInput)

	p.Stock = 2
	p.IsActive = false
	require.NoError(t, store.Update(ctx, p))

	assert.ErrorIs(t, store.Delete(ctx, p.ID), models.ErrInUse)
	assert.ErrorIs(t, store.Delete(ctx, "missing"), models.ErrNotFound)

	fresh := newPromo(t, "FRESH", 5)
	require.NoError(t, store.Create(ctx, fresh))
	require.NoError(t, store.Delete(ctx, fresh.ID))

	list, err := store.List(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestConcurrentCreateOfSameCode(t *testing.T) {
	store := &promodb.DB{Bun: dbtest.NewSQLite(t)}
	ctx := context.Background()

	var wg sync.WaitGroup
	var created int32
	promos := make([]*models.PromoCode, 8)
	for i := range promos {
		promos[i] = newPromo(t, "LAUNCH", 5)
	}
	errs := make([]error, len(promos))
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = store.Create(ctx, promos[i])
			if errs[i] == nil {
				atomic.AddInt32(&created, 1)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), created)
	for _, err := range errs {
		if err != nil {
			assert.ErrorIs(t, err, models.ErrInvalidInput)
			assert.NotErrorIs(t, err, models.ErrStoreUnavailable)
		}
	}
}
