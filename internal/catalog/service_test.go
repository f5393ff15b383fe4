package catalog

import (
	"context"
	"testing"
	"time"

	catalogdb "ms-storefront/internal/catalog/db"
	"ms-storefront/internal/database/dbtest"
	"ms-storefront/internal/logger"
	"ms-storefront/internal/models"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestRedis(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("Failed to create miniredis: %v", err)
	}
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		client.Close()
		mr.Close()
	})
	return client, mr
}

func setupService(t *testing.T) (*Service, *miniredis.Miniredis) {
	client, mr := setupTestRedis(t)
	store := &catalogdb.DB{Bun: dbtest.NewSQLite(t)}
	return NewService(store, NewRedisCache(client), time.Minute, logger.Discard()), mr
}

func festivalInput() models.ProductInput {
	return models.ProductInput{
		Name:      "Sunset Festival",
		EventDate: time.Date(2026, 12, 31, 19, 0, 0, 0, time.UTC),
		Location:  "Jakarta",
		TicketTypes: []models.TicketTypeInput{
			{Name: "Regular", Price: decimal.NewFromInt(100000), Stock: 100},
			{Name: "VIP", Price: decimal.NewFromInt(500000), Stock: 20},
		},
	}
}

func TestCreateProductComputesAggregates(t *testing.T) {
	svc, _ := setupService(t)
	ctx := context.Background()

	p, err := svc.Create(ctx, festivalInput())
	require.NoError(t, err)
	assert.True(t, p.IsActive)
	assert.Equal(t, 120, p.Stock)
	assert.True(t, p.Price.Equal(decimal.NewFromInt(100000)))

	got, err := svc.GetActive(ctx, p.ID)
	require.NoError(t, err)
	assert.Len(t, got.TicketTypes, 2)
}

func TestCreateProductValidation(t *testing.T) {
	svc, _ := setupService(t)
	ctx := context.Background()

	in := festivalInput()
	in.TicketTypes = append(in.TicketTypes, models.TicketTypeInput{Name: "vip", Price: decimal.NewFromInt(1), Stock: 1})
	_, err := svc.Create(ctx, in)
	assert.ErrorIs(t, err, models.ErrInvalidInput)

	in = festivalInput()
	in.TicketTypes[0].Stock = -1
	_, err = svc.Create(ctx, in)
	assert.ErrorIs(t, err, models.ErrInvalidInput)

	in = festivalInput()
	in.TicketTypes = nil
	_, err = svc.Create(ctx, in)
	assert.ErrorIs(t, err, models.ErrInvalidInput)
}

func TestListActiveIsCachedAndInvalidated(t *testing.T) {
	svc, mr := setupService(t)
	ctx := context.Background()

	p, err := svc.Create(ctx, festivalInput())
	require.NoError(t, err)

	list, err := svc.ListActive(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.True(t, mr.Exists(activeListKey))

	_, err = svc.AdjustStock(ctx, p.ID, "VIP", -5)
	require.NoError(t, err)
	assert.False(t, mr.Exists(activeListKey))

	list, err = svc.ListActive(ctx)
	require.NoError(t, err)
	assert.Equal(t, 115, list[0].Stock)

	require.NoError(t, svc.SetActive(ctx, p.ID, false))
	list, err = svc.ListActive(ctx)
	require.NoError(t, err)
	assert.Empty(t, list)

	_, err = svc.GetActive(ctx, p.ID)
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestListActiveSurvivesCacheOutage(t *testing.T) {
	svc, mr := setupService(t)
	ctx := context.Background()

	_, err := svc.Create(ctx, festivalInput())
	require.NoError(t, err)

	mr.Close()
	list, err := svc.ListActive(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestUpdateReplacesTicketTypes(t *testing.T) {
	svc, _ := setupService(t)
	ctx := context.Background()

	p, err := svc.Create(ctx, festivalInput())
	require.NoError(t, err)

	in := festivalInput()
	in.Name = "Sunset Festival 2026"
	in.TicketTypes = []models.TicketTypeInput{{Name: "Regular", Price: decimal.NewFromInt(120000), Stock: 50}}
	updated, err := svc.Update(ctx, p.ID, in)
	require.NoError(t, err)

	assert.Equal(t, "Sunset Festival 2026", updated.Name)
	assert.Len(t, updated.TicketTypes, 1)
	assert.Equal(t, 50, updated.Stock)
	assert.True(t, updated.Price.Equal(decimal.NewFromInt(120000)))
}

func TestAdjustStockRejectsZeroDelta(t *testing.T) {
	svc, _ := setupService(t)
	_, err := svc.AdjustStock(context.Background(), "p", "Regular", 0)
	assert.ErrorIs(t, err, models.ErrInvalidInput)
}
