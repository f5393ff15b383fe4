package order_test

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"ms-storefront/internal/logger"
	"ms-storefront/internal/models"
	"ms-storefront/internal/order"
	"ms-storefront/internal/order/db"
	"ms-storefront/internal/tickets"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// Mock implementations
type MockDBLayer struct {
	mock.Mock
}

func (m *MockDBLayer) InsertOrder(ctx context.Context, o *models.Order, t []*models.Ticket) error {
	args := m.Called(o, t)
	return args.Error(0)
}

func (m *MockDBLayer) GetOrder(ctx context.Context, id string) (*models.Order, error) {
	args := m.Called(id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Order), args.Error(1)
}

func (m *MockDBLayer) GetOrderByNumber(ctx context.Context, number string) (*models.Order, error) {
	args := m.Called(number)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Order), args.Error(1)
}

func (m *MockDBLayer) ListOrdersByUser(ctx context.Context, userID string) ([]*models.Order, error) {
	args := m.Called(userID)
	return args.Get(0).([]*models.Order), args.Error(1)
}

func (m *MockDBLayer) ListOrders(ctx context.Context, f models.OrderFilter) ([]*models.Order, int, error) {
	args := m.Called(f)
	return args.Get(0).([]*models.Order), args.Int(1), args.Error(2)
}

func (m *MockDBLayer) ListExpiredPending(ctx context.Context, now time.Time, limit int) ([]string, error) {
	args := m.Called(now, limit)
	return args.Get(0).([]string), args.Error(1)
}

func (m *MockDBLayer) MarkPaid(ctx context.Context, id string, meta models.PaymentMetadata, now time.Time) (*models.Order, error) {
	args := m.Called(id, meta, now)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Order), args.Error(1)
}

func (m *MockDBLayer) Finalize(ctx context.Context, t db.Transition) (*models.Order, error) {
	args := m.Called(t)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Order), args.Error(1)
}

func (m *MockDBLayer) ReserveStock(ctx context.Context, productID, ticketType string, qty int) error {
	return m.Called(productID, ticketType, qty).Error(0)
}

func (m *MockDBLayer) ReleaseStock(ctx context.Context, productID, ticketType string, qty int) error {
	return m.Called(productID, ticketType, qty).Error(0)
}

func (m *MockDBLayer) ConsumePromo(ctx context.Context, promoID string) error {
	return m.Called(promoID).Error(0)
}

func (m *MockDBLayer) ReleasePromo(ctx context.Context, promoID string) error {
	return m.Called(promoID).Error(0)
}

type staticCatalog struct {
	product *models.Product
}

func (c staticCatalog) Get(ctx context.Context, id string) (*models.Product, error) {
	if c.product == nil || c.product.ID != id {
		return nil, models.ErrNotFound
	}
	return c.product, nil
}

func (c staticCatalog) Invalidate(ctx context.Context) {}

type staticPromos struct {
	promo *models.PromoCode
	err   error
}

func (p staticPromos) ValidatePromo(ctx context.Context, code string, now time.Time) (*models.PromoCode, error) {
	return p.promo, p.err
}

var mockNow = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

func mockProduct() *models.Product {
	return &models.Product{
		ID:       "product-1",
		Name:     "Rock Fest",
		IsActive: true,
		TicketTypes: []*models.TicketType{
			{ID: "tt-1", ProductID: "product-1", Name: "Regular", Price: decimal.NewFromInt(100000), Stock: 10},
		},
	}
}

func mockPromo() *models.PromoCode {
	return &models.PromoCode{
		ID:            "promo-1",
		Code:          "DISC10",
		DiscountType:  models.DiscountPercentage,
		DiscountValue: decimal.NewFromInt(10),
		Stock:         5,
		IsActive:      true,
		ValidFrom:     mockNow.Add(-time.Hour),
		ValidUntil:    mockNow.Add(time.Hour),
	}
}

func newMockService(dbl order.DBLayer, promos order.PromoValidator, log *logger.Logger) *order.OrderService {
	svc := order.NewOrderService(order.Deps{
		DB:      dbl,
		Catalog: staticCatalog{product: mockProduct()},
		Promos:  promos,
		Tickets: tickets.NewIssuer(),
		Logger:  log,
	}, time.Hour)
	svc.SetClock(func() time.Time { return mockNow })
	return svc
}

func validBuyers(n int) []models.Buyer {
	out := make([]models.Buyer, n)
	for i := range out {
		out[i] = models.Buyer{Name: "Buyer", NIK: "3174012345678901", Address: "Jl. Merdeka 1"}
	}
	return out
}

func TestCreateOrderCompensatesInReverseOnInsertFailure(t *testing.T) {
	m := new(MockDBLayer)
	var steps []string
	m.On("ReserveStock", "product-1", "Regular", 2).Return(nil)
	m.On("ConsumePromo", "promo-1").Return(nil)
	m.On("InsertOrder", mock.Anything, mock.Anything).Return(models.Unavailable("insert order", errors.New("connection reset")))
	m.On("ReleasePromo", "promo-1").Run(func(mock.Arguments) { steps = append(steps, "promo") }).Return(nil)
	m.On("ReleaseStock", "product-1", "Regular", 2).Run(func(mock.Arguments) { steps = append(steps, "stock") }).Return(nil)

	svc := newMockService(m, staticPromos{promo: mockPromo()}, logger.Discard())
	_, err := svc.CreateOrder(context.Background(), order.CreateOrderInput{
		Actor:      models.Actor{UserID: "user-1"},
		ProductID:  "product-1",
		TicketType: "regular",
		Quantity:   2,
		PromoCode:  "disc10",
		Buyers:     validBuyers(2),
	})

	assert.ErrorIs(t, err, models.ErrStoreUnavailable)
	assert.Equal(t, []string{"promo", "stock"}, steps)
	m.AssertExpectations(t)
}

func TestCreateOrderReportsFailedCompensation(t *testing.T) {
	m := new(MockDBLayer)
	releaseErr := errors.New("release failed")
	m.On("ReserveStock", "product-1", "Regular", 1).Return(nil)
	m.On("ConsumePromo", "promo-1").Return(models.ErrPromoExhausted)
	m.On("ReleaseStock", "product-1", "Regular", 1).Return(releaseErr)

	var logs bytes.Buffer
	svc := newMockService(m, staticPromos{promo: mockPromo()}, logger.NewWithWriters(nil, &logs, logger.DEBUG))
	_, err := svc.CreateOrder(context.Background(), order.CreateOrderInput{
		Actor:      models.Actor{UserID: "user-1"},
		ProductID:  "product-1",
		TicketType: "Regular",
		Quantity:   1,
		PromoCode:  "DISC10",
		Buyers:     validBuyers(1),
	})

	assert.ErrorIs(t, err, models.ErrPromoExhausted)
	assert.ErrorIs(t, err, releaseErr)
	assert.Contains(t, logs.String(), "RECONCILE")
	m.AssertNotCalled(t, "InsertOrder", mock.Anything, mock.Anything)
}

func TestCreateOrderValidatesBeforeMutating(t *testing.T) {
	m := new(MockDBLayer)
	svc := newMockService(m, staticPromos{err: models.ErrPromoExpired}, logger.Discard())
	ctx := context.Background()
	base := order.CreateOrderInput{
		Actor:      models.Actor{UserID: "user-1"},
		ProductID:  "product-1",
		TicketType: "Regular",
		Quantity:   1,
		Buyers:     validBuyers(1),
	}

	in := base
	in.TicketType = "Backstage"
	_, err := svc.CreateOrder(ctx, in)
	assert.ErrorIs(t, err, models.ErrNotFound)

	in = base
	in.PromoCode = "OLD"
	_, err = svc.CreateOrder(ctx, in)
	assert.ErrorIs(t, err, models.ErrPromoExpired)

	in = base
	in.Quantity = 0
	in.Buyers = nil
	_, err = svc.CreateOrder(ctx, in)
	assert.ErrorIs(t, err, models.ErrInvalidInput)

	in = base
	in.Actor = models.Actor{}
	_, err = svc.CreateOrder(ctx, in)
	assert.ErrorIs(t, err, models.ErrForbidden)

	m.AssertNotCalled(t, "ReserveStock", mock.Anything, mock.Anything, mock.Anything)
}

func TestHandlePaymentOutcomeNonSuccessLeavesPending(t *testing.T) {
	m := new(MockDBLayer)
	pending := &models.Order{ID: "order-1", Status: models.OrderPending}
	m.On("GetOrder", "order-1").Return(pending, nil)
	svc := newMockService(m, staticPromos{}, logger.Discard())

	for _, outcome := range []models.PaymentOutcome{models.PaymentPending, models.PaymentFailed, models.PaymentAbandoned} {
		got, err := svc.HandlePaymentOutcome(context.Background(), "order-1", models.PaymentResult{Outcome: outcome})
		require.NoError(t, err)
		assert.Equal(t, models.OrderPending, got.Status)
	}
	m.AssertNotCalled(t, "MarkPaid", mock.Anything, mock.Anything, mock.Anything)

	_, err := svc.HandlePaymentOutcome(context.Background(), "order-1", models.PaymentResult{Outcome: "refund"})
	assert.ErrorIs(t, err, models.ErrInvalidInput)
}

func TestConfirmPaymentRequiresTransactionID(t *testing.T) {
	svc := newMockService(new(MockDBLayer), staticPromos{}, logger.Discard())
	_, err := svc.ConfirmPayment(context.Background(), "order-1", models.PaymentMetadata{Method: "card"})
	assert.ErrorIs(t, err, models.ErrInvalidInput)
}

func TestCancelOrderChecksOwnership(t *testing.T) {
	m := new(MockDBLayer)
	m.On("GetOrder", "order-1").Return(&models.Order{ID: "order-1", UserID: "owner", Status: models.OrderPending}, nil)
	svc := newMockService(m, staticPromos{}, logger.Discard())

	_, err := svc.CancelOrder(context.Background(), "order-1", models.Actor{UserID: "intruder"})
	assert.ErrorIs(t, err, models.ErrForbidden)
	m.AssertNotCalled(t, "Finalize", mock.Anything)

	_, err = svc.GetOrder(context.Background(), "order-1", models.Actor{UserID: "intruder"})
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestListOrdersClampsPaging(t *testing.T) {
	m := new(MockDBLayer)
	m.On("ListOrders", models.OrderFilter{Limit: 50}).Return([]*models.Order{}, 0, nil)
	svc := newMockService(m, staticPromos{}, logger.Discard())

	_, _, err := svc.ListOrders(context.Background(), models.OrderFilter{Limit: 5000, Offset: -3})
	require.NoError(t, err)
	m.AssertExpectations(t)
}

func TestSweepExpiredSkipsLostRaces(t *testing.T) {
	m := new(MockDBLayer)
	m.On("ListExpiredPending", mockNow, 10).Return([]string{"a", "b", "c"}, nil)
	m.On("Finalize", db.Transition{OrderID: "a", To: models.OrderExpired, Now: mockNow}).
		Return(&models.Order{ID: "a", Status: models.OrderExpired}, nil)
	m.On("Finalize", db.Transition{OrderID: "b", To: models.OrderExpired, Now: mockNow}).
		Return(&models.Order{ID: "b", Status: models.OrderPaid}, &models.StateError{OrderID: "b", Status: models.OrderPaid})
	m.On("Finalize", db.Transition{OrderID: "c", To: models.OrderExpired, Now: mockNow}).
		Return(nil, models.Unavailable("finalize order", errors.New("timeout")))

	svc := newMockService(m, staticPromos{}, logger.Discard())
	n, err := svc.SweepExpired(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}
