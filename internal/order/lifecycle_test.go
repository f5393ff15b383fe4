package order_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"ms-storefront/internal/catalog"
	catalogdb "ms-storefront/internal/catalog/db"
	"ms-storefront/internal/database/dbtest"
	"ms-storefront/internal/logger"
	"ms-storefront/internal/models"
	"ms-storefront/internal/order"
	orderdb "ms-storefront/internal/order/db"
	"ms-storefront/internal/promo"
	promodb "ms-storefront/internal/promo/db"
	"ms-storefront/internal/tickets"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
)

var t0 = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type recordedEvents struct {
	mu     sync.Mutex
	events []models.OrderEvent
}

func (r *recordedEvents) PublishOrderEvent(ctx context.Context, e models.OrderEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

func (r *recordedEvents) count(kind models.OrderEventType) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.events {
		if e.Type == kind {
			n++
		}
	}
	return n
}

type recordedTimers struct {
	mu        sync.Mutex
	scheduled map[string]time.Time
}

func (r *recordedTimers) Schedule(ctx context.Context, orderID string, expiry time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.scheduled[orderID] = expiry
	return nil
}

func (r *recordedTimers) Clear(ctx context.Context, orderID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.scheduled, orderID)
	return nil
}

type stack struct {
	bun     *bun.DB
	svc     *order.OrderService
	catalog *catalogdb.DB
	promos  *promodb.DB
	product *models.Product
	clock   *testClock
	events  *recordedEvents
	timers  *recordedTimers
}

func newStack(t *testing.T, bunDB *bun.DB, price int64, stock int) *stack {
	s := &stack{
		bun:     bunDB,
		catalog: &catalogdb.DB{Bun: bunDB},
		promos:  &promodb.DB{Bun: bunDB},
		clock:   &testClock{now: t0},
		events:  &recordedEvents{},
		timers:  &recordedTimers{scheduled: map[string]time.Time{}},
	}

	id := uuid.NewString()
	s.product = &models.Product{
		ID:        id,
		Name:      "Indie Weekend",
		EventDate: t0.Add(60 * 24 * time.Hour),
		IsActive:  true,
		CreatedAt: t0,
		UpdatedAt: t0,
		TicketTypes: []*models.TicketType{
			{ID: uuid.NewString(), ProductID: id, Name: "Regular", Price: decimal.NewFromInt(price), Stock: stock},
		},
	}
	require.NoError(t, s.catalog.CreateProduct(context.Background(), s.product))

	s.svc = s.serviceWithClock(s.clock.Now)
	return s
}

// serviceWithClock returns another order service over the same stores, for
// callers that need to act at a different time.
func (s *stack) serviceWithClock(now func() time.Time) *order.OrderService {
	log := logger.Discard()
	svc := order.NewOrderService(order.Deps{
		DB:      &orderdb.DB{Bun: s.bun, Logger: log},
		Catalog: catalog.NewService(s.catalog, nil, 0, log),
		Promos:  promo.NewService(s.promos, log),
		Tickets: tickets.NewIssuer(),
		Timers:  s.timers,
		Events:  s.events,
		Logger:  log,
	}, 60*time.Minute)
	svc.SetClock(now)
	return svc
}

func newSQLiteStack(t *testing.T, price int64, stock int) *stack {
	return newStack(t, dbtest.NewSQLite(t), price, stock)
}

func (s *stack) addPromo(t *testing.T, code string, kind models.DiscountType, value int64, stock int) *models.PromoCode {
	p, err := models.NewPromoCode(code, kind, decimal.NewFromInt(value), stock, t0.Add(-time.Hour), t0.Add(24*time.Hour))
	require.NoError(t, err)
	p.ID = uuid.NewString()
	p.CreatedAt, p.UpdatedAt = t0, t0
	require.NoError(t, s.promos.Create(context.Background(), p))
	return p
}

func (s *stack) stock(t *testing.T) int {
	p, err := s.catalog.GetProduct(context.Background(), s.product.ID)
	require.NoError(t, err)
	return p.FindTicketType("Regular").Stock
}

func (s *stack) promoUsed(t *testing.T, id string) int {
	p, err := s.promos.GetByID(context.Background(), id)
	require.NoError(t, err)
	return p.UsedCount
}

func (s *stack) create(userID string, qty int, code string) (*models.Order, error) {
	return s.svc.CreateOrder(context.Background(), order.CreateOrderInput{
		Actor:      models.Actor{UserID: userID, Email: userID + "@example.com"},
		ProductID:  s.product.ID,
		TicketType: "Regular",
		Quantity:   qty,
		PromoCode:  code,
		Buyers:     validBuyers(qty),
	})
}

func TestCreateOrderIssuesOneTicketPerSeat(t *testing.T) {
	s := newSQLiteStack(t, 100000, 10)

	o, err := s.create("user-1", 3, "")
	require.NoError(t, err)

	assert.Equal(t, models.OrderPending, o.Status)
	assert.Equal(t, t0.Add(60*time.Minute), o.PaymentExpiry)
	assert.Regexp(t, `^ORD-20260301-[A-Z2-7]{8}$`, o.OrderNumber)
	require.Len(t, o.Tickets, 3)

	sum := decimal.Zero
	for _, tk := range o.Tickets {
		sum = sum.Add(tk.Price)
	}
	assert.True(t, sum.Equal(o.Subtotal))
	assert.True(t, o.Subtotal.Equal(decimal.NewFromInt(300000)))
	assert.True(t, o.TotalAmount.Equal(o.Subtotal))
	assert.Equal(t, 7, s.stock(t))

	stored, err := s.svc.GetOrder(context.Background(), o.ID, models.Actor{UserID: "user-1"})
	require.NoError(t, err)
	assert.Len(t, stored.Tickets, 3)

	assert.Contains(t, s.timers.scheduled, o.ID)
	assert.Equal(t, 1, s.events.count(models.EventOrderCreated))
	assert.Equal(t, 60*time.Minute, s.svc.RemainingTime(o))
}

func TestPercentagePromo(t *testing.T) {
	s := newSQLiteStack(t, 100000, 10)
	p := s.addPromo(t, "DISC10", models.DiscountPercentage, 10, 5)

	o, err := s.create("user-1", 1, "disc10")
	require.NoError(t, err)

	assert.True(t, o.DiscountAmount.Equal(decimal.NewFromInt(10000)))
	assert.True(t, o.TotalAmount.Equal(decimal.NewFromInt(90000)))
	require.NotNil(t, o.PromoCodeID)
	assert.Equal(t, 1, s.promoUsed(t, p.ID))
}

func TestFixedPromoNeverGoesNegative(t *testing.T) {
	s := newSQLiteStack(t, 30000, 10)
	s.addPromo(t, "FLAT50K", models.DiscountFixed, 50000, 5)

	o, err := s.create("user-1", 1, "FLAT50K")
	require.NoError(t, err)

	assert.True(t, o.DiscountAmount.Equal(decimal.NewFromInt(30000)))
	assert.True(t, o.TotalAmount.IsZero())
}

func TestExhaustedPromoRejectsWithoutTakingStock(t *testing.T) {
	s := newSQLiteStack(t, 100000, 10)
	s.addPromo(t, "ONCE", models.DiscountPercentage, 50, 1)

	_, err := s.create("user-1", 1, "ONCE")
	require.NoError(t, err)

	_, err = s.create("user-2", 1, "ONCE")
	assert.ErrorIs(t, err, models.ErrPromoExhausted)
	assert.Equal(t, 9, s.stock(t))

	_, err = s.create("user-2", 1, "NOSUCH")
	assert.ErrorIs(t, err, models.ErrPromoNotFound)
}

func TestInvalidNIKIsRejectedWithoutMutation(t *testing.T) {
	s := newSQLiteStack(t, 100000, 10)
	ctx := context.Background()

	for _, nik := range []string{"317401234567890", "31740123456789012", "31740123456789AB"} {
		buyers := validBuyers(2)
		buyers[1].NIK = nik
		_, err := s.svc.CreateOrder(ctx, order.CreateOrderInput{
			Actor:      models.Actor{UserID: "user-1"},
			ProductID:  s.product.ID,
			TicketType: "Regular",
			Quantity:   2,
			Buyers:     buyers,
		})
		require.ErrorIs(t, err, models.ErrInvalidBuyerData, nik)

		var be *models.BuyerError
		require.True(t, errors.As(err, &be))
		assert.Equal(t, 1, be.Index)
		assert.Equal(t, "nik", be.Field)
	}

	assert.Equal(t, 10, s.stock(t))
	orders, total, err := s.svc.ListOrders(ctx, models.OrderFilter{})
	require.NoError(t, err)
	assert.Zero(t, total)
	assert.Empty(t, orders)
}

func TestConfirmPaymentIsIdempotent(t *testing.T) {
	s := newSQLiteStack(t, 100000, 10)
	ctx := context.Background()
	o, err := s.create("user-1", 2, "")
	require.NoError(t, err)

	s.clock.Advance(10 * time.Minute)
	meta := models.PaymentMetadata{Method: "bank_transfer", TransactionID: "txn-123"}
	paid, err := s.svc.ConfirmPayment(ctx, o.ID, meta)
	require.NoError(t, err)
	assert.Equal(t, models.OrderPaid, paid.Status)
	assert.NotContains(t, s.timers.scheduled, o.ID)

	again, err := s.svc.ConfirmPayment(ctx, o.ID, meta)
	require.NoError(t, err)
	assert.Equal(t, models.OrderPaid, again.Status)
	assert.Equal(t, 1, s.events.count(models.EventOrderPaid))

	_, err = s.svc.ConfirmPayment(ctx, o.ID, models.PaymentMetadata{TransactionID: "txn-other"})
	assert.ErrorIs(t, err, models.ErrOrderNotPending)
	assert.Equal(t, 8, s.stock(t))
}

func TestPaymentAfterDeadlineExpiresOrder(t *testing.T) {
	s := newSQLiteStack(t, 100000, 10)
	ctx := context.Background()
	p := s.addPromo(t, "DISC10", models.DiscountPercentage, 10, 5)
	o, err := s.create("user-1", 2, "DISC10")
	require.NoError(t, err)

	s.clock.Advance(3601 * time.Second)
	_, err = s.svc.ConfirmPayment(ctx, o.ID, models.PaymentMetadata{Method: "card", TransactionID: "late"})
	assert.ErrorIs(t, err, models.ErrOrderNotPending)

	got, err := s.svc.GetOrder(ctx, o.ID, models.Actor{UserID: "user-1"})
	require.NoError(t, err)
	assert.Equal(t, models.OrderExpired, got.Status)
	assert.Empty(t, got.PaymentTxID)
	assert.Equal(t, 10, s.stock(t))
	assert.Equal(t, 0, s.promoUsed(t, p.ID))
	assert.Zero(t, s.svc.RemainingTime(got))
}

func TestCancelOrderRoundTrip(t *testing.T) {
	s := newSQLiteStack(t, 100000, 10)
	ctx := context.Background()
	p := s.addPromo(t, "DISC10", models.DiscountPercentage, 10, 5)
	owner := models.Actor{UserID: "user-1"}

	o, err := s.create("user-1", 4, "DISC10")
	require.NoError(t, err)
	assert.Equal(t, 6, s.stock(t))

	_, err = s.svc.CancelOrder(ctx, o.ID, models.Actor{UserID: "user-2"})
	assert.ErrorIs(t, err, models.ErrForbidden)

	cancelled, err := s.svc.CancelOrder(ctx, o.ID, owner)
	require.NoError(t, err)
	assert.Equal(t, models.OrderCancelled, cancelled.Status)
	assert.Equal(t, 10, s.stock(t))
	assert.Equal(t, 0, s.promoUsed(t, p.ID))

	_, err = s.svc.CancelOrder(ctx, o.ID, owner)
	assert.ErrorIs(t, err, models.ErrOrderAlreadyCancelled)
	assert.Equal(t, 10, s.stock(t))
	assert.Equal(t, 1, s.events.count(models.EventOrderCancelled))
}

func TestCancelAfterPaidIsRejected(t *testing.T) {
	s := newSQLiteStack(t, 100000, 10)
	ctx := context.Background()
	o, err := s.create("user-1", 1, "")
	require.NoError(t, err)
	_, err = s.svc.ConfirmPayment(ctx, o.ID, models.PaymentMetadata{TransactionID: "txn"})
	require.NoError(t, err)

	_, err = s.svc.CancelOrder(ctx, o.ID, models.Actor{UserID: "admin", Role: models.RoleAdmin})
	assert.ErrorIs(t, err, models.ErrOrderNotPending)
	assert.ErrorIs(t, err, models.ErrInvalidStateTransition)
	assert.NotErrorIs(t, err, models.ErrOrderAlreadyCancelled)
	assert.Equal(t, 9, s.stock(t))
}

func TestDoubleExpireChangesCountersOnce(t *testing.T) {
	s := newSQLiteStack(t, 100000, 10)
	ctx := context.Background()
	o, err := s.create("user-1", 3, "")
	require.NoError(t, err)

	_, err = s.svc.ExpireOrder(ctx, o.ID)
	assert.ErrorIs(t, err, models.ErrOrderNotExpired)

	s.clock.Advance(61 * time.Minute)
	var wg sync.WaitGroup
	errs := make([]error, 4)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = s.svc.ExpireOrder(ctx, o.ID)
		}(i)
	}
	wg.Wait()

	ok := 0
	for _, err := range errs {
		if err == nil {
			ok++
		} else {
			assert.ErrorIs(t, err, models.ErrOrderNotPending)
		}
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, 10, s.stock(t))
	assert.Equal(t, 1, s.events.count(models.EventOrderExpired))

	s.svc.OnReservationExpired(ctx, o.ID)
	assert.Equal(t, 10, s.stock(t))
}

func TestSweepExpiredReclaimsOverdueOrders(t *testing.T) {
	s := newSQLiteStack(t, 100000, 10)
	ctx := context.Background()

	first, err := s.create("user-1", 2, "")
	require.NoError(t, err)
	s.clock.Advance(30 * time.Minute)
	_, err = s.create("user-2", 3, "")
	require.NoError(t, err)
	assert.Equal(t, 5, s.stock(t))

	s.clock.Advance(31 * time.Minute)
	n, err := s.svc.SweepExpired(ctx, 100)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, 7, s.stock(t))

	got, err := s.svc.GetOrder(ctx, first.ID, models.Actor{UserID: "admin", Role: models.RoleAdmin})
	require.NoError(t, err)
	assert.Equal(t, models.OrderExpired, got.Status)

	s.clock.Advance(30 * time.Minute)
	n, err = s.svc.SweepExpired(ctx, 100)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, 10, s.stock(t))
}

func TestReserveRollsBackWhenAggregatesFail(t *testing.T) {
	s := newSQLiteStack(t, 100000, 10)
	ctx := context.Background()
	_, err := s.bun.ExecContext(ctx, `CREATE TRIGGER products_frozen BEFORE UPDATE ON products
		BEGIN SELECT RAISE(ABORT, 'products frozen'); END`)
	require.NoError(t, err)

	_, err = s.create("user-1", 3, "")
	assert.ErrorIs(t, err, models.ErrStoreUnavailable)
	assert.Equal(t, 10, s.stock(t))

	_, total, err := s.svc.ListOrders(ctx, models.OrderFilter{})
	require.NoError(t, err)
	assert.Zero(t, total)
}

func TestReleaseSurvivesRemovedTier(t *testing.T) {
	s := newSQLiteStack(t, 100000, 10)
	ctx := context.Background()
	p := s.addPromo(t, "DISC10", models.DiscountPercentage, 10, 5)

	cancelled, err := s.create("user-1", 2, "DISC10")
	require.NoError(t, err)
	overdue, err := s.create("user-2", 1, "")
	require.NoError(t, err)

	_, err = s.bun.NewDelete().
		Model((*models.TicketType)(nil)).
		Where("product_id = ?", s.product.ID).
		Where("name = ?", "Regular").
		Exec(ctx)
	require.NoError(t, err)

	got, err := s.svc.CancelOrder(ctx, cancelled.ID, models.Actor{UserID: "user-1"})
	require.NoError(t, err)
	assert.Equal(t, models.OrderCancelled, got.Status)
	assert.Equal(t, 0, s.promoUsed(t, p.ID))

	s.clock.Advance(61 * time.Minute)
	n, err := s.svc.SweepExpired(ctx, 100)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err = s.svc.GetOrder(ctx, overdue.ID, models.Actor{UserID: "user-2"})
	require.NoError(t, err)
	assert.Equal(t, models.OrderExpired, got.Status)

	n, err = s.svc.SweepExpired(ctx, 100)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestCancelRacingConfirmHasOneWinner(t *testing.T) {
	assertCancelConfirmRace(t, newSQLiteStack(t, 100000, 20), 10)
}

func TestExpireRacingConfirmHasOneWinner(t *testing.T) {
	assertExpireConfirmRace(t, newSQLiteStack(t, 100000, 20), 10)
}

// assertCancelConfirmRace runs a cancel against a payment for each of rounds
// fresh orders and checks that exactly one side wins every time.
func assertCancelConfirmRace(t *testing.T, s *stack, rounds int) {
	t.Helper()
	ctx := context.Background()
	p := s.addPromo(t, "RACE", models.DiscountPercentage, 10, rounds)
	start := s.stock(t)
	owner := models.Actor{UserID: "user-1"}

	paid := 0
	for i := 0; i < rounds; i++ {
		o, err := s.create(owner.UserID, 1, "RACE")
		require.NoError(t, err)

		var wg sync.WaitGroup
		var cancelErr, confirmErr error
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, cancelErr = s.svc.CancelOrder(ctx, o.ID, owner)
		}()
		go func() {
			defer wg.Done()
			_, confirmErr = s.svc.ConfirmPayment(ctx, o.ID, models.PaymentMetadata{Method: "card", TransactionID: "txn-" + o.ID})
		}()
		wg.Wait()

		got, err := s.svc.GetOrder(ctx, o.ID, owner)
		require.NoError(t, err)
		switch {
		case cancelErr == nil:
			assert.ErrorIs(t, confirmErr, models.ErrOrderNotPending)
			assert.Equal(t, models.OrderCancelled, got.Status)
		case confirmErr == nil:
			assert.ErrorIs(t, cancelErr, models.ErrOrderNotPending)
			assert.Equal(t, models.OrderPaid, got.Status)
			paid++
		default:
			t.Fatalf("order %s has no winner: cancel=%v confirm=%v", o.ID, cancelErr, confirmErr)
		}
	}

	assert.Equal(t, start-paid, s.stock(t))
	assert.Equal(t, paid, s.promoUsed(t, p.ID))
	assert.Equal(t, paid, s.events.count(models.EventOrderPaid))
	assert.Equal(t, rounds-paid, s.events.count(models.EventOrderCancelled))
}

// assertExpireConfirmRace pays inside the window while a second service,
// already past the deadline, expires the same order.
func assertExpireConfirmRace(t *testing.T, s *stack, rounds int) {
	t.Helper()
	ctx := context.Background()
	p := s.addPromo(t, "RACE", models.DiscountPercentage, 10, rounds)
	start := s.stock(t)

	ids := make([]string, rounds)
	for i := range ids {
		o, err := s.create("user-1", 1, "RACE")
		require.NoError(t, err)
		ids[i] = o.ID
	}

	payer := s.serviceWithClock(func() time.Time { return t0.Add(59 * time.Minute) })
	expirer := s.serviceWithClock(func() time.Time { return t0.Add(61 * time.Minute) })

	paid := 0
	for _, id := range ids {
		var wg sync.WaitGroup
		var expireErr, confirmErr error
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, expireErr = expirer.ExpireOrder(ctx, id)
		}()
		go func() {
			defer wg.Done()
			_, confirmErr = payer.ConfirmPayment(ctx, id, models.PaymentMetadata{Method: "card", TransactionID: "txn-" + id})
		}()
		wg.Wait()

		got, err := s.svc.GetOrder(ctx, id, models.Actor{UserID: "user-1"})
		require.NoError(t, err)
		switch {
		case expireErr == nil:
			assert.ErrorIs(t, confirmErr, models.ErrOrderNotPending)
			assert.Equal(t, models.OrderExpired, got.Status)
		case confirmErr == nil:
			assert.ErrorIs(t, expireErr, models.ErrOrderNotPending)
			assert.Equal(t, models.OrderPaid, got.Status)
			paid++
		default:
			t.Fatalf("order %s has no winner: expire=%v confirm=%v", id, expireErr, confirmErr)
		}
	}

	assert.Equal(t, start-paid, s.stock(t))
	assert.Equal(t, paid, s.promoUsed(t, p.ID))
	assert.Equal(t, rounds-paid, s.events.count(models.EventOrderExpired))
}

func TestConcurrentCreatesNeverOversell(t *testing.T) {
	s := newSQLiteStack(t, 100000, 5)
	assertNoOversell(t, s, 12, 5)
}

// assertNoOversell races n single-seat orders against stock k.
func assertNoOversell(t *testing.T, s *stack, n, k int) {
	t.Helper()
	var wg sync.WaitGroup
	var mu sync.Mutex
	wins, soldOut := 0, 0
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.create(uuid.NewString(), 1, "")
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				wins++
			case errors.Is(err, models.ErrInsufficientStock):
				soldOut++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, k, wins)
	assert.Equal(t, n-k, soldOut)
	assert.Equal(t, 0, s.stock(t))
}

func TestOrderVisibility(t *testing.T) {
	s := newSQLiteStack(t, 100000, 10)
	ctx := context.Background()
	o, err := s.create("user-1", 1, "")
	require.NoError(t, err)

	_, err = s.svc.GetOrderByNumber(ctx, o.OrderNumber, models.Actor{UserID: "user-2"})
	assert.ErrorIs(t, err, models.ErrNotFound)

	got, err := s.svc.GetOrderByNumber(ctx, o.OrderNumber, models.Actor{UserID: "user-1"})
	require.NoError(t, err)
	assert.Equal(t, o.ID, got.ID)

	mine, err := s.svc.ListOrdersByUser(ctx, "user-1")
	require.NoError(t, err)
	assert.Len(t, mine, 1)
}
