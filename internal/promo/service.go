package promo

import (
	"context"
	"fmt"
	"strings"
	"time"

	"ms-storefront/internal/logger"
	"ms-storefront/internal/models"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type Store interface {
	GetByCode(ctx context.Context, code string) (*models.PromoCode, error)
	GetByID(ctx context.Context, id string) (*models.PromoCode, error)
	List(ctx context.Context) ([]*models.PromoCode, error)
	Create(ctx context.Context, p *models.PromoCode) error
	Update(ctx context.Context, p *models.PromoCode) error
	Delete(ctx context.Context, id string) error
}

type Service struct {
	store  Store
	logger *logger.Logger
	now    func() time.Time
}

func NewService(store Store, log *logger.Logger) *Service {
	return &Service{
		store:  store,
		logger: log,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// ValidatePromo checks that code is redeemable at now. Passing validation does
// not reserve a redemption; the consume step can still report exhaustion.
func (s *Service) ValidatePromo(ctx context.Context, code string, now time.Time) (*models.PromoCode, error) {
	if strings.TrimSpace(code) == "" {
		return nil, models.ErrPromoNotFound
	}
	p, err := s.store.GetByCode(ctx, code)
	if err != nil {
		return nil, err
	}
	if err := p.Usable(now); err != nil {
		return nil, fmt.Errorf("promo %s: %w", p.Code, err)
	}
	return p, nil
}

// QuotePromo prices a would-be purchase for the checkout preview.
func (s *Service) QuotePromo(ctx context.Context, code string, subtotal decimal.Decimal) (*Quote, error) {
	if subtotal.IsNegative() {
		return nil, fmt.Errorf("%w: subtotal must not be negative", models.ErrInvalidInput)
	}
	p, err := s.ValidatePromo(ctx, code, s.now())
	if err != nil {
		return nil, err
	}
	return quoteFor(p, subtotal)
}

// ---------------- ADMIN ----------------

func (s *Service) List(ctx context.Context) ([]*models.PromoCode, error) {
	return s.store.List(ctx)
}

func (s *Service) Get(ctx context.Context, id string) (*models.PromoCode, error) {
	return s.store.GetByID(ctx, id)
}

func (s *Service) Create(ctx context.Context, in models.PromoInput) (*models.PromoCode, error) {
	p, err := models.NewPromoCode(in.Code, in.DiscountType, in.DiscountValue, in.Stock, in.ValidFrom, in.ValidUntil)
	if err != nil {
		return nil, err
	}
	if in.IsActive != nil {
		p.IsActive = *in.IsActive
	}
	now := s.now()
	p.ID = uuid.NewString()
	p.CreatedAt = now
	p.UpdatedAt = now

	if err := s.store.Create(ctx, p); err != nil {
		return nil, err
	}
	s.logger.Info("PROMO", fmt.Sprintf("Created promo %s (%s %s, stock %d)", p.Code, p.DiscountType, p.DiscountValue, p.Stock))
	return p, nil
}

// Update edits a promo in place. The code itself is immutable.
func (s *Service) Update(ctx context.Context, id string, in models.PromoInput) (*models.PromoCode, error) {
	p, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	p.DiscountType = in.DiscountType
	p.DiscountValue = in.DiscountValue
	p.Stock = in.Stock
	p.ValidFrom = in.ValidFrom.UTC()
	p.ValidUntil = in.ValidUntil.UTC()
	if in.IsActive != nil {
		p.IsActive = *in.IsActive
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if err := s.store.Update(ctx, p); err != nil {
		return nil, err
	}
	s.logger.Info("PROMO", fmt.Sprintf("Updated promo %s", p.Code))
	return p, nil
}

func (s *Service) Deactivate(ctx context.Context, id string) (*models.PromoCode, error) {
	p, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	p.IsActive = false
	if err := s.store.Update(ctx, p); err != nil {
		return nil, err
	}
	s.logger.Info("PROMO", fmt.Sprintf("Deactivated promo %s", p.Code))
	return p, nil
}

func (s *Service) Delete(ctx context.Context, id string) error {
	if err := s.store.Delete(ctx, id); err != nil {
		return err
	}
	s.logger.Info("PROMO", fmt.Sprintf("Deleted promo %s", id))
	return nil
}
