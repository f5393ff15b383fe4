package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"ms-storefront/internal/logger"
	"ms-storefront/internal/models"

	"github.com/google/uuid"
)

const activeListKey = "catalog:products:active"

type Store interface {
	CreateProduct(ctx context.Context, p *models.Product) error
	GetProduct(ctx context.Context, id string) (*models.Product, error)
	ListProducts(ctx context.Context, activeOnly bool) ([]*models.Product, error)
	UpdateProduct(ctx context.Context, p *models.Product) error
	ReplaceTicketTypes(ctx context.Context, productID string, types []*models.TicketType) error
	AdjustStock(ctx context.Context, productID, ticketType string, delta int) error
	SetActive(ctx context.Context, id string, active bool) error
	DeleteProduct(ctx context.Context, id string) error
}

type Cache interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error
}

type Service struct {
	store  Store
	cache  Cache
	ttl    time.Duration
	logger *logger.Logger
	now    func() time.Time
}

// NewService builds the catalog service. cache may be nil.
func NewService(store Store, cache Cache, ttl time.Duration, log *logger.Logger) *Service {
	return &Service{
		store:  store,
		cache:  cache,
		ttl:    ttl,
		logger: log,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// ---------------- BROWSE ----------------

// ListActive returns active products by event date, served from cache when warm.
func (s *Service) ListActive(ctx context.Context) ([]*models.Product, error) {
	if s.cache != nil {
		raw, err := s.cache.Get(ctx, activeListKey)
		if err != nil {
			s.logger.Warn("CATALOG", fmt.Sprintf("Cache read failed: %v", err))
		} else if raw != nil {
			var products []*models.Product
			if err := json.Unmarshal(raw, &products); err == nil {
				return products, nil
			}
			s.logger.Warn("CATALOG", "Discarding undecodable cached product list")
		}
	}

	products, err := s.store.ListProducts(ctx, true)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		if raw, err := json.Marshal(products); err == nil {
			if err := s.cache.Set(ctx, activeListKey, raw, s.ttl); err != nil {
				s.logger.Warn("CATALOG", fmt.Sprintf("Cache write failed: %v", err))
			}
		}
	}
	return products, nil
}

// GetActive hides inactive products from customers.
func (s *Service) GetActive(ctx context.Context, id string) (*models.Product, error) {
	p, err := s.store.GetProduct(ctx, id)
	if err != nil {
		return nil, err
	}
	if !p.IsActive {
		return nil, fmt.Errorf("product %s: %w", id, models.ErrNotFound)
	}
	return p, nil
}

func (s *Service) Get(ctx context.Context, id string) (*models.Product, error) {
	return s.store.GetProduct(ctx, id)
}

func (s *Service) ListAll(ctx context.Context) ([]*models.Product, error) {
	return s.store.ListProducts(ctx, false)
}

// ---------------- ADMIN ----------------

func (s *Service) Create(ctx context.Context, in models.ProductInput) (*models.Product, error) {
	if err := validateProductInput(in, true); err != nil {
		return nil, err
	}

	now := s.now()
	p := &models.Product{
		ID:          uuid.NewString(),
		Name:        strings.TrimSpace(in.Name),
		Description: in.Description,
		ImageURL:    in.ImageURL,
		EventDate:   in.EventDate.UTC(),
		Location:    in.Location,
		IsActive:    in.IsActive == nil || *in.IsActive,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	p.TicketTypes = buildTicketTypes(p.ID, in.TicketTypes)

	if err := s.store.CreateProduct(ctx, p); err != nil {
		return nil, err
	}
	s.logger.Info("CATALOG", fmt.Sprintf("Created product %s (%s) with %d ticket types", p.ID, p.Name, len(p.TicketTypes)))
	s.Invalidate(ctx)
	return p, nil
}

// Update changes product metadata. Ticket types are replaced when provided.
func (s *Service) Update(ctx context.Context, id string, in models.ProductInput) (*models.Product, error) {
	if err := validateProductInput(in, false); err != nil {
		return nil, err
	}

	p, err := s.store.GetProduct(ctx, id)
	if err != nil {
		return nil, err
	}
	p.Name = strings.TrimSpace(in.Name)
	p.Description = in.Description
	p.ImageURL = in.ImageURL
	p.EventDate = in.EventDate.UTC()
	p.Location = in.Location
	if in.IsActive != nil {
		p.IsActive = *in.IsActive
	}
	if err := s.store.UpdateProduct(ctx, p); err != nil {
		return nil, err
	}

	if len(in.TicketTypes) > 0 {
		if err := s.store.ReplaceTicketTypes(ctx, id, buildTicketTypes(id, in.TicketTypes)); err != nil {
			return nil, err
		}
	}

	s.Invalidate(ctx)
	return s.store.GetProduct(ctx, id)
}

func (s *Service) AdjustStock(ctx context.Context, id, ticketType string, delta int) (*models.Product, error) {
	if delta == 0 {
		return nil, fmt.Errorf("%w: delta must not be zero", models.ErrInvalidInput)
	}
	if err := s.store.AdjustStock(ctx, id, ticketType, delta); err != nil {
		return nil, err
	}
	s.logger.Info("CATALOG", fmt.Sprintf("Adjusted stock of %s/%s by %d", id, ticketType, delta))
	s.Invalidate(ctx)
	return s.store.GetProduct(ctx, id)
}

func (s *Service) SetActive(ctx context.Context, id string, active bool) error {
	if err := s.store.SetActive(ctx, id, active); err != nil {
		return err
	}
	s.Invalidate(ctx)
	return nil
}

func (s *Service) Delete(ctx context.Context, id string) error {
	if err := s.store.DeleteProduct(ctx, id); err != nil {
		return err
	}
	s.logger.Info("CATALOG", fmt.Sprintf("Deleted product %s", id))
	s.Invalidate(ctx)
	return nil
}

// Invalidate drops the cached listing. Called after any stock movement.
func (s *Service) Invalidate(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Del(ctx, activeListKey); err != nil {
		s.logger.Warn("CATALOG", fmt.Sprintf("Cache invalidation failed: %v", err))
	}
}

func buildTicketTypes(productID string, in []models.TicketTypeInput) []*models.TicketType {
	out := make([]*models.TicketType, 0, len(in))
	for i, tt := range in {
		out = append(out, &models.TicketType{
			ID:          uuid.NewString(),
			ProductID:   productID,
			Name:        strings.TrimSpace(tt.Name),
			Price:       tt.Price.Round(2),
			Stock:       tt.Stock,
			Description: tt.Description,
			Position:    i,
		})
	}
	return out
}

func validateProductInput(in models.ProductInput, requireTypes bool) error {
	if strings.TrimSpace(in.Name) == "" {
		return fmt.Errorf("%w: product name is required", models.ErrInvalidInput)
	}
	if in.EventDate.IsZero() {
		return fmt.Errorf("%w: event date is required", models.ErrInvalidInput)
	}
	if requireTypes && len(in.TicketTypes) == 0 {
		return fmt.Errorf("%w: at least one ticket type is required", models.ErrInvalidInput)
	}
	seen := make(map[string]bool, len(in.TicketTypes))
	for i, tt := range in.TicketTypes {
		name := strings.ToLower(strings.TrimSpace(tt.Name))
		if name == "" {
			return fmt.Errorf("%w: ticket type %d has no name", models.ErrInvalidInput, i)
		}
		if seen[name] {
			return fmt.Errorf("%w: duplicate ticket type %q", models.ErrInvalidInput, tt.Name)
		}
		seen[name] = true
		if tt.Price.IsNegative() {
			return fmt.Errorf("%w: ticket type %q has a negative price", models.ErrInvalidInput, tt.Name)
		}
		if tt.Stock < 0 {
			return fmt.Errorf("%w: ticket type %q has negative stock", models.ErrInvalidInput, tt.Name)
		}
	}
	return nil
}
