package domain

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/qs-lzh/cave-sale/internal/model"
	"github.com/qs-lzh/cave-sale/internal/repository"
	"github.com/qs-lzh/cave-sale/internal/service"
)

// Filter narrows the eligible products of an event. Zero values match everything.
type Filter struct {
	Category  string
	MinPrice  *int64
	MaxPrice  *int64
	MinPoints *int64
	MaxPoints *int64
	Rarity    RarityTier
}

// EligibleProduct is an event product with its derived rarity tier.
type EligibleProduct struct {
	model.EventProduct
	Rarity RarityTier `json:"rarity"`
}

type AttachInput struct {
	ProductID             uint  `json:"product_id" binding:"required"`
	EventPrice            int64 `json:"event_price"`
	RequiredPoints        int64 `json:"required_points"`
	MaxQuantityPerProduct int   `json:"max_quantity_per_product" binding:"required"`
}

func (in AttachInput) Validate() error {
	if in.EventPrice < 0 || in.RequiredPoints < 0 {
		return fmt.Errorf("%w: prices must not be negative", ErrInvalidEventAttach)
	}
	if in.MaxQuantityPerProduct < 1 {
		return fmt.Errorf("%w: max_quantity_per_product must be at least 1", ErrInvalidEventAttach)
	}
	return nil
}

type ProductService interface {
	CreateProduct(ctx context.Context, product *model.Product) error
	AttachProductToEvent(ctx context.Context, eventID uint, in AttachInput) (*model.EventProduct, error)
	ListEligibleProducts(ctx context.Context, eventID uint, f Filter) ([]EligibleProduct, error)
}

type productService struct {
	events        EventService
	products      repository.ProductRepo
	eventProducts repository.EventProductRepo
	rarity        RarityPolicy
}

var _ ProductService = (*productService)(nil)

func NewProductService(events EventService, productRepo repository.ProductRepo,
	eventProductRepo repository.EventProductRepo, rarity RarityPolicy) *productService {
	return &productService{
		events:        events,
		products:      productRepo,
		eventProducts: eventProductRepo,
		rarity:        rarity,
	}
}

func (s *productService) CreateProduct(ctx context.Context, product *model.Product) error {
	if product.Name == "" || product.Price < 0 {
		return fmt.Errorf("%w: product needs a name and a non-negative price", service.ErrInvalidInput)
	}
	return s.products.Create(ctx, product)
}

func (s *productService) AttachProductToEvent(ctx context.Context, eventID uint, in AttachInput) (*model.EventProduct, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}
	if _, err := s.events.GetEvent(ctx, eventID); err != nil {
		return nil, err
	}
	product, err := s.products.GetByID(ctx, in.ProductID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrProductNotFound
		}
		return nil, err
	}

	ep := &model.EventProduct{
		EventID:               eventID,
		ProductID:             product.ID,
		EventPrice:            in.EventPrice,
		RequiredPoints:        in.RequiredPoints,
		MaxQuantityPerProduct: in.MaxQuantityPerProduct,
	}
	if err := s.eventProducts.Attach(ctx, ep); err != nil {
		return nil, fmt.Errorf("attach product %d to event %d: %w", product.ID, eventID, err)
	}
	ep.Product = *product
	return ep, nil
}

func (s *productService) ListEligibleProducts(ctx context.Context, eventID uint, f Filter) ([]EligibleProduct, error) {
	if _, err := s.events.GetEvent(ctx, eventID); err != nil {
		return nil, err
	}

	eps, err := s.eventProducts.ListForEvent(ctx, eventID, repository.EventProductQuery{
		Category:  f.Category,
		MinPrice:  f.MinPrice,
		MaxPrice:  f.MaxPrice,
		MinPoints: f.MinPoints,
		MaxPoints: f.MaxPoints,
	})
	if err != nil {
		return nil, fmt.Errorf("list products of event %d: %w", eventID, err)
	}

	out := make([]EligibleProduct, 0, len(eps))
	for i := range eps {
		tier := s.rarity.Tier(&eps[i])
		if f.Rarity != "" && f.Rarity != tier {
			continue
		}
		out = append(out, EligibleProduct{EventProduct: eps[i], Rarity: tier})
	}
	return out, nil
}
