package domain

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/qs-lzh/cave-sale/internal/cache"
	"github.com/qs-lzh/cave-sale/internal/model"
	"github.com/qs-lzh/cave-sale/internal/repository"
)

// AddResult reports an event purchase attempt. When Decision is a denial nothing was written.
type AddResult struct {
	Decision   Decision        `json:"decision"`
	Line       *model.CartLine `json:"line,omitempty"`
	TotalSpent int64           `json:"total_spent"`
}

type CartService interface {
	// AddEventItem adds a session-bound line after the guard and the cache reservation accept it.
	AddEventItem(ctx context.Context, userID uint, sessionID string, productID uint, qty int, now time.Time) (*AddResult, error)
	// AddItem adds an ordinary line at catalog price.
	AddItem(ctx context.Context, userID, productID uint, qty int) (*model.CartLine, error)
	ListCart(ctx context.Context, userID uint) ([]model.CartLine, error)
}

type cartService struct {
	db            Transactor
	cache         *cache.RedisCache
	events        repository.EventRepo
	sessions      repository.SessionRepo
	products      repository.ProductRepo
	eventProducts repository.EventProductRepo
	cart          repository.CartRepo
	logger        *zap.Logger
}

var _ CartService = (*cartService)(nil)

func NewCartService(db Transactor, cache *cache.RedisCache, eventRepo repository.EventRepo,
	sessionRepo repository.SessionRepo, productRepo repository.ProductRepo,
	eventProductRepo repository.EventProductRepo, cartRepo repository.CartRepo, logger *zap.Logger) *cartService {
	return &cartService{
		db:            db,
		cache:         cache,
		events:        eventRepo,
		sessions:      sessionRepo,
		products:      productRepo,
		eventProducts: eventProductRepo,
		cart:          cartRepo,
		logger:        logger,
	}
}

func (s *cartService) AddEventItem(ctx context.Context, userID uint, sessionID string, productID uint, qty int, now time.Time) (*AddResult, error) {
	if qty < 1 {
		return nil, ErrInvalidQuantity
	}

	session, err := s.sessions.GetByID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, err
	}
	if session.UserID != userID {
		return nil, ErrSessionNotOwned
	}
	event, err := s.events.GetByID(ctx, session.EventID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrEventNotFound
		}
		return nil, err
	}
	ep, err := s.eventProducts.Get(ctx, event.ID, productID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrProductNotInEvent
		}
		return nil, err
	}

	lines, err := s.cart.ListBySession(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list session cart: %w", err)
	}
	if d := CanAdd(now, session, event, ep, qty, lines); !d.Allowed {
		return &AddResult{Decision: d, TotalSpent: session.TotalSpent}, nil
	}

	// authoritative check, serialized per session
	req := cache.SpendRequest{
		SessionID:             sessionID,
		ProductID:             productID,
		Quantity:              qty,
		UnitPrice:             ep.EventPrice,
		MaxQuantityPerProduct: ep.MaxQuantityPerProduct,
		PurchaseCap:           event.PurchaseCap,
	}
	res, err := s.cache.ReserveSpend(ctx, req, now)
	if err != nil {
		if errors.Is(err, cache.ErrSessionNotFound) {
			return &AddResult{Decision: Deny(DenySessionExpired, 0), TotalSpent: session.TotalSpent}, nil
		}
		return nil, fmt.Errorf("reserve spend: %w", err)
	}
	switch res.Outcome {
	case cache.SpendSessionExpired:
		return &AddResult{Decision: Deny(DenySessionExpired, 0), TotalSpent: session.TotalSpent}, nil
	case cache.SpendPerProductCap:
		return &AddResult{Decision: Deny(DenyPerProductCapExceeded, res.Remaining), TotalSpent: session.TotalSpent}, nil
	case cache.SpendCapExceeded:
		return &AddResult{Decision: Deny(DenySpendCapExceeded, res.Remaining), TotalSpent: session.TotalSpent}, nil
	}

	line := &model.CartLine{
		UserID:                userID,
		ProductID:             productID,
		SessionID:             sessionID,
		Quantity:              qty,
		UnitPrice:             ep.Product.Price,
		IsEventPurchase:       true,
		EventPrice:            ep.EventPrice,
		RequiredPoints:        ep.RequiredPoints,
		MaxQuantityPerProduct: ep.MaxQuantityPerProduct,
	}
	err = s.db.Transaction(func(tx *gorm.DB) error {
		if err := s.cart.WithTx(tx).AddLine(ctx, line); err != nil {
			return err
		}
		return s.sessions.WithTx(tx).RaiseTotalSpent(ctx, sessionID, res.TotalSpent)
	})
	if err != nil {
		if relErr := s.cache.ReleaseSpend(ctx, req); relErr != nil {
			s.logger.Error("failed to release reservation",
				zap.String("session_id", sessionID), zap.Uint("product_id", productID), zap.Error(relErr))
		}
		return nil, fmt.Errorf("save event cart line: %w", err)
	}

	return &AddResult{
		Decision:   Allow(RemainingBudget(event, res.TotalSpent)),
		Line:       line,
		TotalSpent: res.TotalSpent,
	}, nil
}

func (s *cartService) AddItem(ctx context.Context, userID, productID uint, qty int) (*model.CartLine, error) {
	if qty < 1 {
		return nil, ErrInvalidQuantity
	}
	product, err := s.products.GetByID(ctx, productID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrProductNotFound
		}
		return nil, err
	}

	line := &model.CartLine{
		UserID:    userID,
		ProductID: product.ID,
		Quantity:  qty,
		UnitPrice: product.Price,
	}
	if err := s.cart.AddLine(ctx, line); err != nil {
		return nil, fmt.Errorf("save cart line: %w", err)
	}
	return line, nil
}

func (s *cartService) ListCart(ctx context.Context, userID uint) ([]model.CartLine, error) {
	return s.cart.ListByUser(ctx, userID)
}
