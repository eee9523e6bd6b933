package domain

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/qs-lzh/cave-sale/internal/model"
	"github.com/qs-lzh/cave-sale/internal/repository"
)

type OrderService interface {
	// PlaceOrder turns the user's cart into an order. Every event line is checked again
	// against its session and event before anything is written.
	PlaceOrder(ctx context.Context, userID uint, payMode model.PayMode, now time.Time) (*model.Order, error)
	ListOrders(ctx context.Context, userID uint) ([]model.Order, error)
}

type orderService struct {
	db       Transactor
	events   repository.EventRepo
	sessions SessionService
	cart     repository.CartRepo
	repo     repository.OrderRepo
}

var _ OrderService = (*orderService)(nil)

func NewOrderService(db Transactor, eventRepo repository.EventRepo, sessions SessionService,
	cartRepo repository.CartRepo, orderRepo repository.OrderRepo) *orderService {
	return &orderService{
		db:       db,
		events:   eventRepo,
		sessions: sessions,
		cart:     cartRepo,
		repo:     orderRepo,
	}
}

func (s *orderService) PlaceOrder(ctx context.Context, userID uint, payMode model.PayMode, now time.Time) (*model.Order, error) {
	if payMode != model.PayPoints && payMode != model.PayCash {
		return nil, ErrInvalidPayMode
	}

	lines, err := s.cart.ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list cart: %w", err)
	}
	if len(lines) == 0 {
		return nil, ErrEmptyCart
	}

	if err := s.validateEventLines(ctx, userID, payMode, lines, now); err != nil {
		return nil, err
	}

	order := &model.Order{
		UserID:  userID,
		PayMode: payMode,
		Status:  model.OrderPlaced,
		Lines:   make([]model.OrderLine, 0, len(lines)),
	}
	for _, l := range lines {
		ol := model.OrderLine{
			ProductID:       l.ProductID,
			SessionID:       l.SessionID,
			Quantity:        l.Quantity,
			UnitPrice:       l.UnitPrice,
			IsEventPurchase: l.IsEventPurchase,
		}
		switch {
		case !l.IsEventPurchase:
			order.TotalAmount += l.UnitPrice * int64(l.Quantity)
		case payMode == model.PayPoints:
			ol.UnitPrice = 0
			ol.UnitPoints = l.RequiredPoints
			order.TotalPoints += l.RequiredPoints * int64(l.Quantity)
		default:
			ol.UnitPrice = l.EventPrice
			order.TotalAmount += l.EventPrice * int64(l.Quantity)
		}
		order.Lines = append(order.Lines, ol)
	}

	err = s.db.Transaction(func(tx *gorm.DB) error {
		if err := s.repo.WithTx(tx).Create(ctx, order); err != nil {
			return err
		}
		return s.cart.WithTx(tx).RemoveOrdered(ctx, lines)
	})
	if err != nil {
		return nil, fmt.Errorf("place order: %w", err)
	}
	return order, nil
}

func (s *orderService) validateEventLines(ctx context.Context, userID uint, payMode model.PayMode, lines []model.CartLine, now time.Time) error {
	checked := make(map[string]bool)
	for _, l := range lines {
		if !l.IsEventPurchase || checked[l.SessionID] {
			continue
		}
		checked[l.SessionID] = true

		session, err := s.sessions.GetSession(ctx, l.SessionID)
		if err != nil {
			return err
		}
		if session.UserID != userID {
			return ErrSessionNotOwned
		}
		event, err := s.events.GetByID(ctx, session.EventID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrEventNotFound
			}
			return err
		}
		if !event.Allows(payMode) {
			return ErrPayModeNotAllowed
		}
		if d, productID := ValidateSessionLines(now, session, event, lines); !d.Allowed {
			return &CheckoutDeniedError{SessionID: session.ID, ProductID: productID, Decision: d}
		}
	}
	return nil
}

func (s *orderService) ListOrders(ctx context.Context, userID uint) ([]model.Order, error) {
	return s.repo.ListByUser(ctx, userID)
}
