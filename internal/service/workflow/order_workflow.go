package workflow

import (
	"context"
	"fmt"
	"time"

	"github.com/qs-lzh/cave-sale/internal/model"
	"github.com/qs-lzh/cave-sale/internal/service/domain"
)

type OrderWorkflow struct {
	orderService domain.OrderService
	notifier     Notifier
	now          func() time.Time
}

func NewOrderWorkflow(orderService domain.OrderService, notifier Notifier) *OrderWorkflow {
	return &OrderWorkflow{
		orderService: orderService,
		notifier:     notifier,
		now:          time.Now,
	}
}

// PlaceOrder places the order, then tells the buyer and the admins about it.
func (w *OrderWorkflow) PlaceOrder(ctx context.Context, userID uint, payMode model.PayMode) (*model.Order, error) {
	order, err := w.orderService.PlaceOrder(ctx, userID, payMode, w.now())
	if err != nil {
		return nil, err
	}

	total := fmt.Sprintf("%d", order.TotalAmount)
	if order.PayMode == model.PayPoints {
		total = fmt.Sprintf("%d cash + %d points", order.TotalAmount, order.TotalPoints)
	}
	w.notifier.NotifyUser(ctx, userID, domain.NotifyOrderPlaced,
		fmt.Sprintf("Order #%d placed, total %s.", order.ID, total))
	w.notifier.BroadcastRole(ctx, model.RoleAdmin, domain.NotifyOrderPlaced,
		fmt.Sprintf("User %d placed order #%d (%d lines).", userID, order.ID, len(order.Lines)))

	return order, nil
}
