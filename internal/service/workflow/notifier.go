package workflow

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/qs-lzh/cave-sale/internal/model"
	"github.com/qs-lzh/cave-sale/internal/mq"
)

// MessagePublisher is the part of mq.Publisher the workflows use.
type MessagePublisher interface {
	SendImmediateMessage(ctx context.Context, queueName string, message any) error
	SendDelayedMessage(ctx context.Context, delayQueueName string, message any, delay time.Duration) error
}

var _ MessagePublisher = (*mq.Publisher)(nil)

// Notifier is fire-and-forget: failures never reach the caller.
type Notifier interface {
	NotifyUser(ctx context.Context, userID uint, kind, message string)
	BroadcastRole(ctx context.Context, role model.UserRole, kind, message string)
}

// Dispatcher hands notifications to the notification queue.
type Dispatcher struct {
	publisher MessagePublisher
	logger    *zap.Logger
}

var _ Notifier = (*Dispatcher)(nil)

func NewDispatcher(publisher MessagePublisher, logger *zap.Logger) *Dispatcher {
	return &Dispatcher{
		publisher: publisher,
		logger:    logger,
	}
}

func (d *Dispatcher) NotifyUser(ctx context.Context, userID uint, kind, message string) {
	d.send(ctx, mq.NotificationMessage{UserIDs: []uint{userID}, Kind: kind, Message: message})
}

func (d *Dispatcher) BroadcastRole(ctx context.Context, role model.UserRole, kind, message string) {
	d.send(ctx, mq.NotificationMessage{Role: string(role), Kind: kind, Message: message})
}

func (d *Dispatcher) send(ctx context.Context, msg mq.NotificationMessage) {
	if err := d.publisher.SendImmediateMessage(ctx, mq.NotificationQueue, msg); err != nil {
		d.logger.Warn("failed to dispatch notification",
			zap.String("kind", msg.Kind),
			zap.Uints("user_ids", msg.UserIDs),
			zap.String("role", msg.Role),
			zap.Error(err))
	}
}
