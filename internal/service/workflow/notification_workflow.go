package workflow

import (
	"context"
	"encoding/json"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/qs-lzh/cave-sale/internal/model"
	"github.com/qs-lzh/cave-sale/internal/mq"
	"github.com/qs-lzh/cave-sale/internal/service/domain"
)

// Pusher delivers a payload to the live connections of a user.
type Pusher interface {
	Push(userID uint, payload any)
}

type NotificationWorkflow struct {
	notifications domain.NotificationService
	pusher        Pusher
	logger        *zap.Logger
}

func NewNotificationWorkflow(notifications domain.NotificationService, pusher Pusher, logger *zap.Logger) *NotificationWorkflow {
	return &NotificationWorkflow{
		notifications: notifications,
		pusher:        pusher,
		logger:        logger,
	}
}

func (w *NotificationWorkflow) Start(mqConn *amqp.Connection) error {
	return w.ConsumeNotifications(mqConn)
}

func (w *NotificationWorkflow) ConsumeNotifications(conn *amqp.Connection) error {
	msgs, err := mq.Consume(conn, mq.NotificationQueue)
	if err != nil {
		return err
	}

	go func() {
		for msg := range msgs {
			if err := w.handleNotification(msg); err != nil {
				w.logger.Warn("failed to deliver notification", zap.Error(err))
			}
		}
	}()

	return nil
}

func (w *NotificationWorkflow) handleNotification(msg amqp.Delivery) error {
	var message mq.NotificationMessage
	if err := json.Unmarshal(msg.Body, &message); err != nil {
		msg.Nack(false, false)
		return err
	}

	if err := w.Deliver(context.Background(), message); err != nil {
		msg.Nack(false, false)
		return err
	}

	msg.Ack(false)
	return nil
}

// Deliver stores one notification per recipient and pushes them to connected clients.
func (w *NotificationWorkflow) Deliver(ctx context.Context, message mq.NotificationMessage) error {
	recipients := message.UserIDs
	if message.Role != "" {
		ids, err := w.notifications.Recipients(ctx, model.UserRole(message.Role))
		if err != nil {
			return fmt.Errorf("resolve role %s: %w", message.Role, err)
		}
		recipients = append(recipients, ids...)
	}

	// all or nothing, so a redelivered message never duplicates a recipient's copy
	stored, err := w.notifications.RecordAll(ctx, recipients, message.Kind, message.Message)
	if err != nil {
		return err
	}
	for _, n := range stored {
		w.pusher.Push(n.UserID, n)
	}
	return nil
}
