package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/qs-lzh/cave-sale/internal/model"
	"github.com/qs-lzh/cave-sale/internal/mq"
	"github.com/qs-lzh/cave-sale/internal/service/domain"
)

type SessionWorkflow struct {
	sessions  domain.SessionService
	publisher MessagePublisher
	notifier  Notifier
	logger    *zap.Logger
	now       func() time.Time
}

func NewSessionWorkflow(sessions domain.SessionService, publisher MessagePublisher, notifier Notifier, logger *zap.Logger) *SessionWorkflow {
	return &SessionWorkflow{
		sessions:  sessions,
		publisher: publisher,
		notifier:  notifier,
		logger:    logger,
		now:       time.Now,
	}
}

// Admit admits the user and schedules the expiry message of a new session.
func (w *SessionWorkflow) Admit(ctx context.Context, userID, eventID uint) (*domain.Admission, error) {
	now := w.now()
	admission, err := w.sessions.Admit(ctx, userID, eventID, now)
	if admission != nil && admission.Reaped != nil {
		w.notifyEnded(ctx, admission.Reaped)
	}
	if err != nil {
		return nil, err
	}
	if admission.Existing {
		return admission, nil
	}

	s := admission.Session
	msg := mq.SessionExpiryMessage{SessionID: s.ID, EventID: s.EventID, ExpiresAt: s.ExpiresAt}
	if err := w.publisher.SendDelayedMessage(ctx, mq.SessionExpiryDelayQueue, msg, s.ExpiresAt.Sub(now)); err != nil {
		// the periodic sweep still ends it
		w.logger.Warn("failed to schedule session expiry", zap.String("session_id", s.ID), zap.Error(err))
	}
	return admission, nil
}

// End is the user's explicit exit from a session.
func (w *SessionWorkflow) End(ctx context.Context, sessionID string, userID uint) (*model.Session, error) {
	s, err := w.sessions.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if s.UserID != userID {
		return nil, domain.ErrSessionNotOwned
	}

	ended, transitioned, err := w.sessions.End(ctx, sessionID, s.TotalSpent, w.now())
	if err != nil {
		return nil, err
	}
	if transitioned {
		w.notifyEnded(ctx, ended)
	}
	return ended, nil
}

// Expire ends the session if its time is up. It reports whether this call ended it.
func (w *SessionWorkflow) Expire(ctx context.Context, sessionID string, now time.Time) (bool, error) {
	s, err := w.sessions.GetSession(ctx, sessionID)
	if err != nil {
		if errors.Is(err, domain.ErrSessionNotFound) {
			_, _, _ = w.sessions.End(ctx, sessionID, 0, now)
			return false, nil
		}
		return false, err
	}
	if !s.IsActive() || now.Before(s.ExpiresAt) {
		return false, nil
	}

	ended, transitioned, err := w.sessions.End(ctx, sessionID, s.TotalSpent, now)
	if err != nil {
		return false, err
	}
	if transitioned {
		w.notifyEnded(ctx, ended)
	}
	return transitioned, nil
}

func (w *SessionWorkflow) notifyEnded(ctx context.Context, s *model.Session) {
	w.notifier.NotifyUser(ctx, s.UserID, domain.NotifySessionEnded,
		fmt.Sprintf("Your session in event %d has ended. Total spent: %d.", s.EventID, s.TotalSpent))
}

func (w *SessionWorkflow) Start(mqConn *amqp.Connection) error {
	return w.ConsumeSessionExpiry(mqConn)
}

func (w *SessionWorkflow) ConsumeSessionExpiry(conn *amqp.Connection) error {
	msgs, err := mq.Consume(conn, mq.SessionExpiryTimeoutQueue)
	if err != nil {
		return err
	}

	go func() {
		for msg := range msgs {
			w.handleSessionExpiry(msg)
		}
	}()

	return nil
}

func (w *SessionWorkflow) handleSessionExpiry(msg amqp.Delivery) {
	var message mq.SessionExpiryMessage
	if err := json.Unmarshal(msg.Body, &message); err != nil {
		msg.Nack(false, false)
		return
	}

	if _, err := w.Expire(context.Background(), message.SessionID, w.now()); err != nil {
		// dropped, the sweep retries from the expiry index
		w.logger.Warn("failed to expire session",
			zap.String("session_id", message.SessionID), zap.Error(err))
		msg.Nack(false, false)
		return
	}

	msg.Ack(false)
}
