package domain

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/qs-lzh/cave-sale/internal/cache"
	"github.com/qs-lzh/cave-sale/internal/model"
	"github.com/qs-lzh/cave-sale/internal/repository"
)

// Admission is the result of Admit.
type Admission struct {
	Session *model.Session
	// Existing is set when the user's still-valid session was returned instead of a new one.
	Existing bool
	// Reaped is the user's expired session finalized on the way in, if there was one.
	Reaped *model.Session
}

type SessionService interface {
	Admit(ctx context.Context, userID, eventID uint, now time.Time) (*Admission, error)
	GetActiveSession(ctx context.Context, userID, eventID uint) (*model.Session, error)
	GetSession(ctx context.Context, sessionID string) (*model.Session, error)
	// End finalizes the session. ended is true only for the call that moved it out of active.
	End(ctx context.Context, sessionID string, finalTotalSpent int64, now time.Time) (session *model.Session, ended bool, err error)
	// ListExpired returns ids of sessions still active whose expires_at is at or before now.
	ListExpired(ctx context.Context, now time.Time, limit int) ([]string, error)
	// Restore puts active database sessions missing from the cache back into it.
	Restore(ctx context.Context) (int, error)
}

type sessionService struct {
	events   repository.EventRepo
	sessions repository.SessionRepo
	grants   repository.GrantRepo
	cart     repository.CartRepo
	orders   repository.OrderRepo
	cache    *cache.RedisCache
	logger   *zap.Logger
}

var _ SessionService = (*sessionService)(nil)

func NewSessionService(eventRepo repository.EventRepo, sessionRepo repository.SessionRepo,
	grantRepo repository.GrantRepo, cartRepo repository.CartRepo, orderRepo repository.OrderRepo,
	cache *cache.RedisCache, logger *zap.Logger) *sessionService {
	return &sessionService{
		events:   eventRepo,
		sessions: sessionRepo,
		grants:   grantRepo,
		cart:     cartRepo,
		orders:   orderRepo,
		cache:    cache,
		logger:   logger,
	}
}

func (s *sessionService) Admit(ctx context.Context, userID, eventID uint, now time.Time) (*Admission, error) {
	event, err := s.events.GetByID(ctx, eventID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrEventNotFound
		}
		return nil, err
	}
	if !event.OpenAt(now) {
		return nil, ErrEventInactiveOrExpired
	}
	if event.Kind == model.EventKindTicketed {
		ok, err := s.grants.Exists(ctx, eventID, userID)
		if err != nil {
			return nil, fmt.Errorf("check admission grant: %w", err)
		}
		if !ok {
			return nil, ErrAdmissionGrantRequired
		}
	}

	sessionID := uuid.NewString()
	expiresAt := now.Add(event.SessionDuration())
	res, err := s.cache.AdmitSession(ctx, eventID, userID, event.MaxConcurrent, sessionID, now, expiresAt)

	admission := &Admission{}
	if res.ReapedSessionID != "" {
		// the cache already ended it, the record must follow before a new active row can exist
		reaped, _, endErr := s.End(ctx, res.ReapedSessionID, 0, now)
		if endErr != nil {
			s.logger.Warn("failed to finalize reaped session",
				zap.String("session_id", res.ReapedSessionID), zap.Error(endErr))
		} else {
			admission.Reaped = reaped
		}
	}
	if err != nil {
		if errors.Is(err, cache.ErrConcurrencyCapReached) {
			return admission, ErrConcurrencyCapReached
		}
		return nil, fmt.Errorf("admit user %d to event %d: %w", userID, eventID, err)
	}

	if res.Existing {
		existing, err := s.GetSession(ctx, res.SessionID)
		if err != nil {
			return nil, err
		}
		admission.Session = existing
		admission.Existing = true
		return admission, nil
	}

	session := &model.Session{
		ID:        sessionID,
		EventID:   eventID,
		UserID:    userID,
		StartedAt: now,
		ExpiresAt: expiresAt,
		Status:    model.SessionActive,
	}
	if err := s.sessions.Create(ctx, session); err != nil {
		// give the slot back, the session never became visible
		if _, relErr := s.cache.EndSession(ctx, sessionID, 0, now); relErr != nil {
			s.logger.Error("failed to release slot of unsaved session",
				zap.String("session_id", sessionID), zap.Error(relErr))
		}
		return nil, fmt.Errorf("save session: %w", err)
	}

	s.logger.Info("session admitted",
		zap.String("session_id", sessionID),
		zap.Uint("event_id", eventID),
		zap.Uint("user_id", userID),
		zap.Time("expires_at", expiresAt))

	admission.Session = session
	return admission, nil
}

func (s *sessionService) GetActiveSession(ctx context.Context, userID, eventID uint) (*model.Session, error) {
	session, err := s.sessions.GetActive(ctx, eventID, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNoActiveSession
		}
		return nil, err
	}
	s.overlay(ctx, session)
	return session, nil
}

func (s *sessionService) GetSession(ctx context.Context, sessionID string) (*model.Session, error) {
	session, err := s.sessions.GetByID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, err
	}
	s.overlay(ctx, session)
	return session, nil
}

// overlay takes the live running total from the cache, which is ahead of the record
// between a reservation and its database write.
func (s *sessionService) overlay(ctx context.Context, session *model.Session) {
	if !session.IsActive() {
		return
	}
	state, err := s.cache.GetSessionState(ctx, session.ID)
	if err != nil {
		if !errors.Is(err, cache.ErrSessionNotFound) {
			s.logger.Warn("failed to read session state", zap.String("session_id", session.ID), zap.Error(err))
		}
		return
	}
	session.TotalSpent = max(session.TotalSpent, state.TotalSpent)
}

func (s *sessionService) End(ctx context.Context, sessionID string, finalTotalSpent int64, now time.Time) (*model.Session, bool, error) {
	session, err := s.sessions.GetByID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			// a cache entry whose record was never saved still holds a slot
			if res, endErr := s.cache.EndSession(ctx, sessionID, finalTotalSpent, now); endErr == nil && res.Ended {
				s.logger.Warn("released slot of unrecorded session", zap.String("session_id", sessionID))
			}
			return nil, false, ErrSessionNotFound
		}
		return nil, false, err
	}
	if !session.IsActive() {
		return session, false, nil
	}

	total := max(session.TotalSpent, finalTotalSpent)
	res, err := s.cache.EndSession(ctx, sessionID, total, now)
	switch {
	case err == nil:
		total = max(total, res.TotalSpent)
	case errors.Is(err, cache.ErrSessionNotFound):
		// cache lost the session, the record alone decides
	default:
		return nil, false, fmt.Errorf("end session %s: %w", sessionID, err)
	}

	ended, err := s.sessions.MarkEnded(ctx, sessionID, total, now)
	if err != nil {
		// the slot is already released, the sweep retries the record
		return nil, false, fmt.Errorf("mark session %s ended: %w", sessionID, err)
	}

	session, err = s.sessions.GetByID(ctx, sessionID)
	if err != nil {
		return nil, false, err
	}
	if ended {
		s.logger.Info("session ended",
			zap.String("session_id", sessionID),
			zap.Int64("total_spent", session.TotalSpent))
	}
	return session, ended, nil
}

func (s *sessionService) ListExpired(ctx context.Context, now time.Time, limit int) ([]string, error) {
	due, err := s.cache.DueSessions(ctx, now, limit)
	if err != nil {
		return nil, fmt.Errorf("list due sessions: %w", err)
	}
	stale, err := s.sessions.ListExpiredActive(ctx, now, limit)
	if err != nil {
		return nil, fmt.Errorf("list expired sessions: %w", err)
	}

	seen := make(map[string]struct{}, len(due)+len(stale))
	ids := make([]string, 0, len(due)+len(stale))
	for _, id := range due {
		if _, ok := seen[id]; !ok {
			seen[id] = struct{}{}
			ids = append(ids, id)
		}
	}
	for _, sess := range stale {
		if _, ok := seen[sess.ID]; !ok {
			seen[sess.ID] = struct{}{}
			ids = append(ids, sess.ID)
		}
	}
	return ids, nil
}

func (s *sessionService) Restore(ctx context.Context) (int, error) {
	active, err := s.sessions.ListActive(ctx)
	if err != nil {
		return 0, fmt.Errorf("list active sessions: %w", err)
	}

	restored := 0
	for _, sess := range active {
		lines, err := s.cart.ListBySession(ctx, sess.ID)
		if err != nil {
			return restored, fmt.Errorf("list cart of session %s: %w", sess.ID, err)
		}
		// checkout empties the cart but the session keeps counting what it bought
		qty, err := s.orders.QuantitiesBySession(ctx, sess.ID)
		if err != nil {
			return restored, fmt.Errorf("list orders of session %s: %w", sess.ID, err)
		}
		for _, l := range lines {
			qty[l.ProductID] += l.Quantity
		}

		ok, err := s.cache.RestoreSession(ctx, cache.RestoreSession{
			SessionID:  sess.ID,
			EventID:    sess.EventID,
			UserID:     sess.UserID,
			StartedAt:  sess.StartedAt,
			ExpiresAt:  sess.ExpiresAt,
			TotalSpent: sess.TotalSpent,
			Quantities: qty,
		})
		if err != nil {
			return restored, fmt.Errorf("restore session %s: %w", sess.ID, err)
		}
		if ok {
			restored++
		}
	}
	return restored, nil
}
