package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/qs-lzh/cave-sale/internal/model"
)

type SessionRepo interface {
	WithTx(tx *gorm.DB) SessionRepo
	Create(ctx context.Context, session *model.Session) error
	GetByID(ctx context.Context, id string) (*model.Session, error)
	GetActive(ctx context.Context, eventID, userID uint) (*model.Session, error)
	ListActive(ctx context.Context) ([]model.Session, error)
	ListExpiredActive(ctx context.Context, now time.Time, limit int) ([]model.Session, error)
	// MarkEnded moves an active session to ended and reports whether this call did it.
	// The stored total never goes below what is already recorded.
	MarkEnded(ctx context.Context, id string, totalSpent int64, endedAt time.Time) (bool, error)
	// RaiseTotalSpent records a higher running total on an active session.
	RaiseTotalSpent(ctx context.Context, id string, totalSpent int64) error
}

type sessionRepoGorm struct {
	db *gorm.DB
}

var _ SessionRepo = (*sessionRepoGorm)(nil)

func NewSessionRepoGorm(db *gorm.DB) *sessionRepoGorm {
	return &sessionRepoGorm{
		db: db,
	}
}

func (r *sessionRepoGorm) WithTx(tx *gorm.DB) SessionRepo {
	return &sessionRepoGorm{
		db: tx,
	}
}

func (r *sessionRepoGorm) Create(ctx context.Context, session *model.Session) error {
	return gorm.G[model.Session](r.db).Create(ctx, session)
}

func (r *sessionRepoGorm) GetByID(ctx context.Context, id string) (*model.Session, error) {
	session, err := gorm.G[model.Session](r.db).Where("id = ?", id).First(ctx)
	if err != nil {
		return nil, err
	}
	return &session, nil
}

func (r *sessionRepoGorm) GetActive(ctx context.Context, eventID, userID uint) (*model.Session, error) {
	session, err := gorm.G[model.Session](r.db).
		Where("event_id = ? AND user_id = ? AND status = ?", eventID, userID, model.SessionActive).
		First(ctx)
	if err != nil {
		return nil, err
	}
	return &session, nil
}

func (r *sessionRepoGorm) ListActive(ctx context.Context) ([]model.Session, error) {
	return gorm.G[model.Session](r.db).Where("status = ?", model.SessionActive).Find(ctx)
}

func (r *sessionRepoGorm) ListExpiredActive(ctx context.Context, now time.Time, limit int) ([]model.Session, error) {
	return gorm.G[model.Session](r.db).
		Where("status = ? AND expires_at <= ?", model.SessionActive, now).
		Order("expires_at").
		Limit(limit).
		Find(ctx)
}

func (r *sessionRepoGorm) MarkEnded(ctx context.Context, id string, totalSpent int64, endedAt time.Time) (bool, error) {
	res := r.db.WithContext(ctx).Model(&model.Session{}).
		Where("id = ? AND status = ?", id, model.SessionActive).
		Updates(map[string]any{
			"status":      model.SessionEnded,
			"ended_at":    endedAt,
			"total_spent": gorm.Expr("GREATEST(total_spent, ?)", totalSpent),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *sessionRepoGorm) RaiseTotalSpent(ctx context.Context, id string, totalSpent int64) error {
	return r.db.WithContext(ctx).Model(&model.Session{}).
		Where("id = ? AND status = ? AND total_spent < ?", id, model.SessionActive, totalSpent).
		Update("total_spent", totalSpent).Error
}
