package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/qs-lzh/cave-sale/internal/model"
)

type EventRepo interface {
	WithTx(tx *gorm.DB) EventRepo
	Create(ctx context.Context, event *model.Event) error
	Save(ctx context.Context, event *model.Event) error
	GetByID(ctx context.Context, id uint) (*model.Event, error)
	// ListActive returns enabled events whose window contains now, bounds inclusive.
	ListActive(ctx context.Context, now time.Time) ([]model.Event, error)
}

type eventRepoGorm struct {
	db *gorm.DB
}

var _ EventRepo = (*eventRepoGorm)(nil)

func NewEventRepoGorm(db *gorm.DB) *eventRepoGorm {
	return &eventRepoGorm{
		db: db,
	}
}

func (r *eventRepoGorm) WithTx(tx *gorm.DB) EventRepo {
	return &eventRepoGorm{
		db: tx,
	}
}

func (r *eventRepoGorm) Create(ctx context.Context, event *model.Event) error {
	return gorm.G[model.Event](r.db).Create(ctx, event)
}

func (r *eventRepoGorm) Save(ctx context.Context, event *model.Event) error {
	return r.db.WithContext(ctx).Save(event).Error
}

func (r *eventRepoGorm) GetByID(ctx context.Context, id uint) (*model.Event, error) {
	event, err := gorm.G[model.Event](r.db).Where("id = ?", id).First(ctx)
	if err != nil {
		return nil, err
	}
	return &event, nil
}

func (r *eventRepoGorm) ListActive(ctx context.Context, now time.Time) ([]model.Event, error) {
	return gorm.G[model.Event](r.db).
		Where("is_active = ? AND start_time <= ? AND end_time >= ?", true, now, now).
		Order("start_time").
		Find(ctx)
}
