package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/qs-lzh/cave-sale/internal/model"
)

type NotificationRepo interface {
	WithTx(tx *gorm.DB) NotificationRepo
	// CreateBatch inserts all notifications or none of them.
	CreateBatch(ctx context.Context, ns []model.Notification) error
	ListByUser(ctx context.Context, userID uint, limit int) ([]model.Notification, error)
	// MarkRead reports false when no notification with that id belongs to the user.
	MarkRead(ctx context.Context, id, userID uint) (bool, error)
}

type notificationRepoGorm struct {
	db *gorm.DB
}

var _ NotificationRepo = (*notificationRepoGorm)(nil)

func NewNotificationRepoGorm(db *gorm.DB) *notificationRepoGorm {
	return &notificationRepoGorm{
		db: db,
	}
}

func (r *notificationRepoGorm) WithTx(tx *gorm.DB) NotificationRepo {
	return &notificationRepoGorm{
		db: tx,
	}
}

func (r *notificationRepoGorm) CreateBatch(ctx context.Context, ns []model.Notification) error {
	if len(ns) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return gorm.G[model.Notification](tx).CreateInBatches(ctx, &ns, 100)
	})
}

func (r *notificationRepoGorm) ListByUser(ctx context.Context, userID uint, limit int) ([]model.Notification, error) {
	return gorm.G[model.Notification](r.db).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Limit(limit).
		Find(ctx)
}

func (r *notificationRepoGorm) MarkRead(ctx context.Context, id, userID uint) (bool, error) {
	n, err := gorm.G[model.Notification](r.db).
		Where("id = ? AND user_id = ?", id, userID).
		Update(ctx, "is_read", true)
	if err != nil {
		return false, err
	}
	return n == 1, nil
}
