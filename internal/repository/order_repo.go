package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/qs-lzh/cave-sale/internal/model"
)

type OrderRepo interface {
	WithTx(tx *gorm.DB) OrderRepo
	// Create stores the order together with its lines.
	Create(ctx context.Context, order *model.Order) error
	GetByID(ctx context.Context, id uint) (*model.Order, error)
	ListByUser(ctx context.Context, userID uint) ([]model.Order, error)
	// QuantitiesBySession sums the ordered quantity of each product bought under the session.
	QuantitiesBySession(ctx context.Context, sessionID string) (map[uint]int, error)
}

type orderRepoGorm struct {
	db *gorm.DB
}

var _ OrderRepo = (*orderRepoGorm)(nil)

func NewOrderRepoGorm(db *gorm.DB) *orderRepoGorm {
	return &orderRepoGorm{
		db: db,
	}
}

func (r *orderRepoGorm) WithTx(tx *gorm.DB) OrderRepo {
	return &orderRepoGorm{
		db: tx,
	}
}

func (r *orderRepoGorm) Create(ctx context.Context, order *model.Order) error {
	return r.db.WithContext(ctx).Create(order).Error
}

func (r *orderRepoGorm) GetByID(ctx context.Context, id uint) (*model.Order, error) {
	var order model.Order
	if err := r.db.WithContext(ctx).Preload("Lines").First(&order, id).Error; err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *orderRepoGorm) ListByUser(ctx context.Context, userID uint) ([]model.Order, error) {
	var orders []model.Order
	err := r.db.WithContext(ctx).
		Preload("Lines").
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Find(&orders).Error
	if err != nil {
		return nil, err
	}
	return orders, nil
}

func (r *orderRepoGorm) QuantitiesBySession(ctx context.Context, sessionID string) (map[uint]int, error) {
	var rows []struct {
		ProductID uint
		Quantity  int
	}
	err := r.db.WithContext(ctx).
		Model(&model.OrderLine{}).
		Select("product_id, SUM(quantity) AS quantity").
		Where("session_id = ?", sessionID).
		Group("product_id").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	qty := make(map[uint]int, len(rows))
	for _, row := range rows {
		qty[row.ProductID] = row.Quantity
	}
	return qty, nil
}
