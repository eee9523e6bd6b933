package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/qs-lzh/cave-sale/internal/model"
)

type ProductRepo interface {
	WithTx(tx *gorm.DB) ProductRepo
	Create(ctx context.Context, product *model.Product) error
	GetByID(ctx context.Context, id uint) (*model.Product, error)
}

type productRepoGorm struct {
	db *gorm.DB
}

var _ ProductRepo = (*productRepoGorm)(nil)

func NewProductRepoGorm(db *gorm.DB) *productRepoGorm {
	return &productRepoGorm{
		db: db,
	}
}

func (r *productRepoGorm) WithTx(tx *gorm.DB) ProductRepo {
	return &productRepoGorm{
		db: tx,
	}
}

func (r *productRepoGorm) Create(ctx context.Context, product *model.Product) error {
	return gorm.G[model.Product](r.db).Create(ctx, product)
}

func (r *productRepoGorm) GetByID(ctx context.Context, id uint) (*model.Product, error) {
	product, err := gorm.G[model.Product](r.db).Where("id = ?", id).First(ctx)
	if err != nil {
		return nil, err
	}
	return &product, nil
}

// EventProductQuery narrows the event products loaded from the database.
// Nil bounds are open. Rarity is derived and filtered by the caller.
type EventProductQuery struct {
	Category  string
	MinPrice  *int64
	MaxPrice  *int64
	MinPoints *int64
	MaxPoints *int64
}

type EventProductRepo interface {
	WithTx(tx *gorm.DB) EventProductRepo
	Attach(ctx context.Context, ep *model.EventProduct) error
	// Get loads the annotation of a product in an event with its base product.
	Get(ctx context.Context, eventID, productID uint) (*model.EventProduct, error)
	ListForEvent(ctx context.Context, eventID uint, q EventProductQuery) ([]model.EventProduct, error)
}

type eventProductRepoGorm struct {
	db *gorm.DB
}

var _ EventProductRepo = (*eventProductRepoGorm)(nil)

func NewEventProductRepoGorm(db *gorm.DB) *eventProductRepoGorm {
	return &eventProductRepoGorm{
		db: db,
	}
}

func (r *eventProductRepoGorm) WithTx(tx *gorm.DB) EventProductRepo {
	return &eventProductRepoGorm{
		db: tx,
	}
}

func (r *eventProductRepoGorm) Attach(ctx context.Context, ep *model.EventProduct) error {
	return r.db.WithContext(ctx).Omit("Product").Create(ep).Error
}

func (r *eventProductRepoGorm) Get(ctx context.Context, eventID, productID uint) (*model.EventProduct, error) {
	var ep model.EventProduct
	err := r.db.WithContext(ctx).
		Preload("Product").
		Where("event_id = ? AND product_id = ?", eventID, productID).
		First(&ep).Error
	if err != nil {
		return nil, err
	}
	return &ep, nil
}

func (r *eventProductRepoGorm) ListForEvent(ctx context.Context, eventID uint, q EventProductQuery) ([]model.EventProduct, error) {
	tx := r.db.WithContext(ctx).
		Preload("Product").
		Joins("JOIN products ON products.id = event_products.product_id").
		Where("event_products.event_id = ?", eventID)

	if q.Category != "" {
		tx = tx.Where("products.category = ?", q.Category)
	}
	if q.MinPrice != nil {
		tx = tx.Where("event_products.event_price >= ?", *q.MinPrice)
	}
	if q.MaxPrice != nil {
		tx = tx.Where("event_products.event_price <= ?", *q.MaxPrice)
	}
	if q.MinPoints != nil {
		tx = tx.Where("event_products.required_points >= ?", *q.MinPoints)
	}
	if q.MaxPoints != nil {
		tx = tx.Where("event_products.required_points <= ?", *q.MaxPoints)
	}

	var eps []model.EventProduct
	if err := tx.Order("event_products.id").Find(&eps).Error; err != nil {
		return nil, err
	}
	return eps, nil
}
