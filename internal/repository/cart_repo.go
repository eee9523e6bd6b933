package repository

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/qs-lzh/cave-sale/internal/model"
)

type CartRepo interface {
	WithTx(tx *gorm.DB) CartRepo
	// AddLine inserts the line or adds its quantity to the existing line for the
	// same (user, product, session).
	AddLine(ctx context.Context, line *model.CartLine) error
	ListByUser(ctx context.Context, userID uint) ([]model.CartLine, error)
	ListBySession(ctx context.Context, sessionID string) ([]model.CartLine, error)
	// RemoveOrdered takes the ordered quantity of each line out of the cart and deletes
	// lines left empty. Units merged into a line after it was read stay in the cart.
	RemoveOrdered(ctx context.Context, lines []model.CartLine) error
}

type cartRepoGorm struct {
	db *gorm.DB
}

var _ CartRepo = (*cartRepoGorm)(nil)

func NewCartRepoGorm(db *gorm.DB) *cartRepoGorm {
	return &cartRepoGorm{
		db: db,
	}
}

func (r *cartRepoGorm) WithTx(tx *gorm.DB) CartRepo {
	return &cartRepoGorm{
		db: tx,
	}
}

func (r *cartRepoGorm) AddLine(ctx context.Context, line *model.CartLine) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "user_id"}, {Name: "product_id"}, {Name: "session_id"}},
		DoUpdates: clause.Assignments(map[string]any{
			"quantity": gorm.Expr("cart_lines.quantity + excluded.quantity"),
		}),
	}).Create(line).Error
}

func (r *cartRepoGorm) ListByUser(ctx context.Context, userID uint) ([]model.CartLine, error) {
	return gorm.G[model.CartLine](r.db).Where("user_id = ?", userID).Order("id").Find(ctx)
}

func (r *cartRepoGorm) ListBySession(ctx context.Context, sessionID string) ([]model.CartLine, error) {
	return gorm.G[model.CartLine](r.db).Where("session_id = ?", sessionID).Order("id").Find(ctx)
}

func (r *cartRepoGorm) RemoveOrdered(ctx context.Context, lines []model.CartLine) error {
	if len(lines) == 0 {
		return nil
	}
	ids := make([]uint, 0, len(lines))
	for _, l := range lines {
		err := r.db.WithContext(ctx).
			Model(&model.CartLine{}).
			Where("id = ?", l.ID).
			UpdateColumn("quantity", gorm.Expr("quantity - ?", l.Quantity)).Error
		if err != nil {
			return err
		}
		ids = append(ids, l.ID)
	}
	return r.db.WithContext(ctx).
		Where("id IN ? AND quantity <= 0", ids).
		Delete(&model.CartLine{}).Error
}
