package repository

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/qs-lzh/cave-sale/internal/model"
)

type UserRepo interface {
	WithTx(tx *gorm.DB) UserRepo
	Create(ctx context.Context, user *model.User) error
	GetByID(ctx context.Context, id uint) (*model.User, error)
	ListByRole(ctx context.Context, role model.UserRole) ([]model.User, error)
}

type userRepoGorm struct {
	db *gorm.DB
}

var _ UserRepo = (*userRepoGorm)(nil)

func NewUserRepoGorm(db *gorm.DB) *userRepoGorm {
	return &userRepoGorm{
		db: db,
	}
}

func (r *userRepoGorm) WithTx(tx *gorm.DB) UserRepo {
	return &userRepoGorm{
		db: tx,
	}
}

func (r *userRepoGorm) Create(ctx context.Context, user *model.User) error {
	return gorm.G[model.User](r.db).Create(ctx, user)
}

func (r *userRepoGorm) GetByID(ctx context.Context, id uint) (*model.User, error) {
	user, err := gorm.G[model.User](r.db).Where("id = ?", id).First(ctx)
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *userRepoGorm) ListByRole(ctx context.Context, role model.UserRole) ([]model.User, error) {
	return gorm.G[model.User](r.db).Where("role = ?", role).Find(ctx)
}

type GrantRepo interface {
	WithTx(tx *gorm.DB) GrantRepo
	// Grant is idempotent, granting twice keeps one row.
	Grant(ctx context.Context, eventID, userID uint) error
	Exists(ctx context.Context, eventID, userID uint) (bool, error)
}

type grantRepoGorm struct {
	db *gorm.DB
}

var _ GrantRepo = (*grantRepoGorm)(nil)

func NewGrantRepoGorm(db *gorm.DB) *grantRepoGorm {
	return &grantRepoGorm{
		db: db,
	}
}

func (r *grantRepoGorm) WithTx(tx *gorm.DB) GrantRepo {
	return &grantRepoGorm{
		db: tx,
	}
}

func (r *grantRepoGorm) Grant(ctx context.Context, eventID, userID uint) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&model.AdmissionGrant{EventID: eventID, UserID: userID}).Error
}

func (r *grantRepoGorm) Exists(ctx context.Context, eventID, userID uint) (bool, error) {
	n, err := gorm.G[model.AdmissionGrant](r.db).
		Where("event_id = ? AND user_id = ?", eventID, userID).
		Count(ctx, "id")
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
