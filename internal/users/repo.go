package users

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/sejinoh/pickupz-backend/pkg/db"
	"github.com/sejinoh/pickupz-backend/pkg/db/models"
	pkgerrors "github.com/sejinoh/pickupz-backend/pkg/errors"
)

// Repository manages persistence for the user aggregate.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	LockByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	Update(ctx context.Context, id uuid.UUID, updates map[string]any) error
	ListIDs(ctx context.Context) ([]uuid.UUID, error)
	ResetAllWarnCounts(ctx context.Context) (int64, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a user repository bound to the provided database.
func NewRepository(conn *gorm.DB) Repository {
	return &repository{db: conn}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	var user models.User
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&user).Error
	if err != nil {
		return nil, mapLookupErr(err)
	}
	return &user, nil
}

// LockByID loads the user while holding its row lock. Point balance and warn
// count writes must go through this read.
func (r *repository) LockByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	var user models.User
	err := db.LockForUpdate(r.db.WithContext(ctx)).Where("id = ?", id).First(&user).Error
	if err != nil {
		return nil, mapLookupErr(err)
	}
	return &user, nil
}

func (r *repository) Update(ctx context.Context, id uuid.UUID, updates map[string]any) error {
	return r.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", id).Updates(updates).Error
}

func (r *repository) ListIDs(ctx context.Context) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	if err := r.db.WithContext(ctx).Model(&models.User{}).Pluck("id", &ids).Error; err != nil {
		return nil, err
	}
	return ids, nil
}

func (r *repository) ResetAllWarnCounts(ctx context.Context) (int64, error) {
	result := r.db.WithContext(ctx).Model(&models.User{}).
		Where("monthly_warn_count > 0").
		Update("monthly_warn_count", 0)
	return result.RowsAffected, result.Error
}

func mapLookupErr(err error) error {
	if err == gorm.ErrRecordNotFound {
		return pkgerrors.New(pkgerrors.CodeNotFound, "user not found")
	}
	if db.IsLockNotAvailable(err) {
		return pkgerrors.Wrap(pkgerrors.CodeLockTimeout, err, "user row is locked")
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load user")
}
