package claims

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/sejinoh/pickupz-backend/pkg/db"
	"github.com/sejinoh/pickupz-backend/pkg/db/models"
	pkgerrors "github.com/sejinoh/pickupz-backend/pkg/errors"
)

// Repository manages persistence for courier claims.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, row *models.CourierClaim) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.CourierClaim, error)
	LockByID(ctx context.Context, id uuid.UUID) (*models.CourierClaim, error)
	Update(ctx context.Context, id uuid.UUID, updates map[string]any) error
	ListByOrder(ctx context.Context, orderID uuid.UUID) ([]models.CourierClaim, error)
	ListByUser(ctx context.Context, userID uuid.UUID) ([]models.CourierClaim, error)
	ExistsOpenForItem(ctx context.Context, itemID uuid.UUID) (bool, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a claim repository bound to the provided database.
func NewRepository(conn *gorm.DB) Repository {
	return &repository{db: conn}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, row *models.CourierClaim) error {
	return r.db.WithContext(ctx).Create(row).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.CourierClaim, error) {
	var row models.CourierClaim
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&row).Error
	if err != nil {
		return nil, mapLookupErr(err)
	}
	return &row, nil
}

func (r *repository) LockByID(ctx context.Context, id uuid.UUID) (*models.CourierClaim, error) {
	var row models.CourierClaim
	err := db.LockForUpdate(r.db.WithContext(ctx)).Where("id = ?", id).First(&row).Error
	if err != nil {
		return nil, mapLookupErr(err)
	}
	return &row, nil
}

func (r *repository) Update(ctx context.Context, id uuid.UUID, updates map[string]any) error {
	return r.db.WithContext(ctx).Model(&models.CourierClaim{}).Where("id = ?", id).Updates(updates).Error
}

func (r *repository) ListByOrder(ctx context.Context, orderID uuid.UUID) ([]models.CourierClaim, error) {
	var rows []models.CourierClaim
	err := r.db.WithContext(ctx).Where("order_id = ?", orderID).Order("created_at DESC").Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repository) ListByUser(ctx context.Context, userID uuid.UUID) ([]models.CourierClaim, error) {
	var rows []models.CourierClaim
	err := r.db.WithContext(ctx).Where("user_id = ?", userID).Order("created_at DESC").Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// ExistsOpenForItem reports whether an undecided claim already targets the item.
func (r *repository) ExistsOpenForItem(ctx context.Context, itemID uuid.UUID) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.CourierClaim{}).
		Where("item_id = ? AND status IN ?", itemID, []string{"REQUESTED", "IN_REVIEW"}).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func mapLookupErr(err error) error {
	if err == gorm.ErrRecordNotFound {
		return pkgerrors.New(pkgerrors.CodeNotFound, "claim not found")
	}
	if db.IsLockNotAvailable(err) {
		return pkgerrors.Wrap(pkgerrors.CodeLockTimeout, err, "claim row is locked")
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load claim")
}
