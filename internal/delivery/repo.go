package delivery

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/sejinoh/pickupz-backend/pkg/db"
	"github.com/sejinoh/pickupz-backend/pkg/db/models"
	"github.com/sejinoh/pickupz-backend/pkg/enums"
	pkgerrors "github.com/sejinoh/pickupz-backend/pkg/errors"
)

// Repository manages persistence for delivery orders.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, row *models.DeliveryOrder) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.DeliveryOrder, error)
	FindByDisplayCode(ctx context.Context, code string) (*models.DeliveryOrder, error)
	LockByID(ctx context.Context, id uuid.UUID) (*models.DeliveryOrder, error)
	Update(ctx context.Context, id uuid.UUID, updates map[string]any) error
	ExistsDisplayCode(ctx context.Context, code string) (bool, error)
	ListByUser(ctx context.Context, userID uuid.UUID) ([]models.DeliveryOrder, error)
	ListPendingPaymentBefore(ctx context.Context, cutoff time.Time) ([]models.DeliveryOrder, error)
	ListAutoCompletable(ctx context.Context, cutoff time.Time) ([]models.DeliveryOrder, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a delivery order repository bound to the provided database.
func NewRepository(conn *gorm.DB) Repository {
	return &repository{db: conn}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, row *models.DeliveryOrder) error {
	return r.db.WithContext(ctx).Create(row).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.DeliveryOrder, error) {
	var row models.DeliveryOrder
	err := r.db.WithContext(ctx).Preload("Reservations").Where("id = ?", id).First(&row).Error
	if err != nil {
		return nil, mapLookupErr(err)
	}
	return &row, nil
}

func (r *repository) FindByDisplayCode(ctx context.Context, code string) (*models.DeliveryOrder, error) {
	var row models.DeliveryOrder
	err := r.db.WithContext(ctx).Where("display_code = ?", code).First(&row).Error
	if err != nil {
		return nil, mapLookupErr(err)
	}
	return &row, nil
}

// LockByID loads the order while holding its row lock. All status writes go
// through this read.
func (r *repository) LockByID(ctx context.Context, id uuid.UUID) (*models.DeliveryOrder, error) {
	var row models.DeliveryOrder
	err := db.LockForUpdate(r.db.WithContext(ctx)).Where("id = ?", id).First(&row).Error
	if err != nil {
		return nil, mapLookupErr(err)
	}
	return &row, nil
}

func (r *repository) Update(ctx context.Context, id uuid.UUID, updates map[string]any) error {
	return r.db.WithContext(ctx).Model(&models.DeliveryOrder{}).Where("id = ?", id).Updates(updates).Error
}

func (r *repository) ExistsDisplayCode(ctx context.Context, code string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.DeliveryOrder{}).
		Where("display_code = ?", code).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *repository) ListByUser(ctx context.Context, userID uuid.UUID) ([]models.DeliveryOrder, error) {
	var rows []models.DeliveryOrder
	err := r.db.WithContext(ctx).Preload("Reservations").
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// ListPendingPaymentBefore returns unpaid orders whose payment window opened
// before the cutoff. Orders that never reached the gateway have no
// transaction id and are not reconcilable.
func (r *repository) ListPendingPaymentBefore(ctx context.Context, cutoff time.Time) ([]models.DeliveryOrder, error) {
	var rows []models.DeliveryOrder
	err := r.db.WithContext(ctx).
		Where("status = ? AND pg_transaction_id IS NOT NULL AND created_at < ?",
			enums.DeliveryOrderStatusPendingPayment, cutoff).
		Order("created_at ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repository) ListAutoCompletable(ctx context.Context, cutoff time.Time) ([]models.DeliveryOrder, error) {
	var rows []models.DeliveryOrder
	err := r.db.WithContext(ctx).
		Where("status = ? AND accepted_at IS NOT NULL AND accepted_at < ?",
			enums.DeliveryOrderStatusOutForDelivery, cutoff).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func mapLookupErr(err error) error {
	if err == gorm.ErrRecordNotFound {
		return pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	}
	if db.IsLockNotAvailable(err) {
		return pkgerrors.Wrap(pkgerrors.CodeLockTimeout, err, "order row is locked")
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
}
