package reservations

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

// Repository manages persistence for reservations.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, row *models.Reservation) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Reservation, error)
	FindByDisplayCode(ctx context.Context, code string) (*models.Reservation, error)
	LockByID(ctx context.Context, id uuid.UUID) (*models.Reservation, error)
	Update(ctx context.Context, id uuid.UUID, updates map[string]any) error
	ExistsDisplayCode(ctx context.Context, code string) (bool, error)
	FindProduct(ctx context.Context, id uuid.UUID) (*models.Product, error)
	ListByUser(ctx context.Context, userID uuid.UUID) ([]models.Reservation, error)
	ListByDeliveryOrder(ctx context.Context, orderID uuid.UUID) ([]models.Reservation, error)
	ListPendingBefore(ctx context.Context, cutoff time.Time) ([]models.Reservation, error)
	ListFuturePendingByUser(ctx context.Context, userID uuid.UUID, after time.Time) ([]models.Reservation, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a reservation repository bound to the provided database.
func NewRepository(conn *gorm.DB) Repository {
	return &repository{db: conn}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, row *models.Reservation) error {
	return r.db.WithContext(ctx).Create(row).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Reservation, error) {
	var row models.Reservation
	err := r.db.WithContext(ctx).Preload("Product").Where("id = ?", id).First(&row).Error
	if err != nil {
		return nil, mapLookupErr(err)
	}
	return &row, nil
}

func (r *repository) FindByDisplayCode(ctx context.Context, code string) (*models.Reservation, error) {
	var row models.Reservation
	err := r.db.WithContext(ctx).Preload("Product").Where("display_code = ?", code).First(&row).Error
	if err != nil {
		return nil, mapLookupErr(err)
	}
	return &row, nil
}

// LockByID loads the reservation while holding its row lock. Every status or
// quantity write goes through this read.
func (r *repository) LockByID(ctx context.Context, id uuid.UUID) (*models.Reservation, error) {
	var row models.Reservation
	err := db.LockForUpdate(r.db.WithContext(ctx)).Where("id = ?", id).First(&row).Error
	if err != nil {
		return nil, mapLookupErr(err)
	}
	return &row, nil
}

func (r *repository) Update(ctx context.Context, id uuid.UUID, updates map[string]any) error {
	return r.db.WithContext(ctx).Model(&models.Reservation{}).Where("id = ?", id).Updates(updates).Error
}

func (r *repository) ExistsDisplayCode(ctx context.Context, code string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.Reservation{}).
		Where("display_code = ?", code).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *repository) FindProduct(ctx context.Context, id uuid.UUID) (*models.Product, error) {
	var product models.Product
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&product).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load product")
	}
	return &product, nil
}

func (r *repository) ListByUser(ctx context.Context, userID uuid.UUID) ([]models.Reservation, error) {
	var rows []models.Reservation
	err := r.db.WithContext(ctx).Preload("Product").
		Where("user_id = ?", userID).
		Order("pickup_date DESC, created_at DESC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repository) ListByDeliveryOrder(ctx context.Context, orderID uuid.UUID) ([]models.Reservation, error) {
	var rows []models.Reservation
	err := r.db.WithContext(ctx).
		Where("delivery_order_id = ?", orderID).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repository) ListPendingBefore(ctx context.Context, cutoff time.Time) ([]models.Reservation, error) {
	var rows []models.Reservation
	err := r.db.WithContext(ctx).
		Where("status = ? AND pickup_date < ?", enums.ReservationStatusPending, cutoff).
		Order("pickup_date ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repository) ListFuturePendingByUser(ctx context.Context, userID uuid.UUID, after time.Time) ([]models.Reservation, error) {
	var rows []models.Reservation
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND status = ? AND pickup_date > ?", userID, enums.ReservationStatusPending, after).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func mapLookupErr(err error) error {
	if err == gorm.ErrRecordNotFound {
		return pkgerrors.New(pkgerrors.CodeNotFound, "reservation not found")
	}
	if db.IsLockNotAvailable(err) {
		return pkgerrors.Wrap(pkgerrors.CodeLockTimeout, err, "reservation row is locked")
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load reservation")
}
