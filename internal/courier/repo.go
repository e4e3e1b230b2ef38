package courier

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

// Repository manages persistence for courier orders and their line items.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, row *models.CourierOrder) error
	CreateItems(ctx context.Context, items []models.CourierOrderItem) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.CourierOrder, error)
	FindByDisplayCode(ctx context.Context, code string) (*models.CourierOrder, error)
	LockByID(ctx context.Context, id uuid.UUID) (*models.CourierOrder, error)
	LockByDisplayCode(ctx context.Context, code string) (*models.CourierOrder, error)
	Update(ctx context.Context, id uuid.UUID, updates map[string]any) error
	UpdateItem(ctx context.Context, itemID uuid.UUID, updates map[string]any) error
	ListItems(ctx context.Context, orderID uuid.UUID) ([]models.CourierOrderItem, error)
	ExistsDisplayCode(ctx context.Context, code string) (bool, error)
	FindProduct(ctx context.Context, id uuid.UUID) (*models.Product, error)
	ListByUser(ctx context.Context, userID uuid.UUID) ([]models.CourierOrder, error)
	ListPendingPaymentBefore(ctx context.Context, cutoff time.Time) ([]models.CourierOrder, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a courier order repository bound to the provided database.
func NewRepository(conn *gorm.DB) Repository {
	return &repository{db: conn}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, row *models.CourierOrder) error {
	return r.db.WithContext(ctx).Create(row).Error
}

func (r *repository) CreateItems(ctx context.Context, items []models.CourierOrderItem) error {
	return r.db.WithContext(ctx).Create(&items).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.CourierOrder, error) {
	var row models.CourierOrder
	err := r.db.WithContext(ctx).Preload("Items").Where("id = ?", id).First(&row).Error
	if err != nil {
		return nil, mapLookupErr(err)
	}
	return &row, nil
}

func (r *repository) FindByDisplayCode(ctx context.Context, code string) (*models.CourierOrder, error) {
	var row models.CourierOrder
	err := r.db.WithContext(ctx).Preload("Items").Where("display_code = ?", code).First(&row).Error
	if err != nil {
		return nil, mapLookupErr(err)
	}
	return &row, nil
}

// LockByID loads the order while holding its row lock. All status writes go
// through this read.
func (r *repository) LockByID(ctx context.Context, id uuid.UUID) (*models.CourierOrder, error) {
	var row models.CourierOrder
	err := db.LockForUpdate(r.db.WithContext(ctx)).Preload("Items").Where("id = ?", id).First(&row).Error
	if err != nil {
		return nil, mapLookupErr(err)
	}
	return &row, nil
}

func (r *repository) LockByDisplayCode(ctx context.Context, code string) (*models.CourierOrder, error) {
	var row models.CourierOrder
	err := db.LockForUpdate(r.db.WithContext(ctx)).Where("display_code = ?", code).First(&row).Error
	if err != nil {
		return nil, mapLookupErr(err)
	}
	return &row, nil
}

func (r *repository) Update(ctx context.Context, id uuid.UUID, updates map[string]any) error {
	return r.db.WithContext(ctx).Model(&models.CourierOrder{}).Where("id = ?", id).Updates(updates).Error
}

func (r *repository) UpdateItem(ctx context.Context, itemID uuid.UUID, updates map[string]any) error {
	return r.db.WithContext(ctx).Model(&models.CourierOrderItem{}).Where("id = ?", itemID).Updates(updates).Error
}

func (r *repository) ListItems(ctx context.Context, orderID uuid.UUID) ([]models.CourierOrderItem, error) {
	var items []models.CourierOrderItem
	err := r.db.WithContext(ctx).Where("order_id = ?", orderID).Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repository) ExistsDisplayCode(ctx context.Context, code string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.CourierOrder{}).
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

func (r *repository) ListByUser(ctx context.Context, userID uuid.UUID) ([]models.CourierOrder, error) {
	var rows []models.CourierOrder
	err := r.db.WithContext(ctx).Preload("Items").
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repository) ListPendingPaymentBefore(ctx context.Context, cutoff time.Time) ([]models.CourierOrder, error) {
	var rows []models.CourierOrder
	err := r.db.WithContext(ctx).
		Where("status = ? AND pg_transaction_id IS NOT NULL AND created_at < ?",
			enums.CourierOrderStatusPendingPayment, cutoff).
		Order("created_at ASC").
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
