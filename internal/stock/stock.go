// Package stock mutates product stock under a pessimistic row lock. Every
// operation runs inside the caller's transaction so the stock side effect
// commits or rolls back together with the order transition that caused it.
package stock

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/sejinoh/pickupz-backend/pkg/db"
	"github.com/sejinoh/pickupz-backend/pkg/db/models"
	pkgerrors "github.com/sejinoh/pickupz-backend/pkg/errors"
)

// ReserveRequest asks for qty units of one product.
type ReserveRequest struct {
	ProductID uuid.UUID
	Qty       int
}

// Reserve decrements stock by qty while holding the product row lock.
// Products with a nil stock sentinel are unlimited and skip the capacity
// check. TotalSold advances either way.
func Reserve(ctx context.Context, tx *gorm.DB, productID uuid.UUID, qty int) error {
	if qty <= 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "quantity must be greater than 0")
	}

	product, err := lockProduct(ctx, tx, productID)
	if err != nil {
		return err
	}
	if !product.Visible {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "product is not available for sale")
	}

	updates := map[string]any{
		"total_sold": gorm.Expr("total_sold + ?", qty),
	}
	if product.Stock != nil {
		if *product.Stock < qty {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "insufficient stock").
				WithDetails(map[string]any{"available": *product.Stock, "requested": qty})
		}
		updates["stock"] = gorm.Expr("stock - ?", qty)
	}

	if err := tx.WithContext(ctx).Model(&models.Product{}).
		Where("id = ?", product.ID).
		Updates(updates).Error; err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "apply stock decrement")
	}
	return nil
}

// ReserveAll reserves every request or none; the first failure aborts and the
// surrounding transaction rolls back earlier decrements.
func ReserveAll(ctx context.Context, tx *gorm.DB, requests []ReserveRequest) error {
	if len(requests) == 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "at least one stock request is required")
	}
	for _, req := range requests {
		if err := Reserve(ctx, tx, req.ProductID, req.Qty); err != nil {
			return err
		}
	}
	return nil
}

// Restore returns qty units to stock. There is no upper bound: catalog
// capacity is not tracked separately from current stock. Double-restore is
// prevented by the caller's order status guard, not here. The lookup and
// update run unscoped: canceling an order must restore stock even after the
// catalog product has been soft-deleted or hidden.
func Restore(ctx context.Context, tx *gorm.DB, productID uuid.UUID, qty int) error {
	if qty <= 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "quantity must be greater than 0")
	}

	product, err := lockProduct(ctx, tx.Unscoped(), productID)
	if err != nil {
		return err
	}

	updates := map[string]any{
		"total_sold": gorm.Expr("CASE WHEN total_sold >= ? THEN total_sold - ? ELSE 0 END", qty, qty),
	}
	if product.Stock != nil {
		updates["stock"] = gorm.Expr("stock + ?", qty)
	}

	if err := tx.WithContext(ctx).Unscoped().Model(&models.Product{}).
		Where("id = ?", product.ID).
		Updates(updates).Error; err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "apply stock restore")
	}
	return nil
}

func lockProduct(ctx context.Context, tx *gorm.DB, productID uuid.UUID) (*models.Product, error) {
	if productID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "product id required")
	}
	var product models.Product
	err := db.LockForUpdate(tx.WithContext(ctx)).
		Where("id = ?", productID).
		First(&product).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
		}
		if db.IsLockNotAvailable(err) {
			return nil, pkgerrors.Wrap(pkgerrors.CodeLockTimeout, err, "product row is locked")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load product")
	}
	return &product, nil
}
