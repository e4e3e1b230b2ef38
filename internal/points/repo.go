package points

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/sejinoh/pickupz-backend/pkg/db/models"
)

// Repository manages persistence for point ledger rows.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, row *models.PointTransaction) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.PointTransaction, error)
	MarkCanceled(ctx context.Context, originalID, compensatingID uuid.UUID) error
	FindActiveUseByReference(ctx context.Context, referenceType string, referenceID uuid.UUID) (*models.PointTransaction, error)
	ListByUser(ctx context.Context, userID uuid.UUID, limit int) ([]models.PointTransaction, error)
	SumByUser(ctx context.Context, userID uuid.UUID) (int, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a point ledger repository bound to the provided database.
func NewRepository(conn *gorm.DB) Repository {
	return &repository{db: conn}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, row *models.PointTransaction) error {
	return r.db.WithContext(ctx).Create(row).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.PointTransaction, error) {
	var row models.PointTransaction
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&row).Error; err != nil {
		return nil, err
	}
	return &row, nil
}

func (r *repository) MarkCanceled(ctx context.Context, originalID, compensatingID uuid.UUID) error {
	return r.db.WithContext(ctx).Model(&models.PointTransaction{}).
		Where("id = ?", originalID).
		Update("canceled_by_id", compensatingID).Error
}

// FindActiveUseByReference returns the not-yet-canceled USE_* row recorded
// against an order, if any.
func (r *repository) FindActiveUseByReference(ctx context.Context, referenceType string, referenceID uuid.UUID) (*models.PointTransaction, error) {
	var row models.PointTransaction
	err := r.db.WithContext(ctx).
		Where("reference_type = ? AND reference_id = ? AND canceled_by_id IS NULL AND amount < 0", referenceType, referenceID).
		First(&row).Error
	if err != nil {
		return nil, err
	}
	return &row, nil
}

func (r *repository) ListByUser(ctx context.Context, userID uuid.UUID, limit int) ([]models.PointTransaction, error) {
	query := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	var rows []models.PointTransaction
	if err := query.Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repository) SumByUser(ctx context.Context, userID uuid.UUID) (int, error) {
	var total *int
	err := r.db.WithContext(ctx).Model(&models.PointTransaction{}).
		Where("user_id = ?", userID).
		Select("SUM(amount)").
		Scan(&total).Error
	if err != nil {
		return 0, err
	}
	if total == nil {
		return 0, nil
	}
	return *total, nil
}
