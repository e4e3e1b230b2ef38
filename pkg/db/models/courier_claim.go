package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/sejinoh/pickupz-backend/pkg/enums"
)

// CourierClaim tracks a post-delivery dispute attached to a courier order,
// optionally narrowed to one line item.
type CourierClaim struct {
	ID           uuid.UUID                `gorm:"column:id;type:uuid;primaryKey"`
	OrderID      uuid.UUID                `gorm:"column:order_id;type:uuid;not null;index"`
	ItemID       *uuid.UUID               `gorm:"column:item_id;type:uuid"`
	UserID       uuid.UUID                `gorm:"column:user_id;type:uuid;not null;index"`
	Type         enums.ClaimType          `gorm:"column:type;type:text;not null"`
	Status       enums.ClaimStatus        `gorm:"column:status;type:text;not null;default:'REQUESTED'"`
	Reason       string                   `gorm:"column:reason;not null"`
	RefundAmount *int                     `gorm:"column:refund_amount"`
	PointAmount  *int                     `gorm:"column:point_amount"`
	FeeBearer    enums.ReturnFeeBearer    `gorm:"column:fee_bearer;type:text;not null"`
	ReturnStatus *enums.ClaimReturnStatus `gorm:"column:return_status;type:text"`
	AdminNote    *string                  `gorm:"column:admin_note"`
	ResolvedAt   *time.Time               `gorm:"column:resolved_at"`
	CreatedAt    time.Time                `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt    time.Time                `gorm:"column:updated_at;autoUpdateTime"`
}
