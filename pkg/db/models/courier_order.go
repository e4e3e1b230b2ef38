package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/sejinoh/pickupz-backend/pkg/enums"
)

// CourierOrder is a parcel order shipped through an external courier.
type CourierOrder struct {
	ID              uuid.UUID                `gorm:"column:id;type:uuid;primaryKey"`
	UserID          uuid.UUID                `gorm:"column:user_id;type:uuid;not null;index"`
	DisplayCode     string                   `gorm:"column:display_code;not null;uniqueIndex"`
	Status          enums.CourierOrderStatus `gorm:"column:status;type:text;not null;default:'PENDING_PAYMENT'"`
	TotalAmount     int                      `gorm:"column:total_amount;not null"`
	PointUsed       int                      `gorm:"column:point_used;not null;default:0"`
	Address         string                   `gorm:"column:address;not null"`
	WaybillNo       *string                  `gorm:"column:waybill_no"`
	PGTransactionID *string                  `gorm:"column:pg_transaction_id;index"`
	PGApprovalID    *string                  `gorm:"column:pg_approval_id"`
	PaidAt          *time.Time               `gorm:"column:paid_at"`
	ShippedAt       *time.Time               `gorm:"column:shipped_at"`
	DeliveredAt     *time.Time               `gorm:"column:delivered_at"`
	CanceledAt      *time.Time               `gorm:"column:canceled_at"`
	Items           []CourierOrderItem       `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
	CreatedAt       time.Time                `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt       time.Time                `gorm:"column:updated_at;autoUpdateTime"`
}

// ItemByID returns the preloaded line with the given id, or nil.
func (c *CourierOrder) ItemByID(id uuid.UUID) *CourierOrderItem {
	for i := range c.Items {
		if c.Items[i].ID == id {
			return &c.Items[i]
		}
	}
	return nil
}

// PGPaymentAmount is the portion settled through the payment gateway.
func (c *CourierOrder) PGPaymentAmount() int {
	amount := c.TotalAmount - c.PointUsed
	if amount < 0 {
		return 0
	}
	return amount
}
