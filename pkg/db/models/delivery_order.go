package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/sejinoh/pickupz-backend/pkg/enums"
)

// DeliveryOrder is a same-day home delivery funded by PG payment, points, or both.
type DeliveryOrder struct {
	ID              uuid.UUID                 `gorm:"column:id;type:uuid;primaryKey"`
	UserID          uuid.UUID                 `gorm:"column:user_id;type:uuid;not null;index"`
	DisplayCode     string                    `gorm:"column:display_code;not null;uniqueIndex"`
	Status          enums.DeliveryOrderStatus `gorm:"column:status;type:text;not null;default:'PENDING_PAYMENT'"`
	TotalAmount     int                       `gorm:"column:total_amount;not null"`
	PointUsed       int                       `gorm:"column:point_used;not null;default:0"`
	Address         string                    `gorm:"column:address;not null"`
	PGTransactionID *string                   `gorm:"column:pg_transaction_id;index"`
	PGApprovalID    *string                   `gorm:"column:pg_approval_id"`
	PaidAt          *time.Time                `gorm:"column:paid_at"`
	AcceptedAt      *time.Time                `gorm:"column:accepted_at"`
	DeliveredAt     *time.Time                `gorm:"column:delivered_at"`
	CanceledAt      *time.Time                `gorm:"column:canceled_at"`
	Reservations    []Reservation             `gorm:"foreignKey:DeliveryOrderID"`
	CreatedAt       time.Time                 `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt       time.Time                 `gorm:"column:updated_at;autoUpdateTime"`
}

// PGPaymentAmount is the portion settled through the payment gateway.
// Orders funded entirely by points have no PG leg to refund.
func (d *DeliveryOrder) PGPaymentAmount() int {
	amount := d.TotalAmount - d.PointUsed
	if amount < 0 {
		return 0
	}
	return amount
}
