package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/sejinoh/pickupz-backend/pkg/enums"
)

// Reservation is a pickup hold against a product's daily stock.
// DeliveryOrderID links reservations bundled into a paid delivery order; the
// link drives the reversible PENDING<->PICKED cascade, not the cancel path.
type Reservation struct {
	ID              uuid.UUID               `gorm:"column:id;type:uuid;primaryKey"`
	UserID          uuid.UUID               `gorm:"column:user_id;type:uuid;not null;index"`
	ProductID       uuid.UUID               `gorm:"column:product_id;type:uuid;not null;index"`
	DisplayCode     string                  `gorm:"column:display_code;not null;uniqueIndex"`
	Status          enums.ReservationStatus `gorm:"column:status;type:text;not null;default:'PENDING'"`
	Quantity        int                     `gorm:"column:quantity;not null"`
	Amount          int                     `gorm:"column:amount;not null"`
	PickupDate      time.Time               `gorm:"column:pickup_date;not null;index"`
	DeliveryOrderID *uuid.UUID              `gorm:"column:delivery_order_id;type:uuid;index"`
	PickedAt        *time.Time              `gorm:"column:picked_at"`
	CanceledAt      *time.Time              `gorm:"column:canceled_at"`
	Product         *Product                `gorm:"foreignKey:ProductID"`
	CreatedAt       time.Time               `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt       time.Time               `gorm:"column:updated_at;autoUpdateTime"`
}
