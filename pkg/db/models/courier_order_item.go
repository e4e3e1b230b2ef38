package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/sejinoh/pickupz-backend/pkg/enums"
)

// CourierOrderItem is a line of a courier order. Name and price are captured
// at order time and stay decoupled from the live catalog. ItemStatus moves
// independently of the parent order so claims can target a single line.
type CourierOrderItem struct {
	ID          uuid.UUID             `gorm:"column:id;type:uuid;primaryKey"`
	OrderID     uuid.UUID             `gorm:"column:order_id;type:uuid;not null;index"`
	ProductID   uuid.UUID             `gorm:"column:product_id;type:uuid;not null"`
	ProductName string                `gorm:"column:product_name;not null"`
	UnitPrice   int                   `gorm:"column:unit_price;not null"`
	Quantity    int                   `gorm:"column:quantity;not null"`
	Status      enums.OrderItemStatus `gorm:"column:status;type:text;not null;default:'NORMAL'"`
	CreatedAt   time.Time             `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time             `gorm:"column:updated_at;autoUpdateTime"`
}

// LineAmount is the snapshot price times quantity.
func (i *CourierOrderItem) LineAmount() int {
	return i.UnitPrice * i.Quantity
}
