package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Product represents a daily listed item with finite (or unlimited) stock.
// Stock == nil is the unlimited sentinel: reserve/restore skip capacity math.
type Product struct {
	ID        uuid.UUID      `gorm:"column:id;type:uuid;primaryKey"`
	Name      string         `gorm:"column:name;not null"`
	Price     int            `gorm:"column:price;not null"`
	Stock     *int           `gorm:"column:stock"`
	TotalSold int            `gorm:"column:total_sold;not null;default:0"`
	Visible   bool           `gorm:"column:visible;not null"`
	DeletedAt gorm.DeletedAt `gorm:"column:deleted_at;index"`
	CreatedAt time.Time      `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time      `gorm:"column:updated_at;autoUpdateTime"`
}
