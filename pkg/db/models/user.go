package models

import (
	"time"

	"github.com/google/uuid"
)

// User carries the denormalized point balance and the no-show penalty state.
// PointBalance is always recomputable from the point_transactions ledger.
type User struct {
	ID               uuid.UUID  `gorm:"column:id;type:uuid;primaryKey"`
	Nickname         string     `gorm:"column:nickname;not null"`
	PointBalance     int        `gorm:"column:point_balance;not null;default:0"`
	MonthlyWarnCount int        `gorm:"column:monthly_warn_count;not null;default:0"`
	RestrictedUntil  *time.Time `gorm:"column:restricted_until"`
	CreatedAt        time.Time  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt        time.Time  `gorm:"column:updated_at;autoUpdateTime"`
}
