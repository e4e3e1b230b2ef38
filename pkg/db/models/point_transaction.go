package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/sejinoh/pickupz-backend/pkg/enums"
)

// PointTransaction is one immutable row of the append-only point ledger.
// Amount is signed; BalanceAfter snapshots the running sum at append time.
type PointTransaction struct {
	ID            uuid.UUID                  `gorm:"column:id;type:uuid;primaryKey"`
	UserID        uuid.UUID                  `gorm:"column:user_id;type:uuid;not null;index"`
	Type          enums.PointTransactionType `gorm:"column:type;type:text;not null"`
	Amount        int                        `gorm:"column:amount;not null"`
	BalanceAfter  int                        `gorm:"column:balance_after;not null"`
	Reason        string                     `gorm:"column:reason;not null"`
	ReferenceType *string                    `gorm:"column:reference_type"`
	ReferenceID   *uuid.UUID                 `gorm:"column:reference_id;type:uuid"`
	Actor         string                     `gorm:"column:actor;not null"`
	CanceledByID  *uuid.UUID                 `gorm:"column:canceled_by_id;type:uuid"`
	CreatedAt     time.Time                  `gorm:"column:created_at;autoCreateTime"`
}
