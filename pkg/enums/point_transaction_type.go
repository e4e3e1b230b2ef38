package enums

import (
	"fmt"
	"strings"
)

// PointTransactionType classifies a row in the append-only point ledger.
// EARN_* and USE_* rows are originals; CANCEL_EARN and CANCEL_USE are
// compensating entries referencing an original row.
type PointTransactionType string

const (
	PointTransactionTypeEarnReward       PointTransactionType = "EARN_REWARD"
	PointTransactionTypeEarnCompensation PointTransactionType = "EARN_COMPENSATION"
	PointTransactionTypeEarnPromotion    PointTransactionType = "EARN_PROMOTION"
	PointTransactionTypeUseOrder         PointTransactionType = "USE_ORDER"
	PointTransactionTypeCancelEarn       PointTransactionType = "CANCEL_EARN"
	PointTransactionTypeCancelUse        PointTransactionType = "CANCEL_USE"
)

var validPointTransactionTypes = []PointTransactionType{
	PointTransactionTypeEarnReward,
	PointTransactionTypeEarnCompensation,
	PointTransactionTypeEarnPromotion,
	PointTransactionTypeUseOrder,
	PointTransactionTypeCancelEarn,
	PointTransactionTypeCancelUse,
}

// String implements fmt.Stringer.
func (p PointTransactionType) String() string {
	return string(p)
}

// IsValid reports whether the value is a known PointTransactionType.
func (p PointTransactionType) IsValid() bool {
	for _, candidate := range validPointTransactionTypes {
		if candidate == p {
			return true
		}
	}
	return false
}

// IsEarn reports whether the type is an original earn entry.
func (p PointTransactionType) IsEarn() bool {
	return strings.HasPrefix(string(p), "EARN_")
}

// IsUse reports whether the type is an original use entry.
func (p PointTransactionType) IsUse() bool {
	return strings.HasPrefix(string(p), "USE_")
}

// ParsePointTransactionType converts raw input into a PointTransactionType.
func ParsePointTransactionType(value string) (PointTransactionType, error) {
	for _, candidate := range validPointTransactionTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid point transaction type %q", value)
}
