package enums

import "fmt"

// OrderItemStatus tracks a courier order line independently of the parent
// order, so a claim can settle one line while the rest stay NORMAL.
type OrderItemStatus string

const (
	OrderItemStatusNormal         OrderItemStatus = "NORMAL"
	OrderItemStatusClaimRequested OrderItemStatus = "CLAIM_REQUESTED"
	OrderItemStatusClaimResolved  OrderItemStatus = "CLAIM_RESOLVED"
	OrderItemStatusRefunded       OrderItemStatus = "REFUNDED"
)

var validOrderItemStatuses = []OrderItemStatus{
	OrderItemStatusNormal,
	OrderItemStatusClaimRequested,
	OrderItemStatusClaimResolved,
	OrderItemStatusRefunded,
}

// String implements fmt.Stringer.
func (o OrderItemStatus) String() string {
	return string(o)
}

// IsValid reports whether the value is a known OrderItemStatus.
func (o OrderItemStatus) IsValid() bool {
	for _, candidate := range validOrderItemStatuses {
		if candidate == o {
			return true
		}
	}
	return false
}

// ParseOrderItemStatus converts raw input into an OrderItemStatus.
func ParseOrderItemStatus(value string) (OrderItemStatus, error) {
	for _, candidate := range validOrderItemStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid order item status %q", value)
}
