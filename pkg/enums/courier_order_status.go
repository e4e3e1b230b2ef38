package enums

import "fmt"

// CourierOrderStatus tracks the lifecycle of a parcel order.
type CourierOrderStatus string

const (
	CourierOrderStatusPendingPayment CourierOrderStatus = "PENDING_PAYMENT"
	CourierOrderStatusPaid           CourierOrderStatus = "PAID"
	CourierOrderStatusPreparing      CourierOrderStatus = "PREPARING"
	CourierOrderStatusShipped        CourierOrderStatus = "SHIPPED"
	CourierOrderStatusInTransit      CourierOrderStatus = "IN_TRANSIT"
	CourierOrderStatusDelivered      CourierOrderStatus = "DELIVERED"
	CourierOrderStatusCanceled       CourierOrderStatus = "CANCELED"
	CourierOrderStatusFailed         CourierOrderStatus = "FAILED"
)

var validCourierOrderStatuses = []CourierOrderStatus{
	CourierOrderStatusPendingPayment,
	CourierOrderStatusPaid,
	CourierOrderStatusPreparing,
	CourierOrderStatusShipped,
	CourierOrderStatusInTransit,
	CourierOrderStatusDelivered,
	CourierOrderStatusCanceled,
	CourierOrderStatusFailed,
}

// String implements fmt.Stringer.
func (c CourierOrderStatus) String() string {
	return string(c)
}

// IsValid reports whether the value is a known CourierOrderStatus.
func (c CourierOrderStatus) IsValid() bool {
	for _, candidate := range validCourierOrderStatuses {
		if candidate == c {
			return true
		}
	}
	return false
}

// IsTerminal reports whether the status has no outgoing transitions.
func (c CourierOrderStatus) IsTerminal() bool {
	switch c {
	case CourierOrderStatusDelivered, CourierOrderStatusCanceled, CourierOrderStatusFailed:
		return true
	}
	return false
}

// IsPaidSet reports whether payment has completed for this status, i.e. the
// order sits anywhere past PAID and outside the canceled/failed branch.
func (c CourierOrderStatus) IsPaidSet() bool {
	switch c {
	case CourierOrderStatusPaid, CourierOrderStatusPreparing, CourierOrderStatusShipped,
		CourierOrderStatusInTransit, CourierOrderStatusDelivered:
		return true
	}
	return false
}

// ParseCourierOrderStatus converts raw input into a CourierOrderStatus.
func ParseCourierOrderStatus(value string) (CourierOrderStatus, error) {
	for _, candidate := range validCourierOrderStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid courier order status %q", value)
}
