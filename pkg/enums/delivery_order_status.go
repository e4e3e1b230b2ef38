package enums

import "fmt"

// DeliveryOrderStatus tracks the lifecycle of a home delivery order.
type DeliveryOrderStatus string

const (
	DeliveryOrderStatusPendingPayment DeliveryOrderStatus = "PENDING_PAYMENT"
	DeliveryOrderStatusPaid           DeliveryOrderStatus = "PAID"
	DeliveryOrderStatusAccepted       DeliveryOrderStatus = "ACCEPTED"
	DeliveryOrderStatusOutForDelivery DeliveryOrderStatus = "OUT_FOR_DELIVERY"
	DeliveryOrderStatusDelivered      DeliveryOrderStatus = "DELIVERED"
	DeliveryOrderStatusCanceled       DeliveryOrderStatus = "CANCELED"
	DeliveryOrderStatusFailed         DeliveryOrderStatus = "FAILED"
)

var validDeliveryOrderStatuses = []DeliveryOrderStatus{
	DeliveryOrderStatusPendingPayment,
	DeliveryOrderStatusPaid,
	DeliveryOrderStatusAccepted,
	DeliveryOrderStatusOutForDelivery,
	DeliveryOrderStatusDelivered,
	DeliveryOrderStatusCanceled,
	DeliveryOrderStatusFailed,
}

// String implements fmt.Stringer.
func (d DeliveryOrderStatus) String() string {
	return string(d)
}

// IsValid reports whether the value is a known DeliveryOrderStatus.
func (d DeliveryOrderStatus) IsValid() bool {
	for _, candidate := range validDeliveryOrderStatuses {
		if candidate == d {
			return true
		}
	}
	return false
}

// IsTerminal reports whether the status has no outgoing transitions.
func (d DeliveryOrderStatus) IsTerminal() bool {
	switch d {
	case DeliveryOrderStatusDelivered, DeliveryOrderStatusCanceled, DeliveryOrderStatusFailed:
		return true
	}
	return false
}

// ParseDeliveryOrderStatus converts raw input into a DeliveryOrderStatus.
func ParseDeliveryOrderStatus(value string) (DeliveryOrderStatus, error) {
	for _, candidate := range validDeliveryOrderStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid delivery order status %q", value)
}
