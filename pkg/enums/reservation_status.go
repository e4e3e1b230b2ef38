package enums

import "fmt"

// ReservationStatus tracks the lifecycle of a pickup reservation.
type ReservationStatus string

const (
	ReservationStatusPending  ReservationStatus = "PENDING"
	ReservationStatusPicked   ReservationStatus = "PICKED"
	ReservationStatusCanceled ReservationStatus = "CANCELED"
	ReservationStatusNoShow   ReservationStatus = "NO_SHOW"
)

var validReservationStatuses = []ReservationStatus{
	ReservationStatusPending,
	ReservationStatusPicked,
	ReservationStatusCanceled,
	ReservationStatusNoShow,
}

// String implements fmt.Stringer.
func (r ReservationStatus) String() string {
	return string(r)
}

// IsValid reports whether the value is a known ReservationStatus.
func (r ReservationStatus) IsValid() bool {
	for _, candidate := range validReservationStatuses {
		if candidate == r {
			return true
		}
	}
	return false
}

// IsTerminal reports whether the status has no outgoing transitions.
func (r ReservationStatus) IsTerminal() bool {
	return r == ReservationStatusCanceled || r == ReservationStatusNoShow
}

// ParseReservationStatus converts raw input into a ReservationStatus.
func ParseReservationStatus(value string) (ReservationStatus, error) {
	for _, candidate := range validReservationStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid reservation status %q", value)
}
