package reservations

import (
	"github.com/sejinoh/pickupz-backend/internal/lifecycle"
	"github.com/sejinoh/pickupz-backend/pkg/enums"
)

// Events on the reservation state machine. Pick and Unpick are the reversible
// pair driven by delivery-order payment and cancellation; Cancel and NoShow
// are terminal.
const (
	EventPick   lifecycle.Event = "pick"
	EventUnpick lifecycle.Event = "unpick"
	EventCancel lifecycle.Event = "cancel"
	EventNoShow lifecycle.Event = "no_show"
)

// Transitions is the reservation lifecycle table.
var Transitions = lifecycle.Table[enums.ReservationStatus]{
	EventPick: {
		From: []enums.ReservationStatus{enums.ReservationStatusPending},
		To:   enums.ReservationStatusPicked,
	},
	EventUnpick: {
		From: []enums.ReservationStatus{enums.ReservationStatusPicked},
		To:   enums.ReservationStatusPending,
	},
	EventCancel: {
		From: []enums.ReservationStatus{enums.ReservationStatusPending},
		To:   enums.ReservationStatusCanceled,
	},
	EventNoShow: {
		From: []enums.ReservationStatus{enums.ReservationStatusPending},
		To:   enums.ReservationStatusNoShow,
	},
}
