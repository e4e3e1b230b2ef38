package courier

import (
	"github.com/sejinoh/pickupz-backend/internal/lifecycle"
	"github.com/sejinoh/pickupz-backend/pkg/enums"
)

// Events on the courier order state machine.
const (
	EventMarkPaid lifecycle.Event = "mark_paid"
	EventPrepare  lifecycle.Event = "prepare"
	EventShip     lifecycle.Event = "ship"
	EventTransit  lifecycle.Event = "transit"
	EventDeliver  lifecycle.Event = "deliver"
	EventCancel   lifecycle.Event = "cancel"
	EventFail     lifecycle.Event = "fail"
)

// Transitions is the courier order lifecycle table. Shipping straight from
// PAID is legal, the PREPARING stop is optional. Cancel is only reachable
// before the parcel leaves; after that, claims take over.
var Transitions = lifecycle.Table[enums.CourierOrderStatus]{
	EventMarkPaid: {
		From: []enums.CourierOrderStatus{enums.CourierOrderStatusPendingPayment},
		To:   enums.CourierOrderStatusPaid,
	},
	EventPrepare: {
		From: []enums.CourierOrderStatus{enums.CourierOrderStatusPaid},
		To:   enums.CourierOrderStatusPreparing,
	},
	EventShip: {
		From: []enums.CourierOrderStatus{
			enums.CourierOrderStatusPaid,
			enums.CourierOrderStatusPreparing,
		},
		To: enums.CourierOrderStatusShipped,
	},
	EventTransit: {
		From: []enums.CourierOrderStatus{enums.CourierOrderStatusShipped},
		To:   enums.CourierOrderStatusInTransit,
	},
	EventDeliver: {
		From: []enums.CourierOrderStatus{
			enums.CourierOrderStatusShipped,
			enums.CourierOrderStatusInTransit,
		},
		To: enums.CourierOrderStatusDelivered,
	},
	EventCancel: {
		From: []enums.CourierOrderStatus{
			enums.CourierOrderStatusPendingPayment,
			enums.CourierOrderStatusPaid,
			enums.CourierOrderStatusPreparing,
		},
		To: enums.CourierOrderStatusCanceled,
	},
	EventFail: {
		From: []enums.CourierOrderStatus{enums.CourierOrderStatusPendingPayment},
		To:   enums.CourierOrderStatusFailed,
	},
}
