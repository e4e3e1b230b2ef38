package delivery

import (
	"github.com/sejinoh/pickupz-backend/internal/lifecycle"
	"github.com/sejinoh/pickupz-backend/pkg/enums"
)

// Events on the delivery order state machine.
const (
	EventMarkPaid lifecycle.Event = "mark_paid"
	EventAccept   lifecycle.Event = "accept"
	EventDispatch lifecycle.Event = "dispatch"
	EventDeliver  lifecycle.Event = "deliver"
	EventCancel   lifecycle.Event = "cancel"
	EventFail     lifecycle.Event = "fail"
)

// Transitions is the delivery order lifecycle table. Cancel is reachable from
// PAID as well as PENDING_PAYMENT; everything past ACCEPTED is final-sale.
var Transitions = lifecycle.Table[enums.DeliveryOrderStatus]{
	EventMarkPaid: {
		From: []enums.DeliveryOrderStatus{enums.DeliveryOrderStatusPendingPayment},
		To:   enums.DeliveryOrderStatusPaid,
	},
	EventAccept: {
		From: []enums.DeliveryOrderStatus{enums.DeliveryOrderStatusPaid},
		To:   enums.DeliveryOrderStatusAccepted,
	},
	EventDispatch: {
		From: []enums.DeliveryOrderStatus{enums.DeliveryOrderStatusAccepted},
		To:   enums.DeliveryOrderStatusOutForDelivery,
	},
	EventDeliver: {
		From: []enums.DeliveryOrderStatus{enums.DeliveryOrderStatusOutForDelivery},
		To:   enums.DeliveryOrderStatusDelivered,
	},
	EventCancel: {
		From: []enums.DeliveryOrderStatus{
			enums.DeliveryOrderStatusPendingPayment,
			enums.DeliveryOrderStatusPaid,
		},
		To: enums.DeliveryOrderStatusCanceled,
	},
	EventFail: {
		From: []enums.DeliveryOrderStatus{enums.DeliveryOrderStatusPendingPayment},
		To:   enums.DeliveryOrderStatusFailed,
	},
}
