package claims

import (
	"github.com/sejinoh/pickupz-backend/internal/lifecycle"
	"github.com/sejinoh/pickupz-backend/pkg/enums"
)

// Events on the claim state machine.
const (
	EventReview  lifecycle.Event = "review"
	EventApprove lifecycle.Event = "approve"
	EventReject  lifecycle.Event = "reject"
	EventResolve lifecycle.Event = "resolve"
)

// Transitions is the claim lifecycle table. Approve and Reject are reachable
// straight from REQUESTED, the IN_REVIEW stop is optional.
var Transitions = lifecycle.Table[enums.ClaimStatus]{
	EventReview: {
		From: []enums.ClaimStatus{enums.ClaimStatusRequested},
		To:   enums.ClaimStatusInReview,
	},
	EventApprove: {
		From: []enums.ClaimStatus{enums.ClaimStatusRequested, enums.ClaimStatusInReview},
		To:   enums.ClaimStatusApproved,
	},
	EventReject: {
		From: []enums.ClaimStatus{enums.ClaimStatusRequested, enums.ClaimStatusInReview},
		To:   enums.ClaimStatusRejected,
	},
	EventResolve: {
		From: []enums.ClaimStatus{enums.ClaimStatusApproved},
		To:   enums.ClaimStatusResolved,
	},
}
