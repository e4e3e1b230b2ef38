package payments

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	pkgerrors "github.com/sejinoh/pickupz-backend/pkg/errors"
	"github.com/sejinoh/pickupz-backend/pkg/logger"
)

// PendingOrder is the reconciler's view of one unpaid order, independent of
// which order family it came from.
type PendingOrder struct {
	ID            uuid.UUID
	UserID        uuid.UUID
	DisplayCode   string
	TransactionID *string
	Amount        int
}

// Store adapts one order family to the reconciler. MarkPaid carries the
// family's own transition guard, which is what makes duplicate confirmations
// safe to throw at it.
type Store interface {
	FindPendingByDisplayCode(ctx context.Context, code string) (*PendingOrder, error)
	MarkPaid(ctx context.Context, orderID uuid.UUID, approvalID string) error
	MarkFailed(ctx context.Context, orderID uuid.UUID) error
	ListPendingBefore(ctx context.Context, cutoff time.Time) ([]PendingOrder, error)
}

// ReconcileResult counts what one sweep did.
type ReconcileResult struct {
	Confirmed int
	Failed    int
	Skipped   int
}

// Reconciler confirms payments against the gateway: synchronously on the
// return callback, and by periodic sweep for callbacks that never arrived.
type Reconciler struct {
	store   Store
	gateway Gateway
	logg    *logger.Logger
	grace   time.Duration
	now     func() time.Time
}

// NewReconciler wires a reconciler for one order family.
func NewReconciler(store Store, gateway Gateway, logg *logger.Logger, grace time.Duration, now func() time.Time) (*Reconciler, error) {
	if store == nil {
		return nil, fmt.Errorf("order store required")
	}
	if gateway == nil {
		return nil, fmt.Errorf("payment gateway required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	if grace <= 0 {
		return nil, fmt.Errorf("grace window must be positive")
	}
	if now == nil {
		now = time.Now
	}
	return &Reconciler{store: store, gateway: gateway, logg: logg, grace: grace, now: now}, nil
}

// ConfirmCallback handles the customer's return from the payment page:
// approve the transaction at the gateway, then mark the order paid. The
// family's MarkPaid guard makes a replayed callback fail cleanly instead of
// paying twice.
func (r *Reconciler) ConfirmCallback(ctx context.Context, displayCode string, userID uuid.UUID, token string) error {
	order, err := r.store.FindPendingByDisplayCode(ctx, displayCode)
	if err != nil {
		return err
	}
	if order.UserID != userID {
		return pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	}
	if order.TransactionID == nil {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "payment has not been started for this order")
	}

	approved, err := r.gateway.Approve(ctx, *order.TransactionID, token)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "approve payment")
	}
	return r.store.MarkPaid(ctx, order.ID, approved.ApprovalID)
}

// ReconcilePending sweeps unpaid orders whose payment window opened before
// the grace cutoff and settles each against the gateway's view. Per-order
// failures are logged and never abort the batch.
func (r *Reconciler) ReconcilePending(ctx context.Context) (ReconcileResult, error) {
	var result ReconcileResult
	cutoff := r.now().Add(-r.grace)
	orders, err := r.store.ListPendingBefore(ctx, cutoff)
	if err != nil {
		return result, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list pending orders")
	}

	for i := range orders {
		order := orders[i]
		logCtx := r.logg.WithOrderCode(ctx, order.DisplayCode)
		if order.TransactionID == nil {
			result.Skipped++
			continue
		}

		status, err := r.gateway.QueryStatus(ctx, *order.TransactionID)
		if err != nil {
			r.logg.Error(logCtx, "query payment status failed", err)
			result.Skipped++
			continue
		}

		switch status.Status {
		case StatusApproved:
			if err := r.store.MarkPaid(ctx, order.ID, status.ApprovalID); err != nil {
				r.logg.Error(logCtx, "mark paid failed", err)
				result.Skipped++
				continue
			}
			result.Confirmed++
		case StatusFailed:
			if err := r.store.MarkFailed(ctx, order.ID); err != nil {
				r.logg.Error(logCtx, "mark failed failed", err)
				result.Skipped++
				continue
			}
			result.Failed++
		default:
			result.Skipped++
		}
	}
	return result, nil
}
