package cron

import (
	"context"
	"fmt"

	"go.uber.org/multierr"

	"github.com/sejinoh/pickupz-backend/internal/payments"
	"github.com/sejinoh/pickupz-backend/pkg/logger"
)

// PendingReconciler settles one order family's stuck payments.
type PendingReconciler interface {
	ReconcilePending(ctx context.Context) (payments.ReconcileResult, error)
}

// Reconcilers maps an order family label to its reconciler.
type Reconcilers map[string]PendingReconciler

// PaymentReconcileJobParams configure the pending-payment sweep. Delivery and
// courier orders reconcile through separate stores against the same gateway.
type PaymentReconcileJobParams struct {
	Logger      *logger.Logger
	Reconcilers Reconcilers
}

// NewPaymentReconcileJob builds the job that settles orders stuck in
// PENDING_PAYMENT by asking the gateway what actually happened.
func NewPaymentReconcileJob(params PaymentReconcileJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if len(params.Reconcilers) == 0 {
		return nil, fmt.Errorf("at least one reconciler required")
	}
	return &paymentReconcileJob{
		logg:        params.Logger,
		reconcilers: params.Reconcilers,
	}, nil
}

type paymentReconcileJob struct {
	logg        *logger.Logger
	reconcilers Reconcilers
}

func (j *paymentReconcileJob) Name() string { return "payment-reconcile" }

func (j *paymentReconcileJob) Run(ctx context.Context) error {
	var errs []error
	for family, reconciler := range j.reconcilers {
		familyCtx := j.logg.WithField(ctx, "order_family", family)
		result, err := reconciler.ReconcilePending(familyCtx)
		if err != nil {
			j.logg.Error(familyCtx, "payment reconciliation failed", err)
			errs = append(errs, fmt.Errorf("%s: %w", family, err))
			continue
		}
		if result.Confirmed > 0 || result.Failed > 0 || result.Skipped > 0 {
			logCtx := j.logg.WithFields(familyCtx, map[string]any{
				"confirmed": result.Confirmed,
				"failed":    result.Failed,
				"skipped":   result.Skipped,
			})
			j.logg.Info(logCtx, "payment reconciliation complete")
		}
	}
	return multierr.Combine(errs...)
}
