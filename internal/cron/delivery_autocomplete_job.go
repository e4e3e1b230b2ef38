package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/sejinoh/pickupz-backend/pkg/db/models"
	"github.com/sejinoh/pickupz-backend/pkg/logger"
)

const defaultDeliverySLA = 90 * time.Minute

type deliveryCompleter interface {
	ListAutoCompletable(ctx context.Context, cutoff time.Time) ([]models.DeliveryOrder, error)
	Deliver(ctx context.Context, orderID uuid.UUID) (*models.DeliveryOrder, error)
}

// DeliveryAutoCompleteJobParams configure the delivery SLA sweep.
type DeliveryAutoCompleteJobParams struct {
	Logger   *logger.Logger
	Delivery deliveryCompleter
	SLA      time.Duration
	Now      func() time.Time
}

// NewDeliveryAutoCompleteJob builds the job that marks out-for-delivery
// orders as delivered once the courier SLA has elapsed without a manual
// confirmation.
func NewDeliveryAutoCompleteJob(params DeliveryAutoCompleteJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Delivery == nil {
		return nil, fmt.Errorf("delivery service required")
	}
	sla := params.SLA
	if sla <= 0 {
		sla = defaultDeliverySLA
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &deliveryAutoCompleteJob{
		logg:     params.Logger,
		delivery: params.Delivery,
		sla:      sla,
		now:      now,
	}, nil
}

type deliveryAutoCompleteJob struct {
	logg     *logger.Logger
	delivery deliveryCompleter
	sla      time.Duration
	now      func() time.Time
}

func (j *deliveryAutoCompleteJob) Name() string { return "delivery-autocomplete" }

func (j *deliveryAutoCompleteJob) Run(ctx context.Context) error {
	cutoff := j.now().UTC().Add(-j.sla)
	stale, err := j.delivery.ListAutoCompletable(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("list overdue deliveries: %w", err)
	}

	var errs []error
	completed := 0
	for _, order := range stale {
		if _, err := j.delivery.Deliver(ctx, order.ID); err != nil {
			rowCtx := j.logg.WithOrderCode(ctx, order.DisplayCode)
			j.logg.Error(rowCtx, "auto-complete failed", err)
			errs = append(errs, err)
			continue
		}
		completed++
	}

	if completed > 0 || len(errs) > 0 {
		logCtx := j.logg.WithFields(ctx, map[string]any{"completed": completed, "failed": len(errs)})
		j.logg.Info(logCtx, "delivery auto-complete sweep complete")
	}
	return multierr.Combine(errs...)
}
