package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/sejinoh/pickupz-backend/internal/users"
	"github.com/sejinoh/pickupz-backend/pkg/db/models"
	"github.com/sejinoh/pickupz-backend/pkg/logger"
)

type reservationSweeper interface {
	ListPendingBefore(ctx context.Context, cutoff time.Time) ([]models.Reservation, error)
	MarkNoShow(ctx context.Context, reservationID uuid.UUID, today time.Time) (*users.PenaltyResult, error)
}

// NoShowJobParams configure the daily no-show sweep.
type NoShowJobParams struct {
	Logger       *logger.Logger
	Reservations reservationSweeper
	Hour         int
	Now          func() time.Time
}

// NewNoShowJob builds the job that expires reservations whose pickup date
// passed without a pickup. It runs once per day at the configured hour; each
// expiry penalizes the owner, so a second run on the same day must not
// double-strike.
func NewNoShowJob(params NoShowJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Reservations == nil {
		return nil, fmt.Errorf("reservation service required")
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	if params.Hour < 0 || params.Hour > 23 {
		return nil, fmt.Errorf("noshow hour must be between 0 and 23")
	}
	return &noShowJob{
		logg:         params.Logger,
		reservations: params.Reservations,
		hour:         params.Hour,
		now:          now,
	}, nil
}

type noShowJob struct {
	logg         *logger.Logger
	reservations reservationSweeper
	hour         int
	now          func() time.Time
	lastRunDay   string
}

func (j *noShowJob) Name() string { return "noshow-reset" }

func (j *noShowJob) Run(ctx context.Context) error {
	now := j.now().UTC()
	day := now.Format("2006-01-02")
	if now.Hour() < j.hour || j.lastRunDay == day {
		return nil
	}

	startOfDay := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	overdue, err := j.reservations.ListPendingBefore(ctx, startOfDay)
	if err != nil {
		return fmt.Errorf("list overdue reservations: %w", err)
	}

	var errs []error
	expired := 0
	for _, reservation := range overdue {
		if _, err := j.reservations.MarkNoShow(ctx, reservation.ID, now); err != nil {
			rowCtx := j.logg.WithField(ctx, "reservation_id", reservation.ID.String())
			j.logg.Error(rowCtx, "no-show expiry failed", err)
			errs = append(errs, err)
			continue
		}
		expired++
	}

	if len(errs) == 0 {
		j.lastRunDay = day
	}
	logCtx := j.logg.WithFields(ctx, map[string]any{"expired": expired, "failed": len(errs)})
	j.logg.Info(logCtx, "no-show sweep complete")
	return multierr.Combine(errs...)
}
