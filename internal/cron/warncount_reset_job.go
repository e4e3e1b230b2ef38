package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/sejinoh/pickupz-backend/pkg/logger"
)

type warnCountResetter interface {
	ResetAllWarnCounts(ctx context.Context) (int64, error)
}

// WarnCountResetJobParams configure the monthly strike reset.
type WarnCountResetJobParams struct {
	Logger *logger.Logger
	Users  warnCountResetter
	Now    func() time.Time
}

// NewWarnCountResetJob builds the job that clears accumulated no-show strikes
// on the first day of each month. Restriction windows already in force keep
// their end dates; only the counters reset.
func NewWarnCountResetJob(params WarnCountResetJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Users == nil {
		return nil, fmt.Errorf("user repository required")
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &warnCountResetJob{
		logg:  params.Logger,
		users: params.Users,
		now:   now,
	}, nil
}

type warnCountResetJob struct {
	logg         *logger.Logger
	users        warnCountResetter
	now          func() time.Time
	lastRunMonth string
}

func (j *warnCountResetJob) Name() string { return "warncount-reset" }

func (j *warnCountResetJob) Run(ctx context.Context) error {
	now := j.now().UTC()
	month := now.Format("2006-01")
	if now.Day() != 1 || j.lastRunMonth == month {
		return nil
	}

	reset, err := j.users.ResetAllWarnCounts(ctx)
	if err != nil {
		return fmt.Errorf("reset warn counts: %w", err)
	}

	j.lastRunMonth = month
	logCtx := j.logg.WithField(ctx, "users_reset", reset)
	j.logg.Info(logCtx, "monthly warn count reset complete")
	return nil
}
