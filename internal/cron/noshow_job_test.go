package cron

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/sejinoh/pickupz-backend/internal/users"
	"github.com/sejinoh/pickupz-backend/pkg/db/models"
	pkgerrors "github.com/sejinoh/pickupz-backend/pkg/errors"
)

type fakeReservationSweeper struct {
	pending []models.Reservation
	marked  []uuid.UUID
	failID  uuid.UUID
}

func (f *fakeReservationSweeper) ListPendingBefore(_ context.Context, cutoff time.Time) ([]models.Reservation, error) {
	var due []models.Reservation
	for _, r := range f.pending {
		if r.PickupDate.Before(cutoff) {
			due = append(due, r)
		}
	}
	return due, nil
}

func (f *fakeReservationSweeper) MarkNoShow(_ context.Context, id uuid.UUID, _ time.Time) (*users.PenaltyResult, error) {
	if id == f.failID {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "reservation is CANCELED and cannot expire")
	}
	f.marked = append(f.marked, id)
	return &users.PenaltyResult{WarnCount: 1}, nil
}

func TestNoShowJobExpiresOverdueOncePerDay(t *testing.T) {
	now := time.Date(2025, 8, 20, 6, 0, 0, 0, time.UTC)
	overdue := models.Reservation{ID: uuid.New(), PickupDate: now.AddDate(0, 0, -1)}
	today := models.Reservation{ID: uuid.New(), PickupDate: now}
	sweeper := &fakeReservationSweeper{pending: []models.Reservation{overdue, today}}

	job, err := NewNoShowJob(NoShowJobParams{
		Logger:       testServiceLogger(),
		Reservations: sweeper,
		Hour:         5,
		Now:          func() time.Time { return now },
	})
	if err != nil {
		t.Fatalf("new job: %v", err)
	}

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(sweeper.marked) != 1 || sweeper.marked[0] != overdue.ID {
		t.Fatalf("only yesterday's reservation should expire, marked %v", sweeper.marked)
	}

	// Same day, second cycle: nothing happens.
	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("rerun: %v", err)
	}
	if len(sweeper.marked) != 1 {
		t.Fatalf("job must run once per day, marked %v", sweeper.marked)
	}
}

func TestNoShowJobWaitsForConfiguredHour(t *testing.T) {
	now := time.Date(2025, 8, 20, 3, 0, 0, 0, time.UTC)
	sweeper := &fakeReservationSweeper{pending: []models.Reservation{
		{ID: uuid.New(), PickupDate: now.AddDate(0, 0, -1)},
	}}

	job, err := NewNoShowJob(NoShowJobParams{
		Logger:       testServiceLogger(),
		Reservations: sweeper,
		Hour:         5,
		Now:          func() time.Time { return now },
	})
	if err != nil {
		t.Fatalf("new job: %v", err)
	}
	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(sweeper.marked) != 0 {
		t.Fatalf("job must not run before its hour")
	}
}

func TestNoShowJobContinuesPastPoisonedRows(t *testing.T) {
	now := time.Date(2025, 8, 20, 6, 0, 0, 0, time.UTC)
	bad := models.Reservation{ID: uuid.New(), PickupDate: now.AddDate(0, 0, -2)}
	good := models.Reservation{ID: uuid.New(), PickupDate: now.AddDate(0, 0, -1)}
	sweeper := &fakeReservationSweeper{pending: []models.Reservation{bad, good}, failID: bad.ID}

	job, err := NewNoShowJob(NoShowJobParams{
		Logger:       testServiceLogger(),
		Reservations: sweeper,
		Hour:         5,
		Now:          func() time.Time { return now },
	})
	if err != nil {
		t.Fatalf("new job: %v", err)
	}

	if err := job.Run(context.Background()); err == nil {
		t.Fatalf("expected the row failure to surface")
	}
	if len(sweeper.marked) != 1 || sweeper.marked[0] != good.ID {
		t.Fatalf("good row should still expire, marked %v", sweeper.marked)
	}

	// The day is not consumed, so the failed row is retried next cycle.
	if err := job.Run(context.Background()); err == nil {
		t.Fatalf("expected failure again on retry")
	}
	if len(sweeper.marked) != 2 {
		t.Fatalf("retry should re-attempt remaining rows, marked %v", sweeper.marked)
	}
}
