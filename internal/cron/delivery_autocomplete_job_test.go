package cron

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/sejinoh/pickupz-backend/pkg/db/models"
	pkgerrors "github.com/sejinoh/pickupz-backend/pkg/errors"
)

type fakeDeliveryCompleter struct {
	stale     []models.DeliveryOrder
	delivered []uuid.UUID
	failID    uuid.UUID
}

func (f *fakeDeliveryCompleter) ListAutoCompletable(_ context.Context, cutoff time.Time) ([]models.DeliveryOrder, error) {
	var due []models.DeliveryOrder
	for _, o := range f.stale {
		if o.AcceptedAt != nil && o.AcceptedAt.Before(cutoff) {
			due = append(due, o)
		}
	}
	return due, nil
}

func (f *fakeDeliveryCompleter) Deliver(_ context.Context, id uuid.UUID) (*models.DeliveryOrder, error) {
	if id == f.failID {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "order is CANCELED and cannot deliver")
	}
	f.delivered = append(f.delivered, id)
	return &models.DeliveryOrder{ID: id}, nil
}

func TestDeliveryAutoCompleteRespectsSLA(t *testing.T) {
	now := time.Date(2025, 8, 20, 12, 0, 0, 0, time.UTC)
	oldAccept := now.Add(-2 * time.Hour)
	freshAccept := now.Add(-30 * time.Minute)
	overdue := models.DeliveryOrder{ID: uuid.New(), DisplayCode: "D250820-AAAA", AcceptedAt: &oldAccept}
	fresh := models.DeliveryOrder{ID: uuid.New(), DisplayCode: "D250820-BBBB", AcceptedAt: &freshAccept}
	completer := &fakeDeliveryCompleter{stale: []models.DeliveryOrder{overdue, fresh}}

	job, err := NewDeliveryAutoCompleteJob(DeliveryAutoCompleteJobParams{
		Logger:   testServiceLogger(),
		Delivery: completer,
		SLA:      90 * time.Minute,
		Now:      func() time.Time { return now },
	})
	if err != nil {
		t.Fatalf("new job: %v", err)
	}

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(completer.delivered) != 1 || completer.delivered[0] != overdue.ID {
		t.Fatalf("only the overdue order should complete, got %v", completer.delivered)
	}
}

func TestDeliveryAutoCompleteContinuesPastFailures(t *testing.T) {
	now := time.Date(2025, 8, 20, 12, 0, 0, 0, time.UTC)
	oldAccept := now.Add(-3 * time.Hour)
	bad := models.DeliveryOrder{ID: uuid.New(), DisplayCode: "D250820-CCCC", AcceptedAt: &oldAccept}
	good := models.DeliveryOrder{ID: uuid.New(), DisplayCode: "D250820-DDDD", AcceptedAt: &oldAccept}
	completer := &fakeDeliveryCompleter{stale: []models.DeliveryOrder{bad, good}, failID: bad.ID}

	job, err := NewDeliveryAutoCompleteJob(DeliveryAutoCompleteJobParams{
		Logger:   testServiceLogger(),
		Delivery: completer,
		Now:      func() time.Time { return now },
	})
	if err != nil {
		t.Fatalf("new job: %v", err)
	}

	if err := job.Run(context.Background()); err == nil {
		t.Fatalf("expected the row failure to surface")
	}
	if len(completer.delivered) != 1 || completer.delivered[0] != good.ID {
		t.Fatalf("good row should still complete, got %v", completer.delivered)
	}
}
