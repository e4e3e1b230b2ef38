package payments

import (
	"context"
	"fmt"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"

	pkgerrors "github.com/sejinoh/pickupz-backend/pkg/errors"
	"github.com/sejinoh/pickupz-backend/pkg/logger"
)

var testNow = time.Date(2025, 8, 20, 10, 0, 0, 0, time.UTC)

type fakeStore struct {
	orders map[uuid.UUID]*PendingOrder
	paid   map[uuid.UUID]string
	failed map[uuid.UUID]bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		orders: make(map[uuid.UUID]*PendingOrder),
		paid:   make(map[uuid.UUID]string),
		failed: make(map[uuid.UUID]bool),
	}
}

func (f *fakeStore) add(order PendingOrder) {
	f.orders[order.ID] = &order
}

func (f *fakeStore) FindPendingByDisplayCode(ctx context.Context, code string) (*PendingOrder, error) {
	for _, order := range f.orders {
		if order.DisplayCode == code {
			return order, nil
		}
	}
	return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
}

func (f *fakeStore) MarkPaid(ctx context.Context, orderID uuid.UUID, approvalID string) error {
	if _, done := f.paid[orderID]; done {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "order is already paid")
	}
	f.paid[orderID] = approvalID
	return nil
}

func (f *fakeStore) MarkFailed(ctx context.Context, orderID uuid.UUID) error {
	f.failed[orderID] = true
	return nil
}

func (f *fakeStore) ListPendingBefore(ctx context.Context, cutoff time.Time) ([]PendingOrder, error) {
	var rows []PendingOrder
	for _, order := range f.orders {
		_, isPaid := f.paid[order.ID]
		if !isPaid && !f.failed[order.ID] {
			rows = append(rows, *order)
		}
	}
	return rows, nil
}

type scriptedGateway struct {
	statuses map[string]*StatusResult
	errs     map[string]error
	approve  map[string]string
}

func (g *scriptedGateway) Ready(ctx context.Context, order Order) (*ReadyResult, error) {
	return &ReadyResult{TransactionID: "tid-" + order.DisplayCode}, nil
}

func (g *scriptedGateway) Approve(ctx context.Context, transactionID, token string) (*ApproveResult, error) {
	if approvalID, ok := g.approve[transactionID]; ok {
		return &ApproveResult{ApprovalID: approvalID}, nil
	}
	return nil, fmt.Errorf("unknown transaction %s", transactionID)
}

func (g *scriptedGateway) QueryStatus(ctx context.Context, transactionID string) (*StatusResult, error) {
	if err, ok := g.errs[transactionID]; ok {
		return nil, err
	}
	if status, ok := g.statuses[transactionID]; ok {
		return status, nil
	}
	return &StatusResult{Status: StatusPending}, nil
}

func (g *scriptedGateway) Cancel(ctx context.Context, transactionID string, amount int, reason string) error {
	return nil
}

func strPtr(v string) *string { return &v }

func newReconciler(t *testing.T, store Store, gateway Gateway) *Reconciler {
	t.Helper()
	logg := logger.New(logger.Options{ServiceName: "test", Output: io.Discard})
	r, err := NewReconciler(store, gateway, logg, 2*time.Minute, func() time.Time { return testNow })
	if err != nil {
		t.Fatalf("new reconciler: %v", err)
	}
	return r
}

func TestConfirmCallback(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	userID := uuid.New()
	orderID := uuid.New()
	store.add(PendingOrder{
		ID: orderID, UserID: userID, DisplayCode: "D250820-AAAA",
		TransactionID: strPtr("tid-1"), Amount: 9000,
	})
	gateway := &scriptedGateway{approve: map[string]string{"tid-1": "appr-1"}}
	r := newReconciler(t, store, gateway)
	ctx := context.Background()

	if err := r.ConfirmCallback(ctx, "D250820-AAAA", userID, "tok"); err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if store.paid[orderID] != "appr-1" {
		t.Fatalf("expected order marked paid with appr-1, got %q", store.paid[orderID])
	}

	// Replay hits the family's MarkPaid guard.
	if err := r.ConfirmCallback(ctx, "D250820-AAAA", userID, "tok"); !pkgerrors.HasCode(err, pkgerrors.CodeStateConflict) {
		t.Fatalf("replayed callback must conflict, got %v", err)
	}
}

func TestConfirmCallbackOwnershipMismatchIsNotFound(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	store.add(PendingOrder{
		ID: uuid.New(), UserID: uuid.New(), DisplayCode: "D250820-AAAA",
		TransactionID: strPtr("tid-1"), Amount: 9000,
	})
	r := newReconciler(t, store, &scriptedGateway{})

	err := r.ConfirmCallback(context.Background(), "D250820-AAAA", uuid.New(), "tok")
	if !pkgerrors.HasCode(err, pkgerrors.CodeNotFound) {
		t.Fatalf("stranger's callback must read as not found, got %v", err)
	}
}

func TestConfirmCallbackWithoutTransactionConflicts(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	userID := uuid.New()
	store.add(PendingOrder{ID: uuid.New(), UserID: userID, DisplayCode: "D250820-AAAA", Amount: 9000})
	r := newReconciler(t, store, &scriptedGateway{})

	err := r.ConfirmCallback(context.Background(), "D250820-AAAA", userID, "tok")
	if !pkgerrors.HasCode(err, pkgerrors.CodeStateConflict) {
		t.Fatalf("callback before payment start must conflict, got %v", err)
	}
}

func TestReconcilePendingSettlesPerOrder(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	approved := uuid.New()
	failed := uuid.New()
	pending := uuid.New()
	broken := uuid.New()
	store.add(PendingOrder{ID: approved, UserID: uuid.New(), DisplayCode: "D-1", TransactionID: strPtr("tid-ok"), Amount: 100})
	store.add(PendingOrder{ID: failed, UserID: uuid.New(), DisplayCode: "D-2", TransactionID: strPtr("tid-bad"), Amount: 100})
	store.add(PendingOrder{ID: pending, UserID: uuid.New(), DisplayCode: "D-3", TransactionID: strPtr("tid-wait"), Amount: 100})
	store.add(PendingOrder{ID: broken, UserID: uuid.New(), DisplayCode: "D-4", TransactionID: strPtr("tid-err"), Amount: 100})

	gateway := &scriptedGateway{
		statuses: map[string]*StatusResult{
			"tid-ok":  {Status: StatusApproved, ApprovalID: "appr-ok"},
			"tid-bad": {Status: StatusFailed},
		},
		errs: map[string]error{"tid-err": fmt.Errorf("gateway timeout")},
	}
	r := newReconciler(t, store, gateway)

	result, err := r.ReconcilePending(context.Background())
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if result.Confirmed != 1 || result.Failed != 1 || result.Skipped != 2 {
		t.Fatalf("expected 1/1/2, got %+v", result)
	}
	if store.paid[approved] != "appr-ok" {
		t.Fatalf("approved order should be marked paid")
	}
	if !store.failed[failed] {
		t.Fatalf("failed order should be marked failed")
	}
	if _, done := store.paid[pending]; done {
		t.Fatalf("still-pending order must be left alone")
	}
}
