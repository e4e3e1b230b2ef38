package claims

import (
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/sejinoh/pickupz-backend/internal/courier"
	"github.com/sejinoh/pickupz-backend/internal/payments"
	"github.com/sejinoh/pickupz-backend/internal/points"
	"github.com/sejinoh/pickupz-backend/internal/users"
	"github.com/sejinoh/pickupz-backend/pkg/db/models"
	"github.com/sejinoh/pickupz-backend/pkg/enums"
	pkgerrors "github.com/sejinoh/pickupz-backend/pkg/errors"
	"github.com/sejinoh/pickupz-backend/pkg/logger"
)

var testNow = time.Date(2025, 8, 20, 10, 0, 0, 0, time.UTC)

type gormTxRunner struct {
	db *gorm.DB
}

func (g gormTxRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return g.db.WithContext(ctx).Transaction(fn)
}

type fakeGateway struct {
	refunds    []int
	failCancel bool
}

func (f *fakeGateway) Ready(ctx context.Context, order payments.Order) (*payments.ReadyResult, error) {
	return &payments.ReadyResult{TransactionID: "tid-" + order.DisplayCode}, nil
}

func (f *fakeGateway) Approve(ctx context.Context, transactionID, token string) (*payments.ApproveResult, error) {
	return &payments.ApproveResult{ApprovalID: "appr"}, nil
}

func (f *fakeGateway) QueryStatus(ctx context.Context, transactionID string) (*payments.StatusResult, error) {
	return &payments.StatusResult{Status: payments.StatusApproved}, nil
}

func (f *fakeGateway) Cancel(ctx context.Context, transactionID string, amount int, reason string) error {
	if f.failCancel {
		return pkgerrors.New(pkgerrors.CodeDependency, "gateway unavailable")
	}
	f.refunds = append(f.refunds, amount)
	return nil
}

type testEnv struct {
	svc     Service
	points  points.Service
	orders  courier.Repository
	gateway *fakeGateway
	conn    *gorm.DB
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	dsn := "file:claims_" + uuid.NewString() + "?mode=memory&cache=shared"
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	err = conn.AutoMigrate(
		&models.User{}, &models.CourierOrder{}, &models.CourierOrderItem{},
		&models.CourierClaim{}, &models.PointTransaction{},
	)
	if err != nil {
		t.Fatalf("migrate: %v", err)
	}

	logg := logger.New(logger.Options{ServiceName: "test", Output: io.Discard})
	runner := gormTxRunner{db: conn}
	userRepo := users.NewRepository(conn)
	pointSvc, err := points.NewService(points.NewRepository(conn), userRepo, runner, logg)
	if err != nil {
		t.Fatalf("point service: %v", err)
	}
	orderRepo := courier.NewRepository(conn)
	gateway := &fakeGateway{}
	svc, err := NewService(NewRepository(conn), orderRepo, pointSvc, gateway, runner, logg, func() time.Time { return testNow })
	if err != nil {
		t.Fatalf("claim service: %v", err)
	}
	return &testEnv{svc: svc, points: pointSvc, orders: orderRepo, gateway: gateway, conn: conn}
}

func (e *testEnv) seedUser(t *testing.T) uuid.UUID {
	t.Helper()
	user := models.User{ID: uuid.New(), Nickname: "tester"}
	if err := e.conn.Create(&user).Error; err != nil {
		t.Fatalf("seed user: %v", err)
	}
	return user.ID
}

type seededOrder struct {
	order *models.CourierOrder
	items []models.CourierOrderItem
}

func (e *testEnv) seedOrder(t *testing.T, userID uuid.UUID, status enums.CourierOrderStatus, productIDs ...uuid.UUID) seededOrder {
	t.Helper()
	tid := "tid-" + uuid.NewString()[:8]
	order := models.CourierOrder{
		ID:              uuid.New(),
		UserID:          userID,
		DisplayCode:     "C" + uuid.NewString()[:13],
		Status:          status,
		TotalAmount:     20000,
		PointUsed:       2000,
		Address:         "12 Harbor Rd",
		PGTransactionID: &tid,
	}
	if err := e.conn.Create(&order).Error; err != nil {
		t.Fatalf("seed order: %v", err)
	}
	var items []models.CourierOrderItem
	for _, productID := range productIDs {
		item := models.CourierOrderItem{
			ID:          uuid.New(),
			OrderID:     order.ID,
			ProductID:   productID,
			ProductName: "salt bread",
			UnitPrice:   4500,
			Quantity:    2,
			Status:      enums.OrderItemStatusNormal,
		}
		if err := e.conn.Create(&item).Error; err != nil {
			t.Fatalf("seed item: %v", err)
		}
		items = append(items, item)
	}
	return seededOrder{order: &order, items: items}
}

func (e *testEnv) itemStatus(t *testing.T, itemID uuid.UUID) enums.OrderItemStatus {
	t.Helper()
	var item models.CourierOrderItem
	if err := e.conn.First(&item, "id = ?", itemID).Error; err != nil {
		t.Fatalf("load item: %v", err)
	}
	return item.Status
}

func TestCreateGatesOnPaymentAndOwnership(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	ctx := context.Background()
	userID := env.seedUser(t)

	unpaid := env.seedOrder(t, userID, enums.CourierOrderStatusPendingPayment)
	_, err := env.svc.Create(ctx, CreateInput{
		UserID: userID, OrderID: unpaid.order.ID, Type: enums.ClaimTypeDefect, Reason: "crushed box",
	})
	if !pkgerrors.HasCode(err, pkgerrors.CodeStateConflict) {
		t.Fatalf("unpaid order must reject claims, got %v", err)
	}
	if !strings.Contains(err.Error(), "after payment completion") {
		t.Fatalf("error should explain the payment gate, got %v", err)
	}

	delivered := env.seedOrder(t, userID, enums.CourierOrderStatusDelivered)
	_, err = env.svc.Create(ctx, CreateInput{
		UserID: env.seedUser(t), OrderID: delivered.order.ID, Type: enums.ClaimTypeDefect, Reason: "crushed box",
	})
	if !pkgerrors.HasCode(err, pkgerrors.CodeNotFound) {
		t.Fatalf("stranger's claim must read as not found, got %v", err)
	}

	claim, err := env.svc.Create(ctx, CreateInput{
		UserID: userID, OrderID: delivered.order.ID, Type: enums.ClaimTypeDefect, Reason: "crushed box",
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if claim.Status != enums.ClaimStatusRequested {
		t.Fatalf("expected REQUESTED, got %s", claim.Status)
	}
	if claim.FeeBearer != enums.ReturnFeeBearerSeller {
		t.Fatalf("defect claims bill the seller, got %s", claim.FeeBearer)
	}
}

func TestCreateWithProductTarget(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	ctx := context.Background()
	userID := env.seedUser(t)
	productID := uuid.New()
	order := env.seedOrder(t, userID, enums.CourierOrderStatusDelivered, productID)

	_, err := env.svc.Create(ctx, CreateInput{
		UserID: userID, OrderID: order.order.ID, ProductID: ptr(uuid.New()),
		Type: enums.ClaimTypeWrongItem, Reason: "different flavor",
	})
	if !pkgerrors.HasCode(err, pkgerrors.CodeNotFound) {
		t.Fatalf("foreign product must be rejected, got %v", err)
	}
	if !strings.Contains(err.Error(), "no matching product") {
		t.Fatalf("error should name the mismatch, got %v", err)
	}

	claim, err := env.svc.Create(ctx, CreateInput{
		UserID: userID, OrderID: order.order.ID, ProductID: &productID,
		Type: enums.ClaimTypeWrongItem, Reason: "different flavor",
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if claim.ItemID == nil || *claim.ItemID != order.items[0].ID {
		t.Fatalf("claim should target the matching line")
	}
	if got := env.itemStatus(t, order.items[0].ID); got != enums.OrderItemStatusClaimRequested {
		t.Fatalf("item should be flagged, got %s", got)
	}

	// One open claim per item.
	_, err = env.svc.Create(ctx, CreateInput{
		UserID: userID, OrderID: order.order.ID, ProductID: &productID,
		Type: enums.ClaimTypeDefect, Reason: "also crushed",
	})
	if !pkgerrors.HasCode(err, pkgerrors.CodeStateConflict) {
		t.Fatalf("second open claim on the item must conflict, got %v", err)
	}
}

func TestChangeOfMindBillsCustomer(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	ctx := context.Background()
	userID := env.seedUser(t)
	order := env.seedOrder(t, userID, enums.CourierOrderStatusDelivered)

	claim, err := env.svc.Create(ctx, CreateInput{
		UserID: userID, OrderID: order.order.ID, Type: enums.ClaimTypeChangeOfMind, Reason: "ordered too much",
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if claim.FeeBearer != enums.ReturnFeeBearerCustomer {
		t.Fatalf("change of mind bills the customer, got %s", claim.FeeBearer)
	}
}

func TestApproveRefund(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	ctx := context.Background()
	userID := env.seedUser(t)
	productID := uuid.New()
	order := env.seedOrder(t, userID, enums.CourierOrderStatusDelivered, productID)

	claim, err := env.svc.Create(ctx, CreateInput{
		UserID: userID, OrderID: order.order.ID, ProductID: &productID,
		Type: enums.ClaimTypeDefect, Reason: "crushed box",
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	// PG leg is 20000-2000=18000; refunds above it are rejected.
	_, err = env.svc.Approve(ctx, claim.ID, ApproveInput{Action: ActionRefund, RefundAmount: 19000})
	if !pkgerrors.HasCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("over-refund must be rejected, got %v", err)
	}

	approved, err := env.svc.Approve(ctx, claim.ID, ApproveInput{Action: ActionRefund, RefundAmount: 9000})
	if err != nil {
		t.Fatalf("approve: %v", err)
	}
	if approved.Status != enums.ClaimStatusResolved {
		t.Fatalf("no-return refund should resolve immediately, got %s", approved.Status)
	}
	if got := env.itemStatus(t, order.items[0].ID); got != enums.OrderItemStatusRefunded {
		t.Fatalf("item should be REFUNDED, got %s", got)
	}
	if len(env.gateway.refunds) != 1 || env.gateway.refunds[0] != 9000 {
		t.Fatalf("expected one 9000 refund, got %v", env.gateway.refunds)
	}

	// Decided claims cannot be decided again.
	if _, err := env.svc.Approve(ctx, claim.ID, ApproveInput{Action: ActionRefund, RefundAmount: 1}); !pkgerrors.HasCode(err, pkgerrors.CodeStateConflict) {
		t.Fatalf("double approve must conflict, got %v", err)
	}
	if _, err := env.svc.Reject(ctx, claim.ID, "late"); !pkgerrors.HasCode(err, pkgerrors.CodeStateConflict) {
		t.Fatalf("reject after approve must conflict, got %v", err)
	}
}

func TestApproveRefundDefaultsToLineAmount(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	ctx := context.Background()
	userID := env.seedUser(t)
	productID := uuid.New()
	order := env.seedOrder(t, userID, enums.CourierOrderStatusDelivered, productID)

	claim, err := env.svc.Create(ctx, CreateInput{
		UserID: userID, OrderID: order.order.ID, ProductID: &productID,
		Type: enums.ClaimTypeDefect, Reason: "crushed box",
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	// No explicit amount: the claimed line's 4500x2 snapshot is refunded.
	if _, err := env.svc.Approve(ctx, claim.ID, ApproveInput{Action: ActionRefund}); err != nil {
		t.Fatalf("approve: %v", err)
	}
	if len(env.gateway.refunds) != 1 || env.gateway.refunds[0] != 9000 {
		t.Fatalf("expected one 9000 refund, got %v", env.gateway.refunds)
	}

	reloaded, err := env.svc.Get(ctx, claim.ID, userID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if reloaded.RefundAmount == nil || *reloaded.RefundAmount != 9000 {
		t.Fatalf("refund amount should persist as 9000, got %v", reloaded.RefundAmount)
	}
}

func TestApproveRefundWithoutAmountNeedsItem(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	ctx := context.Background()
	userID := env.seedUser(t)
	order := env.seedOrder(t, userID, enums.CourierOrderStatusDelivered)

	claim, err := env.svc.Create(ctx, CreateInput{
		UserID: userID, OrderID: order.order.ID, Type: enums.ClaimTypeDefect, Reason: "crushed box",
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	_, err = env.svc.Approve(ctx, claim.ID, ApproveInput{Action: ActionRefund})
	if !pkgerrors.HasCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("order-level claim without amount must be rejected, got %v", err)
	}
	if len(env.gateway.refunds) != 0 {
		t.Fatalf("rejected approval must not call the gateway")
	}
}

func TestApproveRefundCombinesWithPoints(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	ctx := context.Background()
	userID := env.seedUser(t)
	order := env.seedOrder(t, userID, enums.CourierOrderStatusDelivered)

	claim, err := env.svc.Create(ctx, CreateInput{
		UserID: userID, OrderID: order.order.ID, Type: enums.ClaimTypeDefect, Reason: "crushed box",
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	approved, err := env.svc.Approve(ctx, claim.ID, ApproveInput{
		Action: ActionRefund, RefundAmount: 5000, PointAmount: 800,
	})
	if err != nil {
		t.Fatalf("approve: %v", err)
	}
	if approved.Status != enums.ClaimStatusResolved {
		t.Fatalf("expected RESOLVED, got %s", approved.Status)
	}
	if len(env.gateway.refunds) != 1 || env.gateway.refunds[0] != 5000 {
		t.Fatalf("expected one 5000 refund, got %v", env.gateway.refunds)
	}

	balance, err := env.points.Balance(ctx, userID)
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if balance != 800 {
		t.Fatalf("expected 800 points on top of the refund, got %d", balance)
	}

	reloaded, err := env.svc.Get(ctx, claim.ID, userID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if reloaded.PointAmount == nil || *reloaded.PointAmount != 800 {
		t.Fatalf("point amount should persist as 800, got %v", reloaded.PointAmount)
	}
}

func TestApproveRefundRollsBackOnGatewayFailure(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	ctx := context.Background()
	userID := env.seedUser(t)
	order := env.seedOrder(t, userID, enums.CourierOrderStatusDelivered)

	claim, err := env.svc.Create(ctx, CreateInput{
		UserID: userID, OrderID: order.order.ID, Type: enums.ClaimTypeDefect, Reason: "crushed box",
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	env.gateway.failCancel = true
	if _, err := env.svc.Approve(ctx, claim.ID, ApproveInput{Action: ActionRefund, RefundAmount: 5000}); !pkgerrors.HasCode(err, pkgerrors.CodeDependency) {
		t.Fatalf("expected dependency error, got %v", err)
	}

	reloaded, err := env.svc.Get(ctx, claim.ID, userID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if reloaded.Status != enums.ClaimStatusRequested {
		t.Fatalf("failed refund must roll the approval back, got %s", reloaded.Status)
	}
}

func TestApproveNoteCompensatesWithPoints(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	ctx := context.Background()
	userID := env.seedUser(t)
	order := env.seedOrder(t, userID, enums.CourierOrderStatusDelivered)

	claim, err := env.svc.Create(ctx, CreateInput{
		UserID: userID, OrderID: order.order.ID, Type: enums.ClaimTypeOther, Reason: "late delivery",
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := env.svc.StartReview(ctx, claim.ID); err != nil {
		t.Fatalf("start review: %v", err)
	}

	approved, err := env.svc.Approve(ctx, claim.ID, ApproveInput{
		Action: ActionNote, PointAmount: 1500, AdminNote: "sorry about the delay",
	})
	if err != nil {
		t.Fatalf("approve: %v", err)
	}
	if approved.Status != enums.ClaimStatusResolved {
		t.Fatalf("expected RESOLVED, got %s", approved.Status)
	}
	if len(env.gateway.refunds) != 0 {
		t.Fatalf("NOTE action must not call the gateway")
	}

	balance, err := env.points.Balance(ctx, userID)
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if balance != 1500 {
		t.Fatalf("expected 1500 compensation points, got %d", balance)
	}
}

func TestReturnFlow(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	ctx := context.Background()
	userID := env.seedUser(t)
	order := env.seedOrder(t, userID, enums.CourierOrderStatusDelivered)

	claim, err := env.svc.Create(ctx, CreateInput{
		UserID: userID, OrderID: order.order.ID, Type: enums.ClaimTypeChangeOfMind, Reason: "ordered too much",
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	approved, err := env.svc.Approve(ctx, claim.ID, ApproveInput{
		Action: ActionRefund, RefundAmount: 4000, RequireReturn: true,
	})
	if err != nil {
		t.Fatalf("approve: %v", err)
	}
	if approved.Status != enums.ClaimStatusApproved {
		t.Fatalf("return-required approval stays APPROVED, got %s", approved.Status)
	}
	reloaded, err := env.svc.Get(ctx, claim.ID, userID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if reloaded.ReturnStatus == nil || *reloaded.ReturnStatus != enums.ClaimReturnStatusCollecting {
		t.Fatalf("expected COLLECTING return status")
	}

	if _, err := env.svc.UpdateReturnStatus(ctx, claim.ID, enums.ClaimReturnStatus("LOST")); !pkgerrors.HasCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("illegal return status must be rejected, got %v", err)
	}

	resolved, err := env.svc.UpdateReturnStatus(ctx, claim.ID, enums.ClaimReturnStatusCollected)
	if err != nil {
		t.Fatalf("collect: %v", err)
	}
	if resolved.Status != enums.ClaimStatusResolved {
		t.Fatalf("collection should resolve the claim, got %s", resolved.Status)
	}

	// No second collection.
	if _, err := env.svc.UpdateReturnStatus(ctx, claim.ID, enums.ClaimReturnStatusCollected); !pkgerrors.HasCode(err, pkgerrors.CodeStateConflict) {
		t.Fatalf("double collect must conflict, got %v", err)
	}
}

func TestRejectReleasesItem(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	ctx := context.Background()
	userID := env.seedUser(t)
	productID := uuid.New()
	order := env.seedOrder(t, userID, enums.CourierOrderStatusDelivered, productID)

	claim, err := env.svc.Create(ctx, CreateInput{
		UserID: userID, OrderID: order.order.ID, ProductID: &productID,
		Type: enums.ClaimTypeDefect, Reason: "crushed box",
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	rejected, err := env.svc.Reject(ctx, claim.ID, "photos show no damage")
	if err != nil {
		t.Fatalf("reject: %v", err)
	}
	if rejected.Status != enums.ClaimStatusRejected {
		t.Fatalf("expected REJECTED, got %s", rejected.Status)
	}
	reloaded, err := env.svc.Get(ctx, claim.ID, userID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if reloaded.ResolvedAt == nil {
		t.Fatalf("rejection should stamp resolution")
	}
	if got := env.itemStatus(t, order.items[0].ID); got != enums.OrderItemStatusClaimResolved {
		t.Fatalf("item should be released, got %s", got)
	}
}

func ptr[T any](v T) *T { return &v }
