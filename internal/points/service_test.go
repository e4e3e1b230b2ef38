package points

import (
	"context"
	"io"
	"testing"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/sejinoh/pickupz-backend/internal/users"
	"github.com/sejinoh/pickupz-backend/pkg/db/models"
	"github.com/sejinoh/pickupz-backend/pkg/enums"
	pkgerrors "github.com/sejinoh/pickupz-backend/pkg/errors"
	"github.com/sejinoh/pickupz-backend/pkg/logger"
)

type gormTxRunner struct {
	db *gorm.DB
}

func (g gormTxRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return g.db.WithContext(ctx).Transaction(fn)
}

func newTestService(t *testing.T) (Service, *gorm.DB) {
	t.Helper()
	dsn := "file:points_" + uuid.NewString() + "?mode=memory&cache=shared"
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := conn.AutoMigrate(&models.User{}, &models.PointTransaction{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	logg := logger.New(logger.Options{ServiceName: "test", Output: io.Discard})
	svc, err := NewService(NewRepository(conn), users.NewRepository(conn), gormTxRunner{db: conn}, logg)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return svc, conn
}

func seedUser(t *testing.T, conn *gorm.DB) uuid.UUID {
	t.Helper()
	user := models.User{ID: uuid.New(), Nickname: "tester"}
	if err := conn.Create(&user).Error; err != nil {
		t.Fatalf("seed user: %v", err)
	}
	return user.ID
}

func TestUseRejectsInsufficientBalance(t *testing.T) {
	t.Parallel()

	svc, conn := newTestService(t)
	ctx := context.Background()
	userID := seedUser(t, conn)

	if _, err := svc.Earn(ctx, MutationInput{
		UserID: userID,
		Type:   enums.PointTransactionTypeEarnReward,
		Amount: 5000,
		Reason: "welcome",
		Actor:  "admin",
	}); err != nil {
		t.Fatalf("earn: %v", err)
	}

	_, err := svc.Use(ctx, MutationInput{
		UserID: userID,
		Type:   enums.PointTransactionTypeUseOrder,
		Amount: 6000,
		Reason: "order payment",
		Actor:  "user",
	})
	if !pkgerrors.HasCode(err, pkgerrors.CodeStateConflict) {
		t.Fatalf("expected insufficient balance conflict, got %v", err)
	}

	balance, err := svc.Balance(ctx, userID)
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if balance != 5000 {
		t.Fatalf("balance should stay 5000 after rejected use, got %d", balance)
	}
}

func TestLedgerStaysConsistentWithBalance(t *testing.T) {
	t.Parallel()

	svc, conn := newTestService(t)
	ctx := context.Background()
	userID := seedUser(t, conn)

	earned, err := svc.Earn(ctx, MutationInput{
		UserID: userID, Type: enums.PointTransactionTypeEarnReward,
		Amount: 10000, Reason: "event", Actor: "admin",
	})
	if err != nil {
		t.Fatalf("earn: %v", err)
	}
	used, err := svc.Use(ctx, MutationInput{
		UserID: userID, Type: enums.PointTransactionTypeUseOrder,
		Amount: 3000, Reason: "order", Actor: "user",
	})
	if err != nil {
		t.Fatalf("use: %v", err)
	}
	if _, err := svc.CancelUse(ctx, used.ID); err != nil {
		t.Fatalf("cancel use: %v", err)
	}
	if _, err := svc.CancelEarn(ctx, earned.ID, "admin"); err != nil {
		t.Fatalf("cancel earn: %v", err)
	}

	balance, err := svc.Balance(ctx, userID)
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if balance != 0 {
		t.Fatalf("expected zero balance after full compensation, got %d", balance)
	}

	repo := NewRepository(conn)
	sum, err := repo.SumByUser(ctx, userID)
	if err != nil {
		t.Fatalf("sum: %v", err)
	}
	if sum != balance {
		t.Fatalf("ledger sum %d diverged from balance %d", sum, balance)
	}
	rows, err := repo.ListByUser(ctx, userID, 1)
	if err != nil || len(rows) != 1 {
		t.Fatalf("list latest row: %v (%d rows)", err, len(rows))
	}
	if rows[0].BalanceAfter != balance {
		t.Fatalf("last snapshot %d diverged from balance %d", rows[0].BalanceAfter, balance)
	}
}

func TestCancelEarnFailsAfterInterveningSpend(t *testing.T) {
	t.Parallel()

	svc, conn := newTestService(t)
	ctx := context.Background()
	userID := seedUser(t, conn)

	earned, err := svc.Earn(ctx, MutationInput{
		UserID: userID, Type: enums.PointTransactionTypeEarnReward,
		Amount: 5000, Reason: "event", Actor: "admin",
	})
	if err != nil {
		t.Fatalf("earn: %v", err)
	}
	if _, err := svc.Use(ctx, MutationInput{
		UserID: userID, Type: enums.PointTransactionTypeUseOrder,
		Amount: 4000, Reason: "order", Actor: "user",
	}); err != nil {
		t.Fatalf("use: %v", err)
	}

	// Only 1000 points remain; the 5000-point earn can no longer be clawed back.
	_, err = svc.CancelEarn(ctx, earned.ID, "admin")
	if !pkgerrors.HasCode(err, pkgerrors.CodeStateConflict) {
		t.Fatalf("expected insufficient balance conflict, got %v", err)
	}

	balance, err := svc.Balance(ctx, userID)
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if balance != 1000 {
		t.Fatalf("failed cancel must not move the balance, got %d", balance)
	}
}

func TestCancelGuards(t *testing.T) {
	t.Parallel()

	svc, conn := newTestService(t)
	ctx := context.Background()
	userID := seedUser(t, conn)

	earned, err := svc.Earn(ctx, MutationInput{
		UserID: userID, Type: enums.PointTransactionTypeEarnReward,
		Amount: 2000, Reason: "event", Actor: "admin",
	})
	if err != nil {
		t.Fatalf("earn: %v", err)
	}
	used, err := svc.Use(ctx, MutationInput{
		UserID: userID, Type: enums.PointTransactionTypeUseOrder,
		Amount: 1000, Reason: "order", Actor: "user",
	})
	if err != nil {
		t.Fatalf("use: %v", err)
	}

	if _, err := svc.CancelEarn(ctx, used.ID, "admin"); !pkgerrors.HasCode(err, pkgerrors.CodeStateConflict) {
		t.Fatalf("cancelEarn must reject USE_* rows, got %v", err)
	}
	if _, err := svc.CancelUse(ctx, earned.ID); !pkgerrors.HasCode(err, pkgerrors.CodeStateConflict) {
		t.Fatalf("cancelUse must reject EARN_* rows, got %v", err)
	}

	if _, err := svc.CancelUse(ctx, used.ID); err != nil {
		t.Fatalf("first cancelUse: %v", err)
	}
	if _, err := svc.CancelUse(ctx, used.ID); !pkgerrors.HasCode(err, pkgerrors.CodeStateConflict) {
		t.Fatalf("second cancelUse must fail, got %v", err)
	}

	if _, err := svc.CancelUse(ctx, uuid.New()); !pkgerrors.HasCode(err, pkgerrors.CodeNotFound) {
		t.Fatalf("unknown transaction should be not found, got %v", err)
	}
}

func TestBulkEarn(t *testing.T) {
	t.Parallel()

	svc, conn := newTestService(t)
	ctx := context.Background()
	first := seedUser(t, conn)
	second := seedUser(t, conn)

	if _, err := svc.BulkEarn(ctx, BulkEarnInput{Amount: 500, Reason: "promo", Actor: "admin"}); !pkgerrors.HasCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("empty explicit list must be rejected, got %v", err)
	}

	result, err := svc.BulkEarn(ctx, BulkEarnInput{
		UserIDs: []uuid.UUID{first, second, uuid.New()},
		Amount:  500,
		Reason:  "promo",
		Actor:   "admin",
	})
	if err != nil {
		t.Fatalf("bulk earn: %v", err)
	}
	if result.SuccessCount != 2 || result.FailureCount != 1 {
		t.Fatalf("expected 2 successes and 1 failure, got %+v", result)
	}

	balance, err := svc.Balance(ctx, first)
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if balance != 500 {
		t.Fatalf("expected 500, got %d", balance)
	}
}

func TestRecentIsCapped(t *testing.T) {
	t.Parallel()

	svc, conn := newTestService(t)
	ctx := context.Background()
	userID := seedUser(t, conn)

	for i := 0; i < 8; i++ {
		if _, err := svc.Earn(ctx, MutationInput{
			UserID: userID, Type: enums.PointTransactionTypeEarnReward,
			Amount: 100, Reason: "drip", Actor: "admin",
		}); err != nil {
			t.Fatalf("earn %d: %v", i, err)
		}
	}

	rows, err := svc.Recent(ctx, userID)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(rows) != recentHistoryLimit {
		t.Fatalf("expected %d rows, got %d", recentHistoryLimit, len(rows))
	}

	all, err := svc.History(ctx, userID)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(all) != 8 {
		t.Fatalf("expected 8 rows, got %d", len(all))
	}
}
