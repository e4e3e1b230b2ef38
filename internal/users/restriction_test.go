package users

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/sejinoh/pickupz-backend/pkg/db/models"
	pkgerrors "github.com/sejinoh/pickupz-backend/pkg/errors"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := "file:users_" + uuid.NewString() + "?mode=memory&cache=shared"
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := conn.AutoMigrate(&models.User{}); err != nil {
		t.Fatalf("migrate users: %v", err)
	}
	return conn
}

func seedUser(t *testing.T, conn *gorm.DB, warnCount int) uuid.UUID {
	t.Helper()
	user := models.User{ID: uuid.New(), Nickname: "tester", MonthlyWarnCount: warnCount}
	if err := conn.Create(&user).Error; err != nil {
		t.Fatalf("seed user: %v", err)
	}
	return user.ID
}

func TestEnsureNotRestricted(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 8, 31, 12, 0, 0, 0, time.UTC)
	past := now.AddDate(0, 0, -1)
	future := now.AddDate(0, 0, 3)

	if err := EnsureNotRestricted(&models.User{}, now); err != nil {
		t.Fatalf("unrestricted user rejected: %v", err)
	}
	if err := EnsureNotRestricted(&models.User{RestrictedUntil: &past}, now); err != nil {
		t.Fatalf("expired restriction rejected: %v", err)
	}
	err := EnsureNotRestricted(&models.User{RestrictedUntil: &future}, now)
	if !pkgerrors.HasCode(err, pkgerrors.CodeStateConflict) {
		t.Fatalf("expected state conflict for restricted user, got %v", err)
	}
}

func TestPenalizeLadder(t *testing.T) {
	t.Parallel()

	conn := newTestDB(t)
	repo := NewRepository(conn)
	ctx := context.Background()
	today := time.Date(2025, 8, 31, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name        string
		priorWarns  int
		wantWarns   int
		wantBanDays int
	}{
		{name: "first strike warns only", priorWarns: 0, wantWarns: 1, wantBanDays: 0},
		{name: "second strike bans two days", priorWarns: 1, wantWarns: 2, wantBanDays: 2},
		{name: "third strike bans five days", priorWarns: 2, wantWarns: 3, wantBanDays: 5},
		{name: "beyond third stays five days", priorWarns: 6, wantWarns: 7, wantBanDays: 5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			userID := seedUser(t, conn, tt.priorWarns)

			var result *PenaltyResult
			err := conn.Transaction(func(tx *gorm.DB) error {
				var perr error
				result, perr = Penalize(ctx, tx, repo, userID, today)
				return perr
			})
			if err != nil {
				t.Fatalf("penalize: %v", err)
			}
			if result.WarnCount != tt.wantWarns {
				t.Fatalf("expected warn count %d, got %d", tt.wantWarns, result.WarnCount)
			}
			if result.RestrictionDays != tt.wantBanDays {
				t.Fatalf("expected %d ban days, got %d", tt.wantBanDays, result.RestrictionDays)
			}

			var user models.User
			if err := conn.First(&user, "id = ?", userID).Error; err != nil {
				t.Fatalf("reload user: %v", err)
			}
			if user.MonthlyWarnCount != tt.wantWarns {
				t.Fatalf("persisted warn count %d, want %d", user.MonthlyWarnCount, tt.wantWarns)
			}
			if tt.wantBanDays == 0 {
				if user.RestrictedUntil != nil {
					t.Fatalf("unexpected restriction %v", user.RestrictedUntil)
				}
				return
			}
			want := today.AddDate(0, 0, tt.wantBanDays)
			if user.RestrictedUntil == nil || !user.RestrictedUntil.Equal(want) {
				t.Fatalf("expected restriction until %v, got %v", want, user.RestrictedUntil)
			}
		})
	}
}

func TestResetAllWarnCounts(t *testing.T) {
	t.Parallel()

	conn := newTestDB(t)
	repo := NewRepository(conn)
	ctx := context.Background()

	seedUser(t, conn, 3)
	seedUser(t, conn, 1)
	seedUser(t, conn, 0)

	affected, err := repo.ResetAllWarnCounts(ctx)
	if err != nil {
		t.Fatalf("reset warn counts: %v", err)
	}
	if affected != 2 {
		t.Fatalf("expected 2 rows reset, got %d", affected)
	}

	var remaining int64
	if err := conn.Model(&models.User{}).Where("monthly_warn_count > 0").Count(&remaining).Error; err != nil {
		t.Fatalf("count: %v", err)
	}
	if remaining != 0 {
		t.Fatalf("expected all warn counts zeroed, %d remain", remaining)
	}
}
