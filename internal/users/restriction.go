package users

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/sejinoh/pickupz-backend/pkg/db/models"
	pkgerrors "github.com/sejinoh/pickupz-backend/pkg/errors"
)

// Warn-count ladder for no-shows inside one calendar month.
const (
	warnOnlyThreshold = 1
	shortBanThreshold = 2
	shortBanDays      = 2
	longBanDays       = 5
)

// PenaltyResult reports what a no-show penalty did to the user.
type PenaltyResult struct {
	WarnCount       int
	RestrictionDays int
	RestrictedUntil *time.Time
}

// Restricted reports whether the user is currently blocked from placing new
// reservations or orders.
func Restricted(user *models.User, now time.Time) bool {
	return user.RestrictedUntil != nil && user.RestrictedUntil.After(now)
}

// EnsureNotRestricted gates order creation on the restriction date.
func EnsureNotRestricted(user *models.User, now time.Time) error {
	if !Restricted(user, now) {
		return nil
	}
	return pkgerrors.New(pkgerrors.CodeStateConflict,
		fmt.Sprintf("ordering is restricted until %s", user.RestrictedUntil.Format("2006-01-02")))
}

// Penalize records one no-show against the user: warn count 1 is a warning
// only, 2 imposes a 2-day restriction, 3 and above impose 5 days. Runs under
// the user's row lock inside the caller's transaction.
func Penalize(ctx context.Context, tx *gorm.DB, repo Repository, userID uuid.UUID, today time.Time) (*PenaltyResult, error) {
	txRepo := repo.WithTx(tx)
	user, err := txRepo.LockByID(ctx, userID)
	if err != nil {
		return nil, err
	}

	warnCount := user.MonthlyWarnCount + 1
	updates := map[string]any{"monthly_warn_count": warnCount}

	result := &PenaltyResult{WarnCount: warnCount}
	switch {
	case warnCount <= warnOnlyThreshold:
		// first strike: warning only
	case warnCount == shortBanThreshold:
		result.RestrictionDays = shortBanDays
	default:
		result.RestrictionDays = longBanDays
	}

	if result.RestrictionDays > 0 {
		until := today.AddDate(0, 0, result.RestrictionDays)
		result.RestrictedUntil = &until
		updates["restricted_until"] = until
	}

	if err := txRepo.Update(ctx, userID, updates); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "apply no-show penalty")
	}
	return result, nil
}
