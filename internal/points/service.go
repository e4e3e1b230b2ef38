// Package points drives the append-only point ledger. Every mutation locks
// the user row, appends one immutable transaction with a balance snapshot,
// and updates the denormalized balance in the same unit of work, keeping the
// balance recomputable from the ledger at all times.
package points

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/sejinoh/pickupz-backend/internal/users"
	"github.com/sejinoh/pickupz-backend/pkg/db/models"
	"github.com/sejinoh/pickupz-backend/pkg/enums"
	pkgerrors "github.com/sejinoh/pickupz-backend/pkg/errors"
	"github.com/sejinoh/pickupz-backend/pkg/logger"
)

const recentHistoryLimit = 5

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Service defines the point ledger operations.
type Service interface {
	Earn(ctx context.Context, input MutationInput) (*models.PointTransaction, error)
	Use(ctx context.Context, input MutationInput) (*models.PointTransaction, error)
	CancelEarn(ctx context.Context, transactionID uuid.UUID, actor string) (*models.PointTransaction, error)
	CancelUse(ctx context.Context, transactionID uuid.UUID) (*models.PointTransaction, error)
	Balance(ctx context.Context, userID uuid.UUID) (int, error)
	BulkEarn(ctx context.Context, input BulkEarnInput) (BulkEarnResult, error)
	History(ctx context.Context, userID uuid.UUID) ([]models.PointTransaction, error)
	Recent(ctx context.Context, userID uuid.UUID) ([]models.PointTransaction, error)

	// Tx-scoped variants compose with order transitions so a cancel's point
	// reversal commits or rolls back with the status change.
	EarnInTx(ctx context.Context, tx *gorm.DB, input MutationInput) (*models.PointTransaction, error)
	UseInTx(ctx context.Context, tx *gorm.DB, input MutationInput) (*models.PointTransaction, error)
	CancelUseByReferenceInTx(ctx context.Context, tx *gorm.DB, referenceType string, referenceID uuid.UUID) (*models.PointTransaction, error)
}

// MutationInput captures one earn or use against a user's balance. Amount is
// the positive magnitude; the ledger row carries the sign.
type MutationInput struct {
	UserID        uuid.UUID
	Type          enums.PointTransactionType
	Amount        int
	Reason        string
	ReferenceType *string
	ReferenceID   *uuid.UUID
	Actor         string
}

// BulkEarnInput grants the same amount to many users, best effort.
type BulkEarnInput struct {
	All     bool
	UserIDs []uuid.UUID
	Amount  int
	Reason  string
	Actor   string
}

// BulkEarnResult reports per-user outcomes of a bulk grant.
type BulkEarnResult struct {
	SuccessCount int
	FailureCount int
}

type service struct {
	repo  Repository
	users users.Repository
	tx    txRunner
	logg  *logger.Logger
}

// NewService wires the point ledger service.
func NewService(repo Repository, userRepo users.Repository, tx txRunner, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("points repository required")
	}
	if userRepo == nil {
		return nil, fmt.Errorf("users repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &service{repo: repo, users: userRepo, tx: tx, logg: logg}, nil
}

func (s *service) Earn(ctx context.Context, input MutationInput) (*models.PointTransaction, error) {
	var row *models.PointTransaction
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		var txErr error
		row, txErr = s.EarnInTx(ctx, tx, input)
		return txErr
	})
	return row, err
}

func (s *service) EarnInTx(ctx context.Context, tx *gorm.DB, input MutationInput) (*models.PointTransaction, error) {
	if !input.Type.IsEarn() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation,
			fmt.Sprintf("earn requires an EARN_* type, got %q", input.Type))
	}
	return s.apply(ctx, tx, input, input.Amount)
}

func (s *service) Use(ctx context.Context, input MutationInput) (*models.PointTransaction, error) {
	var row *models.PointTransaction
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		var txErr error
		row, txErr = s.UseInTx(ctx, tx, input)
		return txErr
	})
	return row, err
}

func (s *service) UseInTx(ctx context.Context, tx *gorm.DB, input MutationInput) (*models.PointTransaction, error) {
	if !input.Type.IsUse() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation,
			fmt.Sprintf("use requires a USE_* type, got %q", input.Type))
	}
	return s.apply(ctx, tx, input, -input.Amount)
}

// apply is the single mutation path: lock user, validate, append, sync balance.
func (s *service) apply(ctx context.Context, tx *gorm.DB, input MutationInput, delta int) (*models.PointTransaction, error) {
	if input.UserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id required")
	}
	if input.Amount <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "amount must be greater than 0")
	}
	if input.Actor == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "actor required")
	}

	txUsers := s.users.WithTx(tx)
	user, err := txUsers.LockByID(ctx, input.UserID)
	if err != nil {
		return nil, err
	}

	newBalance := user.PointBalance + delta
	if newBalance < 0 {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "insufficient point balance").
			WithDetails(map[string]any{"balance": user.PointBalance, "requested": input.Amount})
	}

	row := &models.PointTransaction{
		ID:            uuid.New(),
		UserID:        input.UserID,
		Type:          input.Type,
		Amount:        delta,
		BalanceAfter:  newBalance,
		Reason:        input.Reason,
		ReferenceType: input.ReferenceType,
		ReferenceID:   input.ReferenceID,
		Actor:         input.Actor,
	}
	if err := s.repo.WithTx(tx).Create(ctx, row); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "append ledger row")
	}
	if err := txUsers.Update(ctx, input.UserID, map[string]any{"point_balance": newBalance}); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "sync point balance")
	}
	return row, nil
}

func (s *service) CancelEarn(ctx context.Context, transactionID uuid.UUID, actor string) (*models.PointTransaction, error) {
	var row *models.PointTransaction
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		original, err := s.loadCancelable(ctx, tx, transactionID)
		if err != nil {
			return err
		}
		if !original.Type.IsEarn() {
			return pkgerrors.New(pkgerrors.CodeStateConflict,
				fmt.Sprintf("only EARN_* transactions can be earn-canceled, got %s", original.Type))
		}

		// An intervening spend can make the earn impossible to claw back;
		// apply re-checks the balance under the user lock.
		row, err = s.apply(ctx, tx, MutationInput{
			UserID:      original.UserID,
			Type:        enums.PointTransactionTypeCancelEarn,
			Amount:      original.Amount,
			Reason:      fmt.Sprintf("cancel of earn %s", original.ID),
			ReferenceID: &original.ID,
			Actor:       actor,
		}, -original.Amount)
		if err != nil {
			return err
		}
		return s.repo.WithTx(tx).MarkCanceled(ctx, original.ID, row.ID)
	})
	return row, err
}

func (s *service) CancelUse(ctx context.Context, transactionID uuid.UUID) (*models.PointTransaction, error) {
	var row *models.PointTransaction
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		original, err := s.loadCancelable(ctx, tx, transactionID)
		if err != nil {
			return err
		}
		row, err = s.cancelUseInTx(ctx, tx, original)
		return err
	})
	return row, err
}

// CancelUseByReferenceInTx reverses the point hold recorded against an order,
// inside the order's own cancel transaction. Orders that used no points
// return (nil, nil).
func (s *service) CancelUseByReferenceInTx(ctx context.Context, tx *gorm.DB, referenceType string, referenceID uuid.UUID) (*models.PointTransaction, error) {
	original, err := s.repo.WithTx(tx).FindActiveUseByReference(ctx, referenceType, referenceID)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load point hold")
	}
	return s.cancelUseInTx(ctx, tx, original)
}

func (s *service) cancelUseInTx(ctx context.Context, tx *gorm.DB, original *models.PointTransaction) (*models.PointTransaction, error) {
	if !original.Type.IsUse() {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict,
			fmt.Sprintf("only USE_* transactions can be use-canceled, got %s", original.Type))
	}

	// Restoring a spend can never push the balance negative.
	row, err := s.apply(ctx, tx, MutationInput{
		UserID:      original.UserID,
		Type:        enums.PointTransactionTypeCancelUse,
		Amount:      -original.Amount,
		Reason:      fmt.Sprintf("cancel of use %s", original.ID),
		ReferenceID: &original.ID,
		Actor:       "system",
	}, -original.Amount)
	if err != nil {
		return nil, err
	}
	if err := s.repo.WithTx(tx).MarkCanceled(ctx, original.ID, row.ID); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark point hold canceled")
	}
	return row, nil
}

func (s *service) loadCancelable(ctx context.Context, tx *gorm.DB, transactionID uuid.UUID) (*models.PointTransaction, error) {
	if transactionID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "transaction id required")
	}
	original, err := s.repo.WithTx(tx).FindByID(ctx, transactionID)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "point transaction not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load point transaction")
	}
	if original.CanceledByID != nil {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "transaction is already canceled")
	}
	return original, nil
}

func (s *service) Balance(ctx context.Context, userID uuid.UUID) (int, error) {
	if userID == uuid.Nil {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "user id required")
	}
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return 0, err
	}
	return user.PointBalance, nil
}

func (s *service) BulkEarn(ctx context.Context, input BulkEarnInput) (BulkEarnResult, error) {
	var result BulkEarnResult
	if input.Amount <= 0 {
		return result, pkgerrors.New(pkgerrors.CodeValidation, "amount must be greater than 0")
	}
	if !input.All && len(input.UserIDs) == 0 {
		return result, pkgerrors.New(pkgerrors.CodeValidation, "user id list required when not granting to all")
	}

	targets := input.UserIDs
	if input.All {
		ids, err := s.users.ListIDs(ctx)
		if err != nil {
			return result, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list users")
		}
		targets = ids
	}

	// Best effort per user: one bad row never fails the batch.
	for _, userID := range targets {
		_, err := s.Earn(ctx, MutationInput{
			UserID: userID,
			Type:   enums.PointTransactionTypeEarnPromotion,
			Amount: input.Amount,
			Reason: input.Reason,
			Actor:  input.Actor,
		})
		if err != nil {
			result.FailureCount++
			logCtx := s.logg.WithField(ctx, "user_id", userID.String())
			s.logg.Error(logCtx, "bulk earn failed for user", err)
			continue
		}
		result.SuccessCount++
	}
	return result, nil
}

func (s *service) History(ctx context.Context, userID uuid.UUID) ([]models.PointTransaction, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id required")
	}
	return s.repo.ListByUser(ctx, userID, 0)
}

func (s *service) Recent(ctx context.Context, userID uuid.UUID) ([]models.PointTransaction, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id required")
	}
	return s.repo.ListByUser(ctx, userID, recentHistoryLimit)
}
