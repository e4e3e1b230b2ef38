package claims

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/sejinoh/pickupz-backend/internal/courier"
	"github.com/sejinoh/pickupz-backend/internal/payments"
	"github.com/sejinoh/pickupz-backend/internal/points"
	"github.com/sejinoh/pickupz-backend/pkg/db/models"
	"github.com/sejinoh/pickupz-backend/pkg/enums"
	pkgerrors "github.com/sejinoh/pickupz-backend/pkg/errors"
	"github.com/sejinoh/pickupz-backend/pkg/logger"
)

// ApproveAction selects what an approval pays out.
type ApproveAction string

const (
	// ActionRefund sends money back through the payment gateway.
	ActionRefund ApproveAction = "REFUND"
	// ActionNote compensates with points and an admin note, no gateway call.
	ActionNote ApproveAction = "NOTE"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Service defines claim operations.
type Service interface {
	Create(ctx context.Context, input CreateInput) (*models.CourierClaim, error)
	Get(ctx context.Context, claimID, userID uuid.UUID) (*models.CourierClaim, error)
	ListByUser(ctx context.Context, userID uuid.UUID) ([]models.CourierClaim, error)
	StartReview(ctx context.Context, claimID uuid.UUID) (*models.CourierClaim, error)
	Approve(ctx context.Context, claimID uuid.UUID, input ApproveInput) (*models.CourierClaim, error)
	Reject(ctx context.Context, claimID uuid.UUID, adminNote string) (*models.CourierClaim, error)
	UpdateReturnStatus(ctx context.Context, claimID uuid.UUID, target enums.ClaimReturnStatus) (*models.CourierClaim, error)
}

// CreateInput opens a claim against a courier order, optionally narrowed to
// one catalog product on that order.
type CreateInput struct {
	UserID    uuid.UUID
	OrderID   uuid.UUID
	ProductID *uuid.UUID
	Type      enums.ClaimType
	Reason    string
}

// ApproveInput carries the admin's decision.
type ApproveInput struct {
	Action        ApproveAction
	RefundAmount  int
	PointAmount   int
	RequireReturn bool
	AdminNote     string
}

type service struct {
	repo    Repository
	orders  courier.Repository
	points  points.Service
	gateway payments.Gateway
	tx      txRunner
	logg    *logger.Logger
	now     func() time.Time
}

// NewService wires the claim service.
func NewService(
	repo Repository,
	orderRepo courier.Repository,
	pointSvc points.Service,
	gateway payments.Gateway,
	tx txRunner,
	logg *logger.Logger,
	now func() time.Time,
) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("claim repository required")
	}
	if orderRepo == nil {
		return nil, fmt.Errorf("courier repository required")
	}
	if pointSvc == nil {
		return nil, fmt.Errorf("point service required")
	}
	if gateway == nil {
		return nil, fmt.Errorf("payment gateway required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	if now == nil {
		now = time.Now
	}
	return &service{
		repo:    repo,
		orders:  orderRepo,
		points:  pointSvc,
		gateway: gateway,
		tx:      tx,
		logg:    logg,
		now:     now,
	}, nil
}

// Create opens a claim. Claims only attach to orders whose payment completed;
// targeting a product narrows the claim to that line and flags the item.
func (s *service) Create(ctx context.Context, input CreateInput) (*models.CourierClaim, error) {
	if !input.Type.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "unknown claim type")
	}
	if input.Reason == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "claim reason required")
	}

	var created *models.CourierClaim
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		orders := s.orders.WithTx(tx)
		order, err := orders.LockByID(ctx, input.OrderID)
		if err != nil {
			return err
		}
		if order.UserID != input.UserID {
			return pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		if !order.Status.IsPaidSet() {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "claims are only allowed after payment completion")
		}

		var itemID *uuid.UUID
		if input.ProductID != nil {
			item, err := s.findItemByProduct(ctx, orders, order.ID, *input.ProductID)
			if err != nil {
				return err
			}
			open, err := s.repo.WithTx(tx).ExistsOpenForItem(ctx, item.ID)
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check open claims")
			}
			if open {
				return pkgerrors.New(pkgerrors.CodeStateConflict, "a claim is already open for this item")
			}
			if err := orders.UpdateItem(ctx, item.ID, map[string]any{"status": enums.OrderItemStatusClaimRequested}); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "flag order item")
			}
			itemID = &item.ID
		}

		row := &models.CourierClaim{
			ID:        uuid.New(),
			OrderID:   order.ID,
			ItemID:    itemID,
			UserID:    input.UserID,
			Type:      input.Type,
			Status:    enums.ClaimStatusRequested,
			Reason:    input.Reason,
			FeeBearer: input.Type.DefaultFeeBearer(),
		}
		if err := s.repo.WithTx(tx).Create(ctx, row); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create claim")
		}
		created = row
		return nil
	})
	if err != nil {
		return nil, err
	}

	logCtx := s.logg.WithUserID(ctx, created.UserID.String())
	s.logg.Info(logCtx, "claim created")
	return created, nil
}

func (s *service) Get(ctx context.Context, claimID, userID uuid.UUID) (*models.CourierClaim, error) {
	row, err := s.repo.FindByID(ctx, claimID)
	if err != nil {
		return nil, err
	}
	if row.UserID != userID {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "claim not found")
	}
	return row, nil
}

func (s *service) ListByUser(ctx context.Context, userID uuid.UUID) ([]models.CourierClaim, error) {
	return s.repo.ListByUser(ctx, userID)
}

func (s *service) StartReview(ctx context.Context, claimID uuid.UUID) (*models.CourierClaim, error) {
	var updated *models.CourierClaim
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		claim, err := s.repo.WithTx(tx).LockByID(ctx, claimID)
		if err != nil {
			return err
		}
		next, err := Transitions.Next(claim.Status, EventReview)
		if err != nil {
			return err
		}
		if err := s.repo.WithTx(tx).Update(ctx, claim.ID, map[string]any{"status": next}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update claim status")
		}
		claim.Status = next
		updated = claim
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// Approve decides the claim in the customer's favor. A REFUND action settles
// through the gateway and marks the item refunded; a NOTE action closes the
// claim without a gateway call. A positive point amount is granted either way,
// standalone or on top of the refund. Claims that require the goods back stay
// APPROVED with the return sub-state COLLECTING; the rest resolve immediately.
func (s *service) Approve(ctx context.Context, claimID uuid.UUID, input ApproveInput) (*models.CourierClaim, error) {
	if input.Action != ActionRefund && input.Action != ActionNote {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "unknown approve action")
	}
	if input.RefundAmount < 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "refund amount must not be negative")
	}
	if input.PointAmount < 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "point amount must not be negative")
	}

	var updated *models.CourierClaim
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		claim, err := repo.LockByID(ctx, claimID)
		if err != nil {
			return err
		}
		next, err := Transitions.Next(claim.Status, EventApprove)
		if err != nil {
			return err
		}
		orders := s.orders.WithTx(tx)
		order, err := orders.LockByID(ctx, claim.OrderID)
		if err != nil {
			return err
		}

		updates := map[string]any{"status": next}
		if input.AdminNote != "" {
			updates["admin_note"] = input.AdminNote
		}

		refundAmount := input.RefundAmount

		switch input.Action {
		case ActionRefund:
			// No explicit amount falls back to the claimed line's snapshot amount.
			if refundAmount == 0 {
				if claim.ItemID == nil {
					return pkgerrors.New(pkgerrors.CodeValidation, "refund amount required for order-level claims")
				}
				item := order.ItemByID(*claim.ItemID)
				if item == nil {
					return pkgerrors.New(pkgerrors.CodeNotFound, "claimed item not found on order")
				}
				refundAmount = item.LineAmount()
			}
			if refundAmount > order.PGPaymentAmount() {
				return pkgerrors.New(pkgerrors.CodeValidation,
					fmt.Sprintf("refund amount %d exceeds the gateway payment %d", refundAmount, order.PGPaymentAmount()))
			}
			if order.PGTransactionID == nil {
				return pkgerrors.New(pkgerrors.CodeStateConflict, "order has no gateway payment to refund")
			}
			updates["refund_amount"] = refundAmount
			if claim.ItemID != nil {
				if err := orders.UpdateItem(ctx, *claim.ItemID, map[string]any{"status": enums.OrderItemStatusRefunded}); err != nil {
					return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark item refunded")
				}
			}
		case ActionNote:
			if claim.ItemID != nil {
				if err := orders.UpdateItem(ctx, *claim.ItemID, map[string]any{"status": enums.OrderItemStatusClaimResolved}); err != nil {
					return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark item resolved")
				}
			}
		}

		if input.PointAmount > 0 {
			if _, err := s.points.EarnInTx(ctx, tx, points.MutationInput{
				UserID: claim.UserID,
				Type:   enums.PointTransactionTypeEarnCompensation,
				Amount: input.PointAmount,
				Reason: fmt.Sprintf("claim compensation %s", claim.ID),
				Actor:  "admin",
			}); err != nil {
				return err
			}
			updates["point_amount"] = input.PointAmount
		}

		if input.RequireReturn {
			updates["return_status"] = enums.ClaimReturnStatusCollecting
		} else {
			resolved, err := Transitions.Next(next, EventResolve)
			if err != nil {
				return err
			}
			updates["status"] = resolved
			updates["resolved_at"] = s.now()
			next = resolved
		}

		if err := repo.Update(ctx, claim.ID, updates); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update claim")
		}

		// Refund last so a gateway failure rolls the whole approval back.
		if input.Action == ActionRefund {
			reason := fmt.Sprintf("claim %s approved", claim.ID)
			if err := s.gateway.Cancel(ctx, *order.PGTransactionID, refundAmount, reason); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "refund payment")
			}
		}

		claim.Status = next
		updated = claim
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logg.Info(ctx, "claim approved")
	return updated, nil
}

// Reject closes the claim without payout and releases the flagged item.
func (s *service) Reject(ctx context.Context, claimID uuid.UUID, adminNote string) (*models.CourierClaim, error) {
	var updated *models.CourierClaim
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		claim, err := repo.LockByID(ctx, claimID)
		if err != nil {
			return err
		}
		next, err := Transitions.Next(claim.Status, EventReject)
		if err != nil {
			return err
		}

		updates := map[string]any{"status": next, "resolved_at": s.now()}
		if adminNote != "" {
			updates["admin_note"] = adminNote
		}
		if err := repo.Update(ctx, claim.ID, updates); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update claim")
		}
		if claim.ItemID != nil {
			if err := s.orders.WithTx(tx).UpdateItem(ctx, *claim.ItemID, map[string]any{"status": enums.OrderItemStatusClaimResolved}); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "release order item")
			}
		}
		claim.Status = next
		updated = claim
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logg.Info(ctx, "claim rejected")
	return updated, nil
}

// UpdateReturnStatus advances the return sub-state. COLLECTING moves to
// COLLECTED, which resolves the claim; any other input is rejected.
func (s *service) UpdateReturnStatus(ctx context.Context, claimID uuid.UUID, target enums.ClaimReturnStatus) (*models.CourierClaim, error) {
	if !target.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "unknown return status")
	}
	if target != enums.ClaimReturnStatusCollected {
		return nil, pkgerrors.New(pkgerrors.CodeValidation,
			fmt.Sprintf("return status can only advance to %s", enums.ClaimReturnStatusCollected))
	}

	var updated *models.CourierClaim
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		claim, err := repo.LockByID(ctx, claimID)
		if err != nil {
			return err
		}
		if claim.ReturnStatus == nil || *claim.ReturnStatus != enums.ClaimReturnStatusCollecting {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "claim has no return in progress")
		}
		resolved, err := Transitions.Next(claim.Status, EventResolve)
		if err != nil {
			return err
		}

		updates := map[string]any{
			"return_status": target,
			"status":        resolved,
			"resolved_at":   s.now(),
		}
		if err := repo.Update(ctx, claim.ID, updates); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update claim return")
		}
		claim.Status = resolved
		claim.ReturnStatus = &target
		updated = claim
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (s *service) findItemByProduct(ctx context.Context, orders courier.Repository, orderID, productID uuid.UUID) (*models.CourierOrderItem, error) {
	items, err := orders.ListItems(ctx, orderID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list order items")
	}
	for i := range items {
		if items[i].ProductID == productID {
			return &items[i], nil
		}
	}
	return nil, pkgerrors.New(pkgerrors.CodeNotFound, "no matching product on this order")
}
