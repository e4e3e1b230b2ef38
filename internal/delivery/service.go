package delivery

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/sejinoh/pickupz-backend/internal/lifecycle"
	"github.com/sejinoh/pickupz-backend/internal/payments"
	"github.com/sejinoh/pickupz-backend/internal/points"
	"github.com/sejinoh/pickupz-backend/internal/reservations"
	"github.com/sejinoh/pickupz-backend/internal/users"
	"github.com/sejinoh/pickupz-backend/pkg/db/models"
	"github.com/sejinoh/pickupz-backend/pkg/displaycode"
	"github.com/sejinoh/pickupz-backend/pkg/enums"
	pkgerrors "github.com/sejinoh/pickupz-backend/pkg/errors"
	"github.com/sejinoh/pickupz-backend/pkg/logger"
)

// referenceType tags point ledger rows written for delivery orders.
const referenceType = "DELIVERY_ORDER"

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Service defines delivery order operations.
type Service interface {
	Create(ctx context.Context, input CreateInput) (*models.DeliveryOrder, error)
	Get(ctx context.Context, orderID, userID uuid.UUID) (*models.DeliveryOrder, error)
	ListByUser(ctx context.Context, userID uuid.UUID) ([]models.DeliveryOrder, error)
	BeginPayment(ctx context.Context, orderID, userID uuid.UUID) (*payments.ReadyResult, error)
	MarkPaid(ctx context.Context, orderID uuid.UUID, approvalID string) (*models.DeliveryOrder, error)
	Accept(ctx context.Context, orderID uuid.UUID) (*models.DeliveryOrder, error)
	Dispatch(ctx context.Context, orderID uuid.UUID) (*models.DeliveryOrder, error)
	Deliver(ctx context.Context, orderID uuid.UUID) (*models.DeliveryOrder, error)
	Cancel(ctx context.Context, orderID uuid.UUID, input CancelInput) (*models.DeliveryOrder, error)
	Fail(ctx context.Context, orderID uuid.UUID) error
	ListAutoCompletable(ctx context.Context, cutoff time.Time) ([]models.DeliveryOrder, error)

	// PaymentStore adapts this family for the payment reconciler.
	PaymentStore() payments.Store
}

// CreateInput bundles pending reservations into one home delivery order.
type CreateInput struct {
	UserID         uuid.UUID
	ReservationIDs []uuid.UUID
	Address        string
	PointUsed      int
}

// CancelInput carries who is canceling. Paid orders are admin-only.
type CancelInput struct {
	UserID uuid.UUID
	Admin  bool
	Reason string
}

type service struct {
	repo         Repository
	reservations reservations.Service
	points       points.Service
	users        users.Repository
	gateway      payments.Gateway
	tx           txRunner
	codes        *displaycode.Generator
	logg         *logger.Logger
	now          func() time.Time
}

// NewService wires the delivery order service.
func NewService(
	repo Repository,
	reservationSvc reservations.Service,
	pointSvc points.Service,
	userRepo users.Repository,
	gateway payments.Gateway,
	tx txRunner,
	codes *displaycode.Generator,
	logg *logger.Logger,
	now func() time.Time,
) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("delivery repository required")
	}
	if reservationSvc == nil {
		return nil, fmt.Errorf("reservation service required")
	}
	if pointSvc == nil {
		return nil, fmt.Errorf("point service required")
	}
	if userRepo == nil {
		return nil, fmt.Errorf("users repository required")
	}
	if gateway == nil {
		return nil, fmt.Errorf("payment gateway required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if codes == nil {
		return nil, fmt.Errorf("display code generator required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	if now == nil {
		now = time.Now
	}
	return &service{
		repo:         repo,
		reservations: reservationSvc,
		points:       pointSvc,
		users:        userRepo,
		gateway:      gateway,
		tx:           tx,
		codes:        codes,
		logg:         logg,
		now:          now,
	}, nil
}

// Create bundles pending reservations into a PENDING_PAYMENT order and places
// the point hold. An order fully covered by points has no gateway leg and is
// marked paid inside the same transaction.
func (s *service) Create(ctx context.Context, input CreateInput) (*models.DeliveryOrder, error) {
	if len(input.ReservationIDs) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "reservation id list required")
	}
	if input.Address == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "delivery address required")
	}
	if input.PointUsed < 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "point amount cannot be negative")
	}

	var created *models.DeliveryOrder
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		user, err := s.users.WithTx(tx).LockByID(ctx, input.UserID)
		if err != nil {
			return err
		}
		if err := users.EnsureNotRestricted(user, s.now()); err != nil {
			return err
		}

		repo := s.repo.WithTx(tx)
		code, err := s.codes.Generate(ctx, repo.ExistsDisplayCode)
		if err != nil {
			return err
		}

		order := &models.DeliveryOrder{
			ID:          uuid.New(),
			UserID:      input.UserID,
			DisplayCode: code,
			Status:      enums.DeliveryOrderStatusPendingPayment,
			Address:     input.Address,
		}
		if err := repo.Create(ctx, order); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create delivery order")
		}

		linked, err := s.reservations.LinkDeliveryOrderInTx(ctx, tx, input.UserID, order.ID, input.ReservationIDs)
		if err != nil {
			return err
		}
		total := 0
		for i := range linked {
			total += linked[i].Amount
		}
		if input.PointUsed > total {
			return pkgerrors.New(pkgerrors.CodeValidation,
				fmt.Sprintf("point amount %d exceeds order total %d", input.PointUsed, total))
		}
		updates := map[string]any{"total_amount": total, "point_used": input.PointUsed}
		if err := repo.Update(ctx, order.ID, updates); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update delivery order amounts")
		}
		order.TotalAmount = total
		order.PointUsed = input.PointUsed

		if input.PointUsed > 0 {
			refType := referenceType
			refID := order.ID
			if _, err := s.points.UseInTx(ctx, tx, points.MutationInput{
				UserID:        input.UserID,
				Type:          enums.PointTransactionTypeUseOrder,
				Amount:        input.PointUsed,
				Reason:        fmt.Sprintf("delivery order %s", code),
				ReferenceType: &refType,
				ReferenceID:   &refID,
				Actor:         "user",
			}); err != nil {
				return err
			}
		}

		// Points-only orders never touch the gateway.
		if order.PGPaymentAmount() == 0 {
			paid, err := s.markPaidInTx(ctx, tx, order.ID, "")
			if err != nil {
				return err
			}
			order.Status = paid.Status
			order.PaidAt = paid.PaidAt
		}
		created = order
		return nil
	})
	if err != nil {
		return nil, err
	}

	logCtx := s.logg.WithOrderCode(s.logg.WithUserID(ctx, created.UserID.String()), created.DisplayCode)
	s.logg.Info(logCtx, "delivery order created")
	return created, nil
}

func (s *service) Get(ctx context.Context, orderID, userID uuid.UUID) (*models.DeliveryOrder, error) {
	row, err := s.repo.FindByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if row.UserID != userID {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	}
	return row, nil
}

func (s *service) ListByUser(ctx context.Context, userID uuid.UUID) ([]models.DeliveryOrder, error) {
	return s.repo.ListByUser(ctx, userID)
}

// BeginPayment opens the gateway payment window and records the transaction
// id on the order.
func (s *service) BeginPayment(ctx context.Context, orderID, userID uuid.UUID) (*payments.ReadyResult, error) {
	var ready *payments.ReadyResult
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		order, err := repo.LockByID(ctx, orderID)
		if err != nil {
			return err
		}
		if order.UserID != userID {
			return pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		if order.Status != enums.DeliveryOrderStatusPendingPayment {
			return pkgerrors.New(pkgerrors.CodeStateConflict,
				fmt.Sprintf("payment can only start while PENDING_PAYMENT, current status is %s", order.Status))
		}
		amount := order.PGPaymentAmount()
		if amount == 0 {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "order is fully covered by points")
		}

		result, err := s.gateway.Ready(ctx, payments.Order{DisplayCode: order.DisplayCode, Amount: amount})
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "open payment window")
		}
		if err := repo.Update(ctx, order.ID, map[string]any{"pg_transaction_id": result.TransactionID}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record transaction id")
		}
		ready = result
		return nil
	})
	if err != nil {
		return nil, err
	}
	return ready, nil
}

// MarkPaid confirms payment. The transition guard rejects a duplicate
// confirmation, which is the whole idempotency story for replayed callbacks.
func (s *service) MarkPaid(ctx context.Context, orderID uuid.UUID, approvalID string) (*models.DeliveryOrder, error) {
	var paid *models.DeliveryOrder
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		row, err := s.markPaidInTx(ctx, tx, orderID, approvalID)
		if err != nil {
			return err
		}
		paid = row
		return nil
	})
	if err != nil {
		return nil, err
	}

	logCtx := s.logg.WithOrderCode(ctx, paid.DisplayCode)
	s.logg.Info(logCtx, "delivery order paid")
	return paid, nil
}

func (s *service) markPaidInTx(ctx context.Context, tx *gorm.DB, orderID uuid.UUID, approvalID string) (*models.DeliveryOrder, error) {
	repo := s.repo.WithTx(tx)
	order, err := repo.LockByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	next, err := Transitions.Next(order.Status, EventMarkPaid)
	if err != nil {
		return nil, err
	}

	paidAt := s.now()
	updates := map[string]any{"status": next, "paid_at": paidAt}
	if approvalID != "" {
		updates["pg_approval_id"] = approvalID
	}
	if err := repo.Update(ctx, order.ID, updates); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update order status")
	}
	if err := s.reservations.PickForDeliveryOrderInTx(ctx, tx, order.ID); err != nil {
		return nil, err
	}

	order.Status = next
	order.PaidAt = &paidAt
	return order, nil
}

func (s *service) Accept(ctx context.Context, orderID uuid.UUID) (*models.DeliveryOrder, error) {
	return s.advance(ctx, orderID, EventAccept, "accepted_at")
}

func (s *service) Dispatch(ctx context.Context, orderID uuid.UUID) (*models.DeliveryOrder, error) {
	return s.advance(ctx, orderID, EventDispatch, "")
}

func (s *service) Deliver(ctx context.Context, orderID uuid.UUID) (*models.DeliveryOrder, error) {
	return s.advance(ctx, orderID, EventDeliver, "delivered_at")
}

// Cancel unwinds an order that has not left the store: linked reservations
// return to PENDING and are detached, the point hold is reversed, and the
// gateway leg is refunded when one exists.
func (s *service) Cancel(ctx context.Context, orderID uuid.UUID, input CancelInput) (*models.DeliveryOrder, error) {
	var canceled *models.DeliveryOrder
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		order, err := repo.LockByID(ctx, orderID)
		if err != nil {
			return err
		}
		if !input.Admin && order.UserID != input.UserID {
			return pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		if !input.Admin && order.Status == enums.DeliveryOrderStatusPaid {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "paid orders can only be canceled by an admin")
		}
		wasPaid := order.Status == enums.DeliveryOrderStatusPaid

		next, err := Transitions.Next(order.Status, EventCancel)
		if err != nil {
			return err
		}

		if wasPaid {
			if err := s.reservations.UnpickForDeliveryOrderInTx(ctx, tx, order.ID); err != nil {
				return err
			}
		}
		if err := s.reservations.UnlinkDeliveryOrderInTx(ctx, tx, order.ID); err != nil {
			return err
		}
		if _, err := s.points.CancelUseByReferenceInTx(ctx, tx, referenceType, order.ID); err != nil {
			return err
		}

		updates := map[string]any{"status": next, "canceled_at": s.now()}
		if err := repo.Update(ctx, order.ID, updates); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update order status")
		}

		// Refund last so a gateway failure rolls the whole cancel back.
		if wasPaid && order.PGPaymentAmount() > 0 && order.PGTransactionID != nil {
			reason := input.Reason
			if reason == "" {
				reason = "order canceled"
			}
			if err := s.gateway.Cancel(ctx, *order.PGTransactionID, order.PGPaymentAmount(), reason); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "refund payment")
			}
		}

		order.Status = next
		canceled = order
		return nil
	})
	if err != nil {
		return nil, err
	}

	logCtx := s.logg.WithOrderCode(ctx, canceled.DisplayCode)
	s.logg.Info(logCtx, "delivery order canceled")
	return canceled, nil
}

// Fail moves an unpaid order to FAILED and releases its point hold. Used by
// the payment reconciler for terminal gateway failures.
func (s *service) Fail(ctx context.Context, orderID uuid.UUID) error {
	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		order, err := repo.LockByID(ctx, orderID)
		if err != nil {
			return err
		}
		next, err := Transitions.Next(order.Status, EventFail)
		if err != nil {
			return err
		}
		if err := s.reservations.UnlinkDeliveryOrderInTx(ctx, tx, order.ID); err != nil {
			return err
		}
		if _, err := s.points.CancelUseByReferenceInTx(ctx, tx, referenceType, order.ID); err != nil {
			return err
		}
		updates := map[string]any{"status": next, "canceled_at": s.now()}
		if err := repo.Update(ctx, order.ID, updates); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update order status")
		}
		return nil
	})
}

func (s *service) ListAutoCompletable(ctx context.Context, cutoff time.Time) ([]models.DeliveryOrder, error) {
	return s.repo.ListAutoCompletable(ctx, cutoff)
}

func (s *service) advance(ctx context.Context, orderID uuid.UUID, event lifecycle.Event, stampColumn string) (*models.DeliveryOrder, error) {
	var updated *models.DeliveryOrder
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		order, err := repo.LockByID(ctx, orderID)
		if err != nil {
			return err
		}
		next, err := Transitions.Next(order.Status, event)
		if err != nil {
			return err
		}
		updates := map[string]any{"status": next}
		if stampColumn != "" {
			updates[stampColumn] = s.now()
		}
		if err := repo.Update(ctx, order.ID, updates); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update order status")
		}
		order.Status = next
		updated = order
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}
