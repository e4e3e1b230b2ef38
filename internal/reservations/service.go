package reservations

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/sejinoh/pickupz-backend/internal/lifecycle"
	"github.com/sejinoh/pickupz-backend/internal/stock"
	"github.com/sejinoh/pickupz-backend/internal/users"
	"github.com/sejinoh/pickupz-backend/pkg/db/models"
	"github.com/sejinoh/pickupz-backend/pkg/displaycode"
	"github.com/sejinoh/pickupz-backend/pkg/enums"
	pkgerrors "github.com/sejinoh/pickupz-backend/pkg/errors"
	"github.com/sejinoh/pickupz-backend/pkg/logger"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Service defines reservation operations.
type Service interface {
	Create(ctx context.Context, input CreateInput) (*models.Reservation, error)
	Get(ctx context.Context, reservationID, userID uuid.UUID) (*models.Reservation, error)
	GetByDisplayCode(ctx context.Context, code string) (*models.Reservation, error)
	ListByUser(ctx context.Context, userID uuid.UUID) ([]models.Reservation, error)
	Cancel(ctx context.Context, reservationID, userID uuid.UUID) (*models.Reservation, error)
	MinusQuantity(ctx context.Context, reservationID, userID uuid.UUID, minus int) (*models.Reservation, error)
	ChangeStatus(ctx context.Context, reservationID uuid.UUID, target enums.ReservationStatus) (*models.Reservation, error)
	MarkNoShow(ctx context.Context, reservationID uuid.UUID, today time.Time) (*users.PenaltyResult, error)
	ListPendingBefore(ctx context.Context, cutoff time.Time) ([]models.Reservation, error)

	// Tx-scoped cascade hooks driven by the delivery order lifecycle.
	LinkDeliveryOrderInTx(ctx context.Context, tx *gorm.DB, userID, orderID uuid.UUID, reservationIDs []uuid.UUID) ([]models.Reservation, error)
	PickForDeliveryOrderInTx(ctx context.Context, tx *gorm.DB, orderID uuid.UUID) error
	UnpickForDeliveryOrderInTx(ctx context.Context, tx *gorm.DB, orderID uuid.UUID) error
	UnlinkDeliveryOrderInTx(ctx context.Context, tx *gorm.DB, orderID uuid.UUID) error
}

// CreateInput describes a new pickup reservation.
type CreateInput struct {
	UserID     uuid.UUID
	ProductID  uuid.UUID
	Quantity   int
	PickupDate time.Time
}

type service struct {
	repo  Repository
	users users.Repository
	tx    txRunner
	codes *displaycode.Generator
	logg  *logger.Logger
	now   func() time.Time
}

// NewService wires the reservation service.
func NewService(repo Repository, userRepo users.Repository, tx txRunner, codes *displaycode.Generator, logg *logger.Logger, now func() time.Time) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("reservation repository required")
	}
	if userRepo == nil {
		return nil, fmt.Errorf("users repository required")
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
	return &service{repo: repo, users: userRepo, tx: tx, codes: codes, logg: logg, now: now}, nil
}

func (s *service) Create(ctx context.Context, input CreateInput) (*models.Reservation, error) {
	if input.Quantity <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "quantity must be greater than 0")
	}
	if input.PickupDate.IsZero() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "pickup date required")
	}

	var created *models.Reservation
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		userRepo := s.users.WithTx(tx)
		user, err := userRepo.LockByID(ctx, input.UserID)
		if err != nil {
			return err
		}
		if err := users.EnsureNotRestricted(user, s.now()); err != nil {
			return err
		}

		if err := stock.Reserve(ctx, tx, input.ProductID, input.Quantity); err != nil {
			return err
		}

		repo := s.repo.WithTx(tx)
		// The product row is locked by Reserve above, so the price read is stable.
		product, err := repo.FindProduct(ctx, input.ProductID)
		if err != nil {
			return err
		}

		code, err := s.codes.Generate(ctx, repo.ExistsDisplayCode)
		if err != nil {
			return err
		}

		row := &models.Reservation{
			ID:          uuid.New(),
			UserID:      input.UserID,
			ProductID:   input.ProductID,
			DisplayCode: code,
			Status:      enums.ReservationStatusPending,
			Quantity:    input.Quantity,
			Amount:      product.Price * input.Quantity,
			PickupDate:  input.PickupDate,
		}
		if err := repo.Create(ctx, row); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create reservation")
		}
		created = row
		return nil
	})
	if err != nil {
		return nil, err
	}

	logCtx := s.logg.WithOrderCode(s.logg.WithUserID(ctx, created.UserID.String()), created.DisplayCode)
	s.logg.Info(logCtx, "reservation created")
	return created, nil
}

func (s *service) Get(ctx context.Context, reservationID, userID uuid.UUID) (*models.Reservation, error) {
	row, err := s.repo.FindByID(ctx, reservationID)
	if err != nil {
		return nil, err
	}
	if row.UserID != userID {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "reservation not found")
	}
	return row, nil
}

func (s *service) GetByDisplayCode(ctx context.Context, code string) (*models.Reservation, error) {
	return s.repo.FindByDisplayCode(ctx, code)
}

func (s *service) ListByUser(ctx context.Context, userID uuid.UUID) ([]models.Reservation, error) {
	return s.repo.ListByUser(ctx, userID)
}

// Cancel releases the hold and restores stock. The status guard makes the
// restore exactly-once: a second cancel fails the transition before any stock
// write happens.
func (s *service) Cancel(ctx context.Context, reservationID, userID uuid.UUID) (*models.Reservation, error) {
	var canceled *models.Reservation
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		row, err := s.lockOwned(ctx, tx, reservationID, userID)
		if err != nil {
			return err
		}
		updated, err := s.cancelLocked(ctx, tx, row)
		if err != nil {
			return err
		}
		canceled = updated
		return nil
	})
	if err != nil {
		return nil, err
	}

	logCtx := s.logg.WithOrderCode(ctx, canceled.DisplayCode)
	s.logg.Info(logCtx, "reservation canceled")
	return canceled, nil
}

// MinusQuantity shrinks a pending reservation and returns the freed stock.
func (s *service) MinusQuantity(ctx context.Context, reservationID, userID uuid.UUID, minus int) (*models.Reservation, error) {
	if minus <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "minus must be greater than 0")
	}

	var updated *models.Reservation
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		row, err := s.lockOwned(ctx, tx, reservationID, userID)
		if err != nil {
			return err
		}
		if row.Status != enums.ReservationStatusPending {
			return pkgerrors.New(pkgerrors.CodeStateConflict,
				fmt.Sprintf("quantity can only change while PENDING, current status is %s", row.Status))
		}
		remaining := row.Quantity - minus
		if remaining < 1 {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "remaining quantity would drop below 1, use cancel instead")
		}

		if err := stock.Restore(ctx, tx, row.ProductID, minus); err != nil {
			return err
		}

		unitPrice := row.Amount / row.Quantity
		updates := map[string]any{
			"quantity": remaining,
			"amount":   unitPrice * remaining,
		}
		if err := s.repo.WithTx(tx).Update(ctx, row.ID, updates); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update reservation quantity")
		}
		row.Quantity = remaining
		row.Amount = unitPrice * remaining
		updated = row
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// ChangeStatus moves a reservation between PENDING and PICKED, the reversible
// pair used when the customer collects (or returns) the goods at the store.
func (s *service) ChangeStatus(ctx context.Context, reservationID uuid.UUID, target enums.ReservationStatus) (*models.Reservation, error) {
	var event lifecycle.Event
	switch target {
	case enums.ReservationStatusPicked:
		event = EventPick
	case enums.ReservationStatusPending:
		event = EventUnpick
	default:
		return nil, pkgerrors.New(pkgerrors.CodeValidation,
			fmt.Sprintf("status can only change to %s or %s", enums.ReservationStatusPicked, enums.ReservationStatusPending))
	}

	var updated *models.Reservation
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		row, err := s.repo.WithTx(tx).LockByID(ctx, reservationID)
		if err != nil {
			return err
		}
		next, err := Transitions.Next(row.Status, event)
		if err != nil {
			return err
		}

		updates := map[string]any{"status": next}
		if next == enums.ReservationStatusPicked {
			updates["picked_at"] = s.now()
		} else {
			updates["picked_at"] = nil
		}
		if err := s.repo.WithTx(tx).Update(ctx, row.ID, updates); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update reservation status")
		}
		row.Status = next
		updated = row
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// MarkNoShow expires one overdue reservation: terminal NO_SHOW status, stock
// restore, and a warn-count penalty. When the penalty imposes a restriction,
// every future PENDING reservation of the user is canceled in the same
// transaction with its stock restored.
func (s *service) MarkNoShow(ctx context.Context, reservationID uuid.UUID, today time.Time) (*users.PenaltyResult, error) {
	var penalty *users.PenaltyResult
	var code string
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		row, err := repo.LockByID(ctx, reservationID)
		if err != nil {
			return err
		}
		next, err := Transitions.Next(row.Status, EventNoShow)
		if err != nil {
			return err
		}
		if err := stock.Restore(ctx, tx, row.ProductID, row.Quantity); err != nil {
			return err
		}
		updates := map[string]any{
			"status":      next,
			"canceled_at": s.now(),
		}
		if err := repo.Update(ctx, row.ID, updates); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update reservation status")
		}
		code = row.DisplayCode

		result, err := users.Penalize(ctx, tx, s.users, row.UserID, today)
		if err != nil {
			return err
		}
		penalty = result
		if result.RestrictionDays == 0 {
			return nil
		}

		future, err := repo.ListFuturePendingByUser(ctx, row.UserID, today)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list future reservations")
		}
		for i := range future {
			locked, err := repo.LockByID(ctx, future[i].ID)
			if err != nil {
				return err
			}
			if _, err := s.cancelLocked(ctx, tx, locked); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	logCtx := s.logg.WithOrderCode(ctx, code)
	if penalty.RestrictionDays > 0 {
		logCtx = s.logg.WithField(logCtx, "restriction_days", penalty.RestrictionDays)
	}
	s.logg.Info(logCtx, "reservation marked no-show")
	return penalty, nil
}

func (s *service) ListPendingBefore(ctx context.Context, cutoff time.Time) ([]models.Reservation, error) {
	return s.repo.ListPendingBefore(ctx, cutoff)
}

// LinkDeliveryOrderInTx attaches owned, pending, unlinked reservations to a
// delivery order and returns the linked rows for amount math.
func (s *service) LinkDeliveryOrderInTx(ctx context.Context, tx *gorm.DB, userID, orderID uuid.UUID, reservationIDs []uuid.UUID) ([]models.Reservation, error) {
	if len(reservationIDs) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "reservation id list required")
	}
	repo := s.repo.WithTx(tx)
	linked := make([]models.Reservation, 0, len(reservationIDs))
	for _, id := range reservationIDs {
		row, err := repo.LockByID(ctx, id)
		if err != nil {
			return nil, err
		}
		if row.UserID != userID {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "reservation not found")
		}
		if row.Status != enums.ReservationStatusPending {
			return nil, pkgerrors.New(pkgerrors.CodeStateConflict,
				fmt.Sprintf("reservation %s is %s, only PENDING reservations can join a delivery order", row.DisplayCode, row.Status))
		}
		if row.DeliveryOrderID != nil {
			return nil, pkgerrors.New(pkgerrors.CodeStateConflict,
				fmt.Sprintf("reservation %s already belongs to a delivery order", row.DisplayCode))
		}
		if err := repo.Update(ctx, row.ID, map[string]any{"delivery_order_id": orderID}); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "link reservation")
		}
		row.DeliveryOrderID = &orderID
		linked = append(linked, *row)
	}
	return linked, nil
}

// PickForDeliveryOrderInTx flips every linked reservation to PICKED. Called by
// the delivery payment handler inside the payment transaction.
func (s *service) PickForDeliveryOrderInTx(ctx context.Context, tx *gorm.DB, orderID uuid.UUID) error {
	return s.cascadeDeliveryOrder(ctx, tx, orderID, EventPick)
}

// UnpickForDeliveryOrderInTx reverses the pick cascade when a delivery order
// is canceled: linked reservations return to PENDING, never to CANCELED.
func (s *service) UnpickForDeliveryOrderInTx(ctx context.Context, tx *gorm.DB, orderID uuid.UUID) error {
	return s.cascadeDeliveryOrder(ctx, tx, orderID, EventUnpick)
}

// UnlinkDeliveryOrderInTx detaches every reservation from a canceled delivery
// order so the rows can be bundled again later. Statuses are untouched.
func (s *service) UnlinkDeliveryOrderInTx(ctx context.Context, tx *gorm.DB, orderID uuid.UUID) error {
	err := tx.WithContext(ctx).Model(&models.Reservation{}).
		Where("delivery_order_id = ?", orderID).
		Update("delivery_order_id", nil).Error
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "unlink reservations")
	}
	return nil
}

func (s *service) cascadeDeliveryOrder(ctx context.Context, tx *gorm.DB, orderID uuid.UUID, event lifecycle.Event) error {
	repo := s.repo.WithTx(tx)
	rows, err := repo.ListByDeliveryOrder(ctx, orderID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list linked reservations")
	}
	for i := range rows {
		row, err := repo.LockByID(ctx, rows[i].ID)
		if err != nil {
			return err
		}
		next, err := Transitions.Next(row.Status, event)
		if err != nil {
			return err
		}
		updates := map[string]any{"status": next}
		if next == enums.ReservationStatusPicked {
			updates["picked_at"] = s.now()
		} else {
			updates["picked_at"] = nil
		}
		if err := repo.Update(ctx, row.ID, updates); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update linked reservation")
		}
	}
	return nil
}

func (s *service) lockOwned(ctx context.Context, tx *gorm.DB, reservationID, userID uuid.UUID) (*models.Reservation, error) {
	row, err := s.repo.WithTx(tx).LockByID(ctx, reservationID)
	if err != nil {
		return nil, err
	}
	if row.UserID != userID {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "reservation not found")
	}
	return row, nil
}

// cancelLocked runs the terminal cancel transition on an already locked row.
func (s *service) cancelLocked(ctx context.Context, tx *gorm.DB, row *models.Reservation) (*models.Reservation, error) {
	next, err := Transitions.Next(row.Status, EventCancel)
	if err != nil {
		return nil, err
	}
	if err := stock.Restore(ctx, tx, row.ProductID, row.Quantity); err != nil {
		return nil, err
	}
	updates := map[string]any{
		"status":      next,
		"canceled_at": s.now(),
	}
	if err := s.repo.WithTx(tx).Update(ctx, row.ID, updates); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update reservation status")
	}
	row.Status = next
	return row, nil
}
