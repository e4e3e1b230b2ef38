package courier

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/sejinoh/pickupz-backend/internal/lifecycle"
	"github.com/sejinoh/pickupz-backend/internal/payments"
	"github.com/sejinoh/pickupz-backend/internal/points"
	"github.com/sejinoh/pickupz-backend/internal/stock"
	"github.com/sejinoh/pickupz-backend/internal/users"
	"github.com/sejinoh/pickupz-backend/pkg/db/models"
	"github.com/sejinoh/pickupz-backend/pkg/displaycode"
	"github.com/sejinoh/pickupz-backend/pkg/enums"
	pkgerrors "github.com/sejinoh/pickupz-backend/pkg/errors"
	"github.com/sejinoh/pickupz-backend/pkg/logger"
)

// referenceType tags point ledger rows written for courier orders.
const referenceType = "COURIER_ORDER"

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Service defines courier order operations.
type Service interface {
	Create(ctx context.Context, input CreateInput) (*models.CourierOrder, error)
	Get(ctx context.Context, orderID, userID uuid.UUID) (*models.CourierOrder, error)
	ListByUser(ctx context.Context, userID uuid.UUID) ([]models.CourierOrder, error)
	BeginPayment(ctx context.Context, orderID, userID uuid.UUID) (*payments.ReadyResult, error)
	MarkPaid(ctx context.Context, orderID uuid.UUID, approvalID string) (*models.CourierOrder, error)
	Prepare(ctx context.Context, orderID uuid.UUID) (*models.CourierOrder, error)
	Ship(ctx context.Context, orderID uuid.UUID, waybillNo string) (*models.CourierOrder, error)
	MarkInTransit(ctx context.Context, orderID uuid.UUID) (*models.CourierOrder, error)
	Deliver(ctx context.Context, orderID uuid.UUID) (*models.CourierOrder, error)
	Cancel(ctx context.Context, orderID uuid.UUID, input CancelInput) (*models.CourierOrder, error)
	Fail(ctx context.Context, orderID uuid.UUID) error
	BulkImportWaybills(ctx context.Context, rows []WaybillRow) (*WaybillImportResult, error)

	// PaymentStore adapts this family for the payment reconciler.
	PaymentStore() payments.Store
}

// LineInput is one requested order line.
type LineInput struct {
	ProductID uuid.UUID
	Quantity  int
}

// CreateInput describes a new courier order.
type CreateInput struct {
	UserID    uuid.UUID
	Address   string
	PointUsed int
	Lines     []LineInput
}

// CancelInput carries who is canceling. Paid orders are admin-only.
type CancelInput struct {
	UserID uuid.UUID
	Admin  bool
	Reason string
}

// WaybillRow is one row of a bulk waybill upload.
type WaybillRow struct {
	DisplayCode string
	WaybillNo   string
}

// WaybillRowError reports why one upload row was rejected.
type WaybillRowError struct {
	DisplayCode string `json:"display_code"`
	Reason      string `json:"reason"`
}

// WaybillImportResult counts what a bulk import shipped.
type WaybillImportResult struct {
	Shipped int
}

type service struct {
	repo    Repository
	points  points.Service
	users   users.Repository
	gateway payments.Gateway
	tx      txRunner
	codes   *displaycode.Generator
	logg    *logger.Logger
	now     func() time.Time
}

// NewService wires the courier order service.
func NewService(
	repo Repository,
	pointSvc points.Service,
	userRepo users.Repository,
	gateway payments.Gateway,
	tx txRunner,
	codes *displaycode.Generator,
	logg *logger.Logger,
	now func() time.Time,
) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("courier repository required")
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
		repo:    repo,
		points:  pointSvc,
		users:   userRepo,
		gateway: gateway,
		tx:      tx,
		codes:   codes,
		logg:    logg,
		now:     now,
	}, nil
}

// Create reserves stock for every line, snapshots catalog name and price into
// the items, and places the point hold. All lines reserve or none do.
func (s *service) Create(ctx context.Context, input CreateInput) (*models.CourierOrder, error) {
	if len(input.Lines) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order line list required")
	}
	if input.Address == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "delivery address required")
	}
	if input.PointUsed < 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "point amount cannot be negative")
	}

	var created *models.CourierOrder
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		user, err := s.users.WithTx(tx).LockByID(ctx, input.UserID)
		if err != nil {
			return err
		}
		if err := users.EnsureNotRestricted(user, s.now()); err != nil {
			return err
		}

		requests := make([]stock.ReserveRequest, 0, len(input.Lines))
		for _, line := range input.Lines {
			requests = append(requests, stock.ReserveRequest{ProductID: line.ProductID, Qty: line.Quantity})
		}
		if err := stock.ReserveAll(ctx, tx, requests); err != nil {
			return err
		}

		repo := s.repo.WithTx(tx)
		code, err := s.codes.Generate(ctx, repo.ExistsDisplayCode)
		if err != nil {
			return err
		}

		order := &models.CourierOrder{
			ID:          uuid.New(),
			UserID:      input.UserID,
			DisplayCode: code,
			Status:      enums.CourierOrderStatusPendingPayment,
			Address:     input.Address,
		}
		if err := repo.Create(ctx, order); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create courier order")
		}

		total := 0
		items := make([]models.CourierOrderItem, 0, len(input.Lines))
		for _, line := range input.Lines {
			// Rows are locked by ReserveAll above, the snapshot read is stable.
			product, err := repo.FindProduct(ctx, line.ProductID)
			if err != nil {
				return err
			}
			item := models.CourierOrderItem{
				ID:          uuid.New(),
				OrderID:     order.ID,
				ProductID:   product.ID,
				ProductName: product.Name,
				UnitPrice:   product.Price,
				Quantity:    line.Quantity,
				Status:      enums.OrderItemStatusNormal,
			}
			total += item.LineAmount()
			items = append(items, item)
		}
		if input.PointUsed > total {
			return pkgerrors.New(pkgerrors.CodeValidation,
				fmt.Sprintf("point amount %d exceeds order total %d", input.PointUsed, total))
		}
		if err := repo.CreateItems(ctx, items); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create order items")
		}
		updates := map[string]any{"total_amount": total, "point_used": input.PointUsed}
		if err := repo.Update(ctx, order.ID, updates); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update order amounts")
		}
		order.TotalAmount = total
		order.PointUsed = input.PointUsed
		order.Items = items

		if input.PointUsed > 0 {
			refType := referenceType
			refID := order.ID
			if _, err := s.points.UseInTx(ctx, tx, points.MutationInput{
				UserID:        input.UserID,
				Type:          enums.PointTransactionTypeUseOrder,
				Amount:        input.PointUsed,
				Reason:        fmt.Sprintf("courier order %s", code),
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
	s.logg.Info(logCtx, "courier order created")
	return created, nil
}

func (s *service) Get(ctx context.Context, orderID, userID uuid.UUID) (*models.CourierOrder, error) {
	row, err := s.repo.FindByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if row.UserID != userID {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	}
	return row, nil
}

func (s *service) ListByUser(ctx context.Context, userID uuid.UUID) ([]models.CourierOrder, error) {
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
		if order.Status != enums.CourierOrderStatusPendingPayment {
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

// MarkPaid confirms payment. The transition guard rejects duplicates.
func (s *service) MarkPaid(ctx context.Context, orderID uuid.UUID, approvalID string) (*models.CourierOrder, error) {
	var paid *models.CourierOrder
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
	s.logg.Info(logCtx, "courier order paid")
	return paid, nil
}

func (s *service) markPaidInTx(ctx context.Context, tx *gorm.DB, orderID uuid.UUID, approvalID string) (*models.CourierOrder, error) {
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
	order.Status = next
	order.PaidAt = &paidAt
	return order, nil
}

func (s *service) Prepare(ctx context.Context, orderID uuid.UUID) (*models.CourierOrder, error) {
	return s.advance(ctx, orderID, EventPrepare, nil)
}

// Ship stamps the waybill and dispatch time. A blank waybill is rejected and
// re-shipping is blocked by the transition guard.
func (s *service) Ship(ctx context.Context, orderID uuid.UUID, waybillNo string) (*models.CourierOrder, error) {
	waybillNo = strings.TrimSpace(waybillNo)
	if waybillNo == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "waybill number required")
	}
	return s.advance(ctx, orderID, EventShip, map[string]any{
		"waybill_no": waybillNo,
		"shipped_at": s.now(),
	})
}

func (s *service) MarkInTransit(ctx context.Context, orderID uuid.UUID) (*models.CourierOrder, error) {
	return s.advance(ctx, orderID, EventTransit, nil)
}

func (s *service) Deliver(ctx context.Context, orderID uuid.UUID) (*models.CourierOrder, error) {
	return s.advance(ctx, orderID, EventDeliver, map[string]any{"delivered_at": s.now()})
}

// Cancel unwinds an order the courier has not picked up: every line's stock
// returns, the point hold is reversed, and the gateway leg is refunded when
// one exists.
func (s *service) Cancel(ctx context.Context, orderID uuid.UUID, input CancelInput) (*models.CourierOrder, error) {
	var canceled *models.CourierOrder
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		order, err := repo.LockByID(ctx, orderID)
		if err != nil {
			return err
		}
		if !input.Admin && order.UserID != input.UserID {
			return pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		if !input.Admin && order.Status != enums.CourierOrderStatusPendingPayment {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "paid orders can only be canceled by an admin")
		}
		wasPaid := order.Status.IsPaidSet()

		next, err := Transitions.Next(order.Status, EventCancel)
		if err != nil {
			return err
		}

		if err := s.restoreLines(ctx, tx, order.ID); err != nil {
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
	s.logg.Info(logCtx, "courier order canceled")
	return canceled, nil
}

// Fail moves an unpaid order to FAILED, restores stock, and releases the
// point hold. Used by the payment reconciler for terminal gateway failures.
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
		if err := s.restoreLines(ctx, tx, order.ID); err != nil {
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

// BulkImportWaybills ships orders from an upload, all or nothing. Every bad
// row is collected with its reason before the batch is rejected, so one
// upload round-trip surfaces every problem at once.
func (s *service) BulkImportWaybills(ctx context.Context, rows []WaybillRow) (*WaybillImportResult, error) {
	if len(rows) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "waybill row list required")
	}

	result := &WaybillImportResult{}
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		var rowErrors []WaybillRowError
		for _, row := range rows {
			reason := s.shipRowInTx(ctx, repo, row)
			if reason != "" {
				rowErrors = append(rowErrors, WaybillRowError{DisplayCode: row.DisplayCode, Reason: reason})
			}
		}
		if len(rowErrors) > 0 {
			return pkgerrors.New(pkgerrors.CodeValidation, "waybill import rejected").
				WithDetails(map[string]any{"rows": rowErrors})
		}
		result.Shipped = len(rows)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// shipRowInTx ships one upload row, returning a human-readable reason when
// the row cannot ship.
func (s *service) shipRowInTx(ctx context.Context, repo Repository, row WaybillRow) string {
	waybillNo := strings.TrimSpace(row.WaybillNo)
	if waybillNo == "" {
		return "waybill number required"
	}
	order, err := repo.LockByDisplayCode(ctx, row.DisplayCode)
	if err != nil {
		if pkgerrors.HasCode(err, pkgerrors.CodeNotFound) {
			return "order not found"
		}
		return err.Error()
	}
	next, err := Transitions.Next(order.Status, EventShip)
	if err != nil {
		if order.Status == enums.CourierOrderStatusShipped || order.Status == enums.CourierOrderStatusInTransit {
			return "order is already shipped"
		}
		return fmt.Sprintf("order is %s and cannot ship", order.Status)
	}
	updates := map[string]any{
		"status":     next,
		"waybill_no": waybillNo,
		"shipped_at": s.now(),
	}
	if err := repo.Update(ctx, order.ID, updates); err != nil {
		return "failed to update order"
	}
	return ""
}

func (s *service) advance(ctx context.Context, orderID uuid.UUID, event lifecycle.Event, extra map[string]any) (*models.CourierOrder, error) {
	var updated *models.CourierOrder
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
		for column, value := range extra {
			updates[column] = value
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

func (s *service) restoreLines(ctx context.Context, tx *gorm.DB, orderID uuid.UUID) error {
	items, err := s.repo.WithTx(tx).ListItems(ctx, orderID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list order items")
	}
	for i := range items {
		// A refunded line already settled through its claim.
		if items[i].Status == enums.OrderItemStatusRefunded {
			continue
		}
		if err := stock.Restore(ctx, tx, items[i].ProductID, items[i].Quantity); err != nil {
			return err
		}
	}
	return nil
}
