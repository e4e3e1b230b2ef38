package delivery

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/sejinoh/pickupz-backend/internal/payments"
)

// paymentStore adapts the delivery family for the payment reconciler.
type paymentStore struct {
	svc  *service
	repo Repository
}

// PaymentStore adapts this family for the payment reconciler.
func (s *service) PaymentStore() payments.Store {
	return &paymentStore{svc: s, repo: s.repo}
}

func (p *paymentStore) FindPendingByDisplayCode(ctx context.Context, code string) (*payments.PendingOrder, error) {
	order, err := p.repo.FindByDisplayCode(ctx, code)
	if err != nil {
		return nil, err
	}
	return &payments.PendingOrder{
		ID:            order.ID,
		UserID:        order.UserID,
		DisplayCode:   order.DisplayCode,
		TransactionID: order.PGTransactionID,
		Amount:        order.PGPaymentAmount(),
	}, nil
}

func (p *paymentStore) MarkPaid(ctx context.Context, orderID uuid.UUID, approvalID string) error {
	_, err := p.svc.MarkPaid(ctx, orderID, approvalID)
	return err
}

func (p *paymentStore) MarkFailed(ctx context.Context, orderID uuid.UUID) error {
	return p.svc.Fail(ctx, orderID)
}

func (p *paymentStore) ListPendingBefore(ctx context.Context, cutoff time.Time) ([]payments.PendingOrder, error) {
	rows, err := p.repo.ListPendingPaymentBefore(ctx, cutoff)
	if err != nil {
		return nil, err
	}
	pending := make([]payments.PendingOrder, 0, len(rows))
	for i := range rows {
		pending = append(pending, payments.PendingOrder{
			ID:            rows[i].ID,
			UserID:        rows[i].UserID,
			DisplayCode:   rows[i].DisplayCode,
			TransactionID: rows[i].PGTransactionID,
			Amount:        rows[i].PGPaymentAmount(),
		})
	}
	return pending, nil
}
