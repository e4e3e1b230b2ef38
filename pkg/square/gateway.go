package square

import (
	"context"

	sq "github.com/square/square-go-sdk"
	sqcheckout "github.com/square/square-go-sdk/checkout"

	"github.com/sejinoh/pickupz-backend/internal/payments"
	pkgerrors "github.com/sejinoh/pickupz-backend/pkg/errors"
)

// Gateway adapts Square hosted checkout to the payment port. Ready opens a
// payment link and hands back the Square order id as the transaction id; the
// customer pays on the hosted page, so Approve and QueryStatus read the
// captured payment off the order's tenders instead of capturing themselves.
type Gateway struct {
	client *Client
}

var _ payments.Gateway = (*Gateway)(nil)

func NewGateway(client *Client) *Gateway {
	return &Gateway{client: client}
}

// Ready opens a hosted payment link for the order.
func (g *Gateway) Ready(ctx context.Context, order payments.Order) (*payments.ReadyResult, error) {
	c := g.client
	req := &sqcheckout.CreatePaymentLinkRequest{
		IdempotencyKey: ptrString(c.NewIdempotencyKey("link." + order.DisplayCode)),
		QuickPay: &sq.QuickPay{
			Name:       order.DisplayCode,
			PriceMoney: moneyPtr(int64(order.Amount), c.currency),
			LocationID: c.locationID,
		},
	}
	c.log(ctx, "request", "create_payment_link", map[string]any{
		"display_code": order.DisplayCode,
		"amount":       order.Amount,
	})

	resp, err := c.sdk.Checkout.PaymentLinks.Create(ctx, req)
	if err != nil {
		c.log(ctx, "error", "create_payment_link", map[string]any{"error": err.Error()})
		return nil, c.mapSquareError(err, "create payment link")
	}

	link := resp.GetPaymentLink()
	result := &payments.ReadyResult{
		TransactionID: stringValue(link.GetOrderID()),
		RedirectURL:   stringValue(link.GetURL()),
	}
	if result.TransactionID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "square returned a payment link without an order id")
	}
	c.log(ctx, "response", "create_payment_link", map[string]any{
		"transaction_id": result.TransactionID,
	})
	return result, nil
}

// Approve confirms that the hosted checkout captured the payment. Square
// completes the capture on its side, so the callback token is not needed
// here; the tender on the order is the source of truth.
func (g *Gateway) Approve(ctx context.Context, transactionID, _ string) (*payments.ApproveResult, error) {
	payment, err := g.tenderPayment(ctx, transactionID)
	if err != nil {
		return nil, err
	}
	if payment == nil || mapPaymentStatus(stringValue(payment.GetStatus())) != payments.StatusApproved {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "square has not captured this payment")
	}
	return &payments.ApproveResult{ApprovalID: stringValue(payment.GetID())}, nil
}

// QueryStatus reports the gateway-side state of the transaction.
func (g *Gateway) QueryStatus(ctx context.Context, transactionID string) (*payments.StatusResult, error) {
	payment, err := g.tenderPayment(ctx, transactionID)
	if err != nil {
		return nil, err
	}
	if payment == nil {
		return &payments.StatusResult{Status: payments.StatusPending}, nil
	}
	status := mapPaymentStatus(stringValue(payment.GetStatus()))
	result := &payments.StatusResult{Status: status}
	if status == payments.StatusApproved {
		result.ApprovalID = stringValue(payment.GetID())
	}
	return result, nil
}

// Cancel refunds the captured payment behind the transaction.
func (g *Gateway) Cancel(ctx context.Context, transactionID string, amount int, reason string) error {
	c := g.client
	payment, err := g.tenderPayment(ctx, transactionID)
	if err != nil {
		return err
	}
	if payment == nil {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "no captured payment to refund for this transaction")
	}

	paymentID := stringValue(payment.GetID())
	req := &sq.RefundPaymentRequest{
		IdempotencyKey: c.NewIdempotencyKey("refund." + paymentID),
		PaymentID:      ptrString(paymentID),
		AmountMoney:    moneyPtr(int64(amount), c.currency),
		Reason:         ptrString(reason),
	}
	c.log(ctx, "request", "refund_payment", map[string]any{
		"payment_id": paymentID,
		"amount":     amount,
	})

	if _, err := c.sdk.Refunds.RefundPayment(ctx, req); err != nil {
		c.log(ctx, "error", "refund_payment", map[string]any{"error": err.Error()})
		return c.mapSquareError(err, "refund payment")
	}

	c.log(ctx, "response", "refund_payment", map[string]any{"payment_id": paymentID})
	return nil
}

// tenderPayment loads the Square order and returns its tender payment, or
// nil when nothing has been tendered yet.
func (g *Gateway) tenderPayment(ctx context.Context, orderID string) (*sq.Payment, error) {
	c := g.client
	orderResp, err := c.sdk.Orders.Get(ctx, &sq.GetOrdersRequest{OrderID: orderID})
	if err != nil {
		c.log(ctx, "error", "get_order", map[string]any{"error": err.Error()})
		return nil, c.mapSquareError(err, "get order")
	}

	order := orderResp.GetOrder()
	if order == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "square order not found")
	}

	var paymentID string
	for _, tender := range order.GetTenders() {
		if tender == nil {
			continue
		}
		if id := stringValue(tender.GetPaymentID()); id != "" {
			paymentID = id
			break
		}
	}
	if paymentID == "" {
		return nil, nil
	}

	paymentResp, err := c.sdk.Payments.Get(ctx, &sq.GetPaymentsRequest{PaymentID: paymentID})
	if err != nil {
		c.log(ctx, "error", "get_payment", map[string]any{"error": err.Error()})
		return nil, c.mapSquareError(err, "get payment")
	}
	return paymentResp.GetPayment(), nil
}

func mapPaymentStatus(status string) payments.Status {
	switch status {
	case "COMPLETED":
		return payments.StatusApproved
	case "CANCELED", "FAILED":
		return payments.StatusFailed
	default:
		return payments.StatusPending
	}
}
