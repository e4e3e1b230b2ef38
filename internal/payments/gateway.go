package payments

import "context"

// Status is the gateway-side state of one payment attempt.
type Status string

const (
	StatusPending  Status = "PENDING"
	StatusApproved Status = "APPROVED"
	StatusFailed   Status = "FAILED"
)

// Order carries what the gateway needs to open a payment.
type Order struct {
	DisplayCode string
	Amount      int
}

// ReadyResult is returned when a payment window is opened.
type ReadyResult struct {
	TransactionID string
	RedirectURL   string
}

// ApproveResult is returned when a payment is captured.
type ApproveResult struct {
	ApprovalID string
}

// StatusResult reports the gateway-side state of a transaction, with the
// approval id when the payment already went through.
type StatusResult struct {
	Status     Status
	ApprovalID string
}

// Gateway is the payment provider port. pkg/square carries the production
// adapter; tests substitute fakes.
type Gateway interface {
	Ready(ctx context.Context, order Order) (*ReadyResult, error)
	Approve(ctx context.Context, transactionID, token string) (*ApproveResult, error)
	QueryStatus(ctx context.Context, transactionID string) (*StatusResult, error)
	Cancel(ctx context.Context, transactionID string, amount int, reason string) error
}
