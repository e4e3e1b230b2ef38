package enums

import "fmt"

// ClaimStatus tracks a courier claim through review and resolution.
type ClaimStatus string

const (
	ClaimStatusRequested ClaimStatus = "REQUESTED"
	ClaimStatusInReview  ClaimStatus = "IN_REVIEW"
	ClaimStatusApproved  ClaimStatus = "APPROVED"
	ClaimStatusRejected  ClaimStatus = "REJECTED"
	ClaimStatusResolved  ClaimStatus = "RESOLVED"
)

var validClaimStatuses = []ClaimStatus{
	ClaimStatusRequested,
	ClaimStatusInReview,
	ClaimStatusApproved,
	ClaimStatusRejected,
	ClaimStatusResolved,
}

// String implements fmt.Stringer.
func (c ClaimStatus) String() string {
	return string(c)
}

// IsValid reports whether the value is a known ClaimStatus.
func (c ClaimStatus) IsValid() bool {
	for _, candidate := range validClaimStatuses {
		if candidate == c {
			return true
		}
	}
	return false
}

// IsDecidable reports whether an approve/reject decision is still allowed.
func (c ClaimStatus) IsDecidable() bool {
	return c == ClaimStatusRequested || c == ClaimStatusInReview
}

// ParseClaimStatus converts raw input into a ClaimStatus.
func ParseClaimStatus(value string) (ClaimStatus, error) {
	for _, candidate := range validClaimStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid claim status %q", value)
}
