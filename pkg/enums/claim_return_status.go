package enums

import "fmt"

// ClaimReturnStatus tracks physical return collection for approved claims
// that require the item back.
type ClaimReturnStatus string

const (
	ClaimReturnStatusCollecting ClaimReturnStatus = "COLLECTING"
	ClaimReturnStatusCollected  ClaimReturnStatus = "COLLECTED"
)

var validClaimReturnStatuses = []ClaimReturnStatus{
	ClaimReturnStatusCollecting,
	ClaimReturnStatusCollected,
}

// String implements fmt.Stringer.
func (c ClaimReturnStatus) String() string {
	return string(c)
}

// IsValid reports whether the value is a known ClaimReturnStatus.
func (c ClaimReturnStatus) IsValid() bool {
	for _, candidate := range validClaimReturnStatuses {
		if candidate == c {
			return true
		}
	}
	return false
}

// ParseClaimReturnStatus converts raw input into a ClaimReturnStatus.
func ParseClaimReturnStatus(value string) (ClaimReturnStatus, error) {
	for _, candidate := range validClaimReturnStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid claim return status %q", value)
}
