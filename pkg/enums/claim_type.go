package enums

import "fmt"

// ClaimType categorizes why a customer raised a claim.
type ClaimType string

const (
	ClaimTypeChangeOfMind ClaimType = "CHANGE_OF_MIND"
	ClaimTypeDefect       ClaimType = "DEFECT"
	ClaimTypeWrongItem    ClaimType = "WRONG_ITEM"
	ClaimTypeNotReceived  ClaimType = "NOT_RECEIVED"
	ClaimTypeOther        ClaimType = "OTHER"
)

var validClaimTypes = []ClaimType{
	ClaimTypeChangeOfMind,
	ClaimTypeDefect,
	ClaimTypeWrongItem,
	ClaimTypeNotReceived,
	ClaimTypeOther,
}

// String implements fmt.Stringer.
func (c ClaimType) String() string {
	return string(c)
}

// IsValid reports whether the value is a known ClaimType.
func (c ClaimType) IsValid() bool {
	for _, candidate := range validClaimTypes {
		if candidate == c {
			return true
		}
	}
	return false
}

// DefaultFeeBearer returns who pays return shipping for this claim type.
// Change-of-mind returns bill the customer; everything else is on the seller.
func (c ClaimType) DefaultFeeBearer() ReturnFeeBearer {
	if c == ClaimTypeChangeOfMind {
		return ReturnFeeBearerCustomer
	}
	return ReturnFeeBearerSeller
}

// ParseClaimType converts raw input into a ClaimType.
func ParseClaimType(value string) (ClaimType, error) {
	for _, candidate := range validClaimTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid claim type %q", value)
}
