package enums

import "fmt"

// ReturnFeeBearer names who pays the return shipping fee on a claim.
type ReturnFeeBearer string

const (
	ReturnFeeBearerCustomer ReturnFeeBearer = "CUSTOMER"
	ReturnFeeBearerSeller   ReturnFeeBearer = "SELLER"
)

var validReturnFeeBearers = []ReturnFeeBearer{
	ReturnFeeBearerCustomer,
	ReturnFeeBearerSeller,
}

// String implements fmt.Stringer.
func (r ReturnFeeBearer) String() string {
	return string(r)
}

// IsValid reports whether the value is a known ReturnFeeBearer.
func (r ReturnFeeBearer) IsValid() bool {
	for _, candidate := range validReturnFeeBearers {
		if candidate == r {
			return true
		}
	}
	return false
}

// ParseReturnFeeBearer converts raw input into a ReturnFeeBearer.
func ParseReturnFeeBearer(value string) (ReturnFeeBearer, error) {
	for _, candidate := range validReturnFeeBearers {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid return fee bearer %q", value)
}
