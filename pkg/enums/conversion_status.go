package enums

import "fmt"

// ConversionStatus tracks the lifecycle of a recorded sale.
type ConversionStatus string

const (
	ConversionStatusPending  ConversionStatus = "pending"
	ConversionStatusApproved ConversionStatus = "approved"
	ConversionStatusPaid     ConversionStatus = "paid"
)

var validConversionStatuses = []ConversionStatus{
	ConversionStatusPending,
	ConversionStatusApproved,
	ConversionStatusPaid,
}

// String implements fmt.Stringer.
func (s ConversionStatus) String() string {
	return string(s)
}

// IsValid reports whether the value is a known ConversionStatus.
func (s ConversionStatus) IsValid() bool {
	for _, candidate := range validConversionStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// ParseConversionStatus converts raw input into a ConversionStatus.
func ParseConversionStatus(value string) (ConversionStatus, error) {
	for _, candidate := range validConversionStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid conversion status %q", value)
}
