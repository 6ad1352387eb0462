package enums

import "fmt"

// FraudFlagType classifies flags raised by the periodic fraud scan.
type FraudFlagType string

const (
	FraudFlagTypeHighClickRatio FraudFlagType = "high_click_ratio"
	FraudFlagTypeDuplicateIP    FraudFlagType = "duplicate_ip"
)

var validFraudFlagTypes = []FraudFlagType{
	FraudFlagTypeHighClickRatio,
	FraudFlagTypeDuplicateIP,
}

// String implements fmt.Stringer.
func (t FraudFlagType) String() string {
	return string(t)
}

// IsValid reports whether the value is a known FraudFlagType.
func (t FraudFlagType) IsValid() bool {
	for _, candidate := range validFraudFlagTypes {
		if candidate == t {
			return true
		}
	}
	return false
}

// ParseFraudFlagType converts raw input into a FraudFlagType.
func ParseFraudFlagType(value string) (FraudFlagType, error) {
	for _, candidate := range validFraudFlagTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid fraud flag type %q", value)
}
