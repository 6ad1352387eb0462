package enums

import "fmt"

// AlertType classifies click-traffic alerts.
type AlertType string

const (
	AlertTypeClickSpike AlertType = "click_spike"
	AlertTypeIPAbuse    AlertType = "ip_abuse"
)

var validAlertTypes = []AlertType{
	AlertTypeClickSpike,
	AlertTypeIPAbuse,
}

// String implements fmt.Stringer.
func (t AlertType) String() string {
	return string(t)
}

// IsValid reports whether the value is a known AlertType.
func (t AlertType) IsValid() bool {
	for _, candidate := range validAlertTypes {
		if candidate == t {
			return true
		}
	}
	return false
}

// ParseAlertType converts raw input into an AlertType.
func ParseAlertType(value string) (AlertType, error) {
	for _, candidate := range validAlertTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid alert type %q", value)
}
