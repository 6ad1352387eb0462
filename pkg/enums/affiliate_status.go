package enums

import "fmt"

// AffiliateStatus tracks the lifecycle of an affiliate account.
type AffiliateStatus string

const (
	AffiliateStatusPending  AffiliateStatus = "pending"
	AffiliateStatusActive   AffiliateStatus = "active"
	AffiliateStatusRejected AffiliateStatus = "rejected"
)

var validAffiliateStatuses = []AffiliateStatus{
	AffiliateStatusPending,
	AffiliateStatusActive,
	AffiliateStatusRejected,
}

// String implements fmt.Stringer.
func (s AffiliateStatus) String() string {
	return string(s)
}

// IsValid reports whether the value is a known AffiliateStatus.
func (s AffiliateStatus) IsValid() bool {
	for _, candidate := range validAffiliateStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// ParseAffiliateStatus converts raw input into an AffiliateStatus.
func ParseAffiliateStatus(value string) (AffiliateStatus, error) {
	for _, candidate := range validAffiliateStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid affiliate status %q", value)
}
