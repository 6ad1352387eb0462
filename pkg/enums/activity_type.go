package enums

// ActivityType labels entries in the per-affiliate activity log.
type ActivityType string

const (
	ActivityTypeApplied        ActivityType = "applied"
	ActivityTypeApproved       ActivityType = "approved"
	ActivityTypeRejected       ActivityType = "rejected"
	ActivityTypeTierUpgrade    ActivityType = "tier_upgrade"
	ActivityTypePayoutSent     ActivityType = "payout_sent"
	ActivityTypePayoutComplete ActivityType = "payout_complete"
	ActivityTypeArchived       ActivityType = "archived"
	ActivityTypeSlugChanged    ActivityType = "slug_changed"
)

var validActivityTypes = []ActivityType{
	ActivityTypeApplied,
	ActivityTypeApproved,
	ActivityTypeRejected,
	ActivityTypeTierUpgrade,
	ActivityTypePayoutSent,
	ActivityTypePayoutComplete,
	ActivityTypeArchived,
	ActivityTypeSlugChanged,
}

// String implements fmt.Stringer.
func (t ActivityType) String() string {
	return string(t)
}

// IsValid reports whether the value is a known ActivityType.
func (t ActivityType) IsValid() bool {
	for _, candidate := range validActivityTypes {
		if candidate == t {
			return true
		}
	}
	return false
}
