package enums

import "fmt"

// PlanStatus marks whether a catalog plan can be subscribed to.
type PlanStatus string

const (
	PlanStatusActive   PlanStatus = "active"
	PlanStatusInactive PlanStatus = "inactive"
)

var validPlanStatuses = []PlanStatus{
	PlanStatusActive,
	PlanStatusInactive,
}

// String implements fmt.Stringer.
func (s PlanStatus) String() string {
	return string(s)
}

// IsValid reports whether the value is known.
func (s PlanStatus) IsValid() bool {
	for _, candidate := range validPlanStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// ParsePlanStatus validates the raw value.
func ParsePlanStatus(raw string) (PlanStatus, error) {
	candidate := PlanStatus(raw)
	if !candidate.IsValid() {
		return "", fmt.Errorf("unknown plan status %q", raw)
	}
	return candidate, nil
}
