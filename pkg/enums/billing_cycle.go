package enums

import (
	"fmt"
	"time"
)

// BillingCycle is the recurring period a subscription is billed on.
type BillingCycle string

const (
	BillingCycleMonthly BillingCycle = "MONTHLY"
	BillingCycleYearly  BillingCycle = "YEARLY"
)

var validBillingCycles = []BillingCycle{
	BillingCycleMonthly,
	BillingCycleYearly,
}

// String implements fmt.Stringer.
func (c BillingCycle) String() string {
	return string(c)
}

// IsValid reports whether the value is known.
func (c BillingCycle) IsValid() bool {
	for _, candidate := range validBillingCycles {
		if candidate == c {
			return true
		}
	}
	return false
}

// Next rolls a billing date forward by one cycle.
func (c BillingCycle) Next(from time.Time) time.Time {
	if c == BillingCycleYearly {
		return from.AddDate(1, 0, 0)
	}
	return from.AddDate(0, 1, 0)
}

// ParseBillingCycle validates the raw value.
func ParseBillingCycle(raw string) (BillingCycle, error) {
	candidate := BillingCycle(raw)
	if !candidate.IsValid() {
		return "", fmt.Errorf("unknown billing cycle %q", raw)
	}
	return candidate, nil
}
