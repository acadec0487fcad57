package enums

import "slices"

// HoldStatus tracks the lifecycle of an inventory hold.
type HoldStatus string

const (
	HoldStatusActive    HoldStatus = "ACTIVE"
	HoldStatusExpired   HoldStatus = "EXPIRED"
	HoldStatusConsumed  HoldStatus = "CONSUMED"
	HoldStatusCancelled HoldStatus = "CANCELLED"
)

var validHoldStatuses = []HoldStatus{
	HoldStatusActive,
	HoldStatusExpired,
	HoldStatusConsumed,
	HoldStatusCancelled,
}

// String implements fmt.Stringer.
func (h HoldStatus) String() string {
	return string(h)
}

// IsValid reports whether the value is a known HoldStatus.
func (h HoldStatus) IsValid() bool {
	return slices.Contains(validHoldStatuses, h)
}

// ParseHoldStatus converts raw input into a HoldStatus.
func ParseHoldStatus(value string) (HoldStatus, error) {
	return parse(value, validHoldStatuses, "hold status")
}

// IsTerminal reports whether no further transition is possible.
func (h HoldStatus) IsTerminal() bool {
	return h != HoldStatusActive
}
