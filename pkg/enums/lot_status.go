package enums

import "slices"

// LotStatus maps to the lot_status enum in Postgres.
type LotStatus string

const (
	LotStatusActive   LotStatus = "ACTIVE"
	LotStatusInactive LotStatus = "INACTIVE"
)

var validLotStatuses = []LotStatus{
	LotStatusActive,
	LotStatusInactive,
}

// String implements fmt.Stringer.
func (l LotStatus) String() string {
	return string(l)
}

// IsValid checks whether the given status matches the canonical enum.
func (l LotStatus) IsValid() bool {
	return slices.Contains(validLotStatuses, l)
}

// ParseLotStatus converts raw input into a LotStatus.
func ParseLotStatus(value string) (LotStatus, error) {
	return parse(value, validLotStatuses, "lot status")
}
