package enums

import "slices"

// BrokerStatus is the post-payment compliance review outcome, independent of payment status.
type BrokerStatus string

const (
	BrokerStatusPending   BrokerStatus = "PENDING"
	BrokerStatusApproved  BrokerStatus = "APPROVED"
	BrokerStatusNeedsInfo BrokerStatus = "NEEDS_INFO"
	BrokerStatusRejected  BrokerStatus = "REJECTED"
)

var validBrokerStatuses = []BrokerStatus{
	BrokerStatusPending,
	BrokerStatusApproved,
	BrokerStatusNeedsInfo,
	BrokerStatusRejected,
}

// String implements fmt.Stringer.
func (b BrokerStatus) String() string {
	return string(b)
}

// IsValid reports whether the value is a known BrokerStatus.
func (b BrokerStatus) IsValid() bool {
	return slices.Contains(validBrokerStatuses, b)
}

// ParseBrokerStatus converts raw input into a BrokerStatus.
func ParseBrokerStatus(value string) (BrokerStatus, error) {
	return parse(value, validBrokerStatuses, "broker status")
}
