package enums

import "slices"

// PaymentStatus tracks the payment lifecycle of a purchase order.
type PaymentStatus string

const (
	PaymentStatusPendingPayment PaymentStatus = "PENDING_PAYMENT"
	PaymentStatusProcessing     PaymentStatus = "PROCESSING"
	PaymentStatusPaid           PaymentStatus = "PAID"
	PaymentStatusPaidTest       PaymentStatus = "PAID_TEST"
	PaymentStatusCanceled       PaymentStatus = "CANCELED"
	PaymentStatusFailed         PaymentStatus = "FAILED"
	PaymentStatusRefunded       PaymentStatus = "REFUNDED"
)

var validPaymentStatuses = []PaymentStatus{
	PaymentStatusPendingPayment,
	PaymentStatusProcessing,
	PaymentStatusPaid,
	PaymentStatusPaidTest,
	PaymentStatusCanceled,
	PaymentStatusFailed,
	PaymentStatusRefunded,
}

// String implements fmt.Stringer.
func (p PaymentStatus) String() string {
	return string(p)
}

// IsValid reports whether the value is a known PaymentStatus.
func (p PaymentStatus) IsValid() bool {
	return slices.Contains(validPaymentStatuses, p)
}

// ParsePaymentStatus converts raw input into a PaymentStatus.
func ParsePaymentStatus(value string) (PaymentStatus, error) {
	return parse(value, validPaymentStatuses, "payment status")
}

// IsSettled reports whether funds were received (real or demo).
func (p PaymentStatus) IsSettled() bool {
	return p == PaymentStatusPaid || p == PaymentStatusPaidTest
}

// ReleasesInventory reports whether reaching this status hands the reserved
// amount back to the lot.
func (p PaymentStatus) ReleasesInventory() bool {
	switch p {
	case PaymentStatusFailed, PaymentStatusCanceled, PaymentStatusRefunded:
		return true
	default:
		return false
	}
}
