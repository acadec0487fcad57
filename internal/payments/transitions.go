package payments

import "github.com/angelmondragon/taxcredit-backend/pkg/enums"

var allowedTransitions = map[enums.PaymentStatus][]enums.PaymentStatus{
	enums.PaymentStatusPendingPayment: {
		enums.PaymentStatusProcessing,
		enums.PaymentStatusPaid,
		enums.PaymentStatusFailed,
		enums.PaymentStatusCanceled,
	},
	enums.PaymentStatusProcessing: {
		enums.PaymentStatusPaid,
		enums.PaymentStatusFailed,
		enums.PaymentStatusCanceled,
	},
	enums.PaymentStatusPaid:     {enums.PaymentStatusRefunded},
	enums.PaymentStatusPaidTest: {enums.PaymentStatusRefunded},
}

// CanTransition reports whether an order may move from one payment status to
// another. Same-state moves are not transitions; callers treat them as no-ops.
func CanTransition(from, to enums.PaymentStatus) bool {
	for _, candidate := range allowedTransitions[from] {
		if candidate == to {
			return true
		}
	}
	return false
}

// isLateSettlement reports a processor confirming funds for an order that the
// system already closed, typically a checkout completed just after the
// payment window sweep cancelled it. Such orders are revived when the lot can
// still cover them.
func isLateSettlement(from enums.PaymentStatus, ev PaymentEvent) bool {
	if ev.Status != enums.PaymentStatusPaid {
		return false
	}
	if ev.Source != enums.PaymentSourceStripe && ev.Source != enums.PaymentSourceUSDC {
		return false
	}
	return from == enums.PaymentStatusCanceled || from == enums.PaymentStatusFailed
}
