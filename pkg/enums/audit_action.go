package enums

import "slices"

// AuditAction is the verb recorded on every audit_logs row.
type AuditAction string

const (
	AuditLotCreated          AuditAction = "LOT_CREATED"
	AuditLotUpdated          AuditAction = "LOT_UPDATED"
	AuditLotDeleted          AuditAction = "LOT_DELETED"
	AuditLotDeactivated      AuditAction = "LOT_DEACTIVATED"
	AuditInventoryAdjusted   AuditAction = "INVENTORY_ADJUSTED"
	AuditHoldCreated         AuditAction = "HOLD_CREATED"
	AuditHoldCancelled       AuditAction = "HOLD_CANCELLED"
	AuditHoldExpired         AuditAction = "HOLD_EXPIRED"
	AuditOrderCreated        AuditAction = "ORDER_CREATED"
	AuditPaymentProcessing   AuditAction = "PAYMENT_PROCESSING"
	AuditPaymentConfirmed    AuditAction = "PAYMENT_CONFIRMED"
	AuditPaymentFailed       AuditAction = "PAYMENT_FAILED"
	AuditPaymentCanceled     AuditAction = "PAYMENT_CANCELED"
	AuditPaymentRefunded     AuditAction = "PAYMENT_REFUNDED"
	AuditPaymentUnfulfilled  AuditAction = "PAYMENT_UNFULFILLED"
	AuditInventoryRestored   AuditAction = "INVENTORY_RESTORED"
	AuditBrokerReviewUpdated AuditAction = "BROKER_REVIEW_UPDATED"
	AuditAccountantLinked    AuditAction = "ACCOUNTANT_LINKED"
	AuditAccountantUnlinked  AuditAction = "ACCOUNTANT_UNLINKED"
	AuditUserLogin           AuditAction = "USER_LOGIN"
)

var validAuditActions = []AuditAction{
	AuditLotCreated,
	AuditLotUpdated,
	AuditLotDeleted,
	AuditLotDeactivated,
	AuditInventoryAdjusted,
	AuditHoldCreated,
	AuditHoldCancelled,
	AuditHoldExpired,
	AuditOrderCreated,
	AuditPaymentProcessing,
	AuditPaymentConfirmed,
	AuditPaymentFailed,
	AuditPaymentCanceled,
	AuditPaymentRefunded,
	AuditPaymentUnfulfilled,
	AuditInventoryRestored,
	AuditBrokerReviewUpdated,
	AuditAccountantLinked,
	AuditAccountantUnlinked,
	AuditUserLogin,
}

// IsValid reports whether the value is a known AuditAction.
func (a AuditAction) IsValid() bool {
	return slices.Contains(validAuditActions, a)
}

// ParseAuditAction converts raw input into a AuditAction.
func ParseAuditAction(value string) (AuditAction, error) {
	return parse(value, validAuditActions, "audit action")
}
