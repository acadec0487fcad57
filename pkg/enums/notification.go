package enums

import "slices"

// NotificationType maps to the notification_type enum in Postgres.
type NotificationType string

const (
	NotificationTypeHoldConfirmed    NotificationType = "hold_confirmed"
	NotificationTypeOrderCreated     NotificationType = "order_created"
	NotificationTypePaymentConfirmed NotificationType = "payment_confirmed"
	NotificationTypePaymentFailed    NotificationType = "payment_failed"
	NotificationTypeBrokerApproved   NotificationType = "broker_approved"
	NotificationTypeOrderRefunded    NotificationType = "order_refunded"
)

var validNotificationTypes = []NotificationType{
	NotificationTypeHoldConfirmed,
	NotificationTypeOrderCreated,
	NotificationTypePaymentConfirmed,
	NotificationTypePaymentFailed,
	NotificationTypeBrokerApproved,
	NotificationTypeOrderRefunded,
}

// IsValid checks whether the given type matches the canonical enum.
func (n NotificationType) IsValid() bool {
	return slices.Contains(validNotificationTypes, n)
}

// ParseNotificationType converts raw strings into NotificationType.
func ParseNotificationType(value string) (NotificationType, error) {
	return parse(value, validNotificationTypes, "notification type")
}
