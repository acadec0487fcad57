package notifications

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	pubsub "cloud.google.com/go/pubsub/v2"
	"github.com/angelmondragon/taxcredit-backend/pkg/db/models"
	"github.com/angelmondragon/taxcredit-backend/pkg/enums"
	"github.com/angelmondragon/taxcredit-backend/pkg/logger"
	"github.com/angelmondragon/taxcredit-backend/pkg/outbox"
	"github.com/angelmondragon/taxcredit-backend/pkg/outbox/idempotency"
	"github.com/angelmondragon/taxcredit-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/taxcredit-backend/pkg/outbox/registry"
	"github.com/google/uuid"
)

// ConsumerName scopes the inbox consumer's idempotency claims.
const ConsumerName = "company-inbox"

type notificationWriter interface {
	Create(ctx context.Context, notification *models.Notification) (bool, error)
}

// Consumer turns hold and order domain events into company inbox rows.
type Consumer struct {
	repo         notificationWriter
	subscription *pubsub.Subscriber
	guard        *idempotency.Guard
	decoders     *registry.Decoders
	logg         *logger.Logger
}

// NewConsumer builds the inbox consumer. subscription may be nil when the
// caller only drives Process directly.
func NewConsumer(repo notificationWriter, subscription *pubsub.Subscriber, guard *idempotency.Guard, logg *logger.Logger) (*Consumer, error) {
	if repo == nil {
		return nil, fmt.Errorf("notifications repository required")
	}
	if guard == nil {
		return nil, fmt.Errorf("idempotency guard required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &Consumer{
		repo:         repo,
		subscription: subscription,
		guard:        guard,
		decoders:     registry.CurrentDecoders(),
		logg:         logg,
	}, nil
}

// Run starts the consumer loop until the context is canceled.
func (c *Consumer) Run(ctx context.Context) error {
	if c.subscription == nil {
		return fmt.Errorf("notification subscription required")
	}
	return c.subscription.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		result := c.Process(ctx, msg)
		if result.Nack {
			msg.Nack()
			return
		}
		msg.Ack()
	})
}

// ProcessResult tells the receive loop how to settle a message.
type ProcessResult struct {
	Ack     bool
	Nack    bool
	Created bool
}

// Process handles a single message. Undecodable messages are acked so they
// do not loop forever. Storage failures release the claim and nack.
func (c *Consumer) Process(ctx context.Context, msg *pubsub.Message) ProcessResult {
	eventType := enums.OutboxEventType(msg.Attributes["event_type"])
	logCtx := c.logg.WithFields(ctx, map[string]any{
		"message_id": msg.ID,
		"event_type": eventType,
	})

	if !eventType.IsValid() {
		c.logg.Info(logCtx, "skipping unsupported event")
		return ProcessResult{Ack: true}
	}

	var envelope outbox.PayloadEnvelope
	if err := json.Unmarshal(msg.Data, &envelope); err != nil {
		c.logg.Error(logCtx, "failed to decode envelope", err)
		return ProcessResult{Ack: true}
	}
	eventID, err := uuid.Parse(envelope.EventID)
	if err != nil {
		c.logg.Error(logCtx, "invalid event id", err)
		return ProcessResult{Ack: true}
	}
	decoded, err := c.decoders.Decode(eventType, envelope.Version, envelope.Data)
	if err != nil {
		c.logg.Error(logCtx, "failed to decode payload", err)
		return ProcessResult{Ack: true}
	}

	notification, ok := render(eventType, decoded)
	if !ok {
		c.logg.Warn(logCtx, "event payload missing company")
		return ProcessResult{Ack: true}
	}
	notification.SourceEventID = &eventID

	var created bool
	err = c.guard.Once(ctx, eventID.String(), func(ctx context.Context) error {
		var err error
		created, err = c.repo.Create(ctx, notification)
		return err
	})
	switch {
	case errors.Is(err, idempotency.ErrDuplicate):
		c.logg.Info(logCtx, "event already processed")
		return ProcessResult{Ack: true}
	case err != nil:
		c.logg.Error(logCtx, "notification insert failed", err)
		return ProcessResult{Nack: true}
	}
	logCtx = c.logg.WithField(logCtx, "company_id", notification.CompanyID.String())
	if created {
		c.logg.Info(logCtx, "company notified")
	}
	return ProcessResult{Ack: true, Created: created}
}

func render(eventType enums.OutboxEventType, decoded interface{}) (*models.Notification, bool) {
	var n models.Notification
	switch p := decoded.(type) {
	case *payloads.HoldCreatedEvent:
		n = models.Notification{
			CompanyID: p.CompanyID,
			Type:      enums.NotificationTypeHoldConfirmed,
			Title:     "Credits on hold",
			Message:   fmt.Sprintf("$%s of credits are reserved until %s.", p.AmountUSD.StringFixed(2), p.ExpiresAt.UTC().Format("Jan 2, 2006 15:04 MST")),
			Link:      stringPtr("/holds/" + p.HoldID.String()),
		}
	case *payloads.OrderCreatedEvent:
		n = models.Notification{
			CompanyID: p.CompanyID,
			Type:      enums.NotificationTypeOrderCreated,
			Title:     "Order placed",
			Message:   fmt.Sprintf("Order for $%s of credits placed. Total due $%s.", p.AmountUSD.StringFixed(2), p.TotalUSD.StringFixed(2)),
			Link:      stringPtr("/orders/" + p.OrderID.String()),
		}
	case *payloads.OrderPaymentEvent:
		n = models.Notification{
			CompanyID: p.CompanyID,
			Link:      stringPtr("/orders/" + p.OrderID.String()),
		}
		switch eventType {
		case enums.EventOrderPaid:
			n.Type = enums.NotificationTypePaymentConfirmed
			n.Title = "Payment confirmed"
			n.Message = fmt.Sprintf("Payment of $%s received.", p.TotalUSD.StringFixed(2))
		case enums.EventOrderRefunded:
			n.Type = enums.NotificationTypeOrderRefunded
			n.Title = "Order refunded"
			n.Message = fmt.Sprintf("$%s was refunded and the credits were released.", p.TotalUSD.StringFixed(2))
		default:
			n.Type = enums.NotificationTypePaymentFailed
			n.Title = "Payment did not complete"
			n.Message = fmt.Sprintf("Payment ended as %s. The reserved credits were released.", p.PaymentStatus)
		}
	case *payloads.OrderBrokerApprovedEvent:
		message := "Your broker approved the order."
		if p.Note != "" {
			message = fmt.Sprintf("Your broker approved the order. Note: %s", p.Note)
		}
		n = models.Notification{
			CompanyID: p.CompanyID,
			Type:      enums.NotificationTypeBrokerApproved,
			Title:     "Broker approval",
			Message:   message,
			Link:      stringPtr("/orders/" + p.OrderID.String()),
		}
	default:
		return nil, false
	}
	if n.CompanyID == uuid.Nil {
		return nil, false
	}
	return &n, true
}

func stringPtr(value string) *string {
	return &value
}
