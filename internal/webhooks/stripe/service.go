package stripewebhook

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v84"

	"github.com/angelmondragon/taxcredit-backend/internal/payments"
	"github.com/angelmondragon/taxcredit-backend/pkg/db/models"
	"github.com/angelmondragon/taxcredit-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/taxcredit-backend/pkg/errors"
	"github.com/angelmondragon/taxcredit-backend/pkg/logger"
	pkgstripe "github.com/angelmondragon/taxcredit-backend/pkg/stripe"
)

type paymentApplier interface {
	ApplyPaymentEvent(ctx context.Context, ev payments.PaymentEvent) (*payments.Outcome, error)
}

type orderLookup interface {
	FindByCheckoutSession(ctx context.Context, sessionID string) (*models.PurchaseOrder, error)
	FindByPaymentRef(ctx context.Context, ref string) (*models.PurchaseOrder, error)
}

type ServiceParams struct {
	Payments paymentApplier
	Orders   orderLookup
	Logger   *logger.Logger
}

// Service translates Stripe events into payment status changes.
type Service struct {
	payments paymentApplier
	orders   orderLookup
	logg     *logger.Logger
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Payments == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "payment service required")
	}
	if params.Orders == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "order lookup required")
	}
	return &Service{
		payments: params.Payments,
		orders:   params.Orders,
		logg:     params.Logger,
	}, nil
}

// signal is the normalized outcome of one Stripe event.
type signal struct {
	orderID   uuid.UUID
	status    enums.PaymentStatus
	reference string
}

// HandleEvent applies the event to its order. Events that do not concern an
// order, or arrive out of order, are acknowledged without changes.
func (s *Service) HandleEvent(ctx context.Context, event *stripe.Event) error {
	if event == nil || event.Data == nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "stripe event data required")
	}

	sig, ok, err := s.decode(ctx, event)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}

	_, err = s.payments.ApplyPaymentEvent(ctx, payments.PaymentEvent{
		OrderID:   sig.orderID,
		Status:    sig.status,
		Reference: sig.reference,
		Source:    enums.PaymentSourceStripe,
	})
	switch {
	case err == nil:
		return nil
	case pkgerrors.IsCode(err, pkgerrors.CodeNotFound), pkgerrors.IsCode(err, pkgerrors.CodeStateConflict):
		s.skip(ctx, event, err.Error())
		return nil
	default:
		return err
	}
}

func (s *Service) decode(ctx context.Context, event *stripe.Event) (signal, bool, error) {
	switch event.Type {
	case stripe.EventTypeCheckoutSessionCompleted,
		stripe.EventTypeCheckoutSessionAsyncPaymentSucceeded,
		stripe.EventTypeCheckoutSessionAsyncPaymentFailed,
		stripe.EventTypeCheckoutSessionExpired:
		var sess stripe.CheckoutSession
		if err := json.Unmarshal(event.Data.Raw, &sess); err != nil {
			return signal{}, false, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode checkout session")
		}
		orderID, ok := s.orderFromSession(ctx, &sess)
		if !ok {
			s.skip(ctx, event, "checkout session carries no order")
			return signal{}, false, nil
		}
		ref := sess.ID
		if sess.PaymentIntent != nil && sess.PaymentIntent.ID != "" {
			ref = sess.PaymentIntent.ID
		}
		return signal{orderID: orderID, status: sessionStatus(event.Type, &sess), reference: ref}, true, nil

	case stripe.EventTypePaymentIntentSucceeded,
		stripe.EventTypePaymentIntentProcessing,
		stripe.EventTypePaymentIntentPaymentFailed:
		var intent stripe.PaymentIntent
		if err := json.Unmarshal(event.Data.Raw, &intent); err != nil {
			return signal{}, false, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode payment intent")
		}
		orderID, ok := orderFromMetadata(intent.Metadata)
		if !ok {
			s.skip(ctx, event, "payment intent carries no order")
			return signal{}, false, nil
		}
		status := enums.PaymentStatusPaid
		switch event.Type {
		case stripe.EventTypePaymentIntentProcessing:
			status = enums.PaymentStatusProcessing
		case stripe.EventTypePaymentIntentPaymentFailed:
			status = enums.PaymentStatusFailed
		}
		return signal{orderID: orderID, status: status, reference: intent.ID}, true, nil

	case stripe.EventTypeChargeRefunded:
		var charge stripe.Charge
		if err := json.Unmarshal(event.Data.Raw, &charge); err != nil {
			return signal{}, false, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode charge")
		}
		if !charge.Refunded {
			s.skip(ctx, event, "partial refund")
			return signal{}, false, nil
		}
		orderID, ok := orderFromMetadata(charge.Metadata)
		if !ok && charge.PaymentIntent != nil && charge.PaymentIntent.ID != "" {
			if order, err := s.orders.FindByPaymentRef(ctx, charge.PaymentIntent.ID); err == nil {
				orderID, ok = order.ID, true
			}
		}
		if !ok {
			s.skip(ctx, event, "refunded charge carries no order")
			return signal{}, false, nil
		}
		return signal{orderID: orderID, status: enums.PaymentStatusRefunded, reference: charge.ID}, true, nil

	default:
		return signal{}, false, nil
	}
}

func sessionStatus(eventType stripe.EventType, sess *stripe.CheckoutSession) enums.PaymentStatus {
	switch eventType {
	case stripe.EventTypeCheckoutSessionExpired:
		return enums.PaymentStatusCanceled
	case stripe.EventTypeCheckoutSessionAsyncPaymentFailed:
		return enums.PaymentStatusFailed
	case stripe.EventTypeCheckoutSessionAsyncPaymentSucceeded:
		return enums.PaymentStatusPaid
	}
	// Delayed methods (ACH) complete the session before funds settle.
	if sess.PaymentStatus == stripe.CheckoutSessionPaymentStatusUnpaid {
		return enums.PaymentStatusProcessing
	}
	return enums.PaymentStatusPaid
}

func (s *Service) orderFromSession(ctx context.Context, sess *stripe.CheckoutSession) (uuid.UUID, bool) {
	if id, ok := orderFromMetadata(sess.Metadata); ok {
		return id, true
	}
	if id, err := uuid.Parse(strings.TrimSpace(sess.ClientReferenceID)); err == nil {
		return id, true
	}
	if sess.ID == "" {
		return uuid.Nil, false
	}
	order, err := s.orders.FindByCheckoutSession(ctx, sess.ID)
	if err != nil {
		return uuid.Nil, false
	}
	return order.ID, true
}

func orderFromMetadata(metadata map[string]string) (uuid.UUID, bool) {
	raw := strings.TrimSpace(metadata[pkgstripe.MetadataOrderID])
	if raw == "" {
		return uuid.Nil, false
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, false
	}
	return id, true
}

func (s *Service) skip(ctx context.Context, event *stripe.Event, reason string) {
	if s.logg == nil {
		return
	}
	logCtx := s.logg.WithFields(ctx, map[string]any{
		"stripe_event_id":   event.ID,
		"stripe_event_type": string(event.Type),
		"reason":            reason,
	})
	s.logg.Warn(logCtx, "stripe event skipped")
}
