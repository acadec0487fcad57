package stripe

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v84"

	"github.com/angelmondragon/taxcredit-backend/pkg/config"
)

// Metadata keys stamped on the session and copied onto its payment intent.
// The webhook reconciler reads order_id back from either object.
const (
	MetadataOrderID   = "order_id"
	MetadataCompanyID = "company_id"
)

const defaultLineItem = "Tax credit purchase"

const defaultCheckoutTTL = time.Hour

// CheckoutRequest charges one order total as a single line item.
type CheckoutRequest struct {
	OrderID     uuid.UUID
	CompanyID   uuid.UUID
	Description string
	TotalUSD    decimal.Decimal
	SuccessURL  string
	CancelURL   string
}

type CheckoutSession struct {
	ID  string
	URL string
}

func (c *Client) CreateCheckoutSession(ctx context.Context, req CheckoutRequest) (*CheckoutSession, error) {
	if c == nil || c.newSession == nil {
		return nil, errNotConfigured
	}
	params, err := c.checkoutParams(req)
	if err != nil {
		return nil, err
	}
	params.Context = ctx

	sess, err := c.newSession(params)
	if err != nil {
		return nil, err
	}
	return &CheckoutSession{ID: sess.ID, URL: sess.URL}, nil
}

func (c *Client) checkoutParams(req CheckoutRequest) (*stripe.CheckoutSessionParams, error) {
	cents := ToCents(req.TotalUSD)
	if cents <= 0 {
		return nil, errors.New("checkout total must be positive")
	}
	if req.OrderID == uuid.Nil {
		return nil, errors.New("checkout needs an order id")
	}
	label := strings.TrimSpace(req.Description)
	if label == "" {
		label = defaultLineItem
	}
	meta := map[string]string{
		MetadataOrderID:   req.OrderID.String(),
		MetadataCompanyID: req.CompanyID.String(),
	}

	params := &stripe.CheckoutSessionParams{
		Mode:              stripe.String(string(stripe.CheckoutSessionModePayment)),
		ClientReferenceID: stripe.String(req.OrderID.String()),
		SuccessURL:        stripe.String(req.SuccessURL),
		CancelURL:         stripe.String(req.CancelURL),
		LineItems: []*stripe.CheckoutSessionLineItemParams{{
			Quantity: stripe.Int64(1),
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency:    stripe.String(c.currency),
				UnitAmount:  stripe.Int64(cents),
				ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{Name: stripe.String(label)},
			},
		}},
		PaymentIntentData: &stripe.CheckoutSessionPaymentIntentDataParams{Metadata: meta},
		ExpiresAt:         stripe.Int64(c.clock().Add(c.sessionTTL()).Unix()),
	}
	for k, v := range meta {
		params.AddMetadata(k, v)
	}
	return params, nil
}

// sessionTTL falls back to an hour and is clamped to the window Stripe accepts.
func (c *Client) sessionTTL() time.Duration {
	switch {
	case c.checkoutTTL <= 0:
		return defaultCheckoutTTL
	case c.checkoutTTL < config.MinCheckoutTTL:
		return config.MinCheckoutTTL
	case c.checkoutTTL > config.MaxCheckoutTTL:
		return config.MaxCheckoutTTL
	default:
		return c.checkoutTTL
	}
}

func (c *Client) clock() time.Time {
	if c.now != nil {
		return c.now()
	}
	return time.Now()
}

// ToCents rounds half away from zero to whole cents.
func ToCents(v decimal.Decimal) int64 {
	return v.Shift(2).Round(0).IntPart()
}

func FromCents(cents int64) decimal.Decimal {
	return decimal.New(cents, -2)
}
