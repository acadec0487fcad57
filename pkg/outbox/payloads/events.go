package payloads

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/taxcredit-backend/pkg/enums"
)

// HoldCreatedEvent asks downstream systems to confirm a reservation to the company.
type HoldCreatedEvent struct {
	HoldID    uuid.UUID       `json:"hold_id"`
	LotID     uuid.UUID       `json:"lot_id"`
	CompanyID uuid.UUID       `json:"company_id"`
	AmountUSD decimal.Decimal `json:"amount_usd"`
	ExpiresAt time.Time       `json:"expires_at"`
}

// OrderCreatedEvent is emitted once per checkout.
type OrderCreatedEvent struct {
	OrderID       uuid.UUID           `json:"order_id"`
	LotID         uuid.UUID           `json:"lot_id"`
	CompanyID     uuid.UUID           `json:"company_id"`
	AmountUSD     decimal.Decimal     `json:"amount_usd"`
	TotalUSD      decimal.Decimal     `json:"total_usd"`
	PaymentStatus enums.PaymentStatus `json:"payment_status"`
}

// OrderPaymentEvent carries a payment transition. Paid orders trigger closing
// document generation and the confirmation email.
type OrderPaymentEvent struct {
	OrderID       uuid.UUID           `json:"order_id"`
	CompanyID     uuid.UUID           `json:"company_id"`
	PaymentStatus enums.PaymentStatus `json:"payment_status"`
	Source        enums.PaymentSource `json:"source"`
	Reference     string              `json:"reference,omitempty"`
	TotalUSD      decimal.Decimal     `json:"total_usd"`
}

// OrderBrokerApprovedEvent requests the closing certificate.
type OrderBrokerApprovedEvent struct {
	OrderID   uuid.UUID `json:"order_id"`
	CompanyID uuid.UUID `json:"company_id"`
	Note      string    `json:"note,omitempty"`
}
