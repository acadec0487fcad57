package orders

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/taxcredit-backend/pkg/db/models"
	"github.com/angelmondragon/taxcredit-backend/pkg/enums"
)

// CreateOrderInput is the checkout request. HoldID settles against an existing
// reservation instead of decrementing the lot again.
type CreateOrderInput struct {
	LotID     uuid.UUID
	CompanyID uuid.UUID
	AmountUSD decimal.Decimal
	HoldID    *uuid.UUID
}

// CheckoutResult is returned by CreateOrder. PaymentURL is set only when a
// hosted payment page must be visited to settle the order.
type CheckoutResult struct {
	Order      *models.PurchaseOrder `json:"order"`
	PaymentURL string                `json:"paymentUrl,omitempty"`
}

// ListFilters narrow a company's order history.
type ListFilters struct {
	PaymentStatus *enums.PaymentStatus
	BrokerStatus  *enums.BrokerStatus
	LotID         *uuid.UUID
	DateFrom      *time.Time
	DateTo        *time.Time
}

// OrderList wraps a page of orders plus the next page cursor.
type OrderList struct {
	Orders     []models.PurchaseOrder `json:"orders"`
	NextCursor string                 `json:"next_cursor,omitempty"`
}
