package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/taxcredit-backend/pkg/enums"
)

// PurchaseOrder records a checkout against a lot. PricePerDollar is copied from
// the lot at creation and never follows later lot edits.
type PurchaseOrder struct {
	ID                  uuid.UUID           `gorm:"column:id;type:uuid;primaryKey"`
	LotID               uuid.UUID           `gorm:"column:lot_id;type:uuid;not null;index"`
	CompanyID           uuid.UUID           `gorm:"column:company_id;type:uuid;not null;index"`
	HoldID              *uuid.UUID          `gorm:"column:hold_id;type:uuid"`
	AmountUSD           decimal.Decimal     `gorm:"column:amount_usd;type:numeric(18,2);not null"`
	PricePerDollar      decimal.Decimal     `gorm:"column:price_per_dollar;type:numeric(8,6);not null"`
	SubtotalUSD         decimal.Decimal     `gorm:"column:subtotal_usd;type:numeric(18,2);not null"`
	PlatformFeeUSD      decimal.Decimal     `gorm:"column:platform_fee_usd;type:numeric(18,2);not null"`
	BrokerFeeUSD        decimal.Decimal     `gorm:"column:broker_fee_usd;type:numeric(18,2);not null"`
	TotalUSD            decimal.Decimal     `gorm:"column:total_usd;type:numeric(18,2);not null"`
	SavingsUSD          decimal.Decimal     `gorm:"column:savings_usd;type:numeric(18,2);not null"`
	PaymentStatus       enums.PaymentStatus `gorm:"column:payment_status;type:text;not null"`
	PaymentMethod       enums.PaymentMethod `gorm:"column:payment_method;type:text;not null"`
	BrokerStatus        enums.BrokerStatus  `gorm:"column:broker_status;type:text;not null;default:PENDING"`
	BrokerNote          *string             `gorm:"column:broker_note"`
	CheckoutSessionID   *string             `gorm:"column:checkout_session_id;index"`
	PaymentRef          *string             `gorm:"column:payment_ref"`
	PaidAt              *time.Time          `gorm:"column:paid_at"`
	InventoryRestoredAt *time.Time          `gorm:"column:inventory_restored_at"`
	ClosingDocumentURL  *string             `gorm:"column:closing_document_url"`
	CertificateURL      *string             `gorm:"column:certificate_url"`
	CreatedBy           uuid.UUID           `gorm:"column:created_by;type:uuid;not null"`
	CreatedAt           time.Time           `gorm:"column:created_at"`
	UpdatedAt           time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}

func (PurchaseOrder) TableName() string { return "purchase_orders" }

func (o *PurchaseOrder) BeforeCreate(*gorm.DB) error {
	ensureID(&o.ID)
	return nil
}
