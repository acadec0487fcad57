package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/taxcredit-backend/pkg/enums"
)

// Hold reserves part of a lot's availability for a company until ExpiresAt.
type Hold struct {
	ID              uuid.UUID        `gorm:"column:id;type:uuid;primaryKey"`
	LotID           uuid.UUID        `gorm:"column:lot_id;type:uuid;not null;index"`
	CompanyID       uuid.UUID        `gorm:"column:company_id;type:uuid;not null;index"`
	AmountUSD       decimal.Decimal  `gorm:"column:amount_usd;type:numeric(18,2);not null"`
	Status          enums.HoldStatus `gorm:"column:status;type:text;not null;default:ACTIVE"`
	ExpiresAt       time.Time        `gorm:"column:expires_at;not null;index"`
	ReclaimedAt     *time.Time       `gorm:"column:reclaimed_at"`
	ConsumedOrderID *uuid.UUID       `gorm:"column:consumed_order_id;type:uuid"`
	CreatedBy       uuid.UUID        `gorm:"column:created_by;type:uuid;not null"`
	CreatedAt       time.Time        `gorm:"column:created_at"`
	UpdatedAt       time.Time        `gorm:"column:updated_at;autoUpdateTime"`
}

func (Hold) TableName() string { return "holds" }

func (h *Hold) BeforeCreate(*gorm.DB) error {
	ensureID(&h.ID)
	return nil
}

// EffectiveStatus reports EXPIRED for ACTIVE rows whose window has lapsed,
// even before the reclaim sweep has processed them.
func (h Hold) EffectiveStatus(now time.Time) enums.HoldStatus {
	if h.Status == enums.HoldStatusActive && now.After(h.ExpiresAt) {
		return enums.HoldStatusExpired
	}
	return h.Status
}
