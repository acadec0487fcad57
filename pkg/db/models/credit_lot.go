package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/taxcredit-backend/pkg/enums"
)

// CreditLot is a sellable tranche of tax credit face value.
type CreditLot struct {
	ID               uuid.UUID        `gorm:"column:id;type:uuid;primaryKey"`
	CreditType       enums.CreditType `gorm:"column:credit_type;type:text;not null"`
	TaxYear          int              `gorm:"column:tax_year;not null"`
	FaceValueUSD     decimal.Decimal  `gorm:"column:face_value_usd;type:numeric(18,2);not null"`
	AvailableUSD     decimal.Decimal  `gorm:"column:available_usd;type:numeric(18,2);not null"`
	MinBlockUSD      decimal.Decimal  `gorm:"column:min_block_usd;type:numeric(18,2);not null"`
	PricePerDollar   decimal.Decimal  `gorm:"column:price_per_dollar;type:numeric(8,6);not null"`
	Status           enums.LotStatus  `gorm:"column:status;type:text;not null;default:ACTIVE"`
	Jurisdiction     *string          `gorm:"column:jurisdiction"`
	StateRestriction *string          `gorm:"column:state_restriction"`
	CloseBy          *time.Time       `gorm:"column:close_by"`
	BrokerID         *uuid.UUID       `gorm:"column:broker_id;type:uuid"`
	CreatedBy        uuid.UUID        `gorm:"column:created_by;type:uuid;not null"`
	CreatedAt        time.Time        `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt        time.Time        `gorm:"column:updated_at;autoUpdateTime"`
}

func (CreditLot) TableName() string { return "credit_lots" }

func (l *CreditLot) BeforeCreate(*gorm.DB) error {
	ensureID(&l.ID)
	return nil
}
