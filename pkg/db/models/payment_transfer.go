package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// PaymentTransfer is an observed on-chain USDC transfer. TxHash is unique so a
// replayed notification never settles twice.
type PaymentTransfer struct {
	ID         uuid.UUID       `gorm:"column:id;type:uuid;primaryKey"`
	TxHash     string          `gorm:"column:tx_hash;not null;uniqueIndex:ux_payment_transfers_tx_hash"`
	FromWallet string          `gorm:"column:from_wallet;not null"`
	AmountUSD  decimal.Decimal `gorm:"column:amount_usd;type:numeric(18,2);not null"`
	OrderID    *uuid.UUID      `gorm:"column:order_id;type:uuid"`
	Matched    bool            `gorm:"column:matched;not null;default:false"`
	ReceivedAt time.Time       `gorm:"column:received_at;not null"`
	CreatedAt  time.Time       `gorm:"column:created_at;autoCreateTime"`
}

func (PaymentTransfer) TableName() string { return "payment_transfers" }

func (p *PaymentTransfer) BeforeCreate(*gorm.DB) error {
	ensureID(&p.ID)
	return nil
}
