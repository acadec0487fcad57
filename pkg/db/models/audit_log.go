package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/taxcredit-backend/pkg/enums"
)

// AuditLog is an append-only record of a state-changing action.
type AuditLog struct {
	ID         int64             `gorm:"column:id;primaryKey;autoIncrement"`
	ActorID    *uuid.UUID        `gorm:"column:actor_id;type:uuid"`
	ActorEmail string            `gorm:"column:actor_email;not null;default:''"`
	Action     enums.AuditAction `gorm:"column:action;type:text;not null;index"`
	EntityType string            `gorm:"column:entity_type;not null"`
	EntityID   string            `gorm:"column:entity_id;not null"`
	CompanyID  *uuid.UUID        `gorm:"column:company_id;type:uuid;index"`
	AmountUSD  *decimal.Decimal  `gorm:"column:amount_usd;type:numeric(18,2)"`
	Details    json.RawMessage   `gorm:"column:details;type:jsonb"`
	IP         *string           `gorm:"column:ip"`
	RequestID  *string           `gorm:"column:request_id"`
	CreatedAt  time.Time         `gorm:"column:created_at;index"`
}

func (AuditLog) TableName() string { return "audit_logs" }
