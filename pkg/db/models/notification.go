package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/taxcredit-backend/pkg/enums"
)

// Notification stores in-app notifications scoped to a company. SourceEventID
// keeps redelivered events from producing duplicates.
type Notification struct {
	ID            uuid.UUID              `gorm:"column:id;type:uuid;primaryKey"`
	CompanyID     uuid.UUID              `gorm:"column:company_id;type:uuid;not null;index"`
	Type          enums.NotificationType `gorm:"column:type;type:text;not null"`
	Title         string                 `gorm:"column:title;type:text;not null"`
	Message       string                 `gorm:"column:message;type:text;not null"`
	Link          *string                `gorm:"column:link;type:text"`
	SourceEventID *uuid.UUID             `gorm:"column:source_event_id;type:uuid;uniqueIndex:ux_notifications_source_event"`
	ReadAt        *time.Time             `gorm:"column:read_at"`
	CreatedAt     time.Time              `gorm:"column:created_at;autoCreateTime"`
}

func (n *Notification) BeforeCreate(*gorm.DB) error {
	ensureID(&n.ID)
	return nil
}
