package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Company is the buyer entity every company-scoped resource hangs from.
type Company struct {
	ID        uuid.UUID  `gorm:"column:id;type:uuid;primaryKey"`
	Name      string     `gorm:"column:name;not null"`
	EIN       *string    `gorm:"column:ein"`
	State     *string    `gorm:"column:state"`
	OwnerID   *uuid.UUID `gorm:"column:owner_id;type:uuid"`
	CreatedAt time.Time  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time  `gorm:"column:updated_at;autoUpdateTime"`
}

func (Company) TableName() string { return "companies" }

func (c *Company) BeforeCreate(*gorm.DB) error {
	ensureID(&c.ID)
	return nil
}

// AccountantClient links an accountant user to a company they may act for.
type AccountantClient struct {
	ID           uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	AccountantID uuid.UUID `gorm:"column:accountant_id;type:uuid;not null;uniqueIndex:ux_accountant_clients_pair"`
	CompanyID    uuid.UUID `gorm:"column:company_id;type:uuid;not null;uniqueIndex:ux_accountant_clients_pair"`
	LinkedBy     uuid.UUID `gorm:"column:linked_by;type:uuid;not null"`
	CreatedAt    time.Time `gorm:"column:created_at;autoCreateTime"`
}

func (AccountantClient) TableName() string { return "accountant_clients" }

func (a *AccountantClient) BeforeCreate(*gorm.DB) error {
	ensureID(&a.ID)
	return nil
}

// Broker lists inventory on the marketplace.
type Broker struct {
	ID        uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	Name      string    `gorm:"column:name;not null"`
	Verified  bool      `gorm:"column:verified;not null;default:false"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (Broker) TableName() string { return "brokers" }

func (b *Broker) BeforeCreate(*gorm.DB) error {
	ensureID(&b.ID)
	return nil
}
