package orders

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/taxcredit-backend/internal/access"
	"github.com/angelmondragon/taxcredit-backend/internal/fees"
	"github.com/angelmondragon/taxcredit-backend/pkg/db/models"
	"github.com/angelmondragon/taxcredit-backend/pkg/outbox"
	"github.com/angelmondragon/taxcredit-backend/pkg/pagination"
	pkgstripe "github.com/angelmondragon/taxcredit-backend/pkg/stripe"
)

// Repository defines persistence operations for purchase_orders.
type Repository interface {
	CreateTx(tx *gorm.DB, order *models.PurchaseOrder) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.PurchaseOrder, error)
	FindByIDTx(tx *gorm.DB, id uuid.UUID) (*models.PurchaseOrder, error)
	FindByCheckoutSession(ctx context.Context, sessionID string) (*models.PurchaseOrder, error)
	FindByPaymentRef(ctx context.Context, ref string) (*models.PurchaseOrder, error)
	ListByCompany(ctx context.Context, companyID uuid.UUID, params pagination.Params, filters ListFilters) (*OrderList, error)
	FindPendingBefore(ctx context.Context, cutoff time.Time, limit int) ([]models.PurchaseOrder, error)
	FindOpenByCompanyAndTotal(ctx context.Context, companyID *uuid.UUID, total decimal.Decimal) ([]models.PurchaseOrder, error)
	UpdateTx(tx *gorm.DB, id uuid.UUID, updates map[string]any) error
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type lotStore interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.CreditLot, error)
	DecrementTx(tx *gorm.DB, lotID uuid.UUID, amount decimal.Decimal) error
}

type holdConsumer interface {
	ConsumeTx(tx *gorm.DB, holdID, lotID, companyID uuid.UUID, amount decimal.Decimal, orderID uuid.UUID) error
}

type companyChecker interface {
	CompanyExists(ctx context.Context, id uuid.UUID) (bool, error)
}

type accessGate interface {
	Require(ctx context.Context, p access.Principal, companyID uuid.UUID, need access.Capability) error
}

type feeQuoter interface {
	Quote(face, price decimal.Decimal) (fees.Breakdown, error)
}

// CheckoutCreator opens a hosted payment page for an order.
type CheckoutCreator interface {
	CreateCheckoutSession(ctx context.Context, req pkgstripe.CheckoutRequest) (*pkgstripe.CheckoutSession, error)
}

type outboxEmitter interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}
