package orders

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/taxcredit-backend/internal/access"
	"github.com/angelmondragon/taxcredit-backend/internal/audit"
	"github.com/angelmondragon/taxcredit-backend/internal/inventory"
	"github.com/angelmondragon/taxcredit-backend/pkg/config"
	"github.com/angelmondragon/taxcredit-backend/pkg/db/models"
	"github.com/angelmondragon/taxcredit-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/taxcredit-backend/pkg/errors"
	"github.com/angelmondragon/taxcredit-backend/pkg/logger"
	"github.com/angelmondragon/taxcredit-backend/pkg/metrics"
	"github.com/angelmondragon/taxcredit-backend/pkg/outbox"
	"github.com/angelmondragon/taxcredit-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/taxcredit-backend/pkg/pagination"
	pkgstripe "github.com/angelmondragon/taxcredit-backend/pkg/stripe"
)

const entityType = "purchase_order"

var ErrCompanyNotFound = pkgerrors.New(pkgerrors.CodeNotFound, "company not found")

type ServiceParams struct {
	DB        txRunner
	Repo      Repository
	Inventory lotStore
	Holds     holdConsumer
	Companies companyChecker
	Gate      accessGate
	Fees      feeQuoter
	Checkout  CheckoutCreator
	Payments  config.PaymentsConfig
	PublicURL string
	Outbox    outboxEmitter
	Audit     audit.Recorder
	Metrics   *metrics.BusinessMetrics
	Logger    *logger.Logger
	Now       func() time.Time
}

// Service settles checkouts into purchase orders.
type Service struct {
	db        txRunner
	repo      Repository
	inventory lotStore
	holds     holdConsumer
	companies companyChecker
	gate      accessGate
	fees      feeQuoter
	checkout  CheckoutCreator
	demo      bool
	publicURL string
	outbox    outboxEmitter
	audit     audit.Recorder
	metrics   *metrics.BusinessMetrics
	logg      *logger.Logger
	now       func() time.Time
}

func NewService(params ServiceParams) (*Service, error) {
	if params.DB == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "transaction runner required")
	}
	if params.Repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "order repository required")
	}
	if params.Inventory == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "inventory store required")
	}
	if params.Holds == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "hold consumer required")
	}
	if params.Companies == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "company lookup required")
	}
	if params.Gate == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "access gate required")
	}
	if params.Fees == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "fee calculator required")
	}
	if params.Outbox == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "outbox emitter required")
	}
	if params.Audit == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "audit recorder required")
	}
	demo := params.Payments.IsDemo()
	if !demo && params.Checkout == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "checkout processor required outside demo mode")
	}
	now := params.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &Service{
		db:        params.DB,
		repo:      params.Repo,
		inventory: params.Inventory,
		holds:     params.Holds,
		companies: params.Companies,
		gate:      params.Gate,
		fees:      params.Fees,
		checkout:  params.Checkout,
		demo:      demo,
		publicURL: strings.TrimRight(params.PublicURL, "/"),
		outbox:    params.Outbox,
		audit:     params.Audit,
		metrics:   params.Metrics,
		logg:      params.Logger,
		now:       now,
	}, nil
}

// CreateOrder prices the purchase at the lot's current price and commits the
// order, the inventory movement and the order_created event together.
func (s *Service) CreateOrder(ctx context.Context, actor access.Principal, in CreateOrderInput) (*CheckoutResult, error) {
	if err := inventory.ValidateAmount(in.AmountUSD); err != nil {
		return nil, err
	}
	if err := s.gate.Require(ctx, actor, in.CompanyID, access.CapReadWrite); err != nil {
		return nil, err
	}

	exists, err := s.companies.CompanyExists(ctx, in.CompanyID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load company")
	}
	if !exists {
		return nil, ErrCompanyNotFound
	}

	lot, err := s.inventory.FindByID(ctx, in.LotID)
	if err != nil {
		return nil, wrapErr(err, "load credit lot")
	}
	if lot.Status != enums.LotStatusActive {
		return nil, inventory.ErrLotInactive
	}
	if in.AmountUSD.LessThan(lot.MinBlockUSD) {
		s.metrics.IncInventoryRejected("order", string(pkgerrors.CodeBelowMinimumBlock))
		return nil, pkgerrors.New(pkgerrors.CodeBelowMinimumBlock, "amount is below the lot's minimum block").
			WithDetails(map[string]any{
				"min_block_usd": lot.MinBlockUSD.StringFixed(2),
				"requested_usd": in.AmountUSD.StringFixed(2),
			})
	}
	if in.HoldID == nil && in.AmountUSD.GreaterThan(lot.AvailableUSD) {
		s.metrics.IncInventoryRejected("order", string(pkgerrors.CodeInsufficientInventory))
		return nil, inventory.InsufficientInventory(lot.AvailableUSD, in.AmountUSD)
	}

	quote, err := s.fees.Quote(in.AmountUSD, lot.PricePerDollar)
	if err != nil {
		return nil, err
	}

	now := s.now()
	order := &models.PurchaseOrder{
		ID:             uuid.New(),
		LotID:          lot.ID,
		CompanyID:      in.CompanyID,
		HoldID:         in.HoldID,
		AmountUSD:      quote.FaceAmount,
		PricePerDollar: lot.PricePerDollar,
		SubtotalUSD:    quote.Subtotal,
		PlatformFeeUSD: quote.PlatformFee,
		BrokerFeeUSD:   quote.BrokerFee,
		TotalUSD:       quote.TotalCost,
		SavingsUSD:     quote.Savings,
		BrokerStatus:   enums.BrokerStatusPending,
		CreatedBy:      actor.UserID,
		CreatedAt:      now,
	}

	result := &CheckoutResult{Order: order}
	if s.demo {
		order.PaymentStatus = enums.PaymentStatusPaidTest
		order.PaymentMethod = enums.PaymentMethodDemo
		order.PaidAt = &now
	} else {
		order.PaymentStatus = enums.PaymentStatusPendingPayment
		order.PaymentMethod = enums.PaymentMethodStripe
		// The session is opened before commit so a processor outage never
		// leaves reserved inventory behind. An orphaned session expires on
		// its own and its webhook finds no order.
		sess, err := s.checkout.CreateCheckoutSession(ctx, pkgstripe.CheckoutRequest{
			OrderID:     order.ID,
			CompanyID:   order.CompanyID,
			Description: fmt.Sprintf("%s tax credit %d, $%s face value", lot.CreditType, lot.TaxYear, order.AmountUSD.StringFixed(2)),
			TotalUSD:    order.TotalUSD,
			SuccessURL:  s.publicURL + "/orders/" + order.ID.String() + "?checkout=success",
			CancelURL:   s.publicURL + "/orders/" + order.ID.String() + "?checkout=cancelled",
		})
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeExternalService, err, "create checkout session")
		}
		order.CheckoutSessionID = &sess.ID
		result.PaymentURL = sess.URL
	}

	err = s.db.WithTx(ctx, func(tx *gorm.DB) error {
		if in.HoldID != nil {
			if err := s.holds.ConsumeTx(tx, *in.HoldID, lot.ID, in.CompanyID, in.AmountUSD, order.ID); err != nil {
				return err
			}
		} else if err := s.inventory.DecrementTx(tx, lot.ID, in.AmountUSD); err != nil {
			return err
		}
		if err := s.repo.CreateTx(tx, order); err != nil {
			return fmt.Errorf("insert order: %w", err)
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderCreated,
			AggregateType: enums.AggregatePurchaseOrder,
			AggregateID:   order.ID,
			Actor:         &outbox.ActorRef{UserID: actor.UserID, CompanyID: actor.CompanyID, Role: string(actor.Role)},
			OccurredAt:    now,
			Data: payloads.OrderCreatedEvent{
				OrderID:       order.ID,
				LotID:         order.LotID,
				CompanyID:     order.CompanyID,
				AmountUSD:     order.AmountUSD,
				TotalUSD:      order.TotalUSD,
				PaymentStatus: order.PaymentStatus,
			},
		})
	})
	if err != nil {
		if pkgerrors.IsCode(err, pkgerrors.CodeInsufficientInventory) {
			s.metrics.IncInventoryRejected("order", string(pkgerrors.CodeInsufficientInventory))
		}
		if pkgerrors.As(err) != nil {
			return nil, err
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeTransactionFailure, err, "create order")
	}

	s.metrics.IncOrdersCreated(string(order.PaymentStatus))
	details := map[string]any{
		"lot_id":           order.LotID.String(),
		"price_per_dollar": order.PricePerDollar.String(),
		"total_usd":        order.TotalUSD.StringFixed(2),
		"payment_status":   order.PaymentStatus,
	}
	if order.HoldID != nil {
		details["hold_id"] = order.HoldID.String()
	}
	s.audit.Write(ctx, audit.Entry{
		ActorID:    actor.UserID,
		ActorEmail: actor.Email,
		Action:     enums.AuditOrderCreated,
		EntityType: entityType,
		EntityID:   order.ID.String(),
		CompanyID:  &order.CompanyID,
		AmountUSD:  audit.Amount(order.AmountUSD),
		Details:    details,
	})
	if s.logg != nil {
		logCtx := s.logg.WithFields(ctx, map[string]any{
			"order_id":       order.ID.String(),
			"payment_status": string(order.PaymentStatus),
		})
		s.logg.Info(logCtx, "order created")
	}
	return result, nil
}

func (s *Service) GetOrder(ctx context.Context, actor access.Principal, id uuid.UUID) (*models.PurchaseOrder, error) {
	order, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, wrapErr(err, "load order")
	}
	if err := s.gate.Require(ctx, actor, order.CompanyID, access.CapRead); err != nil {
		return nil, err
	}
	return order, nil
}

func (s *Service) ListOrders(ctx context.Context, actor access.Principal, companyID uuid.UUID, params pagination.Params, filters ListFilters) (*OrderList, error) {
	if err := s.gate.Require(ctx, actor, companyID, access.CapRead); err != nil {
		return nil, err
	}
	list, err := s.repo.ListByCompany(ctx, companyID, params, filters)
	if err != nil {
		return nil, wrapErr(err, "list orders")
	}
	return list, nil
}

func wrapErr(err error, msg string) error {
	if pkgerrors.As(err) != nil {
		return err
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, msg)
}
