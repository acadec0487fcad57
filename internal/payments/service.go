package payments

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/angelmondragon/taxcredit-backend/internal/access"
	"github.com/angelmondragon/taxcredit-backend/internal/audit"
	"github.com/angelmondragon/taxcredit-backend/internal/inventory"
	"github.com/angelmondragon/taxcredit-backend/internal/orders"
	"github.com/angelmondragon/taxcredit-backend/pkg/db"
	"github.com/angelmondragon/taxcredit-backend/pkg/db/models"
	"github.com/angelmondragon/taxcredit-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/taxcredit-backend/pkg/errors"
	"github.com/angelmondragon/taxcredit-backend/pkg/logger"
	"github.com/angelmondragon/taxcredit-backend/pkg/metrics"
	"github.com/angelmondragon/taxcredit-backend/pkg/outbox"
	"github.com/angelmondragon/taxcredit-backend/pkg/outbox/payloads"
)

const (
	entityType        = "purchase_order"
	systemActor       = "system"
	transferTxHashKey = "ux_payment_transfers_tx_hash"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type lotStore interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.CreditLot, error)
	DecrementTx(tx *gorm.DB, lotID uuid.UUID, amount decimal.Decimal) error
	IncrementTx(tx *gorm.DB, lotID uuid.UUID, amount decimal.Decimal) error
}

type outboxEmitter interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// PaymentEvent is a normalized payment signal from any source. Actor is nil
// for processor callbacks and sweeps.
type PaymentEvent struct {
	OrderID   uuid.UUID
	Status    enums.PaymentStatus
	Reference string
	Source    enums.PaymentSource
	Actor     *access.Principal
}

// Outcome reports what ApplyPaymentEvent did. Revived is set when a late
// processor payment re-reserved inventory for a closed order; Unfulfilled when
// the lot could no longer cover it and the payment needs a refund.
type Outcome struct {
	Order       *models.PurchaseOrder
	From        enums.PaymentStatus
	Changed     bool
	Restored    bool
	Revived     bool
	Unfulfilled bool
}

// Transfer is an on-chain USDC payment notification.
type Transfer struct {
	TxHash     string
	FromWallet string
	AmountUSD  decimal.Decimal
	OrderID    *uuid.UUID
	ReceivedAt time.Time
}

// MatchResult reports how a transfer was reconciled.
type MatchResult struct {
	Transfer  *models.PaymentTransfer
	Order     *models.PurchaseOrder
	Duplicate bool
}

type ServiceParams struct {
	DB        txRunner
	Orders    orders.Repository
	Inventory lotStore
	Transfers *TransferRepository
	Outbox    outboxEmitter
	Audit     audit.Recorder
	Metrics   *metrics.BusinessMetrics
	Logger    *logger.Logger
	Now       func() time.Time
}

// Service drives purchase orders through the payment state machine.
type Service struct {
	db        txRunner
	orders    orders.Repository
	inventory lotStore
	transfers *TransferRepository
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
	if params.Orders == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "order repository required")
	}
	if params.Inventory == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "inventory store required")
	}
	if params.Transfers == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "transfer repository required")
	}
	if params.Outbox == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "outbox emitter required")
	}
	if params.Audit == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "audit recorder required")
	}
	now := params.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &Service{
		db:        params.DB,
		orders:    params.Orders,
		inventory: params.Inventory,
		transfers: params.Transfers,
		outbox:    params.Outbox,
		audit:     params.Audit,
		metrics:   params.Metrics,
		logg:      params.Logger,
		now:       now,
	}, nil
}

// ApplyPaymentEvent moves an order to ev.Status. Replays of the current
// status succeed without side effects. Moving to FAILED, CANCELED or REFUNDED
// hands the order amount back to the lot exactly once.
func (s *Service) ApplyPaymentEvent(ctx context.Context, ev PaymentEvent) (*Outcome, error) {
	if !ev.Status.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid payment status")
	}
	if ev.Source == "" {
		ev.Source = enums.PaymentSourceSystem
	}

	var outcome *Outcome
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		var err error
		outcome, err = s.applyTx(ctx, tx, ev)
		return err
	})
	if err != nil {
		return nil, txErr(err, "apply payment event")
	}
	s.afterApply(ctx, ev, outcome)
	return outcome, nil
}

func (s *Service) applyTx(ctx context.Context, tx *gorm.DB, ev PaymentEvent) (*Outcome, error) {
	order, err := s.orders.FindByIDTx(tx, ev.OrderID)
	if err != nil {
		return nil, err
	}
	outcome := &Outcome{Order: order, From: order.PaymentStatus}
	if order.PaymentStatus == ev.Status {
		return outcome, nil
	}
	late := isLateSettlement(order.PaymentStatus, ev)
	if !late && !CanTransition(order.PaymentStatus, ev.Status) {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "payment status transition not allowed").
			WithDetails(map[string]any{
				"from": order.PaymentStatus,
				"to":   ev.Status,
			})
	}

	now := s.now()
	updates := map[string]any{"payment_status": ev.Status}
	if late {
		revived, err := s.reviveTx(tx, order, ev)
		if err != nil || !revived {
			outcome.Unfulfilled = err == nil
			return outcome, err
		}
		updates["inventory_restored_at"] = nil
		order.InventoryRestoredAt = nil
		outcome.Revived = true
	}
	if ref := strings.TrimSpace(ev.Reference); ref != "" {
		updates["payment_ref"] = ref
		order.PaymentRef = &ref
	}
	if ev.Status.IsSettled() {
		updates["paid_at"] = now
		order.PaidAt = &now
		if ev.Source == enums.PaymentSourceUSDC {
			updates["payment_method"] = enums.PaymentMethodUSDC
			order.PaymentMethod = enums.PaymentMethodUSDC
		}
	}
	if ev.Status.ReleasesInventory() && order.InventoryRestoredAt == nil {
		if err := s.inventory.IncrementTx(tx, order.LotID, order.AmountUSD); err != nil {
			if !errors.Is(err, inventory.ErrOverCredit) {
				return nil, err
			}
			// An admin correction already returned the lot to face value.
			if s.logg != nil {
				s.logg.Warn(s.logg.WithField(ctx, "order_id", order.ID.String()), "inventory restore skipped: lot already at face value")
			}
		}
		updates["inventory_restored_at"] = now
		order.InventoryRestoredAt = &now
		outcome.Restored = true
	}
	if err := s.orders.UpdateTx(tx, order.ID, updates); err != nil {
		return nil, err
	}
	order.PaymentStatus = ev.Status
	outcome.Changed = true

	if eventType, ok := paymentEventType(ev.Status); ok {
		err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     eventType,
			AggregateType: enums.AggregatePurchaseOrder,
			AggregateID:   order.ID,
			Actor:         actorRef(ev.Actor),
			OccurredAt:    now,
			Data: payloads.OrderPaymentEvent{
				OrderID:       order.ID,
				CompanyID:     order.CompanyID,
				PaymentStatus: ev.Status,
				Source:        ev.Source,
				Reference:     ev.Reference,
				TotalUSD:      order.TotalUSD,
			},
		})
		if err != nil {
			return nil, err
		}
	}
	return outcome, nil
}

// reviveTx takes the order amount back out of the lot for a late payment.
// When the lot can no longer cover it the order stays closed and the
// reference is stored with an unfulfilled marker, so replays of the same
// payment are not flagged twice.
func (s *Service) reviveTx(tx *gorm.DB, order *models.PurchaseOrder, ev PaymentEvent) (bool, error) {
	ref := strings.TrimSpace(ev.Reference)
	if ref != "" && order.PaymentRef != nil && *order.PaymentRef == unfulfilledRef(ref) {
		return false, pkgerrors.New(pkgerrors.CodeStateConflict, "late payment already recorded").
			WithDetails(map[string]any{"from": order.PaymentStatus, "to": ev.Status})
	}
	if order.InventoryRestoredAt == nil {
		return true, nil
	}
	err := s.inventory.DecrementTx(tx, order.LotID, order.AmountUSD)
	switch {
	case err == nil:
		return true, nil
	case pkgerrors.IsCode(err, pkgerrors.CodeInsufficientInventory), errors.Is(err, inventory.ErrLotInactive):
		if ref != "" {
			marked := unfulfilledRef(ref)
			if err := s.orders.UpdateTx(tx, order.ID, map[string]any{"payment_ref": marked}); err != nil {
				return false, err
			}
			order.PaymentRef = &marked
		}
		return false, nil
	default:
		return false, err
	}
}

func unfulfilledRef(ref string) string {
	return "unfulfilled:" + ref
}

func (s *Service) afterApply(ctx context.Context, ev PaymentEvent, outcome *Outcome) {
	if outcome != nil && outcome.Unfulfilled {
		s.flagUnfulfilled(ctx, ev, outcome)
		return
	}
	if outcome == nil || !outcome.Changed {
		return
	}
	order := outcome.Order
	s.metrics.IncPaymentTransition(string(outcome.From), string(ev.Status), string(ev.Source))

	actorID, actorEmail := actorIdentity(ev.Actor, ev.Source)
	details := map[string]any{
		"from":   outcome.From,
		"to":     ev.Status,
		"source": ev.Source,
	}
	if ev.Reference != "" {
		details["reference"] = ev.Reference
	}
	if outcome.Revived {
		details["late_settlement"] = true
	}
	if action, ok := paymentAuditAction(ev.Status); ok {
		s.audit.Write(ctx, audit.Entry{
			ActorID:    actorID,
			ActorEmail: actorEmail,
			Action:     action,
			EntityType: entityType,
			EntityID:   order.ID.String(),
			CompanyID:  &order.CompanyID,
			AmountUSD:  audit.Amount(order.TotalUSD),
			Details:    details,
		})
	}
	if outcome.Restored {
		s.audit.Write(ctx, audit.Entry{
			ActorID:    actorID,
			ActorEmail: actorEmail,
			Action:     enums.AuditInventoryRestored,
			EntityType: "credit_lot",
			EntityID:   order.LotID.String(),
			CompanyID:  &order.CompanyID,
			AmountUSD:  audit.Amount(order.AmountUSD),
			Details:    map[string]any{"order_id": order.ID.String(), "reason": ev.Status},
		})
	}
	if s.logg != nil {
		logCtx := s.logg.WithFields(ctx, map[string]any{
			"order_id": order.ID.String(),
			"from":     string(outcome.From),
			"to":       string(ev.Status),
			"source":   string(ev.Source),
		})
		s.logg.Info(logCtx, "payment status updated")
	}
}

// flagUnfulfilled records a payment the marketplace took but cannot honor.
// Refunding it is left to an operator.
func (s *Service) flagUnfulfilled(ctx context.Context, ev PaymentEvent, outcome *Outcome) {
	order := outcome.Order
	actorID, actorEmail := actorIdentity(ev.Actor, ev.Source)
	s.audit.Write(ctx, audit.Entry{
		ActorID:    actorID,
		ActorEmail: actorEmail,
		Action:     enums.AuditPaymentUnfulfilled,
		EntityType: entityType,
		EntityID:   order.ID.String(),
		CompanyID:  &order.CompanyID,
		AmountUSD:  audit.Amount(order.TotalUSD),
		Details: map[string]any{
			"status":    order.PaymentStatus,
			"source":    ev.Source,
			"reference": ev.Reference,
			"refund":    "required",
		},
	})
	if s.logg != nil {
		s.logg.Warn(s.logg.WithFields(ctx, map[string]any{
			"order_id":  order.ID.String(),
			"status":    string(order.PaymentStatus),
			"reference": ev.Reference,
		}), "late payment cannot be fulfilled; refund required")
	}
}

// SetBrokerStatus records the broker's review of an order. It never touches
// the payment status.
func (s *Service) SetBrokerStatus(ctx context.Context, actor access.Principal, orderID uuid.UUID, status enums.BrokerStatus, note string) (*models.PurchaseOrder, error) {
	if actor.IsZero() {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "authentication required")
	}
	if !status.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid broker status")
	}
	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return nil, wrapErr(err, "load order")
	}
	if err := s.requireReviewer(ctx, actor, order); err != nil {
		return nil, err
	}

	note = strings.TrimSpace(note)
	previous := order.BrokerStatus
	now := s.now()
	err = s.db.WithTx(ctx, func(tx *gorm.DB) error {
		updates := map[string]any{"broker_status": status, "broker_note": nil}
		if note != "" {
			updates["broker_note"] = note
		}
		if err := s.orders.UpdateTx(tx, order.ID, updates); err != nil {
			return err
		}
		if status != enums.BrokerStatusApproved || previous == enums.BrokerStatusApproved {
			return nil
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderBrokerApproved,
			AggregateType: enums.AggregatePurchaseOrder,
			AggregateID:   order.ID,
			Actor:         actorRef(&actor),
			OccurredAt:    now,
			Data: payloads.OrderBrokerApprovedEvent{
				OrderID:   order.ID,
				CompanyID: order.CompanyID,
				Note:      note,
			},
		})
	})
	if err != nil {
		return nil, txErr(err, "update broker status")
	}
	order.BrokerStatus = status
	if note != "" {
		order.BrokerNote = &note
	} else {
		order.BrokerNote = nil
	}

	s.audit.Write(ctx, audit.Entry{
		ActorID:    actor.UserID,
		ActorEmail: actor.Email,
		Action:     enums.AuditBrokerReviewUpdated,
		EntityType: entityType,
		EntityID:   order.ID.String(),
		CompanyID:  &order.CompanyID,
		Details: map[string]any{
			"from": previous,
			"to":   status,
			"note": note,
		},
	})
	return order, nil
}

func (s *Service) requireReviewer(ctx context.Context, actor access.Principal, order *models.PurchaseOrder) error {
	if actor.IsAdmin() {
		return nil
	}
	if actor.Role != enums.RoleBroker || actor.BrokerID == nil {
		return pkgerrors.New(pkgerrors.CodeForbidden, "only admins or the listing broker may review orders")
	}
	lot, err := s.inventory.FindByID(ctx, order.LotID)
	if err != nil {
		return wrapErr(err, "load credit lot")
	}
	if lot.BrokerID == nil || *lot.BrokerID != *actor.BrokerID {
		return pkgerrors.New(pkgerrors.CodeForbidden, "only admins or the listing broker may review orders")
	}
	return nil
}

// MatchTransfer records a USDC transfer and settles the order it pays for.
// Each tx hash is processed once; replays report Duplicate. A transfer that
// matches no single open order is kept unmatched for manual review.
func (s *Service) MatchTransfer(ctx context.Context, in Transfer) (*MatchResult, error) {
	in.TxHash = strings.ToLower(strings.TrimSpace(in.TxHash))
	if in.TxHash == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "tx hash is required")
	}
	if !in.AmountUSD.IsPositive() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "amount must be greater than zero")
	}
	if in.ReceivedAt.IsZero() {
		in.ReceivedAt = s.now()
	}

	existing, err := s.transfers.FindByTxHash(ctx, in.TxHash)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load transfer")
	}
	if existing != nil {
		return &MatchResult{Transfer: existing, Duplicate: true}, nil
	}

	target, err := s.matchOrder(ctx, in)
	if err != nil {
		return nil, err
	}

	transfer := &models.PaymentTransfer{
		TxHash:     in.TxHash,
		FromWallet: strings.TrimSpace(in.FromWallet),
		AmountUSD:  in.AmountUSD.Round(2),
		ReceivedAt: in.ReceivedAt.UTC(),
	}
	ev := PaymentEvent{Status: enums.PaymentStatusPaid, Reference: in.TxHash, Source: enums.PaymentSourceUSDC}

	var outcome *Outcome
	err = s.db.WithTx(ctx, func(tx *gorm.DB) error {
		if target != nil {
			transfer.OrderID = &target.ID
			transfer.Matched = true
		}
		if err := s.transfers.CreateTx(tx, transfer); err != nil {
			return err
		}
		if target == nil {
			return nil
		}
		ev.OrderID = target.ID
		var err error
		outcome, err = s.applyTx(ctx, tx, ev)
		return err
	})
	if err != nil {
		if db.IsUniqueViolation(err, transferTxHashKey) {
			existing, findErr := s.transfers.FindByTxHash(ctx, in.TxHash)
			if findErr == nil && existing != nil {
				return &MatchResult{Transfer: existing, Duplicate: true}, nil
			}
		}
		return nil, txErr(err, "record transfer")
	}

	result := &MatchResult{Transfer: transfer}
	if outcome != nil {
		s.afterApply(ctx, ev, outcome)
		result.Order = outcome.Order
	} else if s.logg != nil {
		s.logg.Warn(s.logg.WithField(ctx, "tx_hash", in.TxHash), "usdc transfer left unmatched")
	}
	return result, nil
}

func (s *Service) matchOrder(ctx context.Context, in Transfer) (*models.PurchaseOrder, error) {
	amount := in.AmountUSD.Round(2)
	if in.OrderID != nil {
		order, err := s.orders.FindByID(ctx, *in.OrderID)
		if err != nil {
			if pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
				return nil, nil
			}
			return nil, wrapErr(err, "load order")
		}
		if !isOpen(order.PaymentStatus) || !order.TotalUSD.Equal(amount) {
			return nil, nil
		}
		return order, nil
	}
	candidates, err := s.orders.FindOpenByCompanyAndTotal(ctx, nil, amount)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "find open orders")
	}
	if len(candidates) != 1 {
		return nil, nil
	}
	return &candidates[0], nil
}

// CancelStalePending cancels orders that stayed PENDING_PAYMENT past cutoff
// and returns how many were cancelled.
func (s *Service) CancelStalePending(ctx context.Context, cutoff time.Time, limit int) (int, error) {
	if limit <= 0 {
		limit = 100
	}
	stale, err := s.orders.FindPendingBefore(ctx, cutoff, limit)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "find stale orders")
	}
	cancelled := 0
	var errs error
	for _, order := range stale {
		outcome, err := s.ApplyPaymentEvent(ctx, PaymentEvent{
			OrderID:   order.ID,
			Status:    enums.PaymentStatusCanceled,
			Reference: "payment window elapsed",
			Source:    enums.PaymentSourceSystem,
		})
		if err != nil {
			// A webhook may have moved the order since it was listed.
			if pkgerrors.IsCode(err, pkgerrors.CodeStateConflict) {
				continue
			}
			errs = multierr.Append(errs, fmt.Errorf("cancel order %s: %w", order.ID, err))
			continue
		}
		if outcome.Changed {
			cancelled++
		}
	}
	return cancelled, errs
}

func isOpen(status enums.PaymentStatus) bool {
	return status == enums.PaymentStatusPendingPayment || status == enums.PaymentStatusProcessing
}

func paymentEventType(status enums.PaymentStatus) (enums.OutboxEventType, bool) {
	switch status {
	case enums.PaymentStatusPaid:
		return enums.EventOrderPaid, true
	case enums.PaymentStatusFailed:
		return enums.EventOrderPaymentFailed, true
	case enums.PaymentStatusRefunded:
		return enums.EventOrderRefunded, true
	default:
		return "", false
	}
}

func paymentAuditAction(status enums.PaymentStatus) (enums.AuditAction, bool) {
	switch status {
	case enums.PaymentStatusProcessing:
		return enums.AuditPaymentProcessing, true
	case enums.PaymentStatusPaid, enums.PaymentStatusPaidTest:
		return enums.AuditPaymentConfirmed, true
	case enums.PaymentStatusFailed:
		return enums.AuditPaymentFailed, true
	case enums.PaymentStatusCanceled:
		return enums.AuditPaymentCanceled, true
	case enums.PaymentStatusRefunded:
		return enums.AuditPaymentRefunded, true
	default:
		return "", false
	}
}

func actorRef(p *access.Principal) *outbox.ActorRef {
	if p == nil || p.IsZero() {
		return nil
	}
	return &outbox.ActorRef{UserID: p.UserID, CompanyID: p.CompanyID, Role: string(p.Role)}
}

func actorIdentity(p *access.Principal, source enums.PaymentSource) (uuid.UUID, string) {
	if p == nil || p.IsZero() {
		return uuid.Nil, systemActor + ":" + string(source)
	}
	return p.UserID, p.Email
}

func wrapErr(err error, msg string) error {
	if pkgerrors.As(err) != nil {
		return err
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, msg)
}

func txErr(err error, msg string) error {
	if pkgerrors.As(err) != nil {
		return err
	}
	return pkgerrors.Wrap(pkgerrors.CodeTransactionFailure, err, msg)
}
