package holds

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/angelmondragon/taxcredit-backend/internal/access"
	"github.com/angelmondragon/taxcredit-backend/internal/audit"
	"github.com/angelmondragon/taxcredit-backend/internal/inventory"
	"github.com/angelmondragon/taxcredit-backend/pkg/db/models"
	"github.com/angelmondragon/taxcredit-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/taxcredit-backend/pkg/errors"
	"github.com/angelmondragon/taxcredit-backend/pkg/logger"
	"github.com/angelmondragon/taxcredit-backend/pkg/metrics"
	"github.com/angelmondragon/taxcredit-backend/pkg/outbox"
	"github.com/angelmondragon/taxcredit-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/taxcredit-backend/pkg/pagination"
)

const (
	DefaultTTL          = 72 * time.Hour
	defaultReclaimLimit = 200
	entityType          = "hold"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type lotStore interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.CreditLot, error)
	DecrementTx(tx *gorm.DB, lotID uuid.UUID, amount decimal.Decimal) error
	IncrementTx(tx *gorm.DB, lotID uuid.UUID, amount decimal.Decimal) error
}

type accessGate interface {
	Require(ctx context.Context, p access.Principal, companyID uuid.UUID, need access.Capability) error
}

type outboxEmitter interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

type CreateHoldInput struct {
	LotID     uuid.UUID
	CompanyID uuid.UUID
	AmountUSD decimal.Decimal
}

type ServiceParams struct {
	DB        txRunner
	Repo      *Repository
	Inventory lotStore
	Gate      accessGate
	Outbox    outboxEmitter
	Audit     audit.Recorder
	Metrics   *metrics.BusinessMetrics
	Logger    *logger.Logger
	TTL       time.Duration
	Now       func() time.Time
}

// Service places, cancels and reclaims holds.
type Service struct {
	db        txRunner
	repo      *Repository
	inventory lotStore
	gate      accessGate
	outbox    outboxEmitter
	audit     audit.Recorder
	metrics   *metrics.BusinessMetrics
	logg      *logger.Logger
	ttl       time.Duration
	now       func() time.Time
}

func NewService(params ServiceParams) (*Service, error) {
	if params.DB == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "transaction runner required")
	}
	if params.Repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "hold repository required")
	}
	if params.Inventory == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "inventory store required")
	}
	if params.Gate == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "access gate required")
	}
	if params.Outbox == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "outbox emitter required")
	}
	if params.Audit == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "audit recorder required")
	}
	ttl := params.TTL
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	now := params.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &Service{
		db:        params.DB,
		repo:      params.Repo,
		inventory: params.Inventory,
		gate:      params.Gate,
		outbox:    params.Outbox,
		audit:     params.Audit,
		metrics:   params.Metrics,
		logg:      params.Logger,
		ttl:       ttl,
		now:       now,
	}, nil
}

// CreateHold reserves amount on the lot for the company. The decrement, the
// hold row and the confirmation event commit together.
func (s *Service) CreateHold(ctx context.Context, actor access.Principal, in CreateHoldInput) (*models.Hold, error) {
	if err := inventory.ValidateAmount(in.AmountUSD); err != nil {
		return nil, err
	}
	if err := s.gate.Require(ctx, actor, in.CompanyID, access.CapReadWrite); err != nil {
		return nil, err
	}

	lot, err := s.inventory.FindByID(ctx, in.LotID)
	if err != nil {
		return nil, wrapErr(err, "load credit lot")
	}
	if lot.Status != enums.LotStatusActive {
		return nil, inventory.ErrLotInactive
	}
	if in.AmountUSD.LessThan(lot.MinBlockUSD) {
		s.metrics.IncInventoryRejected("hold", string(pkgerrors.CodeBelowMinimumBlock))
		return nil, belowMinimum(lot.MinBlockUSD, in.AmountUSD)
	}
	if in.AmountUSD.GreaterThan(lot.AvailableUSD) {
		s.metrics.IncInventoryRejected("hold", string(pkgerrors.CodeInsufficientInventory))
		return nil, inventory.InsufficientInventory(lot.AvailableUSD, in.AmountUSD)
	}

	now := s.now()
	hold := &models.Hold{
		LotID:     in.LotID,
		CompanyID: in.CompanyID,
		AmountUSD: in.AmountUSD,
		Status:    enums.HoldStatusActive,
		ExpiresAt: now.Add(s.ttl),
		CreatedBy: actor.UserID,
		CreatedAt: now,
	}

	err = s.db.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.inventory.DecrementTx(tx, in.LotID, in.AmountUSD); err != nil {
			return err
		}
		if err := s.repo.CreateTx(tx, hold); err != nil {
			return fmt.Errorf("insert hold: %w", err)
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventHoldCreated,
			AggregateType: enums.AggregateHold,
			AggregateID:   hold.ID,
			Actor:         actorRef(actor),
			OccurredAt:    now,
			Data: payloads.HoldCreatedEvent{
				HoldID:    hold.ID,
				LotID:     hold.LotID,
				CompanyID: hold.CompanyID,
				AmountUSD: hold.AmountUSD,
				ExpiresAt: hold.ExpiresAt,
			},
		})
	})
	if err != nil {
		if pkgerrors.IsCode(err, pkgerrors.CodeInsufficientInventory) {
			s.metrics.IncInventoryRejected("hold", string(pkgerrors.CodeInsufficientInventory))
		}
		return nil, txErr(err, "create hold")
	}

	s.metrics.IncHoldsCreated()
	s.audit.Write(ctx, audit.Entry{
		ActorID:    actor.UserID,
		ActorEmail: actor.Email,
		Action:     enums.AuditHoldCreated,
		EntityType: entityType,
		EntityID:   hold.ID.String(),
		CompanyID:  &hold.CompanyID,
		AmountUSD:  audit.Amount(hold.AmountUSD),
		Details: map[string]any{
			"lot_id":     hold.LotID.String(),
			"expires_at": hold.ExpiresAt,
		},
	})
	return hold, nil
}

// GetHold returns the hold with lazily evaluated expiry.
func (s *Service) GetHold(ctx context.Context, actor access.Principal, id uuid.UUID) (*models.Hold, error) {
	hold, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, wrapErr(err, "load hold")
	}
	if err := s.gate.Require(ctx, actor, hold.CompanyID, access.CapRead); err != nil {
		return nil, err
	}
	hold.Status = hold.EffectiveStatus(s.now())
	return hold, nil
}

func (s *Service) ListHolds(ctx context.Context, actor access.Principal, companyID uuid.UUID, params pagination.Params) ([]models.Hold, string, error) {
	if err := s.gate.Require(ctx, actor, companyID, access.CapRead); err != nil {
		return nil, "", err
	}
	rows, next, err := s.repo.ListByCompany(ctx, companyID, params)
	if err != nil {
		return nil, "", wrapErr(err, "list holds")
	}
	now := s.now()
	for i := range rows {
		rows[i].Status = rows[i].EffectiveStatus(now)
	}
	return rows, next, nil
}

// CancelHold releases an ACTIVE, unexpired hold and re-credits the lot.
func (s *Service) CancelHold(ctx context.Context, actor access.Principal, id uuid.UUID) (*models.Hold, error) {
	hold, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, wrapErr(err, "load hold")
	}
	if err := s.gate.Require(ctx, actor, hold.CompanyID, access.CapReadWrite); err != nil {
		return nil, err
	}
	if status := hold.EffectiveStatus(s.now()); status != enums.HoldStatusActive {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "hold is no longer active").
			WithDetails(map[string]any{"status": status})
	}

	err = s.db.WithTx(ctx, func(tx *gorm.DB) error {
		moved, err := s.repo.TransitionTx(tx, hold.ID, enums.HoldStatusCancelled, nil)
		if err != nil {
			return err
		}
		if !moved {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "hold is no longer active")
		}
		return s.restoreTx(ctx, tx, hold)
	})
	if err != nil {
		return nil, txErr(err, "cancel hold")
	}
	hold.Status = enums.HoldStatusCancelled

	s.audit.Write(ctx, audit.Entry{
		ActorID:    actor.UserID,
		ActorEmail: actor.Email,
		Action:     enums.AuditHoldCancelled,
		EntityType: entityType,
		EntityID:   hold.ID.String(),
		CompanyID:  &hold.CompanyID,
		AmountUSD:  audit.Amount(hold.AmountUSD),
	})
	return hold, nil
}

// ConsumeTx marks an ACTIVE hold as settled by orderID. The hold must belong
// to the same lot and company and cover exactly amount.
func (s *Service) ConsumeTx(tx *gorm.DB, holdID, lotID, companyID uuid.UUID, amount decimal.Decimal, orderID uuid.UUID) error {
	hold, err := s.repo.FindByIDTx(tx, holdID)
	if err != nil {
		return err
	}
	if hold.LotID != lotID || hold.CompanyID != companyID {
		return pkgerrors.New(pkgerrors.CodeValidation, "hold does not match the order lot or company")
	}
	if !hold.AmountUSD.Equal(amount) {
		return pkgerrors.New(pkgerrors.CodeValidation, "order amount must equal the held amount").
			WithDetails(map[string]any{"held_usd": hold.AmountUSD.StringFixed(2)})
	}
	if status := hold.EffectiveStatus(s.now()); status != enums.HoldStatusActive {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "hold is no longer active").
			WithDetails(map[string]any{"status": status})
	}
	moved, err := s.repo.TransitionTx(tx, holdID, enums.HoldStatusConsumed, map[string]any{"consumed_order_id": orderID})
	if err != nil {
		return err
	}
	if !moved {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "hold is no longer active")
	}
	return nil
}

// ReclaimExpired marks lapsed holds EXPIRED and re-credits their lots, one
// transaction per hold. It returns how many holds were reclaimed.
func (s *Service) ReclaimExpired(ctx context.Context, limit int) (int, error) {
	if limit <= 0 {
		limit = defaultReclaimLimit
	}
	now := s.now()
	lapsed, err := s.repo.FindLapsed(ctx, now, limit)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "find lapsed holds")
	}

	reclaimed := 0
	var errs error
	for _, hold := range lapsed {
		hold := hold
		moved := false
		err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
			ok, err := s.repo.TransitionTx(tx, hold.ID, enums.HoldStatusExpired, map[string]any{"reclaimed_at": now})
			if err != nil || !ok {
				return err
			}
			moved = true
			return s.restoreTx(ctx, tx, &hold)
		})
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("reclaim hold %s: %w", hold.ID, err))
			continue
		}
		if !moved {
			continue
		}
		reclaimed++
		s.audit.Write(ctx, audit.Entry{
			ActorEmail: "system",
			Action:     enums.AuditHoldExpired,
			EntityType: entityType,
			EntityID:   hold.ID.String(),
			CompanyID:  &hold.CompanyID,
			AmountUSD:  audit.Amount(hold.AmountUSD),
			Details:    map[string]any{"lot_id": hold.LotID.String(), "expired_at": hold.ExpiresAt},
		})
	}
	s.metrics.AddHoldsReclaimed(reclaimed)
	if s.logg != nil && reclaimed > 0 {
		s.logg.Info(s.logg.WithField(ctx, "reclaimed", reclaimed), "expired holds reclaimed")
	}
	return reclaimed, errs
}

// restoreTx re-credits a released hold. When an admin correction has already
// put the lot back at face value the amount is not added again, so the hold
// can still leave ACTIVE.
func (s *Service) restoreTx(ctx context.Context, tx *gorm.DB, hold *models.Hold) error {
	err := s.inventory.IncrementTx(tx, hold.LotID, hold.AmountUSD)
	if !errors.Is(err, inventory.ErrOverCredit) {
		return err
	}
	if s.logg != nil {
		s.logg.Warn(s.logg.WithFields(ctx, map[string]any{
			"hold_id": hold.ID.String(),
			"lot_id":  hold.LotID.String(),
		}), "hold restore skipped: lot already at face value")
	}
	return nil
}

func belowMinimum(minBlock, amount decimal.Decimal) error {
	return pkgerrors.New(pkgerrors.CodeBelowMinimumBlock, "amount is below the lot's minimum block").
		WithDetails(map[string]any{
			"min_block_usd": minBlock.StringFixed(2),
			"requested_usd": amount.StringFixed(2),
		})
}

func actorRef(p access.Principal) *outbox.ActorRef {
	return &outbox.ActorRef{UserID: p.UserID, CompanyID: p.CompanyID, Role: string(p.Role)}
}

func wrapErr(err error, msg string) error {
	if pkgerrors.As(err) != nil {
		return err
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, msg)
}

// txErr keeps typed domain errors raised inside the transaction and reports
// anything else as a transaction failure.
func txErr(err error, msg string) error {
	if pkgerrors.As(err) != nil {
		return err
	}
	return pkgerrors.Wrap(pkgerrors.CodeTransactionFailure, err, msg)
}
