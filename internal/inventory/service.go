package inventory

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/taxcredit-backend/internal/access"
	"github.com/angelmondragon/taxcredit-backend/internal/audit"
	"github.com/angelmondragon/taxcredit-backend/pkg/db/models"
	"github.com/angelmondragon/taxcredit-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/taxcredit-backend/pkg/errors"
	"github.com/angelmondragon/taxcredit-backend/pkg/pagination"
)

const (
	minTaxYear = 2000
	maxTaxYear = 2100
)

type CreateLotInput struct {
	CreditType       enums.CreditType
	TaxYear          int
	FaceValueUSD     decimal.Decimal
	MinBlockUSD      decimal.Decimal
	PricePerDollar   decimal.Decimal
	Jurisdiction     *string
	StateRestriction *string
	CloseBy          *time.Time
	BrokerID         *uuid.UUID
}

// UpdateLotInput carries optional changes. Face value is immutable.
type UpdateLotInput struct {
	PricePerDollar   *decimal.Decimal
	MinBlockUSD      *decimal.Decimal
	Status           *enums.LotStatus
	Jurisdiction     *string
	StateRestriction *string
	CloseBy          *time.Time
	AvailableUSD     *decimal.Decimal
}

// DeleteResult reports whether the lot was removed or only deactivated
// because orders or holds still reference it.
type DeleteResult struct {
	Deleted     bool `json:"deleted"`
	Deactivated bool `json:"deactivated"`
}

type ServiceParams struct {
	Repo  *Repository
	Audit audit.Recorder
}

// Service implements lot administration.
type Service struct {
	repo  *Repository
	audit audit.Recorder
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "inventory repository required")
	}
	if params.Audit == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "audit recorder required")
	}
	return &Service{repo: params.Repo, audit: params.Audit}, nil
}

func (s *Service) Create(ctx context.Context, actor access.Principal, in CreateLotInput) (*models.CreditLot, error) {
	switch actor.Role {
	case enums.RoleAdmin:
	case enums.RoleBroker:
		if actor.BrokerID == nil {
			return nil, pkgerrors.New(pkgerrors.CodeForbidden, "broker account is not linked to a broker")
		}
		in.BrokerID = actor.BrokerID
	default:
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "only admins and brokers may list inventory")
	}
	if err := validateCreate(in); err != nil {
		return nil, err
	}

	lot := &models.CreditLot{
		CreditType:       in.CreditType,
		TaxYear:          in.TaxYear,
		FaceValueUSD:     in.FaceValueUSD,
		AvailableUSD:     in.FaceValueUSD,
		MinBlockUSD:      in.MinBlockUSD,
		PricePerDollar:   in.PricePerDollar,
		Status:           enums.LotStatusActive,
		Jurisdiction:     trimOptional(in.Jurisdiction),
		StateRestriction: trimOptional(in.StateRestriction),
		CloseBy:          in.CloseBy,
		BrokerID:         in.BrokerID,
		CreatedBy:        actor.UserID,
	}
	if err := s.repo.Create(ctx, lot); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create credit lot")
	}

	s.audit.Write(ctx, audit.Entry{
		ActorID:    actor.UserID,
		ActorEmail: actor.Email,
		Action:     enums.AuditLotCreated,
		EntityType: "credit_lot",
		EntityID:   lot.ID.String(),
		AmountUSD:  audit.Amount(lot.FaceValueUSD),
		Details: map[string]any{
			"credit_type":      lot.CreditType,
			"tax_year":         lot.TaxYear,
			"price_per_dollar": lot.PricePerDollar.String(),
		},
	})
	return lot, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*models.CreditLot, error) {
	lot, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, wrapRepoErr(err, "load credit lot")
	}
	return lot, nil
}

// GetActive hides inactive lots from buyers.
func (s *Service) GetActive(ctx context.Context, id uuid.UUID) (*models.CreditLot, error) {
	lot, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if lot.Status != enums.LotStatusActive {
		return nil, ErrLotNotFound
	}
	return lot, nil
}

func (s *Service) List(ctx context.Context, f ListFilter) ([]models.CreditLot, string, error) {
	lots, next, err := s.repo.List(ctx, f)
	if err != nil {
		return nil, "", wrapRepoErr(err, "list credit lots")
	}
	return lots, next, nil
}

// ListActive is the buyer-facing browse.
func (s *Service) ListActive(ctx context.Context, creditType *enums.CreditType, taxYear *int, params pagination.Params) ([]models.CreditLot, string, error) {
	status := enums.LotStatusActive
	return s.List(ctx, ListFilter{CreditType: creditType, TaxYear: taxYear, Status: &status, Params: params})
}

func (s *Service) Update(ctx context.Context, actor access.Principal, id uuid.UUID, in UpdateLotInput) (*models.CreditLot, error) {
	lot, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, wrapRepoErr(err, "load credit lot")
	}
	if err := authorizeLotEdit(actor, lot); err != nil {
		return nil, err
	}
	if in.AvailableUSD != nil && !actor.IsAdmin() {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "only admins may correct availability")
	}

	updates := map[string]any{}
	changed := map[string]any{}
	if in.PricePerDollar != nil {
		if err := validatePrice(*in.PricePerDollar); err != nil {
			return nil, err
		}
		updates["price_per_dollar"] = *in.PricePerDollar
		changed["price_per_dollar"] = in.PricePerDollar.String()
	}
	if in.MinBlockUSD != nil {
		if !in.MinBlockUSD.IsPositive() || in.MinBlockUSD.GreaterThan(lot.FaceValueUSD) {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "minimum block must be within (0, face value]")
		}
		updates["min_block_usd"] = *in.MinBlockUSD
		changed["min_block_usd"] = in.MinBlockUSD.String()
	}
	if in.Status != nil {
		if !in.Status.IsValid() {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid lot status")
		}
		updates["status"] = *in.Status
		changed["status"] = *in.Status
	}
	if in.Jurisdiction != nil {
		updates["jurisdiction"] = trimOptional(in.Jurisdiction)
		changed["jurisdiction"] = strings.TrimSpace(*in.Jurisdiction)
	}
	if in.StateRestriction != nil {
		updates["state_restriction"] = trimOptional(in.StateRestriction)
		changed["state_restriction"] = strings.TrimSpace(*in.StateRestriction)
	}
	if in.CloseBy != nil {
		updates["close_by"] = in.CloseBy.UTC()
		changed["close_by"] = in.CloseBy.UTC()
	}
	var adjustment *decimal.Decimal
	if in.AvailableUSD != nil {
		if in.AvailableUSD.IsNegative() || in.AvailableUSD.GreaterThan(lot.FaceValueUSD) {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "available must be within [0, face value]")
		}
		updates["available_usd"] = *in.AvailableUSD
		delta := in.AvailableUSD.Sub(lot.AvailableUSD)
		adjustment = &delta
	}
	if len(updates) == 0 {
		return lot, nil
	}

	if err := s.repo.UpdateFields(ctx, id, updates); err != nil {
		return nil, wrapRepoErr(err, "update credit lot")
	}
	updated, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, wrapRepoErr(err, "reload credit lot")
	}

	if len(changed) > 0 {
		s.audit.Write(ctx, audit.Entry{
			ActorID:    actor.UserID,
			ActorEmail: actor.Email,
			Action:     enums.AuditLotUpdated,
			EntityType: "credit_lot",
			EntityID:   id.String(),
			Details:    changed,
		})
	}
	if adjustment != nil {
		s.audit.Write(ctx, audit.Entry{
			ActorID:    actor.UserID,
			ActorEmail: actor.Email,
			Action:     enums.AuditInventoryAdjusted,
			EntityType: "credit_lot",
			EntityID:   id.String(),
			AmountUSD:  audit.Amount(*adjustment),
			Details: map[string]any{
				"previous_available_usd": lot.AvailableUSD.String(),
				"available_usd":          updated.AvailableUSD.String(),
			},
		})
	}
	return updated, nil
}

// Delete hard-deletes unreferenced lots and soft-deactivates the rest.
func (s *Service) Delete(ctx context.Context, actor access.Principal, id uuid.UUID) (DeleteResult, error) {
	if !actor.IsAdmin() {
		return DeleteResult{}, pkgerrors.New(pkgerrors.CodeForbidden, "only admins may delete lots")
	}
	lot, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return DeleteResult{}, wrapRepoErr(err, "load credit lot")
	}
	referenced, err := s.repo.IsReferenced(ctx, id)
	if err != nil {
		return DeleteResult{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check lot references")
	}

	entry := audit.Entry{
		ActorID:    actor.UserID,
		ActorEmail: actor.Email,
		EntityType: "credit_lot",
		EntityID:   id.String(),
		AmountUSD:  audit.Amount(lot.AvailableUSD),
	}
	if referenced {
		if err := s.repo.UpdateFields(ctx, id, map[string]any{"status": enums.LotStatusInactive}); err != nil {
			return DeleteResult{}, wrapRepoErr(err, "deactivate credit lot")
		}
		entry.Action = enums.AuditLotDeactivated
		s.audit.Write(ctx, entry)
		return DeleteResult{Deactivated: true}, nil
	}

	if err := s.repo.Delete(ctx, id); err != nil {
		return DeleteResult{}, wrapRepoErr(err, "delete credit lot")
	}
	entry.Action = enums.AuditLotDeleted
	s.audit.Write(ctx, entry)
	return DeleteResult{Deleted: true}, nil
}

func authorizeLotEdit(actor access.Principal, lot *models.CreditLot) error {
	if actor.IsAdmin() {
		return nil
	}
	if actor.Role == enums.RoleBroker && actor.BrokerID != nil && lot.BrokerID != nil && *actor.BrokerID == *lot.BrokerID {
		return nil
	}
	return pkgerrors.New(pkgerrors.CodeForbidden, "not allowed to edit this lot")
}

func validateCreate(in CreateLotInput) error {
	if !in.CreditType.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, "invalid credit type")
	}
	if in.TaxYear < minTaxYear || in.TaxYear > maxTaxYear {
		return pkgerrors.New(pkgerrors.CodeValidation, "tax year out of range")
	}
	if !in.FaceValueUSD.IsPositive() {
		return pkgerrors.New(pkgerrors.CodeValidation, "face value must be greater than zero")
	}
	if !in.MinBlockUSD.IsPositive() || in.MinBlockUSD.GreaterThan(in.FaceValueUSD) {
		return pkgerrors.New(pkgerrors.CodeValidation, "minimum block must be within (0, face value]")
	}
	return validatePrice(in.PricePerDollar)
}

func validatePrice(p decimal.Decimal) error {
	if !p.IsPositive() || p.GreaterThan(decimal.NewFromInt(1)) {
		return pkgerrors.New(pkgerrors.CodeValidation, "price per dollar must be within (0, 1]")
	}
	return nil
}

func trimOptional(v *string) *string {
	if v == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*v)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}

// wrapRepoErr keeps typed errors and wraps driver failures.
func wrapRepoErr(err error, msg string) error {
	if pkgerrors.As(err) != nil {
		return err
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, msg)
}
