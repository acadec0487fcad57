package controllers

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/taxcredit-backend/api/middleware"
	"github.com/angelmondragon/taxcredit-backend/api/responses"
	"github.com/angelmondragon/taxcredit-backend/api/validators"
	"github.com/angelmondragon/taxcredit-backend/internal/access"
	"github.com/angelmondragon/taxcredit-backend/internal/inventory"
	"github.com/angelmondragon/taxcredit-backend/pkg/db/models"
	"github.com/angelmondragon/taxcredit-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/taxcredit-backend/pkg/errors"
	"github.com/angelmondragon/taxcredit-backend/pkg/logger"
	"github.com/angelmondragon/taxcredit-backend/pkg/pagination"
)

// LotAdmin is the inventory surface used by the admin console.
type LotAdmin interface {
	Create(ctx context.Context, actor access.Principal, in inventory.CreateLotInput) (*models.CreditLot, error)
	Get(ctx context.Context, id uuid.UUID) (*models.CreditLot, error)
	List(ctx context.Context, f inventory.ListFilter) ([]models.CreditLot, string, error)
	Update(ctx context.Context, actor access.Principal, id uuid.UUID, in inventory.UpdateLotInput) (*models.CreditLot, error)
	Delete(ctx context.Context, actor access.Principal, id uuid.UUID) (inventory.DeleteResult, error)
}

type createLotRequest struct {
	CreditType       string          `json:"creditType" validate:"required"`
	TaxYear          int             `json:"taxYear" validate:"required,min=2000,max=2100"`
	FaceValueUSD     decimal.Decimal `json:"faceValueUsd" validate:"usd"`
	MinBlockUSD      decimal.Decimal `json:"minBlockUsd" validate:"usd"`
	PricePerDollar   decimal.Decimal `json:"pricePerDollar" validate:"rate"`
	Jurisdiction     *string         `json:"jurisdiction" validate:"omitempty,max=120"`
	StateRestriction *string         `json:"stateRestriction" validate:"omitempty,max=120"`
	CloseBy          *time.Time      `json:"closeBy"`
	BrokerID         *uuid.UUID      `json:"brokerId"`
}

type updateLotRequest struct {
	PricePerDollar   *decimal.Decimal `json:"pricePerDollar" validate:"omitempty,rate"`
	MinBlockUSD      *decimal.Decimal `json:"minBlockUsd" validate:"omitempty,usd"`
	Status           *string          `json:"status"`
	Jurisdiction     *string          `json:"jurisdiction" validate:"omitempty,max=120"`
	StateRestriction *string          `json:"stateRestriction" validate:"omitempty,max=120"`
	CloseBy          *time.Time       `json:"closeBy"`
	AvailableUSD     *decimal.Decimal `json:"availableUsd"`
}

func AdminCreateLot(svc LotAdmin, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "inventory service unavailable"))
			return
		}

		var body createLotRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		creditType, err := enums.ParseCreditType(strings.ToUpper(strings.TrimSpace(body.CreditType)))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid creditType"))
			return
		}

		lot, err := svc.Create(r.Context(), middleware.PrincipalFromContext(r.Context()), inventory.CreateLotInput{
			CreditType:       creditType,
			TaxYear:          body.TaxYear,
			FaceValueUSD:     body.FaceValueUSD,
			MinBlockUSD:      body.MinBlockUSD,
			PricePerDollar:   body.PricePerDollar,
			Jurisdiction:     body.Jurisdiction,
			StateRestriction: body.StateRestriction,
			CloseBy:          body.CloseBy,
			BrokerID:         body.BrokerID,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, lotFromModel(lot))
	}
}

// AdminListLots lists lots in any status. Brokers only see their own lots.
func AdminListLots(svc LotAdmin, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "inventory service unavailable"))
			return
		}

		creditType, taxYear, err := parseLotFilters(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		filter := inventory.ListFilter{
			CreditType: creditType,
			TaxYear:    taxYear,
			Params: pagination.Params{
				Limit:  limit,
				Cursor: strings.TrimSpace(r.URL.Query().Get("cursor")),
			},
		}
		if raw := strings.TrimSpace(r.URL.Query().Get("status")); raw != "" {
			status, err := enums.ParseLotStatus(strings.ToUpper(raw))
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid status"))
				return
			}
			filter.Status = &status
		}

		actor := middleware.PrincipalFromContext(r.Context())
		if actor.Role == enums.RoleBroker {
			if actor.BrokerID == nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeForbidden, "broker account is not linked to a broker"))
				return
			}
			filter.BrokerID = actor.BrokerID
		} else {
			brokerID, err := validators.ParseQueryUUID(r, "brokerId")
			if err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
			filter.BrokerID = brokerID
		}

		lots, next, err := svc.List(r.Context(), filter)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, LotPage{Lots: lotsFromModels(lots), NextCursor: next})
	}
}

func AdminGetLot(svc LotAdmin, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "inventory service unavailable"))
			return
		}
		lotID, err := validators.ParseUUIDParam(r, "lotId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		lot, err := svc.Get(r.Context(), lotID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		actor := middleware.PrincipalFromContext(r.Context())
		if actor.Role == enums.RoleBroker && (lot.BrokerID == nil || actor.BrokerID == nil || *lot.BrokerID != *actor.BrokerID) {
			responses.WriteError(r.Context(), logg, w, inventory.ErrLotNotFound)
			return
		}
		responses.WriteSuccess(w, lotFromModel(lot))
	}
}

func AdminUpdateLot(svc LotAdmin, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "inventory service unavailable"))
			return
		}
		lotID, err := validators.ParseUUIDParam(r, "lotId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var body updateLotRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		in := inventory.UpdateLotInput{
			PricePerDollar:   body.PricePerDollar,
			MinBlockUSD:      body.MinBlockUSD,
			Jurisdiction:     body.Jurisdiction,
			StateRestriction: body.StateRestriction,
			CloseBy:          body.CloseBy,
			AvailableUSD:     body.AvailableUSD,
		}
		if body.Status != nil {
			status, err := enums.ParseLotStatus(strings.ToUpper(strings.TrimSpace(*body.Status)))
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid status"))
				return
			}
			in.Status = &status
		}

		lot, err := svc.Update(r.Context(), middleware.PrincipalFromContext(r.Context()), lotID, in)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, lotFromModel(lot))
	}
}

// AdminDeleteLot removes an unreferenced lot, or deactivates one that orders
// or holds still point at.
func AdminDeleteLot(svc LotAdmin, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "inventory service unavailable"))
			return
		}
		lotID, err := validators.ParseUUIDParam(r, "lotId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		result, err := svc.Delete(r.Context(), middleware.PrincipalFromContext(r.Context()), lotID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}
