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
	"github.com/angelmondragon/taxcredit-backend/internal/holds"
	"github.com/angelmondragon/taxcredit-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/taxcredit-backend/pkg/errors"
	"github.com/angelmondragon/taxcredit-backend/pkg/logger"
	"github.com/angelmondragon/taxcredit-backend/pkg/pagination"
)

// HoldService is the reservation surface exposed to buyers.
type HoldService interface {
	CreateHold(ctx context.Context, actor access.Principal, in holds.CreateHoldInput) (*models.Hold, error)
	GetHold(ctx context.Context, actor access.Principal, id uuid.UUID) (*models.Hold, error)
	ListHolds(ctx context.Context, actor access.Principal, companyID uuid.UUID, params pagination.Params) ([]models.Hold, string, error)
	CancelHold(ctx context.Context, actor access.Principal, id uuid.UUID) (*models.Hold, error)
}

type createHoldRequest struct {
	LotID     uuid.UUID       `json:"lotId" validate:"required"`
	AmountUSD decimal.Decimal `json:"amountUsd" validate:"required,usd"`
	CompanyID *uuid.UUID      `json:"companyId"`
}

type HoldPage struct {
	Holds      []*HoldResponse `json:"holds"`
	NextCursor string          `json:"nextCursor,omitempty"`
}

func CreateHold(svc HoldService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "holds service unavailable"))
			return
		}

		var body createHoldRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		actor := middleware.PrincipalFromContext(r.Context())
		companyID, err := resolveCompanyID(actor, body.CompanyID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		hold, err := svc.CreateHold(r.Context(), actor, holds.CreateHoldInput{
			LotID:     body.LotID,
			CompanyID: companyID,
			AmountUSD: body.AmountUSD,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, holdFromModel(hold, time.Now()))
	}
}

func GetHold(svc HoldService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "holds service unavailable"))
			return
		}
		holdID, err := validators.ParseUUIDParam(r, "holdId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		hold, err := svc.GetHold(r.Context(), middleware.PrincipalFromContext(r.Context()), holdID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, holdFromModel(hold, time.Now()))
	}
}

func CancelHold(svc HoldService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "holds service unavailable"))
			return
		}
		holdID, err := validators.ParseUUIDParam(r, "holdId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		hold, err := svc.CancelHold(r.Context(), middleware.PrincipalFromContext(r.Context()), holdID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, holdFromModel(hold, time.Now()))
	}
}

func ListCompanyHolds(svc HoldService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "holds service unavailable"))
			return
		}
		companyID, err := validators.ParseUUIDParam(r, "companyId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		rows, next, err := svc.ListHolds(r.Context(), middleware.PrincipalFromContext(r.Context()), companyID, pagination.Params{
			Limit:  limit,
			Cursor: strings.TrimSpace(r.URL.Query().Get("cursor")),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		now := time.Now()
		page := HoldPage{Holds: make([]*HoldResponse, 0, len(rows)), NextCursor: next}
		for i := range rows {
			page.Holds = append(page.Holds, holdFromModel(&rows[i], now))
		}
		responses.WriteSuccess(w, page)
	}
}

// resolveCompanyID falls back to the caller's own company when the request
// names none. Access to an explicit company is decided by the service gate.
func resolveCompanyID(actor access.Principal, requested *uuid.UUID) (uuid.UUID, error) {
	if requested != nil && *requested != uuid.Nil {
		return *requested, nil
	}
	if actor.CompanyID != nil {
		return *actor.CompanyID, nil
	}
	return uuid.Nil, pkgerrors.New(pkgerrors.CodeValidation, "companyId is required").WithDetails(map[string]any{"field": "companyId"})
}
