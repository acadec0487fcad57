package controllers

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/taxcredit-backend/api/responses"
	"github.com/angelmondragon/taxcredit-backend/api/validators"
	"github.com/angelmondragon/taxcredit-backend/internal/fees"
	"github.com/angelmondragon/taxcredit-backend/pkg/db/models"
	"github.com/angelmondragon/taxcredit-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/taxcredit-backend/pkg/errors"
	"github.com/angelmondragon/taxcredit-backend/pkg/logger"
	"github.com/angelmondragon/taxcredit-backend/pkg/pagination"
)

type activeLotReader interface {
	GetActive(ctx context.Context, id uuid.UUID) (*models.CreditLot, error)
	ListActive(ctx context.Context, creditType *enums.CreditType, taxYear *int, params pagination.Params) ([]models.CreditLot, string, error)
}

type feeQuoter interface {
	Quote(face, price decimal.Decimal) (fees.Breakdown, error)
}

// QuoteResponse previews checkout pricing without reserving anything.
type QuoteResponse struct {
	LotID             uuid.UUID      `json:"lotId"`
	Breakdown         fees.Breakdown `json:"breakdown"`
	MeetsMinimumBlock bool           `json:"meetsMinimumBlock"`
	WithinAvailable   bool           `json:"withinAvailable"`
}

// ListLots returns ACTIVE lots, optionally narrowed by creditType and taxYear.
func ListLots(svc activeLotReader, logg *logger.Logger) http.HandlerFunc {
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

		lots, next, err := svc.ListActive(r.Context(), creditType, taxYear, pagination.Params{
			Limit:  limit,
			Cursor: strings.TrimSpace(r.URL.Query().Get("cursor")),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, LotPage{Lots: lotsFromModels(lots), NextCursor: next})
	}
}

func GetLot(svc activeLotReader, logg *logger.Logger) http.HandlerFunc {
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
		lot, err := svc.GetActive(r.Context(), lotID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, lotFromModel(lot))
	}
}

// QuoteLot prices amountUsd of face value against the lot's current price.
func QuoteLot(svc activeLotReader, calc feeQuoter, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil || calc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "quote service unavailable"))
			return
		}
		lotID, err := validators.ParseUUIDParam(r, "lotId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		amount, err := validators.ParseQueryDecimal(r, "amountUsd")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if !amount.IsPositive() {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "amountUsd must be greater than zero"))
			return
		}

		lot, err := svc.GetActive(r.Context(), lotID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		breakdown, err := calc.Quote(amount, lot.PricePerDollar)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, QuoteResponse{
			LotID:             lot.ID,
			Breakdown:         breakdown,
			MeetsMinimumBlock: amount.GreaterThanOrEqual(lot.MinBlockUSD),
			WithinAvailable:   amount.LessThanOrEqual(lot.AvailableUSD),
		})
	}
}

func parseLotFilters(r *http.Request) (*enums.CreditType, *int, error) {
	var creditType *enums.CreditType
	if raw := strings.TrimSpace(r.URL.Query().Get("creditType")); raw != "" {
		parsed, err := enums.ParseCreditType(strings.ToUpper(raw))
		if err != nil {
			return nil, nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid creditType")
		}
		creditType = &parsed
	}

	var taxYear *int
	if strings.TrimSpace(r.URL.Query().Get("taxYear")) != "" {
		year, err := validators.ParseQueryInt(r, "taxYear", 0, 2000, 2100)
		if err != nil {
			return nil, nil, err
		}
		taxYear = &year
	}
	return creditType, taxYear, nil
}
