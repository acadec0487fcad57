package controllers

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/taxcredit-backend/api/middleware"
	"github.com/angelmondragon/taxcredit-backend/api/responses"
	"github.com/angelmondragon/taxcredit-backend/api/validators"
	"github.com/angelmondragon/taxcredit-backend/internal/access"
	internalorders "github.com/angelmondragon/taxcredit-backend/internal/orders"
	"github.com/angelmondragon/taxcredit-backend/pkg/db/models"
	"github.com/angelmondragon/taxcredit-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/taxcredit-backend/pkg/errors"
	"github.com/angelmondragon/taxcredit-backend/pkg/logger"
	"github.com/angelmondragon/taxcredit-backend/pkg/pagination"
)

// OrderService is the checkout and order history surface.
type OrderService interface {
	CreateOrder(ctx context.Context, actor access.Principal, in internalorders.CreateOrderInput) (*internalorders.CheckoutResult, error)
	GetOrder(ctx context.Context, actor access.Principal, id uuid.UUID) (*models.PurchaseOrder, error)
	ListOrders(ctx context.Context, actor access.Principal, companyID uuid.UUID, params pagination.Params, filters internalorders.ListFilters) (*internalorders.OrderList, error)
}

type createOrderRequest struct {
	LotID     uuid.UUID       `json:"lotId" validate:"required"`
	AmountUSD decimal.Decimal `json:"amountUsd" validate:"required,usd"`
	CompanyID *uuid.UUID      `json:"companyId"`
	HoldID    *uuid.UUID      `json:"holdId"`
}

// CreateOrder settles a checkout. The response carries a hosted payment URL
// only when the buyer must complete payment elsewhere.
func CreateOrder(svc OrderService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
			return
		}

		var body createOrderRequest
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

		result, err := svc.CreateOrder(r.Context(), actor, internalorders.CreateOrderInput{
			LotID:     body.LotID,
			CompanyID: companyID,
			AmountUSD: body.AmountUSD,
			HoldID:    body.HoldID,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, CheckoutResponse{
			Order:      orderFromModel(result.Order),
			PaymentURL: result.PaymentURL,
		})
	}
}

func GetOrder(svc OrderService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
			return
		}
		orderID, err := validators.ParseUUIDParam(r, "orderId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		order, err := svc.GetOrder(r.Context(), middleware.PrincipalFromContext(r.Context()), orderID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, orderFromModel(order))
	}
}

// ListCompanyOrders returns a company's order history newest first.
func ListCompanyOrders(svc OrderService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
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
		filters, err := buildOrderFilters(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		list, err := svc.ListOrders(r.Context(), middleware.PrincipalFromContext(r.Context()), companyID, pagination.Params{
			Limit:  limit,
			Cursor: strings.TrimSpace(r.URL.Query().Get("cursor")),
		}, filters)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		page := OrderPage{Orders: make([]*OrderResponse, 0, len(list.Orders)), NextCursor: list.NextCursor}
		for i := range list.Orders {
			page.Orders = append(page.Orders, orderFromModel(&list.Orders[i]))
		}
		responses.WriteSuccess(w, page)
	}
}

func buildOrderFilters(r *http.Request) (internalorders.ListFilters, error) {
	var filters internalorders.ListFilters
	query := r.URL.Query()

	if raw := strings.TrimSpace(query.Get("paymentStatus")); raw != "" {
		status, err := enums.ParsePaymentStatus(strings.ToUpper(raw))
		if err != nil {
			return filters, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid paymentStatus")
		}
		filters.PaymentStatus = &status
	}
	if raw := strings.TrimSpace(query.Get("brokerStatus")); raw != "" {
		status, err := enums.ParseBrokerStatus(strings.ToUpper(raw))
		if err != nil {
			return filters, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid brokerStatus")
		}
		filters.BrokerStatus = &status
	}

	lotID, err := validators.ParseQueryUUID(r, "lotId")
	if err != nil {
		return filters, err
	}
	filters.LotID = lotID

	if filters.DateFrom, err = validators.ParseQueryTime(r, "from"); err != nil {
		return filters, err
	}
	if filters.DateTo, err = validators.ParseQueryTime(r, "to"); err != nil {
		return filters, err
	}
	if filters.DateFrom != nil && filters.DateTo != nil && filters.DateTo.Before(*filters.DateFrom) {
		return filters, pkgerrors.New(pkgerrors.CodeValidation, "to must not be before from")
	}
	return filters, nil
}
