package controllers

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/angelmondragon/taxcredit-backend/api/middleware"
	"github.com/angelmondragon/taxcredit-backend/api/responses"
	"github.com/angelmondragon/taxcredit-backend/api/validators"
	"github.com/angelmondragon/taxcredit-backend/internal/access"
	"github.com/angelmondragon/taxcredit-backend/internal/payments"
	"github.com/angelmondragon/taxcredit-backend/pkg/db/models"
	"github.com/angelmondragon/taxcredit-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/taxcredit-backend/pkg/errors"
	"github.com/angelmondragon/taxcredit-backend/pkg/logger"
)

// PaymentAdmin covers the manual payment and broker review overrides.
type PaymentAdmin interface {
	ApplyPaymentEvent(ctx context.Context, ev payments.PaymentEvent) (*payments.Outcome, error)
	SetBrokerStatus(ctx context.Context, actor access.Principal, orderID uuid.UUID, status enums.BrokerStatus, note string) (*models.PurchaseOrder, error)
}

type updatePaymentRequest struct {
	Status    string `json:"status" validate:"required"`
	Reference string `json:"reference" validate:"max=255"`
}

type updateBrokerStatusRequest struct {
	Status string `json:"status" validate:"required"`
	Note   string `json:"note" validate:"max=2000"`
}

type PaymentUpdateResponse struct {
	Order             *OrderResponse      `json:"order"`
	PreviousStatus    enums.PaymentStatus `json:"previousStatus"`
	Changed           bool                `json:"changed"`
	InventoryRestored bool                `json:"inventoryRestored"`
}

// AdminUpdatePayment records a manual payment transition, for example a wire
// confirmed out of band. Illegal transitions surface as state conflicts.
func AdminUpdatePayment(svc PaymentAdmin, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payments service unavailable"))
			return
		}
		actor := middleware.PrincipalFromContext(r.Context())
		if !actor.IsAdmin() {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeForbidden, "only admins may override payment status"))
			return
		}
		orderID, err := validators.ParseUUIDParam(r, "orderId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var body updatePaymentRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		status, err := enums.ParsePaymentStatus(strings.ToUpper(strings.TrimSpace(body.Status)))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid status"))
			return
		}

		outcome, err := svc.ApplyPaymentEvent(r.Context(), payments.PaymentEvent{
			OrderID:   orderID,
			Status:    status,
			Reference: validators.SanitizeString(body.Reference, 255),
			Source:    enums.PaymentSourceManual,
			Actor:     &actor,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, PaymentUpdateResponse{
			Order:             orderFromModel(outcome.Order),
			PreviousStatus:    outcome.From,
			Changed:           outcome.Changed,
			InventoryRestored: outcome.Restored,
		})
	}
}

// AdminUpdateBrokerStatus records the compliance review outcome.
func AdminUpdateBrokerStatus(svc PaymentAdmin, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payments service unavailable"))
			return
		}
		orderID, err := validators.ParseUUIDParam(r, "orderId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var body updateBrokerStatusRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		status, err := enums.ParseBrokerStatus(strings.ToUpper(strings.TrimSpace(body.Status)))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid status"))
			return
		}

		order, err := svc.SetBrokerStatus(r.Context(), middleware.PrincipalFromContext(r.Context()), orderID, status, validators.SanitizeString(body.Note, 2000))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, orderFromModel(order))
	}
}
