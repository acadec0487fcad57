package controllers

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/angelmondragon/taxcredit-backend/api/middleware"
	"github.com/angelmondragon/taxcredit-backend/api/responses"
	"github.com/angelmondragon/taxcredit-backend/api/validators"
	"github.com/angelmondragon/taxcredit-backend/internal/access"
	"github.com/angelmondragon/taxcredit-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/taxcredit-backend/pkg/errors"
	"github.com/angelmondragon/taxcredit-backend/pkg/logger"
)

type AccountantLinks interface {
	LinkAccountant(ctx context.Context, actor access.Principal, companyID, accountantID uuid.UUID) error
	UnlinkAccountant(ctx context.Context, actor access.Principal, companyID, accountantID uuid.UUID) error
	ListClients(ctx context.Context, actor access.Principal, accountantID uuid.UUID) ([]models.Company, error)
}

func LinkAccountant(svc AccountantLinks, logg *logger.Logger) http.HandlerFunc {
	return accountantLinkHandler(svc, logg, true)
}

func UnlinkAccountant(svc AccountantLinks, logg *logger.Logger) http.HandlerFunc {
	return accountantLinkHandler(svc, logg, false)
}

func accountantLinkHandler(svc AccountantLinks, logg *logger.Logger, link bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "access service unavailable"))
			return
		}
		companyID, err := validators.ParseUUIDParam(r, "companyId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		accountantID, err := validators.ParseUUIDParam(r, "accountantId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		actor := middleware.PrincipalFromContext(r.Context())
		if link {
			err = svc.LinkAccountant(r.Context(), actor, companyID, accountantID)
		} else {
			err = svc.UnlinkAccountant(r.Context(), actor, companyID, accountantID)
		}
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{
			"companyId":    companyID,
			"accountantId": accountantID,
			"linked":       link,
		})
	}
}

// ListMyClients returns the companies linked to the calling accountant.
func ListMyClients(svc AccountantLinks, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "access service unavailable"))
			return
		}
		actor := middleware.PrincipalFromContext(r.Context())
		companies, err := svc.ListClients(r.Context(), actor, actor.UserID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{"companies": companiesFromModels(companies)})
	}
}
