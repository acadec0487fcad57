package controllers

import (
	"context"
	"net/http"
	"strings"

	"github.com/angelmondragon/taxcredit-backend/api/responses"
	"github.com/angelmondragon/taxcredit-backend/api/validators"
	"github.com/angelmondragon/taxcredit-backend/internal/audit"
	"github.com/angelmondragon/taxcredit-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/taxcredit-backend/pkg/errors"
	"github.com/angelmondragon/taxcredit-backend/pkg/logger"
	"github.com/angelmondragon/taxcredit-backend/pkg/pagination"
)

type auditQuerier interface {
	Query(ctx context.Context, f audit.Filter) (audit.Page, error)
}

// AdminQueryAudit pages the audit log newest first.
func AdminQueryAudit(svc auditQuerier, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "audit service unavailable"))
			return
		}
		query := r.URL.Query()

		limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		filter := audit.Filter{
			EntityType: strings.TrimSpace(query.Get("entityType")),
			EntityID:   strings.TrimSpace(query.Get("entityId")),
			Search:     validators.SanitizeString(query.Get("q"), 200),
			Cursor:     strings.TrimSpace(query.Get("cursor")),
			Limit:      limit,
		}
		if filter.From, err = validators.ParseQueryTime(r, "from"); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if filter.To, err = validators.ParseQueryTime(r, "to"); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if raw := strings.TrimSpace(query.Get("action")); raw != "" {
			action, err := enums.ParseAuditAction(raw)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid action"))
				return
			}
			filter.Action = &action
		}

		page, err := svc.Query(r.Context(), filter)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, AuditPage{Items: auditFromModels(page.Items), NextCursor: page.NextCursor})
	}
}
