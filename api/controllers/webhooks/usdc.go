package webhooks

import (
	"context"
	"io"
	"net/http"

	"github.com/angelmondragon/taxcredit-backend/api/responses"
	"github.com/angelmondragon/taxcredit-backend/internal/payments"
	usdcwebhook "github.com/angelmondragon/taxcredit-backend/internal/webhooks/usdc"
	pkgerrors "github.com/angelmondragon/taxcredit-backend/pkg/errors"
	"github.com/angelmondragon/taxcredit-backend/pkg/logger"
)

type USDCWebhookService interface {
	Handle(ctx context.Context, body []byte, signature string) (*payments.MatchResult, error)
}

type USDCWebhookResponse struct {
	TxHash    string `json:"txHash"`
	Matched   bool   `json:"matched"`
	Duplicate bool   `json:"duplicate"`
	OrderID   string `json:"orderId,omitempty"`
}

// USDCWebhook accepts transfer notifications from the wallet watcher.
func USDCWebhook(svc USDCWebhookService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeExternalService, "usdc webhooks are not configured"))
			return
		}

		payload, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "read request body"))
			return
		}

		result, err := svc.Handle(ctx, payload, r.Header.Get(usdcwebhook.SignatureHeader))
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		resp := USDCWebhookResponse{Duplicate: result.Duplicate, Matched: result.Order != nil}
		if result.Transfer != nil {
			resp.TxHash = result.Transfer.TxHash
		}
		if result.Order != nil {
			resp.OrderID = result.Order.ID.String()
		}
		responses.WriteSuccess(w, resp)
	}
}
