package webhooks

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"

	"github.com/angelmondragon/taxcredit-backend/internal/payments"
	usdcwebhook "github.com/angelmondragon/taxcredit-backend/internal/webhooks/usdc"
	"github.com/angelmondragon/taxcredit-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/taxcredit-backend/pkg/errors"
)

type fakeUSDCService struct {
	sig    string
	result *payments.MatchResult
	err    error
}

func (f *fakeUSDCService) Handle(ctx context.Context, body []byte, signature string) (*payments.MatchResult, error) {
	f.sig = signature
	return f.result, f.err
}

func TestUSDCWebhookReportsMatch(t *testing.T) {
	orderID := uuid.New()
	svc := &fakeUSDCService{result: &payments.MatchResult{
		Transfer: &models.PaymentTransfer{TxHash: "0xabc"},
		Order:    &models.PurchaseOrder{ID: orderID},
	}}

	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/usdc", bytes.NewReader([]byte(`{"tx_hash":"0xabc"}`)))
	req.Header.Set(usdcwebhook.SignatureHeader, "sha256=deadbeef")
	rec := httptest.NewRecorder()
	USDCWebhook(svc, nil).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", rec.Code)
	}
	if svc.sig != "sha256=deadbeef" {
		t.Fatalf("signature header not forwarded: %q", svc.sig)
	}
	var envelope struct {
		Data USDCWebhookResponse `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !envelope.Data.Matched || envelope.Data.OrderID != orderID.String() || envelope.Data.TxHash != "0xabc" {
		t.Fatalf("unexpected response %+v", envelope.Data)
	}
}

func TestUSDCWebhookSignatureFailure(t *testing.T) {
	svc := &fakeUSDCService{err: pkgerrors.New(pkgerrors.CodeUnauthorized, "usdc signature mismatch")}

	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/usdc", bytes.NewReader([]byte(`{}`)))
	rec := httptest.NewRecorder()
	USDCWebhook(svc, nil).ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 got %d", rec.Code)
	}
}
