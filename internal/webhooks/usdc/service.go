package usdcwebhook

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/taxcredit-backend/internal/payments"
	pkgerrors "github.com/angelmondragon/taxcredit-backend/pkg/errors"
	"github.com/angelmondragon/taxcredit-backend/pkg/logger"
)

// SignatureHeader carries the hex HMAC-SHA256 of the raw request body.
const SignatureHeader = "X-Usdc-Signature"

// Notification is the transfer watcher's payload.
type Notification struct {
	TxHash     string          `json:"tx_hash" validate:"required"`
	From       string          `json:"from" validate:"required"`
	To         string          `json:"to"`
	AmountUSD  decimal.Decimal `json:"amount_usd"`
	Memo       string          `json:"memo"`
	ObservedAt *time.Time      `json:"observed_at"`
}

type transferMatcher interface {
	MatchTransfer(ctx context.Context, in payments.Transfer) (*payments.MatchResult, error)
}

type ServiceParams struct {
	Secret   string
	Wallet   string
	Payments transferMatcher
	Logger   *logger.Logger
}

type Service struct {
	secret   []byte
	wallet   string
	payments transferMatcher
	validate *validator.Validate
	logg     *logger.Logger
}

func NewService(params ServiceParams) (*Service, error) {
	secret := strings.TrimSpace(params.Secret)
	if secret == "" {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "usdc webhook secret required")
	}
	if params.Payments == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "payment service required")
	}
	return &Service{
		secret:   []byte(secret),
		wallet:   strings.ToLower(strings.TrimSpace(params.Wallet)),
		payments: params.Payments,
		validate: validator.New(),
		logg:     params.Logger,
	}, nil
}

// Verify checks the body signature. Accepts a bare hex digest or one
// prefixed with "sha256=".
func (s *Service) Verify(body []byte, signature string) error {
	signature = strings.TrimPrefix(strings.TrimSpace(signature), "sha256=")
	if signature == "" {
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "usdc signature missing")
	}
	got, err := hex.DecodeString(signature)
	if err != nil {
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "usdc signature malformed")
	}
	if !hmac.Equal(got, Sign(s.secret, body)) {
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "usdc signature mismatch")
	}
	return nil
}

// Handle verifies, decodes and reconciles one transfer notification.
func (s *Service) Handle(ctx context.Context, body []byte, signature string) (*payments.MatchResult, error) {
	if err := s.Verify(body, signature); err != nil {
		return nil, err
	}

	var n Notification
	if err := json.Unmarshal(body, &n); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode usdc notification")
	}
	if err := s.validate.Struct(n); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid usdc notification")
	}
	if !n.AmountUSD.IsPositive() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "amount_usd must be greater than zero")
	}
	if s.wallet != "" && strings.ToLower(strings.TrimSpace(n.To)) != s.wallet {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "transfer was not sent to the settlement wallet")
	}

	transfer := payments.Transfer{
		TxHash:     n.TxHash,
		FromWallet: n.From,
		AmountUSD:  n.AmountUSD,
	}
	if n.ObservedAt != nil {
		transfer.ReceivedAt = n.ObservedAt.UTC()
	}
	if id, err := uuid.Parse(strings.TrimSpace(n.Memo)); err == nil {
		transfer.OrderID = &id
	}

	result, err := s.payments.MatchTransfer(ctx, transfer)
	if err != nil {
		return nil, err
	}
	if s.logg != nil {
		logCtx := s.logg.WithFields(ctx, map[string]any{
			"tx_hash":   n.TxHash,
			"duplicate": result.Duplicate,
			"matched":   result.Order != nil,
		})
		s.logg.Info(logCtx, "usdc transfer received")
	}
	return result, nil
}

// Sign returns the HMAC-SHA256 of body under secret.
func Sign(secret, body []byte) []byte {
	mac := hmac.New(sha256.New, secret)
	mac.Write(body)
	return mac.Sum(nil)
}
