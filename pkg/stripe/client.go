// Package stripe wraps the pieces of stripe-go the marketplace uses: hosted
// checkout for card payments and the signing secret for webhook verification.
package stripe

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v84"
	"github.com/stripe/stripe-go/v84/checkout/session"

	"github.com/angelmondragon/taxcredit-backend/pkg/config"
	"github.com/angelmondragon/taxcredit-backend/pkg/logger"
)

const defaultCurrency = "usd"

// keyPrefixes lists the secret and restricted key prefixes each mode accepts.
var keyPrefixes = map[string][]string{
	"test": {"sk_test_", "rk_test_"},
	"live": {"sk_live_", "rk_live_"},
}

var (
	errAPIKeyRequired   = errors.New("stripe secret key is required")
	errSecretRequired   = errors.New("stripe webhook secret is required")
	errInvalidStripeEnv = errors.New(`stripe environment must be "test" or "live"`)
	errNotConfigured    = errors.New("stripe client not configured")
)

type sessionFunc func(*stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error)

// Client is built once per process. stripe-go keeps the API key in a package
// variable, so two clients with different keys cannot coexist.
type Client struct {
	mode          string
	signingSecret string
	currency      string
	checkoutTTL   time.Duration
	newSession    sessionFunc
	now           func() time.Time
}

func NewClient(ctx context.Context, cfg config.StripeConfig, logg *logger.Logger) (*Client, error) {
	mode := cfg.Environment()
	prefixes, ok := keyPrefixes[mode]
	if !ok {
		return nil, errInvalidStripeEnv
	}
	key := strings.TrimSpace(cfg.Secret)
	if key == "" {
		return nil, errAPIKeyRequired
	}
	secret := strings.TrimSpace(cfg.WebhookSecret)
	if secret == "" {
		return nil, errSecretRequired
	}
	if !hasAnyPrefix(key, prefixes) {
		return nil, fmt.Errorf("stripe %s mode needs a key starting with %s", mode, strings.Join(prefixes, " or "))
	}

	stripe.Key = key
	c := &Client{
		mode:          mode,
		signingSecret: secret,
		currency:      strings.ToLower(strings.TrimSpace(cfg.Currency)),
		checkoutTTL:   cfg.CheckoutTTL,
		newSession:    session.New,
	}
	if c.currency == "" {
		c.currency = defaultCurrency
	}
	if logg != nil {
		logg.Info(logg.WithFields(ctx, map[string]any{
			"stripe_mode":  mode,
			"currency":     c.currency,
			"checkout_ttl": c.sessionTTL().String(),
		}), "stripe.ready")
	}
	return c, nil
}

func hasAnyPrefix(s string, prefixes []string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(s, p) {
			return true
		}
	}
	return false
}

// Environment is "test" or "live".
func (c *Client) Environment() string {
	if c == nil {
		return ""
	}
	return c.mode
}

// SigningSecret is the whsec_ value webhook.ConstructEvent checks against.
func (c *Client) SigningSecret() string {
	if c == nil {
		return ""
	}
	return c.signingSecret
}
