package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/shopspring/decimal"
)

type Config struct {
	App           AppConfig
	Service       ServiceConfig
	DB            DBConfig
	Redis         RedisConfig
	JWT           JWTConfig
	Password      PasswordConfig
	AuthRateLimit AuthRateLimitConfig
	FeatureFlags  FeatureFlagsConfig
	Eventing      EventingConfig
	Fees          FeesConfig
	Holds         HoldsConfig
	Payments      PaymentsConfig
	Stripe        StripeConfig
	Cron          CronConfig
	GCP           GCPConfig
	PubSub        PubSubConfig
	BigQuery      BigQueryConfig
	Outbox        OutboxConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	if err := cfg.Fees.validate(); err != nil {
		return nil, err
	}
	if err := cfg.Payments.validate(cfg.Stripe); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"TAXCREDIT_APP_ENV" required:"true"`
	Port         string `envconfig:"TAXCREDIT_APP_PORT" required:"true"`
	PublicURL    string `envconfig:"TAXCREDIT_APP_PUBLIC_URL" default:"http://localhost:3000"`
	LogLevel     string `envconfig:"TAXCREDIT_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"TAXCREDIT_LOG_WARN_STACK" default:"false"`
	LogFormat    string `envconfig:"TAXCREDIT_LOG_FORMAT" default:"json"`
	// CORSOrigins extends the browser origins allowed to call the API.
	CORSOrigins []string `envconfig:"TAXCREDIT_CORS_ORIGINS"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"TAXCREDIT_SERVICE_KIND" default:"api"`
	// MetricsAddr is where background workers expose /metrics. Empty disables it.
	MetricsAddr string `envconfig:"TAXCREDIT_WORKER_METRICS_ADDR"`
}

type DBConfig struct {
	DSN    string `envconfig:"TAXCREDIT_DB_DSN"`
	Driver string `envconfig:"TAXCREDIT_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"TAXCREDIT_DB_HOST"`
	LegacyPort     int    `envconfig:"TAXCREDIT_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"TAXCREDIT_DB_USER"`
	LegacyPassword string `envconfig:"TAXCREDIT_DB_PASSWORD"`
	LegacyName     string `envconfig:"TAXCREDIT_DB_NAME"`
	LegacySSLMode  string `envconfig:"TAXCREDIT_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"TAXCREDIT_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"TAXCREDIT_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"TAXCREDIT_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"TAXCREDIT_DB_CONN_MAX_IDLE_TIME" default:"10m"`
	// SlowQuery logs statements slower than this at warn level. Zero disables it.
	SlowQuery time.Duration `envconfig:"TAXCREDIT_DB_SLOW_QUERY" default:"500ms"`
}

type RedisConfig struct {
	URL          string        `envconfig:"TAXCREDIT_REDIS_URL" required:"true"`
	Address      string        `envconfig:"TAXCREDIT_REDIS_ADDR"`
	Password     string        `envconfig:"TAXCREDIT_REDIS_PASSWORD"`
	DB           int           `envconfig:"TAXCREDIT_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"TAXCREDIT_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"TAXCREDIT_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"TAXCREDIT_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"TAXCREDIT_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"TAXCREDIT_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret            string `envconfig:"TAXCREDIT_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"TAXCREDIT_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"TAXCREDIT_JWT_EXPIRATION_MINUTES" required:"true"`
}

// AccessTTL returns the access token lifetime.
func (j JWTConfig) AccessTTL() time.Duration {
	if j.ExpirationMinutes <= 0 {
		return 0
	}
	return time.Duration(j.ExpirationMinutes) * time.Minute
}

type PasswordConfig struct {
	ArgonMemoryKB    int `envconfig:"TAXCREDIT_ARGON_MEMORY_KB" default:"65536"`
	ArgonTime        int `envconfig:"TAXCREDIT_ARGON_TIME" default:"3"`
	ArgonParallelism int `envconfig:"TAXCREDIT_ARGON_PARALLELISM" default:"2"`
	ArgonSaltLen     int `envconfig:"TAXCREDIT_ARGON_SALT_LEN" default:"16"`
	ArgonKeyLen      int `envconfig:"TAXCREDIT_ARGON_KEY_LEN" default:"32"`
}

type AuthRateLimitConfig struct {
	LoginWindow     time.Duration `envconfig:"TAXCREDIT_AUTH_RATE_LIMIT_LOGIN_WINDOW" default:"1m"`
	LoginEmailLimit int           `envconfig:"TAXCREDIT_AUTH_RATE_LIMIT_LOGIN_EMAIL_LIMIT" default:"5"`
	LoginIPLimit    int           `envconfig:"TAXCREDIT_AUTH_RATE_LIMIT_LOGIN_IP_LIMIT" default:"20"`
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"TAXCREDIT_AUTO_MIGRATE" default:"false"`
}

type EventingConfig struct {
	OutboxIdempotencyTTL time.Duration `envconfig:"TAXCREDIT_EVENTING_IDEMPOTENCY_TTL" default:"720h"`
}

// FeesConfig drives the checkout fee calculation.
type FeesConfig struct {
	PlatformFeePercent decimal.Decimal `envconfig:"TAXCREDIT_FEES_PLATFORM_PERCENT" default:"2"`
	PlatformFeeFloor   decimal.Decimal `envconfig:"TAXCREDIT_FEES_PLATFORM_FLOOR" default:"0"`
	BrokerFeePercent   decimal.Decimal `envconfig:"TAXCREDIT_FEES_BROKER_PERCENT" default:"0"`
	BrokerFeeFloor     decimal.Decimal `envconfig:"TAXCREDIT_FEES_BROKER_FLOOR" default:"0"`
	FeeBase            string          `envconfig:"TAXCREDIT_FEES_BASE" default:"subtotal"`
}

func (f FeesConfig) validate() error {
	switch strings.ToLower(strings.TrimSpace(f.FeeBase)) {
	case FeeBaseFace, FeeBaseSubtotal:
	default:
		return fmt.Errorf("%s must be %q or %q", EnvFeesBase, FeeBaseFace, FeeBaseSubtotal)
	}
	for name, v := range map[string]decimal.Decimal{
		EnvFeesPlatformPercent: f.PlatformFeePercent,
		EnvFeesPlatformFloor:   f.PlatformFeeFloor,
		EnvFeesBrokerPercent:   f.BrokerFeePercent,
		EnvFeesBrokerFloor:     f.BrokerFeeFloor,
	} {
		if v.IsNegative() {
			return fmt.Errorf("%s must not be negative", name)
		}
	}
	return nil
}

type HoldsConfig struct {
	TTL time.Duration `envconfig:"TAXCREDIT_HOLDS_TTL" default:"72h"`
}

// PaymentsConfig selects how checkouts settle. Demo mode marks orders PAID_TEST
// without contacting a processor.
type PaymentsConfig struct {
	Mode              string        `envconfig:"TAXCREDIT_PAYMENTS_MODE" default:"demo"`
	PendingTTL        time.Duration `envconfig:"TAXCREDIT_PAYMENTS_PENDING_TTL" default:"24h"`
	USDCWebhookSecret string        `envconfig:"TAXCREDIT_PAYMENTS_USDC_WEBHOOK_SECRET"`
	USDCWallet        string        `envconfig:"TAXCREDIT_PAYMENTS_USDC_WALLET"`
}

func (p PaymentsConfig) IsDemo() bool {
	return strings.EqualFold(strings.TrimSpace(p.Mode), PaymentsModeDemo)
}

func (p PaymentsConfig) validate(stripe StripeConfig) error {
	switch strings.ToLower(strings.TrimSpace(p.Mode)) {
	case PaymentsModeDemo:
		return nil
	case PaymentsModeStripe:
		if strings.TrimSpace(stripe.Secret) == "" || strings.TrimSpace(stripe.WebhookSecret) == "" {
			return fmt.Errorf("%s and %s are required when %s=stripe", EnvStripeSecret, EnvStripeWebhookSecret, EnvPaymentsMode)
		}
		return p.validateCheckoutWindow(stripe.CheckoutTTL)
	default:
		return fmt.Errorf("%s must be %q or %q", EnvPaymentsMode, PaymentsModeDemo, PaymentsModeStripe)
	}
}

// Stripe only accepts checkout expiries between 30 minutes and 24 hours out.
const (
	MinCheckoutTTL = 30 * time.Minute
	MaxCheckoutTTL = 24 * time.Hour
	// checkoutGrace leaves room for the session's completion webhook to land
	// before the pending sweep cancels the order.
	checkoutGrace = 30 * time.Minute
)

// validateCheckoutWindow keeps hosted checkouts closing well before the
// pending sweep, so a customer cannot pay for an order that was already
// cancelled by the timeout.
func (p PaymentsConfig) validateCheckoutWindow(checkoutTTL time.Duration) error {
	if checkoutTTL < MinCheckoutTTL || checkoutTTL > MaxCheckoutTTL {
		return fmt.Errorf("%s must be between %s and %s", EnvStripeCheckoutTTL, MinCheckoutTTL, MaxCheckoutTTL)
	}
	if p.PendingTTL < checkoutTTL+checkoutGrace {
		return fmt.Errorf("%s (%s) must exceed %s (%s) by at least %s",
			EnvPaymentsPendingTTL, p.PendingTTL, EnvStripeCheckoutTTL, checkoutTTL, checkoutGrace)
	}
	return nil
}

type StripeConfig struct {
	Secret        string `envconfig:"TAXCREDIT_STRIPE_SECRET"`
	WebhookSecret string `envconfig:"TAXCREDIT_STRIPE_WEBHOOK_SECRET"`
	Env           string `envconfig:"TAXCREDIT_STRIPE_ENV" default:"test"`
	Currency      string `envconfig:"TAXCREDIT_STRIPE_CURRENCY" default:"usd"`
	// CheckoutTTL is how long a hosted checkout session stays payable.
	CheckoutTTL time.Duration `envconfig:"TAXCREDIT_STRIPE_CHECKOUT_TTL" default:"1h"`
}

// Environment returns the normalized Stripe environment (test/live).
func (s StripeConfig) Environment() string {
	env := strings.TrimSpace(strings.ToLower(s.Env))
	if env == "" {
		return "test"
	}
	return env
}

type CronConfig struct {
	Interval           time.Duration `envconfig:"TAXCREDIT_CRON_INTERVAL" default:"5m"`
	LockTTL            time.Duration `envconfig:"TAXCREDIT_CRON_LOCK_TTL" default:"4m"`
	HoldReclaimBatch   int           `envconfig:"TAXCREDIT_CRON_HOLD_RECLAIM_BATCH" default:"200"`
	SummaryEnabled     bool          `envconfig:"TAXCREDIT_CRON_SUMMARY_ENABLED" default:"true"`
	SummaryLookbackDay int           `envconfig:"TAXCREDIT_CRON_SUMMARY_LOOKBACK_DAYS" default:"1"`
}

type GCPConfig struct {
	ProjectID              string `envconfig:"TAXCREDIT_GCP_PROJECT_ID"`
	CredentialsJSON        string `envconfig:"TAXCREDIT_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"TAXCREDIT_GOOGLE_APPLICATION_CREDENTIALS"`
}

type PubSubConfig struct {
	DomainTopic              string `envconfig:"TAXCREDIT_PUBSUB_DOMAIN_TOPIC" default:"tc-domain-events"`
	NotificationSubscription string `envconfig:"TAXCREDIT_PUBSUB_NOTIFICATION_SUBSCRIPTION" default:"tc-notifications"`
}

type BigQueryConfig struct {
	Dataset      string `envconfig:"TAXCREDIT_BIGQUERY_DATASET"`
	SummaryTable string `envconfig:"TAXCREDIT_BIGQUERY_SUMMARY_TABLE" default:"audit_daily_summary"`
}

// Enabled reports whether a summary export destination is configured.
func (b BigQueryConfig) Enabled() bool {
	return strings.TrimSpace(b.Dataset) != ""
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"TAXCREDIT_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"TAXCREDIT_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"TAXCREDIT_OUTBOX_MAX_ATTEMPTS" default:"10"`
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}

	missing := []string{}
	legacyValues := map[string]string{
		EnvDBHost: db.LegacyHost,
		EnvDBUser: db.LegacyUser,
		EnvDBName: db.LegacyName,
	}
	for _, env := range legacyDBEnvVars {
		if legacyValues[env] == "" {
			missing = append(missing, env)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("either %s or %s are required", EnvDBDSN, strings.Join(missing, ", "))
	}

	userInfo := url.User(db.LegacyUser)
	if db.LegacyPassword != "" {
		userInfo = url.UserPassword(db.LegacyUser, db.LegacyPassword)
	}

	u := &url.URL{
		Scheme: "postgres",
		User:   userInfo,
		Host:   fmt.Sprintf("%s:%d", db.LegacyHost, db.LegacyPort),
		Path:   db.LegacyName,
	}

	if db.LegacySSLMode != "" {
		q := u.Query()
		q.Set("sslmode", db.LegacySSLMode)
		u.RawQuery = q.Encode()
	}

	db.DSN = u.String()
	return nil
}
