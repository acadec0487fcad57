package config

// EnvPrefix namespaces every variable read by Load.
const EnvPrefix = "TAXCREDIT"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	FeeBaseFace     = "face"
	FeeBaseSubtotal = "subtotal"

	PaymentsModeDemo   = "demo"
	PaymentsModeStripe = "stripe"
)

const (
	EnvAppEnv   = "TAXCREDIT_APP_ENV"
	EnvPort     = "TAXCREDIT_APP_PORT"
	EnvLogLevel = "TAXCREDIT_LOG_LEVEL"

	EnvDBDSN  = "TAXCREDIT_DB_DSN"
	EnvDBHost = "TAXCREDIT_DB_HOST"
	EnvDBUser = "TAXCREDIT_DB_USER"
	EnvDBName = "TAXCREDIT_DB_NAME"

	EnvRedisURL = "TAXCREDIT_REDIS_URL"

	EnvJWTSecret  = "TAXCREDIT_JWT_SECRET"
	EnvJWTIssuer  = "TAXCREDIT_JWT_ISSUER"
	EnvJWTExpMins = "TAXCREDIT_JWT_EXPIRATION_MINUTES"

	EnvFeesPlatformPercent = "TAXCREDIT_FEES_PLATFORM_PERCENT"
	EnvFeesPlatformFloor   = "TAXCREDIT_FEES_PLATFORM_FLOOR"
	EnvFeesBrokerPercent   = "TAXCREDIT_FEES_BROKER_PERCENT"
	EnvFeesBrokerFloor     = "TAXCREDIT_FEES_BROKER_FLOOR"
	EnvFeesBase            = "TAXCREDIT_FEES_BASE"

	EnvPaymentsMode        = "TAXCREDIT_PAYMENTS_MODE"
	EnvPaymentsPendingTTL  = "TAXCREDIT_PAYMENTS_PENDING_TTL"
	EnvStripeSecret        = "TAXCREDIT_STRIPE_SECRET"
	EnvStripeWebhookSecret = "TAXCREDIT_STRIPE_WEBHOOK_SECRET"
	EnvStripeCheckoutTTL   = "TAXCREDIT_STRIPE_CHECKOUT_TTL"

	EnvGCPProjectID = "TAXCREDIT_GCP_PROJECT_ID"
	EnvBQDataset    = "TAXCREDIT_BIGQUERY_DATASET"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
