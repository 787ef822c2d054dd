package config

const (
	EnvPrefix = "DONATIONS"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	EnvAppEnv = "DONATIONS_APP_ENV"
	EnvPort   = "DONATIONS_APP_PORT"

	EnvDBDSN  = "DONATIONS_DB_DSN"
	EnvDBHost = "DONATIONS_DB_HOST"
	EnvDBUser = "DONATIONS_DB_USER"
	EnvDBName = "DONATIONS_DB_NAME"

	EnvUseSQLite = "DONATIONS_USE_SQLITE"
	EnvRedisURL  = "DONATIONS_REDIS_URL"

	EnvJWTSecret = "DONATIONS_JWT_SECRET"
	EnvJWTIssuer = "DONATIONS_JWT_ISSUER"

	EnvCashfreeBaseURL       = "DONATIONS_CASHFREE_BASE_URL"
	EnvCashfreeClientID      = "DONATIONS_CASHFREE_CLIENT_ID"
	EnvCashfreeClientSecret  = "DONATIONS_CASHFREE_CLIENT_SECRET"
	EnvCashfreeWebhookSecret = "DONATIONS_CASHFREE_WEBHOOK_SECRET"
	EnvCashfreeTimeout       = "DONATIONS_CASHFREE_TIMEOUT"

	EnvFrontendURL = "DONATIONS_FRONTEND_URL"
	EnvBackendURL  = "DONATIONS_BACKEND_URL"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
