package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App          AppConfig
	Service      ServiceConfig
	DB           DBConfig
	Redis        RedisConfig
	JWT          JWTConfig
	FeatureFlags FeatureFlagsConfig
	Cashfree     CashfreeConfig
	Callbacks    CallbacksConfig
	Payments     PaymentsConfig
	RateLimit    RateLimitConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
	Outbox       OutboxConfig
	Cron         CronConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(cfg.FeatureFlags.UseSQLite); err != nil {
		return nil, err
	}
	if err := cfg.Cashfree.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"DONATIONS_APP_ENV" required:"true"`
	Port         string `envconfig:"DONATIONS_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"DONATIONS_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"DONATIONS_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"DONATIONS_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"DONATIONS_DB_DSN"`
	Driver string `envconfig:"DONATIONS_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"DONATIONS_DB_HOST"`
	LegacyPort     int    `envconfig:"DONATIONS_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"DONATIONS_DB_USER"`
	LegacyPassword string `envconfig:"DONATIONS_DB_PASSWORD"`
	LegacyName     string `envconfig:"DONATIONS_DB_NAME"`
	LegacySSLMode  string `envconfig:"DONATIONS_DB_SSLMODE" default:"disable"`

	SQLitePath string `envconfig:"DONATIONS_SQLITE_PATH" default:"donations.db"`

	MaxOpenConns    int           `envconfig:"DONATIONS_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"DONATIONS_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"DONATIONS_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"DONATIONS_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"DONATIONS_REDIS_URL" required:"true"`
	Address      string        `envconfig:"DONATIONS_REDIS_ADDR"`
	Password     string        `envconfig:"DONATIONS_REDIS_PASSWORD"`
	DB           int           `envconfig:"DONATIONS_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"DONATIONS_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"DONATIONS_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"DONATIONS_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"DONATIONS_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"DONATIONS_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret            string `envconfig:"DONATIONS_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"DONATIONS_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"DONATIONS_JWT_EXPIRATION_MINUTES" default:"60"`
}

type FeatureFlagsConfig struct {
	UseSQLite   bool `envconfig:"DONATIONS_USE_SQLITE" default:"false"`
	AutoMigrate bool `envconfig:"DONATIONS_AUTO_MIGRATE" default:"false"`
}

// CashfreeConfig holds the PG credentials. WebhookSecret falls back to
// ClientSecret, which is what Cashfree signs webhooks with by default.
type CashfreeConfig struct {
	BaseURL          string        `envconfig:"DONATIONS_CASHFREE_BASE_URL" default:"https://sandbox.cashfree.com/pg"`
	ClientID         string        `envconfig:"DONATIONS_CASHFREE_CLIENT_ID" required:"true"`
	ClientSecret     string        `envconfig:"DONATIONS_CASHFREE_CLIENT_SECRET" required:"true"`
	WebhookSecret    string        `envconfig:"DONATIONS_CASHFREE_WEBHOOK_SECRET"`
	APIVersion       string        `envconfig:"DONATIONS_CASHFREE_API_VERSION" default:"2022-09-01"`
	Timeout          time.Duration `envconfig:"DONATIONS_CASHFREE_TIMEOUT" default:"10s"`
	WebhookTolerance time.Duration `envconfig:"DONATIONS_CASHFREE_WEBHOOK_TOLERANCE" default:"0s"`
	WebhookDedupeTTL time.Duration `envconfig:"DONATIONS_CASHFREE_WEBHOOK_DEDUPE_TTL" default:"720h"`
}

// SigningSecret returns the secret used to verify webhook signatures.
func (c CashfreeConfig) SigningSecret() string {
	if strings.TrimSpace(c.WebhookSecret) != "" {
		return c.WebhookSecret
	}
	return c.ClientSecret
}

func (c CashfreeConfig) validate() error {
	if _, err := url.ParseRequestURI(c.BaseURL); err != nil {
		return fmt.Errorf("invalid %s: %w", EnvCashfreeBaseURL, err)
	}
	if c.Timeout < 5*time.Second || c.Timeout > 15*time.Second {
		return fmt.Errorf("%s must be between 5s and 15s", EnvCashfreeTimeout)
	}
	return nil
}

type CallbacksConfig struct {
	FrontendURL string `envconfig:"DONATIONS_FRONTEND_URL" required:"true"`
	BackendURL  string `envconfig:"DONATIONS_BACKEND_URL" required:"true"`
}

// ReturnURL is where Cashfree sends the payer after checkout. The
// {order_id} placeholder is expanded by Cashfree.
func (c CallbacksConfig) ReturnURL() string {
	return strings.TrimRight(c.FrontendURL, "/") + "/payment/status?order_id={order_id}"
}

// NotifyURL is the webhook endpoint registered per order.
func (c CallbacksConfig) NotifyURL() string {
	return strings.TrimRight(c.BackendURL, "/") + "/api/v1/webhooks/cashfree"
}

type PaymentsConfig struct {
	MinAmount           string        `envconfig:"DONATIONS_PAYMENTS_MIN_AMOUNT" default:"1"`
	MaxAmount           string        `envconfig:"DONATIONS_PAYMENTS_MAX_AMOUNT" default:"1000000"`
	RegistrationFee     string        `envconfig:"DONATIONS_PAYMENTS_REGISTRATION_FEE" default:"500"`
	StatusCheckRetries  uint64        `envconfig:"DONATIONS_PAYMENTS_STATUS_CHECK_RETRIES" default:"1"`
	ReconcileRetries    uint64        `envconfig:"DONATIONS_PAYMENTS_RECONCILE_RETRIES" default:"3"`
	ReconcileRetryDelay time.Duration `envconfig:"DONATIONS_PAYMENTS_RECONCILE_RETRY_DELAY" default:"100ms"`
	PendingSweepAge     time.Duration `envconfig:"DONATIONS_PAYMENTS_PENDING_SWEEP_AGE" default:"30m"`
	PendingSweepBatch   int           `envconfig:"DONATIONS_PAYMENTS_PENDING_SWEEP_BATCH" default:"100"`
}

type RateLimitConfig struct {
	PublicDonationWindow time.Duration `envconfig:"DONATIONS_RATE_LIMIT_PUBLIC_DONATION_WINDOW" default:"1m"`
	PublicDonationLimit  int           `envconfig:"DONATIONS_RATE_LIMIT_PUBLIC_DONATION_LIMIT" default:"10"`
	PublicVerifyLimit    int           `envconfig:"DONATIONS_RATE_LIMIT_PUBLIC_VERIFY_LIMIT" default:"60"`
}

type GCPConfig struct {
	ProjectID       string `envconfig:"DONATIONS_GCP_PROJECT_ID"`
	CredentialsJSON string `envconfig:"DONATIONS_GCP_CREDENTIALS_JSON"`
}

type PubSubConfig struct {
	PaymentsTopic string `envconfig:"DONATIONS_PUBSUB_PAYMENTS_TOPIC" default:"payment-events"`
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"DONATIONS_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"DONATIONS_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"DONATIONS_OUTBOX_MAX_ATTEMPTS" default:"10"`

	Retention time.Duration `envconfig:"DONATIONS_OUTBOX_RETENTION" default:"720h"`
}

type CronConfig struct {
	Interval time.Duration `envconfig:"DONATIONS_CRON_INTERVAL" default:"5m"`
	LockTTL  time.Duration `envconfig:"DONATIONS_CRON_LOCK_TTL" default:"4m"`
}

func (db *DBConfig) ensureDSN(useSQLite bool) error {
	if db.DSN != "" || useSQLite {
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
