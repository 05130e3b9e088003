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
	FeatureFlags  FeatureFlagsConfig
	Stripe        StripeConfig
	Checkout      CheckoutConfig
	Reconcile     ReconcileConfig
	Pricing       PricingConfig
	Notifications NotificationsConfig
	Realtime      RealtimeConfig
	Cron          CronConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if cfg.FeatureFlags.UseSQLite {
		cfg.DB.Driver = "sqlite"
	}
	if err := cfg.DB.ensureDSN(cfg.FeatureFlags.UseSQLite); err != nil {
		return nil, err
	}
	if err := cfg.Checkout.validate(); err != nil {
		return nil, err
	}
	if _, err := cfg.Pricing.TaxRateTable(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"STOREFRONT_APP_ENV" required:"true"`
	Port         string `envconfig:"STOREFRONT_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"STOREFRONT_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"STOREFRONT_LOG_WARN_STACK" default:"false"`
	LogFormat    string `envconfig:"STOREFRONT_LOG_FORMAT"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd) || strings.EqualFold(a.Env, "production")
}

type ServiceConfig struct {
	Kind string `envconfig:"STOREFRONT_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"STOREFRONT_DB_DSN"`
	Driver string `envconfig:"STOREFRONT_DB_DRIVER" default:"postgres"`

	Host     string `envconfig:"STOREFRONT_DB_HOST"`
	Port     int    `envconfig:"STOREFRONT_DB_PORT" default:"5432"`
	User     string `envconfig:"STOREFRONT_DB_USER"`
	Password string `envconfig:"STOREFRONT_DB_PASSWORD"`
	Name     string `envconfig:"STOREFRONT_DB_NAME"`
	SSLMode  string `envconfig:"STOREFRONT_DB_SSLMODE" default:"disable"`

	SQLitePath string `envconfig:"STOREFRONT_SQLITE_PATH" default:"storefront.db"`

	MaxOpenConns    int           `envconfig:"STOREFRONT_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"STOREFRONT_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"STOREFRONT_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"STOREFRONT_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"STOREFRONT_REDIS_URL" required:"true"`
	Address      string        `envconfig:"STOREFRONT_REDIS_ADDR"`
	Password     string        `envconfig:"STOREFRONT_REDIS_PASSWORD"`
	DB           int           `envconfig:"STOREFRONT_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"STOREFRONT_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"STOREFRONT_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"STOREFRONT_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"STOREFRONT_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"STOREFRONT_REDIS_WRITE_TIMEOUT" default:"5s"`
}

// JWTConfig verifies operator tokens minted by the auth service.
type JWTConfig struct {
	Secret            string `envconfig:"STOREFRONT_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"STOREFRONT_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"STOREFRONT_JWT_EXPIRATION_MINUTES" default:"60"`
}

type FeatureFlagsConfig struct {
	UseSQLite   bool `envconfig:"STOREFRONT_USE_SQLITE" default:"false"`
	AutoMigrate bool `envconfig:"STOREFRONT_AUTO_MIGRATE" default:"false"`
}

type StripeConfig struct {
	APIKey string `envconfig:"STOREFRONT_STRIPE_API_KEY"`
	Secret string `envconfig:"STOREFRONT_STRIPE_SECRET"`
	Env    string `envconfig:"STOREFRONT_STRIPE_ENV" default:"test"`

	WebhookIdempotencyTTL time.Duration `envconfig:"STOREFRONT_STRIPE_WEBHOOK_IDEMPOTENCY_TTL" default:"72h"`
	WebhookInFlightTTL    time.Duration `envconfig:"STOREFRONT_STRIPE_WEBHOOK_INFLIGHT_TTL" default:"2m"`
}

// Environment returns the normalized Stripe environment (test/live).
func (s StripeConfig) Environment() string {
	env := strings.TrimSpace(strings.ToLower(s.Env))
	if env == "" {
		return "test"
	}
	return env
}

// CheckoutConfig bounds what the buyer-side flow attaches to a payment.
type CheckoutConfig struct {
	MetadataBudgetBytes int    `envconfig:"STOREFRONT_CHECKOUT_METADATA_BUDGET_BYTES" default:"500"`
	DefaultCurrency     string `envconfig:"STOREFRONT_CHECKOUT_DEFAULT_CURRENCY" default:"USD"`

	RateLimitWindow     time.Duration `envconfig:"STOREFRONT_CHECKOUT_RATE_LIMIT_WINDOW" default:"1m"`
	RateLimitIPLimit    int           `envconfig:"STOREFRONT_CHECKOUT_RATE_LIMIT_IP" default:"30"`
	RateLimitEmailLimit int           `envconfig:"STOREFRONT_CHECKOUT_RATE_LIMIT_EMAIL" default:"10"`
	IdempotencyTTL      time.Duration `envconfig:"STOREFRONT_CHECKOUT_IDEMPOTENCY_TTL" default:"24h"`
}

func (c CheckoutConfig) validate() error {
	if c.MetadataBudgetBytes <= 0 {
		return fmt.Errorf("%s must be positive", EnvCheckoutMetadataBudget)
	}
	return nil
}

type ReconcileConfig struct {
	LookupTimeout        time.Duration `envconfig:"STOREFRONT_RECONCILE_LOOKUP_TIMEOUT" default:"2s"`
	LookupAttempts       int           `envconfig:"STOREFRONT_RECONCILE_LOOKUP_ATTEMPTS" default:"3"`
	LookupBackoff        time.Duration `envconfig:"STOREFRONT_RECONCILE_LOOKUP_BACKOFF" default:"50ms"`
	DeductionConcurrency int           `envconfig:"STOREFRONT_RECONCILE_DEDUCTION_CONCURRENCY" default:"4"`
	StockUpdateAttempts  int           `envconfig:"STOREFRONT_RECONCILE_STOCK_UPDATE_ATTEMPTS" default:"5"`
}

// PricingConfig drives the fallback tax/shipping computation used only when
// payment metadata omits those values.
type PricingConfig struct {
	DefaultTaxRate             string            `envconfig:"STOREFRONT_PRICING_DEFAULT_TAX_RATE" default:"0"`
	TaxRates                   map[string]string `envconfig:"STOREFRONT_PRICING_TAX_RATES"`
	FlatShippingCents          int64             `envconfig:"STOREFRONT_PRICING_FLAT_SHIPPING_CENTS" default:"0"`
	FreeShippingThresholdCents int64             `envconfig:"STOREFRONT_PRICING_FREE_SHIPPING_THRESHOLD_CENTS" default:"0"`
}

// TaxRateTable parses the configured rates keyed by upper-case country code.
// The empty key holds the default rate.
func (p PricingConfig) TaxRateTable() (map[string]decimal.Decimal, error) {
	table := map[string]decimal.Decimal{}
	def := strings.TrimSpace(p.DefaultTaxRate)
	if def == "" {
		def = "0"
	}
	rate, err := decimal.NewFromString(def)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", EnvPricingDefaultTaxRate, err)
	}
	table[""] = rate
	for country, raw := range p.TaxRates {
		parsed, err := decimal.NewFromString(strings.TrimSpace(raw))
		if err != nil {
			return nil, fmt.Errorf("parsing tax rate for %q: %w", country, err)
		}
		if parsed.IsNegative() {
			return nil, fmt.Errorf("tax rate for %q must not be negative", country)
		}
		table[strings.ToUpper(strings.TrimSpace(country))] = parsed
	}
	return table, nil
}

type NotificationsConfig struct {
	PushTimeout      time.Duration `envconfig:"STOREFRONT_NOTIFICATIONS_PUSH_TIMEOUT" default:"2s"`
	ArchiveAfterDays int           `envconfig:"STOREFRONT_NOTIFICATIONS_ARCHIVE_AFTER_DAYS" default:"30"`
}

type RealtimeConfig struct {
	WriteTimeout   time.Duration `envconfig:"STOREFRONT_REALTIME_WRITE_TIMEOUT" default:"5s"`
	PingInterval   time.Duration `envconfig:"STOREFRONT_REALTIME_PING_INTERVAL" default:"30s"`
	AllowedOrigins []string      `envconfig:"STOREFRONT_REALTIME_ALLOWED_ORIGINS"`
}

// CronConfig drives cmd/cron-worker.
type CronConfig struct {
	Interval           time.Duration `envconfig:"STOREFRONT_CRON_INTERVAL" default:"15m"`
	LockTTL            time.Duration `envconfig:"STOREFRONT_CRON_LOCK_TTL" default:"10m"`
	StockRecoveryGrace time.Duration `envconfig:"STOREFRONT_CRON_STOCK_RECOVERY_GRACE" default:"10m"`
	StockRecoveryBatch int           `envconfig:"STOREFRONT_CRON_STOCK_RECOVERY_BATCH" default:"50"`
}

func (db *DBConfig) ensureDSN(useSQLite bool) error {
	if db.DSN != "" || useSQLite {
		return nil
	}

	missing := []string{}
	values := map[string]string{
		EnvDBHost: db.Host,
		EnvDBUser: db.User,
		EnvDBName: db.Name,
	}
	for _, env := range discreteDBEnvVars {
		if values[env] == "" {
			missing = append(missing, env)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("either %s or %s are required", EnvDBDSN, strings.Join(missing, ", "))
	}

	userInfo := url.User(db.User)
	if db.Password != "" {
		userInfo = url.UserPassword(db.User, db.Password)
	}

	u := &url.URL{
		Scheme: "postgres",
		User:   userInfo,
		Host:   fmt.Sprintf("%s:%d", db.Host, db.Port),
		Path:   db.Name,
	}

	if db.SSLMode != "" {
		q := u.Query()
		q.Set("sslmode", db.SSLMode)
		u.RawQuery = q.Encode()
	}

	db.DSN = u.String()
	return nil
}
