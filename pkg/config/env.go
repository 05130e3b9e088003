package config

// EnvPrefix is handed to envconfig; every field carries its full name explicitly.
const EnvPrefix = "STOREFRONT"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

const (
	EnvAppEnv                 = "STOREFRONT_APP_ENV"
	EnvPort                   = "STOREFRONT_APP_PORT"
	EnvDBDSN                  = "STOREFRONT_DB_DSN"
	EnvDBHost                 = "STOREFRONT_DB_HOST"
	EnvDBUser                 = "STOREFRONT_DB_USER"
	EnvDBName                 = "STOREFRONT_DB_NAME"
	EnvUseSQLite              = "STOREFRONT_USE_SQLITE"
	EnvRedisURL               = "STOREFRONT_REDIS_URL"
	EnvJWTSecret              = "STOREFRONT_JWT_SECRET"
	EnvJWTIssuer              = "STOREFRONT_JWT_ISSUER"
	EnvCheckoutMetadataBudget = "STOREFRONT_CHECKOUT_METADATA_BUDGET_BYTES"
	EnvPricingDefaultTaxRate  = "STOREFRONT_PRICING_DEFAULT_TAX_RATE"
	EnvPricingTaxRates        = "STOREFRONT_PRICING_TAX_RATES"
)

var discreteDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
