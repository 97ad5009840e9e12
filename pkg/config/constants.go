package config

const EnvPrefix = "TINY11"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	PayPalModeLive    = "Live"
	PayPalModeSandbox = "Sandbox"
)

const (
	EnvAppEnv   = "TINY11_APP_ENV"
	EnvPort     = "TINY11_APP_PORT"
	EnvLogLevel = "TINY11_LOG_LEVEL"

	EnvDBDSN  = "TINY11_DB_DSN"
	EnvDBHost = "TINY11_DB_HOST"
	EnvDBUser = "TINY11_DB_USER"
	EnvDBName = "TINY11_DB_NAME"

	EnvRedisURL  = "TINY11_REDIS_URL"
	EnvRedisAddr = "TINY11_REDIS_ADDR"

	EnvEmailTokenSecret = "TINY11_ENCRYPT_EMAIL_KEY"

	EnvPayPalMode                = "TINY11_PAYPAL_MODE"
	EnvPayPalClientID            = "TINY11_PAYPAL_CLIENT_ID"
	EnvPayPalClientSecret        = "TINY11_PAYPAL_CLIENT_SECRET"
	EnvPayPalSandboxClientID     = "TINY11_PAYPAL_CLIENT_ID_SANDBOX"
	EnvPayPalSandboxClientSecret = "TINY11_PAYPAL_CLIENT_SECRET_SANDBOX"

	EnvSiteBaseURL   = "TINY11_SITE_BASE_URL"
	EnvSessionSecret = "TINY11_SESSION_SECRET"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
