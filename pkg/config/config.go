package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App            AppConfig
	DB             DBConfig
	Redis          RedisConfig
	EmailToken     EmailTokenConfig
	PayPal         PayPalConfig
	Site           SiteConfig
	Session        SessionConfig
	RateLimit      RateLimitConfig
	Reconciliation ReconciliationConfig
	Catalog        CatalogConfig
	CORS           CORSConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"TINY11_APP_ENV" required:"true"`
	Port         string `envconfig:"TINY11_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"TINY11_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"TINY11_LOG_WARN_STACK" default:"false"`
	AutoMigrate  bool   `envconfig:"TINY11_AUTO_MIGRATE" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type DBConfig struct {
	DSN string `envconfig:"TINY11_DB_DSN"`

	LegacyHost     string `envconfig:"TINY11_DB_HOST"`
	LegacyPort     int    `envconfig:"TINY11_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"TINY11_DB_USER"`
	LegacyPassword string `envconfig:"TINY11_DB_PASSWORD"`
	LegacyName     string `envconfig:"TINY11_DB_NAME"`
	LegacySSLMode  string `envconfig:"TINY11_DB_SSLMODE" default:"require"`

	MaxOpenConns    int           `envconfig:"TINY11_DB_MAX_OPEN_CONNS" default:"10"`
	MaxIdleConns    int           `envconfig:"TINY11_DB_MAX_IDLE_CONNS" default:"5"`
	ConnMaxLifetime time.Duration `envconfig:"TINY11_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"TINY11_DB_CONN_MAX_IDLE_TIME" default:"10m"`
	SlowQuery       time.Duration `envconfig:"TINY11_DB_SLOW_QUERY" default:"500ms"`
}

type RedisConfig struct {
	URL          string        `envconfig:"TINY11_REDIS_URL"`
	Address      string        `envconfig:"TINY11_REDIS_ADDR"`
	Password     string        `envconfig:"TINY11_REDIS_PASSWORD"`
	DB           int           `envconfig:"TINY11_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"TINY11_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"TINY11_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"TINY11_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"TINY11_REDIS_READ_TIMEOUT" default:"3s"`
	WriteTimeout time.Duration `envconfig:"TINY11_REDIS_WRITE_TIMEOUT" default:"3s"`
}

// EmailTokenConfig holds the secret the redirect email token key is derived from.
type EmailTokenConfig struct {
	Secret string `envconfig:"TINY11_ENCRYPT_EMAIL_KEY" required:"true"`
}

type PayPalConfig struct {
	Mode                string        `envconfig:"TINY11_PAYPAL_MODE" default:"Sandbox"`
	ClientID            string        `envconfig:"TINY11_PAYPAL_CLIENT_ID"`
	ClientSecret        string        `envconfig:"TINY11_PAYPAL_CLIENT_SECRET"`
	SandboxClientID     string        `envconfig:"TINY11_PAYPAL_CLIENT_ID_SANDBOX"`
	SandboxClientSecret string        `envconfig:"TINY11_PAYPAL_CLIENT_SECRET_SANDBOX"`
	BaseURLOverride     string        `envconfig:"TINY11_PAYPAL_BASE_URL"`
	BrandName           string        `envconfig:"TINY11_PAYPAL_BRAND_NAME" default:"Tiny 11"`
	Currency            string        `envconfig:"TINY11_PAYPAL_CURRENCY" default:"USD"`
	Timeout             time.Duration `envconfig:"TINY11_PAYPAL_TIMEOUT" default:"20s"`
}

// IsLive reports whether live credentials are selected.
func (p PayPalConfig) IsLive() bool {
	return strings.EqualFold(strings.TrimSpace(p.Mode), PayPalModeLive)
}

// Credentials returns the client id and secret for the selected mode.
func (p PayPalConfig) Credentials() (string, string) {
	if p.IsLive() {
		return strings.TrimSpace(p.ClientID), strings.TrimSpace(p.ClientSecret)
	}
	return strings.TrimSpace(p.SandboxClientID), strings.TrimSpace(p.SandboxClientSecret)
}

type SiteConfig struct {
	BaseURL      string `envconfig:"TINY11_SITE_BASE_URL" required:"true"`
	SupportEmail string `envconfig:"TINY11_SUPPORT_EMAIL" default:"support@tiny11.ch"`
}

// SessionConfig enables verification of identity-provider session tokens when a
// secret is set.
type SessionConfig struct {
	Secret string `envconfig:"TINY11_SESSION_SECRET"`
	Issuer string `envconfig:"TINY11_SESSION_ISSUER"`
}

func (s SessionConfig) Enabled() bool {
	return strings.TrimSpace(s.Secret) != ""
}

type RateLimitConfig struct {
	LicenseWindow     time.Duration `envconfig:"TINY11_RATE_LIMIT_LICENSE_WINDOW" default:"1m"`
	LicenseIPLimit    int           `envconfig:"TINY11_RATE_LIMIT_LICENSE_IP_LIMIT" default:"30"`
	LicenseEmailLimit int           `envconfig:"TINY11_RATE_LIMIT_LICENSE_EMAIL_LIMIT" default:"10"`
	OrderWindow       time.Duration `envconfig:"TINY11_RATE_LIMIT_ORDER_WINDOW" default:"1m"`
	OrderIPLimit      int           `envconfig:"TINY11_RATE_LIMIT_ORDER_IP_LIMIT" default:"20"`
	OrderEmailLimit   int           `envconfig:"TINY11_RATE_LIMIT_ORDER_EMAIL_LIMIT" default:"10"`
}

type ReconciliationConfig struct {
	InFlightTTL time.Duration `envconfig:"TINY11_RECONCILIATION_INFLIGHT_TTL" default:"2m"`
}

type CatalogConfig struct {
	CacheTTL time.Duration `envconfig:"TINY11_CATALOG_CACHE_TTL" default:"5m"`
}

type CORSConfig struct {
	AllowedOrigins []string `envconfig:"TINY11_CORS_ALLOWED_ORIGINS" default:"http://localhost:3000,https://tiny11.ch,https://www.tiny11.ch"`
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
