package config

import (
	"fmt"
	"net/url"
	"strings"

	"go.uber.org/multierr"
)

// Validate checks cross-field requirements envconfig cannot express. All
// problems are reported together.
func (c *Config) Validate() error {
	var errs error

	if c.Redis.URL == "" && c.Redis.Address == "" {
		errs = multierr.Append(errs, fmt.Errorf("either %s or %s is required", EnvRedisURL, EnvRedisAddr))
	}

	if strings.TrimSpace(c.EmailToken.Secret) == "" {
		errs = multierr.Append(errs, fmt.Errorf("%s must not be blank", EnvEmailTokenSecret))
	}

	mode := strings.TrimSpace(c.PayPal.Mode)
	switch {
	case strings.EqualFold(mode, PayPalModeLive):
		if c.PayPal.ClientID == "" || c.PayPal.ClientSecret == "" {
			errs = multierr.Append(errs, fmt.Errorf("%s and %s are required in %s mode", EnvPayPalClientID, EnvPayPalClientSecret, PayPalModeLive))
		}
	case strings.EqualFold(mode, PayPalModeSandbox):
		if c.PayPal.SandboxClientID == "" || c.PayPal.SandboxClientSecret == "" {
			errs = multierr.Append(errs, fmt.Errorf("%s and %s are required in %s mode", EnvPayPalSandboxClientID, EnvPayPalSandboxClientSecret, PayPalModeSandbox))
		}
	default:
		errs = multierr.Append(errs, fmt.Errorf("%s must be %q or %q, got %q", EnvPayPalMode, PayPalModeLive, PayPalModeSandbox, mode))
	}

	if u, err := url.Parse(c.Site.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		errs = multierr.Append(errs, fmt.Errorf("%s must be an absolute url, got %q", EnvSiteBaseURL, c.Site.BaseURL))
	}

	if c.Session.Enabled() && len(strings.TrimSpace(c.Session.Secret)) < 32 {
		errs = multierr.Append(errs, fmt.Errorf("%s must be at least 32 characters", EnvSessionSecret))
	}

	return errs
}
