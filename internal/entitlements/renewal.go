package entitlements

import (
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Subscription tiers. The tier value is also its price in USD.
const (
	TierAnnual   = "48"
	TierStarter  = "240"
	TierLifetime = "399"
)

// ErrInvalidTier is returned for an unknown subscription type.
var ErrInvalidTier = errors.New("invalid subscription type")

// LifetimeExpiry is the fixed expiry granted by the lifetime tier.
var LifetimeExpiry = time.Date(2100, time.January, 1, 0, 0, 0, 0, time.UTC)

var tierNames = map[string]string{
	TierAnnual:   "Tiny 11 Access - 1 Year",
	TierStarter:  "Tiny 11 Custom Starter",
	TierLifetime: "Tiny 11 Elite - Lifetime",
}

// NormalizeTier trims the tier and rejects unknown values.
func NormalizeTier(tier string) (string, error) {
	tier = strings.TrimSpace(tier)
	if _, ok := tierNames[tier]; !ok {
		return "", ErrInvalidTier
	}
	return tier, nil
}

// TierPrice returns the USD price charged for tier.
func TierPrice(tier string) (decimal.Decimal, error) {
	tier, err := NormalizeTier(tier)
	if err != nil {
		return decimal.Zero, err
	}
	return decimal.RequireFromString(tier), nil
}

// TierName returns the display name used as the order description.
func TierName(tier string) (string, error) {
	tier, err := NormalizeTier(tier)
	if err != nil {
		return "", err
	}
	return tierNames[tier], nil
}

// NextExpiry computes the expiry after purchasing tier. Annual tiers extend
// from the later of now and the current expiry so renewals never shorten access.
func NextExpiry(tier string, current *time.Time, now time.Time) (time.Time, error) {
	tier, err := NormalizeTier(tier)
	if err != nil {
		return time.Time{}, err
	}
	if tier == TierLifetime {
		return LifetimeExpiry, nil
	}
	base := now.UTC()
	if current != nil && current.After(base) {
		base = current.UTC()
	}
	return base.AddDate(1, 0, 0), nil
}
