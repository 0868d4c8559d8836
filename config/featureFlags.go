package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// DiscountRate returns the annual discount rate used by the final-metrics stage.
// The reference design hardcoded 10%; it is now tunable per deployment.
//
// Set via env:
// - DISCOUNT_RATE=0.10
func DiscountRate() float64 {
	v := strings.TrimSpace(os.Getenv("DISCOUNT_RATE"))
	if v == "" {
		return 0.10
	}
	rate, err := strconv.ParseFloat(v, 64)
	if err != nil || rate <= -1 {
		return 0.10
	}
	return rate
}

// NoiseSpread returns the half-width of the uniform multiplicative noise applied
// to stochastic-eligible parameter groups. Default is 0.10 (factors in [0.9, 1.1]).
//
// Set via env:
// - NOISE_SPREAD=0.10
func NoiseSpread() float64 {
	v := strings.TrimSpace(os.Getenv("NOISE_SPREAD"))
	if v == "" {
		return 0.10
	}
	spread, err := strconv.ParseFloat(v, 64)
	if err != nil || spread < 0 || spread >= 1 {
		return 0.10
	}
	return spread
}

// NoiseSeed returns an explicit RNG seed for stochastic runs, for reproducing a
// run in ops/debugging. Returns (0, false) when unset, meaning "seed randomly".
//
// Set via env:
// - NOISE_SEED=12345
func NoiseSeed() (int64, bool) {
	v := strings.TrimSpace(os.Getenv("NOISE_SEED"))
	if v == "" {
		return 0, false
	}
	seed, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, false
	}
	return seed, true
}

// ResultCacheTTL is how long interactive results stay in the cache.
//
// Set via env:
// - RESULT_CACHE_TTL_SECONDS (default 3600)
func ResultCacheTTL() time.Duration {
	return time.Duration(intFromEnv("RESULT_CACHE_TTL_SECONDS", 3600)) * time.Second
}

// GracePeriodDays is the interval between a calculation being displaced and its
// detach marker. DeleteAfterDays is the further interval until hard removal.
//
// Set via env:
// - GRACE_PERIOD_DAYS (default 7)
// - DELETE_AFTER_DAYS (default 30)
func GracePeriodDays() int {
	return intFromEnv("GRACE_PERIOD_DAYS", 7)
}

func DeleteAfterDays() int {
	return intFromEnv("DELETE_AFTER_DAYS", 30)
}
