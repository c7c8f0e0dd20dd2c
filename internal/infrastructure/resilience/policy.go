package resilience

import "time"

// Config controls retries and the per-operation circuit breaker.
//
// Exponential waits grow as RetryInitialBackoff * RetryMultiplier^(attempt-1)
// and are capped at RetryMaxBackoff. Fixed waits always use RetryInitialBackoff.
// Zero fields fall back to the analysis defaults.
type Config struct {
	RetryMaxAttempts    int
	RetryInitialBackoff time.Duration
	RetryMaxBackoff     time.Duration
	RetryMultiplier     float64

	BreakerEnabled          bool
	BreakerMinRequests      uint32
	BreakerFailureRatio     float64
	BreakerOpenTimeout      time.Duration
	BreakerHalfOpenMaxCalls uint32
}

var defaults = Config{
	RetryMaxAttempts:    3,
	RetryInitialBackoff: 2 * time.Second,
	RetryMaxBackoff:     time.Minute,
	RetryMultiplier:     2,

	BreakerEnabled:          true,
	BreakerMinRequests:      10,
	BreakerFailureRatio:     0.5,
	BreakerOpenTimeout:      30 * time.Second,
	BreakerHalfOpenMaxCalls: 2,
}

// AnalysisPolicy retries the analysis backend up to maxRetries times in
// total, waiting baseDelay, 2*baseDelay, 4*baseDelay... between attempts.
func AnalysisPolicy(maxRetries int, baseDelay time.Duration, breakerEnabled bool) Config {
	cfg := defaults
	cfg.RetryMaxAttempts = maxRetries
	cfg.RetryInitialBackoff = baseDelay
	cfg.BreakerEnabled = breakerEnabled
	return cfg
}

// EnrichmentPolicy runs an operation once. Enrichment has its own fallback,
// so only the breaker is kept to stop hammering a failing provider.
func EnrichmentPolicy(breakerEnabled bool) Config {
	cfg := defaults
	cfg.RetryMaxAttempts = 1
	cfg.BreakerEnabled = breakerEnabled
	return cfg
}

// PublishPolicy suits broker publishes: a few quick retries across a
// reconnect, then the breaker.
func PublishPolicy() Config {
	return Config{
		RetryMaxAttempts:        3,
		RetryInitialBackoff:     100 * time.Millisecond,
		RetryMaxBackoff:         2 * time.Second,
		RetryMultiplier:         4,
		BreakerEnabled:          true,
		BreakerMinRequests:      5,
		BreakerFailureRatio:     0.6,
		BreakerOpenTimeout:      10 * time.Second,
		BreakerHalfOpenMaxCalls: 1,
	}
}

func (c Config) normalize() Config {
	out := c
	if out.RetryMaxAttempts <= 0 {
		out.RetryMaxAttempts = defaults.RetryMaxAttempts
	}
	out.RetryInitialBackoff = max(out.RetryInitialBackoff, 0)
	if out.RetryMaxBackoff <= 0 {
		out.RetryMaxBackoff = defaults.RetryMaxBackoff
	}
	out.RetryMaxBackoff = max(out.RetryMaxBackoff, out.RetryInitialBackoff)
	if out.RetryMultiplier < 1 {
		out.RetryMultiplier = defaults.RetryMultiplier
	}

	if out.BreakerMinRequests == 0 {
		out.BreakerMinRequests = defaults.BreakerMinRequests
	}
	if out.BreakerFailureRatio <= 0 || out.BreakerFailureRatio > 1 {
		out.BreakerFailureRatio = defaults.BreakerFailureRatio
	}
	if out.BreakerOpenTimeout <= 0 {
		out.BreakerOpenTimeout = defaults.BreakerOpenTimeout
	}
	if out.BreakerHalfOpenMaxCalls == 0 {
		out.BreakerHalfOpenMaxCalls = defaults.BreakerHalfOpenMaxCalls
	}
	return out
}
