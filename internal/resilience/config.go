package resilience

import (
	"time"
)

// FromBreakerConfig converts config values to a CircuitBreakerConfig. It
// returns false when threshold <= 0, meaning no breaker should be used.
func FromBreakerConfig(threshold, resetSecs int) (CircuitBreakerConfig, bool) {
	if threshold <= 0 {
		return CircuitBreakerConfig{}, false
	}
	cfg := DefaultCircuitBreakerConfig()
	cfg.FailureThreshold = threshold
	if resetSecs > 0 {
		cfg.ResetTimeout = time.Duration(resetSecs) * time.Second
	}
	return cfg, true
}
