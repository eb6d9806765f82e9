package transport

import (
	"math"
	"time"
)

// ReconnectStrategy defines the reconnection behavior
type ReconnectStrategy struct {
	MaxRetries    int // Zero or negative retries forever
	InitialDelay  time.Duration
	MaxDelay      time.Duration
	BackoffFactor float64
}

// FixedDelay returns a strategy that retries forever at a constant delay
func FixedDelay(delay time.Duration) *ReconnectStrategy {
	return &ReconnectStrategy{
		InitialDelay:  delay,
		MaxDelay:      delay,
		BackoffFactor: 1.0,
	}
}

// NextDelay calculates the delay for the next retry attempt
func (rs *ReconnectStrategy) NextDelay(attemptCount int) time.Duration {
	factor := rs.BackoffFactor
	if factor < 1 {
		factor = 1
	}
	delay := float64(rs.InitialDelay) * math.Pow(factor, float64(attemptCount))
	if rs.MaxDelay > 0 && delay > float64(rs.MaxDelay) {
		return rs.MaxDelay
	}
	return time.Duration(delay)
}

// ShouldRetry determines if another retry attempt should be made
func (rs *ReconnectStrategy) ShouldRetry(attemptCount int) bool {
	return rs.MaxRetries <= 0 || attemptCount < rs.MaxRetries
}
