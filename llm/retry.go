package llm

import "time"

// RetryConfig bounds the completion retry loop.
type RetryConfig struct {
	// MaxAttempts is the total number of tries, the first included.
	MaxAttempts int

	// BackoffBase is the delay before the second attempt.
	BackoffBase time.Duration

	// BackoffMultiplier grows the delay after each failed attempt.
	BackoffMultiplier float64

	// MaxBackoff caps the delay, jitter included.
	MaxBackoff time.Duration
}

// DefaultRetryConfig returns the retry defaults: three attempts with
// exponential backoff capped at one minute.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:       3,
		BackoffBase:       1 * time.Second,
		BackoffMultiplier: 2.0,
		MaxBackoff:        60 * time.Second,
	}
}
