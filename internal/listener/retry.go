package listener

import (
	"math/rand"
	"time"
)

// Retry delays for settlement attempts.
// Attempt 1: 5 s, Attempt 2: 30 s, Attempt 3: 2 min,
// Attempt 4: 10 min, Attempt 5+: 30 min
var retryDelays = []time.Duration{
	5 * time.Second,
	30 * time.Second,
	2 * time.Minute,
	10 * time.Minute,
	30 * time.Minute,
}

const (
	// DefaultMaxAttempts is the default number of commit attempts per claim.
	DefaultMaxAttempts = 6

	// JitterFactor is the ±percentage of jitter applied to delays.
	JitterFactor = 0.2

	maxResubscribeDelay = 30 * time.Second
)

// NextRetryDelay returns the backoff before the next settlement attempt.
// attemptCount is the number of attempts already made, minus one.
func NextRetryDelay(attemptCount int) time.Duration {
	if attemptCount < 0 {
		attemptCount = 0
	}
	if attemptCount >= len(retryDelays) {
		attemptCount = len(retryDelays) - 1
	}
	return jitter(retryDelays[attemptCount])
}

// IsExhausted returns true if max attempts have been reached.
func IsExhausted(attemptCount, maxAttempts int) bool {
	return attemptCount >= maxAttempts
}

// resubscribeDelay doubles from one second per consecutive failure, capped at 30 s.
func resubscribeDelay(failures int) time.Duration {
	if failures < 1 {
		failures = 1
	}
	d := time.Second
	for i := 1; i < failures && d < maxResubscribeDelay; i++ {
		d *= 2
	}
	if d > maxResubscribeDelay {
		d = maxResubscribeDelay
	}
	return jitter(d)
}

func jitter(base time.Duration) time.Duration {
	jitterRange := float64(base) * JitterFactor
	return time.Duration(float64(base) + (rand.Float64()*2-1)*jitterRange)
}
