package queue

import (
	"math/rand/v2"
	"time"
)

// backoffDelay computes the delay before retry attempt n (n >= 1):
// min(maxDelay, baseDelay * 2^(n-1)), then ±25% uniform jitter, clamped back
// to [0, maxDelay]. Exponential growth spaces out re-attempts against a
// struggling pipeline; jitter decorrelates jobs that failed together.
func backoffDelay(baseDelay, maxDelay time.Duration, attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}

	delay := baseDelay
	for i := 1; i < attempt && delay < maxDelay; i++ {
		delay *= 2
	}
	if delay > maxDelay {
		delay = maxDelay
	}

	// factor in [0.75, 1.25)
	factor := 0.75 + rand.Float64()*0.5
	delay = time.Duration(float64(delay) * factor)

	if delay < 0 {
		delay = 0
	}
	if delay > maxDelay {
		delay = maxDelay
	}
	return delay
}
