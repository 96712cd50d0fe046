package dispatch

import (
	"time"

	"github.com/cenkalti/backoff/v5"
)

// nextRetryDelay returns how long to wait before the (attempts+1)'th
// delivery attempt, capped at maxBackoff. attempts is the number of
// attempts already made (1 before the first retry).
func nextRetryDelay(attempts int, maxBackoff time.Duration) time.Duration {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxInterval = maxBackoff
	b.Multiplier = 2.0
	b.RandomizationFactor = 0.2

	var delay time.Duration
	for i := 0; i <= attempts; i++ {
		delay = b.NextBackOff()
	}
	if delay > maxBackoff {
		delay = maxBackoff
	}
	return delay
}
