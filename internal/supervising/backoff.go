package supervising

import (
	"math"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// BackOffConfig configures the delays between restart attempts of a route.
type BackOffConfig struct {
	// Delay is the delay before the first retry.
	Delay time.Duration
	// MaxDelay caps the delay between retries. Zero means no cap.
	MaxDelay time.Duration
	// MaxElapsedTime gives up once retrying has taken this long. Zero
	// means never.
	MaxElapsedTime time.Duration
	// MaxAttempts gives up after this many retries. Zero means never.
	MaxAttempts int
	// Multiplier grows the delay after each retry. Values below 1 mean 1.
	Multiplier float64
}

// DefaultBackOff retries every two seconds, forever.
func DefaultBackOff() BackOffConfig {
	return BackOffConfig{
		Delay:      2 * time.Second,
		Multiplier: 1,
	}
}

// NewBackOff builds a fresh back-off from c.
func (c BackOffConfig) NewBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.Delay
	b.RandomizationFactor = 0
	b.Multiplier = c.Multiplier
	if b.Multiplier < 1 {
		b.Multiplier = 1
	}
	b.MaxInterval = c.MaxDelay
	if b.MaxInterval <= 0 {
		b.MaxInterval = time.Duration(math.MaxInt64)
	}
	b.MaxElapsedTime = c.MaxElapsedTime
	b.Reset()

	if c.MaxAttempts > 0 {
		return backoff.WithMaxRetries(b, uint64(c.MaxAttempts))
	}
	return b
}

func (c BackOffConfig) merge(override BackOffConfig) BackOffConfig {
	if override.Delay > 0 {
		c.Delay = override.Delay
	}
	if override.MaxDelay > 0 {
		c.MaxDelay = override.MaxDelay
	}
	if override.MaxElapsedTime > 0 {
		c.MaxElapsedTime = override.MaxElapsedTime
	}
	if override.MaxAttempts > 0 {
		c.MaxAttempts = override.MaxAttempts
	}
	if override.Multiplier > 0 {
		c.Multiplier = override.Multiplier
	}
	return c
}
