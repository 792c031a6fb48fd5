package lock

import (
	"errors"
	"time"
)

const (
	// DefaultKeyPrefix namespaces every lock key in the store.
	DefaultKeyPrefix = "locks:account:"

	defaultTTL         = 180 * time.Second
	regtestTTL         = 10 * time.Second
	defaultRetryCount  = 5
	defaultRetryDelay  = 400 * time.Millisecond
	defaultRetryJitter = 200 * time.Millisecond
	defaultDrift       = 0.01
	defaultNodeTimeout = 500 * time.Millisecond
	clockDriftFloor    = 2 * time.Millisecond
)

// Config captures the tunables of the quorum lock.
type Config struct {
	// TTL is used when Acquire or WithLock receive a non-positive ttl.
	TTL time.Duration
	// RetryCount is the number of retries after the first attempt.
	RetryCount int
	// RetryDelay is the base wait between attempts.
	RetryDelay time.Duration
	// RetryJitter is the upper bound of the random time added to RetryDelay.
	RetryJitter time.Duration
	// DriftFactor is the expected clock drift as a fraction of the ttl.
	DriftFactor float64
	// AutoExtendThreshold enables automatic extension inside WithLock when the
	// remaining validity drops below it. Zero disables auto extension.
	AutoExtendThreshold time.Duration
	// NodeTimeout bounds a single round trip to one store node.
	NodeTimeout time.Duration
	// KeyPrefix is prepended to every resource path.
	KeyPrefix string
}

// DefaultConfig returns the production settings. Regtest networks use a short
// ttl so crashed test runs free their locks quickly.
func DefaultConfig(network string) Config {
	ttl := defaultTTL
	if network == "regtest" {
		ttl = regtestTTL
	}
	return Config{
		TTL:         ttl,
		RetryCount:  defaultRetryCount,
		RetryDelay:  defaultRetryDelay,
		RetryJitter: defaultRetryJitter,
		DriftFactor: defaultDrift,
		NodeTimeout: defaultNodeTimeout,
		KeyPrefix:   DefaultKeyPrefix,
	}
}

func (c Config) validate() error {
	switch {
	case c.TTL <= 0:
		return errors.New("lock: ttl must be positive")
	case c.RetryCount < 0:
		return errors.New("lock: retry count cannot be negative")
	case c.RetryDelay < 0 || c.RetryJitter < 0:
		return errors.New("lock: retry delay and jitter cannot be negative")
	case c.DriftFactor < 0 || c.DriftFactor >= 1:
		return errors.New("lock: drift factor must be in [0, 1)")
	case c.AutoExtendThreshold < 0:
		return errors.New("lock: auto extend threshold cannot be negative")
	}
	return nil
}

func (c Config) withDefaults() Config {
	if c.NodeTimeout <= 0 {
		c.NodeTimeout = defaultNodeTimeout
	}
	return c
}

// drift is the validity reduction applied to a lock of the given ttl.
func (c Config) drift(ttl time.Duration) time.Duration {
	return time.Duration(float64(ttl)*c.DriftFactor) + clockDriftFloor
}
