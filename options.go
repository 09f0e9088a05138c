package sealpost

import (
	"log/slog"
	"time"

	"github.com/sealpost/sealpost/internal/correlation"
	"github.com/sealpost/sealpost/internal/retry"
)

// DeliveryStrategy specifies how Watch learns about new messages.
type DeliveryStrategy string

const (
	// StrategyAuto uses the ledger's notification stream when the ledger is
	// in-process, polling otherwise.
	StrategyAuto DeliveryStrategy = "auto"
	// StrategyLocal subscribes to an in-process ledger.
	StrategyLocal DeliveryStrategy = "local"
	// StrategyPolling lists the inbox with adaptive backoff.
	StrategyPolling DeliveryStrategy = "polling"
)

const (
	defaultConcurrency  = 8
	defaultWatchTimeout = 30 * time.Second
)

// clientConfig holds configuration for the client.
type clientConfig struct {
	logger           *slog.Logger
	correlation      correlation.Store
	retry            *retry.Config
	signed           bool
	concurrency      int
	deliveryStrategy DeliveryStrategy
	watchTimeout     time.Duration

	pollingInitialInterval   time.Duration
	pollingMaxBackoff        time.Duration
	pollingBackoffMultiplier float64
	pollingJitterFactor      float64
}

// sendConfig holds per-call Send configuration.
type sendConfig struct {
	signed *bool
}

// Option configures the client.
type Option func(*clientConfig)

// SendOption configures a single Send.
type SendOption func(*sendConfig)

// WithLogger sets the structured logger. Default: discard.
func WithLogger(logger *slog.Logger) Option {
	return func(c *clientConfig) {
		c.logger = logger
	}
}

// WithCorrelationStore sets where id-to-locator records are kept.
// Default: in memory.
func WithCorrelationStore(s correlation.Store) Option {
	return func(c *clientConfig) {
		c.correlation = s
	}
}

// WithContentRetry sets the bounded retry policy for content store and key
// lookups. Default: retry.Default().
func WithContentRetry(cfg *retry.Config) Option {
	return func(c *clientConfig) {
		c.retry = cfg
	}
}

// WithSigning makes every Send signed unless overridden per call.
func WithSigning(signed bool) Option {
	return func(c *clientConfig) {
		c.signed = signed
	}
}

// WithConcurrency bounds how many messages Receive opens at once.
// Default: 8
func WithConcurrency(n int) Option {
	return func(c *clientConfig) {
		c.concurrency = n
	}
}

// WithDeliveryStrategy sets the Watch delivery strategy.
func WithDeliveryStrategy(strategy DeliveryStrategy) Option {
	return func(c *clientConfig) {
		c.deliveryStrategy = strategy
	}
}

// WithWatchTimeout bounds fetching and opening one message after a
// notification. Default: 30 seconds
func WithWatchTimeout(timeout time.Duration) Option {
	return func(c *clientConfig) {
		c.watchTimeout = timeout
	}
}

// WithPollingInitialInterval sets the initial polling interval.
// Default: 2 seconds
func WithPollingInitialInterval(interval time.Duration) Option {
	return func(c *clientConfig) {
		c.pollingInitialInterval = interval
	}
}

// WithPollingMaxBackoff sets the maximum polling backoff interval.
// Default: 30 seconds
func WithPollingMaxBackoff(maxBackoff time.Duration) Option {
	return func(c *clientConfig) {
		c.pollingMaxBackoff = maxBackoff
	}
}

// WithPollingBackoffMultiplier sets the backoff multiplier for polling.
// Default: 1.5
func WithPollingBackoffMultiplier(multiplier float64) Option {
	return func(c *clientConfig) {
		c.pollingBackoffMultiplier = multiplier
	}
}

// WithPollingJitterFactor sets the jitter factor for polling intervals.
// A negative factor disables jitter. Default: 0.3 (30%)
func WithPollingJitterFactor(factor float64) Option {
	return func(c *clientConfig) {
		c.pollingJitterFactor = factor
	}
}

// WithSigned overrides the client's signing mode for one Send.
func WithSigned(signed bool) SendOption {
	return func(c *sendConfig) {
		c.signed = &signed
	}
}
