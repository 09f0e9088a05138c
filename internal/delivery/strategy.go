package delivery

import (
	"context"
	"log/slog"
	"time"

	"github.com/sealpost/sealpost/internal/ledger"
)

// Event reports a message id that arrived in an identity's inbox.
type Event struct {
	Identity  ledger.Identity
	MessageID uint64
}

// EventHandler is invoked once per new message id. A returned error is
// logged; the id is not redelivered.
type EventHandler func(ctx context.Context, ev Event) error

// InboxSource lists inbox ids in acceptance order. Both *ledger.Ledger and
// *api.Client satisfy it.
type InboxSource interface {
	InboxIDs(ctx context.Context, id ledger.Identity) ([]uint64, error)
}

// Subscriber is an in-process notification stream.
type Subscriber interface {
	Subscribe(callback func(ledger.Event)) (unsubscribe func())
}

// Strategy defines the interface for inbox delivery mechanisms.
//
// The typical lifecycle is:
//  1. Create a strategy with NewXxxStrategy(cfg)
//  2. Call Start(ctx, identities, handler) to begin receiving events
//  3. Optionally call AddIdentity/RemoveIdentity
//  4. Call Stop() when done to release resources
type Strategy interface {
	// Start begins following the given identities. It returns immediately;
	// event delivery is asynchronous.
	Start(ctx context.Context, identities []ledger.Identity, handler EventHandler) error

	// Stop shuts the strategy down. After Stop returns, no more events are
	// delivered. Stop is idempotent.
	Stop() error

	// AddIdentity starts following another inbox.
	AddIdentity(id ledger.Identity) error

	// RemoveIdentity stops following an inbox.
	RemoveIdentity(id ledger.Identity) error

	// Name returns the strategy name for logging.
	Name() string
}

// Config holds configuration shared by all delivery strategies.
type Config struct {
	// Source lists inbox ids. Required.
	Source InboxSource

	// Subscriber is the notification stream used by LocalStrategy.
	Subscriber Subscriber

	// PollingInitialInterval is the starting interval between polls.
	// If zero, defaults to DefaultPollingInitialInterval.
	PollingInitialInterval time.Duration

	// PollingMaxBackoff is the maximum interval between polls.
	// If zero, defaults to DefaultPollingMaxBackoff.
	PollingMaxBackoff time.Duration

	// PollingBackoffMultiplier is the factor by which the interval
	// increases after each poll with no changes.
	// If zero, defaults to DefaultPollingBackoffMultiplier.
	PollingBackoffMultiplier float64

	// PollingJitterFactor is the maximum random jitter added to
	// poll intervals (as a fraction of the interval).
	// If zero, defaults to DefaultPollingJitterFactor.
	PollingJitterFactor float64

	// Logger receives handler and source errors. Nil discards.
	Logger *slog.Logger
}

// Default polling configuration values.
const (
	DefaultPollingInitialInterval   = 2 * time.Second
	DefaultPollingMaxBackoff        = 30 * time.Second
	DefaultPollingBackoffMultiplier = 1.5
	DefaultPollingJitterFactor      = 0.3
)

func (c Config) withDefaults() Config {
	if c.PollingInitialInterval <= 0 {
		c.PollingInitialInterval = DefaultPollingInitialInterval
	}
	if c.PollingMaxBackoff <= 0 {
		c.PollingMaxBackoff = DefaultPollingMaxBackoff
	}
	if c.PollingBackoffMultiplier <= 0 {
		c.PollingBackoffMultiplier = DefaultPollingBackoffMultiplier
	}
	if c.PollingJitterFactor < 0 {
		c.PollingJitterFactor = 0
	} else if c.PollingJitterFactor == 0 {
		c.PollingJitterFactor = DefaultPollingJitterFactor
	}
	if c.Logger == nil {
		c.Logger = slog.New(slog.DiscardHandler)
	}
	return c
}
