package sealpost

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/sealpost/sealpost/internal/contentstore"
	"github.com/sealpost/sealpost/internal/correlation"
	"github.com/sealpost/sealpost/internal/crypto"
	"github.com/sealpost/sealpost/internal/delivery"
	"github.com/sealpost/sealpost/internal/ledger"
	"github.com/sealpost/sealpost/internal/retry"
)

// Ledger is the ledger surface the client needs. *ledger.Ledger and the
// HTTP client in internal/api both implement it.
type Ledger interface {
	Submit(ctx context.Context, c ledger.Candidate) (*ledger.MessageMeta, error)
	RegisterSignedKey(ctx context.Context, f ledger.KeyCommitmentFields, sig ledger.Signed) (*ledger.KeyRecord, error)
	KeyRecord(ctx context.Context, owner ledger.Identity) (*ledger.KeyRecord, error)
	Message(ctx context.Context, id uint64) (*ledger.MessageMeta, error)
	InboxIDs(ctx context.Context, id ledger.Identity) ([]uint64, error)
	OutboxIDs(ctx context.Context, id ledger.Identity) ([]uint64, error)
	Nonce(ctx context.Context, sender ledger.Identity) (uint64, error)
	Now(ctx context.Context) (uint64, error)
}

// Client sends and receives messages for one identity.
type Client struct {
	ledger      Ledger
	store       contentstore.Store
	correlation correlation.Store
	keys        *Keys
	cfg         clientConfig
	logger      *slog.Logger

	mu       sync.Mutex
	closed   bool
	strategy delivery.Strategy
	subs     *subscriptionManager

	watchCtx    context.Context
	watchCancel context.CancelFunc
}

// New creates a client for keys' identity over a ledger and content store.
func New(l Ledger, store contentstore.Store, keys *Keys, opts ...Option) (*Client, error) {
	if l == nil {
		return nil, fmt.Errorf("ledger is required")
	}
	if store == nil {
		return nil, fmt.Errorf("content store is required")
	}
	if keys == nil {
		return nil, fmt.Errorf("keys are required")
	}

	cfg := clientConfig{
		concurrency:      defaultConcurrency,
		deliveryStrategy: StrategyAuto,
		watchTimeout:     defaultWatchTimeout,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.logger == nil {
		cfg.logger = slog.New(slog.DiscardHandler)
	}
	if cfg.correlation == nil {
		cfg.correlation = correlation.NewMemoryStore()
	}
	if cfg.retry == nil {
		cfg.retry = retry.Default()
	}
	if cfg.concurrency <= 0 {
		cfg.concurrency = defaultConcurrency
	}

	logger := cfg.logger.With("component", "client", "identity", keys.Address().Hex())
	watchCtx, watchCancel := context.WithCancel(context.Background())

	return &Client{
		ledger:      l,
		store:       contentstore.NewRetrying(store, cfg.retry, logger),
		correlation: cfg.correlation,
		keys:        keys,
		cfg:         cfg,
		logger:      logger,
		subs:        newSubscriptionManager(),
		watchCtx:    watchCtx,
		watchCancel: watchCancel,
	}, nil
}

// Address returns the client's identity.
func (c *Client) Address() ledger.Identity {
	return c.keys.Address()
}

// Correlation returns the store of id-to-locator records.
func (c *Client) Correlation() correlation.Store {
	return c.correlation
}

func (c *Client) checkOpen() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClientClosed
	}
	return nil
}

// PublishKey stores the current public key bundle in the content store and
// registers its digest and locator on the ledger, signed by the identity key
// over the ledger's current time.
func (c *Client) PublishKey(ctx context.Context) (*ledger.KeyRecord, error) {
	if err := c.checkOpen(); err != nil {
		return nil, err
	}

	bundle, err := crypto.NewPublicKeyBundle(c.keys.Current().Public()).Marshal()
	if err != nil {
		return nil, fmt.Errorf("encode key bundle: %w", err)
	}
	locator, err := c.store.Put(ctx, bundle)
	if err != nil {
		return nil, fmt.Errorf("store key bundle: %w", wrapError(err))
	}

	now, err := c.ledger.Now(ctx)
	if err != nil {
		return nil, wrapError(err)
	}
	f := ledger.KeyCommitmentFields{
		Owner:            c.Address(),
		PublicKeyDigest:  ledger.Hash(crypto.BundleDigest(bundle)),
		PublicKeyLocator: locator,
		Timestamp:        now,
	}
	sig, err := c.keys.SignHash(f.SigningDigest())
	if err != nil {
		return nil, err
	}
	rec, err := c.ledger.RegisterSignedKey(ctx, f, sig)
	if err != nil {
		return nil, wrapError(err)
	}
	c.logger.Info("key published", "scheme", c.keys.Current().Scheme(), "digest", rec.PublicKeyDigest.Hex())
	return rec, nil
}

// Outbox returns the ledger records of messages this identity sent.
func (c *Client) Outbox(ctx context.Context) ([]*ledger.MessageMeta, error) {
	if err := c.checkOpen(); err != nil {
		return nil, err
	}
	ids, err := c.ledger.OutboxIDs(ctx, c.Address())
	if err != nil {
		return nil, wrapError(err)
	}
	out := make([]*ledger.MessageMeta, 0, len(ids))
	for _, id := range ids {
		m, err := c.ledger.Message(ctx, id)
		if err != nil {
			return nil, wrapError(err)
		}
		if m != nil {
			out = append(out, m)
		}
	}
	return out, nil
}

// Close stops any Watch delivery and drops subscriptions. It does not
// close the ledger, the content store or the correlation store.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	strategy := c.strategy
	c.strategy = nil
	c.mu.Unlock()

	c.watchCancel()
	c.subs.clear()
	if strategy != nil {
		return strategy.Stop()
	}
	return nil
}
