package sealpost

import (
	"context"
	"fmt"

	"github.com/sealpost/sealpost/internal/delivery"
	"github.com/sealpost/sealpost/internal/ledger"
)

// Subscription represents an active subscription that can be unsubscribed.
type Subscription interface {
	// Unsubscribe stops the subscription. It is safe to call more than once.
	Unsubscribe()
}

// MessageCallback is called once per new inbox message.
type MessageCallback func(*Message)

type watchSubscription struct {
	cancel func()
}

func (s *watchSubscription) Unsubscribe() {
	if s.cancel != nil {
		s.cancel()
	}
}

// Watch invokes fn once for every message in this identity's inbox: those
// already there when Watch is called, and every later arrival. Each
// subscription keeps its own record of delivered ids, so duplicate
// notifications are ignored and a message that arrived while nobody was
// watching still reaches the next subscriber. Backlog messages may be
// interleaved with new arrivals. Delivery stops for fn when ctx is done or
// the subscription is unsubscribed. Calls to fn are serialized and should
// not block.
func (c *Client) Watch(ctx context.Context, fn MessageCallback) (Subscription, error) {
	if fn == nil {
		return nil, fmt.Errorf("callback is required")
	}
	if err := c.checkOpen(); err != nil {
		return nil, err
	}

	sub, unsubscribe := c.subs.subscribe(fn)
	started, err := c.ensureDelivery()
	if err != nil {
		unsubscribe()
		return nil, err
	}

	stop := context.AfterFunc(ctx, unsubscribe)
	if !started {
		go c.backfill(ctx, sub)
	}
	return &watchSubscription{cancel: func() {
		stop()
		unsubscribe()
	}}, nil
}

// WaitForMessage blocks until a message matching match arrives, or ctx is
// done. A nil match accepts any message.
func (c *Client) WaitForMessage(ctx context.Context, match func(*Message) bool) (*Message, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	found := make(chan *Message, 1)
	sub, err := c.Watch(ctx, func(m *Message) {
		if match != nil && !match(m) {
			return
		}
		select {
		case found <- m:
		default:
		}
	})
	if err != nil {
		return nil, err
	}
	defer sub.Unsubscribe()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case m := <-found:
		return m, nil
	}
}

// ensureDelivery starts the delivery strategy on first use and reports
// whether this call started it. A starting strategy backfills the inbox
// itself.
func (c *Client) ensureDelivery() (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false, ErrClientClosed
	}
	if c.strategy != nil {
		return false, nil
	}

	strategy, err := c.newStrategy()
	if err != nil {
		return false, err
	}
	if err := strategy.Start(c.watchCtx, []ledger.Identity{c.Address()}, c.handleDelivery); err != nil {
		return false, fmt.Errorf("start %s delivery: %w", strategy.Name(), err)
	}
	c.logger.Info("delivery started", "strategy", strategy.Name())
	c.strategy = strategy
	return true, nil
}

// backfill hands a late subscription the inbox messages it has not seen.
func (c *Client) backfill(ctx context.Context, sub *subscription) {
	listCtx, cancel := context.WithTimeout(ctx, c.cfg.watchTimeout)
	ids, err := c.ledger.InboxIDs(listCtx, c.Address())
	cancel()
	if err != nil {
		c.logger.Warn("inbox backfill failed", "error", err)
		return
	}
	for _, id := range ids {
		if !sub.active.Load() || ctx.Err() != nil {
			return
		}
		if sub.hasSeen(id) {
			continue
		}
		if err := c.deliver(ctx, id, []*subscription{sub}); err != nil {
			c.logger.Warn("inbox backfill failed", "id", id, "error", err)
		}
	}
}

func (c *Client) newStrategy() (delivery.Strategy, error) {
	cfg := delivery.Config{
		Source:                   c.ledger,
		PollingInitialInterval:   c.cfg.pollingInitialInterval,
		PollingMaxBackoff:        c.cfg.pollingMaxBackoff,
		PollingBackoffMultiplier: c.cfg.pollingBackoffMultiplier,
		PollingJitterFactor:      c.cfg.pollingJitterFactor,
		Logger:                   c.logger,
	}
	sub, local := c.ledger.(delivery.Subscriber)

	switch c.cfg.deliveryStrategy {
	case StrategyLocal:
		if !local {
			return nil, fmt.Errorf("local delivery needs an in-process ledger")
		}
		cfg.Subscriber = sub
		return delivery.NewLocalStrategy(cfg), nil
	case StrategyPolling:
		return delivery.NewPollingStrategy(cfg), nil
	case StrategyAuto, "":
		if local {
			cfg.Subscriber = sub
			return delivery.NewLocalStrategy(cfg), nil
		}
		return delivery.NewPollingStrategy(cfg), nil
	default:
		return nil, fmt.Errorf("unknown delivery strategy %q", c.cfg.deliveryStrategy)
	}
}

// handleDelivery opens a newly delivered message and fans it out to the
// subscriptions that have not seen it.
func (c *Client) handleDelivery(ctx context.Context, ev delivery.Event) error {
	if ev.Identity != c.Address() {
		return nil
	}
	subs := c.subs.pending(ev.MessageID)
	if len(subs) == 0 {
		return nil
	}
	return c.deliver(ctx, ev.MessageID, subs)
}

// deliver opens message id once and hands it to each of subs.
func (c *Client) deliver(ctx context.Context, id uint64, subs []*subscription) error {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.watchTimeout)
	defer cancel()

	meta, err := c.ledger.Message(ctx, id)
	if err != nil {
		return wrapError(err)
	}
	if meta == nil {
		return fmt.Errorf("delivered message %d: %w", id, ErrMessageNotFound)
	}
	msg := c.open(ctx, meta)
	for _, sub := range subs {
		sub.deliver(msg)
	}
	return nil
}
