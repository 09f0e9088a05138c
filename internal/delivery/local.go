package delivery

import (
	"context"
	"errors"
	"sync"

	"github.com/sealpost/sealpost/internal/ledger"
)

// LocalStrategy delivers ids from an in-process ledger's notification
// stream. Ledger callbacks only enqueue; a worker goroutine runs the
// handler so a slow handler never stalls submissions.
type LocalStrategy struct {
	cfg Config

	mu          sync.Mutex
	identities  map[ledger.Identity]map[uint64]struct{}
	queue       []Event
	handler     EventHandler
	unsubscribe func()
	cancel      context.CancelFunc
	done        chan struct{}
	signal      chan struct{}
	started     bool
}

// NewLocalStrategy creates a strategy over cfg.Subscriber. cfg.Source is
// used to report messages already present when an identity is added.
func NewLocalStrategy(cfg Config) *LocalStrategy {
	return &LocalStrategy{
		cfg:        cfg.withDefaults(),
		identities: make(map[ledger.Identity]map[uint64]struct{}),
		signal:     make(chan struct{}, 1),
	}
}

// Name returns the strategy name.
func (l *LocalStrategy) Name() string {
	return "local"
}

// Start subscribes to the ledger and reports existing inbox contents.
func (l *LocalStrategy) Start(ctx context.Context, identities []ledger.Identity, handler EventHandler) error {
	if l.cfg.Subscriber == nil {
		return errors.New("delivery: local strategy requires a subscriber")
	}

	l.mu.Lock()
	if l.started {
		l.mu.Unlock()
		return errors.New("delivery: strategy already started")
	}
	l.started = true
	l.handler = handler
	for _, id := range identities {
		l.identities[id] = make(map[uint64]struct{})
	}
	ctx, l.cancel = context.WithCancel(ctx)
	l.done = make(chan struct{})
	l.mu.Unlock()

	// Subscribe before backfilling so nothing falls between the two.
	unsubscribe := l.cfg.Subscriber.Subscribe(l.onEvent)
	l.mu.Lock()
	l.unsubscribe = unsubscribe
	l.mu.Unlock()

	for _, id := range identities {
		l.backfill(ctx, id)
	}

	go l.run(ctx)
	return nil
}

// Stop unsubscribes and waits for the worker to exit. Queued but
// undelivered events are dropped.
func (l *LocalStrategy) Stop() error {
	l.mu.Lock()
	if !l.started {
		l.mu.Unlock()
		return nil
	}
	l.started = false
	unsubscribe, cancel, done := l.unsubscribe, l.cancel, l.done
	l.queue = nil
	l.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}
	cancel()
	<-done
	return nil
}

// AddIdentity follows another inbox.
func (l *LocalStrategy) AddIdentity(id ledger.Identity) error {
	l.mu.Lock()
	if _, ok := l.identities[id]; ok {
		l.mu.Unlock()
		return nil
	}
	l.identities[id] = make(map[uint64]struct{})
	started := l.started
	l.mu.Unlock()

	if started {
		l.backfill(context.Background(), id)
	}
	return nil
}

// RemoveIdentity stops following an inbox.
func (l *LocalStrategy) RemoveIdentity(id ledger.Identity) error {
	l.mu.Lock()
	delete(l.identities, id)
	l.mu.Unlock()
	return nil
}

func (l *LocalStrategy) backfill(ctx context.Context, id ledger.Identity) {
	if l.cfg.Source == nil {
		return
	}
	ids, err := l.cfg.Source.InboxIDs(ctx, id)
	if err != nil {
		l.cfg.Logger.Debug("backfill failed", "identity", id.Hex(), "error", err)
		return
	}
	for _, mid := range ids {
		l.enqueue(Event{Identity: id, MessageID: mid})
	}
}

func (l *LocalStrategy) onEvent(ev ledger.Event) {
	sent, ok := ev.(*ledger.MessageSent)
	if !ok {
		return
	}
	l.enqueue(Event{Identity: sent.Recipient, MessageID: sent.ID})
}

func (l *LocalStrategy) enqueue(ev Event) {
	l.mu.Lock()
	seen, ok := l.identities[ev.Identity]
	if !ok || !l.started {
		l.mu.Unlock()
		return
	}
	if _, dup := seen[ev.MessageID]; dup {
		l.mu.Unlock()
		return
	}
	seen[ev.MessageID] = struct{}{}
	l.queue = append(l.queue, ev)
	l.mu.Unlock()

	select {
	case l.signal <- struct{}{}:
	default:
	}
}

func (l *LocalStrategy) run(ctx context.Context) {
	defer close(l.done)
	for {
		l.mu.Lock()
		batch := l.queue
		l.queue = nil
		handler := l.handler
		l.mu.Unlock()

		for _, ev := range batch {
			if ctx.Err() != nil {
				return
			}
			if handler == nil {
				continue
			}
			if err := handler(ctx, ev); err != nil {
				l.cfg.Logger.Debug("handler failed", "id", ev.MessageID, "error", err)
			}
		}

		select {
		case <-ctx.Done():
			return
		case <-l.signal:
		}
	}
}
