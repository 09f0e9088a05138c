package delivery

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"time"

	"github.com/sealpost/sealpost/internal/ledger"
)

// PollingStrategy implements delivery by listing inbox ids.
type PollingStrategy struct {
	cfg     Config
	inboxes map[ledger.Identity]*polledInbox
	handler EventHandler
	cancel  context.CancelFunc
	done    chan struct{}
	wake    chan struct{}
	mu      sync.RWMutex
	started bool
}

type polledInbox struct {
	identity  ledger.Identity
	lastCount int
	seen      map[uint64]struct{}
	interval  time.Duration
	primed    bool
}

// NewPollingStrategy creates a new polling strategy.
func NewPollingStrategy(cfg Config) *PollingStrategy {
	return &PollingStrategy{
		cfg:     cfg.withDefaults(),
		inboxes: make(map[ledger.Identity]*polledInbox),
		wake:    make(chan struct{}, 1),
	}
}

// Name returns the strategy name.
func (p *PollingStrategy) Name() string {
	return "polling"
}

func (p *PollingStrategy) newInbox(id ledger.Identity) *polledInbox {
	return &polledInbox{
		identity: id,
		seen:     make(map[uint64]struct{}),
		interval: p.cfg.PollingInitialInterval,
	}
}

// Start begins polling the given identities.
func (p *PollingStrategy) Start(ctx context.Context, identities []ledger.Identity, handler EventHandler) error {
	if p.cfg.Source == nil {
		return errors.New("delivery: polling requires an inbox source")
	}

	p.mu.Lock()
	if p.started {
		p.mu.Unlock()
		return errors.New("delivery: strategy already started")
	}
	p.handler = handler
	for _, id := range identities {
		p.inboxes[id] = p.newInbox(id)
	}
	p.started = true
	ctx, p.cancel = context.WithCancel(ctx)
	p.done = make(chan struct{})
	p.mu.Unlock()

	go p.pollLoop(ctx)
	return nil
}

// Stop shuts down the strategy and waits for the poll loop to exit.
func (p *PollingStrategy) Stop() error {
	p.mu.Lock()
	if !p.started {
		p.mu.Unlock()
		return nil
	}
	p.started = false
	cancel, done := p.cancel, p.done
	p.mu.Unlock()

	cancel()
	<-done
	return nil
}

// AddIdentity adds an inbox to poll and triggers an immediate poll.
func (p *PollingStrategy) AddIdentity(id ledger.Identity) error {
	p.mu.Lock()
	if _, ok := p.inboxes[id]; !ok {
		p.inboxes[id] = p.newInbox(id)
	}
	p.mu.Unlock()

	select {
	case p.wake <- struct{}{}:
	default:
	}
	return nil
}

// RemoveIdentity stops polling an inbox.
func (p *PollingStrategy) RemoveIdentity(id ledger.Identity) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.inboxes, id)
	return nil
}

func (p *PollingStrategy) pollLoop(ctx context.Context) {
	defer close(p.done)

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		minWait := p.pollAll(ctx)

		timer := time.NewTimer(minWait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-p.wake:
			timer.Stop()
		case <-timer.C:
		}
	}
}

func (p *PollingStrategy) pollAll(ctx context.Context) time.Duration {
	p.mu.RLock()
	inboxList := make([]*polledInbox, 0, len(p.inboxes))
	for _, inbox := range p.inboxes {
		inboxList = append(inboxList, inbox)
	}
	p.mu.RUnlock()

	if len(inboxList) == 0 {
		return p.cfg.PollingInitialInterval
	}

	var minWait time.Duration
	for _, inbox := range inboxList {
		p.pollInbox(ctx, inbox)
		wait := p.waitDuration(inbox)
		if minWait == 0 || wait < minWait {
			minWait = wait
		}
	}
	return minWait
}

// pollInbox runs only on the poll loop goroutine, so polledInbox fields
// need no locking.
func (p *PollingStrategy) pollInbox(ctx context.Context, inbox *polledInbox) {
	ids, err := p.cfg.Source.InboxIDs(ctx, inbox.identity)
	if err != nil {
		if ctx.Err() == nil {
			p.cfg.Logger.Debug("poll failed", "identity", inbox.identity.Hex(), "error", err)
		}
		return
	}

	// Inboxes are append-only, so an unchanged length means no new messages.
	if inbox.primed && len(ids) == inbox.lastCount {
		next := time.Duration(float64(inbox.interval) * p.cfg.PollingBackoffMultiplier)
		if next > p.cfg.PollingMaxBackoff {
			next = p.cfg.PollingMaxBackoff
		}
		inbox.interval = next
		return
	}
	inbox.primed = true
	inbox.lastCount = len(ids)
	inbox.interval = p.cfg.PollingInitialInterval

	p.mu.RLock()
	handler := p.handler
	p.mu.RUnlock()

	for _, id := range ids {
		if _, seen := inbox.seen[id]; seen {
			continue
		}
		inbox.seen[id] = struct{}{}
		if handler == nil {
			continue
		}
		if err := handler(ctx, Event{Identity: inbox.identity, MessageID: id}); err != nil {
			p.cfg.Logger.Debug("handler failed", "id", id, "error", err)
		}
	}
}

func (p *PollingStrategy) waitDuration(inbox *polledInbox) time.Duration {
	jitter := time.Duration(rand.Float64() * p.cfg.PollingJitterFactor * float64(inbox.interval))
	return inbox.interval + jitter
}
