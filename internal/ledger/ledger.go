package ledger

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

const (
	// DefaultMinInterval is the default per-sender minimum spacing between
	// accepted messages, in clock units.
	DefaultMinInterval = 10

	// KeySignatureWindow bounds how far a signed key registration's
	// timestamp may lag the ledger clock.
	KeySignatureWindow = 300

	senderStripes = 64
)

// ErrClosed is returned when the ledger has been closed.
var ErrClosed = errors.New("ledger closed")

// Option configures a Ledger.
type Option func(*Ledger)

// WithClock sets the acceptance clock. Default: SystemClock.
func WithClock(c Clock) Option {
	return func(l *Ledger) { l.clock = c }
}

// WithMinInterval sets the per-sender minimum interval.
func WithMinInterval(d uint64) Option {
	return func(l *Ledger) { l.minInterval = d }
}

// WithStore makes the ledger durable. Existing state is replayed on New.
func WithStore(s Store) Option {
	return func(l *Ledger) { l.store = s }
}

// WithLogger sets the logger. Default: discard.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Ledger) { l.logger = logger }
}

// WithMetrics instruments the ledger.
func WithMetrics(m *Metrics) Option {
	return func(l *Ledger) { l.metrics = m }
}

type senderState struct {
	nonce      uint64
	lastSentAt uint64
	hasSent    bool
}

type ivKey struct {
	sender    Identity
	recipient Identity
	iv        IV
}

// Ledger is the authoritative message and key registry.
type Ledger struct {
	clock       Clock
	minInterval uint64
	store       Store
	logger      *slog.Logger
	metrics     *Metrics
	subs        *subscriptionManager

	// A stripe is held for the whole of a submission from any sender that
	// hashes to it.
	senderLocks [senderStripes]sync.Mutex

	mu       sync.RWMutex
	closed   bool
	nextID   uint64
	messages map[uint64]*MessageMeta
	inbox    map[Identity][]uint64
	outbox   map[Identity][]uint64
	senders  map[Identity]senderState
	usedIVs  map[ivKey]struct{}
	keys     map[Identity]KeyRecord
}

// New creates a ledger. With a store, committed state is replayed before
// New returns.
func New(opts ...Option) (*Ledger, error) {
	l := &Ledger{
		clock:       SystemClock{},
		minInterval: DefaultMinInterval,
		logger:      slog.New(slog.DiscardHandler),
		subs:        newSubscriptionManager(),
		nextID:      1,
		messages:    make(map[uint64]*MessageMeta),
		inbox:       make(map[Identity][]uint64),
		outbox:      make(map[Identity][]uint64),
		senders:     make(map[Identity]senderState),
		usedIVs:     make(map[ivKey]struct{}),
		keys:        make(map[Identity]KeyRecord),
	}
	for _, opt := range opts {
		opt(l)
	}

	if l.store != nil {
		err := l.store.Load(
			func(m *MessageMeta) error {
				if m.ID != l.nextID {
					return fmt.Errorf("%w: expected message %d, found %d", ErrCorruptStore, l.nextID, m.ID)
				}
				l.apply(m)
				return nil
			},
			func(rec KeyRecord) error {
				l.keys[rec.Owner] = rec
				return nil
			},
		)
		if err != nil {
			return nil, fmt.Errorf("replay ledger: %w", err)
		}
		l.logger.Info("ledger replayed", "messages", len(l.messages), "keys", len(l.keys))
	}
	return l, nil
}

// Close releases the store and drops all subscriptions.
func (l *Ledger) Close() error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil
	}
	l.closed = true
	l.mu.Unlock()

	l.subs.clear()
	if l.store != nil {
		return l.store.Close()
	}
	return nil
}

// Subscribe registers a callback invoked after every committed change.
// Callbacks run synchronously on the committing goroutine after all ledger
// locks are released. Returns an unsubscribe function.
func (l *Ledger) Subscribe(callback func(Event)) func() {
	return l.subs.subscribe(callback)
}

// senderStripe maps a sender onto one of a fixed set of locks.
func senderStripe(sender Identity) int {
	return int(binary.BigEndian.Uint32(sender[len(sender)-4:]) % senderStripes)
}

func (l *Ledger) lockSender(sender Identity) func() {
	mu := &l.senderLocks[senderStripe(sender)]
	mu.Lock()
	return mu.Unlock
}

// Submit validates a candidate and, if every rule holds, commits it and
// returns the stored record. A rejection is a *RejectError and leaves the
// ledger unchanged.
func (l *Ledger) Submit(ctx context.Context, c Candidate) (*MessageMeta, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := c.validate(); err != nil {
		return nil, l.rejected(&c, err)
	}

	unlock := l.lockSender(c.Sender)
	defer unlock()

	now := l.clock.Now()

	l.mu.RLock()
	if l.closed {
		l.mu.RUnlock()
		return nil, ErrClosed
	}
	st := l.senders[c.Sender]
	_, ivUsed := l.usedIVs[ivKey{c.Sender, c.Recipient, c.IV}]
	l.mu.RUnlock()

	if st.hasSent && (now < st.lastSentAt || now-st.lastSentAt < l.minInterval) {
		return nil, l.rejected(&c, reject(KindRateLimited, "last accepted at %d, now %d", st.lastSentAt, now))
	}
	if ivUsed {
		return nil, l.rejected(&c, reject(KindDuplicateIV, "iv %s already used for this recipient", c.IV))
	}
	if c.Nonce != st.nonce+1 {
		return nil, l.rejected(&c, reject(KindBadNonce, "expected %d, got %d", st.nonce+1, c.Nonce))
	}
	if sig, ok := c.Signature.Signed(); ok {
		signer, err := RecoverSigner(c.SigningDigest(now), sig)
		if err != nil {
			return nil, l.rejected(&c, reject(KindBadSignature, "%v", err))
		}
		if signer != c.Sender {
			return nil, l.rejected(&c, reject(KindBadSignature, "recovered %s", signer.Hex()))
		}
	}

	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil, ErrClosed
	}
	meta := &MessageMeta{
		ID:                       l.nextID,
		Sender:                   c.Sender,
		Recipient:                c.Recipient,
		Timestamp:                now,
		ContentDigest:            c.ContentDigest,
		IV:                       c.IV,
		ContentLocatorCommitment: c.ContentLocatorCommitment,
		KeyLocatorCommitment:     c.KeyLocatorCommitment,
		Nonce:                    c.Nonce,
		Signature:                c.Signature,
	}
	if l.store != nil {
		if err := l.store.AppendMessage(meta); err != nil {
			l.mu.Unlock()
			return nil, fmt.Errorf("persist message: %w", err)
		}
	}
	l.apply(meta)
	total := len(l.messages)
	l.mu.Unlock()

	l.metrics.accepted(total)
	l.logger.Debug("message accepted",
		"id", meta.ID,
		"sender", meta.Sender.Hex(),
		"recipient", meta.Recipient.Hex(),
		"nonce", meta.Nonce,
		"signed", meta.Signature.IsSigned())

	l.subs.notify(messageSentEvent(meta))

	out := *meta
	return &out, nil
}

// apply mutates in-memory state for a committed message. Caller holds mu
// or owns the ledger exclusively.
func (l *Ledger) apply(m *MessageMeta) {
	l.messages[m.ID] = m
	l.nextID = m.ID + 1
	l.outbox[m.Sender] = append(l.outbox[m.Sender], m.ID)
	l.inbox[m.Recipient] = append(l.inbox[m.Recipient], m.ID)
	l.senders[m.Sender] = senderState{nonce: m.Nonce, lastSentAt: m.Timestamp, hasSent: true}
	l.usedIVs[ivKey{m.Sender, m.Recipient, m.IV}] = struct{}{}
}

func (l *Ledger) rejected(c *Candidate, err error) error {
	var rej *RejectError
	if errors.As(err, &rej) {
		l.metrics.rejected(rej.Kind)
		l.logger.Debug("submission rejected",
			"sender", c.Sender.Hex(),
			"nonce", c.Nonce,
			"kind", string(rej.Kind),
			"reason", rej.Reason)
	}
	return err
}

// RegisterKey records or replaces the caller's public key digest and
// locator. Only the latest record is kept.
func (l *Ledger) RegisterKey(ctx context.Context, owner Identity, digest Hash, locator string) (*KeyRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if owner == (Identity{}) {
		return nil, reject(KindInvalidInput, "owner is the null identity")
	}
	if digest == (Hash{}) {
		return nil, reject(KindInvalidInput, "public key digest is zero")
	}

	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil, ErrClosed
	}
	rec := KeyRecord{
		Owner:            owner,
		PublicKeyDigest:  digest,
		PublicKeyLocator: locator,
		UpdatedAt:        l.clock.Now(),
	}
	if l.store != nil {
		if err := l.store.PutKey(rec); err != nil {
			l.mu.Unlock()
			return nil, fmt.Errorf("persist key record: %w", err)
		}
	}
	l.keys[owner] = rec
	l.mu.Unlock()

	l.metrics.keyRegistered()
	l.logger.Debug("key registered", "owner", owner.Hex(), "digest", digest.Hex())
	l.subs.notify(&KeyRegistered{
		Owner:            rec.Owner,
		PublicKeyDigest:  rec.PublicKeyDigest,
		PublicKeyLocator: rec.PublicKeyLocator,
		UpdatedAt:        rec.UpdatedAt,
	})
	return &rec, nil
}

// RegisterSignedKey verifies that the owner signed the registration and then
// records it as RegisterKey does. The timestamp must not be ahead of the
// ledger clock nor more than KeySignatureWindow behind it, and must not
// predate the owner's current record.
func (l *Ledger) RegisterSignedKey(ctx context.Context, f KeyCommitmentFields, sig Signed) (*KeyRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if f.Owner == (Identity{}) {
		return nil, reject(KindInvalidInput, "owner is the null identity")
	}
	if f.PublicKeyDigest == (Hash{}) {
		return nil, reject(KindInvalidInput, "public key digest is zero")
	}

	now := l.clock.Now()
	if f.Timestamp > now || now-f.Timestamp > KeySignatureWindow {
		return nil, l.keyRejected(f.Owner, reject(KindBadSignature, "timestamp %d outside window at %d", f.Timestamp, now))
	}
	l.mu.RLock()
	prev, ok := l.keys[f.Owner]
	l.mu.RUnlock()
	if ok && f.Timestamp < prev.UpdatedAt {
		return nil, l.keyRejected(f.Owner, reject(KindBadSignature, "timestamp %d predates record at %d", f.Timestamp, prev.UpdatedAt))
	}

	signer, err := RecoverSigner(f.SigningDigest(), sig)
	if err != nil {
		return nil, l.keyRejected(f.Owner, reject(KindBadSignature, "%v", err))
	}
	if signer != f.Owner {
		return nil, l.keyRejected(f.Owner, reject(KindBadSignature, "recovered %s", signer.Hex()))
	}
	return l.RegisterKey(ctx, f.Owner, f.PublicKeyDigest, f.PublicKeyLocator)
}

func (l *Ledger) keyRejected(owner Identity, err error) error {
	var rej *RejectError
	if errors.As(err, &rej) {
		l.logger.Debug("key registration rejected",
			"owner", owner.Hex(),
			"kind", string(rej.Kind),
			"reason", rej.Reason)
	}
	return err
}

// InboxIDs returns ids of messages addressed to id, in acceptance order.
func (l *Ledger) InboxIDs(_ context.Context, id Identity) ([]uint64, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]uint64(nil), l.inbox[id]...), nil
}

// OutboxIDs returns ids of messages sent by id, in acceptance order.
func (l *Ledger) OutboxIDs(_ context.Context, id Identity) ([]uint64, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]uint64(nil), l.outbox[id]...), nil
}

// IsIVUsed reports whether an accepted message already used the triple.
func (l *Ledger) IsIVUsed(_ context.Context, sender, recipient Identity, iv IV) (bool, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	_, ok := l.usedIVs[ivKey{sender, recipient, iv}]
	return ok, nil
}

// Message returns the record with the given id, or nil if none exists.
func (l *Ledger) Message(_ context.Context, id uint64) (*MessageMeta, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	m, ok := l.messages[id]
	if !ok {
		return nil, nil
	}
	out := *m
	return &out, nil
}

// KeyRecord returns the latest key record of owner, or nil if none exists.
func (l *Ledger) KeyRecord(_ context.Context, owner Identity) (*KeyRecord, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	rec, ok := l.keys[owner]
	if !ok {
		return nil, nil
	}
	return &rec, nil
}

// Nonce returns the last accepted nonce of sender; 0 if it never sent.
func (l *Ledger) Nonce(_ context.Context, sender Identity) (uint64, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.senders[sender].nonce, nil
}

// Now returns the ledger clock reading.
func (l *Ledger) Now(_ context.Context) (uint64, error) {
	return l.clock.Now(), nil
}

// MinInterval returns the configured per-sender minimum interval.
func (l *Ledger) MinInterval() uint64 {
	return l.minInterval
}
