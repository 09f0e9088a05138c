package sealpost

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/sealpost/sealpost/internal/contentstore"
	"github.com/sealpost/sealpost/internal/crypto"
	"github.com/sealpost/sealpost/internal/ledger"
)

// Message is a received message. When Err is non-nil the message could
// not be opened and Plaintext is nil.
type Message struct {
	ID        uint64
	Sender    ledger.Identity
	Timestamp uint64
	Signed    bool
	Plaintext []byte
	Meta      *ledger.MessageMeta

	// Err notes why the message could not be opened. It matches one of
	// ErrLocatorsUnknown, ErrLocatorMismatch, ErrContentUnavailable,
	// ErrNoKeyMaterial, ErrUnwrapFailed, ErrIntegrityMismatch or
	// ErrAuthenticationFailed under errors.Is.
	Err error
}

// Receive lists this identity's inbox and opens every message, a bounded
// number at a time. A failure to open one message is noted on that
// message and does not stop the others. Results are in inbox order.
func (c *Client) Receive(ctx context.Context) ([]*Message, error) {
	if err := c.checkOpen(); err != nil {
		return nil, err
	}

	ids, err := c.ledger.InboxIDs(ctx, c.Address())
	if err != nil {
		return nil, wrapError(err)
	}

	out := make([]*Message, len(ids))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.cfg.concurrency)
	for i, id := range ids {
		g.Go(func() error {
			meta, err := c.ledger.Message(gctx, id)
			if err != nil {
				return wrapError(err)
			}
			if meta == nil {
				return fmt.Errorf("inbox lists message %d: %w", id, ErrMessageNotFound)
			}
			out[i] = c.open(gctx, meta)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// ReceiveMessage opens a single message addressed to this identity.
func (c *Client) ReceiveMessage(ctx context.Context, id uint64) (*Message, error) {
	if err := c.checkOpen(); err != nil {
		return nil, err
	}
	meta, err := c.ledger.Message(ctx, id)
	if err != nil {
		return nil, wrapError(err)
	}
	if meta == nil {
		return nil, ErrMessageNotFound
	}
	if meta.Recipient != c.Address() {
		return nil, ErrNotRecipient
	}
	return c.open(ctx, meta), nil
}

// open resolves, fetches and decrypts one message. Failures are noted on
// the returned Message.
func (c *Client) open(ctx context.Context, meta *ledger.MessageMeta) *Message {
	msg := &Message{
		ID:        meta.ID,
		Sender:    meta.Sender,
		Timestamp: meta.Timestamp,
		Signed:    meta.Signature.IsSigned(),
		Meta:      meta,
	}
	plaintext, err := c.decrypt(ctx, meta)
	if err != nil {
		c.logger.Debug("message not opened", "id", meta.ID, "sender", meta.Sender.Hex(), "error", err)
		msg.Err = err
		return msg
	}
	msg.Plaintext = plaintext
	return msg
}

func (c *Client) decrypt(ctx context.Context, meta *ledger.MessageMeta) ([]byte, error) {
	rec, ok, err := c.correlation.Lookup(ctx, meta.ID)
	if err != nil {
		return nil, fmt.Errorf("lookup locators: %w", err)
	}
	if !ok {
		return nil, ErrLocatorsUnknown
	}

	if ledger.LocatorCommitment(rec.ContentLocator) != meta.ContentLocatorCommitment {
		return nil, fmt.Errorf("%w: content locator", ErrLocatorMismatch)
	}
	if ledger.LocatorCommitment(rec.KeyLocator) != meta.KeyLocatorCommitment {
		return nil, fmt.Errorf("%w: key locator", ErrLocatorMismatch)
	}

	raw, err := c.fetch(ctx, rec.ContentLocator)
	if err != nil {
		return nil, err
	}
	var content crypto.ContentEnvelope
	if err := content.UnmarshalBinary(raw); err != nil {
		return nil, &DecryptionError{MessageID: meta.ID, Err: err}
	}

	var key *crypto.KeyEnvelope
	if rec.KeyLocator != "" {
		raw, err := c.fetch(ctx, rec.KeyLocator)
		if err != nil {
			return nil, err
		}
		key = new(crypto.KeyEnvelope)
		if err := key.UnmarshalBinary(raw); err != nil {
			return nil, &DecryptionError{MessageID: meta.ID, Err: err}
		}
	}

	plaintext, err := crypto.DecryptWithKeyring(&content, key, c.keys.Keyring(), crypto.Digest(meta.ContentDigest))
	if err != nil {
		return nil, &DecryptionError{MessageID: meta.ID, Err: err}
	}
	return plaintext, nil
}

func (c *Client) fetch(ctx context.Context, locator string) ([]byte, error) {
	data, err := c.store.Get(ctx, locator)
	if err == nil {
		return data, nil
	}
	if errors.Is(err, contentstore.ErrNotFound) || errors.Is(err, contentstore.ErrContentMismatch) {
		return nil, &ContentError{Locator: locator, Err: err}
	}
	return nil, wrapError(err)
}
