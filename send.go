package sealpost

import (
	"context"
	"errors"
	"fmt"

	"github.com/sealpost/sealpost/internal/contentstore"
	"github.com/sealpost/sealpost/internal/correlation"
	"github.com/sealpost/sealpost/internal/crypto"
	"github.com/sealpost/sealpost/internal/ledger"
)

// SendResult describes an accepted message.
type SendResult struct {
	// Message is the ledger record.
	Message *ledger.MessageMeta
	// ContentLocator and KeyLocator must reach the recipient out of band.
	// KeyLocator is empty when Degraded.
	ContentLocator string
	KeyLocator     string
	// Degraded is true when the recipient had no published key. The
	// message is on the ledger but the recipient can never open it.
	Degraded bool
}

// Send encrypts plaintext to recipient's published key, stores both
// envelopes, and submits the commitments to the ledger.
//
// Content store and key lookups are retried; the ledger submission is not.
// A rejection is returned as *SubmitError. In signed mode the commitment
// binds the ledger time read just before submission, so a clock tick in
// between surfaces as ErrBadSignature.
func (c *Client) Send(ctx context.Context, recipient ledger.Identity, plaintext []byte, opts ...SendOption) (*SendResult, error) {
	if err := c.checkOpen(); err != nil {
		return nil, err
	}
	sc := sendConfig{}
	for _, opt := range opts {
		opt(&sc)
	}
	signed := c.cfg.signed
	if sc.signed != nil {
		signed = *sc.signed
	}

	pub, err := c.recipientKey(ctx, recipient)
	if err != nil {
		return nil, err
	}

	sealed, err := crypto.Encrypt(plaintext, pub)
	if err != nil {
		return nil, fmt.Errorf("encrypt: %w", err)
	}

	result := &SendResult{Degraded: sealed.Key == nil}

	contentBytes, err := sealed.Content.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("encode content envelope: %w", err)
	}
	if result.ContentLocator, err = c.store.Put(ctx, contentBytes); err != nil {
		return nil, fmt.Errorf("store content envelope: %w", wrapError(err))
	}

	keyCommitment := ledger.NoKeyCommitment
	if sealed.Key != nil {
		keyBytes, err := sealed.Key.MarshalBinary()
		if err != nil {
			return nil, fmt.Errorf("encode key envelope: %w", err)
		}
		if result.KeyLocator, err = c.store.Put(ctx, keyBytes); err != nil {
			return nil, fmt.Errorf("store key envelope: %w", wrapError(err))
		}
		keyCommitment = ledger.LocatorCommitment(result.KeyLocator)
	}

	last, err := c.ledger.Nonce(ctx, c.Address())
	if err != nil {
		return nil, wrapError(err)
	}

	cand := ledger.Candidate{
		Sender:                   c.Address(),
		Recipient:                recipient,
		ContentDigest:            ledger.Hash(sealed.Digest),
		IV:                       ledger.IV(sealed.Content.IV),
		ContentLocatorCommitment: ledger.LocatorCommitment(result.ContentLocator),
		KeyLocatorCommitment:     keyCommitment,
		Nonce:                    last + 1,
	}

	if signed {
		now, err := c.ledger.Now(ctx)
		if err != nil {
			return nil, wrapError(err)
		}
		sig, err := c.keys.SignHash(cand.SigningDigest(now))
		if err != nil {
			return nil, err
		}
		cand.Signature = ledger.WithSignature(sig)
	}

	meta, err := c.ledger.Submit(ctx, cand)
	if err != nil {
		c.logger.Debug("submission failed", "recipient", recipient.Hex(), "nonce", cand.Nonce, "error", err)
		return nil, wrapError(err)
	}
	result.Message = meta

	rec := correlation.Record{ID: meta.ID, ContentLocator: result.ContentLocator, KeyLocator: result.KeyLocator}
	if err := c.correlation.Save(ctx, rec); err != nil {
		// The message is committed; the caller still has the locators.
		c.logger.Error("save correlation record", "id", meta.ID, "error", err)
		return result, fmt.Errorf("message %d accepted but correlation record not saved: %w", meta.ID, err)
	}

	c.logger.Info("message sent",
		"id", meta.ID,
		"recipient", recipient.Hex(),
		"signed", signed,
		"degraded", result.Degraded)
	return result, nil
}

// recipientKey resolves and verifies recipient's published key. It returns
// nil, nil when the recipient never registered one.
func (c *Client) recipientKey(ctx context.Context, recipient ledger.Identity) (crypto.PublicKey, error) {
	rec, err := c.ledger.KeyRecord(ctx, recipient)
	if err != nil {
		return nil, wrapError(err)
	}
	if rec == nil {
		c.logger.Warn("recipient has no published key, sending degraded", "recipient", recipient.Hex())
		return nil, nil
	}

	bundle, err := c.store.Get(ctx, rec.PublicKeyLocator)
	if err != nil {
		if errors.Is(err, contentstore.ErrNotFound) {
			return nil, &ContentError{Locator: rec.PublicKeyLocator, Err: err}
		}
		return nil, fmt.Errorf("fetch key bundle: %w", wrapError(err))
	}
	if ledger.Hash(crypto.BundleDigest(bundle)) != rec.PublicKeyDigest {
		return nil, ErrKeyDigestMismatch
	}
	parsed, err := crypto.ParsePublicKeyBundle(bundle)
	if err != nil {
		return nil, err
	}
	return parsed.PublicKey()
}
