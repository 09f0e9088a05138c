package api

import (
	"github.com/ethereum/go-ethereum/common"

	"github.com/sealpost/sealpost/internal/ledger"
)

// errorResponse is the body of every non-2xx response.
type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// RegisterKeyRequest registers or rotates the owner's public key. The
// (r, s, v) triple is the owner's signature over the key commitment at
// Timestamp.
type RegisterKeyRequest struct {
	Owner            common.Address `json:"owner"`
	PublicKeyDigest  common.Hash    `json:"publicKeyDigest"`
	PublicKeyLocator string         `json:"publicKeyLocator"`
	Timestamp        uint64         `json:"timestamp"`
	R                common.Hash    `json:"r"`
	S                common.Hash    `json:"s"`
	V                uint8          `json:"v"`
}

// KeyRecord is the wire form of ledger.KeyRecord.
type KeyRecord struct {
	Owner            common.Address `json:"owner"`
	PublicKeyDigest  common.Hash    `json:"publicKeyDigest"`
	PublicKeyLocator string         `json:"publicKeyLocator"`
	UpdatedAt        uint64         `json:"updatedAt"`
}

// SubmitRequest is the wire form of ledger.Candidate. An all-zero or absent
// (r, s, v) triple means unsigned.
type SubmitRequest struct {
	Sender                   common.Address `json:"sender"`
	Recipient                common.Address `json:"recipient"`
	ContentDigest            common.Hash    `json:"contentDigest"`
	IV                       ledger.IV      `json:"iv"`
	ContentLocatorCommitment common.Hash    `json:"contentLocatorCommitment"`
	KeyLocatorCommitment     common.Hash    `json:"keyLocatorCommitment"`
	Nonce                    uint64         `json:"nonce"`
	R                        common.Hash    `json:"r"`
	S                        common.Hash    `json:"s"`
	V                        uint8          `json:"v"`
}

// Message is the wire form of ledger.MessageMeta.
type Message struct {
	ID                       uint64         `json:"id"`
	Sender                   common.Address `json:"sender"`
	Recipient                common.Address `json:"recipient"`
	Timestamp                uint64         `json:"timestamp"`
	ContentDigest            common.Hash    `json:"contentDigest"`
	IV                       ledger.IV      `json:"iv"`
	ContentLocatorCommitment common.Hash    `json:"contentLocatorCommitment"`
	KeyLocatorCommitment     common.Hash    `json:"keyLocatorCommitment"`
	Nonce                    uint64         `json:"nonce"`
	R                        common.Hash    `json:"r"`
	S                        common.Hash    `json:"s"`
	V                        uint8          `json:"v"`
}

type submitResponse struct {
	ID uint64 `json:"id"`
}

type idsResponse struct {
	IDs []uint64 `json:"ids"`
}

type nonceResponse struct {
	Nonce uint64 `json:"nonce"`
}

type ivUsedResponse struct {
	Used bool `json:"used"`
}

type timeResponse struct {
	Now uint64 `json:"now"`
}

type blobResponse struct {
	Locator string `json:"locator"`
}

func keyRegistrationToRequest(f ledger.KeyCommitmentFields, sig ledger.Signed) RegisterKeyRequest {
	return RegisterKeyRequest{
		Owner:            f.Owner,
		PublicKeyDigest:  f.PublicKeyDigest,
		PublicKeyLocator: f.PublicKeyLocator,
		Timestamp:        f.Timestamp,
		R:                sig.R,
		S:                sig.S,
		V:                sig.V,
	}
}

func (r *RegisterKeyRequest) fields() ledger.KeyCommitmentFields {
	return ledger.KeyCommitmentFields{
		Owner:            r.Owner,
		PublicKeyDigest:  r.PublicKeyDigest,
		PublicKeyLocator: r.PublicKeyLocator,
		Timestamp:        r.Timestamp,
	}
}

func candidateToRequest(c ledger.Candidate) SubmitRequest {
	r, s, v := c.Signature.Wire()
	return SubmitRequest{
		Sender:                   c.Sender,
		Recipient:                c.Recipient,
		ContentDigest:            c.ContentDigest,
		IV:                       c.IV,
		ContentLocatorCommitment: c.ContentLocatorCommitment,
		KeyLocatorCommitment:     c.KeyLocatorCommitment,
		Nonce:                    c.Nonce,
		R:                        r,
		S:                        s,
		V:                        v,
	}
}

func (r *SubmitRequest) candidate() ledger.Candidate {
	return ledger.Candidate{
		Sender:                   r.Sender,
		Recipient:                r.Recipient,
		ContentDigest:            r.ContentDigest,
		IV:                       r.IV,
		ContentLocatorCommitment: r.ContentLocatorCommitment,
		KeyLocatorCommitment:     r.KeyLocatorCommitment,
		Nonce:                    r.Nonce,
		Signature:                ledger.SignatureFromWire(r.R, r.S, r.V),
	}
}

func messageFromMeta(m *ledger.MessageMeta) Message {
	r, s, v := m.Signature.Wire()
	return Message{
		ID:                       m.ID,
		Sender:                   m.Sender,
		Recipient:                m.Recipient,
		Timestamp:                m.Timestamp,
		ContentDigest:            m.ContentDigest,
		IV:                       m.IV,
		ContentLocatorCommitment: m.ContentLocatorCommitment,
		KeyLocatorCommitment:     m.KeyLocatorCommitment,
		Nonce:                    m.Nonce,
		R:                        r,
		S:                        s,
		V:                        v,
	}
}

func (m *Message) meta() *ledger.MessageMeta {
	return &ledger.MessageMeta{
		ID:                       m.ID,
		Sender:                   m.Sender,
		Recipient:                m.Recipient,
		Timestamp:                m.Timestamp,
		ContentDigest:            m.ContentDigest,
		IV:                       m.IV,
		ContentLocatorCommitment: m.ContentLocatorCommitment,
		KeyLocatorCommitment:     m.KeyLocatorCommitment,
		Nonce:                    m.Nonce,
		Signature:                ledger.SignatureFromWire(m.R, m.S, m.V),
	}
}

func keyRecordFromLedger(rec *ledger.KeyRecord) KeyRecord {
	return KeyRecord{
		Owner:            rec.Owner,
		PublicKeyDigest:  rec.PublicKeyDigest,
		PublicKeyLocator: rec.PublicKeyLocator,
		UpdatedAt:        rec.UpdatedAt,
	}
}

func (k *KeyRecord) toLedger() *ledger.KeyRecord {
	return &ledger.KeyRecord{
		Owner:            k.Owner,
		PublicKeyDigest:  k.PublicKeyDigest,
		PublicKeyLocator: k.PublicKeyLocator,
		UpdatedAt:        k.UpdatedAt,
	}
}
