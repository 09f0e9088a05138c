package sealpost

import (
	"crypto/ecdsa"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"github.com/sealpost/sealpost/internal/crypto"
	"github.com/sealpost/sealpost/internal/ledger"
)

// ExportVersion is the current key export format version.
const ExportVersion = 1

// Key-wrapping schemes accepted by GenerateKeys and Keys.Rotate.
const (
	SchemeRSAOAEP  = crypto.SchemeRSAOAEP
	SchemeMLKEM768 = crypto.SchemeMLKEM768
)

// Signer signs ledger commitments for one identity.
type Signer interface {
	Address() ledger.Identity
	SignHash(hash []byte) (ledger.Signed, error)
}

// Keys holds an identity's secp256k1 signing key and its encryption
// keyring. The first keyring entry is the current, published key; older
// entries stay available to open messages wrapped to rotated keys.
type Keys struct {
	identity *ecdsa.PrivateKey
	address  ledger.Identity

	mu      sync.RWMutex
	keyring []crypto.PrivateKey
}

// GenerateKeys creates a fresh identity and an encryption key of the given
// scheme. An empty scheme selects RSA-OAEP.
func GenerateKeys(scheme string) (*Keys, error) {
	id, err := ethcrypto.GenerateKey()
	if err != nil {
		return nil, fmt.Errorf("generate identity key: %w", err)
	}
	enc, err := crypto.GenerateKey(scheme)
	if err != nil {
		return nil, fmt.Errorf("generate encryption key: %w", err)
	}
	return NewKeys(id, enc)
}

// NewKeys assembles Keys from existing material. keyring[0] is current.
func NewKeys(identity *ecdsa.PrivateKey, keyring ...crypto.PrivateKey) (*Keys, error) {
	if identity == nil {
		return nil, fmt.Errorf("identity key is required")
	}
	if len(keyring) == 0 {
		return nil, fmt.Errorf("at least one encryption key is required")
	}
	return &Keys{
		identity: identity,
		address:  ethcrypto.PubkeyToAddress(identity.PublicKey),
		keyring:  append([]crypto.PrivateKey(nil), keyring...),
	}, nil
}

// Address implements Signer.
func (k *Keys) Address() ledger.Identity {
	return k.address
}

// SignHash implements Signer.
func (k *Keys) SignHash(hash []byte) (ledger.Signed, error) {
	return ledger.SignDigest(hash, k.identity)
}

// Current returns the encryption key that is published.
func (k *Keys) Current() crypto.PrivateKey {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return k.keyring[0]
}

// Keyring returns all encryption keys, current first.
func (k *Keys) Keyring() []crypto.PrivateKey {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return append([]crypto.PrivateKey(nil), k.keyring...)
}

// Rotate generates a new current encryption key and keeps the old ones.
// Call Client.PublishKey afterwards so senders pick it up.
func (k *Keys) Rotate(scheme string) error {
	enc, err := crypto.GenerateKey(scheme)
	if err != nil {
		return fmt.Errorf("generate encryption key: %w", err)
	}
	k.mu.Lock()
	k.keyring = append([]crypto.PrivateKey{enc}, k.keyring...)
	k.mu.Unlock()
	return nil
}

// ExportedKeys contains everything needed to restore Keys.
// WARNING: this contains private key material - handle securely.
type ExportedKeys struct {
	// Version is the export format version. MUST be 1.
	Version int `json:"version"`
	// Address is the identity address (checksummed hex).
	Address string `json:"address"`
	// IdentityKey is the secp256k1 private key (0x-prefixed hex).
	IdentityKey string `json:"identityKey"`
	// EncryptionKeys is the keyring, current key first.
	EncryptionKeys []ExportedEncryptionKey `json:"encryptionKeys"`
	// ExportedAt is informational only.
	ExportedAt time.Time `json:"exportedAt"`
}

// ExportedEncryptionKey is one keyring entry.
type ExportedEncryptionKey struct {
	Scheme string `json:"scheme"`
	// PrivateKey is base64url without padding.
	PrivateKey string `json:"privateKey"`
}

// Export returns exportable key data.
func (k *Keys) Export() *ExportedKeys {
	k.mu.RLock()
	defer k.mu.RUnlock()

	exported := &ExportedKeys{
		Version:     ExportVersion,
		Address:     k.address.Hex(),
		IdentityKey: hexutil.Encode(ethcrypto.FromECDSA(k.identity)),
		ExportedAt:  time.Now().UTC(),
	}
	for _, key := range k.keyring {
		exported.EncryptionKeys = append(exported.EncryptionKeys, ExportedEncryptionKey{
			Scheme:     key.Scheme(),
			PrivateKey: crypto.ToBase64URL(key.Bytes()),
		})
	}
	return exported
}

// Validate checks that the exported data is complete and self-consistent.
func (e *ExportedKeys) Validate() error {
	_, err := e.keys()
	return err
}

func (e *ExportedKeys) keys() (*Keys, error) {
	if e.Version != ExportVersion {
		return nil, fmt.Errorf("%w: unsupported version %d, expected %d", ErrInvalidImportData, e.Version, ExportVersion)
	}
	raw, err := hexutil.Decode(e.IdentityKey)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid identityKey encoding", ErrInvalidImportData)
	}
	identity, err := ethcrypto.ToECDSA(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid identityKey: %v", ErrInvalidImportData, err)
	}
	if len(e.EncryptionKeys) == 0 {
		return nil, fmt.Errorf("%w: encryptionKeys is required", ErrInvalidImportData)
	}

	keyring := make([]crypto.PrivateKey, 0, len(e.EncryptionKeys))
	for i, ek := range e.EncryptionKeys {
		data, err := crypto.FromBase64URL(ek.PrivateKey)
		if err != nil {
			return nil, fmt.Errorf("%w: encryptionKeys[%d]: invalid encoding", ErrInvalidImportData, i)
		}
		key, err := crypto.ParsePrivateKey(ek.Scheme, data)
		if err != nil {
			return nil, fmt.Errorf("%w: encryptionKeys[%d]: %v", ErrInvalidImportData, i, err)
		}
		keyring = append(keyring, key)
	}

	keys, err := NewKeys(identity, keyring...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidImportData, err)
	}
	if e.Address != "" && e.Address != keys.address.Hex() {
		return nil, fmt.Errorf("%w: address does not match identityKey", ErrInvalidImportData)
	}
	return keys, nil
}

// ImportKeys restores Keys from exported data.
func ImportKeys(data *ExportedKeys) (*Keys, error) {
	return data.keys()
}

// SaveKeys writes exported keys to path with 0600 permissions.
func SaveKeys(path string, k *Keys) error {
	data, err := json.MarshalIndent(k.Export(), "", "  ")
	if err != nil {
		return fmt.Errorf("marshal keys: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("write keys: %w", err)
	}
	return nil
}

// LoadKeys reads keys written by SaveKeys.
func LoadKeys(path string) (*Keys, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read keys: %w", err)
	}
	var exported ExportedKeys
	if err := json.Unmarshal(data, &exported); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidImportData, err)
	}
	return ImportKeys(&exported)
}
