package sealpost

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/sealpost/sealpost/internal/crypto"
	"github.com/sealpost/sealpost/internal/ledger"
)

func TestKeys_ExportImport(t *testing.T) {
	keys, err := GenerateKeys(crypto.SchemeMLKEM768)
	if err != nil {
		t.Fatal(err)
	}
	if err := keys.Rotate(crypto.SchemeRSAOAEP); err != nil {
		t.Fatal(err)
	}

	exported := keys.Export()
	if err := exported.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	restored, err := ImportKeys(exported)
	if err != nil {
		t.Fatalf("ImportKeys() error = %v", err)
	}
	if restored.Address() != keys.Address() {
		t.Errorf("Address = %s, want %s", restored.Address().Hex(), keys.Address().Hex())
	}
	if len(restored.Keyring()) != 2 {
		t.Fatalf("len(Keyring) = %d, want 2", len(restored.Keyring()))
	}
	if restored.Current().Scheme() != crypto.SchemeRSAOAEP {
		t.Errorf("Current().Scheme() = %s, want %s", restored.Current().Scheme(), crypto.SchemeRSAOAEP)
	}
}

func TestKeys_SaveLoad(t *testing.T) {
	keys, err := GenerateKeys(crypto.SchemeMLKEM768)
	if err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(t.TempDir(), "keys.json")
	if err := SaveKeys(path, keys); err != nil {
		t.Fatalf("SaveKeys() error = %v", err)
	}
	loaded, err := LoadKeys(path)
	if err != nil {
		t.Fatalf("LoadKeys() error = %v", err)
	}
	if loaded.Address() != keys.Address() {
		t.Error("loaded address differs")
	}
}

func TestExportedKeys_Validate(t *testing.T) {
	keys, err := GenerateKeys(crypto.SchemeMLKEM768)
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name   string
		modify func(e *ExportedKeys)
	}{
		{"bad version", func(e *ExportedKeys) { e.Version = 2 }},
		{"bad identity encoding", func(e *ExportedKeys) { e.IdentityKey = "zz" }},
		{"no encryption keys", func(e *ExportedKeys) { e.EncryptionKeys = nil }},
		{"bad scheme", func(e *ExportedKeys) { e.EncryptionKeys[0].Scheme = "nope" }},
		{"bad key encoding", func(e *ExportedKeys) { e.EncryptionKeys[0].PrivateKey = "!!" }},
		{"address mismatch", func(e *ExportedKeys) { e.Address = "0x0000000000000000000000000000000000000001" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := keys.Export()
			tt.modify(e)
			if err := e.Validate(); !errors.Is(err, ErrInvalidImportData) {
				t.Errorf("Validate() error = %v, want ErrInvalidImportData", err)
			}
		})
	}
}

func TestKeys_SignHashRecovers(t *testing.T) {
	keys, err := GenerateKeys(crypto.SchemeMLKEM768)
	if err != nil {
		t.Fatal(err)
	}
	var s Signer = keys
	digest := make([]byte, 32)
	digest[0] = 9
	sig, err := s.SignHash(digest)
	if err != nil {
		t.Fatal(err)
	}
	got, err := ledger.RecoverSigner(digest, sig)
	if err != nil {
		t.Fatal(err)
	}
	if got != keys.Address() {
		t.Errorf("recovered %s, want %s", got.Hex(), keys.Address().Hex())
	}
}
