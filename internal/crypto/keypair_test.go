package crypto

import (
	"bytes"
	"errors"
	"testing"
)

func TestGenerateKey_Schemes(t *testing.T) {
	tests := []struct {
		scheme string
		want   string
	}{
		{"", SchemeRSAOAEP},
		{SchemeRSAOAEP, SchemeRSAOAEP},
		{SchemeMLKEM768, SchemeMLKEM768},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			priv, err := GenerateKey(tt.scheme)
			if err != nil {
				t.Fatalf("GenerateKey() error = %v", err)
			}
			if priv.Scheme() != tt.want {
				t.Errorf("Scheme() = %q, want %q", priv.Scheme(), tt.want)
			}

			parsedPriv, err := ParsePrivateKey(priv.Scheme(), priv.Bytes())
			if err != nil {
				t.Fatalf("ParsePrivateKey() error = %v", err)
			}
			if !bytes.Equal(parsedPriv.Public().Bytes(), priv.Public().Bytes()) {
				t.Error("parsed private key has a different public key")
			}

			parsedPub, err := ParsePublicKey(priv.Scheme(), priv.Public().Bytes())
			if err != nil {
				t.Fatalf("ParsePublicKey() error = %v", err)
			}

			sealed, err := Encrypt([]byte("x"), parsedPub)
			if err != nil {
				t.Fatal(err)
			}
			if _, err := Decrypt(&sealed.Content, sealed.Key, parsedPriv, sealed.Digest); err != nil {
				t.Errorf("Decrypt() with parsed keys error = %v", err)
			}
		})
	}
}

func TestGenerateKey_UnsupportedScheme(t *testing.T) {
	_, err := GenerateKey("ROT13")
	if !errors.Is(err, ErrUnsupportedScheme) {
		t.Errorf("error = %v, want ErrUnsupportedScheme", err)
	}
	_, err = ParsePublicKey("ROT13", []byte{1})
	if !errors.Is(err, ErrUnsupportedScheme) {
		t.Errorf("ParsePublicKey error = %v, want ErrUnsupportedScheme", err)
	}
}

func TestGenerateRSAKey_TooSmall(t *testing.T) {
	_, err := GenerateRSAKey(1024)
	if !errors.Is(err, ErrInvalidPrivateKey) {
		t.Errorf("error = %v, want ErrInvalidPrivateKey", err)
	}
}

func TestParsePublicKey_InvalidSize(t *testing.T) {
	_, err := ParsePublicKey(SchemeMLKEM768, make([]byte, 10))
	if !errors.Is(err, ErrInvalidPublicKey) {
		t.Errorf("error = %v, want ErrInvalidPublicKey", err)
	}
	_, err = ParsePublicKey(SchemeRSAOAEP, []byte("not der"))
	if !errors.Is(err, ErrInvalidPublicKey) {
		t.Errorf("error = %v, want ErrInvalidPublicKey", err)
	}
}

func TestPublicKeyBundle(t *testing.T) {
	priv := testMLKEMKey(t)
	bundle := NewPublicKeyBundle(priv.Public())

	encoded, err := bundle.Marshal()
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}

	parsed, err := ParsePublicKeyBundle(encoded)
	if err != nil {
		t.Fatalf("ParsePublicKeyBundle() error = %v", err)
	}
	if parsed.Scheme != SchemeMLKEM768 {
		t.Errorf("Scheme = %q", parsed.Scheme)
	}

	pub, err := parsed.PublicKey()
	if err != nil {
		t.Fatalf("PublicKey() error = %v", err)
	}
	if !bytes.Equal(pub.Bytes(), priv.Public().Bytes()) {
		t.Error("bundle public key mismatch")
	}

	if BundleDigest(encoded).IsZero() {
		t.Error("bundle digest is zero")
	}
	if _, err := ParsePublicKeyBundle([]byte{0xa0}); !errors.Is(err, ErrInvalidPublicKey) {
		t.Errorf("empty bundle error = %v, want ErrInvalidPublicKey", err)
	}
}

func TestDeriveKey_Deterministic(t *testing.T) {
	secret := []byte("test secret key for derivation")
	salt := []byte("test salt value")
	info := []byte("test info value")

	key1, err := DeriveKey(secret, salt, info, 32)
	if err != nil {
		t.Fatal(err)
	}
	key2, err := DeriveKey(secret, salt, info, 32)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(key1, key2) {
		t.Error("DeriveKey not deterministic")
	}

	other, _ := DeriveKey(secret, salt, []byte("other info"), 32)
	if bytes.Equal(key1, other) {
		t.Error("different info produced same key")
	}
}

func TestSealOpenAESGCM_InvalidSizes(t *testing.T) {
	if _, err := sealAESGCM(make([]byte, 16), make([]byte, IVSize), nil); !errors.Is(err, ErrInvalidKeySize) {
		t.Errorf("error = %v, want ErrInvalidKeySize", err)
	}
	if _, err := sealAESGCM(make([]byte, AESKeySize), make([]byte, 8), nil); !errors.Is(err, ErrInvalidNonceSize) {
		t.Errorf("error = %v, want ErrInvalidNonceSize", err)
	}
	if _, err := openAESGCM(make([]byte, AESKeySize), make([]byte, IVSize), []byte{1, 2}); !errors.Is(err, ErrAuthenticationFailed) {
		t.Errorf("error = %v, want ErrAuthenticationFailed", err)
	}
}
