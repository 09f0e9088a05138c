package crypto

const (
	// KeyWrapContext is the HKDF info string for ML-KEM key wrapping.
	KeyWrapContext = "sealpost:keywrap:v1"

	// AESKeySize is the size of an AES-256 key in bytes.
	AESKeySize = 32
	// IVSize is the size of an AES-GCM nonce in bytes.
	IVSize = 12
	// AESTagSize is the size of an AES-GCM authentication tag in bytes.
	AESTagSize = 16
	// DigestSize is the size of a SHA-256 content digest.
	DigestSize = 32

	// RSAMinBits is the smallest RSA modulus accepted for key wrapping.
	RSAMinBits = 2048
	// RSADefaultBits is the modulus size used by GenerateKey.
	RSADefaultBits = 3072

	// KeyEnvelopeVersion is the current key envelope format version.
	KeyEnvelopeVersion = 1
)

// Key wrapping schemes carried in KeyEnvelope.Scheme.
const (
	// SchemeRSAOAEP wraps with RSA-OAEP using SHA-256 as hash and MGF1 hash.
	SchemeRSAOAEP = "RSA-OAEP-SHA256"
	// SchemeMLKEM768 wraps with an ML-KEM-768 encapsulation and an
	// HKDF-derived AES-256-GCM key-encryption key.
	SchemeMLKEM768 = "ML-KEM-768"
)
