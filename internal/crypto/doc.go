// Package crypto implements the hybrid envelope codec used for sealpost
// messages.
//
// # Algorithm Suite
//
//   - AES-256-GCM: authenticated encryption of the message body under a fresh
//     per-message key and 96-bit IV. The 128-bit tag is appended to the
//     ciphertext.
//
//   - SHA-256: content digest over the ciphertext. The ledger commits to this
//     digest, so integrity can be checked without decrypting.
//
//   - RSA-OAEP-SHA256: default scheme for wrapping the per-message key to the
//     recipient's long-term public key.
//
//   - ML-KEM-768 + HKDF-SHA-512: post-quantum alternative wrapping scheme.
//     The encapsulated secret is expanded into a key-encryption key which
//     seals the content key with AES-256-GCM.
//
// # Decryption Order
//
// [Decrypt] unwraps the key, then compares the ciphertext digest against the
// digest committed on the ledger, and only then opens the AEAD. A substituted
// or corrupted ciphertext is reported as [ErrIntegrityMismatch] and never
// produces plaintext.
//
// # Key Publication
//
// Public keys are published as a CBOR [PublicKeyBundle]. The SHA-256 of the
// encoded bundle is the digest registered in the ledger's key directory.
//
// Each message gets a fresh content key, but the long-term key pair is
// static: there is no forward secrecy across messages.
package crypto
