// Package ledger implements the authoritative, append-only message ledger.
//
// A [Ledger] admits a message only if every acceptance rule holds, checked
// in this order with the first failure reported:
//
//  1. structural input checks ([ErrInvalidInput])
//  2. per-sender minimum interval ([ErrRateLimited])
//  3. (sender, recipient, iv) uniqueness ([ErrDuplicateIV])
//  4. per-sender nonce sequence ([ErrBadNonce])
//  5. signer recovery for signed submissions ([ErrBadSignature])
//
// Rate-limit, IV and nonce state is only written when the whole submission
// is accepted, in a single commit. Submissions from one sender are
// serialized; different senders proceed independently up to the commit.
//
// The ledger stores Keccak-256 commitments to content and key locators, never
// the locators themselves.
//
// # Persistence
//
// Without a [Store] the ledger lives in memory for the lifetime of the
// instance. [OpenBoltStore] provides a durable store; the ledger replays it on
// construction.
package ledger
