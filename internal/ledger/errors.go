package ledger

import (
	"errors"
	"fmt"
)

// Kind classifies a rejected submission.
type Kind string

// Rejection kinds, in validation order.
const (
	KindInvalidInput Kind = "invalid_input"
	KindRateLimited  Kind = "rate_limited"
	KindDuplicateIV  Kind = "duplicate_iv"
	KindBadNonce     Kind = "bad_nonce"
	KindBadSignature Kind = "bad_signature"
)

// Sentinel errors for errors.Is() checks.
var (
	// ErrInvalidInput is returned when a required field is zero or empty.
	ErrInvalidInput = errors.New("invalid input")

	// ErrRateLimited is returned when a sender submits again before the
	// minimum interval has elapsed.
	ErrRateLimited = errors.New("rate limited")

	// ErrDuplicateIV is returned when the (sender, recipient, iv) triple was
	// already used by an accepted message.
	ErrDuplicateIV = errors.New("duplicate iv")

	// ErrBadNonce is returned when the nonce is not exactly last+1.
	ErrBadNonce = errors.New("bad nonce")

	// ErrBadSignature is returned when the recovered signer is not the sender.
	ErrBadSignature = errors.New("bad signature")
)

var kindErrors = map[Kind]error{
	KindInvalidInput: ErrInvalidInput,
	KindRateLimited:  ErrRateLimited,
	KindDuplicateIV:  ErrDuplicateIV,
	KindBadNonce:     ErrBadNonce,
	KindBadSignature: ErrBadSignature,
}

// Err returns the sentinel error for the kind, or nil if unknown.
func (k Kind) Err() error {
	return kindErrors[k]
}

// Retryable reports whether a caller may resubmit after re-deriving
// fresh values (current nonce, current time, fresh IV).
func (k Kind) Retryable() bool {
	switch k {
	case KindRateLimited, KindBadNonce, KindDuplicateIV:
		return true
	default:
		return false
	}
}

// RejectError is returned by Submit and RegisterKey when the ledger refuses
// a request. No state is changed by a rejected request.
type RejectError struct {
	Kind   Kind
	Reason string
}

func reject(kind Kind, format string, args ...any) *RejectError {
	return &RejectError{Kind: kind, Reason: fmt.Sprintf(format, args...)}
}

func (e *RejectError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("ledger rejected submission: %s: %s", e.Kind, e.Reason)
	}
	return fmt.Sprintf("ledger rejected submission: %s", e.Kind)
}

// Is implements errors.Is for sentinel error matching.
func (e *RejectError) Is(target error) bool {
	sentinel := e.Kind.Err()
	return sentinel != nil && target == sentinel
}
