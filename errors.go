package sealpost

import (
	"errors"
	"fmt"

	"github.com/sealpost/sealpost/internal/api"
	"github.com/sealpost/sealpost/internal/crypto"
	"github.com/sealpost/sealpost/internal/ledger"
)

// Sentinel errors for errors.Is() checks.
var (
	// ErrClientClosed is returned when operations are attempted on a closed client.
	ErrClientClosed = errors.New("client has been closed")

	// ErrInvalidInput is returned when a submission has a zero or empty
	// required field.
	ErrInvalidInput = ledger.ErrInvalidInput

	// ErrRateLimited is returned when the sender submitted again before the
	// ledger's minimum interval elapsed.
	ErrRateLimited = ledger.ErrRateLimited

	// ErrDuplicateIV is returned when the (sender, recipient, iv) triple is
	// already on the ledger.
	ErrDuplicateIV = ledger.ErrDuplicateIV

	// ErrBadNonce is returned when the submitted nonce is not last+1.
	ErrBadNonce = ledger.ErrBadNonce

	// ErrBadSignature is returned when the recovered signer is not the sender.
	ErrBadSignature = ledger.ErrBadSignature

	// ErrKeyDigestMismatch is returned when a recipient's published key
	// bundle does not hash to the digest on the ledger.
	ErrKeyDigestMismatch = errors.New("published key does not match registered digest")

	// ErrLocatorsUnknown is noted when no correlation record exists for a
	// received message.
	ErrLocatorsUnknown = errors.New("locators unknown")

	// ErrLocatorMismatch is noted when a correlation record's locators do
	// not match the commitments on the ledger.
	ErrLocatorMismatch = errors.New("locators do not match ledger commitments")

	// ErrContentUnavailable is noted when an envelope cannot be fetched.
	ErrContentUnavailable = errors.New("content unavailable")

	// ErrMessageNotFound is returned when a message id is not on the ledger.
	ErrMessageNotFound = errors.New("message not found")

	// ErrNotRecipient is returned when reading a message addressed to
	// someone else.
	ErrNotRecipient = errors.New("message is not addressed to this identity")

	// ErrNoKeyMaterial is noted when a message was sent without a key envelope.
	ErrNoKeyMaterial = crypto.ErrNoKeyMaterial

	// ErrUnwrapFailed is noted when no key in the keyring unwraps the content key.
	ErrUnwrapFailed = crypto.ErrUnwrapFailed

	// ErrIntegrityMismatch is noted when the ciphertext digest differs from
	// the ledger record.
	ErrIntegrityMismatch = crypto.ErrIntegrityMismatch

	// ErrAuthenticationFailed is noted when AES-GCM authentication fails.
	ErrAuthenticationFailed = crypto.ErrAuthenticationFailed

	// ErrInvalidImportData is returned when imported key data is invalid.
	ErrInvalidImportData = errors.New("invalid import data")

	// ErrUnauthorized is returned when the daemon rejects the API key.
	ErrUnauthorized = api.ErrUnauthorized
)

// SealpostError is implemented by all typed errors of this package.
type SealpostError interface {
	error
	SealpostError() // marker method
}

// SubmitError is returned when the ledger rejects a submission. Rejections
// are never retried by the client; Retryable reports whether resubmitting
// with fresh values can succeed.
type SubmitError struct {
	Kind   ledger.Kind
	Reason string
	err    *ledger.RejectError
}

func (e *SubmitError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("submission rejected (%s): %s", e.Kind, e.Reason)
	}
	return fmt.Sprintf("submission rejected (%s)", e.Kind)
}

// Unwrap returns the ledger rejection.
func (e *SubmitError) Unwrap() error {
	return e.err
}

// Retryable reports whether the rejection is transient contention.
func (e *SubmitError) Retryable() bool {
	return e.Kind.Retryable()
}

// SealpostError implements the SealpostError interface.
func (e *SubmitError) SealpostError() {}

// APIError represents an HTTP error from a sealpost daemon.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
	err        *api.APIError
}

func (e *APIError) Error() string {
	return e.err.Error()
}

// Is implements errors.Is for sentinel error matching.
func (e *APIError) Is(target error) bool {
	return e.err.Is(target)
}

// SealpostError implements the SealpostError interface.
func (e *APIError) SealpostError() {}

// NetworkError represents a network-level failure.
type NetworkError struct {
	Err     error
	URL     string
	Attempt int
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("network error: %v", e.Err)
}

// Unwrap returns the underlying error.
func (e *NetworkError) Unwrap() error {
	return e.Err
}

// SealpostError implements the SealpostError interface.
func (e *NetworkError) SealpostError() {}

// ContentError reports a content store failure for one envelope.
type ContentError struct {
	Locator string
	Err     error
}

func (e *ContentError) Error() string {
	return fmt.Sprintf("content %s: %v", e.Locator, e.Err)
}

// Unwrap returns the underlying error.
func (e *ContentError) Unwrap() error {
	return e.Err
}

// Is implements errors.Is for sentinel error matching.
func (e *ContentError) Is(target error) bool {
	return target == ErrContentUnavailable
}

// SealpostError implements the SealpostError interface.
func (e *ContentError) SealpostError() {}

// DecryptionError represents a failure to open a received message.
type DecryptionError struct {
	MessageID uint64
	Err       error
}

func (e *DecryptionError) Error() string {
	return fmt.Sprintf("decrypt message %d: %v", e.MessageID, e.Err)
}

// Unwrap returns the underlying crypto error.
func (e *DecryptionError) Unwrap() error {
	return e.Err
}

// SealpostError implements the SealpostError interface.
func (e *DecryptionError) SealpostError() {}

// wrapError converts internal errors to public errors so that errors.Is
// and errors.As work with this package's types.
func wrapError(err error) error {
	if err == nil {
		return nil
	}

	var rej *ledger.RejectError
	if errors.As(err, &rej) {
		return &SubmitError{Kind: rej.Kind, Reason: rej.Reason, err: rej}
	}

	var apiErr *api.APIError
	if errors.As(err, &apiErr) {
		return &APIError{
			StatusCode: apiErr.StatusCode,
			Code:       apiErr.Code,
			Message:    apiErr.Message,
			err:        apiErr,
		}
	}

	var netErr *api.NetworkError
	if errors.As(err, &netErr) {
		return &NetworkError{
			Err:     netErr.Err,
			URL:     netErr.URL,
			Attempt: netErr.Attempt,
		}
	}

	if errors.Is(err, ledger.ErrClosed) {
		return ErrClientClosed
	}

	return err
}
