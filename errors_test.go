package sealpost

import (
	"errors"
	"fmt"
	"testing"

	"github.com/sealpost/sealpost/internal/api"
	"github.com/sealpost/sealpost/internal/contentstore"
	"github.com/sealpost/sealpost/internal/ledger"
)

func TestSentinelErrors(t *testing.T) {
	sentinels := []struct {
		name string
		err  error
	}{
		{"ErrClientClosed", ErrClientClosed},
		{"ErrInvalidInput", ErrInvalidInput},
		{"ErrRateLimited", ErrRateLimited},
		{"ErrDuplicateIV", ErrDuplicateIV},
		{"ErrBadNonce", ErrBadNonce},
		{"ErrBadSignature", ErrBadSignature},
		{"ErrKeyDigestMismatch", ErrKeyDigestMismatch},
		{"ErrLocatorsUnknown", ErrLocatorsUnknown},
		{"ErrLocatorMismatch", ErrLocatorMismatch},
		{"ErrContentUnavailable", ErrContentUnavailable},
		{"ErrMessageNotFound", ErrMessageNotFound},
		{"ErrNotRecipient", ErrNotRecipient},
		{"ErrNoKeyMaterial", ErrNoKeyMaterial},
		{"ErrUnwrapFailed", ErrUnwrapFailed},
		{"ErrIntegrityMismatch", ErrIntegrityMismatch},
		{"ErrAuthenticationFailed", ErrAuthenticationFailed},
		{"ErrInvalidImportData", ErrInvalidImportData},
		{"ErrUnauthorized", ErrUnauthorized},
	}

	for _, s := range sentinels {
		t.Run(s.name, func(t *testing.T) {
			if s.err == nil {
				t.Error("sentinel error is nil")
			}
			if s.err.Error() == "" {
				t.Error("sentinel error has empty message")
			}
		})
	}
}

func TestWrapError_Rejection(t *testing.T) {
	tests := []struct {
		kind      ledger.Kind
		sentinel  error
		retryable bool
	}{
		{ledger.KindInvalidInput, ErrInvalidInput, false},
		{ledger.KindRateLimited, ErrRateLimited, true},
		{ledger.KindDuplicateIV, ErrDuplicateIV, true},
		{ledger.KindBadNonce, ErrBadNonce, true},
		{ledger.KindBadSignature, ErrBadSignature, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			rej := &ledger.RejectError{Kind: tt.kind, Reason: "because"}
			err := wrapError(fmt.Errorf("submit: %w", rej))

			var subErr *SubmitError
			if !errors.As(err, &subErr) {
				t.Fatalf("wrapError() = %T, want *SubmitError", err)
			}
			if subErr.Kind != tt.kind {
				t.Errorf("Kind = %s, want %s", subErr.Kind, tt.kind)
			}
			if !errors.Is(err, tt.sentinel) {
				t.Errorf("errors.Is(%v) = false", tt.sentinel)
			}
			if subErr.Retryable() != tt.retryable {
				t.Errorf("Retryable() = %v, want %v", subErr.Retryable(), tt.retryable)
			}
			if subErr.Error() == "" {
				t.Error("empty error message")
			}
		})
	}
}

func TestWrapError_API(t *testing.T) {
	err := wrapError(&api.APIError{StatusCode: 401, Message: "invalid API key"})

	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("wrapError() = %T, want *APIError", err)
	}
	if apiErr.StatusCode != 401 {
		t.Errorf("StatusCode = %d, want 401", apiErr.StatusCode)
	}
	if !errors.Is(err, ErrUnauthorized) {
		t.Error("errors.Is(ErrUnauthorized) = false")
	}
	if errors.Is(err, ErrRateLimited) {
		t.Error("errors.Is(ErrRateLimited) = true for a 401")
	}
}

func TestWrapError_Network(t *testing.T) {
	cause := errors.New("connection refused")
	err := wrapError(&api.NetworkError{Err: cause, URL: "http://localhost", Attempt: 2})

	var netErr *NetworkError
	if !errors.As(err, &netErr) {
		t.Fatalf("wrapError() = %T, want *NetworkError", err)
	}
	if netErr.Attempt != 2 {
		t.Errorf("Attempt = %d, want 2", netErr.Attempt)
	}
	if !errors.Is(err, cause) {
		t.Error("NetworkError does not unwrap to cause")
	}
}

func TestWrapError_Passthrough(t *testing.T) {
	if wrapError(nil) != nil {
		t.Error("wrapError(nil) != nil")
	}
	if !errors.Is(wrapError(ledger.ErrClosed), ErrClientClosed) {
		t.Error("ledger.ErrClosed not mapped to ErrClientClosed")
	}
	plain := errors.New("plain")
	if wrapError(plain) != plain {
		t.Error("plain error was rewrapped")
	}
}

func TestContentError(t *testing.T) {
	err := &ContentError{Locator: "Qm123", Err: contentstore.ErrNotFound}
	if !errors.Is(err, ErrContentUnavailable) {
		t.Error("errors.Is(ErrContentUnavailable) = false")
	}
	if !errors.Is(err, contentstore.ErrNotFound) {
		t.Error("errors.Is(contentstore.ErrNotFound) = false")
	}
}

func TestTypedErrorsImplementSealpostError(t *testing.T) {
	errs := []error{
		&SubmitError{Kind: ledger.KindBadNonce},
		&APIError{err: &api.APIError{StatusCode: 500}},
		&NetworkError{Err: errors.New("x")},
		&ContentError{Err: errors.New("x")},
		&DecryptionError{Err: errors.New("x")},
	}
	for _, err := range errs {
		if _, ok := err.(SealpostError); !ok {
			t.Errorf("%T does not implement SealpostError", err)
		}
	}
}
