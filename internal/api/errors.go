package api

import (
	"errors"
	"fmt"

	"github.com/sealpost/sealpost/internal/contentstore"
	"github.com/sealpost/sealpost/internal/ledger"
)

// Common API errors that can be checked with errors.Is.
var (
	// ErrUnauthorized indicates the API key is missing or wrong.
	ErrUnauthorized = errors.New("invalid or missing API key")
	// ErrNotFound indicates the requested resource does not exist.
	ErrNotFound = errors.New("not found")
	// ErrRateLimited indicates the per-client request limit was exceeded.
	ErrRateLimited = errors.New("request rate limit exceeded")
)

// Error codes carried in the "error" field of error responses, in addition
// to the ledger rejection kinds.
const (
	codeUnauthorized = "unauthorized"
	codeNotFound     = "not_found"
	codeRateLimited  = "too_many_requests"
	codeBadRequest   = "bad_request"
	codeTooLarge     = "too_large"
	codeInternal     = "internal"
)

// ResourceType indicates which type of resource an error relates to.
type ResourceType string

const (
	// ResourceUnknown indicates the resource type is not specified.
	ResourceUnknown ResourceType = ""
	// ResourceBlob indicates the error relates to a content store blob.
	ResourceBlob ResourceType = "blob"
	// ResourceMessage indicates the error relates to a ledger message.
	ResourceMessage ResourceType = "message"
	// ResourceKey indicates the error relates to a key record.
	ResourceKey ResourceType = "key"
)

// APIError represents a non-2xx response.
type APIError struct {
	StatusCode   int
	Code         string
	Message      string
	ResourceType ResourceType
}

func (e *APIError) Error() string {
	switch {
	case e.Code != "" && e.Message != "":
		return fmt.Sprintf("API error %d: %s: %s", e.StatusCode, e.Code, e.Message)
	case e.Message != "":
		return fmt.Sprintf("API error %d: %s", e.StatusCode, e.Message)
	case e.Code != "":
		return fmt.Sprintf("API error %d: %s", e.StatusCode, e.Code)
	}
	return fmt.Sprintf("API error %d", e.StatusCode)
}

// HTTPStatus returns the response status code.
func (e *APIError) HTTPStatus() int {
	return e.StatusCode
}

// Is implements errors.Is for sentinel error matching.
func (e *APIError) Is(target error) bool {
	if sentinel := ledger.Kind(e.Code).Err(); sentinel != nil {
		return target == sentinel
	}
	switch e.StatusCode {
	case 401:
		return target == ErrUnauthorized
	case 404:
		if e.ResourceType == ResourceBlob {
			return target == ErrNotFound || target == contentstore.ErrNotFound
		}
		return target == ErrNotFound
	case 429:
		return target == ErrRateLimited
	}
	return false
}

// Reject converts a ledger rejection response back into the ledger's error
// type. It returns nil for any other error.
func (e *APIError) Reject() *ledger.RejectError {
	kind := ledger.Kind(e.Code)
	if kind.Err() == nil {
		return nil
	}
	return &ledger.RejectError{Kind: kind, Reason: e.Message}
}

// WithResourceType returns a copy of the error with the resource type set.
// If the error is not an *APIError, it is returned unchanged.
func WithResourceType(err error, rt ResourceType) error {
	if err == nil {
		return nil
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		cp := *apiErr
		cp.ResourceType = rt
		return &cp
	}
	return err
}

// NetworkError represents a network-level failure.
type NetworkError struct {
	Err     error
	URL     string
	Attempt int
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("network error: %v", e.Err)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}
