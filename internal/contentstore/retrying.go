package contentstore

import (
	"context"
	"errors"
	"log/slog"

	"github.com/sealpost/sealpost/internal/retry"
)

// Retrying wraps a Store so that Get retries ErrNotFound and transient
// failures with bounded backoff. Errors carrying a permanent HTTP status
// such as 401 or 403 are returned at once. Every blob is verified against its locator. Put is passed through.
type Retrying struct {
	store  Store
	config *retry.Config
	logger *slog.Logger
}

// NewRetrying wraps store. A nil config uses retry.Default(); a nil logger
// discards.
func NewRetrying(store Store, config *retry.Config, logger *slog.Logger) *Retrying {
	if config == nil {
		config = retry.Default()
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Retrying{store: store, config: config, logger: logger}
}

// Put implements Store.
func (r *Retrying) Put(ctx context.Context, data []byte) (string, error) {
	return r.store.Put(ctx, data)
}

// Get implements Store.
func (r *Retrying) Get(ctx context.Context, locator string) ([]byte, error) {
	var data []byte
	attempt := 0
	err := r.config.Do(ctx, retryable, func(ctx context.Context) error {
		if attempt > 0 {
			r.logger.Debug("retrying blob fetch", "attempt", attempt)
		}
		attempt++
		var err error
		data, err = r.store.Get(ctx, locator)
		return err
	})
	if err != nil {
		return nil, err
	}
	if err := Verify(locator, data); err != nil {
		return nil, err
	}
	return data, nil
}

// statusError is implemented by transport errors that carry an HTTP status.
type statusError interface {
	HTTPStatus() int
}

func retryable(err error) bool {
	switch {
	case errors.Is(err, ErrInvalidLocator),
		errors.Is(err, ErrContentMismatch),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		return false
	case errors.Is(err, ErrNotFound):
		return true
	}
	var se statusError
	if errors.As(err, &se) {
		return retry.RetryableStatus(se.HTTPStatus())
	}
	return true
}
