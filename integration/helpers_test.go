//go:build integration

package integration

import (
	"time"

	"github.com/sealpost/sealpost/internal/retry"
)

var retryFast = retry.Config{
	MaxRetries: 2,
	BaseDelay:  20 * time.Millisecond,
	MaxDelay:   100 * time.Millisecond,
	Multiplier: 2,
}
