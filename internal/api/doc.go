// Package api exposes a ledger and a blob store over HTTP and provides the
// matching client.
//
// # Client
//
// [Client] implements the same read and submit methods as *ledger.Ledger
// and satisfies contentstore.Store, so the orchestrator can run against a
// remote daemon without change.
//
// Idempotent requests are retried with exponential backoff on 408, 429,
// 500, 502, 503 and 504. Message submissions and key registrations are
// never retried; a ledger rejection comes back as *ledger.RejectError.
//
// # Server
//
// [Server] serves the v1 routes, a Prometheus /metrics endpoint and
// enforces an optional API key (X-API-Key) and a per-client token bucket.
//
// # Error Handling
//
// Non-2xx responses become *APIError. Use errors.Is with the ledger
// sentinels, [ErrNotFound], [ErrUnauthorized] or [ErrRateLimited]:
//
//	if errors.Is(err, ledger.ErrBadNonce) {
//	    // re-read the nonce and resubmit
//	}
//
// # Thread Safety
//
// [Client] and [Server] are safe for concurrent use.
package api
