package api

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/sealpost/sealpost/internal/contentstore"
	"github.com/sealpost/sealpost/internal/ledger"
)

var (
	alice = ledger.Identity{0xa1}
	bob   = ledger.Identity{0xb0}
)

type testEnv struct {
	ledger *ledger.Ledger
	clock  *ledger.ManualClock
	blobs  *contentstore.MemoryStore
	server *httptest.Server
	client *Client
}

func newTestEnv(t *testing.T, serverOpts []ServerOption, clientOpts ...Option) *testEnv {
	t.Helper()
	clock := ledger.NewManualClock(0)
	l, err := ledger.New(ledger.WithClock(clock))
	if err != nil {
		t.Fatal(err)
	}
	blobs := contentstore.NewMemoryStore()
	srv, err := NewServer(l, blobs, serverOpts...)
	if err != nil {
		t.Fatal(err)
	}
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	c, err := New(ts.URL, append([]Option{WithRetryDelay(time.Millisecond)}, clientOpts...)...)
	if err != nil {
		t.Fatal(err)
	}
	return &testEnv{ledger: l, clock: clock, blobs: blobs, server: ts, client: c}
}

func candidate(nonce uint64, ivByte byte) ledger.Candidate {
	return ledger.Candidate{
		Sender:                   alice,
		Recipient:                bob,
		ContentDigest:            ledger.Hash{0xcc, ivByte},
		IV:                       ledger.IV{ivByte},
		ContentLocatorCommitment: ledger.LocatorCommitment("content"),
		KeyLocatorCommitment:     ledger.NoKeyCommitment,
		Nonce:                    nonce,
	}
}

func TestClientServer_Ledger(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, nil)
	c := env.client

	meta, err := c.Submit(ctx, candidate(1, 1))
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	if meta.ID != 1 || meta.Sender != alice || meta.Signature.IsSigned() {
		t.Errorf("Submit() = %+v", meta)
	}

	env.clock.Set(3)
	_, err = c.Submit(ctx, candidate(2, 2))
	if !errors.Is(err, ledger.ErrRateLimited) {
		t.Fatalf("Submit() error = %v, want ledger.ErrRateLimited", err)
	}
	var rej *ledger.RejectError
	if !errors.As(err, &rej) || rej.Kind != ledger.KindRateLimited {
		t.Errorf("error %v is not a rate_limited *ledger.RejectError", err)
	}

	env.clock.Set(20)
	if _, err := c.Submit(ctx, candidate(5, 2)); !errors.Is(err, ledger.ErrBadNonce) {
		t.Errorf("Submit() error = %v, want ErrBadNonce", err)
	}

	ids, err := c.InboxIDs(ctx, bob)
	if err != nil || len(ids) != 1 || ids[0] != 1 {
		t.Errorf("InboxIDs() = %v, %v", ids, err)
	}
	ids, err = c.OutboxIDs(ctx, bob)
	if err != nil || len(ids) != 0 {
		t.Errorf("OutboxIDs(bob) = %v, %v", ids, err)
	}
	if n, err := c.Nonce(ctx, alice); err != nil || n != 1 {
		t.Errorf("Nonce() = %d, %v", n, err)
	}
	if used, err := c.IsIVUsed(ctx, alice, bob, ledger.IV{1}); err != nil || !used {
		t.Errorf("IsIVUsed() = %v, %v", used, err)
	}
	if now, err := c.Now(ctx); err != nil || now != 20 {
		t.Errorf("Now() = %d, %v", now, err)
	}

	got, err := c.Message(ctx, 1)
	if err != nil || got == nil || got.ContentDigest != meta.ContentDigest || got.IV != meta.IV {
		t.Errorf("Message(1) = %+v, %v", got, err)
	}
	if got, err := c.Message(ctx, 99); err != nil || got != nil {
		t.Errorf("Message(99) = %+v, %v; want nil, nil", got, err)
	}
}

func TestClientServer_SignedSubmit(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, nil)

	key, _ := crypto.GenerateKey()
	cand := candidate(1, 1)
	cand.Sender = crypto.PubkeyToAddress(key.PublicKey)
	sig, err := ledger.SignDigest(cand.SigningDigest(0), key)
	if err != nil {
		t.Fatal(err)
	}
	cand.Signature = ledger.WithSignature(sig)

	meta, err := env.client.Submit(ctx, cand)
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	if got, ok := meta.Signature.Signed(); !ok || got != sig {
		t.Errorf("returned signature = %+v, want %+v", got, sig)
	}

	cand.Nonce = 2
	cand.IV = ledger.IV{2}
	env.clock.Set(10)
	if _, err := env.client.Submit(ctx, cand); !errors.Is(err, ledger.ErrBadSignature) {
		t.Errorf("Submit(stale signature) error = %v, want ErrBadSignature", err)
	}
}

func signKey(t *testing.T, f ledger.KeyCommitmentFields, key *ecdsa.PrivateKey) ledger.Signed {
	t.Helper()
	sig, err := ledger.SignDigest(f.SigningDigest(), key)
	if err != nil {
		t.Fatal(err)
	}
	return sig
}

func TestClientServer_Keys(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, nil)
	c := env.client

	key, _ := crypto.GenerateKey()
	owner := crypto.PubkeyToAddress(key.PublicKey)

	if rec, err := c.KeyRecord(ctx, owner); err != nil || rec != nil {
		t.Fatalf("KeyRecord() = %+v, %v; want nil, nil", rec, err)
	}
	zero := ledger.KeyCommitmentFields{Owner: owner, PublicKeyLocator: "loc"}
	if _, err := c.RegisterSignedKey(ctx, zero, signKey(t, zero, key)); !errors.Is(err, ledger.ErrInvalidInput) {
		t.Errorf("RegisterSignedKey(zero digest) error = %v", err)
	}
	env.clock.Set(4)
	f := ledger.KeyCommitmentFields{Owner: owner, PublicKeyDigest: ledger.Hash{7}, PublicKeyLocator: "loc", Timestamp: 4}
	if _, err := c.RegisterSignedKey(ctx, f, signKey(t, f, key)); err != nil {
		t.Fatal(err)
	}
	rec, err := c.KeyRecord(ctx, owner)
	if err != nil || rec == nil || rec.PublicKeyDigest != (ledger.Hash{7}) || rec.UpdatedAt != 4 {
		t.Errorf("KeyRecord() = %+v, %v", rec, err)
	}
}

func TestServer_RegisterKeyRequiresOwnerSignature(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, nil)

	bobKey, _ := crypto.GenerateKey()
	victim := crypto.PubkeyToAddress(bobKey.PublicKey)
	attackerKey, _ := crypto.GenerateKey()

	env.clock.Set(20)
	genuine := ledger.KeyCommitmentFields{Owner: victim, PublicKeyDigest: ledger.Hash{0xb0}, PublicKeyLocator: "bob-key", Timestamp: 20}
	if _, err := env.client.RegisterSignedKey(ctx, genuine, signKey(t, genuine, bobKey)); err != nil {
		t.Fatal(err)
	}

	forged := ledger.KeyCommitmentFields{Owner: victim, PublicKeyDigest: ledger.Hash{0x66}, PublicKeyLocator: "attacker", Timestamp: 20}
	tests := []struct {
		name string
		sig  ledger.Signed
	}{
		{"no signature", ledger.Signed{}},
		{"attacker signature", signKey(t, forged, attackerKey)},
		{"owner signature over other fields", signKey(t, genuine, bobKey)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.client.RegisterSignedKey(ctx, forged, tt.sig)
			if !errors.Is(err, ledger.ErrBadSignature) {
				t.Errorf("RegisterSignedKey() error = %v, want ErrBadSignature", err)
			}
		})
	}

	body := `{"owner":"` + victim.Hex() + `","publicKeyDigest":"` + ledger.Hash{0x66}.Hex() + `","publicKeyLocator":"attacker","timestamp":20}`
	resp, err := http.Post(env.server.URL+"/v1/keys", "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusForbidden {
		t.Errorf("unsigned POST /v1/keys status = %d, want 403", resp.StatusCode)
	}

	rec, err := env.ledger.KeyRecord(ctx, victim)
	if err != nil || rec == nil || rec.PublicKeyDigest != (ledger.Hash{0xb0}) || rec.PublicKeyLocator != "bob-key" {
		t.Errorf("victim KeyRecord() = %+v, %v; want original registration", rec, err)
	}
}

func TestClientServer_Blobs(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, []ServerOption{WithMaxBlobSize(1024)})
	c := env.client

	loc, err := c.Put(ctx, []byte("ciphertext"))
	if err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	if loc != contentstore.Locator([]byte("ciphertext")) {
		t.Errorf("Put() = %q, want content locator", loc)
	}
	got, err := c.Get(ctx, loc)
	if err != nil || string(got) != "ciphertext" {
		t.Errorf("Get() = %q, %v", got, err)
	}

	_, err = c.Get(ctx, contentstore.Locator([]byte("missing")))
	if !errors.Is(err, contentstore.ErrNotFound) {
		t.Errorf("Get(missing) error = %v, want contentstore.ErrNotFound", err)
	}
	if _, err := c.Get(ctx, "bogus"); !errors.Is(err, contentstore.ErrInvalidLocator) {
		t.Errorf("Get(bogus) error = %v, want ErrInvalidLocator", err)
	}

	_, err = c.Put(ctx, bytes.Repeat([]byte{1}, 2048))
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusRequestEntityTooLarge {
		t.Errorf("Put(too large) error = %v, want 413", err)
	}
}

func TestServer_APIKey(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, []ServerOption{WithServerAPIKey("secret")})

	if _, err := env.client.Now(ctx); !errors.Is(err, ErrUnauthorized) {
		t.Errorf("Now() without key error = %v, want ErrUnauthorized", err)
	}

	authed, err := New(env.server.URL, WithAPIKey("secret"))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := authed.Now(ctx); err != nil {
		t.Errorf("Now() with key error = %v", err)
	}
}

func TestServer_RateLimit(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, []ServerOption{WithRateLimit(0.001, 2)}, WithRetries(0))

	for i := 0; i < 2; i++ {
		if _, err := env.client.Now(ctx); err != nil {
			t.Fatalf("request %d error = %v", i, err)
		}
	}
	if _, err := env.client.Now(ctx); !errors.Is(err, ErrRateLimited) {
		t.Errorf("third request error = %v, want ErrRateLimited", err)
	}
}

func TestServer_BadRequests(t *testing.T) {
	env := newTestEnv(t, nil)

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		status int
	}{
		{"bad identity", "GET", "/v1/identities/nothex/inbox", "", 400},
		{"bad message id", "GET", "/v1/messages/abc", "", 400},
		{"bad iv", "GET", "/v1/iv/" + alice.Hex() + "/" + bob.Hex() + "/0x01", "", 400},
		{"unknown field", "POST", "/v1/messages", `{"bogus":1}`, 400},
		{"malformed json", "POST", "/v1/keys", `{`, 400},
		{"unknown key", "GET", "/v1/keys/" + bob.Hex(), "", 404},
		{"wrong method", "DELETE", "/v1/time", "", 405},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, _ := http.NewRequest(tt.method, env.server.URL+tt.path, strings.NewReader(tt.body))
			resp, err := http.DefaultClient.Do(req)
			if err != nil {
				t.Fatal(err)
			}
			resp.Body.Close()
			if resp.StatusCode != tt.status {
				t.Errorf("status = %d, want %d", resp.StatusCode, tt.status)
			}
		})
	}
}

func TestServer_Metrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	env := newTestEnv(t, []ServerOption{WithRegistry(reg)})
	if _, err := env.client.Now(context.Background()); err != nil {
		t.Fatal(err)
	}

	resp, err := http.Get(env.server.URL + "/metrics")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), `sealpost_http_requests_total{code="200",route="GET /v1/time"} 1`) {
		t.Errorf("metrics missing request counter:\n%s", body)
	}
}

func TestClient_RetriesIdempotentOnly(t *testing.T) {
	var gets, posts atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			posts.Add(1)
		} else {
			gets.Add(1)
		}
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer ts.Close()

	c, err := NewClient(Config{BaseURL: ts.URL, MaxRetries: 2, RetryDelay: time.Millisecond})
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	if _, err := c.Now(ctx); err == nil {
		t.Fatal("Now() expected error")
	}
	if got := gets.Load(); got != 3 {
		t.Errorf("GET attempts = %d, want 3", got)
	}

	_, err = c.Submit(ctx, candidate(1, 1))
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("Submit() error = %v, want 503 APIError", err)
	}
	if got := posts.Load(); got != 1 {
		t.Errorf("POST attempts = %d, want 1", got)
	}
}

func TestClient_NetworkError(t *testing.T) {
	c, err := NewClient(Config{BaseURL: "http://127.0.0.1:1", MaxRetries: -1})
	if err != nil {
		t.Fatal(err)
	}
	_, err = c.Now(context.Background())
	var netErr *NetworkError
	if !errors.As(err, &netErr) {
		t.Errorf("error = %v, want *NetworkError", err)
	}
}

func TestNewClient_Validation(t *testing.T) {
	if _, err := NewClient(Config{}); err == nil {
		t.Error("expected error for empty base URL")
	}
	if _, err := NewClient(Config{BaseURL: "ftp://example.com"}); err == nil {
		t.Error("expected error for non-http base URL")
	}
	c, err := NewClient(Config{BaseURL: "https://example.com/"})
	if err != nil {
		t.Fatal(err)
	}
	if c.retry.MaxRetries != DefaultMaxRetries {
		t.Errorf("MaxRetries = %d, want %d", c.retry.MaxRetries, DefaultMaxRetries)
	}
	if c.httpClient.Timeout != DefaultTimeout {
		t.Errorf("timeout = %v, want %v", c.httpClient.Timeout, DefaultTimeout)
	}
	if c.BaseURL() != "https://example.com" {
		t.Errorf("BaseURL() = %q", c.BaseURL())
	}
}

func TestAPIError_Is(t *testing.T) {
	tests := []struct {
		name   string
		err    *APIError
		target error
		want   bool
	}{
		{"401", &APIError{StatusCode: 401}, ErrUnauthorized, true},
		{"404", &APIError{StatusCode: 404}, ErrNotFound, true},
		{"404 blob", &APIError{StatusCode: 404, ResourceType: ResourceBlob}, contentstore.ErrNotFound, true},
		{"404 message not blob", &APIError{StatusCode: 404, ResourceType: ResourceMessage}, contentstore.ErrNotFound, false},
		{"429", &APIError{StatusCode: 429}, ErrRateLimited, true},
		{"ledger kind", &APIError{StatusCode: 409, Code: "duplicate_iv"}, ledger.ErrDuplicateIV, true},
		{"ledger 429 is not http limit", &APIError{StatusCode: 429, Code: "rate_limited"}, ErrRateLimited, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := errors.Is(tt.err, tt.target); got != tt.want {
				t.Errorf("errors.Is() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestClientLimiter_Evicts(t *testing.T) {
	l := newClientLimiter(1, 1, time.Minute)
	now := time.Now()
	for i := 0; i < 511; i++ {
		l.allow(strings.Repeat("x", i+1), now)
	}
	l.allow("fresh", now.Add(2*time.Minute))
	if got := l.size(); got != 1 {
		t.Errorf("size after eviction = %d, want 1", got)
	}
	if newClientLimiter(0, 1, 0) != nil {
		t.Error("non-positive rps should disable limiting")
	}
}
