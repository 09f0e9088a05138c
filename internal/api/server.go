package api

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sealpost/sealpost/internal/contentstore"
	"github.com/sealpost/sealpost/internal/ledger"
)

// DefaultMaxBlobSize bounds a single uploaded blob.
const DefaultMaxBlobSize = 16 << 20

// Server serves a ledger and a blob store over HTTP.
type Server struct {
	ledger      *ledger.Ledger
	blobs       contentstore.Store
	apiKey      string
	limiter     *clientLimiter
	maxBlobSize int64
	registry    *prometheus.Registry
	logger      *slog.Logger
	now         func() time.Time

	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithServerAPIKey requires X-API-Key on every v1 route.
func WithServerAPIKey(key string) ServerOption {
	return func(s *Server) { s.apiKey = key }
}

// WithRateLimit limits each client IP to rps requests per second with the
// given burst. Non-positive values disable limiting.
func WithRateLimit(rps float64, burst int) ServerOption {
	return func(s *Server) { s.limiter = newClientLimiter(rps, burst, 0) }
}

// WithMaxBlobSize bounds uploaded blobs.
func WithMaxBlobSize(n int64) ServerOption {
	return func(s *Server) { s.maxBlobSize = n }
}

// WithRegistry sets the Prometheus registry served at /metrics.
func WithRegistry(reg *prometheus.Registry) ServerOption {
	return func(s *Server) { s.registry = reg }
}

// WithServerLogger sets the logger.
func WithServerLogger(logger *slog.Logger) ServerOption {
	return func(s *Server) { s.logger = logger }
}

// NewServer creates a server for l and blobs.
func NewServer(l *ledger.Ledger, blobs contentstore.Store, opts ...ServerOption) (*Server, error) {
	s := &Server{
		ledger:      l,
		blobs:       blobs,
		maxBlobSize: DefaultMaxBlobSize,
		logger:      slog.New(slog.DiscardHandler),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.registry == nil {
		s.registry = prometheus.NewRegistry()
	}
	s.logger = s.logger.With("component", "api")

	s.requests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "sealpost",
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "HTTP requests by route and status code.",
	}, []string{"route", "code"})
	s.duration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "sealpost",
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "HTTP request latency by route.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"route"})
	for _, c := range []prometheus.Collector{s.requests, s.duration} {
		if err := s.registry.Register(c); err != nil {
			return nil, fmt.Errorf("register http metrics: %w", err)
		}
	}
	return s, nil
}

// Handler returns the HTTP handler for all routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	route := func(pattern string, h http.HandlerFunc) {
		mux.Handle(pattern, s.instrument(pattern, s.guard(h)))
	}

	route("POST /v1/keys", s.handleRegisterKey)
	route("GET /v1/keys/{identity}", s.handleGetKey)
	route("POST /v1/messages", s.handleSubmit)
	route("GET /v1/messages/{id}", s.handleGetMessage)
	route("GET /v1/identities/{identity}/inbox", s.handleInbox)
	route("GET /v1/identities/{identity}/outbox", s.handleOutbox)
	route("GET /v1/identities/{identity}/nonce", s.handleNonce)
	route("GET /v1/iv/{sender}/{recipient}/{iv}", s.handleIVUsed)
	route("GET /v1/time", s.handleTime)
	route("POST /v1/blobs", s.handlePutBlob)
	route("GET /v1/blobs/{locator}", s.handleGetBlob)
	mux.Handle("GET /metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))
	return mux
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *Server) instrument(route string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.requests.WithLabelValues(route, strconv.Itoa(rec.status)).Inc()
		s.duration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}

// guard enforces the per-client limit and the API key.
func (s *Server) guard(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !s.limiter.allow(clientKey(r), s.now()) {
			w.Header().Set("Retry-After", "1")
			s.writeError(w, http.StatusTooManyRequests, codeRateLimited, "slow down")
			return
		}
		if s.apiKey != "" {
			got := r.Header.Get("X-API-Key")
			if subtle.ConstantTimeCompare([]byte(got), []byte(s.apiKey)) != 1 {
				s.writeError(w, http.StatusUnauthorized, codeUnauthorized, "")
				return
			}
		}
		next(w, r)
	}
}

func (s *Server) handleRegisterKey(w http.ResponseWriter, r *http.Request) {
	var req RegisterKeyRequest
	if !s.decode(w, r, &req) {
		return
	}
	sig := ledger.Signed{R: req.R, S: req.S, V: req.V}
	rec, err := s.ledger.RegisterSignedKey(r.Context(), req.fields(), sig)
	if err != nil {
		s.writeLedgerError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, keyRecordFromLedger(rec))
}

func (s *Server) handleGetKey(w http.ResponseWriter, r *http.Request) {
	id, ok := s.identity(w, r, "identity")
	if !ok {
		return
	}
	rec, err := s.ledger.KeyRecord(r.Context(), id)
	if err != nil {
		s.writeLedgerError(w, err)
		return
	}
	if rec == nil {
		s.writeError(w, http.StatusNotFound, codeNotFound, "no key registered")
		return
	}
	s.writeJSON(w, http.StatusOK, keyRecordFromLedger(rec))
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var req SubmitRequest
	if !s.decode(w, r, &req) {
		return
	}
	meta, err := s.ledger.Submit(r.Context(), req.candidate())
	if err != nil {
		s.writeLedgerError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, messageFromMeta(meta))
}

func (s *Server) handleGetMessage(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseUint(r.PathValue("id"), 10, 64)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, codeBadRequest, "invalid message id")
		return
	}
	meta, err := s.ledger.Message(r.Context(), id)
	if err != nil {
		s.writeLedgerError(w, err)
		return
	}
	if meta == nil {
		s.writeError(w, http.StatusNotFound, codeNotFound, "no such message")
		return
	}
	s.writeJSON(w, http.StatusOK, messageFromMeta(meta))
}

func (s *Server) handleInbox(w http.ResponseWriter, r *http.Request) {
	id, ok := s.identity(w, r, "identity")
	if !ok {
		return
	}
	ids, err := s.ledger.InboxIDs(r.Context(), id)
	if err != nil {
		s.writeLedgerError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, idsResponse{IDs: nonNil(ids)})
}

func (s *Server) handleOutbox(w http.ResponseWriter, r *http.Request) {
	id, ok := s.identity(w, r, "identity")
	if !ok {
		return
	}
	ids, err := s.ledger.OutboxIDs(r.Context(), id)
	if err != nil {
		s.writeLedgerError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, idsResponse{IDs: nonNil(ids)})
}

func (s *Server) handleNonce(w http.ResponseWriter, r *http.Request) {
	id, ok := s.identity(w, r, "identity")
	if !ok {
		return
	}
	n, err := s.ledger.Nonce(r.Context(), id)
	if err != nil {
		s.writeLedgerError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, nonceResponse{Nonce: n})
}

func (s *Server) handleIVUsed(w http.ResponseWriter, r *http.Request) {
	sender, ok := s.identity(w, r, "sender")
	if !ok {
		return
	}
	recipient, ok := s.identity(w, r, "recipient")
	if !ok {
		return
	}
	var iv ledger.IV
	if err := iv.UnmarshalText([]byte(r.PathValue("iv"))); err != nil {
		s.writeError(w, http.StatusBadRequest, codeBadRequest, "invalid iv")
		return
	}
	used, err := s.ledger.IsIVUsed(r.Context(), sender, recipient, iv)
	if err != nil {
		s.writeLedgerError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, ivUsedResponse{Used: used})
}

func (s *Server) handleTime(w http.ResponseWriter, r *http.Request) {
	now, err := s.ledger.Now(r.Context())
	if err != nil {
		s.writeLedgerError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, timeResponse{Now: now})
}

func (s *Server) handlePutBlob(w http.ResponseWriter, r *http.Request) {
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.maxBlobSize))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.writeError(w, http.StatusRequestEntityTooLarge, codeTooLarge, fmt.Sprintf("blob exceeds %d bytes", s.maxBlobSize))
			return
		}
		s.writeError(w, http.StatusBadRequest, codeBadRequest, "failed to read body")
		return
	}
	loc, err := s.blobs.Put(r.Context(), data)
	if err != nil {
		s.logger.Error("blob put failed", "error", err)
		s.writeError(w, http.StatusInternalServerError, codeInternal, "")
		return
	}
	s.writeJSON(w, http.StatusCreated, blobResponse{Locator: loc})
}

func (s *Server) handleGetBlob(w http.ResponseWriter, r *http.Request) {
	data, err := s.blobs.Get(r.Context(), r.PathValue("locator"))
	switch {
	case errors.Is(err, contentstore.ErrInvalidLocator):
		s.writeError(w, http.StatusBadRequest, codeBadRequest, "invalid locator")
		return
	case errors.Is(err, contentstore.ErrNotFound):
		s.writeError(w, http.StatusNotFound, codeNotFound, "no such blob")
		return
	case err != nil:
		s.logger.Error("blob get failed", "error", err)
		s.writeError(w, http.StatusInternalServerError, codeInternal, "")
		return
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func (s *Server) identity(w http.ResponseWriter, r *http.Request, name string) (ledger.Identity, bool) {
	raw := r.PathValue(name)
	if !common.IsHexAddress(raw) {
		s.writeError(w, http.StatusBadRequest, codeBadRequest, "invalid "+name)
		return ledger.Identity{}, false
	}
	return common.HexToAddress(raw), true
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 64<<10))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		s.writeError(w, http.StatusBadRequest, codeBadRequest, err.Error())
		return false
	}
	return true
}

var rejectStatus = map[ledger.Kind]int{
	ledger.KindInvalidInput: http.StatusBadRequest,
	ledger.KindRateLimited:  http.StatusTooManyRequests,
	ledger.KindDuplicateIV:  http.StatusConflict,
	ledger.KindBadNonce:     http.StatusConflict,
	ledger.KindBadSignature: http.StatusForbidden,
}

func (s *Server) writeLedgerError(w http.ResponseWriter, err error) {
	var rej *ledger.RejectError
	if errors.As(err, &rej) {
		s.writeError(w, rejectStatus[rej.Kind], string(rej.Kind), rej.Reason)
		return
	}
	if errors.Is(err, ledger.ErrClosed) {
		s.writeError(w, http.StatusServiceUnavailable, codeInternal, "ledger closed")
		return
	}
	s.logger.Error("ledger operation failed", "error", err)
	s.writeError(w, http.StatusInternalServerError, codeInternal, "")
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Debug("write response failed", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, code, msg string) {
	s.writeJSON(w, status, errorResponse{Error: code, Message: msg})
}

func nonNil(ids []uint64) []uint64 {
	if ids == nil {
		return []uint64{}
	}
	return ids
}
