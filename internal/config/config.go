// Package config loads the sealpost daemon and CLI configuration from a
// TOML file, a .env file and SEALPOST_* environment variables.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"

	"github.com/sealpost/sealpost/internal/crypto"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "SEALPOST_"

// Default values.
const (
	DefaultListen      = "127.0.0.1:8470"
	DefaultURL         = "http://127.0.0.1:8470"
	DefaultDataDir     = "sealpost-data"
	DefaultMinInterval = 10
	DefaultRateLimit   = 20.0
	DefaultRateBurst   = 40
	DefaultMaxBlobSize = 4 << 20
	DefaultKeysFile    = "sealpost-keys.json"
	DefaultLogLevel    = "info"
	DefaultLogFormat   = "text"
)

// Server configures the sealpost daemon.
type Server struct {
	// Listen is the HTTP listen address.
	Listen string
	// APIKey, when set, is required in the X-API-Key header.
	APIKey string
	// DataDir holds ledger.db and blobs.db.
	DataDir string
	// MinInterval is the per-sender spacing between accepted submissions,
	// in ledger seconds. An explicit 0 disables spacing.
	MinInterval uint64
	// RateLimit and RateBurst bound requests per client address. An
	// explicit 0 for either disables the limiter.
	RateLimit float64
	RateBurst int
	// MaxBlobSize is the largest accepted blob in bytes.
	MaxBlobSize int64
}

// Client configures the CLI's client side.
type Client struct {
	// URL is the daemon base URL.
	URL    string
	APIKey string
	// KeysFile is the exported identity and keyring.
	KeysFile string
	// CorrelationFile is the bbolt file of id-to-locator records. Defaults
	// to correlation.db next to KeysFile.
	CorrelationFile string
	// Scheme is the key-wrapping scheme for new keys.
	Scheme string
	// Signed makes every send signed.
	Signed bool
	// Retries bounds retried requests; zero uses the client default.
	Retries int
}

// Logging configures the structured logger.
type Logging struct {
	// Level is one of debug, info, warn, error.
	Level string
	// Format is text or json.
	Format string
}

// Config is the full sealpost configuration.
type Config struct {
	Server  Server
	Client  Client
	Logging Logging
}

// Default returns a configuration with every default filled in.
func Default() *Config {
	cfg := newConfig()
	cfg.applyDefaults()
	return cfg
}

// newConfig presets the fields whose zero value is meaningful, so that
// decoding only replaces them when a file or the environment sets them.
func newConfig() *Config {
	return &Config{
		Server: Server{
			MinInterval: DefaultMinInterval,
			RateLimit:   DefaultRateLimit,
			RateBurst:   DefaultRateBurst,
		},
	}
}

func (cfg *Config) applyDefaults() {
	if cfg.Server.Listen == "" {
		cfg.Server.Listen = DefaultListen
	}
	if cfg.Server.DataDir == "" {
		cfg.Server.DataDir = DefaultDataDir
	}
	if cfg.Server.MaxBlobSize == 0 {
		cfg.Server.MaxBlobSize = DefaultMaxBlobSize
	}
	if cfg.Client.URL == "" {
		cfg.Client.URL = DefaultURL
	}
	if cfg.Client.KeysFile == "" {
		cfg.Client.KeysFile = DefaultKeysFile
	}
	if cfg.Client.CorrelationFile == "" {
		cfg.Client.CorrelationFile = filepath.Join(filepath.Dir(cfg.Client.KeysFile), "correlation.db")
	}
	if cfg.Client.Scheme == "" {
		cfg.Client.Scheme = crypto.SchemeMLKEM768
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = DefaultLogLevel
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = DefaultLogFormat
	}
}

// Validate returns nil if the config is valid and otherwise an error.
func (cfg *Config) Validate() error {
	if cfg.Server.Listen == "" {
		return errors.New("config: Server.Listen is not set")
	}
	if cfg.Server.DataDir == "" {
		return errors.New("config: Server.DataDir is not set")
	}
	if cfg.Server.RateLimit < 0 {
		return errors.New("config: Server.RateLimit must not be negative")
	}
	if cfg.Server.RateBurst < 0 {
		return errors.New("config: Server.RateBurst must not be negative")
	}
	if cfg.Server.MaxBlobSize < 0 {
		return errors.New("config: Server.MaxBlobSize must not be negative")
	}
	if cfg.Client.URL == "" {
		return errors.New("config: Client.URL is not set")
	}
	switch cfg.Client.Scheme {
	case crypto.SchemeMLKEM768, crypto.SchemeRSAOAEP:
	default:
		return fmt.Errorf("config: Client.Scheme %q is not supported", cfg.Client.Scheme)
	}
	if _, err := parseLevel(cfg.Logging.Level); err != nil {
		return err
	}
	switch cfg.Logging.Format {
	case "text", "json":
	default:
		return fmt.Errorf("config: Logging.Format %q is not text or json", cfg.Logging.Format)
	}
	return nil
}

// Load parses the provided buffer as a config file body, applies
// environment overrides and defaults, and validates the result.
func Load(b []byte) (*Config, error) {
	cfg := newConfig()
	md, err := toml.Decode(string(b), cfg)
	if err != nil {
		return nil, err
	}
	if undecoded := md.Undecoded(); len(undecoded) != 0 {
		return nil, fmt.Errorf("config: Undecoded keys in config file: %v", undecoded)
	}
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFile loads .env from the working directory if present, then parses
// and validates f. A missing f yields the defaults plus environment.
func LoadFile(f string) (*Config, error) {
	_ = godotenv.Load()

	b, err := os.ReadFile(f)
	if errors.Is(err, os.ErrNotExist) {
		return Load(nil)
	}
	if err != nil {
		return nil, err
	}
	return Load(b)
}

// ApplyEnv overrides fields from SEALPOST_* variables found by lookup.
func (cfg *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	str := func(name string, dst *string) {
		if v, ok := lookup(EnvPrefix + name); ok {
			*dst = v
		}
	}
	str("LISTEN", &cfg.Server.Listen)
	str("SERVER_API_KEY", &cfg.Server.APIKey)
	str("DATA_DIR", &cfg.Server.DataDir)
	str("URL", &cfg.Client.URL)
	str("API_KEY", &cfg.Client.APIKey)
	str("KEYS_FILE", &cfg.Client.KeysFile)
	str("CORRELATION_FILE", &cfg.Client.CorrelationFile)
	str("SCHEME", &cfg.Client.Scheme)
	str("LOG_LEVEL", &cfg.Logging.Level)
	str("LOG_FORMAT", &cfg.Logging.Format)

	if v, ok := lookup(EnvPrefix + "MIN_INTERVAL"); ok {
		n, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return fmt.Errorf("config: %sMIN_INTERVAL: %w", EnvPrefix, err)
		}
		cfg.Server.MinInterval = n
	}
	if v, ok := lookup(EnvPrefix + "SIGNED"); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("config: %sSIGNED: %w", EnvPrefix, err)
		}
		cfg.Client.Signed = b
	}
	return nil
}

// Logger builds the slog logger described by the Logging section.
func (cfg *Config) Logger(w *os.File) *slog.Logger {
	level, err := parseLevel(cfg.Logging.Level)
	if err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if cfg.Logging.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func parseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return 0, fmt.Errorf("config: Logging.Level %q is not recognised", s)
}
