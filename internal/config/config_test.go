package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sealpost/sealpost/internal/crypto"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(nil)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Server.Listen != DefaultListen {
		t.Errorf("Listen = %s, want %s", cfg.Server.Listen, DefaultListen)
	}
	if cfg.Server.MinInterval != DefaultMinInterval {
		t.Errorf("MinInterval = %d, want %d", cfg.Server.MinInterval, DefaultMinInterval)
	}
	if cfg.Client.Scheme != crypto.SchemeMLKEM768 {
		t.Errorf("Scheme = %s, want %s", cfg.Client.Scheme, crypto.SchemeMLKEM768)
	}
	if cfg.Client.CorrelationFile != "correlation.db" {
		t.Errorf("CorrelationFile = %s, want correlation.db", cfg.Client.CorrelationFile)
	}
}

func TestLoad_File(t *testing.T) {
	body := `
[Server]
Listen = "0.0.0.0:9000"
MinInterval = 30
MaxBlobSize = 1024

[Client]
URL = "http://ledger.internal:9000"
KeysFile = "/var/lib/sealpost/keys.json"
Scheme = "RSA-OAEP-SHA256"
Signed = true

[Logging]
Level = "debug"
Format = "json"
`
	cfg, err := Load([]byte(body))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Server.Listen != "0.0.0.0:9000" {
		t.Errorf("Listen = %s", cfg.Server.Listen)
	}
	if cfg.Server.MinInterval != 30 {
		t.Errorf("MinInterval = %d, want 30", cfg.Server.MinInterval)
	}
	if cfg.Server.MaxBlobSize != 1024 {
		t.Errorf("MaxBlobSize = %d, want 1024", cfg.Server.MaxBlobSize)
	}
	if !cfg.Client.Signed {
		t.Error("Signed = false, want true")
	}
	if cfg.Client.CorrelationFile != "/var/lib/sealpost/correlation.db" {
		t.Errorf("CorrelationFile = %s", cfg.Client.CorrelationFile)
	}
}

func TestLoad_ExplicitZero(t *testing.T) {
	tests := []struct {
		name      string
		body      string
		env       string
		interval  uint64
		rateLimit float64
		rateBurst int
	}{
		{"unset keeps defaults", "", "", DefaultMinInterval, DefaultRateLimit, DefaultRateBurst},
		{"file zero", "[Server]\nMinInterval = 0\nRateLimit = 0.0\nRateBurst = 0\n", "", 0, 0, 0},
		{"file zero interval only", "[Server]\nMinInterval = 0\n", "", 0, DefaultRateLimit, DefaultRateBurst},
		{"env zero interval", "", "0", 0, DefaultRateLimit, DefaultRateBurst},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.env != "" {
				t.Setenv(EnvPrefix+"MIN_INTERVAL", tt.env)
			}
			cfg, err := Load([]byte(tt.body))
			if err != nil {
				t.Fatalf("Load() error = %v", err)
			}
			if cfg.Server.MinInterval != tt.interval {
				t.Errorf("MinInterval = %d, want %d", cfg.Server.MinInterval, tt.interval)
			}
			if cfg.Server.RateLimit != tt.rateLimit || cfg.Server.RateBurst != tt.rateBurst {
				t.Errorf("RateLimit, RateBurst = %v, %d; want %v, %d",
					cfg.Server.RateLimit, cfg.Server.RateBurst, tt.rateLimit, tt.rateBurst)
			}
		})
	}
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"unknown key", "[Server]\nBogus = 1\n", "Undecoded"},
		{"bad scheme", "[Client]\nScheme = \"ROT13\"\n", "Scheme"},
		{"bad level", "[Logging]\nLevel = \"loud\"\n", "Level"},
		{"bad format", "[Logging]\nFormat = \"xml\"\n", "Format"},
		{"negative burst", "[Server]\nRateBurst = -1\n", "RateBurst"},
		{"syntax", "[Server\n", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load([]byte(tt.body))
			if err == nil {
				t.Fatal("Load() error = nil, want error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Load() error = %v, want mention of %q", err, tt.want)
			}
		})
	}
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		"SEALPOST_URL":          "http://env:1",
		"SEALPOST_API_KEY":      "secret",
		"SEALPOST_MIN_INTERVAL": "5",
		"SEALPOST_SIGNED":       "true",
		"SEALPOST_LOG_LEVEL":    "warn",
	}
	lookup := func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}

	cfg := Default()
	if err := cfg.ApplyEnv(lookup); err != nil {
		t.Fatalf("ApplyEnv() error = %v", err)
	}
	if cfg.Client.URL != "http://env:1" || cfg.Client.APIKey != "secret" {
		t.Errorf("Client = %+v", cfg.Client)
	}
	if cfg.Server.MinInterval != 5 {
		t.Errorf("MinInterval = %d, want 5", cfg.Server.MinInterval)
	}
	if !cfg.Client.Signed {
		t.Error("Signed = false, want true")
	}
	if cfg.Logging.Level != "warn" {
		t.Errorf("Level = %s, want warn", cfg.Logging.Level)
	}

	env["SEALPOST_MIN_INTERVAL"] = "soon"
	if err := cfg.ApplyEnv(lookup); err == nil {
		t.Error("ApplyEnv() error = nil for non-numeric interval")
	}
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sealpost.toml")
	if err := os.WriteFile(path, []byte("[Server]\nListen = \":7000\"\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile() error = %v", err)
	}
	if cfg.Server.Listen != ":7000" {
		t.Errorf("Listen = %s, want :7000", cfg.Server.Listen)
	}

	if _, err := LoadFile(filepath.Join(dir, "missing.toml")); err != nil {
		t.Errorf("LoadFile(missing) error = %v, want defaults", err)
	}
}

func TestLogger(t *testing.T) {
	cfg := Default()
	cfg.Logging.Format = "json"
	if cfg.Logger(os.Stderr) == nil {
		t.Error("Logger() = nil")
	}
}
