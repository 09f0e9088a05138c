package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/sealpost/sealpost/internal/config"
)

// run executes the CLI with args and returns stdout.
func run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetArgs(args)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	err := cmd.ExecuteContext(ctx)
	if err != nil {
		t.Logf("stderr: %s", stderr.String())
	}
	return stdout.String(), err
}

func startDaemon(t *testing.T) string {
	t.Helper()
	cfg := config.Default()
	cfg.Server.Listen = "127.0.0.1:0"
	cfg.Server.DataDir = t.TempDir()
	cfg.Logging.Level = "error"

	ctx, cancel := context.WithCancel(context.Background())
	ready := make(chan string, 1)
	done := make(chan error, 1)
	go func() {
		done <- runServer(ctx, cfg, ready)
	}()
	t.Cleanup(func() {
		cancel()
		select {
		case err := <-done:
			if err != nil {
				t.Errorf("runServer() error = %v", err)
			}
		case <-time.After(shutdownTimeout):
		}
	})

	select {
	case addr := <-ready:
		return "http://" + addr
	case err := <-done:
		t.Fatalf("runServer() exited early: %v", err)
	case <-time.After(10 * time.Second):
		t.Fatal("daemon did not start")
	}
	return ""
}

func TestCLI_EndToEnd(t *testing.T) {
	url := startDaemon(t)
	noConfig := filepath.Join(t.TempDir(), "none.toml")
	aliceKeys := filepath.Join(t.TempDir(), "keys.json")
	bobKeys := filepath.Join(t.TempDir(), "keys.json")

	alice := func(stdin string, args ...string) (string, error) {
		return run(t, stdin, append([]string{"-f", noConfig, "--url", url, "-k", aliceKeys}, args...)...)
	}
	bob := func(stdin string, args ...string) (string, error) {
		return run(t, stdin, append([]string{"-f", noConfig, "--url", url, "-k", bobKeys}, args...)...)
	}

	if _, err := alice("", "keygen"); err != nil {
		t.Fatalf("alice keygen: %v", err)
	}
	bobAddr, err := bob("", "keygen", "--scheme", "RSA-OAEP-SHA256")
	if err != nil {
		t.Fatalf("bob keygen: %v", err)
	}
	bobAddr = strings.TrimSpace(bobAddr)

	if _, err := bob("", "keygen"); err == nil {
		t.Error("second keygen without --force succeeded")
	}
	if got, err := bob("", "address"); err != nil || strings.TrimSpace(got) != bobAddr {
		t.Errorf("address = %q, %v; want %q", got, err, bobAddr)
	}

	if _, err := bob("", "publish-key"); err != nil {
		t.Fatalf("bob publish-key: %v", err)
	}

	out, err := alice("hello from the cli", "send", bobAddr, "--signed")
	if err != nil {
		t.Fatalf("alice send: %v", err)
	}
	var sent sendOutput
	if err := json.Unmarshal([]byte(out), &sent); err != nil {
		t.Fatalf("decode send output %q: %v", out, err)
	}
	if sent.ID != 1 || sent.Nonce != 1 || sent.Degraded {
		t.Errorf("send output = %+v", sent)
	}

	// Before import bob cannot resolve the locators.
	out, err = bob("", "inbox")
	if err != nil {
		t.Fatalf("bob inbox: %v", err)
	}
	var entries []inboxEntry
	if err := json.Unmarshal([]byte(out), &entries); err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || !strings.Contains(entries[0].Error, "locators unknown") {
		t.Fatalf("inbox before import = %+v", entries)
	}

	exported, err := alice("", "locators", "export", "1")
	if err != nil {
		t.Fatalf("locators export: %v", err)
	}
	if _, err := bob(exported, "locators", "import"); err != nil {
		t.Fatalf("locators import: %v", err)
	}

	out, err = bob("", "inbox")
	if err != nil {
		t.Fatalf("bob inbox: %v", err)
	}
	entries = nil
	if err := json.Unmarshal([]byte(out), &entries); err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Fatalf("len(entries) = %d, want 1", len(entries))
	}
	if entries[0].Text != "hello from the cli" || !entries[0].Signed {
		t.Errorf("entry = %+v", entries[0])
	}
}

func TestCLI_SendRejectsBadAddress(t *testing.T) {
	keys := filepath.Join(t.TempDir(), "keys.json")
	noConfig := filepath.Join(t.TempDir(), "none.toml")
	if _, err := run(t, "", "-f", noConfig, "-k", keys, "keygen"); err != nil {
		t.Fatal(err)
	}
	_, err := run(t, "", "-f", noConfig, "-k", keys, "send", "not-an-address", "hi")
	if err == nil || !strings.Contains(err.Error(), "not an address") {
		t.Errorf("send error = %v, want invalid address", err)
	}
}

func TestParseID(t *testing.T) {
	tests := []struct {
		in      string
		want    uint64
		wantErr bool
	}{
		{"1", 1, false},
		{" 42 ", 42, false},
		{"0", 0, true},
		{"x", 0, true},
		{"-3", 0, true},
	}
	for _, tt := range tests {
		got, err := parseID(tt.in)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("parseID(%q) = %d, %v; want %d, err=%v", tt.in, got, err, tt.want, tt.wantErr)
		}
	}
}

func TestMain(m *testing.M) {
	// Keep ambient configuration out of the tests.
	for _, kv := range os.Environ() {
		if strings.HasPrefix(kv, config.EnvPrefix) {
			os.Unsetenv(strings.SplitN(kv, "=", 2)[0])
		}
	}
	os.Exit(m.Run())
}
