package config

import (
	"errors"
	"strings"
	"testing"
)

// mockKeychain is a test double for the keychain interface.
type mockKeychain struct {
	value string
	err   error
}

func (m mockKeychain) Get(service, account string) (string, error) {
	return m.value, m.err
}

// memBackend is an in-memory ConfigBackend for tests.
type memBackend struct {
	strings map[string]string
	ints    map[string]int
}

func newMemBackend() *memBackend {
	return &memBackend{
		strings: make(map[string]string),
		ints:    make(map[string]int),
	}
}

func (b *memBackend) GetString(key string) (string, bool, error) {
	v, ok := b.strings[key]
	return v, ok, nil
}

func (b *memBackend) GetInt(key string) (int, bool, error) {
	v, ok := b.ints[key]
	return v, ok, nil
}

func (b *memBackend) SetString(key, val string) error {
	b.strings[key] = val
	return nil
}

func (b *memBackend) SetInt(key string, val int) error {
	b.ints[key] = val
	return nil
}

func (b *memBackend) Delete(key string) error {
	delete(b.strings, key)
	delete(b.ints, key)
	return nil
}

// TestDefaults verifies all default values survive a load from an empty backend.
func TestDefaults(t *testing.T) {
	cfg, err := loadWith(newMemBackend(), mockKeychain{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Server.Addr != ":4400" {
		t.Errorf("Server.Addr = %q, want %q", cfg.Server.Addr, ":4400")
	}
	if cfg.Server.MaxConns != 64 {
		t.Errorf("Server.MaxConns = %d, want 64", cfg.Server.MaxConns)
	}
	if cfg.Server.MaxBodyMB != 32 {
		t.Errorf("Server.MaxBodyMB = %d, want 32", cfg.Server.MaxBodyMB)
	}
	if cfg.Storage.DataDir == "" {
		t.Error("Storage.DataDir is empty")
	}
	if cfg.Profiler.ChunkSize != 1024 {
		t.Errorf("Profiler.ChunkSize = %d, want 1024", cfg.Profiler.ChunkSize)
	}
	if cfg.Profiler.QuantileGroups != 4 {
		t.Errorf("Profiler.QuantileGroups = %d, want 4", cfg.Profiler.QuantileGroups)
	}
	if cfg.Profiler.SampleSize != 0 {
		t.Errorf("Profiler.SampleSize = %d, want 0", cfg.Profiler.SampleSize)
	}
	if cfg.Log.Level != "info" {
		t.Errorf("Log.Level = %q, want %q", cfg.Log.Level, "info")
	}
	if cfg.Log.Format != "text" {
		t.Errorf("Log.Format = %q, want %q", cfg.Log.Format, "text")
	}
	if cfg.Server.Token != "" {
		t.Errorf("Server.Token = %q, want empty", cfg.Server.Token)
	}
}

// TestBackendValues verifies backend values override the defaults.
func TestBackendValues(t *testing.T) {
	b := newMemBackend()
	b.strings["server.addr"] = ":5555"
	b.strings["log.format"] = "json"
	b.ints["server.max_conns"] = 10
	b.ints["profiler.sample_size"] = 5000

	cfg, err := loadWith(b, mockKeychain{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Server.Addr != ":5555" {
		t.Errorf("Server.Addr = %q, want %q", cfg.Server.Addr, ":5555")
	}
	if cfg.Log.Format != "json" {
		t.Errorf("Log.Format = %q, want %q", cfg.Log.Format, "json")
	}
	if cfg.Server.MaxConns != 10 {
		t.Errorf("Server.MaxConns = %d, want 10", cfg.Server.MaxConns)
	}
	if cfg.Profiler.SampleSize != 5000 {
		t.Errorf("Profiler.SampleSize = %d, want 5000", cfg.Profiler.SampleSize)
	}
	if cfg.Server.MaxBodyMB != 32 {
		t.Errorf("Server.MaxBodyMB = %d, want default 32", cfg.Server.MaxBodyMB)
	}
}

// TestEnvOverridesBackend verifies environment variables win over backend values.
func TestEnvOverridesBackend(t *testing.T) {
	b := newMemBackend()
	b.strings["server.addr"] = ":5555"

	t.Setenv("PROFVIEW_SERVER_ADDR", ":6666")
	t.Setenv("PROFVIEW_PROFILER_WORKERS", "8")

	cfg, err := loadWith(b, mockKeychain{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Server.Addr != ":6666" {
		t.Errorf("Server.Addr = %q, want %q", cfg.Server.Addr, ":6666")
	}
	if cfg.Profiler.Workers != 8 {
		t.Errorf("Profiler.Workers = %d, want 8", cfg.Profiler.Workers)
	}
}

// TestEnvBadIntKeepsDefault verifies an unparseable integer env var is skipped.
func TestEnvBadIntKeepsDefault(t *testing.T) {
	t.Setenv("PROFVIEW_SERVER_MAX_CONNS", "not-a-number")

	cfg, err := loadWith(newMemBackend(), mockKeychain{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Server.MaxConns != 64 {
		t.Errorf("Server.MaxConns = %d, want default 64", cfg.Server.MaxConns)
	}
}

// TestTokenFromKeychain verifies the secret store is consulted when no token
// is set via environment.
func TestTokenFromKeychain(t *testing.T) {
	kc := mockKeychain{value: "keychain-secret"}

	cfg, err := loadWith(newMemBackend(), kc)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Server.Token != "keychain-secret" {
		t.Errorf("Server.Token = %q, want %q", cfg.Server.Token, "keychain-secret")
	}
}

// TestEnvTokenBeatsKeychain verifies the environment token takes precedence.
func TestEnvTokenBeatsKeychain(t *testing.T) {
	t.Setenv("PROFVIEW_SERVER_TOKEN", "env-token")

	cfg, err := loadWith(newMemBackend(), mockKeychain{value: "keychain-secret"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Server.Token != "env-token" {
		t.Errorf("Server.Token = %q, want %q", cfg.Server.Token, "env-token")
	}
}

// TestTokenOptional verifies a fully unset token is not an error; the server
// runs unauthenticated.
func TestTokenOptional(t *testing.T) {
	cfg, err := loadWith(newMemBackend(), mockKeychain{err: errors.New("not found")})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Server.Token != "" {
		t.Errorf("Server.Token = %q, want empty", cfg.Server.Token)
	}
}

// TestShowAllSkipsSecrets verifies secrets never appear in config listings.
func TestShowAllSkipsSecrets(t *testing.T) {
	cfg, err := loadWith(newMemBackend(), mockKeychain{value: "keychain-secret"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for _, ki := range ShowAll(cfg) {
		if ki.Key == "server.token" {
			t.Fatal("ShowAll listed the secret key server.token")
		}
		if ki.Value == "keychain-secret" {
			t.Fatalf("ShowAll leaked a secret via key %s", ki.Key)
		}
	}
}

// TestValidKeys verifies the settable key list covers the table minus secrets.
func TestValidKeys(t *testing.T) {
	keys := ValidKeys()

	want := map[string]bool{
		"server.addr":         false,
		"profiler.chunk_size": false,
		"log.level":           false,
	}
	for _, k := range keys {
		if k == "server.token" {
			t.Error("ValidKeys included the secret key server.token")
		}
		if _, ok := want[k]; ok {
			want[k] = true
		}
	}
	for k, seen := range want {
		if !seen {
			t.Errorf("ValidKeys missing %s", k)
		}
	}
}

// TestSetKeyRejectsSecret verifies secrets cannot be written to the plaintext backend.
func TestSetKeyRejectsSecret(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	err := SetKey("server.token", "oops")
	if err == nil {
		t.Fatal("expected error setting a secret key, got nil")
	}
	if !strings.Contains(err.Error(), "PROFVIEW_SERVER_TOKEN") {
		t.Errorf("error = %q, want mention of the env var", err)
	}
}

// TestSetKeyUnknown verifies unknown keys are rejected.
func TestSetKeyUnknown(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	err := SetKey("bogus.key", "1")
	if err == nil {
		t.Fatal("expected error for unknown key, got nil")
	}
	if !strings.Contains(err.Error(), "unknown config key") {
		t.Errorf("error = %q, want unknown config key", err)
	}
}
