package config

import "strings"

type Config struct {
	Server   ServerConfig
	Storage  StorageConfig
	Profiler ProfilerConfig
	Presets  PresetsConfig
	Log      LogConfig
}

type ServerConfig struct {
	Addr      string
	Token     string
	MaxConns  int
	MaxBodyMB int
}

type StorageConfig struct {
	DataDir string
}

type ProfilerConfig struct {
	SampleSize     int // 0 profiles every row
	ChunkSize      int
	Workers        int // 0 sizes the pool from the CPU count
	Seed           int // 0 draws a fresh seed per run
	QuantileGroups int
	HistogramBins  int // 0 selects bin count by the Sturges rule
}

type PresetsConfig struct {
	Path string // optional YAML preset file; empty means built-ins only
}

type LogConfig struct {
	Level  string
	Format string
}

func defaults() Config {
	return Config{
		Server: ServerConfig{
			Addr:      ":4400",
			MaxConns:  64,
			MaxBodyMB: 32,
		},
		Storage: StorageConfig{
			DataDir: defaultDataDir(),
		},
		Profiler: ProfilerConfig{
			ChunkSize:      1024,
			QuantileGroups: 4,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads configuration from the platform-native backend, environment
// variables, and the platform secret store.
//
// On macOS the backend is UserDefaults (domain: com.profview.app) and the
// API token falls back to macOS Keychain. On Linux the backend is a JSON
// file at $XDG_CONFIG_HOME/profview/config.json and the token falls back
// to a secrets file under $XDG_DATA_HOME.
//
// Environment variables (PROFVIEW_*) override backend values on all
// platforms. A missing token leaves the server unauthenticated.
func Load() (Config, error) {
	return loadWith(newPlatformBackend(), keychainReader{})
}

// keychain abstracts secret-store access for testing.
type keychain interface {
	Get(service, account string) (string, error)
}

func loadWith(b ConfigBackend, kc keychain) (Config, error) {
	cfg := defaults()

	if err := applyBackend(&cfg, b); err != nil {
		return Config{}, err
	}

	applyEnvOverrides(&cfg)

	// Try the platform secret store for the API token if still empty.
	if cfg.Server.Token == "" {
		if tok, err := kc.Get("profview", "api_token"); err == nil && tok != "" {
			cfg.Server.Token = tok
		}
	}

	return cfg, nil
}

// keychainReader reads from the platform secret store.
type keychainReader struct{}

func (keychainReader) Get(service, account string) (string, error) {
	out, err := keychainExec(service, account)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(out)), nil
}
