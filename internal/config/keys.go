package config

import (
	"fmt"
	"os"

	"github.com/spf13/cast"
)

type keyType int

const (
	kString keyType = iota
	kInt
)

type keySpec struct {
	key     string
	typ     keyType
	env     string
	secret  bool
	apply   func(cfg *Config, v any)
	extract func(cfg Config) any
}

var specs = []keySpec{
	{
		key: "server.addr", typ: kString, env: "PROFVIEW_SERVER_ADDR",
		apply:   func(cfg *Config, v any) { cfg.Server.Addr = v.(string) },
		extract: func(cfg Config) any { return cfg.Server.Addr },
	},
	{
		key: "server.token", typ: kString, env: "PROFVIEW_SERVER_TOKEN",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.Server.Token = v.(string) },
		extract: func(cfg Config) any { return cfg.Server.Token },
	},
	{
		key: "server.max_conns", typ: kInt, env: "PROFVIEW_SERVER_MAX_CONNS",
		apply:   func(cfg *Config, v any) { cfg.Server.MaxConns = v.(int) },
		extract: func(cfg Config) any { return cfg.Server.MaxConns },
	},
	{
		key: "server.max_body_mb", typ: kInt, env: "PROFVIEW_SERVER_MAX_BODY_MB",
		apply:   func(cfg *Config, v any) { cfg.Server.MaxBodyMB = v.(int) },
		extract: func(cfg Config) any { return cfg.Server.MaxBodyMB },
	},
	{
		key: "storage.data_dir", typ: kString, env: "PROFVIEW_STORAGE_DATA_DIR",
		apply:   func(cfg *Config, v any) { cfg.Storage.DataDir = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.DataDir },
	},
	{
		key: "profiler.sample_size", typ: kInt, env: "PROFVIEW_PROFILER_SAMPLE_SIZE",
		apply:   func(cfg *Config, v any) { cfg.Profiler.SampleSize = v.(int) },
		extract: func(cfg Config) any { return cfg.Profiler.SampleSize },
	},
	{
		key: "profiler.chunk_size", typ: kInt, env: "PROFVIEW_PROFILER_CHUNK_SIZE",
		apply:   func(cfg *Config, v any) { cfg.Profiler.ChunkSize = v.(int) },
		extract: func(cfg Config) any { return cfg.Profiler.ChunkSize },
	},
	{
		key: "profiler.workers", typ: kInt, env: "PROFVIEW_PROFILER_WORKERS",
		apply:   func(cfg *Config, v any) { cfg.Profiler.Workers = v.(int) },
		extract: func(cfg Config) any { return cfg.Profiler.Workers },
	},
	{
		key: "profiler.seed", typ: kInt, env: "PROFVIEW_PROFILER_SEED",
		apply:   func(cfg *Config, v any) { cfg.Profiler.Seed = v.(int) },
		extract: func(cfg Config) any { return cfg.Profiler.Seed },
	},
	{
		key: "profiler.quantile_groups", typ: kInt, env: "PROFVIEW_PROFILER_QUANTILE_GROUPS",
		apply:   func(cfg *Config, v any) { cfg.Profiler.QuantileGroups = v.(int) },
		extract: func(cfg Config) any { return cfg.Profiler.QuantileGroups },
	},
	{
		key: "profiler.histogram_bins", typ: kInt, env: "PROFVIEW_PROFILER_HISTOGRAM_BINS",
		apply:   func(cfg *Config, v any) { cfg.Profiler.HistogramBins = v.(int) },
		extract: func(cfg Config) any { return cfg.Profiler.HistogramBins },
	},
	{
		key: "presets.path", typ: kString, env: "PROFVIEW_PRESETS_PATH",
		apply:   func(cfg *Config, v any) { cfg.Presets.Path = v.(string) },
		extract: func(cfg Config) any { return cfg.Presets.Path },
	},
	{
		key: "log.level", typ: kString, env: "PROFVIEW_LOG_LEVEL",
		apply:   func(cfg *Config, v any) { cfg.Log.Level = v.(string) },
		extract: func(cfg Config) any { return cfg.Log.Level },
	},
	{
		key: "log.format", typ: kString, env: "PROFVIEW_LOG_FORMAT",
		apply:   func(cfg *Config, v any) { cfg.Log.Format = v.(string) },
		extract: func(cfg Config) any { return cfg.Log.Format },
	},
}

func applyBackend(cfg *Config, b ConfigBackend) error {
	for _, s := range specs {
		if s.secret {
			continue
		}
		switch s.typ {
		case kString:
			v, ok, err := b.GetString(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
		case kInt:
			v, ok, err := b.GetInt(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
		}
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	for _, s := range specs {
		if s.env == "" {
			continue
		}
		raw := os.Getenv(s.env)
		if raw == "" {
			continue
		}
		switch s.typ {
		case kString:
			s.apply(cfg, raw)
		case kInt:
			if i, err := cast.ToIntE(raw); err == nil {
				s.apply(cfg, i)
			} else {
				fmt.Fprintf(os.Stderr, "[WARN] could not parse integer from env var %s=%q: %v. Using default value.\n", s.env, raw, err)
			}
		}
	}
}
