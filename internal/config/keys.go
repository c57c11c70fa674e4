package config

import (
	"fmt"
	"os"
	"strconv"
)

type keyType int

const (
	kString keyType = iota
	kInt
	kBool
)

type keySpec struct {
	key     string
	typ     keyType
	env     string
	apply   func(cfg *Config, v any)
	extract func(cfg Config) any
}

var specs = []keySpec{
	{
		key: "api.base_url", typ: kString, env: "RAGDESK_API_BASE_URL",
		apply:   func(cfg *Config, v any) { cfg.API.BaseURL = v.(string) },
		extract: func(cfg Config) any { return cfg.API.BaseURL },
	},
	{
		key: "api.timeout_ms", typ: kInt, env: "RAGDESK_API_TIMEOUT_MS",
		apply:   func(cfg *Config, v any) { cfg.API.TimeoutMS = v.(int) },
		extract: func(cfg Config) any { return cfg.API.TimeoutMS },
	},
	{
		key: "api.health_timeout_ms", typ: kInt, env: "RAGDESK_API_HEALTH_TIMEOUT_MS",
		apply:   func(cfg *Config, v any) { cfg.API.HealthTimeoutMS = v.(int) },
		extract: func(cfg Config) any { return cfg.API.HealthTimeoutMS },
	},
	{
		key: "query.top_k", typ: kInt, env: "RAGDESK_QUERY_TOP_K",
		apply:   func(cfg *Config, v any) { cfg.Query.TopK = v.(int) },
		extract: func(cfg Config) any { return cfg.Query.TopK },
	},
	{
		key: "query.use_rerank", typ: kBool, env: "RAGDESK_QUERY_USE_RERANK",
		apply:   func(cfg *Config, v any) { cfg.Query.UseRerank = v.(bool) },
		extract: func(cfg Config) any { return cfg.Query.UseRerank },
	},
	{
		key: "log.level", typ: kString, env: "RAGDESK_LOG_LEVEL",
		apply:   func(cfg *Config, v any) { cfg.Log.Level = v.(string) },
		extract: func(cfg Config) any { return cfg.Log.Level },
	},
	{
		key: "log.file", typ: kString, env: "RAGDESK_LOG_FILE",
		apply:   func(cfg *Config, v any) { cfg.Log.File = v.(string) },
		extract: func(cfg Config) any { return cfg.Log.File },
	},
	{
		key: "storage.data_dir", typ: kString, env: "RAGDESK_STORAGE_DATA_DIR",
		apply:   func(cfg *Config, v any) { cfg.Storage.DataDir = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.DataDir },
	},
	{
		key: "history.enabled", typ: kBool, env: "RAGDESK_HISTORY_ENABLED",
		apply:   func(cfg *Config, v any) { cfg.History.Enabled = v.(bool) },
		extract: func(cfg Config) any { return cfg.History.Enabled },
	},
	{
		key: "devserver.port", typ: kInt, env: "RAGDESK_DEVSERVER_PORT",
		apply:   func(cfg *Config, v any) { cfg.DevServer.Port = v.(int) },
		extract: func(cfg Config) any { return cfg.DevServer.Port },
	},
}

func applyBackend(cfg *Config, b ConfigBackend) error {
	for _, s := range specs {
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
		case kBool:
			v, ok, err := b.GetString(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok && v != "" {
				if bv, err := strconv.ParseBool(v); err == nil {
					s.apply(cfg, bv)
				} else {
					fmt.Fprintf(os.Stderr, "[WARN] could not parse bool from config key %s=%q: %v. Using default value.\n", s.key, v, err)
				}
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
			if i, err := strconv.Atoi(raw); err == nil {
				s.apply(cfg, i)
			} else {
				fmt.Fprintf(os.Stderr, "[WARN] could not parse integer from env var %s=%q: %v. Using default value.\n", s.env, raw, err)
			}
		case kBool:
			if b, err := strconv.ParseBool(raw); err == nil {
				s.apply(cfg, b)
			} else {
				fmt.Fprintf(os.Stderr, "[WARN] could not parse bool from env var %s=%q: %v. Using default value.\n", s.env, raw, err)
			}
		}
	}
}
