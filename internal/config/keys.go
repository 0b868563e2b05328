package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type keyType int

const (
	kString keyType = iota
	kInt
	kFloat
)

type keySpec struct {
	key    string
	typ    keyType
	env    string
	secret bool

	// validate checks a raw value before it is written by `config set`.
	validate func(raw string) error

	apply   func(cfg *Config, v any)
	extract func(cfg Config) any
}

var specs = []keySpec{
	{
		key: "server.port", typ: kInt, env: "CLAIMCHECK_SERVER_PORT",
		validate: portRange,
		apply:    func(cfg *Config, v any) { cfg.Server.Port = v.(int) },
		extract:  func(cfg Config) any { return cfg.Server.Port },
	},
	{
		key: "llm.base_url", typ: kString, env: "CLAIMCHECK_LLM_BASE_URL",
		apply:   func(cfg *Config, v any) { cfg.LLM.BaseURL = v.(string) },
		extract: func(cfg Config) any { return cfg.LLM.BaseURL },
	},
	{
		key: "llm.api_key", typ: kString, env: "CLAIMCHECK_LLM_API_KEY",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.LLM.APIKey = v.(string) },
		extract: func(cfg Config) any { return cfg.LLM.APIKey },
	},
	{
		key: "llm.chat_model", typ: kString, env: "CLAIMCHECK_LLM_CHAT_MODEL",
		apply:   func(cfg *Config, v any) { cfg.LLM.ChatModel = v.(string) },
		extract: func(cfg Config) any { return cfg.LLM.ChatModel },
	},
	{
		key: "llm.embed_model", typ: kString, env: "CLAIMCHECK_LLM_EMBED_MODEL",
		apply:   func(cfg *Config, v any) { cfg.LLM.EmbedModel = v.(string) },
		extract: func(cfg Config) any { return cfg.LLM.EmbedModel },
	},
	{
		key: "llm.timeout", typ: kString, env: "CLAIMCHECK_LLM_TIMEOUT",
		validate: positiveDuration,
		apply:    func(cfg *Config, v any) { cfg.LLM.Timeout = v.(string) },
		extract:  func(cfg Config) any { return cfg.LLM.Timeout },
	},
	{
		key: "llm.requests_per_second", typ: kFloat, env: "CLAIMCHECK_LLM_REQUESTS_PER_SECOND",
		validate: nonNegativeFloat,
		apply:    func(cfg *Config, v any) { cfg.LLM.RequestsPerSecond = v.(float64) },
		extract:  func(cfg Config) any { return cfg.LLM.RequestsPerSecond },
	},
	{
		key: "index.data_dir", typ: kString, env: "CLAIMCHECK_INDEX_DATA_DIR",
		apply:   func(cfg *Config, v any) { cfg.Index.DataDir = v.(string) },
		extract: func(cfg Config) any { return cfg.Index.DataDir },
	},
	{
		key: "index.namespace", typ: kString, env: "CLAIMCHECK_INDEX_NAMESPACE",
		apply:   func(cfg *Config, v any) { cfg.Index.Namespace = v.(string) },
		extract: func(cfg Config) any { return cfg.Index.Namespace },
	},
	{
		key: "index.timeout", typ: kString, env: "CLAIMCHECK_INDEX_TIMEOUT",
		validate: positiveDuration,
		apply:    func(cfg *Config, v any) { cfg.Index.Timeout = v.(string) },
		extract:  func(cfg Config) any { return cfg.Index.Timeout },
	},
	{
		key: "retrieval.top_k", typ: kInt, env: "CLAIMCHECK_RETRIEVAL_TOP_K",
		validate: intBetween(1, 20),
		apply:    func(cfg *Config, v any) { cfg.Retrieval.TopK = v.(int) },
		extract:  func(cfg Config) any { return cfg.Retrieval.TopK },
	},
	{
		key: "retrieval.max_tool_calls", typ: kInt, env: "CLAIMCHECK_RETRIEVAL_MAX_TOOL_CALLS",
		validate: intBetween(1, 8),
		apply:    func(cfg *Config, v any) { cfg.Retrieval.MaxToolCalls = v.(int) },
		extract:  func(cfg Config) any { return cfg.Retrieval.MaxToolCalls },
	},
	{
		key: "retrieval.cache_ttl", typ: kString, env: "CLAIMCHECK_RETRIEVAL_CACHE_TTL",
		validate: positiveDuration,
		apply:    func(cfg *Config, v any) { cfg.Retrieval.CacheTTL = v.(string) },
		extract:  func(cfg Config) any { return cfg.Retrieval.CacheTTL },
	},
	{
		key: "prompts.dir", typ: kString, env: "CLAIMCHECK_PROMPTS_DIR",
		apply:   func(cfg *Config, v any) { cfg.Prompts.Dir = v.(string) },
		extract: func(cfg Config) any { return cfg.Prompts.Dir },
	},
	{
		key: "log.level", typ: kString, env: "CLAIMCHECK_LOG_LEVEL",
		validate: logLevel,
		apply:    func(cfg *Config, v any) { cfg.Log.Level = v.(string) },
		extract:  func(cfg Config) any { return cfg.Log.Level },
	},
	{
		key: "api.token", typ: kString, env: "CLAIMCHECK_API_TOKEN",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.API.Token = v.(string) },
		extract: func(cfg Config) any { return cfg.API.Token },
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
		case kFloat:
			v, ok, err := b.GetString(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok && v != "" {
				if f, err := strconv.ParseFloat(v, 64); err == nil {
					s.apply(cfg, f)
				} else {
					fmt.Fprintf(os.Stderr, "[WARN] could not parse float from config key %s=%q: %v. Using default value.\n", s.key, v, err)
				}
			}
		}
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	for _, s := range specs {
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
		case kFloat:
			if f, err := strconv.ParseFloat(raw, 64); err == nil {
				s.apply(cfg, f)
			} else {
				fmt.Fprintf(os.Stderr, "[WARN] could not parse float from env var %s=%q: %v. Using default value.\n", s.env, raw, err)
			}
		}
	}
}

func positiveDuration(raw string) error {
	d, err := time.ParseDuration(raw)
	if err != nil {
		return err
	}
	if d <= 0 {
		return fmt.Errorf("duration must be positive, got %s", d)
	}
	return nil
}

func intBetween(lo, hi int) func(string) error {
	return func(raw string) error {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return err
		}
		if n < lo || n > hi {
			return fmt.Errorf("must be between %d and %d, got %d", lo, hi, n)
		}
		return nil
	}
}

var portRange = intBetween(1, 65535)

func nonNegativeFloat(raw string) error {
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return err
	}
	if f < 0 {
		return fmt.Errorf("must not be negative, got %v", f)
	}
	return nil
}

func logLevel(raw string) error {
	switch strings.ToLower(raw) {
	case "debug", "info", "warn", "error":
		return nil
	}
	return fmt.Errorf("must be one of debug, info, warn, error; got %q", raw)
}
