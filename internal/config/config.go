package config

import (
	"fmt"
	"os"
	"time"
)

type Config struct {
	Server    ServerConfig
	LLM       LLMConfig
	Index     IndexConfig
	Retrieval RetrievalConfig
	Prompts   PromptsConfig
	Log       LogConfig
	API       APIConfig
}

type ServerConfig struct {
	Port int
}

type LLMConfig struct {
	BaseURL           string
	APIKey            string
	ChatModel         string
	EmbedModel        string
	Timeout           string
	RequestsPerSecond float64
}

type IndexConfig struct {
	DataDir   string
	Namespace string
	Timeout   string
}

type RetrievalConfig struct {
	TopK         int
	MaxToolCalls int
	CacheTTL     string
}

type PromptsConfig struct {
	Dir string
}

type LogConfig struct {
	Level string
}

type APIConfig struct {
	Token string
}

func defaults() Config {
	return Config{
		Server: ServerConfig{
			Port: 8000,
		},
		LLM: LLMConfig{
			BaseURL:           "https://api.openai.com/v1",
			ChatModel:         "gpt-4o",
			EmbedModel:        "text-embedding-3-small",
			Timeout:           "60s",
			RequestsPerSecond: 5,
		},
		Index: IndexConfig{
			DataDir:   defaultDataDir(),
			Namespace: "default",
			Timeout:   "10s",
		},
		Retrieval: RetrievalConfig{
			TopK:         4,
			MaxToolCalls: 5,
			CacheTTL:     "30m",
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load reads configuration from the YAML file at
// $XDG_CONFIG_HOME/claimcheck/config.yaml, then applies CLAIMCHECK_*
// environment overrides. Secrets (the model API key and the API bearer
// token) are only read from the environment.
func Load() (Config, error) {
	return loadWith(newFileBackend(configFilePath()))
}

func loadWith(b ConfigBackend) (Config, error) {
	cfg := defaults()

	if err := applyBackend(&cfg, b); err != nil {
		return Config{}, err
	}

	applyEnvOverrides(&cfg)

	if cfg.LLM.APIKey == "" {
		return Config{}, fmt.Errorf("missing required config: model API key. " +
			"Set it via environment variable CLAIMCHECK_LLM_API_KEY")
	}
	if cfg.Retrieval.TopK <= 0 {
		fmt.Fprintf(os.Stderr, "[WARN] retrieval.top_k=%d is not positive. Using default value 4.\n", cfg.Retrieval.TopK)
		cfg.Retrieval.TopK = 4
	}

	return cfg, nil
}

// Duration parses a duration config value, falling back when raw is empty
// or malformed.
func Duration(key, raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		fmt.Fprintf(os.Stderr, "[WARN] invalid duration for %s=%q. Using default value %s.\n", key, raw, fallback)
		return fallback
	}
	return d
}
