// Package config handles loading and validating gateway configuration.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Config is the top-level configuration for the Luthien gateway.
type Config struct {
	Server   ServerConfig   `koanf:"server"`
	Backends BackendsConfig `koanf:"backends"`
	Sinks    SinksConfig    `koanf:"sinks"`
	Stream   StreamConfig   `koanf:"stream"`
	Policy   PolicyConfig   `koanf:"policy"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port         int           `koanf:"port"`
	ReadTimeout  time.Duration `koanf:"read_timeout"`
	WriteTimeout time.Duration `koanf:"write_timeout"`
}

// BackendsConfig holds the upstream connection settings for each
// client-facing API this gateway serves end to end.
type BackendsConfig struct {
	OpenAI    BackendConfig `koanf:"openai"`
	Anthropic BackendConfig `koanf:"anthropic"`
}

// BackendConfig holds the settings for a single upstream backend.
type BackendConfig struct {
	APIKey  string `koanf:"api_key"`
	BaseURL string `koanf:"base_url"`
}

// StreamConfig tunes the streaming orchestrator: how long the idle
// watchdog waits before declaring a stream stalled, and how many chunks
// the egress queue buffers between feeder and drainer.
type StreamConfig struct {
	IdleTimeout    time.Duration `koanf:"idle_timeout"`
	EgressCapacity int           `koanf:"egress_capacity"`
}

// PolicyConfig selects and configures the Policy a pipeline runs.
type PolicyConfig struct {
	// Name selects a built-in policies.* constructor: "noop",
	// "uppercase", "tool_call_judge", or "scripted".
	Name string `koanf:"name"`

	// Destructive lists the keyword-judge's blocked substrings when
	// Name is "tool_call_judge" and JudgeModel is unset.
	Destructive []string `koanf:"destructive"`

	// JudgeModel, when set, switches "tool_call_judge" from the
	// keyword judge to an LLM judge calling this model over the
	// OpenAI-compatible backend.
	JudgeModel        string `koanf:"judge_model"`
	JudgeSystemPrompt string `koanf:"judge_system_prompt"`
}

// SinksConfig holds connection settings and the routing table for
// observability sinks.
type SinksConfig struct {
	Database DatabaseSinkConfig `koanf:"database"`
	Pubsub   PubsubSinkConfig   `koanf:"pubsub"`

	// Routes maps an event-type class (e.g. "policy", "transaction") to
	// the sink names that should receive it. Classes absent from Routes
	// fall back to Default.
	Routes  map[string][]string `koanf:"routes"`
	Default []string            `koanf:"default"`
}

// DatabaseSinkConfig holds the sqlite file path for the database sink.
type DatabaseSinkConfig struct {
	Path string `koanf:"path"`
}

// PubsubSinkConfig holds the Redis connection settings and channel name
// for the pubsub sink.
type PubsubSinkConfig struct {
	Addr    string `koanf:"addr"`
	Channel string `koanf:"channel"`
}

// Load reads configuration from a YAML file, layers environment variable
// overrides on top, and returns a fully populated Config.
func Load(path string) (*Config, error) {
	// Load .env file into the process environment (ignored if not present).
	// This is the equivalent of require('dotenv').config() in Node.
	_ = godotenv.Load()

	// Create a new koanf instance. The "." delimiter tells koanf how to
	// separate nested keys internally (e.g., "server.port").
	k := koanf.New(".")

	// Load the YAML config file. file.Provider reads the file,
	// yaml.Parser() decodes the YAML format into koanf's internal map.
	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		return nil, fmt.Errorf("loading config file: %w", err)
	}

	// Layer environment variables on top. Any env var starting with
	// "LUTHIEN_" can override a config value. The callback transforms
	// the env var name into a koanf key path:
	//   LUTHIEN_SERVER_PORT -> server.port
	if err := k.Load(env.Provider("LUTHIEN_", ".", func(s string) string {
		return strings.ReplaceAll(
			strings.ToLower(strings.TrimPrefix(s, "LUTHIEN_")),
			"_", ".",
		)
	}), nil); err != nil {
		return nil, fmt.Errorf("loading env vars: %w", err)
	}

	// Unmarshal the loaded key-value pairs into our Config struct.
	// The "" means start from the root. &cfg passes a pointer so koanf
	// can write into the struct (like passing by reference in Node).
	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	// Expand ${VAR_NAME} placeholders in backend API keys. koanf doesn't
	// do this automatically, so we handle it ourselves using os.Getenv
	// to look up the actual environment variable value.
	cfg.Backends.OpenAI.APIKey = expandEnv(cfg.Backends.OpenAI.APIKey)
	cfg.Backends.Anthropic.APIKey = expandEnv(cfg.Backends.Anthropic.APIKey)

	return &cfg, nil
}

func expandEnv(value string) string {
	if strings.HasPrefix(value, "${") && strings.HasSuffix(value, "}") {
		return os.Getenv(value[2 : len(value)-1])
	}
	return value
}
