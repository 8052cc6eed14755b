// Package config loads the email assistant's YAML configuration.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/abdulmalikadeyemo/email-assistant/internal/logging"
)

// EnvPrefix prefixes the environment variables that override file values.
const EnvPrefix = "EMAIL_ASSISTANT_"

// Config is the complete service configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Model     ModelConfig     `yaml:"model"`
	Retrieval RetrievalConfig `yaml:"retrieval"`
	Artifacts ArtifactsConfig `yaml:"artifacts"`
	Store     StoreConfig     `yaml:"store"`
	Jobs      JobsConfig      `yaml:"jobs"`
	Engine    EngineConfig    `yaml:"engine"`
	Workflow  WorkflowConfig  `yaml:"workflow"`
	Log       LogConfig       `yaml:"log"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

type ServerConfig struct {
	Addr            string        `yaml:"addr"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	MaxBodyBytes    int64         `yaml:"max_body_bytes"`
}

// ModelConfig selects the chat model backend.
type ModelConfig struct {
	// Provider is one of openai, groq, anthropic, google or mock.
	Provider    string      `yaml:"provider"`
	Name        string      `yaml:"name"`
	APIKey      string      `yaml:"api_key"`
	BaseURL     string      `yaml:"base_url"`
	Temperature *float64    `yaml:"temperature"`
	MaxTokens   int         `yaml:"max_tokens"`
	Retry       RetryConfig `yaml:"retry"`
}

type RetryConfig struct {
	MaxAttempts int           `yaml:"max_attempts"`
	BaseDelay   time.Duration `yaml:"base_delay"`
	MaxDelay    time.Duration `yaml:"max_delay"`
}

// RetrievalConfig configures the knowledge base used for research.
type RetrievalConfig struct {
	// Index is sqlite or memory.
	Index string `yaml:"index"`
	Path  string `yaml:"path"`

	// Embedder is openai or hash.
	Embedder       string `yaml:"embedder"`
	EmbeddingModel string `yaml:"embedding_model"`
	Dimensions     int    `yaml:"dimensions"`
	APIKey         string `yaml:"api_key"`
	BaseURL        string `yaml:"base_url"`

	ChunkSize    int `yaml:"chunk_size"`
	ChunkOverlap int `yaml:"chunk_overlap"`
}

type ArtifactsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Dir     string `yaml:"dir"`
	PerRun  bool   `yaml:"per_run"`
}

// StoreConfig configures the per-step state store. An empty driver disables
// step persistence.
type StoreConfig struct {
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
}

type JobsConfig struct {
	// Store is memory or redis.
	Store         string        `yaml:"store"`
	MaxConcurrent int64         `yaml:"max_concurrent"`
	Timeout       time.Duration `yaml:"timeout"`
	Redis         RedisConfig   `yaml:"redis"`
}

type RedisConfig struct {
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	Prefix   string        `yaml:"prefix"`
	TTL      time.Duration `yaml:"ttl"`
}

type EngineConfig struct {
	MaxSteps    int           `yaml:"max_steps"`
	NodeTimeout time.Duration `yaml:"node_timeout"`
}

// WorkflowConfig holds the reply workflow's options and prompt defaults.
type WorkflowConfig struct {
	Company       string `yaml:"company"`
	Signer        string `yaml:"signer"`
	RouteResearch bool   `yaml:"route_research"`
	MaxQuestions  int    `yaml:"max_questions"`
	RetrievalK    int    `yaml:"retrieval_k"`

	// PromptsDir holds *.tmpl files that replace the built-in prompts of the
	// same name.
	PromptsDir string `yaml:"prompts_dir"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type TelemetryConfig struct {
	Tracing       bool   `yaml:"tracing"`
	ServiceName   string `yaml:"service_name"`
	Metrics       bool   `yaml:"metrics"`
	HistoryPerRun int    `yaml:"history_per_run"`
}

// Default returns the configuration used for fields a file leaves unset.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Addr:            ":8080",
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    5 * time.Minute,
			ShutdownTimeout: 30 * time.Second,
			MaxBodyBytes:    1 << 20,
		},
		Model: ModelConfig{
			Provider: "openai",
			Retry: RetryConfig{
				MaxAttempts: 3,
				BaseDelay:   500 * time.Millisecond,
				MaxDelay:    10 * time.Second,
			},
		},
		Retrieval: RetrievalConfig{
			Index:        "sqlite",
			Path:         "data/knowledge.db",
			Embedder:     "openai",
			ChunkSize:    1000,
			ChunkOverlap: 200,
		},
		Artifacts: ArtifactsConfig{Enabled: true, Dir: "output", PerRun: true},
		Jobs: JobsConfig{
			Store:         "memory",
			MaxConcurrent: 4,
			Timeout:       5 * time.Minute,
			Redis: RedisConfig{
				Addr:   "localhost:6379",
				Prefix: "email-assistant:job:",
				TTL:    24 * time.Hour,
			},
		},
		Engine: EngineConfig{MaxSteps: 25, NodeTimeout: 2 * time.Minute},
		Workflow: WorkflowConfig{
			Company:      "the company",
			Signer:       "The Customer Care Team",
			MaxQuestions: 3,
			RetrievalK:   3,
		},
		Log:       LogConfig{Level: "info", Format: "text"},
		Telemetry: TelemetryConfig{ServiceName: "email-assistant", Metrics: true, HistoryPerRun: 1000},
	}
}

// Load reads the YAML file at path over the defaults, then applies
// environment overrides. An empty path uses the defaults alone.
func Load(path string) (*Config, error) {
	if path == "" {
		cfg := Default()
		applyEnv(&cfg, os.Getenv)
		return &cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML over the defaults. ${VAR} references are expanded from
// the environment before decoding.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	expanded := os.Expand(string(data), os.Getenv)
	dec := yaml.NewDecoder(strings.NewReader(expanded))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	applyEnv(&cfg, os.Getenv)
	return &cfg, nil
}

// providerKeyEnv names the conventional API key variable per provider.
var providerKeyEnv = map[string]string{
	"openai":    "OPENAI_API_KEY",
	"groq":      "GROQ_API_KEY",
	"anthropic": "ANTHROPIC_API_KEY",
	"google":    "GOOGLE_API_KEY",
}

func applyEnv(cfg *Config, getenv func(string) string) {
	str := func(name string, dst *string) {
		if v := getenv(EnvPrefix + name); v != "" {
			*dst = v
		}
	}
	str("SERVER_ADDR", &cfg.Server.Addr)
	str("MODEL_PROVIDER", &cfg.Model.Provider)
	str("MODEL_NAME", &cfg.Model.Name)
	str("MODEL_API_KEY", &cfg.Model.APIKey)
	str("RETRIEVAL_API_KEY", &cfg.Retrieval.APIKey)
	str("STORE_DSN", &cfg.Store.DSN)
	str("REDIS_ADDR", &cfg.Jobs.Redis.Addr)
	str("REDIS_PASSWORD", &cfg.Jobs.Redis.Password)
	str("LOG_LEVEL", &cfg.Log.Level)
	if v := getenv(EnvPrefix + "MAX_CONCURRENT"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
			cfg.Jobs.MaxConcurrent = n
		}
	}

	if cfg.Model.APIKey == "" {
		if name, ok := providerKeyEnv[cfg.Model.Provider]; ok {
			cfg.Model.APIKey = getenv(name)
		}
	}
	if cfg.Retrieval.APIKey == "" && cfg.Retrieval.Embedder == "openai" {
		cfg.Retrieval.APIKey = getenv("OPENAI_API_KEY")
		if cfg.Retrieval.APIKey == "" && cfg.Model.Provider == "openai" {
			cfg.Retrieval.APIKey = cfg.Model.APIKey
		}
	}
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var errs []error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			errs = append(errs, fmt.Errorf(format, args...))
		}
	}

	check(c.Server.Addr != "", "server.addr is required")
	check(c.Server.MaxBodyBytes >= 0, "server.max_body_bytes must be >= 0")

	switch c.Model.Provider {
	case "openai", "groq", "anthropic", "google":
		check(c.Model.APIKey != "", "model.api_key is required for provider %q", c.Model.Provider)
	case "mock":
	default:
		errs = append(errs, fmt.Errorf("model.provider %q is not one of openai, groq, anthropic, google, mock", c.Model.Provider))
	}
	check(c.Model.MaxTokens >= 0, "model.max_tokens must be >= 0")
	check(c.Model.Retry.MaxAttempts >= 1, "model.retry.max_attempts must be >= 1")

	switch c.Retrieval.Index {
	case "sqlite":
		check(c.Retrieval.Path != "", "retrieval.path is required for the sqlite index")
	case "memory":
	default:
		errs = append(errs, fmt.Errorf("retrieval.index %q is not one of sqlite, memory", c.Retrieval.Index))
	}
	switch c.Retrieval.Embedder {
	case "openai":
		check(c.Retrieval.APIKey != "", "retrieval.api_key is required for the openai embedder")
	case "hash":
	default:
		errs = append(errs, fmt.Errorf("retrieval.embedder %q is not one of openai, hash", c.Retrieval.Embedder))
	}
	check(c.Retrieval.ChunkSize > 0, "retrieval.chunk_size must be > 0")
	check(c.Retrieval.ChunkOverlap >= 0 && c.Retrieval.ChunkOverlap < c.Retrieval.ChunkSize,
		"retrieval.chunk_overlap must be in [0, chunk_size)")

	check(!c.Artifacts.Enabled || c.Artifacts.Dir != "", "artifacts.dir is required when artifacts are enabled")

	switch c.Store.Driver {
	case "", "memory":
	case "sqlite", "mysql":
		check(c.Store.DSN != "", "store.dsn is required for driver %q", c.Store.Driver)
	default:
		errs = append(errs, fmt.Errorf("store.driver %q is not one of memory, sqlite, mysql", c.Store.Driver))
	}

	switch c.Jobs.Store {
	case "memory":
	case "redis":
		check(c.Jobs.Redis.Addr != "", "jobs.redis.addr is required for the redis store")
		check(c.Jobs.Redis.TTL >= 0, "jobs.redis.ttl must be >= 0")
	default:
		errs = append(errs, fmt.Errorf("jobs.store %q is not one of memory, redis", c.Jobs.Store))
	}
	check(c.Jobs.MaxConcurrent > 0, "jobs.max_concurrent must be > 0")
	check(c.Jobs.Timeout >= 0, "jobs.timeout must be >= 0")

	check(c.Engine.MaxSteps >= 0, "engine.max_steps must be >= 0")
	check(c.Engine.NodeTimeout >= 0, "engine.node_timeout must be >= 0")

	check(c.Workflow.MaxQuestions > 0, "workflow.max_questions must be > 0")
	check(c.Workflow.RetrievalK > 0, "workflow.retrieval_k must be > 0")

	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, fmt.Errorf("log.level: %w", err))
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log.format %q is not one of text, json", c.Log.Format))
	}

	return errors.Join(errs...)
}
