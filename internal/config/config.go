package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds the modelmux gateway configuration.
type Config struct {
	HTTP      HTTPConfig       `yaml:"http"`
	Providers []ProviderConfig `yaml:"providers"` // failover order
	Routing   RoutingConfig    `yaml:"routing"`
	Pricing   []PriceConfig    `yaml:"pricing"`
	Store     StoreConfig      `yaml:"store"`
	RAG       RAGConfig        `yaml:"rag"`
	Cache     CacheConfig      `yaml:"cache"`
	Ledger    LedgerConfig     `yaml:"ledger"`
	Auth      AuthConfig       `yaml:"auth"`
	Logging   LoggingConfig    `yaml:"logging"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error (default: determined by env)
}

// AuthConfig holds API authentication settings.
type AuthConfig struct {
	APIKeys []string `yaml:"api_keys"`
}

// HTTPConfig holds HTTP server settings.
type HTTPConfig struct {
	Port            int `yaml:"port"`
	ReadTimeoutSec  int `yaml:"read_timeout_sec"`
	WriteTimeoutSec int `yaml:"write_timeout_sec"`
	ShutdownSec     int `yaml:"shutdown_timeout_sec"`
}

// ProviderConfig holds settings for one backend provider. List order
// in the config file defines the failover order.
type ProviderConfig struct {
	ID             string `yaml:"id"`
	Kind           string `yaml:"kind"` // openai, azure, google, bedrock
	APIKey         string `yaml:"api_key"`
	BaseURL        string `yaml:"base_url"`
	Endpoint       string `yaml:"endpoint"`    // azure resource URL
	APIVersion     string `yaml:"api_version"` // azure
	Project        string `yaml:"project"`     // google vertex
	Location       string `yaml:"location"`    // google vertex
	Region         string `yaml:"region"`      // bedrock
	Model          string `yaml:"model"`
	EmbeddingModel string `yaml:"embedding_model"`
	VisionModel    string `yaml:"vision_model"`
	Dimensions     int    `yaml:"dimensions"`
}

// RoutingConfig holds failover behavior settings.
type RoutingConfig struct {
	RetryBackoffMS    int `yaml:"retry_backoff_ms"`
	RequestTimeoutSec int `yaml:"request_timeout_sec"`
}

// PriceConfig holds a single pricing table entry.
type PriceConfig struct {
	Provider        string  `yaml:"provider"`
	Model           string  `yaml:"model"`
	PromptPer1K     float64 `yaml:"prompt_per_1k"`
	CompletionPer1K float64 `yaml:"completion_per_1k"`
}

// StoreConfig holds vector store settings.
type StoreConfig struct {
	Driver string       `yaml:"driver"` // memory, redis, qdrant (default: memory)
	Redis  RedisConfig  `yaml:"redis"`
	Qdrant QdrantConfig `yaml:"qdrant"`
}

// RedisConfig holds Redis connection settings, shared by the redis
// vector store, the embedding cache and the ledger mirror.
type RedisConfig struct {
	Addrs            []string `yaml:"addrs"`
	Password         string   `yaml:"password"`
	KeyPrefix        string   `yaml:"key_prefix"`
	ReadinessTimeout int      `yaml:"readiness_timeout_sec"`
}

// QdrantConfig holds Qdrant connection settings.
type QdrantConfig struct {
	Host       string `yaml:"host"`
	Port       int    `yaml:"port"`
	APIKey     string `yaml:"api_key"`
	Collection string `yaml:"collection"`
	UseTLS     bool   `yaml:"use_tls"`
}

// RAGConfig holds retrieval pipeline settings.
type RAGConfig struct {
	ChunkMaxRunes  int     `yaml:"chunk_max_runes"`
	ChunkOverlap   int     `yaml:"chunk_overlap"`
	TopK           int     `yaml:"top_k"`
	ScoreThreshold float64 `yaml:"score_threshold"`
	SystemPrompt   string  `yaml:"system_prompt"`
	Dimensions     int     `yaml:"dimensions"`
	MaxBatchSize   int     `yaml:"max_batch_size"`
}

// CacheConfig holds embedding cache settings.
type CacheConfig struct {
	Enabled bool `yaml:"enabled"`
	TTLSec  int  `yaml:"ttl_sec"`
}

// LedgerConfig holds usage ledger settings.
type LedgerConfig struct {
	MirrorEnabled bool   `yaml:"mirror_enabled"`
	KeyPrefix     string `yaml:"key_prefix"`
	TTLDays       int    `yaml:"ttl_days"`
}

// Load reads configuration from a YAML file by environment name (local, dev, prod).
func Load(env string) (Config, error) {
	configPath := findConfigPath(env)

	data, err := os.ReadFile(filepath.Clean(configPath))
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %s: %w", configPath, err)
	}

	// Substitute env variables of the form ${VAR}
	data = expandEnvVars(data)

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// MustLoad loads configuration or panics.
func MustLoad(env string) Config {
	cfg, err := Load(env)
	if err != nil {
		panic(err)
	}
	return cfg
}

// GetEnv returns the current environment from the ENV variable, defaulting to "local".
func GetEnv() string {
	if env := os.Getenv("ENV"); env != "" {
		return env
	}
	return "local"
}

// ApplyDefaults fills empty fields with default values.
func (c *Config) ApplyDefaults() {
	if c.HTTP.ReadTimeoutSec <= 0 {
		c.HTTP.ReadTimeoutSec = 10
	}
	if c.HTTP.WriteTimeoutSec <= 0 {
		c.HTTP.WriteTimeoutSec = 60
	}
	if c.HTTP.ShutdownSec <= 0 {
		c.HTTP.ShutdownSec = 10
	}
	if c.Routing.RetryBackoffMS <= 0 {
		c.Routing.RetryBackoffMS = 500
	}
	if c.Routing.RequestTimeoutSec <= 0 {
		c.Routing.RequestTimeoutSec = 60
	}
	if c.Store.Driver == "" {
		c.Store.Driver = "memory"
	}
	if c.Store.Redis.KeyPrefix == "" {
		c.Store.Redis.KeyPrefix = "modelmux:"
	}
	if c.Store.Redis.ReadinessTimeout <= 0 {
		c.Store.Redis.ReadinessTimeout = 10
	}
	if c.Store.Qdrant.Port <= 0 {
		c.Store.Qdrant.Port = 6334
	}
	if c.Store.Qdrant.Collection == "" {
		c.Store.Qdrant.Collection = "documents"
	}
	if c.RAG.ChunkMaxRunes <= 0 {
		c.RAG.ChunkMaxRunes = 2000
	}
	if c.RAG.ChunkOverlap <= 0 {
		c.RAG.ChunkOverlap = 200
	}
	if c.RAG.TopK <= 0 {
		c.RAG.TopK = 5
	}
	if c.RAG.MaxBatchSize <= 0 {
		c.RAG.MaxBatchSize = 100
	}
	if c.Cache.TTLSec <= 0 {
		c.Cache.TTLSec = 3600
	}
	if c.Ledger.KeyPrefix == "" {
		c.Ledger.KeyPrefix = "modelmux:"
	}
	if c.Ledger.TTLDays <= 0 {
		c.Ledger.TTLDays = 90
	}
}

// Validate checks the configuration for correctness.
func (c *Config) Validate() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port must be between 1 and 65535, got %d", c.HTTP.Port)
	}
	if len(c.Providers) == 0 {
		return fmt.Errorf("providers is required")
	}
	seen := make(map[string]struct{}, len(c.Providers))
	for i, p := range c.Providers {
		if p.ID == "" {
			return fmt.Errorf("providers[%d].id is required", i)
		}
		if _, dup := seen[p.ID]; dup {
			return fmt.Errorf("providers[%d].id %q is duplicated", i, p.ID)
		}
		seen[p.ID] = struct{}{}
		switch p.Kind {
		case "openai", "azure", "google", "bedrock":
			// ok
		default:
			return fmt.Errorf(
				"providers[%d].kind must be one of openai, azure, google, bedrock, got %q", i, p.Kind)
		}
		if p.Model == "" {
			return fmt.Errorf("providers[%d].model is required", i)
		}
	}
	switch c.Store.Driver {
	case "memory":
		// no connection settings needed
	case "redis":
		if len(c.Store.Redis.Addrs) == 0 {
			return fmt.Errorf("store.redis.addrs is required for the redis driver")
		}
	case "qdrant":
		if c.Store.Qdrant.Host == "" {
			return fmt.Errorf("store.qdrant.host is required for the qdrant driver")
		}
	default:
		return fmt.Errorf("store.driver must be one of memory, redis, qdrant, got %q", c.Store.Driver)
	}
	if c.RAG.ChunkOverlap >= c.RAG.ChunkMaxRunes {
		return fmt.Errorf("rag.chunk_overlap must be less than rag.chunk_max_runes")
	}
	if c.RAG.ScoreThreshold < 0 || c.RAG.ScoreThreshold > 1 {
		return fmt.Errorf("rag.score_threshold must be between 0 and 1, got %g", c.RAG.ScoreThreshold)
	}
	if (c.Cache.Enabled || c.Ledger.MirrorEnabled) && len(c.Store.Redis.Addrs) == 0 {
		return fmt.Errorf("store.redis.addrs is required when the cache or ledger mirror is enabled")
	}
	return nil
}

// findConfigPath locates the config file.
func findConfigPath(env string) string {
	filename := fmt.Sprintf("%s.yaml", env)

	// 1. Check ./config/
	if path := filepath.Join("config", filename); fileExists(path) {
		return path
	}

	// 2. Check relative to the source file
	_, b, _, _ := runtime.Caller(0)
	projectRoot := filepath.Dir(filepath.Dir(filepath.Dir(b))) // internal/config -> project root
	if path := filepath.Join(projectRoot, "config", filename); fileExists(path) {
		return path
	}

	// 3. Fallback to ./config/
	return filepath.Join("config", filename)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// expandEnvVars replaces ${VAR} and ${VAR:-default} with environment variable values.
var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

func expandEnvVars(data []byte) []byte {
	return envVarRegex.ReplaceAllFunc(data, func(match []byte) []byte {
		expr := string(match[2 : len(match)-1]) // strip ${ and }
		varName, defaultVal, hasDefault := strings.Cut(expr, ":-")
		val := os.Getenv(varName)
		if val == "" && hasDefault {
			val = defaultVal
		}
		return []byte(val)
	})
}
