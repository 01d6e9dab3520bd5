package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Config represents runtime configuration for the service.
type Config struct {
	BasicConfig BasicConfig               `json:"basic_config"`
	Databases   map[string]DatabaseConfig `json:"databases"`
	Redis       RedisConfig               `json:"redis"`
	Providers   map[string]ProviderConfig `json:"providers"`
	Router      RouterConfig              `json:"router"`
	RAG         RAGConfig                 `json:"rag"`
}

type BasicConfig struct {
	ServerAddress     string `json:"server_address"`
	Environment       string `json:"environment"`
	Provider          string `json:"provider"`
	MinWorkers        int    `json:"min_workers"`
	MaxWorkers        int    `json:"max_workers"`
	QueueSize         int    `json:"queue_size"`
	WorkerIdleTimeout int    `json:"worker_idle_timeout"` // minutes
	RequestTimeout    int    `json:"request_timeout"`     // seconds, per /api/ask request
}

type DatabaseConfig struct {
	Driver   string `json:"driver"` // sqlite3 or mysql
	DSN      string `json:"dsn"`    // sqlite path
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Username string `json:"username"`
	Password string `json:"password"`
	DBName   string `json:"db_name"`
	Params   string `json:"params"`
}

type RedisConfig struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Username string `json:"username"`
	Password string `json:"password"`
	DB       int    `json:"db"`
	Enabled  bool   `json:"enabled"`
}

type ProviderConfig struct {
	BaseURL string `json:"base_url"`
	Model   string `json:"model"`
	APIKey  string `json:"api_key"`
}

// RouterConfig tunes the question router.
type RouterConfig struct {
	Mode            string `json:"mode"`              // dispatch (default) or react
	MaxQueryRetries int    `json:"max_query_retries"` // SQL regenerate attempts before giving up
	EnableMemory    *bool  `json:"memory_enabled"`
	MemoryTTL       int    `json:"memory_ttl"` // minutes, redis memory only
}

// RAGConfig locates the document index and the embedding endpoint.
type RAGConfig struct {
	IndexPath     string  `json:"index_path"`
	EmbedBaseURL  string  `json:"embed_base_url"`
	EmbedModel    string  `json:"embed_model"`
	TopK          int     `json:"top_k"`
	MinSimilarity float32 `json:"min_similarity"`
}

const (
	DefaultMaxQueryRetries = 3
	DefaultTopK            = 3
	DefaultMinSimilarity   = 0.3
)

// Load reads configuration from the provided path (defaults to config.json).
func Load(path string) (*Config, error) {
	if path == "" {
		path = "config.json"
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve config path: %w", err)
	}

	file, err := os.Open(absPath)
	if err != nil {
		return nil, fmt.Errorf("open config %s: %w", absPath, err)
	}
	defer file.Close()

	var cfg Config
	if err := json.NewDecoder(file).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	if len(cfg.Databases) == 0 {
		return nil, fmt.Errorf("databases must be configured")
	}
	for name, db := range cfg.Databases {
		if db.Driver == "sqlite3" && db.DSN != "" && db.DSN != ":memory:" && !filepath.IsAbs(db.DSN) {
			db.DSN = filepath.Join(filepath.Dir(absPath), db.DSN)
			cfg.Databases[name] = db
		}
	}
	if cfg.Router.MaxQueryRetries <= 0 {
		cfg.Router.MaxQueryRetries = DefaultMaxQueryRetries
	}
	if cfg.RAG.TopK <= 0 {
		cfg.RAG.TopK = DefaultTopK
	}
	if cfg.RAG.MinSimilarity <= 0 {
		cfg.RAG.MinSimilarity = DefaultMinSimilarity
	}
	if cfg.RAG.IndexPath != "" && !filepath.IsAbs(cfg.RAG.IndexPath) {
		cfg.RAG.IndexPath = filepath.Join(filepath.Dir(absPath), cfg.RAG.IndexPath)
	}

	return &cfg, nil
}

// MemoryEnabled reports whether per-session conversation memory is on.
// Defaults to true when unset.
func (r RouterConfig) MemoryEnabled() bool {
	if r.EnableMemory == nil {
		return true
	}
	return *r.EnableMemory
}
