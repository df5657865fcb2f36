package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/xxxsen/common/logger"
)

type Config struct {
	Port           int              `json:"port"`
	APIKey         string           `json:"api_key"`
	AllowedOrigins []string         `json:"allowed_origins"`
	LogConfig      logger.LogConfig `json:"log_config"`
	Database       DatabaseConfig   `json:"database"`
	AI             AIConfig         `json:"ai"`
	Chunk          ChunkConfig      `json:"chunk"`
	Crawl          CrawlConfig      `json:"crawl"`
	Search         SearchConfig     `json:"search"`
	Worker         WorkerConfig     `json:"worker"`
	Retention      RetentionConfig  `json:"retention"`
	FileStore      FileStoreConfig  `json:"file_store"`
	HTTPTimeoutSec int              `json:"http_timeout_sec"`
}

type DatabaseConfig struct {
	DSN      string `json:"dsn"`
	Host     string `json:"host"`
	Port     int    `json:"port"`
	User     string `json:"user"`
	Password string `json:"password"`
	DBName   string `json:"dbname"`
	SSLMode  string `json:"sslmode"`
}

type AIConfig struct {
	Provider      string      `json:"provider"`
	Data          interface{} `json:"data"`
	Model         string      `json:"model"`
	EmbedModel    string      `json:"embed_model"`
	Timeout       int         `json:"timeout"`
	MaxInputChars int         `json:"max_input_chars"`
	// DefaultDims is the fallback embedding dimensionality used when the
	// startup probe cannot reach the embedding service.
	DefaultDims   int  `json:"default_embedding_dims"`
	CacheSize     int  `json:"cache_size"`
	CacheTTLHours int  `json:"cache_ttl_hours"`
	DBCache       bool `json:"db_cache"`
}

type ChunkConfig struct {
	TargetSize int `json:"target_size"`
	// Overlap is a pointer so an explicit 0 survives defaulting.
	Overlap *int `json:"overlap"`
}

// OverlapTokens returns the configured overlap after defaults are applied.
func (c ChunkConfig) OverlapTokens() int {
	if c.Overlap == nil {
		return 0
	}
	return *c.Overlap
}

type CrawlConfig struct {
	MaxDepth        int     `json:"max_depth"`
	MaxPages        int     `json:"max_pages"`
	SameDomainOnly  bool    `json:"same_domain_only"`
	AllowSubdomains bool    `json:"allow_subdomains"`
	RateLimitPerSec float64 `json:"rate_limit_per_sec"`
}

type SearchConfig struct {
	BM25TopN  int `json:"bm25_top_n"`
	RRFK      int `json:"rrf_k"`
	QueryTopK int `json:"query_top_k"`
}

type WorkerConfig struct {
	PoolSize int `json:"pool_size"`
}

type RetentionConfig struct {
	JobMaxAgeHours  int `json:"job_max_age_hours"`
	CacheMaxAgeDays int `json:"cache_max_age_days"`
}

type FileStoreConfig struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

func Load(path string) (*Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	defer file.Close()

	var cfg Config
	if err := json.NewDecoder(file).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.applyDefaults(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (cfg *Config) applyDefaults() error {
	if cfg.Port == 0 {
		return fmt.Errorf("port is required")
	}
	if cfg.Database.DSN == "" && cfg.Database.Host == "" {
		return fmt.Errorf("database.dsn or database.host is required")
	}
	if cfg.AI.Provider == "" {
		return fmt.Errorf("ai.provider is required")
	}
	if cfg.LogConfig.Level == "" {
		cfg.LogConfig.Level = "info"
	}
	if cfg.AI.Timeout == 0 {
		cfg.AI.Timeout = 30
	}
	if cfg.AI.DefaultDims == 0 {
		cfg.AI.DefaultDims = 768
	}
	if cfg.AI.CacheSize == 0 {
		cfg.AI.CacheSize = 10000
	}
	if cfg.AI.CacheTTLHours == 0 {
		cfg.AI.CacheTTLHours = 2
	}
	if cfg.Chunk.TargetSize == 0 {
		cfg.Chunk.TargetSize = 750
	}
	if cfg.Chunk.Overlap == nil {
		overlap := 80
		cfg.Chunk.Overlap = &overlap
	}
	if *cfg.Chunk.Overlap < 0 {
		return fmt.Errorf("chunk.overlap must not be negative")
	}
	if *cfg.Chunk.Overlap >= cfg.Chunk.TargetSize {
		return fmt.Errorf("chunk.overlap must be smaller than chunk.target_size")
	}
	if cfg.Crawl.MaxDepth == 0 {
		cfg.Crawl.MaxDepth = 3
	}
	if cfg.Crawl.MaxPages == 0 {
		cfg.Crawl.MaxPages = 800
	}
	if cfg.Crawl.RateLimitPerSec == 0 {
		cfg.Crawl.RateLimitPerSec = 1.0
	}
	if cfg.Search.BM25TopN == 0 {
		cfg.Search.BM25TopN = 200
	}
	if cfg.Search.RRFK == 0 {
		cfg.Search.RRFK = 60
	}
	if cfg.Search.QueryTopK == 0 {
		cfg.Search.QueryTopK = 8
	}
	if cfg.Worker.PoolSize == 0 {
		cfg.Worker.PoolSize = 4
	}
	if cfg.Retention.JobMaxAgeHours == 0 {
		cfg.Retention.JobMaxAgeHours = 24 * 7
	}
	if cfg.Retention.CacheMaxAgeDays == 0 {
		cfg.Retention.CacheMaxAgeDays = 30
	}
	if cfg.HTTPTimeoutSec == 0 {
		cfg.HTTPTimeoutSec = 10
	}
	if cfg.FileStore.Type == "" {
		cfg.FileStore.Type = "local"
		cfg.FileStore.Data = map[string]interface{}{"dir": "/data/uploads"}
	}
	return nil
}
