package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/xxxsen/common/logger"
)

type Config struct {
	Database    DatabaseConfig   `json:"database"`
	JWTSecret   string           `json:"jwt_secret"`
	Port        int              `json:"port"`
	JWTTTLHours int              `json:"jwt_ttl_hours"`
	LogConfig   logger.LogConfig `json:"log_config"`
	AI          AIConfig         `json:"ai"`
	Ingest      IngestConfig     `json:"ingest"`
	Retrieval   RetrievalConfig  `json:"retrieval"`
	Redis       RedisConfig      `json:"redis"`
	FileStore   FileStoreConfig  `json:"file_store"`
	Schedule    ScheduleConfig   `json:"schedule"`
	CORSOrigins []string         `json:"cors_origins"`
	// AskIntervalSeconds is the minimum gap between two questions from the same user.
	AskIntervalSeconds int `json:"ask_interval_seconds"`
}

// SchemaEmbeddingDim is the width of the vector columns in the migrations.
const SchemaEmbeddingDim = 768

type DatabaseConfig struct {
	DSN      string `json:"dsn"`
	Host     string `json:"host"`
	Port     int    `json:"port"`
	User     string `json:"user"`
	Password string `json:"password"`
	DBName   string `json:"dbname"`
	SSLMode  string `json:"sslmode"`
	MaxOpen  int    `json:"max_open_conns"`
	MaxIdle  int    `json:"max_idle_conns"`
}

type ProviderConfig struct {
	Name     string      `json:"name"`
	Provider string      `json:"provider"`
	Model    string      `json:"model"`
	Data     interface{} `json:"data"`
}

type AIConfig struct {
	Generators       []ProviderConfig `json:"generators"`
	Embedders        []ProviderConfig `json:"embedders"`
	Timeout          int              `json:"timeout"`
	MaxInputChars    int              `json:"max_input_chars"`
	EmbeddingDim     int              `json:"embedding_dim"`
	EmbedCacheSize   int              `json:"embed_cache_size"`
	EmbedCacheTTLSec int              `json:"embed_cache_ttl_seconds"`
	EmbedDBCache     bool             `json:"embed_db_cache"`
	CacheMaxAgeDays  int              `json:"cache_max_age_days"`
}

type IngestConfig struct {
	ChunkSize      int   `json:"chunk_size"`
	ChunkOverlap   int   `json:"chunk_overlap"`
	EmbedBatch     int   `json:"embed_batch"`
	InsertBatch    int   `json:"insert_batch"`
	MaxUploadBytes int64 `json:"max_upload_bytes"`
	StaleMinutes   int   `json:"stale_minutes"`
}

type RetrievalConfig struct {
	TopK             int     `json:"top_k"`
	RefusalThreshold float64 `json:"refusal_threshold"`
	PivotLanguage    string  `json:"pivot_language"`
	MaxSnippets      int     `json:"max_snippets"`
	RewriteHistory   int     `json:"rewrite_history"`
	PromptHistory    int     `json:"prompt_history"`
}

type RedisConfig struct {
	Addr          string `json:"addr"`
	Password      string `json:"password"`
	DB            int    `json:"db"`
	HistoryTTLSec int    `json:"history_ttl_seconds"`
}

type FileStoreConfig struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

type ScheduleConfig struct {
	ReconcileSpec    string `json:"reconcile_spec"`
	CacheCleanupSpec string `json:"cache_cleanup_spec"`
	// RunTimeoutSec bounds one job run; 0 means unbounded.
	RunTimeoutSec int `json:"run_timeout_sec"`
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

func (c *Config) applyDefaults() error {
	if c.Database.DSN == "" && c.Database.Host == "" {
		return fmt.Errorf("database.dsn or database.host is required")
	}
	if c.Database.MaxOpen <= 0 {
		c.Database.MaxOpen = 20
	}
	if c.Database.MaxIdle <= 0 {
		c.Database.MaxIdle = 5
	}
	if c.Database.DSN == "" && c.Database.Port == 0 {
		c.Database.Port = 5432
	}
	if c.JWTSecret == "" {
		return fmt.Errorf("jwt_secret is required")
	}
	if c.Port == 0 {
		return fmt.Errorf("port is required")
	}
	if c.JWTTTLHours == 0 {
		c.JWTTTLHours = 72
	}
	if c.LogConfig.Level == "" {
		c.LogConfig.Level = "info"
	}
	if c.AskIntervalSeconds < 0 {
		c.AskIntervalSeconds = 0
	}
	if len(c.AI.Generators) == 0 {
		return fmt.Errorf("ai.generators is required")
	}
	if len(c.AI.Embedders) == 0 {
		return fmt.Errorf("ai.embedders is required")
	}
	if c.AI.Timeout <= 0 {
		c.AI.Timeout = 60
	}
	if c.AI.EmbeddingDim <= 0 {
		c.AI.EmbeddingDim = SchemaEmbeddingDim
	}
	if c.AI.EmbeddingDim != SchemaEmbeddingDim {
		return fmt.Errorf("ai.embedding_dim must be %d to match the document_chunks column", SchemaEmbeddingDim)
	}
	if c.AI.EmbedCacheSize == 0 {
		c.AI.EmbedCacheSize = 4096
	}
	if c.AI.EmbedCacheTTLSec == 0 {
		c.AI.EmbedCacheTTLSec = 3600
	}
	if c.AI.CacheMaxAgeDays <= 0 {
		c.AI.CacheMaxAgeDays = 30
	}

	if c.Ingest.ChunkSize <= 0 {
		c.Ingest.ChunkSize = 800
	}
	if c.Ingest.ChunkOverlap == 0 {
		c.Ingest.ChunkOverlap = 100
	}
	if c.Ingest.ChunkOverlap < 0 || c.Ingest.ChunkOverlap >= c.Ingest.ChunkSize {
		return fmt.Errorf("ingest.chunk_overlap must be in [0, chunk_size)")
	}
	if c.Ingest.EmbedBatch <= 0 {
		c.Ingest.EmbedBatch = 64
	}
	if c.Ingest.InsertBatch <= 0 {
		c.Ingest.InsertBatch = 200
	}
	if c.Ingest.MaxUploadBytes <= 0 {
		c.Ingest.MaxUploadBytes = 20 * 1024 * 1024
	}
	if c.Ingest.StaleMinutes <= 0 {
		c.Ingest.StaleMinutes = 60
	}

	if c.Retrieval.TopK <= 0 {
		c.Retrieval.TopK = 5
	}
	if c.Retrieval.RefusalThreshold < 0 || c.Retrieval.RefusalThreshold > 1 {
		return fmt.Errorf("retrieval.refusal_threshold must be in [0, 1]")
	}
	if c.Retrieval.RefusalThreshold == 0 {
		c.Retrieval.RefusalThreshold = 0.35
	}
	if strings.TrimSpace(c.Retrieval.PivotLanguage) == "" {
		c.Retrieval.PivotLanguage = "English"
	}
	if c.Retrieval.MaxSnippets <= 0 {
		c.Retrieval.MaxSnippets = c.Retrieval.TopK
	}
	if c.Retrieval.RewriteHistory <= 0 {
		c.Retrieval.RewriteHistory = 7
	}
	if c.Retrieval.PromptHistory <= 0 {
		c.Retrieval.PromptHistory = 6
	}

	if c.Redis.Addr != "" && c.Redis.HistoryTTLSec <= 0 {
		c.Redis.HistoryTTLSec = 600
	}
	if c.Schedule.ReconcileSpec == "" {
		c.Schedule.ReconcileSpec = "*/10 * * * *"
	}
	if c.Schedule.CacheCleanupSpec == "" {
		c.Schedule.CacheCleanupSpec = "30 3 * * *"
	}
	return nil
}
