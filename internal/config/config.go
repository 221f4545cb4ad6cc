// Package config loads the application configuration.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config mirrors configs/config.yaml. It is built once by Load and passed
// explicitly into every component constructor.
type Config struct {
	Server        ServerConfig        `mapstructure:"server"`
	Database      DatabaseConfig      `mapstructure:"database"`
	JWT           JWTConfig           `mapstructure:"jwt"`
	Log           LogConfig           `mapstructure:"log"`
	Kafka         KafkaConfig         `mapstructure:"kafka"`
	Tika          TikaConfig          `mapstructure:"tika"`
	Elasticsearch ElasticsearchConfig `mapstructure:"elasticsearch"`
	Qdrant        QdrantConfig        `mapstructure:"qdrant"`
	Milvus        MilvusConfig        `mapstructure:"milvus"`
	PGVector      PGVectorConfig      `mapstructure:"pgvector"`
	MinIO         MinIOConfig         `mapstructure:"minio"`
	Embedding     EmbeddingConfig     `mapstructure:"embedding"`
	VectorStore   VectorStoreConfig   `mapstructure:"vector_store"`
	Chunking      ChunkingConfig      `mapstructure:"chunking"`
	Retrieval     RetrievalConfig     `mapstructure:"retrieval"`
	Ingest        IngestConfig        `mapstructure:"ingest"`
	LLM           LLMConfig           `mapstructure:"llm"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port string `mapstructure:"port" validate:"required"`
	Mode string `mapstructure:"mode" validate:"oneof=debug release test"`
}

// DatabaseConfig groups the relational and cache connections.
type DatabaseConfig struct {
	MySQL MySQLConfig `mapstructure:"mysql"`
	Redis RedisConfig `mapstructure:"redis"`
}

// MySQLConfig holds the ledger database DSN. An empty DSN disables the ledger.
type MySQLConfig struct {
	DSN string `mapstructure:"dsn"`
}

// RedisConfig holds the Redis connection. An empty Addr disables caching.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// JWTConfig holds the signing secret for service tokens.
type JWTConfig struct {
	Secret           string `mapstructure:"secret"`
	TokenExpireHours int    `mapstructure:"token_expire_hours" validate:"gte=0"`
}

// LogConfig holds logger settings.
type LogConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	OutputPath string `mapstructure:"output_path"`
}

// KafkaConfig holds the ingestion queue settings. Empty Brokers disables the queue.
type KafkaConfig struct {
	Brokers     string `mapstructure:"brokers"`
	Topic       string `mapstructure:"topic"`
	GroupID     string `mapstructure:"group_id"`
	MaxAttempts int    `mapstructure:"max_attempts" validate:"gte=1"`
}

// TikaConfig holds the Tika server URL. Empty disables extraction of other formats.
type TikaConfig struct {
	ServerURL string `mapstructure:"server_url"`
}

// ElasticsearchConfig holds the Elasticsearch vector index settings.
type ElasticsearchConfig struct {
	Addresses string `mapstructure:"addresses"`
	Username  string `mapstructure:"username"`
	Password  string `mapstructure:"password"`
	IndexName string `mapstructure:"index_name"`
}

// QdrantConfig holds the Qdrant REST settings.
type QdrantConfig struct {
	Endpoint   string        `mapstructure:"endpoint"`
	APIKey     string        `mapstructure:"api_key"`
	Collection string        `mapstructure:"collection"`
	Timeout    time.Duration `mapstructure:"timeout"`
}

// MilvusConfig holds the Milvus settings.
type MilvusConfig struct {
	Address    string `mapstructure:"address"`
	Username   string `mapstructure:"username"`
	Password   string `mapstructure:"password"`
	Database   string `mapstructure:"database"`
	Collection string `mapstructure:"collection"`
}

// PGVectorConfig holds the Postgres/pgvector settings.
type PGVectorConfig struct {
	DSN   string `mapstructure:"dsn"`
	Table string `mapstructure:"table"`
}

// MinIOConfig holds the object storage settings for raw scrape files.
type MinIOConfig struct {
	Endpoint        string `mapstructure:"endpoint"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	UseSSL          bool   `mapstructure:"use_ssl"`
	BucketName      string `mapstructure:"bucket_name"`
}

// EmbeddingConfig holds the embedding model settings.
type EmbeddingConfig struct {
	APIKey            string        `mapstructure:"api_key"`
	BaseURL           string        `mapstructure:"base_url"`
	Model             string        `mapstructure:"model" validate:"required"`
	Dimensions        int           `mapstructure:"dimensions" validate:"gt=0"`
	BatchSize         int           `mapstructure:"batch_size" validate:"gt=0"`
	RequestsPerSecond float64       `mapstructure:"requests_per_second" validate:"gte=0"`
	CacheTTL          time.Duration `mapstructure:"cache_ttl"`
}

// VectorStoreConfig selects and tunes the vector store backend.
type VectorStoreConfig struct {
	Backend       string        `mapstructure:"backend" validate:"oneof=elasticsearch qdrant milvus pgvector memory"`
	BatchSize     int           `mapstructure:"batch_size" validate:"gt=0,lte=100"`
	UpsertWorkers int           `mapstructure:"upsert_workers" validate:"gte=1"`
	RetryAttempts int           `mapstructure:"retry_attempts" validate:"gte=1"`
	RetryBackoff  time.Duration `mapstructure:"retry_backoff"`
}

// ChunkingConfig holds the splitter budget.
type ChunkingConfig struct {
	Unit          string `mapstructure:"unit" validate:"oneof=char word token"`
	TokenModel    string `mapstructure:"token_model"`
	MaxSize       int    `mapstructure:"max_size" validate:"gt=0"`
	Overlap       int    `mapstructure:"overlap" validate:"gte=0,ltfield=MaxSize"`
	CSVHeaderRows int    `mapstructure:"csv_header_rows" validate:"gte=0"`
	KeywordCount  int    `mapstructure:"keyword_count" validate:"gt=0"`
}

// RetrievalConfig holds the retriever thresholds.
type RetrievalConfig struct {
	TopK              int     `mapstructure:"top_k" validate:"gt=0"`
	MinScore          float64 `mapstructure:"min_score" validate:"gte=-1,lte=1"`
	FallbackThreshold float64 `mapstructure:"fallback_threshold" validate:"gte=-1,lte=1"`
	MaxVariants       int     `mapstructure:"max_variants" validate:"gte=1"`
}

// IngestConfig holds the ingestion defaults.
type IngestConfig struct {
	SeedDir       string   `mapstructure:"seed_dir"`
	JSONMetadata  []string `mapstructure:"json_metadata_fields"`
	SkipUnchanged bool     `mapstructure:"skip_unchanged"`
}

// LLMConfig holds the chat model settings.
type LLMConfig struct {
	APIKey      string  `mapstructure:"api_key"`
	BaseURL     string  `mapstructure:"base_url"`
	Model       string  `mapstructure:"model"`
	Temperature float32 `mapstructure:"temperature"`
	MaxTokens   int     `mapstructure:"max_tokens"`
	HistorySize int     `mapstructure:"history_size"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8081")
	v.SetDefault("server.mode", "release")
	v.SetDefault("jwt.token_expire_hours", 24)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("kafka.topic", "rag-ingest")
	v.SetDefault("kafka.group_id", "rag-ingest-consumer")
	v.SetDefault("kafka.max_attempts", 3)
	v.SetDefault("elasticsearch.index_name", "university_chunks")
	v.SetDefault("qdrant.collection", "university_chunks")
	v.SetDefault("qdrant.timeout", 10*time.Second)
	v.SetDefault("milvus.database", "default")
	v.SetDefault("milvus.collection", "university_chunks")
	v.SetDefault("pgvector.table", "university_chunks")
	v.SetDefault("minio.bucket_name", "scraped-data")
	v.SetDefault("embedding.model", "text-embedding-3-small")
	v.SetDefault("embedding.dimensions", 1536)
	v.SetDefault("embedding.batch_size", 64)
	v.SetDefault("embedding.cache_ttl", 24*time.Hour)
	v.SetDefault("vector_store.backend", "elasticsearch")
	v.SetDefault("vector_store.batch_size", 100)
	v.SetDefault("vector_store.upsert_workers", 1)
	v.SetDefault("vector_store.retry_attempts", 3)
	v.SetDefault("vector_store.retry_backoff", 500*time.Millisecond)
	v.SetDefault("chunking.unit", "char")
	v.SetDefault("chunking.token_model", "gpt-3.5-turbo")
	v.SetDefault("chunking.max_size", 2000)
	v.SetDefault("chunking.overlap", 400)
	v.SetDefault("chunking.csv_header_rows", 4)
	v.SetDefault("chunking.keyword_count", 5)
	v.SetDefault("retrieval.top_k", 5)
	v.SetDefault("retrieval.min_score", 0.7)
	v.SetDefault("retrieval.fallback_threshold", 0.6)
	v.SetDefault("retrieval.max_variants", 4)
	v.SetDefault("ingest.skip_unchanged", true)
	v.SetDefault("ingest.json_metadata_fields", []string{"name", "url", "degreelevel", "program_name"})
	v.SetDefault("llm.temperature", 0.2)
	v.SetDefault("llm.history_size", 10)
}

// Load reads the YAML file at path, applies defaults and RAG_* environment
// overrides, and validates the result. A missing .env file is ignored.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix("RAG")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks required values and ranges.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			fields := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				fields = append(fields, fmt.Sprintf("%s(%s)", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("invalid config: %s", strings.Join(fields, ", "))
		}
		return fmt.Errorf("invalid config: %w", err)
	}
	switch c.VectorStore.Backend {
	case "elasticsearch":
		if c.Elasticsearch.Addresses == "" {
			return errors.New("invalid config: elasticsearch.addresses is required for the elasticsearch backend")
		}
	case "qdrant":
		if c.Qdrant.Endpoint == "" {
			return errors.New("invalid config: qdrant.endpoint is required for the qdrant backend")
		}
	case "milvus":
		if c.Milvus.Address == "" {
			return errors.New("invalid config: milvus.address is required for the milvus backend")
		}
	case "pgvector":
		if c.PGVector.DSN == "" {
			return errors.New("invalid config: pgvector.dsn is required for the pgvector backend")
		}
	}
	return nil
}
