package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	Server     ServerConfig
	SQLite     SQLiteConfig
	Redis      RedisConfig
	Vector     VectorConfig
	Embedding  EmbeddingConfig
	Generation GenerationConfig
	Cache      CacheConfig
	Retrieval  RetrievalConfig
	RateLimit  RateLimitConfig
	Logging    LoggingConfig
}

type ServerConfig struct {
	Host         string
	Port         int
	ReadTimeout  int
	WriteTimeout int
	BodyLimit    int
}

type SQLiteConfig struct {
	Path string
}

type RedisConfig struct {
	Enabled  bool
	Host     string
	Port     int
	Password string
	DB       int
	TTLHours int
}

type VectorConfig struct {
	// Backend selects the fragment store implementation: "local" keeps a
	// brute-force cosine index persisted through sqlite, "milvus" talks to
	// an external collection.
	Backend        string
	Dim            int
	MilvusEndpoint string
	CollectionName string
}

type EmbeddingConfig struct {
	Model       string
	APIKey      string
	MaxTextLen  int
	MaxAttempts int
	TimeoutSec  int
	Workers     int
}

type GenerationConfig struct {
	Model       string
	APIKey      string
	Temperature float32
	MaxTokens   int
	TimeoutSec  int
}

type CacheConfig struct {
	SimilarityThreshold float64
	MaxEntriesPerDoc    int
}

type RetrievalConfig struct {
	TopK          int
	ContextBudget int
}

type RateLimitConfig struct {
	MaxRequestsPerMinute int
}

type LoggingConfig struct {
	Level      string
	Format     string
	OutputPath string
}

func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")
	viper.AddConfigPath("/etc/docqa")

	viper.SetEnvPrefix("DOCQA")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &config, nil
}

func setDefaults() {
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.readTimeout", 30)
	viper.SetDefault("server.writeTimeout", 30)
	viper.SetDefault("server.bodyLimit", 10485760)

	viper.SetDefault("sqlite.path", "./data/docqa.db")

	viper.SetDefault("redis.enabled", false)
	viper.SetDefault("redis.host", "localhost")
	viper.SetDefault("redis.port", 6379)
	viper.SetDefault("redis.db", 0)
	viper.SetDefault("redis.ttlHours", 24)

	viper.SetDefault("vector.backend", "local")
	viper.SetDefault("vector.dim", 768)
	viper.SetDefault("vector.milvusEndpoint", "localhost:19530")
	viper.SetDefault("vector.collectionName", "document_fragments")

	viper.SetDefault("embedding.model", "text-embedding-3-small")
	viper.SetDefault("embedding.maxTextLen", 8192)
	viper.SetDefault("embedding.maxAttempts", 3)
	viper.SetDefault("embedding.timeoutSec", 15)
	viper.SetDefault("embedding.workers", 4)

	viper.SetDefault("generation.model", "gpt-4")
	viper.SetDefault("generation.temperature", 0.2)
	viper.SetDefault("generation.maxTokens", 2048)
	viper.SetDefault("generation.timeoutSec", 60)

	viper.SetDefault("cache.similarityThreshold", 0.92)
	viper.SetDefault("cache.maxEntriesPerDoc", 0)

	viper.SetDefault("retrieval.topK", 5)
	viper.SetDefault("retrieval.contextBudget", 6000)

	viper.SetDefault("ratelimit.maxRequestsPerMinute", 60)

	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "json")
	viper.SetDefault("logging.outputPath", "stdout")
}
