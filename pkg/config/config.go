package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig
	Mongo     MongoConfig
	SQLite    SQLiteConfig
	Redis     RedisConfig
	Milvus    MilvusConfig
	LLM       LLMConfig
	Search    SearchConfig
	Retrieval RetrievalConfig
	Strategy  StrategyConfig
	Calendar  CalendarConfig
	Logging   LoggingConfig
}

type ServerConfig struct {
	Host         string
	Port         int
	ReadTimeout  int
	WriteTimeout int
	BodyLimit    int
	AllowOrigins string
	Development  bool
}

// MongoConfig points at the interaction record store.
type MongoConfig struct {
	URI        string
	Database   string
	Collection string
	TimeoutSec int
}

type SQLiteConfig struct {
	Path string
}

type RedisConfig struct {
	Enabled   bool
	Host      string
	Port      int
	Password  string
	DB        int
	SignalTTL int
}

type MilvusConfig struct {
	Endpoint  string
	APIKey    string
	VectorDim int
}

type LLMConfig struct {
	Provider       string
	BaseURL        string
	Model          string
	APIKey         string
	Temperature    float32
	MaxTokens      int
	TimeoutSec     int
	MaxAttempts    int
	EmbeddingModel string
	EmbeddingDim   int
}

type SearchConfig struct {
	SerpAPIKey  string
	MaxResults  int
	TimeoutSec  int
	MaxAttempts int
}

// RetrievalConfig controls the interaction index. Backend is "file" or "milvus".
type RetrievalConfig struct {
	Backend           string
	StoragePath       string
	ChunkSize         int
	ChunkOverlap      int
	TopK              int
	PersistTimeoutSec int
}

type StrategyConfig struct {
	Budget     float64
	TimeoutSec int
}

type CalendarConfig struct {
	ICSURL     string
	Count      int
	TimeoutSec int
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
	viper.AddConfigPath("/etc/ad-strategy")

	viper.SetEnvPrefix("AD_STRATEGY")
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

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

// Validate rejects settings the pipeline cannot run with.
func (c *Config) Validate() error {
	switch c.Retrieval.Backend {
	case "file", "milvus":
	default:
		return fmt.Errorf("unknown retrieval backend %q", c.Retrieval.Backend)
	}
	if c.Retrieval.ChunkOverlap >= c.Retrieval.ChunkSize {
		return fmt.Errorf("retrieval chunk overlap (%d) must be smaller than chunk size (%d)",
			c.Retrieval.ChunkOverlap, c.Retrieval.ChunkSize)
	}
	if c.Strategy.Budget <= 0 {
		return fmt.Errorf("strategy budget must be positive, got %v", c.Strategy.Budget)
	}
	return nil
}

// Seconds converts one of the integer second settings into a duration.
func Seconds(n int) time.Duration {
	return time.Duration(n) * time.Second
}

func setDefaults() {
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", 9000)
	viper.SetDefault("server.readTimeout", 30)
	viper.SetDefault("server.writeTimeout", 180)
	viper.SetDefault("server.bodyLimit", 10485760)
	viper.SetDefault("server.allowOrigins", "*")
	viper.SetDefault("server.development", false)

	viper.SetDefault("mongo.uri", "mongodb://localhost:27017")
	viper.SetDefault("mongo.database", "test")
	viper.SetDefault("mongo.collection", "adinteractions")
	viper.SetDefault("mongo.timeoutSec", 10)

	viper.SetDefault("sqlite.path", "./data/adstrategy.db")

	viper.SetDefault("redis.enabled", true)
	viper.SetDefault("redis.host", "localhost")
	viper.SetDefault("redis.port", 6379)
	viper.SetDefault("redis.db", 0)
	viper.SetDefault("redis.signalTTL", 3600)

	viper.SetDefault("milvus.endpoint", "localhost:19530")
	viper.SetDefault("milvus.vectorDim", 1536)

	viper.SetDefault("llm.provider", "openai")
	viper.SetDefault("llm.model", "gpt-4o-mini")
	viper.SetDefault("llm.temperature", 0.4)
	viper.SetDefault("llm.maxTokens", 2048)
	viper.SetDefault("llm.timeoutSec", 60)
	viper.SetDefault("llm.maxAttempts", 1)
	viper.SetDefault("llm.embeddingModel", "text-embedding-3-small")
	viper.SetDefault("llm.embeddingDim", 1536)

	viper.SetDefault("search.maxResults", 5)
	viper.SetDefault("search.timeoutSec", 10)
	viper.SetDefault("search.maxAttempts", 1)

	viper.SetDefault("retrieval.backend", "file")
	viper.SetDefault("retrieval.storagePath", "./ad_storage")
	viper.SetDefault("retrieval.chunkSize", 600)
	viper.SetDefault("retrieval.chunkOverlap", 100)
	viper.SetDefault("retrieval.topK", 8)
	viper.SetDefault("retrieval.persistTimeoutSec", 30)

	viper.SetDefault("strategy.budget", 50000.0)
	viper.SetDefault("strategy.timeoutSec", 150)

	viper.SetDefault("calendar.icsURL", "https://calendar.google.com/calendar/ical/en.indian%23holiday%40group.v.calendar.google.com/public/basic.ics")
	viper.SetDefault("calendar.count", 5)
	viper.SetDefault("calendar.timeoutSec", 10)

	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "json")
	viper.SetDefault("logging.outputPath", "stdout")
}
