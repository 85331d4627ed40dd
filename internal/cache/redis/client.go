package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/adstrategy/backend/internal/metrics"
	"github.com/adstrategy/backend/pkg/config"
	"github.com/adstrategy/backend/pkg/logger"
)

const (
	embeddingPrefix = "embedding:"
	signalPrefix    = "signals:"
)

type Client struct {
	client    *redis.Client
	signalTTL time.Duration
}

func NewClient(cfg config.RedisConfig) (*Client, error) {
	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := client.Ping(ctx).Result(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	logger.Info("Redis client initialized", zap.String("addr", addr))

	return NewFromClient(client, config.Seconds(cfg.SignalTTL)), nil
}

// NewFromClient wraps an existing connection. A zero signalTTL keeps
// signals for one hour.
func NewFromClient(client *redis.Client, signalTTL time.Duration) *Client {
	if signalTTL <= 0 {
		signalTTL = time.Hour
	}
	return &Client{client: client, signalTTL: signalTTL}
}

func (c *Client) Close() error {
	return c.client.Close()
}

func (c *Client) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// SetEmbedding stores a vector without expiry; embeddings of identical text
// never change for a given model.
func (c *Client) SetEmbedding(ctx context.Context, textHash string, embedding []float32) error {
	data, err := json.Marshal(embedding)
	if err != nil {
		return fmt.Errorf("failed to marshal embedding: %w", err)
	}

	if err := c.client.Set(ctx, embeddingPrefix+textHash, data, 0).Err(); err != nil {
		return fmt.Errorf("failed to set embedding cache: %w", err)
	}

	logger.Debug("Embedding cached", zap.String("text_hash", textHash))
	return nil
}

func (c *Client) GetEmbedding(ctx context.Context, textHash string) ([]float32, bool, error) {
	data, err := c.client.Get(ctx, embeddingPrefix+textHash).Bytes()
	if errors.Is(err, redis.Nil) {
		metrics.CacheMisses.WithLabelValues("embedding").Inc()
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to get embedding cache: %w", err)
	}

	var embedding []float32
	if err := json.Unmarshal(data, &embedding); err != nil {
		return nil, false, fmt.Errorf("failed to unmarshal embedding: %w", err)
	}

	metrics.CacheHits.WithLabelValues("embedding").Inc()
	logger.Debug("Embedding cache hit", zap.String("text_hash", textHash))
	return embedding, true, nil
}

// SetSignals caches any JSON-encodable value under the query hash for the
// configured signal TTL.
func (c *Client) SetSignals(ctx context.Context, queryHash string, value interface{}) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal signals: %w", err)
	}

	if err := c.client.Set(ctx, signalPrefix+queryHash, data, c.signalTTL).Err(); err != nil {
		return fmt.Errorf("failed to set signal cache: %w", err)
	}

	logger.Debug("Signals cached", zap.String("query_hash", queryHash), zap.Duration("ttl", c.signalTTL))
	return nil
}

func (c *Client) GetSignals(ctx context.Context, queryHash string, out interface{}) (bool, error) {
	data, err := c.client.Get(ctx, signalPrefix+queryHash).Bytes()
	if errors.Is(err, redis.Nil) {
		metrics.CacheMisses.WithLabelValues("signals").Inc()
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to get signal cache: %w", err)
	}

	if err := json.Unmarshal(data, out); err != nil {
		return false, fmt.Errorf("failed to unmarshal signals: %w", err)
	}

	metrics.CacheHits.WithLabelValues("signals").Inc()
	logger.Debug("Signal cache hit", zap.String("query_hash", queryHash))
	return true, nil
}

// InvalidateSignals drops every cached search result.
func (c *Client) InvalidateSignals(ctx context.Context) error {
	iter := c.client.Scan(ctx, 0, signalPrefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		if err := c.client.Del(ctx, iter.Val()).Err(); err != nil {
			logger.Warn("Failed to delete cache key", zap.String("key", iter.Val()), zap.Error(err))
		}
	}

	if err := iter.Err(); err != nil {
		return fmt.Errorf("failed to iterate cache keys: %w", err)
	}

	logger.Info("Signal cache invalidated")
	return nil
}
