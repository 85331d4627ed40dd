// Package mongo reads ad interaction records from MongoDB.
package mongo

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"github.com/adstrategy/backend/internal/analytics"
	"github.com/adstrategy/backend/internal/metrics"
	"github.com/adstrategy/backend/pkg/config"
	"github.com/adstrategy/backend/pkg/logger"
)

type Client struct {
	client     *mongo.Client
	collection *mongo.Collection
	timeout    time.Duration
}

func NewClient(ctx context.Context, cfg config.MongoConfig) (*Client, error) {
	timeout := config.Seconds(cfg.TimeoutSec)
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	connectCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	client, err := mongo.Connect(connectCtx, options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongodb: %w", err)
	}

	if err := client.Ping(connectCtx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping mongodb: %w", err)
	}

	logger.Info("MongoDB client initialized",
		zap.String("database", cfg.Database),
		zap.String("collection", cfg.Collection),
	)

	return &Client{
		client:     client,
		collection: client.Database(cfg.Database).Collection(cfg.Collection),
		timeout:    timeout,
	}, nil
}

func (c *Client) Close(ctx context.Context) error {
	return c.client.Disconnect(ctx)
}

func (c *Client) Ping(ctx context.Context) error {
	return c.client.Ping(ctx, nil)
}

// FetchAll reads every interaction document. Documents that cannot be
// converted or fail validation are returned as rejected rather than
// failing the batch.
func (c *Client) FetchAll(ctx context.Context) ([]analytics.Record, []analytics.Rejected, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	cursor, err := c.collection.Find(ctx, bson.D{}, options.Find().SetProjection(bson.D{{Key: "_id", Value: 0}}))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to query interactions: %w", err)
	}
	defer cursor.Close(ctx)

	var docs []bson.M
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, nil, fmt.Errorf("failed to read interactions: %w", err)
	}

	records, rejected := Convert(docs)

	if len(rejected) > 0 {
		metrics.RecordsQuarantined.Add(float64(len(rejected)))
		for _, r := range rejected {
			logger.Warn("Interaction record quarantined",
				zap.Int("index", r.Index),
				zap.String("ad_id", r.AdID),
				zap.String("reason", r.Reason),
			)
		}
	}

	logger.Info("Interaction records fetched",
		zap.Int("documents", len(docs)),
		zap.Int("accepted", len(records)),
		zap.Int("rejected", len(rejected)),
	)

	return records, rejected, nil
}

// Convert maps raw documents onto records. Numeric fields accept any BSON
// number type, and numeric strings, since producers are not consistent.
func Convert(docs []bson.M) ([]analytics.Record, []analytics.Rejected) {
	records := make([]analytics.Record, 0, len(docs))
	var rejected []analytics.Rejected
	index := make([]int, 0, len(docs))

	for i, doc := range docs {
		r, err := toRecord(doc)
		if err != nil {
			rejected = append(rejected, analytics.Rejected{Index: i, AdID: r.AdID, Reason: err.Error()})
			continue
		}
		records = append(records, r)
		index = append(index, i)
	}

	valid, invalid := analytics.Partition(records)
	for _, r := range invalid {
		r.Index = index[r.Index]
		rejected = append(rejected, r)
	}

	return valid, rejected
}

func toRecord(doc bson.M) (analytics.Record, error) {
	var r analytics.Record
	var err error

	r.AdID = stringField(doc, "adId")
	r.CompanyName = stringField(doc, "companyName")
	r.Domain = stringField(doc, "domain")
	r.Position = stringField(doc, "position")

	if r.Impressions, err = intField(doc, "impressions"); err != nil {
		return r, err
	}
	if r.Clicks, err = intField(doc, "clicks"); err != nil {
		return r, err
	}
	if r.HoverCount, err = intField(doc, "hoverCount"); err != nil {
		return r, err
	}
	if r.HoverTime, err = floatField(doc, "hoverTime"); err != nil {
		return r, err
	}

	return r, nil
}

func stringField(doc bson.M, key string) string {
	switch v := doc[key].(type) {
	case string:
		return v
	case nil:
		return ""
	default:
		return fmt.Sprint(v)
	}
}

func floatField(doc bson.M, key string) (float64, error) {
	switch v := doc[key].(type) {
	case nil:
		return 0, nil
	case int32:
		return float64(v), nil
	case int64:
		return float64(v), nil
	case float64:
		return v, nil
	case primitive.Decimal128:
		f, err := strconv.ParseFloat(v.String(), 64)
		if err != nil {
			return 0, fmt.Errorf("%s: %w", key, err)
		}
		return f, nil
	case string:
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return 0, fmt.Errorf("%s: not a number: %q", key, v)
		}
		return f, nil
	default:
		return 0, fmt.Errorf("%s: unsupported type %T", key, v)
	}
}

func intField(doc bson.M, key string) (int64, error) {
	f, err := floatField(doc, key)
	if err != nil {
		return 0, err
	}
	if f != math.Trunc(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("%s: expected a whole number, got %v", key, f)
	}
	return int64(f), nil
}
