// Package redis caches featurised molecular graphs between runs over the
// same dataset.
package redis

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/qsarlab/molgraph/internal/graph"
	"github.com/qsarlab/molgraph/internal/monitoring/logging"
	"github.com/qsarlab/molgraph/internal/monitoring/metrics"
	"github.com/qsarlab/molgraph/pkg/errors"
)

// CacheConfig configures the graph cache connection.
type CacheConfig struct {
	Addr     string        `json:"addr" mapstructure:"addr"`
	Password string        `json:"password" mapstructure:"password"`
	DB       int           `json:"db" mapstructure:"db"`
	TTL      time.Duration `json:"ttl" mapstructure:"ttl"`
}

// GraphCache stores graphs as JSON under a key derived from the SMILES and
// the featurizer layout, so a feature-dimension change invalidates old
// entries automatically. It implements cv.GraphCache.
type GraphCache struct {
	client  *goredis.Client
	ttl     time.Duration
	logger  logging.Logger
	metrics *metrics.PipelineMetrics
}

func NewGraphCache(cfg CacheConfig, logger logging.Logger, m *metrics.PipelineMetrics) (*GraphCache, error) {
	if cfg.Addr == "" {
		return nil, errors.InvalidParam("redis address cannot be empty")
	}
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	return &GraphCache{
		client:  client,
		ttl:     ttl,
		logger:  logger.Named("graphcache"),
		metrics: m,
	}, nil
}

// Ping verifies connectivity.
func (c *GraphCache) Ping(ctx context.Context) error {
	if err := c.client.Ping(ctx).Err(); err != nil {
		return errors.Wrap(err, errors.CodeUnavailable, "ping redis")
	}
	return nil
}

func (c *GraphCache) Get(ctx context.Context, smiles string) (*graph.Graph, bool, error) {
	data, err := c.client.Get(ctx, cacheKey(smiles)).Bytes()
	if err == goredis.Nil {
		c.metrics.CacheMiss()
		return nil, false, nil
	}
	if err != nil {
		return nil, false, errors.Wrap(err, errors.CodeGraphCacheError, "read cached graph")
	}

	var g graph.Graph
	if err := json.Unmarshal(data, &g); err != nil {
		// a corrupt entry behaves like a miss; the builder will overwrite it
		c.metrics.CacheMiss()
		c.logger.Warn("discarding corrupt cache entry", logging.Err(err))
		return nil, false, nil
	}
	c.metrics.CacheHit()
	return &g, true, nil
}

func (c *GraphCache) Put(ctx context.Context, smiles string, g *graph.Graph) error {
	data, err := json.Marshal(g)
	if err != nil {
		return errors.Wrap(err, errors.CodeGraphCacheError, "encode graph")
	}
	if err := c.client.Set(ctx, cacheKey(smiles), data, c.ttl).Err(); err != nil {
		return errors.Wrap(err, errors.CodeGraphCacheError, "write cached graph")
	}
	return nil
}

func (c *GraphCache) Close() error {
	return c.client.Close()
}

func cacheKey(smiles string) string {
	sum := sha256.Sum256([]byte(smiles))
	return fmt.Sprintf("molgraph:graph:%d:%d:%s",
		graph.AtomFeatureDim, graph.BondFeatureDim, hex.EncodeToString(sum[:16]))
}
