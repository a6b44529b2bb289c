package cli

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/qsarlab/molgraph/internal/config"
	"github.com/qsarlab/molgraph/internal/cv"
	"github.com/qsarlab/molgraph/internal/model"
	"github.com/qsarlab/molgraph/internal/monitoring/logging"
	"github.com/qsarlab/molgraph/internal/monitoring/metrics"
	"github.com/qsarlab/molgraph/internal/storage/minio"
	"github.com/qsarlab/molgraph/internal/storage/postgres"

	kafkamsg "github.com/qsarlab/molgraph/internal/messaging/kafka"
	milvusstore "github.com/qsarlab/molgraph/internal/storage/milvus"
	redisstore "github.com/qsarlab/molgraph/internal/storage/redis"
)

// pipeline bundles the wired collaborators of a run, so commands can tear
// them down in one place.
type pipeline struct {
	backend   model.Backend
	deps      cv.Deps
	runStore  *postgres.RunStore
	artifacts *minio.ArtifactStore
	sink      *milvusstore.EmbeddingSink
	registry  *prometheus.Registry
	closers   []func() error
	logger    logging.Logger
}

// buildPipeline connects every enabled backing service from cfg. The model
// backend is always required; storage, cache, embeddings and events are
// wired only when their section is enabled.
func buildPipeline(ctx context.Context, cfg *config.Config, logger logging.Logger) (*pipeline, error) {
	registry := prometheus.NewRegistry()
	pm := metrics.New(registry)

	backend, err := model.NewHTTPBackend(model.HTTPClientOptions{
		BaseURL: cfg.Serving.BaseURL,
		Timeout: cfg.Serving.Timeout,
		Retries: cfg.Serving.Retries,
	}, logger)
	if err != nil {
		return nil, err
	}

	p := &pipeline{
		backend:  backend,
		registry: registry,
		logger:   logger,
		deps: cv.Deps{
			Backend: backend,
			Metrics: pm,
			Logger:  logger,
		},
	}
	p.closers = append(p.closers, backend.Close)

	var stores []cv.ReportStore
	if cfg.Postgres.Enabled {
		pool, err := postgres.Connect(ctx, cfg.Postgres.ConnectionConfig, logger)
		if err != nil {
			p.close()
			return nil, err
		}
		p.closers = append(p.closers, func() error { pool.Close(); return nil })
		p.runStore = postgres.NewRunStore(pool, logger)
		stores = append(stores, p.runStore)
	}
	if cfg.Minio.Enabled {
		store, err := minio.NewArtifactStore(cfg.Minio.Config, logger)
		if err != nil {
			p.close()
			return nil, err
		}
		if err := store.EnsureBucket(ctx); err != nil {
			p.close()
			return nil, err
		}
		p.artifacts = store
		stores = append(stores, store)
	}
	switch len(stores) {
	case 0:
	case 1:
		p.deps.Store = stores[0]
	default:
		p.deps.Store = multiStore(stores)
	}

	if cfg.Redis.Enabled {
		cache, err := redisstore.NewGraphCache(cfg.Redis.CacheConfig, logger, pm)
		if err != nil {
			p.close()
			return nil, err
		}
		p.closers = append(p.closers, cache.Close)
		p.deps.Cache = cache
	}

	if cfg.Milvus.Enabled {
		sink, err := milvusstore.NewEmbeddingSink(ctx, cfg.Milvus.Config, logger)
		if err != nil {
			p.close()
			return nil, err
		}
		p.closers = append(p.closers, sink.Close)
		p.sink = sink
		p.deps.Sink = sink
	}

	if cfg.Kafka.Enabled {
		pub, err := kafkamsg.NewPublisher(cfg.Kafka.Config, logger)
		if err != nil {
			p.close()
			return nil, err
		}
		p.closers = append(p.closers, pub.Close)
		p.deps.Events = pub
	}

	return p, nil
}

// multiStore writes the report to every configured store. The first error
// is returned after all stores were attempted.
type multiStore []cv.ReportStore

func (m multiStore) SaveRun(ctx context.Context, report *cv.Report) error {
	var firstErr error
	for _, s := range m {
		if err := s.SaveRun(ctx, report); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (p *pipeline) close() {
	for i := len(p.closers) - 1; i >= 0; i-- {
		if err := p.closers[i](); err != nil {
			p.logger.Warn("close failed", logging.Err(err))
		}
	}
}
