// Package config provides configuration loading, defaults, and validation
// for the molgraph pipeline.
package config

import (
	"time"

	"github.com/qsarlab/molgraph/internal/dataset"
	"github.com/qsarlab/molgraph/internal/graph"
	"github.com/qsarlab/molgraph/internal/messaging/kafka"
	"github.com/qsarlab/molgraph/internal/model"
	"github.com/qsarlab/molgraph/internal/monitoring/logging"
	"github.com/qsarlab/molgraph/internal/split"
	"github.com/qsarlab/molgraph/internal/storage/milvus"
	"github.com/qsarlab/molgraph/internal/storage/minio"
	"github.com/qsarlab/molgraph/internal/storage/postgres"
	"github.com/qsarlab/molgraph/internal/storage/redis"
	"github.com/qsarlab/molgraph/pkg/errors"
)

// Config is the full pipeline configuration.
type Config struct {
	Log     logging.LogConfig `json:"log" mapstructure:"log"`
	Server  ServerConfig      `json:"server" mapstructure:"server"`
	Dataset DatasetConfig     `json:"dataset" mapstructure:"dataset"`
	Run     RunConfig         `json:"run" mapstructure:"run"`
	Model   model.Config      `json:"model" mapstructure:"model"`
	Serving ServingConfig     `json:"serving" mapstructure:"serving"`
	Ingest  IngestConfig      `json:"ingest" mapstructure:"ingest"`

	Postgres PostgresConfig `json:"postgres" mapstructure:"postgres"`
	Redis    RedisConfig    `json:"redis" mapstructure:"redis"`
	Minio    MinioConfig    `json:"minio" mapstructure:"minio"`
	Milvus   MilvusConfig   `json:"milvus" mapstructure:"milvus"`
	Kafka    KafkaConfig    `json:"kafka" mapstructure:"kafka"`
}

// ServerConfig configures the status HTTP server.
type ServerConfig struct {
	Addr            string        `json:"addr" mapstructure:"addr"`
	ShutdownTimeout time.Duration `json:"shutdown_timeout" mapstructure:"shutdown_timeout"`
}

// DatasetConfig selects the dataset columns and provenance tags.
type DatasetConfig struct {
	SMILESColumn string `json:"smiles_column" mapstructure:"smiles_column"`
	LabelColumn  string `json:"label_column" mapstructure:"label_column"`
	Source       string `json:"source" mapstructure:"source"`
	Property     string `json:"property" mapstructure:"property"`
}

// LoaderOptions converts the section into the loader's option struct.
func (c DatasetConfig) LoaderOptions() dataset.LoaderOptions {
	return dataset.LoaderOptions{
		SMILESColumn: c.SMILESColumn,
		LabelColumn:  c.LabelColumn,
		Source:       dataset.Source(c.Source),
		Property:     dataset.Property(c.Property),
	}
}

// RunConfig tunes cross-validation execution.
type RunConfig struct {
	Folds          int   `json:"folds" mapstructure:"folds"`
	Seed           int64 `json:"seed" mapstructure:"seed"`
	GraphWorkers   int   `json:"graph_workers" mapstructure:"graph_workers"`
	FoldWorkers    int   `json:"fold_workers" mapstructure:"fold_workers"`
	MaxAtoms       int   `json:"max_atoms" mapstructure:"max_atoms"`
	WithEmbeddings bool  `json:"with_embeddings" mapstructure:"with_embeddings"`
}

// ServingConfig points at the training backend.
type ServingConfig struct {
	BaseURL string        `json:"base_url" mapstructure:"base_url"`
	Timeout time.Duration `json:"timeout" mapstructure:"timeout"`
	Retries int           `json:"retries" mapstructure:"retries"`
}

// IngestConfig configures the dataset drop watcher.
type IngestConfig struct {
	Enabled     bool          `json:"enabled" mapstructure:"enabled"`
	Dir         string        `json:"dir" mapstructure:"dir"`
	SettleDelay time.Duration `json:"settle_delay" mapstructure:"settle_delay"`
}

// PostgresConfig wraps the connection settings with an enable switch and the
// migrations location.
type PostgresConfig struct {
	Enabled        bool `json:"enabled" mapstructure:"enabled"`
	postgres.ConnectionConfig `mapstructure:",squash"`
	MigrationsPath string `json:"migrations_path" mapstructure:"migrations_path"`
}

type RedisConfig struct {
	Enabled bool `json:"enabled" mapstructure:"enabled"`
	redis.CacheConfig `mapstructure:",squash"`
}

type MinioConfig struct {
	Enabled bool `json:"enabled" mapstructure:"enabled"`
	minio.Config `mapstructure:",squash"`
}

type MilvusConfig struct {
	Enabled bool `json:"enabled" mapstructure:"enabled"`
	milvus.Config `mapstructure:",squash"`
}

type KafkaConfig struct {
	Enabled bool `json:"enabled" mapstructure:"enabled"`
	kafka.Config `mapstructure:",squash"`
}

// ApplyDefaults fills unset fields with working defaults.
func ApplyDefaults(cfg *Config) {
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
	}
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = ":8080"
	}
	if cfg.Server.ShutdownTimeout <= 0 {
		cfg.Server.ShutdownTimeout = 15 * time.Second
	}

	if cfg.Dataset.SMILESColumn == "" {
		cfg.Dataset.SMILESColumn = "smiles"
	}
	if cfg.Dataset.LabelColumn == "" {
		cfg.Dataset.LabelColumn = "label"
	}
	if cfg.Dataset.Source == "" {
		cfg.Dataset.Source = string(dataset.SourceChEMBL)
	}
	if cfg.Dataset.Property == "" {
		cfg.Dataset.Property = string(dataset.PropertyLipophilicity)
	}

	if cfg.Run.Folds == 0 {
		cfg.Run.Folds = split.DefaultFolds
	}
	if cfg.Run.GraphWorkers == 0 {
		cfg.Run.GraphWorkers = 8
	}
	if cfg.Run.FoldWorkers == 0 {
		cfg.Run.FoldWorkers = 1
	}
	if cfg.Run.MaxAtoms == 0 {
		cfg.Run.MaxAtoms = graph.DefaultMaxAtoms
	}

	if cfg.Model.Depth == 0 {
		cfg.Model = model.DefaultConfig()
	}
	if cfg.Model.AtomFeatureDim == 0 {
		cfg.Model.AtomFeatureDim = graph.AtomFeatureDim
	}
	if cfg.Model.BondFeatureDim == 0 {
		cfg.Model.BondFeatureDim = graph.BondFeatureDim
	}

	if cfg.Serving.Timeout <= 0 {
		cfg.Serving.Timeout = 4 * time.Hour
	}
	if cfg.Serving.Retries == 0 {
		cfg.Serving.Retries = 2
	}

	if cfg.Ingest.SettleDelay <= 0 {
		cfg.Ingest.SettleDelay = 2 * time.Second
	}

	if cfg.Postgres.Port == 0 {
		cfg.Postgres.Port = 5432
	}
	if cfg.Postgres.MigrationsPath == "" {
		cfg.Postgres.MigrationsPath = "file://migrations"
	}
	if cfg.Milvus.Dim == 0 {
		cfg.Milvus.Dim = cfg.Model.HiddenDim
	}
}

// Validate rejects configurations that cannot possibly run.
func (c *Config) Validate() error {
	if c.Serving.BaseURL == "" {
		return errors.InvalidParam("serving.base_url is required")
	}
	if err := c.Model.Validate(); err != nil {
		return err
	}
	if c.Run.Folds < 3 {
		return errors.Newf(errors.CodeSplitConfig, "run.folds must be at least 3, got %d", c.Run.Folds)
	}
	if c.Run.MaxAtoms < 1 {
		return errors.Newf(errors.CodeInvalidParam, "run.max_atoms must be positive, got %d", c.Run.MaxAtoms)
	}
	switch dataset.Source(c.Dataset.Source) {
	case dataset.SourceChEMBL, dataset.SourceOCHEM:
	default:
		return errors.Newf(errors.CodeInvalidParam, "dataset.source %q is not a known source", c.Dataset.Source)
	}
	if c.Ingest.Enabled && c.Ingest.Dir == "" {
		return errors.InvalidParam("ingest.dir is required when ingest is enabled")
	}
	if c.Postgres.Enabled && c.Postgres.Host == "" {
		return errors.InvalidParam("postgres.host is required when postgres is enabled")
	}
	if c.Redis.Enabled && c.Redis.Addr == "" {
		return errors.InvalidParam("redis.addr is required when redis is enabled")
	}
	if c.Minio.Enabled && c.Minio.Endpoint == "" {
		return errors.InvalidParam("minio.endpoint is required when minio is enabled")
	}
	if c.Milvus.Enabled && c.Milvus.Address == "" {
		return errors.InvalidParam("milvus.address is required when milvus is enabled")
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return errors.InvalidParam("kafka.brokers is required when kafka is enabled")
	}
	return nil
}
