package config

import (
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"

	"github.com/qsarlab/molgraph/pkg/errors"
)

// envPrefix is the environment variable prefix for all pipeline settings.
const envPrefix = "MOLGRAPH"

// configKeys lists every settable key. Unmarshal only sees keys viper knows
// about, so each one is bound explicitly to make pure-env loading work.
var configKeys = []string{
	"log.level", "log.format", "log.output_paths", "log.error_output_paths",
	"server.addr", "server.shutdown_timeout",
	"dataset.smiles_column", "dataset.label_column", "dataset.source", "dataset.property",
	"run.folds", "run.seed", "run.graph_workers", "run.fold_workers", "run.max_atoms", "run.with_embeddings",
	"model.depth", "model.hidden_dim", "model.attention_heads", "model.dropout",
	"model.epochs", "model.batch_size", "model.learning_rate",
	"model.atom_feature_dim", "model.bond_feature_dim",
	"serving.base_url", "serving.timeout", "serving.retries",
	"ingest.enabled", "ingest.dir", "ingest.settle_delay",
	"postgres.enabled", "postgres.host", "postgres.port", "postgres.user",
	"postgres.password", "postgres.database", "postgres.ssl_mode",
	"postgres.max_conns", "postgres.min_conns", "postgres.conn_max_lifetime",
	"postgres.migrations_path",
	"redis.enabled", "redis.addr", "redis.password", "redis.db", "redis.ttl",
	"minio.enabled", "minio.endpoint", "minio.access_key", "minio.secret_key",
	"minio.use_ssl", "minio.bucket",
	"milvus.enabled", "milvus.address", "milvus.username", "milvus.password",
	"milvus.collection", "milvus.dim", "milvus.timeout",
	"kafka.enabled", "kafka.brokers", "kafka.topic",
}

// newViper builds a pre-configured Viper instance: YAML file type, MOLGRAPH_
// env prefix, automatic env binding, and a key replacer mapping "." to "_"
// so a nested key like "postgres.host" resolves to MOLGRAPH_POSTGRES_HOST.
func newViper() *viper.Viper {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix(envPrefix)
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	for _, key := range configKeys {
		_ = v.BindEnv(key)
	}
	return v
}

// Load reads the YAML file at configPath, merges MOLGRAPH_* environment
// overrides, applies defaults and validates the result.
func Load(configPath string) (*Config, error) {
	v := newViper()
	v.SetConfigFile(configPath)

	if err := v.ReadInConfig(); err != nil {
		return nil, errors.Wrapf(err, errors.CodeInvalidParam, "read config file %q", configPath)
	}
	return unmarshalAndFinalize(v)
}

// LoadFromEnv builds a Config entirely from MOLGRAPH_* environment variables
// and defaults, for containerised deployments without a config file.
func LoadFromEnv() (*Config, error) {
	return unmarshalAndFinalize(newViper())
}

func unmarshalAndFinalize(v *viper.Viper) (*Config, error) {
	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, errors.Wrap(err, errors.CodeInvalidParam, "unmarshal configuration")
	}

	ApplyDefaults(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Watch invokes onChange with a freshly parsed Config whenever configPath
// changes on disk. Changes that fail to parse or validate are dropped so a
// bad edit never propagates a broken config.
func Watch(configPath string, onChange func(*Config)) {
	v := newViper()
	v.SetConfigFile(configPath)
	_ = v.ReadInConfig()

	v.WatchConfig()
	v.OnConfigChange(func(_ fsnotify.Event) {
		cfg, err := unmarshalAndFinalize(v)
		if err != nil {
			return
		}
		onChange(cfg)
	})
}
