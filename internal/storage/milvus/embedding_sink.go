// Package milvus stores molecule readout embeddings for similarity search
// across runs.
package milvus

import (
	"context"
	"fmt"
	"time"

	"github.com/milvus-io/milvus-sdk-go/v2/client"
	"github.com/milvus-io/milvus-sdk-go/v2/entity"

	"github.com/qsarlab/molgraph/internal/monitoring/logging"
	"github.com/qsarlab/molgraph/pkg/errors"
)

const (
	fieldID        = "id"
	fieldRunID     = "run_id"
	fieldFold      = "fold"
	fieldEmbedding = "embedding"
)

// Config describes the Milvus connection and the embedding collection.
type Config struct {
	Address    string        `json:"address" mapstructure:"address"`
	Username   string        `json:"username" mapstructure:"username"`
	Password   string        `json:"password" mapstructure:"password"`
	Collection string        `json:"collection" mapstructure:"collection"`
	Dim        int           `json:"dim" mapstructure:"dim"`
	Timeout    time.Duration `json:"timeout" mapstructure:"timeout"`
}

// EmbeddingSink writes readout embeddings into a Milvus collection. It
// implements cv.EmbeddingSink.
type EmbeddingSink struct {
	client     client.Client
	collection string
	dim        int
	logger     logging.Logger
}

func NewEmbeddingSink(ctx context.Context, cfg Config, logger logging.Logger) (*EmbeddingSink, error) {
	if cfg.Address == "" {
		return nil, errors.InvalidParam("milvus address cannot be empty")
	}
	if cfg.Dim <= 0 {
		return nil, errors.Newf(errors.CodeInvalidParam, "embedding dim must be positive, got %d", cfg.Dim)
	}
	if cfg.Collection == "" {
		cfg.Collection = "molecule_embeddings"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if logger == nil {
		logger = logging.NewNopLogger()
	}

	connectCtx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()
	mc, err := client.NewClient(connectCtx, client.Config{
		Address:  cfg.Address,
		Username: cfg.Username,
		Password: cfg.Password,
	})
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeEmbeddingSink, "connect to milvus")
	}

	s := &EmbeddingSink{
		client:     mc,
		collection: cfg.Collection,
		dim:        cfg.Dim,
		logger:     logger.Named("embeddings"),
	}
	if err := s.ensureCollection(ctx); err != nil {
		mc.Close()
		return nil, err
	}
	return s, nil
}

func (s *EmbeddingSink) ensureCollection(ctx context.Context) error {
	has, err := s.client.HasCollection(ctx, s.collection)
	if err != nil {
		return errors.Wrap(err, errors.CodeEmbeddingSink, "check collection")
	}
	if has {
		return nil
	}

	schema := entity.NewSchema().
		WithName(s.collection).
		WithDescription("molecule readout embeddings by run and fold").
		WithField(entity.NewField().WithName(fieldID).
			WithDataType(entity.FieldTypeVarChar).WithMaxLength(96).WithIsPrimaryKey(true)).
		WithField(entity.NewField().WithName(fieldRunID).
			WithDataType(entity.FieldTypeVarChar).WithMaxLength(64)).
		WithField(entity.NewField().WithName(fieldFold).
			WithDataType(entity.FieldTypeInt32)).
		WithField(entity.NewField().WithName(fieldEmbedding).
			WithDataType(entity.FieldTypeFloatVector).WithDim(int64(s.dim)))

	if err := s.client.CreateCollection(ctx, schema, 2); err != nil {
		return errors.Wrap(err, errors.CodeEmbeddingSink, "create collection")
	}

	index, err := entity.NewIndexIvfFlat(entity.L2, 128)
	if err != nil {
		return errors.Wrap(err, errors.CodeEmbeddingSink, "build index spec")
	}
	if err := s.client.CreateIndex(ctx, s.collection, fieldEmbedding, index, false); err != nil {
		return errors.Wrap(err, errors.CodeEmbeddingSink, "create index")
	}
	s.logger.Info("created embedding collection",
		logging.String("collection", s.collection),
		logging.Int("dim", s.dim),
	)
	return nil
}

// StoreEmbeddings inserts one embedding per molecule. The primary key is
// run-scoped so the same molecule can carry embeddings from several runs.
func (s *EmbeddingSink) StoreEmbeddings(ctx context.Context, runID string, fold int, ids []string, embeddings [][]float32) error {
	if len(ids) != len(embeddings) {
		return errors.Newf(errors.CodeInvalidParam,
			"ids and embeddings length mismatch: %d vs %d", len(ids), len(embeddings))
	}
	if len(ids) == 0 {
		return nil
	}

	pks := make([]string, len(ids))
	runIDs := make([]string, len(ids))
	folds := make([]int32, len(ids))
	for i, id := range ids {
		if len(embeddings[i]) != s.dim {
			return errors.Newf(errors.CodeEmbeddingSink,
				"embedding %d has dim %d, collection expects %d", i, len(embeddings[i]), s.dim)
		}
		pks[i] = fmt.Sprintf("%s:%s", runID, id)
		runIDs[i] = runID
		folds[i] = int32(fold)
	}

	_, err := s.client.Insert(ctx, s.collection, "",
		entity.NewColumnVarChar(fieldID, pks),
		entity.NewColumnVarChar(fieldRunID, runIDs),
		entity.NewColumnInt32(fieldFold, folds),
		entity.NewColumnFloatVector(fieldEmbedding, s.dim, embeddings),
	)
	if err != nil {
		return errors.Wrap(err, errors.CodeEmbeddingSink, "insert embeddings")
	}
	s.logger.Debug("embeddings stored",
		logging.String("run_id", runID),
		logging.Int("fold", fold),
		logging.Int("count", len(ids)),
	)
	return nil
}

// Neighbor is one similarity search hit.
type Neighbor struct {
	ID    string  `json:"id"`
	Score float32 `json:"score"`
}

// SearchSimilar finds the closest stored molecules to the query embedding.
func (s *EmbeddingSink) SearchSimilar(ctx context.Context, embedding []float32, topK int) ([]Neighbor, error) {
	if len(embedding) != s.dim {
		return nil, errors.Newf(errors.CodeInvalidParam,
			"query embedding has dim %d, collection expects %d", len(embedding), s.dim)
	}
	if topK <= 0 {
		topK = 10
	}

	if err := s.client.LoadCollection(ctx, s.collection, false); err != nil {
		return nil, errors.Wrap(err, errors.CodeEmbeddingSink, "load collection")
	}

	sp, err := entity.NewIndexIvfFlatSearchParam(16)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeEmbeddingSink, "build search params")
	}
	results, err := s.client.Search(ctx, s.collection, nil, "", []string{fieldID},
		[]entity.Vector{entity.FloatVector(embedding)},
		fieldEmbedding, entity.L2, topK, sp,
	)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeEmbeddingSink, "search embeddings")
	}

	var out []Neighbor
	for _, res := range results {
		idCol, ok := res.IDs.(*entity.ColumnVarChar)
		if !ok {
			return nil, errors.New(errors.CodeEmbeddingSink, "unexpected id column type")
		}
		for i := 0; i < res.ResultCount; i++ {
			id, err := idCol.ValueByIdx(i)
			if err != nil {
				return nil, errors.Wrap(err, errors.CodeEmbeddingSink, "read search hit")
			}
			out = append(out, Neighbor{ID: id, Score: res.Scores[i]})
		}
	}
	return out, nil
}

func (s *EmbeddingSink) Close() error {
	return s.client.Close()
}
