package postgres

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/qsarlab/molgraph/internal/cv"
	"github.com/qsarlab/molgraph/internal/monitoring/logging"
	"github.com/qsarlab/molgraph/pkg/errors"
)

// RunStore persists cross-validation run reports. It implements
// cv.ReportStore.
type RunStore struct {
	pool   *pgxpool.Pool
	logger logging.Logger
}

func NewRunStore(pool *pgxpool.Pool, logger logging.Logger) *RunStore {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &RunStore{pool: pool, logger: logger.Named("runstore")}
}

// SaveRun upserts the run row and replaces its fold rows in one
// transaction, so a re-persisted report never leaves stale folds behind.
func (s *RunStore) SaveRun(ctx context.Context, report *cv.Report) error {
	configJSON, err := json.Marshal(report.Config)
	if err != nil {
		return errors.Wrap(err, errors.CodeInternal, "encode run config")
	}
	filterJSON, err := json.Marshal(report.FilterOut)
	if err != nil {
		return errors.Wrap(err, errors.CodeInternal, "encode filter stats")
	}
	summaryJSON, err := json.Marshal(report.Summary)
	if err != nil {
		return errors.Wrap(err, errors.CodeInternal, "encode run summary")
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return errors.Wrap(err, errors.CodeStoreQuery, "begin transaction")
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		INSERT INTO runs (
			id, dataset, property, source, seed, config,
			filter_stats, graph_drops, records, summary,
			status, error, started_at, finished_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
		ON CONFLICT (id) DO UPDATE SET
			summary = EXCLUDED.summary,
			status = EXCLUDED.status,
			error = EXCLUDED.error,
			finished_at = EXCLUDED.finished_at`,
		report.RunID, report.Dataset, report.Property, report.Source, report.Seed, configJSON,
		filterJSON, report.GraphDrops, report.Records, summaryJSON,
		report.Status, report.Error, report.StartedAt, report.FinishedAt,
	)
	if err != nil {
		return errors.Wrap(err, errors.CodeStoreQuery, "insert run")
	}

	if _, err := tx.Exec(ctx, `DELETE FROM run_folds WHERE run_id = $1`, report.RunID); err != nil {
		return errors.Wrap(err, errors.CodeStoreQuery, "clear run folds")
	}

	if len(report.Folds) > 0 {
		rows := make([][]interface{}, 0, len(report.Folds))
		for _, f := range report.Folds {
			rows = append(rows, []interface{}{
				report.RunID, f.Fold, f.ModelID, f.BestEpoch,
				f.TrainSize, f.ValSize, f.TestSize,
				f.Metrics.RMSE, f.Metrics.MAE, f.Metrics.R2,
				f.Duration.Milliseconds(),
			})
		}
		_, err = tx.CopyFrom(ctx,
			pgx.Identifier{"run_folds"},
			[]string{
				"run_id", "fold", "model_id", "best_epoch",
				"train_size", "val_size", "test_size",
				"rmse", "mae", "r2", "duration_ms",
			},
			pgx.CopyFromRows(rows),
		)
		if err != nil {
			return errors.Wrap(err, errors.CodeStoreQuery, "insert run folds")
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return errors.Wrap(err, errors.CodeStoreQuery, "commit run")
	}
	s.logger.Debug("run persisted",
		logging.String("run_id", report.RunID),
		logging.Int("folds", len(report.Folds)),
	)
	return nil
}

// GetRun loads one report by id, folds included.
func (s *RunStore) GetRun(ctx context.Context, runID string) (*cv.Report, error) {
	var (
		report      cv.Report
		configJSON  []byte
		filterJSON  []byte
		summaryJSON []byte
	)
	err := s.pool.QueryRow(ctx, `
		SELECT id, dataset, property, source, seed, config,
		       filter_stats, graph_drops, records, summary,
		       status, error, started_at, finished_at
		FROM runs WHERE id = $1`, runID,
	).Scan(
		&report.RunID, &report.Dataset, &report.Property, &report.Source, &report.Seed, &configJSON,
		&filterJSON, &report.GraphDrops, &report.Records, &summaryJSON,
		&report.Status, &report.Error, &report.StartedAt, &report.FinishedAt,
	)
	if err == pgx.ErrNoRows {
		return nil, errors.Newf(errors.CodeNotFound, "run %s not found", runID)
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeStoreQuery, "query run")
	}

	if err := json.Unmarshal(configJSON, &report.Config); err != nil {
		return nil, errors.Wrap(err, errors.CodeStoreQuery, "decode run config")
	}
	if err := json.Unmarshal(filterJSON, &report.FilterOut); err != nil {
		return nil, errors.Wrap(err, errors.CodeStoreQuery, "decode filter stats")
	}
	if err := json.Unmarshal(summaryJSON, &report.Summary); err != nil {
		return nil, errors.Wrap(err, errors.CodeStoreQuery, "decode run summary")
	}

	rows, err := s.pool.Query(ctx, `
		SELECT fold, model_id, best_epoch, train_size, val_size, test_size,
		       rmse, mae, r2, duration_ms
		FROM run_folds WHERE run_id = $1 ORDER BY fold`, runID)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeStoreQuery, "query run folds")
	}
	defer rows.Close()

	for rows.Next() {
		var f cv.FoldReport
		var durationMs int64
		if err := rows.Scan(
			&f.Fold, &f.ModelID, &f.BestEpoch, &f.TrainSize, &f.ValSize, &f.TestSize,
			&f.Metrics.RMSE, &f.Metrics.MAE, &f.Metrics.R2, &durationMs,
		); err != nil {
			return nil, errors.Wrap(err, errors.CodeStoreQuery, "scan run fold")
		}
		f.Duration = durationFromMs(durationMs)
		f.Metrics.Count = f.TestSize
		report.Folds = append(report.Folds, f)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, errors.CodeStoreQuery, "iterate run folds")
	}
	return &report, nil
}

// RunSummary is the list-view projection of a run.
type RunSummary struct {
	RunID    string      `json:"run_id"`
	Dataset  string      `json:"dataset"`
	Property string      `json:"property"`
	Status   cv.RunStatus `json:"status"`
	MeanRMSE float64     `json:"mean_rmse"`
	Records  int         `json:"records"`
}

// ListRuns returns the most recent runs, newest first.
func (s *RunStore) ListRuns(ctx context.Context, limit int) ([]RunSummary, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx, `
		SELECT id, dataset, property, status, records,
		       COALESCE((summary->'mean'->>'rmse')::float8, 0)
		FROM runs ORDER BY started_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeStoreQuery, "list runs")
	}
	defer rows.Close()

	var out []RunSummary
	for rows.Next() {
		var rs RunSummary
		if err := rows.Scan(&rs.RunID, &rs.Dataset, &rs.Property, &rs.Status, &rs.Records, &rs.MeanRMSE); err != nil {
			return nil, errors.Wrap(err, errors.CodeStoreQuery, "scan run summary")
		}
		out = append(out, rs)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, errors.CodeStoreQuery, "iterate runs")
	}
	return out, nil
}

func durationFromMs(ms int64) time.Duration {
	return time.Duration(ms) * time.Millisecond
}
