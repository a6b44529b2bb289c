//go:build integration

// Integration tests for the run store. They require Docker and are gated
// behind the "integration" build tag.
package postgres_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/qsarlab/molgraph/internal/cv"
	"github.com/qsarlab/molgraph/internal/dataset"
	"github.com/qsarlab/molgraph/internal/model"
	"github.com/qsarlab/molgraph/internal/storage/postgres"
	"github.com/qsarlab/molgraph/pkg/errors"
)

// startPostgres launches a postgres container, applies the migrations and
// returns a connected pool.
func startPostgres(t *testing.T) (*pgxpool.Pool, string) {
	t.Helper()
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "postgres:16-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "test",
			"POSTGRES_PASSWORD": "test",
			"POSTGRES_DB":       "molgraph_test",
		},
		WaitingFor: wait.ForListeningPort("5432/tcp").WithStartupTimeout(60 * time.Second),
	}
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "5432")
	require.NoError(t, err)

	dsn := fmt.Sprintf("postgres://test:test@%s:%s/molgraph_test?sslmode=disable", host, port.Port())
	require.NoError(t, postgres.RunMigrations(dsn, "file://../../../migrations"))

	pool, err := pgxpool.New(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	return pool, dsn
}

func newTestReport(folds int) *cv.Report {
	now := time.Now().UTC().Truncate(time.Microsecond)
	report := &cv.Report{
		RunID:    uuid.NewString(),
		Dataset:  "lipophilicity.csv",
		Property: dataset.PropertyLipophilicity,
		Source:   dataset.SourceChEMBL,
		Config:   model.DefaultConfig(),
		Seed:     42,
		FilterOut: dataset.FilterStats{
			Input: 120, Retained: 100, Invalid: 12, MultiFragment: 5, Duplicates: 3,
		},
		Records:    100,
		Status:     cv.RunStatusCompleted,
		StartedAt:  now.Add(-time.Hour),
		FinishedAt: now,
	}
	perFold := make([]cv.Metrics, 0, folds)
	for i := 0; i < folds; i++ {
		m := cv.Metrics{
			RMSE:  0.5 + 0.01*float64(i),
			MAE:   0.4,
			R2:    0.8,
			Count: 10,
		}
		perFold = append(perFold, m)
		report.Folds = append(report.Folds, cv.FoldReport{
			Fold:      i,
			ModelID:   fmt.Sprintf("model-%d", i),
			BestEpoch: 17,
			TrainSize: 80,
			ValSize:   10,
			TestSize:  10,
			Metrics:   m,
			Duration:  3 * time.Minute,
		})
	}
	report.Summary = cv.Aggregate(perFold)
	return report
}

func TestRunStore_SaveAndGet(t *testing.T) {
	pool, _ := startPostgres(t)
	store := postgres.NewRunStore(pool, nil)
	ctx := context.Background()

	report := newTestReport(10)
	require.NoError(t, store.SaveRun(ctx, report))

	got, err := store.GetRun(ctx, report.RunID)
	require.NoError(t, err)
	assert.Equal(t, report.RunID, got.RunID)
	assert.Equal(t, report.Dataset, got.Dataset)
	assert.Equal(t, report.Property, got.Property)
	assert.Equal(t, report.FilterOut, got.FilterOut)
	assert.Equal(t, report.Config.HiddenDim, got.Config.HiddenDim)
	assert.InDelta(t, report.Summary.Mean.RMSE, got.Summary.Mean.RMSE, 1e-9)
	require.Len(t, got.Folds, 10)
	for i, f := range got.Folds {
		assert.Equal(t, i, f.Fold)
		assert.Equal(t, report.Folds[i].ModelID, f.ModelID)
		assert.Equal(t, 3*time.Minute, f.Duration)
	}
}

func TestRunStore_UpsertReplacesFolds(t *testing.T) {
	pool, _ := startPostgres(t)
	store := postgres.NewRunStore(pool, nil)
	ctx := context.Background()

	report := newTestReport(10)
	require.NoError(t, store.SaveRun(ctx, report))

	report.Status = cv.RunStatusFailed
	report.Error = "backend unreachable"
	report.Folds = report.Folds[:3]
	require.NoError(t, store.SaveRun(ctx, report))

	got, err := store.GetRun(ctx, report.RunID)
	require.NoError(t, err)
	assert.Equal(t, cv.RunStatusFailed, got.Status)
	assert.Equal(t, "backend unreachable", got.Error)
	assert.Len(t, got.Folds, 3)
}

func TestRunStore_GetMissing(t *testing.T) {
	pool, _ := startPostgres(t)
	store := postgres.NewRunStore(pool, nil)

	_, err := store.GetRun(context.Background(), uuid.NewString())
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.CodeNotFound))
}

func TestRunStore_ListRunsNewestFirst(t *testing.T) {
	pool, _ := startPostgres(t)
	store := postgres.NewRunStore(pool, nil)
	ctx := context.Background()

	older := newTestReport(10)
	older.StartedAt = time.Now().UTC().Add(-2 * time.Hour)
	newer := newTestReport(10)
	newer.StartedAt = time.Now().UTC().Add(-time.Minute)
	require.NoError(t, store.SaveRun(ctx, older))
	require.NoError(t, store.SaveRun(ctx, newer))

	runs, err := store.ListRuns(ctx, 10)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, newer.RunID, runs[0].RunID)
	assert.Equal(t, older.RunID, runs[1].RunID)
	assert.InDelta(t, newer.Summary.Mean.RMSE, runs[0].MeanRMSE, 1e-9)
}

func TestMigrationsAreReversible(t *testing.T) {
	_, dsn := startPostgres(t)

	version, dirty, err := postgres.MigrationVersion(dsn, "file://../../../migrations")
	require.NoError(t, err)
	assert.False(t, dirty)
	assert.Equal(t, uint(1), version)

	require.NoError(t, postgres.RollbackMigrations(dsn, "file://../../../migrations", 1))
	require.NoError(t, postgres.RunMigrations(dsn, "file://../../../migrations"))
}
