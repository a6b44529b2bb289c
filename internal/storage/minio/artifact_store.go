// Package minio archives run reports and dataset snapshots in object
// storage.
package minio

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"

	miniogo "github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/qsarlab/molgraph/internal/cv"
	"github.com/qsarlab/molgraph/internal/monitoring/logging"
	"github.com/qsarlab/molgraph/pkg/errors"
)

// Config describes the object storage endpoint.
type Config struct {
	Endpoint  string `json:"endpoint" mapstructure:"endpoint"`
	AccessKey string `json:"access_key" mapstructure:"access_key"`
	SecretKey string `json:"secret_key" mapstructure:"secret_key"`
	UseSSL    bool   `json:"use_ssl" mapstructure:"use_ssl"`
	Bucket    string `json:"bucket" mapstructure:"bucket"`
}

// ArtifactStore writes run artifacts to a bucket. SaveRun makes it usable as
// a cv.ReportStore, so reports can be archived alongside the database row.
type ArtifactStore struct {
	client *miniogo.Client
	bucket string
	logger logging.Logger
}

func NewArtifactStore(cfg Config, logger logging.Logger) (*ArtifactStore, error) {
	if cfg.Endpoint == "" {
		return nil, errors.InvalidParam("minio endpoint cannot be empty")
	}
	if cfg.Bucket == "" {
		return nil, errors.InvalidParam("minio bucket cannot be empty")
	}
	if logger == nil {
		logger = logging.NewNopLogger()
	}

	client, err := miniogo.New(cfg.Endpoint, &miniogo.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeArtifactIO, "create minio client")
	}
	return &ArtifactStore{
		client: client,
		bucket: cfg.Bucket,
		logger: logger.Named("artifacts"),
	}, nil
}

// EnsureBucket creates the bucket when it does not exist yet.
func (s *ArtifactStore) EnsureBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return errors.Wrap(err, errors.CodeArtifactIO, "check bucket")
	}
	if exists {
		return nil
	}
	if err := s.client.MakeBucket(ctx, s.bucket, miniogo.MakeBucketOptions{}); err != nil {
		return errors.Wrap(err, errors.CodeArtifactIO, "create bucket")
	}
	s.logger.Info("created artifact bucket", logging.String("bucket", s.bucket))
	return nil
}

// SaveRun archives the full report as JSON under runs/<id>/report.json.
func (s *ArtifactStore) SaveRun(ctx context.Context, report *cv.Report) error {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return errors.Wrap(err, errors.CodeInternal, "encode report")
	}
	key := reportKey(report.RunID)
	_, err = s.client.PutObject(ctx, s.bucket, key,
		bytes.NewReader(data), int64(len(data)),
		miniogo.PutObjectOptions{ContentType: "application/json"},
	)
	if err != nil {
		return errors.Wrap(err, errors.CodeArtifactIO, "upload report")
	}
	s.logger.Debug("report archived",
		logging.String("run_id", report.RunID),
		logging.String("key", key),
	)
	return nil
}

// LoadRun fetches an archived report.
func (s *ArtifactStore) LoadRun(ctx context.Context, runID string) (*cv.Report, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, reportKey(runID), miniogo.GetObjectOptions{})
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeArtifactIO, "fetch report")
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		resp := miniogo.ToErrorResponse(err)
		if resp.Code == "NoSuchKey" {
			return nil, errors.Newf(errors.CodeNotFound, "report for run %s not found", runID)
		}
		return nil, errors.Wrap(err, errors.CodeArtifactIO, "read report")
	}
	var report cv.Report
	if err := json.Unmarshal(data, &report); err != nil {
		return nil, errors.Wrap(err, errors.CodeArtifactIO, "decode report")
	}
	return &report, nil
}

// SaveDataset archives the raw dataset file a run was trained on.
func (s *ArtifactStore) SaveDataset(ctx context.Context, runID, name string, r io.Reader, size int64) error {
	key := fmt.Sprintf("runs/%s/datasets/%s", runID, name)
	_, err := s.client.PutObject(ctx, s.bucket, key, r, size,
		miniogo.PutObjectOptions{ContentType: "text/csv"})
	if err != nil {
		return errors.Wrap(err, errors.CodeArtifactIO, "upload dataset")
	}
	return nil
}

func reportKey(runID string) string {
	return fmt.Sprintf("runs/%s/report.json", runID)
}
