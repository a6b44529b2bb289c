package model

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/qsarlab/molgraph/internal/monitoring/logging"
	"github.com/qsarlab/molgraph/pkg/errors"
)

// HTTPClientOptions configures the HTTP backend client.
type HTTPClientOptions struct {
	BaseURL string
	// Timeout bounds a single request. Training requests block until the
	// fold finishes, so this should be generous.
	Timeout time.Duration
	// Retries is the number of additional attempts after a transport
	// failure or a 5xx response. Predict and Status retry; TrainFold does
	// not, since a half-finished training run is not idempotent.
	Retries int
}

func DefaultHTTPClientOptions(baseURL string) HTTPClientOptions {
	return HTTPClientOptions{
		BaseURL: baseURL,
		Timeout: 4 * time.Hour,
		Retries: 2,
	}
}

// httpBackend talks JSON to the serving process.
type httpBackend struct {
	opts   HTTPClientOptions
	client *http.Client
	logger logging.Logger
}

// NewHTTPBackend builds a backend client for the serving endpoint at
// opts.BaseURL.
func NewHTTPBackend(opts HTTPClientOptions, logger logging.Logger) (Backend, error) {
	if opts.BaseURL == "" {
		return nil, errors.InvalidParam("serving base URL cannot be empty")
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 4 * time.Hour
	}
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &httpBackend{
		opts:   opts,
		client: &http.Client{Timeout: opts.Timeout},
		logger: logger.Named("serving"),
	}, nil
}

func (b *httpBackend) TrainFold(ctx context.Context, req *TrainFoldRequest) (*TrainFoldResult, error) {
	if err := req.Config.Validate(); err != nil {
		return nil, err
	}
	if len(req.Train) == 0 {
		return nil, errors.InvalidParam("training set is empty")
	}
	b.logger.Info("submitting fold for training",
		logging.String("run_id", req.RunID),
		logging.Int("fold", req.Fold),
		logging.Int("train", len(req.Train)),
		logging.Int("val", len(req.Val)),
	)
	var res TrainFoldResult
	if err := b.post(ctx, "/v1/train", req, &res, 0); err != nil {
		return nil, err
	}
	if res.ModelID == "" {
		return nil, errors.New(errors.CodeServingResponse, "training response is missing model_id")
	}
	return &res, nil
}

func (b *httpBackend) Predict(ctx context.Context, req *PredictRequest) (*PredictResponse, error) {
	if len(req.Graphs) == 0 {
		return &PredictResponse{}, nil
	}
	if len(req.IDs) != len(req.Graphs) {
		return nil, errors.Newf(errors.CodeInvalidParam,
			"ids and graphs length mismatch: %d vs %d", len(req.IDs), len(req.Graphs))
	}
	var res PredictResponse
	if err := b.post(ctx, "/v1/predict", req, &res, b.opts.Retries); err != nil {
		return nil, err
	}
	if len(res.Predictions) != len(req.Graphs) {
		return nil, errors.Newf(errors.CodeServingResponse,
			"expected %d predictions, got %d", len(req.Graphs), len(res.Predictions))
	}
	if req.WithEmbeddings && len(res.Embeddings) != len(req.Graphs) {
		return nil, errors.Newf(errors.CodeServingResponse,
			"expected %d embeddings, got %d", len(req.Graphs), len(res.Embeddings))
	}
	return &res, nil
}

func (b *httpBackend) Status(ctx context.Context) (*Status, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, b.opts.BaseURL+"/v1/status", nil)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeInternal, "build status request")
	}
	resp, err := b.client.Do(httpReq)
	if err != nil {
		return nil, classifyTransportErr(ctx, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, errors.Newf(errors.CodeServingUnavailable, "status endpoint returned %d", resp.StatusCode)
	}
	var st Status
	if err := json.NewDecoder(resp.Body).Decode(&st); err != nil {
		return nil, errors.Wrap(err, errors.CodeServingResponse, "decode status response")
	}
	return &st, nil
}

func (b *httpBackend) Close() error {
	b.client.CloseIdleConnections()
	return nil
}

// post sends body as JSON and decodes the response into out, retrying
// transport failures and 5xx responses up to retries additional times.
func (b *httpBackend) post(ctx context.Context, path string, body, out interface{}, retries int) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return errors.Wrap(err, errors.CodeInternal, "encode request")
	}

	var lastErr error
	for attempt := 0; attempt <= retries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return errors.Wrap(ctx.Err(), errors.CodeServingTimeout, "request cancelled")
			case <-time.After(time.Duration(attempt) * 500 * time.Millisecond):
			}
			b.logger.Warn("retrying serving request",
				logging.String("path", path),
				logging.Int("attempt", attempt),
				logging.Err(lastErr),
			)
		}
		lastErr = b.postOnce(ctx, path, payload, out)
		if lastErr == nil {
			return nil
		}
		if !retryable(lastErr) {
			return lastErr
		}
	}
	return lastErr
}

func (b *httpBackend) postOnce(ctx context.Context, path string, payload []byte, out interface{}) error {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, b.opts.BaseURL+path, bytes.NewReader(payload))
	if err != nil {
		return errors.Wrap(err, errors.CodeInternal, "build request")
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := b.client.Do(httpReq)
	if err != nil {
		return classifyTransportErr(ctx, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusServiceUnavailable:
		return errors.Newf(errors.CodeModelNotReady, "%s returned 503", path)
	case resp.StatusCode >= 500:
		return errors.Newf(errors.CodeServingUnavailable, "%s returned %d: %s", path, resp.StatusCode, readErrBody(resp.Body))
	default:
		return errors.Newf(errors.CodeServingResponse, "%s returned %d: %s", path, resp.StatusCode, readErrBody(resp.Body))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errors.Wrap(err, errors.CodeServingResponse, fmt.Sprintf("decode %s response", path))
	}
	return nil
}

func classifyTransportErr(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return errors.Wrap(err, errors.CodeServingTimeout, "serving request cancelled")
	}
	return errors.Wrap(err, errors.CodeServingUnavailable, "serving request failed")
}

func retryable(err error) bool {
	return errors.IsCode(err, errors.CodeServingUnavailable)
}

func readErrBody(r io.Reader) string {
	data, err := io.ReadAll(io.LimitReader(r, 512))
	if err != nil || len(data) == 0 {
		return "<no body>"
	}
	return string(data)
}
