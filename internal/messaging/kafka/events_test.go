package kafka

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qsarlab/molgraph/internal/cv"
	"github.com/qsarlab/molgraph/pkg/errors"
)

func TestNewPublisherRequiresBrokers(t *testing.T) {
	_, err := NewPublisher(Config{}, nil)
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.CodeInvalidParam))
}

func TestNewPublisherDefaults(t *testing.T) {
	pub, err := NewPublisher(Config{Brokers: []string{"localhost:9092"}}, nil)
	require.NoError(t, err)
	defer pub.Close()

	assert.Equal(t, "molgraph.runs", pub.writer.Topic)
}

func TestEventWireFormat(t *testing.T) {
	fold := cv.FoldReport{
		Fold:     2,
		ModelID:  "model-2",
		TestSize: 10,
		Metrics:  cv.Metrics{RMSE: 0.5, MAE: 0.4, R2: 0.8, Count: 10},
		Duration: time.Minute,
	}
	payload, err := json.Marshal(fold)
	require.NoError(t, err)

	evt := Event{
		Type:      EventFoldCompleted,
		RunID:     "run-1",
		Timestamp: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		Payload:   payload,
	}
	data, err := json.Marshal(evt)
	require.NoError(t, err)

	var decoded Event
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, EventFoldCompleted, decoded.Type)
	assert.Equal(t, "run-1", decoded.RunID)

	var got cv.FoldReport
	require.NoError(t, json.Unmarshal(decoded.Payload, &got))
	assert.Equal(t, fold.Fold, got.Fold)
	assert.Equal(t, fold.Metrics.RMSE, got.Metrics.RMSE)
}
