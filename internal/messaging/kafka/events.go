// Package kafka publishes run lifecycle events so downstream consumers can
// track training progress without polling the database.
package kafka

import (
	"context"
	"encoding/json"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/qsarlab/molgraph/internal/cv"
	"github.com/qsarlab/molgraph/internal/monitoring/logging"
	"github.com/qsarlab/molgraph/pkg/errors"
)

// EventType names the run lifecycle events.
type EventType string

const (
	EventRunStarted    EventType = "run.started"
	EventFoldCompleted EventType = "fold.completed"
	EventRunFinished   EventType = "run.finished"
)

// Event is the wire format of a lifecycle event. Payload holds the report or
// fold report depending on the type.
type Event struct {
	Type      EventType       `json:"type"`
	RunID     string          `json:"run_id"`
	Timestamp time.Time       `json:"timestamp"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// Config describes the broker connection.
type Config struct {
	Brokers []string `json:"brokers" mapstructure:"brokers"`
	Topic   string   `json:"topic" mapstructure:"topic"`
}

// Publisher emits run events to a Kafka topic, keyed by run id so all events
// of one run land in the same partition, in order. It implements
// cv.RunObserver.
type Publisher struct {
	writer *kafkago.Writer
	logger logging.Logger
}

func NewPublisher(cfg Config, logger logging.Logger) (*Publisher, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.InvalidParam("kafka brokers cannot be empty")
	}
	if cfg.Topic == "" {
		cfg.Topic = "molgraph.runs"
	}
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &Publisher{
		writer: &kafkago.Writer{
			Addr:         kafkago.TCP(cfg.Brokers...),
			Topic:        cfg.Topic,
			Balancer:     &kafkago.Hash{},
			RequiredAcks: kafkago.RequireOne,
			BatchTimeout: 50 * time.Millisecond,
		},
		logger: logger.Named("events"),
	}, nil
}

func (p *Publisher) RunStarted(ctx context.Context, report *cv.Report) error {
	return p.publish(ctx, EventRunStarted, report.RunID, report)
}

func (p *Publisher) FoldCompleted(ctx context.Context, runID string, fold cv.FoldReport) error {
	return p.publish(ctx, EventFoldCompleted, runID, fold)
}

func (p *Publisher) RunFinished(ctx context.Context, report *cv.Report) error {
	return p.publish(ctx, EventRunFinished, report.RunID, report)
}

func (p *Publisher) publish(ctx context.Context, typ EventType, runID string, payload interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return errors.Wrap(err, errors.CodeInternal, "encode event payload")
	}
	evt := Event{
		Type:      typ,
		RunID:     runID,
		Timestamp: time.Now().UTC(),
		Payload:   body,
	}
	value, err := json.Marshal(evt)
	if err != nil {
		return errors.Wrap(err, errors.CodeInternal, "encode event")
	}

	err = p.writer.WriteMessages(ctx, kafkago.Message{
		Key:   []byte(runID),
		Value: value,
	})
	if err != nil {
		return errors.Wrap(err, errors.CodeEventPublish, "publish run event")
	}
	p.logger.Debug("event published",
		logging.String("type", string(typ)),
		logging.String("run_id", runID),
	)
	return nil
}

func (p *Publisher) Close() error {
	return p.writer.Close()
}
