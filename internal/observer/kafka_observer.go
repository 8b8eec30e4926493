package observer

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/filepipe-io/filepipe/internal/config"
)

// Event kinds published to the observer topic.
const (
	eventProgress     = "progress"
	eventMaterialized = "materialized"
	eventCompleted    = "completed"
	eventFailed       = "failed"
)

// sendTimeout bounds a single publish so a slow broker cannot stall the run.
const sendTimeout = 5 * time.Second

// event is the wire shape published to the observer topic.
type event struct {
	Kind      string         `json:"kind"`
	Timestamp time.Time      `json:"timestamp"`
	Current   int64          `json:"current,omitempty"`
	Total     int64          `json:"total,omitempty"`
	Label     string         `json:"label,omitempty"`
	Asset     string         `json:"asset,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	Error     string         `json:"error,omitempty"`
	Summary   *Summary       `json:"summary,omitempty"`
}

// KafkaConfig holds settings for the kafka observer sink.
type KafkaConfig struct {
	Brokers []string
	Topic   string
}

// LoadKafkaConfig reads the sink settings from the environment. An empty
// topic disables the sink.
func LoadKafkaConfig() *KafkaConfig {
	return &KafkaConfig{
		Brokers: config.ParseCommaSeparatedList(config.GetEnvStr("KAFKA_BROKERS", "")),
		Topic:   config.GetEnvStr("OBSERVER_TOPIC", ""),
	}
}

// KafkaObserver publishes run events to a kafka topic. Publishing is
// fire-and-forget: send errors are logged and never propagated.
type KafkaObserver struct {
	writer *kafka.Writer
	logger *slog.Logger
}

var _ Observer = (*KafkaObserver)(nil)

// NewKafkaObserver creates a kafka-sink observer.
func NewKafkaObserver(cfg *KafkaConfig, logger *slog.Logger) *KafkaObserver {
	if logger == nil {
		logger = slog.Default()
	}

	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.LeastBytes{},
		RequiredAcks: kafka.RequireOne,
		Async:        false,
	}

	return &KafkaObserver{writer: writer, logger: logger}
}

// Close releases the underlying writer.
func (o *KafkaObserver) Close() error {
	return o.writer.Close()
}

func (o *KafkaObserver) Progress(ctx context.Context, current, total int64, label string) {
	o.publish(ctx, "", event{
		Kind:    eventProgress,
		Current: current,
		Total:   total,
		Label:   label,
	})
}

func (o *KafkaObserver) Materialized(ctx context.Context, asset string, metadata map[string]any) {
	o.publish(ctx, asset, event{
		Kind:     eventMaterialized,
		Asset:    asset,
		Metadata: metadata,
	})
}

func (o *KafkaObserver) Completed(ctx context.Context, s Summary) {
	o.publish(ctx, s.RunID, event{
		Kind:    eventCompleted,
		Summary: &s,
	})
}

func (o *KafkaObserver) Failed(ctx context.Context, err error, s Summary) {
	o.publish(ctx, s.RunID, event{
		Kind:    eventFailed,
		Error:   err.Error(),
		Summary: &s,
	})
}

func (o *KafkaObserver) publish(ctx context.Context, key string, ev event) {
	ev.Timestamp = time.Now().UTC()

	body, err := json.Marshal(ev)
	if err != nil {
		o.logger.Warn("Failed to encode observer event",
			slog.String("kind", ev.Kind),
			slog.String("error", err.Error()))

		return
	}

	sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sendTimeout)
	defer cancel()

	msg := kafka.Message{Value: body}
	if key != "" {
		msg.Key = []byte(key)
	}

	if err := o.writer.WriteMessages(sendCtx, msg); err != nil {
		o.logger.Warn("Failed to publish observer event",
			slog.String("kind", ev.Kind),
			slog.String("error", err.Error()))
	}
}
