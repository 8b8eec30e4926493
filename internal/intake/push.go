package intake

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/segmentio/kafka-go"

	"github.com/filepipe-io/filepipe/internal/state"
)

// Handler receives routed run requests. A nil error confirms hand-off and
// lets the consumer commit the source message.
type Handler func(ctx context.Context, requests []RunRequest) error

// PushConsumer consumes storage notification envelopes from a kafka topic.
//
// Commit discipline: a message offset is committed only after the handler
// confirms hand-off, so a crash between fetch and hand-off redelivers the
// message (at-least-once). The state store is consulted before dispatch so a
// redelivered message does not reprocess a file whose run already landed.
// Malformed messages are logged, committed, and skipped; they would never
// parse on redelivery either.
type PushConsumer struct {
	reader *kafka.Reader
	router *Router
	states state.Store
	logger *slog.Logger
}

// NewPushConsumer creates a push-mode consumer.
func NewPushConsumer(cfg *KafkaConfig, router *Router, states state.Store, logger *slog.Logger) *PushConsumer {
	if logger == nil {
		logger = slog.Default()
	}

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  cfg.Brokers,
		Topic:    cfg.Topic,
		GroupID:  cfg.GroupID,
		MinBytes: 1,
		MaxBytes: 10 * 1024 * 1024,
	})

	return &PushConsumer{reader: reader, router: router, states: states, logger: logger}
}

// Close releases the underlying kafka reader.
func (c *PushConsumer) Close() error {
	return c.reader.Close()
}

// Run consumes messages until the context is cancelled. Per-message failures
// never stop the loop.
func (c *PushConsumer) Run(ctx context.Context, handle Handler) error {
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil
			}

			return fmt.Errorf("failed to fetch intake message: %w", err)
		}

		if err := c.handleMessage(ctx, handle, msg); err != nil {
			c.logger.Error("Intake message hand-off failed, leaving uncommitted",
				slog.Int64("offset", msg.Offset),
				slog.String("error", err.Error()))

			continue
		}

		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			c.logger.Error("Failed to commit intake message",
				slog.Int64("offset", msg.Offset),
				slog.String("error", err.Error()))
		}
	}
}

func (c *PushConsumer) handleMessage(ctx context.Context, handle Handler, msg kafka.Message) error {
	notifications, err := ParseEnvelope(msg.Value)
	if err != nil {
		// Malformed payloads are skipped, not retried.
		c.logger.Warn("Skipping malformed intake message",
			slog.Int64("offset", msg.Offset),
			slog.String("error", err.Error()))

		return nil
	}

	requests, err := dropInFlight(ctx, c.states, c.router.Route(ctx, notifications), c.logger)
	if err != nil {
		// Leave the message uncommitted; redelivery retries the lookup.
		return err
	}

	if len(requests) == 0 {
		return nil
	}

	return handle(ctx, requests)
}

// dropInFlight filters out requests whose file already has a run recorded in
// a non-retryable status. This is what makes redelivery safe: a message
// replayed after a crash between dispatch and commit finds the completed run
// in the state store and skips it.
func dropInFlight(ctx context.Context, states state.Store, requests []RunRequest, logger *slog.Logger) ([]RunRequest, error) {
	if logger == nil {
		logger = slog.Default()
	}

	kept := requests[:0]

	for _, req := range requests {
		skip, err := inFlight(ctx, states, req.Config.S3Bucket, req.Config.S3Key)
		if err != nil {
			return nil, fmt.Errorf("state lookup for %s failed: %w", req.RunKey, err)
		}

		if skip {
			logger.Info("Skipping file with run already recorded",
				slog.String("run_key", req.RunKey))

			continue
		}

		kept = append(kept, req)
	}

	return kept, nil
}
