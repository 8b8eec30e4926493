// Package dispatch hands routed run requests to compute. The Local
// dispatcher runs the processor in-process with a hard wait bound, standing
// in for remote lambda/fargate execution.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/filepipe-io/filepipe/internal/config"
	"github.com/filepipe-io/filepipe/internal/intake"
	"github.com/filepipe-io/filepipe/internal/processor"
)

// ErrDispatchTimeout indicates a run exceeded the dispatcher's wait bound.
// The run is reported failed even if it is still nominally executing.
var ErrDispatchTimeout = errors.New("run exceeded dispatch wait bound")

// defaultWaitBound caps how long a single run may take.
const defaultWaitBound = 15 * time.Minute

// Dispatcher consumes run requests. Each request is dispatched exactly once;
// a returned error means the run failed or could not be confirmed.
type Dispatcher interface {
	Dispatch(ctx context.Context, req intake.RunRequest) error
}

// Local runs the processor in-process.
type Local struct {
	processor *processor.Processor
	waitBound time.Duration
	logger    *slog.Logger
}

var _ Dispatcher = (*Local)(nil)

// NewLocal creates an in-process dispatcher. A non-positive waitBound uses
// the default.
func NewLocal(p *processor.Processor, waitBound time.Duration, logger *slog.Logger) *Local {
	if waitBound <= 0 {
		waitBound = defaultWaitBound
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &Local{processor: p, waitBound: waitBound, logger: logger}
}

// WaitBoundFromEnv reads the dispatch wait bound from the environment.
func WaitBoundFromEnv() time.Duration {
	return config.GetEnvDuration("DISPATCH_WAIT_BOUND", defaultWaitBound)
}

// Dispatch runs one request, waiting at most the configured bound. A run
// that outlives the bound is reported as failed; its goroutine is cancelled
// and drains in the background.
func (l *Local) Dispatch(ctx context.Context, req intake.RunRequest) error {
	runCtx, cancel := context.WithTimeout(ctx, l.waitBound)
	defer cancel()

	done := make(chan error, 1)

	go func() {
		_, err := l.processor.Process(runCtx, processor.Request{
			Bucket:   req.Config.S3Bucket,
			Key:      req.Config.S3Key,
			TaskSize: req.Config.TaskSize,
			RunID:    req.RunID,
		})

		done <- err
	}()

	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("run %s failed: %w", req.RunID, err)
		}

		return nil
	case <-runCtx.Done():
		if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
			l.logger.Error("Run exceeded wait bound",
				slog.String("run_id", req.RunID),
				slog.String("run_key", req.RunKey),
				slog.Duration("wait_bound", l.waitBound))

			return fmt.Errorf("run %s: %w", req.RunID, ErrDispatchTimeout)
		}

		return runCtx.Err()
	}
}
