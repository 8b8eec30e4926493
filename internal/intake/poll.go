package intake

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/time/rate"

	"github.com/filepipe-io/filepipe/internal/enrichment"
	"github.com/filepipe-io/filepipe/internal/objectstore"
	"github.com/filepipe-io/filepipe/internal/state"
)

// skipStatuses are states that mean a file version is already being (or has
// been) handled; intake skips those files. FAILED is absent so a failed
// file is retried.
var skipStatuses = map[state.Status]struct{}{
	state.StatusPending:    {},
	state.StatusValidating: {},
	state.StatusProcessing: {},
	state.StatusCompleted:  {},
}

// inFlight reports whether the latest state for a file bars a new run.
// Shared by both intake variants: the poll cycle and the push consumer
// consult the same skip set so a redelivered or re-listed file is not
// reprocessed.
func inFlight(ctx context.Context, states state.Store, bucket, key string) (bool, error) {
	latest, err := states.GetLatest(ctx, state.FileKey(bucket, key))
	if err != nil {
		if errors.Is(err, state.ErrRecordNotFound) {
			return false, nil
		}

		return false, err
	}

	_, skip := skipStatuses[latest.Status]

	return skip, nil
}

// Poller discovers new files by listing a bucket prefix and cross-checking
// the state store. Files already seen in this process are dropped by an
// in-memory dedup set keyed by RunKey, so a file version is handed off at
// most once per process lifetime even if state writes lag.
type Poller struct {
	store   objectstore.Store
	states  state.Store
	router  *Router
	cfg     *PollConfig
	logger  *slog.Logger
	limiter *rate.Limiter

	mu   sync.Mutex
	seen map[string]struct{}
}

// NewPoller creates a Poller.
func NewPoller(store objectstore.Store, states state.Store, router *Router, cfg *PollConfig, logger *slog.Logger) *Poller {
	if logger == nil {
		logger = slog.Default()
	}

	return &Poller{
		store:   store,
		states:  states,
		router:  router,
		cfg:     cfg,
		logger:  logger,
		limiter: rate.NewLimiter(rate.Every(cfg.Interval), 1),
		seen:    make(map[string]struct{}),
	}
}

// Cycle runs one poll pass: list, filter, enrich, route, hand off.
func (p *Poller) Cycle(ctx context.Context, handle Handler) error {
	infos, err := p.store.List(ctx, p.cfg.Bucket, p.cfg.Prefix)
	if err != nil {
		return fmt.Errorf("failed to list %s/%s: %w", p.cfg.Bucket, p.cfg.Prefix, err)
	}

	var notifications []Notification

	for _, info := range infos {
		runKey := RunKey(info.Bucket, info.Key, info.ETag)

		if p.alreadySeen(runKey) {
			continue
		}

		skip, err := inFlight(ctx, p.states, info.Bucket, info.Key)
		if err != nil {
			p.logger.Warn("State lookup failed during poll, skipping file this cycle",
				slog.String("key", info.Key),
				slog.String("error", err.Error()))

			continue
		}

		if skip {
			p.markSeen(runKey)

			continue
		}

		notifications = append(notifications, Notification{
			File: enrichment.FileNotification{
				Bucket: info.Bucket,
				Key:    info.Key,
				Size:   info.Size,
				ETag:   info.ETag,
			},
		})
	}

	if len(notifications) == 0 {
		return nil
	}

	requests := p.router.Route(ctx, notifications)
	if len(requests) == 0 {
		return nil
	}

	if err := handle(ctx, requests); err != nil {
		return fmt.Errorf("failed to hand off %d run requests: %w", len(requests), err)
	}

	// Mark only after confirmed hand-off.
	for _, req := range requests {
		p.markSeen(req.RunKey)
	}

	return nil
}

// Run polls continuously until the context is cancelled. Cycle errors are
// logged and swallowed: the loop must survive transient storage and
// database trouble.
func (p *Poller) Run(ctx context.Context, handle Handler) error {
	p.logger.Info("Starting poll loop",
		slog.String("bucket", p.cfg.Bucket),
		slog.String("prefix", p.cfg.Prefix),
		slog.Duration("interval", p.cfg.Interval))

	for {
		if err := p.limiter.Wait(ctx); err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				p.logger.Info("Poll loop stopped")

				return nil
			}

			return err
		}

		if err := p.Cycle(ctx, handle); err != nil {
			p.logger.Error("Poll cycle failed", slog.String("error", err.Error()))
		}
	}
}

func (p *Poller) alreadySeen(runKey string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	_, ok := p.seen[runKey]

	return ok
}

func (p *Poller) markSeen(runKey string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.seen[runKey] = struct{}{}
}
