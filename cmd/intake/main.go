// Package main provides the filepipe intake service.
//
// The intake service watches object storage for new files (push mode via a
// kafka notification topic, or poll mode via bucket listing), enriches and
// routes each file, and dispatches run requests to compute.
package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/lib/pq" // PostgreSQL driver

	"github.com/filepipe-io/filepipe/internal/api"
	"github.com/filepipe-io/filepipe/internal/config"
	"github.com/filepipe-io/filepipe/internal/dispatch"
	"github.com/filepipe-io/filepipe/internal/enrichment"
	"github.com/filepipe-io/filepipe/internal/intake"
	"github.com/filepipe-io/filepipe/internal/objectstore"
	"github.com/filepipe-io/filepipe/internal/observer"
	"github.com/filepipe-io/filepipe/internal/processor"
	"github.com/filepipe-io/filepipe/internal/reader"
	"github.com/filepipe-io/filepipe/internal/registry"
	"github.com/filepipe-io/filepipe/internal/state"
	"github.com/filepipe-io/filepipe/internal/storage"
)

// Version information.
const (
	version = "1.0.0-dev"
	name    = "filepipe-intake"
)

// Intake modes.
const (
	modePush = "push"
	modePoll = "poll"
)

func main() {
	versionFlag := flag.Bool("version", false, "show version information")
	flag.Parse()

	if *versionFlag {
		log.Printf("%s v%s\n", name, version)
		os.Exit(0)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: config.GetEnvLogLevel("LOG_LEVEL", slog.LevelInfo),
	}))
	slog.SetDefault(logger)

	mode := config.GetEnvStr("INTAKE_MODE", modePoll)

	logger.Info("Starting intake service",
		slog.String("service", name),
		slog.String("version", version),
		slog.String("mode", mode))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, logger, mode); err != nil {
		logger.Error("Intake service failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	logger.Info("Intake service stopped")
}

func run(ctx context.Context, logger *slog.Logger, mode string) error {
	store, err := objectstore.NewMinioStore(objectstore.LoadConfig())
	if err != nil {
		return err
	}

	states, closeStates, err := buildStateStore(logger)
	if err != nil {
		return err
	}
	defer closeStates()

	regStore, err := buildRegistry(logger)
	if err != nil {
		return err
	}

	r := reader.New(store)

	enrichCfg := enrichment.LoadConfig()
	if err := enrichCfg.Validate(); err != nil {
		return err
	}

	enricher := enrichment.New(registry.NewClient(regStore), r, enrichCfg, logger)
	router := intake.NewRouter(enricher, logger)

	obs := buildObserver(logger)
	proc := processor.New(r, states, obs, processor.Hooks{}, processor.LoadConfig(), logger)
	dispatcher := dispatch.NewLocal(proc, dispatch.WaitBoundFromEnv(), logger)

	handle := dispatchHandler(dispatcher, logger)

	if config.GetEnvBool("FILEPIPE_API_ENABLED", false) {
		server := api.NewServer(api.LoadServerConfig(), states, regStore)

		go func() {
			if err := server.Start(ctx); err != nil {
				logger.Error("Status API server failed", slog.String("error", err.Error()))
			}
		}()
	}

	switch mode {
	case modePush:
		kafkaCfg := intake.LoadKafkaConfig()
		if err := kafkaCfg.Validate(); err != nil {
			return err
		}

		consumer := intake.NewPushConsumer(kafkaCfg, router, states, logger)
		defer consumer.Close()

		logger.Info("Consuming storage notifications",
			slog.String("topic", kafkaCfg.Topic),
			slog.String("group_id", kafkaCfg.GroupID))

		return consumer.Run(ctx, handle)
	case modePoll:
		pollCfg := intake.LoadPollConfig()
		if err := pollCfg.Validate(); err != nil {
			return err
		}

		poller := intake.NewPoller(store, states, router, pollCfg, logger)

		return poller.Run(ctx, handle)
	default:
		return errors.New("INTAKE_MODE must be push or poll")
	}
}

// dispatchHandler runs every routed request through the dispatcher. A failed
// run is still a confirmed hand-off: the failure lives in the state store,
// so the source message is not redelivered for it.
func dispatchHandler(dispatcher dispatch.Dispatcher, logger *slog.Logger) intake.Handler {
	return func(ctx context.Context, requests []intake.RunRequest) error {
		for _, req := range requests {
			if err := dispatcher.Dispatch(ctx, req); err != nil {
				logger.Error("Run failed",
					slog.String("run_key", req.RunKey),
					slog.String("run_id", req.RunID),
					slog.String("error", err.Error()))
			}
		}

		return nil
	}
}

func buildStateStore(logger *slog.Logger) (state.Store, func(), error) {
	storageCfg := storage.LoadConfig()
	if err := storageCfg.Validate(); err != nil {
		logger.Warn("No database configured, state is in-memory",
			slog.String("reason", err.Error()))

		return state.NewInMemoryStore(), func() {}, nil
	}

	conn, err := storage.NewConnection(storageCfg)
	if err != nil {
		return nil, nil, err
	}

	store, err := state.NewPersistentStore(conn, storageCfg.CleanupInterval, logger)
	if err != nil {
		_ = conn.Close()

		return nil, nil, err
	}

	logger.Info("State store initialized",
		slog.String("database_url", storageCfg.MaskDatabaseURL()),
		slog.Duration("cleanup_interval", storageCfg.CleanupInterval))

	cleanup := func() {
		_ = store.Close()
		_ = conn.Close()
	}

	return store, cleanup, nil
}

// buildRegistry prefers the Postgres-backed dataset registry and falls back
// to the YAML seed file for database-less dev runs.
func buildRegistry(logger *slog.Logger) (registry.Store, error) {
	storageCfg := storage.LoadConfig()
	if err := storageCfg.Validate(); err != nil {
		logger.Warn("No database configured, registry is file-backed",
			slog.String("reason", err.Error()))

		return registry.LoadFileStoreFromEnv()
	}

	conn, err := storage.NewConnection(storageCfg)
	if err != nil {
		return nil, err
	}

	return registry.NewPersistentStore(conn)
}

func buildObserver(logger *slog.Logger) observer.Observer {
	sinks := observer.Multi{observer.NewLogObserver(logger)}

	kafkaCfg := observer.LoadKafkaConfig()
	if kafkaCfg.Topic != "" && len(kafkaCfg.Brokers) > 0 {
		sinks = append(sinks, observer.NewKafkaObserver(kafkaCfg, logger))

		logger.Info("Observer kafka sink enabled", slog.String("topic", kafkaCfg.Topic))
	}

	return sinks
}
