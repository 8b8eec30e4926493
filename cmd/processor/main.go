// Package main provides the filepipe single-file processor.
//
// This is the compute-tier entry point: it processes exactly one file and
// exits. Logs go to stderr as JSON; stdout carries only the result document
// so callers can parse it.
//
// Usage: processor <bucket> <key> [taskSize] [runId]
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	_ "github.com/lib/pq" // PostgreSQL driver

	"github.com/filepipe-io/filepipe/internal/config"
	"github.com/filepipe-io/filepipe/internal/intake"
	"github.com/filepipe-io/filepipe/internal/objectstore"
	"github.com/filepipe-io/filepipe/internal/observer"
	"github.com/filepipe-io/filepipe/internal/processor"
	"github.com/filepipe-io/filepipe/internal/reader"
	"github.com/filepipe-io/filepipe/internal/state"
	"github.com/filepipe-io/filepipe/internal/storage"
)

// Version information.
const (
	version = "1.0.0-dev"
	name    = "filepipe-processor"
)

func main() {
	versionFlag := flag.Bool("version", false, "show version information")
	flag.Parse()

	if *versionFlag {
		log.Printf("%s v%s\n", name, version)
		os.Exit(0)
	}

	args := flag.Args()
	if len(args) < 2 {
		fmt.Fprintf(os.Stderr, "Usage: %s <bucket> <key> [taskSize] [runId]\n", os.Args[0])
		os.Exit(2)
	}

	// stdout is reserved for the result document.
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: config.GetEnvLogLevel("LOG_LEVEL", slog.LevelInfo),
	}))
	slog.SetDefault(logger)

	req := processor.Request{
		Bucket: args[0],
		Key:    args[1],
	}

	if len(args) > 2 {
		if !intake.ValidTaskSize(args[2]) {
			fmt.Fprintf(os.Stderr, "invalid task size %q\n", args[2])
			os.Exit(2)
		}

		req.TaskSize = args[2]
	}

	if len(args) > 3 {
		req.RunID = args[3]
	} else {
		req.RunID = uuid.NewString()
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	result, runErr := run(ctx, logger, req)

	if result != nil {
		encoded, err := json.Marshal(result)
		if err != nil {
			logger.Error("Failed to encode result", slog.String("error", err.Error()))
			os.Exit(1)
		}

		fmt.Println(string(encoded))
	}

	if runErr != nil {
		os.Exit(1)
	}
}

func run(ctx context.Context, logger *slog.Logger, req processor.Request) (*processor.Result, error) {
	storeCfg := objectstore.LoadConfig()

	store, err := objectstore.NewMinioStore(storeCfg)
	if err != nil {
		logger.Error("Failed to create object store client", slog.String("error", err.Error()))

		return nil, err
	}

	// Resolve the task size from the actual object when the caller did not
	// supply one.
	if req.TaskSize == "" {
		info, err := store.Stat(ctx, req.Bucket, req.Key)
		if err != nil {
			logger.Error("Failed to stat object", slog.String("error", err.Error()))

			return nil, err
		}

		req.TaskSize = intake.TaskSize(info.Size)
	}

	states, closeStates, err := buildStateStore(logger)
	if err != nil {
		return nil, err
	}
	defer closeStates()

	obs := buildObserver(logger)

	p := processor.New(reader.New(store), states, obs, processor.Hooks{}, processor.LoadConfig(), logger)

	logger.Info("Starting file run",
		slog.String("service", name),
		slog.String("version", version),
		slog.String("bucket", req.Bucket),
		slog.String("key", req.Key),
		slog.String("task_size", req.TaskSize),
		slog.String("run_id", req.RunID))

	return p.Process(ctx, req)
}

// buildStateStore wires the Postgres state store when DATABASE_URL is set,
// falling back to an in-memory store for local runs.
func buildStateStore(logger *slog.Logger) (state.Store, func(), error) {
	storageCfg := storage.LoadConfig()
	if err := storageCfg.Validate(); err != nil {
		logger.Warn("No database configured, state is in-memory for this run",
			slog.String("reason", err.Error()))

		return state.NewInMemoryStore(), func() {}, nil
	}

	conn, err := storage.NewConnection(storageCfg)
	if err != nil {
		logger.Error("Failed to connect to database", slog.String("error", err.Error()))

		return nil, nil, err
	}

	store, err := state.NewPersistentStore(conn, storageCfg.CleanupInterval, logger)
	if err != nil {
		logger.Error("Failed to create state store", slog.String("error", err.Error()))

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

// buildObserver always logs; the kafka sink joins when a topic is
// configured.
func buildObserver(logger *slog.Logger) observer.Observer {
	sinks := observer.Multi{observer.NewLogObserver(logger)}

	kafkaCfg := observer.LoadKafkaConfig()
	if kafkaCfg.Topic != "" && len(kafkaCfg.Brokers) > 0 {
		sinks = append(sinks, observer.NewKafkaObserver(kafkaCfg, logger))

		logger.Info("Observer kafka sink enabled", slog.String("topic", kafkaCfg.Topic))
	}

	return sinks
}
