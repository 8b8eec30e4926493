package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver

	"github.com/filepipe-io/filepipe/internal/registry"
	"github.com/filepipe-io/filepipe/internal/storage"
)

const seedTimeout = 30 * time.Second

// seedRegistry loads the YAML registry seed file and upserts every dataset
// config into the dataset_configs table. Missing or empty seed files are a
// no-op, matching the file store's graceful-degradation behavior.
func seedRegistry(config *Config) error {
	fileStore, err := registry.LoadFileStoreFromEnv()
	if err != nil {
		return fmt.Errorf("failed to load registry seed: %w", err)
	}

	datasets := fileStore.Datasets()
	if len(datasets) == 0 {
		log.Println("Registry seed is empty, nothing to do")

		return nil
	}

	db, err := sql.Open("postgres", config.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}

	defer func() {
		_ = db.Close()
	}()

	store, err := registry.NewPersistentStore(storage.WrapDB(db))
	if err != nil {
		return fmt.Errorf("failed to create registry store: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), seedTimeout)
	defer cancel()

	for routingKey, cfg := range datasets {
		if err := store.PutConfig(ctx, routingKey, cfg); err != nil {
			return fmt.Errorf("failed to seed dataset %q: %w", routingKey, err)
		}

		log.Printf("Seeded dataset config: %s -> %s", routingKey, cfg.DatasetID)
	}

	log.Printf("Registry seeding complete: %d dataset(s)", len(datasets))

	return nil
}
