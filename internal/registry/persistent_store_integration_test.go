package registry

import (
	"context"
	"testing"

	_ "github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"

	"github.com/filepipe-io/filepipe/internal/config"
	"github.com/filepipe-io/filepipe/internal/storage"
)

func setupRegistry(ctx context.Context, t *testing.T) *PersistentStore {
	t.Helper()

	testDB := config.SetupTestDatabase(ctx, t)
	t.Cleanup(func() {
		_ = testDB.Connection.Close()
		_ = testcontainers.TerminateContainer(testDB.Container)
	})

	store, err := NewPersistentStore(storage.WrapDB(testDB.Connection))
	require.NoError(t, err, "Failed to create registry store")

	return store
}

func TestPersistentStoreRoundTrip(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()
	store := setupRegistry(ctx, t)

	cfg := &DatasetConfig{
		DatasetID:         "board_licenses",
		SchemaVersion:     "2",
		ComputeTarget:     ComputeTargetLambda,
		AllowedExtensions: []string{"csv", "json"},
		RequiredColumns: []ColumnSpec{
			{Name: "date", Type: "date"},
			{Name: "license_number", Type: "string"},
		},
	}

	require.NoError(t, store.PutConfig(ctx, "board_licenses", cfg), "PutConfig failed")

	got, err := store.GetConfig(ctx, "board_licenses")
	require.NoError(t, err, "GetConfig failed")
	require.NotNil(t, got, "config not found after put")

	assert.Equal(t, cfg.DatasetID, got.DatasetID)
	assert.Equal(t, cfg.SchemaVersion, got.SchemaVersion)
	assert.Equal(t, cfg.ComputeTarget, got.ComputeTarget)
	assert.Equal(t, cfg.AllowedExtensions, got.AllowedExtensions)
	assert.Equal(t, cfg.RequiredColumns, got.RequiredColumns)
}

func TestPersistentStoreUpsert(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()
	store := setupRegistry(ctx, t)

	require.NoError(t, store.PutConfig(ctx, "board_licenses", &DatasetConfig{
		DatasetID:     "board_licenses",
		SchemaVersion: "1",
	}))

	require.NoError(t, store.PutConfig(ctx, "board_licenses", &DatasetConfig{
		DatasetID:     "board_licenses",
		SchemaVersion: "2",
		ComputeTarget: ComputeTargetFargate,
	}))

	got, err := store.GetConfig(ctx, "board_licenses")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "2", got.SchemaVersion, "second put should replace the first")
	assert.Equal(t, ComputeTargetFargate, got.ComputeTarget)
}

func TestPersistentStoreMissingKey(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()
	store := setupRegistry(ctx, t)

	got, err := store.GetConfig(ctx, "never_registered")
	require.NoError(t, err, "a miss is not an error")
	assert.Nil(t, got, "miss should return nil config")
}
