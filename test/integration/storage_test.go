// File: test/integration/storage_test.go
package integration

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opsmith/alert-summarizer/internal/models"
	"github.com/opsmith/alert-summarizer/internal/storage"
	"github.com/opsmith/alert-summarizer/pkg/utils"
)

func newSQLiteStore(t *testing.T) storage.Storage {
	t.Helper()

	// Initialize logger
	utils.InitLogger("info", "text", "stdout", "")

	cfg := &storage.StorageConfig{
		Type:             "sqlite",
		ConnectionString: filepath.Join(t.TempDir(), "runs.db"),
		MaxConnections:   10,
		MaxIdleTime:      time.Minute * 15,
	}

	store, err := storage.NewStorage(cfg)
	require.NoError(t, err, "Failed to create storage")
	t.Cleanup(func() { store.Close() })

	require.NoError(t, store.Connect(), "Failed to connect to storage")
	require.NoError(t, store.Migrate(), "Failed to migrate storage")
	require.NoError(t, store.Ping(), "Failed to ping storage")

	t.Logf("✓ Storage connection and migration successful")
	return store
}

func sampleRun(id string, startedAt time.Time, status string) *models.RunRecord {
	finished := startedAt.Add(3 * time.Second)
	return &models.RunRecord{
		ID:              id,
		ReportDate:      time.Date(2026, 8, 14, 0, 0, 0, 0, time.UTC),
		WindowStart:     time.Date(2026, 8, 14, 0, 0, 0, 0, time.UTC),
		WindowEnd:       time.Date(2026, 8, 15, 0, 0, 0, 0, time.UTC),
		Trigger:         "manual",
		AlertsProcessed: 7,
		ReportTier:      models.TierAI,
		Status:          status,
		StartedAt:       startedAt,
		FinishedAt:      &finished,
		Duration:        3.0,
	}
}

func TestSQLiteRunStorage(t *testing.T) {
	store := newSQLiteStore(t)

	t.Run("Save And Get", func(t *testing.T) { testSaveAndGet(t, store) })
	t.Run("Upsert", func(t *testing.T) { testUpsert(t, store) })
	t.Run("Latest Run", func(t *testing.T) { testLatestRun(t, store) })
	t.Run("Filtering", func(t *testing.T) { testRunFiltering(t, store) })
	t.Run("Statistics", func(t *testing.T) { testRunStatistics(t, store) })
	t.Run("Health", func(t *testing.T) { testStorageHealth(t, store) })
}

func testSaveAndGet(t *testing.T, store storage.Storage) {
	ctx := context.Background()
	run := sampleRun("run-1", time.Now().Add(-time.Hour), "completed")

	require.NoError(t, store.SaveRun(ctx, run), "Failed to save run record")

	retrieved, err := store.GetRun(ctx, run.ID)
	require.NoError(t, err, "Failed to get run record")
	require.NotNil(t, retrieved)

	assert.Equal(t, run.ID, retrieved.ID)
	assert.Equal(t, run.Trigger, retrieved.Trigger)
	assert.Equal(t, run.AlertsProcessed, retrieved.AlertsProcessed)
	assert.Equal(t, run.ReportTier, retrieved.ReportTier)
	assert.Equal(t, run.Status, retrieved.Status)
	assert.Nil(t, retrieved.Error)
	require.NotNil(t, retrieved.FinishedAt)

	// Unknown id
	_, err = store.GetRun(ctx, "no-such-run")
	require.Error(t, err)
	assert.True(t, utils.IsCode(err, utils.ErrCodeNotFound))

	t.Logf("✓ Run record round trip successful")
}

func testUpsert(t *testing.T, store storage.Storage) {
	ctx := context.Background()
	run := sampleRun("run-upsert", time.Now().Add(-30*time.Minute), "running")
	run.FinishedAt = nil
	run.Duration = 0

	require.NoError(t, store.SaveRun(ctx, run))

	// The orchestrator rewrites the record with the final status
	run.Status = "failed"
	errText := "mailbox store unreachable"
	run.Error = &errText
	finished := time.Now()
	run.FinishedAt = &finished
	run.Duration = 2.5

	require.NoError(t, store.SaveRun(ctx, run))

	retrieved, err := store.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, "failed", retrieved.Status)
	require.NotNil(t, retrieved.Error)
	assert.Equal(t, errText, *retrieved.Error)
	require.NotNil(t, retrieved.FinishedAt)

	t.Logf("✓ Run record upsert successful")
}

func testLatestRun(t *testing.T, store storage.Storage) {
	ctx := context.Background()

	newest := sampleRun("run-newest", time.Now(), "completed")
	require.NoError(t, store.SaveRun(ctx, newest))

	latest, err := store.GetLatestRun(ctx)
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, "run-newest", latest.ID)

	t.Logf("✓ Latest run lookup successful")
}

func testRunFiltering(t *testing.T, store storage.Storage) {
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		run := sampleRun(fmt.Sprintf("run-filter-%d", i), time.Now().Add(time.Duration(i)*time.Minute), "completed")
		require.NoError(t, store.SaveRun(ctx, run))
	}
	failed := sampleRun("run-filter-failed", time.Now().Add(10*time.Minute), "failed")
	require.NoError(t, store.SaveRun(ctx, failed))

	// Status filter
	status := "failed"
	runs, err := store.GetRuns(ctx, models.RunFilter{Status: &status, Limit: 10})
	require.NoError(t, err)
	require.NotEmpty(t, runs)
	for _, run := range runs {
		assert.Equal(t, "failed", run.Status)
	}

	// Limit
	limited, err := store.GetRuns(ctx, models.RunFilter{Limit: 3})
	require.NoError(t, err)
	assert.Len(t, limited, 3)

	// Newest first
	all, err := store.GetRuns(ctx, models.RunFilter{Limit: 50})
	require.NoError(t, err)
	for i := 1; i < len(all); i++ {
		assert.False(t, all[i-1].StartedAt.Before(all[i].StartedAt),
			"Runs must be ordered newest first")
	}

	t.Logf("✓ Run filtering successful: %d total runs", len(all))
}

func testRunStatistics(t *testing.T, store storage.Storage) {
	stats, err := store.GetStats()
	require.NoError(t, err, "Failed to get storage stats")

	assert.Positive(t, stats.TotalRuns)
	assert.Positive(t, stats.CompletedRuns)
	assert.Positive(t, stats.FailedRuns)
	assert.NotNil(t, stats.LastRunAt)

	t.Logf("✓ Storage stats retrieved: %d runs (%d completed, %d failed)",
		stats.TotalRuns, stats.CompletedRuns, stats.FailedRuns)
}

func testStorageHealth(t *testing.T, store storage.Storage) {
	health := store.GetHealth()
	assert.True(t, health.Healthy)
	assert.Empty(t, health.Error)
	assert.True(t, store.IsHealthy())
}

func TestSQLiteEmptyDatabase(t *testing.T) {
	store := newSQLiteStore(t)
	ctx := context.Background()

	latest, err := store.GetLatestRun(ctx)
	require.NoError(t, err)
	assert.Nil(t, latest, "Latest run on an empty database is nil")

	runs, err := store.GetRuns(ctx, models.RunFilter{})
	require.NoError(t, err)
	assert.Empty(t, runs)

	stats, err := store.GetStats()
	require.NoError(t, err)
	assert.Zero(t, stats.TotalRuns)
}

func TestStorageFactoryRejectsUnknownType(t *testing.T) {
	_, err := storage.NewStorage(&storage.StorageConfig{Type: "etcd"})
	require.Error(t, err)
	assert.True(t, utils.IsCode(err, utils.ErrCodeConfiguration))
}
