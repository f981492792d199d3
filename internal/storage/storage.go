// File: internal/storage/storage.go
package storage

import (
	"context"
	"time"

	"github.com/opsmith/alert-summarizer/internal/models"
	"github.com/opsmith/alert-summarizer/pkg/utils"
)

// Storage defines the interface for run-history persistence
type Storage interface {
	// Connection management
	Connect() error
	Close() error
	Ping() error
	Migrate() error

	// Run record operations
	SaveRun(ctx context.Context, run *models.RunRecord) error
	GetRun(ctx context.Context, id string) (*models.RunRecord, error)
	GetRuns(ctx context.Context, filter models.RunFilter) ([]*models.RunRecord, error)
	GetLatestRun(ctx context.Context) (*models.RunRecord, error)

	// Health and statistics
	GetStats() (*StorageStats, error)
	GetHealth() *HealthStatus
	IsHealthy() bool
}

// StorageConfig holds database configuration
type StorageConfig struct {
	Type             string        `json:"type"` // sqlite, postgres
	ConnectionString string        `json:"connection_string"`
	MaxConnections   int           `json:"max_connections"`
	MaxIdleTime      time.Duration `json:"max_idle_time"`
}

// StorageStats provides storage statistics
type StorageStats struct {
	TotalRuns     int64      `json:"total_runs"`
	CompletedRuns int64      `json:"completed_runs"`
	FailedRuns    int64      `json:"failed_runs"`
	LastRunAt     *time.Time `json:"last_run_at,omitempty"`
	DatabaseSize  int64      `json:"database_size_bytes,omitempty"`
}

// HealthStatus provides storage health information
type HealthStatus struct {
	Healthy bool   `json:"healthy"`
	Error   string `json:"error,omitempty"`
}

// Migration represents a single schema migration
type Migration struct {
	Version int
	Name    string
	SQL     string
}

// NewStorage creates a storage backend for the configured type
func NewStorage(config *StorageConfig) (Storage, error) {
	switch config.Type {
	case "sqlite":
		return NewSQLiteStorage(config), nil
	case "postgres":
		return NewPostgreSQLStorage(config), nil
	default:
		return nil, utils.NewAppError(utils.ErrCodeConfiguration, "Unsupported storage type", config.Type)
	}
}
