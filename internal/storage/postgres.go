// File: internal/storage/postgres.go
package storage

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"
	"github.com/sirupsen/logrus"

	"github.com/opsmith/alert-summarizer/internal/models"
	"github.com/opsmith/alert-summarizer/pkg/utils"
)

// PostgreSQLStorage implements Storage using PostgreSQL
type PostgreSQLStorage struct {
	db         *sql.DB
	config     *StorageConfig
	logger     *logrus.Logger
	migrations []*Migration
}

// NewPostgreSQLStorage creates a new PostgreSQL storage instance
func NewPostgreSQLStorage(config *StorageConfig) *PostgreSQLStorage {
	return &PostgreSQLStorage{
		config:     config,
		logger:     utils.GetLogger(),
		migrations: GetPostgresMigrations(),
	}
}

// Connect establishes the database connection
func (p *PostgreSQLStorage) Connect() error {
	db, err := sql.Open("postgres", p.config.ConnectionString)
	if err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to open PostgreSQL database", err.Error())
	}

	db.SetMaxOpenConns(p.config.MaxConnections)
	db.SetConnMaxIdleTime(p.config.MaxIdleTime)

	if err := db.Ping(); err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to ping PostgreSQL database", err.Error())
	}

	p.db = db
	p.logger.Info("PostgreSQL storage connected")
	return nil
}

// Close closes the database connection
func (p *PostgreSQLStorage) Close() error {
	if p.db == nil {
		return nil
	}
	return p.db.Close()
}

// Ping checks database connectivity
func (p *PostgreSQLStorage) Ping() error {
	if p.db == nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Database not connected", "")
	}
	return p.db.Ping()
}

// Migrate applies pending schema migrations
func (p *PostgreSQLStorage) Migrate() error {
	if _, err := p.db.Exec(`CREATE TABLE IF NOT EXISTS schema_migrations (version INTEGER PRIMARY KEY, name TEXT NOT NULL, applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW())`); err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to create migrations table", err.Error())
	}

	for _, migration := range p.migrations {
		var exists int
		err := p.db.QueryRow(`SELECT COUNT(1) FROM schema_migrations WHERE version = $1`, migration.Version).Scan(&exists)
		if err != nil {
			return utils.NewAppError(utils.ErrCodeDatabase, "Failed to check migration status", err.Error())
		}
		if exists > 0 {
			continue
		}

		if _, err := p.db.Exec(migration.SQL); err != nil {
			return utils.NewAppError(utils.ErrCodeDatabase,
				fmt.Sprintf("Migration %d (%s) failed", migration.Version, migration.Name), err.Error())
		}

		if _, err := p.db.Exec(`INSERT INTO schema_migrations (version, name) VALUES ($1, $2)`, migration.Version, migration.Name); err != nil {
			return utils.NewAppError(utils.ErrCodeDatabase, "Failed to record migration", err.Error())
		}

		p.logger.Info("Migration applied", map[string]interface{}{
			"version": migration.Version,
			"name":    migration.Name,
		})
	}

	return nil
}

// SaveRun inserts or updates a run record
func (p *PostgreSQLStorage) SaveRun(ctx context.Context, run *models.RunRecord) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO runs
			(id, report_date, window_start, window_end, trigger_kind, alerts_processed,
			 report_tier, status, error, started_at, finished_at, duration_seconds)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (id) DO UPDATE SET
			alerts_processed = EXCLUDED.alerts_processed,
			report_tier = EXCLUDED.report_tier,
			status = EXCLUDED.status,
			error = EXCLUDED.error,
			finished_at = EXCLUDED.finished_at,
			duration_seconds = EXCLUDED.duration_seconds`,
		run.ID, run.ReportDate, run.WindowStart, run.WindowEnd, run.Trigger,
		run.AlertsProcessed, string(run.ReportTier), run.Status, run.Error,
		run.StartedAt, run.FinishedAt, run.Duration)
	if err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to save run record", err.Error())
	}
	return nil
}

// GetRun returns one run record by id
func (p *PostgreSQLStorage) GetRun(ctx context.Context, id string) (*models.RunRecord, error) {
	row := p.db.QueryRowContext(ctx, selectRunColumns+` FROM runs WHERE id = $1`, id)
	run, err := scanRun(row)
	if err == sql.ErrNoRows {
		return nil, utils.NewAppError(utils.ErrCodeNotFound, "Run not found", id)
	}
	if err != nil {
		return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to get run record", err.Error())
	}
	return run, nil
}

// GetRuns returns run records matching the filter, newest first
func (p *PostgreSQLStorage) GetRuns(ctx context.Context, filter models.RunFilter) ([]*models.RunRecord, error) {
	query := selectRunColumns + ` FROM runs`
	args := []interface{}{}

	if filter.Status != nil {
		query += ` WHERE status = $1`
		args = append(args, *filter.Status)
	}

	query += ` ORDER BY started_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	query += fmt.Sprintf(` LIMIT %d OFFSET %d`, limit, filter.Offset)

	rows, err := p.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to query run records", err.Error())
	}
	defer rows.Close()

	var runs []*models.RunRecord
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to scan run record", err.Error())
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// GetLatestRun returns the most recently started run, or nil when none
// exist
func (p *PostgreSQLStorage) GetLatestRun(ctx context.Context) (*models.RunRecord, error) {
	row := p.db.QueryRowContext(ctx, selectRunColumns+` FROM runs ORDER BY started_at DESC LIMIT 1`)
	run, err := scanRun(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to get latest run", err.Error())
	}
	return run, nil
}

// GetStats returns aggregate run statistics
func (p *PostgreSQLStorage) GetStats() (*StorageStats, error) {
	stats := &StorageStats{}

	err := p.db.QueryRow(`
		SELECT COUNT(1),
		       COALESCE(SUM(CASE WHEN status = 'completed' THEN 1 ELSE 0 END), 0),
		       COALESCE(SUM(CASE WHEN status = 'failed' THEN 1 ELSE 0 END), 0)
		FROM runs`).Scan(&stats.TotalRuns, &stats.CompletedRuns, &stats.FailedRuns)
	if err != nil {
		return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to compute storage stats", err.Error())
	}

	var lastRun sql.NullTime
	if err := p.db.QueryRow(`SELECT MAX(started_at) FROM runs`).Scan(&lastRun); err == nil && lastRun.Valid {
		stats.LastRunAt = &lastRun.Time
	}

	return stats, nil
}

// GetHealth returns storage health status
func (p *PostgreSQLStorage) GetHealth() *HealthStatus {
	if err := p.Ping(); err != nil {
		return &HealthStatus{Healthy: false, Error: err.Error()}
	}
	return &HealthStatus{Healthy: true}
}

// IsHealthy reports whether the storage is reachable
func (p *PostgreSQLStorage) IsHealthy() bool {
	return p.Ping() == nil
}
