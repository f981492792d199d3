// File: internal/storage/sqlite.go
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"

	"github.com/opsmith/alert-summarizer/internal/models"
	"github.com/opsmith/alert-summarizer/pkg/utils"
)

// SQLiteStorage implements Storage using SQLite
type SQLiteStorage struct {
	db         *sql.DB
	config     *StorageConfig
	logger     *logrus.Logger
	migrations []*Migration
}

// NewSQLiteStorage creates a new SQLite storage instance
func NewSQLiteStorage(config *StorageConfig) *SQLiteStorage {
	return &SQLiteStorage{
		config:     config,
		logger:     utils.GetLogger(),
		migrations: GetSQLiteMigrations(),
	}
}

// Connect opens the database, creating the parent directory if needed
func (s *SQLiteStorage) Connect() error {
	dir := filepath.Dir(s.config.ConnectionString)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return utils.NewAppError(utils.ErrCodeDatabase, "Failed to create database directory", err.Error())
		}
	}

	db, err := sql.Open("sqlite", s.config.ConnectionString)
	if err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to open SQLite database", err.Error())
	}

	db.SetMaxOpenConns(s.config.MaxConnections)
	db.SetConnMaxIdleTime(s.config.MaxIdleTime)

	if err := db.Ping(); err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to ping SQLite database", err.Error())
	}

	s.db = db
	s.logger.Info("SQLite storage connected", map[string]interface{}{
		"path": s.config.ConnectionString,
	})
	return nil
}

// Close closes the database connection
func (s *SQLiteStorage) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Ping checks database connectivity
func (s *SQLiteStorage) Ping() error {
	if s.db == nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Database not connected", "")
	}
	return s.db.Ping()
}

// Migrate applies pending schema migrations
func (s *SQLiteStorage) Migrate() error {
	if _, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS schema_migrations (version INTEGER PRIMARY KEY, name TEXT NOT NULL, applied_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP)`); err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to create migrations table", err.Error())
	}

	for _, migration := range s.migrations {
		var exists int
		err := s.db.QueryRow(`SELECT COUNT(1) FROM schema_migrations WHERE version = ?`, migration.Version).Scan(&exists)
		if err != nil {
			return utils.NewAppError(utils.ErrCodeDatabase, "Failed to check migration status", err.Error())
		}
		if exists > 0 {
			continue
		}

		if _, err := s.db.Exec(migration.SQL); err != nil {
			return utils.NewAppError(utils.ErrCodeDatabase,
				fmt.Sprintf("Migration %d (%s) failed", migration.Version, migration.Name), err.Error())
		}

		if _, err := s.db.Exec(`INSERT INTO schema_migrations (version, name) VALUES (?, ?)`, migration.Version, migration.Name); err != nil {
			return utils.NewAppError(utils.ErrCodeDatabase, "Failed to record migration", err.Error())
		}

		s.logger.Info("Migration applied", map[string]interface{}{
			"version": migration.Version,
			"name":    migration.Name,
		})
	}

	return nil
}

// SaveRun inserts or replaces a run record
func (s *SQLiteStorage) SaveRun(ctx context.Context, run *models.RunRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO runs
			(id, report_date, window_start, window_end, trigger_kind, alerts_processed,
			 report_tier, status, error, started_at, finished_at, duration_seconds)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.ReportDate, run.WindowStart, run.WindowEnd, run.Trigger,
		run.AlertsProcessed, string(run.ReportTier), run.Status, run.Error,
		run.StartedAt, run.FinishedAt, run.Duration)
	if err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to save run record", err.Error())
	}
	return nil
}

// GetRun returns one run record by id
func (s *SQLiteStorage) GetRun(ctx context.Context, id string) (*models.RunRecord, error) {
	row := s.db.QueryRowContext(ctx, selectRunColumns+` FROM runs WHERE id = ?`, id)
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
func (s *SQLiteStorage) GetRuns(ctx context.Context, filter models.RunFilter) ([]*models.RunRecord, error) {
	query := selectRunColumns + ` FROM runs`
	args := []interface{}{}

	if filter.Status != nil {
		query += ` WHERE status = ?`
		args = append(args, *filter.Status)
	}

	query += ` ORDER BY started_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	query += fmt.Sprintf(` LIMIT %d OFFSET %d`, limit, filter.Offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
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
func (s *SQLiteStorage) GetLatestRun(ctx context.Context) (*models.RunRecord, error) {
	row := s.db.QueryRowContext(ctx, selectRunColumns+` FROM runs ORDER BY started_at DESC LIMIT 1`)
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
func (s *SQLiteStorage) GetStats() (*StorageStats, error) {
	stats := &StorageStats{}

	err := s.db.QueryRow(`
		SELECT COUNT(1),
		       COALESCE(SUM(CASE WHEN status = 'completed' THEN 1 ELSE 0 END), 0),
		       COALESCE(SUM(CASE WHEN status = 'failed' THEN 1 ELSE 0 END), 0)
		FROM runs`).Scan(&stats.TotalRuns, &stats.CompletedRuns, &stats.FailedRuns)
	if err != nil {
		return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to compute storage stats", err.Error())
	}

	var lastRun sql.NullTime
	if err := s.db.QueryRow(`SELECT MAX(started_at) FROM runs`).Scan(&lastRun); err == nil && lastRun.Valid {
		stats.LastRunAt = &lastRun.Time
	}

	if info, err := os.Stat(s.config.ConnectionString); err == nil {
		stats.DatabaseSize = info.Size()
	}

	return stats, nil
}

// GetHealth returns storage health status
func (s *SQLiteStorage) GetHealth() *HealthStatus {
	if err := s.Ping(); err != nil {
		return &HealthStatus{Healthy: false, Error: err.Error()}
	}
	return &HealthStatus{Healthy: true}
}

// IsHealthy reports whether the storage is reachable
func (s *SQLiteStorage) IsHealthy() bool {
	return s.Ping() == nil
}

const selectRunColumns = `SELECT id, report_date, window_start, window_end, trigger_kind,
	alerts_processed, report_tier, status, error, started_at, finished_at, duration_seconds`

// rowScanner covers both *sql.Row and *sql.Rows
type rowScanner interface {
	Scan(dest ...interface{}) error
}

// scanRun scans one run record from a row
func scanRun(row rowScanner) (*models.RunRecord, error) {
	var run models.RunRecord
	var tier string
	var errText sql.NullString
	var finishedAt sql.NullTime

	err := row.Scan(&run.ID, &run.ReportDate, &run.WindowStart, &run.WindowEnd, &run.Trigger,
		&run.AlertsProcessed, &tier, &run.Status, &errText, &run.StartedAt, &finishedAt, &run.Duration)
	if err != nil {
		return nil, err
	}

	run.ReportTier = models.ReportTier(tier)
	if errText.Valid {
		text := errText.String
		run.Error = &text
	}
	if finishedAt.Valid {
		t := finishedAt.Time
		run.FinishedAt = &t
	}

	return &run, nil
}
