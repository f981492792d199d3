// File: internal/storage/migrations.go
package storage

// GetSQLiteMigrations returns the SQLite schema migrations in order
func GetSQLiteMigrations() []*Migration {
	return []*Migration{
		{
			Version: 1,
			Name:    "create_runs_table",
			SQL: `
				CREATE TABLE IF NOT EXISTS runs (
					id TEXT PRIMARY KEY,
					report_date TIMESTAMP NOT NULL,
					window_start TIMESTAMP NOT NULL,
					window_end TIMESTAMP NOT NULL,
					trigger_kind TEXT NOT NULL,
					alerts_processed INTEGER NOT NULL DEFAULT 0,
					report_tier TEXT NOT NULL DEFAULT '',
					status TEXT NOT NULL,
					error TEXT,
					started_at TIMESTAMP NOT NULL,
					finished_at TIMESTAMP,
					duration_seconds REAL NOT NULL DEFAULT 0
				);
				CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs(started_at);
				CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status);
			`,
		},
	}
}

// GetPostgresMigrations returns the PostgreSQL schema migrations in order
func GetPostgresMigrations() []*Migration {
	return []*Migration{
		{
			Version: 1,
			Name:    "create_runs_table",
			SQL: `
				CREATE TABLE IF NOT EXISTS runs (
					id TEXT PRIMARY KEY,
					report_date TIMESTAMPTZ NOT NULL,
					window_start TIMESTAMPTZ NOT NULL,
					window_end TIMESTAMPTZ NOT NULL,
					trigger_kind TEXT NOT NULL,
					alerts_processed INTEGER NOT NULL DEFAULT 0,
					report_tier TEXT NOT NULL DEFAULT '',
					status TEXT NOT NULL,
					error TEXT,
					started_at TIMESTAMPTZ NOT NULL,
					finished_at TIMESTAMPTZ,
					duration_seconds DOUBLE PRECISION NOT NULL DEFAULT 0
				);
				CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs(started_at);
				CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status);
			`,
		},
	}
}
