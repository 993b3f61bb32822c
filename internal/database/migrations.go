package database

import (
	"fmt"

	log "github.com/sirupsen/logrus"
)

// Migrate runs all database migrations
func (db *DB) Migrate() error {
	logger := log.WithField("component", "db")
	logger.Info("Running migrations...")

	migrations := []string{
		// Download history
		`CREATE TABLE IF NOT EXISTS downloads (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			video_id TEXT NOT NULL,
			url TEXT NOT NULL,
			folder TEXT NOT NULL,
			engine TEXT NOT NULL,
			source TEXT NOT NULL DEFAULT 'web',
			state TEXT NOT NULL,
			title TEXT,
			file_path TEXT,
			file_size_bytes INTEGER,
			error TEXT,
			started_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			finished_at DATETIME
		)`,
		`CREATE INDEX IF NOT EXISTS idx_downloads_video_id ON downloads(video_id)`,
		`CREATE INDEX IF NOT EXISTS idx_downloads_state ON downloads(state)`,
		`CREATE INDEX IF NOT EXISTS idx_downloads_started_at ON downloads(started_at)`,
	}

	for i, migration := range migrations {
		if _, err := db.Exec(migration); err != nil {
			return fmt.Errorf("migration %d failed: %w", i, err)
		}
	}

	logger.Info("Migrations completed successfully")
	return nil
}
