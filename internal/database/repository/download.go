package repository

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/artur/tubegrab/internal/database/models"
)

// DownloadRepository handles download history persistence
type DownloadRepository struct {
	db *sql.DB
}

// NewDownloadRepository creates a new DownloadRepository
func NewDownloadRepository(db *sql.DB) *DownloadRepository {
	return &DownloadRepository{db: db}
}

// RecordStart inserts a new download row and returns its id
func (r *DownloadRepository) RecordStart(download *models.Download) (int64, error) {
	query := `
		INSERT INTO downloads
		(video_id, url, folder, engine, source, state, started_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	if download.StartedAt.IsZero() {
		download.StartedAt = time.Now()
	}
	if download.State == "" {
		download.State = models.StateDownloading
	}
	if download.Source == "" {
		download.Source = "web"
	}

	res, err := r.db.Exec(query,
		download.VideoID,
		download.URL,
		download.Folder,
		download.Engine,
		download.Source,
		download.State,
		download.StartedAt,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to record download start: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get download id: %w", err)
	}
	download.ID = id
	return id, nil
}

// RecordFinish stores the outcome of a download
func (r *DownloadRepository) RecordFinish(id int64, state, title, filePath string, size int64, errMsg string) error {
	query := `
		UPDATE downloads
		SET state = ?, title = ?, file_path = ?, file_size_bytes = ?, error = ?, finished_at = ?
		WHERE id = ?
	`

	res, err := r.db.Exec(query, state, title, filePath, size, errMsg, time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to record download finish: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check updated rows: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("download %d not found", id)
	}
	return nil
}

// ListRecent returns the latest downloads, newest first
func (r *DownloadRepository) ListRecent(limit int) ([]models.Download, error) {
	query := `
		SELECT id, video_id, url, folder, engine, source, state, title, file_path,
			file_size_bytes, error, started_at, finished_at
		FROM downloads
		ORDER BY started_at DESC, id DESC
		LIMIT ?
	`

	rows, err := r.db.Query(query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list downloads: %w", err)
	}
	defer rows.Close()

	downloads := make([]models.Download, 0)
	for rows.Next() {
		var d models.Download
		var title, filePath, errMsg sql.NullString
		var size sql.NullInt64
		var finishedAt sql.NullTime

		if err := rows.Scan(
			&d.ID,
			&d.VideoID,
			&d.URL,
			&d.Folder,
			&d.Engine,
			&d.Source,
			&d.State,
			&title,
			&filePath,
			&size,
			&errMsg,
			&d.StartedAt,
			&finishedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan download: %w", err)
		}

		d.Title = title.String
		d.FilePath = filePath.String
		d.FileSizeBytes = size.Int64
		d.Error = errMsg.String
		if finishedAt.Valid {
			t := finishedAt.Time
			d.FinishedAt = &t
		}
		downloads = append(downloads, d)
	}

	return downloads, rows.Err()
}

// GetTotalDownloads returns the number of recorded downloads
func (r *DownloadRepository) GetTotalDownloads() (int64, error) {
	var count int64
	err := r.db.QueryRow("SELECT COUNT(*) FROM downloads").Scan(&count)
	return count, err
}
