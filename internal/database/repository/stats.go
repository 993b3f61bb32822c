package repository

import (
	"database/sql"
	"fmt"
)

// FolderCount represents how many downloads landed in a folder
type FolderCount struct {
	Folder string `json:"folder"`
	Count  int64  `json:"count"`
}

// StatsRepository answers aggregate questions about download history
type StatsRepository struct {
	db *sql.DB
}

// NewStatsRepository creates a new StatsRepository
func NewStatsRepository(db *sql.DB) *StatsRepository {
	return &StatsRepository{db: db}
}

// CountByState returns the number of downloads per state
func (r *StatsRepository) CountByState() (map[string]int64, error) {
	rows, err := r.db.Query(`SELECT state, COUNT(*) FROM downloads GROUP BY state`)
	if err != nil {
		return nil, fmt.Errorf("failed to count downloads by state: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int64)
	for rows.Next() {
		var state string
		var count int64
		if err := rows.Scan(&state, &count); err != nil {
			return nil, fmt.Errorf("failed to scan state count: %w", err)
		}
		counts[state] = count
	}

	return counts, rows.Err()
}

// GetPopularFolders returns the folders with most downloads (top N)
func (r *StatsRepository) GetPopularFolders(limit int) ([]FolderCount, error) {
	query := `
		SELECT folder, COUNT(*) as count
		FROM downloads
		GROUP BY folder
		ORDER BY count DESC, folder ASC
		LIMIT ?
	`

	rows, err := r.db.Query(query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get popular folders: %w", err)
	}
	defer rows.Close()

	results := make([]FolderCount, 0)
	for rows.Next() {
		var item FolderCount
		if err := rows.Scan(&item.Folder, &item.Count); err != nil {
			return nil, fmt.Errorf("failed to scan folder count: %w", err)
		}
		results = append(results, item)
	}

	return results, rows.Err()
}
