package models

import "time"

// Download states stored in the history table
const (
	StateDownloading = "downloading"
	StateFinished    = "finished"
	StateError       = "error"
)

// Download represents one download attempt
type Download struct {
	ID            int64      `json:"id"`
	VideoID       string     `json:"video_id"`
	URL           string     `json:"url"`
	Folder        string     `json:"folder"`
	Engine        string     `json:"engine"`
	Source        string     `json:"source"`
	State         string     `json:"state"`
	Title         string     `json:"title,omitempty"`
	FilePath      string     `json:"file_path,omitempty"`
	FileSizeBytes int64      `json:"file_size_bytes,omitempty"`
	Error         string     `json:"error,omitempty"`
	StartedAt     time.Time  `json:"started_at"`
	FinishedAt    *time.Time `json:"finished_at,omitempty"`
}
