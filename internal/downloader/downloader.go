package downloader

import (
	"context"

	"github.com/artur/tubegrab/internal/progress"
)

// Downloader hands a URL over to a media downloading library
type Downloader interface {
	Name() string
	Download(ctx context.Context, req Request, sink Sink) (*Result, error)
}

// Request describes a single download
type Request struct {
	URL string
	Dir string
}

// Result describes the file produced by a download
type Result struct {
	Title    string
	FilePath string
	Size     int64
}

// Sink receives progress events and log lines while a download runs
type Sink interface {
	Progress(ev progress.Event)
	Log(line string)
}
