package downloader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/kkdai/youtube/v2"

	"github.com/artur/tubegrab/internal/progress"
)

// ErrUnsupportedURL is returned by engines that cannot handle a URL
var ErrUnsupportedURL = errors.New("unsupported URL")

var unsafeFilename = regexp.MustCompile(`[<>:"/\\|?*\x00-\x1f]+`)

// YouTubeDownloader downloads progressive mp4 streams straight from YouTube
// without an external executable.
type YouTubeDownloader struct {
	client youtube.Client
}

func NewYouTubeDownloader() *YouTubeDownloader {
	return &YouTubeDownloader{
		client: youtube.Client{},
	}
}

func (d *YouTubeDownloader) Name() string {
	return "native"
}

func (d *YouTubeDownloader) Download(ctx context.Context, req Request, sink Sink) (*Result, error) {
	if !IsYouTubeURL(req.URL) {
		return nil, fmt.Errorf("native engine only handles YouTube links: %w", ErrUnsupportedURL)
	}

	sink.Log("[youtube] Extracting URL: " + req.URL)
	video, err := d.client.GetVideoContext(ctx, req.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to get video info: %w", err)
	}
	sink.Log(fmt.Sprintf("[youtube] %s: Downloading webpage", video.ID))

	formats := video.Formats.WithAudioChannels()
	if len(formats) == 0 {
		return nil, fmt.Errorf("no formats with audio found")
	}

	format := pickFormat(formats)
	sink.Log(fmt.Sprintf("[info] %s: Downloading 1 format(s): %d (%s)", video.ID, format.ItagNo, format.QualityLabel))

	stream, size, err := d.client.GetStreamContext(ctx, video, format)
	if err != nil {
		return nil, fmt.Errorf("failed to get stream: %w", err)
	}
	defer stream.Close()

	path := filepath.Join(req.Dir, sanitizeFilename(video.Title)+".mp4")
	sink.Log("[download] Destination: " + path)

	file, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create file: %w", err)
	}
	defer file.Close()

	counter := &countingWriter{
		sink:     sink,
		total:    size,
		title:    video.Title,
		interval: 500 * time.Millisecond,
	}
	sink.Progress(progress.Event{Status: progress.EventDownloading, TotalBytes: size, TotalKnown: true, Title: video.Title})

	written, err := io.Copy(io.MultiWriter(file, counter), stream)
	if err != nil {
		file.Close()
		os.Remove(path)
		return nil, fmt.Errorf("failed to download video: %w", err)
	}

	sink.Progress(progress.Event{Status: progress.EventFinished, DownloadedBytes: written, TotalBytes: size, TotalKnown: true})
	sink.Log(fmt.Sprintf("[download] 100%% of %s", humanize.Bytes(uint64(written))))

	return &Result{
		Title:    video.Title,
		FilePath: path,
		Size:     written,
	}, nil
}

// pickFormat prefers the highest quality mp4 stream; formats is non-empty.
func pickFormat(formats youtube.FormatList) *youtube.Format {
	candidates := make([]*youtube.Format, 0, len(formats))
	for i := range formats {
		if strings.Contains(formats[i].MimeType, "video/mp4") {
			candidates = append(candidates, &formats[i])
		}
	}
	if len(candidates) == 0 {
		return &formats[0]
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return parseQualityNum(candidates[i].QualityLabel) > parseQualityNum(candidates[j].QualityLabel)
	})
	return candidates[0]
}

func parseQualityNum(quality string) int {
	var num int
	fmt.Sscanf(quality, "%dp", &num)
	return num
}

func sanitizeFilename(title string) string {
	name := strings.TrimSpace(unsafeFilename.ReplaceAllString(title, "_"))
	name = strings.Trim(name, ". ")
	if name == "" {
		return "video"
	}
	return name
}

// countingWriter reports bytes written to the sink, at most once per interval.
type countingWriter struct {
	sink     Sink
	total    int64
	title    string
	interval time.Duration

	mu       sync.Mutex
	written  int64
	lastSent time.Time
}

func (w *countingWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.written += int64(len(p))
	if time.Since(w.lastSent) >= w.interval {
		w.lastSent = time.Now()
		w.sink.Progress(progress.Event{
			Status:          progress.EventDownloading,
			DownloadedBytes: w.written,
			TotalBytes:      w.total,
			TotalKnown:      true,
			Title:           w.title,
		})
	}
	return len(p), nil
}
