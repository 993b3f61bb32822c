package downloader

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/lrstanley/go-ytdlp"

	"github.com/artur/tubegrab/internal/progress"
)

const (
	DefaultFormat         = "bestvideo+bestaudio/best"
	DefaultOutputTemplate = "%(title)s.%(ext)s"

	progressInterval = 250 * time.Millisecond

	// yt-dlp appends the final path of every finished file here
	filepathTemplate = "after_move:filepath"
)

// Partial files left behind by yt-dlp while a download runs
var skippedExtensions = []string{".part", ".ytdl", ".temp"}

// YtdlpDownloader delegates downloads to the yt-dlp executable
type YtdlpDownloader struct {
	executable string
	format     string
	template   string
}

// NewYtdlpDownloader creates a yt-dlp backed downloader. Empty arguments fall
// back to the defaults.
func NewYtdlpDownloader(executable, format, template string) *YtdlpDownloader {
	if format == "" {
		format = DefaultFormat
	}
	if template == "" {
		template = DefaultOutputTemplate
	}
	return &YtdlpDownloader{
		executable: executable,
		format:     format,
		template:   template,
	}
}

func (d *YtdlpDownloader) Name() string {
	return "yt-dlp"
}

func (d *YtdlpDownloader) Download(ctx context.Context, req Request, sink Sink) (*Result, error) {
	started := time.Now()

	dl := ytdlp.New().
		Format(d.format).
		NoMtime().
		Output(filepath.Join(req.Dir, d.template))
	if d.executable != "" {
		dl = dl.SetExecutable(d.executable)
	}

	printed, err := os.CreateTemp("", "tubegrab-*.path")
	if err != nil {
		return nil, fmt.Errorf("failed to create path file: %w", err)
	}
	printed.Close()
	defer os.Remove(printed.Name())
	dl = dl.PrintToFile(filepathTemplate, printed.Name())

	watcher := newProgressWatcher(sink)
	dl = dl.ProgressFunc(progressInterval, func(update ytdlp.ProgressUpdate) {
		title := ""
		if update.Info != nil && update.Info.Title != nil {
			title = *update.Info.Title
		}
		watcher.observe(progressUpdate{
			Status:          string(update.Status),
			Filename:        update.Filename,
			Title:           title,
			DownloadedBytes: int64(update.DownloadedBytes),
			TotalBytes:      int64(update.TotalBytes),
			FragmentIndex:   int(update.FragmentIndex),
			FragmentCount:   int(update.FragmentCount),
		})
	})

	sink.Log(fmt.Sprintf("[tubegrab] Handing %s to yt-dlp (format %s)", req.URL, d.format))

	res, err := dl.Run(ctx, req.URL)
	if res != nil {
		for _, line := range outputLines(res.Stdout, res.Stderr) {
			sink.Log(line)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("yt-dlp failed: %w", err)
	}

	result := &Result{Title: watcher.title()}
	path, size, ok := printedFile(printed.Name())
	if !ok {
		path, size, ok = completeFile(watcher.filename())
	}
	if !ok {
		path, size, ok = newestFile(req.Dir, started)
	}
	if ok {
		result.FilePath = path
		result.Size = size
	}
	if result.Title == "" && result.FilePath != "" {
		base := filepath.Base(result.FilePath)
		result.Title = strings.TrimSuffix(base, filepath.Ext(base))
	}
	return result, nil
}

// progressUpdate is the subset of the library's progress report we use
type progressUpdate struct {
	Status          string
	Filename        string
	Title           string
	DownloadedBytes int64
	TotalBytes      int64
	FragmentIndex   int
	FragmentCount   int
}

// progressWatcher turns library progress callbacks into tracker events and
// synthesises log lines on transitions.
type progressWatcher struct {
	sink Sink

	mu         sync.Mutex
	lastStatus string
	lastFile   string
	lastTitle  string
}

func newProgressWatcher(sink Sink) *progressWatcher {
	return &progressWatcher{sink: sink}
}

func (w *progressWatcher) observe(u progressUpdate) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if u.Title != "" {
		w.lastTitle = u.Title
	}

	if u.Filename != "" && u.Filename != w.lastFile {
		w.lastFile = u.Filename
		w.sink.Log("[download] Destination: " + u.Filename)
	}

	if u.Status != w.lastStatus {
		switch progress.EventStatus(u.Status) {
		case progress.EventFinished:
			w.sink.Log(fmt.Sprintf("[download] 100%% of %s", humanize.Bytes(uint64(max(u.DownloadedBytes, u.TotalBytes)))))
		case progress.EventPostProcessing:
			w.sink.Log("[post-process] Processing " + w.lastFile)
		case progress.EventError:
			w.sink.Log("[download] yt-dlp reported an error for " + w.lastFile)
		}
		w.lastStatus = u.Status
	}

	w.sink.Progress(eventFromUpdate(u))
}

func (w *progressWatcher) title() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.lastTitle
}

func (w *progressWatcher) filename() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.lastFile
}

func eventFromUpdate(u progressUpdate) progress.Event {
	ev := progress.Event{Title: u.Title}

	switch u.Status {
	case "starting", "downloading":
		ev.Status = progress.EventDownloading
	default:
		ev.Status = progress.EventStatus(u.Status)
		return ev
	}

	switch {
	case u.TotalBytes > 0:
		ev.DownloadedBytes = u.DownloadedBytes
		ev.TotalBytes = u.TotalBytes
		ev.TotalKnown = true
	case u.FragmentCount > 0:
		ev.PercentStr = fmt.Sprintf("%.1f%%", float64(u.FragmentIndex)/float64(u.FragmentCount)*100)
	default:
		// nothing known yet
		ev.TotalKnown = true
	}
	return ev
}

// outputLines keeps yt-dlp's human readable lines ("[youtube] ...",
// "WARNING: ...", "ERROR: ...") and drops progress template noise.
func outputLines(outputs ...string) []string {
	lines := make([]string, 0)
	for _, out := range outputs {
		for _, line := range strings.Split(out, "\n") {
			line = strings.TrimRight(line, "\r ")
			if line == "" {
				continue
			}
			if strings.HasPrefix(line, "[") || strings.HasPrefix(line, "WARNING:") || strings.HasPrefix(line, "ERROR:") {
				lines = append(lines, line)
			}
		}
	}
	return lines
}

// printedFile returns the last complete file listed in a --print-to-file
// output.
func printedFile(name string) (string, int64, bool) {
	data, err := os.ReadFile(name)
	if err != nil {
		return "", 0, false
	}

	lines := strings.Split(string(data), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		if path, size, ok := completeFile(strings.TrimRight(lines[i], "\r ")); ok {
			return path, size, true
		}
	}
	return "", 0, false
}

// completeFile stats path and reports it if it is a finished regular file
func completeFile(path string) (string, int64, bool) {
	if path == "" || isPartial(path) {
		return "", 0, false
	}
	info, err := os.Stat(path)
	if err != nil || !info.Mode().IsRegular() {
		return "", 0, false
	}
	return path, info.Size(), true
}

// newestFile returns the most recently modified complete file in dir written
// after since.
func newestFile(dir string, since time.Time) (string, int64, bool) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", 0, false
	}

	var (
		bestPath string
		bestSize int64
		bestMod  time.Time
	)
	for _, e := range entries {
		if e.IsDir() || isPartial(e.Name()) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if info.ModTime().Before(since.Add(-time.Second)) {
			continue
		}
		if bestPath == "" || info.ModTime().After(bestMod) {
			bestPath = filepath.Join(dir, e.Name())
			bestSize = info.Size()
			bestMod = info.ModTime()
		}
	}
	return bestPath, bestSize, bestPath != ""
}

func isPartial(name string) bool {
	for _, ext := range skippedExtensions {
		if strings.HasSuffix(name, ext) {
			return true
		}
	}
	return false
}
