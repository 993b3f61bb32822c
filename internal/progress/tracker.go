package progress

import (
	"math"
	"regexp"
	"strconv"
	"strings"
	"sync"
)

const (
	StatusStarting     = "Starting..."
	StatusDownloading  = "Downloading..."
	StatusInitializing = "Initializing download..."
	StatusFinished     = "Download finished!"
	StatusBadPercent   = "Percent conversion error"
	StatusErrorPrefix  = "Error: "
)

// State is the coarse lifecycle of an entry.
type State string

const (
	StateQueued      State = "queued"
	StateDownloading State = "downloading"
	StateFinished    State = "finished"
	StateError       State = "error"
)

// IsActive returns true while the download has not reached a final state
func (s State) IsActive() bool {
	return s == StateQueued || s == StateDownloading
}

// Entry is one row of the progress table as served to the browser.
type Entry struct {
	Progress float64 `json:"progress"`
	Status   string  `json:"status"`
	Logs     string  `json:"logs"`
	State    State   `json:"state"`
	Title    string  `json:"title,omitempty"`
}

// EventStatus mirrors the status values the download library reports.
type EventStatus string

const (
	EventDownloading    EventStatus = "downloading"
	EventFinished       EventStatus = "finished"
	EventPostProcessing EventStatus = "post_processing"
	EventError          EventStatus = "error"
)

// Event is a single progress report from a downloader.
type Event struct {
	Status          EventStatus
	PercentStr      string // e.g. " 42.3%", may carry ANSI colour codes
	DownloadedBytes int64
	TotalBytes      int64 // 0 when unknown
	TotalKnown      bool
	Title           string
}

var ansiEscape = regexp.MustCompile(`\x1B(?:[@-Z\\-_]|\[[0-?]*[ -/]*[@-~])`)

// Tracker is the process-wide progress table keyed by video id.
type Tracker struct {
	mu      sync.RWMutex
	entries map[string]*Entry
}

// NewTracker creates an empty progress table
func NewTracker() *Tracker {
	return &Tracker{
		entries: make(map[string]*Entry),
	}
}

// Start (re)initialises the entry for id.
func (t *Tracker) Start(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.entries[id] = &Entry{
		Progress: 0,
		Status:   StatusStarting,
		State:    StateQueued,
	}
}

// Apply folds a downloader event into the entry for id.
func (t *Tracker) Apply(id string, ev Event) {
	t.mu.Lock()
	defer t.mu.Unlock()

	e := t.entryLocked(id)
	if ev.Title != "" && e.Title == "" {
		e.Title = ev.Title
	}

	switch ev.Status {
	case EventDownloading:
		e.State = StateDownloading
		if ev.PercentStr != "" {
			percent, err := ParsePercent(ev.PercentStr)
			if err != nil {
				e.Progress = 0
				e.Status = StatusBadPercent
				return
			}
			e.Progress = percent
			e.Status = StatusDownloading
			return
		}

		total := ev.TotalBytes
		if !ev.TotalKnown {
			total = 1
		}
		if total > 0 {
			e.Progress = round2(float64(ev.DownloadedBytes) / float64(total) * 100)
			e.Status = StatusDownloading
		} else {
			e.Progress = 0
			e.Status = StatusInitializing
		}
	case EventFinished:
		e.Progress = 100
		e.Status = StatusFinished
	}
}

// AppendLog adds one line to the entry's log buffer.
func (t *Tracker) AppendLog(id, line string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	e := t.entryLocked(id)
	e.Logs += line + "\n"
}

// Complete marks the download as done.
func (t *Tracker) Complete(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	e := t.entryLocked(id)
	e.Progress = 100
	e.Status = StatusFinished
	e.State = StateFinished
}

// Fail marks the download as failed with err.
func (t *Tracker) Fail(id string, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	e := t.entryLocked(id)
	e.Progress = 0
	e.Status = StatusErrorPrefix + err.Error()
	e.State = StateError
}

// Get returns a copy of one entry.
func (t *Tracker) Get(id string) (Entry, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	e, ok := t.entries[id]
	if !ok {
		return Entry{}, false
	}
	return *e, true
}

// Logs returns the accumulated logs for id, empty when unknown.
func (t *Tracker) Logs(id string) string {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if e, ok := t.entries[id]; ok {
		return e.Logs
	}
	return ""
}

// Active reports whether id is queued or downloading.
func (t *Tracker) Active(id string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()

	e, ok := t.entries[id]
	return ok && e.State.IsActive()
}

// ActiveIDs lists ids that are still queued or downloading.
func (t *Tracker) ActiveIDs() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()

	ids := make([]string, 0)
	for id, e := range t.entries {
		if e.State.IsActive() {
			ids = append(ids, id)
		}
	}
	return ids
}

// Snapshot copies the whole table.
func (t *Tracker) Snapshot() map[string]Entry {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make(map[string]Entry, len(t.entries))
	for id, e := range t.entries {
		out[id] = *e
	}
	return out
}

func (t *Tracker) entryLocked(id string) *Entry {
	e, ok := t.entries[id]
	if !ok {
		e = &Entry{}
		t.entries[id] = e
	}
	return e
}

// ParsePercent turns a library percent string such as "\x1b[0;94m 42.3%\x1b[0m"
// into 42.3.
func ParsePercent(s string) (float64, error) {
	s = ansiEscape.ReplaceAllString(strings.TrimSpace(s), "")
	s = strings.TrimSpace(strings.ReplaceAll(s, "%", ""))
	return strconv.ParseFloat(s, 64)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
