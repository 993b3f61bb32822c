package downloader

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"

	"github.com/artur/tubegrab/internal/database/models"
	"github.com/artur/tubegrab/internal/library"
	"github.com/artur/tubegrab/internal/progress"
)

var (
	ErrMissingURL    = errors.New("missing URL")
	ErrAlreadyActive = errors.New("download already in progress")
	ErrShuttingDown  = errors.New("service is shutting down")
	errDownloadPanic = errors.New("downloader crashed")
)

// Recorder persists download history
type Recorder interface {
	RecordStart(download *models.Download) (int64, error)
	RecordFinish(id int64, state, title, filePath string, size int64, errMsg string) error
}

// Notifier announces finished downloads somewhere outside the browser
type Notifier interface {
	Notify(text string) error
}

// chatNotifier is a Notifier that posts into a single chat
type chatNotifier interface {
	NotifyChatID() int64
}

// Submission is one request to download a URL
type Submission struct {
	URL    string
	Folder string
	Source string
	// ReplyChatID is the chat that Done answers in, if any. The notifier
	// stays quiet when it would post into the same chat.
	ReplyChatID int64
	// Done is called from the download goroutine once the download ends
	Done func(Outcome)
}

// Outcome is the final state of a submission
type Outcome struct {
	ID          string
	URL         string
	Folder      string
	Title       string
	FilePath    string
	Size        int64
	ReplyChatID int64
	Err         error
}

// Options configures a Service
type Options struct {
	Engine        Downloader
	Tracker       *progress.Tracker
	Library       *library.Library
	Recorder      Recorder
	Notifier      Notifier
	MaxParallel   int
	DefaultFolder string
}

// Service starts one goroutine per submitted download and keeps the progress
// table up to date.
type Service struct {
	engine        Downloader
	tracker       *progress.Tracker
	library       *library.Library
	recorder      Recorder
	sem           *semaphore.Weighted
	defaultFolder string

	notifierMu sync.RWMutex
	notifier   Notifier

	submitMu sync.Mutex
	closed   bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	logger *log.Entry
}

func NewService(opts Options) *Service {
	tracker := opts.Tracker
	if tracker == nil {
		tracker = progress.NewTracker()
	}
	defaultFolder := opts.DefaultFolder
	if defaultFolder == "" {
		defaultFolder = "default"
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Service{
		engine:        opts.Engine,
		tracker:       tracker,
		library:       opts.Library,
		recorder:      opts.Recorder,
		notifier:      opts.Notifier,
		defaultFolder: defaultFolder,
		ctx:           ctx,
		cancel:        cancel,
		logger:        log.WithField("component", "downloader"),
	}
	if opts.MaxParallel > 0 {
		s.sem = semaphore.NewWeighted(int64(opts.MaxParallel))
	}
	return s
}

// SetNotifier replaces the notifier used for finished downloads
func (s *Service) SetNotifier(n Notifier) {
	s.notifierMu.Lock()
	defer s.notifierMu.Unlock()
	s.notifier = n
}

func (s *Service) Tracker() *progress.Tracker {
	return s.tracker
}

func (s *Service) EngineName() string {
	return s.engine.Name()
}

// Submit validates the submission, initialises its progress entry and starts
// the download in the background. It returns the progress table key.
func (s *Service) Submit(sub Submission) (string, error) {
	rawURL := strings.TrimSpace(sub.URL)
	if rawURL == "" {
		return "", ErrMissingURL
	}

	folder, dir, err := s.library.Resolve(sub.Folder, s.defaultFolder)
	if err != nil {
		return "", err
	}

	id := VideoID(rawURL)
	source := sub.Source
	if source == "" {
		source = "web"
	}

	s.submitMu.Lock()
	if s.closed {
		s.submitMu.Unlock()
		return "", ErrShuttingDown
	}
	if s.tracker.Active(id) {
		s.submitMu.Unlock()
		return "", fmt.Errorf("%s: %w", id, ErrAlreadyActive)
	}
	s.tracker.Start(id)
	s.wg.Add(1)
	s.submitMu.Unlock()

	var recordID int64
	if s.recorder != nil {
		recordID, err = s.recorder.RecordStart(&models.Download{
			VideoID: id,
			URL:     rawURL,
			Folder:  folder,
			Engine:  s.engine.Name(),
			Source:  source,
		})
		if err != nil {
			s.logger.WithError(err).Warn("Failed to record download start")
		}
	}

	s.logger.WithFields(log.Fields{
		"video_id": id,
		"url":      rawURL,
		"folder":   folder,
		"source":   source,
	}).Info("Download submitted")

	outcome := Outcome{ID: id, URL: rawURL, Folder: folder, ReplyChatID: sub.ReplyChatID}
	go s.run(outcome, dir, recordID, sub.Done)

	return id, nil
}

func (s *Service) run(outcome Outcome, dir string, recordID int64, done func(Outcome)) {
	defer s.wg.Done()

	id := outcome.ID
	logger := s.logger.WithField("video_id", id)

	result, err := s.download(id, outcome.URL, dir)
	if result != nil {
		outcome.Title = result.Title
		outcome.FilePath = result.FilePath
		outcome.Size = result.Size
	}
	outcome.Err = err

	if err != nil {
		logger.WithError(err).Warn("Download failed")
		s.tracker.AppendLog(id, "ERROR: "+err.Error())
		s.tracker.Fail(id, err)
	} else {
		logger.WithField("file", outcome.FilePath).Info("Download finished")
		s.tracker.Complete(id)
	}

	if s.library != nil {
		s.library.Invalidate()
	}
	s.recordFinish(recordID, outcome)
	s.notify(outcome)

	if done != nil {
		done(outcome)
	}
}

func (s *Service) download(id, rawURL, dir string) (result *Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.WithField("video_id", id).Errorf("Downloader panic: %v", r)
			result, err = nil, fmt.Errorf("%w: %v", errDownloadPanic, r)
		}
	}()

	if s.sem != nil {
		if err := s.sem.Acquire(s.ctx, 1); err != nil {
			return nil, fmt.Errorf("download cancelled before start: %w", err)
		}
		defer s.sem.Release(1)
	}

	sink := &trackerSink{tracker: s.tracker, id: id}
	return s.engine.Download(s.ctx, Request{URL: rawURL, Dir: dir}, sink)
}

func (s *Service) recordFinish(recordID int64, o Outcome) {
	if s.recorder == nil || recordID == 0 {
		return
	}

	state := models.StateFinished
	errMsg := ""
	if o.Err != nil {
		state = models.StateError
		errMsg = o.Err.Error()
	}
	if err := s.recorder.RecordFinish(recordID, state, o.Title, o.FilePath, o.Size, errMsg); err != nil {
		s.logger.WithError(err).Warn("Failed to record download finish")
	}
}

func (s *Service) notify(o Outcome) {
	s.notifierMu.RLock()
	n := s.notifier
	s.notifierMu.RUnlock()
	if n == nil {
		return
	}
	if cn, ok := n.(chatNotifier); ok && o.ReplyChatID != 0 && cn.NotifyChatID() == o.ReplyChatID {
		return
	}

	if err := n.Notify(FormatOutcome(o)); err != nil {
		s.logger.WithError(err).Warn("Failed to send notification")
	}
}

// FormatOutcome renders a one-line summary of a finished download
func FormatOutcome(o Outcome) string {
	if o.Err != nil {
		return fmt.Sprintf("❌ Download failed: %s\n%v", o.URL, o.Err)
	}
	name := o.Title
	if name == "" {
		name = o.ID
	}
	return fmt.Sprintf("✅ Downloaded: %s (folder %s)", name, o.Folder)
}

// Shutdown cancels running downloads and waits for their goroutines.
func (s *Service) Shutdown(ctx context.Context) error {
	s.submitMu.Lock()
	s.closed = true
	s.submitMu.Unlock()

	s.cancel()

	finished := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(finished)
	}()

	select {
	case <-finished:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// trackerSink forwards downloader output into one progress entry
type trackerSink struct {
	tracker *progress.Tracker
	id      string
}

func (t *trackerSink) Progress(ev progress.Event) {
	t.tracker.Apply(t.id, ev)
}

func (t *trackerSink) Log(line string) {
	t.tracker.AppendLog(t.id, line)
}
