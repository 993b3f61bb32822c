// Package api exposes the download service over HTTP: the HTML pages, the
// submission endpoints and the JSON polling endpoints used by the browser.
package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	log "github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/artur/tubegrab/internal/database/models"
	"github.com/artur/tubegrab/internal/database/repository"
	"github.com/artur/tubegrab/internal/downloader"
	"github.com/artur/tubegrab/internal/library"
)

// History lists past downloads
type History interface {
	ListRecent(limit int) ([]models.Download, error)
	GetTotalDownloads() (int64, error)
}

// Stats aggregates download history
type Stats interface {
	CountByState() (map[string]int64, error)
	GetPopularFolders(limit int) ([]repository.FolderCount, error)
}

// Options configures a Server
type Options struct {
	Service *downloader.Service
	Library *library.Library
	History History
	Stats   Stats
	// RateLimit is the number of submissions per second, 0 disables limiting.
	RateLimit float64
	Burst     int
}

// Server holds the HTTP handlers
type Server struct {
	service *downloader.Service
	library *library.Library
	history History
	stats   Stats
	limiter *rate.Limiter
	pages   *pages
	logger  *log.Entry
}

func NewServer(opts Options) (*Server, error) {
	p, err := loadPages()
	if err != nil {
		return nil, err
	}

	s := &Server{
		service: opts.Service,
		library: opts.Library,
		history: opts.History,
		stats:   opts.Stats,
		pages:   p,
		logger:  log.WithField("component", "http"),
	}
	if opts.RateLimit > 0 {
		burst := opts.Burst
		if burst < 1 {
			burst = 1
		}
		s.limiter = rate.NewLimiter(rate.Limit(opts.RateLimit), burst)
	}
	return s, nil
}

// Routes builds the router
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)

	r.Get("/", s.handleIndex)
	r.Get("/progress", s.handleProgress)
	r.Get("/logs/{video_id}", s.handleLogs)
	r.Get("/videos", s.handleVideos)
	r.Get("/downloads/*", s.handleFile)

	r.Group(func(r chi.Router) {
		r.Use(s.rateLimit)
		r.Post("/download", s.handleDownload)
		r.Get("/api/download", s.handleAPIDownload)
	})

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/history", s.handleHistory)
		r.Get("/stats", s.handleStats)
	})

	return r
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()

		next.ServeHTTP(ww, r)

		entry := s.logger.WithFields(log.Fields{
			"method":     r.Method,
			"path":       r.URL.Path,
			"status":     ww.Status(),
			"bytes":      ww.BytesWritten(),
			"duration":   time.Since(start).String(),
			"request_id": middleware.GetReqID(r.Context()),
		})
		// the browser polls these every second
		if r.URL.Path == "/progress" || strings.HasPrefix(r.URL.Path, "/logs/") {
			entry.Debug("Request served")
			return
		}
		entry.Info("Request served")
	})
}

func (s *Server) rateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.limiter != nil && !s.limiter.Allow() {
			s.logger.WithField("remote", r.RemoteAddr).Warn("Submission rate limited")
			respondJSON(w, http.StatusTooManyRequests, errorResponse{Error: "Too many requests"})
			return
		}
		next.ServeHTTP(w, r)
	})
}
