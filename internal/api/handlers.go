package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"os"
	"strconv"

	"github.com/go-chi/chi/v5"
	log "github.com/sirupsen/logrus"

	"github.com/artur/tubegrab/internal/downloader"
	"github.com/artur/tubegrab/internal/library"
)

const (
	defaultHistoryLimit = 20
	maxHistoryLimit     = 200
	popularFolderLimit  = 5
)

type errorResponse struct {
	Error string `json:"error"`
}

type startResponse struct {
	Message string `json:"message"`
	VideoID string `json:"video_id"`
}

type logsResponse struct {
	Logs string `json:"logs"`
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	folders, err := s.library.Folders()
	if err != nil {
		s.logger.WithError(err).Error("Failed to list folders")
		http.Error(w, "Failed to list folders", http.StatusInternalServerError)
		return
	}
	s.pages.render(w, "index.html", indexData{Folders: folders})
}

func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		respondJSON(w, http.StatusBadRequest, errorResponse{Error: "Invalid form"})
		return
	}
	s.submit(w, downloader.Submission{
		URL:    r.PostFormValue("url"),
		Folder: r.PostFormValue("path"),
		Source: "web",
	})
}

func (s *Server) handleAPIDownload(w http.ResponseWriter, r *http.Request) {
	s.submit(w, downloader.Submission{
		URL:    r.URL.Query().Get("url"),
		Source: "api",
	})
}

func (s *Server) submit(w http.ResponseWriter, sub downloader.Submission) {
	id, err := s.service.Submit(sub)
	if err != nil {
		status, msg := submitError(err)
		s.logger.WithError(err).WithField("url", sub.URL).Warn("Download rejected")
		respondJSON(w, status, errorResponse{Error: msg})
		return
	}
	respondJSON(w, http.StatusOK, startResponse{Message: "Download started!", VideoID: id})
}

func submitError(err error) (int, string) {
	switch {
	case errors.Is(err, downloader.ErrMissingURL):
		return http.StatusBadRequest, "Missing URL"
	case errors.Is(err, library.ErrInvalidPath):
		return http.StatusBadRequest, "Invalid folder"
	case errors.Is(err, downloader.ErrAlreadyActive):
		return http.StatusConflict, "Download already in progress"
	case errors.Is(err, downloader.ErrShuttingDown):
		return http.StatusServiceUnavailable, "Server is shutting down"
	default:
		return http.StatusInternalServerError, "Failed to start download"
	}
}

func (s *Server) handleProgress(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, s.service.Tracker().Snapshot())
}

func (s *Server) handleLogs(w http.ResponseWriter, r *http.Request) {
	logs := s.service.Tracker().Logs(chi.URLParam(r, "video_id"))
	if logs == "" {
		logs = "No logs."
	}
	respondJSON(w, http.StatusOK, logsResponse{Logs: logs})
}

func (s *Server) handleVideos(w http.ResponseWriter, r *http.Request) {
	tree, err := s.library.Tree()
	if err != nil {
		s.logger.WithError(err).Error("Failed to read download folder")
		http.Error(w, "Failed to read download folder", http.StatusInternalServerError)
		return
	}
	s.pages.render(w, "videos.html", videosData{Nodes: tree})
}

func (s *Server) handleFile(w http.ResponseWriter, r *http.Request) {
	rel := chi.URLParam(r, "*")
	// chi routes on RawPath when it is set, so the param is still escaped
	if r.URL.RawPath != "" {
		unescaped, err := url.PathUnescape(rel)
		if err != nil {
			http.NotFound(w, r)
			return
		}
		rel = unescaped
	}

	path, err := s.library.File(rel)
	if err != nil {
		if !errors.Is(err, library.ErrInvalidPath) && !os.IsNotExist(err) {
			s.logger.WithError(err).Warn("Failed to open file")
		}
		http.NotFound(w, r)
		return
	}
	http.ServeFile(w, r, path)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"engine": s.service.EngineName(),
		"active": len(s.service.Tracker().ActiveIDs()),
	})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		respondJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "History is disabled"})
		return
	}

	limit := defaultHistoryLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			respondJSON(w, http.StatusBadRequest, errorResponse{Error: "Invalid limit"})
			return
		}
		limit = min(n, maxHistoryLimit)
	}

	downloads, err := s.history.ListRecent(limit)
	if err != nil {
		s.logger.WithError(err).Error("Failed to list history")
		respondJSON(w, http.StatusInternalServerError, errorResponse{Error: "Failed to list history"})
		return
	}
	respondJSON(w, http.StatusOK, downloads)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	if s.history == nil || s.stats == nil {
		respondJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "History is disabled"})
		return
	}

	total, err := s.history.GetTotalDownloads()
	if err != nil {
		s.statsFailed(w, err)
		return
	}
	byState, err := s.stats.CountByState()
	if err != nil {
		s.statsFailed(w, err)
		return
	}
	folders, err := s.stats.GetPopularFolders(popularFolderLimit)
	if err != nil {
		s.statsFailed(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"total":           total,
		"by_state":        byState,
		"popular_folders": folders,
	})
}

func (s *Server) statsFailed(w http.ResponseWriter, err error) {
	s.logger.WithError(err).Error("Failed to compute stats")
	respondJSON(w, http.StatusInternalServerError, errorResponse{Error: "Failed to compute stats"})
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.WithError(err).WithField("component", "http").Warn("Failed to write response")
	}
}
