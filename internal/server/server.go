package server

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"ytgrab/internal/download"
	"ytgrab/internal/logging"
	"ytgrab/internal/store"
)

// submitter launches downloads; the registry half serves polling.
// Narrow interfaces keep handlers testable without a real engine.
type submitter interface {
	Submit(url, quality string, audioOnly bool) string
}

type progressReader interface {
	Get(id string) download.Progress
}

// Options configures optional server features.
type Options struct {
	// Store enables the /api/history endpoint when non-nil.
	Store *store.Store
	// Hub enables the /ws/progress endpoint when non-nil.
	Hub *Hub
	// FetchInfo overrides the metadata probe; defaults to yt-dlp -j.
	FetchInfo func(url string) (download.VideoInfo, error)
	// RatePerMinute caps requests per client IP; default 60.
	RatePerMinute int
}

// Server wires the HTTP JSON API to the download core.
type Server struct {
	runner    submitter
	reg       progressReader
	outDir    string
	store     *store.Store
	hub       *Hub
	fetchInfo func(url string) (download.VideoInfo, error)
}

// New returns an http.Handler with routes and middleware wired.
func New(runner submitter, reg progressReader, outDir string, opts Options) http.Handler {
	s := &Server{
		runner:    runner,
		reg:       reg,
		outDir:    outDir,
		store:     opts.Store,
		hub:       opts.Hub,
		fetchInfo: opts.FetchInfo,
	}
	if s.fetchInfo == nil {
		s.fetchInfo = download.FetchVideoInfo
	}
	rate := opts.RatePerMinute
	if rate <= 0 {
		rate = 60
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger)
	r.Use(rateLimit(newIPRateLimiter(rate, time.Minute)))

	r.Post("/api/download", s.handleDownload)
	r.Get("/api/progress/{downloadID}", s.handleProgress)
	r.Get("/api/downloads", s.handleDownloads)
	r.Post("/api/video-info", s.handleVideoInfo)
	if s.store != nil {
		r.Get("/api/history", s.handleHistory)
	}
	if s.hub != nil {
		r.Get("/ws/progress", s.hub.ServeWS)
	}
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	return r
}

// handleDownload accepts a submission and returns its id immediately; the
// transfer runs in the background and is observed via /api/progress.
func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	var req struct {
		URL       string `json:"url"`
		Quality   string `json:"quality"`
		AudioOnly bool   `json:"audio_only"`
	}
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "URL is required")
		return
	}
	req.URL = strings.TrimSpace(req.URL)
	if req.URL == "" {
		respondError(w, http.StatusBadRequest, "URL is required")
		return
	}
	if req.Quality == "" {
		req.Quality = "720p"
	}

	id := s.runner.Submit(req.URL, req.Quality, req.AudioOnly)
	respondJSON(w, http.StatusAccepted, map[string]string{"download_id": id})
}

// handleProgress reports the job state. Unknown ids return the not-found
// sentinel with HTTP 200 so pollers have a single success path.
func (s *Server) handleProgress(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "downloadID")
	respondJSON(w, http.StatusOK, s.reg.Get(id))
}

func (s *Server) handleDownloads(w http.ResponseWriter, _ *http.Request) {
	files, err := download.ListFiles(s.outDir)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "could not list downloads")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"files": files})
}

func (s *Server) handleVideoInfo(w http.ResponseWriter, r *http.Request) {
	var req struct {
		URL string `json:"url"`
	}
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "URL is required")
		return
	}
	req.URL = strings.TrimSpace(req.URL)
	if req.URL == "" {
		respondError(w, http.StatusBadRequest, "URL is required")
		return
	}
	if !download.IsValidYouTubeURL(req.URL) {
		respondError(w, http.StatusBadRequest, "Invalid YouTube URL")
		return
	}

	info, err := s.fetchInfo(req.URL)
	logging.LogVideoInfoFetch(req.URL, err)
	if err != nil {
		respondError(w, http.StatusBadRequest, "Could not fetch video information")
		return
	}
	respondJSON(w, http.StatusOK, struct {
		download.VideoInfo
		DurationFormatted string `json:"duration_formatted"`
	}{info, download.FormatDuration(info.Duration)})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := store.ListFilter{
		Status: q.Get("status"),
		Sort:   q.Get("sort"),
		Order:  q.Get("order"),
	}
	records, err := s.store.ListDownloads(r.Context(), f)
	if err != nil {
		logging.LogStoreError("list", "", err)
		respondError(w, http.StatusInternalServerError, "could not list history")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"downloads": records})
}

// respondJSON writes a JSON response with the given status code and payload.
func respondJSON(w http.ResponseWriter, code int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(payload)
}

// respondError writes a standardized JSON error response.
func respondError(w http.ResponseWriter, code int, message string) {
	respondJSON(w, code, map[string]string{"error": message})
}

// requestLogger emits one structured log line per request.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		logging.LogHTTPRequest(r.Method, r.URL.Path, r.RemoteAddr, time.Since(start), ww.Status())
	})
}
