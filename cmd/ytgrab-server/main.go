package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"ytgrab/internal/config"
	"ytgrab/internal/download"
	"ytgrab/internal/logging"
	"ytgrab/internal/server"
	"ytgrab/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	// Flags override the config file and environment.
	flag.StringVar(&cfg.Host, "host", cfg.Host, "Host address to bind")
	flag.IntVar(&cfg.Port, "port", cfg.Port, "Server port")
	flag.StringVar(&cfg.DownloadDir, "download-dir", cfg.DownloadDir, "Directory for downloaded videos")
	flag.StringVar(&cfg.Database.Path, "db", cfg.Database.Path, "Path to SQLite history database (default: OS cache dir)")
	flag.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "Log level (debug|info|warn|error)")
	flag.Parse()

	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid config: %v", err)
	}
	if err := cfg.ResolveDownloadDir(); err != nil {
		log.Fatalf("resolve download dir: %v", err)
	}

	logging.Init(logging.ParseLevel(cfg.LogLevel))

	if err := os.MkdirAll(cfg.AbsDownloadDir, 0o755); err != nil {
		log.Fatalf("create download dir: %v", err)
	}

	// Check yt-dlp presence early.
	if err := download.CheckYTDLP(); err != nil {
		log.Fatalf("yt-dlp not found: %v", err)
	}

	// Open history database.
	dbPath := cfg.Database.Path
	if dbPath == "" {
		dbPath = config.DefaultDBPath()
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		log.Fatalf("create db dir: %v", err)
	}
	st, err := store.Open(dbPath)
	if err != nil {
		log.Fatalf("open db: %v", err)
	}

	reg := download.NewRegistry()
	runner := download.NewRunner(reg, download.YTDLP{}, cfg.AbsDownloadDir)

	hub := server.NewHub()
	go hub.Run()

	hooks := download.MultiHooks{
		&storeHooks{st: st},
		&hubHooks{hub: hub},
	}
	reg.SetHooks(hooks)
	runner.SetHooks(hooks)

	handler := server.New(runner, reg, cfg.AbsDownloadDir, server.Options{
		Store:         st,
		Hub:           hub,
		RatePerMinute: cfg.RatePerMinute,
	})

	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           handler,
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      0, // progress polling must not be cut short
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		logging.LogServerStart(cfg.Addr(), cfg.Summary())
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("server error: %v", err)
		}
	}()

	// Graceful shutdown. In-flight downloads are not cancelled; they are
	// abandoned with the process.
	shutdownCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	<-shutdownCtx.Done()
	logging.LogServerShutdown("shutdown signal received; draining", nil)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logging.LogServerShutdown("http shutdown", err)
	}
	_ = st.Close()
	logging.LogServerShutdown("shutdown complete", nil)
}

// storeHooks persists job lifecycle updates into download history.
type storeHooks struct{ st *store.Store }

func (h *storeHooks) OnSubmit(id, url, quality string, audioOnly bool) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := h.st.CreateDownload(ctx, id, url, quality, audioOnly); err != nil {
		logging.LogStoreError("create", id, err)
	}
}

func (h *storeHooks) OnUpdate(id string, p download.Progress) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	err := h.st.UpdateProgress(ctx, id, string(p.Status), p.Percent, p.Filename, p.Error)
	if err != nil && !errors.Is(err, store.ErrNotFound) && !isExpectedError(err) {
		logging.LogStoreError("update", id, err)
	}
}

// isExpectedError filters errors that occur naturally during shutdown.
func isExpectedError(err error) bool {
	if err == nil {
		return false
	}
	s := err.Error()
	return s == "sql: database is closed" ||
		s == "context deadline exceeded" ||
		s == "context canceled"
}

// hubHooks pushes progress snapshots to websocket subscribers.
type hubHooks struct{ hub *server.Hub }

func (h *hubHooks) OnSubmit(string, string, string, bool) {}

func (h *hubHooks) OnUpdate(id string, p download.Progress) {
	msg, err := json.Marshal(struct {
		DownloadID string `json:"download_id"`
		download.Progress
	}{id, p})
	if err != nil {
		return
	}
	h.hub.Broadcast(msg)
}
