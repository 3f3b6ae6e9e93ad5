package logging

import (
	"log/slog"
	"net/url"
	"os"
	"strings"
	"time"
)

var (
	// Logger is the global structured logger instance
	Logger *slog.Logger
)

// Init initializes the global structured logger
func Init(level slog.Level) {
	opts := &slog.HandlerOptions{
		Level: level,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			// Format time as ISO8601
			if a.Key == slog.TimeKey {
				if t, ok := a.Value.Any().(time.Time); ok {
					a.Value = slog.StringValue(t.Format(time.RFC3339))
				}
			}
			return a
		},
	}

	handler := slog.NewJSONHandler(os.Stdout, opts)
	Logger = slog.New(handler)
	slog.SetDefault(Logger)
}

// ParseLevel converts a string log level to slog.Level
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// RedactURL removes secrets from URL logs while retaining debugging value.
// It strips userinfo and masks query parameter values other than the video
// id.
func RedactURL(rawURL string) string {
	rawURL = strings.TrimSpace(rawURL)
	if rawURL == "" {
		return ""
	}

	parsed, err := url.Parse(rawURL)
	if err != nil || parsed == nil {
		return rawURL
	}

	parsed.User = nil

	if parsed.RawQuery != "" {
		query := parsed.Query()
		for key := range query {
			if key == "v" {
				continue
			}
			query.Set(key, "***")
		}
		parsed.RawQuery = query.Encode()
	}

	return parsed.String()
}

// LogDownloadStart logs the start of a download job
func LogDownloadStart(downloadID, url string) {
	if Logger == nil {
		return
	}
	Logger.Info("download started",
		"event", "download_start",
		"download_id", downloadID,
		"url", RedactURL(url))
}

// LogDownloadRejected logs a submission refused by URL validation
func LogDownloadRejected(downloadID, url string) {
	if Logger == nil {
		return
	}
	Logger.Warn("download rejected",
		"event", "download_rejected",
		"download_id", downloadID,
		"url", RedactURL(url))
}

// LogDownloadComplete logs successful download completion
func LogDownloadComplete(downloadID, filename string) {
	if Logger == nil {
		return
	}
	Logger.Info("download complete",
		"event", "download_complete",
		"download_id", downloadID,
		"filename", filename)
}

// LogDownloadError logs download failures
func LogDownloadError(downloadID, url string, err error) {
	if Logger == nil {
		return
	}
	Logger.Error("download failed",
		"event", "download_error",
		"download_id", downloadID,
		"url", RedactURL(url),
		"error", err)
}

// LogVideoInfoFetch logs metadata fetching operations
func LogVideoInfoFetch(url string, err error) {
	if Logger == nil {
		return
	}
	if err != nil {
		Logger.Error("video info fetch failed",
			"event", "video_info_error",
			"url", RedactURL(url),
			"error", err)
	} else {
		Logger.Info("video info fetched",
			"event", "video_info",
			"url", RedactURL(url))
	}
}

// LogStoreError logs history persistence failures
func LogStoreError(operation, downloadID string, err error) {
	if Logger == nil {
		return
	}
	Logger.Error("store operation failed",
		"event", "store_error",
		"operation", operation,
		"download_id", downloadID,
		"error", err)
}

// LogHTTPRequest logs HTTP request handling
func LogHTTPRequest(method, path, remoteAddr string, duration time.Duration, status int) {
	if Logger == nil {
		return
	}
	Logger.Info("http request",
		"event", "http_request",
		"method", method,
		"path", path,
		"remote_addr", remoteAddr,
		"duration_ms", duration.Milliseconds(),
		"status", status)
}

// LogServerStart logs server startup
func LogServerStart(addr string, config map[string]any) {
	if Logger == nil {
		return
	}
	attrs := []any{
		"event", "server_start",
		"addr", addr,
	}
	for k, v := range config {
		attrs = append(attrs, k, v)
	}
	Logger.Info("server started", attrs...)
}

// LogServerShutdown logs server shutdown events
func LogServerShutdown(msg string, err error) {
	if Logger == nil {
		return
	}
	if err != nil {
		Logger.Error(msg,
			"event", "server_shutdown_error",
			"error", err)
	} else {
		Logger.Info(msg,
			"event", "server_shutdown")
	}
}
