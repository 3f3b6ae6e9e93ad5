package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"ytgrab/internal/download"
)

type fakeRunner struct {
	id        string
	url       string
	quality   string
	audioOnly bool
}

func (f *fakeRunner) Submit(url, quality string, audioOnly bool) string {
	f.url, f.quality, f.audioOnly = url, quality, audioOnly
	return f.id
}

type fakeRegistry map[string]download.Progress

func (f fakeRegistry) Get(id string) download.Progress {
	if p, ok := f[id]; ok {
		return p
	}
	return download.Progress{Status: download.StatusNotFound, Error: "Download not found"}
}

func newTestServer(t *testing.T, runner *fakeRunner, reg fakeRegistry, opts Options) http.Handler {
	t.Helper()
	if runner == nil {
		runner = &fakeRunner{id: "test-id"}
	}
	if reg == nil {
		reg = fakeRegistry{}
	}
	if opts.FetchInfo == nil {
		opts.FetchInfo = func(string) (download.VideoInfo, error) {
			return download.VideoInfo{}, errors.New("not configured")
		}
	}
	return New(runner, reg, t.TempDir(), opts)
}

func postJSON(t *testing.T, h http.Handler, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func getPath(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var m map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &m); err != nil {
		t.Fatalf("invalid JSON response %q: %v", w.Body.String(), err)
	}
	return m
}

func TestHandleDownload_Accepted(t *testing.T) {
	runner := &fakeRunner{id: "abc-123"}
	h := newTestServer(t, runner, nil, Options{})

	w := postJSON(t, h, "/api/download", `{"url":"https://youtu.be/dQw4w9WgXcQ","quality":"480p","audio_only":true}`)

	if w.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", w.Code, w.Body.String())
	}
	if got := decodeBody(t, w)["download_id"]; got != "abc-123" {
		t.Errorf("expected download_id 'abc-123', got %v", got)
	}
	if runner.url != "https://youtu.be/dQw4w9WgXcQ" || runner.quality != "480p" || !runner.audioOnly {
		t.Errorf("unexpected submission: %+v", runner)
	}
}

func TestHandleDownload_DefaultQuality(t *testing.T) {
	runner := &fakeRunner{id: "abc"}
	h := newTestServer(t, runner, nil, Options{})

	postJSON(t, h, "/api/download", `{"url":"https://youtu.be/dQw4w9WgXcQ"}`)

	if runner.quality != "720p" {
		t.Errorf("expected default quality 720p, got %q", runner.quality)
	}
}

func TestHandleDownload_MissingURL(t *testing.T) {
	h := newTestServer(t, nil, nil, Options{})

	for _, body := range []string{`{}`, `{"url":""}`, `{"url":"   "}`, `not json`} {
		w := postJSON(t, h, "/api/download", body)
		if w.Code != http.StatusBadRequest {
			t.Errorf("body %q: expected 400, got %d", body, w.Code)
			continue
		}
		if got := decodeBody(t, w)["error"]; got != "URL is required" {
			t.Errorf("body %q: expected 'URL is required', got %v", body, got)
		}
	}
}

func TestHandleProgress_Known(t *testing.T) {
	reg := fakeRegistry{"abc": {
		Status:   download.StatusDownloading,
		Percent:  42.5,
		Speed:    "1.5 MB/s",
		Filename: "clip.mp4",
	}}
	h := newTestServer(t, nil, reg, Options{})

	w := getPath(t, h, "/api/progress/abc")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	m := decodeBody(t, w)
	if m["status"] != "downloading" || m["percent"] != 42.5 {
		t.Errorf("unexpected payload: %v", m)
	}
	if _, present := m["error"]; present {
		t.Errorf("empty error must be omitted, got %v", m)
	}
}

// Unknown ids answer 200 with the sentinel body so clients poll one way.
func TestHandleProgress_Unknown(t *testing.T) {
	h := newTestServer(t, nil, fakeRegistry{}, Options{})

	w := getPath(t, h, "/api/progress/missing")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	m := decodeBody(t, w)
	if m["status"] != "not_found" {
		t.Errorf("expected status not_found, got %v", m["status"])
	}
	if m["error"] != "Download not found" {
		t.Errorf("expected sentinel error, got %v", m["error"])
	}
}

func TestHandleDownloads_ListsFiles(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "clip.mp4"), make([]byte, 2*1024*1024), 0o644); err != nil {
		t.Fatal(err)
	}
	h := New(&fakeRunner{id: "x"}, fakeRegistry{}, dir, Options{
		FetchInfo: func(string) (download.VideoInfo, error) { return download.VideoInfo{}, nil },
	})

	w := getPath(t, h, "/api/downloads")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	files, ok := decodeBody(t, w)["files"].([]any)
	if !ok || len(files) != 1 {
		t.Fatalf("expected 1 file, got %v", w.Body.String())
	}
	f := files[0].(map[string]any)
	if f["name"] != "clip.mp4" || f["size"] != "2.0 MB" {
		t.Errorf("unexpected file entry: %v", f)
	}
}

func TestHandleVideoInfo_Success(t *testing.T) {
	h := newTestServer(t, nil, nil, Options{
		FetchInfo: func(url string) (download.VideoInfo, error) {
			return download.VideoInfo{Title: "My Video", Duration: 125, Uploader: "someone", ViewCount: 42}, nil
		},
	})

	w := postJSON(t, h, "/api/video-info", `{"url":"https://www.youtube.com/watch?v=dQw4w9WgXcQ"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	m := decodeBody(t, w)
	if m["title"] != "My Video" {
		t.Errorf("expected title, got %v", m)
	}
	if m["duration_formatted"] != "2:05" {
		t.Errorf("expected duration_formatted '2:05', got %v", m["duration_formatted"])
	}
}

func TestHandleVideoInfo_Errors(t *testing.T) {
	h := newTestServer(t, nil, nil, Options{
		FetchInfo: func(string) (download.VideoInfo, error) {
			return download.VideoInfo{}, errors.New("network down")
		},
	})

	cases := []struct {
		body string
		want string
	}{
		{`{}`, "URL is required"},
		{`{"url":"https://vimeo.com/123"}`, "Invalid YouTube URL"},
		{`{"url":"https://youtu.be/dQw4w9WgXcQ"}`, "Could not fetch video information"},
	}
	for _, c := range cases {
		w := postJSON(t, h, "/api/video-info", c.body)
		if w.Code != http.StatusBadRequest {
			t.Errorf("body %q: expected 400, got %d", c.body, w.Code)
			continue
		}
		if got := decodeBody(t, w)["error"]; got != c.want {
			t.Errorf("body %q: expected error %q, got %v", c.body, c.want, got)
		}
	}
}

func TestHealthz(t *testing.T) {
	h := newTestServer(t, nil, nil, Options{})

	w := getPath(t, h, "/healthz")
	if w.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", w.Code)
	}
	if w.Body.String() != "ok" {
		t.Errorf("expected 'ok', got %q", w.Body.String())
	}
}

func TestRateLimit_RejectsOverBudget(t *testing.T) {
	rl := newIPRateLimiter(2, time.Minute)
	if !rl.Allow("1.2.3.4") || !rl.Allow("1.2.3.4") {
		t.Fatal("expected first two requests allowed")
	}
	if rl.Allow("1.2.3.4") {
		t.Error("expected third request rejected")
	}
	// Other clients keep their own budget.
	if !rl.Allow("5.6.7.8") {
		t.Error("expected separate bucket per IP")
	}
}

func TestRateLimit_Middleware(t *testing.T) {
	rl := newIPRateLimiter(1, time.Minute)
	var hits int
	h := rateLimit(rl)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits++
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "9.9.9.9:1234"

	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("expected first request through, got %d", w.Code)
	}

	w = httptest.NewRecorder()
	h.ServeHTTP(w, req)
	if w.Code != http.StatusTooManyRequests {
		t.Errorf("expected 429, got %d", w.Code)
	}
	if hits != 1 {
		t.Errorf("expected handler hit once, got %d", hits)
	}
}
