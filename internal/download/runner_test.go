package download

import (
	"context"
	"errors"
	"testing"
	"time"
)

// fakeEngine drives the sink with scripted events, then returns err.
type fakeEngine struct {
	events  []Event
	err     error
	started chan struct{}
	release chan struct{}
}

func (f *fakeEngine) Download(_ context.Context, _ Request, sink Sink) error {
	if f.started != nil {
		close(f.started)
	}
	if f.release != nil {
		<-f.release
	}
	for _, ev := range f.events {
		sink.Handle(ev)
	}
	return f.err
}

const testOutDir = "/tmp/ytgrab-test"

func newTestRunner(reg *Registry, eng Engine) *Runner {
	r := NewRunner(reg, eng, testOutDir)
	r.fetchInfo = func(string) (VideoInfo, error) { return VideoInfo{Title: "t"}, nil }
	return r
}

const validURL = "https://www.youtube.com/watch?v=dQw4w9WgXcQ"

func waitForStatus(t *testing.T, reg *Registry, id string, want Status) Progress {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		p := reg.Get(id)
		if p.Status == want {
			return p
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for status %s; last: %+v", want, reg.Get(id))
	return Progress{}
}

func TestRunner_SubmitInvalidURL(t *testing.T) {
	reg := NewRegistry()
	r := newTestRunner(reg, &fakeEngine{})

	id := r.Submit("https://vimeo.com/12345", "720p", false)

	p := reg.Get(id)
	if p.Status != StatusStarting {
		t.Errorf("expected status frozen at starting, got %s", p.Status)
	}
	if p.Error != "Invalid YouTube URL" {
		t.Errorf("expected invalid URL error, got %q", p.Error)
	}
}

func TestRunner_SubmitReturnsImmediately(t *testing.T) {
	reg := NewRegistry()
	eng := &fakeEngine{
		started: make(chan struct{}),
		release: make(chan struct{}),
		events:  []Event{{Status: "finished", Filename: "v.mp4"}},
	}
	r := newTestRunner(reg, eng)

	done := make(chan string, 1)
	go func() { done <- r.Submit(validURL, "720p", false) }()

	var id string
	select {
	case id = <-done:
	case <-time.After(time.Second):
		t.Fatal("Submit blocked on the transfer")
	}

	// The job is registered before the engine finishes.
	if p := reg.Get(id); p.Status == StatusNotFound {
		t.Fatal("expected job registered at submission")
	}
	<-eng.started
	close(eng.release)
	waitForStatus(t, reg, id, StatusFinished)
}

func TestRunner_SuccessfulJobFinishes(t *testing.T) {
	reg := NewRegistry()
	eng := &fakeEngine{events: []Event{
		{Status: "downloading", DownloadedBytes: 50, TotalBytes: 100, Filename: "v.part"},
		{Status: "downloading", DownloadedBytes: 100, TotalBytes: 100, Filename: "v.part"},
		{Status: "finished", Filename: "/out/v.mp4"},
	}}
	r := newTestRunner(reg, eng)

	id := r.Submit(validURL, "720p", false)
	p := waitForStatus(t, reg, id, StatusFinished)
	if p.Percent != 100 {
		t.Errorf("expected percent 100, got %f", p.Percent)
	}
	if p.Filename != "v.mp4" {
		t.Errorf("expected filename 'v.mp4', got %q", p.Filename)
	}
}

func TestRunner_EngineFailureRecorded(t *testing.T) {
	reg := NewRegistry()
	eng := &fakeEngine{err: errors.New("yt-dlp: exit status 1: HTTP Error 403")}
	r := newTestRunner(reg, eng)

	id := r.Submit(validURL, "720p", false)
	p := waitForStatus(t, reg, id, StatusError)
	if p.Error != "yt-dlp: exit status 1: HTTP Error 403" {
		t.Errorf("expected engine error passed through, got %q", p.Error)
	}
}

// An error reported through the tracker wins over the task-level catch.
func TestRunner_TrackerErrorNotOverwritten(t *testing.T) {
	reg := NewRegistry()
	eng := &fakeEngine{
		err:     errors.New("generic failure"),
		started: make(chan struct{}),
		release: make(chan struct{}),
	}
	r := newTestRunner(reg, eng)

	id := r.Submit(validURL, "720p", false)
	<-eng.started
	reg.Fail(id, "specific format error")
	close(eng.release)

	waitForStatus(t, reg, id, StatusError)
	// Give the runner's failure path time to run after the engine returns.
	time.Sleep(20 * time.Millisecond)
	if got := reg.Get(id).Error; got != "specific format error" {
		t.Errorf("expected first error to win, got %q", got)
	}
}

func TestRunner_MetadataFetchFailure(t *testing.T) {
	reg := NewRegistry()
	r := NewRunner(reg, &fakeEngine{}, testOutDir)
	r.fetchInfo = func(string) (VideoInfo, error) { return VideoInfo{}, errors.New("unreachable") }

	id := r.Submit(validURL, "720p", false)
	p := waitForStatus(t, reg, id, StatusError)
	if p.Error != "Could not fetch video information" {
		t.Errorf("expected metadata fetch error, got %q", p.Error)
	}
}

type submitRecorder struct {
	id, url, quality string
	audioOnly        bool
}

func (s *submitRecorder) OnSubmit(id, url, quality string, audioOnly bool) {
	s.id, s.url, s.quality, s.audioOnly = id, url, quality, audioOnly
}
func (s *submitRecorder) OnUpdate(string, Progress) {}

func TestRunner_HooksObserveSubmission(t *testing.T) {
	reg := NewRegistry()
	eng := &fakeEngine{events: []Event{{Status: "finished", Filename: "v.mp3"}}}
	r := newTestRunner(reg, eng)
	rec := &submitRecorder{}
	r.SetHooks(rec)

	id := r.Submit(validURL, "480p", true)
	waitForStatus(t, reg, id, StatusFinished)

	if rec.id != id {
		t.Errorf("expected hook to see id %s, got %s", id, rec.id)
	}
	if rec.quality != "480p" || !rec.audioOnly {
		t.Errorf("expected hook to see quality/audio flags, got %q/%v", rec.quality, rec.audioOnly)
	}
}
