package download

import (
	"context"

	"github.com/google/uuid"

	"ytgrab/internal/logging"
)

// Runner accepts download submissions and executes them, one goroutine per
// job. It is the only writer into the registry besides each job's own
// progress tracker.
type Runner struct {
	reg    *Registry
	engine Engine
	outDir string
	hooks  Hooks

	// fetchInfo is swappable for tests; defaults to the yt-dlp -j probe.
	fetchInfo func(url string) (VideoInfo, error)
}

// NewRunner creates a Runner writing progress into reg and artifacts into
// outDir.
func NewRunner(reg *Registry, engine Engine, outDir string) *Runner {
	return &Runner{
		reg:       reg,
		engine:    engine,
		outDir:    outDir,
		fetchInfo: FetchVideoInfo,
	}
}

// SetHooks installs optional submission observers.
func (r *Runner) SetHooks(h Hooks) { r.hooks = h }

// Submit registers a new job and launches its download in the background.
// It never blocks on the transfer: the id is returned immediately and
// clients poll the registry for progress.
//
// An invalid URL freezes the job in the starting state with an error set;
// no downloading phase is ever observed.
func (r *Runner) Submit(url, quality string, audioOnly bool) string {
	id := uuid.NewString()
	_ = r.reg.Create(id) // ids are unique by construction

	if r.hooks != nil {
		r.hooks.OnSubmit(id, url, quality, audioOnly)
	}

	if !IsValidYouTubeURL(url) {
		r.reg.Reject(id, "Invalid YouTube URL")
		logging.LogDownloadRejected(id, url)
		return id
	}

	req := Request{URL: url, Quality: quality, AudioOnly: audioOnly, OutDir: r.outDir}
	go r.run(id, req)
	return id
}

// run drives one job to its terminal state. Metadata fetch and transfer are
// blocking network operations; they happen only on this goroutine.
func (r *Runner) run(id string, req Request) {
	logging.LogDownloadStart(id, req.URL)

	if _, err := r.fetchInfo(req.URL); err != nil {
		r.reg.Fail(id, "Could not fetch video information")
		logging.LogDownloadError(id, req.URL, err)
		return
	}

	if err := r.Execute(context.Background(), req, NewTracker(r.reg, id)); err != nil {
		// First error wins: a more specific error reported through the
		// tracker is never overwritten here.
		r.reg.Fail(id, err.Error())
		logging.LogDownloadError(id, req.URL, err)
		return
	}
	logging.LogDownloadComplete(id, r.reg.Get(id).Filename)
}

// Execute performs one download synchronously, reporting engine events to
// the supplied sink. The HTTP path passes a registry-backed Tracker; the CLI
// passes a console sink. Both share this single execution path.
func (r *Runner) Execute(ctx context.Context, req Request, sink Sink) error {
	return r.engine.Download(ctx, req, sink)
}
