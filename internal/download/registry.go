package download

import (
	"fmt"
	"sync"
)

// Status is the lifecycle state of a download job.
type Status string

const (
	StatusStarting    Status = "starting"
	StatusDownloading Status = "downloading"
	StatusFinished    Status = "finished"
	StatusError       Status = "error"
	StatusNotFound    Status = "not_found"
)

// Progress is the poll-visible state of one download job.
type Progress struct {
	Status   Status  `json:"status"`
	Percent  float64 `json:"percent"`
	Speed    string  `json:"speed"`
	Filename string  `json:"filename"`
	Error    string  `json:"error,omitempty"`
}

// notFoundError is the message reported for unknown download ids.
const notFoundError = "Download not found"

// maxErrorLen caps stored error messages to reduce noise from long
// subprocess failures.
const maxErrorLen = 512

// Registry provides thread-safe storage and retrieval of download progress
// by id. It acts as a pure state container without any download logic.
//
// Each entry has a single writer (the job's own goroutine) and any number of
// concurrent readers. Entries are never evicted; the registry grows for the
// life of the process.
type Registry struct {
	mu    sync.RWMutex
	jobs  map[string]*Progress
	hooks Hooks
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{jobs: make(map[string]*Progress, 64)}
}

// SetHooks installs optional observers notified after every applied update.
// Must be called before any jobs are created.
func (r *Registry) SetHooks(h Hooks) { r.hooks = h }

// Create inserts a fresh record with status "starting".
// Returns an error if the id already exists; ids generated with
// uuid.NewString never collide in practice.
func (r *Registry) Create(id string) error {
	r.mu.Lock()
	if _, exists := r.jobs[id]; exists {
		r.mu.Unlock()
		return fmt.Errorf("download %s already exists", id)
	}
	p := &Progress{Status: StatusStarting}
	r.jobs[id] = p
	snap := *p
	r.mu.Unlock()

	r.notify(id, snap)
	return nil
}

// Get returns a snapshot copy of the record for id. An unknown id yields a
// sentinel record rather than an error so polling code has a single success
// path.
func (r *Registry) Get(id string) Progress {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if p, ok := r.jobs[id]; ok {
		return *p
	}
	return Progress{Status: StatusNotFound, Error: notFoundError}
}

// Size returns the number of tracked jobs.
func (r *Registry) Size() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.jobs)
}

// SetDownloading applies an in-progress update as one unit. Percent never
// decreases; empty speed or filename leave the prior values in place.
// Ignored once the job has failed or finished.
func (r *Registry) SetDownloading(id string, percent float64, speed, filename string) {
	r.update(id, func(p *Progress) bool {
		if p.Error != "" || p.Status == StatusFinished {
			return false
		}
		p.Status = StatusDownloading
		if percent > p.Percent {
			p.Percent = percent
		}
		if speed != "" {
			p.Speed = speed
		}
		if filename != "" {
			p.Filename = filename
		}
		return true
	})
}

// Finish marks the job completed with percent 100. Ignored once an error has
// been recorded.
func (r *Registry) Finish(id, filename string) {
	r.update(id, func(p *Progress) bool {
		if p.Error != "" {
			return false
		}
		p.Status = StatusFinished
		p.Percent = 100
		if filename != "" {
			p.Filename = filename
		}
		return true
	})
}

// Fail records a terminal error and moves the job to the error state.
// The first error wins: later calls are ignored, as are calls after the job
// finished.
func (r *Registry) Fail(id, msg string) {
	if len(msg) > maxErrorLen {
		msg = msg[:maxErrorLen]
	}
	r.update(id, func(p *Progress) bool {
		if p.Error != "" || p.Status == StatusFinished {
			return false
		}
		p.Error = msg
		p.Status = StatusError
		return true
	})
}

// Reject records a validation error without leaving the starting state.
// Used when a submission never begins downloading.
func (r *Registry) Reject(id, msg string) {
	r.update(id, func(p *Progress) bool {
		if p.Error != "" {
			return false
		}
		p.Error = msg
		return true
	})
}

// update applies fn to the record under the write lock and notifies hooks
// with a snapshot when fn reports a change. Unknown ids are ignored.
func (r *Registry) update(id string, fn func(*Progress) bool) {
	r.mu.Lock()
	p, ok := r.jobs[id]
	if !ok || !fn(p) {
		r.mu.Unlock()
		return
	}
	snap := *p
	r.mu.Unlock()

	r.notify(id, snap)
}

func (r *Registry) notify(id string, p Progress) {
	if r.hooks != nil {
		r.hooks.OnUpdate(id, p)
	}
}
