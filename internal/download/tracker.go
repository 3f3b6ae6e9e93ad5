package download

import (
	"fmt"
	"math"
	"path/filepath"
	"strconv"
	"strings"
)

// Event is one status report emitted by the download engine. Field presence
// varies: byte counts and speed for normal progress, PercentStr when the
// engine only reports a pre-formatted percentage.
type Event struct {
	Status          string  // "downloading" or "finished"
	DownloadedBytes float64
	TotalBytes      float64
	Speed           float64 // bytes per second; 0 when unknown
	PercentStr      string  // e.g. " 42.3%"
	Filename        string  // output path, possibly partial
}

// Sink accepts engine events for a single job. It is the only coupling
// between the engine and progress state, which keeps translation testable
// without any network activity.
type Sink interface {
	Handle(ev Event)
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(Event)

func (f SinkFunc) Handle(ev Event) { f(ev) }

// Tracker translates engine events into registry updates for one job.
// A parsing failure on a single event is swallowed: transient malformed
// progress reports must never abort an otherwise-successful transfer.
type Tracker struct {
	id  string
	reg *Registry
}

// NewTracker returns a Tracker writing to reg under the given download id.
func NewTracker(reg *Registry, id string) *Tracker {
	return &Tracker{id: id, reg: reg}
}

func (t *Tracker) Handle(ev Event) {
	switch ev.Status {
	case "downloading":
		if ev.TotalBytes > 0 && ev.DownloadedBytes >= 0 {
			percent := roundPercent(ev.DownloadedBytes / ev.TotalBytes * 100)
			t.reg.SetDownloading(t.id, percent, FormatSpeed(ev.Speed), baseName(ev.Filename))
			return
		}
		if ev.PercentStr != "" {
			percent, ok := parsePercent(ev.PercentStr)
			if !ok {
				// Malformed percent; skip this event.
				return
			}
			t.reg.SetDownloading(t.id, percent, "", baseName(ev.Filename))
		}
	case "finished":
		t.reg.Finish(t.id, baseName(ev.Filename))
	}
}

// FormatSpeed renders a bytes/second figure as a human-readable rate,
// or "N/A" when the engine reported none.
func FormatSpeed(bytesPerSec float64) string {
	if bytesPerSec <= 0 {
		return "N/A"
	}
	return fmt.Sprintf("%.1f MB/s", bytesPerSec/1048576)
}

// parsePercent parses a percentage string such as " 42.3%".
func parsePercent(s string) (float64, bool) {
	s = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(s), "%"))
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// roundPercent rounds to one decimal place.
func roundPercent(p float64) float64 {
	return math.Round(p*10) / 10
}

// baseName returns the base name of a path, or "" for an empty path.
func baseName(path string) string {
	if path == "" {
		return ""
	}
	return filepath.Base(path)
}
