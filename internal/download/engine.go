package download

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
)

// Request describes one download handed to the engine.
type Request struct {
	URL       string
	Quality   string // "720p", "480p", "360p"; unrecognized falls back to 720p
	AudioOnly bool
	OutDir    string
}

// Engine performs the actual metadata resolution and transfer, reporting
// status events to the sink as the work proceeds. Download blocks until the
// transfer completes or fails.
type Engine interface {
	Download(ctx context.Context, req Request, sink Sink) error
}

// audioBitrate is the target bitrate for MP3 extraction in audio-only mode.
const audioBitrate = "192K"

// qualityFormats maps quality labels to yt-dlp format selectors.
var qualityFormats = map[string]string{
	"720p": "best[height<=720]",
	"480p": "best[height<=480]",
	"360p": "best[height<=360]",
}

// FormatForQuality returns the format selector for a quality label, falling
// back to 720p for unrecognized labels.
func FormatForQuality(quality string) string {
	if f, ok := qualityFormats[quality]; ok {
		return f
	}
	return qualityFormats["720p"]
}

// YTDLP runs downloads through the external yt-dlp binary, parsing its
// progress template output into events.
type YTDLP struct{}

// CheckYTDLP ensures yt-dlp is in PATH and supports --progress-template,
// which the event parser depends on.
func CheckYTDLP() error {
	p, err := exec.LookPath("yt-dlp")
	if err != nil {
		return err
	}
	out, err := exec.Command(p, "--help").CombinedOutput()
	if err != nil {
		return fmt.Errorf("yt-dlp not runnable: %w", err)
	}
	if !strings.Contains(string(out), "--progress-template") {
		return fmt.Errorf("yt_dlp_outdated: missing --progress-template support")
	}
	return nil
}

// Download executes yt-dlp for the given request, feeding progress events
// into sink until the process exits.
func (YTDLP) Download(ctx context.Context, req Request, sink Sink) error {
	if err := CheckYTDLP(); err != nil {
		return fmt.Errorf("yt_dlp_not_found: %w", err)
	}

	cmd := exec.CommandContext(ctx, "yt-dlp", buildArgs(req)...)

	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("stderr: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("stdout: %w", err)
	}
	var stderrBuf bytes.Buffer

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start: %w", err)
	}

	// Progress may appear on either stream depending on yt-dlp version;
	// parse both concurrently.
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		parseEvents(bufio.NewScanner(io.TeeReader(stderr, &stderrBuf)), sink)
	}()
	go func() {
		defer wg.Done()
		parseEvents(bufio.NewScanner(stdout), sink)
	}()
	wg.Wait()

	if err := cmd.Wait(); err != nil {
		if tail := tailString(stderrBuf.String(), maxErrorLen); tail != "" {
			return fmt.Errorf("yt-dlp: %w: %s", err, tail)
		}
		return fmt.Errorf("yt-dlp: %w", err)
	}
	return nil
}

// buildArgs constructs the yt-dlp argument list for a request.
func buildArgs(req Request) []string {
	outTpl := filepath.Join(req.OutDir, "%(title)s.%(ext)s")
	args := []string{
		"--newline", "--no-color", "--no-playlist",
		"--restrict-filenames",
		"--progress-template", "download:%(progress)j",
		"-o", outTpl,
	}
	if req.AudioOnly {
		args = append(args,
			"-f", "bestaudio/best",
			"--extract-audio", "--audio-format", "mp3",
			"--audio-quality", audioBitrate,
		)
	} else {
		args = append(args, "-f", FormatForQuality(req.Quality))
	}
	return append(args, req.URL)
}

// progressPayload mirrors the fields of yt-dlp's %(progress)j template we
// care about. Unknown fields are ignored; null values leave the zero value.
type progressPayload struct {
	Status             string  `json:"status"`
	DownloadedBytes    float64 `json:"downloaded_bytes"`
	TotalBytes         float64 `json:"total_bytes"`
	TotalBytesEstimate float64 `json:"total_bytes_estimate"`
	Speed              float64 `json:"speed"`
	Filename           string  `json:"filename"`
	PercentStr         string  `json:"_percent_str"`
}

// parseEvents scans yt-dlp output lines, converting progress-template JSON
// into events. Non-JSON lines and unrelated statuses are skipped.
func parseEvents(sc *bufio.Scanner, sink Sink) {
	sc.Buffer(make([]byte, 4096), 256*1024)
	// yt-dlp rewrites progress on the same line using carriage returns;
	// split on \n, \r\n, or bare \r.
	sc.Split(scanCRorLF)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || line[0] != '{' {
			continue
		}
		var pp progressPayload
		if err := json.Unmarshal([]byte(line), &pp); err != nil {
			continue
		}
		if pp.Status != "downloading" && pp.Status != "finished" {
			continue
		}
		total := pp.TotalBytes
		if total <= 0 {
			total = pp.TotalBytesEstimate
		}
		sink.Handle(Event{
			Status:          pp.Status,
			DownloadedBytes: pp.DownloadedBytes,
			TotalBytes:      total,
			Speed:           pp.Speed,
			PercentStr:      pp.PercentStr,
			Filename:        pp.Filename,
		})
	}
}

// scanCRorLF is like bufio.ScanLines but treats a bare '\r' as a line
// terminator as well. It also handles CRLF and strips a trailing CR.
func scanCRorLF(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}
	for i := 0; i < len(data); i++ {
		if data[i] == '\n' {
			line := data[:i]
			if i > 0 && data[i-1] == '\r' {
				line = data[:i-1]
			}
			return i + 1, line, nil
		}
		if data[i] == '\r' {
			if i+1 < len(data) && data[i+1] == '\n' {
				return i + 2, data[:i], nil
			}
			return i + 1, data[:i], nil
		}
	}
	if atEOF {
		if len(data) > 0 && data[len(data)-1] == '\r' {
			return len(data), data[:len(data)-1], nil
		}
		return len(data), data, nil
	}
	return 0, nil, nil
}

// tailString returns the last at most n bytes from s.
func tailString(s string, n int) string {
	if n <= 0 {
		return ""
	}
	if len(s) <= n {
		return strings.TrimSpace(s)
	}
	return strings.TrimSpace(s[len(s)-n:])
}
