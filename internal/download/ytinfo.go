package download

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"
)

// VideoInfo contains minimal metadata extracted from yt-dlp -j.
type VideoInfo struct {
	Title     string `json:"title"`
	Duration  int64  `json:"duration"` // seconds
	Uploader  string `json:"uploader"`
	ViewCount int64  `json:"view_count"`
}

// FetchVideoInfo runs `yt-dlp -j` and returns the first parsed video info.
// On failure, returns a zero VideoInfo and an error.
func FetchVideoInfo(url string) (VideoInfo, error) {
	if err := CheckYTDLP(); err != nil {
		return VideoInfo{}, err
	}
	cmd := exec.Command("yt-dlp", "-j", "--no-playlist", url)
	out, err := cmd.StdoutPipe()
	if err != nil {
		return VideoInfo{}, err
	}
	if err := cmd.Start(); err != nil {
		return VideoInfo{}, err
	}
	defer cmd.Wait()
	sc := bufio.NewScanner(out)
	sc.Buffer(make([]byte, 64*1024), 4*1024*1024)
	for sc.Scan() {
		ln := strings.TrimSpace(sc.Text())
		if ln == "" {
			continue
		}
		if info, ok := parseVideoInfo(ln); ok {
			return info, nil
		}
	}
	if err := sc.Err(); err != nil {
		return VideoInfo{}, err
	}
	return VideoInfo{}, ErrNoVideoInfo
}

// parseVideoInfo decodes one yt-dlp -j line, tolerating missing fields.
func parseVideoInfo(line string) (VideoInfo, bool) {
	var m map[string]any
	if err := json.Unmarshal([]byte(line), &m); err != nil {
		return VideoInfo{}, false
	}
	info := VideoInfo{Title: "Unknown Title", Uploader: "Unknown Uploader"}
	if v, ok := m["title"].(string); ok && v != "" {
		info.Title = v
	}
	if v, ok := m["uploader"].(string); ok && v != "" {
		info.Uploader = v
	}
	if v, ok := m["duration"].(float64); ok {
		info.Duration = int64(v)
	}
	if v, ok := m["view_count"].(float64); ok {
		info.ViewCount = int64(v)
	}
	return info, true
}

// FormatDuration renders a duration in seconds as "m:ss",
// e.g. 125 -> "2:05".
func FormatDuration(seconds int64) string {
	return fmt.Sprintf("%d:%02d", seconds/60, seconds%60)
}
