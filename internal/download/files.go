package download

import (
	"fmt"
	"os"
	"path/filepath"
)

// FileEntry describes one downloaded artifact.
type FileEntry struct {
	Name string `json:"name"`
	Size string `json:"size"` // e.g. "12.3 MB"
	Path string `json:"path"`
}

// ListFiles returns the files directly under dir with human-readable sizes.
// A missing directory yields an empty list, matching the empty-state the
// listing endpoints present before any download completed.
func ListFiles(dir string) ([]FileEntry, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return []FileEntry{}, nil
		}
		return nil, err
	}
	files := make([]FileEntry, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		fi, err := e.Info()
		if err != nil {
			continue
		}
		files = append(files, FileEntry{
			Name: e.Name(),
			Size: fmt.Sprintf("%.1f MB", float64(fi.Size())/(1024*1024)),
			Path: filepath.Join(dir, e.Name()),
		})
	}
	return files, nil
}
