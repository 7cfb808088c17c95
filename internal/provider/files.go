package provider

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

var mediaExtensions = []string{".mp4", ".webm", ".mkv", ".m4a", ".mp3"}

var mimeByExt = map[string]string{
	".mp4":  "video/mp4",
	".webm": "video/webm",
	".mkv":  "video/x-matroska",
	".m4a":  "audio/mp4",
	".mp3":  "audio/mpeg",
}

// findDownloadedFile picks the largest non-empty media file in dir. Partial
// downloads (.part, .ytdl) are ignored.
func findDownloadedFile(dir string) (string, int64, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", 0, err
	}

	var best string
	var bestSize int64
	for _, e := range entries {
		if e.IsDir() || !isMediaFile(e.Name()) {
			continue
		}
		info, err := e.Info()
		if err != nil || info.Size() == 0 {
			continue
		}
		if info.Size() > bestSize {
			best = filepath.Join(dir, e.Name())
			bestSize = info.Size()
		}
	}

	if best == "" {
		return "", 0, fmt.Errorf("%w in %s", ErrNoMediaFound, dir)
	}
	return best, bestSize, nil
}

func isMediaFile(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	for _, m := range mediaExtensions {
		if ext == m {
			return true
		}
	}
	return false
}

func mimeFor(path string) string {
	if m, ok := mimeByExt[strings.ToLower(filepath.Ext(path))]; ok {
		return m
	}
	return "application/octet-stream"
}
