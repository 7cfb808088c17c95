package utils

import (
	"fmt"
	"strings"
	"time"
)

const (
	progressBarFilled = "█"
	progressBarEmpty  = "░"
	progressBarLength = 10
)

const (
	KB = 1024
	MB = KB * 1024
	GB = MB * 1024
	TB = GB * 1024
)

func FormatFileSize(size int64) string {
	switch {
	case size >= TB:
		return fmt.Sprintf("%.2f TB", float64(size)/TB)
	case size >= GB:
		return fmt.Sprintf("%.2f GB", float64(size)/GB)
	case size >= MB:
		return fmt.Sprintf("%.2f MB", float64(size)/MB)
	case size >= KB:
		return fmt.Sprintf("%.2f KB", float64(size)/KB)
	default:
		return fmt.Sprintf("%d B", max(size, 0))
	}
}

// FormatSpeed renders a transfer rate, e.g. "1.50 MB/s".
func FormatSpeed(bytesPerSec float64) string {
	if bytesPerSec <= 0 {
		return "0 B/s"
	}
	return FormatFileSize(int64(bytesPerSec)) + "/s"
}

// FormatDuration renders an uptime-style duration such as "2h 5m 3s".
func FormatDuration(d time.Duration) string {
	seconds := uint64(max(d, 0) / time.Second)
	days := seconds / 86400
	hours := (seconds % 86400) / 3600
	minutes := (seconds % 3600) / 60
	secs := seconds % 60

	switch {
	case days > 0:
		return fmt.Sprintf("%dd %dh %dm %ds", days, hours, minutes, secs)
	case hours > 0:
		return fmt.Sprintf("%dh %dm %ds", hours, minutes, secs)
	case minutes > 0:
		return fmt.Sprintf("%dm %ds", minutes, secs)
	default:
		return fmt.Sprintf("%ds", secs)
	}
}

// FormatClock renders a media length as mm:ss or hh:mm:ss.
func FormatClock(seconds int) string {
	if seconds <= 0 {
		return "Unknown"
	}
	h, m, s := seconds/3600, (seconds%3600)/60, seconds%60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%d:%02d", m, s)
}

// FormatCount abbreviates view and like counters: 1.2K, 3.4M, 1.0B.
func FormatCount(n int64) string {
	switch {
	case n >= 1_000_000_000:
		return fmt.Sprintf("%.1fB", float64(n)/1_000_000_000)
	case n >= 1_000_000:
		return fmt.Sprintf("%.1fM", float64(n)/1_000_000)
	case n >= 1_000:
		return fmt.Sprintf("%.1fK", float64(n)/1_000)
	default:
		return fmt.Sprintf("%d", max(n, 0))
	}
}

// Percent returns done/total in percent, or 0 when total is unknown.
func Percent(done, total int64) float64 {
	if total <= 0 {
		return 0
	}
	return min(float64(done)/float64(total)*100, 100)
}

func FormatProgressBar(progress float64) string {
	progress = min(max(progress, 0), 100)

	filled := int(progress / 100 * progressBarLength)
	empty := progressBarLength - filled

	return fmt.Sprintf(
		"%s%s %.1f%%",
		strings.Repeat(progressBarFilled, filled),
		strings.Repeat(progressBarEmpty, empty),
		progress,
	)
}
