package provider

import (
	"context"
	"errors"

	"github.com/pavelc4/aether-fetch/internal/platform"
)

type Quality string

const (
	Quality360p  Quality = "360p"
	Quality480p  Quality = "480p"
	QualityAudio Quality = "audio"
)

var Qualities = []Quality{Quality360p, Quality480p, QualityAudio}

// ParseQuality maps user input to a Quality. An empty string selects 360p.
func ParseQuality(s string) (Quality, bool) {
	switch Quality(s) {
	case "":
		return Quality360p, true
	case Quality360p, Quality480p, QualityAudio:
		return Quality(s), true
	default:
		return "", false
	}
}

func (q Quality) Label() string {
	switch q {
	case QualityAudio:
		return "Audio only"
	case Quality480p:
		return "Video (480p)"
	default:
		return "Video (360p)"
	}
}

type MediaKind string

const (
	MediaVideo MediaKind = "video"
	MediaAudio MediaKind = "audio"
)

func (q Quality) MediaKind() MediaKind {
	if q == QualityAudio {
		return MediaAudio
	}
	return MediaVideo
}

// ProgressFunc receives the cumulative byte count and the best current
// estimate of the total (0 if unknown).
type ProgressFunc func(bytesSoFar, totalEstimate int64)

type Job struct {
	URL      string
	Platform platform.Platform
	Quality  Quality
	// Dir is an empty directory owned by the caller; backends write the
	// artifact into it.
	Dir string
}

type Result struct {
	Path      string
	Size      int64
	Title     string
	MimeType  string
	MediaKind MediaKind
	Duration  int
}

type Backend interface {
	Name() string
	Supports(p platform.Platform) bool
	Extract(ctx context.Context, job Job, progress ProgressFunc) (*Result, error)
}

var (
	ErrNoBackend    = errors.New("no backend supports this platform")
	ErrNoMediaFound = errors.New("no media file produced")
)
