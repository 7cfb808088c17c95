package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/pavelc4/aether-fetch/pkg/logger"
)

const probeTimeout = 30 * time.Second

// Conservative MB-per-minute rates used when no format reports a size.
var sizeRates = map[Quality]float64{
	Quality360p:  1.0,
	Quality480p:  1.5,
	QualityAudio: 1.2,
}

type Estimate struct {
	Bytes int64
	// Approximate is true when the size was derived from duration only.
	Approximate bool
}

type Info struct {
	ID         string
	Title      string
	Uploader   string
	Duration   int
	ViewCount  int64
	LikeCount  int64
	UploadDate string
	Thumbnail  string
	Estimates  map[Quality]Estimate
}

// Probe fetches metadata without downloading and estimates the size of
// each quality. Transient failures are retried with exponential backoff.
func (y *YtDlp) Probe(ctx context.Context, url string) (*Info, error) {
	var raw []byte
	attempt := 0

	op := func() error {
		attempt++
		out, err := y.dumpJSON(ctx, url)
		if err != nil {
			logger.Warn("Probe attempt failed", "attempt", attempt, "url", url, "error", err)
			return err
		}
		raw = out
		return nil
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = y.retryDelay
	b.Multiplier = 2
	retries := uint64(max(y.maxRetries-1, 0))
	if err := backoff.Retry(op, backoff.WithContext(backoff.WithMaxRetries(b, retries), ctx)); err != nil {
		return nil, fmt.Errorf("probe %s: %w", url, err)
	}

	var meta ytdlpMeta
	if err := json.Unmarshal(raw, &meta); err != nil {
		return nil, fmt.Errorf("decode probe output: %w", err)
	}
	return meta.info(), nil
}

func (y *YtDlp) dumpJSON(ctx context.Context, url string) ([]byte, error) {
	runCtx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	args := append([]string{
		"--dump-json",
		"--skip-download",
		"--no-playlist",
		"--no-warnings",
		"--socket-timeout", "15",
	}, y.cookieArgs()...)
	args = append(args, url)

	cmd := exec.CommandContext(runCtx, y.path, args...)
	var stdout bytes.Buffer
	stderr := &tailBuffer{max: 2048}
	cmd.Stdout = &stdout
	cmd.Stderr = stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, backoff.Permanent(ctx.Err())
		}
		if runCtx.Err() != nil {
			return nil, fmt.Errorf("yt-dlp: no metadata after %s", probeTimeout)
		}
		return nil, fmt.Errorf("yt-dlp: %w: %s", err, stderr.String())
	}
	return stdout.Bytes(), nil
}

type ytdlpMeta struct {
	ID          string        `json:"id"`
	Title       string        `json:"title"`
	Uploader    string        `json:"uploader"`
	Ext         string        `json:"ext"`
	Duration    float64       `json:"duration"`
	ViewCount   int64         `json:"view_count"`
	LikeCount   int64         `json:"like_count"`
	UploadDate  string        `json:"upload_date"`
	Thumbnail   string        `json:"thumbnail"`
	FileSize    int64         `json:"filesize"`
	FileSizeApp int64         `json:"filesize_approx"`
	Formats     []ytdlpFormat `json:"formats"`
}

type ytdlpFormat struct {
	ID          string `json:"format_id"`
	Ext         string `json:"ext"`
	Height      int    `json:"height"`
	VCodec      string `json:"vcodec"`
	ACodec      string `json:"acodec"`
	FileSize    int64  `json:"filesize"`
	FileSizeApp int64  `json:"filesize_approx"`
}

func (f ytdlpFormat) size() int64 {
	if f.FileSize > 0 {
		return f.FileSize
	}
	return f.FileSizeApp
}

func (m *ytdlpMeta) info() *Info {
	info := &Info{
		ID:         m.ID,
		Title:      m.Title,
		Uploader:   m.Uploader,
		Duration:   int(m.Duration),
		ViewCount:  m.ViewCount,
		LikeCount:  m.LikeCount,
		UploadDate: m.UploadDate,
		Thumbnail:  m.Thumbnail,
		Estimates:  make(map[Quality]Estimate, len(Qualities)),
	}
	for _, q := range Qualities {
		info.Estimates[q] = estimateSize(m.Formats, m.Duration, q)
	}
	return info
}

// estimateSize mirrors the format selectors: the largest known size among
// formats that fit the quality, else a duration-based guess.
func estimateSize(formats []ytdlpFormat, duration float64, q Quality) Estimate {
	var best int64
	for _, f := range formats {
		if !formatFits(f, q) {
			continue
		}
		if s := f.size(); s > best {
			best = s
		}
	}
	if best > 0 {
		return Estimate{Bytes: best}
	}
	if duration <= 0 {
		return Estimate{}
	}

	rate, ok := sizeRates[q]
	if !ok {
		rate = 1.5
	}
	mb := duration / 60 * rate
	return Estimate{Bytes: int64(mb * MB), Approximate: true}
}

func formatFits(f ytdlpFormat, q Quality) bool {
	switch q {
	case QualityAudio:
		return f.VCodec == "none" && f.ACodec != "none"
	case Quality480p:
		return f.Height > 0 && f.Height <= 480 && hasAudioAndVideo(f)
	default:
		return f.Height > 0 && f.Height <= 360 && hasAudioAndVideo(f)
	}
}

// The selectors only pick muxed formats ("best[...]"), so video-only
// streams are excluded.
func hasAudioAndVideo(f ytdlpFormat) bool {
	return f.VCodec != "none" && f.ACodec != "none"
}
