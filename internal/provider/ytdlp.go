package provider

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/pavelc4/aether-fetch/internal/platform"
	"github.com/pavelc4/aether-fetch/pkg/logger"
)

var qualityFormats = map[Quality]string{
	Quality360p:  "best[height<=360][ext=mp4]/best[height<=360]/best[ext=mp4]/best",
	Quality480p:  "best[height<=480][ext=mp4]/best[height<=480]/best[ext=mp4]/best",
	QualityAudio: "bestaudio[ext=m4a]/bestaudio",
}

func formatFor(q Quality) string {
	if f, ok := qualityFormats[q]; ok {
		return f
	}
	return qualityFormats[Quality360p]
}

type YtDlpOptions struct {
	Path       string
	Cookies    string
	MaxRetries int
	RetryDelay time.Duration
}

// YtDlp drives the yt-dlp executable. It handles every platform yt-dlp
// understands, which covers all classified platforms.
type YtDlp struct {
	path       string
	cookies    string
	maxRetries int
	retryDelay time.Duration
}

func NewYtDlp(opts YtDlpOptions) *YtDlp {
	if opts.Path == "" {
		opts.Path = "yt-dlp"
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = time.Second
	}
	return &YtDlp{
		path:       opts.Path,
		cookies:    opts.Cookies,
		maxRetries: opts.MaxRetries,
		retryDelay: opts.RetryDelay,
	}
}

func (y *YtDlp) Name() string {
	return "yt-dlp"
}

func (y *YtDlp) Supports(p platform.Platform) bool {
	return p != platform.Unknown
}

func (y *YtDlp) Extract(ctx context.Context, job Job, progress ProgressFunc) (*Result, error) {
	args := y.downloadArgs(job)

	cmd := exec.CommandContext(ctx, y.path, args...)
	// Give yt-dlp a chance to clean up its fragments before it is killed.
	cmd.Cancel = func() error { return cmd.Process.Signal(os.Interrupt) }
	cmd.WaitDelay = 5 * time.Second

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}
	stderr := &tailBuffer{max: 4096}
	cmd.Stderr = stderr

	start := time.Now()
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start yt-dlp: %w", err)
	}

	meta := y.consume(stdout, progress)

	if err := cmd.Wait(); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("yt-dlp exited: %w: %s", err, stderr.String())
	}

	path, size, err := findDownloadedFile(job.Dir)
	if err != nil {
		return nil, err
	}
	if progress != nil {
		progress(size, size)
	}

	res := &Result{
		Path:      path,
		Size:      size,
		MimeType:  mimeFor(path),
		MediaKind: job.Quality.MediaKind(),
	}
	if meta != nil {
		res.Title = meta.Title
		res.Duration = int(meta.Duration)
	}

	logger.InfoWithDuration("yt-dlp download finished", start,
		"platform", job.Platform, "quality", job.Quality, "size", size)
	return res, nil
}

func (y *YtDlp) downloadArgs(job Job) []string {
	args := []string{
		"-f", formatFor(job.Quality),
		"-o", filepath.Join(job.Dir, "%(id)s.%(ext)s"),
		"--no-playlist",
		"--no-warnings",
		"--restrict-filenames",
		"--socket-timeout", "30",
		"--retries", strconv.Itoa(max(y.maxRetries, 1)),
		"--dump-json", "--no-simulate",
		"--newline", "--progress",
	}
	if job.Quality != QualityAudio {
		args = append(args, "--merge-output-format", "mp4")
	}
	args = append(args, y.cookieArgs()...)
	return append(args, job.URL)
}

func (y *YtDlp) cookieArgs() []string {
	if y.cookies == "" {
		return nil
	}
	if _, err := os.Stat(y.cookies); err != nil {
		logger.Warn("Cookies file not found", "path", y.cookies)
		return nil
	}
	return []string{"--cookies", y.cookies}
}

// consume reads yt-dlp stdout until EOF, forwarding progress and capturing
// the JSON metadata line.
func (y *YtDlp) consume(r io.Reader, progress ProgressFunc) *ytdlpMeta {
	var meta *ytdlpMeta
	var tracker progressTracker

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 8*1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(line, "{") {
			var m ytdlpMeta
			if err := json.Unmarshal([]byte(line), &m); err == nil {
				meta = &m
			}
			continue
		}
		if done, total, ok := tracker.Feed(line); ok && progress != nil {
			progress(done, total)
		}
	}
	// Drain so the process never blocks on a full pipe.
	_, _ = io.Copy(io.Discard, r)
	return meta
}

type tailBuffer struct {
	max int
	buf []byte
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	t.buf = append(t.buf, p...)
	if len(t.buf) > t.max {
		t.buf = t.buf[len(t.buf)-t.max:]
	}
	return len(p), nil
}

func (t *tailBuffer) String() string {
	return strings.TrimSpace(string(t.buf))
}
