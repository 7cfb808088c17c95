package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/pavelc4/aether-fetch/internal/platform"
	"github.com/pavelc4/aether-fetch/pkg/logger"
)

const (
	tikWMAPIURL  = "https://www.tikwm.com/api/"
	tikWMBaseURL = "https://www.tikwm.com"
)

// TikWM resolves TikTok links through the tikwm.com API and streams the
// media file to disk.
type TikWM struct {
	apiURL  string
	baseURL string
	client  *retryablehttp.Client
}

type TikWMOptions struct {
	APIURL     string
	BaseURL    string
	MaxRetries int
	HTTPClient *http.Client
}

func NewTikWM(opts TikWMOptions) *TikWM {
	if opts.APIURL == "" {
		opts.APIURL = tikWMAPIURL
	}
	if opts.BaseURL == "" {
		opts.BaseURL = tikWMBaseURL
	}

	client := retryablehttp.NewClient()
	client.RetryMax = opts.MaxRetries
	client.RetryWaitMin = 500 * time.Millisecond
	client.RetryWaitMax = 5 * time.Second
	client.Logger = retryLogger{}
	if opts.HTTPClient != nil {
		client.HTTPClient = opts.HTTPClient
	}

	return &TikWM{
		apiURL:  opts.APIURL,
		baseURL: strings.TrimSuffix(opts.BaseURL, "/"),
		client:  client,
	}
}

func (t *TikWM) Name() string {
	return "tikwm"
}

func (t *TikWM) Supports(p platform.Platform) bool {
	return p == platform.TikTok
}

func (t *TikWM) Extract(ctx context.Context, job Job, progress ProgressFunc) (*Result, error) {
	data, err := t.resolve(ctx, job.URL)
	if err != nil {
		return nil, err
	}

	mediaURL, ext, mime := data.Play, ".mp4", "video/mp4"
	if job.Quality == QualityAudio && data.Music != "" {
		mediaURL, ext, mime = data.Music, ".mp3", "audio/mpeg"
	}
	if mediaURL == "" {
		return nil, fmt.Errorf("tikwm: no playable media for %s", job.URL)
	}

	name := platform.SanitizeFilename("tiktok_"+data.ID, 64) + ext
	path := filepath.Join(job.Dir, name)

	size, err := t.fetch(ctx, t.absolute(mediaURL), path, int64(data.Size), progress)
	if err != nil {
		return nil, err
	}
	if size == 0 {
		return nil, fmt.Errorf("%w: empty body from tikwm", ErrNoMediaFound)
	}

	return &Result{
		Path:      path,
		Size:      size,
		Title:     data.Title,
		MimeType:  mime,
		MediaKind: job.Quality.MediaKind(),
		Duration:  data.Duration,
	}, nil
}

type tikWMResponse struct {
	Code int       `json:"code"`
	Msg  string    `json:"msg"`
	Data tikWMData `json:"data"`
}

type tikWMData struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	Play     string `json:"play"`
	Music    string `json:"music"`
	Size     int    `json:"size"`
	Duration int    `json:"duration"`
}

func (t *TikWM) resolve(ctx context.Context, tiktokURL string) (*tikWMData, error) {
	form := url.Values{"url": {tiktokURL}, "hd": {"0"}}
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, t.apiURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("tikwm: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("tikwm: request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("tikwm: api returned status %d", resp.StatusCode)
	}

	var out tikWMResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("tikwm: decode: %w", err)
	}
	if out.Code != 0 {
		return nil, fmt.Errorf("tikwm: api error: %s", out.Msg)
	}
	return &out.Data, nil
}

func (t *TikWM) absolute(u string) string {
	if strings.HasPrefix(u, "http://") || strings.HasPrefix(u, "https://") {
		return u
	}
	return t.baseURL + "/" + strings.TrimPrefix(u, "/")
}

func (t *TikWM) fetch(ctx context.Context, mediaURL, path string, hint int64, progress ProgressFunc) (int64, error) {
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, mediaURL, nil)
	if err != nil {
		return 0, fmt.Errorf("tikwm: build media request: %w", err)
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("tikwm: media request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("tikwm: media returned status %d", resp.StatusCode)
	}

	total := resp.ContentLength
	if total <= 0 {
		total = hint
	}

	f, err := os.Create(path)
	if err != nil {
		return 0, err
	}

	n, copyErr := io.Copy(f, &countingReader{ctx: ctx, r: resp.Body, total: total, progress: progress})
	closeErr := f.Close()
	// A cancel raised while the last chunk was reported is only visible here.
	if err := errors.Join(copyErr, closeErr, ctx.Err()); err != nil {
		_ = os.Remove(path)
		return 0, err
	}
	return n, nil
}

// countingReader reports cumulative progress and stops as soon as the
// context is done.
type countingReader struct {
	ctx      context.Context
	r        io.Reader
	n        int64
	total    int64
	progress ProgressFunc
}

func (c *countingReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	n, err := c.r.Read(p)
	c.n += int64(n)
	if n > 0 && c.progress != nil {
		c.progress(c.n, max(c.total, c.n))
	}
	return n, err
}

// retryLogger adapts retryablehttp's LeveledLogger to the project logger.
type retryLogger struct{}

func (retryLogger) Error(msg string, keysAndValues ...interface{}) {
	logger.Warn("HTTP retry: "+msg, keysAndValues...)
}

func (retryLogger) Warn(msg string, keysAndValues ...interface{}) {
	logger.Warn("HTTP retry: "+msg, keysAndValues...)
}

func (retryLogger) Info(msg string, keysAndValues ...interface{}) {}

func (retryLogger) Debug(msg string, keysAndValues ...interface{}) {
	logger.Debug("HTTP: "+msg, keysAndValues...)
}
