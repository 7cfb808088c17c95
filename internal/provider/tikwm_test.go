package provider

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pavelc4/aether-fetch/internal/platform"
)

func newTikWMServer(t *testing.T, apiFailures int32) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var apiCalls atomic.Int32

	mux := http.NewServeMux()
	mux.HandleFunc("/api/", func(w http.ResponseWriter, r *http.Request) {
		n := apiCalls.Add(1)
		if n <= apiFailures {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		if err := r.ParseForm(); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		if !strings.Contains(r.FormValue("url"), "tiktok.com") {
			_, _ = w.Write([]byte(`{"code":-1,"msg":"Url parsing is failed!"}`))
			return
		}
		_, _ = w.Write([]byte(`{"code":0,"msg":"success","data":{"id":"7234","title":"dance","play":"/video/media/play/7234.mp4","music":"/video/music/7234.mp3","size":4096,"duration":15}}`))
	})
	mux.HandleFunc("/video/media/play/7234.mp4", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(make([]byte, 4096))
	})
	mux.HandleFunc("/video/music/7234.mp3", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(make([]byte, 1000))
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, &apiCalls
}

func TestTikWMExtractVideo(t *testing.T) {
	srv, calls := newTikWMServer(t, 1)
	b := NewTikWM(TikWMOptions{APIURL: srv.URL + "/api/", BaseURL: srv.URL, MaxRetries: 2})

	assert.True(t, b.Supports(platform.TikTok))
	assert.False(t, b.Supports(platform.YouTube))

	var last int64
	res, err := b.Extract(context.Background(), Job{
		URL:      "https://www.tiktok.com/@a/video/7234",
		Platform: platform.TikTok,
		Quality:  Quality360p,
		Dir:      t.TempDir(),
	}, func(done, total int64) { last = done })
	require.NoError(t, err)

	assert.Equal(t, int32(2), calls.Load(), "first API call is retried")
	assert.Equal(t, int64(4096), res.Size)
	assert.Equal(t, int64(4096), last)
	assert.Equal(t, "dance", res.Title)
	assert.Equal(t, "video/mp4", res.MimeType)
	assert.True(t, strings.HasSuffix(res.Path, "tiktok_7234.mp4"))

	info, err := os.Stat(res.Path)
	require.NoError(t, err)
	assert.Equal(t, int64(4096), info.Size())
}

func TestTikWMExtractAudio(t *testing.T) {
	srv, _ := newTikWMServer(t, 0)
	b := NewTikWM(TikWMOptions{APIURL: srv.URL + "/api/", BaseURL: srv.URL})

	res, err := b.Extract(context.Background(), Job{
		URL:      "https://vm.tiktok.com/ZMabc/",
		Platform: platform.TikTok,
		Quality:  QualityAudio,
		Dir:      t.TempDir(),
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(1000), res.Size)
	assert.Equal(t, MediaAudio, res.MediaKind)
	assert.Equal(t, "audio/mpeg", res.MimeType)
}

func TestTikWMAPIError(t *testing.T) {
	srv, _ := newTikWMServer(t, 0)
	b := NewTikWM(TikWMOptions{APIURL: srv.URL + "/api/", BaseURL: srv.URL})

	_, err := b.Extract(context.Background(), Job{URL: "https://example.com/x", Dir: t.TempDir()}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Url parsing is failed")
}

func TestTikWMCancelledMidTransfer(t *testing.T) {
	srv, _ := newTikWMServer(t, 0)
	b := NewTikWM(TikWMOptions{APIURL: srv.URL + "/api/", BaseURL: srv.URL})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	dir := t.TempDir()
	_, err := b.Extract(ctx, Job{
		URL:     "https://www.tiktok.com/@a/video/7234",
		Quality: Quality360p,
		Dir:     dir,
	}, func(done, total int64) { cancel() })
	assert.ErrorIs(t, err, context.Canceled)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries, "the partial file is removed")
}

func TestTikWMAbsolute(t *testing.T) {
	b := NewTikWM(TikWMOptions{BaseURL: "https://x.test/"})
	assert.Equal(t, "https://x.test/a/b.mp4", b.absolute("/a/b.mp4"))
	assert.Equal(t, "https://cdn.test/c.mp4", b.absolute("https://cdn.test/c.mp4"))
}
