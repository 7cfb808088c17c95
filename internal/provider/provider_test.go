package provider

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pavelc4/aether-fetch/internal/platform"
)

func TestParseQuality(t *testing.T) {
	tests := []struct {
		in   string
		want Quality
		ok   bool
	}{
		{"", Quality360p, true},
		{"360p", Quality360p, true},
		{"480p", Quality480p, true},
		{"audio", QualityAudio, true},
		{"1080p", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := ParseQuality(tt.in)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.ok, ok)
		})
	}
	assert.Equal(t, MediaAudio, QualityAudio.MediaKind())
	assert.Equal(t, MediaVideo, Quality480p.MediaKind())
}

func TestParseSize(t *testing.T) {
	tests := []struct {
		in   string
		want int64
		ok   bool
	}{
		{"512B", 512, true},
		{"1.5KiB", 1536, true},
		{"10.00MiB", 10 * MB, true},
		{"2GiB", 2 * GB, true},
		{"3 MB", 3 * MB, true},
		{"Unknown", 0, false},
		{"12XB", 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := parseSize(tt.in)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestProgressTracker(t *testing.T) {
	var p progressTracker

	_, _, ok := p.Feed("[youtube] abc: Downloading webpage")
	assert.False(t, ok)

	done, total, ok := p.Feed("[download]  50.0% of ~ 10.00MiB at  1.00MiB/s ETA 00:05")
	require.True(t, ok)
	assert.Equal(t, int64(5*MB), done)
	assert.Equal(t, int64(10*MB), total)

	done, _, ok = p.Feed("[download] 100% of   10.00MiB in 00:00:10 at 1.00MiB/s")
	require.True(t, ok)
	assert.Equal(t, int64(10*MB), done)

	// Second stream (audio) restarts at 0%.
	done, total, ok = p.Feed("[download]  10.0% of 2.00MiB at 1.00MiB/s ETA 00:02")
	require.True(t, ok)
	assert.Equal(t, int64(10*MB)+2*MB/10, done)
	assert.Equal(t, int64(12*MB), total)
}

func TestFindDownloadedFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.mp4.part"), make([]byte, 100), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "empty.mp4"), nil, 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), make([]byte, 100), 0o644))

	_, _, err := findDownloadedFile(dir)
	assert.ErrorIs(t, err, ErrNoMediaFound)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "small.m4a"), make([]byte, 10), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "video.MP4"), make([]byte, 20), 0o644))

	path, size, err := findDownloadedFile(dir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "video.MP4"), path)
	assert.Equal(t, int64(20), size)
	assert.Equal(t, "video/mp4", mimeFor(path))
	assert.Equal(t, "audio/mp4", mimeFor("x.m4a"))
	assert.Equal(t, "application/octet-stream", mimeFor("x.bin"))
}

func TestEstimateSize(t *testing.T) {
	formats := []ytdlpFormat{
		{ID: "18", Height: 360, VCodec: "avc1", ACodec: "mp4a", FileSize: 8 * MB},
		{ID: "22", Height: 480, VCodec: "avc1", ACodec: "mp4a", FileSizeApp: 14 * MB},
		{ID: "137", Height: 1080, VCodec: "avc1", ACodec: "none", FileSize: 90 * MB},
		{ID: "140", VCodec: "none", ACodec: "mp4a", FileSize: 3 * MB},
	}

	assert.Equal(t, Estimate{Bytes: 8 * MB}, estimateSize(formats, 600, Quality360p))
	assert.Equal(t, Estimate{Bytes: 14 * MB}, estimateSize(formats, 600, Quality480p))
	assert.Equal(t, Estimate{Bytes: 3 * MB}, estimateSize(formats, 600, QualityAudio))

	// No sizes: fall back to duration rates (10 minutes).
	assert.Equal(t, Estimate{Bytes: 10 * MB, Approximate: true}, estimateSize(nil, 600, Quality360p))
	assert.Equal(t, Estimate{Bytes: 15 * MB, Approximate: true}, estimateSize(nil, 600, Quality480p))
	assert.Equal(t, Estimate{Bytes: 12 * MB, Approximate: true}, estimateSize(nil, 600, QualityAudio))
	assert.Equal(t, Estimate{}, estimateSize(nil, 0, QualityAudio))
}

func TestFormatFor(t *testing.T) {
	assert.Equal(t, "bestaudio[ext=m4a]/bestaudio", formatFor(QualityAudio))
	assert.Contains(t, formatFor(Quality480p), "height<=480")
	assert.Equal(t, formatFor(Quality360p), formatFor("bogus"))
}

type fakeBackend struct {
	name     string
	supports platform.Platform
	err      error
	calls    int
}

func (f *fakeBackend) Name() string                      { return f.name }
func (f *fakeBackend) Supports(p platform.Platform) bool { return p == f.supports }

func (f *fakeBackend) Extract(ctx context.Context, job Job, progress ProgressFunc) (*Result, error) {
	f.calls++
	// Leave a stray file behind to check that fallbacks start clean.
	_ = os.WriteFile(filepath.Join(job.Dir, f.name+".mp4"), []byte("x"), 0o644)
	if f.err != nil {
		return nil, f.err
	}
	return &Result{Path: filepath.Join(job.Dir, f.name+".mp4"), Size: 1}, nil
}

func TestRegistryFallback(t *testing.T) {
	first := &fakeBackend{name: "first", supports: platform.TikTok, err: errors.New("api down")}
	second := &fakeBackend{name: "second", supports: platform.TikTok}
	other := &fakeBackend{name: "other", supports: platform.YouTube}

	r := NewRegistry(first, other)
	r.Register(second)

	dir := t.TempDir()
	res, err := r.Extract(context.Background(), Job{Platform: platform.TikTok, Dir: dir}, nil)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "second.mp4"), res.Path)
	assert.Equal(t, 1, first.calls)
	assert.Equal(t, 0, other.calls)
	assert.NoFileExists(t, filepath.Join(dir, "first.mp4"))
}

func TestRegistryErrors(t *testing.T) {
	r := NewRegistry(&fakeBackend{name: "yt", supports: platform.YouTube, err: errors.New("boom")})

	_, err := r.Extract(context.Background(), Job{Platform: platform.Instagram, Dir: t.TempDir()}, nil)
	assert.ErrorIs(t, err, ErrNoBackend)

	_, err = r.Extract(context.Background(), Job{Platform: platform.YouTube, Dir: t.TempDir()}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "yt: boom")
}

func TestRegistryStopsOnCancelledContext(t *testing.T) {
	a := &fakeBackend{name: "a", supports: platform.YouTube, err: context.Canceled}
	b := &fakeBackend{name: "b", supports: platform.YouTube}
	r := NewRegistry(a, b)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := r.Extract(ctx, Job{Platform: platform.YouTube, Dir: t.TempDir()}, nil)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, b.calls)
}

// fakeYtDlp writes a shell script that behaves like yt-dlp for a download.
func fakeYtDlp(t *testing.T, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell script backend")
	}
	path := filepath.Join(t.TempDir(), "yt-dlp")
	script := "#!/bin/sh\n" + body + "\n"
	require.NoError(t, os.WriteFile(path, []byte(script), 0o755))
	return path
}

func TestYtDlpExtract(t *testing.T) {
	bin := fakeYtDlp(t, `
out=""
while [ $# -gt 0 ]; do
  if [ "$1" = "-o" ]; then out="$2"; shift; fi
  shift
done
dir=$(dirname "$out")
echo '{"id":"abc","title":"Sample clip","duration":12.5}'
echo '[download]  50.0% of 2.00KiB at 1.00KiB/s ETA 00:01'
head -c 2048 /dev/zero > "$dir/abc.mp4"
echo '[download] 100% of 2.00KiB in 00:00:02 at 1.00KiB/s'
`)

	y := NewYtDlp(YtDlpOptions{Path: bin})
	dir := t.TempDir()

	var reports [][2]int64
	res, err := y.Extract(context.Background(), Job{
		URL:      "https://youtu.be/abc",
		Platform: platform.YouTube,
		Quality:  Quality360p,
		Dir:      dir,
	}, func(done, total int64) {
		reports = append(reports, [2]int64{done, total})
	})
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(dir, "abc.mp4"), res.Path)
	assert.Equal(t, int64(2048), res.Size)
	assert.Equal(t, "Sample clip", res.Title)
	assert.Equal(t, 12, res.Duration)
	assert.Equal(t, MediaVideo, res.MediaKind)
	require.NotEmpty(t, reports)
	assert.Equal(t, [2]int64{1024, 2048}, reports[0])
	assert.Equal(t, [2]int64{2048, 2048}, reports[len(reports)-1])
}

func TestYtDlpExtractFailure(t *testing.T) {
	bin := fakeYtDlp(t, `echo "ERROR: Video unavailable" >&2; exit 1`)

	y := NewYtDlp(YtDlpOptions{Path: bin})
	_, err := y.Extract(context.Background(), Job{URL: "https://youtu.be/x", Dir: t.TempDir()}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Video unavailable")
}

func TestYtDlpProbeRetries(t *testing.T) {
	counter := filepath.Join(t.TempDir(), "count")
	bin := fakeYtDlp(t, `
n=$(cat "`+counter+`" 2>/dev/null || echo 0)
n=$((n+1))
echo $n > "`+counter+`"
if [ $n -lt 2 ]; then echo "HTTP Error 503" >&2; exit 1; fi
echo '{"id":"abc","title":"Probe","duration":120,"uploader":"chan","formats":[{"format_id":"18","height":360,"vcodec":"avc1","acodec":"mp4a","filesize":1048576}]}'
`)

	y := NewYtDlp(YtDlpOptions{Path: bin, MaxRetries: 3, RetryDelay: 1})
	info, err := y.Probe(context.Background(), "https://youtu.be/abc")
	require.NoError(t, err)

	assert.Equal(t, "Probe", info.Title)
	assert.Equal(t, "chan", info.Uploader)
	assert.Equal(t, 120, info.Duration)
	assert.Equal(t, Estimate{Bytes: MB}, info.Estimates[Quality360p])
	assert.True(t, info.Estimates[QualityAudio].Approximate)

	raw, err := os.ReadFile(counter)
	require.NoError(t, err)
	assert.Equal(t, "2\n", string(raw))
}
