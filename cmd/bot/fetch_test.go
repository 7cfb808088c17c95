package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pavelc4/aether-fetch/internal/supervisor"
)

func TestSaveArtifact(t *testing.T) {
	work := t.TempDir()
	path := filepath.Join(work, "abc.mp4")
	require.NoError(t, os.WriteFile(path, []byte("media"), 0o644))

	out := filepath.Join(t.TempDir(), "nested")
	dest, err := saveArtifact(&supervisor.Artifact{Path: path, Title: "A/B clip", Dir: work}, out)
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(out, "A_B clip.mp4"), dest)
	data, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, "media", string(data))
}

func TestVersionCommand(t *testing.T) {
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"version"})

	require.NoError(t, root.Execute())
	assert.Equal(t, "aether dev\n", out.String())
}

func TestFetchRejectsBadQuality(t *testing.T) {
	root := newRootCmd()
	root.SetArgs([]string{"fetch", "https://youtu.be/abc", "--quality", "1080p"})

	err := root.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown quality")
}

func TestExecutePrintsErrors(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want string
	}{
		{
			name: "unknown quality",
			args: []string{"fetch", "https://youtu.be/abc", "--quality", "1080p"},
			want: `Error: unknown quality "1080p"`,
		},
		{
			name: "unsupported link",
			args: []string{"fetch", "ftp://nope"},
			want: "Error: That doesn't look like a valid link.",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("DOWNLOAD_DIR", t.TempDir())
			var stderr bytes.Buffer

			code := execute(context.Background(), tt.args, &stderr)

			assert.Equal(t, 1, code)
			assert.Contains(t, stderr.String(), tt.want)
		})
	}
}

func TestExecuteSuccess(t *testing.T) {
	var stderr bytes.Buffer
	assert.Equal(t, 0, execute(context.Background(), []string{"version"}, &stderr))
	assert.Empty(t, stderr.String())
}
