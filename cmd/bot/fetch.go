package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/pavelc4/aether-fetch/internal/app"
	"github.com/pavelc4/aether-fetch/internal/platform"
	"github.com/pavelc4/aether-fetch/internal/provider"
	"github.com/pavelc4/aether-fetch/internal/supervisor"
	"github.com/pavelc4/aether-fetch/pkg/logger"
	"github.com/pavelc4/aether-fetch/pkg/utils"
)

// Local fetches are accounted to a single pseudo user.
const localUser int64 = 1

func newFetchCmd() *cobra.Command {
	var (
		quality string
		outDir  string
		timeout time.Duration
	)

	cmd := &cobra.Command{
		Use:   "fetch <url>",
		Short: "Download a link locally, without Telegram",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			q, ok := provider.ParseQuality(quality)
			if !ok {
				return fmt.Errorf("unknown quality %q (want 360p, 480p or audio)", quality)
			}

			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			// Only the download cap applies locally.
			cfg.TelegramFileLimit = cfg.MaxFileSize
			if timeout > 0 {
				cfg.DownloadTimeout = timeout
			}

			core := app.NewCore(cfg)
			task := core.Supervisor.Submit(cmd.Context(), localUser, args[0], q)

			bar := progressbar.DefaultBytes(-1, "starting")
			var total int64 = -1
			for snap := range task.Updates() {
				if snap.SizeEstimate > 0 && snap.SizeEstimate != total {
					total = snap.SizeEstimate
					bar.ChangeMax64(total)
				}
				bar.Describe(string(snap.State))
				_ = bar.Set64(snap.BytesTransferred)
			}
			<-task.Done()
			_ = bar.Finish()
			fmt.Fprintln(cmd.ErrOrStderr())

			art, fail := task.Result()
			if fail != nil {
				return errors.New(fail.Message)
			}
			defer func() {
				if err := art.Cleanup(); err != nil {
					logger.Warn("Failed to remove work dir", "dir", art.Dir, "error", err)
				}
			}()

			dest, err := saveArtifact(art, outDir)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s (%s)\n", dest, utils.FormatFileSize(art.SizeBytes))
			return nil
		},
	}

	cmd.Flags().StringVarP(&quality, "quality", "q", string(provider.Quality360p), "360p, 480p or audio")
	cmd.Flags().StringVarP(&outDir, "out", "o", ".", "directory to save into")
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "download timeout (default from DOWNLOAD_TIMEOUT)")
	return cmd
}

// saveArtifact moves the file out of the task's work dir, copying when the
// two are on different filesystems.
func saveArtifact(art *supervisor.Artifact, outDir string) (string, error) {
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return "", err
	}
	name := filepath.Base(art.Path)
	if art.Title != "" {
		name = platform.SanitizeFilename(art.Title, 120) + filepath.Ext(art.Path)
	}
	dest := filepath.Join(outDir, name)

	if err := os.Rename(art.Path, dest); err == nil {
		return dest, nil
	}

	src, err := os.Open(art.Path)
	if err != nil {
		return "", err
	}
	defer src.Close()

	dst, err := os.Create(dest)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		return "", err
	}
	return dest, dst.Close()
}
