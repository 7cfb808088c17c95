package utils

import (
	"context"
	"os"
	"path/filepath"

	"github.com/pavelc4/aether-fetch/pkg/logger"
)

// WorkDirPattern matches the per-task directories created under the
// download root.
const WorkDirPattern = "aether-*"

// CleanupStaleDirs removes task directories left behind by a previous
// process. Nothing survives a restart, so every match is stale.
func CleanupStaleDirs(ctx context.Context, root string) int {
	if root == "" {
		root = os.TempDir()
	}

	matches, err := filepath.Glob(filepath.Join(root, WorkDirPattern))
	if err != nil {
		logger.Warn("Invalid cleanup pattern", "root", root, "error", err)
		return 0
	}

	cleaned := 0
	for _, path := range matches {
		if ctx.Err() != nil {
			logger.Warn("Cleanup cancelled", "cleaned", cleaned)
			return cleaned
		}
		if err := os.RemoveAll(path); err != nil {
			logger.Warn("Failed to remove stale directory", "path", path, "error", err)
			continue
		}
		cleaned++
	}

	if cleaned > 0 {
		logger.Info("Removed stale work directories", "count", cleaned, "root", root)
	}
	return cleaned
}
