package catalog

import (
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
)

// Prune removes per-run report directories older than maxAge from a
// local report directory. S3 repositories are expected to use bucket
// lifecycle rules instead.
func Prune(dir string, maxAge time.Duration, logger *zap.Logger) (int, error) {
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}

	cutoff := time.Now().Add(-maxAge)
	removed := 0

	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}

		info, err := entry.Info()
		if err != nil {
			continue
		}

		if info.ModTime().After(cutoff) {
			continue
		}

		path := filepath.Join(dir, entry.Name())
		if err := os.RemoveAll(path); err != nil {
			logger.Warn("failed to prune report directory",
				zap.String("path", path),
				zap.Error(err),
			)
			continue
		}

		removed++
	}

	if removed > 0 {
		logger.Info("pruned old report directories",
			zap.String("dir", dir),
			zap.Int("removed", removed),
		)
	}

	return removed, nil
}
