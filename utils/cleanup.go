package utils

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// CleanupSchedule runs the housekeeping job every day at 1 AM
const CleanupSchedule = "0 1 * * *"

// CleanupExpiredFiles removes regular files in dirPath last modified more than ttl ago
// and returns how many were deleted. A missing directory is not an error.
func CleanupExpiredFiles(dirPath string, ttl time.Duration, now time.Time) (int, error) {
	entries, err := os.ReadDir(dirPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0, nil
		}
		return 0, fmt.Errorf("error reading directory %s: %w", dirPath, err)
	}

	var errs []error
	removed := 0
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if now.Sub(info.ModTime()) <= ttl {
			continue
		}
		if err := os.Remove(filepath.Join(dirPath, entry.Name())); err != nil {
			errs = append(errs, fmt.Errorf("error deleting expired file: %w", err))
			continue
		}
		removed++
	}
	return removed, errors.Join(errs...)
}

// StartScheduledCleanup registers the daily cleanup of the given directories and
// starts the scheduler. The caller stops it on shutdown.
func StartScheduledCleanup(logger *zap.Logger, ttl time.Duration, dirs ...string) (*cron.Cron, error) {
	c := cron.New()

	_, err := c.AddFunc(CleanupSchedule, func() {
		for _, dir := range dirs {
			removed, err := CleanupExpiredFiles(dir, ttl, time.Now())
			if err != nil {
				logger.Error("Scheduled cleanup failed", zap.String("dir", dir), zap.Error(err))
				continue
			}
			logger.Info("Scheduled cleanup finished", zap.String("dir", dir), zap.Int("removed", removed))
		}
	})
	if err != nil {
		return nil, fmt.Errorf("schedule cleanup: %w", err)
	}

	c.Start()
	return c, nil
}
