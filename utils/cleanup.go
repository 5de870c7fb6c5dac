package utils

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// ReapFunc removes one batch of expired uploads and reports how many were removed.
type ReapFunc func(ctx context.Context) (int, error)

// StartUploadCleaner launches a background goroutine that periodically reaps
// expired uploads until ctx is cancelled. It is best-effort and logs failures.
// A non-positive interval disables the cleaner.
func StartUploadCleaner(ctx context.Context, interval time.Duration, reap ReapFunc) {
	if interval <= 0 || reap == nil {
		Logger.Info("upload cleaner disabled")
		return
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			// wait first to avoid racing the first uploads at startup
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
			runCleanerPass(ctx, reap)
		}
	}()
}

func runCleanerPass(ctx context.Context, reap ReapFunc) {
	removed, err := reap(ctx)
	if err != nil {
		Logger.Warn("upload cleaner pass failed", zap.Error(err), zap.Int("removed", removed))
		return
	}
	if removed > 0 {
		Logger.Info("upload cleaner removed expired uploads", zap.Int("removed", removed))
	}
}
