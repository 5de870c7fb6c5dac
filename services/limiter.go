package services

import (
	"context"
	"time"

	"github.com/cppla/imgdrop/repositories"
)

// UsageReader reports what an origin uploaded since a point in time.
type UsageReader interface {
	WindowUsage(ctx context.Context, ip string, since time.Time) (repositories.WindowUsage, error)
}

// Limiter is the advisory per-origin sliding window over upload count and bytes.
// It records nothing itself: successful ingests are what the next query counts.
type Limiter struct {
	usage    UsageReader
	maxFiles int
	maxBytes int64
	window   time.Duration
}

// NewLimiter creates a Limiter over the trailing window.
func NewLimiter(usage UsageReader, maxFiles int, maxBytes int64, window time.Duration) *Limiter {
	return &Limiter{usage: usage, maxFiles: maxFiles, maxBytes: maxBytes, window: window}
}

// Check fails when ip already used its file quota, or when incoming more bytes would
// push the window total past the byte quota.
func (l *Limiter) Check(ctx context.Context, ip string, incoming int64, now time.Time) error {
	usage, err := l.usage.WindowUsage(ctx, ip, now.Add(-l.window))
	if err != nil {
		return newUploadError(KindPersistence, "Upload failed.", err)
	}
	if l.maxFiles > 0 && usage.Count >= int64(l.maxFiles) {
		return newUploadError(KindRateLimitCount, "Upload rate limit reached (files/hour). Try again later.", nil)
	}
	if l.maxBytes > 0 && usage.Bytes+incoming > l.maxBytes {
		return newUploadError(KindRateLimitBytes, "Upload rate limit reached (total bytes/hour). Try again later.", nil)
	}
	return nil
}
