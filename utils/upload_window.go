package utils

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func uploadKey(parts ...string) string {
	return "upload:" + strings.Join(parts, ":")
}

// UploadWindow is a per-origin sliding window kept in a Redis sorted set.
// Unlike the metadata-store check it reserves a slot atomically, so concurrent
// uploads from one origin cannot overshoot the count limit.
type UploadWindow struct {
	client *redis.Client
	limit  int
	window time.Duration
	now    func() time.Time
	member func() string
}

// NewUploadWindow allows limit reservations per origin in any trailing window.
func NewUploadWindow(client *redis.Client, limit int, window time.Duration) *UploadWindow {
	return &UploadWindow{
		client: client,
		limit:  limit,
		window: window,
		now:    time.Now,
		member: uuid.NewString,
	}
}

// Reserve takes one slot for ip. It returns false when the window is already full.
// The returned release gives the slot back; it is a no-op when nothing was reserved.
// Redis errors fail open.
func (w *UploadWindow) Reserve(ctx context.Context, ip string) (release func(), ok bool) {
	noop := func() {}
	if w == nil || w.client == nil || w.limit <= 0 {
		return noop, true
	}

	now := w.now()
	key := uploadKey("window", ip)
	member := strconv.FormatInt(now.UnixNano(), 10) + "-" + w.member()
	cutoff := strconv.FormatInt(now.Add(-w.window).UnixMilli(), 10)

	var card *redis.IntCmd
	_, err := w.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZRemRangeByScore(ctx, key, "-inf", cutoff)
		pipe.ZAdd(ctx, key, redis.Z{Score: float64(now.UnixMilli()), Member: member})
		card = pipe.ZCard(ctx, key)
		pipe.Expire(ctx, key, w.window)
		return nil
	})
	if err != nil {
		Logger.Warn("upload window unavailable, failing open", zap.Error(err), zap.String("ip", ip))
		return noop, true
	}

	release = func() {
		rctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
		defer cancel()
		if err := w.client.ZRem(rctx, key, member).Err(); err != nil {
			Logger.Warn("upload window release failed", zap.Error(err), zap.String("ip", ip))
		}
	}
	if card.Val() > int64(w.limit) {
		release()
		return noop, false
	}
	return release, true
}
