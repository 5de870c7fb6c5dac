package utils

import (
	"context"
	"errors"
	"strconv"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
)

func newTestWindow(t *testing.T, limit int) (*UploadWindow, redismock.ClientMock, time.Time) {
	t.Helper()
	client, mock := redismock.NewClientMock()
	now := time.Date(2026, 10, 16, 12, 0, 0, 0, time.UTC)
	w := NewUploadWindow(client, limit, time.Hour)
	w.now = func() time.Time { return now }
	w.member = func() string { return "m1" }
	return w, mock, now
}

func expectReserve(mock redismock.ClientMock, key, member string, now time.Time, card int64) {
	mock.ExpectTxPipeline()
	mock.ExpectZRemRangeByScore(key, "-inf", strconv.FormatInt(now.Add(-time.Hour).UnixMilli(), 10)).SetVal(0)
	mock.ExpectZAdd(key, redis.Z{Score: float64(now.UnixMilli()), Member: member}).SetVal(1)
	mock.ExpectZCard(key).SetVal(card)
	mock.ExpectExpire(key, time.Hour).SetVal(true)
	mock.ExpectTxPipelineExec()
}

func TestUploadWindow_ReserveWithinLimit(t *testing.T) {
	w, mock, now := newTestWindow(t, 20)
	member := strconv.FormatInt(now.UnixNano(), 10) + "-m1"
	expectReserve(mock, "upload:window:1.2.3.4", member, now, 20)

	release, ok := w.Reserve(context.Background(), "1.2.3.4")

	assert.True(t, ok)
	mock.ExpectZRem("upload:window:1.2.3.4", member).SetVal(1)
	release()
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUploadWindow_ReserveOverLimitReleasesSlot(t *testing.T) {
	w, mock, now := newTestWindow(t, 20)
	member := strconv.FormatInt(now.UnixNano(), 10) + "-m1"
	expectReserve(mock, "upload:window:1.2.3.4", member, now, 21)
	mock.ExpectZRem("upload:window:1.2.3.4", member).SetVal(1)

	_, ok := w.Reserve(context.Background(), "1.2.3.4")

	assert.False(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUploadWindow_FailsOpen(t *testing.T) {
	w, mock, now := newTestWindow(t, 20)
	cutoff := strconv.FormatInt(now.Add(-time.Hour).UnixMilli(), 10)
	mock.ExpectTxPipeline()
	mock.ExpectZRemRangeByScore("upload:window:1.2.3.4", "-inf", cutoff).SetErr(errors.New("connection refused"))

	release, ok := w.Reserve(context.Background(), "1.2.3.4")

	assert.True(t, ok)
	assert.NotPanics(t, release)
}

func TestUploadWindow_NilIsPermissive(t *testing.T) {
	var w *UploadWindow
	release, ok := w.Reserve(context.Background(), "1.2.3.4")
	assert.True(t, ok)
	assert.NotPanics(t, release)
}
