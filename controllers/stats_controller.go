package controllers

import (
	"context"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/gin-gonic/gin"

	"github.com/cppla/imgdrop/repositories"
	"github.com/cppla/imgdrop/utils"
)

// TotalsReader aggregates upload counters.
type TotalsReader interface {
	Totals(ctx context.Context, now time.Time) repositories.Totals
}

// StatsController provides public counters over the visible uploads.
type StatsController struct {
	totals TotalsReader
}

// NewStatsController creates a new StatsController instance.
func NewStatsController(totals TotalsReader) *StatsController {
	return &StatsController{totals: totals}
}

// GetStats returns aggregate statistics. Individual counters fall back to 0.
func (s *StatsController) GetStats(ctx *gin.Context) {
	t := s.totals.Totals(ctx.Request.Context(), time.Now())
	utils.Success(ctx, gin.H{
		"upload_count":       t.Uploads,
		"upload_count_today": t.UploadsToday,
		"stored_bytes":       t.Bytes,
		"stored_human":       humanize.IBytes(uint64(t.Bytes)),
		"view_count":         t.Views,
	})
}
