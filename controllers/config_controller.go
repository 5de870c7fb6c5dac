package controllers

import (
	"github.com/dustin/go-humanize"
	"github.com/gin-gonic/gin"

	"github.com/cppla/imgdrop/config"
	"github.com/cppla/imgdrop/utils"
)

// ConfigController serves the upload limits a client form needs to render.
type ConfigController struct {
	cfg config.AppConfig
}

func NewConfigController(cfg config.AppConfig) *ConfigController { return &ConfigController{cfg: cfg} }

// GetLimits returns size, type, quota and expiry options.
func (c *ConfigController) GetLimits(ctx *gin.Context) {
	utils.Success(ctx, gin.H{
		"max_bytes":          c.cfg.MaxUploadBytes,
		"max_human":          humanize.IBytes(uint64(c.cfg.MaxUploadBytes)),
		"allowed_extensions": c.cfg.AllowedExt,
		"allowed_mime":       c.cfg.AllowedMIME,
		"files_per_hour":     c.cfg.MaxFilesPerHour,
		"bytes_per_hour":     c.cfg.MaxBytesPerHour,
		"expiry_choices":     []string{"keep", "10m", "1h", "1d"},
	})
}
