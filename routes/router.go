package routes

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/cppla/imgdrop/config"
	"github.com/cppla/imgdrop/controllers"
	"github.com/cppla/imgdrop/middleware"
	"github.com/cppla/imgdrop/services"
	"github.com/cppla/imgdrop/utils"
)

// Deps are the collaborators the router hands to controllers.
type Deps struct {
	Uploads *services.UploadService
	Totals  controllers.TotalsReader
}

// SetupRouter wires routes, middlewares, and controllers.
func SetupRouter(cfg config.AppConfig, deps Deps) *gin.Engine {
	switch strings.ToLower(cfg.GinMode) {
	case "debug":
		gin.SetMode(gin.DebugMode)
	case "test":
		gin.SetMode(gin.TestMode)
	default:
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	// access log goes to its own rolling file
	gl, err := utils.NewRollingFileLogger(cfg.GinPath, cfg.LogLevel, cfg.LogMaxSizeMB, cfg.LogMaxBackups, cfg.LogMaxAgeDays, cfg.LogCompress)
	if err == nil {
		r.Use(utils.Ginzap(gl, time.RFC3339, true))
		r.Use(utils.RecoveryWithZap(gl, false))
	} else {
		utils.Logger.Sugar().Warnf("gin logger unavailable, falling back to default recovery: %v", err)
		r.Use(gin.Recovery())
	}
	r.Use(middleware.RequestMetrics())

	corsCfg := cors.Config{
		AllowMethods:  []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowHeaders:  []string{"Content-Type", utils.RequestIDHeader},
		ExposeHeaders: []string{"Content-Length", utils.RequestIDHeader},
		MaxAge:        12 * time.Hour,
	}
	if len(cfg.AllowedOrigins) == 1 && cfg.AllowedOrigins[0] == "*" {
		corsCfg.AllowAllOrigins = true
	} else {
		corsCfg.AllowOrigins = cfg.AllowedOrigins
	}
	r.Use(cors.New(corsCfg))

	r.GET("/health", func(ctx *gin.Context) {
		utils.Success(ctx, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	images := controllers.NewImageController(deps.Uploads, cfg.MaxUploadBytes)
	stats := controllers.NewStatsController(deps.Totals)
	limits := controllers.NewConfigController(cfg)
	throttle := middleware.NewUploadThrottle(cfg.UploadBurstPerMinute)

	// short public links
	r.GET("/i/:slug", images.Show)
	r.GET("/d/:token", images.Delete)

	api := r.Group("/api")
	api.POST("/images", throttle.Handler(), images.Upload)
	api.GET("/images/:slug", images.Info)
	api.DELETE("/images/:token", images.Delete)
	api.GET("/stats", stats.GetStats)
	api.GET("/config/limits", limits.GetLimits)

	r.NoRoute(func(ctx *gin.Context) {
		if strings.HasPrefix(ctx.Request.URL.Path, "/api/") {
			utils.Error(ctx, http.StatusNotFound, utils.CodeNotFound, "api route not found")
			return
		}
		utils.Error(ctx, http.StatusNotFound, utils.CodeNotFound, "not found")
	})

	return r
}
