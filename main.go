package main

import (
	"context"
	"time"

	"github.com/cppla/imgdrop/config"
	"github.com/cppla/imgdrop/models"
	"github.com/cppla/imgdrop/repositories"
	"github.com/cppla/imgdrop/routes"
	"github.com/cppla/imgdrop/services"
	"github.com/cppla/imgdrop/storage"
	"github.com/cppla/imgdrop/utils"
)

func main() {
	cfg := config.Load()

	// Initialize logger early
	if err := utils.InitLogger(cfg); err != nil {
		panic(err)
	}
	defer utils.Logger.Sync()

	db, err := config.InitDatabase(cfg, &models.Upload{})
	if err != nil {
		utils.Sugar.Fatalf("database init failed: %v", err)
	}

	placer, err := storage.NewLocalPlacer(cfg.MediaRoot)
	if err != nil {
		utils.Sugar.Fatalf("media root init failed: %v", err)
	}

	repo := repositories.NewUploadRepository(db)
	validator := services.NewValidator(cfg.MaxUploadBytes, cfg.AllowedExt, cfg.AllowedMIME)
	limiter := services.NewLimiter(repo, cfg.MaxFilesPerHour, cfg.MaxBytesPerHour, time.Hour)

	var gate services.AdmissionGate
	if cfg.StrictRateLimit {
		rdb := utils.NewRedis(cfg)
		defer rdb.Close()
		gate = utils.NewUploadWindow(rdb, cfg.MaxFilesPerHour, time.Hour)
		utils.Sugar.Infof("strict upload window enabled (%d files/hour)", cfg.MaxFilesPerHour)
	}

	uploads := services.NewUploadService(repo, placer, validator, limiter, gate, cfg.MediaKind)

	r := routes.SetupRouter(cfg, routes.Deps{Uploads: uploads, Totals: repo})

	// Physical removal of expired uploads; expired rows are already invisible without it
	ctx, cancel := context.WithCancel(context.Background())
	utils.StartUploadCleaner(ctx, cfg.ReapInterval, uploads.Reap)

	srv := utils.GraceServer(":"+cfg.AppPort, r)
	srv.OnShutdown(cancel)
	srv.OnShutdown(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})

	utils.Sugar.Infof("Starting server on port %s (graceful)", cfg.AppPort)
	if err := srv.ListenAndServe(); err != nil {
		utils.Sugar.Fatalf("server stopped with error: %v", err)
	}
}
