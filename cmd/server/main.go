package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/clipstash/clipstash-backend/internal/conf"
	"github.com/clipstash/clipstash-backend/internal/data"
	mediabiz "github.com/clipstash/clipstash-backend/internal/media/biz"
	mediacache "github.com/clipstash/clipstash-backend/internal/media/cache"
	mediacleanup "github.com/clipstash/clipstash-backend/internal/media/cleanup"
	mediadata "github.com/clipstash/clipstash-backend/internal/media/data"
	mediaqueue "github.com/clipstash/clipstash-backend/internal/media/queue"
	mediaservice "github.com/clipstash/clipstash-backend/internal/media/service"
	"github.com/clipstash/clipstash-backend/internal/pkg/logger"
	"github.com/clipstash/clipstash-backend/internal/pkg/workerpool"
	"github.com/clipstash/clipstash-backend/internal/server"
	"go.uber.org/zap"
)

var (
	configFile = flag.String("config", "config.yaml", "config file path")
)

func main() {
	flag.Parse()

	// Load configuration
	config, err := conf.LoadConfig(*configFile)
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	// Initialize logger with config
	logConfig := &logger.Config{
		Level:            config.Log.Level,
		Format:           config.Log.Format,
		Output:           config.Log.Output,
		EnableCaller:     config.Log.EnableCaller,
		EnableStacktrace: config.Log.EnableStacktrace,
		File: logger.FileConfig{
			Filename:   config.Log.File.Filename,
			MaxSize:    config.Log.File.MaxSize,
			MaxAge:     config.Log.File.MaxAge,
			MaxBackups: config.Log.File.MaxBackups,
			Compress:   config.Log.File.Compress,
		},
	}

	log, err := logger.New(logConfig)
	if err != nil {
		panic("failed to initialize logger: " + err.Error())
	}
	defer log.Sync()

	// Initialize global logger
	if err := logger.InitGlobal(logConfig); err != nil {
		log.Fatal("failed to initialize global logger", zap.Error(err))
	}

	log.Info("config loaded successfully")

	// Initialize data layer
	d, cleanup, err := data.NewData(config, log)
	if err != nil {
		log.Fatal("failed to initialize data layer", zap.Error(err))
	}
	defer cleanup()

	// Initialize media infrastructure
	mediaRepo := mediadata.NewMediaRepo(d.DB, log)
	blobStore := mediadata.NewBlobStore(d.MinIO, config.MinIO.Bucket, config.MinIO.PublicBaseURL, log)
	groupCache := mediacache.NewRedisCache(d.Redis, &mediacache.Config{
		ObjectTTL:    config.Cache.ObjectTTL,
		ListTTL:      config.Cache.ListTTL,
		PendingTTL:   config.Cache.PendingTTL,
		ExistenceTTL: config.Cache.ExistenceTTL,
	}, log)

	// Initialize reconciler and completion worker
	reconciler := mediabiz.NewReconciler(mediaRepo, blobStore, groupCache, log)

	reconcilePool, err := workerpool.New(&workerpool.Config{
		Workers: config.Queue.Workers,
	}, log.GetZapLogger())
	if err != nil {
		log.Fatal("failed to create reconcile worker pool", zap.Error(err))
	}
	defer reconcilePool.Shutdown()

	completionWorker := mediaqueue.NewWorker(
		d.Redis,
		reconciler,
		reconcilePool,
		log.GetZapLogger(),
		config.Queue.PollInterval,
	)

	if err := completionWorker.Start(context.Background()); err != nil {
		log.Fatal("failed to start completion worker", zap.Error(err))
	}
	defer completionWorker.Stop()

	// Initialize use case and service
	mediaUseCase := mediabiz.NewMediaUseCase(
		mediaRepo,
		blobStore,
		groupCache,
		completionWorker,
		config.Cache.PendingTTL,
		log,
	)

	mediaService := mediaservice.NewMediaService(
		mediaUseCase,
		groupCache,
		completionWorker,
		log.GetZapLogger(),
	)

	// Start periodic maintenance job
	cleanupJob := mediacleanup.NewJob(groupCache, completionWorker, config.Cleanup.Interval, log)
	cleanupJob.Start(context.Background())
	defer cleanupJob.Stop()

	// Initialize HTTP server
	httpServer := server.NewHTTPServer(config, log.GetZapLogger(), mediaService)

	go func() {
		if err := httpServer.Start(); err != nil {
			log.Fatal("failed to start HTTP server", zap.Error(err))
		}
	}()

	log.Info("server started successfully")

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server...")

	// Graceful shutdown with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := httpServer.Stop(ctx); err != nil {
		log.Error("HTTP server forced to shutdown", zap.Error(err))
	}

	log.Info("server exited")
}
