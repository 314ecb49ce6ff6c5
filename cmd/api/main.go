package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/marinewatch/marine/internal/alert"
	"github.com/marinewatch/marine/internal/api"
	"github.com/marinewatch/marine/internal/api/middleware"
	"github.com/marinewatch/marine/internal/config"
	"github.com/marinewatch/marine/internal/logger"
	"github.com/marinewatch/marine/internal/match"
	"github.com/marinewatch/marine/internal/media"
	"github.com/marinewatch/marine/internal/notify"
	"github.com/marinewatch/marine/internal/repository"
	"github.com/marinewatch/marine/internal/service"
	"github.com/marinewatch/marine/internal/storage"
	"github.com/marinewatch/marine/internal/upload"
)

func main() {
	// Support CONFIG_PATH environment variable for production deployments
	configPath := os.Getenv("CONFIG_PATH")
	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	appLogger := logger.New(&logger.Config{
		Level:       cfg.Log.Level,
		Format:      cfg.Log.Format,
		ServiceName: "marine-api",
		Environment: cfg.Log.Environment,
		LogFile:     cfg.Log.File,
	})
	logger.SetDefaultLogger(appLogger)
	defer logger.Sync()

	db, err := repository.InitDB(&cfg.Database)
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to initialize database")
	}

	corpusRepo := repository.NewCorpusRepository(db)
	analysisRepo := repository.NewAnalysisRepository(db)

	chunkStore, err := upload.NewStore(cfg.Upload.ChunksDir)
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to initialize chunk store")
	}

	toolTimeout := time.Duration(cfg.Tools.TimeoutSeconds) * time.Second
	reassembler := media.NewReassembler(&media.FFmpegConcatenator{
		Path:    cfg.Tools.FFmpegPath,
		Timeout: toolTimeout,
	})
	extractor := &media.FFmpegHashExtractor{
		FFmpegPath: cfg.Tools.FFmpegPath,
		HasherPath: cfg.Tools.HasherPath,
		FramesDir:  cfg.Upload.FramesDir,
		FPS:        cfg.Fingerprint.FPS,
		Timeout:    toolTimeout,
	}

	var audio media.AudioFingerprinter = media.NoopAudioFingerprinter{}
	if cfg.Audio.Enabled {
		audio = media.NewRemoteAudioFingerprinter(
			cfg.Audio.BaseURL,
			cfg.Audio.APIKey,
			cfg.Fingerprint.AudioDim,
			time.Duration(cfg.Audio.TimeoutSeconds)*time.Second,
		)
		appLogger.Info("Audio fingerprinting enabled")
	}

	var alerts alert.Publisher = alert.NoopPublisher{}
	if cfg.Alerts.Enabled {
		kafkaPublisher := alert.NewKafkaPublisher(cfg.Alerts.Brokers, cfg.Alerts.Topic)
		defer kafkaPublisher.Close()
		alerts = kafkaPublisher
		appLogger.WithField("topic", cfg.Alerts.Topic).Info("Piracy alerts enabled")
	}

	var archive storage.ObjectStorage
	if cfg.Storage.Enabled {
		archive, err = storage.NewStorage(&storage.S3Config{
			Type:      storage.StorageType(cfg.Storage.Type),
			Endpoint:  cfg.Storage.Endpoint,
			AccessKey: cfg.Storage.AccessKey,
			SecretKey: cfg.Storage.SecretKey,
			UseSSL:    cfg.Storage.UseSSL,
			Bucket:    cfg.Storage.Bucket,
			Region:    cfg.Storage.Region,
			PublicURL: cfg.Storage.PublicURL,
		})
		if err != nil {
			appLogger.WithError(err).Fatal("Failed to initialize artifact archive")
		}
		if s3, ok := archive.(*storage.S3Storage); ok {
			if err := s3.EnsureBucket(context.Background()); err != nil {
				appLogger.WithError(err).Fatal("Failed to ensure archive bucket")
			}
		}
		appLogger.WithField("bucket", cfg.Storage.Bucket).Info("Artifact archiving enabled")
	}

	hub := notify.NewHub(cfg.Notify.SubscriberBuffer)
	engine := match.NewEngine(corpusRepo, cfg.Match.Threshold)

	analysisService := service.NewAnalysisService(
		chunkStore,
		reassembler,
		extractor,
		audio,
		corpusRepo,
		analysisRepo,
		engine,
		hub,
		alerts,
		archive,
		service.Options{
			VisualDim:    cfg.Fingerprint.VisualDim,
			AssembledDir: cfg.Upload.AssembledDir,
		},
	)

	router := api.SetupRouter(analysisService, hub, api.RouterConfig{
		Mode: cfg.Server.Mode,
		CORS: middleware.CORSConfig{
			AllowedOrigins:  cfg.Server.CORS.AllowedOrigins,
			AllowAllOrigins: cfg.Server.CORS.AllowAllOrigins,
		},
		KeepaliveSeconds: cfg.Notify.KeepaliveSeconds,
	})

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

	go func() {
		appLogger.WithFields(logger.Fields{
			"port": cfg.Server.Port,
			"mode": cfg.Server.Mode,
		}).Info("Starting API server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			appLogger.WithError(err).Fatal("Failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	appLogger.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		appLogger.WithError(err).Fatal("Server forced to shutdown")
	}

	appLogger.Info("Server exited")
}
