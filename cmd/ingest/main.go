package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/marinewatch/marine/internal/alert"
	"github.com/marinewatch/marine/internal/config"
	"github.com/marinewatch/marine/internal/logger"
	"github.com/marinewatch/marine/internal/match"
	"github.com/marinewatch/marine/internal/media"
	"github.com/marinewatch/marine/internal/notify"
	"github.com/marinewatch/marine/internal/repository"
	"github.com/marinewatch/marine/internal/service"
	"github.com/marinewatch/marine/internal/upload"
)

func main() {
	appLogger := logger.New(&logger.Config{
		Level:       "info",
		Format:      "json",
		ServiceName: "marine-ingest",
	})
	logger.SetDefaultLogger(appLogger)
	defer logger.Sync()

	dir := flag.String("dir", "", "Directory of crawled video files to ingest (defaults to ingest.dir)")
	workers := flag.Int("workers", 0, "Worker pool size (defaults to ingest.workers)")
	configPath := flag.String("config", "", "Path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to load config")
	}

	ingestDir := *dir
	if ingestDir == "" {
		ingestDir = cfg.Ingest.Dir
	}
	poolSize := *workers
	if poolSize <= 0 {
		poolSize = cfg.Ingest.Workers
	}

	appLogger.WithFields(logger.Fields{
		"dir":     ingestDir,
		"workers": poolSize,
	}).Info("Starting crawled content ingestion")

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
	extractor := &media.FFmpegHashExtractor{
		FFmpegPath: cfg.Tools.FFmpegPath,
		HasherPath: cfg.Tools.HasherPath,
		FramesDir:  cfg.Upload.FramesDir,
		FPS:        cfg.Fingerprint.FPS,
		Timeout:    toolTimeout,
	}

	var alerts alert.Publisher = alert.NoopPublisher{}
	if cfg.Alerts.Enabled {
		kafkaPublisher := alert.NewKafkaPublisher(cfg.Alerts.Brokers, cfg.Alerts.Topic)
		defer kafkaPublisher.Close()
		alerts = kafkaPublisher
	}

	analysisService := service.NewAnalysisService(
		chunkStore,
		media.NewReassembler(&media.FFmpegConcatenator{Path: cfg.Tools.FFmpegPath, Timeout: toolTimeout}),
		extractor,
		media.NoopAudioFingerprinter{},
		corpusRepo,
		analysisRepo,
		match.NewEngine(corpusRepo, cfg.Match.Threshold),
		notify.NewHub(cfg.Notify.SubscriberBuffer),
		alerts,
		nil,
		service.Options{
			VisualDim:    cfg.Fingerprint.VisualDim,
			AssembledDir: cfg.Upload.AssembledDir,
		},
	)

	ingestService := service.NewIngestService(analysisService, poolSize)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit
		appLogger.Info("Interrupt received, finishing in-flight work...")
		cancel()
	}()

	stats, err := ingestService.IngestDir(ctx, ingestDir)
	if err != nil {
		appLogger.WithError(err).Fatal("Ingestion failed")
	}

	appLogger.WithFields(logger.Fields{
		"scanned": stats.Scanned,
		"flagged": stats.Flagged,
		"failed":  stats.Failed,
	}).Info("Ingestion finished")
}
