package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/zcy-charity/jar-service/internal/app"
	syncsvc "github.com/zcy-charity/jar-service/internal/app/services/sync"
	"github.com/zcy-charity/jar-service/internal/app/storage/postgres"
	"github.com/zcy-charity/jar-service/internal/blobstore"
	"github.com/zcy-charity/jar-service/internal/config"
	"github.com/zcy-charity/jar-service/internal/database"
	"github.com/zcy-charity/jar-service/pkg/logger"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		logger.NewDefault("server").WithError(err).Error("failed to load configuration")
		os.Exit(1)
	}
	log := logger.New(cfg.Logging)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var stores app.Stores
	if cfg.Database.DSN != "" {
		db, err := database.Open(ctx, cfg.Database)
		if err != nil {
			log.WithError(err).Error("failed to connect to database")
			os.Exit(1)
		}
		defer db.Close()
		if err := database.Migrate(db); err != nil {
			log.WithError(err).Error("failed to apply migrations")
			os.Exit(1)
		}
		store := postgres.New(db)
		stores = app.Stores{Jars: store, Tags: store, Volunteers: store}
	} else {
		log.Warn("no database configured, using in-memory storage")
	}

	var blobs blobstore.Store
	if cfg.Blob.Bucket != "" {
		s3Store, err := blobstore.NewS3(ctx, cfg.Blob)
		if err != nil {
			log.WithError(err).Error("failed to initialise blob storage")
			os.Exit(1)
		}
		blobs = s3Store
	} else {
		log.Warn("no blob bucket configured, using in-memory blob storage")
	}

	var fetcher syncsvc.Fetcher
	if cfg.Provider.URL != "" {
		fetcher = syncsvc.NewHTTPFetcher(cfg.Provider.URL, cfg.Provider.Token, nil)
	} else {
		log.Warn("no provider configured, sync cycles will fail every fetch")
	}

	application := app.New(cfg, stores, blobs, fetcher, log)
	if err := application.Start(ctx); err != nil {
		log.WithError(err).Error("failed to start application")
		os.Exit(1)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	log.WithField("signal", sig.String()).Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()
	if err := application.Stop(shutdownCtx); err != nil {
		log.WithError(err).Error("shutdown failed")
		os.Exit(1)
	}
}
