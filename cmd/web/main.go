package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"media-ingest-server/internal"
	"media-ingest-server/internal/storage"
)

// To be set via ldflags
var (
	Version   = "local"
	BuildTime = "unknown"
)

func newStorage(ctx context.Context, cfg internal.StorageConfig) (storage.Storage, error) {
	switch cfg.Type {
	case "local":
		return storage.NewLocalStorage(cfg.Local.BaseDir, cfg.Local.PublicUrl)
	case "s3":
		return storage.NewS3Storage(ctx, storage.S3Options{
			Region:          cfg.S3.Region,
			Endpoint:        cfg.S3.Endpoint,
			AccessKeyID:     cfg.S3.AccessKeyId,
			SecretAccessKey: cfg.S3.SecretAccessKey,
			Bucket:          cfg.S3.Bucket,
			PublicURL:       cfg.S3.PublicUrl,
			UsePathStyle:    cfg.S3.UsePathStyle,
		})
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Type)
	}
}

func main() {
	if err := os.MkdirAll("tmp", 0755); err != nil {
		slog.Error("failed to create log directory", "func", "main", "path", "tmp", "err", err)
	}

	timestamp := time.Now().Format("2006-01-02_15-04-05")
	fileName := fmt.Sprintf("%s-server.log", timestamp)
	filePath := filepath.Join("tmp", fileName)

	logFile, err := os.OpenFile(filePath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0755)
	if err != nil {
		slog.Error("unable to open log file", "func", "main", "path", filePath, "err", err)
	}
	defer logFile.Close()

	internal.SetupLogging(logFile)

	slog.Info("server starting up", "version", Version, "build_time", BuildTime)

	config, err := internal.GetConfig()
	if err != nil {
		slog.Error("unable to read in config", "func", "main", "err", err)
		os.Exit(1)
	}

	db, err := internal.InitDB(config.Database.Path, config.Database)
	if err != nil {
		slog.Error("unable to open media database", "func", "main", "path", config.Database.Path, "err", err)
		os.Exit(1)
	}
	defer db.Close()

	// The backend is selected exactly once per process; everything past this
	// point only sees the Storage interface.
	store, err := newStorage(context.Background(), config.Storage)
	if err != nil {
		slog.Error("unable to initialize storage backend", "func", "main", "backend", config.Storage.Type, "err", err)
		os.Exit(1)
	}

	app := internal.NewApp(db, store, config.Upload)
	app.Version = Version
	app.BuildTime = BuildTime

	router := app.Routes()

	// With the local backend the server itself serves the stored bytes so
	// the returned URLs resolve.
	if local, ok := store.(*storage.LocalStorage); ok {
		fileServer := http.StripPrefix("/files/", http.FileServer(http.Dir(local.BaseDir)))
		router.Get("/files/*", fileServer.ServeHTTP)
	}

	slog.Info("media server listening", "func", "main", "addr", config.ListenAddr, "backend", config.Storage.Type)
	if err := http.ListenAndServe(config.ListenAddr, router); err != nil {
		slog.Error("unable to start media server", "func", "main", "err", err)
		os.Exit(1)
	}
}
