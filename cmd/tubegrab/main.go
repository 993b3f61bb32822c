package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lrstanley/go-ytdlp"
	log "github.com/sirupsen/logrus"

	"github.com/artur/tubegrab/internal/api"
	"github.com/artur/tubegrab/internal/bot"
	"github.com/artur/tubegrab/internal/config"
	"github.com/artur/tubegrab/internal/database"
	"github.com/artur/tubegrab/internal/database/repository"
	"github.com/artur/tubegrab/internal/downloader"
	"github.com/artur/tubegrab/internal/handler"
	"github.com/artur/tubegrab/internal/library"
	"github.com/artur/tubegrab/internal/logging"
	"github.com/artur/tubegrab/internal/progress"
)

const shutdownTimeout = 15 * time.Second

func main() {
	args := config.ParseArgs()

	loader, err := config.NewLoader(args.Config)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	loader.ApplyArgs(args)

	cfg, err := loader.Config()
	if err != nil {
		log.Fatalf("Invalid config: %v", err)
	}

	if err := logging.Setup(cfg.Log); err != nil {
		log.Fatalf("Failed to set up logging: %v", err)
	}
	loader.Watch(func(c *config.Config) {
		if err := logging.SetLevel(c.Log.Level); err != nil {
			log.WithError(err).Warn("Keeping previous log level")
		}
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if args.InstallYtdlp && cfg.Download.Engine == config.EngineYtdlp && cfg.Download.YtdlpPath == "" {
		resolved, err := ytdlp.Install(ctx, nil)
		if err != nil {
			log.Fatalf("Failed to install yt-dlp: %v", err)
		}
		log.WithFields(log.Fields{
			"executable": resolved.Executable,
			"version":    resolved.Version,
		}).Info("yt-dlp ready")
		cfg.Download.YtdlpPath = resolved.Executable
	}

	db, err := database.New(cfg.Database.Path)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	if err := db.Migrate(); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}

	downloadRepo := repository.NewDownloadRepository(db.DB)
	statsRepo := repository.NewStatsRepository(db.DB)

	lib, err := library.New(cfg.Download.Folder, cfg.Cache.TreeTTL)
	if err != nil {
		log.Fatalf("Failed to prepare download folder: %v", err)
	}

	svc := downloader.NewService(downloader.Options{
		Engine:        newEngine(cfg.Download),
		Tracker:       progress.NewTracker(),
		Library:       lib,
		Recorder:      downloadRepo,
		MaxParallel:   cfg.Download.MaxParallel,
		DefaultFolder: cfg.Download.DefaultFolder,
	})

	if cfg.TelegramEnabled() {
		b, err := bot.New(cfg.Telegram.Token, cfg.Telegram.NotifyChatID)
		if err != nil {
			log.Fatalf("Failed to create bot: %v", err)
		}
		b.RegisterHandler(handler.NewStartHandler(cfg.Telegram.Folder))
		b.RegisterHandler(handler.NewStatusHandler(svc.Tracker()))
		b.RegisterHandler(handler.NewDownloadHandler(svc, cfg.Telegram.Folder, cfg.Telegram.AllowedUsers))
		svc.SetNotifier(b)

		b.SendStartupNotification(svc.EngineName())
		go b.Run(ctx)
	}

	srv, err := api.NewServer(api.Options{
		Service:   svc,
		Library:   lib,
		History:   downloadRepo,
		Stats:     statsRepo,
		RateLimit: cfg.RateLimit.RPS,
		Burst:     cfg.RateLimit.Burst,
	})
	if err != nil {
		log.Fatalf("Failed to create HTTP server: %v", err)
	}

	httpServer := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           srv.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.WithFields(log.Fields{
			"addr":   cfg.Server.Addr,
			"engine": svc.EngineName(),
			"folder": lib.Root(),
		}).Info("Listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("HTTP server failed: %v", err)
		}
	}()

	<-ctx.Done()
	log.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("HTTP shutdown incomplete")
	}
	if err := svc.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("Some downloads did not stop in time")
	}
}

func newEngine(cfg config.DownloadConfig) downloader.Downloader {
	if cfg.Engine == config.EngineNative {
		return downloader.NewYouTubeDownloader()
	}
	return downloader.NewYtdlpDownloader(cfg.YtdlpPath, cfg.Format, cfg.OutputTemplate)
}
