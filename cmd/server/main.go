package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/org/legacyvault/internal/api"
	"github.com/org/legacyvault/internal/backup"
	"github.com/org/legacyvault/internal/config"
	"github.com/org/legacyvault/internal/mail"
	"github.com/org/legacyvault/internal/objectstore"
	"github.com/org/legacyvault/internal/storage"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	cfgFile := "config.yaml"
	if v := os.Getenv("LEGACY_CONFIG"); v != "" {
		cfgFile = v
	}

	cfg, found, err := config.Load(cfgFile)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	if !found {
		log.Warn().Str("file", cfgFile).Msg("config file not found, using defaults")
	}

	if cfg.LogFormat == "json" {
		log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
	}
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	store, err := openStore(ctx, cfg.Storage)
	if err != nil {
		log.Fatal().Err(err).Str("driver", cfg.Storage.Driver).Msg("failed to open storage")
	}
	defer store.Close()

	var mailer mail.Mailer
	switch cfg.Mail.Driver {
	case "log":
		mailer = &mail.LogMailer{Log: log.Logger.With().Str("component", "mail").Logger()}
	default:
		if cfg.Mail.ResendAPIKey == "" {
			log.Warn().Msg("RESEND_API_KEY is not set; release and backup emails will fail until it is configured")
		}
		mailer = mail.NewResendMailer(cfg.Mail.ResendAPIKey, cfg.Mail.ResendEndpoint, cfg.Mail.FromAddress)
	}

	var archive backup.Archiver
	if cfg.ObjectStore.Endpoint != "" {
		a, err := objectstore.Open(ctx, cfg.ObjectStore)
		if err != nil {
			log.Fatal().Err(err).Str("endpoint", cfg.ObjectStore.Endpoint).Msg("failed to open object store")
		}
		archive = a
		log.Info().Str("bucket", cfg.ObjectStore.Bucket).Msg("backup archive enabled")
	}

	srv := api.NewServer(store, mailer, archive, log.Logger, api.Config{
		ListenAddr:    cfg.ListenAddr,
		TLSCertFile:   cfg.TLSCertFile,
		TLSKeyFile:    cfg.TLSKeyFile,
		KDFIterations: cfg.KDF.Iterations,
		SessionTTL:    cfg.Session.TTL,
	})

	if _, err := store.GetSettings(ctx); err != nil {
		log.Info().Msg("vault not yet initialized - POST /v1/sys/init to set the master password")
	} else {
		log.Info().Msg("vault initialized - POST /v1/sys/unlock to open a session")
	}

	go srv.Release().RefreshActivity(ctx, cfg.ActivityRefreshInterval, srv.Active)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		if err := srv.Start(); err != nil {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	log.Info().Str("addr", cfg.ListenAddr).Msg("server started")
	<-quit

	log.Info().Msg("shutting down...")
	stop()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("shutdown error")
	}
	log.Info().Msg("server stopped")
}

func openStore(ctx context.Context, cfg config.Storage) (storage.Store, error) {
	switch cfg.Driver {
	case "postgres":
		store, err := storage.NewPostgresBackend(ctx, cfg.PostgresURL)
		if err != nil {
			return nil, err
		}
		if err := storage.RunMigrations(cfg.PostgresURL, cfg.MigrationsDir); err != nil {
			store.Close()
			return nil, err
		}
		log.Info().Msg("migrations applied")
		return store, nil
	case "memory":
		log.Warn().Msg("memory storage: nothing survives a restart")
		return storage.NewMemoryStore(), nil
	default:
		return storage.OpenSQLite(ctx, cfg.SQLitePath)
	}
}
