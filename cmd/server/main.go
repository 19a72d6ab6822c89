package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/jonboulle/clockwork"
	"github.com/org/adops/internal/adplatform"
	"github.com/org/adops/internal/api"
	"github.com/org/adops/internal/config"
	"github.com/org/adops/internal/crypto"
	"github.com/org/adops/internal/storage"
	"github.com/org/adops/internal/vault"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	// Configure zerolog
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	// .env is optional; real deployments set env vars directly.
	_ = godotenv.Load()

	cfgFile := "config.yaml"
	if v := os.Getenv("ADOPS_CONFIG"); v != "" {
		cfgFile = v
	}

	cfg, err := config.Load(cfgFile)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	// The cipher is built once from explicit configuration; a malformed key
	// is fatal at boot, never at first request.
	cipher, err := crypto.NewCipher(cfg.TokenEncryptionKey)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize cipher")
	}

	ctx := context.Background()

	var store storage.CredentialStore
	if cfg.DBUrl != "" {
		pg, err := storage.NewPostgresStore(ctx, cfg.DBUrl)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to database")
		}
		if err := storage.MigrateUp(cfg.DBUrl, cfg.MigrationsDir); err != nil {
			log.Fatal().Err(err).Msg("failed to run migrations")
		}
		store = pg
	} else {
		log.Warn().Msg("no db_url configured, using in-memory store; credentials will not survive restart")
		store = storage.NewMemoryStore()
	}
	defer store.Close()

	clock := clockwork.NewRealClock()
	vlt := vault.New(store, cipher, clock)
	platform := adplatform.NewHTTPClient(cfg.AdPlatformBaseURL)

	srv := api.NewServer(store, vlt, platform, clock, api.Config{
		ListenAddr:   cfg.ListenAddr,
		TLSCertFile:  cfg.TLSCertFile,
		TLSKeyFile:   cfg.TLSKeyFile,
		ServiceToken: cfg.ServiceToken,
	})

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
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("shutdown error")
	}
	log.Info().Msg("server stopped")
}
