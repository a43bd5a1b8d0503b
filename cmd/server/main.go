package main

import (
	"context"
	"database/sql"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"mchat/internal/config"
	"mchat/internal/httpserver"
	"mchat/internal/mail"
	"mchat/internal/realtime"
	"mchat/internal/security"
	"mchat/internal/service"
	"mchat/internal/store/postgres"
	"mchat/internal/store/sqlite"
)

func main() {
	log := zerolog.New(os.Stderr).With().Timestamp().Logger()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	if level, err := zerolog.ParseLevel(cfg.LogLevel); err == nil {
		log = log.Level(level)
	}

	var db *sql.DB
	switch cfg.DBDriver {
	case "sqlite":
		db, err = sqlite.Open(cfg.SQLitePath)
		if err == nil {
			err = sqlite.Migrate(db)
		}
	default:
		db, err = postgres.Open(cfg.DatabaseURL)
		if err == nil {
			err = postgres.Migrate(db)
		}
	}
	if err != nil {
		log.Fatal().Err(err).Str("driver", cfg.DBDriver).Msg("failed to initialize database")
	}
	defer db.Close()

	tokenSvc := security.NewTokenService(cfg.JWTSecret, time.Duration(cfg.AccessTokenMinutes)*time.Minute)
	passwordHasher := security.NewPasswordHasher(0)
	encryptor, err := security.NewEncryptor([]byte(cfg.EncryptKey), cfg.LegacyFernetKeys)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize encryptor")
	}

	var publisher realtime.Publisher = realtime.NopPublisher{}
	if cfg.PusherConfigured() {
		publisher = realtime.NewPusherPublisher(cfg.PusherAppID, cfg.PusherKey, cfg.PusherSecret, cfg.PusherCluster)
		log.Info().Str("cluster", cfg.PusherCluster).Msg("realtime publishing enabled")
	} else {
		log.Warn().Msg("realtime credentials missing, events will be dropped")
	}

	var mailer service.ResetMailer
	mailer, err = mail.NewMailer(cfg.MailHost, cfg.MailPort, cfg.MailUsername, cfg.MailPassword, cfg.MailFrom)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize mailer")
	}

	router := httpserver.NewRouter(cfg, db, log, tokenSvc, passwordHasher, encryptor, publisher, mailer)

	srv := &http.Server{
		Addr:         cfg.HTTPAddr(),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().Str("addr", cfg.HTTPAddr()).Msg("starting server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	log.Info().Msg("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("graceful shutdown failed")
	}
}
