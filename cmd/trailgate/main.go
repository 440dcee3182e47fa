package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/jfellner/trailgate/auth"
	"github.com/jfellner/trailgate/config"
	"github.com/jfellner/trailgate/db/sql/postgres"
	"github.com/jfellner/trailgate/httpx"
	"github.com/jfellner/trailgate/notify"
)

func main() {
	log := logrus.New()
	log.SetFormatter(&logrus.JSONFormatter{})

	if err := run(log); err != nil && !errors.Is(err, context.Canceled) {
		log.WithError(err).Fatal("server exited")
	}
}

func run(log *logrus.Logger) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	secret := []byte(cfg.TokenSecret)
	if len(secret) == 0 {
		// Dev mode only; config.Load rejects this combination otherwise.
		generated := make([]byte, 32)
		if _, err := rand.Read(generated); err != nil {
			return err
		}
		secret = []byte(hex.EncodeToString(generated))
		log.Warn("no token secret configured, generated an ephemeral one; tokens will not survive restarts")
	}

	db, err := postgres.Connect(
		postgres.WithDSN(cfg.DatabaseDSN),
		postgres.WithMaxOpenConns(20),
	)
	if err != nil {
		return err
	}
	defer db.Close()

	migrateCtx, cancelMigrate := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancelMigrate()
	if err := postgres.Migrate(migrateCtx, db, postgres.Schema); err != nil {
		return err
	}

	notifier, err := buildNotifier(cfg, log)
	if err != nil {
		return err
	}

	codec, err := auth.NewTokenCodec(secret, auth.WithTokenTTL(cfg.TokenTTL))
	if err != nil {
		return err
	}
	svc, err := auth.NewService(auth.ServiceConfig{
		Store:        postgres.NewPrincipalRepository(db),
		Hasher:       auth.NewSecretHasher(auth.WithHashCost(cfg.HashCost)),
		Codec:        codec,
		Notifier:     notifier,
		ResetTTL:     cfg.ResetTTL,
		ResetURLBase: cfg.ResetURLBase,
	})
	if err != nil {
		return err
	}
	mw, err := auth.NewMiddleware(svc)
	if err != nil {
		return err
	}
	handlers, err := httpx.NewAuthHandlers(svc, mw)
	if err != nil {
		return err
	}

	server := httpx.NewServer(
		httpx.WithAddress(cfg.ListenAddr),
		httpx.WithErrorHandler(httpx.AuthErrorHandler),
	)
	server.RegisterRoutes(func(e *httpx.Echo) {
		httpx.RegisterHealth(e)
		handlers.Register(e)
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.WithField("addr", cfg.ListenAddr).Info("server listening")
	return server.Start(ctx)
}

func buildNotifier(cfg config.Config, log *logrus.Logger) (auth.ResetNotifier, error) {
	if cfg.WebhookURL != "" {
		return notify.NewWebhookNotifier(cfg.WebhookURL, cfg.WebhookTimeout,
			notify.WithWebhookAuthToken(cfg.WebhookAuthToken),
			notify.WithWebhookResetTTL(cfg.ResetTTL),
		)
	}
	if !cfg.DevMode {
		return nil, errors.New("no reset delivery webhook configured; set TRAILGATE_WEBHOOK_URL or TRAILGATE_DEV_MODE")
	}
	return notify.NewLogNotifier(log)
}
