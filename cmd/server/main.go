package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"eventregistration/config"
	_ "eventregistration/docs"
	"eventregistration/internal/adapters/auth"
	"eventregistration/internal/adapters/email"
	"eventregistration/internal/adapters/gateway"
	httpdelivery "eventregistration/internal/delivery/http"
	"eventregistration/internal/delivery/http/controllers"
	"eventregistration/internal/delivery/http/middleware"
	"eventregistration/internal/domain"
	"eventregistration/internal/metrics"
	"eventregistration/internal/repository/memory"
	"eventregistration/internal/repository/postgres"
	"eventregistration/internal/services"
)

const shutdownTimeout = 10 * time.Second

// @title Event Registration API
// @version 1.0
// @description Payment webhook reconciliation, team invitations and registration lookup.
// @BasePath /
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("load config", "err", err)
		os.Exit(1)
	}
	logger := config.NewLogger(cfg)
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("server stopped", "err", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	store, closeStore, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	verifier, err := newVerifier(cfg)
	if err != nil {
		return err
	}
	cache := services.NewCredentialCache(verifier, logger, m, services.CredentialCacheConfig{
		TTL:           cfg.CredentialTTL,
		VerifyTimeout: cfg.VerifyTimeout,
		SweepInterval: cfg.SweepInterval,
		MaxEntries:    cfg.CredentialMax,
	})
	defer cache.Close()

	mailer, err := email.NewMailer(email.MailerConfig{
		Provider:    cfg.EmailProvider,
		FromAddress: cfg.EmailFromAddress,
		FromName:    cfg.EmailFromName,
		SES: email.SESConfig{
			Region:             cfg.AWSRegion,
			AccessKeyID:        cfg.AWSAccessKeyID,
			SecretAccessKey:    cfg.AWSSecretAccessKey,
			InsecureSkipVerify: cfg.SESInsecureSkipVerify,
		},
	}, logger)
	if err != nil {
		return fmt.Errorf("create mailer: %w", err)
	}
	renderer, err := email.NewTemplateRenderer()
	if err != nil {
		return fmt.Errorf("load email templates: %w", err)
	}
	emails := services.NewEmailService(mailer, renderer, logger)

	gateways := gateway.DefaultRegistry()
	if _, ok := gateways.Get(cfg.DefaultGateway); !ok {
		return fmt.Errorf("DEFAULT_GATEWAY %q is not one of %v", cfg.DefaultGateway, gateways.Names())
	}
	reconciler := services.NewReconcilerService(store, gateways, emails, logger, m, services.ReconcilerConfig{
		StoreTimeout:  cfg.StoreTimeout,
		NotifyTimeout: cfg.NotifyTimeout,
	})
	invitations := services.NewInvitationService(store, emails, logger, m, services.InvitationConfig{
		TTL:           cfg.InviteTTL,
		StoreTimeout:  cfg.StoreTimeout,
		NotifyTimeout: cfg.NotifyTimeout,
	})
	registrations := services.NewRegistrationService(store, cfg.StoreTimeout)

	if cfg.WebhookSecret == "" {
		logger.Warn("WEBHOOK_SECRET is empty, payment webhooks are not authenticated")
	}
	router := httpdelivery.NewRouter(httpdelivery.RouterDeps{
		Logger:        logger,
		Authenticator: cache,
		WebhookSecret: cfg.WebhookSecret,
		Gatherer:      reg,
		Webhooks:      controllers.NewWebhookController(logger, reconciler, cfg.DefaultGateway),
		Invitations:   controllers.NewInvitationController(logger, invitations),
		Registrations: controllers.NewRegistrationController(logger, registrations),
		Identity:      controllers.NewIdentityController(logger),
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           middleware.CORS(cfg.CORSAllowedOrigins, middleware.LoggingMiddleware(logger, router)),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting server", "addr", srv.Addr, "environment", cfg.Environment, "store", cfg.StoreDriver)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown: %w", err)
	}
	return nil
}

func openStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (domain.EntityStore, func(), error) {
	switch cfg.StoreDriver {
	case "memory":
		logger.Warn("using in-memory store, data is lost on restart")
		return memory.NewStore(), func() {}, nil
	case "postgres":
		db, err := sql.Open("postgres", cfg.DBUrl)
		if err != nil {
			return nil, nil, fmt.Errorf("open database: %w", err)
		}
		pingCtx, cancel := context.WithTimeout(ctx, cfg.StoreTimeout)
		defer cancel()
		if err := db.PingContext(pingCtx); err != nil {
			db.Close()
			return nil, nil, fmt.Errorf("ping database: %w", err)
		}
		if err := postgres.EnsureSchema(pingCtx, db); err != nil {
			db.Close()
			return nil, nil, fmt.Errorf("ensure schema: %w", err)
		}
		return postgres.NewDocumentStore(db), func() { db.Close() }, nil
	default:
		return nil, nil, fmt.Errorf("unknown STORE_DRIVER %q", cfg.StoreDriver)
	}
}

func newVerifier(cfg *config.Config) (domain.TokenVerifier, error) {
	switch cfg.IdentityProvider {
	case "http":
		return auth.NewHTTPVerifier(&http.Client{Timeout: cfg.VerifyTimeout}, cfg.IdentityVerifyURL), nil
	case "jwt":
		return auth.NewJWTVerifier(cfg.JWTSecret), nil
	default:
		return nil, fmt.Errorf("unknown IDENTITY_PROVIDER %q", cfg.IdentityProvider)
	}
}
