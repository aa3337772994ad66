package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/Jeffreasy/LaventeCareGateway/internal/accounts"
	"github.com/Jeffreasy/LaventeCareGateway/internal/api"
	"github.com/Jeffreasy/LaventeCareGateway/internal/audit"
	"github.com/Jeffreasy/LaventeCareGateway/internal/auth"
	"github.com/Jeffreasy/LaventeCareGateway/internal/config"
	"github.com/Jeffreasy/LaventeCareGateway/internal/kvstore"
	"github.com/Jeffreasy/LaventeCareGateway/internal/mailer"
	"github.com/Jeffreasy/LaventeCareGateway/internal/microsoft"
	"github.com/Jeffreasy/LaventeCareGateway/internal/notify"
	"github.com/Jeffreasy/LaventeCareGateway/internal/oauthcache"
	"github.com/Jeffreasy/LaventeCareGateway/internal/storage"
	"github.com/Jeffreasy/LaventeCareGateway/internal/upstream"
	"github.com/Jeffreasy/LaventeCareGateway/internal/whatsapp"
	"github.com/Jeffreasy/LaventeCareGateway/pkg/logger"
)

// development-only secret so a fresh checkout starts without configuration
const devTokenSecret = "gateway-development-secret-do-not-use-in-production"

func main() {
	// missing files are fine: production reads the real environment
	_ = godotenv.Load(".env.local")
	_ = godotenv.Load()

	cfg := config.Load()

	log := logger.Setup(cfg.Env)
	log.Info("application_startup", "env", cfg.Env)

	if err := cfg.RevealSecrets(); err != nil {
		log.Error("config_secrets_sealed", "error", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		log.Error("config_invalid", "error", err)
		os.Exit(1)
	}

	if cfg.SentryDSN != "" {
		err := sentry.Init(sentry.ClientOptions{
			Dsn:              cfg.SentryDSN,
			TracesSampleRate: 0.2,
			Environment:      cfg.Env,
		})
		if err != nil {
			log.Error("sentry_init_failed", "error", err)
		} else {
			defer sentry.Flush(2 * time.Second)
			log.Info("sentry_initialized")
		}
	} else {
		log.Warn("sentry_dsn_missing", "details", "skipping_init")
	}

	ctx := context.Background()

	// Session store
	store := kvstore.New(kvstore.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
	defer store.Close()
	if err := store.Ping(ctx); err != nil {
		// keep serving: /health reports it and the gate answers 503 until Redis is back
		log.Error("session_store_unreachable", "error", err)
	} else {
		log.Info("session_store_connected", "addr", cfg.RedisAddr)
	}

	// Account directory
	if cfg.SQLServerDSN == "" {
		log.Error("sqlserver_dsn_missing", "details", "SQLSERVER_DSN is required")
		os.Exit(1)
	}
	db, err := storage.NewSQLServer(ctx, cfg.SQLServerDSN)
	if err != nil {
		log.Error("database_connect_failed", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	log.Info("database_connected")
	directory := accounts.NewSPDirectory(db)

	// Metrics
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	// Email queue
	var sender mailer.Sender
	if cfg.SMTP.Host != "" {
		smtpProvider, err := mailer.NewSMTPProvider(mailer.SMTPConfig{
			Host:         cfg.SMTP.Host,
			Port:         cfg.SMTP.Port,
			User:         cfg.SMTP.User,
			Password:     cfg.SMTP.Password,
			From:         cfg.SMTP.From,
			TLSMode:      cfg.SMTP.TLSMode,
			ValidateHost: cfg.SMTP.ValidateHost,
		})
		if err != nil {
			log.Error("smtp_config_invalid", "error", err)
			os.Exit(1)
		}
		sender = smtpProvider
	} else {
		if cfg.Env == "production" {
			log.Error("smtp_host_missing", "details", "fatal_in_production")
			os.Exit(1)
		}
		log.Warn("smtp_host_missing", "details", "emails_are_logged_only")
		sender = &mailer.LogSender{Logger: log}
	}

	queue := mailer.NewQueue(sender, cfg.EmailQueueCapacity, mailer.NewMetrics(registry))
	if err := queue.Start(); err != nil {
		log.Error("email_worker_start_failed", "error", err)
		os.Exit(1)
	}

	// Auth
	secret := cfg.JWESecret
	if secret == "" {
		log.Warn("jwe_secret_missing", "details", "dev_mode_unsafe")
		secret = devTokenSecret
	}
	codec, err := auth.NewTokenCodec(secret)
	if err != nil {
		log.Error("token_codec_init_failed", "error", err)
		os.Exit(1)
	}

	auditLogger := audit.NewJSONAuditLogger()
	sessions := auth.NewSessionService(store, log)
	authService := auth.NewAuthService(directory, store, sessions, codec, notify.NewQueueMailer(queue, log), auditLogger)

	// Upstream systems
	crmCache := newTokenCache("crm", cfg.CRM, cfg.OAuthSingleFlight)
	sharePointCache := newTokenCache("sharepoint", cfg.SharePoint, cfg.OAuthSingleFlight)

	// WhatsApp
	msProvider := microsoft.NewProvider(microsoft.Config{
		TenantID:     cfg.Microsoft.TenantID,
		ClientID:     cfg.Microsoft.ClientID,
		ClientSecret: cfg.Microsoft.ClientSecret,
		RedirectURL:  cfg.Microsoft.RedirectURL,
	})
	waClient := whatsapp.NewClient(whatsapp.ClientConfig{
		BaseURL:       cfg.WhatsApp.GraphBaseURL,
		APIVersion:    cfg.WhatsApp.APIVersion,
		PhoneNumberID: cfg.WhatsApp.PhoneNumberID,
		AccessToken:   cfg.WhatsApp.AccessToken,
	})
	if !waClient.Configured() {
		log.Warn("whatsapp_not_configured", "details", "login_links_cannot_be_sent")
	}
	waService := whatsapp.NewService(whatsapp.NewBridge(store, sessions), msProvider, directory, waClient, auditLogger, cfg.AppURL)

	server := api.NewServer(api.Deps{
		Auth:  authService,
		Gate:  auth.NewGate(codec, sessions),
		Store: store,
		Queue: queue,
		Audit: auditLogger,

		CRM:             upstream.NewCRM(cfg.CRM.BaseURL, crmCache),
		CRMCache:        crmCache,
		SharePoint:      upstream.NewSharePoint(cfg.SharePoint.BaseURL, sharePointCache),
		SharePointCache: sharePointCache,

		WhatsApp:            waService,
		WhatsAppVerifyToken: cfg.WhatsApp.VerifyToken,
		WhatsAppAppSecret:   cfg.WhatsApp.AppSecret,

		Metrics:            registry,
		RateLimitRPS:       cfg.RateLimitRPS,
		RateLimitBurst:     cfg.RateLimitBurst,
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
	})
	defer server.Close()

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           server.Router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      30 * time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		log.Info("server_listening", "port", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrors <- err
		}
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		log.Error("server_startup_failed", "error", err)
		stopQueue(log, queue)
		os.Exit(1)

	case sig := <-shutdown:
		log.Info("shutdown_signal_received", "signal", sig)

		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			log.Error("graceful_shutdown_failed", "error", err)
			if err := srv.Close(); err != nil {
				log.Error("server_force_close_failed", "error", err)
			}
		}

		// producers are gone; let the in-flight send finish
		stopQueue(log, queue)

		log.Info("server_shutdown_complete")
	}
}

func newTokenCache(system string, c config.OAuthClientConfig, singleFlight bool) *oauthcache.TokenCache {
	cache := oauthcache.New(oauthcache.Config{
		System:       system,
		TenantID:     c.TenantID,
		ClientID:     c.ClientID,
		ClientSecret: c.ClientSecret,
		Scope:        c.Scope,
		TokenURL:     c.TokenURL,
		SafetyMargin: c.SafetyMargin,
		SingleFlight: singleFlight,
	})
	if !cache.Configured() {
		slog.Warn("oauth_client_not_configured", "system", system)
	}
	return cache
}

func stopQueue(log *slog.Logger, queue *mailer.Queue) {
	ctx, cancel := context.WithTimeout(context.Background(), 35*time.Second)
	defer cancel()

	if err := queue.Stop(ctx); err != nil {
		log.Error("email_queue_stop_failed", "error", err)
		return
	}
	stats := queue.Stats()
	log.Info("email_queue_stopped", "unsent", stats.QueueSize, "processed", stats.ProcessedCount, "failed", stats.FailedCount)
}
