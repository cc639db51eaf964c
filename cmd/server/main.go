package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/classable/classable/internal/api"
	"github.com/classable/classable/internal/app"
	"github.com/classable/classable/internal/app/maintenance"
	"github.com/classable/classable/internal/auth"
	"github.com/classable/classable/internal/database"
	"github.com/classable/classable/internal/services"
	"github.com/classable/classable/pkg/logger"
	"github.com/classable/classable/pkg/mail"
)

func main() {
	configPath := flag.String("config", "", "path to config file (optional)")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintln(os.Stderr, "fatal:", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := app.LoadConfig(configPath)
	if err != nil {
		return err
	}

	log, err := app.ConfigureLogging(cfg.Logging)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	if cfg.Logging.Format != "console" {
		gin.SetMode(gin.ReleaseMode)
	}

	db, err := database.Open(cfg.Database)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	if err := database.AutoMigrateAndSeed(db, cfg.Admin.Email, cfg.Admin.Password); err != nil {
		return err
	}

	jwtService, err := auth.NewJWTService(auth.JWTConfig{
		Secret:         cfg.Auth.JWTSecret,
		Issuer:         cfg.Auth.JWTIssuer,
		AccessTokenTTL: cfg.Auth.AccessTokenTTL,
	})
	if err != nil {
		return err
	}

	mailer, err := mail.NewSMTPMailer(cfg.SMTP)
	if err != nil {
		return err
	}
	if !cfg.SMTP.Enabled {
		mailer = mail.NewLogMailer(log)
	}

	svc, err := buildServices(db, cfg, jwtService, mailer, log)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if svc.Storage.Enabled() {
		if err := svc.Storage.EnsureBucket(ctx); err != nil {
			return err
		}
	}

	var sweeper *maintenance.Scheduler
	if cfg.Maintenance.Enabled {
		sweeper, err = maintenance.NewScheduler(svc.Invites, svc.Audit, maintenance.Options{
			Schedule:       cfg.Maintenance.Schedule,
			AuditRetention: time.Duration(cfg.Maintenance.AuditRetention) * 24 * time.Hour,
		}, log)
		if err != nil {
			return err
		}
		if err := sweeper.Start(); err != nil {
			return err
		}
		defer sweeper.Stop()
	}

	router := api.NewRouter(db, jwtService, svc, log)
	server := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("server listening", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

func buildServices(db *gorm.DB, cfg *app.Config, jwtService *auth.JWTService, mailer mail.Mailer, log *zap.Logger) (api.Services, error) {
	audit, err := services.NewAuditService(db)
	if err != nil {
		return api.Services{}, err
	}

	invites, err := services.NewInviteService(db, mailer, audit, log,
		services.WithInviteBaseURL(cfg.Server.BaseURL),
	)
	if err != nil {
		return api.Services{}, err
	}

	profiles, err := services.NewProfileService(db)
	if err != nil {
		return api.Services{}, err
	}

	accounts, err := services.NewAccountService(db, invites, jwtService, mailer, audit, log)
	if err != nil {
		return api.Services{}, err
	}

	classes, err := services.NewClassService(db)
	if err != nil {
		return api.Services{}, err
	}

	billing, err := services.NewBillingService(db, cfg.Billing, log)
	if err != nil {
		return api.Services{}, err
	}

	storage, err := services.NewStorageService(cfg.Storage)
	if err != nil {
		return api.Services{}, err
	}

	var generator services.ProfileGenerator
	if cfg.Onboarding.Provider == "openai" {
		generator, err = services.NewOpenAIGenerator(services.OpenAIGeneratorConfig{
			BaseURL: cfg.Onboarding.BaseURL,
			APIKey:  cfg.Onboarding.APIKey,
			Model:   cfg.Onboarding.Model,
			Timeout: cfg.Onboarding.Timeout,
		})
		if err != nil {
			return api.Services{}, err
		}
	}

	onboarding, err := services.NewOnboardingService(db, generator, log)
	if err != nil {
		return api.Services{}, err
	}

	return api.Services{
		Accounts:   accounts,
		Profiles:   profiles,
		Invites:    invites,
		Classes:    classes,
		Billing:    billing,
		Storage:    storage,
		Onboarding: onboarding,
		Audit:      audit,
	}, nil
}
