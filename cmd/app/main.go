package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"classbook/internal/booking"
	"classbook/internal/classpack"
	"classbook/internal/config"
	"classbook/internal/db"
	"classbook/internal/email"
	"classbook/internal/gymclass"
	"classbook/internal/logger"
	"classbook/internal/member"
	"classbook/internal/membership"
	"classbook/internal/scheduler"
	"classbook/internal/server"
	"classbook/internal/storage"
	"classbook/internal/wallet"
	"classbook/internal/webhook"

	"github.com/redis/go-redis/v9"
)

// @title Classbook API
// @version 1.0
// @description API for gym class booking with capacity, waitlists and payment sources.
// @host localhost:8080
// @BasePath /
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
func main() {
	logger.Init()
	logger.Info("Starting Classbook application")

	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("Failed to load config: %v", err)
	}

	logger.Info("Connecting to database...")
	database, err := db.Connect(cfg.DatabaseURL)
	if err != nil {
		logger.Fatalf("Failed to connect to database: %v", err)
	}
	defer database.Close()
	logger.Info("Database connected")

	if err := db.RunMigrations(database, cfg.MigrationsPath); err != nil {
		logger.Fatalf("Failed to run migrations: %v", err)
	}
	logger.Info("Migrations completed")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	defer rdb.Close()
	if err := rdb.Ping(ctx).Err(); err != nil {
		logger.Warnf("Redis not reachable at %s: %v", cfg.RedisAddr, err)
	}

	var files storage.FileStorage
	if cfg.StorageEnabled() {
		files, err = storage.NewS3Storage(ctx, storage.S3Config{
			Endpoint:        cfg.S3Endpoint,
			Region:          cfg.S3Region,
			AccessKeyID:     cfg.S3AccessKeyID,
			SecretAccessKey: cfg.S3SecretAccessKey,
			Bucket:          cfg.S3Bucket,
		})
		if err != nil {
			logger.Fatalf("Failed to init storage: %v", err)
		}
	} else {
		logger.Warn("S3_BUCKET not set, class image uploads disabled")
	}

	emailService := email.New(rdb, email.Config{
		From:     cfg.EmailFrom,
		FromName: cfg.EmailFromName,
		SMTPHost: cfg.SMTPHost,
		SMTPPort: cfg.SMTPPort,
		SMTPUser: cfg.SMTPUser,
		SMTPPass: cfg.SMTPPass,
		Location: cfg.Location,
	})
	go emailService.Start(ctx)

	tx := db.NewTxManager(database)

	members := member.NewService(member.NewRepository(database))

	wallets := wallet.NewService(wallet.NewRepository(database, cfg.CurrencyCode))
	memberships := membership.NewService(membership.NewRepository(database), wallets, tx)

	classRepo := gymclass.NewRepository(database)
	classes := gymclass.NewService(classRepo, tx, files, cfg.Location)
	packs := classpack.NewService(classpack.NewRepository(database), classes, wallets, tx)

	webhookRepo := webhook.NewRepository(database)
	dispatcher := webhook.NewDispatcher(rdb, webhookRepo, cfg.WebhookTimeout)
	go dispatcher.Start(ctx)

	bookings := booking.NewService(
		booking.NewRepository(database),
		classRepo,
		members,
		memberships,
		booking.NewResolver(memberships, packs, wallets),
		tx,
		emailService,
		webhook.NewPublisher(rdb),
	)

	sched, err := scheduler.New(scheduler.Config{
		HorizonDays:  cfg.SessionHorizonDays,
		GenerateSpec: cfg.SessionGenerateCron,
		ExpirySpec:   cfg.BalanceExpiryCron,
		Location:     cfg.Location,
	}, classes, packs, emailService)
	if err != nil {
		logger.Fatalf("Failed to init scheduler: %v", err)
	}
	sched.Start()

	srv := server.New(cfg, database, emailService, server.Handlers{
		Members:     member.NewHandler(members),
		Memberships: membership.NewHandler(memberships),
		Wallets:     wallet.NewHandler(wallets),
		Classes:     gymclass.NewHandler(classes),
		Packs:       classpack.NewHandler(packs),
		Bookings:    booking.NewHandler(bookings),
		Webhooks:    webhook.NewHandler(webhook.NewService(webhookRepo)),
	})

	serverErrChan := make(chan error, 1)
	go func() {
		logger.Infof("Server starting on port %s", cfg.Port)
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrChan <- err
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		logger.Infof("Received signal: %v", sig)
	case err := <-serverErrChan:
		logger.Errorf("Server error: %v", err)
	}

	logger.Info("Shutting down gracefully...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("Error during server shutdown: %v", err)
	}
	sched.Stop(shutdownCtx)
	cancel()

	logger.Info("Server stopped")
}
