package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"

	"payment-service/internal/config"
	"payment-service/internal/gateway"
	"payment-service/internal/handler"
	"payment-service/internal/producer"
	"payment-service/internal/repository"
	"payment-service/internal/sender"
	"payment-service/internal/service"
)

func main() {
	// 1. Logger setup
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	log.SetOutput(os.Stdout)
	log.Info("Starting payment service...")

	// 2. Load .env (local development only)
	if err := godotenv.Load(); err != nil {
		log.Warn("Could not load .env file.")
	}

	cfg, err := config.Load()
	if err != nil {
		log.WithError(err).Fatal("Invalid configuration")
	}
	if level, err := log.ParseLevel(cfg.LogLevel); err == nil {
		log.SetLevel(level)
	}

	// 3. Apply migrations with a dedicated migrations table, the CMS owns
	// the main schema_migrations.
	migrationDBURL := cfg.DatabaseURL
	if strings.Contains(migrationDBURL, "?") {
		migrationDBURL += "&x-migrations-table=payment_schema_migrations"
	} else {
		migrationDBURL += "?x-migrations-table=payment_schema_migrations"
	}
	m, err := migrate.New(cfg.MigrationsPath, migrationDBURL)
	if err != nil {
		log.WithError(err).Fatal("Could not create migration instance")
	}
	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		log.WithError(err).Fatal("Could not apply migration")
	}
	log.Info("Database migration successfully applied")

	// 4. Database and repositories
	db, err := repository.Connect(cfg.DatabaseURL)
	if err != nil {
		log.WithError(err).Fatal("Could not connect to database")
	}
	defer db.Close()

	purchases := repository.NewPostgresPurchaseRepository(db)
	grants := repository.NewPostgresGrantRepository(db)
	users := repository.NewPostgresUserRepository(db)
	catalog := repository.NewPostgresCatalogRepository(db)

	// 5. External collaborators: payment gateway, Kafka, SMTP
	gw := gateway.NewClient(cfg.GatewayBaseURL, cfg.GatewayKeyID, cfg.GatewayKeySecret,
		cfg.GatewayWebhookSecret, cfg.GatewayTimeout)

	var events producer.EventProducer = producer.NopProducer{}
	if cfg.KafkaBootstrapServers != "" {
		kp, err := producer.NewKafkaProducer(cfg.KafkaBootstrapServers)
		if err != nil {
			log.WithError(err).Fatal("Failed to create Kafka producer")
		}
		defer kp.Close()
		events = kp
	}

	var emails sender.EmailSender = sender.NopEmailSender{}
	if cfg.SMTPHost != "" {
		emails = sender.NewSMTPEmailSender(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUser, cfg.SMTPPassword, cfg.MailFrom)
	}

	// 6. Services
	provisioning := service.NewProvisioningService(users)
	orders := service.NewOrderService(catalog, purchases, gw)
	verification := service.NewVerificationService(purchases, grants, catalog, gw,
		provisioning, events, emails, cfg.PurchasesTopic)
	refunds := service.NewRefundService(purchases, grants, catalog, gw,
		events, emails, cfg.RefundsTopic)
	access := service.NewAccessService(catalog, grants)

	// 7. HTTP server with graceful shutdown
	api := handler.NewServer(orders, verification, refunds, access, cfg.GatewayKeyID)
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           api.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.WithField("addr", cfg.HTTPAddr).Info("HTTP server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Fatal("HTTP server failed")
		}
	}()

	sigchan := make(chan os.Signal, 1)
	signal.Notify(sigchan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigchan
	log.Infof("Caught signal %v: terminating", sig)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.WithError(err).Error("HTTP server shutdown failed")
	}
}
