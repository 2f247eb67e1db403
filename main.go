package main

import (
	"context"
	"database/sql"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"stats-service/internal/config"
	"stats-service/internal/consumer"
	"stats-service/internal/repository"
	"stats-service/internal/server"
	"stats-service/internal/service"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"

	"github.com/joho/godotenv"
	_ "github.com/lib/pq"

	log "github.com/sirupsen/logrus"

	"github.com/labstack/echo/v4"
)

func main() {
	log.SetFormatter(&log.TextFormatter{
		FullTimestamp: true,
	})

	log.SetOutput(os.Stdout)
	log.SetLevel(log.DebugLevel)

	if err := godotenv.Load(); err != nil {
		log.Warn("Could not load .env file.")
	}

	cfg, err := config.Load()
	if err != nil {
		log.WithField("error", err).Fatal("Could not load configuration")
	}

	log.Info("Starting database migration...")
	m, err := migrate.New(cfg.DB.MigrationsPath, cfg.DB.URL)
	if err != nil {
		log.WithField("error", err).Fatal("Could not create migrate instance")
	}

	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		log.WithField("error", err).Fatal("Could not apply migration")
	}
	log.Info("Database migration finished successfully.")

	db, err := sql.Open("postgres", cfg.DB.URL)
	if err != nil {
		log.WithField("error", err).Fatal("Could not connect to the database")
	}
	defer db.Close()

	db.SetMaxOpenConns(cfg.DB.MaxOpenConns)
	db.SetMaxIdleConns(cfg.DB.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.DB.ConnMaxLifetime)
	db.SetConnMaxIdleTime(cfg.DB.ConnMaxIdleTime)

	if err := db.Ping(); err != nil {
		log.WithField("error", err).Fatal("Could not ping the database")
	}
	log.Info("Successfully connected to the PostgreSQL database.")

	// Create store and read-side repositories
	store := repository.NewPostgresStore(db)
	answers := repository.NewPostgresAiAnswerReader(db)

	// Create service
	statsService := service.NewStatsService(store, answers)

	// Create Kafka consumer
	kafkaConsumer, err := consumer.New(cfg.Kafka, statsService)
	if err != nil {
		log.WithField("error", err).Fatal("Could not create Kafka consumer")
	}
	defer kafkaConsumer.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		if err := kafkaConsumer.Run(ctx); err != nil && err != context.Canceled {
			log.WithField("error", err).Error("Kafka consumer stopped")
		}
	}()

	// Create server
	srv := server.NewServer(statsService, db)

	// Setup Echo
	e := echo.New()

	// Health check
	e.GET("/health", srv.HealthCheck)

	// Read API
	stats := e.Group("/stats")
	stats.GET("/trending-tags", srv.GetTrendingTags)
	stats.GET("/top-users", srv.GetTopUsers)
	stats.GET("/top-ais", srv.GetTopAis)
	stats.GET("/top-ai-answers", srv.GetTopAiAnswers)

	go func() {
		<-ctx.Done()
		if err := e.Shutdown(context.Background()); err != nil {
			log.WithField("error", err).Error("Echo server shutdown failed")
		}
	}()

	log.WithField("port", cfg.HTTP.Port).Info("Stats service is starting with Echo")

	if err := e.Start(":" + cfg.HTTP.Port); err != nil && err != http.ErrServerClosed {
		log.WithField("error", err).Fatal("Echo server failed to start")
	}
}
