package main

import (
	"context"
	"database/sql"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/redis/go-redis/v9"

	"github.com/expatline/lifecycle-engine/internal/analytics"
	"github.com/expatline/lifecycle-engine/internal/config"
	"github.com/expatline/lifecycle-engine/internal/lifecycle"
	"github.com/expatline/lifecycle-engine/internal/mailwizz"
	"github.com/expatline/lifecycle-engine/internal/notify"
	"github.com/expatline/lifecycle-engine/internal/store"
	"github.com/expatline/lifecycle-engine/internal/sweep"
)

func main() {
	log.Println("Starting lifecycle worker...")

	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config/config.yaml"
	}
	cfg, err := config.LoadFromEnv(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	db, err := sql.Open("postgres", cfg.Database.URL)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close()
	db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	db.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	db.SetConnMaxLifetime(5 * time.Minute)

	pingCtx, pingCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer pingCancel()
	if err := db.PingContext(pingCtx); err != nil {
		log.Fatalf("Failed to ping database: %v", err)
	}
	log.Println("Connected to database")

	var redisClient *redis.Client
	if cfg.Redis.Enabled {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := redisClient.Ping(context.Background()).Err(); err != nil {
			log.Printf("Redis unavailable (%v), sweep locks fall back to Postgres", err)
			redisClient = nil
		} else {
			log.Println("Connected to Redis")
		}
	}

	st := store.New(db)
	mw := mailwizz.NewClient(cfg.MailWizz)
	notifier := notify.New(db)

	var sink analytics.Sink = analytics.NopSink{}
	if cfg.Analytics.Enabled {
		pgSink := analytics.NewPGSink(db, cfg.Analytics.BufferSize)
		defer pgSink.Close()
		sink = pgSink
	}

	engine := lifecycle.NewEngine(st, mw, notifier, sink, cfg.Links)
	consumer := lifecycle.NewConsumer(st, engine, cfg.Consumer)
	sweeper := sweep.NewSweeper(st, mw, sink, cfg.Sweeps, cfg.Links)
	scheduler := sweep.NewScheduler(sweeper, redisClient, db, cfg.Sweeps)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go consumer.Run(ctx)
	go scheduler.Run(ctx)
	log.Println("Worker running...")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down worker...")
	cancel()
	// Let in-flight handlers and the analytics drain finish
	time.Sleep(2 * time.Second)
	log.Println("Worker stopped")
}
