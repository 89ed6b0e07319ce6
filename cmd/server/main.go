package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver

	"github.com/expatline/lifecycle-engine/internal/analytics"
	"github.com/expatline/lifecycle-engine/internal/config"
	"github.com/expatline/lifecycle-engine/internal/mailwizz"
	"github.com/expatline/lifecycle-engine/internal/store"
	"github.com/expatline/lifecycle-engine/internal/webhook"
)

// checkPortAvailable verifies the target port is free before wiring anything,
// so a stale process fails the start immediately instead of at Listen time.
func checkPortAvailable(host string, port int) error {
	addr := fmt.Sprintf("%s:%d", host, port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("port %d is already in use (addr %s): %v", port, addr, err)
	}
	ln.Close()
	return nil
}

func main() {
	log.Println("Starting lifecycle gateway...")

	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config/config.yaml"
	}
	cfg, err := config.LoadFromEnv(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	host := cfg.Server.GetHost()
	if err := checkPortAvailable(host, cfg.Server.Port); err != nil {
		log.Fatalf("%v", err)
	}

	db, err := sql.Open("postgres", cfg.Database.URL)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close()
	db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	db.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	db.SetConnMaxLifetime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		log.Fatalf("Failed to ping database: %v", err)
	}
	log.Println("Connected to database")

	st := store.New(db)
	mw := mailwizz.NewClient(cfg.MailWizz)

	var sink analytics.Sink = analytics.NopSink{}
	if cfg.Analytics.Enabled {
		pgSink := analytics.NewPGSink(db, cfg.Analytics.BufferSize)
		defer pgSink.Close()
		sink = pgSink
	}

	handler := webhook.NewHandler(st, mw, sink, cfg.Webhook.Secret)
	server := webhook.NewServer(st, handler)

	go func() {
		addr := fmt.Sprintf("%s:%d", host, cfg.Server.Port)
		log.Printf("Gateway listening on %s", addr)
		if err := server.ListenAndServe(addr); err != nil {
			log.Printf("Server stopped: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down gateway...")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("Shutdown error: %v", err)
	}
	log.Println("Gateway stopped")
}
