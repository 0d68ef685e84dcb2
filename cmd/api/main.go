package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/medhubvn/stocksheet/internal/config"
	"github.com/medhubvn/stocksheet/internal/database"
	"github.com/medhubvn/stocksheet/internal/handlers"
	"github.com/medhubvn/stocksheet/internal/models"
	"github.com/medhubvn/stocksheet/internal/sheets"
	"github.com/medhubvn/stocksheet/internal/sync"
	"github.com/medhubvn/stocksheet/internal/websocket"
)

func main() {
	// 1. Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// 2. Initialize database (Detects Embedded vs External automatically)
	db, err := database.Connect(cfg.Database)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	// Note: db.Close() is called manually in shutdown handler below

	// 3. Auto-Migrate Schema
	log.Println("🚀 Synchronizing database schema...")
	if err := db.AutoMigrate(
		&models.UserAuth{},
		&models.ChangeLogEntry{},
	); err != nil {
		log.Printf("⚠️ Migration warning: %v\n", err)
	} else {
		log.Println("✅ Schema synchronized successfully")
	}

	// 4. Connect to the remote spreadsheet
	sheetsClient, err := sheets.NewClient(context.Background(), cfg.Sheets, cfg.Sync.RemoteTimeout)
	if err != nil {
		log.Fatalf("Failed to create sheets client: %v", err)
	}
	mapper := sheets.NewMapper(cfg.Sheets.Sources)
	log.Printf("📗 Sheets client ready: %d source(s)", len(cfg.Sheets.Sources))

	// 5. Start websocket hub
	hub := websocket.NewHub()
	go hub.Run()

	// 6. Start sync service
	state := sync.NewState()
	changeLog := sync.NewChangeLog(cfg.Sync.ChangeLogLimit, db)
	syncService := sync.NewService(sheetsClient, mapper, state, changeLog, hub, cfg.Sync)
	syncService.Start()

	// 7. Set up HTTP router
	router := handlers.NewRouter(db, cfg, hub, syncService)

	server := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	// Channel to listen for shutdown signals
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM, syscall.SIGINT)

	// Start server in goroutine
	go func() {
		log.Printf("🚀 Server starting on port %s\n", cfg.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Wait for shutdown signal
	sig := <-shutdown
	log.Printf("\n⚠️  Received signal: %v. Shutting down gracefully...\n", sig)

	// Create context with timeout for graceful shutdown
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Shutdown HTTP server
	if err := server.Shutdown(ctx); err != nil {
		log.Printf("HTTP server shutdown error: %v", err)
	}

	// Stop sync service
	syncService.Stop()

	// Close database (this also stops embedded PostgreSQL)
	log.Println("🛑 Closing database connection...")
	if err := db.Close(); err != nil {
		log.Printf("Database close error: %v", err)
	}

	log.Println("✅ Shutdown complete")
}
