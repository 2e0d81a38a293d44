/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the Ember Habit Engine server.
  Handles configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Parse command-line flags
  2. Initialize SQLite store
  3. Create engine service and API handler
  4. Configure HTTP router
  5. Start freeze scheduler
  6. Start server with graceful shutdown

COMMAND-LINE FLAGS:
  -port              HTTP server port (default: 8080)
  -db                SQLite database path (default: habits.db)
                     Use ":memory:" for in-memory database
  -tz                Default time zone for deriving "today" (default: UTC)
  -freeze-interval   Auto-freeze check interval (default: 1h)

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Stop the freeze scheduler
  3. Wait for active requests to complete (30s timeout)
  4. Close database connection
  5. Exit

EXAMPLES:
  # Run with file database
  ./server -db="./data/habits.db"

  # Run with in-memory database
  ./server -db=":memory:"

  # Run with a different zone for the nightly freeze pass
  ./server -tz="America/New_York"

SEE ALSO:
  - api/server.go: Router configuration
  - api/handlers.go: HTTP handlers
  - store/sqlite/sqlite.go: Database implementation
*/
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ember/habit-engine/api"
	"github.com/ember/habit-engine/habit"
	"github.com/ember/habit-engine/store/sqlite"
)

func main() {
	// Flags
	port := flag.Int("port", 8080, "HTTP server port")
	dbPath := flag.String("db", "habits.db", "SQLite database path")
	timeZone := flag.String("tz", "UTC", "default time zone for day derivation")
	freezeInterval := flag.Duration("freeze-interval", time.Hour, "auto-freeze check interval")
	flag.Parse()

	// Initialize store
	store, err := sqlite.New(*dbPath)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer store.Close()

	// Wire the engine: one store backs entries, aggregates, and definitions
	svc := habit.NewService(store, store, store)

	// Initialize handler and router
	handler := api.NewHandler(svc, *timeZone)
	router := api.NewRouter(handler)

	// Start the freeze scheduler
	scheduler := api.NewFreezeScheduler(store, svc, *timeZone)
	scheduler.CheckInterval = *freezeInterval
	scheduler.Start()
	defer scheduler.Stop()

	// Create server
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", *port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Printf("🚀 Server starting on http://localhost:%d", *port)
		log.Printf("📊 API available at http://localhost:%d/api", *port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Println("Server stopped")
}
