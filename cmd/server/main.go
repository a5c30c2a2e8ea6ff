/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the wagering engine server. Handles
  configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Load .env (if present) and parse flags
  2. Open the SQLite document store
  3. Wire gate, coordinator, ledger, services
  4. Configure the HTTP router
  5. Start the server with graceful shutdown

CONFIGURATION:
  -port    HTTP server port (default: 8080, env PORT)
  -db      SQLite database path (default: wager.db, env DATABASE_PATH)
           Use ":memory:" for an in-memory database
  JWT_SECRET  HS256 token secret (required outside dev)

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM: stop accepting connections, drain active requests
  (30s timeout), close the database, exit.

SEE ALSO:
  - api/server.go: Router configuration
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
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/warp/wager-engine/api"
	"github.com/warp/wager-engine/audit"
	"github.com/warp/wager-engine/engine"
	"github.com/warp/wager-engine/gate"
	"github.com/warp/wager-engine/match"
	"github.com/warp/wager-engine/request"
	"github.com/warp/wager-engine/store/sqlite"
	"github.com/warp/wager-engine/wallet"
)

func main() {
	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	port := flag.Int("port", envInt("PORT", 8080), "HTTP server port")
	dbPath := flag.String("db", envStr("DATABASE_PATH", "wager.db"), "SQLite database path")
	flag.Parse()

	secret := os.Getenv("JWT_SECRET")
	if secret == "" {
		secret = "dev-secret-do-not-use-in-production"
		log.Println("Warning: JWT_SECRET not set, using dev secret")
	}

	store, err := sqlite.New(*dbPath)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer store.Close()

	clock := engine.SystemClock{}
	coord := engine.NewCoordinator(store)
	wallets := wallet.NewLedger(store)
	auditLog := audit.NewLog()
	g := gate.New(store, clock, []byte(secret))
	matches := match.NewService(coord, wallets, clock, match.DefaultConfig())
	requests := request.NewService(coord, wallets, auditLog, clock)

	handler := api.NewHandler(g, coord, wallets, matches, requests)
	router := api.NewRouter(handler)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", *port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("Server starting on http://localhost:%d", *port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

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

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}
