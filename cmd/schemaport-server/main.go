package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"

	"github.com/schemaport/schemaport/internal/server/api"
	"github.com/schemaport/schemaport/internal/server/graphstore"
	"github.com/schemaport/schemaport/internal/server/jobs"
)

func main() {
	// Load .env if present; real environment wins.
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("Warning: loading .env: %v", err)
	}

	port := getEnv("PORT", "8080")
	neo4jURI := os.Getenv("NEO4J_URI")

	ctx := context.Background()

	// Snapshot storage: Neo4j when configured, in-memory otherwise.
	var snapshots graphstore.Repository
	if neo4jURI != "" {
		store, err := graphstore.NewNeo4jStore(ctx, graphstore.Config{
			URI:      neo4jURI,
			Username: getEnv("NEO4J_USER", "neo4j"),
			Password: getEnv("NEO4J_PASSWORD", "password"),
		})
		if err != nil {
			log.Fatalf("Failed to connect to Neo4j: %v", err)
		}
		if err := store.EnsureIndexes(ctx); err != nil {
			log.Fatalf("Failed to ensure Neo4j indexes: %v", err)
		}
		snapshots = store
		log.Println("Connected to Neo4j successfully")
	} else {
		snapshots = graphstore.NewMemoryStore()
		log.Println("NEO4J_URI not set, using in-memory snapshot store")
	}
	defer snapshots.Close(ctx)

	jobManager := jobs.NewManager()
	apiServer := api.New(snapshots, jobManager)

	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)

	apiServer.Routes(r)

	srv := &http.Server{
		Addr:        ":" + port,
		Handler:     r,
		ReadTimeout: 15 * time.Second,
		// Write timeout must stay off: job progress WebSockets are long-lived.
		IdleTimeout: 60 * time.Second,
	}

	go func() {
		log.Printf("Starting schemaport server on http://localhost:%s", port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}
	jobManager.Shutdown()

	log.Println("Server exited")
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
