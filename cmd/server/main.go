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

	"github.com/craprotocol/tracer/internal/api"
	"github.com/craprotocol/tracer/internal/config"
	"github.com/craprotocol/tracer/internal/engine/trace"
	"github.com/craprotocol/tracer/internal/graph"
	"github.com/craprotocol/tracer/internal/ingest"
	"github.com/craprotocol/tracer/internal/labels"
	"github.com/craprotocol/tracer/internal/storage"
)

func main() {
	// Parse command line flags
	configPath := flag.String("config", "config.yaml", "Path to configuration file")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	log.Println("Starting transaction graph analysis server...")

	// Open storage
	log.Printf("Opening Pebble database at %s", cfg.Pebble.Path)
	db, err := storage.NewPebbleDB(cfg.Pebble.Path)
	if err != nil {
		log.Fatalf("Failed to open Pebble database: %v", err)
	}
	txStore := storage.NewTxStore(db)
	addressStore := storage.NewAddressStore(db)
	seedStore := storage.NewSeedStore(db)

	// Load curated entity labels
	ls, err := labels.Load(cfg.Labels.Path)
	if err != nil {
		log.Fatalf("Failed to load entity labels from %s: %v", cfg.Labels.Path, err)
	}
	log.Printf("Loaded %d labeled entities from %s", len(ls.Entities()), cfg.Labels.Path)

	// Create context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Load data
	ingestor := ingest.NewIngestor(db, txStore, addressStore, cfg.Ingest.Strict)
	switch {
	case cfg.Ingest.FeedPath != "":
		n, err := ingestor.LoadJSONL(ctx, cfg.Ingest.FeedPath)
		if err != nil {
			log.Fatalf("Failed to load transaction feed (%d loaded): %v", n, err)
		}
	case cfg.Ingest.Demo:
		if err := ingest.SeedDemoData(ingestor, seedStore); err != nil {
			log.Fatalf("Failed to seed demo data: %v", err)
		}
	}

	// Wire the analysis engine
	reader := graph.NewStoreReader(txStore, addressStore, seedStore, ls)

	engineCfg := trace.DefaultConfig()
	engineCfg.MaxHops = cfg.Engine.MaxHops
	engineCfg.MaxNodes = cfg.Engine.MaxNodes
	engineCfg.Deadline = cfg.Engine.TraceDeadline
	engineCfg.Risk.Decay = cfg.Engine.RiskDecay
	engineCfg.Attribution.MergeThreshold = cfg.Engine.MergeThreshold
	engineCfg.Peel.MinLength = cfg.Engine.PeelMinLength
	engineCfg.Peel.ValueFloor = cfg.Engine.PeelValueFloor
	engineCfg.Peel.MaxHops = cfg.Engine.MaxHops
	engineCfg.Mixer.TimeWindow = cfg.Engine.MixerTimeWindow
	engineCfg.Mixer.FeeTolerance = cfg.Engine.MixerFeeTol
	orchestrator := trace.NewOrchestrator(engineCfg, reader, ls)

	// Initialize API router
	router := api.NewRouter(orchestrator, reader, ingestor, txStore, addressStore, seedStore, ls, engineCfg.Mixer)

	// Create HTTP server
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      router.Engine(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// Start HTTP server in goroutine
	go func() {
		log.Printf("HTTP server listening on %s", addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("HTTP server error: %v", err)
		}
	}()

	// Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down...")
	cancel()

	// Shutdown HTTP server with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("HTTP server shutdown error: %v", err)
	}

	if err := db.Close(); err != nil {
		log.Printf("Error closing database: %v", err)
	}

	log.Println("Server stopped")
}
