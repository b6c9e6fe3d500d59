package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/longregen/promptc/api/server"
	"github.com/longregen/promptc/internal/adapters/postgres"
	"github.com/longregen/promptc/internal/adapters/tracing"
	"github.com/longregen/promptc/internal/application/services"
)

// serveCmd starts the HTTP API server
func serveCmd() *cobra.Command {
	var programsPath string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API server",
		Long: `Start the promptc HTTP API server.

The server exposes REST endpoints for launching optimization runs,
inspecting candidates, fetching frozen artifacts, and streaming run
progress over server-sent events.

Required configuration:
  - PostgreSQL database (PROMPTC_POSTGRES_URL)
  - LLM endpoint (PROMPTC_LLM_URL)`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), programsPath)
		},
	}

	cmd.Flags().StringVarP(&programsPath, "programs", "f", "programs.json", "Program definition file")
	return cmd
}

// runServer initializes and starts the HTTP API server
func runServer(ctx context.Context, programsPath string) error {
	log.Println("Starting promptc API server...")
	log.Printf("  HTTP:     http://%s:%d", cfg.Server.Host, cfg.Server.Port)
	log.Printf("  LLM:      %s", cfg.LLM.URL)
	if cfg.IsProposerConfigured() {
		log.Printf("  Proposer: %s", cfg.Proposer.URL)
	}

	// Initialize OpenTelemetry tracing
	shutdown, err := tracing.InitTracer("promptc-api")
	if err != nil {
		log.Printf("Warning: Failed to initialize tracing: %v", err)
	} else {
		defer func() {
			if err := shutdown(ctx); err != nil {
				log.Printf("Error shutting down tracer: %v", err)
			}
		}()
		log.Println("OpenTelemetry tracing initialized")
	}

	// Initialize database connection pool
	log.Println("Connecting to PostgreSQL...")
	pool, err := initDB(ctx)
	if err != nil {
		return err
	}
	defer pool.Close()
	log.Println("Database connection established")

	// Initialize repositories
	optimizationRepo := postgres.NewOptimizationRepository(pool)
	artifactRepo := postgres.NewCompiledProgramRepository(pool)

	// Initialize collaborators and the compile service
	gen, proposer := initCollaborators()
	svc := services.NewCompileService(optimizationRepo, artifactRepo, gen, optimizerConfig()).
		WithProposer(proposer).
		WithTransactionManager(postgres.NewTransactionManager(pool))

	// Register compile targets
	targets, err := loadTargets(programsPath)
	if err != nil {
		return err
	}
	for name, target := range targets {
		if err := svc.RegisterTarget(name, target); err != nil {
			return fmt.Errorf("failed to register program %q: %w", name, err)
		}
		log.Printf("Registered program %q (%d modules, %d examples)",
			name, len(target.Program.Modules()), len(target.Examples))
	}

	// Create HTTP server
	srv := server.NewServer(cfg, svc, func(ctx context.Context) error { return pool.Ping(ctx) })

	serverErrors := make(chan error, 1)
	go func() {
		log.Printf("HTTP server listening on %s:%d", cfg.Server.Host, cfg.Server.Port)
		serverErrors <- srv.Start()
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		return fmt.Errorf("server error: %w", err)
	case sig := <-sigChan:
		log.Printf("Received signal: %v", sig)
		log.Println("Shutting down gracefully...")

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		if err := srv.Stop(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown error: %w", err)
		}
		log.Println("Server stopped")
		return nil
	}
}
