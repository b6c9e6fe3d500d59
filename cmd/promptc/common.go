package main

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/longregen/promptc/internal/adapters/llm"
	"github.com/longregen/promptc/internal/config"
	"github.com/longregen/promptc/internal/prompt"
)

// Version information (set via ldflags)
var (
	version   = "dev"
	commit    = "none"
	buildDate = "unknown"
)

var cfg *config.Config

// initDB initializes a database connection pool for CLI commands
func initDB(ctx context.Context) (*pgxpool.Pool, error) {
	if cfg.Database.PostgresURL == "" {
		return nil, fmt.Errorf("PostgreSQL connection required. Set PROMPTC_POSTGRES_URL")
	}

	poolConfig, err := pgxpool.ParseConfig(cfg.Database.PostgresURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database URL: %w", err)
	}

	// Force UTC timezone to prevent timezone-related issues with TIMESTAMP columns
	poolConfig.ConnConfig.RuntimeParams["timezone"] = "UTC"

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create database pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	return pool, nil
}

// initCollaborators builds the rate-limited generation and proposal clients
func initCollaborators() (prompt.Generator, prompt.Proposer) {
	genClient := llm.NewClient(llm.ClientConfig{
		APIKey:      cfg.LLM.APIKey,
		BaseURL:     cfg.LLM.URL,
		Model:       cfg.LLM.Model,
		Temperature: cfg.LLM.Temperature,
	})

	proposerClient := genClient
	if cfg.IsProposerConfigured() {
		proposerClient = llm.NewClient(llm.ClientConfig{
			APIKey:      cfg.Proposer.APIKey,
			BaseURL:     cfg.Proposer.URL,
			Model:       cfg.Proposer.Model,
			Temperature: cfg.Proposer.Temperature,
		})
	}

	limited := llm.NewRateLimited(genClient, proposerClient, cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst)
	return limited, limited
}

// optimizerConfig translates file/env configuration into search parameters
func optimizerConfig() prompt.OptimizerConfig {
	oc := prompt.DefaultOptimizerConfig()
	oc.Strategy = prompt.Strategy(cfg.Optimizer.Strategy)
	oc.MaxTrials = cfg.Optimizer.MaxTrials
	oc.MaxDemonstrations = cfg.Optimizer.MaxDemonstrations
	oc.ValidationFraction = cfg.Optimizer.ValidationFraction
	oc.MinibatchSize = cfg.Optimizer.MinibatchSize
	oc.PatienceWindow = cfg.Optimizer.PatienceWindow
	oc.Concurrency = cfg.Optimizer.Concurrency
	oc.RetryLimit = cfg.Optimizer.RetryLimit
	return oc
}

// maskSecret masks a secret string for display
func maskSecret(s string) string {
	if s == "" {
		return "(not set)"
	}
	if len(s) <= 8 {
		return "(set)"
	}
	return s[:4] + "..." + s[len(s)-4:]
}

// boolStatus returns a status string for a boolean
func boolStatus(b bool) string {
	if b {
		return "configured"
	}
	return "not configured"
}
