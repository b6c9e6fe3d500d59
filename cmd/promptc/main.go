package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	_ "go.uber.org/automaxprocs"

	"github.com/longregen/promptc/internal/config"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "promptc",
		Short: "promptc - prompt program compiler",
		Long: `promptc compiles declarative prompt programs into frozen artifacts.

A program is a pipeline of typed modules. Compilation searches over
instructions and few-shot demonstrations against a labeled dataset and
freezes the best-scoring configuration.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var err error
			cfg, err = config.Load()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			return nil
		},
	}

	rootCmd.AddCommand(
		compileCmd(),
		serveCmd(),
		runsCmd(),
		inspectCmd(),
		configCmd(),
		versionCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// configCmd shows current configuration
func configCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Show current configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Println("Current configuration:")
			fmt.Println()

			fmt.Println("LLM:")
			fmt.Printf("  URL:         %s\n", cfg.LLM.URL)
			fmt.Printf("  Model:       %s\n", cfg.LLM.Model)
			fmt.Printf("  Temperature: %.2f\n", cfg.LLM.Temperature)
			fmt.Printf("  API Key:     %s\n", maskSecret(cfg.LLM.APIKey))
			fmt.Println()

			fmt.Println("Proposer:")
			fmt.Printf("  URL:         %s\n", cfg.Proposer.URL)
			fmt.Printf("  Model:       %s\n", cfg.Proposer.Model)
			fmt.Printf("  Status:      %s\n", boolStatus(cfg.IsProposerConfigured()))
			fmt.Println()

			fmt.Println("Optimizer:")
			fmt.Printf("  Strategy:            %s\n", cfg.Optimizer.Strategy)
			fmt.Printf("  Max Trials:          %d\n", cfg.Optimizer.MaxTrials)
			fmt.Printf("  Max Demonstrations:  %d\n", cfg.Optimizer.MaxDemonstrations)
			fmt.Printf("  Validation Fraction: %.2f\n", cfg.Optimizer.ValidationFraction)
			fmt.Printf("  Minibatch Size:      %d\n", cfg.Optimizer.MinibatchSize)
			fmt.Printf("  Patience Window:     %d\n", cfg.Optimizer.PatienceWindow)
			fmt.Printf("  Concurrency:         %d\n", cfg.Optimizer.Concurrency)
			fmt.Println()

			fmt.Println("Database:")
			fmt.Printf("  PostgreSQL: %s\n", maskSecret(cfg.Database.PostgresURL))
			fmt.Println()

			fmt.Println("Environment variables:")
			fmt.Println("  PROMPTC_LLM_URL, PROMPTC_LLM_API_KEY, PROMPTC_LLM_MODEL, PROMPTC_LLM_TEMPERATURE")
			fmt.Println("  PROMPTC_PROPOSER_URL, PROMPTC_PROPOSER_API_KEY, PROMPTC_PROPOSER_MODEL")
			fmt.Println("  PROMPTC_STRATEGY, PROMPTC_MAX_TRIALS, PROMPTC_MAX_DEMONSTRATIONS")
			fmt.Println("  PROMPTC_VALIDATION_FRACTION, PROMPTC_MINIBATCH_SIZE, PROMPTC_PATIENCE_WINDOW")
			fmt.Println("  PROMPTC_POSTGRES_URL, PROMPTC_SERVER_HOST, PROMPTC_SERVER_PORT")

			return nil
		},
	}
}

// versionCmd shows version information
func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("promptc %s\n", version)
			fmt.Printf("  Commit:     %s\n", commit)
			fmt.Printf("  Build Date: %s\n", buildDate)
		},
	}
}
