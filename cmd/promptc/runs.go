package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/longregen/promptc/internal/adapters/postgres"
	"github.com/longregen/promptc/internal/ports"
)

// runsCmd inspects persisted optimization runs
func runsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "Inspect optimization runs",
	}
	cmd.AddCommand(runsListCmd(), runsShowCmd())
	return cmd
}

func runsListCmd() *cobra.Command {
	var (
		status string
		limit  int
		offset int
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List optimization runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			pool, err := initDB(ctx)
			if err != nil {
				return err
			}
			defer pool.Close()

			repo := postgres.NewOptimizationRepository(pool)
			runs, err := repo.ListRuns(ctx, ports.ListOptimizationRunsOptions{
				Status: status,
				Limit:  limit,
				Offset: offset,
			})
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tPROGRAM\tSTRATEGY\tSTATUS\tTRIALS\tBEST\tSTARTED")
			for _, run := range runs {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d/%d\t%.4f\t%s\n",
					run.ID, run.ProgramName, run.Strategy, run.Status,
					run.Trials, run.MaxTrials, run.BestScore,
					run.StartedAt.Format("2006-01-02 15:04:05"))
			}
			return w.Flush()
		},
	}

	cmd.Flags().StringVar(&status, "status", "", "Filter by status (running, completed, failed)")
	cmd.Flags().IntVar(&limit, "limit", 50, "Maximum runs to list")
	cmd.Flags().IntVar(&offset, "offset", 0, "Pagination offset")
	return cmd
}

func runsShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <run-id>",
		Short: "Show one run with its candidates",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			pool, err := initDB(ctx)
			if err != nil {
				return err
			}
			defer pool.Close()

			repo := postgres.NewOptimizationRepository(pool)
			run, err := repo.GetRun(ctx, args[0])
			if err != nil {
				return err
			}

			fmt.Printf("Run %s\n", run.ID)
			fmt.Printf("  Program:  %s\n", run.ProgramName)
			fmt.Printf("  Strategy: %s\n", run.Strategy)
			fmt.Printf("  Status:   %s\n", run.Status)
			fmt.Printf("  Trials:   %d/%d\n", run.Trials, run.MaxTrials)
			fmt.Printf("  Best:     %.4f\n", run.BestScore)
			if run.Error != "" {
				fmt.Printf("  Error:    %s\n", run.Error)
			}
			fmt.Println()

			candidates, err := repo.GetCandidates(ctx, run.ID)
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "CANDIDATE\tMODULE\tTRIAL\tSCORE\tSAMPLES\tINSTRUCTION")
			for _, c := range candidates {
				fmt.Fprintf(w, "%s\t%s\t%d\t%.4f\t%d\t%s\n",
					c.ID, c.ModuleName, c.Trial, c.Score, c.SampleCount, truncate(c.Instruction, 60))
			}
			return w.Flush()
		},
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}
