package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/longregen/promptc/internal/prompt"
)

// cliObserver prints optimization progress to stderr
type cliObserver struct {
	prompt.NoopObserver
}

func (cliObserver) OnStateChange(state prompt.State) {
	fmt.Fprintf(os.Stderr, "state: %s\n", state)
}

func (cliObserver) OnTrial(trial int, moduleName string, bestScore float64) {
	fmt.Fprintf(os.Stderr, "trial %d  module=%s  best=%.4f\n", trial, moduleName, bestScore)
}

// compileCmd runs an optimization locally and writes the frozen artifact
func compileCmd() *cobra.Command {
	var (
		programsPath string
		programName  string
		strategy     string
		trials       int
		outputPath   string
		asJSON       bool
	)

	cmd := &cobra.Command{
		Use:   "compile",
		Short: "Compile a prompt program into a frozen artifact",
		Long: `Compile searches over instructions and few-shot demonstrations for every
module of a program, scores candidates against the labeled dataset, and
writes the best configuration as a frozen artifact.

The program and its dataset come from a JSON definition file:

  {
    "programs": [{
      "name": "qa",
      "modules": [{"name": "qa", "signature": "question -> answer",
                   "instruction": "Answer the question."}],
      "examples": [{"inputs": {"question": "..."},
                    "expected": {"answer": "..."}}]
    }]
  }`,
		RunE: func(cmd *cobra.Command, args []string) error {
			targets, err := loadTargets(programsPath)
			if err != nil {
				return err
			}
			target, ok := targets[programName]
			if !ok {
				return fmt.Errorf("program %q not found in %s", programName, programsPath)
			}

			oc := optimizerConfig()
			if strategy != "" {
				oc.Strategy = prompt.Strategy(strategy)
			}
			if trials > 0 {
				oc.MaxTrials = trials
			}

			gen, proposer := initCollaborators()
			optimizer, err := prompt.NewOptimizer(target.Program, gen, target.Metric, oc,
				prompt.WithProposer(proposer),
				prompt.WithObserver(cliObserver{}),
			)
			if err != nil {
				return err
			}

			trainset, valset, err := prompt.Partition(target.Examples, oc.ValidationFraction)
			if err != nil {
				return err
			}

			fmt.Fprintf(os.Stderr, "compiling %q: %d train / %d validation examples, strategy=%s\n",
				programName, len(trainset), len(valset), oc.Strategy)

			if err := optimizer.Run(cmd.Context(), trainset, valset); err != nil {
				return fmt.Errorf("optimization failed: %w", err)
			}

			compiled, err := optimizer.Compile()
			if err != nil {
				return err
			}

			var payload []byte
			if asJSON {
				payload, err = compiled.EncodeJSON()
			} else {
				payload, err = compiled.Encode()
			}
			if err != nil {
				return err
			}

			if outputPath == "" || outputPath == "-" {
				_, err = os.Stdout.Write(payload)
				return err
			}
			if err := os.WriteFile(outputPath, payload, 0644); err != nil {
				return fmt.Errorf("failed to write artifact: %w", err)
			}
			fmt.Fprintf(os.Stderr, "artifact written to %s (%d bytes)\n", outputPath, len(payload))
			return nil
		},
	}

	cmd.Flags().StringVarP(&programsPath, "programs", "f", "programs.json", "Program definition file")
	cmd.Flags().StringVarP(&programName, "program", "p", "", "Program to compile")
	cmd.Flags().StringVarP(&strategy, "strategy", "s", "", "Search strategy: bootstrap, rewrite or joint")
	cmd.Flags().IntVarP(&trials, "trials", "t", 0, "Maximum candidate evaluations")
	cmd.Flags().StringVarP(&outputPath, "output", "o", "", "Artifact output path ('-' for stdout)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Write the artifact as JSON instead of msgpack")
	cmd.MarkFlagRequired("program")

	return cmd
}

// inspectCmd decodes a frozen artifact and prints its modules
func inspectCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "inspect <artifact>",
		Short: "Show the modules of a frozen artifact",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}

			var compiled *prompt.CompiledProgram
			if asJSON {
				compiled, err = prompt.DecodeCompiledProgramJSON(data)
			} else {
				compiled, err = prompt.DecodeCompiledProgram(data)
			}
			if err != nil {
				return fmt.Errorf("failed to decode artifact: %w", err)
			}

			for _, m := range compiled.Modules() {
				printModule(m, "")
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Decode the artifact as JSON instead of msgpack")
	return cmd
}

func printModule(m *prompt.Module, indent string) {
	fmt.Printf("%smodule %s (%s)\n", indent, m.Name, m.Signature.Name())
	fmt.Printf("%s  instruction: %s\n", indent, m.Instruction)
	fmt.Printf("%s  demonstrations: %d\n", indent, len(m.Demos))
	for _, child := range m.Children {
		printModule(child, indent+"  ")
	}
}
