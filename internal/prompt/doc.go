// Package prompt implements the prompt-program compiler: declarative
// signature/module pipelines plus the optimizer that tunes their instructions
// and few-shot demonstrations against labeled examples.
//
// # Core Components
//
// Signature: Declarative input/output specifications for generation steps
//
//	sig := prompt.MustParseSignature("question -> answer")
//
// Module / Program: composable generation steps wired into a DAG
//
//	mod, _ := prompt.NewModule("qa", sig, "Answer the question concisely.")
//	program, _ := prompt.NewProgram(mod)
//	outputs, err := program.Execute(ctx, generator, inputs)
//
// Trace: explicit per-execution recording, threaded through Execute via
// WithRecorder rather than ambient global state
//
//	rec := prompt.NewRecorder()
//	tr := rec.Start()
//	outputs, err := program.Execute(ctx, generator, inputs, prompt.WithRecorder(tr))
//	rec.Stop(tr)
//
// Metric: deterministic scoring of predicted vs expected outputs
//
//	metric := prompt.ExactMatch("answer")
//
// Optimizer: searches over (instruction, demonstrations) candidates with one
// of three strategies (bootstrap, rewrite, joint), scores them against a
// validation split, and freezes the winners into a CompiledProgram
//
//	opt, _ := prompt.NewOptimizer(program, generator, metric, cfg,
//	    prompt.WithProposer(proposer))
//	if err := opt.Run(ctx, trainset, valset); err != nil { ... }
//	compiled, err := opt.Compile()
//
// The CompiledProgram is the only artifact that outlives an optimization run;
// it serializes to msgpack or JSON and round-trips execution-equivalent.
package prompt
