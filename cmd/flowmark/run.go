package main

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/dshills/flowmark/flow"
	"github.com/dshills/flowmark/flow/emit"
	"github.com/dshills/flowmark/parse"
	"github.com/dshills/flowmark/runtime"
)

type runFlags struct {
	config         []string
	secrets        []string
	maxConcurrency int
	timeout        time.Duration
	statePath      string
	logPath        string
	events         bool
}

func (f *runFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringArrayVar(&f.config, "config", nil, "config override key=value (repeatable)")
	cmd.Flags().StringArrayVar(&f.secrets, "secret", nil, "secret key=value (repeatable)")
	cmd.Flags().IntVar(&f.maxConcurrency, "max-concurrency", 10, "maximum concurrently executing nodes")
	cmd.Flags().DurationVar(&f.timeout, "timeout", 0, "global execution timeout (0 disables)")
	cmd.Flags().StringVar(&f.statePath, "state", "", "checkpoint file written after every wave")
	cmd.Flags().StringVar(&f.logPath, "log", "", "append-only JSON execution log")
	cmd.Flags().BoolVar(&f.events, "events", false, "print execution events to stderr")
}

func (f *runFlags) executor() *flow.Executor {
	opts := []flow.Option{
		flow.WithMaxConcurrency(f.maxConcurrency),
	}
	if f.timeout > 0 {
		opts = append(opts, flow.WithTimeout(f.timeout))
	}
	if f.statePath != "" {
		opts = append(opts, flow.WithPersistencePath(f.statePath))
	}
	if f.logPath != "" {
		opts = append(opts, flow.WithLogPath(f.logPath))
	}
	if f.events {
		opts = append(opts, flow.WithEmitter(emit.NewLogEmitter(os.Stderr, false)))
	}
	return flow.NewExecutor(runtime.DefaultRegistry(), opts...)
}

func runCmd() *cobra.Command {
	flags := &runFlags{}
	cmd := &cobra.Command{
		Use:   "run <workflow.md>",
		Short: "Execute a workflow",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ast, err := parse.LoadFile(args[0])
			if err != nil {
				return err
			}
			plan, err := flow.BuildPlan(ast)
			if err != nil {
				return err
			}

			overrides, err := parseKeyValues(flags.config)
			if err != nil {
				return err
			}
			secrets, err := parseKeyValues(flags.secrets)
			if err != nil {
				return err
			}

			cfg, err := parse.BuildConfig(ast.Metadata, toAnyMap(overrides))
			if err != nil {
				return err
			}
			if err := parse.CheckSecrets(ast.Metadata, secrets); err != nil {
				return err
			}

			state := flow.NewState(ast.Metadata.Name, cfg, secrets)
			slog.Info("starting workflow", "workflow", ast.Metadata.Name, "run", state.RunID())

			if err := flags.executor().Execute(cmd.Context(), plan, state); err != nil {
				return err
			}
			return printResults(state)
		},
	}
	flags.register(cmd)
	return cmd
}

func printResults(state *flow.ExecutionState) error {
	fmt.Printf("run %s %s\n", state.RunID(), state.Status())
	for id, r := range state.Results() {
		line := fmt.Sprintf("  %s: %s (%dms)", id, r.Status, r.DurationMs)
		if r.Error != "" {
			line += " error=" + r.Error
		}
		fmt.Println(line)
	}
	return nil
}
