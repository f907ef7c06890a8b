package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/dshills/flowmark/flow"
	"github.com/dshills/flowmark/parse"
)

func resumeCmd() *cobra.Command {
	flags := &runFlags{}
	cmd := &cobra.Command{
		Use:   "resume <workflow.md>",
		Short: "Resume a failed or cancelled run from its checkpoint",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if flags.statePath == "" {
				return fmt.Errorf("resume requires --state pointing at the checkpoint file")
			}
			if !flow.CanResume(flags.statePath) {
				return fmt.Errorf("checkpoint %s is not resumable (missing, corrupt, or not a failed/cancelled run)", flags.statePath)
			}

			ast, err := parse.LoadFile(args[0])
			if err != nil {
				return err
			}
			plan, err := flow.BuildPlan(ast)
			if err != nil {
				return err
			}
			state, err := flow.LoadState(flags.statePath)
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
			if err := parse.CheckSecrets(ast.Metadata, secrets); err != nil {
				return err
			}

			slog.Info("resuming workflow",
				"workflow", ast.Metadata.Name,
				"run", state.RunID(),
				"wave", state.CurrentWave())

			if err := flags.executor().Resume(cmd.Context(), plan, state, toAnyMap(overrides), secrets); err != nil {
				return err
			}
			return printResults(state)
		},
	}
	flags.register(cmd)
	return cmd
}
