package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dshills/flowmark/flow"
	"github.com/dshills/flowmark/parse"
)

func planCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "plan <workflow.md>",
		Short: "Show the execution waves for a workflow",
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

			fmt.Printf("workflow: %s (%d nodes, %d waves)\n",
				plan.WorkflowID, plan.TotalNodes, len(plan.Waves))
			for _, wave := range plan.Waves {
				fmt.Printf("  wave %d: %s\n", wave.Number, strings.Join(wave.NodeIDs, ", "))
			}
			return nil
		},
	}
}
