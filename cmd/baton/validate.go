package main

import (
	"fmt"

	"github.com/aretw0/baton/pkg/naming"
	"github.com/spf13/cobra"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check the stage graph for consistency",
	Long: `Checks that every artifact a stage reads or writes has exactly one row in the
naming table, that every next stage exists and that no chain loops.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		g, err := loadGraph(cmd)
		if err != nil {
			return err
		}
		if err := naming.Validate(g); err != nil {
			return fmt.Errorf("validation failed: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Graph %s is valid: %d stages, %d artifacts\n",
			g.Pipeline, len(g.Stages), len(g.Artifacts))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(validateCmd)
}
