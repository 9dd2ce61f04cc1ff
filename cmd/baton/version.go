package main

import (
	"fmt"
	"strings"

	"github.com/aretw0/baton"
	"github.com/spf13/cobra"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number of baton",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "baton version %s\n", strings.TrimSpace(baton.Version))
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
