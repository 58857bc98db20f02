package main

import (
	"github.com/spf13/cobra"
)

func newRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "prep-service",
		Short:         "Vehicle preparation and time clock service",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context())
		},
	}

	rootCmd.AddCommand(newServeCommand())
	rootCmd.AddCommand(newRepairCommand())

	return rootCmd
}
