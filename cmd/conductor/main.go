package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var version = "0.3.0"

func main() {
	rootCmd := &cobra.Command{
		Use:   "conductor",
		Short: "Agent task orchestration and scheduling engine",
		Long: "conductor runs the durable task queue, approval gate, schedule\n" +
			"triggers, and change-notification hub for delegateable agent work.",
	}
	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newVersionCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the conductor version",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), "conductor "+version)
		},
	}
}
