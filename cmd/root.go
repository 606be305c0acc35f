package cmd

import "github.com/spf13/cobra"

var rootCmd = &cobra.Command{
	Use:   "automation-scheduler",
	Short: "Cron job scheduler and ADR invoice retrieval orchestrator",
}

func init() {
	rootCmd.AddCommand(startCmd)
	rootCmd.AddCommand(migrateCmd)
}

func Execute() error {
	return rootCmd.Execute()
}
