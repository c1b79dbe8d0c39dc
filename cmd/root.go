/*
Copyright © 2026 JACOB ARTHURS
*/
package cmd

import (
	"os"
	"runtime/debug"

	"github.com/spf13/cobra"
)

var Version = "dev"

func init() {
	if Version == "dev" {
		if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "(devel)" {
			Version = info.Main.Version
		}
	}
	rootCmd.Version = Version
}

var rootCmd = &cobra.Command{
	Use:          "showplan",
	SilenceUsage: true,
	Short:        "Analyze and compare SQL Server execution plans",
	Long: `showplan is a CLI tool for analyzing and comparing SQL Server showplan XML
(.sqlplan) files.

It summarizes cost, runtime, missing index and warning information per plan,
scores two plans against each other metric by metric, and writes text, JSON
and Excel reports.`,
	Example: `  # Analyze a single plan
  showplan analyze query.sqlplan

  # Compare two plans
  showplan compare before.sqlplan after.sqlplan

  # Compare the plans listed in Config/plans.json
  showplan compare

  # Create config.ini and a plan set
  showplan init`,
}

func init() {
	rootCmd.PersistentFlags().StringP("config", "c", "", "Settings file (default ./config.ini)")
	rootCmd.PersistentFlags().Bool("no-log", false, "Do not write a log file")
}

func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}
