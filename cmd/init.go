/*
Copyright © 2026 JACOB ARTHURS
*/
package cmd

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/jacobarthurs/showplan/internal/config"
	"github.com/jacobarthurs/showplan/internal/planset"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create config.ini and an example plan set",
	Long: `Create config.ini in the working directory (or at --config) and an example
plan set at Config/plans.json next to it.

config.ini holds paths, log settings, report file names and Excel styling.
The plan set lists the .sqlplan files that compare and analyze use when no
files are given. Existing files are not overwritten.`,
	Example: `  # Create default config
  showplan init

  # Overwrite existing files
  showplan init --force`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		force, _ := cmd.Flags().GetBool("force")
		path, _ := cmd.Flags().GetString("config")

		if path == "" {
			path = config.FileName
		}
		abs, err := filepath.Abs(path)
		if err != nil {
			return err
		}

		if err := config.WriteTemplate(abs, force); err != nil {
			return err
		}
		fmt.Printf("Created %s\n", abs)

		planSet := config.Default(filepath.Dir(abs)).PlanSetPath()
		if err := planset.WriteTemplate(planSet, force); err != nil {
			return err
		}
		fmt.Printf("Created %s\n", planSet)

		return nil
	},
}

func init() {
	rootCmd.AddCommand(initCmd)
	initCmd.Flags().BoolP("force", "f", false, "Overwrite existing files")
}
