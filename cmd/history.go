/*
Copyright © 2026 JACOB ARTHURS
*/
package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/jacobarthurs/showplan/internal/store"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List runs saved in the results store",
	Long: `List the most recent analyze and compare runs saved in the results store.

The store is chosen by --store, then [Store] dsn in config.ini, then the store
recorded on the default profile.`,
	Example: `  showplan history
  showplan history --store Output/showplan.db --limit 50`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}

		dsn, err := storeDSN(cmd, cfg)
		if err != nil {
			return err
		}
		if dsn == "" {
			return fmt.Errorf("no results store configured: use --store, [Store] dsn or 'showplan profile store'")
		}

		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}

		s, err := store.Open(ctx, dsn)
		if err != nil {
			return err
		}
		defer s.Close()

		runs, err := s.ListRuns(ctx, limit)
		if err != nil {
			return err
		}
		if len(runs) == 0 {
			fmt.Println("No runs recorded.")
			return nil
		}

		t := table.NewWriter()
		t.SetOutputMirror(os.Stdout)
		t.AppendHeader(table.Row{"ID", "Kind", "Created", "Plans", "Winner", "Source"})
		for _, ri := range runs {
			t.AppendRow(table.Row{
				ri.ID,
				ri.Kind,
				ri.CreatedAt.Local().Format(cfg.Logging.AnalysisTimestampFormat),
				ri.Plans,
				ri.Winner,
				ri.Source,
			})
		}
		t.SetStyle(table.StyleLight)
		t.Render()
		return nil
	},
}

func init() {
	rootCmd.AddCommand(historyCmd)
	historyCmd.Flags().String("store", "", "Results store DSN (sqlite path or postgres:// URL)")
	historyCmd.Flags().IntP("limit", "n", 20, "Number of runs to list")
}
