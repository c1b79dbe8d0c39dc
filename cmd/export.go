/*
Copyright © 2026 JACOB ARTHURS
*/
package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/jacobarthurs/showplan/internal/output"
)

var exportCmd = &cobra.Command{
	Use:   "export [report.json]",
	Short: "Export a saved JSON report to Excel",
	Long: `Build Excel workbooks from a JSON report written by compare or analyze.

A comparison report becomes one workbook named by [Files] excel_output_file.
An analysis report becomes one Summary.<plan>.<file>.<date>.<time>.xlsx
workbook per plan. With no file, the comparison report in the output directory
is exported, or the analysis report with --single.`,
	Example: `  # Export the last comparison
  showplan export

  # Export the last single plan analysis
  showplan export --single

  # Export a specific report
  showplan export Output/execution_plan_comparison.json`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		single, _ := cmd.Flags().GetBool("single")

		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}

		path := cfg.OutputPath(cfg.Files.JSONOutputFile)
		if single {
			path = cfg.OutputPath(cfg.Files.JSONSinglePlanOutputFile)
		}
		if len(args) == 1 {
			path = args[0]
		}

		comparison, analysis, err := output.ReadReport(path)
		if err != nil {
			return err
		}

		r := &run{cfg: cfg, started: time.Now()}
		logName, title := cfg.Logging.ExportLogFile, "Excel Export"
		if analysis != nil {
			logName, title = cfg.Logging.SinglePlanExportLogFile, "Single Plan Excel Export"
		}
		if err := r.openLog(cmd, logName, title); err != nil {
			return err
		}
		log.Infof("Reading report: %s", path)

		var written []string
		if comparison != nil {
			out := cfg.OutputPath(cfg.Files.ExcelOutputFile)
			if err := output.WriteComparisonExcel(out, *comparison, r.excelOptions()); err != nil {
				log.Error(err)
				return err
			}
			written = append(written, out)
		} else {
			for _, p := range analysis.Plans {
				out := filepath.Join(cfg.OutputDir(), output.SingleWorkbookName(p.PlanAnalysis, r.started))
				if err := output.WriteAnalysisExcel(out, p, r.excelOptions()); err != nil {
					log.Error(err)
					return err
				}
				written = append(written, out)
			}
		}

		for _, w := range written {
			log.Infof("Workbook written to: %s", w)
			fmt.Fprintf(os.Stderr, "Workbook written to: %s\n", w)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(exportCmd)
	exportCmd.Flags().Bool("single", false, "Export the single plan analysis report")
}
