/*
Copyright © 2026 JACOB ARTHURS
*/
package cmd

import (
	"fmt"
	"os"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/jacobarthurs/showplan/internal/comparator"
	"github.com/jacobarthurs/showplan/internal/config"
	"github.com/jacobarthurs/showplan/internal/output"
	"github.com/jacobarthurs/showplan/internal/plan"
	"github.com/jacobarthurs/showplan/internal/planset"
	"github.com/jacobarthurs/showplan/internal/store"
)

var compareCmd = &cobra.Command{
	Use:   "compare [file1] [file2]",
	Short: "Compare two execution plans",
	Long: `Compare two SQL Server execution plans metric by metric.

Inputs are showplan XML files (.sqlplan or .xml). Either file (but not both)
can be "-" to read from stdin. With no files, the first two active plans of the
plan set (Config/plans.json by default) are compared and the JSON report is
written to the output directory. Without a plan set both plans are pasted.

Every metric is lower-is-better. The plan that wins more metrics is the winner;
an equal number of wins is a tie.`,
	Example: `  # Compare two plan files
  showplan compare before.sqlplan after.sqlplan

  # Label the plans in the report
  showplan compare a.sqlplan b.sqlplan --name1 "Current" --name2 "With index"

  # Compare the plan set and write the Excel workbook
  showplan compare --excel

  # Read one plan from stdin
  cat before.sqlplan | showplan compare - after.sqlplan`,
	Args: cobra.MaximumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		format, _ := cmd.Flags().GetString("format")
		out, _ := cmd.Flags().GetString("out")
		excel, _ := cmd.Flags().GetBool("excel")
		plansPath, _ := cmd.Flags().GetString("plans")
		name1, _ := cmd.Flags().GetString("name1")
		name2, _ := cmd.Flags().GetString("name2")

		if err := validateFormat(format); err != nil {
			return err
		}
		if len(args) == 1 {
			return fmt.Errorf("compare needs two plan files, or none to use the plan set")
		}
		if len(args) == 2 && args[0] == "-" && args[1] == "-" {
			return fmt.Errorf("only one plan can be read from stdin")
		}

		r, err := startRun(cmd, func(l config.Logging) string { return l.AnalysisLogFile }, "Execution Plan Comparison")
		if err != nil {
			return err
		}

		first, second, source, err := compareTargets(r, args, plansPath)
		if err != nil {
			log.Error(err)
			return err
		}
		if err := checkStdinReads(first, second); err != nil {
			log.Error(err)
			return err
		}
		if name1 != "" {
			first.name = name1
		}
		if name2 != "" {
			second.name = name2
		}
		if len(args) == 0 && source != "" && out == "" {
			out = r.cfg.OutputPath(r.cfg.Files.JSONOutputFile)
		}

		a, err := resolveForCompare(first)
		if err != nil {
			return err
		}
		b, err := resolveForCompare(second)
		if err != nil {
			return err
		}

		log.Info("Comparing execution plans")
		c := comparator.Compare(a, b)
		logComparisonSummary(a, b, c)

		report := output.ComparisonReport{
			AnalysisTimestamp: r.timestamp(),
			ConfigFile:        source,
			Plan1:             a,
			Plan2:             b,
			Comparison:        c,
		}

		switch format {
		case "json":
			if err := output.RenderJSON(os.Stdout, report); err != nil {
				return err
			}
		case "text":
			if err := output.RenderComparisonText(os.Stdout, c); err != nil {
				return err
			}
		}

		if out != "" {
			if err := output.WriteJSONFile(out, report); err != nil {
				return err
			}
			log.Infof("Results written to: %s", out)
			fmt.Fprintf(os.Stderr, "Results written to: %s\n", out)
		}

		if excel {
			path := r.cfg.OutputPath(r.cfg.Files.ExcelOutputFile)
			if err := output.WriteComparisonExcel(path, report, r.excelOptions()); err != nil {
				return err
			}
			log.Infof("Workbook written to: %s", path)
			fmt.Fprintf(os.Stderr, "Workbook written to: %s\n", path)
		}

		return r.save(cmd, store.Run{
			Kind:       store.KindCompare,
			Source:     source,
			Plans:      []store.PlanRecord{{Analysis: a}, {Analysis: b}},
			Comparison: &c,
		})
	},
}

// compareTargets returns the two plans to compare and the plan-set file they
// came from, if any. A plan-set file that is missing is an error.
func compareTargets(r *run, args []string, plansPath string) (target, target, string, error) {
	if len(args) == 2 {
		return target{input: args[0], label: "plan 1: "}, target{input: args[1], label: "plan 2: "}, "", nil
	}

	if plansPath == "" {
		plansPath = r.cfg.PlanSetPath()
		if !fileExists(plansPath) {
			log.Infof("No plan set at %s, reading plans interactively", plansPath)
			return target{label: "plan 1: "}, target{label: "plan 2: "}, "", nil
		}
	}
	set, err := planset.Load(plansPath)
	if err != nil {
		return target{}, target{}, "", err
	}
	p1, p2, err := set.ComparePair()
	if err != nil {
		return target{}, target{}, "", fmt.Errorf("%s: %w", plansPath, err)
	}

	targets := make([]target, 0, 2)
	for _, p := range []planset.Plan{p1, p2} {
		if err := p.CheckExists(); err != nil {
			return target{}, target{}, "", err
		}
		log.Infof("Plan %d: %s (%s)", p.ID, p.Name, p.Path)
		targets = append(targets, target{input: p.Path, name: p.Name, description: p.Description})
	}
	return targets[0], targets[1], plansPath, nil
}

func resolveForCompare(t target) (plan.PlanAnalysis, error) {
	log.Infof("Parsing plan: %s (%s)", t.displayName(), t.input)

	a, err := plan.Resolve(t.input, t.label, plan.CompareProfile)
	if err != nil {
		log.Errorf("Failed to parse %s: %v", t.input, err)
		return plan.PlanAnalysis{}, err
	}
	if t.name != "" {
		a = a.WithDisplay(t.name, t.description)
	}
	return a, nil
}

func logComparisonSummary(a, b plan.PlanAnalysis, c comparator.Comparison) {
	log.Infof("Overall winner: %s (wins: %d to %d, ties: %d)", c.Winner, c.WinsA, c.WinsB, c.Ties)
	for _, reason := range c.WinnerReasons {
		log.Infof("  %s", reason)
	}

	for _, key := range []string{plan.MetricTotalEstimatedCost, plan.MetricTotalElapsedTimeMs, plan.MetricTotalCPUTimeMs} {
		if m, ok := c.Metric(key); ok {
			log.Infof("%s: %s=%s, %s=%s (%+.2f%%)",
				key, c.PlanA, formatMetric(m.ValueA), c.PlanB, formatMetric(m.ValueB), m.PercentDifference)
		}
	}

	log.Infof("Missing indexes: %s=%d, %s=%d",
		a.Name(), len(a.Summary.MissingIndexes), b.Name(), len(b.Summary.MissingIndexes))
}

func formatMetric(v float64) string {
	if v == float64(int64(v)) {
		return fmt.Sprintf("%d", int64(v))
	}
	return fmt.Sprintf("%.4f", v)
}

func init() {
	rootCmd.AddCommand(compareCmd)
	compareCmd.Flags().StringP("format", "f", "text", "Output format: text, json")
	compareCmd.Flags().StringP("out", "o", "", "Write the JSON report to this file")
	compareCmd.Flags().Bool("excel", false, "Write the comparison workbook to the output directory")
	compareCmd.Flags().String("plans", "", "Plan-set JSON file (default from config.ini)")
	compareCmd.Flags().String("store", "", "Results store DSN (sqlite path or postgres:// URL)")
	compareCmd.Flags().String("name1", "", "Display name for the first plan")
	compareCmd.Flags().String("name2", "", "Display name for the second plan")
}
