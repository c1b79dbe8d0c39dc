/*
Copyright © 2026 JACOB ARTHURS
*/
package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	log "github.com/sirupsen/logrus"
	"github.com/samber/lo"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/jacobarthurs/showplan/internal/analyzer"
	"github.com/jacobarthurs/showplan/internal/config"
	"github.com/jacobarthurs/showplan/internal/output"
	"github.com/jacobarthurs/showplan/internal/plan"
	"github.com/jacobarthurs/showplan/internal/planset"
	"github.com/jacobarthurs/showplan/internal/store"
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze [file...]",
	Short: "Analyze one or more execution plans",
	Long: `Analyze SQL Server execution plans one by one and report optimization findings.

Input is showplan XML (.sqlplan or .xml). Use "-" to read one plan from stdin.
With no files, every active plan of the plan set (Config/plans.json by default)
is analyzed, or the plan is pasted interactively when no plan set exists.
A plan that cannot be parsed is skipped with a warning.`,
	Example: `  # Analyze from file
  showplan analyze query.sqlplan

  # Analyze the active plans of the plan set and write the JSON report
  showplan analyze --out Output/single_plan_analysis.json

  # Also write one workbook per plan
  showplan analyze a.sqlplan b.sqlplan --excel

  # Read from stdin
  cat query.sqlplan | showplan analyze -`,
	RunE: func(cmd *cobra.Command, args []string) error {
		format, _ := cmd.Flags().GetString("format")
		out, _ := cmd.Flags().GetString("out")
		excel, _ := cmd.Flags().GetBool("excel")
		plansPath, _ := cmd.Flags().GetString("plans")
		previewLength, _ := cmd.Flags().GetInt("preview-length")

		if err := validateFormat(format); err != nil {
			return err
		}

		r, err := startRun(cmd, func(l config.Logging) string { return l.SinglePlanAnalysisLogFile }, "Single Plan Analysis")
		if err != nil {
			return err
		}

		opts := plan.SingleProfile
		if cmd.Flags().Changed("preview-length") {
			opts.PreviewLength = previewLength
		}

		targets, source, err := analyzeTargets(r, args, plansPath)
		if err != nil {
			log.Error(err)
			return err
		}
		if err := checkStdinReads(targets...); err != nil {
			log.Error(err)
			return err
		}
		if len(args) == 0 && source != "" && out == "" {
			out = r.cfg.OutputPath(r.cfg.Files.JSONSinglePlanOutputFile)
		}

		var reports []output.PlanReport
		var results []analyzer.AnalysisResult
		for _, t := range targets {
			log.Infof("Analyzing plan: %s (%s)", t.displayName(), t.input)

			a, err := plan.Resolve(t.input, t.label, opts)
			if err != nil {
				log.Errorf("Skipping %s: %v", t.input, err)
				fmt.Fprintf(os.Stderr, "warning: skipping %s: %v\n", t.input, err)
				continue
			}
			if t.name != "" {
				a = a.WithDisplay(t.name, t.description)
			}

			result := analyzer.Analyze(a)
			reports = append(reports, output.PlanReport{PlanAnalysis: a, Findings: result.Findings})
			results = append(results, result)
			logPlanSummary(a, result)
		}

		if len(reports) == 0 {
			err := fmt.Errorf("no plans could be analyzed")
			log.Error(err)
			return err
		}

		report := output.SingleReport{
			AnalysisTimestamp: r.timestamp(),
			TotalPlans:        len(reports),
			Plans:             reports,
		}

		switch format {
		case "json":
			if err := output.RenderJSON(os.Stdout, report); err != nil {
				return err
			}
		case "text":
			for i, p := range reports {
				if i > 0 {
					fmt.Println()
				}
				if err := output.RenderAnalysisText(os.Stdout, p.PlanAnalysis, results[i]); err != nil {
					return err
				}
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
			for _, p := range reports {
				path := filepath.Join(r.cfg.OutputDir(), output.SingleWorkbookName(p.PlanAnalysis, r.started))
				if err := output.WriteAnalysisExcel(path, p, r.excelOptions()); err != nil {
					return err
				}
				log.Infof("Workbook written to: %s", path)
				fmt.Fprintf(os.Stderr, "Workbook written to: %s\n", path)
			}
		}

		records := make([]store.PlanRecord, len(reports))
		for i, p := range reports {
			records[i] = store.PlanRecord{Analysis: p.PlanAnalysis, Findings: p.Findings}
		}
		if err := r.save(cmd, store.Run{Kind: store.KindAnalyze, Source: source, Plans: records}); err != nil {
			return err
		}

		log.Infof("Analyzed %d of %d plans", len(reports), len(targets))
		return nil
	},
}

// target is one plan to read, either from the command line or the plan set.
type target struct {
	input       string
	label       string
	name        string
	description string
}

func (t target) displayName() string {
	if t.name != "" {
		return t.name
	}
	if t.input == "" || t.input == "-" {
		return "stdin"
	}
	return filepath.Base(t.input)
}

// analyzeTargets returns the files named on the command line, or the active
// plans of the plan set when there are none. Plan-set entries whose file is
// missing are reported and skipped. Without a plan set the plan is pasted.
func analyzeTargets(r *run, args []string, plansPath string) ([]target, string, error) {
	if len(args) > 0 {
		targets := make([]target, len(args))
		for i, a := range args {
			targets[i] = target{input: a}
		}
		if len(args) == 1 {
			return targets, args[0], nil
		}
		return targets, "", nil
	}

	if plansPath == "" {
		plansPath = r.cfg.PlanSetPath()
		if !fileExists(plansPath) {
			log.Infof("No plan set at %s, reading plan interactively", plansPath)
			return []target{{}}, "", nil
		}
	}
	set, err := planset.Load(plansPath)
	if err != nil {
		return nil, "", err
	}
	plans, err := set.ForAnalysis()
	if err != nil {
		return nil, "", fmt.Errorf("%s: %w", plansPath, err)
	}
	log.Infof("Found %d active plans in %s", len(plans), plansPath)

	var targets []target
	for _, p := range plans {
		if err := p.CheckExists(); err != nil {
			log.Errorf("Skipping %s: %v", p.Name, err)
			fmt.Fprintf(os.Stderr, "warning: skipping %s: %v\n", p.Name, err)
			continue
		}
		targets = append(targets, target{input: p.Path, name: p.Name, description: p.Description})
	}
	return targets, plansPath, nil
}

var stdinIsTerminal = func() bool {
	return term.IsTerminal(int(os.Stdin.Fd()))
}

// checkStdinReads rejects more than one stdin or pasted plan when stdin is
// piped, since the first read drains it.
func checkStdinReads(targets ...target) error {
	n := lo.CountBy(targets, func(t target) bool { return t.input == "" || t.input == "-" })
	if n > 1 && !stdinIsTerminal() {
		return fmt.Errorf("stdin is not a terminal: only one plan can be read from it")
	}
	return nil
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func logPlanSummary(a plan.PlanAnalysis, result analyzer.AnalysisResult) {
	s := a.Summary
	log.Infof("Plan %s: %d statements, cost %.4f, elapsed %d ms, cpu %d ms",
		a.Name(), s.TotalStatements, s.TotalEstimatedCost, s.TotalElapsedTimeMs, s.TotalCPUTimeMs)
	log.Infof("Plan %s: %d missing indexes, %d warnings, %d optimizer timeouts",
		a.Name(), len(s.MissingIndexes), s.TotalWarnings, s.OptimizerTimeouts)
	log.Infof("Plan %s: %d critical, %d warning, %d info findings",
		a.Name(), result.Count(analyzer.Critical), result.Count(analyzer.Warning), result.Count(analyzer.Info))
}

func init() {
	rootCmd.AddCommand(analyzeCmd)
	analyzeCmd.Flags().StringP("format", "f", "text", "Output format: text, json")
	analyzeCmd.Flags().StringP("out", "o", "", "Write the JSON report to this file")
	analyzeCmd.Flags().Bool("excel", false, "Write one Excel workbook per plan to the output directory")
	analyzeCmd.Flags().String("plans", "", "Plan-set JSON file (default from config.ini)")
	analyzeCmd.Flags().String("store", "", "Results store DSN (sqlite path or postgres:// URL)")
	analyzeCmd.Flags().Int("preview-length", plan.SingleProfile.PreviewLength, "Characters of statement text kept in previews")
}
