package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/adapt/rap-engine/rap"
)

var (
	runCourse        string
	runReplaceManual bool
	runDryRun        bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Reconcile one course and print the report",
	Long: `Run one reconciliation for a configured course and print the full
report as JSON. Exits non-zero when any record or pair needs operator
attention, so the command slots into cron with failure alerting.

Use --dry-run first on a new course; the report is identical but nothing
is written to Canvas.`,
	RunE: runOnce,
}

func init() {
	runCmd.Flags().StringVar(&runCourse, "course", "", "Canvas course id to reconcile")
	runCmd.Flags().BoolVar(&runReplaceManual, "replace-manual", false, "Replace conflicting manual instructor overrides")
	runCmd.Flags().BoolVar(&runDryRun, "dry-run", false, "Compute and report without writing to Canvas")
	_ = runCmd.MarkFlagRequired("course")
}

func runOnce(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	d, err := buildDeps(cfg, false)
	if err != nil {
		return err
	}
	defer d.close()

	course := rap.CourseID(runCourse)
	sources, err := d.sources(course)
	if err != nil {
		return err
	}

	report, err := newReconciler(cfg, d).Run(cmd.Context(), rap.RunInput{
		Course:        course,
		Sources:       sources,
		ReplaceManual: runReplaceManual,
		DryRun:        runDryRun,
	})
	if err != nil {
		return err
	}

	out, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode report: %w", err)
	}
	fmt.Fprintln(os.Stdout, string(out))

	if report.NeedsAttention() {
		s := report.Summary
		return fmt.Errorf("run needs attention: %d extraction errors, %d unmatched, %d ambiguous, %d conflicts, %d apply conflicts, %d failed",
			s.ExtractionErrors, s.Unmatched, s.Ambiguous, s.Conflicts, s.ApplyConflicts, s.Failed)
	}
	return nil
}
