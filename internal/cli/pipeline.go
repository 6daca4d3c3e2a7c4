package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/mossland/agentic-orchestrator/internal/app"
	"github.com/mossland/agentic-orchestrator/internal/stages"
)

// InitCmd returns the init command.
func InitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Initialize a new concept and make it active",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, cleanup, err := newRuntime(false)
			if err != nil {
				return err
			}
			defer cleanup()

			st, err := rt.orc.InitProject(cmd.Context())
			if err != nil {
				return err
			}
			color.Green("✓ Initialized concept %s (stage %s)", st.ConceptID, st.Stage)
			return nil
		},
	}
}

// StepCmd returns the step command.
func StepCmd() *cobra.Command {
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "step",
		Short: "Execute one stage of the active concept",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, cleanup, err := newRuntime(dryRun)
			if err != nil {
				return err
			}
			defer cleanup()
			if err := requireProviders(rt); err != nil {
				return err
			}

			res, st, err := rt.orc.Step(cmd.Context())
			if err != nil {
				return err
			}
			printStepResult(res, st.ConceptID, string(st.Stage))
			if res.Fatal {
				return fmt.Errorf("pipeline halted: %s", res.Message)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "execute decision logic without provider or mutating calls")
	return cmd
}

// LoopCmd returns the loop command.
func LoopCmd() *cobra.Command {
	var (
		maxSteps int
		delay    time.Duration
		dryRun   bool
	)

	cmd := &cobra.Command{
		Use:   "loop",
		Short: "Repeat step under guardrails until the concept finishes",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, cleanup, err := newRuntime(dryRun)
			if err != nil {
				return err
			}
			defer cleanup()
			if err := requireProviders(rt); err != nil {
				return err
			}

			if maxSteps == 0 && rt.cfg.File.Loop.MaxSteps > 0 {
				maxSteps = rt.cfg.File.Loop.MaxSteps
			}
			if delay == 0 && rt.cfg.File.Loop.DelaySeconds > 0 {
				delay = time.Duration(rt.cfg.File.Loop.DelaySeconds) * time.Second
			}

			outcome, err := rt.orc.Loop(cmd.Context(), app.LoopOptions{
				MaxSteps: maxSteps,
				Delay:    delay,
			})
			if err != nil {
				return err
			}
			color.Cyan("Loop finished after %d step(s): %s", outcome.Steps, outcome.Stopped)
			if outcome.State != nil {
				fmt.Printf("Concept %s is in stage %s\n", outcome.State.ConceptID, outcome.State.Stage)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&maxSteps, "max-steps", 0, "maximum steps before stopping (default 10)")
	cmd.Flags().DurationVar(&delay, "delay", 0, "pause between steps")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "execute decision logic without provider or mutating calls")
	return cmd
}

// StatusCmd returns the status command.
func StatusCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the active concept's pipeline position",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, cleanup, err := newRuntime(false)
			if err != nil {
				return err
			}
			defer cleanup()

			report, err := rt.orc.Status(cmd.Context())
			if err != nil {
				return err
			}
			if asJSON {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(report)
			}
			printStatus(cmd.Context(), rt, report)
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "emit status as JSON")
	return cmd
}

// ResumeCmd returns the resume command.
func ResumeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "resume",
		Short: "Lift a quota pause so the paused stage re-enters",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, cleanup, err := newRuntime(false)
			if err != nil {
				return err
			}
			defer cleanup()

			st, err := rt.orc.Resume(cmd.Context())
			if err != nil {
				return err
			}
			color.Green("✓ Concept %s ready in stage %s", st.ConceptID, st.Stage)
			return nil
		},
	}
}

// ResetCmd returns the reset command.
func ResetCmd() *cobra.Command {
	var keepProject bool

	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Start the pipeline over",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, cleanup, err := newRuntime(false)
			if err != nil {
				return err
			}
			defer cleanup()

			st, err := rt.orc.Reset(cmd.Context(), keepProject)
			if err != nil {
				return err
			}
			color.Green("✓ Reset: concept %s back at %s", st.ConceptID, st.Stage)
			return nil
		},
	}
	cmd.Flags().BoolVar(&keepProject, "keep-project", false, "keep the current concept id")
	return cmd
}

// PushCmd returns the push command.
func PushCmd() *cobra.Command {
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "push",
		Short: "Commit pending artifacts and push the repository",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, cleanup, err := newRuntime(dryRun)
			if err != nil {
				return err
			}
			defer cleanup()

			if err := rt.orc.Push(cmd.Context()); err != nil {
				return err
			}
			if dryRun {
				color.Yellow("dry-run: nothing was pushed")
				return nil
			}
			color.Green("✓ Pushed")
			return nil
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "report what would be pushed")
	return cmd
}

func printStepResult(res *stages.Result, conceptID, stage string) {
	switch {
	case res.Fatal:
		color.Red("✗ %s", res.Message)
	case res.Paused:
		color.Yellow("⏸ %s", res.Message)
	case !res.Success:
		color.Yellow("⚠ %s (stage %s will retry)", res.Message, stage)
	default:
		color.Green("✓ %s", res.Message)
	}
	for _, ref := range res.Artifacts {
		fmt.Printf("  artifact: %s\n", ref)
	}
	if res.Artifact != "" && len(res.Artifacts) == 0 {
		fmt.Printf("  artifact: %s\n", res.Artifact)
	}
	fmt.Printf("Concept %s is now in stage %s\n", conceptID, stage)
}

func printStatus(ctx context.Context, rt *runtime, report *app.StatusReport) {
	bold := color.New(color.Bold)
	bold.Printf("Concept %s\n", report.ConceptID)

	switch {
	case report.Complete:
		color.Green("Stage: %s", report.Stage)
	case report.Rejected:
		color.Red("Stage: %s", report.Stage)
	case report.Paused:
		color.Yellow("Stage: %s (paused: %s)", report.Stage, report.PausedFor)
	default:
		fmt.Printf("Stage: %s\n", report.Stage)
	}

	w := tabwriter.NewWriter(os.Stdout, 2, 4, 2, ' ', 0)
	fmt.Fprintln(w, "STAGE\tITERATIONS\tLIMIT")
	for _, s := range report.Stages {
		marker := "  "
		if s.Current {
			marker = "→ "
		}
		fmt.Fprintf(w, "%s%s\t%d\t%d\n", marker, s.Stage, s.Iterations, s.Limit)
	}
	w.Flush()

	if report.ReviewScore != nil {
		fmt.Printf("Review: %.1f/%.1f (%d approvals)\n",
			*report.ReviewScore, report.Required, report.Approvals)
	}
	if report.TestsPassed != nil {
		fmt.Printf("QA passed: %v\n", *report.TestsPassed)
	}
	if report.LastError != "" {
		color.Yellow("Last error (%d total): %s", report.ErrorCount, report.LastError)
	}

	if rows, err := rt.ledger.Today(ctx); err == nil && len(rows) > 0 {
		fmt.Println("Today's usage:")
		for _, u := range rows {
			fmt.Printf("  %s/%s: %d calls (%d failed), %d in / %d out tokens\n",
				u.Provider, u.Model, u.Calls, u.Failures, u.InputTokens, u.OutputTokens)
		}
	}

	fmt.Printf("Next: %s\n", report.NextStep)
}
