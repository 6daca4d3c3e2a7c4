package cli

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/mossland/agentic-orchestrator/internal/backlog"
)

// BacklogCmd returns the backlog command group.
func BacklogCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "backlog",
		Short: "Manage the idea backlog and ticket promotions",
	}
	cmd.AddCommand(
		backlogGenerateCmd(),
		backlogProcessCmd(),
		backlogRunCmd(),
		backlogStatusCmd(),
		backlogSetupCmd(),
	)
	return cmd
}

func backlogGenerateCmd() *cobra.Command {
	var (
		count  int
		dryRun bool
	)

	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate concept ideas and file them as backlog tickets",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, cleanup, err := newRuntime(dryRun)
			if err != nil {
				return err
			}
			defer cleanup()
			if err := requireProviders(rt); err != nil {
				return err
			}
			svc, err := rt.backlogService()
			if err != nil {
				return err
			}

			if count == 0 {
				count = rt.cfg.IdeasPerRun
			}
			proposals, err := svc.Generate(cmd.Context(), count)
			if err != nil {
				return err
			}
			printProposals(proposals, dryRun)
			return nil
		},
	}
	cmd.Flags().IntVar(&count, "count", 0, "number of ideas to generate")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "print proposals without creating tickets")
	return cmd
}

func backlogProcessCmd() *cobra.Command {
	var (
		maxPromotions int
		dryRun        bool
	)

	cmd := &cobra.Command{
		Use:   "process",
		Short: "Promote tickets labeled promote:to-plan / promote:to-dev",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, cleanup, err := newRuntime(dryRun)
			if err != nil {
				return err
			}
			defer cleanup()
			if err := requireProviders(rt); err != nil {
				return err
			}
			svc, err := rt.backlogService()
			if err != nil {
				return err
			}

			if maxPromotions == 0 {
				maxPromotions = rt.cfg.MaxPromotionsRun
			}
			report, err := svc.ProcessPromotions(cmd.Context(), maxPromotions)
			if err != nil {
				return err
			}
			printReport(report, dryRun)
			return nil
		},
	}
	cmd.Flags().IntVar(&maxPromotions, "max-promotions", 0, "cap promotions per run (0 = unlimited)")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "report eligible tickets without promoting")
	return cmd
}

func backlogRunCmd() *cobra.Command {
	var (
		ideas         int
		noIdeas       bool
		maxPromotions int
		dryRun        bool
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run one scheduled backlog pass: generate ideas, then promote",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, cleanup, err := newRuntime(dryRun)
			if err != nil {
				return err
			}
			defer cleanup()
			if err := requireProviders(rt); err != nil {
				return err
			}
			svc, err := rt.backlogService()
			if err != nil {
				return err
			}

			if ideas == 0 {
				ideas = rt.cfg.IdeasPerRun
			}
			if maxPromotions == 0 {
				maxPromotions = rt.cfg.MaxPromotionsRun
			}
			result, err := svc.Run(cmd.Context(), backlog.RunOptions{
				Ideas:         ideas,
				NoIdeas:       noIdeas,
				MaxPromotions: maxPromotions,
			})
			if err != nil {
				return err
			}
			color.Cyan("Run %s", result.RunID)
			if !noIdeas {
				printProposals(result.Proposals, dryRun)
			}
			printReport(result.Report, dryRun)
			return nil
		},
	}
	cmd.Flags().IntVar(&ideas, "ideas", 0, "number of ideas to generate")
	cmd.Flags().BoolVar(&noIdeas, "no-ideas", false, "skip idea generation")
	cmd.Flags().IntVar(&maxPromotions, "max-promotions", 0, "cap promotions per run (0 = unlimited)")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "report without mutating tickets or files")
	return cmd
}

func backlogStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show open ticket counts per status label",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, cleanup, err := newRuntime(false)
			if err != nil {
				return err
			}
			defer cleanup()
			svc, err := rt.backlogService()
			if err != nil {
				return err
			}

			counts, err := svc.Status(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Printf("Backlog:  %d\n", counts.Backlog)
			fmt.Printf("Planned:  %d\n", counts.Planned)
			fmt.Printf("In dev:   %d\n", counts.InDev)
			if counts.PendingPlanPromo > 0 || counts.PendingDevPromo > 0 {
				color.Yellow("Pending promotions: %d to-plan, %d to-dev",
					counts.PendingPlanPromo, counts.PendingDevPromo)
			}
			return nil
		},
	}
}

func backlogSetupCmd() *cobra.Command {
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "setup",
		Short: "Create the label taxonomy in the ticket store",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, cleanup, err := newRuntime(dryRun)
			if err != nil {
				return err
			}
			defer cleanup()
			svc, err := rt.backlogService()
			if err != nil {
				return err
			}

			if err := svc.Setup(cmd.Context()); err != nil {
				return err
			}
			color.Green("✓ Label taxonomy is in place")
			return nil
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "list labels without creating them")
	return cmd
}

func printProposals(proposals []backlog.Proposal, dryRun bool) {
	for _, p := range proposals {
		if p.Ticket > 0 {
			color.Green("✓ #%d %s", p.Ticket, p.Title)
		} else {
			fmt.Printf("- %s\n", p.Title)
		}
		if p.Summary != "" {
			fmt.Printf("    %s\n", p.Summary)
		}
	}
	if dryRun && len(proposals) > 0 {
		color.Yellow("dry-run: no tickets were created")
	}
}

func printReport(report *backlog.Report, dryRun bool) {
	if report == nil {
		return
	}
	if dryRun {
		if len(report.WouldProcess) == 0 {
			fmt.Println("No tickets eligible for promotion.")
			return
		}
		color.Yellow("dry-run: would promote %d ticket(s): %v",
			len(report.WouldProcess), report.WouldProcess)
		return
	}
	for _, n := range report.PlannedTickets {
		color.Green("✓ #%d promoted to plan", n)
	}
	for _, n := range report.DevTickets {
		color.Green("✓ #%d promoted to dev", n)
	}
	for _, n := range report.ResumedTickets {
		color.Yellow("↻ #%d resumed an incomplete promotion", n)
	}
	for _, n := range report.SkippedTickets {
		fmt.Printf("  #%d skipped (promotion budget)\n", n)
	}
	if report.ProcessedTotal == 0 && len(report.SkippedTickets) == 0 {
		fmt.Println("No tickets eligible for promotion.")
	}
}
