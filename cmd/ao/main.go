package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/mossland/agentic-orchestrator/internal/cli"
	"github.com/mossland/agentic-orchestrator/internal/version"
)

func main() {
	rootCmd := &cobra.Command{
		Use:     "ao",
		Short:   "AO - Autonomous orchestrator for Mossland concept pipelines",
		Version: version.String(),
		Long: `AO drives concepts through an LLM-powered pipeline: ideation, planning,
multi-persona review, development and QA. It also maintains the idea backlog
and promotes tickets between workflow stages.`,
	}

	// Pipeline commands
	rootCmd.AddCommand(cli.InitCmd())
	rootCmd.AddCommand(cli.StepCmd())
	rootCmd.AddCommand(cli.LoopCmd())
	rootCmd.AddCommand(cli.StatusCmd())
	rootCmd.AddCommand(cli.ResumeCmd())
	rootCmd.AddCommand(cli.ResetCmd())
	rootCmd.AddCommand(cli.PushCmd())

	// Backlog commands
	rootCmd.AddCommand(cli.BacklogCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
