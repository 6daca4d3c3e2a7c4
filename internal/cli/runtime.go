// Package cli holds the cobra subcommand constructors for the ao binary.
package cli

import (
	"database/sql"
	"fmt"
	"log/slog"
	"os"

	"github.com/mossland/agentic-orchestrator/internal/alert"
	"github.com/mossland/agentic-orchestrator/internal/app"
	"github.com/mossland/agentic-orchestrator/internal/backlog"
	"github.com/mossland/agentic-orchestrator/internal/config"
	"github.com/mossland/agentic-orchestrator/internal/gitutil"
	"github.com/mossland/agentic-orchestrator/internal/ledger"
	"github.com/mossland/agentic-orchestrator/internal/lock"
	"github.com/mossland/agentic-orchestrator/internal/provider"
	"github.com/mossland/agentic-orchestrator/internal/scaffold"
	"github.com/mossland/agentic-orchestrator/internal/stages"
	"github.com/mossland/agentic-orchestrator/internal/state"
	"github.com/mossland/agentic-orchestrator/internal/ticket"
)

// runtime wires the full dependency graph once per command invocation.
type runtime struct {
	cfg       *config.Config
	log       *slog.Logger
	db        *sql.DB
	store     *state.SQLiteStore
	ledger    *ledger.Ledger
	alerts    *alert.FileSink
	providers *provider.Registry
	workspace *stages.Workspace
	guard     *lock.Guard
	orc       *app.Orchestrator
}

// newRuntime loads configuration and builds the service graph. The returned
// cleanup closes the database and must run on every exit path.
func newRuntime(dryRun bool) (*runtime, func(), error) {
	cfg, err := config.Load(".")
	if err != nil {
		return nil, nil, err
	}
	if dryRun {
		cfg.DryRun = true
	}

	log := slog.New(slog.NewTextHandler(os.Stderr, nil))

	db, err := state.Open(cfg.StateDBPath())
	if err != nil {
		return nil, nil, err
	}
	cleanup := func() { db.Close() }

	store := state.NewSQLiteStore(db)
	usage := ledger.New(db, log)
	alerts := alert.NewFileSink(cfg.AlertsDir(), log)
	workspace := stages.NewWorkspace(cfg.BaseDir)
	guard := lock.NewGuard(cfg.LockPath(), 0)

	providers := buildProviders(cfg, usage, alerts, log)

	runner := stages.NewRunner(&stages.Deps{
		Providers: providers,
		Workspace: workspace,
		Log:       log,
		DryRun:    cfg.DryRun,
	})

	orc := app.NewOrchestrator(app.OrchestratorOptions{
		Store:         store,
		Runner:        runner,
		Guard:         guard,
		Git:           gitutil.New(cfg.BaseDir),
		Log:           log,
		DryRun:        cfg.DryRun,
		RequiredScore: cfg.File.RequiredScore,
		StageLimits:   cfg.File.StageLimits,
	})

	return &runtime{
		cfg:       cfg,
		log:       log,
		db:        db,
		store:     store,
		ledger:    usage,
		alerts:    alerts,
		providers: providers,
		workspace: workspace,
		guard:     guard,
		orc:       orc,
	}, cleanup, nil
}

// buildProviders assembles the closed provider set from configuration.
// Unconfigured providers are dropped by the registry's availability check.
func buildProviders(cfg *config.Config, usage *ledger.Ledger, alerts *alert.FileSink, log *slog.Logger) *provider.Registry {
	opts := []provider.Option{
		provider.WithUsageRecorder(usage),
		provider.WithAlertSink(alerts),
		provider.WithLogger(log),
		provider.WithDryRun(cfg.DryRun),
	}

	m := cfg.File.Models
	return provider.NewRegistry(
		provider.NewAdapter(
			provider.NewClaudeBackend(m.Claude.Primary, m.Claude.Fallbacks, cfg.BaseDir), opts...),
		provider.NewAdapter(
			provider.NewOpenAIBackend(cfg.OpenAIKey, m.OpenAI.Primary, m.OpenAI.Fallbacks), opts...),
		provider.NewAdapter(
			provider.NewGeminiBackend(cfg.GeminiKey, m.Gemini.Primary, m.Gemini.Fallbacks), opts...),
	)
}

// backlogService builds the backlog orchestrator; it additionally requires
// the ticket store configuration.
func (r *runtime) backlogService() (*backlog.Orchestrator, error) {
	if err := r.cfg.RequireTicketStore(); err != nil {
		return nil, err
	}
	return backlog.New(backlog.Options{
		Tickets:   ticket.NewGitHubClient(r.cfg.GitHubOwner, r.cfg.GitHubRepo, r.cfg.GitHubToken),
		Providers: r.providers,
		Workspace: r.workspace,
		Scaffolds: scaffold.New(r.cfg.ScaffoldsDir()),
		Store:     r.store,
		Guard:     r.guard,
		Log:       r.log,
		DryRun:    r.cfg.DryRun,
	}), nil
}

func requireProviders(r *runtime) error {
	if r.providers.Len() == 0 {
		return fmt.Errorf("no providers available: install the claude CLI or set OPENAI_API_KEY / GEMINI_API_KEY")
	}
	return nil
}
