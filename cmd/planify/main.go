// Package main implements the planify CLI: a planning session in which an
// Architect drafts, a Critic reviews and an Integrator merges an
// implementation plan for a repository.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/planify/internal/agent"
	"github.com/fyrsmithlabs/planify/internal/config"
	"github.com/fyrsmithlabs/planify/internal/logging"
	"github.com/fyrsmithlabs/planify/internal/orchestrator"
	"github.com/fyrsmithlabs/planify/internal/repocontext"
	"github.com/fyrsmithlabs/planify/internal/secrets"
	"github.com/fyrsmithlabs/planify/internal/session"
)

// Exit codes
const (
	exitDone    = 0
	exitUsage   = 1
	exitFailed  = 2
	exitAborted = 130
)

var (
	// version is set via ldflags during build
	version = "dev"

	repoPath      string
	configPath    string
	noInteractive bool
	maxRounds     int
	resumeID      string
	outputPath    string
	dryRun        bool
	verbose       bool
	metricsFile   string
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := execute(ctx, rootCmd, os.Stderr)
	stop()
	os.Exit(code)
}

var rootCmd = &cobra.Command{
	Use:   "planify [task]",
	Short: "Plan a change with an Architect, a Critic and an Integrator",
	Long: `planify runs a multi-agent planning session against a repository.

Each round the Architect drafts a plan, the Critic reviews it and the
Integrator merges the critique. In interactive mode you review every
round; press Enter or type "accept" to finish.

Examples:
  # Plan in the current repository
  planify "add rate limiting to the public API"

  # Plan another repository without prompts, three rounds at most
  planify -r ../service --no-interactive -m 3 "migrate to postgres"

  # Resume a session that was interrupted
  planify --resume 2025-03-14-150926-add-rate-limiting-1a2b3c4d`,
	Version:       version,
	Args:          cobra.MaximumNArgs(1),
	SilenceErrors: true,
	SilenceUsage:  true,
	RunE:          runPlan,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&repoPath, "repo", "r", ".", "repository to plan against")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file (default: planify.yaml, .planify.yaml, ~/.config/planify/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")

	rootCmd.Flags().BoolVar(&noInteractive, "no-interactive", false, "run without human feedback between rounds")
	rootCmd.Flags().IntVarP(&maxRounds, "max-rounds", "m", 0, "maximum rounds (overrides limits.max_rounds)")
	rootCmd.Flags().StringVar(&resumeID, "resume", "", "resume an unfinished session by ID")
	rootCmd.Flags().StringVarP(&outputPath, "output", "o", "", "plan document path (default: output.path)")
	rootCmd.Flags().BoolVar(&dryRun, "dry-run", false, "show configuration and repository context without calling agents")
	rootCmd.Flags().StringVar(&metricsFile, "metrics-file", "", "write Prometheus metrics to this file on exit")

	rootCmd.AddCommand(sessionsCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(configCmd)
}

// exitError carries a process exit code. Reported errors were already shown
// to the user.
type exitError struct {
	code     int
	err      error
	reported bool
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }

func usageError(err error) error {
	return &exitError{code: exitUsage, err: err}
}

// execute runs cmd and maps its error to an exit code.
func execute(ctx context.Context, cmd *cobra.Command, stderr io.Writer) int {
	err := cmd.ExecuteContext(ctx)
	if err == nil {
		return exitDone
	}
	code := exitUsage
	var ee *exitError
	if errors.As(err, &ee) {
		code = ee.code
		if ee.reported {
			return code
		}
	}
	fmt.Fprintln(stderr, errorStyle.Render("Error:"), err)
	return code
}

// outcomeError maps a terminal state to the command result.
func outcomeError(out orchestrator.Outcome) error {
	if out.State == orchestrator.StateDone {
		return nil
	}
	err := out.Err
	if err == nil {
		err = fmt.Errorf("session ended %s", out.State)
	}
	code := exitFailed
	if out.State == orchestrator.StateAborted {
		code = exitAborted
	}
	return &exitError{code: code, err: err, reported: true}
}

func runPlan(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	stderr := cmd.ErrOrStderr()

	var task string
	if len(args) == 1 {
		task = args[0]
	}
	if strings.TrimSpace(task) == "" && resumeID == "" {
		return usageError(errors.New("a task is required unless --resume is given"))
	}
	if cmd.Flags().Changed("max-rounds") && maxRounds < 1 {
		return usageError(fmt.Errorf("--max-rounds must be >= 1, got %d", maxRounds))
	}
	if resumeID != "" {
		if err := session.ValidateID(resumeID); err != nil {
			return usageError(err)
		}
	}

	repo, err := resolveRepo(repoPath)
	if err != nil {
		return usageError(err)
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return usageError(err)
	}
	if maxRounds > 0 {
		cfg.Limits.MaxRounds = maxRounds
	}

	a, err := newApp(ctx, cfg, repo, verbose, stderr)
	if err != nil {
		return usageError(err)
	}
	defer a.close()

	task = secrets.ScrubString(a.scrubber, task)
	loader := repocontext.NewLoader(repocontext.OptionsFrom(cfg.Context), a.scrubber, a.logger)

	if dryRun {
		return runDryRun(ctx, cmd.OutOrStdout(), a, loader)
	}

	if resumeID != "" {
		var wantInteractive *bool
		if cmd.Flags().Changed("no-interactive") {
			v := !noInteractive
			wantInteractive = &v
		}
		cfg = resumeConfig(ctx, a.store, cfg, resumeID, wantInteractive, stderr)
	}

	team, err := agent.NewTeam(cfg, a.logger)
	if err != nil {
		return usageError(err)
	}

	disp := newDisplay(stderr)
	fb := orchestrator.NewLineFeedback(cmd.InOrStdin(), stderr)
	defer fb.Close()
	opts := []orchestrator.Option{
		orchestrator.WithScrubber(a.scrubber),
		orchestrator.WithLogger(a.logger),
		orchestrator.WithMetrics(a.metrics),
		orchestrator.WithProgress(disp.progress),
		orchestrator.WithFeedback(fb),
	}
	if cfg.Context.Watch {
		opts = append(opts, orchestrator.WithWatcher(watchRepo(a.logger)))
	}
	orch, err := orchestrator.New(team, a.store, loader, opts...)
	if err != nil {
		return usageError(err)
	}

	if resumeID == "" {
		disp.header(task, repo)
	} else {
		fmt.Fprintln(stderr, headerStyle.Render("planify"), labelStyle.Render("resuming"), valueStyle.Render(resumeID))
	}

	out := orch.Run(ctx, session.Request{
		Task:        task,
		RepoPath:    repo,
		MaxRounds:   cfg.Limits.MaxRounds,
		Interactive: !noInteractive,
		Settings:    session.SettingsFrom(cfg),
		ResumeID:    resumeID,
	})

	var written string
	if out.State == orchestrator.StateDone {
		path, err := resolveOutput(outputPath, cfg.Output.Path, repo, out.Session.Request.Task)
		if err == nil {
			err = writePlan(path, out.Session)
		}
		if err != nil {
			a.logger.Error(ctx, "failed to write plan", zap.Error(err))
			out.State, out.Err = orchestrator.StateFailed, err
		} else {
			written = path
		}
	}
	disp.outcome(out, written)

	if metricsFile != "" {
		if err := a.metrics.WriteTextfile(metricsFile); err != nil {
			a.logger.Warn(ctx, "failed to write metrics file", zap.String("path", metricsFile), zap.Error(err))
		}
	}
	return outcomeError(out)
}

// resumeConfig selects the agents the resumed session started with and
// notes on w what differs from cfg. Interactivity is part of the session and
// is not changed by flags. Load errors are left for Run to report.
func resumeConfig(ctx context.Context, store session.Store, cfg *config.Config, id string, wantInteractive *bool, w io.Writer) *config.Config {
	sess, err := store.Load(ctx, id)
	if err != nil {
		return cfg
	}
	rec := sess.Request.Settings
	if changes := rec.Changes(session.SettingsFrom(cfg)); len(changes) > 0 {
		fmt.Fprintln(w, warningStyle.Render("resuming with the session's agents:"), dimStyle.Render(strings.Join(changes, "; ")))
	}
	if wantInteractive != nil && *wantInteractive != sess.Request.Interactive {
		mode := "non-interactive"
		if sess.Request.Interactive {
			mode = "interactive"
		}
		fmt.Fprintln(w, warningStyle.Render("--no-interactive ignored: session "+id+" was started "+mode))
	}
	return rec.Apply(cfg)
}

// resolveOutput picks the plan document path. An explicit flag is relative
// to the working directory; the configured template is relative to repo.
func resolveOutput(flag, tmpl, repo, task string) (string, error) {
	if flag != "" {
		return filepath.Abs(flag)
	}
	return planPath(tmpl, repo, task), nil
}

// watchRepo adapts repocontext.NewWatcher to the orchestrator.
func watchRepo(logger *logging.Logger) orchestrator.WatchFunc {
	return func(ctx context.Context, root string) (orchestrator.ChangeWatcher, error) {
		w, err := repocontext.NewWatcher(ctx, root, logger)
		if err != nil {
			return nil, err
		}
		return w, nil
	}
}
