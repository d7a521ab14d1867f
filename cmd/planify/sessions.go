package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"
	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/planify/internal/plan"
	"github.com/fyrsmithlabs/planify/internal/session"
)

var sessionsJSON bool

func init() {
	sessionsCmd.AddCommand(sessionsListCmd)
	sessionsCmd.AddCommand(sessionsShowCmd)

	sessionsCmd.PersistentFlags().BoolVar(&sessionsJSON, "json", false, "print JSON instead of text")
}

// sessionsCmd is the parent command for session inspection
var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "Inspect planning sessions stored in a repository",
}

var sessionsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List sessions, newest first",
	Args:  cobra.NoArgs,
	RunE:  runSessionsList,
}

var sessionsShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show one session as a plan document",
	Args:  cobra.ExactArgs(1),
	RunE:  runSessionsShow,
}

func runSessionsList(cmd *cobra.Command, args []string) error {
	a, err := openReadOnly(cmd)
	if err != nil {
		return err
	}
	defer a.close()

	summaries, err := a.store.Summaries(cmd.Context())
	if err != nil {
		return err
	}
	w := cmd.OutOrStdout()
	if sessionsJSON {
		return writeJSON(w, summaries)
	}
	writeSummaries(w, summaries)
	return nil
}

func runSessionsShow(cmd *cobra.Command, args []string) error {
	a, err := openReadOnly(cmd)
	if err != nil {
		return err
	}
	defer a.close()

	sess, err := a.store.Load(cmd.Context(), args[0])
	if err != nil {
		if errors.Is(err, session.ErrInvalidID) || errors.Is(err, session.ErrSessionNotFound) {
			return usageError(err)
		}
		return err
	}
	w := cmd.OutOrStdout()
	if sessionsJSON {
		return writeJSON(w, sess)
	}
	_, err = io.WriteString(w, plan.Markdown(sess.Document()))
	return err
}

// openReadOnly wires the app for commands that only read sessions. A missing
// or incomplete default config falls back to the starter config.
func openReadOnly(cmd *cobra.Command) (*app, error) {
	repo, err := resolveRepo(repoPath)
	if err != nil {
		return nil, usageError(err)
	}
	cfg, err := loadConfigLenient(configPath)
	if err != nil {
		return nil, usageError(err)
	}
	a, err := newApp(cmd.Context(), cfg, repo, verbose, cmd.ErrOrStderr())
	if err != nil {
		return nil, usageError(err)
	}
	return a, nil
}

func writeSummaries(w io.Writer, summaries []session.Summary) {
	if len(summaries) == 0 {
		fmt.Fprintln(w, dimStyle.Render("No sessions."))
		return
	}
	for _, s := range summaries {
		fmt.Fprintf(w, "%s  %s  %s  %s\n",
			valueStyle.Render(s.ID),
			statusStyle(s.Status).Render(fmt.Sprintf("%-11s", s.Status)),
			dimStyle.Render(fmt.Sprintf("%d rounds", s.Rounds)),
			truncate(firstLine(s.Task), 60))
	}
}

func statusStyle(s session.Status) lipgloss.Style {
	switch s {
	case session.StatusCompleted:
		return healthyStyle
	case session.StatusInProgress, session.StatusAborted:
		return warningStyle
	default:
		return errorStyle
	}
}

// truncate shortens s to n terminal columns, so wide CJK tasks keep the
// table aligned.
func truncate(s string, n int) string {
	if runewidth.StringWidth(s) <= n {
		return s
	}
	return strings.TrimSpace(runewidth.Truncate(s, n-1, "")) + "…"
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
