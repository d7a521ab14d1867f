package main

import (
	"context"
	"fmt"
	"io"

	"github.com/fyrsmithlabs/planify/internal/orchestrator"
)

// runDryRun prints the effective configuration and the repository context the
// agents would receive.
func runDryRun(ctx context.Context, w io.Writer, a *app, loader orchestrator.ContextLoader) error {
	fmt.Fprintln(w, sectionStyle.Render("Configuration"))
	if err := writeConfigYAML(w, a.cfg); err != nil {
		return err
	}

	snap, err := loader.Load(ctx, a.repo)
	if err != nil {
		return usageError(fmt.Errorf("loading repository context: %w", err))
	}

	fmt.Fprintln(w, sectionStyle.Render("Repository context"))
	fmt.Fprintln(w, labelStyle.Render("Root:   "), snap.Root)
	if snap.Branch != "" {
		fmt.Fprintln(w, labelStyle.Render("Branch: "), snap.Branch)
	}
	fmt.Fprintln(w, labelStyle.Render("Tree:   "), fmt.Sprintf("%d entries", len(snap.Tree)+snap.TreeOmitted))
	fmt.Fprintln(w, labelStyle.Render("Tokens: "), fmt.Sprintf("%d / %d", snap.TotalTokens, a.cfg.Context.MaxTokens))
	for _, f := range snap.Files {
		line := fmt.Sprintf("  %s %s", f.Path, dimStyle.Render(fmt.Sprintf("(%d tokens)", f.Tokens)))
		if f.Truncated {
			line += " " + warningStyle.Render("truncated")
		}
		fmt.Fprintln(w, line)
	}
	for _, s := range snap.Skipped {
		fmt.Fprintln(w, dimStyle.Render("  skipped: "+s))
	}
	if routes := snap.DocRoutes(); len(routes) > 0 {
		fmt.Fprintln(w, labelStyle.Render("Docs:   "), fmt.Sprintf("%d routing entries", len(routes)))
	}
	return nil
}
