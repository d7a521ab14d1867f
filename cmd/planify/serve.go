package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/planify/internal/server"
)

var serveAddr string

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", server.DefaultAddr, "listen address")
}

// serveCmd exposes stored sessions over HTTP
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve stored sessions and metrics over HTTP",
	Long: `Serve the sessions of a repository over a read-only HTTP API.

Endpoints:
  GET /healthz             liveness
  GET /sessions            session summaries, newest first
  GET /sessions/:id        full session record
  GET /sessions/:id/plan   final plan as markdown
  GET /metrics             Prometheus metrics

Examples:
  # Serve the current repository on :8088
  planify serve

  # Serve another repository on a different port
  planify serve -r ../service --addr 127.0.0.1:9000`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	a, err := openReadOnly(cmd)
	if err != nil {
		return err
	}
	defer a.close()

	srv, err := server.NewServer(a.store, a.metrics, a.logger, &server.Config{Addr: serveAddr})
	if err != nil {
		return usageError(err)
	}
	fmt.Fprintln(cmd.ErrOrStderr(), headerStyle.Render("planify"), labelStyle.Render("serving"), valueStyle.Render(a.store.Dir()), dimStyle.Render("on "+serveAddr))
	return srv.ListenAndServe(cmd.Context())
}
