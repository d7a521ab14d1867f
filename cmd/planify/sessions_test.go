package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/planify/internal/config"
	"github.com/fyrsmithlabs/planify/internal/plan"
	"github.com/fyrsmithlabs/planify/internal/session"
)

// seedSession stores one completed session in repo's default session
// directory and returns it.
func seedSession(t *testing.T, repo string) *session.Session {
	t.Helper()
	store, err := session.NewFileStore(session.DefaultDir(repo))
	require.NoError(t, err)

	ctx := context.Background()
	sess, err := store.Create(ctx, session.Request{
		Task:      "add retries to the payment client",
		RepoPath:  repo,
		MaxRounds: 2,
		Settings:  session.SettingsFrom(config.Starter()),
	})
	require.NoError(t, err)

	final := plan.Plan{Summary: "Retry transient failures", Steps: []plan.Step{{ID: "1", Title: "Add a retry loop"}}}
	_, err = sess.Begin(time.Now())
	require.NoError(t, err)
	sess.Pending.Draft = &final
	sess.Pending.Critique = &plan.Critique{Approved: true}
	sess.Pending.Integrated = &final
	_, err = sess.Commit("", time.Now())
	require.NoError(t, err)
	require.NoError(t, sess.Complete(final))
	require.NoError(t, store.Save(ctx, sess))
	return sess
}

func TestSessionsList(t *testing.T) {
	repo := t.TempDir()
	sess := seedSession(t, repo)
	cfgPath := starterConfigFile(t, t.TempDir())

	code, stdout, stderr := runRoot(t, "sessions", "list", "-r", repo, "-c", cfgPath)
	require.Equal(t, exitDone, code, stderr)
	assert.Contains(t, stdout, sess.ID)
	assert.Contains(t, stdout, "COMPLETED")
	assert.Contains(t, stdout, "1 rounds")
}

func TestSessionsList_JSON(t *testing.T) {
	repo := t.TempDir()
	sess := seedSession(t, repo)
	cfgPath := starterConfigFile(t, t.TempDir())

	code, stdout, stderr := runRoot(t, "sessions", "list", "--json", "-r", repo, "-c", cfgPath)
	require.Equal(t, exitDone, code, stderr)

	var got []session.Summary
	require.NoError(t, json.Unmarshal([]byte(stdout), &got))
	require.Len(t, got, 1)
	assert.Equal(t, sess.ID, got[0].ID)
	assert.Equal(t, session.StatusCompleted, got[0].Status)
}

func TestSessionsList_Empty(t *testing.T) {
	cfgPath := starterConfigFile(t, t.TempDir())
	code, stdout, _ := runRoot(t, "sessions", "list", "-r", t.TempDir(), "-c", cfgPath)
	assert.Equal(t, exitDone, code)
	assert.Contains(t, stdout, "No sessions.")
}

func TestSessionsShow(t *testing.T) {
	repo := t.TempDir()
	sess := seedSession(t, repo)
	cfgPath := starterConfigFile(t, t.TempDir())

	code, stdout, stderr := runRoot(t, "sessions", "show", sess.ID, "-r", repo, "-c", cfgPath)
	require.Equal(t, exitDone, code, stderr)
	assert.Contains(t, stdout, "# Plan: add retries to the payment client")
	assert.Contains(t, stdout, "Add a retry loop")
}

func TestSessionsShow_Errors(t *testing.T) {
	repo := t.TempDir()
	cfgPath := starterConfigFile(t, t.TempDir())

	code, _, stderr := runRoot(t, "sessions", "show", "2025-03-14-150926-missing-0000beef", "-r", repo, "-c", cfgPath)
	assert.Equal(t, exitUsage, code)
	assert.Contains(t, stderr, "session not found")

	code, _, stderr = runRoot(t, "sessions", "show", "NOT-AN-ID", "-r", repo, "-c", cfgPath)
	assert.Equal(t, exitUsage, code)
	assert.Contains(t, stderr, "invalid session id")
}

func TestWriteSummaries(t *testing.T) {
	var buf bytes.Buffer
	writeSummaries(&buf, []session.Summary{{
		ID:     "2025-03-14-150926-x-1a2b3c4d",
		Status: session.StatusFailed,
		Rounds: 2,
		Task:   strings.Repeat("long task ", 20),
	}})
	out := buf.String()
	assert.Contains(t, out, "FAILED")
	assert.Contains(t, out, "…")
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "abcd…", truncate("abcdefghij", 5))
	assert.Equal(t, "héllo", truncate("héllo", 5))
	assert.Equal(t, "計画…", truncate("計画を立てる", 5))
}

func TestConfigShow_RedactsSecrets(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "planify.yaml")
	content := "history_rounds: 3\nbackends:\n  openai:\n    api_key: sk-live-do-not-print-0123456789\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))

	code, stdout, stderr := runRoot(t, "config", "show", "-c", path)
	require.Equal(t, exitDone, code, stderr)
	assert.Contains(t, stdout, "history_rounds: 3")
	assert.Contains(t, stdout, "[REDACTED]")
	assert.NotContains(t, stdout, "sk-live-do-not-print")
}

func TestConfigInit(t *testing.T) {
	repo := t.TempDir()

	code, stdout, stderr := runRoot(t, "config", "init", "-r", repo)
	require.Equal(t, exitDone, code, stderr)
	assert.Contains(t, stdout, "planify.yaml")

	cfg, err := config.Load(filepath.Join(repo, "planify.yaml"))
	require.NoError(t, err)
	assert.Equal(t, 2, cfg.HistoryRounds)

	code, _, stderr = runRoot(t, "config", "init", "-r", repo)
	assert.Equal(t, exitUsage, code)
	assert.Contains(t, stderr, "already exists")

	code, _, stderr = runRoot(t, "config", "init", "-r", repo, "--force")
	assert.Equal(t, exitDone, code, stderr)
}

func TestWriteConfigYAML_OmitsEmptySecrets(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, writeConfigYAML(&buf, config.Starter()))
	assert.NotContains(t, buf.String(), "api_key")
	assert.Contains(t, buf.String(), "history_rounds: 2")
}
