package session

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/fyrsmithlabs/planify/internal/metrics"
	"github.com/fyrsmithlabs/planify/internal/plan"
)

// fixedClock returns a clock that advances one second per call.
func fixedClock(start time.Time) func() time.Time {
	var mu sync.Mutex
	t := start
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		now := t
		t = t.Add(time.Second)
		return now
	}
}

func newTestStore(t *testing.T, opts ...Option) *FileStore {
	t.Helper()
	opts = append([]Option{WithClock(fixedClock(testTime))}, opts...)
	store, err := NewFileStore(filepath.Join(t.TempDir(), DirName), opts...)
	require.NoError(t, err)
	return store
}

func TestFileStore_CreateSaveLoadRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	repo := t.TempDir()

	sess, err := store.Create(ctx, testRequest(repo))
	require.NoError(t, err)
	assert.Equal(t, StatusInProgress, sess.Status)
	assert.True(t, strings.HasPrefix(sess.ID, "2025-03-14-150926-add-rate-limiting"))

	completeRound(t, sess, "prefer token bucket")
	p, err := sess.Begin(testTime)
	require.NoError(t, err)
	draft := samplePlan("second draft")
	p.Draft = &draft
	sess.Usage.Add(plan.Usage{InputTokens: 10, OutputTokens: 5, CostUSD: 0.01})
	sess.FilesLoaded = []string{"README.md", "main.go"}
	require.NoError(t, store.Save(ctx, sess))

	loaded, err := store.Load(ctx, sess.ID)
	require.NoError(t, err)

	if diff := cmp.Diff(sess, loaded); diff != "" {
		t.Errorf("round trip mismatch (-saved +loaded):\n%s", diff)
	}
}

func TestFileStore_SaveIsAtomic(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	sess, err := store.Create(ctx, testRequest(t.TempDir()))
	require.NoError(t, err)
	require.NoError(t, store.Save(ctx, sess))

	entries, err := os.ReadDir(store.Dir())
	require.NoError(t, err)
	require.Len(t, entries, 1, "no temp files left behind")
	assert.Equal(t, sess.ID+".json", entries[0].Name())

	info, err := os.Stat(filepath.Join(store.Dir(), entries[0].Name()))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())
}

func TestFileStore_SaveRejectsInvalidSession(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	sess, err := store.Create(ctx, testRequest(t.TempDir()))
	require.NoError(t, err)

	sess.Status = StatusCompleted
	err = store.Save(ctx, sess)
	require.Error(t, err)

	loaded, err := store.Load(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusInProgress, loaded.Status, "previous version intact")
}

func TestFileStore_CreateDuplicate(t *testing.T) {
	ctx := context.Background()
	store, err := NewFileStore(filepath.Join(t.TempDir(), DirName), WithClock(func() time.Time { return testTime }))
	require.NoError(t, err)
	repo := t.TempDir()

	_, err = store.Create(ctx, testRequest(repo))
	require.NoError(t, err)
	_, err = store.Create(ctx, testRequest(repo))
	assert.ErrorIs(t, err, ErrSessionExists)
}

func TestFileStore_LoadErrors(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	sess, err := store.Create(ctx, testRequest(t.TempDir()))
	require.NoError(t, err)

	t.Run("not found", func(t *testing.T) {
		_, err := store.Load(ctx, "2024-01-01-000000-missing-0123abcd")
		assert.ErrorIs(t, err, ErrSessionNotFound)
	})

	t.Run("invalid id", func(t *testing.T) {
		_, err := store.Load(ctx, "../../etc/passwd")
		assert.ErrorIs(t, err, ErrInvalidID)
	})

	t.Run("truncated json", func(t *testing.T) {
		id := "2024-01-01-000000-broken-0123abcd"
		require.NoError(t, os.WriteFile(filepath.Join(store.Dir(), id+".json"), []byte(`{"id": "`+id+`", "rounds": [`), 0600))

		loaded, err := store.Load(ctx, id)
		assert.ErrorIs(t, err, ErrSessionCorrupt)
		assert.Nil(t, loaded)
	})

	t.Run("id mismatch", func(t *testing.T) {
		data, err := os.ReadFile(filepath.Join(store.Dir(), sess.ID+".json"))
		require.NoError(t, err)
		other := "2024-01-01-000000-copy-0123abcd"
		require.NoError(t, os.WriteFile(filepath.Join(store.Dir(), other+".json"), data, 0600))

		_, err = store.Load(ctx, other)
		assert.ErrorIs(t, err, ErrSessionCorrupt)
	})

	t.Run("broken invariant", func(t *testing.T) {
		id := "2024-01-01-000000-overflow-0123abcd"
		bad := Session{
			ID:      id,
			Request: Request{Task: "x", RepoPath: "/r", MaxRounds: 1},
			Rounds:  []Round{{Index: 1}, {Index: 2}},
			Status:  StatusInProgress,
		}
		data, err := json.Marshal(bad)
		require.NoError(t, err)
		require.NoError(t, os.WriteFile(filepath.Join(store.Dir(), id+".json"), data, 0600))

		_, err = store.Load(ctx, id)
		assert.ErrorIs(t, err, ErrSessionCorrupt)
	})
}

func TestFileStore_ListNewestFirst(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	repo := t.TempDir()

	var created []string
	for i := 0; i < 3; i++ {
		req := testRequest(repo)
		req.Task = fmt.Sprintf("task %d", i)
		sess, err := store.Create(ctx, req)
		require.NoError(t, err)
		created = append(created, sess.ID)
	}
	require.NoError(t, os.WriteFile(filepath.Join(store.Dir(), "notes.txt"), []byte("x"), 0600))
	require.NoError(t, os.WriteFile(filepath.Join(store.Dir(), "bad id.json"), []byte("{}"), 0600))

	ids, err := store.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{created[2], created[1], created[0]}, ids)
}

func TestFileStore_Summaries(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	sess, err := store.Create(ctx, testRequest(t.TempDir()))
	require.NoError(t, err)
	completeRound(t, sess, "")
	require.NoError(t, store.Save(ctx, sess))

	corrupt := "2020-01-01-000000-corrupt-0123abcd"
	require.NoError(t, os.WriteFile(filepath.Join(store.Dir(), corrupt+".json"), []byte("nope"), 0600))

	summaries, err := store.Summaries(ctx)
	require.NoError(t, err)
	require.Len(t, summaries, 1, "corrupt sessions are skipped")
	assert.Equal(t, sess.ID, summaries[0].ID)
	assert.Equal(t, 1, summaries[0].Rounds)
	assert.Equal(t, "Add rate limiting to the API", summaries[0].Task)
}

func TestFileStore_ConcurrentSavesSameSession(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	sess, err := store.Create(ctx, testRequest(t.TempDir()))
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			cp := *sess
			cp.FilesLoaded = []string{fmt.Sprintf("file-%d.go", i)}
			assert.NoError(t, store.Save(ctx, &cp))
		}(i)
	}
	wg.Wait()

	loaded, err := store.Load(ctx, sess.ID)
	require.NoError(t, err)
	require.Len(t, loaded.FilesLoaded, 1)
	assert.Regexp(t, `^file-\d+\.go$`, loaded.FilesLoaded[0])
}

func TestFileStore_TracesAndMetrics(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() { otel.SetTracerProvider(prev) })

	m := metrics.New()
	ctx := context.Background()
	store := newTestStore(t, WithMetrics(m))

	sess, err := store.Create(ctx, testRequest(t.TempDir()))
	require.NoError(t, err)
	_, err = store.Load(ctx, sess.ID)
	require.NoError(t, err)
	_, err = store.Load(ctx, "2024-01-01-000000-missing-0123abcd")
	require.Error(t, err)

	names := map[string]int{}
	for _, s := range recorder.Ended() {
		names[s.Name()]++
	}
	assert.Equal(t, 1, names["session.save"])
	assert.Equal(t, 2, names["session.load"])

	text := gatherText(t, m)
	assert.Contains(t, text, `planify_session_saves_total{result="ok"} 1`)
	assert.Contains(t, text, `planify_session_loads_total{result="error"} 1`)
}

func gatherText(t *testing.T, m *metrics.Metrics) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "m.prom")
	require.NoError(t, m.WriteTextfile(path))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(data)
}
