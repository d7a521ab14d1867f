package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/planify/internal/logging"
	"github.com/fyrsmithlabs/planify/internal/metrics"
)

const (
	instrumentationName = "github.com/fyrsmithlabs/planify/internal/session"

	// DirName is the default session directory inside the target repository.
	DirName = ".planify-session"

	fileExt = ".json"
)

// Store persists sessions.
type Store interface {
	Create(ctx context.Context, req Request) (*Session, error)
	Save(ctx context.Context, s *Session) error
	Load(ctx context.Context, id string) (*Session, error)
	List(ctx context.Context) ([]string, error)
}

// DefaultDir returns the session directory for a repository.
func DefaultDir(repoPath string) string {
	return filepath.Join(repoPath, DirName)
}

// FileStore keeps one JSON file per session. Writes to the same session are
// serialized; different sessions never contend.
type FileStore struct {
	dir     string
	logger  *logging.Logger
	metrics *metrics.Metrics
	tracer  trace.Tracer
	now     func() time.Time

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

var _ Store = (*FileStore)(nil)

// Option configures a FileStore.
type Option func(*FileStore)

// WithLogger sets the store logger.
func WithLogger(l *logging.Logger) Option {
	return func(s *FileStore) { s.logger = l }
}

// WithMetrics records saves and loads in m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *FileStore) { s.metrics = m }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *FileStore) { s.now = now }
}

// NewFileStore creates the directory if needed and returns a store rooted there.
func NewFileStore(dir string, opts ...Option) (*FileStore, error) {
	if dir == "" {
		return nil, errors.New("session directory is required")
	}
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create session directory: %w", err)
	}
	s := &FileStore{
		dir:    dir,
		logger: logging.NewNop(),
		tracer: otel.Tracer(instrumentationName),
		now:    time.Now,
		locks:  make(map[string]*sync.Mutex),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Dir returns the directory holding session files.
func (s *FileStore) Dir() string { return s.dir }

// Create starts a new IN_PROGRESS session for req and saves it.
func (s *FileStore) Create(ctx context.Context, req Request) (*Session, error) {
	absRepo, err := filepath.Abs(req.RepoPath)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve repo path: %w", err)
	}

	now := s.now().UTC()
	id := NewID(req.Task, absRepo, now)
	if _, err := os.Stat(s.path(id)); err == nil {
		return nil, fmt.Errorf("%w: %s", ErrSessionExists, id)
	}

	req.ResumeID = ""
	sess := &Session{
		ID:        id,
		Request:   req,
		Rounds:    []Round{},
		Status:    StatusInProgress,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.Save(ctx, sess); err != nil {
		return nil, err
	}
	return sess, nil
}

// Save atomically writes the session and stamps UpdatedAt.
func (s *FileStore) Save(ctx context.Context, sess *Session) (err error) {
	ctx, span := s.tracer.Start(ctx, "session.save", trace.WithAttributes(
		attribute.String("session.id", sess.ID),
		attribute.String("session.status", string(sess.Status)),
		attribute.Int("session.rounds", len(sess.Rounds)),
	))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
		s.metrics.SessionSaved(err)
	}()

	if err := sess.Validate(); err != nil {
		return fmt.Errorf("refusing to save invalid session: %w", err)
	}

	lock := s.lockFor(sess.ID)
	lock.Lock()
	defer lock.Unlock()

	sess.UpdatedAt = s.now().UTC()
	data, err := json.MarshalIndent(sess, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}

	if err := writeFileAtomic(s.path(sess.ID), data); err != nil {
		return err
	}

	s.logger.Debug(ctx, "session saved",
		zap.String("path", s.path(sess.ID)),
		zap.Int("bytes", len(data)))
	return nil
}

// Load reads a session. It never returns a partially decoded session.
func (s *FileStore) Load(ctx context.Context, id string) (sess *Session, err error) {
	ctx, span := s.tracer.Start(ctx, "session.load", trace.WithAttributes(
		attribute.String("session.id", id),
	))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
		s.metrics.SessionLoaded(err)
	}()

	if err := ValidateID(id); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(s.path(id))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
		}
		return nil, fmt.Errorf("failed to read session %s: %w", id, err)
	}

	var loaded Session
	if err := json.Unmarshal(data, &loaded); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrSessionCorrupt, id, err)
	}
	if loaded.ID != id {
		return nil, fmt.Errorf("%w: file %s holds session %q", ErrSessionCorrupt, id, loaded.ID)
	}
	if err := loaded.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrSessionCorrupt, id, err)
	}
	if loaded.Rounds == nil {
		loaded.Rounds = []Round{}
	}

	s.logger.Debug(ctx, "session loaded", zap.String("session", id), zap.Int("rounds", len(loaded.Rounds)))
	return &loaded, nil
}

// List returns session IDs, newest first.
func (s *FileStore) List(ctx context.Context) ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}

	ids := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), fileExt) {
			continue
		}
		id := strings.TrimSuffix(e.Name(), fileExt)
		if ValidateID(id) != nil {
			continue
		}
		ids = append(ids, id)
	}

	sort.SliceStable(ids, func(i, j int) bool {
		ti, tj := idTime(ids[i]), idTime(ids[j])
		if !ti.Equal(tj) {
			return ti.After(tj)
		}
		return ids[i] > ids[j]
	})
	return ids, nil
}

// Summaries loads every session and returns its listing entry, newest first.
// Unreadable sessions are logged and skipped.
func (s *FileStore) Summaries(ctx context.Context) ([]Summary, error) {
	ids, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]Summary, 0, len(ids))
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		sess, err := s.Load(ctx, id)
		if err != nil {
			s.logger.Warn(ctx, "skipping unreadable session", zap.String("session", id), zap.Error(err))
			continue
		}
		out = append(out, sess.Summarize())
	}
	return out, nil
}

func (s *FileStore) path(id string) string {
	return filepath.Join(s.dir, id+fileExt)
}

func (s *FileStore) lockFor(id string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[id]
	if !ok {
		l = &sync.Mutex{}
		s.locks[id] = l
	}
	return l
}

// writeFileAtomic writes data to a fresh temp file in the target directory,
// syncs it, renames it over path and syncs the directory.
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmpPath := filepath.Join(dir, "."+filepath.Base(path)+".tmp."+uuid.NewString()[:8])

	// O_EXCL: never reuse a file someone else created
	f, err := os.OpenFile(tmpPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0600)
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}

	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to write session: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to sync session: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to close session file: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to finalize session: %w", err)
	}

	return syncDir(dir)
}

// syncDir flushes a directory entry change. Windows cannot open directories
// for sync, so it is skipped there.
func syncDir(dir string) error {
	if runtime.GOOS == "windows" {
		return nil
	}
	d, err := os.Open(dir)
	if err != nil {
		return fmt.Errorf("failed to open session directory: %w", err)
	}
	defer d.Close()
	if err := d.Sync(); err != nil {
		return fmt.Errorf("failed to sync session directory: %w", err)
	}
	return nil
}
