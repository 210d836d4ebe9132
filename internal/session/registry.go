package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/sandterm/sandterm/internal/infrastructure/logging"
	"github.com/sandterm/sandterm/internal/infrastructure/monitoring"
	"github.com/sandterm/sandterm/internal/sandbox"
	"github.com/sandterm/sandterm/internal/shared/id"
)

// Config carries the registry's collaborators and defaults.
type Config struct {
	Runtime     sandbox.Runtime
	Spec        sandbox.Spec
	DefaultCols int
	DefaultRows int
	Logger      *logging.Logger
	Metrics     *monitoring.Metrics // optional
}

// Registry is the authoritative session map. Lookup, insert, and delete are
// serialized on the registry lock and complete in bounded time; per-session
// work (provisioning I/O, teardown, channel churn) happens outside it.
type Registry struct {
	runtime     sandbox.Runtime
	spec        sandbox.Spec
	defaultCols int
	defaultRows int
	log         *logging.Logger
	metrics     *monitoring.Metrics

	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewRegistry creates an empty registry.
func NewRegistry(cfg Config) *Registry {
	log := cfg.Logger
	if log == nil {
		log = logging.NewNop()
	}
	cols, rows := cfg.DefaultCols, cfg.DefaultRows
	if cols <= 0 {
		cols = 80
	}
	if rows <= 0 {
		rows = 24
	}
	return &Registry{
		runtime:     cfg.Runtime,
		spec:        cfg.Spec,
		defaultCols: cols,
		defaultRows: rows,
		log:         log,
		metrics:     cfg.Metrics,
		sessions:    make(map[string]*Session),
	}
}

// Create provisions a sandbox and registers a session for it. Dimensions
// default when non-positive. Any provisioning failure rolls back the partial
// sandbox and surfaces as ErrResourceExhausted; no partial session stays
// registered.
func (r *Registry) Create(ctx context.Context, cols, rows int) (*Session, error) {
	if cols <= 0 {
		cols = r.defaultCols
	}
	if rows <= 0 {
		rows = r.defaultRows
	}

	sessionID := id.NewSessionID().String()

	handle, err := r.runtime.Create(ctx, r.spec)
	if err != nil {
		r.log.Warn("sandbox provisioning failed", zap.Error(err))
		return nil, fmt.Errorf("%w: %v", ErrResourceExhausted, err)
	}

	now := time.Now()
	s := &Session{
		id:           sessionID,
		handle:       handle,
		createdAt:    now,
		state:        StateProvisioning,
		cols:         cols,
		rows:         rows,
		lastActivity: now,
	}

	r.mu.Lock()
	r.sessions[sessionID] = s
	r.mu.Unlock()

	s.mu.Lock()
	s.state = StateActive
	s.mu.Unlock()

	if r.metrics != nil {
		r.metrics.SessionsCreated.Inc()
		r.metrics.SessionsActive.Inc()
	}
	r.log.Info("session created",
		zap.String("session_id", sessionID),
		zap.String("sandbox_id", handle.ID()),
		zap.Int("cols", cols),
		zap.Int("rows", rows),
	)
	return s, nil
}

// Get returns the session for the given ID.
func (r *Registry) Get(sessionID string) (*Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.sessions[sessionID]
	if !ok {
		return nil, ErrNotFound
	}
	return s, nil
}

// Attach opens a process channel for a transport connection, applying the
// session's current dimensions.
//
// Reconnect policy is replace-and-retire: when the session already has a
// live channel, that channel is closed first, which unwinds the previous
// bridge, and only then is the new channel opened. A session never carries
// two live bridges.
func (r *Registry) Attach(ctx context.Context, sessionID string) (sandbox.Channel, error) {
	s, err := r.Get(sessionID)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state {
	case StateTerminating, StateTerminated:
		return nil, ErrNotFound
	}

	if s.channel != nil {
		s.channel.Close()
		s.channel = nil
	}

	ch, err := s.handle.OpenChannel(ctx, sandbox.ChannelConfig{
		Cols: s.cols,
		Rows: s.rows,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open process channel: %w", err)
	}

	s.channel = ch
	s.state = StateActive
	s.lastActivity = time.Now()
	return ch, nil
}

// Detach releases the pairing when a bridge retires. The sandbox persists;
// the session moves to Disconnected. A stale detach (the channel was already
// replaced or the session torn down) is a no-op.
func (r *Registry) Detach(sessionID string, ch sandbox.Channel) {
	s, err := r.Get(sessionID)
	if err != nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.channel != ch {
		return
	}
	s.channel.Close()
	s.channel = nil
	if s.state == StateActive {
		s.state = StateDisconnected
	}
}

// Resize records new dimensions and propagates them to the active channel:
// a PTY resize plus a shell-level size refresh so prompt drawing
// recalculates. With no active channel it is a no-op success; the stored
// dimensions still apply to the next channel opened.
func (r *Registry) Resize(ctx context.Context, sessionID string, cols, rows int) error {
	if cols <= 0 || rows <= 0 {
		return fmt.Errorf("dimensions must be positive, got %dx%d", cols, rows)
	}

	s, err := r.Get(sessionID)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state {
	case StateTerminating, StateTerminated:
		return ErrNotFound
	}

	s.cols, s.rows = cols, rows
	if s.channel == nil {
		return nil
	}
	if err := s.channel.Resize(cols, rows); err != nil {
		return fmt.Errorf("failed to resize channel: %w", err)
	}
	fmt.Fprintf(s.channel, "export COLUMNS=%d LINES=%d\n", cols, rows)
	return nil
}

// Terminate tears a session down: channel closed, sandbox stopped and
// removed, entry purged. Idempotent; terminating an unknown or already
// terminated ID is a no-op success. The entry is removed even when sandbox
// teardown fails (fail-open), so the registry never leaks.
func (r *Registry) Terminate(ctx context.Context, sessionID string) error {
	r.mu.Lock()
	s, ok := r.sessions[sessionID]
	if !ok {
		r.mu.Unlock()
		return nil
	}
	delete(r.sessions, sessionID)
	r.mu.Unlock()

	// The entry is claimed; concurrent Terminate calls for the same ID see
	// an absent entry and return. Take ownership of the channel under the
	// session lock, then do teardown I/O outside it.
	s.mu.Lock()
	s.state = StateTerminating
	ch := s.channel
	s.channel = nil
	s.mu.Unlock()

	if ch != nil {
		ch.Close()
	}
	if err := s.handle.Stop(ctx); err != nil {
		r.log.Error("sandbox stop failed, entry removed anyway",
			zap.String("session_id", sessionID),
			zap.String("sandbox_id", s.handle.ID()),
			zap.Error(err),
		)
	} else if err := s.handle.Remove(ctx); err != nil {
		r.log.Error("sandbox remove failed, entry removed anyway",
			zap.String("session_id", sessionID),
			zap.String("sandbox_id", s.handle.ID()),
			zap.Error(err),
		)
	}

	s.mu.Lock()
	s.state = StateTerminated
	s.mu.Unlock()

	if r.metrics != nil {
		r.metrics.SessionsActive.Dec()
	}
	r.log.Info("session terminated", zap.String("session_id", sessionID))
	return nil
}

// ListStale returns the IDs of sessions idle longer than threshold at the
// given instant. Used by the reaper.
func (r *Registry) ListStale(threshold time.Duration, now time.Time) []string {
	r.mu.RLock()
	sessions := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		sessions = append(sessions, s)
	}
	r.mu.RUnlock()

	var stale []string
	for _, s := range sessions {
		if now.Sub(s.LastActivity()) > threshold {
			stale = append(stale, s.ID())
		}
	}
	return stale
}

// List returns a snapshot of every registered session.
func (r *Registry) List() []Status {
	r.mu.RLock()
	sessions := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		sessions = append(sessions, s)
	}
	r.mu.RUnlock()

	statuses := make([]Status, 0, len(sessions))
	for _, s := range sessions {
		statuses = append(statuses, s.Snapshot())
	}
	return statuses
}

// Count returns the number of registered sessions.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Shutdown terminates every session. Used on process exit.
func (r *Registry) Shutdown(ctx context.Context) {
	r.mu.RLock()
	ids := make([]string, 0, len(r.sessions))
	for sid := range r.sessions {
		ids = append(ids, sid)
	}
	r.mu.RUnlock()

	for _, sid := range ids {
		r.Terminate(ctx, sid)
	}
}
