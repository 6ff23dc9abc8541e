package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/aishwarymishra09/voice-chat-be/internal/observe"
)

const (
	defaultIdleTimeout = 30 * time.Second
	defaultMaxDuration = 10 * time.Minute
	defaultSweepEvery  = 10 * time.Second
)

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithIdleTimeout sets how long a session may go without client activity
// before the janitor closes it. Default: 30 s.
func WithIdleTimeout(d time.Duration) ManagerOption {
	return func(m *Manager) { m.idleTimeout = d }
}

// WithMaxDuration sets the hard cap on total session length. Default: 10 min.
func WithMaxDuration(d time.Duration) ManagerOption {
	return func(m *Manager) { m.maxDuration = d }
}

// WithSweepInterval sets how often the janitor scans for expired sessions.
// Default: 10 s.
func WithSweepInterval(d time.Duration) ManagerOption {
	return func(m *Manager) { m.sweepEvery = d }
}

// WithLogger sets the structured logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) ManagerOption {
	return func(m *Manager) { m.logger = logger }
}

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) ManagerOption {
	return func(m *Manager) { m.now = now }
}

// WithMetrics sets the metrics sink. Defaults to [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) ManagerOption {
	return func(mgr *Manager) { mgr.metrics = m }
}

// OnClose registers a callback invoked after a session is closed, with the
// session ID and close reason. Used to archive transcripts and tear down
// live connections.
func OnClose(fn func(ctx context.Context, id, reason string)) ManagerOption {
	return func(m *Manager) { m.onClose = append(m.onClose, fn) }
}

// Manager creates, tracks, and expires sessions on top of a [Store].
type Manager struct {
	store       *Store
	idleTimeout time.Duration
	maxDuration time.Duration
	sweepEvery  time.Duration
	logger      *slog.Logger
	metrics     *observe.Metrics
	now         func() time.Time
	onClose     []func(ctx context.Context, id, reason string)
}

// NewManager builds a Manager around store.
func NewManager(store *Store, opts ...ManagerOption) *Manager {
	m := &Manager{
		store:       store,
		idleTimeout: defaultIdleTimeout,
		maxDuration: defaultMaxDuration,
		sweepEvery:  defaultSweepEvery,
		logger:      slog.Default(),
		now:         time.Now,
	}
	for _, o := range opts {
		o(m)
	}
	if m.metrics == nil {
		m.metrics = observe.DefaultMetrics()
	}
	return m
}

// MaxDuration returns the configured session length cap.
func (m *Manager) MaxDuration() time.Duration { return m.maxDuration }

// Create allocates a new session with a fresh UUID and persists it.
// metadata is optional caller-supplied configuration carried on the session.
func (m *Manager) Create(ctx context.Context, metadata map[string]string) (*Session, error) {
	now := m.now()
	sess := &Session{
		ID:         uuid.NewString(),
		Status:     StatusNew,
		CreatedAt:  now,
		LastActive: now,
		Metadata:   metadata,
	}
	if err := m.store.Create(ctx, sess); err != nil {
		return nil, err
	}
	m.metrics.ActiveSessions.Add(ctx, 1)
	m.logger.InfoContext(ctx, "session created", "session_id", sess.ID)
	return sess, nil
}

// Get loads a session by ID.
func (m *Manager) Get(ctx context.Context, id string) (*Session, error) {
	return m.store.Get(ctx, id)
}

// Touch records activity on a session, keeping it alive past the idle
// timeout.
func (m *Manager) Touch(ctx context.Context, id string) error {
	return m.store.Touch(ctx, id, m.now())
}

// Close ends a session with the given reason and runs the close callbacks.
// Closing an already-closed session is a no-op. All close paths — client
// request, dialogue end, janitor expiry — funnel through here, so the session
// accounting counts each session exactly once.
func (m *Manager) Close(ctx context.Context, id, reason string) error {
	err := m.store.Close(ctx, id, reason)
	if errors.Is(err, ErrClosed) {
		return nil
	}
	if err != nil {
		return err
	}
	m.metrics.RecordSessionClose(ctx, reason)
	m.metrics.ActiveSessions.Add(ctx, -1)
	m.logger.InfoContext(ctx, "session closed", "session_id", id, "reason", reason)
	for _, fn := range m.onClose {
		fn(ctx, id, reason)
	}
	return nil
}

// Sweep walks the open sessions, dropping quiet ones to IDLE and closing
// those past the duration cap or a full further idle period. Returns the
// number of sessions closed.
func (m *Manager) Sweep(ctx context.Context) (int, error) {
	ids, err := m.store.ActiveIDs(ctx)
	if err != nil {
		return 0, err
	}

	now := m.now()
	closed := 0
	for _, id := range ids {
		sess, err := m.store.Get(ctx, id)
		if errors.Is(err, ErrNotFound) {
			// Hash expired out from under the active set.
			if err := m.store.Unregister(ctx, id); err != nil {
				m.logger.WarnContext(ctx, "failed to unregister stale session", "session_id", id, "error", err)
			}
			continue
		}
		if err != nil {
			return closed, fmt.Errorf("session: sweep %s: %w", id, err)
		}

		idleFor := now.Sub(sess.LastActive)

		var reason string
		switch {
		case now.Sub(sess.CreatedAt) >= m.maxDuration:
			reason = CloseReasonMaxDuration
		case sess.Status == StatusIdle && idleFor >= 2*m.idleTimeout:
			// One idle period drops to IDLE; a second closes the call.
			reason = CloseReasonIdle
		case sess.Status != StatusIdle && idleFor >= m.idleTimeout:
			if err := m.store.MarkIdle(ctx, id); err != nil {
				m.logger.WarnContext(ctx, "failed to mark session idle", "session_id", id, "error", err)
			} else {
				m.logger.InfoContext(ctx, "session idle", "session_id", id)
			}
			continue
		default:
			continue
		}

		if err := m.Close(ctx, id, reason); err != nil {
			m.logger.WarnContext(ctx, "failed to close expired session", "session_id", id, "error", err)
			continue
		}
		closed++
	}
	return closed, nil
}

// Run executes the janitor loop until ctx is cancelled.
func (m *Manager) Run(ctx context.Context) {
	ticker := time.NewTicker(m.sweepEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := m.Sweep(ctx); err != nil {
				m.logger.WarnContext(ctx, "session sweep failed", "error", err)
			}
		}
	}
}
