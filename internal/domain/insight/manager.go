package insight

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	apperrors "github.com/yanqian/flarecast/pkg/errors"
)

const snapshotWriteTimeout = 2 * time.Second

// Service exposes per-user insight sessions.
type Service interface {
	Analyze(ctx context.Context, userID string, sub Submission) (Receipt, error)
	State(ctx context.Context, userID string) (State, error)
	Watch(ctx context.Context, userID string) (<-chan State, error)
	Reset(ctx context.Context, userID string) error
}

// SnapshotStore mirrors published states outside the process so a restarted
// or idle session can still report its last outcome.
type SnapshotStore interface {
	Save(ctx context.Context, userID string, state State) error
	Load(ctx context.Context, userID string) (State, bool, error)
	Delete(ctx context.Context, userID string) error
}

// Submission is one analysis trigger from a client.
type Submission struct {
	Request     AnalysisRequest
	BearerToken string
	// Force bypasses the change detector.
	Force bool
	// Wait blocks Analyze until the call resolves.
	Wait bool
}

// Receipt describes what Analyze did.
type Receipt struct {
	RequestID  string `json:"requestId,omitempty"`
	Skipped    bool   `json:"skipped"`
	Superseded bool   `json:"superseded,omitempty"`
	State      State  `json:"state"`
}

// Manager keeps one Coordinator per user.
type Manager struct {
	cfg       Config
	transport Transport
	store     SnapshotStore
	observer  Observer
	base      *slog.Logger
	logger    *slog.Logger

	mu       sync.Mutex
	sessions map[string]*session
	closed   bool
	wg       sync.WaitGroup
}

type session struct {
	coord *Coordinator
	// persisted is closed once the persister has written its last state.
	persisted chan struct{}
}

// end closes the coordinator and waits for its final snapshot write.
func (s *session) end() {
	s.coord.Close()
	<-s.persisted
}

var _ Service = (*Manager)(nil)

// NewManager wires the insight domain.
func NewManager(cfg Config, transport Transport, store SnapshotStore, observer Observer, logger *slog.Logger) *Manager {
	return &Manager{
		cfg:       cfg,
		transport: transport,
		store:     store,
		observer:  observer,
		base:      logger,
		logger:    logger.With("component", "insight.manager"),
		sessions:  make(map[string]*session),
	}
}

func (m *Manager) Analyze(ctx context.Context, userID string, sub Submission) (Receipt, error) {
	coord, err := m.coordinator(userID)
	if err != nil {
		return Receipt{}, err
	}

	cred := Credential{BearerToken: sub.BearerToken}
	var call *Call
	if sub.Force {
		call = coord.Analyze(sub.Request, cred)
	} else {
		var skipped bool
		call, skipped = coord.Refresh(sub.Request, cred)
		if skipped {
			return Receipt{Skipped: true, State: coord.Snapshot()}, nil
		}
	}

	if sub.Wait {
		// A caller that gives up waiting still gets the receipt; the call
		// keeps running and publishes as usual.
		_ = call.Wait(ctx)
	}
	return Receipt{
		RequestID:  call.ID(),
		Superseded: call.Superseded(),
		State:      coord.Snapshot(),
	}, nil
}

func (m *Manager) State(ctx context.Context, userID string) (State, error) {
	if err := validateUser(userID); err != nil {
		return State{}, err
	}
	m.mu.Lock()
	sess, ok := m.sessions[userID]
	m.mu.Unlock()
	if ok {
		return sess.coord.Snapshot(), nil
	}

	state, found, err := m.store.Load(ctx, userID)
	if err != nil {
		return State{}, apperrors.Wrap("snapshot_error", "failed to load insight state", err)
	}
	if !found {
		return State{}, nil
	}
	return state, nil
}

func (m *Manager) Watch(ctx context.Context, userID string) (<-chan State, error) {
	coord, err := m.coordinator(userID)
	if err != nil {
		return nil, err
	}
	states, cancel := coord.Subscribe()
	go func() {
		<-ctx.Done()
		cancel()
	}()
	return states, nil
}

// Reset ends the user's session: in-flight work is cancelled, the
// coordinator and its persister stop, and the stored snapshot is removed.
// The next Analyze or Watch starts a fresh session.
func (m *Manager) Reset(ctx context.Context, userID string) error {
	if err := validateUser(userID); err != nil {
		return err
	}
	m.mu.Lock()
	sess, ok := m.sessions[userID]
	delete(m.sessions, userID)
	m.mu.Unlock()
	if ok {
		sess.end()
	}
	if err := m.store.Delete(ctx, userID); err != nil {
		return apperrors.Wrap("snapshot_error", "failed to delete insight state", err)
	}
	return nil
}

// Close shuts every session down and waits for pending snapshot writes.
func (m *Manager) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	sessions := make([]*session, 0, len(m.sessions))
	for userID, sess := range m.sessions {
		sessions = append(sessions, sess)
		delete(m.sessions, userID)
	}
	m.mu.Unlock()

	for _, sess := range sessions {
		sess.coord.Close()
	}
	m.wg.Wait()
}

func (m *Manager) coordinator(userID string) (*Coordinator, error) {
	if err := validateUser(userID); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, apperrors.Wrap("unavailable", "insight service is shutting down", nil)
	}
	if sess, ok := m.sessions[userID]; ok {
		return sess.coord, nil
	}

	sess := &session{
		coord:     NewCoordinator(m.cfg, m.transport, m.observer, m.base.With("user_id", userID)),
		persisted: make(chan struct{}),
	}
	m.sessions[userID] = sess
	states, _ := sess.coord.Subscribe()
	m.wg.Add(1)
	go m.persist(userID, states, sess.persisted)
	return sess.coord, nil
}

// persist mirrors states in publish order until the coordinator closes.
func (m *Manager) persist(userID string, states <-chan State, done chan<- struct{}) {
	defer m.wg.Done()
	defer close(done)
	for state := range states {
		if state.Version == 0 {
			// Fresh session; keep whatever an earlier process stored.
			continue
		}
		ctx, cancel := context.WithTimeout(context.Background(), snapshotWriteTimeout)
		if err := m.store.Save(ctx, userID, state); err != nil {
			m.logger.Warn("failed to persist insight state", "user_id", userID, "version", state.Version, "error", err)
		}
		cancel()
	}
}

func validateUser(userID string) error {
	if strings.TrimSpace(userID) == "" {
		return apperrors.Wrap("invalid_input", "user id cannot be empty", nil)
	}
	return nil
}
