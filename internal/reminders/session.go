package reminders

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/agenciateixeira/t3-sub001/internal/realtime"
	apperrors "github.com/agenciateixeira/t3-sub001/pkg/errors"
	"github.com/agenciateixeira/t3-sub001/pkg/logger"
	"github.com/agenciateixeira/t3-sub001/pkg/metrics"
)

// DefaultInterval is the pause between periodic scans of one session.
const DefaultInterval = time.Hour

// ErrManagerClosed is returned by Open after CloseAll.
var ErrManagerClosed = errors.New("reminder sessions: manager closed")

// UserScanner runs one reminder cycle for a user.
type UserScanner interface {
	ScanUser(ctx context.Context, userID string) CycleReport
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithInterval sets the periodic scan interval.
func WithInterval(interval time.Duration) ManagerOption {
	return func(m *Manager) {
		if interval > 0 {
			m.interval = interval
		}
	}
}

// WithBroadcaster publishes every cycle report on the reminders stream.
func WithBroadcaster(b realtime.Broadcaster) ManagerOption {
	return func(m *Manager) {
		m.broadcaster = b
	}
}

// WithManagerClock overrides the heartbeat time source.
func WithManagerClock(now func() time.Time) ManagerOption {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
	}
}

// SessionOption configures one session at Open.
type SessionOption func(*Session)

// BoundToConnection ties the session to a live connection. Such sessions end with the
// connection and are never closed by ReapIdle.
func BoundToConnection() SessionOption {
	return func(s *Session) {
		s.connection = true
	}
}

// Manager owns the reminder sessions of all connected users.
type Manager struct {
	scanner     UserScanner
	interval    time.Duration
	broadcaster realtime.Broadcaster
	now         func() time.Time
	log         *zap.Logger

	mu       sync.Mutex
	sessions map[string]*Session
	closed   bool
}

// NewManager constructs a Manager.
func NewManager(scanner UserScanner, opts ...ManagerOption) (*Manager, error) {
	if scanner == nil {
		return nil, errors.New("reminder sessions: scanner is required")
	}
	m := &Manager{
		scanner:  scanner,
		interval: DefaultInterval,
		now:      time.Now,
		log:      logger.WithModule("reminders"),
		sessions: make(map[string]*Session),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// Session is one periodic reminder worker bound to a user.
type Session struct {
	ID       string    `json:"id"`
	UserID   string    `json:"user_id"`
	OpenedAt time.Time `json:"opened_at"`

	cancel     context.CancelFunc
	done       chan struct{}
	trigger    chan struct{}
	connection bool

	mu       sync.Mutex
	lastSeen time.Time
	last     *CycleReport
	scans    int
}

// SessionInfo is a point-in-time view of a session.
type SessionInfo struct {
	ID         string       `json:"id"`
	UserID     string       `json:"user_id"`
	OpenedAt   time.Time    `json:"opened_at"`
	LastSeen   time.Time    `json:"last_seen"`
	Connection bool         `json:"connection"`
	Scans      int          `json:"scans"`
	LastReport *CycleReport `json:"last_report,omitempty"`
}

// Open starts a session: it scans immediately and then once per interval until closed.
// The session outlives ctx cancellation but keeps its values.
func (m *Manager) Open(ctx context.Context, userID string, opts ...SessionOption) (*Session, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, errors.New("reminder sessions: user id is required")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, ErrManagerClosed
	}

	sessionCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	now := m.now()
	session := &Session{
		ID:       uuid.NewString(),
		UserID:   userID,
		OpenedAt: now,
		cancel:   cancel,
		done:     make(chan struct{}),
		trigger:  make(chan struct{}, 1),
		lastSeen: now,
	}
	for _, opt := range opts {
		opt(session)
	}
	m.sessions[session.ID] = session
	metrics.ActiveReminderSessions.Inc()

	go m.run(sessionCtx, session)

	m.log.Debug("reminder session opened", zap.String("session_id", session.ID), zap.String("user_id", userID))
	return session, nil
}

// Get returns an open session by id.
func (m *Manager) Get(sessionID string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	session, ok := m.sessions[sessionID]
	return session, ok
}

// Len returns the number of open sessions.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Touch records a heartbeat for the session.
func (m *Manager) Touch(sessionID string) error {
	session, ok := m.Get(sessionID)
	if !ok {
		return apperrors.ErrSessionNotFound
	}
	session.mu.Lock()
	session.lastSeen = m.now()
	session.mu.Unlock()
	return nil
}

// Close stops one session and waits for its worker to exit.
func (m *Manager) Close(sessionID string) error {
	m.mu.Lock()
	session, ok := m.sessions[sessionID]
	if ok {
		delete(m.sessions, sessionID)
	}
	m.mu.Unlock()

	if !ok {
		return apperrors.ErrSessionNotFound
	}
	m.stop(session)
	return nil
}

// CloseUser stops every session of a user and returns how many were closed.
func (m *Manager) CloseUser(userID string) int {
	return m.closeMatching(func(s *Session) bool { return s.UserID == userID })
}

// CloseAll stops every session and rejects further opens.
func (m *Manager) CloseAll() {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	m.closeMatching(func(*Session) bool { return true })
}

// ReapIdle closes sessions whose last heartbeat is older than ttl.
// Connection-bound sessions are skipped.
func (m *Manager) ReapIdle(now time.Time, ttl time.Duration) int {
	if ttl <= 0 {
		return 0
	}
	cutoff := now.Add(-ttl)
	closed := m.closeMatching(func(s *Session) bool {
		return !s.connection && s.LastSeen().Before(cutoff)
	})
	if closed > 0 {
		m.log.Info("reaped idle reminder sessions", zap.Int("count", closed))
	}
	return closed
}

// Sessions lists open sessions ordered by open time.
func (m *Manager) Sessions() []SessionInfo {
	m.mu.Lock()
	sessions := make([]*Session, 0, len(m.sessions))
	for _, session := range m.sessions {
		sessions = append(sessions, session)
	}
	m.mu.Unlock()

	infos := make([]SessionInfo, 0, len(sessions))
	for _, session := range sessions {
		infos = append(infos, session.Info())
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].OpenedAt.Before(infos[j].OpenedAt) })
	return infos
}

func (m *Manager) closeMatching(match func(*Session) bool) int {
	m.mu.Lock()
	var victims []*Session
	for id, session := range m.sessions {
		if match(session) {
			victims = append(victims, session)
			delete(m.sessions, id)
		}
	}
	m.mu.Unlock()

	for _, session := range victims {
		m.stop(session)
	}
	return len(victims)
}

func (m *Manager) stop(session *Session) {
	session.cancel()
	<-session.done
	metrics.ActiveReminderSessions.Dec()
	m.log.Debug("reminder session closed", zap.String("session_id", session.ID), zap.String("user_id", session.UserID))
}

func (m *Manager) run(ctx context.Context, session *Session) {
	defer close(session.done)

	m.scan(ctx, session)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.scan(ctx, session)
		case <-session.trigger:
			m.scan(ctx, session)
		}
	}
}

func (m *Manager) scan(ctx context.Context, session *Session) {
	if ctx.Err() != nil {
		return
	}
	report := m.scanner.ScanUser(ctx, session.UserID)

	session.mu.Lock()
	session.last = &report
	session.scans++
	session.mu.Unlock()

	if m.broadcaster != nil {
		m.broadcaster.BroadcastToUser(realtime.StreamReminders, session.UserID, realtime.Message{
			Event: "reminders.scan_completed",
			Data:  report,
			Meta:  map[string]any{"session_id": session.ID},
		})
	}
}

// Trigger requests an immediate scan. It never blocks; a pending request absorbs further ones.
func (s *Session) Trigger() bool {
	select {
	case s.trigger <- struct{}{}:
		return true
	default:
		return false
	}
}

// Done is closed once the session worker has exited.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// LastSeen returns the time of the latest heartbeat.
func (s *Session) LastSeen() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSeen
}

// LastReport returns the most recent cycle report, if any scan has completed.
func (s *Session) LastReport() (CycleReport, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.last == nil {
		return CycleReport{}, false
	}
	return *s.last, true
}

// Info snapshots the session state.
func (s *Session) Info() SessionInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	info := SessionInfo{
		ID:         s.ID,
		UserID:     s.UserID,
		OpenedAt:   s.OpenedAt,
		LastSeen:   s.lastSeen,
		Connection: s.connection,
		Scans:      s.scans,
	}
	if s.last != nil {
		report := *s.last
		info.LastReport = &report
	}
	return info
}
