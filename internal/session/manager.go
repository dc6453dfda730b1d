// Package session keeps the latest transcript of every (chat, user) pair in
// memory until it has been idle for the TTL.
package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/joebot/voxbrief/internal/metrics"
	"github.com/joebot/voxbrief/internal/transcript"
)

const (
	// DefaultTTL is how long an untouched session stays available.
	DefaultTTL = time.Hour
	// DefaultSweepInterval is how often expired sessions are purged.
	DefaultSweepInterval = time.Minute
)

var (
	ErrNotFound   = errors.New("session not found")
	ErrExpired    = errors.New("session expired")
	ErrSuperseded = errors.New("superseded by a newer submission")
)

// Status is the lifecycle state of a session.
type Status string

const (
	StatusPending Status = "pending"
	StatusReady   Status = "ready"
	StatusExpired Status = "expired"
)

// Key returns the session key for a chat and user.
func Key(chatID, userID string) string {
	return chatID + ":" + userID
}

// Session holds the current transcript for a key. Values returned by the
// store are copies; the transcript itself is never mutated after Put.
type Session struct {
	Key         string
	ID          string
	Transcript  *transcript.Transcript
	CreatedAt   time.Time
	SubmittedAt time.Time
	TouchedAt   time.Time
	Status      Status
	Processed   int
}

// Info is the per-key activity summary behind the /stats command.
type Info struct {
	Processed    int
	LastActivity time.Time
	Active       bool
	Pending      bool
}

type entry struct {
	session   *Session
	latest    time.Time // newest submission seen for the key
	pending   bool
	expired   bool
	processed int
	activity  time.Time
}

// Manager is the in-memory session store.
type Manager struct {
	mu      sync.RWMutex
	entries map[string]*entry

	ttl   time.Duration
	sweep time.Duration
	now   func() time.Time
	m     *metrics.Metrics

	onExpire func(key string)
}

// NewManager creates a store. Non-positive durations select the defaults.
func NewManager(ttl, sweepInterval time.Duration) *Manager {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if sweepInterval <= 0 {
		sweepInterval = DefaultSweepInterval
	}
	return &Manager{
		entries: make(map[string]*entry),
		ttl:     ttl,
		sweep:   sweepInterval,
		now:     time.Now,
		m:       metrics.DefaultMetrics,
	}
}

// WithMetrics replaces the metrics sink.
func (m *Manager) WithMetrics(mt *metrics.Metrics) *Manager {
	m.m = mt
	return m
}

// OnExpire registers f to run, outside the store lock, for every key whose
// session Sweep purges.
func (m *Manager) OnExpire(f func(key string)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onExpire = f
}

// TTL returns the idle timeout.
func (m *Manager) TTL() time.Duration { return m.ttl }

// Begin records that audio submitted at submittedAt is being transcribed.
func (m *Manager) Begin(key string, submittedAt time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e := m.entry(key)
	if submittedAt.After(e.latest) {
		e.latest = submittedAt
	}
	e.pending = true
	e.activity = m.now()
}

// Abort clears the pending mark left by Begin. It reports false, leaving the
// entry untouched, when a newer submission for the key exists.
func (m *Manager) Abort(key string, submittedAt time.Time) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[key]
	if !ok {
		return true
	}
	if submittedAt.Before(e.latest) {
		m.m.Superseded.Inc()
		return false
	}
	e.pending = false
	return true
}

// Put stores a ready transcript for key. A transcript submitted before the
// newest known submission is refused with ErrSuperseded.
func (m *Manager) Put(key string, t *transcript.Transcript, submittedAt time.Time) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e := m.entry(key)
	if submittedAt.Before(e.latest) {
		m.m.Superseded.Inc()
		return nil, ErrSuperseded
	}
	now := m.now()
	if e.session == nil {
		m.m.SessionsActive.Inc()
	}
	e.latest = submittedAt
	e.pending = false
	e.expired = false
	e.activity = now
	e.session = &Session{
		Key:         key,
		ID:          uuid.NewString(),
		Transcript:  t,
		CreatedAt:   now,
		SubmittedAt: submittedAt,
		TouchedAt:   now,
		Status:      StatusReady,
		Processed:   e.processed,
	}
	s := *e.session
	return &s, nil
}

// Get returns the session for key and refreshes its TTL. It never returns
// an expired transcript.
func (m *Manager) Get(key string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[key]
	if !ok {
		return nil, ErrNotFound
	}
	if e.expired {
		return nil, ErrExpired
	}
	if e.session == nil {
		return nil, ErrNotFound
	}
	now := m.now()
	if now.Sub(e.session.TouchedAt) > m.ttl {
		m.expire(e)
		return nil, ErrExpired
	}
	e.session.TouchedAt = now
	e.activity = now
	s := *e.session
	return &s, nil
}

// Lookup is Get for a specific session ID. A menu from an older transcript
// reports ErrExpired.
func (m *Manager) Lookup(key, id string) (*Session, error) {
	s, err := m.Get(key)
	if err != nil {
		return nil, err
	}
	if s.ID != id {
		return nil, ErrExpired
	}
	return s, nil
}

// Peek returns the session without touching it.
func (m *Manager) Peek(key string) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	e, ok := m.entries[key]
	if !ok || e.session == nil || e.expired || m.now().Sub(e.session.TouchedAt) > m.ttl {
		return nil, false
	}
	s := *e.session
	return &s, true
}

// MarkProcessed counts a completed action for key.
func (m *Manager) MarkProcessed(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e := m.entry(key)
	e.processed++
	e.activity = m.now()
	if e.session != nil {
		e.session.Processed = e.processed
	}
}

// Info returns activity counters for key.
func (m *Manager) Info(key string) Info {
	m.mu.RLock()
	defer m.mu.RUnlock()

	e, ok := m.entries[key]
	if !ok {
		return Info{}
	}
	return Info{
		Processed:    e.processed,
		LastActivity: e.activity,
		Active:       e.session != nil && !e.expired && m.now().Sub(e.session.TouchedAt) <= m.ttl,
		Pending:      e.pending,
	}
}

// Len returns the number of keys with a live session.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	n := 0
	for _, e := range m.entries {
		if e.session != nil && !e.expired {
			n++
		}
	}
	return n
}

// Sweep purges sessions idle longer than the TTL and forgets keys with no
// activity for the TTL. It returns the number of sessions purged.
func (m *Manager) Sweep(now time.Time) int {
	m.mu.Lock()
	var purged []string
	for key, e := range m.entries {
		if e.session != nil && !e.expired && now.Sub(e.session.TouchedAt) > m.ttl {
			m.expire(e)
			purged = append(purged, key)
		}
		if !e.pending && now.Sub(e.activity) > m.ttl {
			delete(m.entries, key)
		}
	}
	remaining, onExpire := len(m.entries), m.onExpire
	m.mu.Unlock()

	if len(purged) > 0 {
		slog.Debug("sessions swept", "purged", len(purged), "remaining", remaining)
	}
	if onExpire != nil {
		for _, key := range purged {
			onExpire(key)
		}
	}
	return len(purged)
}

// Run sweeps on a ticker until ctx is cancelled.
func (m *Manager) Run(ctx context.Context) {
	slog.Info("session sweeper started", "ttl", m.ttl, "interval", m.sweep)
	ticker := time.NewTicker(m.sweep)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("session sweeper stopped")
			return
		case <-ticker.C:
			m.Sweep(m.now())
		}
	}
}

// entry returns the entry for key, creating it. Caller holds the lock.
func (m *Manager) entry(key string) *entry {
	e, ok := m.entries[key]
	if !ok {
		e = &entry{}
		m.entries[key] = e
	}
	return e
}

// expire drops the transcript. Caller holds the lock.
func (m *Manager) expire(e *entry) {
	e.session.Status = StatusExpired
	e.session = nil
	e.expired = true
	m.m.SessionsActive.Dec()
	m.m.SessionsExpired.Inc()
}
