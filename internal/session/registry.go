package session

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	appLog "latinevents/internal/log"
	"latinevents/internal/metrics"
)

const defaultTTL = 2 * time.Hour

// Registry owns all live sessions.
type Registry struct {
	src     Source
	opts    Options
	ttl     time.Duration
	metrics *metrics.Metrics
	newID   func() string

	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewRegistry creates an empty registry. Sessions idle for longer than ttl
// are removed by Sweep; a zero ttl uses two hours.
func NewRegistry(src Source, opts Options, ttl time.Duration, m *metrics.Metrics) *Registry {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Registry{
		src:      src,
		opts:     opts,
		ttl:      ttl,
		metrics:  m,
		newID:    uuid.NewString,
		sessions: make(map[string]*Session),
	}
}

// Create registers a new session and runs its initial load. The session is
// returned even when the load fails; its view then carries the error.
func (r *Registry) Create(ctx context.Context) (*Session, error) {
	s := New(r.newID(), r.src, r.opts)

	r.mu.Lock()
	r.sessions[s.ID()] = s
	n := len(r.sessions)
	r.mu.Unlock()

	r.metrics.SetActiveSessions(n)
	appLog.Info("session created", "session", s.ID(), "active", n)

	return s, s.Reload(ctx, ReloadOptions{})
}

// Get returns the session with the given id and marks it as used.
func (r *Registry) Get(id string) (*Session, error) {
	r.mu.RLock()
	s, ok := r.sessions[id]
	r.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	s.touch()
	return s, nil
}

// Delete removes a session and reports whether it existed.
func (r *Registry) Delete(id string) bool {
	r.mu.Lock()
	_, ok := r.sessions[id]
	delete(r.sessions, id)
	n := len(r.sessions)
	r.mu.Unlock()

	r.metrics.SetActiveSessions(n)
	return ok
}

// Len returns the number of live sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Sweep removes idle sessions and returns how many were removed.
func (r *Registry) Sweep() int {
	now := r.opts.Now()

	r.mu.Lock()
	removed := 0
	for id, s := range r.sessions {
		if s.idleFor(now) > r.ttl {
			delete(r.sessions, id)
			removed++
		}
	}
	n := len(r.sessions)
	r.mu.Unlock()

	r.metrics.SetActiveSessions(n)
	if removed > 0 {
		appLog.Info("expired idle sessions", "removed", removed, "active", n)
	}
	return removed
}

// ReloadAll loads the feed once and applies the result to every session.
// Each session keeps its own superseded-reload guard.
func (r *Registry) ReloadAll(ctx context.Context, opts ReloadOptions) error {
	r.mu.RLock()
	sessions := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		sessions = append(sessions, s)
	}
	r.mu.RUnlock()

	if len(sessions) == 0 {
		return nil
	}

	seqs := make([]uint64, len(sessions))
	for i, s := range sessions {
		seqs[i] = s.beginReload(opts.Silent)
	}

	events, err := r.src.Load(ctx, opts.CacheBust)
	for i, s := range sessions {
		s.finishReload(seqs[i], events, err)
	}

	appLog.Info("reloaded sessions", "sessions", len(sessions), "events", len(events), "ok", err == nil)
	return err
}
