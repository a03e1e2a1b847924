package draft

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"dispatchdesk/internal/metrics"
	"dispatchdesk/internal/transform"
)

// Registry keeps the open sessions of the process.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	notify   func(Event)
	now      func() time.Time
}

func NewRegistry(notify func(Event)) *Registry {
	return &Registry{sessions: map[string]*Session{}, notify: notify, now: time.Now}
}

// Create opens a session over res. Options.Notify defaults to the registry's.
func (r *Registry) Create(res transform.Result, opts Options) *Session {
	if opts.Notify == nil {
		opts.Notify = r.notify
	}
	if opts.Now == nil {
		opts.Now = r.now
	}
	s := NewSession(res, opts)
	r.mu.Lock()
	if old, ok := r.sessions[s.ID()]; ok {
		old.Close()
	}
	r.sessions[s.ID()] = s
	n := len(r.sessions)
	r.mu.Unlock()
	metrics.ActiveSessions.Set(float64(n))
	return s
}

func (r *Registry) Get(id string) (*Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return s, nil
}

// Remove closes and forgets a session.
func (r *Registry) Remove(id string) error {
	r.mu.Lock()
	s, ok := r.sessions[id]
	delete(r.sessions, id)
	n := len(r.sessions)
	r.mu.Unlock()
	if !ok {
		return ErrSessionNotFound
	}
	metrics.ActiveSessions.Set(float64(n))
	s.Close()
	return nil
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Sweep closes sessions untouched for longer than maxIdle and returns their ids.
func (r *Registry) Sweep(maxIdle time.Duration) []string {
	cutoff := r.now().Add(-maxIdle)
	r.mu.Lock()
	var gone []*Session
	for id, s := range r.sessions {
		if s.idleSince().Before(cutoff) {
			gone = append(gone, s)
			delete(r.sessions, id)
		}
	}
	n := len(r.sessions)
	r.mu.Unlock()
	metrics.ActiveSessions.Set(float64(n))
	ids := make([]string, 0, len(gone))
	for _, s := range gone {
		s.Close()
		ids = append(ids, s.ID())
	}
	return ids
}

// Run sweeps on every tick until ctx is done.
func (r *Registry) Run(ctx context.Context, every, maxIdle time.Duration, log *slog.Logger) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if ids := r.Sweep(maxIdle); len(ids) > 0 {
				log.Info("sessions expired", "count", len(ids))
			}
		}
	}
}

// CloseAll closes every session, used at shutdown.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	all := r.sessions
	r.sessions = map[string]*Session{}
	r.mu.Unlock()
	metrics.ActiveSessions.Set(0)
	for _, s := range all {
		s.Close()
	}
}
