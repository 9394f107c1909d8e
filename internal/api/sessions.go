package api

import (
	"context"
	"sync"

	"github.com/hugo-lorenzo-mato/bsqa/internal/metrics"
	"github.com/hugo-lorenzo-mato/bsqa/internal/session"
)

// SessionFactory builds an unloaded form session.
type SessionFactory func() *session.ConfigFormSession

// SessionPool holds the open form sessions, one per page load.
type SessionPool struct {
	factory SessionFactory

	mu       sync.RWMutex
	sessions map[string]*session.ConfigFormSession
	order    []string
	max      int
}

// NewSessionPool creates a pool. When max is positive, opening a session
// beyond it closes the oldest one.
func NewSessionPool(factory SessionFactory, max int) *SessionPool {
	return &SessionPool{
		factory:  factory,
		sessions: make(map[string]*session.ConfigFormSession),
		max:      max,
	}
}

// Open creates and loads a session, then registers it.
func (p *SessionPool) Open(ctx context.Context) (*session.ConfigFormSession, session.View, error) {
	s := p.factory()
	view, err := s.Load(ctx)
	if err != nil {
		return nil, view, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.sessions[s.ID()] = s
	p.order = append(p.order, s.ID())
	for p.max > 0 && len(p.sessions) > p.max {
		oldest := p.order[0]
		p.order = p.order[1:]
		delete(p.sessions, oldest)
	}
	metrics.ActiveSessions.Set(float64(len(p.sessions)))
	return s, view, nil
}

// Get implements middleware.SessionPool.
func (p *SessionPool) Get(id string) (*session.ConfigFormSession, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	s, ok := p.sessions[id]
	return s, ok
}

// Close forgets a session. It reports whether the session was open.
func (p *SessionPool) Close(id string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.sessions[id]; !ok {
		return false
	}
	delete(p.sessions, id)
	for i, v := range p.order {
		if v == id {
			p.order = append(p.order[:i], p.order[i+1:]...)
			break
		}
	}
	metrics.ActiveSessions.Set(float64(len(p.sessions)))
	return true
}

// Len returns the number of open sessions.
func (p *SessionPool) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.sessions)
}
