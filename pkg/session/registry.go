package session

import "sync"

// Registry tracks live call sessions by id. Safe for concurrent use.
type Registry struct {
	sessions sync.Map
}

func NewRegistry() *Registry {
	return &Registry{}
}

// Put registers a session under its id.
func (r *Registry) Put(s *CallSession) {
	if s == nil {
		return
	}
	r.sessions.Store(s.ID(), s)
}

// Get looks up a session by id.
func (r *Registry) Get(id string) (*CallSession, bool) {
	v, ok := r.sessions.Load(id)
	if !ok {
		return nil, false
	}
	return v.(*CallSession), true
}

// Remove drops a session from the registry. The session itself is untouched.
func (r *Registry) Remove(id string) {
	r.sessions.Delete(id)
}

// Range visits every registered session until fn returns false.
func (r *Registry) Range(fn func(s *CallSession) bool) {
	r.sessions.Range(func(_, v any) bool {
		return fn(v.(*CallSession))
	})
}

// Len counts registered sessions.
func (r *Registry) Len() int {
	n := 0
	r.sessions.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}

// EndAll force-ends every registered session with the given reason.
func (r *Registry) EndAll(reason string) {
	r.Range(func(s *CallSession) bool {
		s.End(reason)
		return true
	})
}
