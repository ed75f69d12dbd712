package session

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// Registry tracks live sessions by id and by owner. All maps are guarded by
// a single mutex; sessions themselves are safe to use outside the lock.
type Registry struct {
	mu      sync.Mutex
	byID    map[string]*Session
	byOwner map[string]map[string]*Session
}

func NewRegistry() *Registry {
	return &Registry{
		byID:    make(map[string]*Session),
		byOwner: make(map[string]map[string]*Session),
	}
}

// Create registers a new active session for owner and returns it. The session
// inherits its lifetime from parent.
func (r *Registry) Create(parent context.Context, owner string) *Session {
	s := newSession(parent, uuid.NewString(), owner)

	r.mu.Lock()
	defer r.mu.Unlock()
	r.byID[s.ID] = s
	owned := r.byOwner[owner]
	if owned == nil {
		owned = make(map[string]*Session)
		r.byOwner[owner] = owned
	}
	owned[s.ID] = s
	return s
}

// Get looks up a session by id.
func (r *Registry) Get(id string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.byID[id]
	return s, ok
}

// Owned returns the live sessions belonging to owner.
func (r *Registry) Owned(owner string) []*Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Session, 0, len(r.byOwner[owner]))
	for _, s := range r.byOwner[owner] {
		out = append(out, s)
	}
	return out
}

// Len reports the number of live sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.byID)
}

// Remove drops a session from the registry. Safe to call more than once;
// only the first call for an id does anything. The session loop calls this
// exactly once from its cleanup path.
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.byID[id]
	if !ok {
		return
	}
	delete(r.byID, id)
	owned := r.byOwner[s.Owner]
	delete(owned, id)
	if len(owned) == 0 {
		delete(r.byOwner, s.Owner)
	}
}

// Stop deactivates a session by id. The loop observes the cancellation and
// unregisters itself; Stop never removes entries. Returns false when the id
// is unknown or the session was already stopped.
func (r *Registry) Stop(id string) bool {
	r.mu.Lock()
	s, ok := r.byID[id]
	r.mu.Unlock()
	if !ok {
		return false
	}
	return s.Deactivate()
}

// StopOwner deactivates all of owner's sessions and reports how many were
// still active.
func (r *Registry) StopOwner(owner string) int {
	stopped := 0
	for _, s := range r.Owned(owner) {
		if s.Deactivate() {
			stopped++
		}
	}
	return stopped
}

// StopAll deactivates every live session. Privileged callers only.
func (r *Registry) StopAll() int {
	r.mu.Lock()
	all := make([]*Session, 0, len(r.byID))
	for _, s := range r.byID {
		all = append(all, s)
	}
	r.mu.Unlock()

	stopped := 0
	for _, s := range all {
		if s.Deactivate() {
			stopped++
		}
	}
	return stopped
}
