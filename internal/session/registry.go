// internal/session/registry.go
package session

import (
	"encoding/json"
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Registry is the single owner of the connection<->nickname binding. Both
// directions live behind one mutex so they can never disagree: each live
// session maps to exactly one nickname and vice versa.
type Registry struct {
	mu       sync.Mutex
	log      *logrus.Logger
	sessions map[uuid.UUID]*Session
	byNick   map[string]uuid.UUID

	// OnEvict is invoked, outside the registry lock, for a session torn
	// down because a send to it failed. Wired to the implicit-leave path.
	OnEvict func(s *Session)
}

// NewRegistry builds an empty registry.
func NewRegistry(log *logrus.Logger) *Registry {
	return &Registry{
		log:      log,
		sessions: make(map[uuid.UUID]*Session),
		byNick:   make(map[string]uuid.UUID),
	}
}

// Add binds a new session to nickname. If the nickname is already bound to
// a live connection, the newest connection silently takes the seat over
// and the stale one is closed; its Player record is untouched.
func (r *Registry) Add(nickname string, sender Sender) *Session {
	s := &Session{
		ID:       uuid.New(),
		Nickname: nickname,
		sender:   sender,
	}

	var stale *Session
	r.mu.Lock()
	if oldID, ok := r.byNick[nickname]; ok {
		stale = r.sessions[oldID]
		delete(r.sessions, oldID)
	}
	r.sessions[s.ID] = s
	r.byNick[nickname] = s.ID
	r.mu.Unlock()

	if stale != nil {
		r.log.WithField("nickname", nickname).Info("nickname taken over by a new connection")
		stale.Close()
	}
	return s
}

// Rebind moves a live session to a new nickname, with the same takeover
// semantics as Add when the nickname is already bound elsewhere. It
// returns the previous nickname when the binding actually moved, so the
// caller can vacate the old seat; rebinding to the current nickname or
// rebinding an unregistered session returns "".
func (r *Registry) Rebind(s *Session, nickname string) string {
	r.mu.Lock()
	if _, ok := r.sessions[s.ID]; !ok || s.Nickname == nickname {
		r.mu.Unlock()
		return ""
	}
	var stale *Session
	if oldID, ok := r.byNick[nickname]; ok && oldID != s.ID {
		stale = r.sessions[oldID]
		delete(r.sessions, oldID)
	}
	prev := s.Nickname
	if r.byNick[prev] == s.ID {
		delete(r.byNick, prev)
	}
	s.Nickname = nickname
	r.byNick[nickname] = s.ID
	r.mu.Unlock()

	if stale != nil {
		r.log.WithField("nickname", nickname).Info("nickname taken over by a new connection")
		stale.Close()
	}
	return prev
}

// Remove unbinds and closes the session. It reports whether the session
// was still registered, so callers can tell a real departure from the
// tail end of a takeover or an earlier eviction.
func (r *Registry) Remove(s *Session) bool {
	r.mu.Lock()
	_, ok := r.sessions[s.ID]
	if ok {
		delete(r.sessions, s.ID)
		if r.byNick[s.Nickname] == s.ID {
			delete(r.byNick, s.Nickname)
		}
	}
	r.mu.Unlock()

	s.Close()
	return ok
}

// Len reports the number of live sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Broadcast marshals v once and fans it out to every live session. A
// failed send never blocks the rest; the failing sessions are evicted
// afterwards via OnEvict.
func (r *Registry) Broadcast(v interface{}) {
	data, err := json.Marshal(v)
	if err != nil {
		r.log.Errorf("marshal broadcast %T: %v", v, err)
		return
	}

	r.mu.Lock()
	targets := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		targets = append(targets, s)
	}
	r.mu.Unlock()

	var dead []*Session
	for _, s := range targets {
		if err := r.sendRaw(s, data); err != nil {
			r.log.WithField("nickname", s.Nickname).Warnf("broadcast send failed: %v", err)
			dead = append(dead, s)
		}
	}
	for _, s := range dead {
		r.evict(s)
	}
}

// SendTo delivers v to the session currently bound to nickname, if any.
func (r *Registry) SendTo(nickname string, v interface{}) {
	r.mu.Lock()
	var target *Session
	if id, ok := r.byNick[nickname]; ok {
		target = r.sessions[id]
	}
	r.mu.Unlock()
	if target == nil {
		return
	}
	if err := target.Send(v); err != nil {
		r.log.WithField("nickname", nickname).Warnf("send failed: %v", err)
		r.evict(target)
	}
}

func (r *Registry) sendRaw(s *Session, data []byte) error {
	ctx, cancel := contextWithWriteTimeout()
	defer cancel()
	return s.sender.Send(ctx, data)
}

// evict removes a session whose connection proved dead and notifies the
// owner so the seat is vacated like a normal leave.
func (r *Registry) evict(s *Session) {
	if !r.Remove(s) {
		return
	}
	if r.OnEvict != nil {
		r.OnEvict(s)
	}
}
