package chat

import (
	"context"
	"sync"
)

// Session holds one conversation's history. The proc mutex serializes whole
// message turns, not just individual appends: a second inbound message for
// the same conversation must not start processing before the first turn's
// assistant reply lands in the history.
type Session struct {
	proc    sync.Mutex
	mu      sync.Mutex
	history []Message
}

// Converse runs one full turn under the conversation's processing lock:
// append the inbound message, call send with the history including it, and
// append the assistant reply. A send failure leaves the inbound message in
// the history so a retry carries the full context.
func (s *Session) Converse(ctx context.Context, msg Message, send func(context.Context, []Message) (string, error)) (string, error) {
	s.proc.Lock()
	defer s.proc.Unlock()
	history := s.Append(msg)
	reply, err := send(ctx, history)
	if err != nil {
		return "", err
	}
	s.Append(Message{Role: RoleAssistant, Content: reply})
	return reply, nil
}

// Append adds messages to the history and returns a snapshot including them.
// The snapshot is a copy; callers may read it without holding any lock.
func (s *Session) Append(msgs ...Message) []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history = append(s.history, msgs...)
	out := make([]Message, len(s.history))
	copy(out, s.history)
	return out
}

// History returns a copy of the conversation so far.
func (s *Session) History() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Message, len(s.history))
	copy(out, s.history)
	return out
}

// Len reports the number of messages recorded.
func (s *Session) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.history)
}

// SessionRegistry tracks active conversations by id. A conversation must be
// activated before messages are routed to it and is dropped, history
// included, on deactivation.
type SessionRegistry struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

func NewSessionRegistry() *SessionRegistry {
	return &SessionRegistry{sessions: map[string]*Session{}}
}

// Activate registers a conversation id. Activating an already-active id is a
// no-op that keeps the existing history.
func (r *SessionRegistry) Activate(id string) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.sessions[id]; ok {
		return s
	}
	s := &Session{}
	r.sessions[id] = s
	return s
}

// Deactivate removes a conversation and discards its history.
func (r *SessionRegistry) Deactivate(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, id)
}

// Lookup returns the session for id, or nil when the conversation is not
// active.
func (r *SessionRegistry) Lookup(id string) *Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sessions[id]
}

// Active lists the ids of all active conversations.
func (r *SessionRegistry) Active() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.sessions))
	for id := range r.sessions {
		ids = append(ids, id)
	}
	return ids
}
