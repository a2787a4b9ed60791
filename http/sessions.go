package http

import (
	"evrange/chat"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"
)

const defaultSessionCapacity = 512

// SessionStore keeps the most recently used chat sessions. Evicted sessions
// are simply forgotten.
type SessionStore struct {
	sessions *lru.Cache[string, *chat.Session]
}

// NewSessionStore keeps at most capacity sessions, 512 when capacity is not positive.
func NewSessionStore(capacity int) (*SessionStore, error) {
	if capacity <= 0 {
		capacity = defaultSessionCapacity
	}
	cache, err := lru.New[string, *chat.Session](capacity)
	if err != nil {
		return nil, err
	}
	return &SessionStore{sessions: cache}, nil
}

// Get returns a live session without creating one.
func (s *SessionStore) Get(id string) (*chat.Session, bool) {
	if id == "" {
		return nil, false
	}
	return s.sessions.Get(id)
}

// Create starts a session under a fresh uuid.
func (s *SessionStore) Create() *chat.Session {
	session := chat.NewSession(uuid.NewString())
	s.sessions.Add(session.ID, session)
	return session
}

// Resume returns the session for id, or a fresh one when id is empty or
// no longer known.
func (s *SessionStore) Resume(id string) *chat.Session {
	if session, ok := s.Get(id); ok {
		return session
	}
	return s.Create()
}

func (s *SessionStore) Len() int {
	return s.sessions.Len()
}
