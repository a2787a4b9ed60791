package chat

import (
	"context"
	"strings"
	"sync"
	"time"
)

type Role string

const (
	RoleUser Role = "user"
	RoleBot  Role = "bot"
)

// Message is one transcript entry.
type Message struct {
	Role Role      `json:"role"`
	Text string    `json:"text"`
	At   time.Time `json:"at"`
}

// Session is one user's transcript. It is owned by whoever serves that user.
type Session struct {
	ID string

	mu      sync.Mutex
	history []Message
}

// NewSession opens a transcript with the greeting.
func NewSession(id string) *Session {
	return &Session{
		ID:      id,
		history: []Message{{Role: RoleBot, Text: Greeting, At: time.Now()}},
	}
}

// Send records the user's line and the interpreter's answer. Blank lines are
// ignored.
func (s *Session) Send(ctx context.Context, in *Interpreter, text string) (Reply, bool) {
	if strings.TrimSpace(text) == "" {
		return Reply{}, false
	}
	reply := in.Reply(ctx, text)

	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	s.history = append(s.history,
		Message{Role: RoleUser, Text: text, At: now},
		Message{Role: RoleBot, Text: reply.Text, At: now},
	)
	return reply, true
}

// History returns a copy of the transcript.
func (s *Session) History() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Message(nil), s.history...)
}
