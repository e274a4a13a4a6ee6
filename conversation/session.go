// Package conversation keeps per-editor conversation history and the
// placeholder bookkeeping for in-flight model requests.
package conversation

import (
	"sync"

	"github.com/google/uuid"

	codelet "github.com/Paranoid-AF/codelet"
)

// DefaultCap is the default number of messages sent per request,
// including the system message.
const DefaultCap = 6

// PlaceholderText is the provisional content of an unresolved assistant reply.
const PlaceholderText = "Thinking..."

// Pending identifies a placeholder appended for an in-flight request.
type Pending struct {
	// Index is the position of the placeholder at insertion time.
	Index int
	// Seq is the session-wide sequence number of the request.
	Seq uint64
}

type entry struct {
	msg     codelet.Message
	pending bool
	seq     uint64
}

// Session is an ordered message history whose first element is always
// the system message. It is safe for concurrent use.
type Session struct {
	id string

	mu      sync.RWMutex
	entries []entry
	seq     uint64
}

// Begin creates a session holding only the system prompt.
func Begin(systemPrompt string) *Session {
	return &Session{
		id: uuid.NewString(),
		entries: []entry{{
			msg: codelet.Message{Role: codelet.RoleSystem, Content: systemPrompt},
		}},
	}
}

// ID returns the session's unique identifier.
func (s *Session) ID() string {
	return s.id
}

// AppendUser appends a user message.
func (s *Session) AppendUser(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, entry{msg: codelet.Message{Role: codelet.RoleUser, Content: text}})
}

// AppendPlaceholder appends a pending assistant message and returns its handle.
func (s *Session) AppendPlaceholder() Pending {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.appendPlaceholderLocked()
}

// Exchange appends a user message and its placeholder under one lock.
func (s *Session) Exchange(text string) Pending {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, entry{msg: codelet.Message{Role: codelet.RoleUser, Content: text}})
	return s.appendPlaceholderLocked()
}

func (s *Session) appendPlaceholderLocked() Pending {
	s.seq++
	s.entries = append(s.entries, entry{
		msg:     codelet.Message{Role: codelet.RoleAssistant, Content: PlaceholderText},
		pending: true,
		seq:     s.seq,
	})
	return Pending{Index: len(s.entries) - 1, Seq: s.seq}
}

// Resolve replaces the placeholder identified by p with the assistant text.
// It is a no-op returning false unless the placeholder is still the last
// element, still pending and belongs to the same request.
func (s *Session) Resolve(p Pending, text string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	last := len(s.entries) - 1
	if p.Index != last || last < 1 {
		return false
	}
	e := s.entries[last]
	if !e.pending || e.seq != p.Seq || e.msg.Role != codelet.RoleAssistant {
		return false
	}
	s.entries[last] = entry{msg: codelet.Message{Role: codelet.RoleAssistant, Content: text}}
	return true
}

// Latest returns the sequence number of the most recently dispatched request.
func (s *Session) Latest() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.seq
}

// Windowed returns the system message plus the last limit-1 settled messages.
// Unresolved placeholders are skipped. Stored history is not modified.
func (s *Session) Windowed(limit int) []codelet.Message {
	if limit < 1 {
		limit = DefaultCap
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	settled := make([]codelet.Message, 0, len(s.entries))
	for i, e := range s.entries {
		if i > 0 && e.pending {
			continue
		}
		settled = append(settled, e.msg)
	}
	if len(settled) <= limit {
		return settled
	}

	out := make([]codelet.Message, 0, limit)
	out = append(out, settled[0])
	out = append(out, settled[len(settled)-(limit-1):]...)
	return out
}

// Messages returns a copy of the full history, placeholders included.
func (s *Session) Messages() []codelet.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]codelet.Message, len(s.entries))
	for i, e := range s.entries {
		out[i] = e.msg
	}
	return out
}

// Len returns the number of stored messages, including the system message.
func (s *Session) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Reset truncates the history to the system message and returns the
// discarded settled messages. In-flight placeholders become unresolvable.
func (s *Session) Reset() []codelet.Message {
	s.mu.Lock()
	defer s.mu.Unlock()

	var tail []codelet.Message
	for _, e := range s.entries[1:] {
		if e.pending {
			continue
		}
		tail = append(tail, e.msg)
	}
	s.entries = s.entries[:1:1]
	return tail
}
