// Package chat holds per-topic conversation state and runs question turns
// against the retriever and the language model.
package chat

import (
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"

	"ragchat/internal/domain"
)

// DefaultBotName labels assistant messages in rendered history.
const DefaultBotName = "tet_bot"

// UserLabel labels user messages in rendered history.
const UserLabel = "You"

type Role int

const (
	RoleUser Role = iota
	RoleAssistant
)

func (r Role) String() string {
	switch r {
	case RoleUser:
		return "user"
	case RoleAssistant:
		return "assistant"
	default:
		return fmt.Sprintf("Role(%d)", int(r))
	}
}

// Message is one entry of a topic log. Only assistant messages carry sources.
type Message struct {
	Role    Role
	Content string
	Sources []domain.Source
}

type topicState struct {
	messages []Message
	context  string
}

// Session is the state of one conversation: an ordered log and an
// accumulated context per topic. It is safe for concurrent use.
type Session struct {
	ID      string
	botName string

	mu     sync.Mutex
	topics map[string]*topicState
}

// NewSession creates an empty session for the given topics.
func NewSession(botName string, topics []Topic) *Session {
	if botName == "" {
		botName = DefaultBotName
	}
	s := &Session{
		ID:      uuid.NewString(),
		botName: botName,
		topics:  make(map[string]*topicState, len(topics)),
	}
	for _, t := range topics {
		s.topics[t.ID] = &topicState{}
	}
	return s
}

func (s *Session) BotName() string { return s.botName }

func (s *Session) state(topic string) (*topicState, error) {
	st, ok := s.topics[topic]
	if !ok {
		return nil, fmt.Errorf("%w: %q", domain.ErrUnknownTopic, topic)
	}
	return st, nil
}

// AppendUser adds a user message and returns its index.
func (s *Session) AppendUser(topic, text string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, err := s.state(topic)
	if err != nil {
		return 0, err
	}
	st.messages = append(st.messages, Message{Role: RoleUser, Content: text})
	return len(st.messages) - 1, nil
}

// AppendAssistant adds an assistant message together with the sources used
// to produce it and returns its index.
func (s *Session) AppendAssistant(topic, text string, sources []domain.Source) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, err := s.state(topic)
	if err != nil {
		return 0, err
	}
	st.messages = append(st.messages, Message{
		Role:    RoleAssistant,
		Content: text,
		Sources: append([]domain.Source(nil), sources...),
	})
	return len(st.messages) - 1, nil
}

// RenderHistory flattens the topic log to "<label>: <content>" lines.
func (s *Session) RenderHistory(topic string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, err := s.state(topic)
	if err != nil {
		return "", err
	}
	lines := make([]string, len(st.messages))
	for i, m := range st.messages {
		label := UserLabel
		if m.Role == RoleAssistant {
			label = s.botName
		}
		lines[i] = label + ": " + m.Content
	}
	return strings.Join(lines, "\n"), nil
}

// Messages returns a copy of the topic log.
func (s *Session) Messages(topic string) []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.topics[topic]
	if !ok {
		return nil
	}
	out := make([]Message, len(st.messages))
	copy(out, st.messages)
	return out
}

// Sources returns the sources of message i; ok is false when i is not an
// assistant message of the topic.
func (s *Session) Sources(topic string, i int) ([]domain.Source, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.topics[topic]
	if !ok || i < 0 || i >= len(st.messages) || st.messages[i].Role != RoleAssistant {
		return nil, false
	}
	return append([]domain.Source(nil), st.messages[i].Sources...), true
}

// Context returns the accumulated context of the topic.
func (s *Session) Context(topic string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if st, ok := s.topics[topic]; ok {
		return st.context
	}
	return ""
}

// Fold appends retrieved passages to the topic context and returns the result.
func (s *Session) Fold(topic string, texts []string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, err := s.state(topic)
	if err != nil {
		return "", err
	}
	st.context = Fold(st.context, texts)
	return st.context, nil
}
