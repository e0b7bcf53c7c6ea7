package transcript

import (
	"strings"
	"sync"
)

// Author identifies which side of the conversation produced a message.
type Author string

const (
	AuthorUser  Author = "user"
	AuthorModel Author = "model"
)

// Message is an immutable finalized transcript entry. Messages carry
// strictly increasing identifiers so display order is stable.
type Message struct {
	ID     int64  `json:"id"`
	Author Author `json:"author"`
	Text   string `json:"text"`
}

// Aggregator accumulates partial transcription fragments for the current
// turn. Both buffers are scoped to the turn and cleared exactly when a
// turn-complete event is processed.
type Aggregator struct {
	mu     sync.Mutex
	user   strings.Builder
	agent  strings.Builder
	nextID int64
	log    []Message
}

// NewAggregator creates an aggregator with empty turn buffers.
func NewAggregator() *Aggregator {
	return &Aggregator{nextID: 1}
}

// AppendUser appends a user-side transcription fragment to the current
// turn. Pure concatenation, no normalization.
func (a *Aggregator) AppendUser(fragment string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.user.WriteString(fragment)
}

// AppendAgent appends an agent-side transcription fragment to the current
// turn.
func (a *Aggregator) AppendAgent(fragment string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.agent.WriteString(fragment)
}

// CompleteTurn finalizes the current turn. It emits zero, one, or two
// messages (user first, then agent, each only if non-empty), appends them
// to the session log, clears both buffers, and returns the finalized agent
// text for payload extraction.
func (a *Aggregator) CompleteTurn() ([]Message, string) {
	a.mu.Lock()
	defer a.mu.Unlock()

	userText := strings.TrimSpace(a.user.String())
	agentText := strings.TrimSpace(a.agent.String())
	a.user.Reset()
	a.agent.Reset()

	var messages []Message
	if userText != "" {
		messages = append(messages, a.emit(AuthorUser, userText))
	}
	if agentText != "" {
		messages = append(messages, a.emit(AuthorModel, agentText))
	}

	return messages, agentText
}

// emit must be called with the mutex held.
func (a *Aggregator) emit(author Author, text string) Message {
	msg := Message{ID: a.nextID, Author: author, Text: text}
	a.nextID++
	a.log = append(a.log, msg)
	return msg
}

// Messages returns a copy of the append-only session log.
func (a *Aggregator) Messages() []Message {
	a.mu.Lock()
	defer a.mu.Unlock()

	out := make([]Message, len(a.log))
	copy(out, a.log)
	return out
}
