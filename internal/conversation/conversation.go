// Package conversation implements the append-only, multi-role message log
// that feeds the agentic loop's transport calls, together with the
// serialization contract the transport bridge reparses.
package conversation

import (
	"fmt"
	"strings"

	"github.com/corestack/agentcore/pkg/models"
)

// DefaultAutoCompactChars is the estimated_chars threshold past which
// NeedsCompaction reports true, matching the loop's default budget.
const DefaultAutoCompactChars = 100_000

// Conversation is an append-only buffer of ConversationMessage values plus a
// singleton system prompt. It is not safe for concurrent use; callers that
// share a Conversation across goroutines must serialize access themselves.
type Conversation struct {
	systemPrompt string
	hasSystem    bool
	messages     []models.ConversationMessage

	maxMessages      int
	autoCompactChars int
}

// Config configures a new Conversation.
type Config struct {
	// MaxMessages, if > 0, bounds the buffer: once exceeded, the oldest
	// non-system messages are dropped to fit.
	MaxMessages int

	// AutoCompactChars overrides DefaultAutoCompactChars when non-zero.
	AutoCompactChars int
}

// New creates an empty Conversation.
func New(cfg Config) *Conversation {
	autoCompact := cfg.AutoCompactChars
	if autoCompact == 0 {
		autoCompact = DefaultAutoCompactChars
	}
	return &Conversation{maxMessages: cfg.MaxMessages, autoCompactChars: autoCompact}
}

// AddUser appends a user message.
func (c *Conversation) AddUser(text string) {
	c.append(models.ConversationMessage{Role: models.RoleUser, Content: text})
}

// AddAssistant appends an assistant message.
func (c *Conversation) AddAssistant(text string) {
	c.append(models.ConversationMessage{Role: models.RoleAssistant, Content: text})
}

// AddToolResult appends a tool_result message tagged with the originating
// call id and tool name.
func (c *Conversation) AddToolResult(callID, name, text string) {
	c.append(models.ConversationMessage{
		Role:       models.RoleToolResult,
		Content:    text,
		ToolCallID: callID,
		ToolName:   name,
	})
}

func (c *Conversation) append(msg models.ConversationMessage) {
	c.messages = append(c.messages, msg)
	c.trim()
}

func (c *Conversation) trim() {
	if c.maxMessages <= 0 || len(c.messages) <= c.maxMessages {
		return
	}
	excess := len(c.messages) - c.maxMessages
	c.messages = append([]models.ConversationMessage(nil), c.messages[excess:]...)
}

// SetSystemPrompt replaces the singleton system prompt.
func (c *Conversation) SetSystemPrompt(text string) {
	c.systemPrompt = text
	c.hasSystem = true
}

// LoadMessages replaces the buffer wholesale. Any message with role
// "system" is extracted and becomes the system prompt instead of being
// kept in the message list; if more than one is present, the last wins.
func (c *Conversation) LoadMessages(msgs []models.ConversationMessage) {
	c.messages = c.messages[:0]
	for _, m := range msgs {
		if m.Role == models.RoleSystem {
			c.SetSystemPrompt(m.Content)
			continue
		}
		c.messages = append(c.messages, m)
	}
	c.trim()
}

// ToMessages returns the system prompt (if any) followed by the buffer, as
// an immutable sequence: callers must not mutate the returned slice.
func (c *Conversation) ToMessages() []models.ConversationMessage {
	if !c.hasSystem {
		out := make([]models.ConversationMessage, len(c.messages))
		copy(out, c.messages)
		return out
	}
	out := make([]models.ConversationMessage, 0, len(c.messages)+1)
	out = append(out, models.ConversationMessage{Role: models.RoleSystem, Content: c.systemPrompt})
	out = append(out, c.messages...)
	return out
}

// Serialize renders the conversation into the canonical transport-input
// string: per message, a bracketed header on its own line followed by the
// content, with messages separated by a blank line.
func (c *Conversation) Serialize() string {
	var b strings.Builder
	for i, m := range c.ToMessages() {
		if i > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(headerFor(m))
		b.WriteByte('\n')
		b.WriteString(m.Content)
	}
	return b.String()
}

func headerFor(m models.ConversationMessage) string {
	switch m.Role {
	case models.RoleSystem:
		return "[System]"
	case models.RoleUser:
		return "[User]"
	case models.RoleAssistant:
		return "[Assistant]"
	case models.RoleToolResult:
		label := m.ToolName
		if label == "" {
			label = m.ToolCallID
		}
		return fmt.Sprintf("[Tool Result: %s]", label)
	default:
		return "[User]"
	}
}

// Compact empties the buffer and inserts a single user message holding the
// given summary. The system prompt, if any, is left untouched.
func (c *Conversation) Compact(summary string) {
	c.messages = []models.ConversationMessage{
		{Role: models.RoleUser, Content: "[Conversation summary]\n" + summary},
	}
}

// EstimatedChars is a cheap proxy for token count: the total content length
// of every message plus the system prompt.
func (c *Conversation) EstimatedChars() int {
	total := len(c.systemPrompt)
	for _, m := range c.messages {
		total += len(m.Content)
	}
	return total
}

// NeedsCompaction reports whether EstimatedChars has exceeded this
// Conversation's auto-compaction budget.
func (c *Conversation) NeedsCompaction() bool {
	return c.EstimatedChars() > c.autoCompactChars
}

// Len returns the number of messages currently in the buffer, excluding the
// system prompt.
func (c *Conversation) Len() int {
	return len(c.messages)
}
