package domain

import "fmt"

// Role identifies the author of a conversation message.
type Role string

// Conversation roles.
const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// IsValid reports whether the role is one of system/user/assistant.
func (r Role) IsValid() bool {
	return r == RoleSystem || r == RoleUser || r == RoleAssistant
}

// Message is a single conversation turn. Order within a conversation is
// semantically meaningful: most recent last.
type Message struct {
	Role    Role
	Content string
}

// NewMessage validates and creates a Message.
func NewMessage(role Role, content string) (Message, error) {
	if !role.IsValid() {
		return Message{}, fmt.Errorf("invalid message role %q: %w", role, ErrValidation)
	}
	if content == "" {
		return Message{}, fmt.Errorf("message content is required: %w", ErrValidation)
	}
	return Message{Role: role, Content: content}, nil
}

// SystemMessage creates a system message without validation.
func SystemMessage(content string) Message { return Message{Role: RoleSystem, Content: content} }

// UserMessage creates a user message without validation.
func UserMessage(content string) Message { return Message{Role: RoleUser, Content: content} }

// AssistantMessage creates an assistant message without validation.
func AssistantMessage(content string) Message {
	return Message{Role: RoleAssistant, Content: content}
}
