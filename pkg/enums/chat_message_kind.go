package enums

import "fmt"

// ChatMessageKind maps to the chat_message_kind_enum enum in Postgres.
type ChatMessageKind string

const (
	ChatMessageKindChat   ChatMessageKind = "chat"
	ChatMessageKindNudge  ChatMessageKind = "nudge"
	ChatMessageKindSystem ChatMessageKind = "system"
)

var validChatMessageKinds = []ChatMessageKind{
	ChatMessageKindChat,
	ChatMessageKindNudge,
	ChatMessageKindSystem,
}

// IsValid reports whether the value matches the canonical message kind enum.
func (k ChatMessageKind) IsValid() bool {
	for _, candidate := range validChatMessageKinds {
		if candidate == k {
			return true
		}
	}
	return false
}

// ParseChatMessageKind converts raw input into ChatMessageKind.
func ParseChatMessageKind(value string) (ChatMessageKind, error) {
	for _, candidate := range validChatMessageKinds {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid chat message kind %q", value)
}
