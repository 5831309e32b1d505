package domain

import "strings"

// MessageRole identifies the author of a conversation message.
type MessageRole string

const (
	RoleSystem    MessageRole = "system"
	RoleUser      MessageRole = "user"
	RoleAssistant MessageRole = "assistant"
)

// IsValid checks if the role is one of the known values.
func (r MessageRole) IsValid() bool {
	switch r {
	case RoleSystem, RoleUser, RoleAssistant:
		return true
	}
	return false
}

// ConversationMessage is a single turn in a chat conversation.
type ConversationMessage struct {
	Role    MessageRole `json:"role"`
	Content string      `json:"content"`
}

// LatestUserMessage scans the conversation from the end and returns the
// content of the most recent user turn. Returns ErrEmptyConversation when
// the list is empty or holds no user turn.
func LatestUserMessage(messages []ConversationMessage) (string, error) {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == RoleUser {
			return messages[i].Content, nil
		}
	}
	return "", ErrEmptyConversation
}

// Locale selects the language of the rendered knowledge block and of the
// desired answer. Unknown values fall back to Chinese.
type Locale string

const (
	LocaleChinese Locale = "zh"
	LocaleEnglish Locale = "en"
)

// NormalizeLocale maps a free-form language tag to a supported Locale.
func NormalizeLocale(language string) Locale {
	switch strings.ToLower(strings.TrimSpace(language)) {
	case "en", "en-us", "en-gb", "english":
		return LocaleEnglish
	default:
		return LocaleChinese
	}
}
