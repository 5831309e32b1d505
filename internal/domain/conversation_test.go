package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLatestUserMessage_ReturnsLastUserTurn(t *testing.T) {
	messages := []ConversationMessage{
		{Role: RoleSystem, Content: "you are a fortune teller"},
		{Role: RoleUser, Content: "first question"},
		{Role: RoleAssistant, Content: "first answer"},
		{Role: RoleUser, Content: "second question"},
	}

	content, err := LatestUserMessage(messages)

	require.NoError(t, err)
	assert.Equal(t, "second question", content)
}

func TestLatestUserMessage_EmptyConversation(t *testing.T) {
	_, err := LatestUserMessage(nil)
	assert.Equal(t, ErrEmptyConversation, err)
}

func TestLatestUserMessage_NoUserTurn(t *testing.T) {
	messages := []ConversationMessage{
		{Role: RoleSystem, Content: "system only"},
		{Role: RoleAssistant, Content: "assistant only"},
	}

	_, err := LatestUserMessage(messages)
	assert.Equal(t, ErrEmptyConversation, err)
}

func TestMessageRole_IsValid(t *testing.T) {
	assert.True(t, RoleSystem.IsValid())
	assert.True(t, RoleUser.IsValid())
	assert.True(t, RoleAssistant.IsValid())
	assert.False(t, MessageRole("tool").IsValid())
	assert.False(t, MessageRole("").IsValid())
}

func TestNormalizeLocale(t *testing.T) {
	tests := []struct {
		input string
		want  Locale
	}{
		{"", LocaleChinese},
		{"zh", LocaleChinese},
		{"zh-CN", LocaleChinese},
		{"en", LocaleEnglish},
		{"EN-US", LocaleEnglish},
		{"English", LocaleEnglish},
		{"fr", LocaleChinese},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, NormalizeLocale(tt.input), "input %q", tt.input)
	}
}

func TestKnowledgeChunk_HasEmbedding(t *testing.T) {
	chunk := &KnowledgeChunk{ID: 1, Content: "乾卦,元亨利贞"}
	assert.False(t, chunk.HasEmbedding())

	chunk.Embedding = []float32{0.1, 0.2}
	assert.True(t, chunk.HasEmbedding())
}
