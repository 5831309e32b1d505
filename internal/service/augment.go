package service

import (
	"fmt"
	"strings"

	"github.com/diviner-ai/diviner/internal/domain"
)

const zhKnowledgeHeader = "\n\n## 📚 相关古籍知识（请基于以下内容回答用户问题）\n\n"

const enKnowledgeHeader = "\n\n## 📚 Relevant Ancient Chinese Texts (Read and understand the following content, then answer in English)\n\n"

const zhKnowledgeFooter = `
请根据上述古籍内容，结合你的毒舌算命先生风格，给出专业且接地气的回答。

回答格式要求：
1. 使用清晰的段落分隔，每段不要超过3句话
2. 适当使用换行和标点符号，让回答有呼吸感
3. 可以用数字序号或符号（-、•）来列举不同情况
4. 古籍原文用引号标注，解读部分正常叙述
5. 不要在结尾添加任何"基于古籍记载"的标注
`

const enKnowledgeFooter = `
📌 Important: The ancient texts above are in Chinese. Please read and understand them thoroughly, then provide your answer entirely in English.

Based on the ancient Chinese wisdom above, provide a professional and down-to-earth answer in your slightly sarcastic fortune teller style.

Answer format requirements:
1. Use clear paragraph separation, no more than 3 sentences per paragraph
2. Use line breaks and punctuation appropriately for better readability
3. Use numbers or symbols (-, •) to list different situations when needed
4. You may reference the ancient texts (e.g., "According to ancient wisdom..."), but respond in English
5. Do not add any notes like "based on ancient records" at the end

Remember: Answer completely in ENGLISH, even though the source material is in Chinese.
`

// PromptAugmenter injects retrieved knowledge into a conversation's system
// prompt. The caller's messages are never mutated; Augment returns a copy.
type PromptAugmenter struct{}

func NewPromptAugmenter() *PromptAugmenter {
	return &PromptAugmenter{}
}

// Augment renders the results as a knowledge block in the requested locale
// and appends it to the conversation's first system message, wherever it
// sits. When the conversation has no system message, a new one holding only
// the knowledge block is inserted at the head. With no results the
// conversation is returned unchanged.
func (a *PromptAugmenter) Augment(messages []domain.ConversationMessage, results []*SearchResult, locale domain.Locale) []domain.ConversationMessage {
	if len(results) == 0 {
		return messages
	}
	block := renderKnowledgeBlock(results, locale)

	out := make([]domain.ConversationMessage, len(messages))
	copy(out, messages)
	for i := range out {
		if out[i].Role == domain.RoleSystem {
			out[i].Content += block
			return out
		}
	}

	withSystem := make([]domain.ConversationMessage, 0, len(out)+1)
	withSystem = append(withSystem, domain.ConversationMessage{Role: domain.RoleSystem, Content: block})
	return append(withSystem, out...)
}

func renderKnowledgeBlock(results []*SearchResult, locale domain.Locale) string {
	var b strings.Builder
	sourceLabel, fallbackSource := "来源", "古籍"
	if locale == domain.LocaleEnglish {
		b.WriteString(enKnowledgeHeader)
		sourceLabel, fallbackSource = "Source", "Ancient Text"
	} else {
		b.WriteString(zhKnowledgeHeader)
	}
	for _, r := range results {
		source := r.Source
		if source == "" {
			source = fallbackSource
		}
		fmt.Fprintf(&b, "【%s: %s】\n", sourceLabel, source)
		b.WriteString(r.Content)
		b.WriteString("\n\n---\n\n")
	}
	if locale == domain.LocaleEnglish {
		b.WriteString(enKnowledgeFooter)
	} else {
		b.WriteString(zhKnowledgeFooter)
	}
	return b.String()
}
