package conversation

import (
	"github.com/ashureev/agentdesk/internal/domain"
	"github.com/ashureev/agentdesk/internal/llm"
)

// BuildPrompt assembles the model input: the agent prompt verbatim as the
// first system entry, the style instruction (if any) as a second system
// entry, then the history oldest first. window > 0 keeps only the most
// recent window history entries.
func BuildPrompt(systemPrompt, styleInstruction string, history []*domain.Message, window int) []llm.Message {
	if window > 0 && len(history) > window {
		history = history[len(history)-window:]
	}

	prompt := make([]llm.Message, 0, len(history)+2)
	prompt = append(prompt, llm.Message{Role: domain.RoleSystem, Content: systemPrompt})
	if styleInstruction != "" {
		prompt = append(prompt, llm.Message{Role: domain.RoleSystem, Content: styleInstruction})
	}
	for _, m := range history {
		if m.Role == domain.RoleSystem {
			continue
		}
		prompt = append(prompt, llm.Message{Role: m.Role, Content: m.Content})
	}
	return prompt
}
