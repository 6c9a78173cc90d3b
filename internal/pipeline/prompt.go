package pipeline

import (
	"encoding/json"
	"fmt"

	"github.com/permaevidence/HopPT/internal/webctx"
	"github.com/permaevidence/HopPT/provider"
)

const answerSystemPrompt = `You answer using the web context provided in the final user message.
Cite sources inline by their URL or host when a claim comes from the
context. Prefer scraped excerpts and their chunks over bare snippets. If
the context does not cover the question, say so instead of guessing. Never
invent URLs.`

// assembleMessages builds the final streaming call: the citation
// instruction, the prior history in order, then one user turn holding the
// literal question and the clamped context. It performs no I/O and fails
// only if the context cannot be encoded.
func assembleMessages(history []provider.Message, question string, wc *webctx.WebContext) ([]provider.Message, error) {
	messages := make([]provider.Message, 0, len(history)+2)
	messages = append(messages, provider.Message{Role: "system", Content: answerSystemPrompt})
	messages = append(messages, history...)

	content := question
	if wc != nil && !wc.Empty() {
		data, err := json.Marshal(wc)
		if err != nil {
			return nil, fmt.Errorf("encoding web context: %w", err)
		}
		content = fmt.Sprintf("%s\n\nWeb context (JSON):\n%s", question, data)
	}
	messages = append(messages, provider.Message{Role: "user", Content: content})
	return messages, nil
}
