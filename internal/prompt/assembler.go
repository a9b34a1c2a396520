// Package prompt assembles size-bounded prompts from retrieved context,
// conversation history, and the new user message.
package prompt

import (
	"strings"

	"github.com/capitalize-ai/chatbot-engine/internal/index"
	"github.com/capitalize-ai/chatbot-engine/internal/model"
)

const (
	contextHeader      = "Answer using the following context when it is relevant:\n"
	conversationHeader = "Conversation so far:\n"
)

// Assembler builds prompts under a maximum character bound.
type Assembler struct {
	maxChars int
}

// NewAssembler creates an assembler with the given prompt size bound.
func NewAssembler(maxChars int) *Assembler {
	return &Assembler{maxChars: maxChars}
}

// Assemble is deterministic given its inputs. When the bound is exceeded it
// trims, in order: the least-similar retrieved chunks, then the oldest
// history messages. The new user message is never truncated.
func (a *Assembler) Assemble(chunks []index.Chunk, history []model.Message, newMessage string) string {
	// chunks arrive ordered by descending similarity, history oldest first.
	for {
		p := render(chunks, history, newMessage)
		if len(p) <= a.maxChars {
			return p
		}
		if len(chunks) > 0 {
			chunks = chunks[:len(chunks)-1]
			continue
		}
		if len(history) > 0 {
			history = history[1:]
			continue
		}
		return p
	}
}

func render(chunks []index.Chunk, history []model.Message, newMessage string) string {
	var b strings.Builder

	if len(chunks) > 0 {
		b.WriteString(contextHeader)
		for _, c := range chunks {
			b.WriteString(c.Text)
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}

	if len(history) > 0 {
		b.WriteString(conversationHeader)
		for _, m := range history {
			b.WriteString(string(m.Role))
			b.WriteString(": ")
			b.WriteString(m.Content)
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}

	b.WriteString("user: ")
	b.WriteString(newMessage)
	return b.String()
}
