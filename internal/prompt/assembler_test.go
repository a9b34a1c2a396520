package prompt

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/capitalize-ai/chatbot-engine/internal/index"
	"github.com/capitalize-ai/chatbot-engine/internal/model"
)

func chunk(text string, sim float64) index.Chunk {
	return index.Chunk{Text: text, Namespace: "ns", Similarity: sim}
}

func msg(role model.Role, content string) model.Message {
	return model.Message{Role: role, Content: content}
}

func TestAssembleIncludesAllSections(t *testing.T) {
	a := NewAssembler(10000)
	p := a.Assemble(
		[]index.Chunk{chunk("store hours: 9-5", 0.9)},
		[]model.Message{msg(model.RoleUser, "hello"), msg(model.RoleAssistant, "hi there")},
		"when do you open?",
	)

	assert.Contains(t, p, "store hours: 9-5")
	assert.Contains(t, p, "user: hello")
	assert.Contains(t, p, "assistant: hi there")
	assert.True(t, strings.HasSuffix(p, "user: when do you open?"))
}

func TestAssembleDeterministic(t *testing.T) {
	a := NewAssembler(10000)
	chunks := []index.Chunk{chunk("a", 0.9), chunk("b", 0.5)}
	history := []model.Message{msg(model.RoleUser, "x")}

	first := a.Assemble(chunks, history, "q")
	second := a.Assemble(chunks, history, "q")
	assert.Equal(t, first, second)
}

func TestAssembleDropsLeastSimilarChunksFirst(t *testing.T) {
	best := chunk(strings.Repeat("A", 40), 0.9)
	worst := chunk(strings.Repeat("B", 40), 0.2)
	history := []model.Message{msg(model.RoleUser, "hi")}

	a := NewAssembler(len(render([]index.Chunk{best}, history, "q")))
	p := a.Assemble([]index.Chunk{best, worst}, history, "q")

	assert.Contains(t, p, best.Text)
	assert.NotContains(t, p, worst.Text)
	assert.Contains(t, p, "user: hi", "history survives while chunks still fit")
}

func TestAssembleDropsOldestHistoryAfterChunks(t *testing.T) {
	old := msg(model.RoleUser, strings.Repeat("O", 50))
	recent := msg(model.RoleAssistant, strings.Repeat("R", 50))

	a := NewAssembler(len(render(nil, []model.Message{recent}, "q")))
	p := a.Assemble(
		[]index.Chunk{chunk(strings.Repeat("C", 50), 0.9)},
		[]model.Message{old, recent},
		"q",
	)

	assert.NotContains(t, p, old.Content)
	assert.Contains(t, p, recent.Content)
}

func TestAssembleNeverTruncatesNewMessage(t *testing.T) {
	a := NewAssembler(10)
	question := strings.Repeat("Q", 100)

	p := a.Assemble(
		[]index.Chunk{chunk("ctx", 0.9)},
		[]model.Message{msg(model.RoleUser, "old")},
		question,
	)

	require.True(t, strings.HasSuffix(p, question))
	assert.NotContains(t, p, "ctx")
	assert.NotContains(t, p, "old")
}

func TestAssembleEmptyContextAllowed(t *testing.T) {
	a := NewAssembler(10000)
	p := a.Assemble(nil, nil, "lonely question")
	assert.Equal(t, "user: lonely question", p)
}
