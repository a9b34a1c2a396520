package generate

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/capitalize-ai/chatbot-engine/internal/llm"
	"github.com/capitalize-ai/chatbot-engine/pkg/logger"
)

type fakeClient struct {
	response *llm.CompletionResponse
	err      error
	delay    time.Duration
	calls    int
}

func (f *fakeClient) Complete(ctx context.Context, _ *llm.CompletionRequest) (*llm.CompletionResponse, error) {
	f.calls++
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	return f.response, nil
}

func (f *fakeClient) Name() string { return "fake" }

func TestGenerateSuccess(t *testing.T) {
	client := &fakeClient{response: &llm.CompletionResponse{
		Content: "we open at nine", Model: "fake-1", TokensIn: 12, TokensOut: 5,
	}}
	g := NewGenerator(client, time.Second, logger.NewNop())

	res := g.Generate(context.Background(), "t1", "when do you open?")
	assert.False(t, res.Fallback)
	assert.Equal(t, "we open at nine", res.Text)
	assert.Equal(t, 12, res.TokensIn)
}

func TestGenerateFallsBackOnError(t *testing.T) {
	client := &fakeClient{err: errors.New("backend unavailable")}
	g := NewGenerator(client, time.Second, logger.NewNop())

	res := g.Generate(context.Background(), "t1", "q")
	assert.True(t, res.Fallback)
	assert.Equal(t, FallbackText, res.Text)
}

func TestGenerateFallsBackOnTimeout(t *testing.T) {
	client := &fakeClient{
		delay:    200 * time.Millisecond,
		response: &llm.CompletionResponse{Content: "too late"},
	}
	g := NewGenerator(client, 20*time.Millisecond, logger.NewNop())

	res := g.Generate(context.Background(), "t1", "q")
	assert.True(t, res.Fallback)
	assert.Equal(t, FallbackText, res.Text)
}

func TestGenerateSingleAttempt(t *testing.T) {
	client := &fakeClient{err: errors.New("flaky")}
	g := NewGenerator(client, time.Second, logger.NewNop())

	g.Generate(context.Background(), "t1", "q")
	assert.Equal(t, 1, client.calls, "generation is never retried")
}

func TestGenerateWithoutClient(t *testing.T) {
	g := NewGenerator(nil, time.Second, logger.NewNop())

	res := g.Generate(context.Background(), "t1", "q")
	assert.True(t, res.Fallback)
	assert.Equal(t, FallbackText, res.Text)
}
