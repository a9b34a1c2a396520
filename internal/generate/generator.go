// Package generate invokes the generation backend with timeout and
// fallback behavior.
package generate

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/capitalize-ai/chatbot-engine/internal/llm"
	"github.com/capitalize-ai/chatbot-engine/pkg/logger"
	"github.com/capitalize-ai/chatbot-engine/pkg/metrics"
)

// FallbackText is returned when the backend fails or times out. Generation
// failures are expected operational noise, not pipeline errors.
const FallbackText = "Sorry, I couldn't process your request."

// Result is the outcome of one generation attempt.
type Result struct {
	Text      string
	Model     string
	TokensIn  int
	TokensOut int
	LatencyMs int64
	Fallback  bool
}

// Generator wraps a backend client with a bounded timeout. Exactly one
// attempt is made per turn: a retried completion is not idempotent in cost.
type Generator struct {
	client  llm.Client
	timeout time.Duration
	logger  *logger.Logger
}

// NewGenerator creates a generator with the given per-call timeout.
func NewGenerator(client llm.Client, timeout time.Duration, log *logger.Logger) *Generator {
	return &Generator{
		client:  client,
		timeout: timeout,
		logger:  log,
	}
}

// Generate completes the prompt or degrades to the fallback text. It never
// returns an error; the Fallback flag records degradation.
func (g *Generator) Generate(ctx context.Context, tenantID, prompt string) Result {
	if g.client == nil {
		metrics.GenerationFallbacks.WithLabelValues(tenantID).Inc()
		return Result{Text: FallbackText, Fallback: true}
	}

	callCtx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	start := time.Now()
	resp, err := g.client.Complete(callCtx, &llm.CompletionRequest{
		Messages: []llm.ChatMessage{{Role: "user", Content: prompt}},
	})
	elapsed := time.Since(start)

	if err != nil {
		metrics.GenerationFallbacks.WithLabelValues(tenantID).Inc()
		metrics.RecordGeneration(g.client.Name(), "fallback", elapsed.Seconds(), 0, 0)
		g.logger.Warn("generation degraded to fallback",
			zap.String("tenant_id", tenantID),
			zap.Duration("elapsed", elapsed),
			zap.Error(err),
		)
		return Result{Text: FallbackText, Fallback: true, LatencyMs: elapsed.Milliseconds()}
	}

	metrics.RecordGeneration(resp.Model, "success", elapsed.Seconds(), resp.TokensIn, resp.TokensOut)
	return Result{
		Text:      resp.Content,
		Model:     resp.Model,
		TokensIn:  resp.TokensIn,
		TokensOut: resp.TokensOut,
		LatencyMs: resp.LatencyMs,
	}
}
