// Package pipeline orchestrates the per-message response flow: admission,
// quota reservation, message recording, retrieval, assembly, generation,
// and an exactly-once commit.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/capitalize-ai/chatbot-engine/internal/admission"
	"github.com/capitalize-ai/chatbot-engine/internal/convlog"
	"github.com/capitalize-ai/chatbot-engine/internal/events"
	"github.com/capitalize-ai/chatbot-engine/internal/generate"
	"github.com/capitalize-ai/chatbot-engine/internal/model"
	"github.com/capitalize-ai/chatbot-engine/internal/prompt"
	"github.com/capitalize-ai/chatbot-engine/internal/quota"
	"github.com/capitalize-ai/chatbot-engine/internal/retriever"
	"github.com/capitalize-ai/chatbot-engine/internal/store"
	"github.com/capitalize-ai/chatbot-engine/pkg/logger"
	"github.com/capitalize-ai/chatbot-engine/pkg/metrics"
)

// ErrInvalidRequest marks a request that violates the pipeline contract.
// It aborts immediately, before any mutation.
var ErrInvalidRequest = errors.New("invalid request")

// Request is one inbound user turn.
type Request struct {
	TenantID       string
	ConversationID string
	// Identity keys the rate-limit bucket, e.g. tenant plus network
	// origin.
	Identity string
	Text     string
}

// Result is the single outcome returned to the caller.
type Result struct {
	Status         model.Status
	UserMessage    *model.Message
	AssistantText  string
	RemainingQuota *int64
	RetryAfter     time.Duration
}

// Pipeline wires the pipeline stages together.
type Pipeline struct {
	store     store.Store
	limiter   admission.Limiter
	quota     *quota.Tracker
	log       *convlog.Log
	retriever *retriever.Retriever
	assembler *prompt.Assembler
	generator *generate.Generator
	publisher events.Publisher

	historyLimit int
	logger       *logger.Logger
}

// Options carries the pipeline's collaborators.
type Options struct {
	Store        store.Store
	Limiter      admission.Limiter
	Quota        *quota.Tracker
	Log          *convlog.Log
	Retriever    *retriever.Retriever
	Assembler    *prompt.Assembler
	Generator    *generate.Generator
	Publisher    events.Publisher
	HistoryLimit int
	Logger       *logger.Logger
}

// New creates a pipeline.
func New(opts Options) *Pipeline {
	return &Pipeline{
		store:        opts.Store,
		limiter:      opts.Limiter,
		quota:        opts.Quota,
		log:          opts.Log,
		retriever:    opts.Retriever,
		assembler:    opts.Assembler,
		generator:    opts.Generator,
		publisher:    opts.Publisher,
		historyLimit: opts.HistoryLimit,
		logger:       opts.Logger,
	}
}

// HandleMessage runs one user turn through the pipeline. Gate rejections
// return early with no side effects beyond the admission counter; the
// accepted path records the user message, generates a response (degrading
// to fallback on backend failure), then commits the assistant message,
// quota finalization, and usage analytics exactly once.
func (p *Pipeline) HandleMessage(ctx context.Context, req Request) (*Result, error) {
	if req.TenantID == "" || req.ConversationID == "" || req.Identity == "" || req.Text == "" {
		return nil, fmt.Errorf("%w: tenant, conversation, identity, and text are required", ErrInvalidRequest)
	}

	tenant, err := p.store.GetTenant(ctx, req.TenantID)
	if err != nil {
		return nil, fmt.Errorf("load tenant: %w", err)
	}
	if tenant.IndexNamespace == "" {
		return nil, fmt.Errorf("%w: tenant %s has no index namespace", ErrInvalidRequest, tenant.ID)
	}

	// Gate 1: admission. A denial must not reach the quota tracker or
	// touch the conversation log. A limiter failure fails closed.
	decision, err := p.limiter.Admit(ctx, req.Identity)
	if err != nil {
		return nil, fmt.Errorf("admission check: %w", err)
	}
	if !decision.Allowed {
		metrics.AdmissionRejections.WithLabelValues(tenant.ID).Inc()
		metrics.PipelineOutcomes.WithLabelValues(tenant.ID, string(model.StatusRejectedByAdmission)).Inc()
		return &Result{
			Status:     model.StatusRejectedByAdmission,
			RetryAfter: decision.RetryAfter,
		}, nil
	}

	// Gate 2: quota. A denial performs no mutation.
	reservation, ok := p.quota.CheckAndReserve(ctx, tenant)
	if !ok {
		metrics.QuotaRejections.WithLabelValues(tenant.ID).Inc()
		metrics.PipelineOutcomes.WithLabelValues(tenant.ID, string(model.StatusRejectedByQuota)).Inc()
		zero := int64(0)
		return &Result{
			Status:         model.StatusRejectedByQuota,
			RemainingQuota: &zero,
			RetryAfter:     p.quota.ResetIn(),
		}, nil
	}

	// Accepted: record the user message. A failure here releases the
	// reservation so failed attempts never consume quota.
	userMsg, err := p.log.Append(ctx, &model.Message{
		TenantID:       tenant.ID,
		ConversationID: req.ConversationID,
		Role:           model.RoleUser,
		Content:        req.Text,
	})
	if err != nil {
		reservation.Release()
		metrics.PipelineOutcomes.WithLabelValues(tenant.ID, string(model.StatusFailed)).Inc()
		return nil, fmt.Errorf("record user message: %w", err)
	}

	// Retrieval and assembly always succeed in a degraded sense: empty
	// context is allowed. History excludes the just-recorded user turn
	// via the sequence cutoff being irrelevant here; the assembler
	// appends the new message itself, so drop it from the window.
	history, err := p.log.History(ctx, tenant.ID, req.ConversationID, p.historyLimit)
	if err != nil {
		p.logger.Warn("history unavailable, assembling from the new message only",
			zap.String("tenant_id", tenant.ID),
			zap.Error(err),
		)
		history = nil
	}
	if n := len(history); n > 0 && history[n-1].ID == userMsg.ID {
		history = history[:n-1]
	}

	chunks, err := p.retriever.Retrieve(ctx, tenant, req.Text)
	if err != nil {
		// Namespace contract violations abort; the reservation is
		// released, the user message stays recorded.
		reservation.Release()
		metrics.PipelineOutcomes.WithLabelValues(tenant.ID, string(model.StatusFailed)).Inc()
		return nil, fmt.Errorf("retrieve context: %w", err)
	}

	assembled := p.assembler.Assemble(chunks, history, req.Text)
	generated := p.generator.Generate(ctx, tenant.ID, assembled)

	// Commit: assistant append, quota finalize, usage increment — one
	// logical commit. The commit runs on a detached context so a caller
	// deadline that fired during generation cannot leave the turn
	// half-committed.
	commitCtx := context.WithoutCancel(ctx)
	result, err := p.commit(commitCtx, tenant, reservation, userMsg, generated)
	if err != nil {
		metrics.CommitFailures.WithLabelValues(tenant.ID).Inc()
		metrics.PipelineOutcomes.WithLabelValues(tenant.ID, string(model.StatusFailed)).Inc()
		p.logger.Error("commit failed, reconciliation required",
			zap.String("tenant_id", tenant.ID),
			zap.String("conversation_id", req.ConversationID),
			zap.String("user_message_id", userMsg.ID),
			zap.Error(err),
		)
		return nil, err
	}

	metrics.PipelineOutcomes.WithLabelValues(tenant.ID, string(result.Status)).Inc()
	if !tenant.Unlimited() {
		metrics.QuotaRemaining.WithLabelValues(tenant.ID).Set(float64(reservation.Remaining))
	}
	return result, nil
}

func (p *Pipeline) commit(ctx context.Context, tenant *model.Tenant, reservation *quota.Reservation, userMsg *model.Message, generated generate.Result) (*Result, error) {
	assistantMsg := &model.Message{
		TenantID:       tenant.ID,
		ConversationID: userMsg.ConversationID,
		Role:           model.RoleAssistant,
		Content:        generated.Text,
		Fallback:       generated.Fallback,
		LatencyMs:      &generated.LatencyMs,
	}
	if generated.Model != "" {
		assistantMsg.Model = &generated.Model
		assistantMsg.TokensIn = &generated.TokensIn
		assistantMsg.TokensOut = &generated.TokensOut
	}

	if _, err := p.log.Append(ctx, assistantMsg); err != nil {
		// Nothing durable was committed for this turn's quota; the
		// released unit keeps fast and durable counters converged.
		reservation.Release()
		return nil, fmt.Errorf("record assistant message: %w", err)
	}

	if err := reservation.Finalize(ctx); err != nil {
		// The assistant message is in place but the durable counter is
		// behind the fast one; reconciliation corrects the drift.
		return nil, err
	}

	date := assistantMsg.CreatedAt.UTC().Format("2006-01-02")
	if err := p.store.IncrementUsage(ctx, tenant.ID, date); err != nil {
		return nil, fmt.Errorf("record usage: %w", err)
	}

	status := model.StatusCommitted
	if generated.Fallback {
		status = model.StatusDegraded
	}

	if p.publisher != nil {
		event := &model.UsageEvent{
			ID:             uuid.Must(uuid.NewV7()).String(),
			TenantID:       tenant.ID,
			ConversationID: userMsg.ConversationID,
			Status:         status,
			Date:           date,
			TokensIn:       generated.TokensIn,
			TokensOut:      generated.TokensOut,
			CreatedAt:      time.Now(),
		}
		if err := p.publisher.PublishUsage(ctx, event); err != nil {
			p.logger.Warn("usage event publish failed",
				zap.String("tenant_id", tenant.ID),
				zap.Error(err),
			)
		}
	}

	result := &Result{
		Status:        status,
		UserMessage:   userMsg,
		AssistantText: generated.Text,
	}
	if !tenant.Unlimited() {
		remaining := reservation.Remaining
		result.RemainingQuota = &remaining
	}
	return result, nil
}
