// Package retriever fetches tenant-scoped supporting context for a query.
package retriever

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/capitalize-ai/chatbot-engine/internal/index"
	"github.com/capitalize-ai/chatbot-engine/internal/llm"
	"github.com/capitalize-ai/chatbot-engine/internal/model"
	"github.com/capitalize-ai/chatbot-engine/pkg/logger"
	"github.com/capitalize-ai/chatbot-engine/pkg/metrics"
)

// ErrMissingNamespace indicates a tenant without an index namespace. This
// is a contract violation, not a degradation: the request must abort.
var ErrMissingNamespace = errors.New("tenant has no index namespace")

// Retriever embeds a query and searches the tenant's document namespace.
type Retriever struct {
	embedder llm.Embedder
	index    index.Index
	k        int
	attempts int
	logger   *logger.Logger
}

// NewRetriever creates a retriever fetching up to k chunks with the given
// bounded attempt count per search. Retrieval is read-only and idempotent,
// so a small retry budget is safe.
func NewRetriever(embedder llm.Embedder, idx index.Index, k, attempts int, log *logger.Logger) *Retriever {
	if attempts < 1 {
		attempts = 1
	}
	return &Retriever{
		embedder: embedder,
		index:    idx,
		k:        k,
		attempts: attempts,
		logger:   log,
	}
}

// Retrieve returns up to k chunks from the tenant's namespace ordered by
// descending similarity. Index or embedding failures degrade to an empty
// result set: a chatbot with no usable context still answers from history.
// The only error returned is the namespace contract violation.
func (r *Retriever) Retrieve(ctx context.Context, tenant *model.Tenant, query string) ([]index.Chunk, error) {
	if tenant.IndexNamespace == "" {
		return nil, ErrMissingNamespace
	}
	if r.k <= 0 || r.embedder == nil || r.index == nil {
		return nil, nil
	}

	vector, err := r.embedder.Embed(ctx, query)
	if err != nil {
		r.degrade(tenant.ID, "embed query", err)
		return nil, nil
	}

	var chunks []index.Chunk
	for attempt := 1; attempt <= r.attempts; attempt++ {
		chunks, err = r.index.Search(ctx, tenant.IndexNamespace, vector, r.k)
		if err == nil {
			break
		}
		if ctx.Err() != nil {
			break
		}
	}
	if err != nil {
		r.degrade(tenant.ID, "vector search", err)
		return nil, nil
	}

	// The index already filters by namespace; drop anything else rather
	// than trust a misconfigured backend.
	filtered := chunks[:0]
	for _, c := range chunks {
		if c.Namespace == tenant.IndexNamespace {
			filtered = append(filtered, c)
		}
	}
	return filtered, nil
}

func (r *Retriever) degrade(tenantID, op string, err error) {
	metrics.RetrievalFailures.WithLabelValues(tenantID).Inc()
	r.logger.Warn("retrieval degraded to empty context",
		zap.String("tenant_id", tenantID),
		zap.String("op", op),
		zap.Error(err),
	)
}
