package retriever

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/capitalize-ai/chatbot-engine/internal/index"
	"github.com/capitalize-ai/chatbot-engine/internal/model"
	"github.com/capitalize-ai/chatbot-engine/pkg/logger"
)

type fakeEmbedder struct {
	err error
}

func (f fakeEmbedder) Embed(context.Context, string) ([]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	return []float32{0.1, 0.2, 0.3}, nil
}

type fakeIndex struct {
	chunks   []index.Chunk
	err      error
	failures int // fail this many calls before succeeding
	calls    int
}

func (f *fakeIndex) Search(_ context.Context, namespace string, _ []float32, k int) ([]index.Chunk, error) {
	f.calls++
	if f.err != nil && f.calls <= f.failures {
		return nil, f.err
	}
	if f.err != nil && f.failures == 0 {
		return nil, f.err
	}
	var out []index.Chunk
	for _, c := range f.chunks {
		if c.Namespace == namespace && len(out) < k {
			out = append(out, c)
		}
	}
	return out, nil
}

func (f *fakeIndex) Ready(context.Context) error { return nil }

func tenantWithNS(ns string) *model.Tenant {
	return &model.Tenant{ID: "t1", IndexNamespace: ns, QuotaCeiling: 10}
}

func TestRetrieveReturnsNamespaceChunks(t *testing.T) {
	idx := &fakeIndex{chunks: []index.Chunk{
		{Text: "hours are 9-5", Namespace: "ns-a", Similarity: 0.9},
		{Text: "closed sundays", Namespace: "ns-a", Similarity: 0.8},
	}}
	r := NewRetriever(fakeEmbedder{}, idx, 4, 2, logger.NewNop())

	chunks, err := r.Retrieve(context.Background(), tenantWithNS("ns-a"), "what are your hours?")
	require.NoError(t, err)
	require.Len(t, chunks, 2)
	assert.Equal(t, "hours are 9-5", chunks[0].Text)
}

func TestRetrieveFiltersForeignNamespaces(t *testing.T) {
	// A misbehaving index returning another tenant's chunk must not leak it.
	idx := &fakeIndex{chunks: []index.Chunk{
		{Text: "mine", Namespace: "ns-a", Similarity: 0.9},
	}}
	leaky := &leakyIndex{inner: idx, extra: index.Chunk{Text: "other tenant secret", Namespace: "ns-b"}}
	r := NewRetriever(fakeEmbedder{}, leaky, 4, 1, logger.NewNop())

	chunks, err := r.Retrieve(context.Background(), tenantWithNS("ns-a"), "q")
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, "ns-a", chunks[0].Namespace)
}

type leakyIndex struct {
	inner *fakeIndex
	extra index.Chunk
}

func (l *leakyIndex) Search(ctx context.Context, ns string, v []float32, k int) ([]index.Chunk, error) {
	chunks, err := l.inner.Search(ctx, ns, v, k)
	return append(chunks, l.extra), err
}

func (l *leakyIndex) Ready(context.Context) error { return nil }

func TestRetrieveDegradesOnIndexError(t *testing.T) {
	idx := &fakeIndex{err: errors.New("connection refused")}
	r := NewRetriever(fakeEmbedder{}, idx, 4, 2, logger.NewNop())

	chunks, err := r.Retrieve(context.Background(), tenantWithNS("ns-a"), "q")
	require.NoError(t, err, "index failure is a local degradation, not a pipeline error")
	assert.Empty(t, chunks)
	assert.Equal(t, 2, idx.calls, "search is retried up to the attempt bound")
}

func TestRetrieveRecoversOnRetry(t *testing.T) {
	idx := &fakeIndex{
		chunks:   []index.Chunk{{Text: "ok", Namespace: "ns-a", Similarity: 0.9}},
		err:      errors.New("transient"),
		failures: 1,
	}
	r := NewRetriever(fakeEmbedder{}, idx, 4, 2, logger.NewNop())

	chunks, err := r.Retrieve(context.Background(), tenantWithNS("ns-a"), "q")
	require.NoError(t, err)
	require.Len(t, chunks, 1)
}

func TestRetrieveDegradesOnEmbedError(t *testing.T) {
	idx := &fakeIndex{chunks: []index.Chunk{{Text: "x", Namespace: "ns-a"}}}
	r := NewRetriever(fakeEmbedder{err: errors.New("backend down")}, idx, 4, 2, logger.NewNop())

	chunks, err := r.Retrieve(context.Background(), tenantWithNS("ns-a"), "q")
	require.NoError(t, err)
	assert.Empty(t, chunks)
	assert.Zero(t, idx.calls, "no search without an embedding")
}

func TestRetrieveRejectsMissingNamespace(t *testing.T) {
	r := NewRetriever(fakeEmbedder{}, &fakeIndex{}, 4, 2, logger.NewNop())

	_, err := r.Retrieve(context.Background(), tenantWithNS(""), "q")
	assert.ErrorIs(t, err, ErrMissingNamespace)
}
