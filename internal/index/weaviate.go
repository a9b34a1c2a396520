package index

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/filters"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/graphql"
	"github.com/weaviate/weaviate/entities/models"
)

// WeaviateIndex implements Index over a Weaviate class. Every query carries
// a namespace filter; tenant scoping is enforced in the query itself, not by
// caller convention.
type WeaviateIndex struct {
	client    *weaviate.Client
	className string
}

// NewWeaviateIndex creates an index client for the given server URL and
// class name.
func NewWeaviateIndex(url, className string) (*WeaviateIndex, error) {
	cfg := weaviate.Config{
		Host:   url,
		Scheme: "http",
	}
	if strings.HasPrefix(url, "https://") {
		cfg.Scheme = "https"
		cfg.Host = strings.TrimPrefix(url, "https://")
	} else if strings.HasPrefix(url, "http://") {
		cfg.Host = strings.TrimPrefix(url, "http://")
	}

	client, err := weaviate.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("create weaviate client: %w", err)
	}

	return &WeaviateIndex{
		client:    client,
		className: className,
	}, nil
}

// Search runs a namespace-filtered near-vector query.
func (w *WeaviateIndex) Search(ctx context.Context, namespace string, vector []float32, k int) ([]Chunk, error) {
	if namespace == "" {
		return nil, errors.New("namespace is required")
	}
	if k <= 0 {
		return nil, nil
	}

	where := filters.Where().
		WithPath([]string{"namespace"}).
		WithOperator(filters.Equal).
		WithValueString(namespace)

	nearVector := w.client.GraphQL().NearVectorArgBuilder().
		WithVector(vector)

	fields := []graphql.Field{
		{Name: "text"},
		{Name: "namespace"},
		{Name: "_additional { certainty }"},
	}

	result, err := w.client.GraphQL().Get().
		WithClassName(w.className).
		WithFields(fields...).
		WithWhere(where).
		WithNearVector(nearVector).
		WithLimit(k).
		Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("vector search: %w", err)
	}
	if len(result.Errors) > 0 {
		return nil, fmt.Errorf("vector search: %s", result.Errors[0].Message)
	}

	return w.parseChunks(result)
}

func (w *WeaviateIndex) parseChunks(result *models.GraphQLResponse) ([]Chunk, error) {
	get, ok := result.Data["Get"].(map[string]any)
	if !ok {
		return nil, nil
	}
	items, ok := get[w.className].([]any)
	if !ok {
		return nil, nil
	}

	chunks := make([]Chunk, 0, len(items))
	for _, item := range items {
		obj, ok := item.(map[string]any)
		if !ok {
			continue
		}
		chunk := Chunk{}
		if text, ok := obj["text"].(string); ok {
			chunk.Text = text
		}
		if ns, ok := obj["namespace"].(string); ok {
			chunk.Namespace = ns
		}
		if additional, ok := obj["_additional"].(map[string]any); ok {
			if certainty, ok := additional["certainty"].(float64); ok {
				chunk.Similarity = certainty
			}
		}
		chunks = append(chunks, chunk)
	}
	return chunks, nil
}

// Ready checks the server's readiness endpoint.
func (w *WeaviateIndex) Ready(ctx context.Context) error {
	ready, err := w.client.Misc().ReadyChecker().Do(ctx)
	if err != nil {
		return fmt.Errorf("weaviate readiness: %w", err)
	}
	if !ready {
		return errors.New("weaviate not ready")
	}
	return nil
}
