// Package index provides tenant-scoped vector search over document chunks.
package index

import (
	"context"
)

// Chunk is one retrieved document fragment. The namespace tag records which
// tenant's corpus it came from.
type Chunk struct {
	Text       string
	Namespace  string
	Similarity float64
}

// Index is the document index consumed by the retriever. Search must be
// scoped strictly to the given namespace; chunks from other namespaces are
// never returned.
type Index interface {
	// Search returns up to k chunks for the namespace, ordered by
	// descending similarity to the vector.
	Search(ctx context.Context, namespace string, vector []float32, k int) ([]Chunk, error)

	// Ready reports whether the index is reachable.
	Ready(ctx context.Context) error
}
