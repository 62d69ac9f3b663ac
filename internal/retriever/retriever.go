// Package retriever implements the Retriever Adapter (C5): a thin callable
// that embeds a query, searches a vector store, and maps hits to Documents
// (SPEC_FULL.md §4.5). It depends only on the two small interfaces below —
// EmbeddingProvider and VectorStore — so internal/provider's concrete
// OpenAI/chromem-go adapters stay swappable and independently testable.
package retriever

import (
	"context"
	"strings"

	domainerrors "github.com/flowcore/chatflow/internal/domain/errors"
)

// Document is a single retrieved chunk, ready to be joined into a model
// node's retrieval_context.
type Document struct {
	PageContent string
	Metadata    map[string]any
}

// EmbeddingProvider turns text into a dense vector. Acquired once per
// Retriever from an embedding service; if none is configured the Retriever
// degrades to a noop (spec.md §4.5 step 1).
type EmbeddingProvider interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// SearchHit is one vector-store match before score filtering.
type SearchHit struct {
	Content     string
	DocumentID  string
	ChunkIndex  int
	Score       float64
}

// SearchFilter ANDs the optional user/document-id predicates described in
// spec.md §4.5 step 3.
type SearchFilter struct {
	UserID      string
	DocumentIDs []string
}

// VectorStore performs a similarity search over an embedded query vector.
type VectorStore interface {
	SearchSimilar(ctx context.Context, vector []float32, k int, filter SearchFilter) ([]SearchHit, error)
}

// Config configures a single Retriever instance, mirroring the constructor
// signature in spec.md §4.5 ("(user_id?, document_ids?, collection_name, k,
// score_threshold)").
type Config struct {
	UserID         string
	DocumentIDs    []string
	CollectionName string
	K              int
	ScoreThreshold float64
}

// Retriever is the C5 callable. A nil Embedder makes it a noop retriever
// that always returns an empty result set — the caller is expected to log
// the warning described in spec.md §4.5 step 1 at construction time, not
// here, since this package has no logger collaborator of its own.
type Retriever struct {
	Embedder EmbeddingProvider
	Store    VectorStore
	Config   Config
}

// New builds a Retriever. A nil embedder or store is valid and yields a
// noop retriever.
func New(embedder EmbeddingProvider, store VectorStore, cfg Config) *Retriever {
	return &Retriever{Embedder: embedder, Store: store, Config: cfg}
}

// IsNoop reports whether this retriever has no embedding provider or vector
// store wired, in which case Retrieve always returns an empty result set.
func (r *Retriever) IsNoop() bool {
	return r.Embedder == nil || r.Store == nil
}

// Retrieve embeds query and returns the top-k documents above the
// configured score threshold. Embedding or search failures are wrapped in
// domainerrors.RetrieverError per spec.md §4.5/§7; the retrieval node
// decides whether that's fatal.
func (r *Retriever) Retrieve(ctx context.Context, query string) ([]Document, error) {
	if r.IsNoop() {
		return nil, nil
	}

	vector, err := r.Embedder.Embed(ctx, query)
	if err != nil {
		return nil, domainerrors.NewRetrieverError("embed", err)
	}

	k := r.Config.K
	if k <= 0 {
		k = 5
	}
	hits, err := r.Store.SearchSimilar(ctx, vector, k, SearchFilter{
		UserID:      r.Config.UserID,
		DocumentIDs: r.Config.DocumentIDs,
	})
	if err != nil {
		return nil, domainerrors.NewRetrieverError("search", err)
	}

	docs := make([]Document, 0, len(hits))
	for _, h := range hits {
		if h.Score < r.Config.ScoreThreshold {
			continue
		}
		docs = append(docs, Document{
			PageContent: h.Content,
			Metadata: map[string]any{
				"document_id": h.DocumentID,
				"chunk_index": h.ChunkIndex,
				"score":       h.Score,
			},
		})
	}
	return docs, nil
}

// JoinPageContent joins the top-k documents' page content with blank-line
// separators, per spec.md's retrieval-node behavior (SPEC_FULL.md §4.6).
func JoinPageContent(docs []Document) string {
	parts := make([]string, 0, len(docs))
	for _, d := range docs {
		parts = append(parts, d.PageContent)
	}
	return strings.Join(parts, "\n\n")
}
