// Package chromemstore implements retriever.VectorStore on top of
// chromem-go, an embeddable pure-Go vector database. Grounded on
// other_examples' ternarybob-iter retrieval sketch for the general
// embed-then-search shape; chromem-go itself supplies the collection and
// similarity-search primitives this adapter wires through.
package chromemstore

import (
	"context"
	"fmt"

	chromem "github.com/philippgille/chromem-go"

	"github.com/flowcore/chatflow/internal/retriever"
)

// Store adapts a chromem-go collection to retriever.VectorStore. Documents
// are expected to have been added out-of-band (via AddDocument) with their
// embedding precomputed by the same EmbeddingProvider the Retriever uses,
// so query-time and index-time vectors live in the same space.
type Store struct {
	collection *chromem.Collection
}

var _ retriever.VectorStore = (*Store)(nil)

// New opens (or creates) a named collection in db with no embedding
// function (nil); this adapter always supplies vectors explicitly, in Add
// and in SearchSimilar.
func New(db *chromem.DB, collectionName string) (*Store, error) {
	collection, err := db.GetOrCreateCollection(collectionName, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("chromemstore: get or create collection %q: %w", collectionName, err)
	}
	return &Store{collection: collection}, nil
}

// IndexedDocument is one chunk to add to the store, with its embedding
// precomputed by the caller's EmbeddingProvider.
type IndexedDocument struct {
	ID         string
	Content    string
	Embedding  []float32
	DocumentID string
	ChunkIndex int
}

// Add indexes a document chunk into the collection.
func (s *Store) Add(ctx context.Context, doc IndexedDocument) error {
	return s.collection.AddDocument(ctx, chromem.Document{
		ID:        doc.ID,
		Content:   doc.Content,
		Embedding: doc.Embedding,
		Metadata: map[string]string{
			"document_id": doc.DocumentID,
			"chunk_index": fmt.Sprintf("%d", doc.ChunkIndex),
		},
	})
}

// SearchSimilar implements retriever.VectorStore by querying the underlying
// chromem-go collection with a precomputed vector. The user_id filter goes
// through chromem-go's metadata "where" clause; the document_id filter is
// applied to the returned hits afterwards.
func (s *Store) SearchSimilar(ctx context.Context, vector []float32, k int, filter retriever.SearchFilter) ([]retriever.SearchHit, error) {
	where := map[string]string{}
	if filter.UserID != "" {
		where["user_id"] = filter.UserID
	}

	n := k
	if count := s.collection.Count(); n > count {
		n = count
	}
	if n <= 0 {
		return nil, nil
	}

	results, err := s.collection.QueryEmbedding(ctx, vector, n, where, nil)
	if err != nil {
		return nil, fmt.Errorf("chromemstore: query: %w", err)
	}

	hits := make([]retriever.SearchHit, 0, len(results))
	for _, r := range results {
		if !documentAllowed(r.Metadata["document_id"], filter.DocumentIDs) {
			continue
		}
		var chunkIndex int
		fmt.Sscanf(r.Metadata["chunk_index"], "%d", &chunkIndex)
		hits = append(hits, retriever.SearchHit{
			Content:    r.Content,
			DocumentID: r.Metadata["document_id"],
			ChunkIndex: chunkIndex,
			Score:      float64(r.Similarity),
		})
	}
	return hits, nil
}

func documentAllowed(documentID string, allowed []string) bool {
	if len(allowed) == 0 {
		return true
	}
	for _, id := range allowed {
		if id == documentID {
			return true
		}
	}
	return false
}
