package retriever

import (
	"context"
	"errors"
	"testing"

	domainerrors "github.com/flowcore/chatflow/internal/domain/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeEmbedder struct {
	vector []float32
	err    error
}

func (f *fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return f.vector, f.err
}

type fakeStore struct {
	hits []SearchHit
	err  error
}

func (f *fakeStore) SearchSimilar(ctx context.Context, vector []float32, k int, filter SearchFilter) ([]SearchHit, error) {
	return f.hits, f.err
}

func TestRetrieve_NoopWhenUnconfigured(t *testing.T) {
	r := New(nil, nil, Config{})
	assert.True(t, r.IsNoop())
	docs, err := r.Retrieve(context.Background(), "hello")
	require.NoError(t, err)
	assert.Empty(t, docs)
}

func TestRetrieve_FiltersByScoreThreshold(t *testing.T) {
	r := New(
		&fakeEmbedder{vector: []float32{0.1, 0.2}},
		&fakeStore{hits: []SearchHit{
			{Content: "a", Score: 0.9},
			{Content: "b", Score: 0.3},
		}},
		Config{K: 5, ScoreThreshold: 0.5},
	)
	docs, err := r.Retrieve(context.Background(), "q")
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "a", docs[0].PageContent)
}

func TestRetrieve_EmbedFailureWrapsRetrieverError(t *testing.T) {
	r := New(&fakeEmbedder{err: errors.New("boom")}, &fakeStore{}, Config{})
	_, err := r.Retrieve(context.Background(), "q")
	require.Error(t, err)
	var rerr *domainerrors.RetrieverError
	require.ErrorAs(t, err, &rerr)
	assert.Equal(t, "embed", rerr.Stage)
}

func TestRetrieve_SearchFailureWrapsRetrieverError(t *testing.T) {
	r := New(&fakeEmbedder{vector: []float32{0.1}}, &fakeStore{err: errors.New("boom")}, Config{})
	_, err := r.Retrieve(context.Background(), "q")
	require.Error(t, err)
	var rerr *domainerrors.RetrieverError
	require.ErrorAs(t, err, &rerr)
	assert.Equal(t, "search", rerr.Stage)
}

func TestJoinPageContent(t *testing.T) {
	docs := []Document{{PageContent: "a"}, {PageContent: "b"}}
	assert.Equal(t, "a\n\nb", JoinPageContent(docs))
}
