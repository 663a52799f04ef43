package vectorstore_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/supportd/internal/vectorstore"
)

// testEmbedder returns normalized deterministic vectors for testing.
type testEmbedder struct {
	vectorSize int
	failNext   bool
}

func (e *testEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	if e.failNext {
		return nil, assert.AnError
	}
	embeddings := make([][]float32, len(texts))
	for i, text := range texts {
		embeddings[i] = e.makeEmbedding(text)
	}
	return embeddings, nil
}

func (e *testEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	if e.failNext {
		return nil, assert.AnError
	}
	return e.makeEmbedding(text), nil
}

// makeEmbedding creates a normalized embedding based on text hash.
func (e *testEmbedder) makeEmbedding(text string) []float32 {
	embedding := make([]float32, e.vectorSize)
	hash := 0
	for _, c := range text {
		hash = (hash*31 + int(c)) % 1000
	}
	var sumSq float32
	for i := range embedding {
		embedding[i] = float32((hash+i)%100) / 100.0
		sumSq += embedding[i] * embedding[i]
	}
	// chromem requires normalized vectors
	if sumSq > 0 {
		norm := float32(1.0) / sqrt32(sumSq)
		for i := range embedding {
			embedding[i] *= norm
		}
	}
	return embedding
}

func sqrt32(x float32) float32 {
	if x <= 0 {
		return 0
	}
	z := x / 2
	for i := 0; i < 10; i++ {
		z = (z + x/z) / 2
	}
	return z
}

func newTestIndex(t *testing.T) (*vectorstore.ChromemIndex, *testEmbedder) {
	t.Helper()

	embedder := &testEmbedder{vectorSize: 64}
	index, err := vectorstore.NewChromemIndex(vectorstore.ChromemConfig{
		Path:       t.TempDir(),
		VectorSize: 64,
	}, embedder, zap.NewNop())
	require.NoError(t, err)

	return index, embedder
}

func TestNewChromemIndex_RequiresEmbedder(t *testing.T) {
	_, err := vectorstore.NewChromemIndex(vectorstore.ChromemConfig{
		Path: t.TempDir(),
	}, nil, zap.NewNop())
	assert.ErrorIs(t, err, vectorstore.ErrInvalidConfig)
}

func TestChromemIndex_AddAndQuery(t *testing.T) {
	index, _ := newTestIndex(t)
	defer index.Close()

	ctx := context.Background()

	docs := []vectorstore.Document{
		{ID: "doc1", Content: "How to request a refund for a damaged order", Metadata: map[string]string{"source": "refunds.txt"}},
		{ID: "doc2", Content: "Shipping times for international deliveries", Metadata: map[string]string{"source": "shipping.txt"}},
		{ID: "doc3", Content: "Changing the email address on your account", Metadata: map[string]string{"source": "account.txt"}},
	}

	ids, err := index.AddDocuments(ctx, "support_docs", docs)
	require.NoError(t, err)
	assert.Equal(t, []string{"doc1", "doc2", "doc3"}, ids)

	results, err := index.Query(ctx, "support_docs", "How to request a refund for a damaged order", 2)
	require.NoError(t, err)
	require.Len(t, results, 2)

	// The identical text embeds to the identical vector, so doc1 ranks first.
	assert.Equal(t, "doc1", results[0].ID)
	assert.Equal(t, "How to request a refund for a damaged order", results[0].Content)
	assert.Equal(t, "refunds.txt", results[0].Metadata["source"])
	assert.GreaterOrEqual(t, results[0].Score, results[1].Score)
}

func TestChromemIndex_AddDocuments_Empty(t *testing.T) {
	index, _ := newTestIndex(t)
	defer index.Close()

	_, err := index.AddDocuments(context.Background(), "support_docs", nil)
	assert.ErrorIs(t, err, vectorstore.ErrEmptyDocuments)
}

func TestChromemIndex_AddDocuments_EmbeddingFailure(t *testing.T) {
	index, embedder := newTestIndex(t)
	defer index.Close()

	embedder.failNext = true
	_, err := index.AddDocuments(context.Background(), "support_docs", []vectorstore.Document{
		{ID: "doc1", Content: "some text"},
	})
	assert.ErrorIs(t, err, vectorstore.ErrEmbeddingFailed)
}

func TestChromemIndex_Query_MissingCollection(t *testing.T) {
	index, _ := newTestIndex(t)
	defer index.Close()

	_, err := index.Query(context.Background(), "no_such_collection", "anything", 3)
	assert.ErrorIs(t, err, vectorstore.ErrCollectionNotFound)
}

func TestChromemIndex_Query_EmptyCollection(t *testing.T) {
	index, _ := newTestIndex(t)
	defer index.Close()

	ctx := context.Background()
	require.NoError(t, index.CreateCollection(ctx, "empty_one"))

	results, err := index.Query(ctx, "empty_one", "anything", 3)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestChromemIndex_Query_CapsKAtCount(t *testing.T) {
	index, _ := newTestIndex(t)
	defer index.Close()

	ctx := context.Background()
	_, err := index.AddDocuments(ctx, "small", []vectorstore.Document{
		{ID: "only", Content: "a single passage"},
	})
	require.NoError(t, err)

	results, err := index.Query(ctx, "small", "a single passage", 10)
	require.NoError(t, err)
	assert.Len(t, results, 1)
}

func TestChromemIndex_Query_ValidatesInputs(t *testing.T) {
	index, _ := newTestIndex(t)
	defer index.Close()

	ctx := context.Background()

	_, err := index.Query(ctx, "support_docs", "", 3)
	assert.Error(t, err)

	_, err = index.Query(ctx, "support_docs", "ok", 0)
	assert.Error(t, err)

	_, err = index.Query(ctx, "Bad Name", "ok", 3)
	assert.ErrorIs(t, err, vectorstore.ErrInvalidCollectionName)
}

func TestChromemIndex_CollectionLifecycle(t *testing.T) {
	index, _ := newTestIndex(t)
	defer index.Close()

	ctx := context.Background()

	exists, err := index.CollectionExists(ctx, "lifecycle")
	require.NoError(t, err)
	assert.False(t, exists)

	require.NoError(t, index.CreateCollection(ctx, "lifecycle"))

	exists, err = index.CollectionExists(ctx, "lifecycle")
	require.NoError(t, err)
	assert.True(t, exists)

	count, err := index.Count(ctx, "lifecycle")
	require.NoError(t, err)
	assert.Equal(t, 0, count)

	_, err = index.AddDocuments(ctx, "lifecycle", []vectorstore.Document{
		{ID: "a", Content: "alpha"},
		{ID: "b", Content: "beta"},
	})
	require.NoError(t, err)

	count, err = index.Count(ctx, "lifecycle")
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	names, err := index.ListCollections(ctx)
	require.NoError(t, err)
	assert.Contains(t, names, "lifecycle")

	require.NoError(t, index.DeleteCollection(ctx, "lifecycle"))

	exists, err = index.CollectionExists(ctx, "lifecycle")
	require.NoError(t, err)
	assert.False(t, exists)

	_, err = index.Count(ctx, "lifecycle")
	assert.ErrorIs(t, err, vectorstore.ErrCollectionNotFound)
}

func TestChromemIndex_DeleteAbsentCollection(t *testing.T) {
	index, _ := newTestIndex(t)
	defer index.Close()

	assert.NoError(t, index.DeleteCollection(context.Background(), "never_created"))
}

func TestChromemIndex_CollectionsAreIsolated(t *testing.T) {
	index, _ := newTestIndex(t)
	defer index.Close()

	ctx := context.Background()

	_, err := index.AddDocuments(ctx, "collection_a", []vectorstore.Document{
		{ID: "a1", Content: "passage only in a"},
	})
	require.NoError(t, err)

	_, err = index.AddDocuments(ctx, "collection_b", []vectorstore.Document{
		{ID: "b1", Content: "passage only in b"},
	})
	require.NoError(t, err)

	results, err := index.Query(ctx, "collection_a", "passage only in a", 5)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "a1", results[0].ID)

	// Deleting one collection leaves the other untouched.
	require.NoError(t, index.DeleteCollection(ctx, "collection_a"))

	count, err := index.Count(ctx, "collection_b")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestChromemIndex_PersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	embedder := &testEmbedder{vectorSize: 64}

	index, err := vectorstore.NewChromemIndex(vectorstore.ChromemConfig{
		Path:       dir,
		VectorSize: 64,
	}, embedder, zap.NewNop())
	require.NoError(t, err)

	ctx := context.Background()
	_, err = index.AddDocuments(ctx, "persisted", []vectorstore.Document{
		{ID: "p1", Content: "persisted passage"},
	})
	require.NoError(t, err)
	require.NoError(t, index.Close())

	reopened, err := vectorstore.NewChromemIndex(vectorstore.ChromemConfig{
		Path:       dir,
		VectorSize: 64,
	}, embedder, zap.NewNop())
	require.NoError(t, err)
	defer reopened.Close()

	count, err := reopened.Count(ctx, "persisted")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}
