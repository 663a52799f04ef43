package collections

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/supportd/internal/vectorstore"
)

// Passage is a retrieved chunk of context for answer generation.
type Passage struct {
	// Text is the chunk content.
	Text string

	// SourceID identifies the document the chunk came from.
	SourceID string

	// Score is the similarity to the query, higher is closer.
	Score float32
}

// Retriever performs similarity retrieval against one bound collection.
//
// A Retriever stays bound to the collection name it was created with; after
// the underlying collection is deleted, Retrieve returns
// ErrCollectionNotFound.
type Retriever struct {
	index      vectorstore.Index
	collection string
	topK       int
	logger     *zap.Logger
}

// Collection returns the bound collection name.
func (r *Retriever) Collection() string {
	return r.collection
}

// Retrieve returns up to TopK passages nearest to the query, ranked nearest
// first. An empty collection yields an empty slice, not an error.
func (r *Retriever) Retrieve(ctx context.Context, query string) ([]Passage, error) {
	ctx, span := tracer.Start(ctx, "Retriever.Retrieve")
	defer span.End()

	span.SetAttributes(
		attribute.String("collection", r.collection),
		attribute.Int("top_k", r.topK),
	)

	results, err := r.index.Query(ctx, r.collection, query, r.topK)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("retrieving from %s: %w", r.collection, err)
	}

	passages := make([]Passage, len(results))
	for i, res := range results {
		passages[i] = Passage{
			Text:     res.Content,
			SourceID: res.Metadata["source"],
			Score:    res.Score,
		}
	}

	span.SetAttributes(attribute.Int("passages", len(passages)))
	span.SetStatus(codes.Ok, "success")

	r.logger.Debug("retrieved passages",
		zap.String("collection", r.collection),
		zap.Int("count", len(passages)),
	)

	return passages, nil
}
