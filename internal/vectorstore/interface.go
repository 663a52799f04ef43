// Package vectorstore defines the vector index interface and its backends.
package vectorstore

import (
	"context"
	"errors"
	"fmt"
	"regexp"
)

// Sentinel errors for vector index operations.
var (
	// ErrCollectionNotFound is returned when a collection does not exist.
	ErrCollectionNotFound = errors.New("collection not found")

	// ErrInvalidConfig indicates invalid configuration.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrEmptyDocuments indicates empty or nil documents.
	ErrEmptyDocuments = errors.New("empty or nil documents")

	// ErrEmbeddingFailed indicates embedding generation failure.
	ErrEmbeddingFailed = errors.New("failed to generate embeddings")

	// ErrConnectionFailed indicates the backend could not be reached.
	ErrConnectionFailed = errors.New("failed to connect to vector index")

	// ErrInvalidCollectionName indicates collection name validation failure.
	ErrInvalidCollectionName = errors.New("invalid collection name")
)

// collectionNamePattern validates collection names.
// Lowercase letters, digits, underscores and hyphens (session UUIDs embed
// hyphens), 1-64 characters.
var collectionNamePattern = regexp.MustCompile(`^[a-z0-9_-]{1,64}$`)

// ValidateCollectionName validates a collection name.
// Rejects uppercase, spaces, path separators and over-long names.
func ValidateCollectionName(name string) error {
	if name == "" {
		return fmt.Errorf("%w: collection name cannot be empty", ErrInvalidCollectionName)
	}
	if !collectionNamePattern.MatchString(name) {
		return fmt.Errorf("%w: collection name must match ^[a-z0-9_-]{1,64}$, got %q",
			ErrInvalidCollectionName, name)
	}
	return nil
}

// Document is a text passage to be embedded and stored.
type Document struct {
	// ID is the unique identifier within the collection.
	ID string

	// Content is the passage text.
	Content string

	// Metadata carries additional key-value pairs (e.g. source id).
	Metadata map[string]string
}

// SearchResult is a single ranked hit from a similarity query.
type SearchResult struct {
	ID       string
	Content  string
	Score    float32
	Metadata map[string]string
}

// Embedder generates vector embeddings from text.
//
// The same embedder instance must serve a collection at index time and
// query time; the two embedding spaces have to match.
type Embedder interface {
	// EmbedDocuments generates embeddings for multiple texts, one per input.
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)

	// EmbedQuery generates an embedding for a single query.
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// Index is the interface to a persistent vector index addressable by
// collection name.
//
// Implementations must support safe concurrent reads across collections and
// must serialize create/delete of a given name at least enough that a
// delete-then-recreate sequence cannot interleave with another on the same
// name.
//
// Implementations:
//   - ChromemIndex: embedded chromem-go (default)
//   - QdrantIndex: external Qdrant gRPC server
type Index interface {
	// AddDocuments embeds and upserts documents into the named collection,
	// creating the collection if needed. Returns the stored document IDs.
	AddDocuments(ctx context.Context, collection string, docs []Document) ([]string, error)

	// Query performs a k-nearest-neighbor search in the named collection and
	// returns up to k results ranked nearest first. An existing collection
	// with zero vectors yields an empty result, not an error.
	Query(ctx context.Context, collection string, query string, k int) ([]SearchResult, error)

	// CreateCollection creates an empty collection.
	CreateCollection(ctx context.Context, name string) error

	// DeleteCollection removes a collection and all its documents.
	// Deleting an absent collection is a no-op.
	DeleteCollection(ctx context.Context, name string) error

	// CollectionExists reports whether the named collection exists.
	CollectionExists(ctx context.Context, name string) (bool, error)

	// ListCollections returns all known collection names.
	ListCollections(ctx context.Context) ([]string, error)

	// Count returns the number of documents in the named collection.
	// Returns ErrCollectionNotFound when the collection does not exist.
	Count(ctx context.Context, name string) (int, error)

	// Close releases backend resources.
	Close() error
}
