// Package collections manages named document collections: populating them
// from chunked documents, sweeping stale ones and serving retrieval.
package collections

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/supportd/internal/chunker"
	"github.com/fyrsmithlabs/supportd/internal/vectorstore"
)

var tracer = otel.Tracer("supportd.collections")

// ErrCollectionNotFound is returned when a named collection does not exist.
// Aliased from vectorstore so callers need only this package.
var ErrCollectionNotFound = vectorstore.ErrCollectionNotFound

// ErrInvalidConfig indicates invalid configuration.
var ErrInvalidConfig = errors.New("invalid configuration")

// Config holds collection naming and retrieval settings.
type Config struct {
	// DefaultCollection is the shared collection indexed at startup.
	// Default: "support_docs"
	DefaultCollection string `koanf:"default"`

	// UserPrefix prefixes per-session collections, e.g. "user_<session-id>".
	// Also the sweep prefix for stale collection cleanup.
	// Default: "user_"
	UserPrefix string `koanf:"user_prefix"`

	// TopK is the number of passages retrieved per query.
	// Default: 3
	TopK int `koanf:"top_k"`
}

// ApplyDefaults sets default values for unset fields.
func (c *Config) ApplyDefaults() {
	if c.DefaultCollection == "" {
		c.DefaultCollection = "support_docs"
	}
	if c.UserPrefix == "" {
		c.UserPrefix = "user_"
	}
	if c.TopK == 0 {
		c.TopK = 3
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := vectorstore.ValidateCollectionName(c.DefaultCollection); err != nil {
		return fmt.Errorf("%w: default collection: %v", ErrInvalidConfig, err)
	}
	if c.UserPrefix == "" {
		return fmt.Errorf("%w: user prefix required", ErrInvalidConfig)
	}
	if c.TopK <= 0 {
		return fmt.Errorf("%w: top_k must be positive", ErrInvalidConfig)
	}
	return nil
}

// Store manages named collections on top of a vector index.
//
// Populating a collection always deletes any previous collection of the same
// name first, so re-indexing a session's documents replaces the old contents
// instead of accumulating duplicates.
type Store struct {
	index    vectorstore.Index
	splitter *chunker.Splitter
	config   Config
	logger   *zap.Logger
}

// NewStore creates a Store.
func NewStore(config Config, index vectorstore.Index, splitter *chunker.Splitter, logger *zap.Logger) (*Store, error) {
	if index == nil {
		return nil, fmt.Errorf("%w: index is required", ErrInvalidConfig)
	}
	if splitter == nil {
		return nil, fmt.Errorf("%w: splitter is required", ErrInvalidConfig)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	config.ApplyDefaults()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &Store{
		index:    index,
		splitter: splitter,
		config:   config,
		logger:   logger,
	}, nil
}

// DefaultCollection returns the configured shared collection name.
func (s *Store) DefaultCollection() string {
	return s.config.DefaultCollection
}

// UserPrefix returns the configured per-session collection prefix.
func (s *Store) UserPrefix() string {
	return s.config.UserPrefix
}

// Exists reports whether the named collection exists.
func (s *Store) Exists(ctx context.Context, name string) (bool, error) {
	return s.index.CollectionExists(ctx, name)
}

// ListNames returns all collection names known to the index.
func (s *Store) ListNames(ctx context.Context) ([]string, error) {
	return s.index.ListCollections(ctx)
}

// Delete removes the named collection. Absent collections are a no-op.
func (s *Store) Delete(ctx context.Context, name string) error {
	return s.index.DeleteCollection(ctx, name)
}

// CreateAndPopulate chunks the documents and indexes them into a fresh
// collection of the given name. Any existing collection of that name is
// deleted first, so the call is idempotent: indexing the same documents
// twice leaves exactly one copy.
//
// Documents that produce zero chunks still yield an empty, queryable
// collection. On embedding or upsert failure the half-built collection is
// deleted again so nothing partial remains queryable, and the error is
// returned.
func (s *Store) CreateAndPopulate(ctx context.Context, name string, docs []chunker.Document) (int, error) {
	ctx, span := tracer.Start(ctx, "Store.CreateAndPopulate")
	defer span.End()

	span.SetAttributes(
		attribute.String("collection", name),
		attribute.Int("document_count", len(docs)),
	)

	if err := vectorstore.ValidateCollectionName(name); err != nil {
		return 0, err
	}

	chunks, err := s.splitter.Split(docs)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return 0, fmt.Errorf("splitting documents: %w", err)
	}

	if err := s.index.DeleteCollection(ctx, name); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return 0, fmt.Errorf("clearing collection %s: %w", name, err)
	}

	if err := s.index.CreateCollection(ctx, name); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return 0, fmt.Errorf("creating collection %s: %w", name, err)
	}

	if len(chunks) == 0 {
		span.SetStatus(codes.Ok, "empty collection")
		s.logger.Info("indexed empty collection",
			zap.String("collection", name),
		)
		return 0, nil
	}

	vsDocs := make([]vectorstore.Document, len(chunks))
	for i, chunk := range chunks {
		vsDocs[i] = vectorstore.Document{
			ID:      fmt.Sprintf("%s_%d", name, i),
			Content: chunk.Text,
			Metadata: map[string]string{
				"source": chunk.SourceID,
			},
		}
	}

	if _, err := s.index.AddDocuments(ctx, name, vsDocs); err != nil {
		// Roll back so a partially populated collection is never queryable.
		if delErr := s.index.DeleteCollection(ctx, name); delErr != nil {
			s.logger.Error("failed to clean up partial collection",
				zap.String("collection", name),
				zap.Error(delErr),
			)
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return 0, fmt.Errorf("indexing collection %s: %w", name, err)
	}

	span.SetAttributes(attribute.Int("chunks_indexed", len(chunks)))
	span.SetStatus(codes.Ok, "success")

	s.logger.Info("indexed collection",
		zap.String("collection", name),
		zap.Int("documents", len(docs)),
		zap.Int("chunks", len(chunks)),
	)

	return len(chunks), nil
}

// BootstrapDefault indexes the documents in dir into the default collection.
// An already existing default collection is left untouched, so restarts do
// not re-embed the bundled documents. Missing or empty directories yield an
// empty default collection.
func (s *Store) BootstrapDefault(ctx context.Context, dir string) (int, error) {
	exists, err := s.index.CollectionExists(ctx, s.config.DefaultCollection)
	if err != nil {
		return 0, fmt.Errorf("checking default collection: %w", err)
	}
	if exists {
		s.logger.Info("default collection already indexed",
			zap.String("collection", s.config.DefaultCollection),
		)
		return 0, nil
	}

	docs := chunker.LoadDir(dir, s.logger)
	return s.CreateAndPopulate(ctx, s.config.DefaultCollection, docs)
}

// SweepStale deletes every collection whose name starts with the user
// prefix. Individual deletion failures are logged and skipped; the sweep
// continues with the remaining collections. Returns the number deleted.
func (s *Store) SweepStale(ctx context.Context) (int, error) {
	ctx, span := tracer.Start(ctx, "Store.SweepStale")
	defer span.End()

	names, err := s.index.ListCollections(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return 0, fmt.Errorf("listing collections: %w", err)
	}

	deleted := 0
	for _, name := range names {
		if !strings.HasPrefix(name, s.config.UserPrefix) {
			continue
		}
		if err := s.index.DeleteCollection(ctx, name); err != nil {
			s.logger.Warn("failed to sweep stale collection",
				zap.String("collection", name),
				zap.Error(err),
			)
			continue
		}
		deleted++
		s.logger.Info("swept stale collection",
			zap.String("collection", name),
		)
	}

	span.SetAttributes(attribute.Int("deleted", deleted))
	span.SetStatus(codes.Ok, "success")

	return deleted, nil
}

// Retriever returns a Retriever bound to the named collection.
// Returns ErrCollectionNotFound when the collection does not exist.
func (s *Store) Retriever(ctx context.Context, name string) (*Retriever, error) {
	exists, err := s.index.CollectionExists(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("checking collection %s: %w", name, err)
	}
	if !exists {
		return nil, ErrCollectionNotFound
	}

	return &Retriever{
		index:      s.index,
		collection: name,
		topK:       s.config.TopK,
		logger:     s.logger,
	}, nil
}
