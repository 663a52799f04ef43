// Package session tracks chat sessions: their history, their active
// document collection and their answer pipeline.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/tmc/langchaingo/llms"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/supportd/internal/agent"
	"github.com/fyrsmithlabs/supportd/internal/chunker"
	"github.com/fyrsmithlabs/supportd/internal/collections"
)

// ErrSessionNotFound is returned for unknown session IDs.
var ErrSessionNotFound = errors.New("session not found")

// ErrInvalidConfig indicates invalid configuration.
var ErrInvalidConfig = errors.New("invalid configuration")

// Session is one chat session. A session answers from the shared default
// collection until it indexes its own documents, which bind it to a private
// per-session collection.
type Session struct {
	// ID is the session UUID.
	ID string

	// CreatedAt is when the session was opened.
	CreatedAt time.Time

	history          []agent.Message
	activeCollection string
	pipeline         *agent.Pipeline
}

// Collection returns the collection the session currently answers from.
func (s *Session) Collection() string {
	return s.activeCollection
}

// Manager creates and tracks sessions.
type Manager struct {
	store    *collections.Store
	model    llms.Model
	pipeline agent.Config
	logger   *zap.Logger

	mu       sync.Mutex
	sessions map[string]*Session
}

// NewManager creates a session Manager.
func NewManager(pipelineConfig agent.Config, store *collections.Store, model llms.Model, logger *zap.Logger) (*Manager, error) {
	if store == nil {
		return nil, fmt.Errorf("%w: collection store is required", ErrInvalidConfig)
	}
	if model == nil {
		return nil, fmt.Errorf("%w: model is required", ErrInvalidConfig)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	pipelineConfig.ApplyDefaults()
	if err := pipelineConfig.Validate(); err != nil {
		return nil, fmt.Errorf("validating pipeline config: %w", err)
	}

	return &Manager{
		store:    store,
		model:    model,
		pipeline: pipelineConfig,
		logger:   logger,
		sessions: make(map[string]*Session),
	}, nil
}

// Create opens a new session bound to the default collection.
func (m *Manager) Create() *Session {
	session := &Session{
		ID:               uuid.New().String(),
		CreatedAt:        time.Now(),
		activeCollection: m.store.DefaultCollection(),
	}

	m.mu.Lock()
	m.sessions[session.ID] = session
	m.mu.Unlock()

	m.logger.Info("session created",
		zap.String("session_id", session.ID),
	)

	return session
}

// Get returns the session with the given ID.
func (m *Manager) Get(id string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	session, ok := m.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return session, nil
}

// collectionName returns the per-session collection name.
func (m *Manager) collectionName(sessionID string) string {
	return m.store.UserPrefix() + sessionID
}

// IndexDocuments chunks and indexes the documents into the session's private
// collection and switches the session to answer from it. Re-indexing
// replaces the previous private collection. Returns the number of chunks
// indexed.
func (m *Manager) IndexDocuments(ctx context.Context, sessionID string, docs []chunker.Document) (int, error) {
	session, err := m.Get(sessionID)
	if err != nil {
		return 0, err
	}

	name := m.collectionName(sessionID)
	chunks, err := m.store.CreateAndPopulate(ctx, name, docs)
	if err != nil {
		return 0, err
	}

	m.mu.Lock()
	session.activeCollection = name
	session.pipeline = nil
	m.mu.Unlock()

	m.logger.Info("session documents indexed",
		zap.String("session_id", sessionID),
		zap.String("collection", name),
		zap.Int("chunks", chunks),
	)

	return chunks, nil
}

// UseDefault switches the session back to the default collection, deletes
// its private collection and clears its chat history. Calling it on a
// session already on the default collection only clears history.
func (m *Manager) UseDefault(ctx context.Context, sessionID string) error {
	session, err := m.Get(sessionID)
	if err != nil {
		return err
	}

	if err := m.store.Delete(ctx, m.collectionName(sessionID)); err != nil {
		return fmt.Errorf("deleting session collection: %w", err)
	}

	m.mu.Lock()
	session.activeCollection = m.store.DefaultCollection()
	session.pipeline = nil
	session.history = nil
	m.mu.Unlock()

	m.logger.Info("session reset to default collection",
		zap.String("session_id", sessionID),
	)

	return nil
}

// Pipeline returns the session's answer pipeline, building it lazily. The
// pipeline is rebuilt after the active collection changes, so a session that
// just indexed documents answers from them immediately.
func (m *Manager) Pipeline(ctx context.Context, sessionID string) (*agent.Pipeline, error) {
	session, err := m.Get(sessionID)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	cached := session.pipeline
	collection := session.activeCollection
	m.mu.Unlock()

	if cached != nil {
		return cached, nil
	}

	retriever, err := m.store.Retriever(ctx, collection)
	if err != nil {
		return nil, fmt.Errorf("building retriever for %s: %w", collection, err)
	}

	pipeline, err := agent.NewPipeline(m.pipeline, m.model, retriever, m.logger)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	// Another goroutine may have switched collections meanwhile; only cache
	// a pipeline that still matches.
	if session.activeCollection == collection {
		session.pipeline = pipeline
	}
	m.mu.Unlock()

	return pipeline, nil
}

// History returns a copy of the session's chat history.
func (m *Manager) History(sessionID string) ([]agent.Message, error) {
	session, err := m.Get(sessionID)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	history := make([]agent.Message, len(session.history))
	copy(history, session.history)
	return history, nil
}

// AppendExchange records a completed question and answer pair in the
// session history.
func (m *Manager) AppendExchange(sessionID, question, answer string) error {
	session, err := m.Get(sessionID)
	if err != nil {
		return err
	}

	m.mu.Lock()
	session.history = append(session.history,
		agent.Message{Role: agent.RoleUser, Content: question},
		agent.Message{Role: agent.RoleAssistant, Content: answer},
	)
	m.mu.Unlock()

	return nil
}

// SweepStale deletes leftover per-session collections from previous runs.
// Meant to run once at startup, before any sessions exist.
func (m *Manager) SweepStale(ctx context.Context) (int, error) {
	return m.store.SweepStale(ctx)
}
