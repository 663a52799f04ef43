// Package server provides the HTTP API for supportd.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/supportd/internal/agent"
	"github.com/fyrsmithlabs/supportd/internal/chunker"
	"github.com/fyrsmithlabs/supportd/internal/collections"
	"github.com/fyrsmithlabs/supportd/internal/session"
)

// Config holds HTTP server configuration.
type Config struct {
	Host string
	Port int
}

// Server provides HTTP endpoints for supportd.
type Server struct {
	echo     *echo.Echo
	sessions *session.Manager
	metrics  *Metrics
	logger   *zap.Logger
	config   *Config
}

// NewServer creates a new HTTP server.
func NewServer(sessions *session.Manager, logger *zap.Logger, cfg *Config) (*Server, error) {
	if sessions == nil {
		return nil, fmt.Errorf("session manager cannot be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required for request tracking and debugging")
	}
	if cfg == nil {
		cfg = &Config{
			Host: "localhost",
			Port: 8080,
		}
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	metrics := NewMetrics(logger)

	// Middleware
	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(metrics.Middleware())
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			duration := time.Since(start)

			logger.Info("http request",
				zap.String("method", c.Request().Method),
				zap.String("uri", c.Request().RequestURI),
				zap.Int("status", c.Response().Status),
				zap.Duration("duration", duration),
				zap.String("request_id", c.Response().Header().Get(echo.HeaderXRequestID)),
			)

			return err
		}
	})

	s := &Server{
		echo:     e,
		sessions: sessions,
		metrics:  metrics,
		logger:   logger,
		config:   cfg,
	}

	s.registerRoutes()

	return s, nil
}

// registerRoutes sets up the HTTP endpoints.
func (s *Server) registerRoutes() {
	s.echo.GET("/health", s.handleHealth)
	s.echo.GET("/metrics", echo.WrapHandler(s.metrics.Handler()))

	v1 := s.echo.Group("/api/v1")
	v1.POST("/sessions", s.handleCreateSession)
	v1.POST("/sessions/:id/documents", s.handleIndexDocuments)
	v1.POST("/sessions/:id/chat", s.handleChat)
	v1.POST("/sessions/:id/reset", s.handleReset)
}

// HealthResponse is the response body for GET /health.
type HealthResponse struct {
	Status string `json:"status"`
}

// SessionResponse is the response body for POST /api/v1/sessions.
type SessionResponse struct {
	SessionID  string `json:"session_id"`
	Collection string `json:"collection"`
}

// DocumentPayload is one uploaded document.
type DocumentPayload struct {
	SourceID string `json:"source_id"`
	Text     string `json:"text"`
}

// IndexRequest is the request body for POST /api/v1/sessions/:id/documents.
type IndexRequest struct {
	Documents []DocumentPayload `json:"documents"`
}

// IndexResponse is the response body for POST /api/v1/sessions/:id/documents.
type IndexResponse struct {
	Collection    string `json:"collection"`
	ChunksIndexed int    `json:"chunks_indexed"`
}

// ChatRequest is the request body for POST /api/v1/sessions/:id/chat.
// Stream defaults to true; set it to false for a single JSON response.
type ChatRequest struct {
	Question string `json:"question"`
	Stream   *bool  `json:"stream,omitempty"`
}

// PassagePayload is one retrieved passage in a blocking chat response.
type PassagePayload struct {
	Text     string  `json:"text"`
	SourceID string  `json:"source_id"`
	Score    float32 `json:"score"`
}

// ChatResponse is the blocking response body for POST /api/v1/sessions/:id/chat.
type ChatResponse struct {
	Answer   string           `json:"answer"`
	Passages []PassagePayload `json:"passages"`
}

// handleHealth returns a simple health check response.
func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{Status: "ok"})
}

// handleCreateSession opens a new chat session.
func (s *Server) handleCreateSession(c echo.Context) error {
	sess := s.sessions.Create()
	return c.JSON(http.StatusCreated, SessionResponse{
		SessionID:  sess.ID,
		Collection: sess.Collection(),
	})
}

// handleIndexDocuments indexes uploaded documents into the session's private
// collection.
func (s *Server) handleIndexDocuments(c echo.Context) error {
	var req IndexRequest
	if err := c.Bind(&req); err != nil {
		s.logger.Warn("invalid index request", zap.Error(err))
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if len(req.Documents) == 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "documents field is required")
	}

	docs := make([]chunker.Document, len(req.Documents))
	for i, doc := range req.Documents {
		docs[i] = chunker.Document{SourceID: doc.SourceID, Text: doc.Text}
	}

	sessionID := c.Param("id")
	chunks, err := s.sessions.IndexDocuments(c.Request().Context(), sessionID, docs)
	if err != nil {
		return s.mapError(err)
	}

	sess, err := s.sessions.Get(sessionID)
	if err != nil {
		return s.mapError(err)
	}

	return c.JSON(http.StatusOK, IndexResponse{
		Collection:    sess.Collection(),
		ChunksIndexed: chunks,
	})
}

// handleChat answers a question. Streams the answer over SSE unless the
// request asks for a blocking response.
func (s *Server) handleChat(c echo.Context) error {
	var req ChatRequest
	if err := c.Bind(&req); err != nil {
		s.logger.Warn("invalid chat request", zap.Error(err))
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if strings.TrimSpace(req.Question) == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "question field is required")
	}

	sessionID := c.Param("id")
	ctx := c.Request().Context()

	pipeline, err := s.sessions.Pipeline(ctx, sessionID)
	if err != nil {
		return s.mapError(err)
	}
	history, err := s.sessions.History(sessionID)
	if err != nil {
		return s.mapError(err)
	}

	if req.Stream != nil && !*req.Stream {
		return s.chatBlocking(c, pipeline, sessionID, req.Question, history)
	}
	return s.chatStream(c, pipeline, sessionID, req.Question, history)
}

// chatBlocking runs the pipeline to completion and returns one JSON body.
func (s *Server) chatBlocking(c echo.Context, pipeline *agent.Pipeline, sessionID, question string, history []agent.Message) error {
	result, err := pipeline.Run(c.Request().Context(), question, history)
	if err != nil {
		return s.mapError(err)
	}

	if err := s.sessions.AppendExchange(sessionID, question, result.Answer); err != nil {
		return s.mapError(err)
	}

	passages := make([]PassagePayload, len(result.Passages))
	for i, passage := range result.Passages {
		passages[i] = PassagePayload{
			Text:     passage.Text,
			SourceID: passage.SourceID,
			Score:    passage.Score,
		}
	}

	return c.JSON(http.StatusOK, ChatResponse{
		Answer:   result.Answer,
		Passages: passages,
	})
}

// chatStream streams the pipeline over SSE: stage events, answer deltas as
// data lines, then a done or error event. An error voids the partial answer
// already sent.
func (s *Server) chatStream(c echo.Context, pipeline *agent.Pipeline, sessionID, question string, history []agent.Message) error {
	stream, err := pipeline.Stream(c.Request().Context(), question, history)
	if err != nil {
		return s.mapError(err)
	}
	defer stream.Close()

	res := c.Response()
	res.Header().Set(echo.HeaderContentType, "text/event-stream")
	res.Header().Set("Cache-Control", "no-cache")
	res.Header().Set("Connection", "keep-alive")
	res.WriteHeader(http.StatusOK)

	var answer strings.Builder
	for {
		ev, ok := stream.Next()
		if !ok {
			break
		}
		if ev.Delta != "" {
			writeSSEData(res, ev.Delta)
			answer.WriteString(ev.Delta)
		} else {
			writeSSEEvent(res, "stage", string(ev.Stage))
		}
		res.Flush()
	}

	if err := stream.Err(); err != nil {
		s.logger.Error("chat stream failed",
			zap.String("session_id", sessionID),
			zap.Error(err),
		)
		writeSSEEvent(res, "error", err.Error())
		res.Flush()
		return nil
	}

	if err := s.sessions.AppendExchange(sessionID, question, answer.String()); err != nil {
		s.logger.Error("failed to record exchange",
			zap.String("session_id", sessionID),
			zap.Error(err),
		)
	}

	writeSSEEvent(res, "done", "")
	res.Flush()
	return nil
}

// writeSSEData writes a delta as an SSE data frame, one data line per
// newline in the payload so multi-line deltas survive the framing.
func writeSSEData(res *echo.Response, payload string) {
	for _, line := range strings.Split(payload, "\n") {
		fmt.Fprintf(res, "data: %s\n", line)
	}
	fmt.Fprint(res, "\n")
}

// writeSSEEvent writes a named SSE event.
func writeSSEEvent(res *echo.Response, name, payload string) {
	fmt.Fprintf(res, "event: %s\n", name)
	writeSSEData(res, payload)
}

// handleReset switches the session back to the default collection and
// clears its history.
func (s *Server) handleReset(c echo.Context) error {
	sessionID := c.Param("id")
	if err := s.sessions.UseDefault(c.Request().Context(), sessionID); err != nil {
		return s.mapError(err)
	}

	sess, err := s.sessions.Get(sessionID)
	if err != nil {
		return s.mapError(err)
	}

	return c.JSON(http.StatusOK, SessionResponse{
		SessionID:  sess.ID,
		Collection: sess.Collection(),
	})
}

// mapError translates domain errors to HTTP status codes.
func (s *Server) mapError(err error) error {
	switch {
	case errors.Is(err, session.ErrSessionNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "session not found")
	case errors.Is(err, collections.ErrCollectionNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "collection not found")
	case errors.Is(err, agent.ErrEmptyQuestion):
		return echo.NewHTTPError(http.StatusBadRequest, "question field is required")
	default:
		s.logger.Error("request failed", zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
	}
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.logger.Info("starting http server", zap.String("addr", addr))
	return s.echo.Start(addr)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down http server")
	return s.echo.Shutdown(ctx)
}

// ServeHTTP makes the server usable directly in tests.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.echo.ServeHTTP(w, r)
}
