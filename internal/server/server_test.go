package server_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/supportd/internal/agent"
	"github.com/fyrsmithlabs/supportd/internal/chunker"
	"github.com/fyrsmithlabs/supportd/internal/collections"
	"github.com/fyrsmithlabs/supportd/internal/server"
	"github.com/fyrsmithlabs/supportd/internal/session"
	"github.com/fyrsmithlabs/supportd/internal/vectorstore"
)

// testEmbedder returns normalized deterministic vectors.
type testEmbedder struct {
	vectorSize int
}

func (e *testEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	embeddings := make([][]float32, len(texts))
	for i, text := range texts {
		embeddings[i] = e.makeEmbedding(text)
	}
	return embeddings, nil
}

func (e *testEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	return e.makeEmbedding(text), nil
}

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
	if sumSq > 0 {
		norm := 1.0 / sqrt32(sumSq)
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

// fakeModel streams scripted deltas.
type fakeModel struct {
	deltas []string
	err    error
}

func (m *fakeModel) GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	var opts llms.CallOptions
	for _, opt := range options {
		opt(&opts)
	}
	if m.err != nil {
		return nil, m.err
	}
	var full strings.Builder
	for _, delta := range m.deltas {
		if opts.StreamingFunc != nil {
			if err := opts.StreamingFunc(ctx, []byte(delta)); err != nil {
				return nil, err
			}
		}
		full.WriteString(delta)
	}
	return &llms.ContentResponse{
		Choices: []*llms.ContentChoice{{Content: full.String()}},
	}, nil
}

func (m *fakeModel) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return "", nil
}

func newTestServer(t *testing.T, model llms.Model) *server.Server {
	t.Helper()

	index, err := vectorstore.NewChromemIndex(vectorstore.ChromemConfig{
		Path:       t.TempDir(),
		VectorSize: 64,
	}, &testEmbedder{vectorSize: 64}, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = index.Close() })

	splitter, err := chunker.NewSplitter(chunker.Config{Size: 200, Overlap: 40})
	require.NoError(t, err)

	store, err := collections.NewStore(collections.Config{TopK: 3}, index, splitter, zap.NewNop())
	require.NoError(t, err)

	_, err = store.CreateAndPopulate(context.Background(), store.DefaultCollection(), []chunker.Document{
		{SourceID: "default.txt", Text: "Support is available on weekdays from nine to five."},
	})
	require.NoError(t, err)

	manager, err := session.NewManager(agent.Config{}, store, model, zap.NewNop())
	require.NoError(t, err)

	srv, err := server.NewServer(manager, zap.NewNop(), nil)
	require.NoError(t, err)

	return srv
}

func doJSON(t *testing.T, srv *server.Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	return rec
}

func createSession(t *testing.T, srv *server.Server) server.SessionResponse {
	t.Helper()
	rec := doJSON(t, srv, http.MethodPost, "/api/v1/sessions", "")
	require.Equal(t, http.StatusCreated, rec.Code)

	var resp server.SessionResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func TestServer_Health(t *testing.T) {
	srv := newTestServer(t, &fakeModel{deltas: []string{"ok"}})

	rec := doJSON(t, srv, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestServer_CreateSession(t *testing.T) {
	srv := newTestServer(t, &fakeModel{deltas: []string{"ok"}})

	resp := createSession(t, srv)
	assert.NotEmpty(t, resp.SessionID)
	assert.Equal(t, "support_docs", resp.Collection)
}

func TestServer_IndexDocuments(t *testing.T) {
	srv := newTestServer(t, &fakeModel{deltas: []string{"ok"}})
	sess := createSession(t, srv)

	body := `{"documents":[{"source_id":"manual.txt","text":"The device warranty lasts two years from purchase."}]}`
	rec := doJSON(t, srv, http.MethodPost, "/api/v1/sessions/"+sess.SessionID+"/documents", body)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp server.IndexResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "user_"+sess.SessionID, resp.Collection)
	assert.Positive(t, resp.ChunksIndexed)
}

func TestServer_IndexDocuments_Validation(t *testing.T) {
	srv := newTestServer(t, &fakeModel{deltas: []string{"ok"}})
	sess := createSession(t, srv)

	rec := doJSON(t, srv, http.MethodPost, "/api/v1/sessions/"+sess.SessionID+"/documents", `{"documents":[]}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, srv, http.MethodPost, "/api/v1/sessions/unknown/documents",
		`{"documents":[{"source_id":"a.txt","text":"hi"}]}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestServer_Chat_Blocking(t *testing.T) {
	srv := newTestServer(t, &fakeModel{deltas: []string{"Support ", "is open ", "weekdays."}})
	sess := createSession(t, srv)

	body := `{"question":"when is support open?","stream":false}`
	rec := doJSON(t, srv, http.MethodPost, "/api/v1/sessions/"+sess.SessionID+"/chat", body)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp server.ChatResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "Support is open weekdays.", resp.Answer)
	require.NotEmpty(t, resp.Passages)
	assert.Equal(t, "default.txt", resp.Passages[0].SourceID)
}

func TestServer_Chat_SSE(t *testing.T) {
	srv := newTestServer(t, &fakeModel{deltas: []string{"Hello ", "world"}})
	sess := createSession(t, srv)

	body := `{"question":"say hello"}`
	rec := doJSON(t, srv, http.MethodPost, "/api/v1/sessions/"+sess.SessionID+"/chat", body)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))

	out := rec.Body.String()
	assert.Contains(t, out, "event: stage\ndata: retrieving_context\n\n")
	assert.Contains(t, out, "event: stage\ndata: generating_answer\n\n")
	assert.Contains(t, out, "data: Hello \n\n")
	assert.Contains(t, out, "data: world\n\n")
	assert.Contains(t, out, "event: done\n")

	// The stage frames arrive in pipeline order.
	assert.Less(t,
		strings.Index(out, "retrieving_context"),
		strings.Index(out, "generating_answer"))
}

func TestServer_Chat_SSE_Error(t *testing.T) {
	srv := newTestServer(t, &fakeModel{err: assert.AnError})
	sess := createSession(t, srv)

	rec := doJSON(t, srv, http.MethodPost, "/api/v1/sessions/"+sess.SessionID+"/chat", `{"question":"hi"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	out := rec.Body.String()
	assert.Contains(t, out, "event: error\n")
	assert.NotContains(t, out, "event: done\n")
}

func TestServer_Chat_Validation(t *testing.T) {
	srv := newTestServer(t, &fakeModel{deltas: []string{"ok"}})
	sess := createSession(t, srv)

	rec := doJSON(t, srv, http.MethodPost, "/api/v1/sessions/"+sess.SessionID+"/chat", `{"question":"  "}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, srv, http.MethodPost, "/api/v1/sessions/unknown/chat", `{"question":"hi"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestServer_Chat_CarriesHistory(t *testing.T) {
	srv := newTestServer(t, &fakeModel{deltas: []string{"answer"}})
	sess := createSession(t, srv)

	path := "/api/v1/sessions/" + sess.SessionID + "/chat"
	rec := doJSON(t, srv, http.MethodPost, path, `{"question":"first?","stream":false}`)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, srv, http.MethodPost, path, `{"question":"second?","stream":false}`)
	require.Equal(t, http.StatusOK, rec.Code)

	// Both exchanges recorded; a reset clears them.
	rec = doJSON(t, srv, http.MethodPost, "/api/v1/sessions/"+sess.SessionID+"/reset", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp server.SessionResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "support_docs", resp.Collection)
}

func TestServer_Reset(t *testing.T) {
	srv := newTestServer(t, &fakeModel{deltas: []string{"ok"}})
	sess := createSession(t, srv)

	body := `{"documents":[{"source_id":"m.txt","text":"private document text"}]}`
	rec := doJSON(t, srv, http.MethodPost, "/api/v1/sessions/"+sess.SessionID+"/documents", body)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, srv, http.MethodPost, "/api/v1/sessions/"+sess.SessionID+"/reset", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp server.SessionResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "support_docs", resp.Collection)

	rec = doJSON(t, srv, http.MethodPost, "/api/v1/sessions/unknown/reset", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestServer_Metrics(t *testing.T) {
	srv := newTestServer(t, &fakeModel{deltas: []string{"ok"}})

	// Generate some traffic first.
	rec := doJSON(t, srv, http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, srv, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(),
		fmt.Sprintf(`supportd_http_requests_total{method="GET",route="/health",status="%d"}`, http.StatusOK))
}
