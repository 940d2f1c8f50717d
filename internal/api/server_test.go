package api

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/datachat-ai/datachat/internal/agent"
	"github.com/datachat-ai/datachat/internal/llm"
	"github.com/datachat-ai/datachat/internal/observability"
	"github.com/datachat-ai/datachat/internal/relationship"
	"github.com/datachat-ai/datachat/internal/schema"
	"github.com/datachat-ai/datachat/internal/semantic"
	"github.com/datachat-ai/datachat/internal/transcript"
	"github.com/datachat-ai/datachat/internal/warehouse"
)

type memoryIndex struct {
	docs map[string][]semantic.Document
}

func newMemoryIndex() *memoryIndex {
	return &memoryIndex{docs: map[string][]semantic.Document{}}
}

func (m *memoryIndex) Upsert(ctx context.Context, doc semantic.Document, embedding []float32) error {
	m.docs[doc.Table] = append(m.docs[doc.Table], doc)
	return nil
}

func (m *memoryIndex) Search(ctx context.Context, embedding []float32, kind string, topK int) ([]semantic.Match, error) {
	var matches []semantic.Match
	for _, docs := range m.docs {
		for _, doc := range docs {
			if kind == "" || doc.Kind == kind {
				matches = append(matches, semantic.Match{Document: doc, Similarity: 0.9})
			}
		}
	}
	if topK < len(matches) {
		matches = matches[:topK]
	}
	return matches, nil
}

func (m *memoryIndex) DeleteByTable(ctx context.Context, table string) error {
	delete(m.docs, table)
	return nil
}

func (m *memoryIndex) Stats(ctx context.Context) (semantic.IndexStats, error) {
	stats := semantic.IndexStats{ByKind: map[string]int{}}
	for table, docs := range m.docs {
		stats.Tables = append(stats.Tables, table)
		for _, doc := range docs {
			stats.ByKind[doc.Kind]++
			stats.TotalDocuments++
		}
	}
	return stats, nil
}

type cannedLLM struct{}

func (cannedLLM) Chat(ctx context.Context, messages []llm.Message) (string, error) {
	if strings.Contains(messages[0].Content, "supervisor routing") {
		return "describe_data", nil
	}
	return "La base contient une table factures.", nil
}

func (cannedLLM) Embed(ctx context.Context, text string) ([]float32, error) {
	return []float32{0.1, 0.2}, nil
}

func newTestServer(t *testing.T) (*Server, *warehouse.DuckDB) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	wh, err := warehouse.Open("", 100)
	require.NoError(t, err)
	t.Cleanup(func() { wh.Close() })

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	transcripts := transcript.NewStore(client)

	rels, err := relationship.NewStore(t.TempDir() + "/relationships.json")
	require.NoError(t, err)

	index := newMemoryIndex()
	llmClient := cannedLLM{}
	indexer := semantic.NewIndexer(wh, index, llmClient)

	cache := warehouse.NewSchemaCache(time.Minute, wh.Schema)
	resolver := schema.NewResolver(index, llmClient, cache, 5)

	ag := agent.New(agent.Config{
		Router:      agent.NewRouter(llmClient),
		Structurer:  schema.NewStructurer(resolver, rels),
		Planner:     agent.NewPlanner(llmClient, cache.Summary, rels.Describe, nil, 300),
		Validator:   agent.NewValidator(wh, cache, index, llmClient),
		Corrector:   agent.NewCorrector(cache, index, llmClient, 0),
		Executor:    wh,
		Interpreter: agent.NewInterpreter(llmClient, cache.Summary),
		Charts:      agent.NewChartGenerator(llmClient),
		Transcripts: transcripts,
	})

	health := observability.NewHealthChecker()
	health.Register("warehouse", observability.WarehouseHealthCheck(wh.Ping))

	server := NewServer(ServerConfig{
		Agent:       ag,
		Transcripts: transcripts,
		Warehouse:   wh,
		Cache:       cache,
		Indexer:     indexer,
		Index:       index,
		Rels:        rels,
		Health:      health,
		UploadsDir:  t.TempDir(),
	})
	return server, wh
}

func doRequest(t *testing.T, router *gin.Engine, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestHealthEndpoint(t *testing.T) {
	server, _ := newTestServer(t)
	router := server.Routes()

	w := doRequest(t, router, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	var response map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	assert.Equal(t, "healthy", response["status"])
}

func TestTableEndpoints(t *testing.T) {
	server, wh := newTestServer(t)
	router := server.Routes()

	require.NoError(t, wh.Exec(context.Background(), "CREATE TABLE factures (montant_ht VARCHAR, date_facture DATE)"))

	w := doRequest(t, router, http.MethodGet, "/api/v1/tables", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "factures")

	w = doRequest(t, router, http.MethodGet, "/api/v1/tables/factures", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	var info warehouse.TableInfo
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &info))
	assert.Len(t, info.Columns, 2)

	w = doRequest(t, router, http.MethodGet, "/api/v1/tables/inconnue", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = doRequest(t, router, http.MethodDelete, "/api/v1/tables/factures", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	tables, err := wh.ListTables(context.Background())
	require.NoError(t, err)
	assert.Empty(t, tables)
}

func TestLoadCSVEndpoint(t *testing.T) {
	server, wh := newTestServer(t)
	router := server.Routes()

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	part, err := writer.CreateFormFile("file", "factures.csv")
	require.NoError(t, err)
	_, err = part.Write([]byte("numero;montant_ht\nF-001;1200,50\nF-002;80,00\n"))
	require.NoError(t, err)
	require.NoError(t, writer.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/tables/factures/csv", &buf)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var response map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	assert.Equal(t, float64(2), response["rows"])
	assert.Equal(t, float64(3), response["documents"], "table document plus two columns")

	info, err := wh.DescribeTable(context.Background(), "factures")
	require.NoError(t, err)
	assert.Equal(t, int64(2), info.RowCount)
}

func TestRelationshipEndpoints(t *testing.T) {
	server, _ := newTestServer(t)
	router := server.Routes()

	rel := relationship.Relationship{
		FromTable: "factures", FromColumn: "client_id",
		ToTable: "clients", ToColumn: "id",
	}

	w := doRequest(t, router, http.MethodPost, "/api/v1/relationships", rel)
	assert.Equal(t, http.StatusCreated, w.Code)

	w = doRequest(t, router, http.MethodPost, "/api/v1/relationships", rel)
	assert.Equal(t, http.StatusBadRequest, w.Code, "duplicates are rejected")

	w = doRequest(t, router, http.MethodGet, "/api/v1/relationships", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "client_id")

	w = doRequest(t, router, http.MethodDelete, "/api/v1/relationships", rel)
	assert.Equal(t, http.StatusOK, w.Code)

	w = doRequest(t, router, http.MethodDelete, "/api/v1/relationships", rel)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = doRequest(t, router, http.MethodPost, "/api/v1/relationships/reset", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestChatEndpoint(t *testing.T) {
	server, _ := newTestServer(t)
	router := server.Routes()

	w := doRequest(t, router, http.MethodPost, "/api/v1/chat", ChatRequest{
		Message: "décris les données disponibles",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var response ChatResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))

	assert.NotEmpty(t, response.SessionID, "a session is created when none is given")
	assert.Equal(t, "describe_data", response.Intent)
	assert.Equal(t, "La base contient une table factures.", response.Reply)
	require.NotEmpty(t, response.Events)
	assert.Equal(t, "supervisor", response.Events[0].Node)
}

func TestChatEndpointRejectsEmptyMessage(t *testing.T) {
	server, _ := newTestServer(t)
	router := server.Routes()

	w := doRequest(t, router, http.MethodPost, "/api/v1/chat", ChatRequest{
		SessionID: "sess-1",
		Message:   "   ",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHistoryEndpoints(t *testing.T) {
	server, _ := newTestServer(t)
	router := server.Routes()

	_, err := server.transcripts.Append(context.Background(), "sess-h", transcript.Message{
		Role: "user", Content: "bonjour",
	})
	require.NoError(t, err)

	w := doRequest(t, router, http.MethodGet, "/api/v1/history/sess-h", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "bonjour")

	w = doRequest(t, router, http.MethodGet, "/api/v1/history/sess-h?limit=-1", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doRequest(t, router, http.MethodDelete, "/api/v1/history/sess-h", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = doRequest(t, router, http.MethodGet, "/api/v1/history/sess-h", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	var response map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	assert.Empty(t, response["messages"])
}

func TestIndexStatsEndpoint(t *testing.T) {
	server, wh := newTestServer(t)
	router := server.Routes()

	require.NoError(t, wh.Exec(context.Background(), "CREATE TABLE clients (id BIGINT, nom VARCHAR)"))

	w := doRequest(t, router, http.MethodPost, "/api/v1/index/reindex", nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = doRequest(t, router, http.MethodGet, "/api/v1/index/stats", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	var stats semantic.IndexStats
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &stats))
	assert.Equal(t, 3, stats.TotalDocuments)
	assert.Equal(t, []string{"clients"}, stats.Tables)
}
