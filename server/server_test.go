package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/supportflow/agent"
	"github.com/hupe1980/supportflow/approval"
	"github.com/hupe1980/supportflow/knowledge"
	"github.com/hupe1980/supportflow/memory"
	"github.com/hupe1980/supportflow/model"
	"github.com/hupe1980/supportflow/orchestrator"
	"github.com/hupe1980/supportflow/support"
	"github.com/hupe1980/supportflow/tool"
)

func newTestServer(t *testing.T) (*Server, *model.MockModel) {
	t.Helper()

	router, err := knowledge.NewRouter(context.Background())
	require.NoError(t, err)
	t.Cleanup(func() { _ = router.Close() })

	store, err := support.NewStore("")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	mock := model.NewMockModel("test")
	gate := approval.NewGate()
	mem := memory.New()

	registry := tool.NewRegistry()
	registry.MustRegister(support.Tools(store, router)...)

	loop := agent.NewLoop(mock, registry, gate, nil, mem)
	orch := orchestrator.New(loop, router, gate, mem, nil, func(o *orchestrator.Options) {
		o.KnowledgeToolName = support.SearchKnowledgeToolName
	})
	return New(orch), mock
}

func doJSON(t *testing.T, s *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	s.echo.ServeHTTP(rec, req)
	return rec
}

func TestHandleChat(t *testing.T) {
	s, mock := newTestServer(t)
	mock.AddTextTurn("Hi there!")

	rec := doJSON(t, s, http.MethodPost, "/chat", `{"message":"hello"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var result orchestrator.ChatResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.Equal(t, "Hi there!", result.Response)
	assert.NotEmpty(t, result.SessionID)
}

func TestHandleChat_MissingMessage(t *testing.T) {
	s, _ := newTestServer(t)

	rec := doJSON(t, s, http.MethodPost, "/chat", `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "message is required")
}

func TestHandleChatStream(t *testing.T) {
	s, mock := newTestServer(t)
	mock.AddTextTurn("Streamed answer.")

	rec := doJSON(t, s, http.MethodPost, "/chat/stream", `{"message":"hello"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/event-stream")

	body := rec.Body.String()
	require.True(t, strings.HasPrefix(body, "data: "))

	var result orchestrator.ChatResult
	payload := strings.TrimSpace(strings.TrimPrefix(body, "data: "))
	require.NoError(t, json.Unmarshal([]byte(payload), &result))
	assert.Equal(t, "Streamed answer.", result.Response)
}

func TestHandleIngest(t *testing.T) {
	s, _ := newTestServer(t)

	rec := doJSON(t, s, http.MethodPost, "/ingest", `{"title":"Refund Policy","content":"Full refunds within 30 days."}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp ingestResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.IDs)
}

func TestHandleIngest_MissingTitle(t *testing.T) {
	s, _ := newTestServer(t)

	rec := doJSON(t, s, http.MethodPost, "/ingest", `{"content":"body only"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleApprove(t *testing.T) {
	s, _ := newTestServer(t)

	t.Run("unknown request id", func(t *testing.T) {
		rec := doJSON(t, s, http.MethodPost, "/approve", `{"requestId":"nope","approved":true,"approvedBy":"agent-1"}`)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("missing request id", func(t *testing.T) {
		rec := doJSON(t, s, http.MethodPost, "/approve", `{"approved":true,"approvedBy":"agent-1"}`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("missing approver", func(t *testing.T) {
		rec := doJSON(t, s, http.MethodPost, "/approve", `{"requestId":"abc","approved":true}`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestHandleApprovals(t *testing.T) {
	s, _ := newTestServer(t)

	rec := doJSON(t, s, http.MethodGet, "/approvals", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp approvalsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Empty(t, resp.Requests)
}

func TestHandleHealth(t *testing.T) {
	s, _ := newTestServer(t)

	rec := doJSON(t, s, http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var health map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &health))
	assert.Equal(t, "ok", health["status"])
}
