package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/steveyegge/trackergw/internal/cache"
	"github.com/steveyegge/trackergw/internal/config"
	"github.com/steveyegge/trackergw/internal/llm"
	"github.com/steveyegge/trackergw/internal/registry"
	"github.com/steveyegge/trackergw/internal/selector"
	"github.com/steveyegge/trackergw/internal/toolloop"
	"github.com/steveyegge/trackergw/internal/trackerclient"
)

// fakeTracker serves an empty but well-shaped Redmine surface, enough for
// Engine.Enable/Refresh to succeed without any issues/projects.
func fakeTrackerHandler() http.Handler {
	mux := http.NewServeMux()
	empty := func(key string) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			_ = json.NewEncoder(w).Encode(map[string]interface{}{key: []map[string]interface{}{}, "total_count": 0, "offset": 0, "limit": 100})
		}
	}
	mux.HandleFunc("/projects.json", empty("projects"))
	mux.HandleFunc("/issues.json", empty("issues"))
	mux.HandleFunc("/users.json", empty("users"))
	return mux
}

func newTestEngine(t *testing.T) *cache.Engine {
	t.Helper()
	srv := httptest.NewServer(fakeTrackerHandler())
	t.Cleanup(srv.Close)
	client := trackerclient.New(srv.URL, "test-key", "", srv.Client(), 4)
	return cache.NewEngine(client, config.DefaultEnumMaps(), time.UTC, time.Minute)
}

func anthropicTextResponse(text string) map[string]interface{} {
	return map[string]interface{}{
		"id": "msg_test", "type": "message", "role": "assistant",
		"model": "claude-3-5-haiku-20241022", "stop_reason": "end_turn",
		"usage":   map[string]int{"input_tokens": 10, "output_tokens": 5},
		"content": []map[string]interface{}{{"type": "text", "text": text}},
	}
}

func newTestRuntime(t *testing.T, replyText string) *toolloop.Runtime {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(anthropicTextResponse(replyText))
	}))
	t.Cleanup(srv.Close)
	client, err := llm.New("test-key", "", option.WithBaseURL(srv.URL))
	require.NoError(t, err)
	return &toolloop.Runtime{LLM: client, Executor: &noToolExecutor{}}
}

// noToolExecutor satisfies toolloop's internal dispatcher interface but is
// never exercised by these tests since the scripted LLM response never
// requests a tool call.
type noToolExecutor struct{}

func (noToolExecutor) Dispatch(_ context.Context, _ string, _ json.RawMessage) (string, error) {
	return "", nil
}

func TestHandleHealthReportsOK(t *testing.T) {
	s := New(newTestEngine(t), selector.New(nil), newTestRuntime(t, "hi"), nil)
	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
	assert.Contains(t, body, "uptime_s")
}

func TestHandleCacheControlOnThenStatus(t *testing.T) {
	s := New(newTestEngine(t), selector.New(nil), newTestRuntime(t, "hi"), nil)

	onReq := httptest.NewRequest(http.MethodPost, "/api/redmine-cache", bytes.NewBufferString(`{"action":"on"}`))
	onRec := httptest.NewRecorder()
	s.Handler().ServeHTTP(onRec, onReq)
	require.Equal(t, http.StatusOK, onRec.Code)

	var onBody cacheControlResponse
	require.NoError(t, json.Unmarshal(onRec.Body.Bytes(), &onBody))
	assert.True(t, onBody.Success)
	assert.Equal(t, "enabled", onBody.Status)

	statusReq := httptest.NewRequest(http.MethodPost, "/api/redmine-cache", bytes.NewBufferString(`{"action":"status"}`))
	statusRec := httptest.NewRecorder()
	s.Handler().ServeHTTP(statusRec, statusReq)
	require.Equal(t, http.StatusOK, statusRec.Code)

	var statusBody cacheControlResponse
	require.NoError(t, json.Unmarshal(statusRec.Body.Bytes(), &statusBody))
	assert.True(t, statusBody.Success)
	require.NotNil(t, statusBody.CacheInfo)
	assert.True(t, statusBody.CacheInfo.Initialized)
}

func TestHandleCacheControlRejectsUnknownAction(t *testing.T) {
	s := New(newTestEngine(t), selector.New(nil), newTestRuntime(t, "hi"), nil)
	req := httptest.NewRequest(http.MethodPost, "/api/redmine-cache", bytes.NewBufferString(`{"action":"dance"}`))
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	var body cacheControlResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.False(t, body.Success)
	assert.NotEmpty(t, body.Error)
}

func TestHandleChatReturnsAssistantTextAndHistory(t *testing.T) {
	s := New(newTestEngine(t), selector.New(nil), newTestRuntime(t, "ncel has 3 open bugs"), nil)

	payload := `{"message":"how many bugs does ncel have","conversationHistory":[],"enabledTools":{"tracker-analytics":true}}`
	req := httptest.NewRequest(http.MethodPost, "/api/chat", bytes.NewBufferString(payload))
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var body chatResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ncel has 3 open bugs", body.Response)
	assert.NotEmpty(t, body.ConversationHistory)
}

func TestHandleChatCategoryToggleMasksDisallowedCategory(t *testing.T) {
	var offeredTools []string
	llmSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]interface{}
		raw, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(raw, &body)
		offeredTools = nil
		if tools, ok := body["tools"].([]interface{}); ok {
			for _, tl := range tools {
				if m, ok := tl.(map[string]interface{}); ok {
					offeredTools = append(offeredTools, m["name"].(string))
				}
			}
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(anthropicTextResponse("cache refreshed"))
	}))
	t.Cleanup(llmSrv.Close)
	client, err := llm.New("test-key", "", option.WithBaseURL(llmSrv.URL))
	require.NoError(t, err)
	runtime := &toolloop.Runtime{LLM: client, Executor: &noToolExecutor{}}

	s := New(newTestEngine(t), selector.New(nil), runtime, nil)
	s.CategoryToggle = config.NewCategoryToggle(map[registry.Category]bool{registry.CategoryTrackerAnalytics: true})

	// The client asks for cache-control, but the operator-side toggle only
	// allows tracker-analytics: the gateway must never hand the model a
	// cache-control tool regardless of what the client requested.
	payload := `{"message":"refresh the cache","conversationHistory":[],"enabledTools":{"cache-control":true,"tracker-analytics":true}}`
	req := httptest.NewRequest(http.MethodPost, "/api/chat", bytes.NewBufferString(payload))
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, offeredTools, "cache_control")
}

func TestCORSReflectsAllowedOrigin(t *testing.T) {
	s := New(newTestEngine(t), selector.New(nil), newTestRuntime(t, "hi"), []string{"https://ops.example.com"})
	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	req.Header.Set("Origin", "https://ops.example.com")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	assert.Equal(t, "https://ops.example.com", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestCORSOmitsHeaderForDisallowedOrigin(t *testing.T) {
	s := New(newTestEngine(t), selector.New(nil), newTestRuntime(t, "hi"), []string{"https://ops.example.com"})
	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestIsRateLimitedClassifiesTrackerRateLimit(t *testing.T) {
	err := &trackerclient.Error{Kind: trackerclient.KindRateLimited}
	assert.True(t, isRateLimited(err))
	assert.False(t, isRateLimited(assert.AnError))
}
