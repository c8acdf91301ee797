package selector_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/steveyegge/trackergw/internal/llm"
	"github.com/steveyegge/trackergw/internal/registry"
	"github.com/steveyegge/trackergw/internal/selector"
)

func allEnabled() map[registry.Category]bool {
	return map[registry.Category]bool{
		registry.CategoryTrackerCore:       true,
		registry.CategoryTrackerAnalytics:  true,
		registry.CategoryCacheControl:      true,
	}
}

func TestSelectKeywordMatchNeverCallsModel(t *testing.T) {
	s := selector.New(nil) // nil LLM client: a model call here would panic
	d := s.Select(t.Context(), "what's our velocity trend this sprint?", allEnabled())
	assert.Equal(t, registry.CategoryTrackerAnalytics, d.Category)
	assert.Equal(t, selector.SourceKeyword, d.Source)
}

func TestSelectKeywordMatchRespectsEnabledSet(t *testing.T) {
	s := selector.New(nil)
	enabled := map[registry.Category]bool{registry.CategoryTrackerCore: true}
	d := s.Select(t.Context(), "what's our velocity trend?", enabled)
	assert.NotEqual(t, registry.CategoryTrackerAnalytics, d.Category, "tracker-analytics is disabled, keyword match must not select it")
}

func TestSelectFallsBackToFirstEnabledWhenNoLLMConfigured(t *testing.T) {
	s := selector.New(nil)
	d := s.Select(t.Context(), "tell me something unrelated entirely", allEnabled())
	assert.Equal(t, selector.SourceFallback, d.Source)
	cat, _ := registry.FirstEnabled(allEnabled())
	assert.Equal(t, cat, d.Category)
}

func TestSelectModelRoundPicksToolChoice(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"id": "msg_1", "type": "message", "role": "assistant",
			"model": "claude-3-5-haiku-20241022", "stop_reason": "tool_use",
			"usage": map[string]int{"input_tokens": 20, "output_tokens": 10},
			"content": []map[string]interface{}{
				{"type": "tool_use", "id": "toolu_1", "name": "select_category", "input": map[string]interface{}{"category": "tracker-core"}},
			},
		})
	}))
	defer srv.Close()

	client, err := llm.New("test-key", "", option.WithBaseURL(srv.URL))
	require.NoError(t, err)

	s := selector.New(client)
	d := s.Select(t.Context(), "something that matches no keyword at all", allEnabled())
	assert.Equal(t, registry.CategoryTrackerCore, d.Category)
	assert.Equal(t, selector.SourceModel, d.Source)
}

func TestSelectModelRoundFallsBackOnInvalidCategory(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"id": "msg_1", "type": "message", "role": "assistant",
			"model": "claude-3-5-haiku-20241022", "stop_reason": "tool_use",
			"usage": map[string]int{"input_tokens": 20, "output_tokens": 10},
			"content": []map[string]interface{}{
				{"type": "tool_use", "id": "toolu_1", "name": "select_category", "input": map[string]interface{}{"category": "not-a-real-category"}},
			},
		})
	}))
	defer srv.Close()

	client, err := llm.New("test-key", "", option.WithBaseURL(srv.URL))
	require.NoError(t, err)

	s := selector.New(client)
	d := s.Select(t.Context(), "something that matches no keyword at all", allEnabled())
	assert.Equal(t, selector.SourceFallback, d.Source)
}
