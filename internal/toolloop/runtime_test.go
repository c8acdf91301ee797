package toolloop

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/steveyegge/trackergw/internal/llm"
	"github.com/steveyegge/trackergw/internal/registry"
)

type fakeDispatcher struct {
	calls   []string
	results map[string]string
}

func (f *fakeDispatcher) Dispatch(_ context.Context, name string, _ json.RawMessage) (string, error) {
	f.calls = append(f.calls, name)
	if r, ok := f.results[name]; ok {
		return r, nil
	}
	return "", assert.AnError
}

func anthropicMessage(stopReason string, content []map[string]interface{}) map[string]interface{} {
	return map[string]interface{}{
		"id": "msg_test", "type": "message", "role": "assistant",
		"model": "claude-3-5-haiku-20241022", "stop_reason": stopReason,
		"usage":   map[string]int{"input_tokens": 10, "output_tokens": 5},
		"content": content,
	}
}

func textBlock(text string) map[string]interface{} {
	return map[string]interface{}{"type": "text", "text": text}
}

func toolUseBlock(id, name string, input map[string]interface{}) map[string]interface{} {
	return map[string]interface{}{"type": "tool_use", "id": id, "name": name, "input": input}
}

// scriptedServer replays one JSON response per call to Messages.New, in order.
func scriptedServer(t *testing.T, responses []map[string]interface{}) *httptest.Server {
	t.Helper()
	i := 0
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Less(t, i, len(responses), "unexpected extra call to Messages.New")
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(responses[i])
		i++
	}))
}

func newTestClient(t *testing.T, srv *httptest.Server) *llm.Client {
	t.Helper()
	c, err := llm.New("test-key", "", option.WithBaseURL(srv.URL))
	require.NoError(t, err)
	return c
}

func TestRunReturnsTextWhenNoToolCalls(t *testing.T) {
	srv := scriptedServer(t, []map[string]interface{}{
		anthropicMessage("end_turn", []map[string]interface{}{textBlock("there are 3 open bugs")}),
	})
	defer srv.Close()

	rt := &Runtime{LLM: newTestClient(t, srv), Executor: &fakeDispatcher{}}
	out, err := rt.Run(t.Context(), Turn{
		Utterance: "how many bugs are open",
		Category:  registry.CategoryTrackerAnalytics,
		Enabled:   map[registry.Category]bool{registry.CategoryTrackerAnalytics: true},
	})
	require.NoError(t, err)
	assert.Equal(t, "there are 3 open bugs", out.Response)
	assert.NotEmpty(t, out.History)
}

func TestRunDispatchesToolCallThenReturnsFinalText(t *testing.T) {
	srv := scriptedServer(t, []map[string]interface{}{
		anthropicMessage("tool_use", []map[string]interface{}{
			toolUseBlock("toolu_1", "bug_count", map[string]interface{}{"project": "ncel"}),
		}),
		anthropicMessage("end_turn", []map[string]interface{}{textBlock("ncel has 7 open bugs")}),
	})
	defer srv.Close()

	fd := &fakeDispatcher{results: map[string]string{"bug_count": `{"success":true,"count":7}`}}
	rt := &Runtime{LLM: newTestClient(t, srv), Executor: fd}
	out, err := rt.Run(t.Context(), Turn{
		Utterance: "how many bugs does ncel have",
		Category:  registry.CategoryTrackerAnalytics,
		Enabled:   map[registry.Category]bool{registry.CategoryTrackerAnalytics: true},
	})
	require.NoError(t, err)
	assert.Equal(t, "ncel has 7 open bugs", out.Response)
	assert.Equal(t, []string{"bug_count"}, fd.calls)
}

func TestRunCapsToolCallsPerIteration(t *testing.T) {
	srv := scriptedServer(t, []map[string]interface{}{
		anthropicMessage("tool_use", []map[string]interface{}{
			toolUseBlock("toolu_1", "bug_count", map[string]interface{}{}),
			toolUseBlock("toolu_2", "backlog_count", map[string]interface{}{}),
			toolUseBlock("toolu_3", "sprint_count", map[string]interface{}{}),
		}),
		anthropicMessage("end_turn", []map[string]interface{}{textBlock("done")}),
	})
	defer srv.Close()

	fd := &fakeDispatcher{results: map[string]string{
		"bug_count":     `{"success":true}`,
		"backlog_count": `{"success":true}`,
		"sprint_count":  `{"success":true}`,
	}}
	rt := &Runtime{LLM: newTestClient(t, srv), Executor: fd}
	_, err := rt.Run(t.Context(), Turn{
		Utterance: "give me everything",
		Category:  registry.CategoryTrackerAnalytics,
		Enabled:   map[registry.Category]bool{registry.CategoryTrackerAnalytics: true},
	})
	require.NoError(t, err)
	assert.Len(t, fd.calls, maxToolsPerIteration)
}

func TestRunForcesFinalAnswerAtIterationCap(t *testing.T) {
	toolRound := anthropicMessage("tool_use", []map[string]interface{}{
		toolUseBlock("toolu_1", "bug_count", map[string]interface{}{}),
	})
	responses := []map[string]interface{}{toolRound, toolRound, toolRound}
	responses = append(responses, anthropicMessage("end_turn", []map[string]interface{}{textBlock("final answer")}))
	srv := scriptedServer(t, responses)
	defer srv.Close()

	fd := &fakeDispatcher{results: map[string]string{"bug_count": `{"success":true}`}}
	rt := &Runtime{LLM: newTestClient(t, srv), Executor: fd}
	out, err := rt.Run(t.Context(), Turn{
		Utterance: "keep counting",
		Category:  registry.CategoryTrackerAnalytics,
		Enabled:   map[registry.Category]bool{registry.CategoryTrackerAnalytics: true},
	})
	require.NoError(t, err)
	assert.Equal(t, "final answer", out.Response)
	assert.Equal(t, maxIterations, len(fd.calls))
}

func TestRunSurfacesDispatchErrorAsToolResultNotFailure(t *testing.T) {
	srv := scriptedServer(t, []map[string]interface{}{
		anthropicMessage("tool_use", []map[string]interface{}{
			toolUseBlock("toolu_1", "get_issue", map[string]interface{}{}),
		}),
		anthropicMessage("end_turn", []map[string]interface{}{textBlock("I could not find that issue")}),
	})
	defer srv.Close()

	fd := &fakeDispatcher{} // no matching result: Dispatch returns an error
	rt := &Runtime{LLM: newTestClient(t, srv), Executor: fd}
	out, err := rt.Run(t.Context(), Turn{
		Utterance: "show me issue 99999",
		Category:  registry.CategoryTrackerCore,
		Enabled:   map[registry.Category]bool{registry.CategoryTrackerCore: true},
	})
	require.NoError(t, err)
	assert.Equal(t, "I could not find that issue", out.Response)
}

func TestRunPropagatesCancellation(t *testing.T) {
	srv := scriptedServer(t, []map[string]interface{}{
		anthropicMessage("end_turn", []map[string]interface{}{textBlock("unused")}),
	})
	defer srv.Close()

	ctx, cancel := context.WithCancel(t.Context())
	cancel()

	rt := &Runtime{LLM: newTestClient(t, srv), Executor: &fakeDispatcher{}}
	_, err := rt.Run(ctx, Turn{
		Utterance: "anything",
		Category:  registry.CategoryTrackerCore,
		Enabled:   map[registry.Category]bool{registry.CategoryTrackerCore: true},
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSchemaForMarksRequiredParams(t *testing.T) {
	d := registry.Descriptor{
		Name: "get_issue",
		Params: []registry.Param{
			{Name: "issue_id", Type: registry.ParamInteger, Required: true},
			{Name: "project", Type: registry.ParamString},
		},
	}
	props, required := schemaFor(d)
	assert.ElementsMatch(t, []string{"issue_id"}, required)
	assert.Contains(t, props, "issue_id")
	assert.Contains(t, props, "project")
}

func TestTailKeepsOnlyMostRecentMessages(t *testing.T) {
	history := make([]anthropic.MessageParam, 0, 12)
	for i := 0; i < 12; i++ {
		history = append(history, anthropic.NewUserMessage(anthropic.NewTextBlock("turn")))
	}
	out := tail(history, 10)
	assert.Len(t, out, 10)

	short := tail(history[:3], 10)
	assert.Len(t, short, 3)
}
