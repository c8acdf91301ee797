// Package httpapi implements the HTTP Surface (spec §4.7): POST /api/chat,
// POST /api/redmine-cache, GET /api/health, permissive CORS within a
// configured origin allowlist, and the 429/500 error mapping. Grounded on
// the teacher's cmd/dialog-gateway/main.go — a plain net/http.ServeMux, an
// explicit http.Server with read/write timeouts, and JSON-encoded error
// responses rather than a web framework.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/anthropics/anthropic-sdk-go"

	"github.com/steveyegge/trackergw/internal/auditlog"
	"github.com/steveyegge/trackergw/internal/cache"
	"github.com/steveyegge/trackergw/internal/config"
	"github.com/steveyegge/trackergw/internal/llm"
	"github.com/steveyegge/trackergw/internal/registry"
	"github.com/steveyegge/trackergw/internal/selector"
	"github.com/steveyegge/trackergw/internal/toolloop"
	"github.com/steveyegge/trackergw/internal/trackerclient"
)

// Server wires the Cache Engine, Category Selector, and Tool-Loop Runtime
// behind the three HTTP Surface endpoints.
type Server struct {
	Engine   *cache.Engine
	Selector *selector.Selector
	Runtime  *toolloop.Runtime

	// Origins is the permissive-within-allowlist CORS origin set
	// (spec §4.7: "CORS is permissive within a configured origin list").
	Origins []string

	// Audit receives one best-effort entry per chat turn (spec §4.9).
	// New defaults this to a disabled no-op store; cmd/gateway overrides
	// it with a real Store when AUDIT_DSN is configured.
	Audit auditlog.Store

	// CategoryToggle is the operator-controlled, fsnotify-hot-reloadable
	// category allowlist (spec §4.8); nil means every category a client
	// requests is allowed, unmodified.
	CategoryToggle *config.CategoryToggle

	startedAt time.Time
}

// New constructs a Server. startedAt feeds the health endpoint's uptime_s.
func New(engine *cache.Engine, sel *selector.Selector, runtime *toolloop.Runtime, origins []string) *Server {
	noop, _ := auditlog.NewStore(context.Background(), "")
	return &Server{Engine: engine, Selector: sel, Runtime: runtime, Origins: origins, Audit: noop, startedAt: time.Now()}
}

// Handler returns the routed, CORS-wrapped http.Handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/chat", s.handleChat)
	mux.HandleFunc("POST /api/redmine-cache", s.handleCacheControl)
	mux.HandleFunc("GET /api/health", s.handleHealth)
	return s.withCORS(mux)
}

// NewHTTPServer builds the *http.Server the teacher's dialog-gateway
// constructs explicitly, with read/write timeouts rather than the zero
// values of a bare http.ListenAndServe.
func NewHTTPServer(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}

func (s *Server) withCORS(next http.Handler) http.Handler {
	allowed := make(map[string]bool, len(s.Origins))
	for _, o := range s.Origins {
		allowed[o] = true
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" && (allowed["*"] || allowed[origin]) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps an internal failure to 429/500 per spec §4.7/§7:
// upstream rate limits from the LLM or tracker are 429, everything else
// unexpected is 500. Tool-level failures never reach here — they're
// encoded inside the assistant's response text by the Tool-Loop Runtime.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	if isRateLimited(err) {
		status = http.StatusTooManyRequests
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func isRateLimited(err error) bool {
	return llm.IsRateLimited(err) || trackerclient.IsKind(err, trackerclient.KindRateLimited)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":   "ok",
		"uptime_s": time.Since(s.startedAt).Seconds(),
	})
}

// --- /api/redmine-cache -----------------------------------------------

type cacheControlRequest struct {
	Action string `json:"action"`
}

type cacheControlResponse struct {
	Success   bool       `json:"success"`
	Status    string     `json:"status,omitempty"`
	CacheInfo *cacheInfo `json:"cache_info,omitempty"`
	Error     string     `json:"error,omitempty"`
}

type cacheInfo struct {
	Initialized    bool                  `json:"initialized"`
	LastUpdated    string                `json:"last_updated,omitempty"`
	AgeSeconds     float64               `json:"age_seconds"`
	Counts         cacheCounts           `json:"counts"`
	EndpointErrors []cache.EndpointError `json:"endpoint_errors,omitempty"`
}

type cacheCounts struct {
	Issues   int `json:"issues"`
	Projects int `json:"projects"`
	Users    int `json:"users"`
	Versions int `json:"versions"`
}

func (s *Server) handleCacheControl(w http.ResponseWriter, r *http.Request) {
	var req cacheControlRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, cacheControlResponse{Success: false, Error: "invalid request body"})
		return
	}

	switch req.Action {
	case "on":
		if err := s.Engine.Enable(r.Context()); err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, cacheControlResponse{Success: true, Status: "enabled"})
	case "off":
		s.Engine.Disable()
		writeJSON(w, http.StatusOK, cacheControlResponse{Success: true, Status: "disabled"})
	case "refresh":
		if _, err := s.Engine.Refresh(r.Context()); err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, cacheControlResponse{Success: true})
	case "status":
		writeJSON(w, http.StatusOK, cacheControlResponse{Success: true, CacheInfo: s.cacheInfoNow()})
	default:
		writeJSON(w, http.StatusBadRequest, cacheControlResponse{Success: false, Error: "unknown cache action"})
	}
}

func (s *Server) cacheInfoNow() *cacheInfo {
	st := s.Engine.StatusNow()
	info := &cacheInfo{
		Initialized: st.Initialized,
		AgeSeconds:  st.AgeSeconds,
		Counts: cacheCounts{
			Issues:   st.IssueCount,
			Projects: st.ProjectCount,
			Users:    st.UserCount,
			Versions: st.VersionCount,
		},
		EndpointErrors: st.EndpointErrors,
	}
	if !st.LastUpdated.IsZero() {
		info.LastUpdated = st.LastUpdated.Format(time.RFC3339)
	}
	return info
}

// --- /api/chat -----------------------------------------------------------

type chatMessage struct {
	Role       string `json:"role"`
	Content    string `json:"content"`
	ToolCallID string `json:"tool_call_id,omitempty"`
	Name       string `json:"name,omitempty"`
}

type chatRequest struct {
	Message            string                   `json:"message"`
	ConversationHistory []chatMessage            `json:"conversationHistory"`
	EnabledTools        map[registry.Category]bool `json:"enabledTools"`
}

type chatResponse struct {
	Response            string        `json:"response"`
	ConversationHistory []chatMessage `json:"conversationHistory"`
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	enabled := req.EnabledTools
	if s.CategoryToggle != nil {
		enabled = s.CategoryToggle.Intersect(enabled)
	}

	decision := s.Selector.Select(r.Context(), req.Message, enabled)
	start := time.Now()

	outcome, err := s.Runtime.Run(r.Context(), toolloop.Turn{
		Utterance: req.Message,
		History:   toMessageParams(req.ConversationHistory),
		Category:  decision.Category,
		Enabled:   enabled,
	})
	s.auditChatTurn(r.Context(), req.Message, outcome.Response, decision.Category, err, time.Since(start))
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			writeJSON(w, http.StatusRequestTimeout, map[string]string{"error": err.Error()})
			return
		}
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, chatResponse{
		Response:            outcome.Response,
		ConversationHistory: fromMessageParams(outcome.History),
	})
}

// auditChatTurn records one best-effort audit entry per chat turn (spec
// §4.9: every chat turn is appended to a durable audit trail alongside
// every tool dispatch). A nil Audit is valid and silently skipped.
func (s *Server) auditChatTurn(ctx context.Context, utterance, response string, category registry.Category, err error, latency time.Duration) {
	if s.Audit == nil {
		return
	}
	entry := auditlog.Entry{
		Kind:      auditlog.KindChatTurn,
		Utterance: utterance,
		Response:  response,
		Category:  string(category),
		Success:   err == nil,
		LatencyMS: latency.Milliseconds(),
	}
	if err != nil {
		entry.ErrorMessage = err.Error()
	}
	_ = s.Audit.Append(ctx, entry) // best effort
}

// toMessageParams converts the wire-level conversation history into the
// Anthropic SDK's message shape the Tool-Loop Runtime consumes. Tool-role
// entries become user messages carrying a tool_result block, matching the
// Anthropic API's convention that tool results travel as user turns.
func toMessageParams(history []chatMessage) []anthropic.MessageParam {
	out := make([]anthropic.MessageParam, 0, len(history))
	for _, m := range history {
		switch m.Role {
		case "user":
			out = append(out, anthropic.NewUserMessage(anthropic.NewTextBlock(m.Content)))
		case "assistant":
			out = append(out, anthropic.NewAssistantMessage(anthropic.NewTextBlock(m.Content)))
		case "tool":
			out = append(out, anthropic.NewUserMessage(anthropic.NewToolResultBlock(m.ToolCallID, m.Content, false)))
		}
	}
	return out
}

// fromMessageParams is a lossy best-effort inverse of toMessageParams,
// used only to echo the updated history back to the client (spec §6: the
// response carries the full conversationHistory for the client to persist
// and resend on the next turn).
func fromMessageParams(messages []anthropic.MessageParam) []chatMessage {
	out := make([]chatMessage, 0, len(messages))
	for _, m := range messages {
		role := string(m.Role)
		var text string
		for _, block := range m.Content {
			if block.OfText != nil {
				text += block.OfText.Text
			}
		}
		if text == "" {
			continue
		}
		out = append(out, chatMessage{Role: role, Content: text})
	}
	return out
}
