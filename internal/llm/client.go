// Package llm wraps github.com/anthropics/anthropic-sdk-go for the two LLM
// round trips the gateway needs (SPEC_FULL §4.5, §4.6): the Category
// Selector's single constrained tool choice, and the Tool-Loop Runtime's
// multi-tool conversational round. Both share one retry/telemetry-wrapped
// Client, following the teacher's internal/compact.haikuClient shape
// (isRetryable classification, OTel counters, a bounded exponential
// backoff loop) generalized from one fixed summarization prompt to an
// arbitrary message+tools request.
package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net"
	"os"
	"sync"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"

	"github.com/steveyegge/trackergw/internal/telemetry"
)

const (
	maxRetries     = 3
	initialBackoff = 500 * time.Millisecond

	// DefaultModel is used when no override is configured. Haiku-class
	// models are the right fit for both round trips: the selector round
	// is capped at 100 output tokens and the tool loop is bounded to 3
	// iterations, neither needs a frontier model.
	DefaultModel = anthropic.ModelClaude3_5HaikuLatest
)

// ErrAPIKeyRequired is returned when LLM_API_KEY is absent.
var ErrAPIKeyRequired = errors.New("llm: API key required")

// Client is a retry/telemetry-wrapped Anthropic Messages client.
type Client struct {
	raw   anthropic.Client
	model anthropic.Model

	maxRetries     int
	initialBackoff time.Duration
}

// New constructs a Client. Env var ANTHROPIC_API_KEY takes precedence
// over an explicit apiKey, matching the teacher's newHaikuClient
// precedence rule. Extra opts are forwarded to anthropic.NewClient (tests
// use this to redirect at a httptest server via option.WithBaseURL).
func New(apiKey string, model anthropic.Model, opts ...option.RequestOption) (*Client, error) {
	if envKey := os.Getenv("ANTHROPIC_API_KEY"); envKey != "" {
		apiKey = envKey
	}
	if apiKey == "" {
		return nil, ErrAPIKeyRequired
	}
	if model == "" {
		model = DefaultModel
	}
	metricsOnce.Do(initMetrics)
	clientOpts := append([]option.RequestOption{option.WithAPIKey(apiKey)}, opts...)
	return &Client{
		raw:            anthropic.NewClient(clientOpts...),
		model:          model,
		maxRetries:     maxRetries,
		initialBackoff: initialBackoff,
	}, nil
}

// Tool is the wire shape one registry.Descriptor is translated into for
// an Anthropic tool-use request. Properties holds only the raw JSON Schema
// property map (what ToolInputSchemaParam.Properties expects); Required is
// the separate list of required property names.
type Tool struct {
	Name        string
	Description string
	Properties  map[string]interface{}
	Required    []string
}

// ToolCall is one tool_use content block the model emitted.
type ToolCall struct {
	ID    string
	Name  string
	Input json.RawMessage
}

// ToolResult is appended back into the conversation after a ToolCall is
// dispatched (spec §4.6 step 4: "append the result as a tool message").
type ToolResult struct {
	ToolUseID string
	Content   string
	IsError   bool
}

// Request is one Messages.New round trip.
type Request struct {
	System     string
	Messages   []anthropic.MessageParam
	Tools      []Tool
	ForceTool  string // non-empty: tool_choice=tool with this name (selector round)
	RequireAny bool   // tool_choice=any (must call some tool, any name)
	MaxTokens  int64
}

// Response is the parsed result of one round trip.
type Response struct {
	Text      string
	ToolCalls []ToolCall
	StopOnly  bool // true if there were no tool_use blocks at all
	Usage     anthropic.Usage
}

// Complete runs one retrying Messages.New call and parses its content
// blocks into text plus any tool calls.
func (c *Client) Complete(ctx context.Context, req Request) (*Response, error) {
	params := anthropic.MessageNewParams{
		Model:     c.model,
		MaxTokens: req.MaxTokens,
		Messages:  req.Messages,
	}
	if req.System != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.System}}
	}
	if params.MaxTokens == 0 {
		params.MaxTokens = 1024
	}
	if len(req.Tools) > 0 {
		params.Tools = make([]anthropic.ToolUnionParam, 0, len(req.Tools))
		for _, t := range req.Tools {
			schema := anthropic.ToolInputSchemaParam{Properties: t.Properties}
			if len(t.Required) > 0 {
				schema.ExtraFields = map[string]interface{}{"required": t.Required}
			}
			params.Tools = append(params.Tools, anthropic.ToolUnionParamOfTool(anthropic.ToolParam{
				Name:        t.Name,
				Description: anthropic.String(t.Description),
				InputSchema: schema,
			}))
		}
	}
	switch {
	case req.ForceTool != "":
		params.ToolChoice = anthropic.ToolChoiceUnionParam{
			OfTool: &anthropic.ToolChoiceToolParam{Name: req.ForceTool},
		}
	case req.RequireAny:
		params.ToolChoice = anthropic.ToolChoiceUnionParam{
			OfAny: &anthropic.ToolChoiceAnyParam{},
		}
	}

	message, err := c.callWithRetry(ctx, params)
	if err != nil {
		return nil, err
	}

	resp := &Response{Usage: message.Usage}
	for _, block := range message.Content {
		switch block.Type {
		case "text":
			resp.Text += block.Text
		case "tool_use":
			resp.ToolCalls = append(resp.ToolCalls, ToolCall{ID: block.ID, Name: block.Name, Input: block.Input})
		}
	}
	resp.StopOnly = len(resp.ToolCalls) == 0
	return resp, nil
}

var (
	llmMetrics struct {
		inputTokens  metric.Int64Counter
		outputTokens metric.Int64Counter
		duration     metric.Float64Histogram
		retries      metric.Int64Counter
	}
	metricsOnce sync.Once
)

func initMetrics() {
	m := telemetry.Meter("github.com/steveyegge/trackergw/llm")
	llmMetrics.inputTokens, _ = m.Int64Counter("trackergw.llm.input_tokens", metric.WithUnit("{token}"))
	llmMetrics.outputTokens, _ = m.Int64Counter("trackergw.llm.output_tokens", metric.WithUnit("{token}"))
	llmMetrics.duration, _ = m.Float64Histogram("trackergw.llm.request.duration", metric.WithUnit("ms"))
	llmMetrics.retries, _ = m.Int64Counter("trackergw.llm.retries")
}

func (c *Client) callWithRetry(ctx context.Context, params anthropic.MessageNewParams) (*anthropic.Message, error) {
	tracer := telemetry.Tracer("github.com/steveyegge/trackergw/llm")
	ctx, span := tracer.Start(ctx, "anthropic.messages.new")
	defer span.End()
	span.SetAttributes(attribute.String("trackergw.llm.model", string(c.model)))

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			llmMetrics.retries.Add(ctx, 1)
			backoff := c.initialBackoff * time.Duration(math.Pow(2, float64(attempt-1)))
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		t0 := time.Now()
		message, err := c.raw.Messages.New(ctx, params)
		ms := float64(time.Since(t0).Milliseconds())

		if err == nil {
			modelAttr := attribute.String("trackergw.llm.model", string(c.model))
			llmMetrics.inputTokens.Add(ctx, message.Usage.InputTokens, metric.WithAttributes(modelAttr))
			llmMetrics.outputTokens.Add(ctx, message.Usage.OutputTokens, metric.WithAttributes(modelAttr))
			llmMetrics.duration.Record(ctx, ms, metric.WithAttributes(modelAttr))
			span.SetAttributes(attribute.Int("trackergw.llm.attempts", attempt+1))
			return message, nil
		}

		lastErr = err
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if !isRetryable(err) {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return nil, fmt.Errorf("llm: non-retryable: %w", err)
		}
	}

	span.RecordError(lastErr)
	span.SetStatus(codes.Error, lastErr.Error())
	return nil, fmt.Errorf("llm: failed after %d attempts: %w", c.maxRetries+1, lastErr)
}

func isRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == 429 || apiErr.StatusCode >= 500
	}
	return false
}

// IsRateLimited reports whether err is the LLM rate-limit class, used by
// the HTTP Surface's 429 error mapping (spec §7).
func IsRateLimited(err error) bool {
	var apiErr *anthropic.Error
	return errors.As(err, &apiErr) && apiErr.StatusCode == 429
}
