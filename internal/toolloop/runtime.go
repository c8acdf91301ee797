package toolloop

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"

	"github.com/steveyegge/trackergw/internal/llm"
	"github.com/steveyegge/trackergw/internal/registry"
)

const (
	maxIterations        = 3
	maxToolsPerIteration = 2
	historyTail          = 10
)

const systemPrompt = `You answer questions about a project-management issue tracker using the provided tools. Prefer a single tool call when it fully answers the question. If the user asks for multiple distinct analytics, call each tool once. Tool results are authoritative: report their values, don't recompute or guess.`

const finalAnswerDirective = "The tool-call budget for this turn is exhausted. Produce your final answer now without calling any more tools."

// Turn is one request to the Tool-Loop Runtime (spec §4.6).
type Turn struct {
	Utterance string
	History   []anthropic.MessageParam
	Category  registry.Category
	Enabled   map[registry.Category]bool
}

// Outcome is the loop's result: the assistant's final text plus the
// updated message history (spec §6's conversationHistory echo).
type Outcome struct {
	Response string
	History  []anthropic.MessageParam
}

// dispatcher is the subset of *Executor the Runtime depends on, small
// enough to fake in tests without wiring a live Cache Engine/Tracker Client.
type dispatcher interface {
	Dispatch(ctx context.Context, name string, rawArgs json.RawMessage) (string, error)
}

// Runtime runs the bounded tool loop against one LLM client and Executor.
type Runtime struct {
	LLM      *llm.Client
	Executor dispatcher
}

// Run executes Phase-2: build the tool list for the selected category,
// then iterate up to maxIterations rounds, dispatching up to
// maxToolsPerIteration calls per round (spec §4.6 steps 1-6).
func (r *Runtime) Run(ctx context.Context, turn Turn) (Outcome, error) {
	descriptors := registry.GetToolsForCategory(turn.Category, turn.Enabled)
	tools := make([]llm.Tool, 0, len(descriptors))
	for _, d := range descriptors {
		props, required := schemaFor(d)
		tools = append(tools, llm.Tool{Name: d.Name, Description: d.Description, Properties: props, Required: required})
	}

	messages := tail(turn.History, historyTail)
	messages = append(messages, anthropic.NewUserMessage(anthropic.NewTextBlock(turn.Utterance)))

	for iteration := 0; iteration < maxIterations; iteration++ {
		if err := ctx.Err(); err != nil {
			return Outcome{}, err
		}

		resp, err := r.LLM.Complete(ctx, llm.Request{
			System:   systemPrompt,
			Messages: messages,
			Tools:    tools,
		})
		if err != nil {
			return Outcome{}, fmt.Errorf("toolloop: llm call: %w", err)
		}

		if resp.StopOnly {
			messages = append(messages, anthropic.NewAssistantMessage(anthropic.NewTextBlock(resp.Text)))
			return Outcome{Response: resp.Text, History: messages}, nil
		}

		assistantBlocks := make([]anthropic.ContentBlockParamUnion, 0, len(resp.ToolCalls)+1)
		if resp.Text != "" {
			assistantBlocks = append(assistantBlocks, anthropic.NewTextBlock(resp.Text))
		}
		for _, tc := range resp.ToolCalls {
			assistantBlocks = append(assistantBlocks, anthropic.NewToolUseBlock(tc.ID, tc.Input, tc.Name))
		}
		messages = append(messages, anthropic.NewAssistantMessage(assistantBlocks...))

		calls := resp.ToolCalls
		if len(calls) > maxToolsPerIteration {
			calls = calls[:maxToolsPerIteration]
		}

		resultBlocks := make([]anthropic.ContentBlockParamUnion, 0, len(calls))
		for _, tc := range calls {
			if err := ctx.Err(); err != nil {
				return Outcome{}, err
			}
			text, dispatchErr := r.Executor.Dispatch(ctx, tc.Name, tc.Input)
			if dispatchErr != nil {
				resultBlocks = append(resultBlocks, anthropic.NewToolResultBlock(tc.ID, dispatchErr.Error(), true))
				continue
			}
			resultBlocks = append(resultBlocks, anthropic.NewToolResultBlock(tc.ID, text, false))
		}
		messages = append(messages, anthropic.NewUserMessage(resultBlocks...))

		if iteration == maxIterations-1 {
			messages = append(messages, anthropic.NewUserMessage(anthropic.NewTextBlock(finalAnswerDirective)))
			final, err := r.LLM.Complete(ctx, llm.Request{System: systemPrompt, Messages: messages})
			if err != nil {
				return Outcome{}, fmt.Errorf("toolloop: final call: %w", err)
			}
			messages = append(messages, anthropic.NewAssistantMessage(anthropic.NewTextBlock(final.Text)))
			return Outcome{Response: final.Text, History: messages}, nil
		}
	}

	return Outcome{}, fmt.Errorf("toolloop: exhausted iterations without a final answer")
}

// schemaFor builds the bare JSON Schema property map (plus the separate
// required-names list) for one tool descriptor. anthropic.ToolInputSchemaParam
// already supplies "type":"object" itself, so neither is wrapped here.
func schemaFor(d registry.Descriptor) (map[string]interface{}, []string) {
	props := make(map[string]interface{}, len(d.Params))
	var required []string
	for _, p := range d.Params {
		prop := map[string]interface{}{"type": string(p.Type), "description": p.Description}
		if len(p.OneOf) > 0 {
			prop["enum"] = p.OneOf
		}
		props[p.Name] = prop
		if p.Required {
			required = append(required, p.Name)
		}
	}
	return props, required
}

func tail(history []anthropic.MessageParam, n int) []anthropic.MessageParam {
	if len(history) <= n {
		out := make([]anthropic.MessageParam, len(history))
		copy(out, history)
		return out
	}
	out := make([]anthropic.MessageParam, n)
	copy(out, history[len(history)-n:])
	return out
}
