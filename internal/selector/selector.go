// Package selector implements the Phase-1 Category Selector (SPEC_FULL
// §4.5): keyword prefilter, then a constrained LLM round, then a
// first-enabled-category fallback. The selector never fails a request —
// step 3 always produces a category as long as at least one is enabled.
package selector

import (
	"context"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"

	"github.com/steveyegge/trackergw/internal/llm"
	"github.com/steveyegge/trackergw/internal/registry"
)

// Source records which of the three steps produced the category (spec
// §4.5 output contract).
type Source string

const (
	SourceKeyword  Source = "keyword"
	SourceModel    Source = "model"
	SourceFallback Source = "fallback"
)

// Decision is the Selector's output.
type Decision struct {
	Category  registry.Category
	Source    Source
	Reasoning string
}

// keywordTerms maps each category to the distinguishing terms that select
// it without invoking the model (spec §4.5 step 1's example list).
var keywordTerms = map[registry.Category][]string{
	registry.CategoryTrackerAnalytics: {
		"sprint", "backlog", "bug", "velocity", "throughput", "workload", "cycle", "release",
	},
	registry.CategoryCacheControl: {
		"cache",
	},
}

const selectorToolName = "select_category"

// Selector runs the three-step category resolution.
type Selector struct {
	llm *llm.Client
}

// New constructs a Selector bound to one LLM client.
func New(client *llm.Client) *Selector {
	return &Selector{llm: client}
}

// Select resolves a category for utterance against the enabled set.
func (s *Selector) Select(ctx context.Context, utterance string, enabled map[registry.Category]bool) Decision {
	if cat, ok := keywordMatch(utterance, enabled); ok {
		return Decision{Category: cat, Source: SourceKeyword}
	}

	if cat, reasoning, ok := s.modelMatch(ctx, utterance, enabled); ok {
		return Decision{Category: cat, Source: SourceModel, Reasoning: reasoning}
	}

	if cat, ok := registry.FirstEnabled(enabled); ok {
		return Decision{Category: cat, Source: SourceFallback}
	}
	// No category enabled at all: still must return something so the
	// Tool-Loop Runtime can report "no tools enabled" cleanly rather than
	// the Selector itself failing the request.
	return Decision{Category: registry.CategoryTrackerCore, Source: SourceFallback}
}

func keywordMatch(utterance string, enabled map[registry.Category]bool) (registry.Category, bool) {
	lower := strings.ToLower(utterance)
	for _, cat := range registry.AllCategories {
		if !enabled[cat] {
			continue
		}
		for _, term := range keywordTerms[cat] {
			if strings.Contains(lower, term) {
				return cat, true
			}
		}
	}
	return "", false
}

func (s *Selector) modelMatch(ctx context.Context, utterance string, enabled map[registry.Category]bool) (registry.Category, string, bool) {
	if s.llm == nil {
		return "", "", false
	}

	var names []string
	for _, cat := range registry.AllCategories {
		if enabled[cat] {
			names = append(names, string(cat))
		}
	}
	if len(names) == 0 {
		return "", "", false
	}

	resp, err := s.llm.Complete(ctx, llm.Request{
		System: "You are a routing classifier. Call select_category exactly once with the single best-matching category for the user's message. Do not answer the question.",
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(utterance)),
		},
		Tools: []llm.Tool{{
			Name:        selectorToolName,
			Description: "Selects one category from the enumerated set that best matches the user's message.",
			Properties: map[string]interface{}{
				"category": map[string]interface{}{
					"type": "string",
					"enum": names,
				},
			},
			Required: []string{"category"},
		}},
		ForceTool: selectorToolName,
		MaxTokens: 100,
	})
	if err != nil {
		return "", "", false
	}
	if len(resp.ToolCalls) == 0 {
		return "", "", false
	}

	var args struct {
		Category string `json:"category"`
	}
	if decodeErr := decodeInput(resp.ToolCalls[0].Input, &args); decodeErr != nil {
		return "", "", false
	}
	cat, ok := registry.ValidCategory(args.Category)
	if !ok || !enabled[cat] {
		return "", "", false
	}
	return cat, "model selected " + args.Category, true
}
