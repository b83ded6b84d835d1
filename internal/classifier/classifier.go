// Package classifier is the LLM-backed worker contract from spec
// section 4.8: the only component allowed to mutate a record's type
// after initial write. Grounded on
// teradata-labs-loom/pkg/llm/bedrock/client_sdk.go's
// anthropic-sdk-go usage pattern (MessageNewParams, Messages.New,
// Usage accounting) and on original_source/scripts/memory/classification_worker.py
// for the exact confidence threshold and prompt contract.
package classifier

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/hiddenhistory/memctl/internal/types"
)

// ConfidenceThreshold is the minimum classifier confidence required to
// overwrite a record's write-time type guess (spec section 4.3).
const ConfidenceThreshold = 0.7

const defaultModel = "claude-3-5-haiku-20241022"

// Result is the classifier's output contract, spec section 4.8 verbatim.
type Result struct {
	ClassifiedType   types.MemoryType
	Confidence       float64
	ProviderUsed     string
	Reasoning        string
	WasReclassified  bool
	ModelName        string
	InputTokens      int
	OutputTokens     int
}

// Client wraps the Anthropic Messages API for classification calls.
type Client struct {
	sdk   anthropic.Client
	model string
}

// New builds a Client. apiKey is read by the caller from config/env and
// passed in explicitly — this package never reads the environment itself.
func New(apiKey string) *Client {
	return &Client{
		sdk:   anthropic.NewClient(option.WithAPIKey(apiKey)),
		model: defaultModel,
	}
}

// NewWithBaseURL builds a Client pointed at a custom API base URL —
// used by daemon tests to exercise the classifier loop against an
// httptest server instead of the real Anthropic API.
func NewWithBaseURL(apiKey, baseURL string) *Client {
	return &Client{
		sdk:   anthropic.NewClient(option.WithAPIKey(apiKey), option.WithBaseURL(baseURL)),
		model: defaultModel,
	}
}

type classification struct {
	Type       string  `json:"type"`
	Confidence float64 `json:"confidence"`
	Reasoning  string  `json:"reasoning"`
}

// Classify asks the LLM to refine currentType for content (already
// truncated to the classification queue's 2000-char cap by the caller).
// provider is accepted for interface fidelity with spec section 4.8's
// optional provider override; this client only ever calls Anthropic.
func (c *Client) Classify(ctx context.Context, content string, collection types.Collection, currentType types.MemoryType, provider string) (Result, error) {
	prompt := buildPrompt(content, collection, currentType)

	message, err := c.sdk.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(c.model),
		MaxTokens: 256,
		System: []anthropic.TextBlockParam{
			{Text: "You are a precise content classifier for a developer memory system. Respond only with a single JSON object: {\"type\": string, \"confidence\": number between 0 and 1, \"reasoning\": short string}."},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		return Result{}, &types.ClassifierError{Err: err}
	}

	var text strings.Builder
	for _, block := range message.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}

	var parsed classification
	if err := json.Unmarshal([]byte(extractJSON(text.String())), &parsed); err != nil {
		return Result{}, &types.ClassifierError{Err: fmt.Errorf("unparseable classifier response: %w", err)}
	}

	classifiedType := types.MemoryType(parsed.Type)
	return Result{
		ClassifiedType:  classifiedType,
		Confidence:      parsed.Confidence,
		ProviderUsed:    "anthropic",
		Reasoning:       parsed.Reasoning,
		WasReclassified: parsed.Confidence >= ConfidenceThreshold && classifiedType != currentType,
		ModelName:       c.model,
		InputTokens:     int(message.Usage.InputTokens),
		OutputTokens:    int(message.Usage.OutputTokens),
	}, nil
}

func buildPrompt(content string, collection types.Collection, currentType types.MemoryType) string {
	return fmt.Sprintf(
		"Collection: %s\nCurrent type guess: %s\n\nContent:\n%s\n\nClassify the true type of this content.",
		collection, currentType, content,
	)
}

// extractJSON trims leading/trailing prose a model sometimes wraps
// around the JSON object despite instructions.
func extractJSON(s string) string {
	start := strings.IndexByte(s, '{')
	end := strings.LastIndexByte(s, '}')
	if start < 0 || end < 0 || end < start {
		return s
	}
	return s[start : end+1]
}
