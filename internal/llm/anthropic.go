// Copyright (c) 2025 Northbound System
package llm

import (
	"context"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// AnthropicClient is a Client backed by the native Anthropic Messages API,
// used for the primary broad-scan model (spec.md §4.5's "model #1").
type AnthropicClient struct {
	sdk     anthropic.Client
	modelID string
	model   anthropic.Model
}

// NewAnthropicClient builds a Client for one Anthropic model entry.
func NewAnthropicClient(modelID, apiKey, model string) *AnthropicClient {
	return &AnthropicClient{
		sdk:     anthropic.NewClient(option.WithAPIKey(apiKey)),
		modelID: modelID,
		model:   anthropic.Model(model),
	}
}

func (c *AnthropicClient) ModelID() string { return c.modelID }

// Complete sends one turn to the Messages API and concatenates the text
// blocks of the reply, matching how the-hive's AskQuestion flattens a
// single-turn chat response into a plain string answer.
func (c *AnthropicClient) Complete(ctx context.Context, req Request) (Response, error) {
	maxTokens := int64(req.MaxTokens)
	if maxTokens <= 0 {
		maxTokens = 1024
	}

	params := anthropic.MessageNewParams{
		Model:     c.model,
		MaxTokens: maxTokens,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(req.Prompt)),
		},
	}
	if req.SystemPrompt != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.SystemPrompt}}
	}

	message, err := c.sdk.Messages.New(ctx, params)
	if err != nil {
		return Response{}, fmt.Errorf("anthropic messages.new: %w", err)
	}

	var content string
	for _, block := range message.Content {
		if block.Type == "text" {
			content += block.Text
		}
	}

	return Response{
		Content: content,
		Model:   c.modelID,
		Usage: Usage{
			InputTokens:  int(message.Usage.InputTokens),
			OutputTokens: int(message.Usage.OutputTokens),
		},
	}, nil
}
