// Copyright (c) 2025 Northbound System
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// HTTPChatClient is a Client for any OpenAI-compatible chat-completions
// endpoint, generalized from the-hive's internal/ai.AskQuestion (which
// hardcoded api.openai.com and a single yes/no prompt shape) into a
// reusable broad-scan model backend: configurable endpoint, model name,
// and system/user prompt pair, plain JSON over net/http with no SDK.
type HTTPChatClient struct {
	modelID    string
	model      string
	endpoint   string
	apiKey     string
	httpClient *http.Client
}

// NewHTTPChatClient builds a Client against a generic OpenAI-compatible
// endpoint (used for broad-scan "model #2" and for local/self-hosted
// models that speak the same wire format).
func NewHTTPChatClient(modelID, endpoint, apiKey, model string) *HTTPChatClient {
	return &HTTPChatClient{
		modelID:    modelID,
		model:      model,
		endpoint:   endpoint,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 60 * time.Second},
	}
}

func (c *HTTPChatClient) ModelID() string { return c.modelID }

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens"`
	Temperature float64       `json:"temperature"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
	Model string `json:"model"`
}

// Complete posts a single-turn chat request and returns the first choice.
func (c *HTTPChatClient) Complete(ctx context.Context, req Request) (Response, error) {
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 1024
	}

	messages := []chatMessage{}
	if req.SystemPrompt != "" {
		messages = append(messages, chatMessage{Role: "system", Content: req.SystemPrompt})
	}
	messages = append(messages, chatMessage{Role: "user", Content: req.Prompt})

	body, err := json.Marshal(chatRequest{
		Model:       c.model,
		Messages:    messages,
		MaxTokens:   maxTokens,
		Temperature: req.Temperature,
	})
	if err != nil {
		return Response{}, fmt.Errorf("marshal chat request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return Response{}, fmt.Errorf("build chat request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return Response{}, fmt.Errorf("chat completion request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(resp.Body)
		return Response{}, fmt.Errorf("chat completion %s returned %d: %s", c.endpoint, resp.StatusCode, string(raw))
	}

	var parsed chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return Response{}, fmt.Errorf("decode chat response: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return Response{}, fmt.Errorf("chat completion %s returned no choices", c.endpoint)
	}

	return Response{
		Content: parsed.Choices[0].Message.Content,
		Model:   c.modelID,
		Usage: Usage{
			InputTokens:  parsed.Usage.PromptTokens,
			OutputTokens: parsed.Usage.CompletionTokens,
		},
	}, nil
}
