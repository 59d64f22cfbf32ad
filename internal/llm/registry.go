// Copyright (c) 2025 Northbound System
package llm

import (
	"context"
	"fmt"

	"github.com/northbound/codewatch/internal/config"
	"github.com/northbound/codewatch/internal/resilience"
)

// guardedClient wraps a Client in a circuit breaker named for its model
// id, so one misbehaving model in the broad-scan registry trips
// independently of the others.
type guardedClient struct {
	inner   Client
	breaker *resilience.Breaker
}

func (g *guardedClient) ModelID() string { return g.inner.ModelID() }

func (g *guardedClient) Complete(ctx context.Context, req Request) (Response, error) {
	var resp Response
	err := g.breaker.Do(ctx, func(ctx context.Context) error {
		var innerErr error
		resp, innerErr = g.inner.Complete(ctx, req)
		return innerErr
	})
	return resp, err
}

// Registry holds one Client per configured broad-scan model, plus the
// investigator model singled out by config.LLMConfig.InvestigatorModelID.
type Registry struct {
	byID       map[string]Client
	order      []string
	investigID string
}

// NewRegistry builds every configured model's Client, wraps each in its
// own circuit breaker, and validates the investigator model id resolves
// to a configured entry.
func NewRegistry(cfg config.LLMConfig) (*Registry, error) {
	reg := &Registry{byID: make(map[string]Client), investigID: cfg.InvestigatorModelID}

	for _, entry := range cfg.Models {
		client, err := buildClient(entry)
		if err != nil {
			return nil, fmt.Errorf("build client for model %q: %w", entry.ID, err)
		}
		reg.byID[entry.ID] = &guardedClient{inner: client, breaker: resilience.New("llm:" + entry.ID)}
		reg.order = append(reg.order, entry.ID)
	}

	if cfg.InvestigatorModelID != "" {
		if _, ok := reg.byID[cfg.InvestigatorModelID]; !ok {
			return nil, fmt.Errorf("investigator_model_id %q is not a configured model", cfg.InvestigatorModelID)
		}
	}

	return reg, nil
}

func buildClient(entry config.LLMModelEntry) (Client, error) {
	switch entry.Provider {
	case "anthropic":
		if entry.APIKey == "" {
			return nil, fmt.Errorf("anthropic model %q requires an api_key", entry.ID)
		}
		return NewAnthropicClient(entry.ID, entry.APIKey, entry.Model), nil
	case "generic_http":
		if entry.Endpoint == "" {
			return nil, fmt.Errorf("generic_http model %q requires an endpoint", entry.ID)
		}
		return NewHTTPChatClient(entry.ID, entry.Endpoint, entry.APIKey, entry.Model), nil
	default:
		return nil, fmt.Errorf("unsupported provider %q", entry.Provider)
	}
}

// BroadScanModels returns every configured broad-scan Client in
// registration order, for internal/aiscan's fan-out.
func (r *Registry) BroadScanModels() []Client {
	clients := make([]Client, 0, len(r.order))
	for _, id := range r.order {
		clients = append(clients, r.byID[id])
	}
	return clients
}

// Investigator returns the model designated for the tool-calling
// investigation loop, if one is configured.
func (r *Registry) Investigator() (Client, bool) {
	if r.investigID == "" {
		return nil, false
	}
	c, ok := r.byID[r.investigID]
	return c, ok
}
