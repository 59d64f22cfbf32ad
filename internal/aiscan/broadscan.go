// Copyright (c) 2025 Northbound System
package aiscan

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/northbound/codewatch/internal/llm"
	"github.com/northbound/codewatch/internal/model"
)

const (
	// broadScanTimeout bounds one model's call; per spec.md §4.5, a model
	// that times out contributes no candidates but the scan continues.
	broadScanTimeout   = 45 * time.Second
	broadScanMaxTokens = 4096
)

const broadScanSystemPrompt = `You are a static analysis reviewer scanning a software repository for bugs, security issues, performance problems, and maintainability concerns.

Review the repository view below and report concrete, file-anchored issues. Respond with ONLY a JSON array, no surrounding prose. Each element must have exactly these fields:
  "dimension": a short category such as "security", "correctness", "performance", "maintainability"
  "severity": one of "critical", "high", "medium", "low"
  "title": a short one-line summary
  "description": a few sentences explaining the issue
  "file": the relative file path the issue was found in
  "line_start": integer line number or null
  "line_end": integer line number or null
  "confidence": a number between 0 and 1
  "evidence": the specific code or pattern that justifies the finding

If you find no issues, respond with an empty JSON array.`

type broadScanResponse struct {
	Dimension   string              `json:"dimension"`
	Severity    model.IssueSeverity `json:"severity"`
	Title       string              `json:"title"`
	Description string              `json:"description"`
	File        string              `json:"file"`
	LineStart   *int                `json:"line_start"`
	LineEnd     *int                `json:"line_end"`
	Confidence  float64             `json:"confidence"`
	Evidence    string              `json:"evidence"`
}

// ModelProgress is reported once per model as its broad-scan call
// finishes, successfully or not, for spec.md §4.5's "progress updates at
// broad-scan granularity (per model completion)".
type ModelProgress struct {
	ModelID       string
	CandidateCount int
}

// BroadScan sends repoDigest to every client in parallel under a shared
// system prompt. A client that times out or returns malformed JSON
// contributes no candidates; onProgress (optional) is invoked once per
// client as its call resolves.
func BroadScan(ctx context.Context, clients []llm.Client, repoDigest string, onProgress func(ModelProgress)) []model.CandidateIssue {
	var (
		mu  sync.Mutex
		all []model.CandidateIssue
		wg  sync.WaitGroup
	)

	for _, client := range clients {
		wg.Add(1)
		go func(c llm.Client) {
			defer wg.Done()
			candidates := callOneModel(ctx, c, repoDigest)
			if onProgress != nil {
				onProgress(ModelProgress{ModelID: c.ModelID(), CandidateCount: len(candidates)})
			}
			if len(candidates) == 0 {
				return
			}
			mu.Lock()
			all = append(all, candidates...)
			mu.Unlock()
		}(client)
	}
	wg.Wait()
	return all
}

func callOneModel(ctx context.Context, client llm.Client, repoDigest string) []model.CandidateIssue {
	callCtx, cancel := context.WithTimeout(ctx, broadScanTimeout)
	defer cancel()

	resp, err := client.Complete(callCtx, llm.Request{
		SystemPrompt: broadScanSystemPrompt,
		Prompt:       repoDigest,
		MaxTokens:    broadScanMaxTokens,
		Temperature:  0.1,
	})
	if err != nil {
		return nil
	}

	var raw []broadScanResponse
	if err := json.Unmarshal([]byte(resp.Content), &raw); err != nil {
		return nil
	}

	out := make([]model.CandidateIssue, 0, len(raw))
	for _, r := range raw {
		out = append(out, model.CandidateIssue{
			ModelID:     client.ModelID(),
			Dimension:   r.Dimension,
			Severity:    r.Severity,
			Title:       r.Title,
			Description: r.Description,
			File:        r.File,
			LineStart:   r.LineStart,
			LineEnd:     r.LineEnd,
			Confidence:  r.Confidence,
			Evidence:    r.Evidence,
		})
	}
	return out
}
