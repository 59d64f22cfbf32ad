// Copyright (c) 2025 Northbound System
package cluster

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/northbound/codewatch/internal/llm"
	"github.com/northbound/codewatch/internal/model"
)

const schemaVersion = 1

const insightSystemPrompt = `You are a staff software architect reviewing a static analysis report.
Given the dead-code findings, hot-spot findings, and architecture summary for one
commit, return a JSON array of insights, each with fields: insight_type
(one of "dead_code", "hot_spot", "architecture"), title, description,
priority (one of "high", "medium", "low"), affected_files (array of
strings), evidence, suggested_action. Return ONLY the JSON array.`

// BuildSummary aggregates clustering output into the LLM-ready summary
// spec.md §4.4 step 8 asks for: a health score, the most pressing
// concerns, and counts by finding type.
func BuildSummary(deadCode []model.DeadCodeFinding, hotSpots []model.FileChurnFinding, totalFunctions int) model.ArchitectureSummary {
	counts := map[string]int{
		"dead_code_findings": len(deadCode),
		"hot_spot_findings":  len(hotSpots),
		"functions_analyzed": totalFunctions,
	}

	health := 100
	if totalFunctions > 0 {
		deadRatio := float64(len(deadCode)) / float64(totalFunctions)
		health -= int(deadRatio * 40)
	}
	health -= len(hotSpots) * 2
	if health < 0 {
		health = 0
	}
	if health > 100 {
		health = 100
	}

	var concerns []string
	if len(deadCode) > 0 {
		concerns = append(concerns, fmt.Sprintf("%d unreachable function(s) detected", len(deadCode)))
	}
	if len(hotSpots) > 0 {
		concerns = append(concerns, fmt.Sprintf("%d file(s) with high churn in the last 90 days", len(hotSpots)))
	}

	return model.ArchitectureSummary{HealthScore: health, MainConcerns: concerns, Counts: counts}
}

// GenerateInsights calls the configured LLM client with the architecture
// summary and findings, parsing its structured response into
// SemanticAIInsight rows (spec.md §4.4 step 9). A client response that
// doesn't parse as the expected JSON array is reported as an error rather
// than silently dropped, since insights are the final product of this
// stage.
func GenerateInsights(ctx context.Context, client llm.Client, analysisID string, summary model.ArchitectureSummary, deadCode []model.DeadCodeFinding, hotSpots []model.FileChurnFinding) ([]model.SemanticAIInsight, error) {
	payload, err := json.Marshal(struct {
		Summary  model.ArchitectureSummary `json:"summary"`
		DeadCode []model.DeadCodeFinding   `json:"dead_code"`
		HotSpots []model.FileChurnFinding  `json:"hot_spots"`
	}{summary, deadCode, hotSpots})
	if err != nil {
		return nil, fmt.Errorf("marshal insight request payload: %w", err)
	}

	resp, err := client.Complete(ctx, llm.Request{
		SystemPrompt: insightSystemPrompt,
		Prompt:       string(payload),
		MaxTokens:    2048,
		Temperature:  0.2,
	})
	if err != nil {
		return nil, fmt.Errorf("generate insights: %w", err)
	}

	var raw []struct {
		InsightType     model.InsightType     `json:"insight_type"`
		Title           string                `json:"title"`
		Description     string                `json:"description"`
		Priority        model.InsightPriority `json:"priority"`
		AffectedFiles   []string              `json:"affected_files"`
		Evidence        string                `json:"evidence"`
		SuggestedAction string                `json:"suggested_action"`
	}
	if err := json.Unmarshal([]byte(resp.Content), &raw); err != nil {
		return nil, fmt.Errorf("parse insight response: %w", err)
	}

	insights := make([]model.SemanticAIInsight, 0, len(raw))
	for _, r := range raw {
		insights = append(insights, model.SemanticAIInsight{
			AnalysisID:      analysisID,
			InsightType:     r.InsightType,
			Title:           r.Title,
			Description:     r.Description,
			Priority:        r.Priority,
			AffectedFiles:   r.AffectedFiles,
			Evidence:        r.Evidence,
			SuggestedAction: r.SuggestedAction,
		})
	}
	return insights, nil
}
