// Copyright (c) 2025 Northbound System
package aiscan

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/tmc/langchaingo/tools"

	"github.com/northbound/codewatch/internal/llm"
	"github.com/northbound/codewatch/internal/model"
)

const (
	// maxInvestigationIterations bounds the tool-calling loop per
	// spec.md §4.5's MAX_INVESTIGATION_ITERATIONS. An issue that exhausts
	// its budget without a verdict is reported inconclusive.
	maxInvestigationIterations = 6
	toolCallTimeout            = 20 * time.Second
)

var investigationSystemPrompt = fmt.Sprintf(`You are investigating a single static-analysis finding against the actual repository to confirm or refute it.

You have these tools available:
- read_file: input is JSON {"path": string, "line_start": int, "line_end": int} (line_start/line_end optional, 1-indexed, inclusive). Returns the requested lines.
- search: input is JSON {"query": string, "path_glob": string} (path_glob optional). Returns matching lines with file:line prefixes.
- cli_run: input is JSON {"command": string}. Runs a read-only shell command inside the repository checkout with a wallclock limit. Destructive or network commands are refused.

On each turn respond with ONLY a JSON object of one of these two shapes:
  {"action": "use_tool", "tool": "read_file"|"search"|"cli_run", "input": <tool input object>}
  {"action": "conclude", "verdict": "confirmed"|"refuted"|"inconclusive", "explanation": string}

You have at most %d turns. If you have not concluded by your final turn, your next response must be a "conclude".`, maxInvestigationIterations)

// sandboxTools builds the fixed, typed tool set spec.md §4.5 names, rooted
// at repoDir. Every tool call the Investigator makes goes through one of
// these three; unsafe tools (network, destructive) are never offered.
func sandboxTools(repoDir string) []tools.Tool {
	return []tools.Tool{
		readFileTool{root: repoDir},
		searchTool{root: repoDir},
		cliRunTool{root: repoDir},
	}
}

type readFileTool struct{ root string }

func (readFileTool) Name() string { return "read_file" }
func (readFileTool) Description() string {
	return `read_file(path, line_start?, line_end?): returns the requested lines (or whole file) of a path inside the repository checkout.`
}

func (t readFileTool) Call(ctx context.Context, input string) (string, error) {
	var args struct {
		Path      string `json:"path"`
		LineStart int    `json:"line_start"`
		LineEnd   int    `json:"line_end"`
	}
	if err := json.Unmarshal([]byte(input), &args); err != nil {
		return "", fmt.Errorf("parse read_file input: %w", err)
	}
	full, err := safeJoin(t.root, args.Path)
	if err != nil {
		return "", err
	}
	content, err := os.ReadFile(full)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", args.Path, err)
	}
	if args.LineStart == 0 && args.LineEnd == 0 {
		return string(content), nil
	}
	lines := strings.Split(string(content), "\n")
	start, end := args.LineStart-1, args.LineEnd
	if start < 0 {
		start = 0
	}
	if end > len(lines) || end == 0 {
		end = len(lines)
	}
	if start >= end {
		return "", nil
	}
	return strings.Join(lines[start:end], "\n"), nil
}

type searchTool struct{ root string }

func (searchTool) Name() string { return "search" }
func (searchTool) Description() string {
	return `search(query, path_glob?): returns file:line matches for a literal query within the repository checkout, optionally restricted to a glob.`
}

func (t searchTool) Call(ctx context.Context, input string) (string, error) {
	var args struct {
		Query    string `json:"query"`
		PathGlob string `json:"path_glob"`
	}
	if err := json.Unmarshal([]byte(input), &args); err != nil {
		return "", fmt.Errorf("parse search input: %w", err)
	}
	if args.Query == "" {
		return "", errors.New("search requires a non-empty query")
	}

	var matches []string
	err := filepath.Walk(t.root, func(path string, info os.FileInfo, err error) error {
		if err != nil || info.IsDir() {
			return nil
		}
		rel, relErr := filepath.Rel(t.root, path)
		if relErr != nil {
			return nil
		}
		if args.PathGlob != "" {
			if ok, _ := filepath.Match(args.PathGlob, rel); !ok {
				return nil
			}
		}
		content, readErr := os.ReadFile(path)
		if readErr != nil {
			return nil
		}
		for i, line := range strings.Split(string(content), "\n") {
			if strings.Contains(line, args.Query) {
				matches = append(matches, fmt.Sprintf("%s:%d: %s", rel, i+1, line))
				if len(matches) >= 50 {
					return filepath.SkipAll
				}
			}
		}
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("search: %w", err)
	}
	if len(matches) == 0 {
		return "no matches", nil
	}
	return strings.Join(matches, "\n"), nil
}

// unsafeCommandTokens refuses commands with any plausible side effect or
// network reach; cli_run is read-only by design.
var unsafeCommandTokens = []string{
	"rm ", "sudo", "curl", "wget", "nc ", "ssh", ">>", ">", "chmod", "chown", "mkfs", "dd ", "reboot", "shutdown",
}

type cliRunTool struct{ root string }

func (cliRunTool) Name() string { return "cli_run" }
func (cliRunTool) Description() string {
	return `cli_run(command): runs a read-only shell command inside the repository checkout with a wallclock limit. Network and destructive commands are refused.`
}

func (t cliRunTool) Call(ctx context.Context, input string) (string, error) {
	var args struct {
		Command string `json:"command"`
	}
	if err := json.Unmarshal([]byte(input), &args); err != nil {
		return "", fmt.Errorf("parse cli_run input: %w", err)
	}
	lower := strings.ToLower(args.Command)
	for _, token := range unsafeCommandTokens {
		if strings.Contains(lower, token) {
			return "", fmt.Errorf("command rejected: contains disallowed token %q", token)
		}
	}

	runCtx, cancel := context.WithTimeout(ctx, toolCallTimeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, "sh", "-c", args.Command)
	cmd.Dir = t.root
	out, err := cmd.CombinedOutput()
	if err != nil {
		return string(out), fmt.Errorf("command failed: %w", err)
	}
	return string(out), nil
}

func safeJoin(root, rel string) (string, error) {
	full := filepath.Join(root, rel)
	if !strings.HasPrefix(full, filepath.Clean(root)+string(os.PathSeparator)) && full != filepath.Clean(root) {
		return "", fmt.Errorf("path %q escapes repository checkout", rel)
	}
	return full, nil
}

// Investigator runs the bounded tool-calling loop spec.md §4.5 describes
// against a single merged issue, using client to drive a ReAct-style
// action/observation cycle over the sandboxed tool set.
type Investigator struct {
	client llm.Client
}

// NewInvestigator builds an Investigator. client is the model designated
// by config.LLMConfig.InvestigatorModelID (internal/llm.Registry.Investigator).
func NewInvestigator(client llm.Client) *Investigator {
	return &Investigator{client: client}
}

type investigatorAction struct {
	Action      string `json:"action"`
	Tool        string `json:"tool"`
	Input       any    `json:"input"`
	Verdict     string `json:"verdict"`
	Explanation string `json:"explanation"`
}

// Investigate runs up to maxInvestigationIterations turns for one issue
// against repoDir, returning an InvestigationResult. An agent that
// exhausts its budget without concluding is reported inconclusive, per
// spec.md §4.5.
func (inv *Investigator) Investigate(ctx context.Context, repoDir string, issue model.Issue) (model.InvestigationResult, error) {
	toolSet := sandboxTools(repoDir)
	toolByName := make(map[string]tools.Tool, len(toolSet))
	for _, tl := range toolSet {
		toolByName[tl.Name()] = tl
	}

	var trace []model.ToolInvocation
	transcript := strings.Builder{}
	fmt.Fprintf(&transcript, "Issue: %s\nFile: %s (lines %d-%d)\nDescription: %s\nEvidence: %s\n",
		issue.Title, issue.FilePath, issue.LineRange.Start, issue.LineRange.End, issue.Description, "")

	for iteration := 1; iteration <= maxInvestigationIterations; iteration++ {
		remaining := maxInvestigationIterations - iteration + 1
		prompt := fmt.Sprintf("%s\nTurns remaining: %d\n", transcript.String(), remaining)

		resp, err := inv.client.Complete(ctx, llm.Request{
			SystemPrompt: investigationSystemPrompt,
			Prompt:       prompt,
			MaxTokens:    1024,
			Temperature:  0.1,
		})
		if err != nil {
			return model.InvestigationResult{}, fmt.Errorf("investigation turn %d: %w", iteration, err)
		}

		var action investigatorAction
		if err := json.Unmarshal([]byte(resp.Content), &action); err != nil {
			return model.InvestigationResult{
				Verdict:     model.VerdictInconclusive,
				Explanation: "agent response was not valid JSON",
				Trace:       trace,
				Iterations:  iteration,
			}, nil
		}

		if action.Action == "conclude" {
			verdict := model.InvestigationVerdict(action.Verdict)
			if verdict != model.VerdictConfirmed && verdict != model.VerdictRefuted {
				verdict = model.VerdictInconclusive
			}
			return model.InvestigationResult{
				Verdict:     verdict,
				Explanation: action.Explanation,
				Trace:       trace,
				Iterations:  iteration,
			}, nil
		}

		tl, ok := toolByName[action.Tool]
		if !ok {
			fmt.Fprintf(&transcript, "Observation: unknown tool %q\n", action.Tool)
			continue
		}

		inputJSON, err := json.Marshal(action.Input)
		if err != nil {
			inputJSON = []byte("{}")
		}

		start := time.Now()
		callCtx, cancel := context.WithTimeout(ctx, toolCallTimeout)
		output, callErr := tl.Call(callCtx, string(inputJSON))
		cancel()
		duration := time.Since(start)

		invocation := model.ToolInvocation{
			Tool:       action.Tool,
			Input:      string(inputJSON),
			Output:     output,
			DurationMS: duration.Milliseconds(),
		}
		if callErr != nil {
			invocation.Error = callErr.Error()
		}
		trace = append(trace, invocation)

		if callErr != nil {
			fmt.Fprintf(&transcript, "Observation: tool %s failed: %s\n", action.Tool, callErr.Error())
		} else {
			fmt.Fprintf(&transcript, "Observation from %s: %s\n", action.Tool, output)
		}
	}

	return model.InvestigationResult{
		Verdict:     model.VerdictInconclusive,
		Explanation: "exhausted investigation iteration budget without a conclusion",
		Trace:       trace,
		Iterations:  maxInvestigationIterations,
	}, nil
}
