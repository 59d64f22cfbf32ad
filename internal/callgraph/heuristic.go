package callgraph

import (
	"bufio"
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

var funcDeclRe = regexp.MustCompile(`^func\s+(?:\([^)]*\)\s*)?([A-Za-z_][A-Za-z0-9_]*)\s*\(`)

// HeuristicAnalyzer is a conservative reachability analyzer for Go source:
// it collects every `func` declaration, then counts call-site occurrences
// of each function's name across the tree. A function referenced nowhere
// outside its own declaration is reported unreachable, excluding the
// language's own implicit entry points (main, init, exported Test/Benchmark
// functions). This is deliberately simple relative to a real call graph —
// it cannot see interface satisfaction, reflection, or cross-package
// aliasing — hence the lowered Confidence on every verdict it produces.
type HeuristicAnalyzer struct{}

// NewHeuristicAnalyzer constructs a HeuristicAnalyzer.
func NewHeuristicAnalyzer() *HeuristicAnalyzer { return &HeuristicAnalyzer{} }

const heuristicConfidence = 0.55

func (h *HeuristicAnalyzer) Analyze(ctx context.Context, repoDir string) ([]Reachability, error) {
	symbols, sourceByFile, err := collectFuncSymbols(repoDir)
	if err != nil {
		return nil, err
	}

	callCounts := make(map[string]int, len(symbols))
	for _, src := range sourceByFile {
		for name, n := range counts(src) {
			callCounts[name] += n
		}
	}

	out := make([]Reachability, 0, len(symbols))
	for _, sym := range symbols {
		if isImplicitEntryPoint(sym.Name) {
			out = append(out, Reachability{Symbol: sym, Reachable: true, Confidence: 1.0})
			continue
		}
		// A call count of 1 means the only occurrence of the identifier is
		// the declaration itself.
		reachable := callCounts[sym.Name] > 1
		out = append(out, Reachability{Symbol: sym, Reachable: reachable, Confidence: heuristicConfidence})
	}
	return out, nil
}

func isImplicitEntryPoint(name string) bool {
	if name == "main" || name == "init" {
		return true
	}
	if strings.HasPrefix(name, "Test") || strings.HasPrefix(name, "Benchmark") || strings.HasPrefix(name, "Example") || strings.HasPrefix(name, "Fuzz") {
		return true
	}
	return false
}

func collectFuncSymbols(repoDir string) ([]Symbol, map[string]string, error) {
	var symbols []Symbol
	sourceByFile := map[string]string{}

	err := filepath.WalkDir(repoDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			name := d.Name()
			if name == "vendor" || name == ".git" || name == "node_modules" {
				return filepath.SkipDir
			}
			return nil
		}
		if !strings.HasSuffix(path, ".go") || strings.HasSuffix(path, "_test.go") {
			return nil
		}
		content, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read %s: %w", path, err)
		}
		sourceByFile[path] = string(content)
		relPath, relErr := filepath.Rel(repoDir, path)
		if relErr != nil {
			relPath = path
		}
		relPath = filepath.ToSlash(relPath)

		scanner := bufio.NewScanner(strings.NewReader(string(content)))
		lineNum := 0
		for scanner.Scan() {
			lineNum++
			line := scanner.Text()
			m := funcDeclRe.FindStringSubmatch(line)
			if m == nil {
				continue
			}
			symbols = append(symbols, Symbol{
				FilePath:  relPath,
				Name:      m[1],
				LineStart: lineNum,
				LineEnd:   lineNum,
			})
		}
		return nil
	})
	if err != nil {
		return nil, nil, fmt.Errorf("walk %s: %w", repoDir, err)
	}
	return symbols, sourceByFile, nil
}

func counts(src string) map[string]int {
	out := map[string]int{}
	for _, m := range identifierRe.FindAllString(src, -1) {
		name := strings.TrimSuffix(m, "(")
		out[name]++
	}
	return out
}

var identifierRe = regexp.MustCompile(`[A-Za-z_][A-Za-z0-9_]*\(`)
