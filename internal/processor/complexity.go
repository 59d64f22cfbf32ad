// Copyright (c) 2025 Northbound System
package processor

import "strings"

// decisionKeywords approximates McCabe cyclomatic complexity by counting
// branch points in source text. This is a text-level heuristic, not a
// parse of the language's control-flow graph: the real computation is the
// external AST capability spec.md's Non-goals name. Counting both the
// keyword and the common short-circuit operators keeps the estimate in the
// same ballpark across the brace and indentation languages ChunkFile
// supports.
var decisionKeywords = []string{
	" if ", "if(", "if (", "\tif ",
	" else if ", "elif ",
	" for ", "for(", "for (", "\tfor ",
	" while ", "while(", "while (",
	" case ", "\tcase ",
	" catch ", " except ", " rescue ",
	"&&", "||", " and ", " or ",
	"?",
}

// EstimateComplexity returns a 1-based cyclomatic complexity estimate for
// a chunk's content: one baseline path plus one for every decision point
// found.
func EstimateComplexity(content string) float64 {
	count := 1
	lower := " " + strings.ToLower(content) + " "
	for _, kw := range decisionKeywords {
		count += strings.Count(lower, kw)
	}
	return float64(count)
}

// EstimateTokens approximates a chunk's token count at roughly four
// characters per token, the same rule of thumb providers document for
// English-like source text.
func EstimateTokens(content string) int {
	return (len(content) + 3) / 4
}
