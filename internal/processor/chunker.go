// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch

// Package processor implements the code-aware chunking step of the
// Embeddings Worker (spec.md §4.3): splitting a source file into the
// function/class/method/module/block units the vector index indexes
// against, instead of the fixed-size sentence windows a documentation
// chunker would use. The real symbol table (exact boundaries, nested
// scopes, language-correct parsing) is the external tokenizer/AST
// capability spec.md's Non-goals name; this package is the seam a real
// analyzer would plug into, standing in with brace/indentation heuristics
// in the meantime.
package processor

import (
	"path/filepath"
	"regexp"
	"strings"

	"github.com/northbound/codewatch/internal/model"
)

// Chunk is one code-aware excerpt of a source file, before it is turned
// into a model.VectorIndexPayload by the embeddings worker (which knows
// the repository/commit/language context a bare file body does not).
type Chunk struct {
	Type       model.ChunkType
	Name       string
	ParentName string
	LineStart  int // 1-indexed, inclusive
	LineEnd    int // 1-indexed, inclusive
	Content    string
}

// Chunker splits source files into symbol-level chunks, falling back to
// fixed-size prose windows (the teacher's original algorithm) for files
// whose language isn't recognized or that contain no detectable symbols.
type Chunker struct {
	proseChunkSize    int
	proseChunkOverlap int
}

// NewChunker creates a new chunker with the teacher's original prose
// fallback settings: ~1000 characters per chunk with 100 character overlap.
func NewChunker() *Chunker {
	return &Chunker{proseChunkSize: 1000, proseChunkOverlap: 100}
}

// languageExtensions maps a file extension to the language name stamped
// onto VectorIndexPayload.Language.
var languageExtensions = map[string]string{
	".go":    "go",
	".py":    "python",
	".rb":    "ruby",
	".js":    "javascript",
	".jsx":   "javascript",
	".mjs":   "javascript",
	".ts":    "typescript",
	".tsx":   "typescript",
	".java":  "java",
	".kt":    "kotlin",
	".c":     "c",
	".h":     "c",
	".cpp":   "cpp",
	".cc":    "cpp",
	".hpp":   "cpp",
	".cs":    "csharp",
	".php":   "php",
	".rs":    "rust",
	".swift": "swift",
	".scala": "scala",
}

var indentLanguages = map[string]bool{"python": true, "ruby": true}

// LanguageForPath returns the language name ChunkFile would key off of for
// path, or "" for an unrecognized extension (prose files, config, markup).
func LanguageForPath(path string) string {
	return languageExtensions[strings.ToLower(filepath.Ext(path))]
}

// ChunkFile splits content (the body of the file at path) into code-aware
// chunks. Unrecognized languages and files with no detected symbols fall
// back to chunkProse's fixed-size prose windows, tagged as ChunkBlock.
func (c *Chunker) ChunkFile(path, content string) ([]Chunk, error) {
	language := LanguageForPath(path)

	var chunks []Chunk
	switch {
	case indentLanguages[language]:
		chunks = c.chunkIndented(content, language)
	case language != "":
		chunks = c.chunkBraced(content)
	}

	if len(chunks) == 0 {
		return c.chunkProse(path, content)
	}
	return chunks, nil
}

// --- brace-based languages (go, java, c/c++, c#, js/ts, rust, php, swift) ---

var braceClassPatterns = []*regexp.Regexp{
	regexp.MustCompile(`^\s*(?:export\s+)?(?:public\s+|private\s+|protected\s+|internal\s+|abstract\s+|final\s+|sealed\s+)*class\s+(\w+)`),
	regexp.MustCompile(`^\s*(?:export\s+)?(?:public\s+)?interface\s+(\w+)`),
	regexp.MustCompile(`^\s*type\s+(\w+)\s+struct\s*\{`),
	regexp.MustCompile(`^\s*(?:pub\s+)?struct\s+(\w+)`),
	regexp.MustCompile(`^\s*(?:pub\s+)?impl(?:<[^>]*>)?\s+(?:\w+\s+for\s+)?(\w+)`),
}

var braceFuncPatterns = []*regexp.Regexp{
	regexp.MustCompile(`^\s*func\s+(?:\([^)]*\)\s+)?(\w+)\s*[\[(]`),
	regexp.MustCompile(`^\s*(?:export\s+)?(?:default\s+)?(?:async\s+)?function\s*\*?\s+(\w+)\s*\(`),
	regexp.MustCompile(`^\s*(?:pub\s+)?(?:async\s+)?fn\s+(\w+)\s*[<(]`),
	regexp.MustCompile(`^\s*(?:public|private|protected|internal)\s+(?:static\s+)?(?:async\s+)?(?:override\s+)?[\w<>\[\],.?]+\s+(\w+)\s*\([^;{]*\)\s*\{?\s*$`),
}

// goReceiverRe captures a Go method's receiver type ("func (inv *Invoice)
// Apply(" -> "Invoice"), which stands in for an enclosing class block.
var goReceiverRe = regexp.MustCompile(`^\s*func\s+\(\s*(?:\w+\s+)?\*?\s*(\w+)`)

func (c *Chunker) chunkBraced(content string) []Chunk {
	lines := strings.Split(content, "\n")
	var chunks []Chunk
	type scope struct {
		name     string
		exitLine int
	}
	var stack []scope

	for i := 0; i < len(lines); i++ {
		for len(stack) > 0 && stack[len(stack)-1].exitLine < i {
			stack = stack[:len(stack)-1]
		}
		parent := ""
		if len(stack) > 0 {
			parent = stack[len(stack)-1].name
		}

		if name := firstMatch(braceClassPatterns, lines[i]); name != "" {
			end := braceBlockEnd(lines, i)
			chunks = append(chunks, Chunk{
				Type: model.ChunkClass, Name: name, ParentName: parent,
				LineStart: i + 1, LineEnd: end + 1, Content: strings.Join(lines[i:end+1], "\n"),
			})
			stack = append(stack, scope{name: name, exitLine: end})
			continue
		}

		if name := firstMatch(braceFuncPatterns, lines[i]); name != "" {
			end := braceBlockEnd(lines, i)
			ctype := model.ChunkFunction
			if parent == "" {
				if m := goReceiverRe.FindStringSubmatch(lines[i]); m != nil {
					parent = m[1]
				}
			}
			if parent != "" {
				ctype = model.ChunkMethod
			}
			chunks = append(chunks, Chunk{
				Type: ctype, Name: name, ParentName: parent,
				LineStart: i + 1, LineEnd: end + 1, Content: strings.Join(lines[i:end+1], "\n"),
			})
			i = end
		}
	}

	return withLeadingModule(lines, chunks)
}

// braceBlockEnd returns the index of the line that closes the brace block
// opened on or after start, by tracking net brace depth. If no opening
// brace is found within a few lines (an interface method signature, an
// abstract declaration ending in ';'), the declaration line itself is
// treated as a single-line chunk.
func braceBlockEnd(lines []string, start int) int {
	depth := 0
	opened := false
	limit := start + 5
	for i := start; i < len(lines); i++ {
		for _, ch := range lines[i] {
			switch ch {
			case '{':
				depth++
				opened = true
			case '}':
				depth--
			}
		}
		if opened && depth <= 0 {
			return i
		}
		if !opened && i >= limit {
			return start
		}
	}
	return len(lines) - 1
}

func firstMatch(patterns []*regexp.Regexp, line string) string {
	for _, re := range patterns {
		if m := re.FindStringSubmatch(line); m != nil {
			return m[len(m)-1]
		}
	}
	return ""
}

// --- indentation-based languages (python, ruby) ---

var indentDeclPatterns = []struct {
	re        *regexp.Regexp
	chunkType model.ChunkType
}{
	{regexp.MustCompile(`^(\s*)class\s+(\w+)`), model.ChunkClass},
	{regexp.MustCompile(`^(\s*)module\s+(\w+)`), model.ChunkClass},
	{regexp.MustCompile(`^(\s*)def\s+([\w.!?]+)`), model.ChunkFunction},
}

func (c *Chunker) chunkIndented(content, language string) []Chunk {
	lines := strings.Split(content, "\n")
	var chunks []Chunk
	type scope struct {
		name   string
		indent int
	}
	var stack []scope

	for i := 0; i < len(lines); i++ {
		indent := leadingWhitespace(lines[i])

		for len(stack) > 0 && indent <= stack[len(stack)-1].indent && strings.TrimSpace(lines[i]) != "" {
			stack = stack[:len(stack)-1]
		}

		var name string
		var ctype model.ChunkType
		for _, d := range indentDeclPatterns {
			if m := d.re.FindStringSubmatch(lines[i]); m != nil {
				name = m[len(m)-1]
				ctype = d.chunkType
				break
			}
		}
		if name == "" {
			continue
		}

		parent := ""
		if len(stack) > 0 {
			parent = stack[len(stack)-1].name
		}
		if ctype == model.ChunkFunction && parent != "" {
			ctype = model.ChunkMethod
		}

		end := indentBlockEnd(lines, i, indent)
		chunks = append(chunks, Chunk{
			Type: ctype, Name: name, ParentName: parent,
			LineStart: i + 1, LineEnd: end + 1, Content: strings.Join(lines[i:end+1], "\n"),
		})
		if ctype == model.ChunkClass {
			stack = append(stack, scope{name: name, indent: indent})
		}
	}

	return withLeadingModule(lines, chunks)
}

// indentBlockEnd returns the last line belonging to the block opened at
// start, which ends at the line before the next non-blank line whose
// indentation is no greater than the declaration's own.
func indentBlockEnd(lines []string, start, declIndent int) int {
	for i := start + 1; i < len(lines); i++ {
		if strings.TrimSpace(lines[i]) == "" {
			continue
		}
		if leadingWhitespace(lines[i]) <= declIndent {
			return i - 1
		}
	}
	return len(lines) - 1
}

func leadingWhitespace(line string) int {
	n := 0
	for _, ch := range line {
		if ch == ' ' {
			n++
		} else if ch == '\t' {
			n += 4
		} else {
			break
		}
	}
	return n
}

// withLeadingModule prepends one ChunkModule covering the lines before the
// first detected symbol (imports, package/namespace declarations,
// top-level constants), when that preamble is substantial enough to be
// worth indexing on its own.
func withLeadingModule(lines []string, chunks []Chunk) []Chunk {
	if len(chunks) == 0 {
		return chunks
	}
	firstLine := chunks[0].LineStart - 1
	if firstLine < 3 {
		return chunks
	}
	preamble := strings.TrimSpace(strings.Join(lines[:firstLine], "\n"))
	if preamble == "" {
		return chunks
	}
	module := Chunk{Type: model.ChunkModule, LineStart: 1, LineEnd: firstLine, Content: preamble}
	return append([]Chunk{module}, chunks...)
}

// --- prose fallback, the teacher's original sentence-aware algorithm ---

// chunkProse splits content into overlapping fixed-size windows, trying to
// avoid cutting sentences, for files with no recognized code structure
// (markdown, plain text, unrecognized languages).
func (c *Chunker) chunkProse(path, content string) ([]Chunk, error) {
	texts, err := c.chunkText(content)
	if err != nil {
		return nil, err
	}
	name := filepath.Base(path)
	chunks := make([]Chunk, 0, len(texts))
	lineOffset := 1
	for _, t := range texts {
		lineCount := strings.Count(t, "\n") + 1
		chunks = append(chunks, Chunk{
			Type: model.ChunkBlock, Name: name,
			LineStart: lineOffset, LineEnd: lineOffset + lineCount - 1,
			Content: t,
		})
		lineOffset += lineCount
	}
	return chunks, nil
}

// chunkText is the teacher's original sentence-aware splitter, kept
// verbatim as the fallback path for non-code content.
func (c *Chunker) chunkText(text string) ([]string, error) {
	if len(text) == 0 {
		return []string{}, nil
	}

	var chunks []string
	start := 0
	textLen := len(text)

	for start < textLen {
		end := start + c.proseChunkSize
		if end > textLen {
			end = textLen
		}

		if end < textLen {
			searchStart := end - 200
			if searchStart < start {
				searchStart = start
			}

			bestBreak := end
			for i := end - 1; i >= searchStart; i-- {
				if i < len(text) {
					char := text[i]
					if (char == '.' || char == '!' || char == '?') && i+1 < len(text) {
						nextChar := text[i+1]
						if nextChar == ' ' || nextChar == '\n' || nextChar == '\r' {
							bestBreak = i + 1
							break
						}
					}
					if i+1 < len(text) && char == '\n' && text[i+1] == '\n' {
						bestBreak = i + 2
						break
					}
				}
			}

			if bestBreak > start {
				end = bestBreak
			}
		}

		chunk := strings.TrimSpace(text[start:end])
		if len(chunk) > 0 {
			chunks = append(chunks, chunk)
		}

		if end >= textLen {
			break
		}

		start = end - c.proseChunkOverlap
		if start < 0 {
			start = 0
		}
		if start >= end {
			start = end
		}
	}

	return chunks, nil
}
