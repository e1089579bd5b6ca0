package indexer

import (
	"fmt"
	"strings"

	"github.com/pkoukk/tiktoken-go"
)

// boundaryLookback is how many lines the chunker scans backward for a
// declaration boundary when a chunk overflows.
const boundaryLookback = 20

// Chunker splits file content into token-bounded, boundary-aligned,
// overlapping chunks. The tokenizer is pure and shared process-wide.
type Chunker struct {
	tokenizer  *tiktoken.Tiktoken
	boundaries *BoundaryScanner
}

// ChunkOptions controls one chunking run
type ChunkOptions struct {
	ChunkSize    int // token budget per chunk
	ChunkOverlap int // token budget for trailing-line overlap
	Language     string
}

// TextChunk is one emitted span with 1-based inclusive line metadata
type TextChunk struct {
	Content    string
	StartLine  int
	EndLine    int
	TokenCount int
}

// NewChunker creates a chunker using the cl100k_base encoding, the BPE
// used by the embedding provider's small text models.
func NewChunker() (*Chunker, error) {
	tokenizer, err := tiktoken.GetEncoding("cl100k_base")
	if err != nil {
		return nil, fmt.Errorf("failed to get tokenizer: %w", err)
	}
	return &Chunker{
		tokenizer:  tokenizer,
		boundaries: NewBoundaryScanner(),
	}, nil
}

// CountTokens returns the token count of text
func (c *Chunker) CountTokens(text string) int {
	return len(c.tokenizer.Encode(text, nil, nil))
}

// Chunk splits content into chunks of at most opts.ChunkSize tokens, split
// at declaration boundaries where one is found within the look-back window,
// with up to opts.ChunkOverlap tokens of trailing lines carried into the
// next chunk. A single line over the budget is emitted as one oversized
// chunk. Whitespace-only chunks are dropped.
func (c *Chunker) Chunk(content string, opts ChunkOptions) []TextChunk {
	if strings.TrimSpace(content) == "" {
		return nil
	}

	lines := strings.Split(content, "\n")
	lineTokens := make([]int, len(lines))
	for i, line := range lines {
		lineTokens[i] = len(c.tokenizer.Encode(line, nil, nil))
	}

	// AST declaration lines take precedence for grammared languages; the
	// regex table covers the rest.
	declLines, useAST := c.boundaries.DeclarationLines(opts.Language, content)
	isBoundary := func(i int) bool {
		if useAST {
			return declLines[i]
		}
		return IsBoundaryLine(lines[i], opts.Language)
	}

	var chunks []TextChunk
	curStart := 0
	curTokens := 0

	emit := func(end int) {
		text := strings.Join(lines[curStart:end], "\n")
		if strings.TrimSpace(text) == "" {
			return
		}
		tokens := 0
		for j := curStart; j < end; j++ {
			tokens += lineTokens[j]
		}
		chunks = append(chunks, TextChunk{
			Content:    text,
			StartLine:  curStart + 1,
			EndLine:    end,
			TokenCount: tokens,
		})
	}

	for i := 0; i < len(lines); i++ {
		if curTokens+lineTokens[i] > opts.ChunkSize && i > curStart {
			// Overflow: look back for a declaration to split before.
			split := i
			lookback := i - boundaryLookback
			if lookback <= curStart {
				lookback = curStart + 1
			}
			for j := i - 1; j >= lookback; j-- {
				if isBoundary(j) {
					split = j
					break
				}
			}

			emit(split)

			// Carry trailing lines of the committed chunk into the next
			// chunk while they fit the overlap budget. The next chunk's
			// start is pulled back to the first overlap line.
			overlapStart := split
			overlapTokens := 0
			for j := split - 1; j > curStart; j-- {
				if overlapTokens+lineTokens[j] > opts.ChunkOverlap {
					break
				}
				overlapTokens += lineTokens[j]
				overlapStart = j
			}

			curStart = overlapStart
			curTokens = 0
			for j := curStart; j < i; j++ {
				curTokens += lineTokens[j]
			}
		}
		curTokens += lineTokens[i]
	}

	emit(len(lines))
	return chunks
}
