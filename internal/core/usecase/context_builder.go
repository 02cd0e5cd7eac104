package usecase

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/kirillkom/agentic-rag/internal/core/domain"
)

var contextDivider = "\n\n" + strings.Repeat("=", 80) + "\n\n"

// ContextBuilder renders selected candidates into the generation context.
type ContextBuilder struct {
	// MaxChars caps the context length in whole blocks. Zero disables the cap.
	MaxChars int
}

func NewContextBuilder(maxChars int) *ContextBuilder {
	if maxChars < 0 {
		maxChars = 0
	}
	return &ContextBuilder{MaxChars: maxChars}
}

// Build returns the context and the number of candidates rendered into it.
// Blocks follow the given order; the first block is always included.
func (b *ContextBuilder) Build(candidates []domain.RankedCandidate) (string, int) {
	var out strings.Builder
	included := 0
	for i, candidate := range candidates {
		block := renderBlock(i+1, candidate)
		if i > 0 {
			block = contextDivider + block
		}
		if b.MaxChars > 0 && i > 0 && out.Len()+len(block) > b.MaxChars {
			break
		}
		out.WriteString(block)
		included++
	}
	return out.String(), included
}

func renderBlock(ordinal int, candidate domain.RankedCandidate) string {
	return fmt.Sprintf("[Source %d: %s, Chunk %s, Relevance: %.2f]\n%s",
		ordinal,
		sourceName(candidate.Source),
		chunkLabel(candidate.ChunkIndex),
		candidate.Score,
		candidate.Text,
	)
}

func sourceName(source string) string {
	source = strings.TrimSpace(source)
	if source == "" {
		return "unknown"
	}
	return filepath.Base(source)
}

func chunkLabel(chunk int) string {
	if chunk < 0 {
		return "?"
	}
	return strconv.Itoa(chunk)
}
