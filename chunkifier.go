package main

import (
	"fmt"

	"github.com/gsannikov/2ndBrain-RAG/docstore"
)

type DefaultChunkfier struct {
	chunkSize    int
	chunkOverlap int
}

// NewChunkfier rejects overlap >= size up front: with a non-positive step the
// window start would never advance.
func NewChunkfier(size int, overlap int) (*DefaultChunkfier, error) {
	if size <= 0 {
		return nil, fmt.Errorf("chunk size must be positive, got %d", size)
	}
	if overlap < 0 {
		return nil, fmt.Errorf("chunk overlap must not be negative, got %d", overlap)
	}
	if overlap >= size {
		return nil, fmt.Errorf("chunk overlap %d must be smaller than chunk size %d", overlap, size)
	}

	return &DefaultChunkfier{chunkSize: size, chunkOverlap: overlap}, nil
}

// Chunkify splits text into overlapping windows. Each window after the first
// starts at the previous window's end minus the overlap; the last window is
// the one clamped at the end of the text. Offsets are byte offsets into the
// original text, so a chunk's span can be sliced back out of it later.
func (c *DefaultChunkfier) Chunkify(text string) []docstore.Chunk {
	l := len(text)
	if l == 0 {
		return []docstore.Chunk{}
	}

	step := c.chunkSize - c.chunkOverlap
	pos := 0
	res := make([]docstore.Chunk, 0, l/step+1)

	for pos < l {
		end := min(pos+c.chunkSize, l)
		res = append(res, docstore.Chunk{
			Start: pos,
			End:   end,
			Text:  text[pos:end],
		})
		if end-pos < c.chunkSize {
			break
		}

		pos = end - c.chunkOverlap
	}

	return res
}
