// Package chunker splits raw training text into overlapping fixed-size
// windows suitable for embedding. Chunking is pure and deterministic — no
// I/O, no allocation beyond the output slice — so the training pipeline can
// re-chunk a source at any time and get identical output.
package chunker

import "strings"

// Defaults used when Config fields are zero.
const (
	// DefaultSize is the maximum number of characters per chunk.
	DefaultSize = 1000
	// DefaultOverlap is the number of characters shared between consecutive chunks.
	DefaultOverlap = 200
	// DefaultMinLength is the minimum viable chunk length. Trailing fragments
	// shorter than this are discarded rather than embedded as near-empty noise.
	DefaultMinLength = 50
)

// Config holds the chunking window parameters.
type Config struct {
	// Size is the window size in characters. Defaults to 1000 if zero.
	Size int
	// Overlap is the overlap between consecutive windows. Defaults to 200 if
	// zero; clamped below Size.
	Overlap int
	// MinLength is the minimum chunk length to emit. Defaults to 50 if zero.
	MinLength int
}

// Chunker splits text into overlapping windows.
type Chunker struct {
	size      int
	overlap   int
	minLength int
}

// New constructs a Chunker, applying defaults for zero-valued config fields.
// A nil cfg yields a Chunker with all defaults.
func New(cfg *Config) *Chunker {
	if cfg == nil {
		cfg = &Config{}
	}
	size := cfg.Size
	if size <= 0 {
		size = DefaultSize
	}
	overlap := cfg.Overlap
	if overlap <= 0 {
		overlap = DefaultOverlap
	}
	if overlap >= size {
		overlap = size / 5
	}
	minLength := cfg.MinLength
	if minLength <= 0 {
		minLength = DefaultMinLength
	}
	return &Chunker{size: size, overlap: overlap, minLength: minLength}
}

// Chunk splits text into overlapping windows of the configured size, sliding
// forward by size-overlap each step. Fragments shorter than the minimum
// viable length are discarded. An empty or whitespace-only input yields zero
// chunks.
func (c *Chunker) Chunk(text string) []string {
	text = strings.TrimSpace(text)
	if len(text) == 0 {
		return nil
	}

	// Window arithmetic is in characters, not bytes, so multibyte text gets
	// full-size windows and boundaries never split a rune.
	runes := []rune(text)

	var chunks []string
	step := c.size - c.overlap

	for start := 0; start < len(runes); start += step {
		end := start + c.size
		if end > len(runes) {
			end = len(runes)
		}
		if end-start >= c.minLength {
			chunks = append(chunks, string(runes[start:end]))
		}
		if end == len(runes) {
			break
		}
	}

	return chunks
}
