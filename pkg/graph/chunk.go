package graph

import (
	"errors"
	"fmt"
	"iter"
	"strings"

	"github.com/pkoukk/tiktoken-go"
)

// TokenCounter measures text in tokens. Chunk sizes and overlaps are
// expressed in whatever unit the counter returns.
type TokenCounter func(text string) int

// NewTiktokenCounter counts tokens with a tiktoken encoding such as
// "cl100k_base", the encoding of the text-embedding-3 models.
func NewTiktokenCounter(encoding string) (TokenCounter, error) {
	enc, err := tiktoken.GetEncoding(encoding)
	if err != nil {
		return nil, fmt.Errorf("load token encoding %q: %w", encoding, err)
	}
	return func(text string) int {
		return len(enc.Encode(text, nil, nil))
	}, nil
}

// WhitespaceCounter approximates tokens by counting whitespace separated
// words. It undercounts for most BPE encodings and is meant for tests and
// offline use.
func WhitespaceCounter(text string) int {
	return len(strings.Fields(text))
}

// defaultSeparators are tried in order: paragraph, line, sentence, word,
// character.
var defaultSeparators = []string{"\n\n", "\n", ". ", " ", ""}

// Chunker splits text recursively on the coarsest boundary that yields
// pieces within size, then greedily merges pieces back into windows of at
// most size tokens that overlap by roughly overlap tokens.
type Chunker struct {
	size       int
	overlap    int
	count      TokenCounter
	separators []string
}

// NewChunker creates a chunker. A nil counter falls back to WhitespaceCounter.
func NewChunker(size, overlap int, counter TokenCounter) (*Chunker, error) {
	if size <= 0 {
		return nil, errors.New("chunk size must be positive")
	}
	if overlap < 0 || overlap >= size {
		return nil, fmt.Errorf("chunk overlap %d must be in [0, %d)", overlap, size)
	}
	if counter == nil {
		counter = WhitespaceCounter
	}
	return &Chunker{
		size:       size,
		overlap:    overlap,
		count:      counter,
		separators: defaultSeparators,
	}, nil
}

// Chunks returns the chunks of text in document order. The sequence is
// lazy and can be ranged over repeatedly. Chunks are trimmed and never empty.
func (c *Chunker) Chunks(text string) iter.Seq[string] {
	return func(yield func(string) bool) {
		if strings.TrimSpace(text) == "" {
			return
		}
		c.split(text, c.separators, yield)
	}
}

// split returns false once yield asked to stop.
func (c *Chunker) split(text string, separators []string, yield func(string) bool) bool {
	separator := separators[len(separators)-1]
	var finer []string
	for i, sep := range separators {
		if sep == "" {
			separator = sep
			break
		}
		if strings.Contains(text, sep) {
			separator = sep
			finer = separators[i+1:]
			break
		}
	}

	var fitting []string
	for _, piece := range splitKeepingSeparator(text, separator) {
		if c.count(piece) <= c.size {
			fitting = append(fitting, piece)
			continue
		}
		if len(fitting) > 0 {
			if !c.merge(fitting, yield) {
				return false
			}
			fitting = nil
		}
		if len(finer) == 0 {
			if !emit(piece, yield) {
				return false
			}
			continue
		}
		if !c.split(piece, finer, yield) {
			return false
		}
	}
	if len(fitting) > 0 {
		return c.merge(fitting, yield)
	}
	return true
}

// merge packs consecutive pieces into windows. The window is re-measured
// as a whole because token counts are not additive across piece borders.
func (c *Chunker) merge(pieces []string, yield func(string) bool) bool {
	var window []string
	for _, piece := range pieces {
		if len(window) > 0 && c.count(strings.Join(window, "")+piece) > c.size {
			if !emit(strings.Join(window, ""), yield) {
				return false
			}
			for len(window) > 0 {
				joined := strings.Join(window, "")
				if c.count(joined) <= c.overlap && c.count(joined+piece) <= c.size {
					break
				}
				window = window[1:]
			}
		}
		window = append(window, piece)
	}
	if len(window) > 0 {
		return emit(strings.Join(window, ""), yield)
	}
	return true
}

func emit(chunk string, yield func(string) bool) bool {
	chunk = strings.TrimSpace(chunk)
	if chunk == "" {
		return true
	}
	return yield(chunk)
}

// splitKeepingSeparator splits text on sep and keeps sep at the end of the
// piece it terminated, so sentences keep their full stop. An empty sep
// splits into characters.
func splitKeepingSeparator(text, sep string) []string {
	if sep == "" {
		pieces := make([]string, 0, len(text))
		for _, r := range text {
			pieces = append(pieces, string(r))
		}
		return pieces
	}

	parts := strings.SplitAfter(text, sep)
	pieces := parts[:0]
	for _, p := range parts {
		if p != "" {
			pieces = append(pieces, p)
		}
	}
	return pieces
}
