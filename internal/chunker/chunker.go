// Package chunker splits extracted document text into overlapping windows.
//
// Positions are counted in Unicode code points. Consecutive chunks share exactly
// Overlap code points, so concatenating every chunk after dropping each one's
// leading overlap reproduces the input.
package chunker

import (
	"unicode"

	"github.com/BestAchadirect/Project-WebChat-sub001/internal/apperr"
)

const (
	DefaultSize    = 1000
	DefaultOverlap = 200
)

// Config controls window geometry.
type Config struct {
	// Size is the maximum chunk length.
	Size int
	// Overlap is the number of characters shared by consecutive chunks. Must be < Size.
	Overlap int
	// SnapWindow is how far back from a window end to look for whitespace.
	// Zero means Size/10.
	SnapWindow int
}

// DefaultConfig returns the 1000/200 window used for ingestion.
func DefaultConfig() Config {
	return Config{Size: DefaultSize, Overlap: DefaultOverlap}
}

// Validate reports an InvalidConfiguration error for impossible geometry.
func (c Config) Validate() error {
	if c.Size <= 0 {
		return apperr.New(apperr.ErrInvalidConfiguration, "chunk size must be positive, got %d", c.Size)
	}
	if c.Overlap < 0 {
		return apperr.New(apperr.ErrInvalidConfiguration, "chunk overlap must not be negative, got %d", c.Overlap)
	}
	if c.Overlap >= c.Size {
		return apperr.New(apperr.ErrInvalidConfiguration, "chunk overlap %d must be smaller than size %d", c.Overlap, c.Size)
	}
	if c.SnapWindow < 0 {
		return apperr.New(apperr.ErrInvalidConfiguration, "snap window must not be negative, got %d", c.SnapWindow)
	}
	return nil
}

func (c Config) snapWindow() int {
	if c.SnapWindow > 0 {
		return c.SnapWindow
	}
	return c.Size / 10
}

// Chunk is one window of text. Start and End are code point offsets, End exclusive.
type Chunk struct {
	Index int
	Text  string
	Start int
	End   int
}

// Len returns the chunk length in code points.
func (c Chunk) Len() int {
	return c.End - c.Start
}

// Split cuts text into overlapping chunks.
// Each window ends right after the last whitespace within SnapWindow of its
// nominal end, as long as the chunk still extends past Start+Overlap; otherwise
// it is cut hard at Size. Empty text yields no chunks.
func Split(text string, cfg Config) ([]Chunk, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	runes := []rune(text)
	n := len(runes)
	if n == 0 {
		return []Chunk{}, nil
	}

	snap := cfg.snapWindow()
	chunks := make([]Chunk, 0, n/(cfg.Size-cfg.Overlap)+1)

	start := 0
	for {
		end := start + cfg.Size
		if end >= n {
			end = n
		} else {
			end = snapToSpace(runes, start+cfg.Overlap, end, snap)
		}

		chunks = append(chunks, Chunk{
			Index: len(chunks),
			Text:  string(runes[start:end]),
			Start: start,
			End:   end,
		})

		if end == n {
			return chunks, nil
		}
		start = end - cfg.Overlap
	}
}

// snapToSpace moves end back to just after a whitespace rune found in
// (end-window, end], never to floor or below.
func snapToSpace(runes []rune, floor, end, window int) int {
	for k := end; k > end-window && k > floor; k-- {
		if unicode.IsSpace(runes[k-1]) {
			return k
		}
	}
	return end
}

// Reconstruct joins chunks produced with the given overlap back into the source text.
func Reconstruct(chunks []Chunk, overlap int) string {
	var out []rune
	for i, c := range chunks {
		r := []rune(c.Text)
		if i > 0 {
			r = r[overlap:]
		}
		out = append(out, r...)
	}
	return string(out)
}
