package chunker

import (
	"strings"
	"testing"

	"github.com/BestAchadirect/Project-WebChat-sub001/internal/apperr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitHardCutsWithoutWhitespace(t *testing.T) {
	text := strings.Repeat("x", 2500)

	chunks, err := Split(text, DefaultConfig())
	require.NoError(t, err)
	require.Len(t, chunks, 3)

	want := [][2]int{{0, 1000}, {800, 1800}, {1600, 2500}}
	for i, c := range chunks {
		assert.Equal(t, i, c.Index)
		assert.Equal(t, want[i][0], c.Start, "chunk %d start", i)
		assert.Equal(t, want[i][1], c.End, "chunk %d end", i)
		assert.Equal(t, c.Len(), len([]rune(c.Text)))
	}
}

func TestSplitChunkCountFormula(t *testing.T) {
	cfg := Config{Size: 100, Overlap: 20}
	for _, n := range []int{1, 99, 100, 101, 180, 181, 500, 1234} {
		chunks, err := Split(strings.Repeat("a", n), cfg)
		require.NoError(t, err)

		want := 1
		if n > cfg.Size {
			step := cfg.Size - cfg.Overlap
			want = 1 + (n-cfg.Size+step-1)/step
		}
		assert.Len(t, chunks, want, "n=%d", n)
	}
}

func TestSplitPrefersWhitespaceBoundary(t *testing.T) {
	// 95 letters, a space, then more letters: the first window should end right after the space.
	text := strings.Repeat("a", 95) + " " + strings.Repeat("b", 200)

	chunks, err := Split(text, Config{Size: 100, Overlap: 20})
	require.NoError(t, err)
	require.NotEmpty(t, chunks)
	assert.Equal(t, 96, chunks[0].End)
	assert.True(t, strings.HasSuffix(chunks[0].Text, " "))
	assert.Equal(t, 76, chunks[1].Start)
}

func TestSplitOverlapAndReconstruction(t *testing.T) {
	text := strings.Repeat("The quick brown fox jumps over the lazy dog. ", 120) + "Ünïcödé tail ✓"
	cfg := DefaultConfig()

	chunks, err := Split(text, cfg)
	require.NoError(t, err)
	require.Greater(t, len(chunks), 1)

	for i := 1; i < len(chunks); i++ {
		prev, cur := chunks[i-1], chunks[i]
		assert.Equal(t, prev.End-cfg.Overlap, cur.Start, "chunk %d must start overlap before previous end", i)
		prevRunes := []rune(prev.Text)
		assert.Equal(t, string(prevRunes[len(prevRunes)-cfg.Overlap:]), string([]rune(cur.Text)[:cfg.Overlap]))
		assert.LessOrEqual(t, cur.Len(), cfg.Size)
	}
	assert.Equal(t, 0, chunks[0].Start)
	assert.Equal(t, len([]rune(text)), chunks[len(chunks)-1].End)
	assert.Equal(t, text, Reconstruct(chunks, cfg.Overlap))
}

func TestSplitIsDeterministic(t *testing.T) {
	text := strings.Repeat("lorem ipsum dolor sit amet ", 300)
	a, err := Split(text, DefaultConfig())
	require.NoError(t, err)
	b, err := Split(text, DefaultConfig())
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestSplitEmptyInput(t *testing.T) {
	chunks, err := Split("", DefaultConfig())
	require.NoError(t, err)
	assert.Empty(t, chunks)
}

func TestSplitRejectsInvalidConfiguration(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
	}{
		{"overlap equals size", Config{Size: 100, Overlap: 100}},
		{"overlap exceeds size", Config{Size: 100, Overlap: 150}},
		{"zero size", Config{Size: 0}},
		{"negative overlap", Config{Size: 10, Overlap: -1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Split("some text", tt.cfg)
			assert.ErrorIs(t, err, apperr.ErrInvalidConfiguration)
		})
	}
}
