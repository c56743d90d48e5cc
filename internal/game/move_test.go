package game

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestParseSquare(t *testing.T) {
	sq, err := ParseSquare("A1")
	require.NoError(t, err)
	assert.Equal(t, Square{File: 0, Rank: 0}, sq)

	sq, err = ParseSquare("H8")
	require.NoError(t, err)
	assert.Equal(t, Square{File: 7, Rank: 7}, sq)
	assert.Equal(t, "H8", sq.String())

	for _, bad := range []string{"", "A", "A9", "I1", "a1", "A10"} {
		_, err := ParseSquare(bad)
		assert.Error(t, err, "square %q should be rejected", bad)
	}
}

func TestSquareIn(t *testing.T) {
	sq := Square{File: 4, Rank: 4} // E5
	assert.True(t, sq.In(5))
	assert.False(t, sq.In(4))
}

func TestParseMovePlace(t *testing.T) {
	m, err := ParseMove([]string{"P", "C3"})
	require.NoError(t, err)
	assert.Equal(t, PlaceMove, m.Kind)
	assert.Equal(t, Flat, m.Piece)
	assert.Equal(t, "P C3", m.String())

	m, err = ParseMove([]string{"P", "C3", "W"})
	require.NoError(t, err)
	assert.Equal(t, Wall, m.Piece)
	assert.Equal(t, "P C3 W", m.String())

	m, err = ParseMove([]string{"P", "A1", "C"})
	require.NoError(t, err)
	assert.Equal(t, Cap, m.Piece)

	_, err = ParseMove([]string{"P", "C3", "X"})
	assert.Error(t, err)
	_, err = ParseMove([]string{"P"})
	assert.Error(t, err)
}

func TestParseMoveSpread(t *testing.T) {
	m, err := ParseMove([]string{"M", "A1", "A3", "1", "2"})
	require.NoError(t, err)
	assert.Equal(t, SpreadMove, m.Kind)
	assert.Equal(t, []int{1, 2}, m.Drops)
	assert.True(t, m.Straight())
	assert.Equal(t, "M A1 A3 1 2", m.String())
}

func TestParseMoveSpreadRejectsBadShapes(t *testing.T) {
	tests := []struct {
		name   string
		tokens []string
	}{
		{"diagonal", []string{"M", "A1", "B2", "1"}},
		{"same square", []string{"M", "A1", "A1", "1"}},
		{"drop count mismatch", []string{"M", "A1", "A3", "1"}},
		{"zero drop", []string{"M", "A1", "A2", "0"}},
		{"non-numeric drop", []string{"M", "A1", "A2", "x"}},
		{"missing drops", []string{"M", "A1", "A2"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseMove(tt.tokens)
			assert.Error(t, err)
		})
	}
}

func TestParseMoveUnknownKind(t *testing.T) {
	_, err := ParseMove([]string{"Q", "A1"})
	assert.Error(t, err)
	_, err = ParseMove(nil)
	assert.Error(t, err)
}

// Parsed moves render back to the exact token sequence they came from.
func TestMoveStringRoundTrip(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		var tokens []string
		if rapid.Bool().Draw(t, "place") {
			sq := drawSquare(t, "at")
			tokens = []string{"P", sq.String()}
			switch rapid.IntRange(0, 2).Draw(t, "piece") {
			case 1:
				tokens = append(tokens, "W")
			case 2:
				tokens = append(tokens, "C")
			}
		} else {
			from := drawSquare(t, "from")
			along := rapid.Bool().Draw(t, "alongFile")
			dist := rapid.IntRange(1, 3).Draw(t, "dist")
			to := from
			if along {
				to.Rank = (from.Rank + dist) % 8
			} else {
				to.File = (from.File + dist) % 8
			}
			if to == from || (to.File != from.File && to.Rank != from.Rank) {
				t.Skip()
			}
			realDist := abs(to.File-from.File) + abs(to.Rank-from.Rank)
			tokens = []string{"M", from.String(), to.String()}
			for i := 0; i < realDist; i++ {
				tokens = append(tokens, "1")
			}
		}
		m, err := ParseMove(tokens)
		if err != nil {
			t.Fatalf("ParseMove(%v): %v", tokens, err)
		}
		if got := m.String(); got != strings.Join(tokens, " ") {
			t.Fatalf("round trip mismatch: %q != %q", got, strings.Join(tokens, " "))
		}
	})
}

func drawSquare(t *rapid.T, label string) Square {
	return Square{
		File: rapid.IntRange(0, 7).Draw(t, label+"File"),
		Rank: rapid.IntRange(0, 7).Draw(t, label+"Rank"),
	}
}
