package game

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"pgregory.net/rapid"
)

func TestColorOpponent(t *testing.T) {
	assert.Equal(t, Black, White.Opponent())
	assert.Equal(t, White, Black.Opponent())
}

func TestColorPrefCompatible(t *testing.T) {
	tests := []struct {
		name string
		a, b ColorPref
		want bool
	}{
		{"any matches any", PrefAny, PrefAny, true},
		{"any matches white", PrefAny, PrefWhite, true},
		{"white matches black", PrefWhite, PrefBlack, true},
		{"white conflicts with white", PrefWhite, PrefWhite, false},
		{"black conflicts with black", PrefBlack, PrefBlack, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.a.Compatible(tt.b))
			assert.Equal(t, tt.want, tt.b.Compatible(tt.a), "compatibility must be symmetric")
		})
	}
}

func TestParseColorPref(t *testing.T) {
	for _, tok := range []string{"W", "B", "A"} {
		pref, err := ParseColorPref(tok)
		assert.NoError(t, err)
		assert.Equal(t, tok, pref.String())
	}
	_, err := ParseColorPref("X")
	assert.Error(t, err)
}

func TestTimeControlValid(t *testing.T) {
	assert.True(t, TimeControl{Contingent: 600 * time.Second, Increment: 5 * time.Second}.Valid())
	assert.True(t, TimeControl{Contingent: time.Second}.Valid())
	assert.False(t, TimeControl{}.Valid())
	assert.False(t, TimeControl{Contingent: time.Second, Increment: -time.Second}.Valid())
}

func TestTimeControlString(t *testing.T) {
	tc := TimeControl{Contingent: 600 * time.Second, Increment: 5 * time.Second}
	assert.Equal(t, "600 5", tc.String())
}

func TestResultWinner(t *testing.T) {
	for _, r := range []Result{ResultRoadWhite, ResultFlatWhite, ResultWinWhite} {
		c, ok := r.Winner()
		assert.True(t, ok)
		assert.Equal(t, White, c)
	}
	for _, r := range []Result{ResultRoadBlack, ResultFlatBlack, ResultWinBlack} {
		c, ok := r.Winner()
		assert.True(t, ok)
		assert.Equal(t, Black, c)
	}
	_, ok := ResultDraw.Winner()
	assert.False(t, ok)
	_, ok = ResultNone.Winner()
	assert.False(t, ok)
}

func TestDefaultWinMatchesWinner(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		winner := Color(rapid.IntRange(0, 1).Draw(t, "winner"))
		c, ok := DefaultWin(winner).Winner()
		if !ok || c != winner {
			t.Fatalf("DefaultWin(%v) did not round-trip, got %v ok=%v", winner, c, ok)
		}
	})
}
