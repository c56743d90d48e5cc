// Package game defines the shared domain model for the session core:
// player views, colors, time controls, moves, and board presets.
package game

import (
	"fmt"
	"time"
)

// PlayerID uniquely identifies a player. It is the canonical (case-preserved)
// username issued by the identity provider.
type PlayerID string

// GameID uniquely identifies a game for the lifetime of the process.
// IDs are allocated monotonically by the engine manager.
type GameID uint32

// SeekID uniquely identifies an open seek.
type SeekID uint32

// Color is a side in a game.
type Color int

const (
	White Color = iota
	Black
)

// Opponent returns the other color.
func (c Color) Opponent() Color {
	if c == White {
		return Black
	}
	return White
}

// String returns the wire token for the color.
func (c Color) String() string {
	if c == White {
		return "W"
	}
	return "B"
}

// ColorPref is a seek owner's color preference.
type ColorPref int

const (
	// PrefAny lets the registry assign colors.
	PrefAny ColorPref = iota
	PrefWhite
	PrefBlack
)

// String returns the wire token for the preference.
func (p ColorPref) String() string {
	switch p {
	case PrefWhite:
		return "W"
	case PrefBlack:
		return "B"
	default:
		return "A"
	}
}

// ParseColorPref parses a wire color-preference token.
func ParseColorPref(s string) (ColorPref, error) {
	switch s {
	case "W":
		return PrefWhite, nil
	case "B":
		return PrefBlack, nil
	case "A":
		return PrefAny, nil
	default:
		return PrefAny, fmt.Errorf("invalid color preference %q", s)
	}
}

// Compatible reports whether two preferences can be satisfied in one game.
// Two identical fixed preferences conflict; anything else can be assigned.
func (p ColorPref) Compatible(other ColorPref) bool {
	if p == PrefAny || other == PrefAny {
		return true
	}
	return p != other
}

// TimeControl is a per-player wall-clock budget: an initial contingent plus
// an increment added after each of that player's moves.
type TimeControl struct {
	Contingent time.Duration
	Increment  time.Duration
}

// Valid reports whether the control is playable. A zero contingent would
// start a game already flagged.
func (tc TimeControl) Valid() bool {
	return tc.Contingent > 0 && tc.Increment >= 0
}

// String renders the control as "<contingent-seconds> <increment-seconds>".
func (tc TimeControl) String() string {
	return fmt.Sprintf("%d %d", int(tc.Contingent.Seconds()), int(tc.Increment.Seconds()))
}

// Player is the core's transient, cached view of a persisted player.
// The persistence service owns the authoritative record.
type Player struct {
	ID     PlayerID
	Name   string // display name, currently always the username
	Rating int    // placeholder; see the rating package
	Games  int    // completed-game count

	Guest  bool // ephemeral, unrated identity
	Gagged bool // moderation: may not chat
	Admin  bool // may issue Sudo commands
}

// Result is the terse wire form of a game outcome, e.g. "R-0" or "1/2-1/2".
type Result string

const (
	ResultRoadWhite Result = "R-0"
	ResultRoadBlack Result = "0-R"
	ResultFlatWhite Result = "F-0"
	ResultFlatBlack Result = "0-F"
	ResultWinWhite  Result = "1-0" // win by default: resignation, timeout, abandonment
	ResultWinBlack  Result = "0-1"
	ResultDraw      Result = "1/2-1/2"
	ResultNone      Result = "0-0" // voided before play began
)

// DefaultWin returns the win-by-default result for the given winner.
func DefaultWin(winner Color) Result {
	if winner == White {
		return ResultWinWhite
	}
	return ResultWinBlack
}

// Winner returns the winning color for decisive results.
// The second return is false for draws and voided games.
func (r Result) Winner() (Color, bool) {
	switch r {
	case ResultRoadWhite, ResultFlatWhite, ResultWinWhite:
		return White, true
	case ResultRoadBlack, ResultFlatBlack, ResultWinBlack:
		return Black, true
	default:
		return White, false
	}
}
