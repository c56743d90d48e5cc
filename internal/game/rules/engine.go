// Package rules defines the rules-engine port: the collaborator that judges
// move legality and detects terminal positions. The session core never
// interprets board state itself; it hands positions to an Engine and acts on
// the verdict.
package rules

import (
	"errors"
	"fmt"

	"github.com/cairnhall/takserver/internal/game"
)

// ErrIllegalMove reports a move the engine rejected. Engine implementations
// wrap it so callers can classify with errors.Is.
var ErrIllegalMove = errors.New("illegal move")

// Position is the engine's view of a game in progress: the preset in force
// and every move applied so far, in order. It carries no derived board
// state; engines that need one reconstruct it from the move sequence.
type Position struct {
	Preset game.BoardPreset
	Moves  []game.Move
}

// Ply returns the number of half-moves played.
func (p Position) Ply() int {
	return len(p.Moves)
}

// ToMove returns the color whose move is next. White moves first.
func (p Position) ToMove() game.Color {
	if len(p.Moves)%2 == 0 {
		return game.White
	}
	return game.Black
}

// Verdict is an engine's judgement of a position after a candidate move.
type Verdict struct {
	// Terminal is true when the move ends the game.
	Terminal bool
	// Result is the outcome when Terminal, e.g. game.ResultRoadWhite.
	Result game.Result
}

// Engine judges candidate moves. Implementations must be safe for
// concurrent use; the session core calls Check from many game goroutines.
type Engine interface {
	// Check validates mv as the next move of pos. A nil error with a
	// non-terminal Verdict means play continues. Illegal moves return an
	// error wrapping ErrIllegalMove.
	Check(pos Position, mv game.Move) (Verdict, error)
}

// Permissive is an Engine that accepts every in-bounds move and never ends
// a game. It stands in where no real rules engine is wired, leaving game
// termination to clocks, resignation, and draw agreement.
type Permissive struct{}

// Check accepts any move whose squares fit the board.
func (Permissive) Check(pos Position, mv game.Move) (Verdict, error) {
	if !mv.In(pos.Preset.Size) {
		return Verdict{}, fmt.Errorf("%w: %s is off a size-%d board", ErrIllegalMove, mv, pos.Preset.Size)
	}
	return Verdict{}, nil
}
