// Package engine owns game lifecycles: turn sequencing, move application
// via the rules engine, clock coordination, disconnect grace, abandonment,
// draw agreement, and rematch. One engine instance is the sole mutator of
// its game's state.
package engine

import (
	"time"

	"github.com/cairnhall/takserver/internal/game"
)

// EventType discriminates engine notifications.
type EventType int

const (
	// EventCreated fires when a game enters Pending, from a match or a
	// rematch agreement.
	EventCreated EventType = iota
	// EventMoveApplied fires after a legal move, carrying updated clocks.
	EventMoveApplied
	// EventDrawOffer fires when a draw offer is made or withdrawn.
	EventDrawOffer
	// EventPaused fires when a participant disconnects from a live game.
	EventPaused
	// EventResumed fires when all participants are back before grace expiry.
	EventResumed
	// EventCompleted fires exactly once per game, on its terminal
	// transition.
	EventCompleted
)

// Event is an engine notification delivered to the adapter layer. Fields
// beyond GameID are populated per Type.
type Event struct {
	Type   EventType
	GameID game.GameID
	White  game.PlayerID
	Black  game.PlayerID

	// EventMoveApplied
	Mover game.PlayerID
	Move  game.Move

	// EventMoveApplied, EventCompleted: clock snapshot.
	WhiteRemaining time.Duration
	BlackRemaining time.Duration

	// EventDrawOffer
	Offerer game.PlayerID
	Offered bool

	// EventPaused, EventResumed
	Subject game.PlayerID

	// EventCompleted
	Reason Reason
	Result game.Result

	// EventCompleted: rated flag and board size for the completion record.
	Rated bool
	Size  int
}

// Notify receives engine events. Implementations must not call back into
// the emitting game; events are delivered outside the game lock but on the
// goroutine that caused them.
type Notify func(Event)
