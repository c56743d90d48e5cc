// Package protocol implements the line-oriented wire protocol: parsing
// inbound lines into typed commands and rendering outbound events back to
// text lines. The grammar is whitespace-separated; free-text fields cannot
// carry embedded separators, a known limitation callers must encode around.
package protocol

import (
	"fmt"

	"github.com/cairnhall/takserver/internal/game"
)

// Command is a parsed client line. The concrete type selects the handler.
type Command interface {
	isCommand()
}

// Login authenticates the connection. Guest is set for "Login Guest",
// which creates an ephemeral unrated identity with no password.
type Login struct {
	User  string
	Pass  string
	Guest bool
}

// Logout ends the session.
type Logout struct{}

// Ping is the liveness heartbeat; the server answers OK.
type Ping struct{}

// PostSeek opens a matchmaking invitation:
//
//	Seek <size> <contingent> <increment> <W|B|A> [<rated 0|1>] [<opponent>]
type PostSeek struct {
	Size        int
	TimeControl game.TimeControl
	Color       game.ColorPref
	Rated       bool
	Opponent    game.PlayerID
}

// RemoveSeek cancels the client's open seek: RemoveSeek <id>.
type RemoveSeek struct {
	ID game.SeekID
}

// ListSeeks asks for all open seeks.
type ListSeeks struct{}

// GameMove applies a move: Game#<id> P <square> [W|C] or
// Game#<id> M <from> <to> <drops...>.
type GameMove struct {
	GameID game.GameID
	Move   game.Move
}

// Resign concedes the game: Game#<id> Resign.
type Resign struct {
	GameID game.GameID
}

// OfferDraw makes or withdraws a draw offer: Game#<id> OfferDraw or
// Game#<id> RemoveDraw.
type OfferDraw struct {
	GameID game.GameID
	Offer  bool
}

// RequestRematch offers a rematch on a completed game:
// Game#<id> RequestRematch.
type RequestRematch struct {
	GameID game.GameID
}

// JoinRoom enters a chat room: JoinRoom <room>.
type JoinRoom struct {
	Room string
}

// LeaveRoom exits a chat room: LeaveRoom <room>.
type LeaveRoom struct {
	Room string
}

// ShoutRoom sends to a room: ShoutRoom <room> <message...>.
type ShoutRoom struct {
	Room    string
	Message string
}

// Shout sends to everyone: Shout <message...>.
type Shout struct {
	Message string
}

// Tell sends a private message: Tell <player> <message...>.
type Tell struct {
	To      game.PlayerID
	Message string
}

// SudoFlag toggles a moderation flag on a player account:
// Sudo ban|unban|gag|ungag <player>.
type SudoFlag struct {
	Flag   string // "ban" or "gag"
	Target game.PlayerID
	On     bool
}

// SudoKick force-disconnects a player: Sudo kick <player>.
type SudoKick struct {
	Target game.PlayerID
}

// SudoNoop covers administrative verbs that are accepted for protocol
// compatibility but deliberately carry no behavior: broadcast, set, reload.
type SudoNoop struct {
	Verb string
}

func (Login) isCommand()          {}
func (Logout) isCommand()         {}
func (Ping) isCommand()           {}
func (PostSeek) isCommand()       {}
func (RemoveSeek) isCommand()     {}
func (ListSeeks) isCommand()      {}
func (GameMove) isCommand()       {}
func (Resign) isCommand()         {}
func (OfferDraw) isCommand()      {}
func (RequestRematch) isCommand() {}
func (JoinRoom) isCommand()       {}
func (LeaveRoom) isCommand()      {}
func (ShoutRoom) isCommand()      {}
func (Shout) isCommand()          {}
func (Tell) isCommand()           {}
func (SudoFlag) isCommand()       {}
func (SudoKick) isCommand()       {}
func (SudoNoop) isCommand()       {}

// ParseError reports a malformed or unknown line. It is scoped to the
// offending connection and never fatal.
type ParseError struct {
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("protocol: %s", e.Reason)
}

func parseErrorf(format string, args ...interface{}) error {
	return &ParseError{Reason: fmt.Sprintf(format, args...)}
}
