package protocol

import (
	"fmt"
	"strings"
	"time"

	"github.com/cairnhall/takserver/internal/game"
	"github.com/cairnhall/takserver/internal/game/seek"
)

// Fixed server replies.
const (
	OK       = "OK"
	NOK      = "NOK"
	Greeting = "Welcome!"
)

// Welcome confirms a successful login.
func Welcome(name string) string {
	return fmt.Sprintf("Welcome %s!", name)
}

// Message carries informational text with no protocol meaning.
func Message(text string) string {
	return "Message " + text
}

// SeekNew announces a freshly posted seek to the lobby.
func SeekNew(s seek.Seek) string {
	return "Seek new " + seekBody(s)
}

// SeekRemove announces that a seek left the registry, whether cancelled,
// matched, or swept with its owner's session.
func SeekRemove(s seek.Seek) string {
	return "Seek remove " + seekBody(s)
}

func seekBody(s seek.Seek) string {
	parts := []string{
		fmt.Sprintf("%d", s.ID),
		string(s.Owner),
		fmt.Sprintf("%d", s.Spec.Size),
		fmt.Sprintf("%d", int(s.Spec.TimeControl.Contingent/time.Second)),
		fmt.Sprintf("%d", int(s.Spec.TimeControl.Increment/time.Second)),
		s.Spec.Color.String(),
		boolFlag(s.Spec.Rated),
	}
	if s.Spec.Opponent != "" {
		parts = append(parts, string(s.Spec.Opponent))
	}
	return strings.Join(parts, " ")
}

// GameStart tells one player their new game. The color word names the
// recipient's own side, so the two players receive different lines.
func GameStart(id game.GameID, white, black game.PlayerID, you game.Color, size int, tc game.TimeControl, rated bool) string {
	return fmt.Sprintf("Game Start %d %s vs %s %s %d %d %d %s",
		id, white, black, colorWord(you), size,
		int(tc.Contingent/time.Second), int(tc.Increment/time.Second),
		boolFlag(rated))
}

// GameMoveLine relays an applied move to the opponent.
func GameMoveLine(id game.GameID, mv game.Move) string {
	return fmt.Sprintf("Game#%d %s", id, mv.String())
}

// GameTime reports both clocks in whole seconds, white first.
func GameTime(id game.GameID, white, black time.Duration) string {
	return fmt.Sprintf("Game#%d Time %d %d", id, int(white/time.Second), int(black/time.Second))
}

// GameOver announces the terminal result.
func GameOver(id game.GameID, result game.Result) string {
	return fmt.Sprintf("Game#%d Over %s", id, result)
}

// DrawOfferLine relays a draw offer or its withdrawal to the opponent.
func DrawOfferLine(id game.GameID, offered bool) string {
	if offered {
		return fmt.Sprintf("Game#%d OfferDraw", id)
	}
	return fmt.Sprintf("Game#%d RemoveDraw", id)
}

// RematchRequestLine relays a rematch request to the opponent.
func RematchRequestLine(id game.GameID) string {
	return fmt.Sprintf("Game#%d RequestRematch", id)
}

// ShoutLine formats a global chat broadcast.
func ShoutLine(from game.PlayerID, msg string) string {
	return fmt.Sprintf("Shout <%s> %s", from, msg)
}

// ShoutRoomLine formats a room chat broadcast.
func ShoutRoomLine(room string, from game.PlayerID, msg string) string {
	return fmt.Sprintf("ShoutRoom %s <%s> %s", room, from, msg)
}

// TellLine formats a private message as seen by the recipient.
func TellLine(from game.PlayerID, msg string) string {
	return fmt.Sprintf("Tell <%s> %s", from, msg)
}

// ToldLine echoes a sent private message back to its author.
func ToldLine(to game.PlayerID, msg string) string {
	return fmt.Sprintf("Told <%s> %s", to, msg)
}

// JoinedRoom confirms room membership.
func JoinedRoom(room string) string {
	return "Joined room " + room
}

// LeftRoom confirms leaving a room.
func LeftRoom(room string) string {
	return "Left room " + room
}

func colorWord(c game.Color) string {
	if c == game.White {
		return "white"
	}
	return "black"
}

func boolFlag(b bool) string {
	if b {
		return "1"
	}
	return "0"
}
