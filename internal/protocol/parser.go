package protocol

import (
	"strconv"
	"strings"
	"time"

	"github.com/cairnhall/takserver/internal/game"
)

// Parse converts a raw client line into a typed Command. Blank lines
// return (nil, nil) and are ignored by the dispatcher. Malformed or
// unknown lines return a *ParseError.
func Parse(line string) (Command, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return nil, nil
	}

	verb := fields[0]
	switch {
	case verb == "Login":
		return parseLogin(fields)
	case verb == "Logout" || verb == "quit":
		return Logout{}, nil
	case verb == "PING":
		return Ping{}, nil
	case verb == "Seek":
		return parseSeek(fields)
	case verb == "RemoveSeek":
		return parseRemoveSeek(fields)
	case verb == "List":
		return ListSeeks{}, nil
	case strings.HasPrefix(verb, "Game#"):
		return parseGame(verb, fields)
	case verb == "JoinRoom":
		if len(fields) != 2 {
			return nil, parseErrorf("JoinRoom expects a room name")
		}
		return JoinRoom{Room: fields[1]}, nil
	case verb == "LeaveRoom":
		if len(fields) != 2 {
			return nil, parseErrorf("LeaveRoom expects a room name")
		}
		return LeaveRoom{Room: fields[1]}, nil
	case verb == "ShoutRoom":
		if len(fields) < 3 {
			return nil, parseErrorf("ShoutRoom expects a room and a message")
		}
		return ShoutRoom{Room: fields[1], Message: rest(line, 2)}, nil
	case verb == "Shout":
		if len(fields) < 2 {
			return nil, parseErrorf("Shout expects a message")
		}
		return Shout{Message: rest(line, 1)}, nil
	case verb == "Tell":
		if len(fields) < 3 {
			return nil, parseErrorf("Tell expects a player and a message")
		}
		return Tell{To: game.PlayerID(fields[1]), Message: rest(line, 2)}, nil
	case verb == "Sudo":
		return parseSudo(fields)
	default:
		return nil, parseErrorf("unknown command %q", verb)
	}
}

// rest returns the raw tail of line starting at the nth whitespace-separated
// field, preserving internal spacing of the message body.
func rest(line string, n int) string {
	s := strings.TrimLeft(line, " \t")
	for i := 0; i < n; i++ {
		cut := strings.IndexAny(s, " \t")
		if cut < 0 {
			return ""
		}
		s = strings.TrimLeft(s[cut:], " \t")
	}
	return strings.TrimRight(s, " \t\r\n")
}

func parseLogin(fields []string) (Command, error) {
	switch len(fields) {
	case 2:
		if fields[1] != "Guest" {
			return nil, parseErrorf("Login expects a username and password")
		}
		return Login{Guest: true}, nil
	case 3:
		return Login{User: fields[1], Pass: fields[2]}, nil
	default:
		return nil, parseErrorf("Login expects a username and password")
	}
}

func parseSeek(fields []string) (Command, error) {
	if len(fields) < 5 || len(fields) > 7 {
		return nil, parseErrorf("Seek expects size, contingent, increment, color")
	}

	size, err := strconv.Atoi(fields[1])
	if err != nil {
		return nil, parseErrorf("bad board size %q", fields[1])
	}
	contingent, err := strconv.Atoi(fields[2])
	if err != nil || contingent < 0 {
		return nil, parseErrorf("bad contingent %q", fields[2])
	}
	increment, err := strconv.Atoi(fields[3])
	if err != nil || increment < 0 {
		return nil, parseErrorf("bad increment %q", fields[3])
	}
	color, err := game.ParseColorPref(fields[4])
	if err != nil {
		return nil, parseErrorf("bad color %q", fields[4])
	}

	cmd := PostSeek{
		Size: size,
		TimeControl: game.TimeControl{
			Contingent: time.Duration(contingent) * time.Second,
			Increment:  time.Duration(increment) * time.Second,
		},
		Color: color,
	}
	if len(fields) >= 6 {
		switch fields[5] {
		case "0":
		case "1":
			cmd.Rated = true
		default:
			return nil, parseErrorf("bad rated flag %q", fields[5])
		}
	}
	if len(fields) == 7 {
		cmd.Opponent = game.PlayerID(fields[6])
	}
	return cmd, nil
}

func parseRemoveSeek(fields []string) (Command, error) {
	if len(fields) != 2 {
		return nil, parseErrorf("RemoveSeek expects a seek id")
	}
	id, err := strconv.ParseUint(fields[1], 10, 32)
	if err != nil {
		return nil, parseErrorf("bad seek id %q", fields[1])
	}
	return RemoveSeek{ID: game.SeekID(id)}, nil
}

func parseGame(verb string, fields []string) (Command, error) {
	raw := strings.TrimPrefix(verb, "Game#")
	id, err := strconv.ParseUint(raw, 10, 32)
	if err != nil {
		return nil, parseErrorf("bad game id %q", raw)
	}
	gid := game.GameID(id)

	if len(fields) < 2 {
		return nil, parseErrorf("Game#%d expects an action", gid)
	}
	switch fields[1] {
	case "Resign":
		return Resign{GameID: gid}, nil
	case "OfferDraw":
		return OfferDraw{GameID: gid, Offer: true}, nil
	case "RemoveDraw":
		return OfferDraw{GameID: gid, Offer: false}, nil
	case "RequestRematch":
		return RequestRematch{GameID: gid}, nil
	case "P", "M":
		mv, err := game.ParseMove(fields[1:])
		if err != nil {
			return nil, parseErrorf("bad move: %v", err)
		}
		return GameMove{GameID: gid, Move: mv}, nil
	default:
		return nil, parseErrorf("unknown game action %q", fields[1])
	}
}

func parseSudo(fields []string) (Command, error) {
	if len(fields) < 2 {
		return nil, parseErrorf("Sudo expects a verb")
	}
	verb := fields[1]
	switch verb {
	case "ban", "unban", "gag", "ungag":
		if len(fields) != 3 {
			return nil, parseErrorf("Sudo %s expects a player", verb)
		}
		flag := strings.TrimPrefix(verb, "un")
		return SudoFlag{Flag: flag, Target: game.PlayerID(fields[2]), On: !strings.HasPrefix(verb, "un")}, nil
	case "kick":
		if len(fields) != 3 {
			return nil, parseErrorf("Sudo kick expects a player")
		}
		return SudoKick{Target: game.PlayerID(fields[2])}, nil
	case "broadcast", "set", "reload":
		return SudoNoop{Verb: verb}, nil
	default:
		return nil, parseErrorf("unknown sudo verb %q", verb)
	}
}
