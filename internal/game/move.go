package game

import (
	"fmt"
	"strconv"
	"strings"
)

// Piece is the stone variant placed by a Place move.
type Piece int

const (
	Flat Piece = iota
	Wall
	Cap
)

// String returns the wire token for the piece: empty for a flat stone.
func (p Piece) String() string {
	switch p {
	case Wall:
		return "W"
	case Cap:
		return "C"
	default:
		return ""
	}
}

// ParsePiece parses an optional place-variant token. The empty string is a
// flat stone.
func ParsePiece(s string) (Piece, error) {
	switch s {
	case "":
		return Flat, nil
	case "W":
		return Wall, nil
	case "C":
		return Cap, nil
	default:
		return Flat, fmt.Errorf("invalid piece variant %q", s)
	}
}

// Square is a board coordinate. File and Rank are zero-based; the wire form
// is a letter-digit pair such as "A1".
type Square struct {
	File int
	Rank int
}

// ParseSquare parses a wire square token.
//
// Postcondition: on success the square lies within an 8x8 grid; callers
// bound it further against the actual board size.
func ParseSquare(s string) (Square, error) {
	if len(s) != 2 {
		return Square{}, fmt.Errorf("invalid square %q", s)
	}
	file := int(s[0] - 'A')
	rank := int(s[1] - '1')
	if file < 0 || file > 7 || rank < 0 || rank > 7 {
		return Square{}, fmt.Errorf("invalid square %q", s)
	}
	return Square{File: file, Rank: rank}, nil
}

// In reports whether the square lies on a board of the given size.
func (s Square) In(size int) bool {
	return s.File >= 0 && s.File < size && s.Rank >= 0 && s.Rank < size
}

// String returns the wire form, e.g. "C3".
func (s Square) String() string {
	return string([]byte{byte('A' + s.File), byte('1' + s.Rank)})
}

// MoveKind discriminates the two move shapes.
type MoveKind int

const (
	// PlaceMove puts a new stone from the reserve on an empty square.
	PlaceMove MoveKind = iota
	// SpreadMove picks up a stack and drops pieces along a straight line.
	SpreadMove
)

// Move is one half-move as it travels between the dispatcher, the game
// engine, and the rules engine. Only shape is validated here; legality
// against the board state is the rules engine's business.
type Move struct {
	Kind MoveKind

	// Place fields.
	At    Square
	Piece Piece

	// Spread fields. Drops holds the per-square drop counts from the square
	// after From through To, in order.
	From  Square
	To    Square
	Drops []int
}

// Straight reports whether From and To share a file or a rank without being
// the same square.
//
// Precondition: m.Kind == SpreadMove.
func (m Move) Straight() bool {
	if m.Kind != SpreadMove {
		panic("game: Move.Straight() precondition violated: not a spread move")
	}
	if m.From == m.To {
		return false
	}
	return m.From.File == m.To.File || m.From.Rank == m.To.Rank
}

// In reports whether every square the move touches lies on a board of the
// given size.
func (m Move) In(size int) bool {
	if m.Kind == PlaceMove {
		return m.At.In(size)
	}
	return m.From.In(size) && m.To.In(size)
}

// String renders the move in wire form: "P C3 W" or "M A1 A3 1 2".
func (m Move) String() string {
	if m.Kind == PlaceMove {
		if m.Piece == Flat {
			return fmt.Sprintf("P %s", m.At)
		}
		return fmt.Sprintf("P %s %s", m.At, m.Piece)
	}
	parts := make([]string, 0, 3+len(m.Drops))
	parts = append(parts, "M", m.From.String(), m.To.String())
	for _, d := range m.Drops {
		parts = append(parts, strconv.Itoa(d))
	}
	return strings.Join(parts, " ")
}

// ParseMove parses the tokens following "Game#<id>" for a P or M command.
//
// Postcondition: a returned Move has valid squares and, for spreads, a
// straight non-empty drop line whose length matches the travel distance.
func ParseMove(tokens []string) (Move, error) {
	if len(tokens) == 0 {
		return Move{}, fmt.Errorf("empty move")
	}
	switch tokens[0] {
	case "P":
		return parsePlace(tokens[1:])
	case "M":
		return parseSpread(tokens[1:])
	default:
		return Move{}, fmt.Errorf("unknown move kind %q", tokens[0])
	}
}

func parsePlace(tokens []string) (Move, error) {
	if len(tokens) != 1 && len(tokens) != 2 {
		return Move{}, fmt.Errorf("place move wants a square and optional variant, got %d tokens", len(tokens))
	}
	at, err := ParseSquare(tokens[0])
	if err != nil {
		return Move{}, err
	}
	variant := ""
	if len(tokens) == 2 {
		variant = tokens[1]
	}
	piece, err := ParsePiece(variant)
	if err != nil {
		return Move{}, err
	}
	return Move{Kind: PlaceMove, At: at, Piece: piece}, nil
}

func parseSpread(tokens []string) (Move, error) {
	if len(tokens) < 3 {
		return Move{}, fmt.Errorf("spread move wants from, to and drop counts, got %d tokens", len(tokens))
	}
	from, err := ParseSquare(tokens[0])
	if err != nil {
		return Move{}, err
	}
	to, err := ParseSquare(tokens[1])
	if err != nil {
		return Move{}, err
	}
	m := Move{Kind: SpreadMove, From: from, To: to}
	if !m.Straight() {
		return Move{}, fmt.Errorf("spread from %s to %s is not a straight line", from, to)
	}
	for _, tok := range tokens[2:] {
		n, err := strconv.Atoi(tok)
		if err != nil || n < 1 {
			return Move{}, fmt.Errorf("invalid drop count %q", tok)
		}
		m.Drops = append(m.Drops, n)
	}
	distance := abs(to.File-from.File) + abs(to.Rank-from.Rank)
	if len(m.Drops) != distance {
		return Move{}, fmt.Errorf("spread covers %d squares but has %d drop counts", distance, len(m.Drops))
	}
	return m, nil
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
