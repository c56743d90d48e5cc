package rules

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cairnhall/takserver/internal/game"
)

func testPosition(size int, moves ...game.Move) Position {
	return Position{
		Preset: game.BoardPreset{Size: size, Pieces: 21, Capstones: 1},
		Moves:  moves,
	}
}

func placeAt(sq string) game.Move {
	m, err := game.ParseMove([]string{"P", sq})
	if err != nil {
		panic(err)
	}
	return m
}

func TestPositionToMoveAlternates(t *testing.T) {
	pos := testPosition(5)
	assert.Equal(t, game.White, pos.ToMove())
	assert.Equal(t, 0, pos.Ply())

	pos.Moves = append(pos.Moves, placeAt("A1"))
	assert.Equal(t, game.Black, pos.ToMove())

	pos.Moves = append(pos.Moves, placeAt("E5"))
	assert.Equal(t, game.White, pos.ToMove())
	assert.Equal(t, 2, pos.Ply())
}

func TestPermissiveAcceptsInBoundsMoves(t *testing.T) {
	var e Permissive
	v, err := e.Check(testPosition(5), placeAt("E5"))
	require.NoError(t, err)
	assert.False(t, v.Terminal)
}

func TestPermissiveRejectsOffBoardMoves(t *testing.T) {
	var e Permissive
	_, err := e.Check(testPosition(4), placeAt("E5"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrIllegalMove))
}

func TestPermissiveNeverTerminal(t *testing.T) {
	var e Permissive
	pos := testPosition(5, placeAt("A1"), placeAt("B2"), placeAt("C3"))
	v, err := e.Check(pos, placeAt("D4"))
	require.NoError(t, err)
	assert.False(t, v.Terminal)
}
