package protocol

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cairnhall/takserver/internal/game"
	"github.com/cairnhall/takserver/internal/game/seek"
)

func TestRenderSeekAnnouncements(t *testing.T) {
	s := seek.Seek{
		ID:    3,
		Owner: "alice",
		Spec: seek.Spec{
			Size: 5,
			TimeControl: game.TimeControl{
				Contingent: 600 * time.Second,
				Increment:  10 * time.Second,
			},
			Color: game.PrefWhite,
			Rated: true,
		},
	}
	assert.Equal(t, "Seek new 3 alice 5 600 10 W 1", SeekNew(s))
	assert.Equal(t, "Seek remove 3 alice 5 600 10 W 1", SeekRemove(s))

	s.Spec.Opponent = "bob"
	assert.Equal(t, "Seek new 3 alice 5 600 10 W 1 bob", SeekNew(s))
}

func TestRenderGameStartPerRecipient(t *testing.T) {
	tc := game.TimeControl{Contingent: 300 * time.Second, Increment: 5 * time.Second}
	white := GameStart(9, "alice", "bob", game.White, 6, tc, false)
	black := GameStart(9, "alice", "bob", game.Black, 6, tc, false)
	assert.Equal(t, "Game Start 9 alice vs bob white 6 300 5 0", white)
	assert.Equal(t, "Game Start 9 alice vs bob black 6 300 5 0", black)
}

func TestRenderGameLines(t *testing.T) {
	mv, err := game.ParseMove([]string{"M", "A1", "A3", "1", "2"})
	require.NoError(t, err)

	assert.Equal(t, "Game#9 M A1 A3 1 2", GameMoveLine(9, mv))
	assert.Equal(t, "Game#9 Time 299 300", GameTime(9, 299500*time.Millisecond, 300*time.Second))
	assert.Equal(t, "Game#9 Over R-0", GameOver(9, game.ResultRoadWhite))
	assert.Equal(t, "Game#9 OfferDraw", DrawOfferLine(9, true))
	assert.Equal(t, "Game#9 RemoveDraw", DrawOfferLine(9, false))
	assert.Equal(t, "Game#9 RequestRematch", RematchRequestLine(9))
}

func TestRenderChatLines(t *testing.T) {
	assert.Equal(t, "Shout <alice> hi all", ShoutLine("alice", "hi all"))
	assert.Equal(t, "ShoutRoom tak/5 <alice> gg", ShoutRoomLine("tak/5", "alice", "gg"))
	assert.Equal(t, "Tell <alice> psst", TellLine("alice", "psst"))
	assert.Equal(t, "Told <bob> psst", ToldLine("bob", "psst"))
	assert.Equal(t, "Joined room tak/5", JoinedRoom("tak/5"))
	assert.Equal(t, "Left room tak/5", LeftRoom("tak/5"))
}

func TestRenderLoginLines(t *testing.T) {
	assert.Equal(t, "Welcome alice!", Welcome("alice"))
	assert.Equal(t, "Message server restarting soon", Message("server restarting soon"))
}
