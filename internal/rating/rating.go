// Package rating holds the rating placeholder sentinel and the publisher
// that hands game completions to the external rating service. The core
// never computes ratings itself.
package rating

import (
	"time"

	"github.com/cairnhall/takserver/internal/game"
)

// Pending is the provisional rating placeholder assigned to both players
// when a game completes. It is an explicit "not yet computed" sentinel, not
// an estimate; the rating service replaces it asynchronously.
const Pending = -1

// Completion is one game-completion record as published to the rating
// service.
type Completion struct {
	GameID      game.GameID
	White       game.PlayerID
	Black       game.PlayerID
	Size        int
	Result      game.Result
	Reason      string
	Rated       bool
	WhiteRating int
	BlackRating int
	CompletedAt time.Time
}
