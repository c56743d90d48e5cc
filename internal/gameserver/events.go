package gameserver

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/cairnhall/takserver/internal/game"
	"github.com/cairnhall/takserver/internal/game/engine"
	"github.com/cairnhall/takserver/internal/protocol"
	"github.com/cairnhall/takserver/internal/rating"
)

const persistTimeout = 5 * time.Second

// HandleEvent is the engine's notify sink. Events for one game arrive in
// order; persistence failures are logged and never block play.
func (h *Handler) HandleEvent(ev engine.Event) {
	switch ev.Type {
	case engine.EventCreated:
		h.persistCreated(ev)
	case engine.EventMoveApplied:
		other := ev.White
		if ev.Mover == ev.White {
			other = ev.Black
		}
		h.pushTo(other, protocol.GameMoveLine(ev.GameID, ev.Move))
		line := protocol.GameTime(ev.GameID, ev.WhiteRemaining, ev.BlackRemaining)
		h.pushTo(ev.White, line)
		h.pushTo(ev.Black, line)
		h.persistMove(ev)
	case engine.EventDrawOffer:
		other := ev.White
		if ev.Offerer == ev.White {
			other = ev.Black
		}
		h.pushTo(other, protocol.DrawOfferLine(ev.GameID, ev.Offered))
	case engine.EventPaused:
		other := ev.White
		if ev.Subject == ev.White {
			other = ev.Black
		}
		h.pushTo(other, protocol.Message("your opponent disconnected"))
	case engine.EventResumed:
		other := ev.White
		if ev.Subject == ev.White {
			other = ev.Black
		}
		h.pushTo(other, protocol.Message("your opponent reconnected"))
	case engine.EventCompleted:
		h.completeGame(ev)
	}
}

// completeGame announces the result, releases both sessions from the game,
// and hands the completion to persistence and the rating stream.
func (h *Handler) completeGame(ev engine.Event) {
	over := protocol.GameOver(ev.GameID, ev.Result)
	times := protocol.GameTime(ev.GameID, ev.WhiteRemaining, ev.BlackRemaining)
	for _, p := range []game.PlayerID{ev.White, ev.Black} {
		h.pushTo(p, times)
		h.pushTo(p, over)
		h.sessions.UnbindIfGame(p, ev.GameID)
	}

	h.persistCompleted(ev)
	h.publishCompletion(ev)
}

func (h *Handler) persistCreated(ev engine.Event) {
	if h.store == nil {
		return
	}
	g, ok := h.games.Get(ev.GameID)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()

	dbID, err := h.store.Insert(ctx, string(ev.White), string(ev.Black), ev.Size, g.TimeControl(), ev.Rated)
	if err != nil {
		h.logger.Error("persisting game", zap.Uint32("game_id", uint32(ev.GameID)), zap.Error(err))
		return
	}
	h.mu.Lock()
	h.dbIDs[ev.GameID] = dbID
	h.mu.Unlock()
}

func (h *Handler) persistMove(ev engine.Event) {
	if h.store == nil {
		return
	}
	h.mu.Lock()
	dbID, ok := h.dbIDs[ev.GameID]
	ply := h.plys[ev.GameID]
	h.plys[ev.GameID] = ply + 1
	h.mu.Unlock()
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()

	if err := h.store.RecordMove(ctx, dbID, ply, ev.Move.String()); err != nil {
		h.logger.Error("persisting move",
			zap.Uint32("game_id", uint32(ev.GameID)),
			zap.Int("ply", ply),
			zap.Error(err),
		)
	}
}

func (h *Handler) persistCompleted(ev engine.Event) {
	if h.store == nil {
		return
	}
	h.mu.Lock()
	dbID, ok := h.dbIDs[ev.GameID]
	delete(h.dbIDs, ev.GameID)
	delete(h.plys, ev.GameID)
	h.mu.Unlock()
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()

	if err := h.store.Complete(ctx, dbID, ev.Result, ev.Reason.String()); err != nil {
		h.logger.Error("persisting completion",
			zap.Uint32("game_id", uint32(ev.GameID)),
			zap.Error(err),
		)
	}
	if ev.Rated && h.accounts != nil {
		if err := h.accounts.IncrementGamesPlayed(ctx, string(ev.White), string(ev.Black)); err != nil {
			h.logger.Error("updating game counters", zap.Error(err))
		}
	}
}

func (h *Handler) publishCompletion(ev engine.Event) {
	if h.publisher == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()

	err := h.publisher.Publish(ctx, rating.Completion{
		GameID:      ev.GameID,
		White:       ev.White,
		Black:       ev.Black,
		Size:        ev.Size,
		Result:      ev.Result,
		Reason:      ev.Reason.String(),
		Rated:       ev.Rated,
		WhiteRating: rating.Pending,
		BlackRating: rating.Pending,
		CompletedAt: time.Now(),
	})
	if err != nil {
		h.logger.Error("publishing completion",
			zap.Uint32("game_id", uint32(ev.GameID)),
			zap.Error(err),
		)
	}
}
