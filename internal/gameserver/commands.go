package gameserver

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/cairnhall/takserver/internal/game"
	"github.com/cairnhall/takserver/internal/game/engine"
	"github.com/cairnhall/takserver/internal/game/seek"
	"github.com/cairnhall/takserver/internal/game/session"
	"github.com/cairnhall/takserver/internal/protocol"
)

// dispatch routes one authenticated command to its handler.
func (h *Handler) dispatch(ctx context.Context, sess *session.Session, cmd protocol.Command) {
	switch c := cmd.(type) {
	case protocol.Ping:
		h.push(sess, protocol.OK)
	case protocol.Login:
		// Already logged in.
		h.push(sess, protocol.NOK)
	case protocol.PostSeek:
		h.handlePostSeek(sess, c)
	case protocol.RemoveSeek:
		h.handleRemoveSeek(sess, c)
	case protocol.ListSeeks:
		for _, s := range h.seeks.List() {
			h.push(sess, protocol.SeekNew(s))
		}
	case protocol.GameMove:
		h.handleMove(sess, c)
	case protocol.Resign:
		h.handleResign(sess, c)
	case protocol.OfferDraw:
		h.handleDrawOffer(sess, c)
	case protocol.RequestRematch:
		h.handleRematch(sess, c)
	case protocol.JoinRoom:
		h.chat.Join(sess.ID, c.Room)
		h.push(sess, protocol.JoinedRoom(c.Room))
	case protocol.LeaveRoom:
		h.chat.Leave(sess.ID, c.Room)
		h.push(sess, protocol.LeftRoom(c.Room))
	case protocol.ShoutRoom:
		h.handleShoutRoom(sess, c)
	case protocol.Shout:
		h.handleShout(sess, c)
	case protocol.Tell:
		h.handleTell(sess, c)
	case protocol.SudoFlag:
		h.handleSudoFlag(ctx, sess, c)
	case protocol.SudoKick:
		h.handleSudoKick(sess, c)
	case protocol.SudoNoop:
		if !sess.Player.Admin {
			h.push(sess, protocol.NOK)
			return
		}
		h.push(sess, protocol.OK)
	default:
		h.push(sess, protocol.NOK)
	}
}

func (h *Handler) handlePostSeek(sess *session.Session, c protocol.PostSeek) {
	if h.sessions.GameOf(sess.ID) != 0 {
		h.push(sess, protocol.NOK)
		return
	}
	if sess.Player.Guest && c.Rated {
		h.push(sess, protocol.NOK)
		h.push(sess, protocol.Message("guests cannot play rated games"))
		return
	}

	spec := seek.Spec{
		Size:        c.Size,
		TimeControl: c.TimeControl,
		Color:       c.Color,
		Rated:       c.Rated,
		Opponent:    c.Opponent,
	}

	var matched *seek.Match
	var created *engine.Game
	s, err := h.seeks.Post(sess.Player.ID, spec, func(m seek.Match) {
		matched = &m
		created = h.games.CreateFromMatch(m)
	})
	if err != nil {
		h.push(sess, protocol.NOK)
		return
	}
	h.push(sess, protocol.OK)

	if s != nil {
		h.sessions.SetState(sess.ID, session.StateSeeking)
		h.broadcast(protocol.SeekNew(*s))
		return
	}

	h.broadcast(protocol.SeekRemove(matched.Seek))
	if standing, ok := h.sessions.ByPlayer(matched.Seek.Owner); ok {
		h.sessions.SetState(standing.ID, session.StateIdle)
	}
	h.startGame(created)
}

// startGame announces a pending game to both players, binds their
// sessions, and starts the clock. The created event fires here, outside
// the seek registry's critical section.
func (h *Handler) startGame(g *engine.Game) {
	g.Announce()
	for _, p := range []game.PlayerID{g.White(), g.Black()} {
		sess, ok := h.sessions.ByPlayer(p)
		if !ok {
			continue
		}
		h.sessions.BindGame(sess.ID, g.ID())
		you := game.White
		if p == g.Black() {
			you = game.Black
		}
		h.push(sess, protocol.GameStart(g.ID(), g.White(), g.Black(), you, g.Size(), g.TimeControl(), g.Rated()))
	}

	// Snapshot before the clock starts so both players see the full
	// contingent.
	w, b := g.Remaining()
	g.Activate()
	h.relayToGame(g, protocol.GameTime(g.ID(), w, b))
}

func (h *Handler) handleRemoveSeek(sess *session.Session, c protocol.RemoveSeek) {
	s, ok := h.seeks.Open(sess.Player.ID)
	if !ok || s.ID != c.ID {
		h.push(sess, protocol.NOK)
		return
	}
	if err := h.seeks.Cancel(sess.Player.ID, c.ID); err != nil {
		h.push(sess, protocol.NOK)
		return
	}
	h.sessions.SetState(sess.ID, session.StateIdle)
	h.push(sess, protocol.OK)
	h.broadcast(protocol.SeekRemove(*s))
}

func (h *Handler) handleMove(sess *session.Session, c protocol.GameMove) {
	g, ok := h.games.Get(c.GameID)
	if !ok || !g.HasPlayer(sess.Player.ID) {
		h.push(sess, protocol.NOK)
		return
	}
	if err := g.ApplyMove(sess.Player.ID, c.Move); err != nil {
		h.logger.Debug("move rejected",
			zap.Uint32("game_id", uint32(c.GameID)),
			zap.String("player", string(sess.Player.ID)),
			zap.Error(err),
		)
		h.push(sess, protocol.NOK)
		return
	}
	h.push(sess, protocol.OK)
}

func (h *Handler) handleResign(sess *session.Session, c protocol.Resign) {
	g, ok := h.games.Get(c.GameID)
	if !ok {
		h.push(sess, protocol.NOK)
		return
	}
	if err := g.Resign(sess.Player.ID); err != nil {
		h.push(sess, protocol.NOK)
		return
	}
	h.push(sess, protocol.OK)
}

func (h *Handler) handleDrawOffer(sess *session.Session, c protocol.OfferDraw) {
	g, ok := h.games.Get(c.GameID)
	if !ok {
		h.push(sess, protocol.NOK)
		return
	}
	if err := g.OfferDraw(sess.Player.ID, c.Offer); err != nil {
		h.push(sess, protocol.NOK)
		return
	}
	h.push(sess, protocol.OK)
}

func (h *Handler) handleRematch(sess *session.Session, c protocol.RequestRematch) {
	next, err := h.games.RequestRematch(c.GameID, sess.Player.ID)
	if err != nil {
		h.push(sess, protocol.NOK)
		return
	}
	h.push(sess, protocol.OK)

	if next == nil {
		// Offer recorded; the opponent decides.
		if prev, ok := h.games.Get(c.GameID); ok {
			h.pushTo(prev.Opponent(sess.Player.ID), protocol.RematchRequestLine(c.GameID))
		}
		return
	}
	h.startGame(next)
}

func (h *Handler) handleShoutRoom(sess *session.Session, c protocol.ShoutRoom) {
	if h.sessions.Gagged(sess.ID) {
		// Gags are silent: room sends never echo to the sender, so a
		// dropped message is indistinguishable from a delivered one.
		return
	}
	// The sender never receives its own room message back.
	recipients, err := h.chat.Recipients(sess.ID, c.Room)
	if err != nil {
		h.push(sess, protocol.NOK)
		return
	}
	line := protocol.ShoutRoomLine(c.Room, sess.Player.ID, c.Message)
	for _, id := range recipients {
		if other, ok := h.sessions.Get(id); ok {
			h.push(other, line)
		}
	}
}

func (h *Handler) handleShout(sess *session.Session, c protocol.Shout) {
	line := protocol.ShoutLine(sess.Player.ID, c.Message)
	if h.sessions.Gagged(sess.ID) {
		h.push(sess, line)
		return
	}
	h.broadcast(line)
}

func (h *Handler) handleTell(sess *session.Session, c protocol.Tell) {
	if h.sessions.Gagged(sess.ID) {
		h.push(sess, protocol.ToldLine(c.To, c.Message))
		return
	}
	target, ok := h.sessions.ConnectedByPlayer(c.To)
	if !ok {
		h.push(sess, protocol.NOK)
		return
	}
	h.push(target, protocol.TellLine(sess.Player.ID, c.Message))
	h.push(sess, protocol.ToldLine(c.To, c.Message))
}

func (h *Handler) handleSudoFlag(ctx context.Context, sess *session.Session, c protocol.SudoFlag) {
	if !sess.Player.Admin || h.accounts == nil {
		h.push(sess, protocol.NOK)
		return
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var err error
	switch c.Flag {
	case "ban":
		err = h.accounts.SetBanned(ctx, string(c.Target), c.On)
	case "gag":
		err = h.accounts.SetGagged(ctx, string(c.Target), c.On)
	}
	if err != nil {
		h.push(sess, protocol.NOK)
		return
	}

	h.logger.Info("moderation flag changed",
		zap.String("admin", string(sess.Player.ID)),
		zap.String("target", string(c.Target)),
		zap.String("flag", c.Flag),
		zap.Bool("on", c.On),
	)

	switch c.Flag {
	case "ban":
		if c.On {
			h.kick(c.Target, "you have been banned")
		}
	case "gag":
		// A live session picks the gag up immediately.
		h.sessions.SetPlayerGagged(c.Target, c.On)
	}
	h.push(sess, protocol.OK)
}

func (h *Handler) handleSudoKick(sess *session.Session, c protocol.SudoKick) {
	if !sess.Player.Admin {
		h.push(sess, protocol.NOK)
		return
	}
	if !h.kick(c.Target, "you have been kicked") {
		h.push(sess, protocol.NOK)
		return
	}
	h.logger.Info("player kicked",
		zap.String("admin", string(sess.Player.ID)),
		zap.String("target", string(c.Target)),
	)
	h.push(sess, protocol.OK)
}

// relayToGame sends one line to both participants of a game.
func (h *Handler) relayToGame(g *engine.Game, line string) {
	h.pushTo(g.White(), line)
	h.pushTo(g.Black(), line)
}
