// Package gameserver binds the wire protocol to the domain: it owns the
// per-connection command loop, fans engine events out to player outboxes,
// and runs the liveness maintenance that turns silent connections into
// disconnects.
package gameserver

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/cairnhall/takserver/internal/config"
	"github.com/cairnhall/takserver/internal/game"
	"github.com/cairnhall/takserver/internal/game/chat"
	"github.com/cairnhall/takserver/internal/game/engine"
	"github.com/cairnhall/takserver/internal/game/seek"
	"github.com/cairnhall/takserver/internal/game/session"
	"github.com/cairnhall/takserver/internal/identity"
	"github.com/cairnhall/takserver/internal/protocol"
	"github.com/cairnhall/takserver/internal/rating"
	"github.com/cairnhall/takserver/internal/telnet"
)

// LoginVerifier resolves login commands to players.
type LoginVerifier interface {
	Login(ctx context.Context, username, credential string) (game.Player, error)
	Guest() (game.Player, error)
}

// GameStore persists game records and move lists. A nil store disables
// persistence.
type GameStore interface {
	Insert(ctx context.Context, white, black string, size int, tc game.TimeControl, rated bool) (int64, error)
	RecordMove(ctx context.Context, gameID int64, ply int, notation string) error
	Complete(ctx context.Context, gameID int64, result game.Result, reason string) error
}

// AccountAdmin applies moderation flags. A nil admin disables Sudo
// moderation verbs.
type AccountAdmin interface {
	SetBanned(ctx context.Context, username string, banned bool) error
	SetGagged(ctx context.Context, username string, gagged bool) error
	IncrementGamesPlayed(ctx context.Context, usernames ...string) error
}

// CompletionPublisher emits game-completion events for the rating service.
// A nil publisher disables the stream.
type CompletionPublisher interface {
	Publish(ctx context.Context, c rating.Completion) error
}

// Deps are the collaborators a Handler dispatches into.
type Deps struct {
	Config     config.GameConfig
	ServerName string
	Verifier   LoginVerifier
	Sessions   *session.Manager
	Seeks      *seek.Registry
	Chat       *chat.Manager
	Store      GameStore
	Accounts   AccountAdmin
	Publisher  CompletionPublisher
	Logger     *zap.Logger
}

// Handler runs the protocol for every connection. One Handler serves all
// sessions; per-connection state lives in the session manager.
type Handler struct {
	cfg        config.GameConfig
	serverName string
	verifier   LoginVerifier
	sessions   *session.Manager
	seeks      *seek.Registry
	games      *engine.Manager
	chat       *chat.Manager
	store      GameStore
	accounts   AccountAdmin
	publisher  CompletionPublisher
	logger     *zap.Logger

	mu    sync.Mutex
	conns map[uuid.UUID]*telnet.Conn
	dbIDs map[game.GameID]int64
	plys  map[game.GameID]int
}

// NewHandler creates a Handler. AttachGames must be called before the
// handler serves its first session.
//
// Precondition: all Deps except Store, Accounts, and Publisher must be
// non-nil.
func NewHandler(d Deps) *Handler {
	return &Handler{
		cfg:        d.Config,
		serverName: d.ServerName,
		verifier:   d.Verifier,
		sessions:   d.Sessions,
		seeks:      d.Seeks,
		chat:       d.Chat,
		store:      d.Store,
		accounts:   d.Accounts,
		publisher:  d.Publisher,
		logger:     d.Logger,
		conns:      make(map[uuid.UUID]*telnet.Conn),
		dbIDs:      make(map[game.GameID]int64),
		plys:       make(map[game.GameID]int),
	}
}

// AttachGames wires the game table in. The engine manager needs the
// handler's HandleEvent as its notify sink, so the two are constructed in
// sequence and joined here.
func (h *Handler) AttachGames(m *engine.Manager) {
	h.games = m
}

// HandleSession runs the protocol loop for one connection: greeting, auth
// phase, then command dispatch until the client disconnects.
func (h *Handler) HandleSession(ctx context.Context, conn *telnet.Conn) error {
	sess := h.sessions.Open()

	h.mu.Lock()
	h.conns[sess.ID] = conn
	h.mu.Unlock()
	defer func() {
		h.mu.Lock()
		delete(h.conns, sess.ID)
		h.mu.Unlock()
	}()

	// One writer goroutine per connection drains the outbox; every reply
	// and broadcast goes through it so lines never interleave.
	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		for line := range sess.Outbox.Lines() {
			if err := conn.WriteLine(line); err != nil {
				h.logger.Debug("write failed",
					zap.String("session_id", sess.ID.String()),
					zap.Error(err),
				)
				return
			}
		}
	}()
	defer func() {
		h.onDisconnect(sess)
		<-writerDone
	}()

	h.push(sess, protocol.Greeting)

	authed, err := h.authLoop(ctx, conn, sess)
	if err != nil || !authed {
		return err
	}

	return h.commandLoop(ctx, conn, sess)
}

// authLoop reads lines until the client logs in, runs out of attempts, or
// goes away. Ping keeps working before login so clients can hold the
// connection open.
func (h *Handler) authLoop(ctx context.Context, conn *telnet.Conn, sess *session.Session) (bool, error) {
	failures := 0
	for {
		if err := ctx.Err(); err != nil {
			return false, err
		}

		line, err := conn.ReadLine()
		if err != nil {
			return false, err
		}
		h.sessions.Heartbeat(sess.ID)

		cmd, err := protocol.Parse(line)
		if err != nil {
			h.push(sess, protocol.NOK)
			continue
		}

		switch c := cmd.(type) {
		case nil:
			continue
		case protocol.Ping:
			h.push(sess, protocol.OK)
		case protocol.Logout:
			return false, nil
		case protocol.Login:
			ok, fatal := h.handleLogin(ctx, sess, c)
			if ok {
				return true, nil
			}
			if fatal {
				return false, errors.New("login refused")
			}
			failures++
			if failures >= h.cfg.AuthRetryLimit {
				h.logger.Info("auth retry limit reached",
					zap.String("session_id", sess.ID.String()),
					zap.Int("failures", failures),
				)
				return false, errors.New("too many failed logins")
			}
		default:
			// Everything else needs a login first.
			h.push(sess, protocol.NOK)
		}
	}
}

// handleLogin verifies one Login command. It returns ok when the session is
// authenticated, and fatal when the connection must drop regardless of the
// retry budget.
func (h *Handler) handleLogin(ctx context.Context, sess *session.Session, c protocol.Login) (ok, fatal bool) {
	var player game.Player
	var err error
	if c.Guest {
		player, err = h.verifier.Guest()
	} else {
		player, err = h.verifier.Login(ctx, c.User, c.Pass)
	}
	switch {
	case err == nil:
	case errors.Is(err, identity.ErrBanned):
		h.push(sess, protocol.NOK)
		h.push(sess, protocol.Message("account is banned"))
		return false, true
	case errors.Is(err, identity.ErrServiceUnavailable):
		// Not the client's fault; does not burn a retry.
		h.push(sess, protocol.NOK)
		h.push(sess, protocol.Message("login temporarily unavailable, try again"))
		return false, false
	default:
		h.push(sess, protocol.NOK)
		return false, false
	}

	resumed, err := h.sessions.Authenticate(sess.ID, player)
	if err != nil {
		h.push(sess, protocol.NOK)
		return false, false
	}

	h.push(sess, protocol.Welcome(player.Name))
	for _, s := range h.seeks.List() {
		h.push(sess, protocol.SeekNew(s))
	}

	if resumed != nil && resumed.GameID != 0 {
		h.resumeGame(sess, resumed.GameID)
	}
	return true, false
}

// resumeGame re-sends the game header to a reconnecting player and lifts
// the disconnect pause if both players are back.
func (h *Handler) resumeGame(sess *session.Session, id game.GameID) {
	g, ok := h.games.Get(id)
	if !ok {
		h.sessions.UnbindGame(sess.ID)
		return
	}
	you := game.White
	if g.Black() == sess.Player.ID {
		you = game.Black
	}
	h.push(sess, protocol.GameStart(g.ID(), g.White(), g.Black(), you, g.Size(), g.TimeControl(), g.Rated()))
	w, b := g.Remaining()
	h.push(sess, protocol.GameTime(g.ID(), w, b))
	g.OnReconnect(sess.Player.ID)
}

// commandLoop dispatches parsed commands until the connection drops. A
// malformed line gets NOK and the loop continues; only transport errors end
// the session.
func (h *Handler) commandLoop(ctx context.Context, conn *telnet.Conn, sess *session.Session) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		line, err := conn.ReadLine()
		if err != nil {
			return err
		}
		h.sessions.Heartbeat(sess.ID)

		cmd, err := protocol.Parse(line)
		if err != nil {
			h.push(sess, protocol.NOK)
			continue
		}
		if cmd == nil {
			continue
		}
		if _, isLogout := cmd.(protocol.Logout); isLogout {
			return nil
		}
		h.dispatch(ctx, sess, cmd)
	}
}

// onDisconnect tears a session's live state down: its seek leaves the
// lobby, its rooms are left, and its game is told so the grace window can
// start. The session itself survives for the reconnect window.
func (h *Handler) onDisconnect(sess *session.Session) {
	if s, ok := h.seeks.CancelByOwner(sess.Player.ID); ok {
		h.broadcast(protocol.SeekRemove(*s))
	}
	h.chat.LeaveAll(sess.ID)

	h.sessions.MarkDisconnected(sess.ID)

	if id := h.sessions.GameOf(sess.ID); id != 0 {
		if g, ok := h.games.Get(id); ok {
			g.OnDisconnect(sess.Player.ID)
		}
	}
}

// push enqueues a line for one session, dropping it if the client is gone
// or not draining.
func (h *Handler) push(sess *session.Session, line string) {
	if err := sess.Outbox.Push(line); err != nil {
		h.logger.Debug("dropping line",
			zap.String("session_id", sess.ID.String()),
			zap.Error(err),
		)
	}
}

// pushTo enqueues a line for a player's connected session, if any.
func (h *Handler) pushTo(p game.PlayerID, line string) {
	sess, ok := h.sessions.ConnectedByPlayer(p)
	if !ok {
		return
	}
	h.push(sess, line)
}

// broadcast enqueues a line for every connected, authenticated session.
func (h *Handler) broadcast(line string) {
	for _, sess := range h.sessions.Connected() {
		h.push(sess, line)
	}
}

// kick force-disconnects a player's session.
func (h *Handler) kick(p game.PlayerID, notice string) bool {
	sess, ok := h.sessions.ConnectedByPlayer(p)
	if !ok {
		return false
	}
	h.push(sess, protocol.Message(notice))

	h.mu.Lock()
	conn := h.conns[sess.ID]
	h.mu.Unlock()
	if conn != nil {
		conn.Close()
	}
	return true
}
