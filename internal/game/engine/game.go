package engine

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/cairnhall/takserver/internal/game"
	"github.com/cairnhall/takserver/internal/game/clock"
	"github.com/cairnhall/takserver/internal/game/rules"
	"github.com/cairnhall/takserver/internal/rating"
)

// State is a game's lifecycle phase.
type State int

const (
	// StatePending is a freshly created game, before activation.
	StatePending State = iota
	// StateActive is a game in play with a running clock.
	StateActive
	// StatePaused is an active game suspended because a participant
	// disconnected; it returns to StateActive on reconnect or terminates
	// when the grace timer fires.
	StatePaused
	// StateCompleted is terminal. A game reaches it exactly once.
	StateCompleted
)

// Reason records why a game completed.
type Reason int

const (
	ReasonWinByPlay Reason = iota
	ReasonDraw
	ReasonResignation
	ReasonDrawAgreement
	ReasonTimeout
	ReasonAbandonment
	// ReasonVoided marks a pending game whose first move never arrived.
	ReasonVoided
)

// String returns a short name for logs and completion events.
func (r Reason) String() string {
	switch r {
	case ReasonWinByPlay:
		return "win_by_play"
	case ReasonDraw:
		return "draw"
	case ReasonResignation:
		return "resignation"
	case ReasonDrawAgreement:
		return "draw_agreement"
	case ReasonTimeout:
		return "timeout"
	case ReasonAbandonment:
		return "abandonment"
	default:
		return "voided"
	}
}

var (
	// ErrNotPlayer reports a command from someone outside the game.
	ErrNotPlayer = errors.New("not a player in this game")
	// ErrNotYourTurn reports a move by the player not on turn.
	ErrNotYourTurn = errors.New("not your turn")
	// ErrGameOver reports a gameplay command on a terminal game.
	ErrGameOver = errors.New("game is over")
	// ErrGamePaused reports a move while the game is suspended on a
	// disconnect.
	ErrGamePaused = errors.New("game is paused")
	// ErrGameNotStarted reports a gameplay command on a pending game.
	ErrGameNotStarted = errors.New("game has not started")
	// ErrRematchExpired reports a rematch offer outside the rematch window.
	ErrRematchExpired = errors.New("rematch window has closed")
)

// Policy fixes the timing behavior of a game at creation.
type Policy struct {
	// DisconnectGrace is how long a disconnected participant has to return
	// before the game is abandoned in the opponent's favor.
	DisconnectGrace time.Duration
	// PauseClockOnDisconnect suspends the running clock during the grace
	// window. When false the clock keeps draining, legacy style.
	PauseClockOnDisconnect bool
	// PendingTimeout voids a game whose first move never arrives.
	PendingTimeout time.Duration
	// RematchWindow bounds how long after completion a rematch agreement
	// can form. Zero means unbounded.
	RematchWindow time.Duration
}

// Game is one game's full state. All mutation happens under g.mu; the
// engine instance owning the lock is the game's single logical owner, so
// concurrent ApplyMove calls are strictly ordered.
type Game struct {
	mu sync.Mutex

	id     game.GameID
	white  game.PlayerID
	black  game.PlayerID
	preset game.BoardPreset
	tc     game.TimeControl
	rated  bool

	state  State
	reason Reason
	result game.Result
	moves  []game.Move

	ratings [2]int // placeholder per color, assigned on completion

	clock  *clock.Clock
	rules  rules.Engine
	policy Policy

	announced     bool
	drawOffers    [2]bool
	rematchOffers [2]bool
	absent        [2]bool
	graceTimers   [2]*deferredTimer
	pendingTimer  *deferredTimer

	createdAt time.Time
	endedAt   time.Time

	notify Notify
	logger *zap.Logger
}

// ID returns the game id.
func (g *Game) ID() game.GameID { return g.id }

// White returns the white player's id.
func (g *Game) White() game.PlayerID { return g.white }

// Black returns the black player's id.
func (g *Game) Black() game.PlayerID { return g.black }

// Size returns the board size.
func (g *Game) Size() int { return g.preset.Size }

// TimeControl returns the game's time control.
func (g *Game) TimeControl() game.TimeControl { return g.tc }

// Rated reports whether the game counts for rating.
func (g *Game) Rated() bool { return g.rated }

// State returns the current lifecycle phase.
func (g *Game) State() State {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state
}

// Moves returns a copy of the move sequence.
func (g *Game) Moves() []game.Move {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]game.Move, len(g.moves))
	copy(out, g.moves)
	return out
}

// Remaining returns both clocks.
func (g *Game) Remaining() (white, black time.Duration) {
	return g.clock.Remaining()
}

// Opponent returns the other participant.
//
// Precondition: p is a participant.
func (g *Game) Opponent(p game.PlayerID) game.PlayerID {
	if p == g.white {
		return g.black
	}
	return g.white
}

// HasPlayer reports whether p participates in this game.
func (g *Game) HasPlayer(p game.PlayerID) bool {
	return p == g.white || p == g.black
}

// colorOf maps a participant to their color.
func (g *Game) colorOf(p game.PlayerID) (game.Color, bool) {
	switch p {
	case g.white:
		return game.White, true
	case g.black:
		return game.Black, true
	default:
		return game.White, false
	}
}

// Announce emits EventCreated exactly once. Matched games are built inside
// the seek registry's critical section, where no event handler may run, so
// announcing is a separate step the caller takes after the post returns.
func (g *Game) Announce() {
	g.mu.Lock()
	if g.announced {
		g.mu.Unlock()
		return
	}
	g.announced = true
	ev := Event{
		Type:   EventCreated,
		GameID: g.id,
		White:  g.white,
		Black:  g.black,
		Size:   g.preset.Size,
		Rated:  g.rated,
	}
	g.mu.Unlock()

	g.emit(ev)
}

// Activate moves a pending game into play and starts the first mover's
// clock. Activating a non-pending game is a no-op.
func (g *Game) Activate() {
	g.mu.Lock()
	if g.state != StatePending {
		g.mu.Unlock()
		return
	}
	g.state = StateActive
	g.mu.Unlock()

	g.clock.Start(game.White)
	g.logger.Info("game active",
		zap.Uint32("game_id", uint32(g.id)),
		zap.String("white", string(g.white)),
		zap.String("black", string(g.black)),
	)
}

// ApplyMove validates and applies p's move, settles the clocks, and flips
// turn ownership. A rules-engine terminal verdict completes the game.
//
// Postcondition: on success the move sequence grew by exactly one entry.
func (g *Game) ApplyMove(p game.PlayerID, mv game.Move) error {
	g.mu.Lock()

	color, ok := g.colorOf(p)
	if !ok {
		g.mu.Unlock()
		return ErrNotPlayer
	}
	switch g.state {
	case StatePending:
		g.mu.Unlock()
		return ErrGameNotStarted
	case StatePaused:
		g.mu.Unlock()
		return ErrGamePaused
	case StateCompleted:
		g.mu.Unlock()
		return ErrGameOver
	}

	pos := rules.Position{Preset: g.preset, Moves: g.moves}
	if pos.ToMove() != color {
		g.mu.Unlock()
		return ErrNotYourTurn
	}

	verdict, err := g.rules.Check(pos, mv)
	if err != nil {
		g.mu.Unlock()
		if errors.Is(err, rules.ErrIllegalMove) {
			return err
		}
		return fmt.Errorf("rules engine: %w", err)
	}

	g.moves = append(g.moves, mv)
	if g.pendingTimer != nil {
		g.pendingTimer.Stop()
		g.pendingTimer = nil
	}
	// A move supersedes any standing draw offer from either side.
	g.drawOffers = [2]bool{}

	var evs []Event
	if verdict.Terminal {
		reason := ReasonWinByPlay
		if _, decisive := verdict.Result.Winner(); !decisive {
			reason = ReasonDraw
		}
		evs = g.completeLocked(reason, verdict.Result)
	} else {
		g.clock.Press()
	}

	w, b := g.clock.Remaining()
	moved := Event{
		Type:           EventMoveApplied,
		GameID:         g.id,
		White:          g.white,
		Black:          g.black,
		Mover:          p,
		Move:           mv,
		WhiteRemaining: w,
		BlackRemaining: b,
	}
	g.mu.Unlock()

	g.emit(moved)
	g.emit(evs...)
	return nil
}

// Resign completes the game in the opponent's favor.
func (g *Game) Resign(p game.PlayerID) error {
	g.mu.Lock()

	color, ok := g.colorOf(p)
	if !ok {
		g.mu.Unlock()
		return ErrNotPlayer
	}
	if g.state == StateCompleted {
		g.mu.Unlock()
		return ErrGameOver
	}
	evs := g.completeLocked(ReasonResignation, game.DefaultWin(color.Opponent()))
	g.mu.Unlock()

	g.emit(evs...)
	return nil
}

// OfferDraw records or withdraws p's draw offer. When both sides have a
// standing offer the game completes as a draw by agreement.
func (g *Game) OfferDraw(p game.PlayerID, offer bool) error {
	g.mu.Lock()

	color, ok := g.colorOf(p)
	if !ok {
		g.mu.Unlock()
		return ErrNotPlayer
	}
	if g.state == StateCompleted {
		g.mu.Unlock()
		return ErrGameOver
	}
	if g.state == StatePending {
		g.mu.Unlock()
		return ErrGameNotStarted
	}

	g.drawOffers[color] = offer
	evs := []Event{{
		Type:    EventDrawOffer,
		GameID:  g.id,
		White:   g.white,
		Black:   g.black,
		Offerer: p,
		Offered: offer,
	}}
	if g.drawOffers[game.White] && g.drawOffers[game.Black] {
		evs = append(evs, g.completeLocked(ReasonDrawAgreement, game.ResultDraw)...)
	}
	g.mu.Unlock()

	g.emit(evs...)
	return nil
}

// RequestRematch records p's rematch offer on a completed game. It returns
// true when both participants have offered; the caller then creates the
// follow-up game with swapped colors.
func (g *Game) RequestRematch(p game.PlayerID) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	color, ok := g.colorOf(p)
	if !ok {
		return false, ErrNotPlayer
	}
	if g.state != StateCompleted {
		return false, ErrGameNotStarted
	}
	if g.policy.RematchWindow > 0 && time.Since(g.endedAt) > g.policy.RematchWindow {
		return false, ErrRematchExpired
	}

	g.rematchOffers[color] = true
	if g.rematchOffers[game.White] && g.rematchOffers[game.Black] {
		// Consume the agreement so duplicate requests cannot spawn a
		// second game.
		g.rematchOffers = [2]bool{}
		return true, nil
	}
	return false, nil
}

// OnDisconnect suspends the game for a disconnected participant and starts
// that player's abandonment grace timer. The game itself outlives the
// connection; only the grace timer can end it.
func (g *Game) OnDisconnect(p game.PlayerID) {
	g.mu.Lock()

	color, ok := g.colorOf(p)
	if !ok || g.state == StateCompleted {
		g.mu.Unlock()
		return
	}
	if g.absent[color] {
		g.mu.Unlock()
		return
	}
	g.absent[color] = true

	var evs []Event
	if g.state == StateActive {
		g.state = StatePaused
		if g.policy.PauseClockOnDisconnect {
			g.clock.Pause()
		}
		evs = append(evs, Event{
			Type:    EventPaused,
			GameID:  g.id,
			White:   g.white,
			Black:   g.black,
			Subject: p,
		})
	}
	if g.graceTimers[color] != nil {
		g.graceTimers[color].Stop()
	}
	g.graceTimers[color] = newDeferredTimer(g.policy.DisconnectGrace, func() {
		g.onGraceExpired(color)
	})
	g.logger.Info("game paused on disconnect",
		zap.Uint32("game_id", uint32(g.id)),
		zap.String("player", string(p)),
		zap.Duration("grace", g.policy.DisconnectGrace),
	)
	g.mu.Unlock()

	g.emit(evs...)
}

// OnReconnect cancels p's grace timer. When no participant remains absent
// the game returns to Active with clocks resuming where they left off.
func (g *Game) OnReconnect(p game.PlayerID) {
	g.mu.Lock()

	color, ok := g.colorOf(p)
	if !ok || !g.absent[color] {
		g.mu.Unlock()
		return
	}
	g.absent[color] = false
	if g.graceTimers[color] != nil {
		g.graceTimers[color].Stop()
		g.graceTimers[color] = nil
	}

	var evs []Event
	if g.state == StatePaused && !g.absent[color.Opponent()] {
		g.state = StateActive
		if g.policy.PauseClockOnDisconnect {
			g.clock.Resume()
		}
		evs = append(evs, Event{
			Type:    EventResumed,
			GameID:  g.id,
			White:   g.white,
			Black:   g.black,
			Subject: p,
		})
		g.logger.Info("game resumed",
			zap.Uint32("game_id", uint32(g.id)),
			zap.String("player", string(p)),
		)
	}
	g.mu.Unlock()

	g.emit(evs...)
}

// onGraceExpired is the grace timer callback: the absent player forfeits.
// A late firing after reconnect or completion is a no-op.
func (g *Game) onGraceExpired(color game.Color) {
	g.mu.Lock()
	if g.state == StateCompleted || !g.absent[color] {
		g.mu.Unlock()
		return
	}
	evs := g.completeLocked(ReasonAbandonment, game.DefaultWin(color.Opponent()))
	g.mu.Unlock()

	g.emit(evs...)
}

// onFlag is the clock callback: the turn holder ran out of time.
func (g *Game) onFlag(loser game.Color) {
	g.mu.Lock()
	if g.state == StateCompleted {
		g.mu.Unlock()
		return
	}
	evs := g.completeLocked(ReasonTimeout, game.DefaultWin(loser.Opponent()))
	g.mu.Unlock()

	g.emit(evs...)
}

// onPendingExpired voids a game whose first move never arrived.
func (g *Game) onPendingExpired() {
	g.mu.Lock()
	if g.state == StateCompleted || len(g.moves) > 0 {
		g.mu.Unlock()
		return
	}
	evs := g.completeLocked(ReasonVoided, game.ResultNone)
	g.mu.Unlock()

	g.emit(evs...)
}

// completeLocked performs the exactly-once terminal transition: it stops
// the clock, cancels every timer, assigns the rating placeholder, and
// builds the completion event.
//
// Precondition: g.mu held.
// Postcondition: g.state == StateCompleted; repeated calls return nil.
func (g *Game) completeLocked(reason Reason, result game.Result) []Event {
	if g.state == StateCompleted {
		return nil
	}
	g.state = StateCompleted
	g.reason = reason
	g.result = result
	g.endedAt = time.Now()

	g.clock.Stop()
	for i, t := range g.graceTimers {
		if t != nil {
			t.Stop()
			g.graceTimers[i] = nil
		}
	}
	if g.pendingTimer != nil {
		g.pendingTimer.Stop()
		g.pendingTimer = nil
	}

	// Provisional placeholder; the external rating service computes the
	// real values from the completion event.
	g.ratings = [2]int{rating.Pending, rating.Pending}

	w, b := g.clock.Remaining()
	g.logger.Info("game completed",
		zap.Uint32("game_id", uint32(g.id)),
		zap.String("reason", reason.String()),
		zap.String("result", string(result)),
		zap.Duration("elapsed", time.Since(g.createdAt)),
	)
	return []Event{{
		Type:           EventCompleted,
		GameID:         g.id,
		White:          g.white,
		Black:          g.black,
		Reason:         reason,
		Result:         result,
		WhiteRemaining: w,
		BlackRemaining: b,
		Rated:          g.rated,
		Size:           g.preset.Size,
	}}
}

// Outcome returns the terminal reason and result.
//
// Precondition: the game is completed.
func (g *Game) Outcome() (Reason, game.Result) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.state != StateCompleted {
		panic("engine: Game.Outcome() precondition violated: game not completed")
	}
	return g.reason, g.result
}

// Ratings returns the per-color rating placeholders assigned on completion.
func (g *Game) Ratings() (white, black int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.ratings[game.White], g.ratings[game.Black]
}

// emit delivers events in order. Must be called without g.mu held.
func (g *Game) emit(evs ...Event) {
	for _, ev := range evs {
		g.notify(ev)
	}
}
