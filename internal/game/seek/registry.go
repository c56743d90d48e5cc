// Package seek implements the matchmaking registry: an insertion-ordered
// bulletin board of open seeks with post-time compatibility matching.
package seek

import (
	"errors"
	"math/rand"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/cairnhall/takserver/internal/game"
)

var (
	// ErrInvalidSpec reports a seek with an unplayable board size or time
	// control.
	ErrInvalidSpec = errors.New("invalid seek spec")
	// ErrSeekExists reports a second open seek from the same player.
	ErrSeekExists = errors.New("player already has an open seek")
	// ErrNotFound reports a seek id with no open seek.
	ErrNotFound = errors.New("seek not found")
	// ErrNotOwner reports a cancel attempt by someone other than the owner.
	ErrNotOwner = errors.New("seek belongs to another player")
)

// Spec describes the game a seek invites.
type Spec struct {
	Size        int
	TimeControl game.TimeControl
	Color       game.ColorPref
	Rated       bool
	// Opponent restricts the seek to one player. Empty means anyone.
	Opponent game.PlayerID
	// RematchOf links a rematch seek to the completed game it follows.
	RematchOf game.GameID
}

// Seek is an open invitation. Terminal states — matched or canceled — are
// mutually exclusive; either way the seek leaves the registry for good.
type Seek struct {
	ID        game.SeekID
	Owner     game.PlayerID
	Spec      Spec
	CreatedAt time.Time
}

// Match is the atomic outcome of a compatible post: both seeks are gone and
// colors are assigned.
type Match struct {
	Seek  Seek          // the pre-existing seek that matched
	Taker game.PlayerID // the poster whose seek completed the match
	White game.PlayerID
	Black game.PlayerID
}

// Registry holds all open seeks. It is safe for concurrent use; matching,
// removal of both seeks, and the caller's game creation all happen inside
// one critical section, so no partially matched state is ever observable.
type Registry struct {
	mu      sync.Mutex
	nextID  game.SeekID
	order   []game.SeekID // insertion order
	seeks   map[game.SeekID]*Seek
	byOwner map[game.PlayerID]game.SeekID

	presets game.Presets
	coin    func() bool // color flip for PrefAny vs PrefAny
	logger  *zap.Logger
}

// NewRegistry creates an empty registry.
//
// Precondition: presets and logger must be non-nil.
func NewRegistry(presets game.Presets, logger *zap.Logger) *Registry {
	return &Registry{
		nextID:  1,
		seeks:   make(map[game.SeekID]*Seek),
		byOwner: make(map[game.PlayerID]game.SeekID),
		presets: presets,
		coin:    func() bool { return rand.Int63()&1 == 0 },
		logger:  logger,
	}
}

// Post registers a new seek for owner, first scanning for a compatible
// counter-seek in insertion order. On a match, both seeks are removed and
// onMatch runs inside the critical section; the returned seek is nil. If no
// seek matches, the new seek is stored and returned.
//
// Precondition: onMatch must not be nil and must not call back into the
// registry.
// Postcondition: owner has at most one open seek; a matched counter-seek
// never reappears in List.
func (r *Registry) Post(owner game.PlayerID, spec Spec, onMatch func(Match)) (*Seek, error) {
	if err := r.validate(spec); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, open := r.byOwner[owner]; open {
		return nil, ErrSeekExists
	}

	for _, id := range r.order {
		candidate := r.seeks[id]
		if !r.compatible(candidate, owner, spec) {
			continue
		}
		r.removeLocked(candidate.ID)
		m := r.assignColors(*candidate, owner, spec.Color)
		r.logger.Info("seeks matched",
			zap.Uint32("seek_id", uint32(candidate.ID)),
			zap.String("owner", string(candidate.Owner)),
			zap.String("taker", string(owner)),
			zap.Int("size", candidate.Spec.Size),
		)
		onMatch(m)
		return nil, nil
	}

	s := &Seek{
		ID:        r.nextID,
		Owner:     owner,
		Spec:      spec,
		CreatedAt: time.Now(),
	}
	r.nextID++
	r.seeks[s.ID] = s
	r.byOwner[owner] = s.ID
	r.order = append(r.order, s.ID)

	r.logger.Info("seek posted",
		zap.Uint32("seek_id", uint32(s.ID)),
		zap.String("owner", string(owner)),
		zap.Int("size", spec.Size),
		zap.String("time_control", spec.TimeControl.String()),
		zap.Bool("rated", spec.Rated),
	)
	copied := *s
	return &copied, nil
}

// Cancel removes owner's seek by id.
func (r *Registry) Cancel(owner game.PlayerID, id game.SeekID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.seeks[id]
	if !ok {
		return ErrNotFound
	}
	if s.Owner != owner {
		return ErrNotOwner
	}
	r.removeLocked(id)
	r.logger.Info("seek canceled",
		zap.Uint32("seek_id", uint32(id)),
		zap.String("owner", string(owner)),
	)
	return nil
}

// CancelByOwner removes owner's open seek, if any, and returns it. Used
// when a seeking player disconnects.
func (r *Registry) CancelByOwner(owner game.PlayerID) (*Seek, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	id, ok := r.byOwner[owner]
	if !ok {
		return nil, false
	}
	s := *r.seeks[id]
	r.removeLocked(id)
	return &s, true
}

// List returns copies of all open seeks in insertion order.
func (r *Registry) List() []Seek {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Seek, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, *r.seeks[id])
	}
	return out
}

// Open returns owner's open seek, if any.
func (r *Registry) Open(owner game.PlayerID) (*Seek, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	id, ok := r.byOwner[owner]
	if !ok {
		return nil, false
	}
	s := *r.seeks[id]
	return &s, true
}

func (r *Registry) validate(spec Spec) error {
	if _, ok := r.presets[spec.Size]; !ok {
		return errors.Join(ErrInvalidSpec, errors.New("unsupported board size"))
	}
	if !spec.TimeControl.Valid() {
		return errors.Join(ErrInvalidSpec, errors.New("unplayable time control"))
	}
	return nil
}

// compatible reports whether candidate can match a new seek posted by taker.
func (r *Registry) compatible(candidate *Seek, taker game.PlayerID, spec Spec) bool {
	if candidate.Owner == taker {
		return false
	}
	cs := candidate.Spec
	if cs.Size != spec.Size || cs.TimeControl != spec.TimeControl || cs.Rated != spec.Rated {
		return false
	}
	if !cs.Color.Compatible(spec.Color) {
		return false
	}
	if cs.Opponent != "" && cs.Opponent != taker {
		return false
	}
	if spec.Opponent != "" && spec.Opponent != candidate.Owner {
		return false
	}
	return true
}

// assignColors resolves the matched pair's colors: a fixed preference on
// the standing seek wins, then the taker's, then a coin flip.
func (r *Registry) assignColors(s Seek, taker game.PlayerID, takerPref game.ColorPref) Match {
	m := Match{Seek: s, Taker: taker}
	switch {
	case s.Spec.Color == game.PrefWhite:
		m.White, m.Black = s.Owner, taker
	case s.Spec.Color == game.PrefBlack:
		m.White, m.Black = taker, s.Owner
	case takerPref == game.PrefWhite:
		m.White, m.Black = taker, s.Owner
	case takerPref == game.PrefBlack:
		m.White, m.Black = s.Owner, taker
	case r.coin():
		m.White, m.Black = s.Owner, taker
	default:
		m.White, m.Black = taker, s.Owner
	}
	return m
}

// removeLocked deletes a seek from all three structures.
func (r *Registry) removeLocked(id game.SeekID) {
	s := r.seeks[id]
	delete(r.seeks, id)
	delete(r.byOwner, s.Owner)
	for i, v := range r.order {
		if v == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
}
