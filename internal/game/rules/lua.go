package rules

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"

	"github.com/cairnhall/takserver/internal/game"
)

// DefaultInstructionLimit is the maximum number of Lua opcodes allowed per
// Check call when no override is configured.
const DefaultInstructionLimit = 100_000

// checkHook is the Lua global a rules script must define:
//
//	function check(pos, move) -> legal (bool), result (string or nil)
//
// pos and move arrive as tables; a non-nil result string (e.g. "R-0")
// marks the position terminal.
const checkHook = "check"

// LuaEngine is an Engine backed by a sandboxed GopherLua script. The LState
// is single-threaded, so calls are serialized behind a mutex; each call runs
// under its own instruction budget.
type LuaEngine struct {
	mu        sync.Mutex
	state     *lua.LState
	instLimit int
	logger    *zap.Logger
}

// countingContext cancels itself after Done() has been called limit times.
// GopherLua's main loop calls Done() once per opcode, making this an exact
// per-call instruction limit.
type countingContext struct {
	context.Context
	cancel    context.CancelFunc
	remaining *atomic.Int64
}

func (c *countingContext) Done() <-chan struct{} {
	if c.remaining.Add(-1) <= 0 {
		c.cancel()
	}
	return c.Context.Done()
}

func newCountingContext(limit int) context.Context {
	base, cancel := context.WithCancel(context.Background())
	rem := &atomic.Int64{}
	rem.Store(int64(limit))
	return &countingContext{Context: base, cancel: cancel, remaining: rem}
}

// newSandboxedState creates a GopherLua LState with only safe stdlib loaded
// (base, table, string, math) and dangerous globals removed.
func newSandboxedState() *lua.LState {
	L := lua.NewState(lua.Options{SkipOpenLibs: true})

	lua.OpenBase(L)
	lua.OpenTable(L)
	lua.OpenString(L)
	lua.OpenMath(L)

	// Strip dangerous globals left by OpenBase.
	for _, name := range []string{"dofile", "loadfile", "load", "collectgarbage", "require"} {
		L.SetGlobal(name, lua.LNil)
	}
	return L
}

// NewLuaEngine loads a rules script into a fresh sandboxed VM.
//
// Precondition: logger must be non-nil; instLimit >= 0, 0 uses
// DefaultInstructionLimit.
// Postcondition: the script has run and defines the check hook, or a
// non-nil error is returned. The caller must Close the engine when done.
func NewLuaEngine(scriptPath string, instLimit int, logger *zap.Logger) (*LuaEngine, error) {
	if instLimit <= 0 {
		instLimit = DefaultInstructionLimit
	}
	L := newSandboxedState()
	L.SetContext(newCountingContext(instLimit))

	if err := L.DoFile(scriptPath); err != nil {
		L.Close()
		return nil, fmt.Errorf("rules: loading script %q: %w", scriptPath, err)
	}
	if L.GetGlobal(checkHook) == lua.LNil {
		L.Close()
		return nil, fmt.Errorf("rules: script %q does not define %q", scriptPath, checkHook)
	}

	return &LuaEngine{state: L, instLimit: instLimit, logger: logger}, nil
}

// Close releases the Lua VM.
func (e *LuaEngine) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.state.Close()
}

// Check calls the script's check hook with the position and candidate move.
//
// Script runtime errors are logged and surfaced as non-ErrIllegalMove
// errors so the caller can distinguish engine failure from rejection.
func (e *LuaEngine) Check(pos Position, mv game.Move) (Verdict, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	L := e.state
	L.SetContext(newCountingContext(e.instLimit))

	if err := L.CallByParam(lua.P{
		Fn:      L.GetGlobal(checkHook),
		NRet:    2,
		Protect: true,
	}, e.positionTable(pos), e.moveTable(mv)); err != nil {
		e.logger.Warn("rules: Lua runtime error",
			zap.String("hook", checkHook),
			zap.Error(err),
		)
		return Verdict{}, fmt.Errorf("rules: script error: %w", err)
	}

	result := L.Get(-1)
	legal := L.Get(-2)
	L.Pop(2)

	if !lua.LVAsBool(legal) {
		return Verdict{}, fmt.Errorf("%w: rejected by rules script", ErrIllegalMove)
	}
	if s, ok := result.(lua.LString); ok && s != "" {
		return Verdict{Terminal: true, Result: game.Result(s)}, nil
	}
	return Verdict{}, nil
}

// positionTable converts a Position into the Lua table shape the hook sees:
// size, pieces, capstones, half_komi, ply, to_move, and moves (wire strings).
func (e *LuaEngine) positionTable(pos Position) *lua.LTable {
	L := e.state
	t := L.NewTable()
	t.RawSetString("size", lua.LNumber(pos.Preset.Size))
	t.RawSetString("pieces", lua.LNumber(pos.Preset.Pieces))
	t.RawSetString("capstones", lua.LNumber(pos.Preset.Capstones))
	t.RawSetString("half_komi", lua.LNumber(pos.Preset.HalfKomi))
	t.RawSetString("ply", lua.LNumber(pos.Ply()))
	t.RawSetString("to_move", lua.LString(pos.ToMove().String()))

	moves := L.NewTable()
	for i, m := range pos.Moves {
		moves.RawSetInt(i+1, lua.LString(m.String()))
	}
	t.RawSetString("moves", moves)
	return t
}

// moveTable converts a Move into a Lua table.
func (e *LuaEngine) moveTable(mv game.Move) *lua.LTable {
	L := e.state
	t := L.NewTable()
	if mv.Kind == game.PlaceMove {
		t.RawSetString("kind", lua.LString("place"))
		t.RawSetString("at", lua.LString(mv.At.String()))
		t.RawSetString("piece", lua.LString(mv.Piece.String()))
		return t
	}
	t.RawSetString("kind", lua.LString("spread"))
	t.RawSetString("from", lua.LString(mv.From.String()))
	t.RawSetString("to", lua.LString(mv.To.String()))
	drops := L.NewTable()
	for i, d := range mv.Drops {
		drops.RawSetInt(i+1, lua.LNumber(d))
	}
	t.RawSetString("drops", drops)
	return t
}
