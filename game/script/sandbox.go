package script

import (
	"context"
	"sync/atomic"

	lua "github.com/yuin/gopher-lua"
)

// DefaultOpcodeLimit is the maximum number of Lua opcodes a program may
// execute when no limit is configured.
const DefaultOpcodeLimit = 1_000_000

// countingContext cancels itself after Done() has been called limit times.
// GopherLua calls Done() once per opcode, which makes this an exact opcode
// budget. Cancelling the parent context stops the VM as well.
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

func (c *countingContext) exhausted() bool {
	return c.remaining.Load() <= 0
}

func newCountingContext(parent context.Context, limit int) (*countingContext, context.CancelFunc) {
	base, cancel := context.WithCancel(parent)
	rem := &atomic.Int64{}
	rem.Store(int64(limit))
	return &countingContext{
		Context:   base,
		cancel:    cancel,
		remaining: rem,
	}, cancel
}

// NewSandboxedState creates a GopherLua LState with:
//   - Only safe stdlib loaded: base, table, string, math
//   - Dangerous globals removed: dofile, loadfile, load, loadstring, collectgarbage, require
//   - Execution limited to at most opcodeLimit Lua opcodes and stopped when
//     parent is done
//
// Precondition: opcodeLimit >= 0; 0 uses DefaultOpcodeLimit.
// Postcondition: The caller owns the LState and must call L.Close() and the
// returned cancel function when done.
func NewSandboxedState(parent context.Context, opcodeLimit int) (*lua.LState, context.CancelFunc) {
	L, _, cancel := newSandbox(parent, opcodeLimit)
	return L, cancel
}

func newSandbox(parent context.Context, opcodeLimit int) (*lua.LState, *countingContext, context.CancelFunc) {
	limit := opcodeLimit
	if limit <= 0 {
		limit = DefaultOpcodeLimit
	}

	L := lua.NewState(lua.Options{SkipOpenLibs: true})

	lua.OpenBase(L)
	lua.OpenTable(L)
	lua.OpenString(L)
	lua.OpenMath(L)

	for _, name := range []string{"dofile", "loadfile", "load", "loadstring", "collectgarbage", "require"} {
		L.SetGlobal(name, lua.LNil)
	}

	ctx, cancel := newCountingContext(parent, limit)
	L.SetContext(ctx)
	return L, ctx, cancel
}
