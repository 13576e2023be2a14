package sim

import (
	"go.uber.org/zap"

	"github.com/wippyai/pgbridge"
	"github.com/wippyai/pgbridge/errors"
)

// ErrTerminated is returned by Call after a fatal report ended the session.
var ErrTerminated = errors.InvalidInput(errors.PhaseHost, "session terminated by a fatal error")

// CallResult is a function result. By-reference values live in Arena, which
// belongs to the caller until Close.
type CallResult struct {
	engine *Engine
	Arena  pgbridge.ArenaPtr
	Value  pgbridge.Datum
	IsNull bool
}

// Close deletes the per-call arena.
func (r *CallResult) Close() error {
	if r == nil || r.Arena == 0 {
		return nil
	}
	err := r.engine.Delete(r.Arena)
	r.Arena = 0
	return err
}

// Call invokes fn the way the host's executor does: in a fresh ExprContext
// arena under MessageContext that is current for the duration of the call,
// under the top-level catch point.
//
// A report that reaches the top is returned as a host_signaled error. A
// fatal one also terminates the engine.
func (e *Engine) Call(fn pgbridge.Function, fc *pgbridge.CallInfo) (*CallResult, error) {
	if e.Terminated() {
		return nil, ErrTerminated
	}
	if fc == nil {
		fc = &pgbridge.CallInfo{}
	}
	fc.IsNull = false

	exprCtx, err := e.NewContext(e.message.id, "ExprContext", pgbridge.TagAllocSet)
	if err != nil {
		return nil, err
	}
	prev := e.CurrentArena()
	e.SetCurrentArena(exprCtx)
	defer e.SetCurrentArena(prev)

	var d pgbridge.Datum
	rep := e.catchAll(func() {
		e.checkInterrupts()
		d = fn(fc)
	})
	if rep != nil {
		if err := e.Delete(exprCtx); err != nil {
			Logger().Error("delete call context", zap.Error(err))
		}
		if rep.Level >= errors.LevelFatal {
			e.mu.Lock()
			e.terminated = true
			e.mu.Unlock()
			Logger().Warn("session terminated", zap.String("message", rep.Message))
		}
		return nil, errors.HostSignaled(rep)
	}
	return &CallResult{engine: e, Arena: exprCtx, Value: d, IsNull: fc.IsNull}, nil
}

// Terminated reports whether a fatal report ended the session.
func (e *Engine) Terminated() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.terminated
}

// SetCancelPending arms a query cancel that the next interrupt check raises.
func (e *Engine) SetCancelPending(on bool) {
	e.mu.Lock()
	e.cancel = on
	e.mu.Unlock()
}

// CheckForInterrupts is a host entry point. It raises a query-canceled error
// if a cancel is pending.
func (e *Engine) CheckForInterrupts() {
	e.checkInterrupts()
}

func (e *Engine) checkInterrupts() {
	e.mu.Lock()
	pending := e.cancel
	e.cancel = false
	e.mu.Unlock()
	if pending {
		e.Raise(&errors.Report{
			Level:   errors.LevelError,
			Code:    errors.CodeQueryCanceled,
			Message: "canceling statement due to user request",
		})
	}
}

// PStrDup is a host entry point that copies s, NUL-terminated, into the
// current arena.
func (e *Engine) PStrDup(s string) pgbridge.Ptr {
	p := e.Alloc(e.CurrentArena(), uint32(len(s)+1), 0)
	buf := make([]byte, len(s)+1)
	copy(buf, s)
	if err := e.Write(p, buf); err != nil {
		e.Raise(internalError(err.Error()))
	}
	return p
}

// Ereport is a host entry point that raises a report with level, code and
// message. Below errors.LevelError it returns.
func (e *Engine) Ereport(level errors.Level, code errors.SQLState, msg string) {
	e.Raise(&errors.Report{
		Level:   level,
		Code:    code,
		Message: msg,
		Location: errors.Location{
			File: "sim/call.go",
			Func: "Ereport",
		},
	})
}
