package sim

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
	"go.uber.org/zap"

	"github.com/wippyai/pgbridge"
	"github.com/wippyai/pgbridge/errors"
)

// jump is the engine's abrupt signal. The report itself lives in
// ErrorContext memory; the jump only carries where to find it.
type jump struct {
	engine *Engine
	data   pgbridge.Ptr
	size   uint32
	level  errors.Level
}

// HostSignal implements pgbridge.Signal.
func (j *jump) HostSignal() {}

func (j *jump) String() string {
	return fmt.Sprintf("sim: uncaught %s signal (error data at %#x)", j.level, uint64(j.data))
}

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error
	if encMode, err = cbor.CoreDetEncOptions().EncMode(); err != nil {
		panic(err)
	}
	// Host text is in the server encoding, not necessarily UTF-8.
	if decMode, err = (cbor.DecOptions{UTF8: cbor.UTF8DecodeInvalid}).DecMode(); err != nil {
		panic(err)
	}
}

// Raise implements pgbridge.Host. Reports below errors.LevelError are
// recorded as notices and Raise returns. Anything else is staged in
// ErrorContext and the signal fires.
func (e *Engine) Raise(r *errors.Report) {
	if r == nil {
		r = internalError("error raised without a report")
	}
	if r.Level < errors.LevelError {
		e.mu.Lock()
		e.notices = append(e.notices, r.Clone())
		e.mu.Unlock()
		Logger().Debug("notice", zap.Stringer("level", r.Level), zap.String("message", r.Message))
		return
	}

	data, err := encMode.Marshal(r)
	if err != nil {
		panic(fmt.Sprintf("sim: encode error data: %v", err))
	}

	e.mu.Lock()
	p, rep := e.allocLocked(e.errorCtx, uint32(len(data)), 0)
	if rep == nil {
		ch, off, _ := e.rangeLocked(p, uint32(len(data)))
		copy(ch.buf[off:], data)
	}
	depth := e.depth
	e.mu.Unlock()
	if rep != nil {
		panic("sim: " + rep.Message)
	}

	Logger().Debug("raise",
		zap.Stringer("level", r.Level),
		zap.String("code", string(r.Code)),
		zap.String("message", r.Message),
		zap.Int("depth", depth))
	panic(&jump{engine: e, data: p, size: uint32(len(data)), level: r.Level})
}

// Intercept implements pgbridge.Host. It catches signals at levels below
// errors.LevelFatal raised by this engine, copies the report out of
// ErrorContext, and flushes the error state. Fatal signals and foreign
// panics pass through.
func (e *Engine) Intercept(body func()) (rep *errors.Report) {
	e.enter()
	defer func() {
		e.leave()
		r := recover()
		if r == nil {
			return
		}
		j, ok := r.(*jump)
		if !ok || j.engine != e || j.level >= errors.LevelFatal {
			panic(r)
		}
		rep = e.takeErrorData(j)
	}()
	body()
	return nil
}

// catchAll is the top-level catch point. Unlike Intercept it also stops
// fatal signals.
func (e *Engine) catchAll(body func()) (rep *errors.Report) {
	e.enter()
	defer func() {
		e.leave()
		r := recover()
		if r == nil {
			return
		}
		j, ok := r.(*jump)
		if !ok || j.engine != e {
			panic(r)
		}
		rep = e.takeErrorData(j)
	}()
	body()
	return nil
}

func (e *Engine) enter() {
	e.mu.Lock()
	e.depth++
	e.mu.Unlock()
}

func (e *Engine) leave() {
	e.mu.Lock()
	e.depth--
	e.mu.Unlock()
}

func (e *Engine) takeErrorData(j *jump) *errors.Report {
	rep := &errors.Report{}
	buf, err := e.Read(j.data, j.size)
	if err == nil {
		err = decMode.Unmarshal(buf, rep)
	}
	if err != nil {
		Logger().Error("error data unreadable", zap.Error(err))
		rep = internalError("error data lost")
		rep.Level = j.level
	}
	if err := e.Reset(e.errorCtx.id); err != nil {
		Logger().Error("flush error state", zap.Error(err))
	}
	return rep
}

// Notices returns the reports raised below errors.LevelError and clears them.
func (e *Engine) Notices() []*errors.Report {
	e.mu.Lock()
	defer e.mu.Unlock()
	n := e.notices
	e.notices = nil
	return n
}
