package guard

import (
	"fmt"
	"runtime"

	"go.uber.org/zap"

	"github.com/wippyai/pgbridge"
	"github.com/wippyai/pgbridge/errors"
)

// Config holds configuration for bridge creation.
type Config struct {
	// Observer receives state transitions. Nil means none.
	Observer Observer

	// CaptureLocation records the Go caller of Throw and the panic site in
	// the reports Boundary produces for errors that carry no location.
	CaptureLocation bool
}

// Bridge carries errors between Go and one host.
type Bridge struct {
	host     pgbridge.Host
	observer Observer
	state    State
	location bool
}

// New creates a bridge for h. A nil cfg uses defaults.
func New(h pgbridge.Host, cfg *Config) *Bridge {
	if h == nil {
		panic(errors.InvariantViolation("guard: nil host"))
	}
	b := &Bridge{host: h}
	if cfg != nil {
		b.observer = cfg.Observer
		b.location = cfg.CaptureLocation
	}
	return b
}

// Host returns the bridged host.
func (b *Bridge) Host() pgbridge.Host {
	return b.host
}

// State returns the current state.
func (b *Bridge) State() State {
	return b.state
}

func (b *Bridge) transition(to State, rep *errors.Report) {
	from := b.state
	b.state = to
	if ce := Logger().Check(zap.DebugLevel, "transition"); ce != nil {
		fields := []zap.Field{zap.Stringer("from", from), zap.Stringer("to", to)}
		if rep != nil {
			fields = append(fields,
				zap.String("code", string(rep.Code)),
				zap.String("message", rep.Message))
		}
		ce.Write(fields...)
	}
	if b.observer != nil {
		b.observer.Transition(from, to, rep)
	}
}

// Call runs fn at a fresh host catch point. fn is expected to call host
// entry points that may fire the signal. A fired signal is returned as a
// host_signaled error carrying the captured report.
func (b *Bridge) Call(fn func()) error {
	rep := b.host.Intercept(fn)
	if rep == nil {
		return nil
	}
	b.transition(StateHostPending, rep)
	err := errors.HostSignaled(rep)
	b.transition(StateRaised, rep)
	return err
}

// CallValue is Call for a body that returns a value. On error the zero
// value is returned.
func CallValue[T any](b *Bridge, fn func() T) (T, error) {
	var v T
	err := b.Call(func() {
		v = fn()
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return v, nil
}

// thrown carries an error propagated by panic.
type thrown struct {
	err error
	loc errors.Location
}

// Throw propagates err by panicking. The panic unwinds Go frames, running
// their defers, to the nearest Catch or Boundary. A nil err is ignored.
func Throw(err error) {
	if err == nil {
		return
	}
	t := &thrown{err: err}
	if pc, file, line, ok := runtime.Caller(1); ok {
		t.loc = errors.Location{File: file, Line: line}
		if fn := runtime.FuncForPC(pc); fn != nil {
			t.loc.Func = fn.Name()
		}
	}
	panic(t)
}

// Catch runs fn and returns the error it returned or threw. A caught
// host_signaled error returns the bridge to Normal. Panics other than
// Throw, and thrown invariant violations, keep unwinding.
func (b *Bridge) Catch(fn func() error) (err error) {
	defer func() {
		r := recover()
		if r == nil {
			return
		}
		t, ok := r.(*thrown)
		if !ok {
			panic(r)
		}
		if errors.IsKind(t.err, errors.KindInvariantViolation) {
			panic(t.err)
		}
		err = t.err
		b.caught(err)
	}()
	err = fn()
	if err != nil {
		b.caught(err)
	}
	return err
}

func (b *Bridge) caught(err error) {
	if b.state == StateNormal {
		return
	}
	b.transition(StateNormal, errors.ReportFor(err))
}

// Boundary runs fn as the outermost Go frame of a host-invoked function. An
// error returned or thrown by fn, an invariant violation, or a Go panic, is
// converted into a report and raised with the host signal; Boundary then
// does not return.
//
// fn should reach host entry points only through Call. A signal that fires
// outside Call is caught here and re-raised as is.
func (b *Bridge) Boundary(fn func() error) {
	if b.state != StateNormal {
		b.transition(StateNormal, nil)
	}

	var rep *errors.Report
	stray := b.host.Intercept(func() {
		rep = b.run(fn)
	})
	if stray != nil {
		Logger().Warn("host signal fired outside a guarded call",
			zap.String("code", string(stray.Code)),
			zap.String("message", stray.Message))
		rep = stray
	}
	if rep == nil {
		return
	}
	if b.state == StateNormal {
		b.transition(StateRaised, rep)
	}
	b.transition(StateReEntering, rep)
	b.host.Raise(rep)
}

func (b *Bridge) run(fn func() error) (rep *errors.Report) {
	defer func() {
		r := recover()
		if r == nil {
			return
		}
		if _, ok := r.(pgbridge.Signal); ok {
			panic(r)
		}
		rep = b.reportForPanic(r)
	}()
	if err := fn(); err != nil {
		rep = errors.ReportFor(err)
	}
	return rep
}

func (b *Bridge) reportForPanic(r any) *errors.Report {
	var (
		rep *errors.Report
		loc errors.Location
	)
	switch v := r.(type) {
	case *thrown:
		rep = errors.ReportFor(v.err)
		if !errors.IsKind(v.err, errors.KindHostSignaled) {
			loc = v.loc
		}
	case *errors.Error:
		rep = errors.ReportFor(v)
		if v.Kind == errors.KindInvariantViolation {
			Logger().Error("invariant violation", zap.String("detail", v.Detail))
		}
	default:
		err := errors.New(errors.PhaseBoundary, errors.KindPanic).
			Value(r).
			Detail("%v", r).
			Build()
		rep = errors.ReportFor(err)
		Logger().Error("panic at boundary", zap.String("panic", fmt.Sprint(r)), zap.Stack("stack"))
	}
	if b.location && rep.Location == (errors.Location{}) && loc != (errors.Location{}) {
		rep = rep.Clone()
		rep.Location = loc
	}
	return rep
}
