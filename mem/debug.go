package mem

import (
	"reflect"
	"runtime"
	"sync"
	"sync/atomic"
	"weak"

	"go.uber.org/zap"

	"github.com/wippyai/pgbridge"
	"github.com/wippyai/pgbridge/errors"
)

var debugChecks atomic.Bool

func init() {
	debugChecks.Store(debugBuild)
}

// DebugChecks reports whether handle validity assertions are enabled.
func DebugChecks() bool {
	return debugChecks.Load()
}

// SetDebugChecks enables or disables handle validity assertions and returns
// the previous setting.
func SetDebugChecks(on bool) bool {
	return debugChecks.Swap(on)
}

func violation(msg string, args ...any) {
	panic(errors.InvariantViolation(msg, args...))
}

// liveness records whether an arena has been reset since it was tracked.
type liveness struct {
	reset atomic.Bool
}

func (l *liveness) dead() bool {
	return l != nil && l.reset.Load()
}

// trackKey identifies an arena without keeping its host reachable.
type trackKey struct {
	host uintptr
	ptr  pgbridge.ArenaPtr
}

// tracked shares one liveness record per arena epoch. Entries are weak: a
// record lives as long as the host holds its reset callback, and the entry
// is dropped once the record is collected.
var (
	trackMu sync.Mutex
	tracked = make(map[trackKey]weak.Pointer[liveness])
)

func hostID(h pgbridge.Host) (uintptr, bool) {
	v := reflect.ValueOf(h)
	if v.Kind() != reflect.Pointer || v.IsNil() {
		return 0, false
	}
	return v.Pointer(), true
}

// track returns the shared liveness record for a, registering one reset
// callback per arena epoch. Returns nil when debug checks are off. Hosts that
// are not pointers get a fresh record per call.
func track(a RawArena) *liveness {
	if !DebugChecks() {
		return nil
	}
	id, ok := hostID(a.host)
	if !ok {
		l := &liveness{}
		a.host.RegisterResetCallback(a.ptr, func() { l.reset.Store(true) })
		return l
	}
	k := trackKey{host: id, ptr: a.ptr}

	trackMu.Lock()
	if l := tracked[k].Value(); l != nil {
		trackMu.Unlock()
		return l
	}
	l := &liveness{}
	wp := weak.Make(l)
	tracked[k] = wp
	trackMu.Unlock()
	runtime.AddCleanup(l, untrack, trackEntry{key: k, ref: wp})

	a.host.RegisterResetCallback(a.ptr, func() {
		l.reset.Store(true)
		untrack(trackEntry{key: k, ref: wp})
		Logger().Debug("tracked arena reset", zap.Uintptr("arena", uintptr(k.ptr)))
	})
	return l
}

type trackEntry struct {
	key trackKey
	ref weak.Pointer[liveness]
}

// untrack drops the entry for e.key if it still refers to e.ref.
func untrack(e trackEntry) {
	trackMu.Lock()
	if tracked[e.key] == e.ref {
		delete(tracked, e.key)
	}
	trackMu.Unlock()
}
