package fcall

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/wippyai/pgbridge"
	"github.com/wippyai/pgbridge/datum"
	"github.com/wippyai/pgbridge/errors"
	"github.com/wippyai/pgbridge/guard"
)

// Signature declares an exported function.
type Signature struct {
	Name   string
	Args   []datum.Oid
	Result datum.Oid

	// Strict functions return null without running when any argument is null.
	Strict bool
}

// String renders the signature the way the host names functions.
func (s Signature) String() string {
	return s.Name + argList(s.Args)
}

func argList(args []datum.Oid) string {
	names := make([]string, len(args))
	for i, a := range args {
		names[i] = datum.TypeName(a)
	}
	return "(" + strings.Join(names, ", ") + ")"
}

// Entry is a registered function.
type Entry struct {
	Signature
	Fn pgbridge.Function
}

// Registry maps function names to overloads.
//
// Resolution picks, among overloads with matching arity whose parameters
// all accept the call's argument types, the one that is narrowest at the
// most positions. Earlier registrations win ties.
//
// Registry is thread-safe.
type Registry struct {
	bridge *guard.Bridge
	funcs  map[string][]*Entry
	mu     sync.RWMutex
}

// NewRegistry creates a registry whose functions export through b.
func NewRegistry(b *guard.Bridge) *Registry {
	return &Registry{
		bridge: b,
		funcs:  make(map[string][]*Entry),
	}
}

// Bridge returns the bridge functions are exported through.
func (r *Registry) Bridge() *guard.Bridge {
	return r.bridge
}

// Register adds fn under sig.
func (r *Registry) Register(sig Signature, fn Handler) error {
	if sig.Name == "" {
		return errors.InvalidInput(errors.PhaseCall, "function name is empty")
	}
	if fn == nil {
		return errors.InvalidInput(errors.PhaseCall, fmt.Sprintf("function %s has no handler", sig))
	}
	for _, a := range append([]datum.Oid{sig.Result}, sig.Args...) {
		if !datum.Known(a) {
			return errors.Unsupported(errors.PhaseCall, fmt.Sprintf("type %s in %s", datum.TypeName(a), sig))
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.funcs[sig.Name] {
		if sameArgs(e.Args, sig.Args) {
			return errors.InvalidInput(errors.PhaseCall, fmt.Sprintf("function %s already exists", sig))
		}
	}

	sig.Args = append([]datum.Oid(nil), sig.Args...)
	e := &Entry{Signature: sig, Fn: r.export(sig, fn)}
	r.funcs[sig.Name] = append(r.funcs[sig.Name], e)
	Logger().Debug("function registered", zap.Stringer("signature", sig))
	return nil
}

// MustRegister is Register that panics on error.
func (r *Registry) MustRegister(sig Signature, fn Handler) {
	if err := r.Register(sig, fn); err != nil {
		panic(err)
	}
}

func (r *Registry) export(sig Signature, fn Handler) pgbridge.Function {
	exported := Export(r.bridge, fn)
	if !sig.Strict {
		return exported
	}
	return func(fc *pgbridge.CallInfo) pgbridge.Datum {
		for i := range fc.Args {
			if fc.Args[i].IsNull {
				return ReturnNull(fc)
			}
		}
		return exported(fc)
	}
}

func sameArgs(a, b []datum.Oid) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// Resolve finds the overload of name that best accepts argTypes. A missing
// match is a not_found error naming the call's argument types.
func (r *Registry) Resolve(name string, argTypes []datum.Oid) (*Entry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var candidates []*Entry
	for _, e := range r.funcs[name] {
		if len(e.Args) != len(argTypes) {
			continue
		}
		ok := true
		for i, want := range e.Args {
			if !datum.Compatible(want, argTypes[i]) {
				ok = false
				break
			}
		}
		if ok {
			candidates = append(candidates, e)
		}
	}
	if len(candidates) == 0 {
		return nil, errors.NotFound(errors.PhaseCall, "function", name+argList(argTypes))
	}

	scores := make([]int, len(candidates))
	column := make([]datum.Oid, len(candidates))
	for i, src := range argTypes {
		for j, e := range candidates {
			column[j] = e.Args[i]
		}
		best, _ := datum.NarrowestCompatible(src, column)
		for j, e := range candidates {
			if e.Args[i] == best {
				scores[j]++
			}
		}
	}
	best := 0
	for j := range candidates {
		if scores[j] > scores[best] {
			best = j
		}
	}
	return candidates[best], nil
}

// Names returns the registered function names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.funcs))
	for n := range r.funcs {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Overloads returns the signatures registered under name.
func (r *Registry) Overloads(name string) []Signature {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Signature, 0, len(r.funcs[name]))
	for _, e := range r.funcs[name] {
		out = append(out, e.Signature)
	}
	return out
}
