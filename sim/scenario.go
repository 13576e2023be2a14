package sim

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"

	"github.com/wippyai/pgbridge"
	"github.com/wippyai/pgbridge/errors"
)

// Scenario describes an engine setup and a sequence of calls to run on it.
type Scenario struct {
	Name   string      `toml:"name"`
	Engine Config      `toml:"engine"`
	Arenas []ArenaSpec `toml:"arena" validate:"dive"`
	Calls  []CallSpec  `toml:"call" validate:"dive"`
}

// ArenaSpec is an arena the scenario creates before any call.
type ArenaSpec struct {
	Name      string `toml:"name" validate:"required"`
	Parent    string `toml:"parent"`
	Kind      string `toml:"kind" validate:"omitempty,oneof=allocset slab generation"`
	BlockSize uint32 `toml:"block_size" validate:"required_if=Kind slab"`
	Current   bool   `toml:"current"`
}

// CallSpec is one function invocation. Function names are resolved by the
// runner, not by the engine. Arenas named in Reset are reset before the call.
type CallSpec struct {
	Function string    `toml:"function" validate:"required"`
	Args     []ArgSpec `toml:"args" validate:"dive"`
	Reset    []string  `toml:"reset" validate:"dive,required"`
	Cancel   bool      `toml:"cancel"`
	Expect   *Expect   `toml:"expect"`
}

// ArgSpec is a typed call argument. A missing value with Null set passes
// the host null.
type ArgSpec struct {
	Type  string `toml:"type" validate:"required"`
	Value any    `toml:"value"`
	Null  bool   `toml:"null"`
}

// Expect is the outcome a call should produce.
type Expect struct {
	Value any    `toml:"value"`
	Null  bool   `toml:"null"`
	Code  string `toml:"code" validate:"omitempty,len=5,alphanum"`
}

// LoadScenario decodes and validates a TOML scenario file.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseConfig, errors.KindNotFound, err, "read scenario")
	}
	return ParseScenario(string(data))
}

// ParseScenario decodes and validates a TOML scenario document.
func ParseScenario(doc string) (*Scenario, error) {
	var s Scenario
	md, err := toml.Decode(doc, &s)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseConfig, errors.KindInvalidData, err, "decode scenario")
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return nil, errors.InvalidInput(errors.PhaseConfig, fmt.Sprintf("unknown scenario key %q", undecoded[0].String()))
	}
	if err := validate.Struct(&s); err != nil {
		return nil, errors.Wrap(errors.PhaseConfig, errors.KindInvalidInput, err, "invalid scenario")
	}
	return &s, nil
}

// Build creates an engine for the scenario and its arenas. Arenas are
// created in file order and may name any global or earlier arena as parent;
// an empty parent means MessageContext.
func (s *Scenario) Build() (*Engine, map[string]pgbridge.ArenaPtr, error) {
	e, err := NewWithConfig(&s.Engine)
	if err != nil {
		return nil, nil, err
	}
	named := map[string]pgbridge.ArenaPtr{
		NameTop:            e.TopArena(),
		NameError:          e.ErrorContext(),
		NameCache:          e.CacheContext(),
		NameMessage:        e.MessageContext(),
		NameTopTransaction: e.TopTransactionContext(),
	}
	for _, a := range s.Arenas {
		if _, dup := named[a.Name]; dup {
			return nil, nil, errors.InvalidInput(errors.PhaseConfig, fmt.Sprintf("duplicate arena %q", a.Name))
		}
		parentName := a.Parent
		if parentName == "" {
			parentName = NameMessage
		}
		parent, ok := named[parentName]
		if !ok {
			return nil, nil, errors.NotFound(errors.PhaseConfig, "parent arena", parentName)
		}

		var p pgbridge.ArenaPtr
		switch a.Kind {
		case "slab":
			p, err = e.NewSlabContext(parent, a.Name, a.BlockSize)
		case "generation":
			p, err = e.NewContext(parent, a.Name, pgbridge.TagGeneration)
		default:
			p, err = e.NewContext(parent, a.Name, pgbridge.TagAllocSet)
		}
		if err != nil {
			return nil, nil, err
		}
		named[a.Name] = p
		if a.Current {
			e.SetCurrentArena(p)
		}
	}
	return e, named, nil
}
