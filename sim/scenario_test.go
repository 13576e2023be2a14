package sim

import (
	"testing"

	"github.com/wippyai/pgbridge"
	"github.com/wippyai/pgbridge/errors"
)

func TestLoadScenario(t *testing.T) {
	s, err := LoadScenario("testdata/concat.toml")
	if err != nil {
		t.Fatalf("LoadScenario failed: %v", err)
	}
	if s.Engine.ChunkSize != 1024 || s.Engine.MemoryLimit != 65536 {
		t.Fatalf("unexpected engine config %+v", s.Engine)
	}
	if len(s.Arenas) != 2 || len(s.Calls) != 3 {
		t.Fatalf("got %d arenas, %d calls", len(s.Arenas), len(s.Calls))
	}
	if s.Calls[1].Args[1].Null != true || s.Calls[1].Expect == nil || !s.Calls[1].Expect.Null {
		t.Fatalf("null arg or expectation not decoded: %+v", s.Calls[1])
	}
	if s.Calls[2].Expect.Code != "22000" {
		t.Fatalf("expected code 22000, got %q", s.Calls[2].Expect.Code)
	}

	e, named, err := s.Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	q := named["PerQuery"]
	if e.CurrentArena() != q {
		t.Fatal("PerQuery should be current")
	}
	if e.ArenaTag(named["Tuples"]) != pgbridge.TagSlab {
		t.Fatal("Tuples should be a slab")
	}
	if info, _ := e.ArenaInfo(named["Tuples"]); info.Parent != q {
		t.Fatal("Tuples should live under PerQuery")
	}
}

func TestParseScenario_Errors(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		kind errors.Kind
	}{
		{"syntax", "[[arena", errors.KindInvalidData},
		{"unknown key", "bogus = 1", errors.KindInvalidInput},
		{"missing arena name", "[[arena]]\nparent = \"TopMemoryContext\"", errors.KindInvalidInput},
		{"bad kind", "[[arena]]\nname = \"a\"\nkind = \"heap\"", errors.KindInvalidInput},
		{"slab without size", "[[arena]]\nname = \"a\"\nkind = \"slab\"", errors.KindInvalidInput},
		{"bad chunk size", "[engine]\nchunk_size = 1", errors.KindInvalidInput},
		{"empty reset name", "[[call]]\nfunction = \"f\"\nreset = [\"\"]", errors.KindInvalidInput},
		{"bad expected code", "[[call]]\nfunction = \"f\"\nexpect = { code = \"22\" }", errors.KindInvalidInput},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseScenario(tt.doc)
			if !errors.IsKind(err, tt.kind) {
				t.Fatalf("expected %s, got %v", tt.kind, err)
			}
		})
	}
}

func TestScenario_BuildErrors(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"unknown parent", "[[arena]]\nname = \"a\"\nparent = \"nope\""},
		{"duplicate", "[[arena]]\nname = \"a\"\n[[arena]]\nname = \"a\""},
		{"shadows global", "[[arena]]\nname = \"ErrorContext\""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := ParseScenario(tt.doc)
			if err != nil {
				t.Fatalf("ParseScenario failed: %v", err)
			}
			if _, _, err := s.Build(); err == nil {
				t.Fatal("expected Build error")
			}
		})
	}
}
