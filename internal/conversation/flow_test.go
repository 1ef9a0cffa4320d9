package conversation

import (
	"strings"
	"testing"
)

func TestLoadFlows_Rejects(t *testing.T) {
	cases := map[string]string{
		"empty":          `flows: []`,
		"no command":     "flows:\n  - steps: [{name: a, prompt: a}]",
		"no steps":       "flows:\n  - command: /x",
		"duplicate step": "flows:\n  - command: /x\n    steps: [{name: a, prompt: a}, {name: a, prompt: b}]",
		"bad validator":  "flows:\n  - command: /x\n    steps: [{name: a, prompt: a, validate: {kind: nope}}]",
		"bad range":      "flows:\n  - command: /x\n    steps: [{name: a, prompt: a, validate: {kind: int_range, min: 9, max: 1}}]",
		"default needed": "flows:\n  - command: /x\n    steps: [{name: a, prompt: a, on_invalid: use_default}]",
		"bad pattern":    "flows:\n  - command: /x\n    steps: [{name: a, prompt: a, validate: {kind: pattern, pattern: '('}}]",
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := LoadFlows([]byte(doc), nil); err == nil {
				t.Fatalf("expected error")
			}
		})
	}
}

func TestLoadFlows_UnsetVariableMeansNoDefault(t *testing.T) {
	flows, err := LoadBuiltinFlows(nil)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	board := flows[0].Steps[1]
	if board.Name != "boardId" || board.HasDefault {
		t.Fatalf("board step = %+v", board)
	}
}

func TestRegistry_AliasesAndConflicts(t *testing.T) {
	flows, err := LoadBuiltinFlows(nil)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	reg, err := NewRegistry(flows...)
	if err != nil {
		t.Fatalf("registry: %v", err)
	}

	a, ok := reg.Lookup("/generate_tasks")
	if !ok {
		t.Fatalf("alias not found")
	}
	b, _ := reg.Lookup("TASKS")
	if a != b {
		t.Fatalf("alias and command resolve to different flows")
	}
	if n := len(reg.Flows()); n != 1 {
		t.Fatalf("Flows() = %d entries", n)
	}
	if err := reg.Register(&Flow{Command: "/tasks"}); err == nil || !strings.Contains(err.Error(), "already registered") {
		t.Fatalf("expected conflict, got %v", err)
	}
}

func TestValidators(t *testing.T) {
	if _, err := EmailList()("a@example.com, not-an-email"); err == nil {
		t.Fatalf("invalid email accepted")
	}
	if v, err := EmailList()("Ann <ann@example.com>"); err != nil || v != "ann@example.com" {
		t.Fatalf("EmailList = %v, %v", v, err)
	}
	if _, err := List()(" , ,"); err == nil {
		t.Fatalf("empty list accepted")
	}
	if v, _ := Trimmed()("  x "); v != "x" {
		t.Fatalf("Trimmed = %q", v)
	}
	if _, err := MinLength(3)("é é"); err != nil {
		t.Fatalf("rune length miscounted: %v", err)
	}
}

func TestPattern_MatchesWholeInput(t *testing.T) {
	digits, err := Pattern(`\d+`, "")
	if err != nil {
		t.Fatal(err)
	}
	if v, err := digits(" 123 "); err != nil || v != "123" {
		t.Fatalf("Pattern = %v, %v", v, err)
	}
	for _, in := range []string{"abc123xyz", "123x", "x123"} {
		if _, err := digits(in); err == nil {
			t.Fatalf("%q accepted", in)
		}
	}

	either, err := Pattern(`yes|no`, "yes or no")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := either("no"); err != nil {
		t.Fatalf("alternation rejected: %v", err)
	}
	if _, err := either("yesterday"); err == nil || err.Error() != "yes or no" {
		t.Fatalf("expected hint, got %v", err)
	}
}
