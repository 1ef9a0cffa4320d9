package conversation

import (
	"reflect"
	"strings"
	"testing"
)

func tasksFlow(t *testing.T) *Flow {
	t.Helper()
	flows, err := LoadBuiltinFlows(map[string]string{"DEFAULT_BOARD_ID": "9744010967"})
	if err != nil {
		t.Fatalf("load builtin flows: %v", err)
	}
	reg, err := NewRegistry(flows...)
	if err != nil {
		t.Fatalf("registry: %v", err)
	}
	f, ok := reg.Lookup("/tasks")
	if !ok {
		t.Fatalf("/tasks not registered")
	}
	return f
}

func newEngine() *Engine {
	return NewEngine(Options{CancelKeyword: "cancel", SkipSentinels: []string{"skip"}})
}

func feed(t *testing.T, e *Engine, f *Flow, run *Run, inputs ...string) Outcome {
	t.Helper()
	var out Outcome
	for _, in := range inputs {
		var err error
		out, err = e.Advance(f, run, in)
		if err != nil {
			t.Fatalf("advance %q: %v", in, err)
		}
	}
	return out
}

func TestCancel_AnyCaseAnyStep(t *testing.T) {
	f := tasksFlow(t)
	e := newEngine()

	answers := []string{"Build a reporting dashboard", "123", "Ops", "a@example.com", "30", "Ontario"}
	for _, kw := range []string{"cancel", "Cancel", "CANCEL", "  cAnCeL  "} {
		for step := 0; step < len(f.Steps); step++ {
			run, _ := e.Start(f, "run")
			feed(t, e, f, run, answers[:step]...)

			out, err := e.Advance(f, run, kw)
			if err != nil {
				t.Fatalf("cancel at step %d: %v", step, err)
			}
			if !out.Cancelled || out.Ready {
				t.Fatalf("step %d %q: expected cancel, got %+v", step, kw, out)
			}
			if len(run.Answers) != 0 || len(run.Answered) != 0 {
				t.Fatalf("step %d: answers not discarded: %v", step, run.Answers)
			}
			if out.Replies[0] != "❌ Task creation cancelled." {
				t.Fatalf("unexpected reply %q", out.Replies[0])
			}
		}
	}
}

func TestCancel_BeatsValidation(t *testing.T) {
	// "cancel" is too short for the description step; it must still cancel.
	f := tasksFlow(t)
	e := newEngine()
	run, _ := e.Start(f, "run")

	out := feed(t, e, f, run, "CANCEL")
	if !out.Cancelled {
		t.Fatalf("expected cancel, got %+v", out)
	}
}

func TestSkip_RecordsDefault(t *testing.T) {
	f := tasksFlow(t)
	e := newEngine()
	run, _ := e.Start(f, "run")

	out := feed(t, e, f, run, "Build a reporting dashboard", "SKIP", "skip", "", "skip", "skip")
	if !out.Ready {
		t.Fatalf("expected ready, got %+v", out)
	}
	want := map[string]any{
		"projectDescription": "Build a reporting dashboard",
		"boardId":            "9744010967",
		"weeklyHours":        40,
	}
	if !reflect.DeepEqual(want, out.Payload) {
		t.Fatalf("payload = %v, want %v", out.Payload, want)
	}
}

func TestNumericRange_FallsBackToDefault(t *testing.T) {
	f := tasksFlow(t)
	e := newEngine()

	for _, in := range []string{"19", "61", "0", "abc", "-5", "40.5"} {
		run, _ := e.Start(f, "run")
		feed(t, e, f, run, "Build a reporting dashboard", "skip", "skip", "skip")

		out := feed(t, e, f, run, in)
		if got := run.Answers["weeklyHours"]; got != 40 {
			t.Fatalf("%q: weeklyHours = %v, want 40", in, got)
		}
		if run.StepIndex != 5 {
			t.Fatalf("%q: expected to advance, at step %d", in, run.StepIndex)
		}
		if !strings.HasPrefix(out.Replies[0], "⚠️ Hours") || !strings.Contains(out.Replies[0], "Using default: 40") {
			t.Fatalf("%q: unexpected warning %q", in, out.Replies[0])
		}
	}

	for in, want := range map[string]int{"20": 20, "60": 60, " 35 ": 35} {
		run, _ := e.Start(f, "run")
		out := feed(t, e, f, run, "Build a reporting dashboard", "skip", "skip", "skip", in)
		if got := run.Answers["weeklyHours"]; got != want {
			t.Fatalf("%q: weeklyHours = %v, want %d", in, got, want)
		}
		if strings.HasPrefix(out.Replies[0], "⚠️") {
			t.Fatalf("%q: unexpected warning", in)
		}
	}
}

func TestReprompt_StaysOnStep(t *testing.T) {
	f := tasksFlow(t)
	e := newEngine()
	run, _ := e.Start(f, "run")

	out := feed(t, e, f, run, "short")
	if run.StepIndex != 0 || len(run.Answers) != 0 {
		t.Fatalf("advanced on invalid description: %+v", run)
	}
	if len(out.Replies) != 2 || !strings.Contains(out.Replies[0], "at least 10 characters") {
		t.Fatalf("unexpected replies %q", out.Replies)
	}
	if out.Replies[1] != "Please describe your project:" {
		t.Fatalf("expected prompt again, got %q", out.Replies[1])
	}

	feed(t, e, f, run, "Build a reporting dashboard", "board-7")
	if run.StepIndex != 1 {
		t.Fatalf("non-numeric board id accepted")
	}
}

func TestFullRun_NormalizesAnswers(t *testing.T) {
	f := tasksFlow(t)
	e := newEngine()
	run, replies := e.Start(f, "01JRUN")

	if replies[0] != "📝 Let's create some Monday.com tasks!" {
		t.Fatalf("intro = %q", replies[0])
	}
	if !strings.Contains(replies[1], "describe your project") {
		t.Fatalf("first prompt = %q", replies[1])
	}

	out := feed(t, e, f, run,
		"  Build a reporting dashboard  ",
		"123456",
		"Q3 Sprint",
		"a@example.com,  b@example.com ",
		"45",
		"Ontario ,Quebec",
	)
	if !out.Ready || !run.Completed {
		t.Fatalf("expected completion, got %+v", out)
	}
	if out.Replies[len(out.Replies)-1] != "🚀 Creating tasks..." {
		t.Fatalf("working reply = %q", out.Replies)
	}
	want := map[string]any{
		"projectDescription": "Build a reporting dashboard",
		"boardId":            "123456",
		"groupName":          "Q3 Sprint",
		"assigneeEmails":     "a@example.com, b@example.com",
		"weeklyHours":        45,
		"provinces":          "Ontario, Quebec",
	}
	if !reflect.DeepEqual(want, out.Payload) {
		t.Fatalf("payload = %v", out.Payload)
	}
	wantOrder := []string{"projectDescription", "boardId", "groupName", "assigneeEmails", "weeklyHours", "provinces"}
	if !reflect.DeepEqual(wantOrder, run.Answered) {
		t.Fatalf("answered order = %v", run.Answered)
	}

	if _, err := e.Advance(f, run, "more"); err != ErrRunFinished {
		t.Fatalf("expected ErrRunFinished, got %v", err)
	}
}

const fiveSteps = `
flows:
  - command: /survey
    steps:
      - {name: a, prompt: "a?"}
      - {name: b, prompt: "b?"}
      - {name: c, prompt: "c?"}
      - {name: d, prompt: "d?"}
      - {name: e, prompt: "e?", skippable: true}
`

func TestFiveSteps_SkippedOptionalIsOmitted(t *testing.T) {
	flows, err := LoadFlows([]byte(fiveSteps), nil)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	f := flows[0]
	e := NewEngine(Options{SkipSentinels: []string{"-"}})
	run, _ := e.Start(f, "r")

	out := feed(t, e, f, run, "1", "2", "3", "4", "-")
	if !out.Ready {
		t.Fatalf("expected ready")
	}
	if len(out.Payload) != 4 {
		t.Fatalf("payload has %d keys: %v", len(out.Payload), out.Payload)
	}
	if _, ok := out.Payload["e"]; ok {
		t.Fatalf("skipped step recorded")
	}
}

func TestPromptPlaceholders(t *testing.T) {
	f := tasksFlow(t)
	e := NewEngine(Options{SkipSentinels: []string{"-"}})
	run, _ := e.Start(f, "r")
	out := feed(t, e, f, run, "Build a reporting dashboard")

	if !strings.Contains(out.Replies[0], "Default: 9744010967") || !strings.Contains(out.Replies[0], `Type "-"`) {
		t.Fatalf("prompt = %q", out.Replies[0])
	}
}

func TestRunClone_IsIndependent(t *testing.T) {
	r := &Run{RunID: "x", Answered: []string{"a"}, Answers: map[string]any{"a": 1}}
	c := r.Clone()
	c.Answers["b"] = 2
	c.Answered = append(c.Answered, "b")
	if len(r.Answers) != 1 || len(r.Answered) != 1 {
		t.Fatalf("clone shares state with original")
	}
}
