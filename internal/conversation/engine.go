// Package conversation drives step-ordered questionnaires. A Run holds the progress of one
// chat through a Flow; the Engine advances it one message at a time and never blocks.
package conversation

import (
	"errors"
	"fmt"
	"strings"
)

var ErrRunFinished = errors.New("conversation run already finished")

// Run is the resumable state of one conversation. It is plain data so it can be stored
// between messages.
type Run struct {
	RunID     string         `json:"run_id"`
	Command   string         `json:"command"`
	StepIndex int            `json:"step_index"`
	Answered  []string       `json:"answered,omitempty"`
	Answers   map[string]any `json:"answers"`
	Completed bool           `json:"completed,omitempty"`
}

func (r *Run) Clone() *Run {
	if r == nil {
		return nil
	}
	c := *r
	c.Answered = append([]string(nil), r.Answered...)
	c.Answers = make(map[string]any, len(r.Answers))
	for k, v := range r.Answers {
		c.Answers[k] = v
	}
	return &c
}

// Outcome is the result of feeding one message to a run.
type Outcome struct {
	Replies []string
	// Cancelled: the run was discarded. Nothing was collected.
	Cancelled bool
	// Ready: the last step was accepted and Payload holds every recorded answer.
	Ready   bool
	Payload map[string]any
}

type Options struct {
	CancelKeyword string
	// SkipSentinels are matched case-insensitively. Empty input always counts as a skip.
	SkipSentinels []string
}

type Engine struct {
	cancel string
	skips  []string
}

func NewEngine(opts Options) *Engine {
	e := &Engine{cancel: strings.ToLower(strings.TrimSpace(opts.CancelKeyword))}
	if e.cancel == "" {
		e.cancel = "cancel"
	}
	for _, s := range opts.SkipSentinels {
		if s = strings.ToLower(strings.TrimSpace(s)); s != "" {
			e.skips = append(e.skips, s)
		}
	}
	if len(e.skips) == 0 {
		e.skips = []string{"skip"}
	}
	return e
}

// IsCancel reports whether text is the cancel keyword, in any letter case.
func (e *Engine) IsCancel(text string) bool {
	t := strings.ToLower(strings.TrimSpace(text))
	return t == e.cancel || t == "/"+e.cancel
}

func (e *Engine) isSkip(text string) bool {
	t := strings.ToLower(strings.TrimSpace(text))
	if t == "" {
		return true
	}
	for _, s := range e.skips {
		if t == s {
			return true
		}
	}
	return false
}

// Start opens a run of f and returns the messages to send: the intro and the first prompt.
func (e *Engine) Start(f *Flow, runID string) (*Run, []string) {
	run := &Run{RunID: runID, Command: f.Command, Answers: map[string]any{}}
	var replies []string
	if f.Intro != "" {
		replies = append(replies, f.Intro)
	}
	replies = append(replies, e.prompt(f.Steps[0]))
	return run, replies
}

// Advance applies one message to run, mutating it in place. Cancel is checked before
// anything else at every step.
func (e *Engine) Advance(f *Flow, run *Run, text string) (Outcome, error) {
	if run == nil || run.Completed || run.StepIndex < 0 || run.StepIndex >= len(f.Steps) {
		return Outcome{}, ErrRunFinished
	}
	if run.Command != f.Command {
		return Outcome{}, fmt.Errorf("run %s belongs to %s, not %s", run.RunID, run.Command, f.Command)
	}
	if run.Answers == nil {
		run.Answers = map[string]any{}
	}

	if e.IsCancel(text) {
		run.Answers = map[string]any{}
		run.Answered = nil
		return Outcome{Cancelled: true, Replies: []string{f.Cancelled}}, nil
	}

	step := f.Steps[run.StepIndex]
	var replies []string

	switch {
	case step.Skippable && e.isSkip(text):
		if step.HasDefault {
			run.Answers[step.Name] = step.Default
		}
	default:
		v, err := step.Validate(text)
		if err == nil {
			run.Answers[step.Name] = v
			break
		}
		if step.OnInvalid == UseDefault && step.HasDefault {
			run.Answers[step.Name] = step.Default
			replies = append(replies, fmt.Sprintf("⚠️ %s %s. Using default: %v", step.Label, err, step.Default))
			break
		}
		return Outcome{Replies: []string{
			fmt.Sprintf("❌ %s %s.", step.Label, err),
			e.prompt(step),
		}}, nil
	}

	run.Answered = append(run.Answered, step.Name)
	run.StepIndex++

	if run.StepIndex < len(f.Steps) {
		replies = append(replies, e.prompt(f.Steps[run.StepIndex]))
		return Outcome{Replies: replies}, nil
	}

	run.Completed = true
	if f.Working != "" {
		replies = append(replies, f.Working)
	}
	payload := make(map[string]any, len(run.Answers))
	for k, v := range run.Answers {
		payload[k] = v
	}
	return Outcome{Replies: replies, Ready: true, Payload: payload}, nil
}

// CurrentStep returns the step run is waiting on.
func (e *Engine) CurrentStep(f *Flow, run *Run) (Step, bool) {
	if run == nil || run.Completed || run.StepIndex < 0 || run.StepIndex >= len(f.Steps) {
		return Step{}, false
	}
	return f.Steps[run.StepIndex], true
}

// Reprompt repeats the question run is waiting on.
func (e *Engine) Reprompt(f *Flow, run *Run) string {
	step, ok := e.CurrentStep(f, run)
	if !ok {
		return ""
	}
	return e.prompt(step)
}

func (e *Engine) prompt(st Step) string {
	def := ""
	if st.HasDefault {
		def = fmt.Sprint(st.Default)
	}
	return strings.NewReplacer("{default}", def, "{skip}", e.skips[0]).Replace(st.Prompt)
}
