package conversation

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed flows.yaml
var builtinFlows []byte

// Fallback is what a step does with an answer its validator rejects.
type Fallback int

const (
	// Reprompt warns and asks the same step again.
	Reprompt Fallback = iota
	// UseDefault warns, records the step default and advances.
	UseDefault
)

func parseFallback(s string) (Fallback, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "reprompt":
		return Reprompt, nil
	case "use_default", "default":
		return UseDefault, nil
	default:
		return 0, fmt.Errorf("unknown on_invalid policy %q", s)
	}
}

type Step struct {
	Name       string
	Label      string
	Prompt     string
	Default    any
	HasDefault bool
	// Skippable steps accept a skip sentinel: the default is recorded, or the key is
	// left out when there is none.
	Skippable bool
	Validate  Validator
	OnInvalid Fallback
}

type Flow struct {
	Command     string
	Aliases     []string
	Description string
	// Endpoint is the automation path the collected answers are posted to.
	Endpoint  string
	Intro     string
	Working   string
	Cancelled string
	// Failed heads the reply when the automation call fails.
	Failed string
	Steps  []Step
}

type flowFile struct {
	Flows []flowSpec `yaml:"flows"`
}

type flowSpec struct {
	Command     string     `yaml:"command"`
	Aliases     []string   `yaml:"aliases"`
	Description string     `yaml:"description"`
	Endpoint    string     `yaml:"endpoint"`
	Intro       string     `yaml:"intro"`
	Working     string     `yaml:"working"`
	Cancelled   string     `yaml:"cancelled"`
	Failed      string     `yaml:"failed"`
	Steps       []stepSpec `yaml:"steps"`
}

type stepSpec struct {
	Name      string        `yaml:"name"`
	Label     string        `yaml:"label"`
	Prompt    string        `yaml:"prompt"`
	Default   yaml.Node     `yaml:"default"`
	Skippable bool          `yaml:"skippable"`
	Validate  ValidatorSpec `yaml:"validate"`
	OnInvalid string        `yaml:"on_invalid"`
}

// LoadFlows parses flow definitions. ${NAME} in string defaults is replaced from vars;
// a string default that expands to nothing counts as no default.
func LoadFlows(data []byte, vars map[string]string) ([]*Flow, error) {
	var ff flowFile
	if err := yaml.Unmarshal(data, &ff); err != nil {
		return nil, fmt.Errorf("parse flows: %w", err)
	}
	if len(ff.Flows) == 0 {
		return nil, errors.New("no flows defined")
	}

	out := make([]*Flow, 0, len(ff.Flows))
	for i, fs := range ff.Flows {
		f, err := fs.build(vars)
		if err != nil {
			return nil, fmt.Errorf("flow %d (%s): %w", i, fs.Command, err)
		}
		out = append(out, f)
	}
	return out, nil
}

// LoadBuiltinFlows returns the flows compiled into the binary.
func LoadBuiltinFlows(vars map[string]string) ([]*Flow, error) {
	return LoadFlows(builtinFlows, vars)
}

// LoadFlowsFile reads flows from path, or the built-in set when path is empty.
func LoadFlowsFile(path string, vars map[string]string) ([]*Flow, error) {
	if strings.TrimSpace(path) == "" {
		return LoadBuiltinFlows(vars)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read flows: %w", err)
	}
	return LoadFlows(data, vars)
}

func (fs flowSpec) build(vars map[string]string) (*Flow, error) {
	cmd := normalizeCommand(fs.Command)
	if cmd == "" {
		return nil, errors.New("command is required")
	}
	if len(fs.Steps) == 0 {
		return nil, errors.New("at least one step is required")
	}

	f := &Flow{
		Command:     cmd,
		Description: fs.Description,
		Endpoint:    fs.Endpoint,
		Intro:       fs.Intro,
		Working:     fs.Working,
		Cancelled:   fs.Cancelled,
		Failed:      fs.Failed,
	}
	for _, a := range fs.Aliases {
		if a = normalizeCommand(a); a != "" {
			f.Aliases = append(f.Aliases, a)
		}
	}
	if f.Cancelled == "" {
		f.Cancelled = "❌ Cancelled."
	}
	if f.Failed == "" {
		f.Failed = "❌ " + f.Command + " failed."
	}

	seen := make(map[string]bool, len(fs.Steps))
	for _, ss := range fs.Steps {
		st, err := ss.build(vars)
		if err != nil {
			return nil, fmt.Errorf("step %q: %w", ss.Name, err)
		}
		if seen[st.Name] {
			return nil, fmt.Errorf("duplicate step %q", st.Name)
		}
		seen[st.Name] = true
		f.Steps = append(f.Steps, st)
	}
	return f, nil
}

func (ss stepSpec) build(vars map[string]string) (Step, error) {
	st := Step{
		Name:      strings.TrimSpace(ss.Name),
		Label:     ss.Label,
		Prompt:    ss.Prompt,
		Skippable: ss.Skippable,
	}
	if st.Name == "" {
		return st, errors.New("name is required")
	}
	if st.Label == "" {
		st.Label = st.Name
	}
	if st.Prompt == "" {
		return st, errors.New("prompt is required")
	}

	if !ss.Default.IsZero() {
		var v any
		if err := ss.Default.Decode(&v); err != nil {
			return st, fmt.Errorf("default: %w", err)
		}
		if s, ok := v.(string); ok {
			v = os.Expand(s, func(k string) string { return vars[k] })
			st.HasDefault = v != ""
		} else {
			st.HasDefault = v != nil
		}
		if st.HasDefault {
			st.Default = v
		}
	}

	v, err := ss.Validate.Build()
	if err != nil {
		return st, err
	}
	st.Validate = v

	if st.OnInvalid, err = parseFallback(ss.OnInvalid); err != nil {
		return st, err
	}
	if st.OnInvalid == UseDefault && !st.HasDefault {
		return st, errors.New("on_invalid use_default needs a default")
	}
	return st, nil
}

func normalizeCommand(c string) string {
	c = strings.ToLower(strings.TrimSpace(c))
	if c == "" {
		return ""
	}
	if !strings.HasPrefix(c, "/") {
		c = "/" + c
	}
	return c
}
