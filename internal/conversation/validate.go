package conversation

import (
	"errors"
	"fmt"
	"net/mail"
	"regexp"
	"strconv"
	"strings"
)

// Validator normalizes one answer or explains why it is unacceptable.
// The error text is shown to the user after the step label.
type Validator func(input string) (any, error)

// Trimmed accepts any text and strips surrounding whitespace.
func Trimmed() Validator {
	return func(input string) (any, error) {
		return strings.TrimSpace(input), nil
	}
}

// MinLength requires at least n characters after trimming.
func MinLength(n int) Validator {
	return func(input string) (any, error) {
		s := strings.TrimSpace(input)
		if len([]rune(s)) < n {
			return nil, fmt.Errorf("must be at least %d characters", n)
		}
		return s, nil
	}
}

// IntRange parses a base-10 integer within [lo, hi].
func IntRange(lo, hi int) Validator {
	return func(input string) (any, error) {
		n, err := strconv.Atoi(strings.TrimSpace(input))
		if err != nil {
			return nil, fmt.Errorf("must be a whole number between %d and %d", lo, hi)
		}
		if n < lo || n > hi {
			return nil, fmt.Errorf("must be between %d and %d", lo, hi)
		}
		return n, nil
	}
}

// Pattern requires the trimmed input to fully match expr; expr is anchored at both ends.
func Pattern(expr, hint string) (Validator, error) {
	re, err := regexp.Compile(`^(?:` + expr + `)$`)
	if err != nil {
		return nil, err
	}
	if hint == "" {
		hint = "has an invalid format"
	}
	return func(input string) (any, error) {
		s := strings.TrimSpace(input)
		if !re.MatchString(s) {
			return nil, errors.New(hint)
		}
		return s, nil
	}, nil
}

// EmailList accepts comma separated addresses and normalizes them to "a, b".
func EmailList() Validator {
	return func(input string) (any, error) {
		parts := splitList(input)
		if len(parts) == 0 {
			return nil, errors.New("needs at least one email address")
		}
		for i, p := range parts {
			addr, err := mail.ParseAddress(p)
			if err != nil {
				return nil, fmt.Errorf("contains an invalid address: %q", p)
			}
			parts[i] = addr.Address
		}
		return strings.Join(parts, ", "), nil
	}
}

// List accepts comma separated values and normalizes them to "a, b".
func List() Validator {
	return func(input string) (any, error) {
		parts := splitList(input)
		if len(parts) == 0 {
			return nil, errors.New("needs at least one value")
		}
		return strings.Join(parts, ", "), nil
	}
}

func splitList(input string) []string {
	var out []string
	for _, p := range strings.Split(input, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// ValidatorSpec is the YAML form of a validator.
type ValidatorSpec struct {
	Kind    string `yaml:"kind"`
	Min     int    `yaml:"min"`
	Max     int    `yaml:"max"`
	Pattern string `yaml:"pattern"`
	Hint    string `yaml:"hint"`
}

func (s ValidatorSpec) Build() (Validator, error) {
	switch strings.ToLower(strings.TrimSpace(s.Kind)) {
	case "", "text":
		return Trimmed(), nil
	case "min_length":
		if s.Min <= 0 {
			return nil, errors.New("min_length needs min > 0")
		}
		return MinLength(s.Min), nil
	case "int_range":
		if s.Min > s.Max {
			return nil, fmt.Errorf("int_range min %d > max %d", s.Min, s.Max)
		}
		return IntRange(s.Min, s.Max), nil
	case "pattern":
		return Pattern(s.Pattern, s.Hint)
	case "emails":
		return EmailList(), nil
	case "list":
		return List(), nil
	default:
		return nil, fmt.Errorf("unknown validator kind %q", s.Kind)
	}
}
