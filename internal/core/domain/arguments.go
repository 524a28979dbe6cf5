package domain

import (
	"fmt"
	"strings"
)

// Arguments is a container command given either as a shell string or as an exec
// list. Exactly one form must be set.
type Arguments struct {
	Shell string   `yaml:"shell,omitempty" json:"shell,omitempty"`
	Exec  []string `yaml:"exec,omitempty" json:"exec,omitempty"`
}

// Validate checks that exactly one form is given.
func (a *Arguments) Validate() error {
	sources := 0
	if a.Shell != "" {
		sources++
	}
	if len(a.Exec) > 0 {
		sources++
	}
	if sources != 1 {
		return fmt.Errorf("%w: argument conflict: either shell or exec should be specified and only in one form", ErrInvalidSpec)
	}
	return nil
}

// Strings returns the command as a list of arguments.
func (a *Arguments) Strings() []string {
	if a == nil {
		return nil
	}
	if a.Shell != "" {
		return SplitOnSpaceWithEscape(a.Shell)
	}
	return append([]string(nil), a.Exec...)
}

// SplitOnSpaceWithEscape splits s on spaces. A backslash escapes the following
// character, so "a\ b c" yields ["a b", "c"].
func SplitOnSpaceWithEscape(s string) []string {
	var (
		parts   []string
		current strings.Builder
		escaped bool
	)
	flush := func() {
		if current.Len() > 0 {
			parts = append(parts, current.String())
			current.Reset()
		}
	}
	for _, r := range s {
		switch {
		case escaped:
			current.WriteRune(r)
			escaped = false
		case r == '\\':
			escaped = true
		case r == ' ':
			flush()
		default:
			current.WriteRune(r)
		}
	}
	flush()
	return parts
}
