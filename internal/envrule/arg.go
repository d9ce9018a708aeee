// Package envrule parses the -e/-p/-E environment-variable tokens and
// resolves them, against the process environment, into the two disjoint
// maps a RunConfig needs: one that contributes to the cache key and one
// that is only forwarded to the child.
package envrule

import (
	"fmt"
	"path/filepath"
	"strings"
)

// EnvArg is one parsed token from an -e/-p/-E flag value: a bare name, a
// glob pattern, or a literal NAME=value assignment.
type EnvArg struct {
	Name     string // literal name or glob pattern
	HasValue bool   // true if this token carried an explicit assignment
	Value    string // valid only if HasValue
}

// globMeta are the fnmatch/filepath.Match metacharacters. A name containing
// any of these is a pattern, not a literal identifier.
const globMeta = "*?["

func isGlob(name string) bool {
	return strings.ContainsAny(name, globMeta)
}

// ParseEnvArg parses a single comma-separated token such as "PATH",
// "GOFLAGS=-mod=mod", or "GO*". Assignment with a glob name is a parse
// error: the NAME in NAME=value must be a literal identifier.
func ParseEnvArg(token string) (EnvArg, error) {
	if token == "" {
		return EnvArg{}, fmt.Errorf("envrule: empty env token")
	}

	name, value, hasEq := strings.Cut(token, "=")
	if !hasEq {
		return EnvArg{Name: name}, nil
	}

	if isGlob(name) {
		return EnvArg{}, fmt.Errorf("envrule: %q: assignment name must be a literal identifier, not a glob", token)
	}
	return EnvArg{Name: name, HasValue: true, Value: value}, nil
}

// ParseEnvArgList splits a VAR[,...] flag value on commas and parses each
// piece with ParseEnvArg.
func ParseEnvArgList(raw string) ([]EnvArg, error) {
	parts := strings.Split(raw, ",")
	args := make([]EnvArg, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		a, err := ParseEnvArg(p)
		if err != nil {
			return nil, err
		}
		args = append(args, a)
	}
	return args, nil
}

// Matches reports whether name satisfies this EnvArg, as a literal equality
// or a POSIX-class glob match ('*', '?', '[...]').
func (a EnvArg) Matches(name string) bool {
	ok, err := filepath.Match(a.Name, name)
	return err == nil && ok
}

// ValidateNoAssignments returns an error if any arg in args carries an
// explicit assignment. Used for -E/--exclude-env, where assignments are
// a parse error (you can only exclude, not set, a value there).
func ValidateNoAssignments(args []EnvArg) error {
	for _, a := range args {
		if a.HasValue {
			return fmt.Errorf("envrule: %s=%s: assignments are not allowed in an exclude list", a.Name, a.Value)
		}
	}
	return nil
}
