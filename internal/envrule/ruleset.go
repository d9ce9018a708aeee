package envrule

// RuleSet holds the three ordered EnvArg lists that drive env resolution.
// Exclude is applied last, against both the include and passthru results.
type RuleSet struct {
	Include  []EnvArg
	Passthru []EnvArg
	Exclude  []EnvArg
}

// ResolveOptions carries the two special-case injections spec.md §4.1
// requires: SHELL when the command runs via $SHELL, and TERM when a PTY
// is requested.
type ResolveOptions struct {
	Shell bool
	PTY   bool
}

// Resolve computes (cached, passthrough) from the process environment
// (as a "NAME=value" slice, i.e. os.Environ()'s shape) and this RuleSet.
// The two returned maps are guaranteed disjoint: a key present in both
// the include and passthru rules ends up only in cached.
func (rs RuleSet) Resolve(environ []string, opts ResolveOptions) (cached, passthrough map[string]string) {
	env := envToMap(environ)

	cached = selectEnv(env, rs.Include, rs.Exclude)
	passthrough = selectEnv(env, rs.Passthru, rs.Exclude)

	for name := range cached {
		delete(passthrough, name)
	}

	if opts.Shell {
		if v, ok := env["SHELL"]; ok {
			cached["SHELL"] = v
		}
	}
	if opts.PTY {
		if v, ok := env["TERM"]; ok {
			cached["TERM"] = v
		}
	}

	for name := range cached {
		delete(passthrough, name)
	}

	return cached, passthrough
}

func envToMap(environ []string) map[string]string {
	m := make(map[string]string, len(environ))
	for _, kv := range environ {
		name, value, ok := cutEnv(kv)
		if !ok {
			continue
		}
		m[name] = value
	}
	return m
}

func cutEnv(kv string) (name, value string, ok bool) {
	for i := 0; i < len(kv); i++ {
		if kv[i] == '=' {
			return kv[:i], kv[i+1:], true
		}
	}
	return "", "", false
}

// selectEnv implements SELECT(E, match, reject, assign) from spec.md §4.1,
// with assign == match (the resolver always uses a rule's own assignments
// to override that same rule's matches).
func selectEnv(env map[string]string, match, reject []EnvArg) map[string]string {
	result := make(map[string]string)

	for name, value := range env {
		if !anyMatches(match, name) || anyMatches(reject, name) {
			continue
		}
		if assigned, ok := findAssignment(match, name); ok {
			value = assigned
		}
		result[name] = value
	}

	// Explicit assignments whose name isn't present in the process
	// environment at all still contribute, per spec.md's "names in
	// E ∪ {explicit assignments in match}".
	for _, a := range match {
		if !a.HasValue {
			continue
		}
		if _, exists := result[a.Name]; exists {
			continue
		}
		if _, inEnv := env[a.Name]; inEnv {
			continue
		}
		if anyMatches(reject, a.Name) {
			continue
		}
		result[a.Name] = a.Value
	}

	return result
}

func anyMatches(args []EnvArg, name string) bool {
	for _, a := range args {
		if a.Matches(name) {
			return true
		}
	}
	return false
}

func findAssignment(args []EnvArg, name string) (string, bool) {
	for _, a := range args {
		if a.HasValue && a.Name == name {
			return a.Value, true
		}
	}
	return "", false
}
