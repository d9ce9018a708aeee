package main

import (
	"os"
	"path/filepath"
	"strings"
)

// opt pairs a flag's long name with its single-letter shorthand (empty
// if it has none), for env-override lookup purposes.
type opt struct {
	long  string
	short string // case-sensitive; "" if this flag has no shorthand
}

// knownOpts is every flag envOverrideArgs will look for, as both
// RUNCACHED_<LONGOPT> (upper-cased) and RUNCACHED_<shortopt>
// (case-sensitive, per spec.md §6's "single-letter options are
// case-sensitive, long options are upper-case"), each with a matching
// __<CMD>-scoped form (SPEC_FULL.md §6.2).
var knownOpts = []opt{
	{"ttl", "t"},
	{"keep-failures", "F"},
	{"include-stdin", "i"},
	{"exclude-stdin", "I"},
	{"include-env", "e"},
	{"passthru-env", "p"},
	{"exclude-env", "E"},
	{"shell", "s"},
	{"no-shell", "S"},
	{"shlex", "l"},
	{"no-shlex", "L"},
	{"strip-colors", "C"},
	{"no-strip-colors", "c"},
	{"quiet", "q"},
	{"verbose", "v"},
	{"print-cache-path", "P"},
	{"pty", ""}, // supplemental flag, not in spec.md §6; no shorthand
}

// envOverrideArgs scans the process environment for RUNCACHED_<OPT>
// overrides and returns the equivalent "--opt=value" tokens to prepend
// ahead of the real CLI arguments, so they're visible to pflag.Parse but
// still overridable by an explicit flag later in argv (pflag lets the
// last occurrence of a scalar flag win; the repeatable -e/-p/-E flags
// instead accumulate the values from overrides and argv alike).
//
// For each option, the unscoped long form (RUNCACHED_TTL) is resolved
// first, then the unscoped short form (RUNCACHED_t), then — once
// commandName is known — the __<CMD>-scoped long form
// (RUNCACHED_TTL__CURL) and finally the scoped short form
// (RUNCACHED_t__CURL). Each later form is appended after the earlier
// ones, so it wins when more than one is set: scoped beats unscoped,
// and the shorthand is treated as the more explicit/recent form within
// each scope. <CMD> is the upper-cased basename of the command's first
// token, so the basename's own case does not matter; the variable name
// itself must spell <CMD> in upper case.
func envOverrideArgs(commandName string) []string {
	var out []string

	for _, o := range knownOpts {
		if v, ok := os.LookupEnv(envName(o.long, "")); ok {
			out = append(out, toFlagArg(o.long, v))
		}
		if o.short != "" {
			if v, ok := os.LookupEnv(shortEnvName(o.short, "")); ok {
				out = append(out, toFlagArg(o.long, v))
			}
		}
	}

	if commandName != "" {
		base := strings.ToUpper(filepath.Base(commandName))
		for _, o := range knownOpts {
			if v, ok := os.LookupEnv(envName(o.long, base)); ok {
				out = append(out, toFlagArg(o.long, v))
			}
			if o.short != "" {
				if v, ok := os.LookupEnv(shortEnvName(o.short, base)); ok {
					out = append(out, toFlagArg(o.long, v))
				}
			}
		}
	}

	return out
}

func envName(long, cmdSuffix string) string {
	name := "RUNCACHED_" + strings.ToUpper(strings.ReplaceAll(long, "-", "_"))
	if cmdSuffix != "" {
		name += "__" + cmdSuffix
	}
	return name
}

// shortEnvName builds the case-sensitive single-letter form, e.g.
// RUNCACHED_t or RUNCACHED_F__CURL. cmdSuffix, if non-empty, is already
// upper-cased by the caller — only the letter itself keeps its case.
func shortEnvName(short, cmdSuffix string) string {
	name := "RUNCACHED_" + short
	if cmdSuffix != "" {
		name += "__" + cmdSuffix
	}
	return name
}

func toFlagArg(long, value string) string {
	return "--" + long + "=" + value
}

// firstCommandToken returns the first positional argument runcached
// would treat as the command's own argv[0] — everything after a literal
// "--", or (absent one) the first token not shaped like a flag. This is
// only used to resolve the __<CMD> env-override scope before the real
// parse happens; the real parse (pflag, SetInterspersed(false)) is the
// authority on where flags end and the command begins.
func firstCommandToken(args []string) string {
	for i, a := range args {
		if a == "--" {
			if i+1 < len(args) {
				return args[i+1]
			}
			return ""
		}
	}
	for _, a := range args {
		if !strings.HasPrefix(a, "-") {
			return a
		}
	}
	return ""
}
