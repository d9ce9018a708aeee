// Command runcached runs a child command, caching its stdout, stderr,
// and exit code under a fingerprint of the command, a chosen subset of
// its environment, and (optionally) its stdin, replaying a fresh cache
// hit byte-for-byte instead of re-executing the child.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/pflag"
	"golang.org/x/term"

	"github.com/runcached/runcached/internal/cachestore"
	"github.com/runcached/runcached/internal/controller"
	"github.com/runcached/runcached/internal/envrule"
	"github.com/runcached/runcached/internal/fingerprint"
	"github.com/runcached/runcached/internal/runset"
	"github.com/runcached/runcached/internal/ttl"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

func run(rawArgs []string, stdin io.Reader, stdout, stderr io.Writer) int {
	args := append(envOverrideArgs(firstCommandToken(rawArgs)), rawArgs...)

	fs := pflag.NewFlagSet("runcached", pflag.ContinueOnError)
	fs.SetInterspersed(false)
	fs.SetOutput(stderr)

	var (
		ttlStr                               string
		keepFailures                         bool
		includeStdin, excludeStdin           bool
		includeEnv, passthruEnv, excludeEnv  []string
		shell, noShell                       bool
		shlex, noShlex                       bool
		stripColors, noStripColors           bool
		quiet, verbose                       bool
		printCachePath                       bool
		pty                                  bool
	)

	fs.StringVarP(&ttlStr, "ttl", "t", "1d", "how long a cached result stays fresh")
	fs.BoolVarP(&keepFailures, "keep-failures", "F", false, "cache non-zero exits too")
	fs.BoolVarP(&includeStdin, "include-stdin", "i", false, "include stdin in the cache key")
	fs.BoolVarP(&excludeStdin, "exclude-stdin", "I", false, "exclude stdin from the cache key (overrides -i)")
	fs.StringArrayVarP(&includeEnv, "include-env", "e", nil, "env var name/glob/NAME=value to cache, repeatable")
	fs.StringArrayVarP(&passthruEnv, "passthru-env", "p", []string{"HOME,PATH,TMPDIR"}, "env forwarded to the child but excluded from the key")
	fs.StringArrayVarP(&excludeEnv, "exclude-env", "E", nil, "env var name/glob removed from both sets")
	fs.BoolVarP(&shell, "shell", "s", false, "run the command via $SHELL -c")
	fs.BoolVarP(&noShell, "no-shell", "S", false, "run the command directly (overrides -s)")
	fs.BoolVarP(&shlex, "shlex", "l", false, "POSIX-quote argv when joining for shell")
	fs.BoolVarP(&noShlex, "no-shlex", "L", false, "join argv with plain spaces (overrides -l)")
	fs.BoolVarP(&stripColors, "strip-colors", "C", false, "strip ANSI escapes on replay")
	fs.BoolVarP(&noStripColors, "no-strip-colors", "c", false, "keep ANSI escapes on replay (overrides -C)")
	fs.BoolVarP(&quiet, "quiet", "q", false, "only log warnings and errors")
	fs.BoolVarP(&verbose, "verbose", "v", false, "log debug diagnostics")
	fs.BoolVarP(&printCachePath, "print-cache-path", "P", false, "print the cache database path and exit")
	fs.BoolVar(&pty, "pty", false, "run the child attached to a pseudo-terminal")

	if err := fs.Parse(args); err != nil {
		return 2
	}

	logger := slog.New(newPrefixHandler(stderr, levelFor(quiet, verbose)))
	logFn := func(format string, a ...any) { logger.Log(context.Background(), slog.LevelInfo, fmt.Sprintf(format, a...)) }
	logErrFn := func(format string, a ...any) { logger.Log(context.Background(), slog.LevelWarn, fmt.Sprintf(format, a...)) }

	cacheDir, err := os.UserCacheDir()
	if err != nil {
		logErrFn("resolving user cache directory: %v", err)
		return 1
	}
	cacheDBPath := filepath.Join(cacheDir, "runcached", "cache.db")

	if printCachePath {
		fmt.Fprintln(stdout, cacheDBPath)
		return 0
	}

	command := fs.Args()
	if len(command) == 0 {
		fs.Usage()
		return 1
	}

	duration, err := ttl.Parse(ttlStr)
	if err != nil {
		logErrFn("%v", err)
		return 1
	}

	if len(includeEnv) == 0 {
		includeEnv = []string{"HOME"}
	}

	rs, err := buildRuleSet(includeEnv, passthruEnv, excludeEnv)
	if err != nil {
		logErrFn("%v", err)
		return 1
	}

	runShell := shell && !noShell
	runShlex := shlex && !noShlex
	wantStdin := resolveStdin(includeStdin, excludeStdin, stdin)
	wantStripColors := resolveStripColors(stripColors, noStripColors, stdout)

	cached, passthru := rs.Resolve(os.Environ(), envrule.ResolveOptions{Shell: runShell, PTY: pty})

	var input []byte
	hasInput := wantStdin
	if wantStdin {
		input, err = io.ReadAll(stdin)
		if err != nil {
			logErrFn("reading stdin: %v", err)
			return 1
		}
	}

	if err := os.MkdirAll(filepath.Dir(cacheDBPath), 0o755); err != nil {
		logErrFn("creating cache directory: %v", err)
		return 1
	}

	store, err := cachestore.Open(cacheDBPath, fingerprint.FormatVersion)
	if err != nil {
		logErrFn("opening cache store: %v", err)
		return 1
	}
	defer store.Close()
	store.Logf = logErrFn

	ctrl := controller.New(store, stdout, stderr)
	ctrl.Log = logFn
	ctrl.LogError = logErrFn

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	go func() {
		<-ctx.Done()
		ctrl.Runner().ForwardSignal(syscall.SIGINT)
	}()

	req := controller.Request{
		RunConfig: runset.RunConfig{
			Command:        command,
			EnvForCache:    cached,
			EnvForPassthru: passthru,
			Input:          input,
			HasInput:       hasInput,
			Shell:          runShell,
			ShlexQuote:     runShlex,
			StripColors:    wantStripColors,
		},
		TTL:          duration,
		KeepFailures: keepFailures,
		PTY:          pty,
	}

	code, err := ctrl.Run(req)
	if err != nil {
		logErrFn("%v", err)
		return 1
	}
	return code
}

func buildRuleSet(includeEnv, passthruEnv, excludeEnv []string) (envrule.RuleSet, error) {
	include, err := parseAll(includeEnv)
	if err != nil {
		return envrule.RuleSet{}, fmt.Errorf("--include-env: %w", err)
	}
	passthru, err := parseAll(passthruEnv)
	if err != nil {
		return envrule.RuleSet{}, fmt.Errorf("--passthru-env: %w", err)
	}
	exclude, err := parseAll(excludeEnv)
	if err != nil {
		return envrule.RuleSet{}, fmt.Errorf("--exclude-env: %w", err)
	}
	if err := envrule.ValidateNoAssignments(exclude); err != nil {
		return envrule.RuleSet{}, fmt.Errorf("--exclude-env: %w", err)
	}
	return envrule.RuleSet{Include: include, Passthru: passthru, Exclude: exclude}, nil
}

func parseAll(raw []string) ([]envrule.EnvArg, error) {
	var out []envrule.EnvArg
	for _, r := range raw {
		args, err := envrule.ParseEnvArgList(r)
		if err != nil {
			return nil, err
		}
		out = append(out, args...)
	}
	return out, nil
}

func resolveStdin(include, exclude bool, stdin io.Reader) bool {
	if exclude {
		return false
	}
	if include {
		return true
	}
	if f, ok := stdin.(*os.File); ok {
		return !term.IsTerminal(int(f.Fd()))
	}
	return false
}

func resolveStripColors(strip, noStrip bool, stdout io.Writer) bool {
	if noStrip {
		return false
	}
	if strip {
		return true
	}
	if f, ok := stdout.(*os.File); ok {
		return !term.IsTerminal(int(f.Fd()))
	}
	return false
}
