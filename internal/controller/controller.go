// Package controller ties the env resolver, fingerprinter, cache store,
// child runner, and replayer together into the single decision spec.md
// §4.6 describes: compute the key, serve a fresh hit from the cache, or
// run the child and record the result.
package controller

import (
	"fmt"
	"io"
	"time"

	"github.com/runcached/runcached/internal/cachestore"
	"github.com/runcached/runcached/internal/execrunner"
	"github.com/runcached/runcached/internal/fingerprint"
	"github.com/runcached/runcached/internal/replay"
	"github.com/runcached/runcached/internal/runset"
)

// Request is everything one invocation needs: the cacheable RunConfig
// plus the behavior knobs that aren't part of the cache key.
type Request struct {
	runset.RunConfig

	TTL          time.Duration
	KeepFailures bool
	PTY          bool
}

// Controller is the long-lived orchestrator for one CLI invocation. Its
// Stdout/Stderr fields follow the teacher's injectable-I/O pattern so
// tests can substitute buffers without touching os.Stdout. Log and
// LogError are the operational-diagnostics channel: what they write is
// never part of a recording or a replay. The CLI sends them to the same
// stderr it passes as Stderr, so diagnostic lines can appear between the
// child's own stderr bytes.
type Controller struct {
	Store *cachestore.Store

	Stdout io.Writer
	Stderr io.Writer

	Log      func(format string, args ...any)
	LogError func(format string, args ...any)

	runner *execrunner.Runner
}

// New builds a Controller ready to run requests against store.
func New(store *cachestore.Store, stdout, stderr io.Writer) *Controller {
	return &Controller{
		Store:    store,
		Stdout:   stdout,
		Stderr:   stderr,
		Log:      func(string, ...any) {},
		LogError: func(string, ...any) {},
		runner:   &execrunner.Runner{},
	}
}

// Runner exposes the underlying execrunner.Runner so a caller (main's
// signal handler) can forward SIGINT to the active child's process
// group via Runner().ForwardSignal.
func (c *Controller) Runner() *execrunner.Runner { return c.runner }

// Run executes req: it looks up the fingerprint, replays a fresh hit,
// or runs the child fresh and persists the result. It returns the exit
// code the caller should use as its own.
func (c *Controller) Run(req Request) (int, error) {
	fp := fingerprint.Compute(req.RunConfig)

	cached, found, err := c.Store.Get(fp)
	if err != nil {
		return 0, fmt.Errorf("controller: cache lookup: %w", err)
	}

	if found && cached.Fresh(time.Now(), req.TTL) {
		c.Log("cache hit %s (age %s)", fp, time.Since(cached.StartedAt))
		w := replay.Writer{Stdout: c.Stdout, Stderr: c.Stderr, StripColors: req.StripColors}
		w.Replay(cached)
		return cached.ReturnCode, nil
	}

	if found {
		c.Log("cache miss %s (stale)", fp)
	} else {
		c.Log("cache miss %s (no entry)", fp)
	}

	result, err := c.runner.Run(req.Command, execrunner.Options{
		Shell:      req.Shell,
		ShlexQuote: req.ShlexQuote,
		PTY:        req.PTY,
		Env:        mergeEnv(req.EnvForCache, req.EnvForPassthru),
		HasInput:   req.HasInput,
		Input:      req.Input,
		LiveStdout: c.Stdout,
		LiveStderr: c.Stderr,
	})
	if err != nil {
		return 0, fmt.Errorf("controller: running child: %w", err)
	}

	if result.ReturnCode == 0 || req.KeepFailures {
		if err := c.Store.Put(fp, result); err != nil {
			c.LogError("failed to persist cache entry %s: %v", fp, err)
		}
	} else {
		c.Log("not caching non-zero exit %d (keep_failures disabled)", result.ReturnCode)
	}

	return result.ReturnCode, nil
}

func mergeEnv(cached, passthru map[string]string) []string {
	env := make([]string, 0, len(cached)+len(passthru))
	for name, value := range cached {
		env = append(env, name+"="+value)
	}
	for name, value := range passthru {
		env = append(env, name+"="+value)
	}
	return env
}
