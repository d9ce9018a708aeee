package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
)

// prefixHandler renders each record as "[runcached:LEVEL] message",
// matching the Python original's logging.basicConfig format string
// (SPEC_FULL.md §8/§9.3). It deliberately ignores structured attrs and
// groups — runcached's diagnostics are one-line messages, never
// structured fields — so there's no k=v noise to format.
type prefixHandler struct {
	w     io.Writer
	level slog.Leveler
}

func newPrefixHandler(w io.Writer, level slog.Leveler) *prefixHandler {
	return &prefixHandler{w: w, level: level}
}

func (h *prefixHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

func (h *prefixHandler) Handle(_ context.Context, r slog.Record) error {
	_, err := fmt.Fprintf(h.w, "[runcached:%s] %s\n", r.Level, r.Message)
	return err
}

func (h *prefixHandler) WithAttrs(_ []slog.Attr) slog.Handler { return h }
func (h *prefixHandler) WithGroup(_ string) slog.Handler      { return h }

// levelFor maps -q/--quiet and -v/--verbose to the three-level
// verbosity the original CLI exposed (WARN/INFO/DEBUG).
func levelFor(quiet, verbose bool) slog.Level {
	switch {
	case quiet:
		return slog.LevelWarn
	case verbose:
		return slog.LevelDebug
	default:
		return slog.LevelInfo
	}
}
