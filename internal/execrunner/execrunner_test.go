package execrunner

import (
	"bytes"
	"os"
	"runtime"
	"testing"

	"github.com/runcached/runcached/internal/runset"
)

func skipUnlessUnix(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("requires a POSIX shell")
	}
}

func baseEnv() []string {
	return append(os.Environ(), "SHELL=/bin/sh")
}

func TestRunDirectCapturesStdoutAndExitCode(t *testing.T) {
	skipUnlessUnix(t)
	r := &Runner{}
	result, err := r.Run([]string{"sh", "-c", "echo hello"}, Options{Env: baseEnv()})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.ReturnCode != 0 {
		t.Fatalf("ReturnCode = %d, want 0", result.ReturnCode)
	}
	if got := joinStream(result.Output, runset.Stdout); got != "hello\n" {
		t.Errorf("stdout = %q, want %q", got, "hello\n")
	}
}

func TestRunCapturesBothStreamsSeparately(t *testing.T) {
	skipUnlessUnix(t)
	r := &Runner{}
	result, err := r.Run([]string{"sh", "-c", "echo out; echo err 1>&2"}, Options{Env: baseEnv()})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got := joinStream(result.Output, runset.Stdout); got != "out\n" {
		t.Errorf("stdout = %q, want %q", got, "out\n")
	}
	if got := joinStream(result.Output, runset.Stderr); got != "err\n" {
		t.Errorf("stderr = %q, want %q", got, "err\n")
	}
}

func TestRunNonZeroExit(t *testing.T) {
	skipUnlessUnix(t)
	r := &Runner{}
	result, err := r.Run([]string{"sh", "-c", "exit 7"}, Options{Env: baseEnv()})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.ReturnCode != 7 {
		t.Errorf("ReturnCode = %d, want 7", result.ReturnCode)
	}
}

func TestRunShellModeJoinsCommand(t *testing.T) {
	skipUnlessUnix(t)
	r := &Runner{}
	result, err := r.Run([]string{"echo", "a", "b"}, Options{Env: baseEnv(), Shell: true})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got := joinStream(result.Output, runset.Stdout); got != "a b\n" {
		t.Errorf("stdout = %q, want %q", got, "a b\n")
	}
}

func TestRunShlexQuotePreservesArgumentBoundaries(t *testing.T) {
	skipUnlessUnix(t)
	r := &Runner{}
	result, err := r.Run([]string{"echo", "a b", "c"}, Options{Env: baseEnv(), Shell: true, ShlexQuote: true})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got := joinStream(result.Output, runset.Stdout); got != "a b c\n" {
		t.Errorf("stdout = %q, want %q", got, "a b c\n")
	}
}

func TestRunFeedsStdin(t *testing.T) {
	skipUnlessUnix(t)
	r := &Runner{}
	result, err := r.Run([]string{"cat"}, Options{
		Env:      baseEnv(),
		HasInput: true,
		Input:    []byte("piped in"),
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got := joinStream(result.Output, runset.Stdout); got != "piped in" {
		t.Errorf("stdout = %q, want %q", got, "piped in")
	}
}

func TestRunWithoutStdinReadsNullDevice(t *testing.T) {
	skipUnlessUnix(t)
	r := &Runner{}
	result, err := r.Run([]string{"cat"}, Options{Env: baseEnv()})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got := joinStream(result.Output, runset.Stdout); got != "" {
		t.Errorf("stdout = %q, want empty (cat of /dev/null)", got)
	}
}

func TestRunLiveTeesOutput(t *testing.T) {
	skipUnlessUnix(t)
	var liveOut bytes.Buffer
	r := &Runner{}
	result, err := r.Run([]string{"sh", "-c", "echo tee-me"}, Options{
		Env:        baseEnv(),
		LiveStdout: &liveOut,
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if liveOut.String() != "tee-me\n" {
		t.Errorf("live stdout = %q, want %q", liveOut.String(), "tee-me\n")
	}
	if got := joinStream(result.Output, runset.Stdout); got != liveOut.String() {
		t.Errorf("recorded stdout %q must match live-teed stdout %q", got, liveOut.String())
	}
}

func TestRunRejectsEmptyCommand(t *testing.T) {
	r := &Runner{}
	if _, err := r.Run(nil, Options{Env: baseEnv()}); err == nil {
		t.Error("expected error for empty command")
	}
}

func TestActiveProcessClearedAfterRun(t *testing.T) {
	skipUnlessUnix(t)
	r := &Runner{}
	if r.ActiveProcess() != nil {
		t.Fatal("ActiveProcess should start nil")
	}
	if _, err := r.Run([]string{"true"}, Options{Env: baseEnv()}); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if r.ActiveProcess() != nil {
		t.Error("ActiveProcess should be nil once Run has returned")
	}
}

func joinStream(chunks []runset.OutputChunk, stream runset.Stream) string {
	var buf bytes.Buffer
	for _, c := range chunks {
		if c.Stream == stream {
			buf.Write(c.Bytes)
		}
	}
	return buf.String()
}
