// Package execrunner spawns the child command (directly or via $SHELL
// -c) and records its interleaved stdout/stderr while live-teeing each
// byte to the caller's terminals, per spec.md §4.3.
package execrunner

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"syscall"
	"time"

	shellquote "github.com/kballard/go-shellquote"

	"github.com/runcached/runcached/internal/runset"
)

// chunkSize bounds how much of a single Read() becomes one OutputChunk;
// it is the "no unbounded buffering beyond a chunk boundary" knob from
// spec.md's live-tee (LT) property.
const chunkSize = 32 * 1024

// Options configures a single child invocation. Env must already be the
// full fresh environment (envs_for_cache ∪ envs_for_passthru) the child
// should see — execrunner never inherits the parent's other variables.
type Options struct {
	Shell      bool
	ShlexQuote bool
	PTY        bool
	Env        []string

	HasInput bool
	Input    []byte

	// LiveStdout/LiveStderr receive every captured byte as it is
	// captured, in addition to the returned recording. Either may be
	// nil to suppress live-tee on that stream.
	LiveStdout io.Writer
	LiveStderr io.Writer
}

// Runner spawns one child process per Run call. The zero value is ready
// to use; it tracks the currently running child so a caller (main's
// signal handler, via Controller.Runner) can forward a signal to its
// process group.
type Runner struct {
	mu   sync.Mutex
	proc *os.Process
}

// ActiveProcess returns the process for the currently running child, or
// nil if no Run call is in flight.
func (r *Runner) ActiveProcess() *os.Process {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.proc
}

func (r *Runner) setProcess(p *os.Process) {
	r.mu.Lock()
	r.proc = p
	r.mu.Unlock()
}

// ForwardSignal delivers sig to the active child's process group
// (negative pid), the mechanism spec.md §5 requires for SIGINT
// cancellation. It is a no-op if no child is currently running.
func (r *Runner) ForwardSignal(sig syscall.Signal) {
	if p := r.ActiveProcess(); p != nil {
		_ = syscall.Kill(-p.Pid, sig)
	}
}

// Run spawns command under opts, captures its output until it exits, and
// returns the recording. The returned error is non-nil only for
// ChildSpawnFailed conditions (spec.md §7); a non-zero child exit is
// reported via RunResult.ReturnCode, not as an error.
func (r *Runner) Run(command []string, opts Options) (runset.RunResult, error) {
	if len(command) == 0 {
		return runset.RunResult{}, fmt.Errorf("execrunner: empty command")
	}

	cmd, err := buildCmd(command, opts)
	if err != nil {
		return runset.RunResult{}, err
	}
	cmd.Env = opts.Env
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	if opts.HasInput {
		cmd.Stdin = bytes.NewReader(opts.Input)
	}

	var stdoutR, stderrR io.Reader
	var ptyMaster, ptySlave *os.File
	var stdoutPipe, stderrPipe io.ReadCloser

	if opts.PTY {
		ptyMaster, ptySlave, err = openPTY()
		if err != nil {
			return runset.RunResult{}, fmt.Errorf("execrunner: allocating pty: %w", err)
		}
		cmd.Stdout = ptySlave
	} else {
		stdoutPipe, err = cmd.StdoutPipe()
		if err != nil {
			return runset.RunResult{}, fmt.Errorf("execrunner: stdout pipe: %w", err)
		}
		stdoutR = stdoutPipe
	}

	stderrPipe, err = cmd.StderrPipe()
	if err != nil {
		return runset.RunResult{}, fmt.Errorf("execrunner: stderr pipe: %w", err)
	}
	stderrR = stderrPipe

	started := time.Now()
	if err := cmd.Start(); err != nil {
		if ptyMaster != nil {
			ptyMaster.Close()
			ptySlave.Close()
		}
		return runset.RunResult{}, fmt.Errorf("execrunner: starting child: %w", err)
	}
	r.setProcess(cmd.Process)
	defer r.setProcess(nil)

	if opts.PTY {
		ptySlave.Close()
		stdoutR = ptyMaster
	}

	chunks := make(chan runset.OutputChunk)
	var pumps sync.WaitGroup
	pumps.Add(2)
	go pump(stdoutR, runset.Stdout, opts.LiveStdout, chunks, &pumps)
	go pump(stderrR, runset.Stderr, opts.LiveStderr, chunks, &pumps)

	collectDone := make(chan []runset.OutputChunk, 1)
	go func() {
		var collected []runset.OutputChunk
		for c := range chunks {
			collected = append(collected, c)
		}
		collectDone <- collected
	}()

	pumps.Wait()
	close(chunks)
	collected := <-collectDone

	waitErr := cmd.Wait()
	if ptyMaster != nil {
		ptyMaster.Close()
	}

	return runset.RunResult{
		StartedAt:  started,
		ReturnCode: exitCode(waitErr),
		Output:     collected,
	}, nil
}

func buildCmd(command []string, opts Options) (*exec.Cmd, error) {
	if opts.Shell {
		shell := shellFromEnv(opts.Env)
		joined := joinCommand(command, opts.ShlexQuote)
		return exec.Command(shell, "-c", joined), nil
	}
	return exec.Command(command[0], command[1:]...), nil
}

func joinCommand(command []string, shlexQuote bool) string {
	if shlexQuote {
		return shellquote.Join(command...)
	}
	return strings.Join(command, " ")
}

// shellFromEnv looks up SHELL in the child's resolved environment first
// (the env resolver injects it there when shell mode is requested),
// falling back to the parent process's own SHELL, and finally to
// /bin/sh when neither is set (spec.md §9, Open Question iii).
func shellFromEnv(env []string) string {
	for _, kv := range env {
		if name, value, ok := strings.Cut(kv, "="); ok && name == "SHELL" {
			return value
		}
	}
	if v := os.Getenv("SHELL"); v != "" {
		return v
	}
	return "/bin/sh"
}

// pump reads r in chunkSize bursts until it errors (EOF, or the
// "input/output error" a pty master yields once its slave closes),
// live-teeing each chunk to live (if non-nil) and forwarding a copy to
// out, preserving per-stream byte order (spec.md's OC property holds
// within a single pump; cross-stream interleaving is the relative
// arrival order of sends into out, which is the parent's true
// observation order).
func pump(r io.Reader, stream runset.Stream, live io.Writer, out chan<- runset.OutputChunk, wg *sync.WaitGroup) {
	defer wg.Done()
	if r == nil {
		return
	}
	buf := make([]byte, chunkSize)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			if live != nil {
				_, _ = live.Write(chunk) // best-effort; broken pipe on the caller's side is swallowed
			}
			out <- runset.OutputChunk{Stream: stream, Bytes: chunk}
		}
		if err != nil {
			return
		}
	}
}

func exitCode(waitErr error) int {
	if waitErr == nil {
		return 0
	}
	var exitErr *exec.ExitError
	if errors.As(waitErr, &exitErr) {
		if ws, ok := exitErr.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
			return 128 + int(ws.Signal())
		}
		return exitErr.ExitCode()
	}
	return -1
}
