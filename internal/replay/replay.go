// Package replay emits a previously recorded RunResult back to the
// caller's terminals, byte-for-byte unless color stripping was
// requested, per spec.md §4.5.
package replay

import (
	"fmt"
	"io"

	"github.com/acarl005/stripansi"

	"github.com/runcached/runcached/internal/runset"
)

// Writer replays a RunResult to Stdout/Stderr.
type Writer struct {
	Stdout      io.Writer
	Stderr      io.Writer
	StripColors bool
}

// Replay writes result's recorded chunks, in their original order, to
// the matching stream. Write errors (e.g. the caller's own stdout
// closing early, "broken pipe") are swallowed: replay is best-effort
// I/O, the same posture the live child would have taken writing to the
// same destination.
func (w Writer) Replay(result runset.RunResult) {
	for _, chunk := range result.Output {
		dest := w.destFor(chunk.Stream)
		if dest == nil {
			continue
		}
		data := chunk.Bytes
		if w.StripColors {
			data = []byte(stripansi.Strip(string(data)))
		}
		_, _ = dest.Write(data)
	}
}

func (w Writer) destFor(stream runset.Stream) io.Writer {
	switch stream {
	case runset.Stdout:
		return w.Stdout
	case runset.Stderr:
		return w.Stderr
	default:
		return nil
	}
}

// Validate reports an error if Writer is missing a destination for
// either stream. Replay does not call it; a nil destination there just
// drops that stream's chunks.
func (w Writer) Validate() error {
	if w.Stdout == nil || w.Stderr == nil {
		return fmt.Errorf("replay: both Stdout and Stderr destinations are required")
	}
	return nil
}
