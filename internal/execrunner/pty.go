package execrunner

import (
	"os"

	"github.com/creack/pty"
)

// openPTY allocates a master/slave pseudo-terminal pair. The child's
// stdout is connected to the slave so that an isatty() check on its
// stdout returns true (spec.md §4.3); stderr is kept on a regular pipe
// so the recorder can still tag it independently rather than folding
// both streams into one.
func openPTY() (master, slave *os.File, err error) {
	return pty.Open()
}
