// Package ttl parses the -t/--ttl duration string accepted by the CLI:
// anything time.ParseDuration understands, plus a bare "Nd" day suffix
// and a bare non-negative integer meaning whole seconds.
package ttl

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Parse parses s into a duration. Accepted forms:
//   - anything time.ParseDuration accepts ("1h30m", "90s", "500ms", ...)
//   - "Nd" for N days (time.ParseDuration has no day unit)
//   - a bare non-negative integer, interpreted as whole seconds
func Parse(s string) (time.Duration, error) {
	if d, err := time.ParseDuration(s); err == nil {
		return d, nil
	}

	if days, ok := strings.CutSuffix(s, "d"); ok {
		n, err := strconv.ParseInt(days, 10, 64)
		if err == nil && n >= 0 {
			return time.Duration(n) * 24 * time.Hour, nil
		}
	}

	if n, err := strconv.ParseInt(s, 10, 64); err == nil && n >= 0 {
		return time.Duration(n) * time.Second, nil
	}

	return 0, fmt.Errorf("ttl: invalid duration %q: want a Go duration, Nd, or bare seconds", s)
}
