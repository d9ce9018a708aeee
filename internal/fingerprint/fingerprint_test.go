package fingerprint

import (
	"bytes"
	"testing"

	"github.com/runcached/runcached/internal/runset"
)

func baseConfig() runset.RunConfig {
	return runset.RunConfig{
		Command: []string{"echo", "foo"},
		EnvForCache: map[string]string{
			"A": "1",
			"B": "2",
		},
		Input:    []byte("hello"),
		HasInput: true,
		Shell:    false,
	}
}

func TestComputeIsDeterministic(t *testing.T) {
	a := Compute(baseConfig())
	b := Compute(baseConfig())
	if a != b {
		t.Errorf("Compute is not deterministic: %s != %s", a, b)
	}
}

func TestComputeIgnoresEnvInsertionOrder(t *testing.T) {
	cfg1 := baseConfig()
	cfg1.EnvForCache = map[string]string{"A": "1", "B": "2", "C": "3"}

	cfg2 := baseConfig()
	cfg2.EnvForCache = map[string]string{"C": "3", "A": "1", "B": "2"}

	if Compute(cfg1) != Compute(cfg2) {
		t.Error("map iteration order must not affect the fingerprint")
	}
}

func TestComputeIgnoresPassthruAndStripColors(t *testing.T) {
	cfg1 := baseConfig()
	cfg2 := baseConfig()

	cfg1.EnvForPassthru = map[string]string{"HOME": "/root"}
	cfg1.StripColors = true

	cfg2.EnvForPassthru = map[string]string{"HOME": "/elsewhere", "PATH": "/bin"}
	cfg2.StripColors = false

	if Compute(cfg1) != Compute(cfg2) {
		t.Error("EnvForPassthru and StripColors must not affect the fingerprint")
	}
}

func TestComputeSensitiveToCommand(t *testing.T) {
	cfg1 := baseConfig()
	cfg2 := baseConfig()
	cfg2.Command = []string{"echo", "bar"}

	if Compute(cfg1) == Compute(cfg2) {
		t.Error("different commands must produce different fingerprints")
	}
}

func TestComputeSensitiveToCommandOrder(t *testing.T) {
	cfg1 := baseConfig()
	cfg1.Command = []string{"a", "b"}
	cfg2 := baseConfig()
	cfg2.Command = []string{"b", "a"}

	if Compute(cfg1) == Compute(cfg2) {
		t.Error("command token order must affect the fingerprint")
	}
}

func TestComputeSensitiveToEnvValue(t *testing.T) {
	cfg1 := baseConfig()
	cfg2 := baseConfig()
	cfg2.EnvForCache = map[string]string{"A": "1", "B": "different"}

	if Compute(cfg1) == Compute(cfg2) {
		t.Error("changing a cached env value must change the fingerprint")
	}
}

func TestComputeSensitiveToInputPresence(t *testing.T) {
	withInput := baseConfig()
	withoutInput := baseConfig()
	withoutInput.HasInput = false
	withoutInput.Input = nil

	if Compute(withInput) == Compute(withoutInput) {
		t.Error("absent vs present (even empty) stdin must change the fingerprint")
	}
}

func TestComputeSensitiveToEmptyVsAbsentInput(t *testing.T) {
	absent := baseConfig()
	absent.HasInput = false
	absent.Input = nil

	empty := baseConfig()
	empty.HasInput = true
	empty.Input = []byte{}

	if Compute(absent) == Compute(empty) {
		t.Error("absent input and present-but-empty input must differ")
	}
}

func TestComputeSensitiveToShellAndShlex(t *testing.T) {
	base := baseConfig()
	shell := base
	shell.Shell = true
	if Compute(base) == Compute(shell) {
		t.Error("Shell must affect the fingerprint")
	}

	shlex := shell
	shlex.ShlexQuote = true
	if Compute(shell) == Compute(shlex) {
		t.Error("ShlexQuote must affect the fingerprint")
	}
}

func TestComputeNeverStoresRawEnvValue(t *testing.T) {
	cfg := baseConfig()
	cfg.EnvForCache = map[string]string{"SECRET": "super-sensitive-value"}

	// The canonical env encoding must carry the value's hex digest, never
	// the raw value itself.
	var buf bytes.Buffer
	writeEnvMap(&buf, cfg.EnvForCache)
	if bytes.Contains(buf.Bytes(), []byte("super-sensitive-value")) {
		t.Error("raw env value appears in the canonical encoding")
	}

	// Replacing the value by its digest must still be deterministic:
	// identical values hash identically.
	cfg2 := cfg
	cfg2.EnvForCache = map[string]string{"SECRET": "super-sensitive-value"}
	if Compute(cfg) != Compute(cfg2) {
		t.Error("identical secret values must hash identically")
	}
}
