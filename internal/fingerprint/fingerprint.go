// Package fingerprint derives the deterministic cache key from a
// RunConfig's cacheable fields, per spec.md §4.2. Any change to the
// canonical encoding here is a backward-incompatible cache format change
// and must bump FormatVersion (cmd/runcached passes FormatVersion to
// cachestore.Open, which empties the store on mismatch).
package fingerprint

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"sort"

	"github.com/runcached/runcached/internal/runset"
)

// FormatVersion identifies the canonical encoding below. Bump this (and
// nothing else needs to change for existing cache entries to be
// correctly discarded) whenever the encoding rules change.
const FormatVersion = 1

// Digest is a fixed-width SHA-256 fingerprint.
type Digest [sha256.Size]byte

// String returns the lowercase hex encoding, suitable for use as a
// content-addressed key or filename component.
func (d Digest) String() string {
	return hex.EncodeToString(d[:])
}

// Compute derives the Digest for the cacheable subset of cfg: Command,
// EnvForCache, Input, Shell, ShlexQuote — in that fixed order.
// EnvForPassthru and StripColors are never read here; that is what
// makes them provably irrelevant to the key (spec.md §3's invariant and
// testable property 2).
func Compute(cfg runset.RunConfig) Digest {
	var buf bytes.Buffer

	writeStringSeq(&buf, cfg.Command)
	writeEnvMap(&buf, cfg.EnvForCache)
	writeInput(&buf, cfg.Input, cfg.HasInput)
	writeBool(&buf, cfg.Shell)
	writeBool(&buf, cfg.ShlexQuote)

	return sha256.Sum256(buf.Bytes())
}

func writeUint64(buf *bytes.Buffer, n uint64) {
	var tmp [8]byte
	binary.LittleEndian.PutUint64(tmp[:], n)
	buf.Write(tmp[:])
}

func writeString(buf *bytes.Buffer, s string) {
	writeUint64(buf, uint64(len(s)))
	buf.WriteString(s)
}

func writeBytes(buf *bytes.Buffer, b []byte) {
	writeUint64(buf, uint64(len(b)))
	buf.Write(b)
}

func writeBool(buf *bytes.Buffer, b bool) {
	if b {
		buf.WriteByte(0x01)
	} else {
		buf.WriteByte(0x00)
	}
}

func writeStringSeq(buf *bytes.Buffer, seq []string) {
	writeUint64(buf, uint64(len(seq)))
	for _, s := range seq {
		writeString(buf, s)
	}
}

// writeEnvMap encodes a map as a sorted sequence of (name, value) pairs,
// sorted lexicographically by name bytes. Each value is hashed
// individually and its hex digest is written in place of the raw value —
// a privacy measure so cached values never land on disk in the
// cache-key path component (spec.md §4.2).
func writeEnvMap(buf *bytes.Buffer, env map[string]string) {
	names := make([]string, 0, len(env))
	for name := range env {
		names = append(names, name)
	}
	sort.Strings(names)

	writeUint64(buf, uint64(len(names)))
	for _, name := range names {
		writeString(buf, name)
		sum := sha256.Sum256([]byte(env[name]))
		writeString(buf, hex.EncodeToString(sum[:]))
	}
}

func writeInput(buf *bytes.Buffer, input []byte, present bool) {
	if !present {
		buf.WriteByte(0x00)
		return
	}
	buf.WriteByte(0x01)
	writeBytes(buf, input)
}
