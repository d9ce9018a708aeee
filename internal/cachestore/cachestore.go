// Package cachestore is the on-disk, TTL-gated, content-addressed cache
// described in spec.md §4.4, backed by an embedded bbolt database so a
// lookup or a write is always observed as a whole transaction — never a
// partially-written entry (spec.md §3's durability invariant).
package cachestore

import (
	"bytes"
	"encoding/binary"
	"encoding/gob"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/runcached/runcached/internal/fingerprint"
	"github.com/runcached/runcached/internal/runset"
)

var (
	bucketEntries = []byte("entries")
	bucketMeta    = []byte("meta")
	keyFormat     = []byte("format_version")
)

// Store is a single bbolt-backed cache database.
type Store struct {
	db   *bolt.DB
	path string

	// Logf receives a one-line diagnostic when Get silently treats a
	// corrupted entry as a miss. Defaults to a no-op; callers may
	// replace it (e.g. with the controller's LogError) after Open.
	Logf func(format string, args ...any)
}

// Open opens (creating if absent) the database at path. If the stored
// format version doesn't match formatVersion, the entire entries bucket
// is dropped and recreated empty — a format change invalidates every
// existing entry rather than risk misinterpreting old encodings
// (spec.md §4.4).
func Open(path string, formatVersion int) (*Store, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("cachestore: opening %s: %w", path, err)
	}

	s := &Store{db: db, path: path, Logf: func(string, ...any) {}}
	if err := s.ensureFormat(formatVersion); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Path returns the on-disk path of the database, for --print-cache-path.
func (s *Store) Path() string { return s.path }

// Close releases the underlying database file.
func (s *Store) Close() error { return s.db.Close() }

func (s *Store) ensureFormat(formatVersion int) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		meta, err := tx.CreateBucketIfNotExists(bucketMeta)
		if err != nil {
			return err
		}

		stored := meta.Get(keyFormat)
		want := formatVersionBytes(formatVersion)

		if stored != nil && bytes.Equal(stored, want) {
			_, err := tx.CreateBucketIfNotExists(bucketEntries)
			return err
		}

		if err := tx.DeleteBucket(bucketEntries); err != nil && err != bolt.ErrBucketNotFound {
			return err
		}
		if _, err := tx.CreateBucket(bucketEntries); err != nil {
			return err
		}
		return meta.Put(keyFormat, want)
	})
}

func formatVersionBytes(v int) []byte {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], uint64(v))
	return b[:]
}

// Get looks up the entry for fp. The second return value is false if no
// entry exists; callers decide freshness via RunResult.Fresh. A
// corrupted entry (one that fails to decode) is treated as a miss
// rather than an error — spec.md §7's CachePartial disposition is
// "treat as miss; never propagate" — so Get itself never fails on
// account of stored data; the returned error is reserved for the
// underlying database transaction failing outright.
func (s *Store) Get(fp fingerprint.Digest) (runset.RunResult, bool, error) {
	var result runset.RunResult
	found := false

	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketEntries)
		if b == nil {
			return nil
		}
		raw := b.Get(fp[:])
		if raw == nil {
			return nil
		}
		if err := gob.NewDecoder(bytes.NewReader(raw)).Decode(&result); err != nil {
			s.Logf("cachestore: discarding corrupted entry %s: %v", fp, err)
			result = runset.RunResult{}
			return nil
		}
		found = true
		return nil
	})
	if err != nil {
		return runset.RunResult{}, false, fmt.Errorf("cachestore: get: %w", err)
	}
	return result, found, nil
}

// Put stores result under fp in a single atomic transaction. Callers are
// responsible for applying the keep_failures policy (spec.md §4.4)
// before calling Put — Put itself stores unconditionally.
func (s *Store) Put(fp fingerprint.Digest, result runset.RunResult) error {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(result); err != nil {
		return fmt.Errorf("cachestore: encoding entry: %w", err)
	}

	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketEntries)
		if b == nil {
			var err error
			b, err = tx.CreateBucket(bucketEntries)
			if err != nil {
				return err
			}
		}
		return b.Put(fp[:], buf.Bytes())
	})
	if err != nil {
		return fmt.Errorf("cachestore: put: %w", err)
	}
	return nil
}
