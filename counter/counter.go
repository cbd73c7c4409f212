// Package counter implements the persistent per-version download
// counters.
//
// A counter for package id and version v lives at <dir>/<id>/<v>.txt
// as an ASCII decimal. The first increment of a key adopts whatever
// value the file already holds, so counts survive restarts and
// external resets. Counting must never fail a download: every error
// is logged and swallowed.
package counter

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/quay/zlog"
)

// Store hands out per-key counters backed by files under Dir.
type Store struct {
	dir string

	mu sync.RWMutex
	m  map[key]*entry
}

type key struct {
	pkg     string
	version string
}

type entry struct {
	sync.Mutex
	n uint64
}

// New returns a Store writing below the package directory.
func New(dir string) *Store {
	return &Store{
		dir: dir,
		m:   make(map[key]*entry),
	}
}

// Increment bumps the counter for the package version and rewrites
// its file. The version is the URL form, matching the download path
// and the file stem on disk.
//
// Increments of one key are serialized by a per-key mutex; the
// on-disk value equals the in-memory value after every successful
// increment.
func (s *Store) Increment(ctx context.Context, pkg, version string) {
	ctx = zlog.ContextWithValues(ctx,
		"component", "counter/Store.Increment",
		"package", pkg,
		"version", version)

	k := key{pkg, version}
	s.mu.RLock()
	e, ok := s.m[k]
	s.mu.RUnlock()
	if !ok {
		e = s.materialize(ctx, k)
	}

	e.Lock()
	defer e.Unlock()
	e.n++
	p := s.path(k)
	if err := os.WriteFile(p, []byte(strconv.FormatUint(e.n, 10)), 0644); err != nil {
		zlog.Error(ctx).Err(err).Str("path", p).Msg("failed to write download counter")
	}
	downloads.WithLabelValues(pkg).Inc()
}

// materialize creates the in-memory counter for k, seeding it from
// the existing file. A missing or malformed file seeds zero.
func (s *Store) materialize(ctx context.Context, k key) *entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.m[k]; ok {
		return e
	}
	e := new(entry)
	p := s.path(k)
	switch b, err := os.ReadFile(p); {
	case err == nil:
		n, err := strconv.ParseUint(string(b), 10, 64)
		if err != nil {
			zlog.Warn(ctx).Err(err).Str("path", p).Msg("malformed download counter, resetting")
		} else {
			e.n = n
		}
	case os.IsNotExist(err):
	default:
		zlog.Warn(ctx).Err(err).Str("path", p).Msg("failed to read download counter")
	}
	s.m[k] = e
	return e
}

func (s *Store) path(k key) string {
	return filepath.Join(s.dir, k.pkg, k.version+".txt")
}
