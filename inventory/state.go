// Package inventory maintains the server's view of the package
// directory: the scanner builds immutable snapshots, the state holds
// the published snapshot and auth configuration, and the watcher keeps
// both fresh.
package inventory

import (
	"sync/atomic"

	"github.com/packserv/packserv"
	"github.com/packserv/packserv/auth"
)

// State holds the two published values. Each is swapped whole by a
// single writer and read by many request handlers; a reader captures
// the value once per request and keeps using that reference.
type State struct {
	snapshot atomic.Pointer[packserv.Snapshot]
	auth     atomic.Pointer[auth.Config]
}

// Snapshot returns the current inventory, or nil before the first
// successful scan.
func (s *State) Snapshot() *packserv.Snapshot { return s.snapshot.Load() }

// SetSnapshot publishes a new inventory.
func (s *State) SetSnapshot(sn *packserv.Snapshot) { s.snapshot.Store(sn) }

// Auth returns the current auth configuration, or nil when none has
// been loaded.
func (s *State) Auth() *auth.Config { return s.auth.Load() }

// SetAuth publishes a new auth configuration.
func (s *State) SetAuth(cfg *auth.Config) { s.auth.Store(cfg) }
