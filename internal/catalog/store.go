package catalog

import (
	"slices"
	"sync/atomic"
	"time"
)

// Snapshot is an immutable, fully validated record set.
type Snapshot struct {
	Records  []Record  `json:"records"`
	LoadedAt time.Time `json:"loaded_at"`
	Version  int64     `json:"version"`
}

// Len returns the number of records in the snapshot.
func (s *Snapshot) Len() int {
	if s == nil {
		return 0
	}
	return len(s.Records)
}

// Store holds the current snapshot. Readers never block; Replace swaps the
// whole set at once.
type Store struct {
	current atomic.Pointer[Snapshot]
	version atomic.Int64
	now     func() time.Time
}

// NewStore returns a store holding an empty snapshot.
func NewStore() *Store {
	s := &Store{now: func() time.Time { return time.Now().UTC() }}
	s.current.Store(&Snapshot{Records: []Record{}})
	return s
}

// Snapshot returns the current record set. Callers must not modify it.
func (s *Store) Snapshot() *Snapshot {
	return s.current.Load()
}

// Records returns the records of the current snapshot.
func (s *Store) Records() []Record {
	return s.Snapshot().Records
}

// Replace installs a new record set, discarding the previous one. The slice is
// copied so later changes by the caller are not observed.
func (s *Store) Replace(records []Record) *Snapshot {
	copied := slices.Clone(records)
	if copied == nil {
		copied = []Record{}
	}
	snap := &Snapshot{
		Records:  copied,
		LoadedAt: s.now(),
		Version:  s.version.Add(1),
	}
	s.current.Store(snap)
	return snap
}
