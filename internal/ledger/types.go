package ledger

import (
	"errors"
	"time"
)

var ErrUnknownDriver = errors.New("unknown ledger driver")

// Config configures the ledger backing store.
//
// Driver values:
//   - "file" (or empty): JSON file backend
//   - "sqlite": SQLite database file
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// Entry records one successful publication.
type Entry struct {
	PublishedAt time.Time
}

// Ledger is the persistence API used by the publication core.
//
// Mutations act on in-memory state; Persist flushes them to the backing
// store. A crash between Record and Persist is the one window in which the
// next run could publish an item a second time. That window is accepted:
// at-least-once delivery with a dedup key beats refusing to run.
type Ledger interface {
	// Lookup reports whether fingerprint has a recorded publication.
	Lookup(fingerprint string) (Entry, bool)

	// Record marks fingerprint as published at the given time. Recording an
	// already-present fingerprint is a no-op; the first timestamp wins.
	Record(fingerprint string, publishedAt time.Time)

	LastPublicationAt() (time.Time, bool)
	SetLastPublicationAt(t time.Time)

	// LastSummaryDate is a local calendar date in "2006-01-02" form.
	LastSummaryDate() (string, bool)
	SetLastSummaryDate(date string)

	// Degraded reports that the backing store was unreadable at open time and
	// the ledger started empty. Dedup history before that point is lost.
	Degraded() bool

	// Persist flushes in-memory state to the backing store.
	Persist() error

	Close() error
}

// state is the in-memory representation shared by all drivers.
type state struct {
	entries     map[string]time.Time
	lastPub     time.Time
	lastSummary string
}

func newState() *state {
	return &state{entries: map[string]time.Time{}}
}

func (s *state) lookup(fp string) (Entry, bool) {
	at, ok := s.entries[fp]
	if !ok {
		return Entry{}, false
	}
	return Entry{PublishedAt: at}, true
}

func (s *state) record(fp string, at time.Time) bool {
	if fp == "" {
		return false
	}
	if _, ok := s.entries[fp]; ok {
		return false
	}
	s.entries[fp] = at
	return true
}
