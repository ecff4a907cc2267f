// Package ledger is the durable publication history.
//
// It remembers which posts have already been delivered (keyed by the post
// fingerprint) plus two housekeeping scalars: the time of the most recent
// successful publication and the last calendar date a daily summary went out.
//
// Drivers:
//   - "file":   one JSON document, written atomically (default)
//   - "sqlite": SQLite database file
package ledger
