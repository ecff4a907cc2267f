// Package poster is the due-item scheduling and deduplication core.
//
// Each invocation is short-lived: resolve which catalog items are due right
// now, publish them in order through the transport, record every success in
// the ledger, maybe emit the once-a-day summary, persist, exit. All state
// that must survive between invocations lives in the ledger.
package poster
