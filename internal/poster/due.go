package poster

import (
	"sort"
	"time"

	"avtopost/internal/ledger"
	"avtopost/internal/post"
)

// History is the read side of the ledger the resolver needs.
type History interface {
	Lookup(fingerprint string) (ledger.Entry, bool)
}

// DueCandidate pairs an item with its identity and lateness for one run.
// It is never persisted.
type DueCandidate struct {
	Item        post.Item
	Fingerprint string
	ScheduledAt time.Time
	Lateness    time.Duration // now - ScheduledAt; negative when due in the future
}

// Resolution is the outcome of ResolveDue.
type Resolution struct {
	// Candidates are the items to publish this run, earliest due first,
	// capped at Policy.MaxPerRun.
	Candidates []DueCandidate

	// Eligible counts all due, unpublished items before the cap.
	Eligible int

	// Malformed counts items skipped for missing or unparseable identity
	// fields. They are filtered every run and never become eligible.
	Malformed int
}

// ResolveDue computes the items to publish at now.
//
// An item is due when its scheduled time falls in the closed window
// [now-lookback, now+lookahead] and the ledger has no entry for its
// fingerprint. Candidates are ordered by scheduled time ascending, catalog
// order breaking ties. Pure: neither the catalog nor the ledger is mutated.
func ResolveDue(now time.Time, items []post.Item, hist History, pol Policy) Resolution {
	loc := pol.location()
	var res Resolution

	for _, it := range items {
		if !it.Valid() {
			res.Malformed++
			continue
		}
		at, ok := it.ScheduledAt(loc)
		if !ok {
			res.Malformed++
			continue
		}
		if at.Before(now.Add(-pol.Lookback)) || at.After(now.Add(pol.Lookahead)) {
			continue
		}
		fp := it.Fingerprint()
		if _, seen := hist.Lookup(fp); seen {
			continue
		}
		res.Candidates = append(res.Candidates, DueCandidate{
			Item:        it,
			Fingerprint: fp,
			ScheduledAt: at,
			Lateness:    now.Sub(at),
		})
	}

	sort.SliceStable(res.Candidates, func(i, j int) bool {
		return res.Candidates[i].ScheduledAt.Before(res.Candidates[j].ScheduledAt)
	})

	res.Eligible = len(res.Candidates)
	if pol.MaxPerRun >= 0 && len(res.Candidates) > pol.MaxPerRun {
		res.Candidates = res.Candidates[:pol.MaxPerRun]
	}
	return res
}
