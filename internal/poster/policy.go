package poster

import "time"

// Policy carries the externally configured scheduling knobs.
type Policy struct {
	// Lookback tolerates a late trigger: an item whose due time is up to this
	// far in the past is still published (catch-up window).
	Lookback time.Duration

	// Lookahead tolerates an early trigger: an item due up to this far in the
	// future is published now rather than waiting for the next run.
	Lookahead time.Duration

	// MaxPerRun caps publications per invocation.
	MaxPerRun int

	// AntiDuplicateInterval is the minimum spacing between any two successful
	// publications, across runs. A run starting inside this interval
	// publishes nothing.
	AntiDuplicateInterval time.Duration

	// PublishPause is the mandatory pause between two publications within one
	// run, to stay under downstream rate limits.
	PublishPause time.Duration

	// ReportHour is the local hour (0-23) after which the daily summary may
	// be emitted.
	ReportHour int

	// Location interprets catalog timestamps, which carry no timezone.
	// Nil means time.Local.
	Location *time.Location
}

func (p Policy) location() *time.Location {
	if p.Location != nil {
		return p.Location
	}
	return time.Local
}

// Default mirrors the knobs the system shipped with: a 30 minute publish
// window, 10 minutes of trigger lag tolerance, one post per run, 15 minutes
// between posts and an evening summary.
func Default() Policy {
	return Policy{
		Lookback:              10 * time.Minute,
		Lookahead:             30 * time.Minute,
		MaxPerRun:             1,
		AntiDuplicateInterval: 15 * time.Minute,
		PublishPause:          600 * time.Millisecond,
		ReportHour:            21,
	}
}
