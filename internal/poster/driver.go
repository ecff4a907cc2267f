package poster

import (
	"context"
	"time"

	"golang.org/x/time/rate"

	"avtopost/internal/ledger"
	"avtopost/internal/post"
	logx "avtopost/pkg/logx"
)

// Receipt identifies a delivered message.
type Receipt struct {
	MessageID int
}

// Transport delivers one item to the destination channel. A single attempt:
// retry happens naturally on the next invocation for items that stay
// unrecorded.
type Transport interface {
	Publish(ctx context.Context, it post.Item) (Receipt, error)
}

// SkipReason says why a run published fewer items than were eligible.
type SkipReason string

const (
	SkipNone      SkipReason = ""
	SkipCooldown  SkipReason = "cooldown"
	SkipMaxPerRun SkipReason = "maxPerRun"
)

// RunReport is the aggregate outcome of one invocation.
type RunReport struct {
	DueCount       int
	PublishedCount int
	FailedCount    int
	MalformedCount int
	SkippedReason  SkipReason
}

// Driver orchestrates one publication run.
type Driver struct {
	Transport Transport
	Notifier  Notifier
	Log       logx.Logger
}

// Run executes one invocation: resolve due items, publish them in order under
// the cooldown and per-run caps, record each success, maybe emit the daily
// summary, persist the ledger once.
//
// Per-item failures are reported and retried on a later run; only store or
// transport-construction level problems surface as an error.
func (d *Driver) Run(ctx context.Context, now time.Time, items []post.Item, led ledger.Ledger, pol Policy) (RunReport, error) {
	log := d.Log
	if log.IsZero() {
		log = logx.Nop()
	}
	notifier := d.Notifier
	if notifier == nil {
		notifier = NopNotifier{}
	}

	if led.Degraded() {
		log.Warn("ledger started empty, dedup history lost")
		notifier.Emit(ctx, Event{Kind: EventLedgerDegraded})
	}

	res := ResolveDue(now, items, led, pol)
	report := RunReport{DueCount: len(res.Candidates), MalformedCount: res.Malformed}
	if res.Malformed > 0 {
		log.Debug("malformed catalog items skipped", logx.Int("count", res.Malformed))
	}

	// Global cooldown gate. Distinguishes "nothing was due" from "something
	// was due but we are rate limited": only the latter sets a skip reason.
	if len(res.Candidates) > 0 && d.cooldownActive(now, led, pol) {
		report.SkippedReason = SkipCooldown
		log.Info("run skipped, publication cooldown active",
			logx.Int("due", len(res.Candidates)),
			logx.Duration("interval", pol.AntiDuplicateInterval))
		notifier.Emit(ctx, Event{Kind: EventRunSkippedCooldown})
		return d.finish(ctx, now, items, led, pol, report)
	}

	var limiter *rate.Limiter
	if pol.PublishPause > 0 {
		limiter = rate.NewLimiter(rate.Every(pol.PublishPause), 1)
	}

	for i := range res.Candidates {
		if report.PublishedCount >= pol.MaxPerRun {
			break
		}
		cand := res.Candidates[i]

		if limiter != nil {
			if err := limiter.Wait(ctx); err != nil {
				return report, err
			}
		}

		receipt, err := d.Transport.Publish(ctx, cand.Item)
		if err != nil {
			// Leave the item unrecorded so it stays eligible next run.
			report.FailedCount++
			log.Error("publish failed",
				logx.String("fingerprint", cand.Fingerprint),
				logx.Time("scheduled_at", cand.ScheduledAt),
				logx.Err(err))
			notifier.Emit(ctx, Event{Kind: EventPublishFailed, Item: &res.Candidates[i].Item, Lateness: cand.Lateness, Err: err})
			continue
		}

		led.Record(cand.Fingerprint, now)
		led.SetLastPublicationAt(now)
		report.PublishedCount++
		log.Info("published",
			logx.String("fingerprint", cand.Fingerprint),
			logx.Time("scheduled_at", cand.ScheduledAt),
			logx.Duration("lateness", cand.Lateness),
			logx.Int("message_id", receipt.MessageID))
		notifier.Emit(ctx, Event{Kind: EventPublished, Item: &res.Candidates[i].Item, Lateness: cand.Lateness})

		// The publish above reset the cooldown clock; re-check it live rather
		// than only at run entry.
		if i+1 < len(res.Candidates) && d.cooldownActive(now, led, pol) {
			report.SkippedReason = SkipCooldown
			break
		}
	}

	if report.SkippedReason == SkipNone && res.Eligible > report.PublishedCount+report.FailedCount {
		report.SkippedReason = SkipMaxPerRun
	}

	return d.finish(ctx, now, items, led, pol, report)
}

func (d *Driver) cooldownActive(now time.Time, led ledger.Ledger, pol Policy) bool {
	if pol.AntiDuplicateInterval <= 0 {
		return false
	}
	last, ok := led.LastPublicationAt()
	return ok && now.Sub(last) < pol.AntiDuplicateInterval
}

// finish runs the daily summary step and persists the ledger exactly once.
func (d *Driver) finish(ctx context.Context, now time.Time, items []post.Item, led ledger.Ledger, pol Policy, report RunReport) (RunReport, error) {
	d.maybeDailySummary(ctx, now, items, led, pol)
	if err := led.Persist(); err != nil {
		return report, err
	}
	return report, nil
}
