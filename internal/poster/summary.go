package poster

import (
	"context"
	"time"

	"avtopost/internal/ledger"
	"avtopost/internal/post"
	logx "avtopost/pkg/logx"
)

// summaryDateLayout is the ledger's calendar-date form.
const summaryDateLayout = "2006-01-02"

// maybeDailySummary emits at most one aggregate report per local calendar
// day: how many items were planned for today versus actually published.
//
// The trigger is "first run at or after ReportHour whose date differs from
// the recorded one". Runs before the report hour do nothing; a day with no
// run after the report hour simply gets no summary. Re-running within the
// same day after the date is recorded is a no-op.
func (d *Driver) maybeDailySummary(ctx context.Context, now time.Time, items []post.Item, led ledger.Ledger, pol Policy) {
	loc := pol.location()
	local := now.In(loc)
	if local.Hour() < pol.ReportHour {
		return
	}
	today := local.Format(summaryDateLayout)
	if last, ok := led.LastSummaryDate(); ok && last == today {
		return
	}

	planned, published := 0, 0
	for _, it := range items {
		if it.Date != today {
			continue
		}
		planned++
		if _, ok := led.Lookup(it.Fingerprint()); ok {
			published++
		}
	}

	// Quiet days stay quiet: mark the date but send nothing.
	if planned > 0 || published > 0 {
		notifier := d.Notifier
		if notifier == nil {
			notifier = NopNotifier{}
		}
		notifier.Emit(ctx, Event{Kind: EventDailySummary, Date: today, Planned: planned, Published: published})
		if !d.Log.IsZero() {
			d.Log.Info("daily summary",
				logx.String("date", today),
				logx.Int("planned", planned),
				logx.Int("published", published))
		}
	}

	led.SetLastSummaryDate(today)
}
