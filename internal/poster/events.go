package poster

import (
	"context"
	"time"

	"avtopost/internal/post"
)

// EventKind classifies run outcomes surfaced to the operator.
type EventKind string

const (
	EventPublished          EventKind = "published"
	EventPublishFailed      EventKind = "publish_failed"
	EventRunSkippedCooldown EventKind = "run_skipped_cooldown"
	EventDailySummary       EventKind = "daily_summary"
	EventLedgerDegraded     EventKind = "ledger_degraded"
	EventFatal              EventKind = "fatal"
)

// Event is one run outcome. Which fields are set depends on Kind.
type Event struct {
	Kind EventKind

	// Published / PublishFailed
	Item     *post.Item
	Lateness time.Duration
	Err      error

	// DailySummary
	Date      string
	Planned   int
	Published int
}

// Notifier consumes events. Implementations are fire-and-forget; the core
// never blocks on, or fails because of, notification delivery.
type Notifier interface {
	Emit(ctx context.Context, ev Event)
}

// NopNotifier discards all events.
type NopNotifier struct{}

func (NopNotifier) Emit(context.Context, Event) {}
