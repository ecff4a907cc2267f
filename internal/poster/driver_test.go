package poster

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"avtopost/internal/ledger"
	"avtopost/internal/post"
	logx "avtopost/pkg/logx"
)

type fakeTransport struct {
	published []post.Item
	failTexts map[string]error
}

func (f *fakeTransport) Publish(_ context.Context, it post.Item) (Receipt, error) {
	if err := f.failTexts[it.Text]; err != nil {
		return Receipt{}, err
	}
	f.published = append(f.published, it)
	return Receipt{MessageID: len(f.published)}, nil
}

type recNotifier struct {
	events []Event
}

func (r *recNotifier) Emit(_ context.Context, ev Event) { r.events = append(r.events, ev) }

func (r *recNotifier) kinds() []EventKind {
	out := make([]EventKind, 0, len(r.events))
	for _, ev := range r.events {
		out = append(out, ev.Kind)
	}
	return out
}

func openLedger(t *testing.T, path string) ledger.Ledger {
	t.Helper()
	l, err := ledger.Open(ledger.Config{Driver: "file", Path: path}, logx.Nop())
	if err != nil {
		t.Fatalf("open ledger: %v", err)
	}
	return l
}

func driverPolicy() Policy {
	return Policy{
		Lookback:              10 * time.Minute,
		Lookahead:             30 * time.Minute,
		MaxPerRun:             1,
		AntiDuplicateInterval: 3 * time.Hour,
		ReportHour:            21,
		Location:              time.UTC,
	}
}

func TestRunPublishesOnceThenDedups(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sent.json")
	items := []post.Item{item("2025-03-01", "14:00", "the post")}
	pol := driverPolicy()

	tr := &fakeTransport{}
	drv := &Driver{Transport: tr, Notifier: &recNotifier{}}

	now := time.Date(2025, 3, 1, 14, 5, 0, 0, time.UTC)
	led := openLedger(t, path)
	report, err := drv.Run(context.Background(), now, items, led, pol)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if report.PublishedCount != 1 || report.DueCount != 1 {
		t.Fatalf("first run: %+v", report)
	}
	if err := led.Close(); err != nil {
		t.Fatal(err)
	}

	// Five minutes later with the same catalog and a reopened ledger.
	led2 := openLedger(t, path)
	report2, err := drv.Run(context.Background(), now.Add(5*time.Minute), items, led2, pol)
	if err != nil {
		t.Fatalf("second Run: %v", err)
	}
	if report2.PublishedCount != 0 || report2.DueCount != 0 {
		t.Fatalf("dedup failed: %+v", report2)
	}
	if report2.SkippedReason != SkipNone {
		t.Fatalf("nothing was due; reason must be empty, got %q", report2.SkippedReason)
	}
	if len(tr.published) != 1 {
		t.Fatalf("transport saw %d publishes, want 1", len(tr.published))
	}
}

func TestRunCooldownGate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sent.json")
	pol := driverPolicy()

	first := item("2025-03-01", "14:00", "first")
	second := item("2025-03-01", "14:05", "second")

	tr := &fakeTransport{}
	rec := &recNotifier{}
	drv := &Driver{Transport: tr, Notifier: rec}

	now := time.Date(2025, 3, 1, 14, 0, 0, 0, time.UTC)
	led := openLedger(t, path)
	if _, err := drv.Run(context.Background(), now, []post.Item{first}, led, pol); err != nil {
		t.Fatal(err)
	}
	led.Close()

	// A different item is due five minutes later, but the run starts inside
	// the anti-duplicate interval.
	led2 := openLedger(t, path)
	report, err := drv.Run(context.Background(), now.Add(5*time.Minute), []post.Item{first, second}, led2, pol)
	if err != nil {
		t.Fatal(err)
	}
	if report.PublishedCount != 0 {
		t.Fatalf("cooldown run published %d items", report.PublishedCount)
	}
	if report.SkippedReason != SkipCooldown {
		t.Fatalf("skip reason: got %q, want %q", report.SkippedReason, SkipCooldown)
	}
	if _, ok := led2.Lookup(second.Fingerprint()); ok {
		t.Fatalf("rate-limited item must stay unrecorded")
	}

	found := false
	for _, k := range rec.kinds() {
		if k == EventRunSkippedCooldown {
			found = true
		}
	}
	if !found {
		t.Fatalf("cooldown skip must be observable in events: %v", rec.kinds())
	}
}

func TestRunMaxPerRunKeepsRestEligible(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sent.json")
	pol := driverPolicy()
	pol.AntiDuplicateInterval = 0

	items := []post.Item{
		item("2025-03-01", "14:10", "third"),
		item("2025-03-01", "14:00", "first"),
		item("2025-03-01", "14:05", "second"),
	}

	tr := &fakeTransport{}
	drv := &Driver{Transport: tr, Notifier: &recNotifier{}}
	now := time.Date(2025, 3, 1, 14, 10, 0, 0, time.UTC)

	led := openLedger(t, path)
	report, err := drv.Run(context.Background(), now, items, led, pol)
	if err != nil {
		t.Fatal(err)
	}
	if report.PublishedCount != 1 || tr.published[0].Text != "first" {
		t.Fatalf("must publish exactly the earliest item: %+v", report)
	}
	if report.SkippedReason != SkipMaxPerRun {
		t.Fatalf("skip reason: got %q, want %q", report.SkippedReason, SkipMaxPerRun)
	}
	led.Close()

	// The remaining two drain over the following runs.
	for i, want := range []string{"second", "third"} {
		led := openLedger(t, path)
		if _, err := drv.Run(context.Background(), now, items, led, pol); err != nil {
			t.Fatal(err)
		}
		led.Close()
		if got := tr.published[len(tr.published)-1].Text; got != want {
			t.Fatalf("run %d published %q, want %q", i+2, got, want)
		}
	}
}

func TestRunFailureLeavesItemEligible(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sent.json")
	pol := driverPolicy()
	pol.AntiDuplicateInterval = 0

	it := item("2025-03-01", "14:00", "flaky")
	sendErr := errors.New("bad gateway")

	tr := &fakeTransport{failTexts: map[string]error{"flaky": sendErr}}
	rec := &recNotifier{}
	drv := &Driver{Transport: tr, Notifier: rec}
	now := time.Date(2025, 3, 1, 14, 0, 0, 0, time.UTC)

	led := openLedger(t, path)
	report, err := drv.Run(context.Background(), now, []post.Item{it}, led, pol)
	if err != nil {
		t.Fatalf("per-item failure must not fail the run: %v", err)
	}
	if report.FailedCount != 1 || report.PublishedCount != 0 {
		t.Fatalf("report: %+v", report)
	}
	if _, ok := led.Lookup(it.Fingerprint()); ok {
		t.Fatalf("failed item must stay unrecorded")
	}
	led.Close()

	var failed *Event
	for i := range rec.events {
		if rec.events[i].Kind == EventPublishFailed {
			failed = &rec.events[i]
		}
	}
	if failed == nil || !errors.Is(failed.Err, sendErr) {
		t.Fatalf("failure event missing or wrong: %+v", failed)
	}

	// Transport recovers; the next run delivers it.
	tr.failTexts = nil
	led2 := openLedger(t, path)
	report2, err := drv.Run(context.Background(), now.Add(time.Minute), []post.Item{it}, led2, pol)
	if err != nil {
		t.Fatal(err)
	}
	if report2.PublishedCount != 1 {
		t.Fatalf("retry run: %+v", report2)
	}
}

func TestRunOneFailureDoesNotAbortRun(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sent.json")
	pol := driverPolicy()
	pol.AntiDuplicateInterval = 0
	pol.MaxPerRun = 5

	items := []post.Item{
		item("2025-03-01", "14:00", "breaks"),
		item("2025-03-01", "14:05", "works"),
	}
	tr := &fakeTransport{failTexts: map[string]error{"breaks": errors.New("boom")}}
	drv := &Driver{Transport: tr, Notifier: &recNotifier{}}

	led := openLedger(t, path)
	defer led.Close()
	report, err := drv.Run(context.Background(), time.Date(2025, 3, 1, 14, 5, 0, 0, time.UTC), items, led, pol)
	if err != nil {
		t.Fatal(err)
	}
	if report.FailedCount != 1 || report.PublishedCount != 1 {
		t.Fatalf("report: %+v", report)
	}
	if tr.published[0].Text != "works" {
		t.Fatalf("published: %+v", tr.published)
	}
}

func TestRunLiveCooldownStopsLoop(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sent.json")
	pol := driverPolicy()
	pol.MaxPerRun = 3 // cap would allow more; the cooldown must stop us first

	items := []post.Item{
		item("2025-03-01", "14:00", "one"),
		item("2025-03-01", "14:05", "two"),
	}
	tr := &fakeTransport{}
	drv := &Driver{Transport: tr, Notifier: &recNotifier{}}

	led := openLedger(t, path)
	defer led.Close()
	report, err := drv.Run(context.Background(), time.Date(2025, 3, 1, 14, 5, 0, 0, time.UTC), items, led, pol)
	if err != nil {
		t.Fatal(err)
	}
	if report.PublishedCount != 1 {
		t.Fatalf("live cooldown re-check failed: %+v", report)
	}
	if report.SkippedReason != SkipCooldown {
		t.Fatalf("skip reason: got %q", report.SkippedReason)
	}
	if _, ok := led.Lookup(items[1].Fingerprint()); ok {
		t.Fatalf("second item must remain eligible for the next run")
	}
}

func TestRunPublishOrder(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sent.json")
	pol := driverPolicy()
	pol.AntiDuplicateInterval = 0
	pol.MaxPerRun = 10

	items := []post.Item{
		item("2025-03-01", "14:08", "c"),
		item("2025-03-01", "14:02", "a"),
		item("2025-03-01", "14:04", "b"),
	}
	tr := &fakeTransport{}
	drv := &Driver{Transport: tr, Notifier: &recNotifier{}}

	led := openLedger(t, path)
	defer led.Close()
	if _, err := drv.Run(context.Background(), time.Date(2025, 3, 1, 14, 10, 0, 0, time.UTC), items, led, pol); err != nil {
		t.Fatal(err)
	}
	got := []string{}
	for _, it := range tr.published {
		got = append(got, it.Text)
	}
	for i, want := range []string{"a", "b", "c"} {
		if got[i] != want {
			t.Fatalf("publish order: got %v", got)
		}
	}
}

func TestRunPersistsRecordsForNextInvocation(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sent.json")
	pol := driverPolicy()
	it := item("2025-03-01", "14:00", "durable")

	drv := &Driver{Transport: &fakeTransport{}, Notifier: &recNotifier{}}
	led := openLedger(t, path)
	if _, err := drv.Run(context.Background(), time.Date(2025, 3, 1, 14, 0, 0, 0, time.UTC), []post.Item{it}, led, pol); err != nil {
		t.Fatal(err)
	}
	// No Close: Run itself must have persisted.

	led2 := openLedger(t, path)
	if _, ok := led2.Lookup(it.Fingerprint()); !ok {
		t.Fatalf("record did not survive to the next invocation")
	}
	if _, ok := led2.LastPublicationAt(); !ok {
		t.Fatalf("last publication time not persisted")
	}
}

func TestRunReportsDegradedLedger(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sent.json")
	if err := os.WriteFile(path, []byte("{broken"), 0o600); err != nil {
		t.Fatal(err)
	}

	rec := &recNotifier{}
	drv := &Driver{Transport: &fakeTransport{}, Notifier: rec}
	led := openLedger(t, path)
	defer led.Close()

	if _, err := drv.Run(context.Background(), time.Date(2025, 3, 1, 14, 0, 0, 0, time.UTC), nil, led, driverPolicy()); err != nil {
		t.Fatal(err)
	}
	if len(rec.events) == 0 || rec.events[0].Kind != EventLedgerDegraded {
		t.Fatalf("degraded ledger must be surfaced first: %v", rec.kinds())
	}
}
