// Package app wires configuration, ledger, catalog and transport into runs.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"avtopost/internal/catalog"
	"avtopost/internal/config"
	"avtopost/internal/ledger"
	"avtopost/internal/notify"
	"avtopost/internal/poster"
	"avtopost/internal/transport/telegram"
	logx "avtopost/pkg/logx"
)

type App struct {
	cfg      *config.Config
	log      logx.Logger
	pol      poster.Policy
	pub      *telegram.Publisher
	notifier *notify.Service
}

func New(cfgPath string) (*App, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, err
	}
	log := logx.NewConsole(cfg.Logging.Level)

	pol, err := cfg.PosterPolicy()
	if err != nil {
		return nil, err
	}
	mode, err := notify.ParseMode(cfg.Notify.Mode)
	if err != nil {
		return nil, err
	}
	pub, err := telegram.New(telegram.Config{
		Token:     cfg.Telegram.Token,
		ChannelID: cfg.Telegram.ChannelID,
	}, log)
	if err != nil {
		return nil, err
	}

	return &App{
		cfg:      cfg,
		log:      log,
		pol:      pol,
		pub:      pub,
		notifier: notify.New(pub, cfg.Telegram.OwnerID, mode, log),
	}, nil
}

func (a *App) Log() logx.Logger { return a.log }

// RunOnce executes a single invocation. The catalog and ledger are re-read
// every time, so edits between triggers are picked up without a restart.
//
// An exclusive lock file next to the ledger guards against overlapping
// external triggers; a second concurrent run fails fast instead of risking a
// double publication.
func (a *App) RunOnce(ctx context.Context) (poster.RunReport, error) {
	report, err := a.runLocked(ctx)
	if err != nil {
		a.notifier.Emit(ctx, poster.Event{Kind: poster.EventFatal, Err: err})
	}
	return report, err
}

func (a *App) runLocked(ctx context.Context) (poster.RunReport, error) {
	unlock, err := acquireRunLock(a.cfg.Ledger.Path+".lock", a.log)
	if err != nil {
		return poster.RunReport{}, err
	}
	defer unlock()

	items, err := catalog.Load(a.cfg.Catalog.Path)
	if err != nil {
		return poster.RunReport{}, fmt.Errorf("load catalog: %w", err)
	}

	led, err := ledger.Open(ledger.Config{
		Driver:      a.cfg.Ledger.Driver,
		Path:        a.cfg.Ledger.Path,
		BusyTimeout: busyTimeout(a.cfg.Ledger.BusyTimeout),
	}, a.log)
	if err != nil {
		return poster.RunReport{}, fmt.Errorf("open ledger: %w", err)
	}
	defer led.Close()

	drv := &poster.Driver{Transport: a.pub, Notifier: a.notifier, Log: a.log}
	report, err := drv.Run(ctx, time.Now(), items, led, a.pol)
	if err != nil {
		return report, err
	}

	a.log.Info("run finished",
		logx.Int("due", report.DueCount),
		logx.Int("published", report.PublishedCount),
		logx.Int("failed", report.FailedCount),
		logx.String("skipped", string(report.SkippedReason)))
	return report, nil
}

// RunCron stays resident and triggers runs on the given cron spec, for hosts
// without an external scheduler. Overlap cannot happen on this path: a
// trigger firing while the previous run is still going is dropped.
func (a *App) RunCron(ctx context.Context, spec string) error {
	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	_, err := c.AddFunc(spec, func() {
		if _, err := a.RunOnce(ctx); err != nil {
			a.log.Error("scheduled run failed", logx.Err(err))
		}
	})
	if err != nil {
		return fmt.Errorf("cron spec %q: %w", spec, err)
	}

	a.log.Info("daemon mode", logx.String("cron", spec))
	c.Start()
	<-ctx.Done()

	stopped := c.Stop()
	<-stopped.Done()
	return nil
}

func busyTimeout(raw string) time.Duration {
	d, err := config.ParseDurationField("ledger.busy_timeout", raw)
	if err != nil {
		return 0
	}
	return d
}
