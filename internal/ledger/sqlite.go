package ledger

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	logx "avtopost/pkg/logx"
)

//go:embed migrations.sql
var migrationsFS embed.FS

const (
	metaLastPublicationAt = "last_publication_at"
	metaLastSummaryDate   = "last_summary_date"
)

// sqliteLedger loads the whole history into memory at open time (catalogs
// are small) and flushes new records in one transaction on Persist.
type sqliteLedger struct {
	db  *sql.DB
	log logx.Logger

	st      *state
	pending []string // fingerprints recorded since the last flush
	dirty   bool
}

func openSQLite(cfg Config, log logx.Logger) (Ledger, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("ledger.path is required for sqlite driver")
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if cfg.BusyTimeout > 0 {
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", cfg.BusyTimeout.Milliseconds()))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	l := &sqliteLedger{db: db, log: log, st: newState()}
	if err := l.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := l.loadAll(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return l, nil
}

func (l *sqliteLedger) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = l.db.ExecContext(ctx, string(b))
	return err
}

func (l *sqliteLedger) loadAll(ctx context.Context) error {
	rows, err := l.db.QueryContext(ctx, `SELECT fingerprint, published_at FROM published`)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var fp, raw string
		if err := rows.Scan(&fp, &raw); err != nil {
			return err
		}
		at, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			return err
		}
		l.st.entries[fp] = at
	}
	if err := rows.Err(); err != nil {
		return err
	}

	if raw, ok, err := l.meta(ctx, metaLastPublicationAt); err != nil {
		return err
	} else if ok {
		at, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			return err
		}
		l.st.lastPub = at
	}
	if raw, ok, err := l.meta(ctx, metaLastSummaryDate); err != nil {
		return err
	} else if ok {
		l.st.lastSummary = raw
	}
	return nil
}

func (l *sqliteLedger) meta(ctx context.Context, key string) (string, bool, error) {
	var v string
	err := l.db.QueryRowContext(ctx, `SELECT value FROM meta WHERE key = ?`, key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return v, true, nil
}

func (l *sqliteLedger) Lookup(fp string) (Entry, bool) { return l.st.lookup(fp) }

func (l *sqliteLedger) Record(fp string, at time.Time) {
	if l.st.record(fp, at) {
		l.pending = append(l.pending, fp)
		l.dirty = true
	}
}

func (l *sqliteLedger) LastPublicationAt() (time.Time, bool) {
	return l.st.lastPub, !l.st.lastPub.IsZero()
}

func (l *sqliteLedger) SetLastPublicationAt(t time.Time) {
	l.st.lastPub = t
	l.dirty = true
}

func (l *sqliteLedger) LastSummaryDate() (string, bool) {
	return l.st.lastSummary, l.st.lastSummary != ""
}

func (l *sqliteLedger) SetLastSummaryDate(date string) {
	l.st.lastSummary = date
	l.dirty = true
}

func (l *sqliteLedger) Degraded() bool { return false }

func (l *sqliteLedger) Persist() error {
	if !l.dirty {
		return nil
	}
	ctx := context.Background()
	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	for _, fp := range l.pending {
		at, ok := l.st.entries[fp]
		if !ok {
			continue
		}
		// First write wins; a replayed fingerprint keeps its original time.
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO published(fingerprint, published_at) VALUES(?,?)
			 ON CONFLICT(fingerprint) DO NOTHING`,
			fp, at.Format(time.RFC3339Nano),
		); err != nil {
			return err
		}
	}

	if !l.st.lastPub.IsZero() {
		if err := l.setMeta(ctx, tx, metaLastPublicationAt, l.st.lastPub.Format(time.RFC3339Nano)); err != nil {
			return err
		}
	}
	if l.st.lastSummary != "" {
		if err := l.setMeta(ctx, tx, metaLastSummaryDate, l.st.lastSummary); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return err
	}
	l.pending = nil
	l.dirty = false
	return nil
}

func (l *sqliteLedger) setMeta(ctx context.Context, tx *sql.Tx, key, value string) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO meta(key, value) VALUES(?,?)
		 ON CONFLICT(key) DO UPDATE SET value=excluded.value`,
		key, value,
	)
	return err
}

func (l *sqliteLedger) Close() error {
	if l == nil || l.db == nil {
		return nil
	}
	err := l.Persist()
	if cerr := l.db.Close(); err == nil {
		err = cerr
	}
	return err
}
