package ledger

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"

	logx "avtopost/pkg/logx"
)

// fileLedger is a dependency-free backend: one JSON document holding the
// fingerprint map and the two housekeeping scalars, rewritten atomically
// (tmp + rename) on Persist.
type fileLedger struct {
	log  logx.Logger
	path string

	st       *state
	degraded bool
	dirty    bool
}

type fileDoc struct {
	Entries           map[string]fileEntry `json:"entries"`
	LastPublicationAt string               `json:"last_publication_at,omitempty"`
	LastSummaryDate   string               `json:"last_summary_date,omitempty"`
}

type fileEntry struct {
	PublishedAt string `json:"published_at"`
}

func openFile(cfg Config, log logx.Logger) (Ledger, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("ledger.path is required for file driver")
	}

	l := &fileLedger{log: log, path: path, st: newState()}

	b, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		// First run: no history yet.
	case err != nil:
		l.degraded = true
		log.Warn("ledger file unreadable, starting empty", logx.String("path", path), logx.Err(err))
	default:
		if err := l.load(b); err != nil {
			l.degraded = true
			l.st = newState()
			log.Warn("ledger file corrupt, starting empty", logx.String("path", path), logx.Err(err))
		}
	}
	return l, nil
}

func (l *fileLedger) load(b []byte) error {
	var doc fileDoc
	if err := json.Unmarshal(b, &doc); err != nil {
		return err
	}
	for fp, e := range doc.Entries {
		at, err := time.Parse(time.RFC3339Nano, e.PublishedAt)
		if err != nil {
			return err
		}
		l.st.entries[fp] = at
	}
	if doc.LastPublicationAt != "" {
		at, err := time.Parse(time.RFC3339Nano, doc.LastPublicationAt)
		if err != nil {
			return err
		}
		l.st.lastPub = at
	}
	l.st.lastSummary = doc.LastSummaryDate
	return nil
}

func (l *fileLedger) Lookup(fp string) (Entry, bool) { return l.st.lookup(fp) }

func (l *fileLedger) Record(fp string, at time.Time) {
	if l.st.record(fp, at) {
		l.dirty = true
	}
}

func (l *fileLedger) LastPublicationAt() (time.Time, bool) {
	return l.st.lastPub, !l.st.lastPub.IsZero()
}

func (l *fileLedger) SetLastPublicationAt(t time.Time) {
	l.st.lastPub = t
	l.dirty = true
}

func (l *fileLedger) LastSummaryDate() (string, bool) {
	return l.st.lastSummary, l.st.lastSummary != ""
}

func (l *fileLedger) SetLastSummaryDate(date string) {
	l.st.lastSummary = date
	l.dirty = true
}

func (l *fileLedger) Degraded() bool { return l.degraded }

func (l *fileLedger) Persist() error {
	if !l.dirty {
		return nil
	}
	doc := fileDoc{Entries: make(map[string]fileEntry, len(l.st.entries))}
	for fp, at := range l.st.entries {
		doc.Entries[fp] = fileEntry{PublishedAt: at.Format(time.RFC3339Nano)}
	}
	if !l.st.lastPub.IsZero() {
		doc.LastPublicationAt = l.st.lastPub.Format(time.RFC3339Nano)
	}
	doc.LastSummaryDate = l.st.lastSummary

	if dir := filepath.Dir(l.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}

	tmp := l.path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(doc); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmp, l.path); err != nil {
		return err
	}
	l.dirty = false
	return nil
}

func (l *fileLedger) Close() error { return l.Persist() }
