package ledger

import (
	"fmt"
	"strings"

	logx "avtopost/pkg/logx"
)

// Open initializes the configured ledger.
//
// The file driver fails open: an unreadable or corrupt file yields an empty,
// degraded ledger rather than an error, so a damaged history file can never
// block publication. A sqlite open failure is returned to the caller.
func Open(cfg Config, log logx.Logger) (Ledger, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	switch driver := strings.ToLower(strings.TrimSpace(cfg.Driver)); driver {
	case "", "file":
		return openFile(cfg, log)
	case "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownDriver, driver)
	}
}
