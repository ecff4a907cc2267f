package app

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	logx "avtopost/pkg/logx"
)

// staleLockAge is how old a lock file may get before it is treated as a
// leftover from a killed run and broken. Runs normally finish in seconds.
const staleLockAge = 10 * time.Minute

// acquireRunLock takes an exclusive lock file so overlapping triggers cannot
// both enter the publish loop. The file holds the owner pid for diagnostics.
func acquireRunLock(path string, log logx.Logger) (func(), error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}

	for attempt := 0; attempt < 2; attempt++ {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
		if err == nil {
			_, _ = f.WriteString(strconv.Itoa(os.Getpid()) + "\n")
			_ = f.Close()
			return func() { _ = os.Remove(path) }, nil
		}
		if !errors.Is(err, os.ErrExist) {
			return nil, err
		}

		st, serr := os.Stat(path)
		if serr != nil {
			// Raced with the other run's release; retry.
			continue
		}
		if time.Since(st.ModTime()) < staleLockAge {
			return nil, fmt.Errorf("another run holds the lock %s", path)
		}
		log.Warn("breaking stale run lock", logx.String("path", path), logx.Time("mtime", st.ModTime()))
		_ = os.Remove(path)
	}
	return nil, fmt.Errorf("could not acquire run lock %s", path)
}
