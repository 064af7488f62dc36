// Package filelock implements an advisory cross-process lock keyed on the
// target file. The locking primitive is exclusive creation of a sibling
// lock file; acquisition retries with exponential backoff up to a timeout.
package filelock

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/starford/dagaz/internal/apperr"
)

// Suffix is appended to the target path to form the lock file path.
const Suffix = ".lock"

const (
	initialBackoff = 50 * time.Millisecond
	maxBackoff     = 800 * time.Millisecond
)

// StaleAge is the recorded lock age beyond which a holder is presumed to
// have crashed without releasing. Locks whose recorded PID is no longer
// running are reclaimed immediately regardless of age.
var StaleAge = 10 * time.Minute

// Lock is a held advisory lock. Release it exactly once.
type Lock struct {
	path     string // lock file path
	released bool
}

// Acquire takes the lock for target, retrying until ctx is cancelled or
// timeout elapses. On timeout it returns apperr.ErrLockTimeout.
func Acquire(ctx context.Context, target string, timeout time.Duration) (*Lock, error) {
	lockPath := target + Suffix
	deadline := time.Now().Add(timeout)
	backoff := initialBackoff

	for {
		f, err := os.OpenFile(lockPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
		if err == nil {
			// Record owner PID and acquisition time for stale-lock diagnosis.
			fmt.Fprintf(f, "%d\n%s\n", os.Getpid(), time.Now().UTC().Format(time.RFC3339))
			if cerr := f.Close(); cerr != nil {
				_ = os.Remove(lockPath)
				return nil, fmt.Errorf("filelock: write lock file: %w", cerr)
			}
			return &Lock{path: lockPath}, nil
		}
		if !os.IsExist(err) {
			return nil, fmt.Errorf("filelock: create %s: %w", lockPath, err)
		}
		if reclaimStale(lockPath) {
			continue
		}

		if time.Now().After(deadline) {
			holder := holderInfo(lockPath)
			return nil, fmt.Errorf("%w: %s held by %s", apperr.ErrLockTimeout, lockPath, holder)
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %v", apperr.ErrLockTimeout, ctx.Err())
		case <-time.After(backoff):
		}
		if backoff *= 2; backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
}

// Release removes the lock file. Safe to call more than once; only the
// first call does anything.
func (l *Lock) Release() error {
	if l == nil || l.released {
		return nil
	}
	l.released = true
	if err := os.Remove(l.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("filelock: release %s: %w", l.path, err)
	}
	return nil
}

// Path returns the lock file path.
func (l *Lock) Path() string { return l.path }

// reclaimStale removes the lock file when its recorded holder is provably
// gone: the PID is no longer running, or the acquisition timestamp is
// older than StaleAge. Unreadable or malformed lock files are left alone;
// they may be mid-write by a live contender.
func reclaimStale(lockPath string) bool {
	data, err := os.ReadFile(lockPath)
	if err != nil {
		return false
	}
	lines := strings.SplitN(string(data), "\n", 3)
	if len(lines) < 2 {
		return false
	}
	pid, err := strconv.Atoi(strings.TrimSpace(lines[0]))
	if err != nil || pid <= 0 {
		return false
	}
	stale := !pidAlive(pid)
	if !stale {
		at, terr := time.Parse(time.RFC3339, strings.TrimSpace(lines[1]))
		stale = terr == nil && time.Since(at) > StaleAge
	}
	if !stale {
		return false
	}
	return os.Remove(lockPath) == nil
}

// pidAlive reports whether a process with the given PID exists. Signal 0
// probes without delivering; EPERM means the process exists but belongs
// to another user.
func pidAlive(pid int) bool {
	p, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	err = p.Signal(syscall.Signal(0))
	if err == nil {
		return true
	}
	return errors.Is(err, syscall.EPERM)
}

// holderInfo reads the PID line from an existing lock file for the
// timeout error message. Best effort.
func holderInfo(lockPath string) string {
	data, err := os.ReadFile(lockPath)
	if err != nil || len(data) == 0 {
		return "unknown holder"
	}
	line := string(data)
	for i, c := range line {
		if c == '\n' {
			line = line[:i]
			break
		}
	}
	if _, err := strconv.Atoi(line); err != nil {
		return "unknown holder"
	}
	return "pid " + line
}
