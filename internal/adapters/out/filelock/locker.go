// Package filelock implements the sandbox name lock adapter.
//
// Reconciliations of the same sandbox are serialized twice: a keyed mutex
// covers goroutines of this process and an advisory flock on
// <dir>/<name>.lock covers other processes on the host.
package filelock

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sync"
	"time"

	"github.com/bnema/zerowrap"
	"github.com/cenkalti/backoff/v4"
	"golang.org/x/sys/unix"

	"github.com/bnema/sandboxer/internal/domain"
)

var unsafeChars = regexp.MustCompile(`[^A-Za-z0-9._-]`)

// Locker hands out name-scoped locks.
type Locker struct {
	dir string

	mu    sync.Mutex
	local map[string]chan struct{}
}

// NewLocker creates a locker keeping its lock files under dir.
func NewLocker(dir string) (*Locker, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create lock directory %s: %w", dir, err)
	}
	return &Locker{
		dir:   dir,
		local: make(map[string]chan struct{}),
	}, nil
}

// Lock blocks until name is held by the caller or ctx is done.
func (l *Locker) Lock(ctx context.Context, name string) (func() error, error) {
	ctx = zerowrap.CtxWithFields(ctx, map[string]any{
		zerowrap.FieldLayer:   "adapter",
		zerowrap.FieldAdapter: "filelock",
		zerowrap.FieldAction:  "Lock",
		"sandbox":             name,
	})
	log := zerowrap.FromCtx(ctx)
	start := time.Now()

	slot, err := l.acquireLocal(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrLockHeld, err)
	}

	file, err := l.acquireFile(ctx, name)
	if err != nil {
		l.releaseLocal(name, slot)
		return nil, err
	}

	log.Debug().Dur(zerowrap.FieldDuration, time.Since(start)).Str(zerowrap.FieldPath, file.Name()).Msg("lock acquired")

	var once sync.Once
	release := func() error {
		var releaseErr error
		once.Do(func() {
			releaseErr = errors.Join(
				unix.Flock(int(file.Fd()), unix.LOCK_UN),
				file.Close(),
			)
			l.releaseLocal(name, slot)
		})
		return releaseErr
	}
	return release, nil
}

// acquireLocal waits for the in-process slot of name.
func (l *Locker) acquireLocal(ctx context.Context, name string) (chan struct{}, error) {
	for {
		l.mu.Lock()
		held, busy := l.local[name]
		if !busy {
			slot := make(chan struct{})
			l.local[name] = slot
			l.mu.Unlock()
			return slot, nil
		}
		l.mu.Unlock()

		select {
		case <-held:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

func (l *Locker) releaseLocal(name string, slot chan struct{}) {
	l.mu.Lock()
	if l.local[name] == slot {
		delete(l.local, name)
	}
	l.mu.Unlock()
	close(slot)
}

// acquireFile polls a non-blocking flock until it succeeds or ctx is done.
func (l *Locker) acquireFile(ctx context.Context, name string) (*os.File, error) {
	path := l.Path(name)
	file, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		return nil, fmt.Errorf("open lock file %s: %w", path, err)
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 25 * time.Millisecond
	b.MaxInterval = 500 * time.Millisecond
	b.MaxElapsedTime = 0

	op := func() error {
		err := unix.Flock(int(file.Fd()), unix.LOCK_EX|unix.LOCK_NB)
		if errors.Is(err, unix.EWOULDBLOCK) {
			return domain.ErrLockHeld
		}
		if err != nil {
			return backoff.Permanent(fmt.Errorf("flock %s: %w", path, err))
		}
		return nil
	}

	if err := backoff.Retry(op, backoff.WithContext(b, ctx)); err != nil {
		_ = file.Close()
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("%w: %w", domain.ErrLockHeld, ctxErr)
		}
		return nil, err
	}
	return file, nil
}

// Path returns the lock file used for name.
func (l *Locker) Path(name string) string {
	return filepath.Join(l.dir, unsafeChars.ReplaceAllString(name, "_")+".lock")
}
