package store

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/feedlotops/weighbot/internal/models"
)

// Pool hands out a lazily opened Store and recreates it after failures, so
// a database outage degrades individual operations instead of killing the
// process.
type Pool struct {
	mu    sync.Mutex
	open  func() (Store, error)
	store Store
}

// NewPool creates a pool around the given opener. The first Get opens the
// store.
func NewPool(open func() (Store, error)) *Pool {
	return &Pool{open: open}
}

// Get returns the current store handle, opening one when absent. Failures
// are reported as models.ErrStoreUnavailable.
func (p *Pool) Get() (Store, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.store != nil {
		return p.store, nil
	}
	s, err := p.open()
	if err != nil {
		slog.Error("Pool store open failed", "error", err)
		return nil, fmt.Errorf("%w: %v", models.ErrStoreUnavailable, err)
	}
	slog.Info("Pool store opened")
	p.store = s
	return s, nil
}

// Invalidate discards a failed handle so the next Get reopens. The caller
// passes the handle it was using; a stale invalidation of an already
// replaced handle is a no-op.
func (p *Pool) Invalidate(s Store) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.store != s || s == nil {
		return
	}
	slog.Info("Pool store invalidated, will reopen on next use")
	p.store.Close()
	p.store = nil
}

// Close closes the current handle, if any.
func (p *Pool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.store == nil {
		return nil
	}
	err := p.store.Close()
	p.store = nil
	return err
}
