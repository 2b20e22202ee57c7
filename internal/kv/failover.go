package kv

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// Failover routes operations to a shared primary store and switches to a
// process-local fallback as soon as the primary errors or times out.
//
// Writes and deletes made while the primary is down are kept in the fallback
// and replayed onto the primary by Probe before it switches back, so the
// primary never serves a value older than one written during the outage.
type Failover struct {
	primary  Store
	fallback *Memory
	timeout  time.Duration
	up       atomic.Bool

	// mu serialises fallback writes against replay.
	mu      sync.Mutex
	deleted map[string]struct{}
}

func NewFailover(primary Store, fallback *Memory, timeout time.Duration) *Failover {
	if fallback == nil {
		fallback = NewMemory()
	}
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	f := &Failover{
		primary:  primary,
		fallback: fallback,
		timeout:  timeout,
		deleted:  make(map[string]struct{}),
	}
	f.up.Store(true)
	return f
}

// Available reports whether the primary is currently in use.
func (f *Failover) Available() bool {
	return f.up.Load()
}

func (f *Failover) markDown(op string, err error) {
	if f.up.CompareAndSwap(true, false) {
		zap.L().Warn("kv primary unavailable, using in-process fallback",
			zap.String("op", op), zap.Error(err))
	}
}

func (f *Failover) Get(ctx context.Context, key string) ([]byte, error) {
	if f.up.Load() {
		pctx, cancel := context.WithTimeout(ctx, f.timeout)
		v, err := f.primary.Get(pctx, key)
		cancel()
		switch {
		case err == nil:
			return v, nil
		case !errors.Is(err, ErrNotFound):
			f.markDown("get", err)
		}
	}
	return f.fallback.Get(ctx, key)
}

func (f *Failover) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	var err error
	if f.up.Load() {
		pctx, cancel := context.WithTimeout(ctx, f.timeout)
		err = f.primary.Set(pctx, key, value, ttl)
		cancel()
		if err == nil {
			return f.fallback.Delete(ctx, key)
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	// Anything written to the fallback keeps the primary down until replayed.
	f.markDown("set", err)
	delete(f.deleted, key)
	return f.fallback.Set(ctx, key, value, ttl)
}

func (f *Failover) Delete(ctx context.Context, key string) error {
	var err error
	if f.up.Load() {
		pctx, cancel := context.WithTimeout(ctx, f.timeout)
		err = f.primary.Delete(pctx, key)
		cancel()
		if err == nil {
			return f.fallback.Delete(ctx, key)
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.markDown("delete", err)
	f.deleted[key] = struct{}{}
	return f.fallback.Delete(ctx, key)
}

// Scan merges primary and fallback entries; the primary wins on key collisions.
func (f *Failover) Scan(ctx context.Context, prefix string) ([]Entry, error) {
	local, _ := f.fallback.Scan(ctx, prefix)
	if !f.up.Load() {
		return local, nil
	}

	pctx, cancel := context.WithTimeout(ctx, f.timeout)
	remote, err := f.primary.Scan(pctx, prefix)
	cancel()
	if err != nil {
		f.markDown("scan", err)
		return local, nil
	}

	seen := make(map[string]struct{}, len(remote))
	for _, e := range remote {
		seen[e.Key] = struct{}{}
	}
	for _, e := range local {
		if _, ok := seen[e.Key]; !ok {
			remote = append(remote, e)
		}
	}
	return remote, nil
}

func (f *Failover) Ping(ctx context.Context) error {
	return f.Probe(ctx)
}

// Probe pings the primary and updates the availability flag. On recovery the
// outage writes are replayed first; the primary stays out of use until the
// replay completes.
func (f *Failover) Probe(ctx context.Context) error {
	pctx, cancel := context.WithTimeout(ctx, f.timeout)
	err := f.primary.Ping(pctx)
	cancel()
	if err != nil {
		f.markDown("ping", err)
		return err
	}
	if f.up.Load() {
		return nil
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.up.Load() {
		return nil
	}
	n, err := f.replay(ctx)
	if err != nil {
		zap.L().Warn("kv replay to primary failed, staying on fallback", zap.Error(err))
		return err
	}
	f.up.Store(true)
	zap.L().Info("kv primary recovered", zap.Int("replayed", n))
	return nil
}

// replay copies live fallback entries and pending deletes onto the primary.
// Must hold f.mu.
func (f *Failover) replay(ctx context.Context) (int, error) {
	n := 0
	for _, e := range f.fallback.live() {
		pctx, cancel := context.WithTimeout(ctx, f.timeout)
		err := f.primary.Set(pctx, e.Key, e.Value, e.ttl)
		cancel()
		if err != nil {
			return n, fmt.Errorf("kv: replay set %s: %w", e.Key, err)
		}
		_ = f.fallback.Delete(ctx, e.Key)
		n++
	}
	for key := range f.deleted {
		pctx, cancel := context.WithTimeout(ctx, f.timeout)
		err := f.primary.Delete(pctx, key)
		cancel()
		if err != nil {
			return n, fmt.Errorf("kv: replay delete %s: %w", key, err)
		}
		delete(f.deleted, key)
		n++
	}
	return n, nil
}

// Sweep purges expired fallback entries, and expired primary entries when the
// primary needs manual sweeping.
func (f *Failover) Sweep(ctx context.Context) (int, error) {
	removed, _ := f.fallback.Sweep(ctx)
	sw, ok := f.primary.(Sweeper)
	if !ok || !f.up.Load() {
		return removed, nil
	}
	n, err := sw.Sweep(ctx)
	if err != nil {
		return removed, err
	}
	return removed + n, nil
}
