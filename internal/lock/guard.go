package lock

import (
	"context"
	"sync"
	"time"
)

// RenewFraction is the default interval, expressed as a divisor of ttl, at
// which a Guard renews its lease (config Lock.RenewFraction, §4.4: ttl/3).
const RenewFraction = 3

// Guard scopes a lock to a block of work. It spawns a background renewer and
// always releases on exit, whether the work finished, failed, or was
// cancelled. On renewal failure it cancels the context passed to the held
// work rather than blocking forever, mirroring the teacher's
// internal/monitor/registry.go heartbeatLoop (ticker + keep-alive channel +
// re-establish-on-loss), generalized from "re-establish" to "fail closed and
// let the caller abandon the phase".
type Guard struct {
	backend    Backend
	resource   string
	owner      string
	ttl        time.Duration
	cancel     context.CancelFunc
	done       chan struct{}
	mu         sync.Mutex
	lost       bool
	stopRenew  chan struct{}
	renewOnce  sync.Once
	doneOnce   sync.Once
}

// Acquire attempts to take the named resource. On contention it returns
// (nil, false, nil); on an unreachable backend it returns (nil, false, err)
// per §4.4's fail-closed acquire semantics. Either way the caller should
// re-queue the job.
func Acquire(ctx context.Context, backend Backend, resource, owner string, ttl time.Duration) (*Guard, bool, error) {
	ok, err := backend.Acquire(ctx, resource, owner, ttl)
	if err != nil {
		return nil, false, err
	}
	if !ok {
		return nil, false, nil
	}

	guardCtx, cancel := context.WithCancel(ctx)
	g := &Guard{
		backend:   backend,
		resource:  resource,
		owner:     owner,
		ttl:       ttl,
		cancel:    cancel,
		done:      make(chan struct{}),
		stopRenew: make(chan struct{}),
	}
	go g.renewLoop(guardCtx)
	return g, true, nil
}

// Context returns a context that is cancelled the moment the Guard loses the
// lock (renewal failure or explicit Release).
func (g *Guard) Context(parent context.Context) context.Context {
	ctx, cancel := context.WithCancel(parent)
	go func() {
		select {
		case <-g.done:
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx
}

// Lost reports whether the Guard has given up ownership due to a renewal
// failure (as opposed to a clean Release).
func (g *Guard) Lost() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.lost
}

func (g *Guard) renewLoop(ctx context.Context) {
	interval := g.ttl / RenewFraction
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-g.stopRenew:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			ok, err := g.backend.Renew(ctx, g.resource, g.owner, g.ttl)
			if err != nil || !ok {
				g.markLost()
				g.cancel()
				return
			}
		}
	}
}

func (g *Guard) markLost() {
	g.mu.Lock()
	g.lost = true
	g.mu.Unlock()
	g.doneOnce.Do(func() { close(g.done) })
}

// Release stops the background renewer and deletes the lock key, unless it
// has already been marked lost. Safe to call multiple times.
func (g *Guard) Release(ctx context.Context) error {
	g.renewOnce.Do(func() {
		close(g.stopRenew)
	})
	g.cancel()
	g.doneOnce.Do(func() { close(g.done) })

	if g.Lost() {
		return nil
	}
	_, err := g.backend.Release(ctx, g.resource, g.owner)
	return err
}
