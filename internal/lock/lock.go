// Package lock implements the per-instance distributed mutual exclusion of
// §4.4: atomic acquire/renew/release against a key-value store, plus a Guard
// that scopes a lock to a block of work with a background renewer at
// ttl/renew_fraction. Grounded on the teacher's internal/etcd/client.go
// (lease grant/keep-alive/revoke) and internal/monitor/registry.go's
// heartbeat loop (ticker + keep-alive channel + re-establish-on-loss).
package lock

import (
	"context"
	"errors"
	"time"
)

// Backend is the atomic primitive set §4.4 requires of the backing store.
type Backend interface {
	// Acquire is atomic; it returns true iff the key was created by this call.
	Acquire(ctx context.Context, resource, owner string, ttl time.Duration) (bool, error)
	// Renew verifies ownership by token match and refreshes TTL atomically. A
	// non-owner call returns false and must not alter state.
	Renew(ctx context.Context, resource, owner string, ttl time.Duration) (bool, error)
	// Release verifies-and-deletes atomically; non-owner calls are no-ops.
	Release(ctx context.Context, resource, owner string) (bool, error)
}

// ErrUnreachable classifies a backend connectivity failure so callers can
// apply §4.4's fail-closed policy: unreachable during Acquire re-queues with
// backoff; unreachable during Renew is treated as lock loss.
var ErrUnreachable = errors.New("lock: backend unreachable")

// ResourceKey formats the resource name for per-instance serialization (§3).
func ResourceKey(instanceID string) string {
	return "instance:" + instanceID
}
