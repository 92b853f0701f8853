package lock

import (
	"context"
	"fmt"
	"time"

	clientv3 "go.etcd.io/etcd/client/v3"
)

// EtcdConfig configures the etcd connection backing an EtcdBackend.
type EtcdConfig struct {
	Endpoints   []string
	DialTimeout time.Duration
	Username    string
	Password    string
}

// EtcdBackend backs the distributed lock with etcd's compare-and-swap
// transactions and lease TTLs. Grounded on the teacher's
// internal/etcd/client.go, narrowed to the lease-grant/keepalive-by-renewal/
// revoke surface Acquire/Renew/Release actually exercise — the rest of that
// client (Watch, sessions, elections, generic Put/Get/GetWithPrefix) has no
// caller in this domain, so it isn't carried forward as a separate package.
//
// Acquire and Release use a single round-trip Txn keyed on the key's
// create-revision or stored value so both remain atomic without a session
// lock held across calls. Renew re-grants a fresh lease and swaps it in only
// if the caller still owns the key, so verification and TTL refresh happen in
// one transaction.
type EtcdBackend struct {
	cli *clientv3.Client
}

// NewEtcdBackend dials etcd and returns a backend ready for Acquire/Renew/Release.
func NewEtcdBackend(cfg EtcdConfig) (*EtcdBackend, error) {
	if len(cfg.Endpoints) == 0 {
		return nil, fmt.Errorf("etcd endpoints cannot be empty")
	}
	if cfg.DialTimeout == 0 {
		cfg.DialTimeout = 5 * time.Second
	}

	cli, err := clientv3.New(clientv3.Config{
		Endpoints:   cfg.Endpoints,
		DialTimeout: cfg.DialTimeout,
		Username:    cfg.Username,
		Password:    cfg.Password,
	})
	if err != nil {
		return nil, fmt.Errorf("creating etcd client: %w", err)
	}
	return &EtcdBackend{cli: cli}, nil
}

// Close releases the underlying etcd client connection.
func (e *EtcdBackend) Close() error {
	if e.cli == nil {
		return nil
	}
	return e.cli.Close()
}

func (e *EtcdBackend) Acquire(ctx context.Context, resource, owner string, ttl time.Duration) (bool, error) {
	lease, err := e.cli.Grant(ctx, int64(ttl.Seconds()))
	if err != nil {
		return false, ErrUnreachable
	}

	txn := e.cli.Txn(ctx).
		If(clientv3.Compare(clientv3.CreateRevision(resource), "=", 0)).
		Then(clientv3.OpPut(resource, owner, clientv3.WithLease(lease.ID))).
		Else(clientv3.OpGet(resource))

	resp, err := txn.Commit()
	if err != nil {
		return false, ErrUnreachable
	}
	if !resp.Succeeded {
		// lost the race; release the unused lease immediately.
		_, _ = e.cli.Revoke(ctx, lease.ID)
		return false, nil
	}
	return true, nil
}

func (e *EtcdBackend) Renew(ctx context.Context, resource, owner string, ttl time.Duration) (bool, error) {
	lease, err := e.cli.Grant(ctx, int64(ttl.Seconds()))
	if err != nil {
		return false, ErrUnreachable
	}

	txn := e.cli.Txn(ctx).
		If(clientv3.Compare(clientv3.Value(resource), "=", owner)).
		Then(clientv3.OpPut(resource, owner, clientv3.WithLease(lease.ID))).
		Else(clientv3.OpGet(resource))

	resp, err := txn.Commit()
	if err != nil {
		return false, ErrUnreachable
	}
	if !resp.Succeeded {
		_, _ = e.cli.Revoke(ctx, lease.ID)
		return false, nil
	}
	return true, nil
}

func (e *EtcdBackend) Release(ctx context.Context, resource, owner string) (bool, error) {
	txn := e.cli.Txn(ctx).
		If(clientv3.Compare(clientv3.Value(resource), "=", owner)).
		Then(clientv3.OpDelete(resource)).
		Else(clientv3.OpGet(resource))

	resp, err := txn.Commit()
	if err != nil {
		return false, ErrUnreachable
	}
	return resp.Succeeded, nil
}
