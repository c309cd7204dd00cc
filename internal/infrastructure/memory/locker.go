package memory

import (
	"context"
	"sync"
	"time"

	"github.com/oksasatya/account-lifecycle/internal/application"
)

// Locker serialises sweeps of the same rule inside one process.
// Leases never expire; ttl is ignored.
type Locker struct {
	mu   sync.Mutex
	held map[string]struct{}
}

func NewLocker() *Locker {
	return &Locker{held: make(map[string]struct{})}
}

func (l *Locker) Acquire(_ context.Context, key string, _ time.Duration) (application.Lease, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.held[key]; ok {
		return nil, application.ErrLockHeld
	}
	l.held[key] = struct{}{}
	return &localLease{l: l, key: key}, nil
}

type localLease struct {
	l    *Locker
	key  string
	once sync.Once
}

func (lease *localLease) Extend(context.Context, time.Duration) error { return nil }

func (lease *localLease) Release(context.Context) error {
	lease.once.Do(func() {
		lease.l.mu.Lock()
		delete(lease.l.held, lease.key)
		lease.l.mu.Unlock()
	})
	return nil
}

var _ application.Locker = (*Locker)(nil)
