package application

import (
	"context"
	"time"

	"github.com/oksasatya/account-lifecycle/internal/domain/entity"
)

// DormancyNotice is the payload handed to a NotificationGateway.
type DormancyNotice struct {
	AccountID string
	Address   string
	Nickname  string
	DormantOn time.Time
}

// NotificationGateway delivers dormancy warnings. Delivery is best-effort;
// the engine never retries a failed send within a sweep.
type NotificationGateway interface {
	SendDormancyNotice(ctx context.Context, n DormancyNotice) error
}

// SearchIndex mirrors account identity fields into the user search index.
type SearchIndex interface {
	IndexAccount(ctx context.Context, a entity.Account) error
	RemoveAccount(ctx context.Context, id string) error
}

// AvatarStore removes profile images that are no longer referenced.
type AvatarStore interface {
	DeleteAvatar(ctx context.Context, url string) error
}

// Lease is a held lock. Extend and Release return ErrLeaseLost once the
// lock has expired or passed to another holder.
type Lease interface {
	Extend(ctx context.Context, ttl time.Duration) error
	Release(ctx context.Context) error
}

// Locker provides mutual exclusion per rule across scheduler instances.
// Acquire returns ErrLockHeld when another holder owns key.
type Locker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (Lease, error)
}
