package redislock

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/oksasatya/account-lifecycle/internal/application"
)

// release only deletes the key when it still carries our token, so an
// expired lease can never drop a lock another instance acquired since.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`)

var extendScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`)

var ErrLeaseLost = application.ErrLeaseLost

// Locker is a per-key mutual exclusion lock on Redis (SET NX PX).
type Locker struct {
	rdb    *redis.Client
	prefix string
}

func New(rdb *redis.Client, prefix string) *Locker {
	return &Locker{rdb: rdb, prefix: prefix}
}

func (l *Locker) Acquire(ctx context.Context, key string, ttl time.Duration) (application.Lease, error) {
	token := uuid.NewString()
	ok, err := l.rdb.SetNX(ctx, l.prefix+key, token, ttl).Result()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, application.ErrLockHeld
	}
	return &lease{rdb: l.rdb, key: l.prefix + key, token: token}, nil
}

type lease struct {
	rdb   *redis.Client
	key   string
	token string
}

func (le *lease) Release(ctx context.Context) error {
	n, err := releaseScript.Run(ctx, le.rdb, []string{le.key}, le.token).Int()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrLeaseLost
	}
	return nil
}

// Extend resets the lease TTL while the token still owns the key.
func (le *lease) Extend(ctx context.Context, ttl time.Duration) error {
	n, err := extendScript.Run(ctx, le.rdb, []string{le.key}, le.token, ttl.Milliseconds()).Int()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrLeaseLost
	}
	return nil
}

var _ application.Locker = (*Locker)(nil)
