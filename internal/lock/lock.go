// Package lock guards against two sync runs mutating the master dataset at
// the same time.
//
// A run takes the lock before selecting deltas and releases it after the
// batch commits or rolls back. Contention is reported as ErrHeld; callers
// treat it as fatal and never wait.
package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrHeld means another run holds the lock.
var ErrHeld = errors.New("sync lock is held by another run")

// Lease is a held lock.
type Lease interface {
	Release(ctx context.Context) error
}

// Locker acquires the run lock without blocking.
type Locker interface {
	TryLock(ctx context.Context) (Lease, error)
}

// Noop is a Locker that always succeeds.
type Noop struct{}

// TryLock implements Locker.
func (Noop) TryLock(context.Context) (Lease, error) {
	return noopLease{}, nil
}

type noopLease struct{}

func (noopLease) Release(context.Context) error { return nil }

// FileLocker is an advisory flock(2) lock on a local file. It only guards
// runs on the same host.
type FileLocker struct {
	path string
}

// NewFileLocker creates a locker on path. The file is created if missing.
func NewFileLocker(path string) *FileLocker {
	return &FileLocker{path: path}
}

// TryLock implements Locker.
func (l *FileLocker) TryLock(context.Context) (Lease, error) {
	fl := flock.New(l.path)
	ok, err := fl.TryLock()
	if err != nil {
		return nil, fmt.Errorf("lock %s: %w", l.path, err)
	}
	if !ok {
		return nil, fmt.Errorf("%w (%s)", ErrHeld, l.path)
	}
	return fileLease{fl}, nil
}

type fileLease struct {
	fl *flock.Flock
}

func (f fileLease) Release(context.Context) error {
	return f.fl.Unlock()
}

// releaseScript deletes the key only if it still holds our token, so an
// expired lease never releases a lock taken over by another run.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisClient is the subset of go-redis used by RedisLocker.
type RedisClient interface {
	redis.Scripter
	SetNX(ctx context.Context, key string, value any, expiration time.Duration) *redis.BoolCmd
}

// RedisLocker is a SET NX PX lock shared by every host that can reach the
// Redis server.
type RedisLocker struct {
	client RedisClient
	key    string
	ttl    time.Duration
}

// DefaultTTL bounds how long a crashed run can hold the Redis lock.
const DefaultTTL = 15 * time.Minute

// NewRedisLocker creates a locker on key. If ttl is 0, DefaultTTL is used.
func NewRedisLocker(client RedisClient, key string, ttl time.Duration) *RedisLocker {
	if ttl == 0 {
		ttl = DefaultTTL
	}
	return &RedisLocker{client: client, key: key, ttl: ttl}
}

// TryLock implements Locker.
func (l *RedisLocker) TryLock(ctx context.Context) (Lease, error) {
	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, l.key, token, l.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("lock %s: %w", l.key, err)
	}
	if !ok {
		return nil, fmt.Errorf("%w (%s)", ErrHeld, l.key)
	}
	return redisLease{locker: l, token: token}, nil
}

type redisLease struct {
	locker *RedisLocker
	token  string
}

func (r redisLease) Release(ctx context.Context) error {
	if err := releaseScript.Run(ctx, r.locker.client, []string{r.locker.key}, r.token).Err(); err != nil {
		return fmt.Errorf("release %s: %w", r.locker.key, err)
	}
	return nil
}

// NewRedisClient parses a redis:// URL and verifies connectivity.
func NewRedisClient(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis URL: %w", err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return client, nil
}
