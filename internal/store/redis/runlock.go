package redis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrLockHeld reports that another process already holds the sender's run
// lock.
var ErrLockHeld = errors.New("run lock already held")

// DefaultLockTTL bounds how long a crashed holder can block its sender.
const DefaultLockTTL = 30 * time.Minute

const keyPrefix = "inscriber:runlock:"

// releaseScript deletes the lock only while it still stores the lease's own
// token.
var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`)

// RunLock serializes inscription runs per sender address across processes.
// Two processes submitting from one key would interleave the nonce
// sequence; the second acquire fails fast instead.
type RunLock struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRunLock(url string, ttl time.Duration) (*RunLock, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	if ttl <= 0 {
		ttl = DefaultLockTTL
	}
	return &RunLock{client: client, ttl: ttl}, nil
}

func (l *RunLock) Close() error {
	return l.client.Close()
}

// Acquire takes the sender's lock or fails fast with ErrLockHeld. It never
// blocks waiting for a release.
func (l *RunLock) Acquire(ctx context.Context, sender string) (*Lease, error) {
	key := lockKey(sender)
	token := uuid.NewString()

	ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("acquire run lock: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrLockHeld, key)
	}
	return &Lease{client: l.client, key: key, token: token}, nil
}

// Lease is one held run lock.
type Lease struct {
	client *redis.Client
	key    string
	token  string
}

// Release drops the lock. A lease whose key already expired or was taken
// over releases as a no-op.
func (l *Lease) Release(ctx context.Context) error {
	if err := releaseScript.Run(ctx, l.client, []string{l.key}, l.token).Err(); err != nil {
		return fmt.Errorf("release run lock: %w", err)
	}
	return nil
}

func lockKey(sender string) string {
	return keyPrefix + strings.ToLower(strings.TrimSpace(sender))
}
