// Package lock serialises work on a single order across requests and
// webhook deliveries.
package lock

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

var ErrLockTimeout = errors.New("lock wait timed out")

type Locker interface {
	Lock(ctx context.Context, key string) (func(), error)
}

func OrderKey(orderID int64) string {
	return fmt.Sprintf("order:%d", orderID)
}

// unlockScript deletes the key only when it still holds our token, so a lock
// that expired and was taken by someone else is left alone.
var unlockScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`)

// refreshScript extends the key's expiry only while it still holds our token.
var refreshScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("pexpire", KEYS[1], ARGV[2])
end
return 0
`)

type RedisLocker struct {
	rdb       *redis.Client
	ttl       time.Duration
	retryWait time.Duration
	maxWait   time.Duration
}

// NewRedisLocker connects to Redis. A held lock is refreshed every third of
// ttl until it is released, so ttl only bounds how long a crashed holder
// blocks the order.
func NewRedisLocker(redisURL string, ttl time.Duration) (*RedisLocker, error) {
	if ttl <= 0 {
		return nil, errors.New("lock ttl must be positive")
	}

	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	rdb := redis.NewClient(opt)

	if err := rdb.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &RedisLocker{
		rdb:       rdb,
		ttl:       ttl,
		retryWait: 50 * time.Millisecond,
		maxWait:   10 * time.Second,
	}, nil
}

func (l *RedisLocker) Lock(ctx context.Context, key string) (func(), error) {
	token, err := newToken()
	if err != nil {
		return nil, err
	}

	key = "lock:" + key

	ctx, cancel := context.WithTimeout(ctx, l.maxWait)
	defer cancel()

	for {
		ok, err := l.rdb.SetNX(ctx, key, token, l.ttl).Result()
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) {
				return nil, ErrLockTimeout
			}

			return nil, fmt.Errorf("error acquire lock %s: %w", key, err)
		}

		if ok {
			break
		}

		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return nil, ErrLockTimeout
			}

			return nil, ctx.Err()
		case <-time.After(l.retryWait):
		}
	}

	refreshCtx, stopRefresh := context.WithCancel(context.Background())
	refreshed := make(chan struct{})

	go func() {
		defer close(refreshed)

		keepAlive(refreshCtx, l.ttl/3, func(ctx context.Context) (bool, error) {
			return refreshScript.Run(ctx, l.rdb, []string{key}, token, l.ttl.Milliseconds()).Bool()
		})
	}()

	var once sync.Once

	return func() {
		once.Do(func() {
			stopRefresh()
			<-refreshed

			if err := unlockScript.Run(context.Background(), l.rdb, []string{key}, token).Err(); err != nil {
				zap.L().Info("error release lock", zap.String("key", key), zap.Error(err))
			}
		})
	}, nil
}

// keepAlive calls refresh every interval until ctx is done or refresh reports
// that the lock is no longer ours.
func keepAlive(ctx context.Context, interval time.Duration, refresh func(context.Context) (bool, error)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			held, err := refresh(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return
				}

				zap.L().Info("error refresh lock", zap.Error(err))
				continue
			}

			if !held {
				zap.L().Warn("lock expired before it was released")
				return
			}
		}
	}
}

func (l *RedisLocker) Close() error {
	return l.rdb.Close()
}

func newToken() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}

	return hex.EncodeToString(buf), nil
}

// LocalLocker keeps per-key mutexes in process. Used when Redis is not
// configured and in tests.
type LocalLocker struct {
	mu    sync.Mutex
	locks map[string]*entry
}

type entry struct {
	ch   chan struct{}
	refs int
}

func NewLocalLocker() *LocalLocker {
	return &LocalLocker{locks: make(map[string]*entry)}
}

func (l *LocalLocker) Lock(ctx context.Context, key string) (func(), error) {
	l.mu.Lock()
	e, ok := l.locks[key]
	if !ok {
		e = &entry{ch: make(chan struct{}, 1)}
		l.locks[key] = e
	}
	e.refs++
	l.mu.Unlock()

	select {
	case e.ch <- struct{}{}:
	case <-ctx.Done():
		l.release(key, e, false)
		return nil, ctx.Err()
	}

	var once sync.Once

	return func() {
		once.Do(func() { l.release(key, e, true) })
	}, nil
}

func (l *LocalLocker) release(key string, e *entry, held bool) {
	if held {
		<-e.ch
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	e.refs--
	if e.refs == 0 {
		delete(l.locks, key)
	}
}
