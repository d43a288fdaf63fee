package lock

import (
	"context"
	"fmt"
	"sync"
	"time"

	"satsync/internal/constants"
	"satsync/internal/models"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// releaseScript deletes the key only while it still holds our token, so a
// lock that expired and was taken over is never released by the old holder.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// extendScript pushes the expiry forward while the key still holds our token
var extendScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`)

// RedisLocker shares locks between satsync instances through Redis
type RedisLocker struct {
	client redis.UniversalClient
	ttl    time.Duration
	logger *logrus.Logger
}

// NewRedisLocker connects to the configured Redis server
func NewRedisLocker(cfg models.LockConfig, logger *logrus.Logger) *RedisLocker {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	ttl := time.Duration(cfg.TTLSec) * time.Second
	if ttl <= 0 {
		ttl = constants.DefaultLockTTLSec * time.Second
	}
	if logger == nil {
		logger = logrus.New()
	}
	return &RedisLocker{client: client, ttl: ttl, logger: logger}
}

// Ping checks the connection
func (l *RedisLocker) Ping(ctx context.Context) error {
	return l.client.Ping(ctx).Err()
}

func (l *RedisLocker) Close() error {
	return l.client.Close()
}

// TryLock sets key with NX and a TTL. The TTL is renewed every third of
// its length until release, so a long poll keeps the pair while a crashed
// holder blocks it for at most one TTL.
func (l *RedisLocker) TryLock(ctx context.Context, key string) (func(), bool, error) {
	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
	if err != nil {
		return nil, false, fmt.Errorf("failed to acquire lock %s: %w", key, err)
	}
	if !ok {
		return nil, false, nil
	}

	entry := l.logger.WithField("lock", key)
	stop := keepAlive(l.ttl/3, func(ctx context.Context) (bool, error) {
		n, err := extendScript.Run(ctx, l.client, []string{key}, token, l.ttl.Milliseconds()).Int64()
		return n == 1, err
	}, entry)

	var once sync.Once
	return func() {
		once.Do(func() {
			stop()
			// release must work even when the cycle context is done
			releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := releaseScript.Run(releaseCtx, l.client, []string{key}, token).Err(); err != nil {
				entry.WithError(err).Warn("Failed to release lock")
			}
		})
	}, true, nil
}

// keepAlive calls extend every interval until the returned stop func is
// called or extend reports the lock lost. stop waits for the loop to exit.
func keepAlive(interval time.Duration, extend func(ctx context.Context) (bool, error), entry *logrus.Entry) func() {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	go func() {
		defer close(done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				extendCtx, extendCancel := context.WithTimeout(ctx, interval)
				held, err := extend(extendCtx)
				extendCancel()
				switch {
				case err != nil:
					if ctx.Err() != nil {
						return
					}
					entry.WithError(err).Warn("Failed to extend lock")
				case !held:
					entry.Warn("Lock expired before it could be extended")
					return
				}
			}
		}
	}()

	return func() {
		cancel()
		<-done
	}
}
