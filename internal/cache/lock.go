package cache

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

const (
	sweepLockKey = keyPrefix + "sweep:lock"

	// SweepLockTTLFactor sizes the lease relative to the sweep interval so a
	// slow tick keeps it between refreshes.
	SweepLockTTLFactor = 3
)

var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

var refreshScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`)

// SweepLockTTL returns the lease TTL used for a sweep running every interval.
func SweepLockTTL(interval time.Duration) time.Duration {
	return interval * SweepLockTTLFactor
}

// SweepLock is a lease shared by every process using the same Redis, so only
// one of them runs a sweep tick at a time.
type SweepLock struct {
	client *redis.Client
	key    string
	ttl    time.Duration
}

// NewSweepLock returns a lock whose lease expires after ttl even if the
// holder never releases it. While held, the lease is renewed every third of
// ttl, so it only lapses when the holder dies or loses Redis.
func NewSweepLock(client *redis.Client, ttl time.Duration) *SweepLock {
	return &SweepLock{client: client, key: sweepLockKey, ttl: ttl}
}

// TryLock acquires the lease without waiting. When ok is false another
// holder has it and release is nil.
func (l *SweepLock) TryLock(ctx context.Context) (release func(context.Context) error, ok bool, err error) {
	token := uuid.NewString()

	ok, err = l.client.SetNX(ctx, l.key, token, l.ttl).Result()
	if err != nil {
		return nil, false, errors.Wrap(err, "failed to acquire sweep lock")
	}
	if !ok {
		return nil, false, nil
	}

	stop := make(chan struct{})
	done := make(chan struct{})
	go l.keepAlive(token, stop, done)

	var once sync.Once
	release = func(ctx context.Context) error {
		once.Do(func() {
			close(stop)
			<-done
		})
		err := releaseScript.Run(ctx, l.client, []string{l.key}, token).Err()
		return errors.Wrap(err, "failed to release sweep lock")
	}
	return release, true, nil
}

// keepAlive extends the lease until stop is closed or the lease is no longer
// ours.
func (l *SweepLock) keepAlive(token string, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	every := l.ttl / 3
	if every <= 0 {
		return
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), every)
			renewed, err := refreshScript.Run(ctx, l.client, []string{l.key}, token, l.ttl.Milliseconds()).Int()
			cancel()
			if err == nil && renewed == 0 {
				return
			}
		}
	}
}
