package lock

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/simonkvalheim/fjord-ledger/internal/model"
)

// unlockScript deletes the key only if it still holds our token
const unlockScript = "if redis.call('get', KEYS[1]) == ARGV[1] then return redis.call('del', KEYS[1]) else return 0 end"

var errHeld = errors.New("lock is held by another owner")

// Redis takes boundaries shared by every process connected to the same Redis.
// Each key is SET NX with a TTL so a crashed holder cannot block a resource forever;
// the TTL must therefore exceed the longest unit of work.
type Redis struct {
	client redis.UniversalClient
	ttl    time.Duration
	wait   time.Duration
	log    logrus.FieldLogger

	// newToken issues the owner value written into each key
	newToken func() string
}

// NewRedis creates a Redis locker
func NewRedis(client redis.UniversalClient, ttl, wait time.Duration, log logrus.FieldLogger) *Redis {
	return &Redis{
		client:   client,
		ttl:      ttl,
		wait:     wait,
		log:      log,
		newToken: uuid.NewString,
	}
}

func (r *Redis) Acquire(ctx context.Context, keys ...Key) (Release, error) {
	token := r.newToken()
	deadline := time.Now().Add(r.wait)

	held := make([]string, 0, len(keys))
	release := func() {
		// released with a fresh context so a cancelled request still frees its keys
		for i := len(held) - 1; i >= 0; i-- {
			if err := r.unlock(context.Background(), held[i], token); err != nil {
				r.log.WithField("key", held[i]).WithError(err).Warn("failed to release lock")
			}
		}
		held = held[:0]
	}

	for _, key := range Order(keys) {
		name := key.String()
		if err := r.waitLock(ctx, name, token, time.Until(deadline)); err != nil {
			release()
			if errors.Is(err, errHeld) {
				return nil, fmt.Errorf("%w: %s", model.ErrBusy, name)
			}
			return nil, fmt.Errorf("failed to acquire %s: %w", name, err)
		}
		held = append(held, name)
	}

	var once sync.Once
	return func() { once.Do(release) }, nil
}

// waitLock retries SET NX with jittered exponential backoff until wait has elapsed
func (r *Redis) waitLock(ctx context.Context, key, token string, wait time.Duration) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 5 * time.Millisecond
	b.MaxInterval = 100 * time.Millisecond
	b.MaxElapsedTime = max(wait, time.Millisecond)
	b.Reset()

	op := func() error {
		ok, err := r.client.SetNX(ctx, key, token, r.ttl).Result()
		if err != nil {
			return backoff.Permanent(err)
		}
		if !ok {
			return errHeld
		}
		return nil
	}

	return backoff.Retry(op, backoff.WithContext(b, ctx))
}

func (r *Redis) unlock(ctx context.Context, key, token string) error {
	result, err := r.client.Eval(ctx, unlockScript, []string{key}, token).Result()
	if err != nil {
		return err
	}
	if result == int64(0) {
		return fmt.Errorf("lock %s expired or was taken over before release", key)
	}
	return nil
}
