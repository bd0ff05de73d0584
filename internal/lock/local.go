package lock

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/simonkvalheim/fjord-ledger/internal/model"
)

// Local serializes access inside one process. It is enough when a single API or worker
// process owns the store; use Redis when several processes share it.
type Local struct {
	wait time.Duration

	mu    sync.Mutex
	slots map[Key]*slot
}

// slot is a one-token semaphore; refs counts holders and waiters so idle slots can be dropped
type slot struct {
	ch   chan struct{}
	refs int
}

// NewLocal creates a Local locker that waits at most wait for all keys of one Acquire
func NewLocal(wait time.Duration) *Local {
	return &Local{wait: wait, slots: make(map[Key]*slot)}
}

func (l *Local) Acquire(ctx context.Context, keys ...Key) (Release, error) {
	waitCtx, cancel := context.WithTimeout(ctx, l.wait)
	defer cancel()

	held := make([]Key, 0, len(keys))
	release := func() {
		for i := len(held) - 1; i >= 0; i-- {
			l.unlock(held[i])
		}
		held = held[:0]
	}

	for _, key := range Order(keys) {
		if err := l.lock(waitCtx, key); err != nil {
			release()
			if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
				return nil, model.ErrBusy
			}
			return nil, err
		}
		held = append(held, key)
	}

	var once sync.Once
	return func() { once.Do(release) }, nil
}

func (l *Local) lock(ctx context.Context, key Key) error {
	l.mu.Lock()
	s, ok := l.slots[key]
	if !ok {
		s = &slot{ch: make(chan struct{}, 1)}
		l.slots[key] = s
	}
	s.refs++
	l.mu.Unlock()

	select {
	case s.ch <- struct{}{}:
		return nil
	case <-ctx.Done():
		l.unref(key, s)
		return ctx.Err()
	}
}

func (l *Local) unlock(key Key) {
	l.mu.Lock()
	s := l.slots[key]
	l.mu.Unlock()

	<-s.ch
	l.unref(key, s)
}

func (l *Local) unref(key Key, s *slot) {
	l.mu.Lock()
	defer l.mu.Unlock()
	s.refs--
	if s.refs == 0 {
		delete(l.slots, key)
	}
}
