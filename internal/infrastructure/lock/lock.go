// Package lock provides advisory locks keyed by string.
//
// Callers use them to serialise check-then-act sequences that storage
// constraints alone would only reject after the fact: one login per user,
// one role per name. LocalLocker serves a single process; RedisLocker
// extends the guarantee across replicas sharing a Redis instance.
package lock

import (
	"context"
	"sort"
)

// Unlock releases a held lock. It is safe to call once.
type Unlock func()

// Locker acquires exclusive advisory locks.
type Locker interface {
	// Lock blocks until key is held or ctx is done.
	Lock(ctx context.Context, key string) (Unlock, error)
}

// LockAll acquires every key in sorted order, so two callers locking
// overlapping sets cannot deadlock. Duplicate keys are locked once. On
// failure every lock already taken is released.
func LockAll(ctx context.Context, l Locker, keys ...string) (Unlock, error) {
	sorted := append([]string(nil), keys...)
	sort.Strings(sorted)

	held := make([]Unlock, 0, len(sorted))
	release := func() {
		for i := len(held) - 1; i >= 0; i-- {
			held[i]()
		}
	}

	for i, key := range sorted {
		if i > 0 && sorted[i-1] == key {
			continue
		}
		unlock, err := l.Lock(ctx, key)
		if err != nil {
			release()
			return nil, err
		}
		held = append(held, unlock)
	}
	return release, nil
}

// With runs fn while holding key.
func With(ctx context.Context, l Locker, key string, fn func() error) error {
	unlock, err := l.Lock(ctx, key)
	if err != nil {
		return err
	}
	defer unlock()
	return fn()
}
