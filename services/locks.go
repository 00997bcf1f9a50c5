package services

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"
)

// AddressLocker serializes work per wallet address within the process. Keys
// are dropped once no goroutine holds or waits on them.
type AddressLocker struct {
	mu    sync.Mutex
	slots map[string]*lockSlot
}

type lockSlot struct {
	sem  *semaphore.Weighted
	refs int
}

func NewAddressLocker() *AddressLocker {
	return &AddressLocker{slots: make(map[string]*lockSlot)}
}

// Lock waits at most timeout for the address. The returned unlock func is
// safe to call more than once.
func (l *AddressLocker) Lock(ctx context.Context, address string, timeout time.Duration) (func(), error) {
	l.mu.Lock()
	slot, ok := l.slots[address]
	if !ok {
		slot = &lockSlot{sem: semaphore.NewWeighted(1)}
		l.slots[address] = slot
	}
	slot.refs++
	l.mu.Unlock()

	waitCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	if err := slot.sem.Acquire(waitCtx, 1); err != nil {
		l.drop(address, slot)
		return nil, fmt.Errorf("%w: %s", ErrBusy, address)
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			slot.sem.Release(1)
			l.drop(address, slot)
		})
	}, nil
}

// LockAll acquires several addresses in a fixed order so two callers locking
// the same pair cannot deadlock.
func (l *AddressLocker) LockAll(ctx context.Context, addresses []string, timeout time.Duration) (func(), error) {
	keys := append([]string(nil), addresses...)
	sort.Strings(keys)
	var unlocks []func()
	release := func() {
		for i := len(unlocks) - 1; i >= 0; i-- {
			unlocks[i]()
		}
	}
	for i, key := range keys {
		if i > 0 && key == keys[i-1] {
			continue
		}
		unlock, err := l.Lock(ctx, key, timeout)
		if err != nil {
			release()
			return nil, err
		}
		unlocks = append(unlocks, unlock)
	}
	return release, nil
}

func (l *AddressLocker) drop(address string, slot *lockSlot) {
	l.mu.Lock()
	defer l.mu.Unlock()
	slot.refs--
	if slot.refs == 0 {
		delete(l.slots, address)
	}
}

func (l *AddressLocker) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.slots)
}
