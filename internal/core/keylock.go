package core

import (
	"strconv"

	"github.com/moby/locker"
)

// keyedMutex serializes work per user id while letting different users proceed in parallel.
type keyedMutex struct {
	locks *locker.Locker
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: locker.New()}
}

// Lock acquires the lock for key and returns its release function.
func (k *keyedMutex) Lock(key int64) func() {
	name := strconv.FormatInt(key, 10)
	k.locks.Lock(name)
	return func() {
		// Unlock only fails for a name that is not held, which the closure rules out.
		_ = k.locks.Unlock(name)
	}
}
