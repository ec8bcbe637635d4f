package ksync

import "runtime"
import "sync/atomic"

import "github.com/NomadArchitect/microkernel/defs"
import "github.com/NomadArchitect/microkernel/lockorder"

// Unit_i is a schedulable unit as seen by the blocking primitives.
type Unit_i interface {
	Tid() defs.Tid_t
	// announce an imminent Park; must happen before the unit becomes
	// visible to a waker
	Prepare()
	Park()
	// false if the unit was not prepared
	Wake() bool
	Setq(defs.Qtag_t)
	Held() *lockorder.Held_t
	// a killed unit does not stay in a condition wait
	Killed() bool
}

// Spinlock_t is a test-and-set lock. Class names the lock for the lock-order
// checker; leave it empty to opt out.
type Spinlock_t struct {
	v     uint32
	Class string
}

const spins = 64

func (l *Spinlock_t) Lock() {
	for n := 0; !atomic.CompareAndSwapUint32(&l.v, 0, 1); n++ {
		if n%spins == spins-1 {
			runtime.Gosched()
		}
	}
}

func (l *Spinlock_t) Trylock() bool {
	return atomic.CompareAndSwapUint32(&l.v, 0, 1)
}

func (l *Spinlock_t) Unlock() {
	if !atomic.CompareAndSwapUint32(&l.v, 1, 0) {
		panic("unlock of unlocked spinlock")
	}
}

func (l *Spinlock_t) Locked() bool {
	return atomic.LoadUint32(&l.v) != 0
}

// Lockas acquires l on behalf of u, recording the acquisition order.
func (l *Spinlock_t) Lockas(u Unit_i) {
	if u != nil {
		u.Held().Acquire(l.Class)
	}
	l.Lock()
}

func (l *Spinlock_t) Unlockas(u Unit_i) {
	l.Unlock()
	if u != nil {
		u.Held().Release(l.Class)
	}
}
