package tinfo

import "sync/atomic"

import "github.com/NomadArchitect/microkernel/defs"
import "github.com/NomadArchitect/microkernel/lockorder"

// Tnote_t is the blocking half of a schedulable unit. a unit sleeps by first
// announcing it (Prepare), normally while still holding the lock that
// protects the condition, and then parking. a Wake that lands between the
// two leaves a permit that the following Park consumes, so no wakeup is lost.
type Tnote_t struct {
	tid defs.Tid_t
	// bit 0 is the blocked flag, the rest is the queue tag
	st      int32
	wake    chan struct{}
	preempt int32
	// set once the unit must give up and exit
	killed int32
	// locks this unit holds, for lock-order checking
	Locks lockorder.Held_t
	// called around the suspension; the scheduler hooks these to hand the
	// core to someone else.
	Onblock  func()
	Onresume func()
}

const blocked = 1

func mkst(b int32, q defs.Qtag_t) int32 {
	return b | int32(q)<<1
}

func (n *Tnote_t) Init(tid defs.Tid_t) {
	n.tid = tid
	n.wake = make(chan struct{}, 1)
	atomic.StoreInt32(&n.st, mkst(0, defs.Q_NONE))
	atomic.StoreInt32(&n.preempt, 0)
	atomic.StoreInt32(&n.killed, 0)
	n.Locks = lockorder.Held_t{}
	n.Onblock = nil
	n.Onresume = nil
}

// Mknote returns a note for a unit that is not in the thread table, such as
// a test goroutine or the boot context.
func Mknote(tid defs.Tid_t) *Tnote_t {
	n := &Tnote_t{}
	n.Init(tid)
	return n
}

func (n *Tnote_t) Tid() defs.Tid_t {
	return n.tid
}

func (n *Tnote_t) Prepare() {
	for {
		o := atomic.LoadInt32(&n.st)
		if atomic.CompareAndSwapInt32(&n.st, o, o|blocked) {
			return
		}
	}
}

// Park suspends the caller until a Wake that matches the last Prepare.
func (n *Tnote_t) Park() {
	if n.wake == nil {
		panic("park on uninitialized note")
	}
	if n.Onblock != nil {
		n.Onblock()
	}
	<-n.wake
	if n.Onresume != nil {
		n.Onresume()
	}
}

func (n *Tnote_t) _wake(from func(int32) bool) bool {
	for {
		o := atomic.LoadInt32(&n.st)
		if o&blocked == 0 || !from(o) {
			return false
		}
		if atomic.CompareAndSwapInt32(&n.st, o, o&^blocked) {
			break
		}
	}
	select {
	case n.wake <- struct{}{}:
	default:
		panic("double wake permit")
	}
	return true
}

// Wake returns false if the unit was not suspended or about to be.
func (n *Tnote_t) Wake() bool {
	return n._wake(func(int32) bool { return true })
}

// Wake_unqueued is Wake for units that sleep outside of any queue. a unit
// waiting on a condition is left alone.
func (n *Tnote_t) Wake_unqueued() bool {
	return n._wake(func(o int32) bool { return o>>1 == int32(defs.Q_NONE) })
}

// Interrupt wakes a killed unit out of a sleep or a condition wait. units
// waiting for a core or for a reply are left alone.
func (n *Tnote_t) Interrupt() bool {
	return n._wake(func(o int32) bool {
		q := defs.Qtag_t(o >> 1)
		return q == defs.Q_NONE || q == defs.Q_COND
	})
}

// Kill marks the unit killed. a unit that blocks after Prepare checks
// Killed before parking; the killer sets the flag before it calls
// Interrupt, so one of the two sees the other.
func (n *Tnote_t) Kill() {
	atomic.StoreInt32(&n.killed, 1)
}

func (n *Tnote_t) Killed() bool {
	return atomic.LoadInt32(&n.killed) != 0
}

func (n *Tnote_t) Blocked() bool {
	return atomic.LoadInt32(&n.st)&blocked != 0
}

// Setq moves the unit onto queue q, or off every queue with defs.Q_NONE.
func (n *Tnote_t) Setq(q defs.Qtag_t) {
	for {
		o := atomic.LoadInt32(&n.st)
		if q != defs.Q_NONE && o>>1 != int32(defs.Q_NONE) {
			panic("unit already queued")
		}
		if atomic.CompareAndSwapInt32(&n.st, o, mkst(o&blocked, q)) {
			return
		}
	}
}

func (n *Tnote_t) Queue() defs.Qtag_t {
	return defs.Qtag_t(atomic.LoadInt32(&n.st) >> 1)
}

func (n *Tnote_t) Held() *lockorder.Held_t {
	return &n.Locks
}

func (n *Tnote_t) Setpreempt() {
	atomic.StoreInt32(&n.preempt, 1)
}

// Takepreempt reports and clears a pending quantum expiry.
func (n *Tnote_t) Takepreempt() bool {
	return atomic.SwapInt32(&n.preempt, 0) != 0
}
