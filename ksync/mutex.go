package ksync

import "runtime"

import "github.com/NomadArchitect/microkernel/defs"
import "github.com/NomadArchitect/microkernel/limits"

type Mutexmode_t int

const (
	MUTEX_SPIN  Mutexmode_t = 0
	MUTEX_SLEEP Mutexmode_t = 1
)

// Sleeper_i wakes a suspended unit by id. it fails with -EAGAIN when the
// unit exists but is not suspended yet.
type Sleeper_i interface {
	Wakeup(defs.Tid_t) defs.Err_t
	// whether Wakeup can reach the unit
	Owns(defs.Tid_t) bool
}

// maximum waiters of one sleeping mutex
const MAXWAITERS = 64

type Mutex_t struct {
	locked bool
	owner  defs.Tid_t
	mode   Mutexmode_t
	sl     Sleeper_i
	lock   Spinlock_t
	tids   []defs.Tid_t
	// waiter woken by the last unlock that has not run yet
	woken defs.Tid_t
	// lock-order class; empty opts out
	Class string
}

// Init sets the mode. a sleeping mutex only admits units that sl owns and
// panics on any other that would have to wait.
func (m *Mutex_t) Init(mode Mutexmode_t, sl Sleeper_i) {
	if mode == MUTEX_SLEEP && sl == nil {
		panic("sleeping mutex needs a sleeper")
	}
	m.locked = false
	m.owner = defs.TID_NONE
	m.woken = defs.TID_NONE
	m.mode = mode
	m.sl = sl
	m.tids = make([]defs.Tid_t, 0, MAXWAITERS)
}

func (m *Mutex_t) _dequeue(tid defs.Tid_t) {
	if m.woken == tid {
		m.woken = defs.TID_NONE
	}
	for i, t := range m.tids {
		if t == tid {
			m.tids = append(m.tids[:i], m.tids[i+1:]...)
			return
		}
	}
}

func (m *Mutex_t) Lock(u Unit_i) {
	if u == nil {
		panic("nil unit")
	}
	tid := u.Tid()
	for {
		m.lock.Lock()
		if m.locked && m.owner == tid && m.mode == MUTEX_SLEEP {
			panic("mutex relock")
		}
		if m.mode == MUTEX_SLEEP {
			m._dequeue(tid)
		}
		if !m.locked {
			m.locked = true
			m.owner = tid
			m.lock.Unlock()
			u.Held().Acquire(m.Class)
			return
		}
		if m.mode == MUTEX_SPIN {
			m.lock.Unlock()
			runtime.Gosched()
			continue
		}
		if len(m.tids) == cap(m.tids) {
			panic("too many mutex waiters")
		}
		if !m.sl.Owns(tid) {
			m.lock.Unlock()
			panic("unit unknown to sleeper")
		}
		m.tids = append(m.tids, tid)
		u.Prepare()
		m.lock.Unlock()
		u.Park()
	}
}

// Unlock releases the mutex, handing the wakeup to the first waiter. the
// woken waiter competes for the mutex like any other locker.
func (m *Mutex_t) Unlock(u Unit_i) {
	if u != nil {
		u.Held().Release(m.Class)
	}
	for try := 0; ; try++ {
		if try > limits.Syslimit.Wakeretries {
			panic("mutex waiter never suspended")
		}
		m.lock.Lock()
		if m.mode == MUTEX_SLEEP && len(m.tids) > 0 && m.tids[0] != m.woken {
			err := m.sl.Wakeup(m.tids[0])
			if err == 0 {
				m.woken = m.tids[0]
			} else {
				if err == -defs.EINVAL {
					panic("mutex waiter vanished")
				}
				m.lock.Unlock()
				runtime.Gosched()
				continue
			}
		}
		m.locked = false
		m.owner = defs.TID_NONE
		m.lock.Unlock()
		return
	}
}

func (m *Mutex_t) Waiters() int {
	m.lock.Lock()
	ret := len(m.tids)
	m.lock.Unlock()
	return ret
}
