package ksync

import "github.com/NomadArchitect/microkernel/defs"

// Sem_t is a counting semaphore built on Cond_t.
type Sem_t struct {
	count int
	lock  Spinlock_t
	cond  Cond_t
}

func Mksem(n int) *Sem_t {
	if n < 0 {
		panic("negative semaphore")
	}
	return &Sem_t{count: n}
}

// Down fails with -EINTR, leaving the count alone, if u is killed while
// waiting.
func (s *Sem_t) Down(u Unit_i) defs.Err_t {
	s.lock.Lockas(u)
	for s.count == 0 {
		if u.Killed() {
			s.lock.Unlockas(u)
			return -defs.EINTR
		}
		s.cond.Wait(u, &s.lock)
	}
	s.count--
	s.lock.Unlockas(u)
	return 0
}

// Trydown is Down without waiting. it fails with -EAGAIN when the count is
// zero.
func (s *Sem_t) Trydown() defs.Err_t {
	s.lock.Lock()
	defer s.lock.Unlock()
	if s.count == 0 {
		return -defs.EAGAIN
	}
	s.count--
	return 0
}

func (s *Sem_t) Up() {
	s.lock.Lock()
	s.count++
	s.lock.Unlock()
	s.cond.Broadcast()
}

// Set overwrites the count and releases the waiters it satisfies.
func (s *Sem_t) Set(n int) defs.Err_t {
	if n < 0 {
		return -defs.EINVAL
	}
	s.lock.Lock()
	s.count = n
	s.lock.Unlock()
	if n > 0 {
		s.cond.Broadcast()
	}
	return 0
}

func (s *Sem_t) Count() int {
	s.lock.Lock()
	ret := s.count
	s.lock.Unlock()
	return ret
}

// Waiters returns the number of units blocked in Down.
func (s *Sem_t) Waiters() int {
	return s.cond.Len()
}
