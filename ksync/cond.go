package ksync

import "github.com/NomadArchitect/microkernel/defs"

// Cond_t is a Mesa-style condition variable: a woken unit must re-check its
// predicate.
type Cond_t struct {
	lock  Spinlock_t
	queue []Unit_i
}

// Wait atomically releases lk and suspends u until a Broadcast. lk is held
// again when Wait returns. a killed unit returns at once; callers check
// Killed.
func (c *Cond_t) Wait(u Unit_i, lk *Spinlock_t) {
	if c == nil || lk == nil || u == nil {
		panic("nil cond wait")
	}
	c.lock.Lock()
	u.Setq(defs.Q_COND)
	u.Prepare()
	c.queue = append(c.queue, u)
	c.lock.Unlock()

	lk.Unlockas(u)
	if u.Killed() {
		u.Wake()
	}
	u.Park()

	// a unit woken by someone other than Broadcast is still queued
	c.lock.Lock()
	for i, w := range c.queue {
		if w == u {
			copy(c.queue[i:], c.queue[i+1:])
			c.queue[len(c.queue)-1] = nil
			c.queue = c.queue[:len(c.queue)-1]
			u.Setq(defs.Q_NONE)
			break
		}
	}
	c.lock.Unlock()
	lk.Lockas(u)
}

// Broadcast wakes every queued unit.
func (c *Cond_t) Broadcast() {
	if c == nil {
		panic("nil cond broadcast")
	}
	c.lock.Lock()
	q := c.queue
	c.queue = nil
	for _, u := range q {
		u.Setq(defs.Q_NONE)
		u.Wake()
	}
	c.lock.Unlock()
}

func (c *Cond_t) Len() int {
	c.lock.Lock()
	ret := len(c.queue)
	c.lock.Unlock()
	return ret
}
