package hal

import "runtime"
import "sync/atomic"

import "golang.org/x/sys/cpu"

import "github.com/NomadArchitect/microkernel/defs"

// Core_t is one simulated processor. each record sits on its own cache lines
// since every core updates its own record on each dispatch.
type Core_t struct {
	_     cpu.CacheLinePad
	busy  int32
	tid   int64
	Nruns int64
	_     cpu.CacheLinePad
}

type Cores_t struct {
	cores []Core_t
	// cache flushes, for tests
	Nflush int64
	// called whenever the thread on a core changes; TID_NONE means idle
	Onswitch func(core int, tid defs.Tid_t)
}

func (c *Cores_t) _switched(n int, tid defs.Tid_t) {
	if c.Onswitch != nil {
		c.Onswitch(n, tid)
	}
}

func Mkcores(n int) *Cores_t {
	if n <= 0 {
		panic("no cores")
	}
	c := &Cores_t{cores: make([]Core_t, n)}
	for i := range c.cores {
		c.cores[i].tid = int64(defs.TID_NONE)
	}
	return c
}

func (c *Cores_t) Ncores() int {
	return len(c.cores)
}

func (c *Cores_t) _core(n int) *Core_t {
	if n < 0 || n >= len(c.cores) {
		panic("bad core")
	}
	return &c.cores[n]
}

// Claim reserves an idle core for tid.
func (c *Cores_t) Claim(n int, tid defs.Tid_t) bool {
	co := c._core(n)
	if !atomic.CompareAndSwapInt32(&co.busy, 0, 1) {
		return false
	}
	atomic.StoreInt64(&co.tid, int64(tid))
	c._switched(n, tid)
	return true
}

// Handoff passes a claimed core directly to another thread.
func (c *Cores_t) Handoff(n int, tid defs.Tid_t) {
	co := c._core(n)
	if atomic.LoadInt32(&co.busy) == 0 {
		panic("handoff of idle core")
	}
	atomic.StoreInt64(&co.tid, int64(tid))
	c._switched(n, tid)
}

func (c *Cores_t) Release(n int) {
	co := c._core(n)
	if atomic.LoadInt32(&co.busy) == 0 {
		panic("release of idle core")
	}
	atomic.StoreInt64(&co.tid, int64(defs.TID_NONE))
	c._switched(n, defs.TID_NONE)
	atomic.StoreInt32(&co.busy, 0)
}

func (c *Cores_t) Idle(n int) bool {
	return atomic.LoadInt32(&c._core(n).busy) == 0
}

// Running returns the thread on core n, or TID_NONE.
func (c *Cores_t) Running(n int) defs.Tid_t {
	return defs.Tid_t(atomic.LoadInt64(&c._core(n).tid))
}

// Start runs fn on claimed core n.
func (c *Cores_t) Start(n int, fn func()) bool {
	if n < 0 || n >= len(c.cores) || fn == nil {
		return false
	}
	co := &c.cores[n]
	if atomic.LoadInt32(&co.busy) == 0 {
		return false
	}
	atomic.AddInt64(&co.Nruns, 1)
	go fn()
	return true
}

// Reset stops the calling core's current execution. it does not return.
func Reset() {
	runtime.Goexit()
}

// Dcache_invalidate makes stores by other cores visible before a thread
// starts on this one.
func (c *Cores_t) Dcache_invalidate() {
	atomic.AddInt64(&c.Nflush, 1)
}
