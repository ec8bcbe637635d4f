package accnt

import "sync"
import "sync/atomic"
import "time"

// Accnt_t accumulates the execution time of one thread. exec time runs from
// the moment the thread is given a core until it blocks, yields or exits.
type Accnt_t struct {
	// nanoseconds
	Userns int64
	Sysns  int64
	// start of the current run on a core, 0 when off core
	start int64
	// for getting consistent snapshot of both times; not always needed
	sync.Mutex
}

func (a *Accnt_t) Utadd(delta int) {
	atomic.AddInt64(&a.Userns, int64(delta))
}

func (a *Accnt_t) Systadd(delta int) {
	atomic.AddInt64(&a.Sysns, int64(delta))
}

func (a *Accnt_t) Now() int {
	return int(time.Now().UnixNano())
}

// Exec_start marks the thread as running on a core.
func (a *Accnt_t) Exec_start() {
	atomic.StoreInt64(&a.start, int64(a.Now()))
}

// Exec_stop charges the time since Exec_start. a stop without a start is
// ignored.
func (a *Accnt_t) Exec_stop() {
	st := atomic.SwapInt64(&a.start, 0)
	if st == 0 {
		return
	}
	a.Systadd(a.Now() - int(st))
}

// Sleep_time removes time spent suspended inside a kernel call.
func (a *Accnt_t) Sleep_time(since int) {
	d := a.Now() - since
	a.Systadd(-d)
}

func (a *Accnt_t) Add(n *Accnt_t) {
	a.Lock()
	a.Userns += atomic.LoadInt64(&n.Userns)
	a.Sysns += atomic.LoadInt64(&n.Sysns)
	a.Unlock()
}

func (a *Accnt_t) Reset() {
	a.Lock()
	atomic.StoreInt64(&a.Userns, 0)
	atomic.StoreInt64(&a.Sysns, 0)
	atomic.StoreInt64(&a.start, 0)
	a.Unlock()
}

// Fetch returns the total execution time.
func (a *Accnt_t) Fetch() time.Duration {
	a.Lock()
	tot := atomic.LoadInt64(&a.Userns) + atomic.LoadInt64(&a.Sysns)
	a.Unlock()
	return time.Duration(tot)
}
