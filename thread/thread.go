package thread

import "github.com/NomadArchitect/microkernel/accnt"
import "github.com/NomadArchitect/microkernel/defs"
import "github.com/NomadArchitect/microkernel/hal"
import "github.com/NomadArchitect/microkernel/klog"
import "github.com/NomadArchitect/microkernel/ksync"
import "github.com/NomadArchitect/microkernel/limits"
import "github.com/NomadArchitect/microkernel/stats"
import "github.com/NomadArchitect/microkernel/tinfo"
import "github.com/NomadArchitect/microkernel/vm"

var log = klog.Mk("pm")

// Entry_t is the body of a thread. its result is the thread's exit value.
type Entry_t func(t *Thread_t, arg uintptr) uintptr

type Thread_t struct {
	Tid    defs.Tid_t
	Pid    defs.Pid_t
	Coreid int
	State  defs.Tstate_t
	Entry  Entry_t
	Arg    uintptr
	Retval uintptr
	// private kernel stack
	Stack []uint8
	Ctx   hal.Context_t
	Note  tinfo.Tnote_t
	Acct  accnt.Accnt_t

	// no exit value is kept for a detached thread
	detached bool
	// round-robin core grants
	grant   chan int
	start   func()
	started bool
}

type Tstats_t struct {
	Ncreate stats.Counter_t
	Nexit   stats.Counter_t
	Njoin   stats.Counter_t
	Nswitch stats.Counter_t
	Nyield  stats.Counter_t
}

type Threadtable_t struct {
	lock    ksync.Spinlock_t
	threads []Thread_t
	// free slots
	free   limits.Sysatomic_t
	nextid defs.Tid_t
	// termination conditions, by scheduling domain
	conds    map[int]*ksync.Cond_t
	exitvals exitring_t
	cores    *hal.Cores_t
	sched    Sched_i
	cfg      *limits.Syslimit_t
	// called by every exiting thread before it gives up its slot
	Onexit func(t *Thread_t)
	Stats  Tstats_t
}

func Mkthreadtable(cfg *limits.Syslimit_t, cores *hal.Cores_t, s Sched_i) *Threadtable_t {
	n := s.Capacity(cfg.Kthreads)
	if n <= 0 {
		panic("no thread slots")
	}
	tt := &Threadtable_t{cores: cores, sched: s, cfg: cfg}
	tt.lock.Class = "threadtable"
	tt.threads = make([]Thread_t, n)
	tt.conds = make(map[int]*ksync.Cond_t)
	tt.exitvals.init(cfg.Exitvals)
	tt.free.Given(uint(n))
	return tt
}

// Init installs the calling context as the kernel thread, running on core 0.
func (tt *Threadtable_t) Init(root vm.Vmem_i) *Thread_t {
	tt.lock.Lock()
	defer tt.lock.Unlock()
	if tt.threads[0].State != defs.T_NOT_STARTED {
		panic("thread table already initialized")
	}
	if !tt.free.Take() {
		panic("no slot for kernel thread")
	}
	t := &tt.threads[0]
	tt._setup(t, defs.KPID, root.Pgdir(), nil, 0)
	t.Tid = defs.KTID
	t.Note.Init(defs.KTID)
	tt._hooks(t)
	t.State = defs.T_RUNNING
	tt.sched.Boot(t)
	t.Acct.Exec_start()
	return t
}

func (tt *Threadtable_t) Sched() Sched_i {
	return tt.sched
}

func (tt *Threadtable_t) _hooks(t *Thread_t) {
	t.Note.Onblock = func() {
		t.Acct.Exec_stop()
		tt.Stats.Nswitch.Inc()
		tt.sched.Block(t)
	}
	t.Note.Onresume = func() {
		tt.sched.Resume(t)
		t.Acct.Exec_start()
	}
}

func (tt *Threadtable_t) _setup(t *Thread_t, pid defs.Pid_t, pgdir uintptr, entry Entry_t, arg uintptr) {
	t.Pid = pid
	t.Entry = entry
	t.Arg = arg
	t.Retval = 0
	t.Coreid = -1
	t.detached = false
	t.Acct.Reset()
	if len(t.Stack) != tt.cfg.Kstacksz {
		t.Stack = make([]uint8, tt.cfg.Kstacksz)
	} else {
		for i := range t.Stack {
			t.Stack[i] = 0
		}
	}
	sp, ok := hal.Forge_stack(defs.USER_END_VIRT, t.Stack, defs.USER_BASE_VIRT)
	if !ok {
		panic("kernel stack too small")
	}
	if hal.Context_create(&t.Ctx, pgdir, uintptr(len(t.Stack)), sp) != 0 {
		panic("context")
	}
	t.grant = make(chan int, 1)
	t.start = nil
	t.started = false
}

// Create starts a thread of process pid running entry(arg) in the address
// space pgdir. it never blocks.
func (tt *Threadtable_t) Create(pid defs.Pid_t, pgdir uintptr, entry Entry_t, arg uintptr) (defs.Tid_t, defs.Err_t) {
	if entry == nil {
		return defs.TID_NONE, -defs.EINVAL
	}
	tt.lock.Lock()
	defer tt.lock.Unlock()

	var t *Thread_t
	for i := range tt.threads {
		if tt.threads[i].State == defs.T_NOT_STARTED {
			t = &tt.threads[i]
			break
		}
	}
	if t == nil || !tt.free.Take() {
		log.Trace("thread table full")
		return defs.TID_NONE, -defs.EAGAIN
	}
	tt.nextid++
	t.Tid = tt.nextid
	tt._setup(t, pid, pgdir, entry, arg)
	t.Note.Init(t.Tid)
	tt._hooks(t)
	t.State = defs.T_STARTED
	if err := tt.sched.Dispatch(t, func() { tt._trampoline(t) }); err != 0 {
		t.State = defs.T_NOT_STARTED
		tt.free.Give()
		return defs.TID_NONE, err
	}
	tt.Stats.Ncreate.Inc()
	log.Trace("thread %v of pid %v on core %v", t.Tid, pid, t.Coreid)
	return t.Tid, 0
}

func (tt *Threadtable_t) _trampoline(t *Thread_t) {
	tt.cores.Dcache_invalidate()
	tt.lock.Lockas(&t.Note)
	t.State = defs.T_RUNNING
	tt.lock.Unlockas(&t.Note)
	t.Acct.Exec_start()
	if t.Note.Killed() {
		tt.Exit(t, 0)
	}
	ret := t.Entry(t, t.Arg)
	tt.Exit(t, ret)
}

// Exit terminates the calling thread t with value retval. it does not
// return.
func (tt *Threadtable_t) Exit(t *Thread_t, retval uintptr) {
	if t.Tid == defs.KTID {
		panic("kernel thread exit")
	}
	t.Acct.Exec_stop()
	if tt.Onexit != nil {
		tt.Onexit(t)
	}

	tt.lock.Lock()
	if t.State == defs.T_NOT_STARTED || t.State == defs.T_TERMINATED {
		panic("exit of dead thread")
	}
	t.State = defs.T_TERMINATED
	t.Retval = retval
	if !t.detached {
		tt.exitvals.put(t.Tid, retval)
	}
	if c, ok := tt.conds[tt.sched.Domain(t)]; ok {
		c.Broadcast()
	}
	tid := t.Tid
	core := t.Coreid
	// the slot may be reused as soon as the lock is dropped
	t.State = defs.T_NOT_STARTED
	tt.free.Give()
	tt.lock.Unlock()

	tt.Stats.Nexit.Inc()
	log.Trace("thread %v exited with %v", tid, retval)
	tt.sched.Release(core)
	hal.Reset()
}

func (tt *Threadtable_t) _find(tid defs.Tid_t) *Thread_t {
	for i := range tt.threads {
		t := &tt.threads[i]
		if t.State != defs.T_NOT_STARTED && t.Tid == tid {
			return t
		}
	}
	return nil
}

func (tt *Threadtable_t) _cond(dom int) *ksync.Cond_t {
	c, ok := tt.conds[dom]
	if !ok {
		c = &ksync.Cond_t{}
		tt.conds[dom] = c
	}
	return c
}

// Join waits for thread tid to terminate and returns its exit value. a
// thread that already terminated is found in the exit-value ring. a
// detached thread cannot be joined. Join fails with -EINTR if self is
// killed while waiting.
func (tt *Threadtable_t) Join(self *Thread_t, tid defs.Tid_t) (uintptr, defs.Err_t) {
	if tid == self.Tid || tid <= 0 {
		return 0, -defs.EINVAL
	}
	tt.Stats.Njoin.Inc()
	tt.lock.Lockas(&self.Note)
	for {
		t := tt._find(tid)
		if t == nil {
			v, ok := tt.exitvals.get(tid)
			tt.lock.Unlockas(&self.Note)
			if !ok {
				return 0, -defs.EINVAL
			}
			return v, 0
		}
		if t.detached {
			tt.lock.Unlockas(&self.Note)
			return 0, -defs.EINVAL
		}
		if self.Note.Killed() {
			tt.lock.Unlockas(&self.Note)
			return 0, -defs.EINTR
		}
		tt._cond(tt.sched.Domain(t)).Wait(&self.Note, &tt.lock)
	}
}

// Detach makes tid unjoinable; its exit value is dropped when it exits.
func (tt *Threadtable_t) Detach(self *Thread_t, tid defs.Tid_t) defs.Err_t {
	if tid <= 0 {
		return -defs.EINVAL
	}
	tt.lock.Lockas(&self.Note)
	defer tt.lock.Unlockas(&self.Note)
	t := tt._find(tid)
	if t == nil {
		return -defs.ESRCH
	}
	if t.detached {
		return -defs.EINVAL
	}
	t.detached = true
	return 0
}

// Sleep suspends self until a Wakeup. the caller holds lk, which is released
// while asleep and held again on return. Sleep fails with -EINTR if self is
// killed.
func (tt *Threadtable_t) Sleep(self *Thread_t, lk *ksync.Spinlock_t) defs.Err_t {
	self.Note.Prepare()
	lk.Unlockas(&self.Note)
	if self.Note.Killed() {
		self.Note.Wake_unqueued()
	}
	self.Note.Park()
	lk.Lockas(&self.Note)
	if self.Note.Killed() {
		return -defs.EINTR
	}
	return 0
}

// Wakeup wakes a thread suspended in Sleep or on a mutex. it fails with
// -EAGAIN if the thread is not suspended.
func (tt *Threadtable_t) Wakeup(tid defs.Tid_t) defs.Err_t {
	tt.lock.Lock()
	defer tt.lock.Unlock()
	t := tt._find(tid)
	if t == nil {
		return -defs.EINVAL
	}
	if !t.Note.Wake_unqueued() {
		return -defs.EAGAIN
	}
	return 0
}

// Wakeall wakes every suspended thread of pid that waits on no queue and
// returns how many woke.
func (tt *Threadtable_t) Wakeall(pid defs.Pid_t) int {
	tt.lock.Lock()
	defer tt.lock.Unlock()
	n := 0
	for i := range tt.threads {
		t := &tt.threads[i]
		if t.State != defs.T_NOT_STARTED && t.Pid == pid && t.Note.Wake_unqueued() {
			n++
		}
	}
	return n
}

func (tt *Threadtable_t) Owns(tid defs.Tid_t) bool {
	tt.lock.Lock()
	defer tt.lock.Unlock()
	return tt._find(tid) != nil
}

func (tt *Threadtable_t) Wake(t *Thread_t) bool {
	return t.Note.Wake_unqueued()
}

func (tt *Threadtable_t) Yield(self *Thread_t) {
	tt.Stats.Nyield.Inc()
	self.Acct.Exec_stop()
	tt.sched.Yield(self)
	self.Acct.Exec_start()
}

// Yieldpoint is passed by every thread on kernel entry. it honors a pending
// quantum expiry and kills doomed threads.
func (tt *Threadtable_t) Yieldpoint(self *Thread_t) {
	if self.Note.Killed() {
		tt.Exit(self, 0)
	}
	if self.Note.Takepreempt() {
		tt.Yield(self)
	}
}

func (tt *Threadtable_t) Preempt_tick() {
	tt.sched.Preempt_tick()
}

// Doom kills every thread of pid but self. a killed thread exits at its
// next yield point; one that sleeps or waits on a condition is woken so
// that it gets there.
func (tt *Threadtable_t) Doom(pid defs.Pid_t, self *Thread_t) int {
	tt.lock.Lock()
	n := 0
	for i := range tt.threads {
		t := &tt.threads[i]
		if t.State != defs.T_NOT_STARTED && t.Pid == pid && t != self {
			t.Note.Kill()
			t.Note.Interrupt()
			n++
		}
	}
	tt.lock.Unlock()
	return n
}

func (tt *Threadtable_t) Get(tid defs.Tid_t) (*Thread_t, bool) {
	tt.lock.Lock()
	t := tt._find(tid)
	tt.lock.Unlock()
	return t, t != nil
}

// Count returns the number of live threads, the kernel thread included.
func (tt *Threadtable_t) Count() int {
	return len(tt.threads) - int(tt.free.Load())
}

func (tt *Threadtable_t) Capacity() int {
	return len(tt.threads)
}

func (tt *Threadtable_t) Running(core int) defs.Tid_t {
	return tt.cores.Running(core)
}
