package proc

import "github.com/NomadArchitect/microkernel/accnt"
import "github.com/NomadArchitect/microkernel/defs"
import "github.com/NomadArchitect/microkernel/elf"
import "github.com/NomadArchitect/microkernel/klog"
import "github.com/NomadArchitect/microkernel/ksync"
import "github.com/NomadArchitect/microkernel/limits"
import "github.com/NomadArchitect/microkernel/thread"
import "github.com/NomadArchitect/microkernel/vm"

var log = klog.Mk("pm")

type Proc_t struct {
	Pid defs.Pid_t
	// main thread
	Tid    defs.Tid_t
	Active bool
	Vmem   vm.Vmem_i
	Image  []uint8
	// user stack pages in use; bit i is the page i pages below
	// USER_END_VIRT
	Ustack []uint64
	// live threads of this process
	Nthreads int
	// run time of the threads that exited
	Atime accnt.Accnt_t

	// a process is marked doomed when it has called exit but may have
	// threads running on another core
	doomed bool
}

// Userland_t stands in for the user-mode part of a process: it runs on the
// main thread once the image is loaded and its result is the thread's exit
// value.
type Userland_t func(t *thread.Thread_t, p *Proc_t) uintptr

type Ptable_t struct {
	lock  ksync.Spinlock_t
	procs []Proc_t
	next  defs.Pid_t
	tt    *thread.Threadtable_t
	vmf   vm.Factory_i
	ld    elf.Loader_i
	cfg   *limits.Syslimit_t
	// run after a successful bootstrap; nil exits right away
	Userland Userland_t
	Sems     *Semtable_t
}

func Mkptable(cfg *limits.Syslimit_t, tt *thread.Threadtable_t, vmf vm.Factory_i, ld elf.Loader_i) *Ptable_t {
	if cfg.Procs <= 1 {
		panic("no process slots")
	}
	pt := &Ptable_t{tt: tt, vmf: vmf, ld: ld, cfg: cfg, Sems: Mksemtable(cfg)}
	pt.lock.Class = "ptable"
	pt.procs = make([]Proc_t, cfg.Procs)
	tt.Onexit = pt._threadexit
	return pt
}

// Init activates the kernel process with the root address space.
func (pt *Ptable_t) Init(root vm.Vmem_i) {
	pt.lock.Lock()
	defer pt.lock.Unlock()
	p := &pt.procs[0]
	if p.Active {
		panic("process table already initialized")
	}
	pt._setup(p, defs.KPID, root, nil)
	p.Tid = defs.KTID
	p.Nthreads = 1
	p.Active = true
}

func (pt *Ptable_t) _setup(p *Proc_t, pid defs.Pid_t, vmem vm.Vmem_i, image []uint8) {
	p.Pid = pid
	p.Vmem = vmem
	p.Image = image
	p.Ustack = make([]uint64, (pt.cfg.Ustackpgs+63)/64)
	p.Nthreads = 0
	p.doomed = false
	p.Atime.Reset()
}

func (pt *Ptable_t) _free(p *Proc_t) {
	if p.Pid == defs.KPID {
		panic("free of kernel process")
	}
	p.Active = false
	p.Vmem = nil
	p.Image = nil
	p.Tid = defs.TID_NONE
}

// Create spawns a process running image. on failure the table is left as it
// was.
func (pt *Ptable_t) Create(image []uint8) (defs.Pid_t, defs.Err_t) {
	if err := pt.ld.Check(image); err != 0 {
		return defs.PID_NONE, err
	}
	pt.lock.Lock()
	defer pt.lock.Unlock()

	var p *Proc_t
	for i := 1; i < len(pt.procs); i++ {
		if !pt.procs[i].Active {
			p = &pt.procs[i]
			break
		}
	}
	if p == nil {
		return defs.PID_NONE, -defs.EAGAIN
	}
	vmem, ok := pt.vmf.Create()
	if !ok {
		log.Warn("cannot create address space")
		return defs.PID_NONE, -defs.ENOMEM
	}
	pt.next++
	pt._setup(p, pt.next, vmem, image)
	p.Active = true

	tid, err := pt.tt.Create(p.Pid, vmem.Pgdir(), pt._bootstrap, 0)
	if err != 0 {
		vmem.Destroy()
		pt._free(p)
		pt.next--
		log.Warn("cannot create main thread: %v", err)
		return defs.PID_NONE, -defs.EAGAIN
	}
	p.Tid = tid
	p.Nthreads = 1
	log.Info("process %v created", p.Pid)
	return p.Pid, 0
}

// _bootstrap is the first code a new process runs: it loads the image and
// sets up the user stack.
func (pt *Ptable_t) _bootstrap(t *thread.Thread_t, _ uintptr) uintptr {
	p := pt.Current(t)
	entry := pt.ld.Load(p.Image, p.Vmem)
	if entry != elf.USER_BASE_VIRT {
		log.Error("pid %v: bad image entry %#x", p.Pid, entry)
		pt.Exit(t)
	}
	if err := pt.Ustack_attach(p, 0); err != 0 {
		log.Error("pid %v: cannot attach user stack: %v", p.Pid, err)
		pt.Exit(t)
	}
	if pt.Userland == nil {
		return 0
	}
	return pt.Userland(t, p)
}

// Ustack_attach maps user stack page pg of p.
func (pt *Ptable_t) Ustack_attach(p *Proc_t, pg int) defs.Err_t {
	if pg < 0 || pg >= pt.cfg.Ustackpgs {
		return -defs.EINVAL
	}
	va := uintptr(defs.USER_END_VIRT - (pg+1)*defs.PAGE_SIZE)
	if err := p.Vmem.Attach(va, defs.PAGE_SIZE); err != 0 {
		return err
	}
	pt.lock.Lock()
	p.Ustack[pg/64] |= 1 << uint(pg%64)
	pt.lock.Unlock()
	return 0
}

func (pt *Ptable_t) Ustack_mapped(p *Proc_t, pg int) bool {
	pt.lock.Lock()
	defer pt.lock.Unlock()
	return p.Ustack[pg/64]&(1<<uint(pg%64)) != 0
}

func (pt *Ptable_t) _find(pid defs.Pid_t) *Proc_t {
	for i := range pt.procs {
		p := &pt.procs[i]
		if p.Active && p.Pid == pid {
			return p
		}
	}
	return nil
}

// _live is _find for processes that have not called exit.
func (pt *Ptable_t) _live(pid defs.Pid_t) *Proc_t {
	p := pt._find(pid)
	if p == nil || p.doomed {
		return nil
	}
	return p
}

// _threadexit runs on every exiting thread. the last thread out tears the
// process down.
func (pt *Ptable_t) _threadexit(t *thread.Thread_t) {
	pt.lock.Lock()
	defer pt.lock.Unlock()
	p := pt._find(t.Pid)
	if p == nil {
		log.Warn("thread %v exits without process %v", t.Tid, t.Pid)
		return
	}
	p.Atime.Add(&t.Acct)
	p.Nthreads--
	if p.Nthreads > 0 || p.Pid == defs.KPID {
		return
	}
	vmem := p.Vmem
	pt._free(p)
	vmem.Destroy()
	log.Info("process %v terminated", p.Pid)
}

// Thread starts another thread in the caller's process.
func (pt *Ptable_t) Thread(t *thread.Thread_t, entry thread.Entry_t, arg uintptr) (defs.Tid_t, defs.Err_t) {
	pt.lock.Lock()
	defer pt.lock.Unlock()
	p := pt._find(t.Pid)
	if p == nil {
		panic("orphan thread")
	}
	if p.doomed {
		return defs.TID_NONE, -defs.ESRCH
	}
	tid, err := pt.tt.Create(p.Pid, p.Vmem.Pgdir(), entry, arg)
	if err != 0 {
		return defs.TID_NONE, err
	}
	p.Nthreads++
	return tid, 0
}

func (pt *Ptable_t) Get(pid defs.Pid_t) (*Proc_t, bool) {
	pt.lock.Lock()
	p := pt._live(pid)
	pt.lock.Unlock()
	return p, p != nil
}

// Is_valid reports whether pid names a live process. pids are never reused,
// so a pid that was never issued or whose process called exit is invalid.
func (pt *Ptable_t) Is_valid(pid defs.Pid_t) bool {
	if pid < 0 {
		return false
	}
	pt.lock.Lock()
	defer pt.lock.Unlock()
	if pid > pt.next {
		return false
	}
	return pt._live(pid) != nil
}

// Current returns the process of thread t.
func (pt *Ptable_t) Current(t *thread.Thread_t) *Proc_t {
	pt.lock.Lock()
	p := pt._find(t.Pid)
	pt.lock.Unlock()
	if p == nil {
		panic("orphan thread")
	}
	return p
}

// Exit terminates the caller's process. the process stops being valid at
// once; its other threads are killed and the last one out releases the
// address space. it does not return.
func (pt *Ptable_t) Exit(t *thread.Thread_t) {
	p := pt.Current(t)
	if p.Pid == defs.KPID {
		panic("exit of kernel process")
	}
	pt.lock.Lock()
	p.doomed = true
	pt.lock.Unlock()
	if n := pt.tt.Doom(p.Pid, t); n > 0 {
		log.Trace("pid %v: %v threads left", p.Pid, n)
	}
	pt.tt.Exit(t, 0)
}

// Sleep suspends the calling thread; lk is released while asleep. it fails
// with -EINTR when the process exits meanwhile.
func (pt *Ptable_t) Sleep(t *thread.Thread_t, lk *ksync.Spinlock_t) defs.Err_t {
	return pt.tt.Sleep(t, lk)
}

// Wakeup wakes every thread of p that sleeps. it fails with -EAGAIN if none
// does.
func (pt *Ptable_t) Wakeup(p *Proc_t) defs.Err_t {
	pt.lock.Lock()
	pid := p.Pid
	live := p.Active && !p.doomed
	pt.lock.Unlock()
	if !live {
		return -defs.ESRCH
	}
	if pt.tt.Wakeall(pid) == 0 {
		return -defs.EAGAIN
	}
	return 0
}

// Count returns the number of live processes, the kernel included.
func (pt *Ptable_t) Count() int {
	pt.lock.Lock()
	defer pt.lock.Unlock()
	n := 0
	for i := range pt.procs {
		if p := &pt.procs[i]; p.Active && !p.doomed {
			n++
		}
	}
	return n
}

// Iter calls f on a snapshot of every live process until f returns false.
func (pt *Ptable_t) Iter(f func(pid defs.Pid_t, nthreads int, exec int64) bool) {
	type snap_t struct {
		pid defs.Pid_t
		n   int
		ns  int64
	}
	var snaps []snap_t
	pt.lock.Lock()
	for i := range pt.procs {
		p := &pt.procs[i]
		if p.Active && !p.doomed {
			snaps = append(snaps, snap_t{p.Pid, p.Nthreads, int64(p.Atime.Fetch())})
		}
	}
	pt.lock.Unlock()
	for _, s := range snaps {
		if !f(s.pid, s.n, s.ns) {
			return
		}
	}
}
