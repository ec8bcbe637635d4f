package proc

import "bytes"
import "sync/atomic"
import "testing"
import "time"

import "github.com/NomadArchitect/microkernel/defs"
import "github.com/NomadArchitect/microkernel/elf"
import "github.com/NomadArchitect/microkernel/hal"
import "github.com/NomadArchitect/microkernel/klog"
import "github.com/NomadArchitect/microkernel/ksync"
import "github.com/NomadArchitect/microkernel/limits"
import "github.com/NomadArchitect/microkernel/thread"
import "github.com/NomadArchitect/microkernel/tinfo"
import "github.com/NomadArchitect/microkernel/vm"

type kern_t struct {
	tt  *thread.Threadtable_t
	pt  *Ptable_t
	vmf *vm.Memfactory_t
	t0  *thread.Thread_t
}

func mkkern(t *testing.T, ncores, nthreads int) *kern_t {
	var out bytes.Buffer
	old := klog.Setoutput(&out)
	t.Cleanup(func() { klog.Setoutput(old) })
	cfg := limits.MkSysLimit()
	cfg.Cores = ncores
	cfg.Kthreads = nthreads
	cfg.Procs = 4
	cores := hal.Mkcores(ncores)
	k := &kern_t{}
	k.tt = thread.Mkthreadtable(cfg, cores, thread.Mksched(cfg, cores))
	k.vmf = vm.Mkfactory(cfg.Procs)
	k.pt = Mkptable(cfg, k.tt, k.vmf, elf.Elf32_t{})
	root := vm.Mkroot()
	k.t0 = k.tt.Init(root)
	k.pt.Init(root)
	return k
}

func goodimage() []uint8 {
	return elf.Mkimage(elf.USER_BASE_VIRT, elf.USER_BASE_VIRT, []uint8{0x90, 0xf4})
}

func eventually(t *testing.T, what string, f func() bool) {
	for i := 0; i < 10000; i++ {
		if f() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("timed out waiting for %v", what)
}

func TestCreate(t *testing.T) {
	k := mkkern(t, 4, 8)
	gate := make(chan bool)
	var stackok int32
	k.pt.Userland = func(t *thread.Thread_t, p *Proc_t) uintptr {
		if k.pt.Ustack_mapped(p, 0) {
			atomic.StoreInt32(&stackok, 1)
		}
		<-gate
		return 0
	}
	pid, err := k.pt.Create(goodimage())
	if err != 0 || pid <= 0 {
		t.Fatalf("create %v %v", pid, err)
	}
	if !k.pt.Is_valid(pid) || k.pt.Count() != 2 {
		t.Fatalf("process not active")
	}
	p, ok := k.pt.Get(pid)
	if !ok || p.Vmem == nil {
		t.Fatalf("get")
	}
	eventually(t, "bootstrap", func() bool { return atomic.LoadInt32(&stackok) == 1 })
	close(gate)
	eventually(t, "teardown", func() bool { return !k.pt.Is_valid(pid) })
	if k.pt.Count() != 1 || k.vmf.Live() != 0 {
		t.Fatalf("count %v live %v", k.pt.Count(), k.vmf.Live())
	}
}

func TestBadImage(t *testing.T) {
	k := mkkern(t, 4, 8)
	ran := int32(0)
	k.pt.Userland = func(t *thread.Thread_t, p *Proc_t) uintptr {
		atomic.StoreInt32(&ran, 1)
		return 0
	}
	bad := [][]uint8{
		[]uint8("not an image"),
		elf.Mkimage(elf.USER_BASE_VIRT+0x10, elf.USER_BASE_VIRT, []uint8{1}),
		elf.Mkimage(elf.USER_BASE_VIRT, 0x1000, []uint8{1}),
	}
	for _, img := range bad {
		pid, err := k.pt.Create(img)
		if pid != defs.PID_NONE || err != -defs.EINVAL {
			t.Fatalf("create %v %v", pid, err)
		}
		if k.pt.Count() != 1 || k.tt.Count() != 1 || k.vmf.Live() != 0 {
			t.Fatalf("table changed: count %v threads %v live %v",
				k.pt.Count(), k.tt.Count(), k.vmf.Live())
		}
	}
	if k.pt.Is_valid(1) {
		t.Fatalf("pid of failed create is valid")
	}
	if atomic.LoadInt32(&ran) != 0 {
		t.Fatalf("bad image ran")
	}
	// rejected images do not use up pids
	pid, err := k.pt.Create(goodimage())
	if err != 0 || pid != 1 {
		t.Fatalf("create %v %v", pid, err)
	}
}

func TestVmemFailure(t *testing.T) {
	k := mkkern(t, 4, 8)
	k.vmf.Failn = 1
	pid, err := k.pt.Create(goodimage())
	if pid != defs.PID_NONE || err != -defs.ENOMEM {
		t.Fatalf("create %v %v", pid, err)
	}
	if k.pt.Count() != 1 || k.tt.Count() != 1 {
		t.Fatalf("table changed")
	}
}

func TestThreadFailure(t *testing.T) {
	// the kernel thread fills the only slot
	k := mkkern(t, 1, 1)
	pid, err := k.pt.Create(goodimage())
	if pid != defs.PID_NONE || err != -defs.EAGAIN {
		t.Fatalf("create %v %v", pid, err)
	}
	if k.pt.Count() != 1 || k.vmf.Live() != 0 {
		t.Fatalf("count %v live %v", k.pt.Count(), k.vmf.Live())
	}
	if k.pt.Is_valid(1) {
		t.Fatalf("pid of failed create is valid")
	}
}

func TestIsValid(t *testing.T) {
	k := mkkern(t, 2, 2)
	if !k.pt.Is_valid(defs.KPID) {
		t.Fatalf("kernel process invalid")
	}
	for _, pid := range []defs.Pid_t{-1, 1, 4, 1000} {
		if k.pt.Is_valid(pid) {
			t.Fatalf("pid %v valid", pid)
		}
	}
}

func TestCurrent(t *testing.T) {
	k := mkkern(t, 2, 2)
	if k.pt.Current(k.t0).Pid != defs.KPID {
		t.Fatalf("kernel thread not in kernel process")
	}
	defer func() {
		if recover() == nil {
			t.Fatalf("orphan not caught")
		}
	}()
	k.pt.Current(&thread.Thread_t{Pid: 77})
}

func TestKernelExit(t *testing.T) {
	k := mkkern(t, 2, 2)
	defer func() {
		if recover() == nil {
			t.Fatalf("kernel process exited")
		}
	}()
	k.pt.Exit(k.t0)
}

func TestExitSiblings(t *testing.T) {
	k := mkkern(t, 4, 8)
	var sib int32
	k.pt.Userland = func(t *thread.Thread_t, p *Proc_t) uintptr {
		tid, err := k.pt.Thread(t, func(t *thread.Thread_t, arg uintptr) uintptr {
			for {
				k.tt.Yieldpoint(t)
				time.Sleep(time.Millisecond)
			}
		}, 0)
		if err != 0 {
			return 1
		}
		atomic.StoreInt32(&sib, int32(tid))
		k.pt.Exit(t)
		return 2
	}
	pid, err := k.pt.Create(goodimage())
	if err != 0 {
		t.Fatalf("create %v", err)
	}
	eventually(t, "teardown", func() bool {
		return !k.pt.Is_valid(pid) && k.vmf.Live() == 0 && k.tt.Count() == 1
	})
	if atomic.LoadInt32(&sib) == 0 {
		t.Fatalf("sibling never started")
	}
}

func TestSleepWakeup(t *testing.T) {
	k := mkkern(t, 4, 8)
	var lk ksync.Spinlock_t
	ready := false
	var asleep int32
	k.pt.Userland = func(t *thread.Thread_t, p *Proc_t) uintptr {
		lk.Lock()
		for !ready {
			atomic.StoreInt32(&asleep, 1)
			k.pt.Sleep(t, &lk)
		}
		lk.Unlock()
		return 0
	}
	pid, _ := k.pt.Create(goodimage())
	p, _ := k.pt.Get(pid)
	eventually(t, "sleep", func() bool { return atomic.LoadInt32(&asleep) == 1 })
	lk.Lock()
	ready = true
	lk.Unlock()
	eventually(t, "wakeup", func() bool { return k.pt.Wakeup(p) == 0 })
	eventually(t, "exit", func() bool { return !k.pt.Is_valid(pid) })
	if k.pt.Wakeup(p) != -defs.ESRCH {
		t.Fatalf("woke a dead process")
	}
}

func TestIter(t *testing.T) {
	k := mkkern(t, 2, 2)
	n := 0
	k.pt.Iter(func(pid defs.Pid_t, nthreads int, exec int64) bool {
		if pid != defs.KPID || nthreads != 1 {
			t.Fatalf("pid %v threads %v", pid, nthreads)
		}
		n++
		return true
	})
	if n != 1 {
		t.Fatalf("iterated %v", n)
	}
}

func blocked(k *kern_t, tid defs.Tid_t) bool {
	th, ok := k.tt.Get(tid)
	return ok && th.Note.Blocked()
}

// exit releases siblings that sleep, join or wait on a semaphore
func TestExitBlockedSiblings(t *testing.T) {
	k := mkkern(t, 8, 8)
	var lk ksync.Spinlock_t
	id, _ := k.pt.Sems.Get(1)
	gate := make(chan bool)
	other, _ := k.tt.Create(99, 0, func(t *thread.Thread_t, arg uintptr) uintptr {
		<-gate
		return 0
	}, 0)
	var errs [3]int32
	k.pt.Userland = func(t *thread.Thread_t, p *Proc_t) uintptr {
		var tids []defs.Tid_t
		sleeper := func(t *thread.Thread_t, arg uintptr) uintptr {
			lk.Lockas(&t.Note)
			err := k.pt.Sleep(t, &lk)
			lk.Unlockas(&t.Note)
			atomic.StoreInt32(&errs[0], int32(err))
			return 0
		}
		joiner := func(t *thread.Thread_t, arg uintptr) uintptr {
			_, err := k.tt.Join(t, other)
			atomic.StoreInt32(&errs[1], int32(err))
			return 0
		}
		downer := func(t *thread.Thread_t, arg uintptr) uintptr {
			err := k.pt.Sems.Down(&t.Note, id)
			atomic.StoreInt32(&errs[2], int32(err))
			return 0
		}
		for _, f := range []thread.Entry_t{sleeper, joiner, downer} {
			tid, err := k.pt.Thread(t, f, 0)
			if err != 0 {
				return 1
			}
			tids = append(tids, tid)
		}
		for _, tid := range tids {
			for !blocked(k, tid) {
				time.Sleep(time.Millisecond)
			}
		}
		k.pt.Exit(t)
		return 2
	}
	pid, err := k.pt.Create(goodimage())
	if err != 0 {
		t.Fatalf("create %v", err)
	}
	eventually(t, "teardown", func() bool {
		return !k.pt.Is_valid(pid) && k.pt.Count() == 1 && k.vmf.Live() == 0 &&
			k.tt.Count() == 2
	})
	for i := range errs {
		if e := defs.Err_t(atomic.LoadInt32(&errs[i])); e != -defs.EINTR {
			t.Fatalf("blocker %v returned %v", i, e)
		}
	}
	close(gate)
	eventually(t, "other thread", func() bool { return k.tt.Count() == 1 })
}

func TestWakeupAllThreads(t *testing.T) {
	k := mkkern(t, 4, 8)
	var lk ksync.Spinlock_t
	ready := false
	var woke, sib int32
	body := func(t *thread.Thread_t) {
		lk.Lockas(&t.Note)
		for !ready {
			k.pt.Sleep(t, &lk)
		}
		lk.Unlockas(&t.Note)
		atomic.AddInt32(&woke, 1)
	}
	k.pt.Userland = func(t *thread.Thread_t, p *Proc_t) uintptr {
		tid, err := k.pt.Thread(t, func(t *thread.Thread_t, arg uintptr) uintptr {
			body(t)
			return 0
		}, 0)
		if err != 0 {
			return 1
		}
		atomic.StoreInt32(&sib, int32(tid))
		body(t)
		return 0
	}
	p0, _ := k.pt.Get(defs.KPID)
	if err := k.pt.Wakeup(p0); err != -defs.EAGAIN {
		t.Fatalf("woke a running process: %v", err)
	}
	pid, _ := k.pt.Create(goodimage())
	p, _ := k.pt.Get(pid)
	eventually(t, "both threads asleep", func() bool {
		s := defs.Tid_t(atomic.LoadInt32(&sib))
		return s != 0 && blocked(k, s) && blocked(k, p.Tid)
	})
	lk.Lock()
	ready = true
	lk.Unlock()
	if err := k.pt.Wakeup(p); err != 0 {
		t.Fatalf("wakeup %v", err)
	}
	eventually(t, "both threads awake", func() bool { return atomic.LoadInt32(&woke) == 2 })
	eventually(t, "exit", func() bool { return !k.pt.Is_valid(pid) })
	if k.pt.Wakeup(p) != -defs.ESRCH {
		t.Fatalf("woke a dead process")
	}
}

func TestSemtable(t *testing.T) {
	cfg := limits.MkSysLimit()
	cfg.Sems = 2
	st := Mksemtable(cfg)
	a, err := st.Get(10)
	if err != 0 {
		t.Fatalf("get %v", err)
	}
	if b, _ := st.Get(10); b != a {
		t.Fatalf("same key, ids %v %v", a, b)
	}
	b, _ := st.Get(11)
	if _, err := st.Get(12); err != -defs.EAGAIN {
		t.Fatalf("full table %v", err)
	}
	if st.Up(a) != 0 || st.Trydown(a) != 0 || st.Trydown(a) != -defs.EAGAIN {
		t.Fatalf("up/trydown")
	}
	if st.Setvalue(b, 5) != 0 {
		t.Fatalf("setvalue")
	}
	if v, err := st.Getvalue(b); err != 0 || v != 5 {
		t.Fatalf("getvalue %v %v", v, err)
	}
	if st.Down(tinfo.Mknote(1), b) != 0 {
		t.Fatalf("down")
	}
	if st.Delete(b) != 0 || st.Count() != 1 {
		t.Fatalf("delete")
	}
	for _, id := range []int{-1, b, 2} {
		if _, err := st.Getvalue(id); err != -defs.EINVAL {
			t.Fatalf("id %v: %v", id, err)
		}
		if st.Delete(id) != -defs.EINVAL || st.Up(id) != -defs.EINVAL {
			t.Fatalf("id %v accepted", id)
		}
	}
	if c, _ := st.Get(12); c != b {
		t.Fatalf("slot not reused: %v", c)
	}
}
