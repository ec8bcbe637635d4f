package kcall

import "context"
import "io"

import "github.com/NomadArchitect/microkernel/caller"
import "github.com/NomadArchitect/microkernel/defs"
import "github.com/NomadArchitect/microkernel/hashtable"
import "github.com/NomadArchitect/microkernel/klog"
import "github.com/NomadArchitect/microkernel/ksync"
import "github.com/NomadArchitect/microkernel/proc"
import "github.com/NomadArchitect/microkernel/stats"
import "github.com/NomadArchitect/microkernel/thread"

var log = klog.Mk("kcall")

// Scoreboard_t carries one out-of-line kernel call. there is a single
// scoreboard; at most one such call is in flight.
type Scoreboard_t struct {
	Nr   uintptr
	Arg0 uintptr
	Arg1 uintptr
	Arg2 uintptr
	Arg3 uintptr
	Arg4 uintptr
	Ret  int
	// caller
	Tid defs.Tid_t
	Pid defs.Pid_t
	u   ksync.Unit_i
}

type fast_t func(k *Kcall_t, t *thread.Thread_t, a0, a1, a2, a3, a4 uintptr) int

// Slow_t serves an out-of-line kernel call; its result is the call's return
// value.
type Slow_t func(sb *Scoreboard_t) int

type Kstats_t struct {
	Nkcall  stats.Counter_t
	Nslow   stats.Counter_t
	Nenosys stats.Counter_t
	Slowt   stats.Cycles_t
}

type Kcall_t struct {
	pt   *proc.Ptable_t
	tt   *thread.Threadtable_t
	fast [defs.NR_last_kcall]fast_t

	// the bridge to the out-of-line handler
	bridge ksync.Mutex_t
	sb     Scoreboard_t
	req    chan *Scoreboard_t
	reply  chan int

	// slow handlers by number and user thread entries by address
	slow    *hashtable.Hashtable_t
	entries *hashtable.Hashtable_t

	outl ksync.Spinlock_t
	out  io.Writer
	// sleepers of NR_sleep
	sleeplk ksync.Spinlock_t

	// called by NR_shutdown
	Onshutdown func()
	Stats      Kstats_t
	// reports the first unknown call made from each call path
	Badcalls caller.Distinct_caller_t
}

// Mkkcall builds the dispatcher. console output goes to out, or to the
// kernel log when out is nil.
func Mkkcall(pt *proc.Ptable_t, tt *thread.Threadtable_t, out io.Writer) *Kcall_t {
	k := &Kcall_t{pt: pt, tt: tt, out: out}
	k.bridge.Init(ksync.MUTEX_SLEEP, tt)
	k.bridge.Class = "kcall.bridge"
	k.req = make(chan *Scoreboard_t, 1)
	k.reply = make(chan int, 1)
	k.slow = hashtable.MkHash(16)
	k.entries = hashtable.MkHash(64)
	k.outl.Class = "console"
	k.sleeplk.Class = "kcall.sleep"
	k.fast = [defs.NR_last_kcall]fast_t{
		defs.NR_void0:         kcall_void0,
		defs.NR_void1:         kcall_void1,
		defs.NR_void2:         kcall_void2,
		defs.NR_void3:         kcall_void3,
		defs.NR_void4:         kcall_void4,
		defs.NR_void5:         kcall_void5,
		defs.NR_shutdown:      kcall_shutdown,
		defs.NR_write:         kcall_write,
		defs.NR_spawn:         kcall_spawn,
		defs.NR_pinfo:         kcall_pinfo,
		defs.NR_thread_get_id: kcall_thread_get_id,
		defs.NR_thread_create: kcall_thread_create,
		defs.NR_thread_exit:   kcall_thread_exit,
		defs.NR_thread_join:   kcall_thread_join,
		defs.NR_thread_yield:  kcall_thread_yield,
		defs.NR_sleep:         kcall_sleep,
		defs.NR_wakeup:        kcall_wakeup,
		defs.NR_getpid:        kcall_getpid,
		defs.NR_semget:        kcall_semget,
		defs.NR_semop:         kcall_semop,
		defs.NR_semctl:        kcall_semctl,
		defs.NR_thread_detach: kcall_thread_detach,
	}
	return k
}

// Register installs the out-of-line handler for nr.
func (k *Kcall_t) Register(nr uintptr, fn Slow_t) {
	if nr < defs.NR_last_kcall {
		panic("kcall has an inline handler")
	}
	if fn == nil {
		panic("nil handler")
	}
	if _, isnew := k.slow.Set(nr, fn); !isnew {
		log.Warn("kernel call %v handler replaced", nr)
	}
}

// Register_entry makes fn startable by NR_thread_create under user address
// va.
func (k *Kcall_t) Register_entry(va uintptr, fn thread.Entry_t) {
	if fn == nil {
		panic("nil entry")
	}
	k.entries.Set(va, fn)
}

func (k *Kcall_t) _entry(va uintptr) (thread.Entry_t, bool) {
	fn, ok := k.entries.Get(va)
	if !ok {
		return nil, false
	}
	return fn.(thread.Entry_t), true
}

// Dispatch serves the kernel call trapped in tf on behalf of thread t. the
// result is also stored in tf[TF_RET].
func (k *Kcall_t) Dispatch(t *thread.Thread_t, tf *defs.Tf_t) int {
	// kernel entry is where a pending preemption is taken
	k.tt.Yieldpoint(t)
	k.Stats.Nkcall.Inc()

	nr := tf[defs.TF_NR]
	a0 := tf[defs.TF_ARG0]
	a1 := tf[defs.TF_ARG1]
	a2 := tf[defs.TF_ARG2]
	a3 := tf[defs.TF_ARG3]
	a4 := tf[defs.TF_ARG4]

	var ret int
	if nr < defs.NR_last_kcall && k.fast[nr] != nil {
		ret = k.fast[nr](k, t, a0, a1, a2, a3, a4)
	} else {
		ret = k._slow(t, nr, a0, a1, a2, a3, a4)
	}
	if ret == int(-defs.ENOSYS) {
		if ok, path := k.Badcalls.Distinct(); ok {
			log.Debug("unknown kernel call %v from:\n%v", nr, path)
		}
	}
	tf[defs.TF_RET] = uintptr(ret)
	// a thread killed during the call does not return to user mode
	if t.Note.Killed() {
		k.tt.Exit(t, 0)
	}
	return ret
}

// Kcall traps into the kernel with call nr.
func (k *Kcall_t) Kcall(t *thread.Thread_t, nr, a0, a1, a2, a3, a4 uintptr) int {
	var tf defs.Tf_t
	tf[defs.TF_NR] = nr
	tf[defs.TF_ARG0] = a0
	tf[defs.TF_ARG1] = a1
	tf[defs.TF_ARG2] = a2
	tf[defs.TF_ARG3] = a3
	tf[defs.TF_ARG4] = a4
	return k.Dispatch(t, &tf)
}

// _slow hands the call to the out-of-line handler and suspends until the
// reply is posted. the bridge is held for the whole exchange so that the scoreboard is never
// overwritten before its reply was read.
func (k *Kcall_t) _slow(t *thread.Thread_t, nr, a0, a1, a2, a3, a4 uintptr) int {
	k.Stats.Nslow.Inc()
	st := stats.Now()
	k.bridge.Lock(&t.Note)
	k.sb = Scoreboard_t{Nr: nr, Arg0: a0, Arg1: a1, Arg2: a2, Arg3: a3,
		Arg4: a4, Tid: t.Tid, Pid: t.Pid, u: &t.Note}
	// tagged so that a stray wakeup cannot end the wait early
	t.Note.Setq(defs.Q_REPLY)
	t.Note.Prepare()
	select {
	case k.req <- &k.sb:
	default:
		panic("scoreboard busy")
	}
	t.Note.Park()
	ret := <-k.reply
	k.bridge.Unlock(&t.Note)
	k.Stats.Slowt.Add(st)
	return ret
}

// Handler serves out-of-line kernel calls until ctx is done.
func (k *Kcall_t) Handler(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case sb := <-k.req:
			fn, ok := k.slow.Get(sb.Nr)
			if ok {
				sb.Ret = fn.(Slow_t)(sb)
			} else {
				log.Warn("unknown kernel call %v from tid %v", sb.Nr, sb.Tid)
				k.Stats.Nenosys.Inc()
				sb.Ret = int(-defs.ENOSYS)
			}
			k.reply <- sb.Ret
			sb.u.Setq(defs.Q_NONE)
			if !sb.u.Wake() {
				panic("kcall caller not waiting")
			}
		}
	}
}

// Pending reports the number of slow callers queued behind the bridge.
func (k *Kcall_t) Pending() int {
	return k.bridge.Waiters()
}

func (k *Kcall_t) _puts(b []uint8) {
	if k.out == nil {
		klog.Kputs(string(b))
		return
	}
	k.outl.Lock()
	k.out.Write(b)
	k.outl.Unlock()
}
