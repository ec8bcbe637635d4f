package thread

import "golang.org/x/sys/cpu"

import "github.com/NomadArchitect/microkernel/defs"
import "github.com/NomadArchitect/microkernel/hal"
import "github.com/NomadArchitect/microkernel/ksync"
import "github.com/NomadArchitect/microkernel/limits"

type rrcore_t struct {
	_   cpu.CacheLinePad
	t   *Thread_t
	age int
	_   cpu.CacheLinePad
}

// roundrobin_t multiplexes threads over the cores. a thread runs only while
// it holds a core grant; grants go to the head of a FIFO ready queue. a
// thread gives up its core when it blocks, yields or exits.
type roundrobin_t struct {
	lock    ksync.Spinlock_t
	cores   *hal.Cores_t
	quantum int
	ready   []*Thread_t
	running []rrcore_t
}

func Mkroundrobin(cores *hal.Cores_t, quantum int) Sched_i {
	if quantum <= 0 {
		panic("bad quantum")
	}
	rr := &roundrobin_t{cores: cores, quantum: quantum}
	rr.lock.Class = "rrq"
	rr.running = make([]rrcore_t, cores.Ncores())
	return rr
}

func (rr *roundrobin_t) Name() string {
	return limits.POLICY_ROUNDROBIN
}

func (rr *roundrobin_t) Boot(t *Thread_t) {
	rr.lock.Lock()
	if !rr.cores.Claim(0, t.Tid) {
		panic("boot core busy")
	}
	t.started = true
	rr._give(t, 0)
	rr.lock.Unlock()
}

func (rr *roundrobin_t) _enqueue(t *Thread_t) {
	t.Note.Setq(defs.Q_READY)
	rr.ready = append(rr.ready, t)
}

func (rr *roundrobin_t) _pop() *Thread_t {
	t := rr.ready[0]
	rr.ready[0] = nil
	rr.ready = rr.ready[1:]
	t.Note.Setq(defs.Q_NONE)
	return t
}

// _give hands core, already claimed for t, to t.
func (rr *roundrobin_t) _give(t *Thread_t, core int) {
	rr.running[core].t = t
	rr.running[core].age = 0
	t.Coreid = core
	if !t.started {
		t.started = true
		if !rr.cores.Start(core, t.start) {
			panic("start on claimed core")
		}
		return
	}
	select {
	case t.grant <- core:
	default:
		panic("double grant")
	}
}

// _schedule fills idle cores from the ready queue.
func (rr *roundrobin_t) _schedule() {
	for i := 0; i < len(rr.running) && len(rr.ready) > 0; i++ {
		if rr.cores.Claim(i, rr.ready[0].Tid) {
			rr._give(rr._pop(), i)
		}
	}
}

// _pass gives core to the next ready thread or idles it.
func (rr *roundrobin_t) _pass(core int) {
	rr.running[core].t = nil
	if len(rr.ready) == 0 {
		rr.cores.Release(core)
		return
	}
	nt := rr._pop()
	rr.cores.Handoff(core, nt.Tid)
	rr._give(nt, core)
}

func (rr *roundrobin_t) Dispatch(t *Thread_t, start func()) defs.Err_t {
	rr.lock.Lock()
	t.start = start
	t.started = false
	rr._enqueue(t)
	rr._schedule()
	rr.lock.Unlock()
	return 0
}

func (rr *roundrobin_t) Block(t *Thread_t) {
	rr.lock.Lock()
	rr._pass(t.Coreid)
	rr.lock.Unlock()
}

func (rr *roundrobin_t) Resume(t *Thread_t) {
	rr.lock.Lock()
	rr._enqueue(t)
	rr._schedule()
	rr.lock.Unlock()
	<-t.grant
}

func (rr *roundrobin_t) Release(core int) {
	rr.lock.Lock()
	rr._pass(core)
	rr.lock.Unlock()
}

func (rr *roundrobin_t) Yield(t *Thread_t) {
	rr.lock.Lock()
	if len(rr.ready) == 0 {
		rr.running[t.Coreid].age = 0
		rr.lock.Unlock()
		return
	}
	rr._pass(t.Coreid)
	rr._enqueue(t)
	rr.lock.Unlock()
	<-t.grant
}

func (rr *roundrobin_t) Preempt_tick() {
	rr.lock.Lock()
	for i := range rr.running {
		rc := &rr.running[i]
		if rc.t == nil {
			continue
		}
		rc.age++
		if rc.age >= rr.quantum {
			rc.age = 0
			rc.t.Note.Setpreempt()
		}
	}
	rr.lock.Unlock()
}

func (rr *roundrobin_t) Domain(t *Thread_t) int {
	return int(t.Pid)
}

func (rr *roundrobin_t) Capacity(n int) int {
	return n
}

func (rr *roundrobin_t) Nready() int {
	rr.lock.Lock()
	ret := len(rr.ready)
	rr.lock.Unlock()
	return ret
}
