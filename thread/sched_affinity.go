package thread

import "runtime"

import "github.com/NomadArchitect/microkernel/defs"
import "github.com/NomadArchitect/microkernel/hal"
import "github.com/NomadArchitect/microkernel/limits"
import "github.com/NomadArchitect/microkernel/util"

// affinity_t runs every thread on a core of its own for its whole life. a
// thread that blocks keeps its core.
type affinity_t struct {
	cores *hal.Cores_t
}

func Mkaffinity(cores *hal.Cores_t) Sched_i {
	return &affinity_t{cores: cores}
}

func (a *affinity_t) Name() string {
	return limits.POLICY_AFFINITY
}

func (a *affinity_t) Boot(t *Thread_t) {
	if !a.cores.Claim(0, t.Tid) {
		panic("boot core busy")
	}
	t.Coreid = 0
}

// Dispatch takes the first idle core. with no more slots than cores a free
// slot means some core is idle or about to be released by an exiting
// thread, so the wait is short.
func (a *affinity_t) Dispatch(t *Thread_t, start func()) defs.Err_t {
	for try := 0; try < limits.Syslimit.Wakeretries; try++ {
		for i := 0; i < a.cores.Ncores(); i++ {
			if a.cores.Claim(i, t.Tid) {
				t.Coreid = i
				if !a.cores.Start(i, start) {
					panic("start on claimed core")
				}
				return 0
			}
		}
		runtime.Gosched()
	}
	return -defs.EAGAIN
}

func (a *affinity_t) Block(t *Thread_t) {
}

func (a *affinity_t) Resume(t *Thread_t) {
}

func (a *affinity_t) Release(core int) {
	a.cores.Release(core)
}

func (a *affinity_t) Yield(t *Thread_t) {
	runtime.Gosched()
}

func (a *affinity_t) Preempt_tick() {
}

func (a *affinity_t) Domain(t *Thread_t) int {
	return t.Coreid
}

func (a *affinity_t) Capacity(n int) int {
	return util.Min(n, a.cores.Ncores())
}
