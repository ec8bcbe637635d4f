package thread

import "github.com/NomadArchitect/microkernel/defs"
import "github.com/NomadArchitect/microkernel/hal"
import "github.com/NomadArchitect/microkernel/limits"

// Sched_i decides which thread runs on which core. all methods but Dispatch
// are called without the thread table lock; Dispatch is called with it held
// and must not block.
type Sched_i interface {
	// install the running boot thread on core 0
	Boot(t *Thread_t)
	// make a new thread runnable; start runs its body once it holds a core
	Dispatch(t *Thread_t, start func()) defs.Err_t
	// t is about to suspend
	Block(t *Thread_t)
	// t was woken; returns once t holds a core again
	Resume(t *Thread_t)
	// a thread on core exited
	Release(core int)
	Yield(t *Thread_t)
	// one timer tick
	Preempt_tick()
	// which termination condition joiners of t wait on
	Domain(t *Thread_t) int
	// usable thread table slots given n configured ones
	Capacity(n int) int
	Name() string
}

// Mksched builds the policy named by cfg.
func Mksched(cfg *limits.Syslimit_t, cores *hal.Cores_t) Sched_i {
	switch cfg.Policy {
	case limits.POLICY_ROUNDROBIN:
		return Mkroundrobin(cores, cfg.Quantum)
	case limits.POLICY_AFFINITY:
		return Mkaffinity(cores)
	}
	panic("unknown policy " + cfg.Policy)
}
