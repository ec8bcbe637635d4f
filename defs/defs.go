package defs

type Tid_t int

type Pid_t int

// kernel process and its first thread
const (
	KPID Pid_t = 0
	KTID Tid_t = 0
)

// returned instead of an id when creation fails
const (
	PID_NONE Pid_t = -1
	TID_NONE Tid_t = -1
)

// PID_SELF names the calling process in kcalls that take a pid.
const PID_SELF Pid_t = -1

type Tstate_t int

const (
	T_NOT_STARTED Tstate_t = 0
	T_STARTED     Tstate_t = 1
	T_RUNNING     Tstate_t = 2
	T_TERMINATED  Tstate_t = 5
)

func (s Tstate_t) String() string {
	switch s {
	case T_NOT_STARTED:
		return "not started"
	case T_STARTED:
		return "started"
	case T_RUNNING:
		return "running"
	case T_TERMINATED:
		return "terminated"
	}
	return "bad state"
}

// which queue, if any, a schedulable unit is linked on. a unit is on at most
// one queue at a time.
type Qtag_t int

const (
	Q_NONE  Qtag_t = 0
	Q_COND  Qtag_t = 1
	Q_READY Qtag_t = 2
	// waiting for an out-of-line kernel call to be answered
	Q_REPLY Qtag_t = 3
)

// trap frame word layout for kernel calls
const (
	TF_NR   = 0
	TF_ARG0 = 1
	TF_ARG1 = 2
	TF_ARG2 = 3
	TF_ARG3 = 4
	TF_ARG4 = 5
	TF_RET  = 6
	TFSIZE  = 8
)

// user address space layout
const (
	PAGE_SIZE      = 4096
	USER_BASE_VIRT = 0x02000000
	USER_END_VIRT  = 0xc0000000
)

// Tf_t is the saved register file a kernel call traps with.
type Tf_t [TFSIZE]uintptr
