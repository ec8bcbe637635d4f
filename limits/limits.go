package limits

import "encoding/json"
import "fmt"
import "os"
import "sync/atomic"

type Sysatomic_t int64

// Syslimit_t holds the kernel's tunables. the zero value is not useful; start
// from MkSysLimit().
type Syslimit_t struct {
	// thread table slots, including the kernel thread
	Kthreads int `json:"kthreads"`
	// process table slots, including the kernel process
	Procs int `json:"procs"`
	// physical cores
	Cores int `json:"cores"`
	// timer ticks a thread may run before it must yield (round-robin only)
	Quantum int `json:"quantum"`
	// remembered exit values of terminated threads
	Exitvals int `json:"exit_values"`
	// "affinity" or "roundrobin"
	Policy string `json:"scheduler_policy"`
	// "trace", "info", "warn" or "error"
	Loglevel string `json:"log_level"`
	// attempts a mutex unlock makes to wake the head waiter
	Wakeretries int `json:"wake_retries"`
	// bytes of private stack per thread
	Kstacksz int `json:"kstack_size"`
	// user stack pages tracked per process
	Ustackpgs int `json:"ustack_pages"`
	// kernel semaphores
	Sems int `json:"semaphores"`
}

const (
	POLICY_AFFINITY   = "affinity"
	POLICY_ROUNDROBIN = "roundrobin"
)

var Syslimit *Syslimit_t = MkSysLimit()

func MkSysLimit() *Syslimit_t {
	return &Syslimit_t{
		Kthreads:    16,
		Procs:       16,
		Cores:       4,
		Quantum:     100,
		Exitvals:    32,
		Policy:      POLICY_AFFINITY,
		Loglevel:    "info",
		Wakeretries: 1 << 20,
		Kstacksz:    4096,
		Ustackpgs:   64,
		Sems:        64,
	}
}

// Load reads a JSON config over the defaults.
func Load(path string) (*Syslimit_t, error) {
	buf, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	ret := MkSysLimit()
	if err := json.Unmarshal(buf, ret); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := ret.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return ret, nil
}

func (s *Syslimit_t) Validate() error {
	switch {
	case s.Kthreads < 2:
		return fmt.Errorf("kthreads must be at least 2, got %d", s.Kthreads)
	case s.Procs < 2:
		return fmt.Errorf("procs must be at least 2, got %d", s.Procs)
	case s.Cores < 1:
		return fmt.Errorf("cores must be positive, got %d", s.Cores)
	case s.Quantum < 1:
		return fmt.Errorf("quantum must be positive, got %d", s.Quantum)
	case s.Exitvals < 1:
		return fmt.Errorf("exit_values must be positive, got %d", s.Exitvals)
	case s.Wakeretries < 1:
		return fmt.Errorf("wake_retries must be positive, got %d", s.Wakeretries)
	case s.Kstacksz < 64:
		return fmt.Errorf("kstack_size too small: %d", s.Kstacksz)
	case s.Ustackpgs < 1:
		return fmt.Errorf("ustack_pages must be positive, got %d", s.Ustackpgs)
	case s.Sems < 1:
		return fmt.Errorf("semaphores must be positive, got %d", s.Sems)
	}
	switch s.Policy {
	case POLICY_AFFINITY, POLICY_ROUNDROBIN:
	default:
		return fmt.Errorf("unknown scheduler policy %q", s.Policy)
	}
	return nil
}

func (s *Sysatomic_t) _aptr() *int64 {
	return (*int64)(s)
}

func (s *Sysatomic_t) Given(_n uint) {
	n := int64(_n)
	if n < 0 {
		panic("too mighty")
	}
	atomic.AddInt64(s._aptr(), n)
}

func (s *Sysatomic_t) Taken(_n uint) bool {
	n := int64(_n)
	if n < 0 {
		panic("too mighty")
	}
	g := atomic.AddInt64(s._aptr(), -n)
	if g >= 0 {
		return true
	}
	atomic.AddInt64(s._aptr(), n)
	return false
}

// returns false if the limit has been reached.
func (s *Sysatomic_t) Take() bool {
	return s.Taken(1)
}

func (s *Sysatomic_t) Give() {
	s.Given(1)
}

func (s *Sysatomic_t) Load() int64 {
	return atomic.LoadInt64(s._aptr())
}
