package main

import "fmt"

import "github.com/NomadArchitect/microkernel/defs"
import "github.com/NomadArchitect/microkernel/ksync"
import "github.com/NomadArchitect/microkernel/thread"

// boot-time checks of the kernel primitives, run on the kernel thread.

func (kn *kernel_t) test_void() error {
	want := []int{0, 1, 3, 6, 10, 15}
	for nr, w := range want {
		if r := kn.k.Kcall(kn.t0, uintptr(nr), 1, 2, 3, 4, 5); r != w {
			return fmt.Errorf("void%v: got %v, want %v", nr, r, w)
		}
	}
	return nil
}

// test_mutex has kernel threads contend for a sleeping mutex.
func (kn *kernel_t) test_mutex() error {
	const loops = 1000
	var m ksync.Mutex_t
	m.Init(ksync.MUTEX_SLEEP, kn.tt)
	m.Class = "selftest"
	cnt := 0
	body := func(t *thread.Thread_t, arg uintptr) uintptr {
		for i := 0; i < loops; i++ {
			m.Lock(&t.Note)
			cnt++
			m.Unlock(&t.Note)
			kn.tt.Yieldpoint(t)
		}
		return arg * 10
	}
	n := kn.tt.Capacity() - 1
	if n > 3 {
		n = 3
	}
	var tids []defs.Tid_t
	for i := 0; i < n; i++ {
		tid, err := kn.pt.Thread(kn.t0, body, uintptr(i+1))
		if err != 0 {
			return fmt.Errorf("thread create: %v", err)
		}
		tids = append(tids, tid)
	}
	for i, tid := range tids {
		v, err := kn.tt.Join(kn.t0, tid)
		if err != 0 {
			return fmt.Errorf("join %v: %v", tid, err)
		}
		if v != uintptr(i+1)*10 {
			return fmt.Errorf("join %v: exit value %v", tid, v)
		}
	}
	m.Lock(&kn.t0.Note)
	got := cnt
	m.Unlock(&kn.t0.Note)
	if got != n*loops {
		return fmt.Errorf("lost increments: %v != %v", got, n*loops)
	}
	return nil
}

// test_sem hands tokens from a kernel thread to the kernel thread through
// a kernel semaphore.
func (kn *kernel_t) test_sem() error {
	const n = 100
	id := kn.k.Kcall(kn.t0, defs.NR_semget, 0x5e3, 0, 0, 0, 0)
	if id < 0 {
		return fmt.Errorf("semget: %v", defs.Err_t(id))
	}
	sid := uintptr(id)
	tid, err := kn.pt.Thread(kn.t0, func(t *thread.Thread_t, arg uintptr) uintptr {
		for i := 0; i < n; i++ {
			kn.k.Kcall(t, defs.NR_semop, sid, defs.SEM_UP, 0, 0, 0)
		}
		return 0
	}, 0)
	if err != 0 {
		return fmt.Errorf("thread create: %v", err)
	}
	for i := 0; i < n; i++ {
		if r := kn.k.Kcall(kn.t0, defs.NR_semop, sid, defs.SEM_DOWN, 0, 0, 0); r != 0 {
			return fmt.Errorf("down: %v", defs.Err_t(r))
		}
	}
	if _, err := kn.tt.Join(kn.t0, tid); err != 0 {
		return fmt.Errorf("join: %v", err)
	}
	if c := kn.k.Kcall(kn.t0, defs.NR_semctl, sid, defs.SEM_GETVALUE, 0, 0, 0); c != 0 {
		return fmt.Errorf("%v tokens left", c)
	}
	if r := kn.k.Kcall(kn.t0, defs.NR_semctl, sid, defs.SEM_DELETE, 0, 0, 0); r != 0 {
		return fmt.Errorf("delete: %v", defs.Err_t(r))
	}
	return nil
}

func (kn *kernel_t) test_slow() error {
	if r := kn.k.Kcall(kn.t0, defs.NR_clock, 0, 0, 0, 0, 0); r < 0 {
		return fmt.Errorf("clock: %v", r)
	}
	if r := kn.k.Kcall(kn.t0, 1000, 0, 0, 0, 0, 0); r != int(-defs.ENOSYS) {
		return fmt.Errorf("unknown call: %v", r)
	}
	return nil
}

func (kn *kernel_t) test_pids() error {
	if !kn.pt.Is_valid(defs.KPID) {
		return fmt.Errorf("kernel process invalid")
	}
	if kn.pt.Is_valid(defs.Pid_t(kn.cfg.Procs + 1000)) {
		return fmt.Errorf("unissued pid valid")
	}
	if _, err := kn.tt.Join(kn.t0, kn.t0.Tid); err == 0 {
		return fmt.Errorf("self join succeeded")
	}
	return nil
}

func (kn *kernel_t) selftest() error {
	tests := []struct {
		name string
		f    func() error
	}{
		{"void", kn.test_void},
		{"mutex", kn.test_mutex},
		{"sem", kn.test_sem},
		{"slow", kn.test_slow},
		{"pids", kn.test_pids},
	}
	for _, t := range tests {
		if err := t.f(); err != nil {
			return fmt.Errorf("%v: %w", t.name, err)
		}
		log.Info("self test %v ok", t.name)
	}
	return nil
}
