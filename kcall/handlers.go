package kcall

import "github.com/NomadArchitect/microkernel/defs"
import "github.com/NomadArchitect/microkernel/thread"
import "github.com/NomadArchitect/microkernel/util"
import "github.com/NomadArchitect/microkernel/vm"

// largest image NR_spawn copies out of user memory
const MAXIMAGE = 1 << 20

func kcall_void0(k *Kcall_t, t *thread.Thread_t, a0, a1, a2, a3, a4 uintptr) int {
	return 0
}

func kcall_void1(k *Kcall_t, t *thread.Thread_t, a0, a1, a2, a3, a4 uintptr) int {
	return int(a0)
}

func kcall_void2(k *Kcall_t, t *thread.Thread_t, a0, a1, a2, a3, a4 uintptr) int {
	return int(a0 + a1)
}

func kcall_void3(k *Kcall_t, t *thread.Thread_t, a0, a1, a2, a3, a4 uintptr) int {
	return int(a0 + a1 + a2)
}

func kcall_void4(k *Kcall_t, t *thread.Thread_t, a0, a1, a2, a3, a4 uintptr) int {
	return int(a0 + a1 + a2 + a3)
}

func kcall_void5(k *Kcall_t, t *thread.Thread_t, a0, a1, a2, a3, a4 uintptr) int {
	return int(a0 + a1 + a2 + a3 + a4)
}

func kcall_shutdown(k *Kcall_t, t *thread.Thread_t, a0, a1, a2, a3, a4 uintptr) int {
	log.Info("shutdown requested by tid %v", t.Tid)
	if k.Onshutdown == nil {
		return int(-defs.EPERM)
	}
	k.Onshutdown()
	return 0
}

// write(fd, buf, n) copies n bytes at user address buf to the console.
func kcall_write(k *Kcall_t, t *thread.Thread_t, a0, a1, a2, a3, a4 uintptr) int {
	fd := int(a0)
	buf := a1
	n := int(a2)
	if fd < 0 || buf == 0 || n < 0 || n > defs.WRITE_BUFFER_SIZE {
		return int(-defs.EINVAL)
	}
	p := k.pt.Current(t)
	kbuf := make([]uint8, n)
	ub := vm.Mkuserbuf(p.Vmem, int(buf), n)
	if _, err := ub.Uioread(kbuf); err != 0 {
		return int(err)
	}
	k._puts(kbuf)
	return n
}

// spawn(image, len) starts a process from an image in the caller's memory.
func kcall_spawn(k *Kcall_t, t *thread.Thread_t, a0, a1, a2, a3, a4 uintptr) int {
	uva := a0
	n := int(a1)
	if uva == 0 || n <= 0 || n > MAXIMAGE {
		return int(-defs.EINVAL)
	}
	p := k.pt.Current(t)
	img := make([]uint8, n)
	if err := p.Vmem.User2k(img, int(uva)); err != 0 {
		return int(err)
	}
	log.Info("spawning process from %#x", uva)
	pid, err := k.pt.Create(img)
	if err != 0 {
		return int(err)
	}
	return int(pid)
}

// layout of the record NR_pinfo stores
const (
	PINFO_PID   = 0
	PINFO_TID   = 4
	PINFO_PGDIR = 8
	PINFO_SIZE  = 12
)

// pinfo(pid, buf) stores the pid, main thread id and page directory of a
// process at user address buf.
func kcall_pinfo(k *Kcall_t, t *thread.Thread_t, a0, a1, a2, a3, a4 uintptr) int {
	pid := defs.Pid_t(int32(a0))
	if pid == defs.PID_SELF {
		pid = t.Pid
	}
	p, ok := k.pt.Get(pid)
	if !ok {
		log.Error("no such process %v", pid)
		return int(-defs.ENOENT)
	}
	if a1 == 0 {
		return int(-defs.EINVAL)
	}
	var rec [PINFO_SIZE]uint8
	util.Writen(rec[:], 4, PINFO_PID, int(p.Pid))
	util.Writen(rec[:], 4, PINFO_TID, int(p.Tid))
	util.Writen(rec[:], 4, PINFO_PGDIR, int(p.Vmem.Pgdir()))
	cur := k.pt.Current(t)
	if err := cur.Vmem.K2user(rec[:], int(a1)); err != 0 {
		log.Error("bad storage location %#x", a1)
		return int(-defs.EFAULT)
	}
	log.Trace("pinfo(): pid=%v, buf=%#x", pid, a1)
	return 0
}

func kcall_thread_get_id(k *Kcall_t, t *thread.Thread_t, a0, a1, a2, a3, a4 uintptr) int {
	return int(t.Tid)
}

// thread_create(entry, arg) starts a thread of the caller's process at a
// registered entry.
func kcall_thread_create(k *Kcall_t, t *thread.Thread_t, a0, a1, a2, a3, a4 uintptr) int {
	fn, ok := k._entry(a0)
	if !ok {
		return int(-defs.EINVAL)
	}
	tid, err := k.pt.Thread(t, fn, a1)
	if err != 0 {
		return int(err)
	}
	return int(tid)
}

func kcall_thread_exit(k *Kcall_t, t *thread.Thread_t, a0, a1, a2, a3, a4 uintptr) int {
	k.tt.Exit(t, a0)
	panic("thread exit returned")
}

// thread_join(tid, retp) waits for tid and stores its exit value at retp
// unless retp is 0.
func kcall_thread_join(k *Kcall_t, t *thread.Thread_t, a0, a1, a2, a3, a4 uintptr) int {
	v, err := k.tt.Join(t, defs.Tid_t(a0))
	if err != 0 {
		return int(err)
	}
	if a1 != 0 {
		var w [4]uint8
		util.Writen(w[:], 4, 0, int(v))
		p := k.pt.Current(t)
		if err := p.Vmem.K2user(w[:], int(a1)); err != 0 {
			return int(err)
		}
	}
	return 0
}

func kcall_thread_yield(k *Kcall_t, t *thread.Thread_t, a0, a1, a2, a3, a4 uintptr) int {
	k.tt.Yield(t)
	return 0
}

func kcall_sleep(k *Kcall_t, t *thread.Thread_t, a0, a1, a2, a3, a4 uintptr) int {
	k.sleeplk.Lockas(&t.Note)
	err := k.tt.Sleep(t, &k.sleeplk)
	k.sleeplk.Unlockas(&t.Note)
	return int(err)
}

func kcall_wakeup(k *Kcall_t, t *thread.Thread_t, a0, a1, a2, a3, a4 uintptr) int {
	return int(k.tt.Wakeup(defs.Tid_t(a0)))
}

func kcall_getpid(k *Kcall_t, t *thread.Thread_t, a0, a1, a2, a3, a4 uintptr) int {
	return int(t.Pid)
}

// thread_detach(tid) drops the exit value of tid when it exits.
func kcall_thread_detach(k *Kcall_t, t *thread.Thread_t, a0, a1, a2, a3, a4 uintptr) int {
	return int(k.tt.Detach(t, defs.Tid_t(a0)))
}

// semget(key) returns the id of the semaphore named key.
func kcall_semget(k *Kcall_t, t *thread.Thread_t, a0, a1, a2, a3, a4 uintptr) int {
	id, err := k.pt.Sems.Get(uint(a0))
	if err != 0 {
		return int(err)
	}
	return id
}

// semop(id, op)
func kcall_semop(k *Kcall_t, t *thread.Thread_t, a0, a1, a2, a3, a4 uintptr) int {
	id := int(int32(a0))
	switch a1 {
	case defs.SEM_UP:
		return int(k.pt.Sems.Up(id))
	case defs.SEM_DOWN:
		return int(k.pt.Sems.Down(&t.Note, id))
	case defs.SEM_TRYLOCK:
		return int(k.pt.Sems.Trydown(id))
	}
	return int(-defs.ENOENT)
}

// semctl(id, cmd, val)
func kcall_semctl(k *Kcall_t, t *thread.Thread_t, a0, a1, a2, a3, a4 uintptr) int {
	id := int(int32(a0))
	switch a1 {
	case defs.SEM_GETVALUE:
		n, err := k.pt.Sems.Getvalue(id)
		if err != 0 {
			return int(err)
		}
		return n
	case defs.SEM_SETVALUE:
		return int(k.pt.Sems.Setvalue(id, int(int32(a2))))
	case defs.SEM_DELETE:
		return int(k.pt.Sems.Delete(id))
	}
	return int(-defs.ENOENT)
}
