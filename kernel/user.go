package main

import "fmt"
import "strconv"
import "strings"

import "github.com/NomadArchitect/microkernel/defs"
import "github.com/NomadArchitect/microkernel/elf"
import "github.com/NomadArchitect/microkernel/kcall"
import "github.com/NomadArchitect/microkernel/klog"
import "github.com/NomadArchitect/microkernel/proc"
import "github.com/NomadArchitect/microkernel/thread"
import "github.com/NomadArchitect/microkernel/util"

var ulog = klog.Mk("user")

// user programs are plain text, one command per line, loaded at
// USER_BASE_VIRT and terminated by a NUL byte.
const (
	SCRIPT_VA = defs.USER_BASE_VIRT
	// user stack page 0, mapped by process bootstrap
	STAGE_VA = defs.USER_END_VIRT - defs.PAGE_SIZE
	// spawned images are staged here
	SPAWN_VA = defs.USER_BASE_VIRT + 0x100000
	// the entry point of worker threads
	WORKER_VA = defs.USER_BASE_VIRT + 0x1000
	MAXSCRIPT = defs.PAGE_SIZE - 1
)

// Mkscript wraps a program into an executable image.
func Mkscript(src string) ([]uint8, error) {
	if len(src) > MAXSCRIPT {
		return nil, fmt.Errorf("program too large (%v bytes)", len(src))
	}
	if strings.IndexByte(src, 0) != -1 {
		return nil, fmt.Errorf("program contains NUL")
	}
	payload := append([]uint8(src), 0)
	return elf.Mkimage(SCRIPT_VA, SCRIPT_VA, payload), nil
}

// user_t runs user programs on top of the kernel call interface. only kernel
// calls and user memory are used, as a real user program would.
type user_t struct {
	k      *kcall.Kcall_t
	images map[string][]uint8
}

func mkuser(k *kcall.Kcall_t, images map[string][]uint8) *user_t {
	u := &user_t{k: k, images: images}
	k.Register_entry(WORKER_VA, u.worker)
	return u
}

// worker yields arg times and exits with arg+1.
func (u *user_t) worker(t *thread.Thread_t, arg uintptr) uintptr {
	for i := uintptr(0); i < arg; i++ {
		u.k.Kcall(t, defs.NR_thread_yield, 0, 0, 0, 0, 0)
	}
	return arg + 1
}

func (u *user_t) fetch(p *proc.Proc_t) (string, bool) {
	buf := make([]uint8, MAXSCRIPT+1)
	if p.Vmem.User2k(buf, SCRIPT_VA) != 0 {
		return "", false
	}
	i := strings.IndexByte(string(buf), 0)
	if i == -1 {
		return "", false
	}
	return string(buf[:i]), true
}

func (u *user_t) write(t *thread.Thread_t, p *proc.Proc_t, s string) int {
	b := []uint8(s)
	for len(b) > 0 {
		n := len(b)
		if n > defs.WRITE_BUFFER_SIZE {
			n = defs.WRITE_BUFFER_SIZE
		}
		if p.Vmem.K2user(b[:n], STAGE_VA) != 0 {
			return int(-defs.EFAULT)
		}
		if r := u.k.Kcall(t, defs.NR_write, 1, STAGE_VA, uintptr(n), 0, 0); r < 0 {
			return r
		}
		b = b[n:]
	}
	return len(s)
}

func (u *user_t) word(p *proc.Proc_t, va uintptr) uint32 {
	var w [4]uint8
	if p.Vmem.User2k(w[:], int(va)) != 0 {
		return 0
	}
	return uint32(util.Readn(w[:], 4, 0))
}

func _arg(f []string, def int) (int, bool) {
	if len(f) < 2 {
		return def, true
	}
	n, err := strconv.Atoi(f[1])
	return n, err == nil
}

// run interprets the program of p on its main thread. the result is the
// thread's exit value.
func (u *user_t) run(t *thread.Thread_t, p *proc.Proc_t) uintptr {
	src, ok := u.fetch(p)
	if !ok {
		ulog.Error("pid %v: no program", p.Pid)
		return 1
	}
	say := func(format string, args ...interface{}) {
		u.write(t, p, fmt.Sprintf("[%v] ", p.Pid)+fmt.Sprintf(format, args...)+"\n")
	}
	for lineno, line := range strings.Split(src, "\n") {
		f := strings.Fields(line)
		if len(f) == 0 || strings.HasPrefix(f[0], "#") {
			continue
		}
		n, ok := _arg(f, 1)
		if !ok {
			ulog.Error("pid %v: line %v: bad argument %q", p.Pid, lineno+1, f[1])
			return 1
		}
		switch f[0] {
		case "print":
			say("%v", strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(line), "print")))
		case "getpid":
			say("pid %v tid %v", u.k.Kcall(t, defs.NR_getpid, 0, 0, 0, 0, 0),
				u.k.Kcall(t, defs.NR_thread_get_id, 0, 0, 0, 0, 0))
		case "pinfo":
			self := int32(defs.PID_SELF)
			r := u.k.Kcall(t, defs.NR_pinfo, uintptr(uint32(self)), STAGE_VA, 0, 0, 0)
			if r != 0 {
				say("pinfo failed: %v", r)
				break
			}
			say("pinfo pid %v tid %v pgdir %#x", u.word(p, STAGE_VA+kcall.PINFO_PID),
				u.word(p, STAGE_VA+kcall.PINFO_TID), u.word(p, STAGE_VA+kcall.PINFO_PGDIR))
		case "void":
			r := u.k.Kcall(t, defs.NR_void5, 1, 2, 3, 4, 5)
			say("void5 %v", r)
		case "yield":
			for i := 0; i < n; i++ {
				u.k.Kcall(t, defs.NR_thread_yield, 0, 0, 0, 0, 0)
			}
		case "threads":
			var tids []uintptr
			for i := 0; i < n; i++ {
				r := u.k.Kcall(t, defs.NR_thread_create, WORKER_VA, uintptr(i), 0, 0, 0)
				if r < 0 {
					say("thread_create failed: %v", r)
					break
				}
				tids = append(tids, uintptr(r))
			}
			sum := uint32(0)
			for _, tid := range tids {
				if r := u.k.Kcall(t, defs.NR_thread_join, tid, STAGE_VA, 0, 0, 0); r != 0 {
					say("thread_join %v failed: %v", tid, r)
					continue
				}
				sum += u.word(p, STAGE_VA)
			}
			say("joined %v threads, sum %v", len(tids), sum)
		case "clock":
			say("clock %v ms", u.k.Kcall(t, defs.NR_clock, 0, 0, 0, 0, 0))
		case "stats":
			u.k.Kcall(t, defs.NR_stats, 0, 0, 0, 0, 0)
		case "spawn":
			if len(f) < 2 {
				say("spawn: no image")
				break
			}
			say("spawned %v: %v", f[1], u.spawn(t, p, f[1]))
		case "shutdown":
			u.k.Kcall(t, defs.NR_shutdown, 0, 0, 0, 0, 0)
		case "exit":
			n, _ := _arg(f, 0)
			u.k.Kcall(t, defs.NR_thread_exit, uintptr(n), 0, 0, 0, 0)
		default:
			ulog.Warn("pid %v: line %v: unknown command %q", p.Pid, lineno+1, f[0])
			return 1
		}
	}
	return 0
}

func (u *user_t) spawn(t *thread.Thread_t, p *proc.Proc_t, name string) int {
	img, ok := u.images[name]
	if !ok {
		return int(-defs.ENOENT)
	}
	if len(img) > kcall.MAXIMAGE {
		return int(-defs.ENOMEM)
	}
	if err := p.Vmem.Attach(SPAWN_VA, uintptr(util.Roundup(len(img), defs.PAGE_SIZE))); err != 0 {
		return int(err)
	}
	if err := p.Vmem.K2user(img, SPAWN_VA); err != 0 {
		return int(err)
	}
	return u.k.Kcall(t, defs.NR_spawn, SPAWN_VA, uintptr(len(img)), 0, 0, 0)
}
