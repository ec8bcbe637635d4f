package vm

import "sync"
import "sync/atomic"

import "github.com/NomadArchitect/microkernel/defs"

const PGSIZE = defs.PAGE_SIZE
const PGOFFSET = PGSIZE - 1
const PGMASK = ^uintptr(PGOFFSET)

// Vmem_i is the address space of one process.
type Vmem_i interface {
	// map zeroed pages covering [vaddr, vaddr+length)
	Attach(vaddr, length uintptr) defs.Err_t
	K2user(src []uint8, uva int) defs.Err_t
	User2k(dst []uint8, uva int) defs.Err_t
	Pgdir() uintptr
	Destroy()
}

type Factory_i interface {
	Create() (Vmem_i, bool)
}

// Vm_t is an address space backed by a map of pages.
type Vm_t struct {
	// lock for pages
	sync.Mutex
	pages     map[uintptr][]uint8
	pgdir     uintptr
	destroyed bool
}

func (as *Vm_t) Pgdir() uintptr {
	return as.pgdir
}

func (as *Vm_t) Attach(vaddr, length uintptr) defs.Err_t {
	if length == 0 || vaddr+length < vaddr || vaddr+length > defs.USER_END_VIRT {
		return -defs.EINVAL
	}
	as.Lock()
	defer as.Unlock()
	if as.destroyed {
		panic("attach to destroyed vmem")
	}
	for va := vaddr & PGMASK; va < vaddr+length; va += PGSIZE {
		if _, ok := as.pages[va]; !ok {
			as.pages[va] = make([]uint8, PGSIZE)
		}
	}
	return 0
}

// Mapped reports whether the page containing va is present.
func (as *Vm_t) Mapped(va uintptr) bool {
	as.Lock()
	_, ok := as.pages[va&PGMASK]
	as.Unlock()
	return ok
}

func (as *Vm_t) Npages() int {
	as.Lock()
	ret := len(as.pages)
	as.Unlock()
	return ret
}

func (as *Vm_t) userdmap8_inner(va int) ([]uint8, defs.Err_t) {
	if va < 0 {
		return nil, -defs.EFAULT
	}
	uva := uintptr(va)
	pg, ok := as.pages[uva&PGMASK]
	if !ok {
		return nil, -defs.EFAULT
	}
	return pg[uva&PGOFFSET:], 0
}

func (as *Vm_t) K2user(src []uint8, uva int) defs.Err_t {
	as.Lock()
	defer as.Unlock()
	cnt := 0
	for len(src) != 0 {
		dst, err := as.userdmap8_inner(uva + cnt)
		if err != 0 {
			return err
		}
		did := copy(dst, src)
		src = src[did:]
		cnt += did
	}
	return 0
}

// copies len(dst) bytes from userspace address uva to dst
func (as *Vm_t) User2k(dst []uint8, uva int) defs.Err_t {
	as.Lock()
	defer as.Unlock()
	cnt := 0
	for len(dst) != 0 {
		src, err := as.userdmap8_inner(uva + cnt)
		if err != 0 {
			return err
		}
		did := copy(dst, src)
		dst = dst[did:]
		cnt += did
	}
	return 0
}

func (as *Vm_t) Destroy() {
	as.Lock()
	if as.destroyed {
		panic("double destroy")
	}
	as.destroyed = true
	as.pages = nil
	as.Unlock()
}

// Memfactory_t hands out in-memory address spaces, at most Max live ones.
type Memfactory_t struct {
	Max   int64
	live  int64
	next  uintptr
	// fail this many upcoming creations
	Failn int64
}

func Mkfactory(max int) *Memfactory_t {
	return &Memfactory_t{Max: int64(max)}
}

type fvm_t struct {
	Vm_t
	f *Memfactory_t
}

func (v *fvm_t) Destroy() {
	v.Vm_t.Destroy()
	atomic.AddInt64(&v.f.live, -1)
}

func (f *Memfactory_t) Create() (Vmem_i, bool) {
	if atomic.AddInt64(&f.Failn, -1) >= 0 {
		return nil, false
	}
	atomic.StoreInt64(&f.Failn, 0)
	if atomic.AddInt64(&f.live, 1) > f.Max {
		atomic.AddInt64(&f.live, -1)
		return nil, false
	}
	ret := &fvm_t{f: f}
	ret.pages = make(map[uintptr][]uint8)
	ret.pgdir = (atomic.AddUintptr(&f.next, 1)) << 12
	return ret, true
}

func (f *Memfactory_t) Live() int {
	return int(atomic.LoadInt64(&f.live))
}

// Mkroot returns the kernel's own address space. it is not counted against
// the factory.
func Mkroot() *Vm_t {
	return &Vm_t{pages: make(map[uintptr][]uint8)}
}
