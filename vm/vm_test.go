package vm

import "bytes"
import "testing"

import "github.com/NomadArchitect/microkernel/defs"

func TestAttachCopy(t *testing.T) {
	f := Mkfactory(2)
	v, ok := f.Create()
	if !ok {
		t.Fatalf("create")
	}
	as := v.(*fvm_t)
	base := uintptr(defs.USER_BASE_VIRT)
	if err := v.Attach(base+100, 2*PGSIZE); err != 0 {
		t.Fatalf("attach %v", err)
	}
	if as.Npages() != 3 || !as.Mapped(base+2*PGSIZE) {
		t.Fatalf("pages %v", as.Npages())
	}
	src := bytes.Repeat([]byte("x"), PGSIZE+10)
	if err := v.K2user(src, int(base)+50); err != 0 {
		t.Fatalf("k2user %v", err)
	}
	dst := make([]byte, len(src))
	if err := v.User2k(dst, int(base)+50); err != 0 || !bytes.Equal(src, dst) {
		t.Fatalf("user2k %v", err)
	}
	if err := v.User2k(dst, int(base)+3*PGSIZE); err != -defs.EFAULT {
		t.Fatalf("unmapped read %v", err)
	}
	if v.Attach(defs.USER_END_VIRT, PGSIZE) != -defs.EINVAL {
		t.Fatalf("attach past end")
	}
	if v.Pgdir() == 0 {
		t.Fatalf("no pgdir")
	}
	v.Destroy()
	if f.Live() != 0 {
		t.Fatalf("live %v", f.Live())
	}
}

func TestFactoryLimit(t *testing.T) {
	f := Mkfactory(1)
	f.Failn = 1
	if _, ok := f.Create(); ok {
		t.Fatalf("injected failure ignored")
	}
	a, ok := f.Create()
	if !ok {
		t.Fatalf("create after failure")
	}
	if _, ok := f.Create(); ok {
		t.Fatalf("over limit")
	}
	a.Destroy()
	if _, ok := f.Create(); !ok {
		t.Fatalf("slot not returned")
	}
}

func TestUserbuf(t *testing.T) {
	as := Mkroot()
	as.Attach(defs.USER_BASE_VIRT, PGSIZE)
	ub := Mkuserbuf(as, defs.USER_BASE_VIRT, 5)
	n, err := ub.Uiowrite([]byte("hello world"))
	if n != 5 || err != 0 || ub.Remain() != 0 {
		t.Fatalf("write %v %v", n, err)
	}
	rb := Mkuserbuf(as, defs.USER_BASE_VIRT, 5)
	buf := make([]byte, 8)
	n, err = rb.Uioread(buf)
	if n != 5 || err != 0 || string(buf[:n]) != "hello" {
		t.Fatalf("read %q %v", buf[:n], err)
	}
}
