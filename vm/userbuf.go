package vm

import "github.com/NomadArchitect/microkernel/defs"

// a helper object for reading from and writing to user memory in chunks.
type Userbuf_t struct {
	userva int
	len    int
	// 0 <= off <= len
	off int
	as  Vmem_i
}

func Mkuserbuf(as Vmem_i, uva, len int) *Userbuf_t {
	if len < 0 {
		panic("negative length")
	}
	return &Userbuf_t{userva: uva, len: len, as: as}
}

func (ub *Userbuf_t) Remain() int {
	return ub.len - ub.off
}

func (ub *Userbuf_t) Totalsz() int {
	return ub.len
}

func (ub *Userbuf_t) Uioread(dst []uint8) (int, defs.Err_t) {
	return ub._tx(dst, false)
}

func (ub *Userbuf_t) Uiowrite(src []uint8) (int, defs.Err_t) {
	return ub._tx(src, true)
}

// copies the min of either the provided buffer or the bytes left. if an error
// occurs the userbuf's state is unchanged so the operation can be restarted.
func (ub *Userbuf_t) _tx(buf []uint8, write bool) (int, defs.Err_t) {
	c := len(buf)
	if r := ub.Remain(); c > r {
		c = r
	}
	if c == 0 {
		return 0, 0
	}
	va := ub.userva + ub.off
	var err defs.Err_t
	if write {
		err = ub.as.K2user(buf[:c], va)
	} else {
		err = ub.as.User2k(buf[:c], va)
	}
	if err != 0 {
		return 0, err
	}
	ub.off += c
	return c, 0
}
