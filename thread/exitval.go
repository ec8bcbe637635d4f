package thread

import "github.com/NomadArchitect/microkernel/defs"

// Exitst_t is the remembered exit status of a terminated thread.
type Exitst_t struct {
	Tid    defs.Tid_t
	Retval uintptr
	// true iff the status is valid
	Valid bool
}

// exitring_t keeps the most recent exit statuses so that a join issued after
// the target's slot was freed still finds the value. old entries are
// overwritten round-robin.
type exitring_t struct {
	vals []Exitst_t
	next int
}

func (er *exitring_t) init(n int) {
	if n <= 0 {
		panic("empty exit ring")
	}
	er.vals = make([]Exitst_t, n)
	er.next = 0
}

func (er *exitring_t) put(tid defs.Tid_t, v uintptr) {
	er.vals[er.next] = Exitst_t{Tid: tid, Retval: v, Valid: true}
	er.next = (er.next + 1) % len(er.vals)
}

func (er *exitring_t) get(tid defs.Tid_t) (uintptr, bool) {
	for i := range er.vals {
		e := &er.vals[i]
		if e.Valid && e.Tid == tid {
			return e.Retval, true
		}
	}
	return 0, false
}
